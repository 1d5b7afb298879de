package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rpcServer(t *testing.T, handler func(method string) (int, string)) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var req struct {
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		status, body := handler(req.Method)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestGetAccountInfo(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte{1, 2, 3})
	srv, _ := rpcServer(t, func(method string) (int, string) {
		assert.Equal(t, "getAccountInfo", method)
		return 200, `{"result":{"value":{"data":["` + payload + `","base64"],"owner":"x"}}}`
	})

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	data, err := c.GetAccountInfo(context.Background(), "pool")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
}

func TestGetAccountInfo_NotFound(t *testing.T) {
	srv, _ := rpcServer(t, func(string) (int, string) {
		return 200, `{"result":{"value":null}}`
	})

	_, err := NewClient(ClientConfig{BaseURL: srv.URL}).GetAccountInfo(context.Background(), "pool")
	assert.True(t, errors.Is(err, ErrAccountNotFound))
}

func TestGetTokenAccountBalance(t *testing.T) {
	srv, _ := rpcServer(t, func(method string) (int, string) {
		assert.Equal(t, "getTokenAccountBalance", method)
		return 200, `{"result":{"value":{"amount":"123456","decimals":6}}}`
	})

	bal, err := NewClient(ClientConfig{BaseURL: srv.URL}).GetTokenAccountBalance(context.Background(), "vault")
	require.NoError(t, err)
	assert.Equal(t, "123456", bal.Amount)
	assert.Equal(t, 6, bal.Decimals)
}

func TestCall_NoRetryOnFailure(t *testing.T) {
	srv, calls := rpcServer(t, func(string) (int, string) {
		return http.StatusTooManyRequests, ``
	})

	_, err := NewClient(ClientConfig{BaseURL: srv.URL}).GetTokenAccountBalance(context.Background(), "vault")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestCall_RPCError(t *testing.T) {
	srv, _ := rpcServer(t, func(string) (int, string) {
		return 200, `{"error":{"code":-32602,"message":"invalid param"}}`
	})

	_, err := NewClient(ClientConfig{BaseURL: srv.URL}).GetTokenAccountBalance(context.Background(), "vault")
	var re *RPCError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, -32602, re.Code)
}
