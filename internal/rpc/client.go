package rpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Client is a minimal Solana JSON-RPC client. It performs exactly one
// attempt per call; callers own their retry policy.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *logrus.Logger
}

// ClientConfig holds configuration for the RPC client
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logrus.Logger
}

// NewClient creates a new RPC client
func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &Client{
		httpClient: hc,
		baseURL:    cfg.BaseURL,
		logger:     cfg.Logger,
	}
}

// Endpoint returns the RPC URL this client talks to.
func (c *Client) Endpoint() string { return c.baseURL }

// Call makes a single JSON-RPC call and decodes the envelope into result.
func (c *Client) Call(ctx context.Context, method string, params interface{}, result interface{}) error {
	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()
	resp, err := c.doRequest(ctx, data)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"method":  method,
			"elapsed": time.Since(start),
		}).WithError(err).Debug("rpc call failed")
		return err
	}

	if err := json.Unmarshal(resp, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, data []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewBuffer(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return body, nil
}

// GetAccountInfo fetches raw account data. A missing account yields
// ErrAccountNotFound.
func (c *Client) GetAccountInfo(ctx context.Context, address string) ([]byte, error) {
	params := []interface{}{
		address,
		map[string]interface{}{"encoding": "base64"},
	}

	var result AccountInfoResponse
	if err := c.Call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, result.Error
	}
	if result.Result.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
	}
	if len(result.Result.Value.Data) < 1 {
		return nil, fmt.Errorf("account %s: empty data", address)
	}

	raw, err := base64.StdEncoding.DecodeString(result.Result.Value.Data[0])
	if err != nil {
		return nil, fmt.Errorf("account %s: decode base64: %w", address, err)
	}
	return raw, nil
}

// GetTokenAccountBalance fetches the SPL balance of a token account.
func (c *Client) GetTokenAccountBalance(ctx context.Context, address string) (*TokenAmount, error) {
	var result TokenBalanceResponse
	if err := c.Call(ctx, "getTokenAccountBalance", []interface{}{address}, &result); err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &result.Result.Value, nil
}
