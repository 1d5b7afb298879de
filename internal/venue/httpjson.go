package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxBody caps how much of a venue response is read.
const maxBody = 4 << 20

// StatusError is a non-2xx response from a venue.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// getJSON performs one GET and decodes the body into dst, returning the
// raw body for audit. Failures come back already classified.
func getJSON(ctx context.Context, hc *http.Client, venueID, url string, headers map[string]string, dst interface{}) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, Unavailable(venueID, ReasonTransport, err)
	}
	req.Header.Set("accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := hc.Do(req)
	if err != nil {
		return nil, Unavailable(venueID, ReasonTransport, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return nil, Unavailable(venueID, ReasonTransport, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, Unavailable(venueID, ReasonHTTPStatus, &StatusError{StatusCode: res.StatusCode, Body: snippet})
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return nil, Unavailable(venueID, ReasonMalformed, err)
	}
	return body, nil
}
