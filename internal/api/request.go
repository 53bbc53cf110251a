package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError represents an error from the LedgerX API.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledgerx api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// listMeta is the pagination block on list responses.
type listMeta struct {
	Next string `json:"next"`
}

// listEnvelope is the standard list response shape.
type listEnvelope struct {
	Data json.RawMessage `json:"data"`
	Meta listMeta        `json:"meta"`
}

// doRequest performs one HTTP round trip against an absolute URL.
func (c *Client) doRequest(ctx context.Context, method, fullURL string, query url.Values, body io.Reader) ([]byte, error) {
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(fullURL, "?") {
			sep = "&"
		}
		fullURL += sep + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "JWT "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       respBody,
		}
	}

	return respBody, nil
}

// doWithRetry performs a request with jittered exponential backoff.
func (c *Client) doWithRetry(ctx context.Context, method, fullURL string, query url.Values, body []byte) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int63n(int64(backoff)))
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"backoff", jitter,
				"url", fullURL,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		var reader io.Reader
		if body != nil {
			reader = strings.NewReader(string(body))
		}
		respBody, err := c.doRequest(ctx, method, fullURL, query, reader)
		if err == nil {
			return respBody, nil
		}

		lastErr = err

		apiErr, ok := err.(*APIError)
		if !ok || !apiErr.IsRetryable() {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// get performs a GET against a path under the trading base URL.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	body, err := c.doWithRetry(ctx, http.MethodGet, c.baseURL+path, query, nil)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}

// getLegacy performs a GET against a path under the legacy base URL, which
// hosts book states, open orders, and order entry.
func (c *Client) getLegacy(ctx context.Context, path string, query url.Values, result any) error {
	body, err := c.doWithRetry(ctx, http.MethodGet, c.legacyBaseURL+path, query, nil)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}

// listAll walks a paginated list endpoint, decoding each page's data array
// into out via the collect callback. The venue's meta.next URL chains pages.
func (c *Client) listAll(ctx context.Context, path string, query url.Values, collect func(json.RawMessage) error) error {
	next := c.baseURL + path
	page := 0

	for next != "" {
		body, err := c.doWithRetry(ctx, http.MethodGet, next, query, nil)
		if err != nil {
			return err
		}
		query = nil // meta.next carries the cursor

		var env listEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("unmarshal page %d: %w", page, err)
		}
		if err := collect(env.Data); err != nil {
			return err
		}

		next = env.Meta.Next
		page++

		if next != "" && c.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.pageDelay):
			}
		}
	}

	return nil
}
