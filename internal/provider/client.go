package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"listingreel/internal/logger"
)

const maxAttempts = 3

// Client is the HTTP client shared by the concrete adapters. Network errors
// and 5xx responses are retried up to three attempts with a short backoff;
// anything else is returned to the step as-is. Retrying lives here, inside
// the step's work, so the executor never re-runs a step for transient noise.
type Client struct {
	base    string
	authKey string
	http    *http.Client
	log     *logger.Logger
}

func NewClient(component, baseURL, authKey string, timeout time.Duration) *Client {
	return &Client{
		base:    baseURL,
		authKey: authKey,
		http:    &http.Client{Timeout: timeout},
		log:     logger.New(component),
	}
}

// DoJSON sends a JSON request and decodes a JSON response into out.
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = b
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt-1) * 500 * time.Millisecond):
			}
			c.log.LogDebugf("retrying %s %s (attempt %d)", method, path, attempt)
		}

		retryable, err := c.do(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}
	return fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}

// GetBytes fetches a raw resource (image, video, audio) from an absolute URL
// with the same bounded retry policy.
func (c *Client) GetBytes(ctx context.Context, url string) ([]byte, string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, "", ctx.Err()
			case <-time.After(time.Duration(attempt-1) * 500 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, "", err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			return nil, "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
		}
		if readErr != nil {
			lastErr = readErr
			continue
		}
		return data, resp.Header.Get("Content-Type"), nil
	}
	return nil, "", fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}

// do performs one attempt. The bool reports whether the failure is worth
// retrying (network error or 5xx).
func (c *Client) do(ctx context.Context, method, path string, payload []byte, out interface{}) (bool, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.authKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, err
	}
	if resp.StatusCode >= 500 {
		return true, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, truncate(data))
	}
	if resp.StatusCode >= 400 {
		return false, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, truncate(data))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return false, fmt.Errorf("decode response from %s: %w", path, err)
		}
	}
	return false, nil
}

func truncate(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
