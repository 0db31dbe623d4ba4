package httpx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"
)

// DefaultMaxRetries is used when Retry.Max is negative.
const DefaultMaxRetries = 3

// Retry controls DoWithRetry. Max is the number of retries after the first
// attempt: 0 disables retrying, a negative value means DefaultMaxRetries.
// Base defaults to one second.
type Retry struct {
	Max  int
	Base time.Duration
}

func (r Retry) withDefaults() Retry {
	if r.Max < 0 {
		r.Max = DefaultMaxRetries
	}
	if r.Base <= 0 {
		r.Base = time.Second
	}
	return r
}

// StatusError is a non-2xx reply that exhausted its retries.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// DoWithRetry executes a request with quadratic backoff and jitter for
// transient failures (network errors, 5xx, 429). buildReq is called for
// every attempt so request bodies can be replayed.
func DoWithRetry(ctx context.Context, client *http.Client, policy Retry, buildReq func() (*http.Request, error), logger *slog.Logger) (*http.Response, error) {
	policy = policy.withDefaults()
	var lastErr error

	for attempt := 0; attempt <= policy.Max; attempt++ {
		if attempt > 0 {
			base := time.Duration(attempt*attempt) * policy.Base
			jitter := time.Duration(rand.Int64N(int64(base/2 + 1)))
			backoff := base + jitter
			logger.Warn("retrying request", "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if attempt < policy.Max {
				logger.Warn("request failed, will retry", "error", err)
				continue
			}
			return nil, fmt.Errorf("request failed after %d retries: %w", policy.Max, err)
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
			if attempt < policy.Max {
				logger.Warn("server error, will retry", "status", resp.StatusCode, "body", string(body))
				continue
			}
			return nil, fmt.Errorf("server error after %d retries: %w", policy.Max, lastErr)
		}

		return resp, nil
	}

	return nil, lastErr
}

// CheckStatus turns a non-2xx response into a *StatusError and closes its
// body. 2xx responses are returned untouched.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
}
