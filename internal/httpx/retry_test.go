package httpx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDoWithRetryRecoversFromServerError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	resp, err := DoWithRetry(context.Background(), srv.Client(), Retry{Max: 3, Base: time.Millisecond}, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	}, testLogger())
	if err != nil {
		t.Fatalf("DoWithRetry: %v", err)
	}
	defer resp.Body.Close()
	if hits.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestDoWithRetryGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("down"))
	}))
	defer srv.Close()

	_, err := DoWithRetry(context.Background(), srv.Client(), Retry{Max: 1, Base: time.Millisecond}, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	}, testLogger())
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected StatusError 503, got %v", err)
	}
}

func TestDoWithRetryMaxCounts(t *testing.T) {
	tests := []struct {
		name string
		max  int
		want int32
	}{
		{"zero disables retries", 0, 1},
		{"two retries", 2, 3},
		{"negative uses default", -1, DefaultMaxRetries + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(http.StatusBadGateway)
			}))
			defer srv.Close()

			_, err := DoWithRetry(context.Background(), srv.Client(), Retry{Max: tt.max, Base: time.Millisecond}, func() (*http.Request, error) {
				return http.NewRequest(http.MethodGet, srv.URL, nil)
			}, testLogger())
			if err == nil {
				t.Fatal("expected error")
			}
			if hits.Load() != tt.want {
				t.Errorf("attempts = %d, want %d", hits.Load(), tt.want)
			}
		})
	}
}

func TestDoWithRetryDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	resp, err := DoWithRetry(context.Background(), srv.Client(), Retry{Base: time.Millisecond}, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	}, testLogger())
	if err != nil {
		t.Fatalf("DoWithRetry: %v", err)
	}
	if err := CheckStatus(resp); err == nil {
		t.Fatal("expected CheckStatus error for 400")
	}
	if hits.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", hits.Load())
	}
}
