package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"searchbot/internal/domain"
	"searchbot/internal/httpx"
)

// HTTPClient calls a text-to-image service:
// POST {text, theme, width} -> {success, imageUrl, downloadUrl, error}.
type HTTPClient struct {
	endpoint string
	client   *http.Client
	retry    httpx.Retry
	logger   *slog.Logger
}

// HTTPConfig configures HTTPClient.
type HTTPConfig struct {
	Endpoint string // full URL of the text-to-image endpoint
	Timeout  time.Duration
	Retry    httpx.Retry
	Logger   *slog.Logger
}

func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HTTPClient{
		endpoint: cfg.Endpoint,
		client:   httpx.NewClient(cfg.Timeout),
		retry:    cfg.Retry,
		logger:   cfg.Logger,
	}
}

type renderRequest struct {
	Text  string `json:"text"`
	Theme string `json:"theme"`
	Width int    `json:"width"`
}

type renderResponse struct {
	Success     bool   `json:"success"`
	ImageURL    string `json:"imageUrl"`
	DownloadURL string `json:"downloadUrl"`
	Error       string `json:"error"`
}

func (c *HTTPClient) Render(ctx context.Context, text string, opts domain.RenderOptions) (domain.RenderResult, error) {
	body, err := json.Marshal(renderRequest{Text: text, Theme: opts.Theme, Width: opts.Width})
	if err != nil {
		return domain.RenderResult{}, fmt.Errorf("marshal render request: %w", err)
	}

	resp, err := httpx.DoWithRetry(ctx, c.client, c.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, c.logger)
	if err != nil {
		return domain.RenderResult{}, fmt.Errorf("render request: %w", err)
	}
	if err := httpx.CheckStatus(resp); err != nil {
		return domain.RenderResult{}, fmt.Errorf("render request: %w", err)
	}
	defer resp.Body.Close()

	var out renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.RenderResult{}, fmt.Errorf("decode render response: %w", err)
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "render service reported failure"
		}
		return domain.RenderResult{}, errors.New(msg)
	}
	if out.DownloadURL == "" {
		out.DownloadURL = out.ImageURL
	}
	return domain.RenderResult{ImageURL: out.ImageURL, DownloadURL: out.DownloadURL}, nil
}
