// Package search queries a SearxNG instance.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"searchbot/internal/domain"
	"searchbot/internal/httpx"
)

const defaultCacheTTL = 5 * time.Minute

// Options narrow a search.
type Options struct {
	Engines []string
	Limit   int
}

// Config configures Client.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration // 0 uses the default, negative disables caching
	Retry    httpx.Retry
	Logger   *slog.Logger
}

// Client calls GET {base}/search?format=json and caches results briefly.
type Client struct {
	baseURL string
	client  *http.Client
	retry   httpx.Retry
	ttl     time.Duration
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	sources []domain.Source
	expires time.Time
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httpx.NewClient(cfg.Timeout),
		retry:   cfg.Retry,
		ttl:     cfg.CacheTTL,
		logger:  cfg.Logger,
		cache:   make(map[string]cacheEntry),
	}
}

type searxResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search returns up to opts.Limit results as sources, in SearxNG's order.
func (c *Client) Search(ctx context.Context, query string, opts Options) ([]domain.Source, error) {
	key := strings.Join(opts.Engines, ",") + "\x00" + query
	if cached, ok := c.cached(key); ok {
		c.logger.Debug("search cache hit", "query", query)
		return limit(cached, opts.Limit), nil
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	if len(opts.Engines) > 0 {
		params.Set("engines", strings.Join(opts.Engines, ","))
	}
	endpoint := c.baseURL + "/search?" + params.Encode()

	start := time.Now()
	resp, err := httpx.DoWithRetry(ctx, c.client, c.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("searxng request: %w", err)
	}
	if err := httpx.CheckStatus(resp); err != nil {
		return nil, fmt.Errorf("searxng request: %w", err)
	}
	defer resp.Body.Close()

	var out searxResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode searxng response: %w", err)
	}

	sources := make([]domain.Source, 0, len(out.Results))
	for _, r := range out.Results {
		if r.URL == "" {
			continue
		}
		sources = append(sources, domain.Source{
			PageContent: r.Content,
			Metadata:    domain.SourceMetadata{Title: r.Title, URL: r.URL},
		})
	}
	c.logger.Info("search completed", "query", query, "results", len(sources), "duration", time.Since(start))
	c.store(key, sources)
	return limit(sources, opts.Limit), nil
}

func (c *Client) cached(key string) ([]domain.Source, bool) {
	if c.ttl < 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		delete(c.cache, key)
		return nil, false
	}
	return e.sources, true
}

func (c *Client) store(key string, sources []domain.Source) {
	if c.ttl < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for k, e := range c.cache {
		if now.After(e.expires) {
			delete(c.cache, k)
		}
	}
	c.cache[key] = cacheEntry{sources: sources, expires: now.Add(c.ttl)}
}

// ClearCache drops every cached result and returns how many were dropped.
func (c *Client) ClearCache() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.cache)
	clear(c.cache)
	c.logger.Info("search cache cleared", "entries", n)
	return n
}

func limit(sources []domain.Source, n int) []domain.Source {
	if n > 0 && len(sources) > n {
		return sources[:n]
	}
	return sources
}
