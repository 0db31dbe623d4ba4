package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"searchbot/internal/agent"
	"searchbot/internal/api"
	"searchbot/internal/channel"
	"searchbot/internal/config"
	"searchbot/internal/domain"
	"searchbot/internal/events"
	"searchbot/internal/history"
	"searchbot/internal/httpx"
	"searchbot/internal/imagegen"
	"searchbot/internal/metrics"
	"searchbot/internal/modes"
	"searchbot/internal/provider"
	"searchbot/internal/render"
	"searchbot/internal/search"
	"searchbot/internal/session"
	"searchbot/internal/stream"
	"searchbot/internal/uploads"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the WebSocket and HTTP server",
		Long:  "Serves /ws, the chat library API, uploads and rendered images. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	lg, closeLog, err := newLogger(cfg.General)
	if err != nil {
		return err
	}
	defer closeLog()
	logger = lg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := history.Open(cfg.History.DBPath, logger)
	if err != nil {
		return fmt.Errorf("history store: %w", err)
	}
	defer store.Close()

	files, err := uploads.New(uploads.Config{
		DB:      store.DB(),
		Dir:     cfg.Uploads.Dir,
		MaxSize: cfg.Uploads.MaxSizeBytes,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("uploads: %w", err)
	}

	llm, err := newLLM(cfg)
	if err != nil {
		return err
	}
	if err := llm.Healthy(ctx); err != nil {
		logger.Warn("language model unhealthy at startup", "provider", llm.Name(), "err", err)
	} else {
		logger.Info("provider healthy", "provider", llm.Name())
	}

	searcher := newSearcher(cfg)
	registry, err := newRegistry(cfg, llm, searcher, files)
	if err != nil {
		return err
	}

	publisher := newPublisher(cfg)
	defer publisher.Close()

	policy, err := stream.ParseErrorPolicy(cfg.Stream.ErrorPolicy)
	if err != nil {
		return err
	}
	streamCfg := stream.Config{
		Store:            store,
		Publisher:        publisher,
		ImageBaseURL:     imageBaseURL(cfg),
		ClassifyQuery:    cfg.Image.ClassifyQuery,
		KeepStreamedText: cfg.History.KeepStreamedText,
		ErrorPolicy:      policy,
		Logger:           logger,
	}
	if renderer := newRenderer(cfg); renderer != nil {
		streamCfg.Images = imagegen.New(imagegen.Config{
			Generator: llm,
			Renderer:  renderer,
			Options:   domain.RenderOptions{Theme: cfg.Image.Theme, Width: cfg.Image.Width},
			Timeout:   time.Duration(cfg.Image.TimeoutSeconds) * time.Second,
			Logger:    logger,
		})
		logger.Info("image generation enabled", "renderer", cfg.Image.Renderer)
	}

	orch := session.New(session.Config{
		Registry: registry,
		Store:    store,
		Files:    files,
		Stream:   streamCfg,
		Logger:   logger,
	})

	ws := channel.NewWebSocketServer(channel.WSConfig{
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		WriteTimeout:    time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		MaxMessageBytes: cfg.Server.MaxMessageBytes,
		Logger:          logger,
	}, orch)

	apiCfg := api.Config{
		Chats:       store,
		Uploads:     files,
		Modes:       registry,
		SearchCache: searcher,
		WebSocket:   ws,
		MetricsPath: cfg.Metrics.Path,
		MaxUpload:   cfg.Uploads.MaxSizeBytes,
		Logger:      logger,
	}
	if cfg.Metrics.Enabled {
		apiCfg.Metrics = metrics.Collector.Handler()
	}
	if cfg.Image.Enabled && cfg.Image.Renderer == "browser" {
		apiCfg.ImageDir = cfg.Image.OutputDir
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           api.NewServer(apiCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("searchbot listening", "addr", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Hijacked WebSocket connections are not closed by Shutdown.
		ws.CloseAll()
		err := srv.Shutdown(shutdownCtx)

		done := make(chan struct{})
		go func() {
			orch.Wait()
			close(done)
		}()
		select {
		case <-done:
			logger.Info("shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("shutdown timed out with requests in flight")
		}
		return err
	})
	return g.Wait()
}

func newLLM(cfg *config.Config) (provider.Client, error) {
	llm, err := provider.New(provider.Config{
		Provider:       cfg.LLM.Provider,
		APIBase:        cfg.LLM.APIBase,
		APIKey:         cfg.LLM.APIKey,
		ChatModel:      cfg.LLM.ChatModel,
		GeneratorModel: cfg.LLM.GeneratorModel,
		Timeout:        time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		Retry:          httpx.Retry{Max: cfg.LLM.MaxRetries},
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("language model: %w", err)
	}
	return llm, nil
}

func newSearcher(cfg *config.Config) *search.Client {
	cacheTTL := time.Duration(cfg.Search.CacheTTLSeconds) * time.Second
	if cfg.Search.CacheTTLSeconds < 0 {
		cacheTTL = -1
	}
	return search.New(search.Config{
		BaseURL:  cfg.Search.SearxngURL,
		Timeout:  time.Duration(cfg.Search.TimeoutSeconds) * time.Second,
		CacheTTL: cacheTTL,
		Retry:    httpx.Retry{Max: cfg.Search.MaxRetries},
		Logger:   logger,
	})
}

// newRegistry builds one search agent per focus mode.
func newRegistry(cfg *config.Config, llm domain.StreamingProvider, searcher *search.Client, files agent.Attachments) (*modes.Registry, error) {
	defs, err := modes.Load(cfg.Modes.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("modes: %w", err)
	}
	limiter := agent.NewRateLimiter(cfg.LLM.RateLimitBurst, cfg.LLM.RateLimitPerMinute)

	return modes.NewRegistry(defs, func(d modes.Definition) domain.Producer {
		return agent.New(agent.Config{
			Mode:          d,
			Search:        searcher,
			LLM:           llm,
			Files:         files,
			Limiter:       limiter,
			MaxResults:    cfg.Search.MaxResults,
			HistoryTokens: cfg.History.MaxPromptTokens,
			MaxTokens:     cfg.LLM.MaxTokens,
			Temperature:   cfg.LLM.Temperature,
			Logger:        logger,
		})
	}), nil
}

// newRenderer returns nil when image generation is disabled.
func newRenderer(cfg *config.Config) domain.Renderer {
	if !cfg.Image.Enabled {
		return nil
	}
	timeout := time.Duration(cfg.Image.TimeoutSeconds) * time.Second
	switch cfg.Image.Renderer {
	case "http":
		return render.NewHTTPClient(render.HTTPConfig{
			Endpoint: cfg.Image.RenderURL,
			Timeout:  timeout,
			Retry:    httpx.Retry{Max: cfg.Image.MaxRetries},
			Logger:   logger,
		})
	case "browser":
		return render.NewBrowser(render.BrowserConfig{
			OutputDir:  cfg.Image.OutputDir,
			PublicPath: "/images",
			Timeout:    timeout,
			Logger:     logger,
		})
	}
	return nil
}

// newPublisher connects to the broker when one is configured. A broker
// that cannot be reached disables publishing rather than the server.
func newPublisher(cfg *config.Config) events.Publisher {
	if cfg.Events.AMQPURL == "" {
		return events.Nop{}
	}
	p, err := events.DialAMQP(events.AMQPConfig{
		URL:        cfg.Events.AMQPURL,
		Exchange:   cfg.Events.Exchange,
		RoutingKey: cfg.Events.RoutingKey,
		Logger:     logger,
	})
	if err != nil {
		logger.Warn("turn events disabled", "err", err)
		return events.Nop{}
	}
	logger.Info("publishing turn events", "exchange", cfg.Events.Exchange)
	return p
}

func imageBaseURL(cfg *config.Config) string {
	if cfg.Image.PublicBaseURL != "" {
		return cfg.Image.PublicBaseURL
	}
	return cfg.Server.PublicBaseURL
}

