package render

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"searchbot/internal/domain"
)

// Browser renders text locally with headless Chrome and stores PNG files in
// a directory served under PublicPath.
type Browser struct {
	outputDir  string
	publicPath string
	timeout    time.Duration
	logger     *slog.Logger
}

// BrowserConfig configures Browser.
type BrowserConfig struct {
	OutputDir  string
	PublicPath string // URL prefix the output directory is served under
	Timeout    time.Duration
	Logger     *slog.Logger
}

func NewBrowser(cfg BrowserConfig) *Browser {
	if cfg.PublicPath == "" {
		cfg.PublicPath = "/images"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Browser{
		outputDir:  cfg.OutputDir,
		publicPath: strings.TrimRight(cfg.PublicPath, "/"),
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
	}
}

func (b *Browser) Render(ctx context.Context, text string, opts domain.RenderOptions) (domain.RenderResult, error) {
	if err := os.MkdirAll(b.outputDir, 0o755); err != nil {
		return domain.RenderResult{}, fmt.Errorf("create output dir: %w", err)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Headless)...)
	defer allocCancel()
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, b.timeout)
	defer cancel()

	page := "data:text/html;charset=utf-8," + url.PathEscape(Page(text, opts.Theme, opts.Width))
	var png []byte
	err := chromedp.Run(taskCtx,
		chromedp.EmulateViewport(int64(opts.Width), 600),
		chromedp.Navigate(page),
		chromedp.WaitVisible("#card", chromedp.ByID),
		chromedp.Screenshot("#card", &png, chromedp.ByID),
	)
	if err != nil {
		return domain.RenderResult{}, fmt.Errorf("render page: %w", err)
	}

	name := uuid.NewString() + ".png"
	if err := os.WriteFile(filepath.Join(b.outputDir, name), png, 0o644); err != nil {
		return domain.RenderResult{}, fmt.Errorf("write image: %w", err)
	}
	b.logger.Debug("image rendered", "file", name, "bytes", len(png))

	u := b.publicPath + "/" + name
	return domain.RenderResult{ImageURL: u, DownloadURL: u}, nil
}
