// Package imagegen turns an image request into rendered content.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"searchbot/internal/domain"
)

// Stages reported by GenerationError.
const (
	StageGenerate = "generate"
	StageRender   = "render"
)

const defaultTimeout = 90 * time.Second

// GenerationError reports which stage of the pipeline failed.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("image %s failed: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Result is the outcome of a successful run. URLs are as returned by the
// renderer and may be relative.
type Result struct {
	Content     string
	ImageURL    string
	DownloadURL string
}

// Config holds the pipeline's collaborators.
type Config struct {
	Generator domain.ContentGenerator
	Renderer  domain.Renderer
	Options   domain.RenderOptions
	Timeout   time.Duration
	Logger    *slog.Logger
}

// Pipeline generates content for an image request and renders it.
type Pipeline struct {
	generator domain.ContentGenerator
	renderer  domain.Renderer
	options   domain.RenderOptions
	timeout   time.Duration
	logger    *slog.Logger
}

func New(cfg Config) *Pipeline {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Options.Theme == "" {
		cfg.Options.Theme = "light"
	}
	if cfg.Options.Width <= 0 {
		cfg.Options.Width = 800
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		generator: cfg.Generator,
		renderer:  cfg.Renderer,
		options:   cfg.Options,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
	}
}

// CanGenerate reports whether a content generator is configured. Without
// one, only requests that carry extracted content can be served.
func (p *Pipeline) CanGenerate() bool { return p.generator != nil }

// Run produces and renders content for directive. When the directive
// carries extracted content it is rendered as is and the generator is not
// called. Failures are returned as *GenerationError.
func (p *Pipeline) Run(ctx context.Context, sourceText string, directive domain.ImageDirective, history []domain.ChatMessage) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	content := directive.ExtractedContent
	if content == "" {
		if p.generator == nil {
			return Result{}, &GenerationError{Stage: StageGenerate, Err: errors.New("no content generator configured")}
		}
		msgs := make([]domain.ChatMessage, 0, len(history)+1)
		msgs = append(msgs, history...)
		msgs = append(msgs, domain.ChatMessage{Role: domain.RoleUser, Content: BuildDirective(sourceText)})

		start := time.Now()
		generated, err := p.generator.Generate(ctx, msgs)
		if err != nil {
			return Result{}, &GenerationError{Stage: StageGenerate, Err: err}
		}
		if strings.TrimSpace(generated) == "" {
			return Result{}, &GenerationError{Stage: StageGenerate, Err: errors.New("generator returned empty content")}
		}
		p.logger.Debug("image content generated", "chars", len(generated), "duration", time.Since(start))
		content = generated
	}

	res, err := p.renderer.Render(ctx, content, p.options)
	if err != nil {
		return Result{}, &GenerationError{Stage: StageRender, Err: err}
	}
	if res.ImageURL == "" {
		return Result{}, &GenerationError{Stage: StageRender, Err: errors.New("renderer returned no image url")}
	}
	return Result{Content: content, ImageURL: res.ImageURL, DownloadURL: res.DownloadURL}, nil
}

// BuildDirective wraps a request in instructions that keep the generated
// text short and structured with the heading markers the renderer expects.
func BuildDirective(request string) string {
	return fmt.Sprintf(`Write a concise, information-rich answer to the following request. It will be rendered as an image:
"%s"

The answer should:
1. Have a title and suitable sub-headings
2. Present key facts as bullet points
3. Use short paragraphs that are easy to read
4. Highlight the important concepts
5. Stay under 300 characters

Start the main title with "#" and each sub-heading with "##".`, request)
}
