// Package agent answers a query for one focus mode: an optional web search
// followed by a streamed model reply grounded on the results.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"searchbot/internal/domain"
	"searchbot/internal/modes"
	"searchbot/internal/search"
)

const (
	defaultMaxTokens   = 2048
	defaultTemperature = 0.7
)

// Searcher is satisfied by *search.Client.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) ([]domain.Source, error)
}

// Attachments loads the text of uploaded files.
type Attachments interface {
	LoadTexts(ctx context.Context, ids []string) ([]domain.FileText, error)
}

type Config struct {
	Mode          modes.Definition
	Search        Searcher
	LLM           domain.StreamingProvider
	Files         Attachments
	Limiter       *RateLimiter
	MaxResults    int // caps the per-request source count; 0 means no cap
	HistoryTokens int
	MaxTokens     int
	Temperature   float64
	Logger        *slog.Logger
}

// SearchAgent implements domain.Producer.
type SearchAgent struct {
	mode          modes.Definition
	search        Searcher
	llm           domain.StreamingProvider
	files         Attachments
	limiter       *RateLimiter
	maxResults    int
	historyTokens int
	maxTokens     int
	temperature   float64
	logger        *slog.Logger
	now           func() time.Time
}

func New(cfg Config) *SearchAgent {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SearchAgent{
		mode:          cfg.Mode,
		search:        cfg.Search,
		llm:           cfg.LLM,
		files:         cfg.Files,
		limiter:       cfg.Limiter,
		maxResults:    cfg.MaxResults,
		historyTokens: cfg.HistoryTokens,
		maxTokens:     cfg.MaxTokens,
		temperature:   cfg.Temperature,
		logger:        cfg.Logger.With("mode", cfg.Mode.Key),
		now:           time.Now,
	}
}

// SearchAndAnswer starts answering q. Events follow the order sources,
// response chunks, end; a failure ends the stream with a single error.
func (a *SearchAgent) SearchAndAnswer(ctx context.Context, q domain.Query) (<-chan domain.Event, error) {
	if a.llm == nil {
		return nil, errors.New("agent: no language model configured")
	}
	if a.mode.SearchWeb && a.search == nil {
		return nil, fmt.Errorf("agent: mode %s needs a search backend", a.mode.Key)
	}

	out := make(chan domain.Event, 16)
	go func() {
		defer close(out)
		a.answer(ctx, q, out)
	}()
	return out, nil
}

func (a *SearchAgent) answer(ctx context.Context, q domain.Query, out chan<- domain.Event) {
	send := func(ev domain.Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(msg string, err error) {
		a.logger.Error(msg, "err", err)
		send(domain.Event{Kind: domain.EventError, Text: fmt.Sprintf("%s: %v", msg, err)})
	}

	var sources []domain.Source
	if a.mode.SearchWeb {
		limit := sourceLimit(q.Optimization)
		if a.maxResults > 0 {
			limit = min(limit, a.maxResults)
		}
		var err error
		sources, err = a.search.Search(ctx, q.Text, search.Options{
			Engines: a.mode.Engines,
			Limit:   limit,
		})
		if err != nil {
			if ctx.Err() == nil {
				fail("search failed", err)
			}
			return
		}
		if !send(domain.Event{Kind: domain.EventSources, Sources: sources}) {
			return
		}
	}

	var files []domain.FileText
	if len(q.Files) > 0 && a.files != nil {
		var err error
		files, err = a.files.LoadTexts(ctx, q.Files)
		if err != nil {
			a.logger.Warn("attachments unavailable", "err", err)
		}
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return
	}

	messages := make([]domain.ChatMessage, 0, len(q.History)+2)
	messages = append(messages, domain.ChatMessage{
		Role:    domain.RoleSystem,
		Content: buildSystemPrompt(a.mode.ResponsePrompt, sources, files, a.now()),
	})
	messages = append(messages, trimHistory(q.History, a.historyTokens)...)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: q.Text})

	tokens := make(chan string, 32)
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.llm.ChatStream(ctx, domain.ChatRequest{
			Messages:    messages,
			MaxTokens:   a.maxTokens,
			Temperature: a.temperature,
		}, tokens)
	}()

	for tok := range tokens {
		if !send(domain.Event{Kind: domain.EventResponse, Text: tok}) {
			// Unblock the stream goroutine; it closes tokens on return.
			for range tokens {
			}
			<-errCh
			return
		}
	}
	if err := <-errCh; err != nil {
		if ctx.Err() == nil {
			fail("model stream failed", err)
		}
		return
	}
	send(domain.Event{Kind: domain.EventEnd})
}
