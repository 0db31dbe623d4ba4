package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"searchbot/internal/domain"
	"searchbot/internal/modes"
	"searchbot/internal/search"
)

type fakeSearch struct {
	sources []domain.Source
	err     error
	opts    search.Options
}

func (f *fakeSearch) Search(_ context.Context, _ string, opts search.Options) ([]domain.Source, error) {
	f.opts = opts
	return f.sources, f.err
}

type fakeLLM struct {
	chunks []string
	err    error
	req    domain.ChatRequest
}

func (f *fakeLLM) Name() string { return "fake" }
func (f *fakeLLM) Healthy(context.Context) error { return nil }
func (f *fakeLLM) Chat(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
	return &domain.ChatResponse{Content: strings.Join(f.chunks, "")}, nil
}

func (f *fakeLLM) ChatStream(ctx context.Context, req domain.ChatRequest, out chan<- string) error {
	defer close(out)
	f.req = req
	for _, c := range f.chunks {
		select {
		case out <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

type fakeFiles struct{}

func (fakeFiles) LoadTexts(_ context.Context, ids []string) ([]domain.FileText, error) {
	return []domain.FileText{{Name: "notes.txt", Text: "attached " + ids[0]}}, nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func drain(t *testing.T, ch <-chan domain.Event) []domain.Event {
	t.Helper()
	var evs []domain.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return evs
			}
			evs = append(evs, ev)
		case <-timeout:
			t.Fatal("producer did not close its channel")
		}
	}
}

func TestSearchAgentEventOrder(t *testing.T) {
	fs := &fakeSearch{sources: []domain.Source{{
		PageContent: "Go is a language",
		Metadata:    domain.SourceMetadata{Title: "Go", URL: "https://go.dev"},
	}}}
	llm := &fakeLLM{chunks: []string{"Go ", "is ", "great [1]"}}
	a := New(Config{
		Mode:   modes.Definition{Key: domain.ModeAcademicSearch, SearchWeb: true, Engines: []string{"arxiv"}, ResponsePrompt: "Be precise."},
		Search: fs,
		LLM:    llm,
		Logger: quiet(),
	})

	ch, err := a.SearchAndAnswer(context.Background(), domain.Query{Text: "what is go", Optimization: domain.OptimizeSpeed})
	if err != nil {
		t.Fatal(err)
	}
	evs := drain(t, ch)

	if len(evs) != 5 {
		t.Fatalf("got %d events, want 5: %+v", len(evs), evs)
	}
	if evs[0].Kind != domain.EventSources || len(evs[0].Sources) != 1 {
		t.Errorf("first event = %+v", evs[0])
	}
	if evs[4].Kind != domain.EventEnd {
		t.Errorf("last event = %+v", evs[4])
	}
	if fs.opts.Limit != 5 || fs.opts.Engines[0] != "arxiv" {
		t.Errorf("search options = %+v", fs.opts)
	}

	sys := llm.req.Messages[0]
	if sys.Role != domain.RoleSystem || !strings.Contains(sys.Content, "[1] Go (https://go.dev)") {
		t.Errorf("system prompt missing numbered source: %q", sys.Content)
	}
	last := llm.req.Messages[len(llm.req.Messages)-1]
	if last.Role != domain.RoleUser || last.Content != "what is go" {
		t.Errorf("last message = %+v", last)
	}
}

func TestSearchAgentWithoutWebSearch(t *testing.T) {
	llm := &fakeLLM{chunks: []string{"done"}}
	a := New(Config{
		Mode:   modes.Definition{Key: domain.ModeWritingAssistant, ResponsePrompt: "Write."},
		LLM:    llm,
		Files:  fakeFiles{},
		Logger: quiet(),
	})
	ch, err := a.SearchAndAnswer(context.Background(), domain.Query{Text: "polish", Files: []string{"f1"}})
	if err != nil {
		t.Fatal(err)
	}
	evs := drain(t, ch)
	for _, ev := range evs {
		if ev.Kind == domain.EventSources {
			t.Fatal("writing mode must not emit sources")
		}
	}
	if !strings.Contains(llm.req.Messages[0].Content, "attached f1") {
		t.Error("attachment text missing from prompt")
	}
}

func TestSearchAgentSearchError(t *testing.T) {
	a := New(Config{
		Mode:   modes.Definition{Key: domain.ModeWebSearch, SearchWeb: true},
		Search: &fakeSearch{err: errors.New("searxng down")},
		LLM:    &fakeLLM{},
		Logger: quiet(),
	})
	ch, _ := a.SearchAndAnswer(context.Background(), domain.Query{Text: "x"})
	evs := drain(t, ch)
	if len(evs) != 1 || evs[0].Kind != domain.EventError {
		t.Fatalf("events = %+v, want a single error", evs)
	}
}

func TestSearchAgentStreamError(t *testing.T) {
	a := New(Config{
		Mode:   modes.Definition{Key: domain.ModeWritingAssistant},
		LLM:    &fakeLLM{chunks: []string{"part"}, err: errors.New("backend reset")},
		Logger: quiet(),
	})
	ch, _ := a.SearchAndAnswer(context.Background(), domain.Query{Text: "x"})
	evs := drain(t, ch)
	if len(evs) != 2 || evs[1].Kind != domain.EventError {
		t.Fatalf("events = %+v", evs)
	}
}

func TestSearchAgentCancelClosesChannel(t *testing.T) {
	llm := &fakeLLM{chunks: make([]string, 200)}
	for i := range llm.chunks {
		llm.chunks[i] = "x"
	}
	a := New(Config{Mode: modes.Definition{Key: domain.ModeWritingAssistant}, LLM: llm, Logger: quiet()})

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := a.SearchAndAnswer(ctx, domain.Query{Text: "x"})
	<-ch
	cancel()
	drain(t, ch)
}

func TestSearchAgentRequiresLLM(t *testing.T) {
	a := New(Config{Mode: modes.Definition{Key: domain.ModeWebSearch}})
	if _, err := a.SearchAndAnswer(context.Background(), domain.Query{}); err == nil {
		t.Fatal("expected error without a model")
	}
}

func TestTrimHistory(t *testing.T) {
	long := strings.Repeat("word ", 400)
	history := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: long},
		{Role: domain.RoleAssistant, Content: long},
		{Role: domain.RoleUser, Content: "short"},
		{Role: domain.RoleAssistant, Content: "reply"},
	}
	got := trimHistory(history, 100)
	if len(got) != 2 || got[0].Content != "short" {
		t.Fatalf("trimHistory kept %d messages", len(got))
	}
	if got := trimHistory(history, 100000); len(got) != 4 {
		t.Fatalf("generous budget dropped messages: %d", len(got))
	}
}
