package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"searchbot/internal/domain"
	"searchbot/internal/history"
	"searchbot/internal/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSink struct {
	mu     sync.Mutex
	frames []domain.Frame
}

func (s *recordingSink) Send(_ context.Context, f domain.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *recordingSink) snapshot() []domain.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Frame(nil), s.frames...)
}

type fakeProducer struct {
	mu      sync.Mutex
	queries []domain.Query
	answer  string
	err     error
}

func (p *fakeProducer) SearchAndAnswer(_ context.Context, q domain.Query) (<-chan domain.Event, error) {
	p.mu.Lock()
	p.queries = append(p.queries, q)
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	ch := make(chan domain.Event, 2)
	ch <- domain.Event{Kind: domain.EventResponse, Text: p.answer}
	ch <- domain.Event{Kind: domain.EventEnd}
	close(ch)
	return ch, nil
}

func (p *fakeProducer) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queries)
}

type mapRegistry map[domain.ModeKey]domain.Producer

func (m mapRegistry) Lookup(key domain.ModeKey) (domain.Producer, bool) {
	p, ok := m[key]
	return p, ok
}

// countingStore counts every write it receives.
type countingStore struct {
	writes atomic.Int32
}

func (s *countingStore) EnsureChat(context.Context, domain.Chat) (bool, error) {
	s.writes.Add(1)
	return true, nil
}

func (s *countingStore) EnsureHumanMessage(context.Context, string, string, string) (bool, error) {
	s.writes.Add(1)
	return false, nil
}

func (s *countingStore) AppendAssistantMessage(context.Context, string, string, string, domain.Metadata) (int64, error) {
	s.writes.Add(1)
	return 1, nil
}

type staticFiles struct{}

func (staticFiles) Details(_ context.Context, ids []string) []domain.FileRef {
	refs := make([]domain.FileRef, len(ids))
	for i, id := range ids {
		refs[i] = domain.FileRef{FileID: id, Name: id + ".pdf"}
	}
	return refs
}

func TestHandleRejectsMalformedFrames(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `not json`},
		{"missing message", `{"type":"message","focusMode":"webSearch"}`},
		{"empty content", `{"type":"message","message":{"chatId":"c1","content":""},"focusMode":"webSearch"}`},
		{"missing chat id", `{"type":"message","message":{"content":"hi"},"focusMode":"webSearch"}`},
		{"bad history entry", `{"type":"message","message":{"chatId":"c1","content":"hi"},"history":[["human"]],"focusMode":"webSearch"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, sink, prod := &countingStore{}, &recordingSink{}, &fakeProducer{answer: "x"}
			o := New(Config{Registry: mapRegistry{domain.ModeWebSearch: prod}, Store: store, Logger: testLogger()})

			o.Handle(context.Background(), []byte(tt.raw), sink)
			o.Wait()

			frames := sink.snapshot()
			if len(frames) != 1 || frames[0].Type != domain.FrameError || frames[0].Key != domain.ErrKeyInvalidFormat {
				t.Fatalf("expected a single INVALID_FORMAT frame, got %+v", frames)
			}
			if store.writes.Load() != 0 || prod.calls() != 0 {
				t.Errorf("expected no writes and no producer call, got %d writes, %d calls", store.writes.Load(), prod.calls())
			}
		})
	}
}

func TestHandleUnknownMode(t *testing.T) {
	for _, mode := range []string{"nonexistent", "academicSearch", ""} {
		t.Run(mode, func(t *testing.T) {
			store, sink := &countingStore{}, &recordingSink{}
			o := New(Config{Registry: mapRegistry{domain.ModeWebSearch: &fakeProducer{}}, Store: store, Logger: testLogger()})

			o.Handle(context.Background(), []byte(`{"type":"message","message":{"messageId":"m1","chatId":"c1","content":"hi"},"history":[],"focusMode":"`+mode+`","files":[]}`), sink)
			o.Wait()

			frames := sink.snapshot()
			if len(frames) != 1 || frames[0].Key != domain.ErrKeyInvalidFocusMode || frames[0].Text != "Invalid focus mode" {
				t.Fatalf("expected a single INVALID_FOCUS_MODE frame, got %+v", frames)
			}
			if store.writes.Load() != 0 {
				t.Errorf("expected no writes, got %d", store.writes.Load())
			}
		})
	}
}

func TestHandleIgnoresOtherFrameTypes(t *testing.T) {
	store, sink := &countingStore{}, &recordingSink{}
	o := New(Config{Registry: mapRegistry{}, Store: store, Logger: testLogger()})
	o.Handle(context.Background(), []byte(`{"type":"ping","message":{"chatId":"c1","content":"hi"}}`), sink)
	if len(sink.snapshot()) != 0 || store.writes.Load() != 0 {
		t.Errorf("expected frame to be ignored")
	}
}

func TestHandleAttachmentsForceWebSearch(t *testing.T) {
	web, reddit := &fakeProducer{answer: "a"}, &fakeProducer{answer: "b"}
	store, sink := &countingStore{}, &recordingSink{}
	o := New(Config{
		Registry: mapRegistry{domain.ModeWebSearch: web, domain.ModeRedditSearch: reddit},
		Store:    store,
		Files:    staticFiles{},
		Logger:   testLogger(),
	})

	o.Handle(context.Background(), []byte(`{"type":"message","message":{"messageId":"m1","chatId":"c1","content":"summarize"},"history":[["human","hi"],["assistant","hello"]],"focusMode":"redditSearch","optimizationMode":"speed","files":["f1"]}`), sink)
	o.Wait()

	if web.calls() != 1 || reddit.calls() != 0 {
		t.Fatalf("expected web search producer, got web=%d reddit=%d", web.calls(), reddit.calls())
	}
	q := web.queries[0]
	if len(q.Files) != 1 || q.Optimization != domain.OptimizeSpeed {
		t.Errorf("unexpected query %+v", q)
	}
	if len(q.History) != 2 || q.History[0].Role != domain.RoleUser || q.History[1].Role != domain.RoleAssistant {
		t.Errorf("unexpected history %+v", q.History)
	}
}

func TestHandleProducerStartFailure(t *testing.T) {
	store, sink := &countingStore{}, &recordingSink{}
	prod := &fakeProducer{err: errors.New("llm unreachable")}
	o := New(Config{Registry: mapRegistry{domain.ModeWebSearch: prod}, Store: store, Logger: testLogger()})

	o.Handle(context.Background(), []byte(`{"type":"message","message":{"messageId":"m1","chatId":"c1","content":"hi"},"focusMode":"webSearch"}`), sink)
	o.Wait()

	frames := sink.snapshot()
	if len(frames) != 1 || frames[0].Key != domain.ErrKeyChainError {
		t.Fatalf("expected CHAIN_ERROR frame, got %+v", frames)
	}
	if store.writes.Load() != 0 {
		t.Errorf("expected no writes, got %d", store.writes.Load())
	}
}

func testHistory(t *testing.T) *history.Store {
	t.Helper()
	s, err := history.Open(filepath.Join(t.TempDir(), "chats.db"), testLogger())
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHandleStoresTurnAndRewrites(t *testing.T) {
	store := testHistory(t)
	prod := &fakeProducer{answer: "first answer"}
	o := New(Config{
		Registry: mapRegistry{domain.ModeWebSearch: prod},
		Store:    store,
		Stream:   stream.Config{ErrorPolicy: stream.PolicyTerminal},
		Logger:   testLogger(),
	})
	ctx := context.Background()
	frame := `{"type":"message","message":{"messageId":"m1","chatId":"c1","content":"What is Go?"},"history":[],"focusMode":"webSearch","files":[]}`

	sink := &recordingSink{}
	o.Handle(ctx, []byte(frame), sink)
	o.Wait()

	frames := sink.snapshot()
	if len(frames) != 2 || frames[1].Type != domain.FrameMessageEnd {
		t.Fatalf("unexpected frames %+v", frames)
	}
	if frames[0].MessageID == "m1" || frames[0].MessageID == "" {
		t.Errorf("reply must carry its own id, got %q", frames[0].MessageID)
	}

	msgs, err := store.Messages(ctx, "c1")
	if err != nil || len(msgs) != 2 {
		t.Fatalf("expected 2 stored messages, got %+v (%v)", msgs, err)
	}
	if msgs[0].Role != domain.RoleUser || msgs[0].MessageID != "m1" || msgs[1].Content != "first answer" {
		t.Errorf("unexpected rows %+v", msgs)
	}
	firstReply := msgs[1].SequenceID

	chat, err := store.GetChat(ctx, "c1")
	if err != nil || chat.Title != "What is Go?" || chat.FocusMode != "webSearch" {
		t.Errorf("unexpected chat %+v (%v)", chat, err)
	}

	prod.answer = "second answer"
	o.Handle(ctx, []byte(frame), &recordingSink{})
	o.Wait()

	msgs, err = store.Messages(ctx, "c1")
	if err != nil || len(msgs) != 2 {
		t.Fatalf("expected rewrite to leave 2 messages, got %+v (%v)", msgs, err)
	}
	if msgs[0].MessageID != "m1" || msgs[1].Content != "second answer" || msgs[1].SequenceID <= firstReply {
		t.Errorf("unexpected rows after rewrite %+v", msgs)
	}
}

func TestHandleGeneratesMissingMessageID(t *testing.T) {
	store := testHistory(t)
	o := New(Config{Registry: mapRegistry{domain.ModeWebSearch: &fakeProducer{answer: "x"}}, Store: store, Logger: testLogger()})

	o.Handle(context.Background(), []byte(`{"type":"message","message":{"chatId":"c2","content":"hi"},"focusMode":"webSearch"}`), &recordingSink{})
	o.Wait()

	msgs, err := store.Messages(context.Background(), "c2")
	if err != nil || len(msgs) != 2 || msgs[0].MessageID == "" {
		t.Fatalf("unexpected rows %+v (%v)", msgs, err)
	}
}
