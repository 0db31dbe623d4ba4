// Package session handles one inbound request from frame to stored reply.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"searchbot/internal/domain"
	"searchbot/internal/metrics"
	"searchbot/internal/stream"
)

// Error frame texts.
const (
	msgInvalidFormat = "Invalid message format"
	msgInvalidMode   = "Invalid focus mode"
	msgChainError    = "An error occurred while processing the request"
)

// Registry resolves a mode to its producer.
type Registry interface {
	Lookup(key domain.ModeKey) (domain.Producer, bool)
}

// FileResolver describes uploaded files. Unknown ids are returned with
// only FileID set.
type FileResolver interface {
	Details(ctx context.Context, ids []string) []domain.FileRef
}

// Config holds the orchestrator's dependencies.
type Config struct {
	Registry Registry
	Store    domain.HistoryStore
	Files    FileResolver // optional
	Stream   stream.Config
	Logger   *slog.Logger
}

// Orchestrator owns the lifecycle of each request.
type Orchestrator struct {
	registry Registry
	store    domain.HistoryStore
	files    FileResolver
	stream   stream.Config
	logger   *slog.Logger
	inflight sync.WaitGroup
}

func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Stream.Store == nil {
		cfg.Stream.Store = cfg.Store
	}
	if cfg.Stream.Logger == nil {
		cfg.Stream.Logger = cfg.Logger
	}
	return &Orchestrator{
		registry: cfg.Registry,
		store:    cfg.Store,
		files:    cfg.Files,
		stream:   cfg.Stream,
		logger:   cfg.Logger,
	}
}

// Handle processes one raw frame. It returns once the producer is started
// and the chat and human message are stored; the answer keeps streaming to
// sink in the background until it ends or ctx is cancelled.
func (o *Orchestrator) Handle(ctx context.Context, raw []byte, sink stream.Sink) {
	req, err := ParseRequest(raw)
	if errors.Is(err, errNotMessage) {
		o.logger.Debug("ignoring frame", "err", err)
		return
	}
	if err != nil {
		o.logger.Warn("rejecting frame", "err", err)
		o.reject(ctx, sink, domain.ErrKeyInvalidFormat, msgInvalidFormat)
		return
	}

	// Attachments are only read by the web search producer.
	mode := req.FocusMode
	if len(req.Files) > 0 {
		mode = string(domain.ModeWebSearch)
	}
	producer, key, ok := o.resolve(mode)
	if !ok {
		o.logger.Warn("unknown focus mode", "mode", mode, "chat_id", req.ChatID)
		o.reject(ctx, sink, domain.ErrKeyInvalidFocusMode, msgInvalidMode)
		return
	}
	metrics.RequestsTotal.Inc()

	if req.MessageID == "" {
		req.MessageID = domain.NewMessageID()
	}
	replyID := domain.NewMessageID()

	evs, err := producer.SearchAndAnswer(ctx, domain.Query{
		Text:         req.Content,
		History:      req.History,
		Optimization: req.Optimization,
		Files:        req.Files,
	})
	if err != nil {
		o.logger.Error("producer failed to start", "mode", key, "chat_id", req.ChatID, "err", err)
		o.reject(ctx, sink, domain.ErrKeyChainError, msgChainError)
		return
	}

	ready := make(chan struct{})
	defer close(ready)

	em := stream.New(o.stream, sink)
	turn := stream.Turn{
		ChatID:    req.ChatID,
		MessageID: replyID,
		Query:     req.Content,
		History:   req.History,
		Ready:     ready,
	}
	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		em.Run(ctx, turn, evs)
	}()

	o.record(context.WithoutCancel(ctx), req, key)
}

// Wait blocks until every started stream has finished.
func (o *Orchestrator) Wait() { o.inflight.Wait() }

// resolve maps a wire mode onto a registered producer.
func (o *Orchestrator) resolve(mode string) (domain.Producer, domain.ModeKey, bool) {
	key, err := domain.ParseModeKey(mode)
	if err != nil {
		return nil, "", false
	}
	p, ok := o.registry.Lookup(key)
	return p, key, ok
}

// record stores the chat and the human message. A resent message id
// truncates everything stored after it.
func (o *Orchestrator) record(ctx context.Context, req domain.InboundRequest, key domain.ModeKey) {
	var files []domain.FileRef
	if o.files != nil && len(req.Files) > 0 {
		files = o.files.Details(ctx, req.Files)
	}
	if _, err := o.store.EnsureChat(ctx, domain.Chat{
		ID:        req.ChatID,
		Title:     req.Content,
		CreatedAt: time.Now(),
		FocusMode: string(key),
		Files:     files,
	}); err != nil {
		o.logger.Error("failed to store chat", "chat_id", req.ChatID, "err", err)
	}

	rewrite, err := o.store.EnsureHumanMessage(ctx, req.ChatID, req.MessageID, req.Content)
	if err != nil {
		o.logger.Error("failed to store human message", "chat_id", req.ChatID, "message_id", req.MessageID, "err", err)
		return
	}
	if rewrite {
		metrics.RewritesTotal.Inc()
		o.logger.Info("message rewritten, later history discarded", "chat_id", req.ChatID, "message_id", req.MessageID)
	}
}

func (o *Orchestrator) reject(ctx context.Context, sink stream.Sink, key domain.ErrorKey, msg string) {
	metrics.RequestErrors(string(key)).Inc()
	if err := sink.Send(ctx, domain.ErrorFrame(key, msg)); err != nil {
		o.logger.Debug("error frame not delivered", "key", key, "err", err)
	}
}
