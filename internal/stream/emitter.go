// Package stream turns a producer's event channel into outbound frames and
// runs the post-stream phase (image branch and persistence).
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"searchbot/internal/domain"
	"searchbot/internal/events"
	"searchbot/internal/imagegen"
	"searchbot/internal/intent"
	"searchbot/internal/metrics"
	"searchbot/internal/render"
)

// User-visible notices sent during the image branch.
const (
	ProgressNotice = "Generating content and creating an image..."
	ImageReadyNote = "The image is ready. Click to view or download it."
	FallbackNotice = "Something went wrong while generating the image, so the answer is shown as text."
)

// ErrorPolicy decides what happens after a producer error event.
type ErrorPolicy string

const (
	// PolicyTerminal stops consuming after the error frame. Nothing is stored.
	PolicyTerminal ErrorPolicy = "terminal"
	// PolicyWaitForEnd keeps consuming until the producer ends the stream.
	PolicyWaitForEnd ErrorPolicy = "wait_for_end"
)

// Sink delivers frames to one client connection.
type Sink interface {
	Send(ctx context.Context, f domain.Frame) error
}

// ImageRunner is the image pipeline as seen by the emitter.
type ImageRunner interface {
	CanGenerate() bool
	Run(ctx context.Context, sourceText string, directive domain.ImageDirective, history []domain.ChatMessage) (imagegen.Result, error)
}

// Config holds the collaborators shared by every emitter.
type Config struct {
	Store            domain.HistoryStore
	Images           ImageRunner // nil disables the image branch
	Publisher        events.Publisher
	ImageBaseURL     string // prefix for relative renderer URLs
	ClassifyQuery    bool   // also classify the user's query, not just the answer
	KeepStreamedText bool   // keep superseded streamed text in metadata
	ErrorPolicy      ErrorPolicy
	Logger           *slog.Logger
}

// Turn identifies the request an emitter serves.
type Turn struct {
	ChatID    string
	MessageID string // id of the assistant reply
	Query     string
	History   []domain.ChatMessage
	// Ready is closed once the human message has been stored. The
	// assistant row is not written before that.
	Ready <-chan struct{}
}

// Emitter owns the accumulated answer of a single request.
type Emitter struct {
	cfg     Config
	sink    Sink
	logger  *slog.Logger
	text    strings.Builder
	sources []domain.Source
	ended   bool // a terminal frame has been sent
}

// New returns an emitter writing to sink. An Emitter must not be reused.
func New(cfg Config, sink Sink) *Emitter {
	if cfg.Publisher == nil {
		cfg.Publisher = events.Nop{}
	}
	if cfg.ErrorPolicy == "" {
		cfg.ErrorPolicy = PolicyTerminal
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Emitter{cfg: cfg, sink: sink, logger: cfg.Logger}
}

// Run consumes evs until a terminal event, the channel closes or ctx is
// cancelled. A channel closed without an end event is finished like an
// end event. On cancellation the rest of the channel is drained in the
// background so the producer never blocks.
func (e *Emitter) Run(ctx context.Context, turn Turn, evs <-chan domain.Event) {
	start := time.Now()
	defer func() { metrics.StreamSeconds.Observe(time.Since(start).Seconds()) }()

	for {
		select {
		case <-ctx.Done():
			e.logger.Debug("connection closed mid-stream", "chat_id", turn.ChatID, "message_id", turn.MessageID)
			go drain(evs)
			return
		case ev, ok := <-evs:
			if !ok {
				e.finish(ctx, turn)
				return
			}
			switch ev.Kind {
			case domain.EventResponse:
				e.text.WriteString(ev.Text)
				e.send(ctx, domain.TextDelta(turn.MessageID, ev.Text))
			case domain.EventSources:
				e.sources = append(e.sources, ev.Sources...)
				e.send(ctx, domain.SourceBatch(turn.MessageID, ev.Sources))
			case domain.EventError:
				e.logger.Warn("producer error", "chat_id", turn.ChatID, "err", ev.Text)
				e.send(ctx, domain.ErrorFrame(domain.ErrKeyChainError, ev.Text))
				if e.ended {
					go drain(evs)
					return
				}
			case domain.EventEnd:
				go drain(evs)
				e.finish(ctx, turn)
				return
			default:
				e.logger.Warn("unknown producer event", "kind", ev.Kind)
			}
		}
	}
}

// finish runs the post-stream phase: the optional image branch, then the
// plain completion.
func (e *Emitter) finish(ctx context.Context, turn Turn) {
	answer := e.text.String()

	source, directive := answer, intent.Classify(answer)
	if !directive.IsImageRequest && e.cfg.ClassifyQuery {
		source, directive = turn.Query, intent.Classify(turn.Query)
	}

	if directive.IsImageRequest {
		switch {
		case e.cfg.Images == nil:
			metrics.ImageBranch("skipped").Inc()
		case directive.ExtractedContent == "" && !e.cfg.Images.CanGenerate():
			metrics.ImageBranch("skipped").Inc()
		default:
			if e.imageBranch(ctx, turn, source, directive) {
				return
			}
		}
	}

	e.send(ctx, domain.StreamEnd(turn.MessageID, "", e.sources))
	meta := domain.Metadata{CreatedAt: time.Now()}
	if len(e.sources) > 0 {
		meta.Sources = e.sources
	}
	e.persist(ctx, turn, answer, meta)
}

// imageBranch reports whether it completed the request. On failure it sends
// the fallback notice and leaves completion to the caller.
func (e *Emitter) imageBranch(ctx context.Context, turn Turn, source string, directive domain.ImageDirective) bool {
	e.send(ctx, domain.TextDelta(turn.MessageID, ProgressNotice))

	res, err := e.cfg.Images.Run(ctx, source, directive, turn.History)
	if err != nil {
		e.logger.Warn("image branch failed, falling back to text", "chat_id", turn.ChatID, "err", err)
		metrics.ImageBranch("failed").Inc()
		e.send(ctx, domain.TextDelta(turn.MessageID, FallbackNotice))
		return false
	}
	metrics.ImageBranch("rendered").Inc()

	img := domain.ImageData{
		ImageURL:    render.Absolutize(e.cfg.ImageBaseURL, res.ImageURL),
		DownloadURL: render.Absolutize(e.cfg.ImageBaseURL, res.DownloadURL),
		Text:        res.Content,
	}
	e.send(ctx, domain.TextDelta(turn.MessageID, res.Content))
	e.send(ctx, domain.ImageResult(turn.MessageID, img))

	meta := domain.Metadata{CreatedAt: time.Now(), Sources: e.sources, ImageData: &img}
	if e.cfg.KeepStreamedText {
		meta.StreamedText = e.text.String()
	}
	e.persist(ctx, turn, res.Content, meta)
	e.send(ctx, domain.StreamEnd(turn.MessageID, ImageReadyNote, e.sources))
	return true
}

// persist appends the assistant row once the human row is in place. Storage
// failures are logged only. The write outlives a closed connection.
func (e *Emitter) persist(ctx context.Context, turn Turn, content string, meta domain.Metadata) {
	if turn.Ready != nil {
		<-turn.Ready
	}
	storeCtx := context.WithoutCancel(ctx)

	if _, err := e.cfg.Store.AppendAssistantMessage(storeCtx, turn.ChatID, turn.MessageID, content, meta); err != nil {
		e.logger.Error("failed to store assistant message", "chat_id", turn.ChatID, "message_id", turn.MessageID, "err", err)
		return
	}

	ev := events.TurnCompleted{
		ChatID:      turn.ChatID,
		MessageID:   turn.MessageID,
		Role:        domain.RoleAssistant,
		HasImage:    meta.ImageData != nil,
		SourceCount: len(meta.Sources),
		CreatedAt:   meta.CreatedAt,
	}
	if err := e.cfg.Publisher.PublishTurn(storeCtx, ev); err != nil {
		e.logger.Warn("failed to publish turn event", "chat_id", turn.ChatID, "err", err)
	}
}

// send delivers f unless the request already ended. Under PolicyWaitForEnd
// an error frame does not end the request.
func (e *Emitter) send(ctx context.Context, f domain.Frame) {
	if e.ended {
		e.logger.Debug("frame after end dropped", "type", f.Type, "message_id", f.MessageID)
		return
	}
	if f.Terminal() && (f.Type != domain.FrameError || e.cfg.ErrorPolicy == PolicyTerminal) {
		e.ended = true
	}
	if err := e.sink.Send(ctx, f); err != nil {
		e.logger.Debug("frame not delivered", "type", f.Type, "err", err)
		return
	}
	metrics.FramesTotal(string(f.Type)).Inc()
	if f.Type == domain.FrameError {
		metrics.RequestErrors(string(f.Key)).Inc()
	}
}

func drain(evs <-chan domain.Event) {
	for range evs {
	}
}

// ParseErrorPolicy validates a configured policy name.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch ErrorPolicy(s) {
	case "", PolicyTerminal:
		return PolicyTerminal, nil
	case PolicyWaitForEnd:
		return PolicyWaitForEnd, nil
	}
	return "", fmt.Errorf("unknown stream error policy %q", s)
}
