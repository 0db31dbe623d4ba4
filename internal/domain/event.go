package domain

import "context"

// EventKind classifies a producer event.
type EventKind string

const (
	EventResponse EventKind = "response"
	EventSources  EventKind = "sources"
	EventError    EventKind = "error"
	EventEnd      EventKind = "end"
)

// Event is one item on a producer's output channel.
type Event struct {
	Kind    EventKind
	Text    string   // response chunk or error message
	Sources []Source // set for EventSources
}

// Query is everything a producer needs to answer one request.
type Query struct {
	Text         string
	History      []ChatMessage
	Optimization OptimizationMode
	Files        []string
}

// Producer answers a query as a stream of events. The returned channel is
// closed when the producer is done; a final EventEnd or EventError is
// expected before that. Producers stop sending once ctx is cancelled.
type Producer interface {
	SearchAndAnswer(ctx context.Context, q Query) (<-chan Event, error)
}

// ProducerFunc adapts a function to the Producer interface.
type ProducerFunc func(ctx context.Context, q Query) (<-chan Event, error)

func (f ProducerFunc) SearchAndAnswer(ctx context.Context, q Query) (<-chan Event, error) {
	return f(ctx, q)
}
