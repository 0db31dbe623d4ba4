// Package events publishes conversation events to a message broker so other
// services can index or audit chats.
package events

import (
	"context"
	"time"
)

// TypeTurnCompleted is the envelope type of TurnCompleted events.
const TypeTurnCompleted = "searchbot.turn.completed.v1"

// TurnCompleted is emitted after an assistant reply has been stored.
type TurnCompleted struct {
	ChatID      string    `json:"chatId"`
	MessageID   string    `json:"messageId"`
	Role        string    `json:"role"`
	HasImage    bool      `json:"hasImage"`
	SourceCount int       `json:"sourceCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Meta identifies one published event.
type Meta struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Type          string    `json:"type"`
	Time          time.Time `json:"time"`
}

// Envelope is the wire shape of every published event.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	PublishTurn(ctx context.Context, ev TurnCompleted) error
	Close() error
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) PublishTurn(context.Context, TurnCompleted) error { return nil }
func (Nop) Close() error { return nil }
