package domain

import (
	"context"
	"time"
)

// Chat is a conversation record.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	FocusMode string    `json:"focusMode"`
	Files     []FileRef `json:"files"`
}

// PersistedMessage is one stored turn. SequenceID is assigned by the store
// and strictly increases in insertion order within the store.
type PersistedMessage struct {
	SequenceID int64    `json:"id"`
	ChatID     string   `json:"chatId"`
	MessageID  string   `json:"messageId"`
	Role       string   `json:"role"`
	Content    string   `json:"content"`
	Metadata   Metadata `json:"metadata"`
}

// Metadata is the structured blob stored alongside a message.
type Metadata struct {
	CreatedAt    time.Time  `json:"createdAt"`
	Sources      []Source   `json:"sources,omitempty"`
	ImageData    *ImageData `json:"imageData,omitempty"`
	StreamedText string     `json:"streamedText,omitempty"`
}

// HistoryStore is the write side used while handling a request.
type HistoryStore interface {
	// EnsureChat inserts the chat if no chat with that id exists.
	EnsureChat(ctx context.Context, chat Chat) (created bool, err error)
	// EnsureHumanMessage inserts a user message, or, when (chatID,
	// messageID) already exists, deletes every later message in the chat
	// and reports a rewrite.
	EnsureHumanMessage(ctx context.Context, chatID, messageID, content string) (rewrite bool, err error)
	AppendAssistantMessage(ctx context.Context, chatID, messageID, content string, meta Metadata) (int64, error)
}
