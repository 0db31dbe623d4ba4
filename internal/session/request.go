package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"searchbot/internal/domain"
)

// errNotMessage marks well-formed frames of a type other than "message".
var errNotMessage = errors.New("frame is not a message")

type wireFrame struct {
	Type    string `json:"type"`
	Message *struct {
		MessageID string `json:"messageId"`
		ChatID    string `json:"chatId"`
		Content   string `json:"content"`
	} `json:"message"`
	History          [][]string `json:"history"`
	FocusMode        string     `json:"focusMode"`
	OptimizationMode string     `json:"optimizationMode"`
	Files            []string   `json:"files"`
}

// ParseRequest decodes an inbound frame. Errors wrap domain.ErrInvalidFrame,
// except for frames that are valid but not of type "message".
func ParseRequest(raw []byte) (domain.InboundRequest, error) {
	var f wireFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return domain.InboundRequest{}, fmt.Errorf("%w: %v", domain.ErrInvalidFrame, err)
	}
	if f.Message == nil || f.Message.Content == "" {
		return domain.InboundRequest{}, fmt.Errorf("%w: missing content", domain.ErrInvalidFrame)
	}
	if f.Message.ChatID == "" {
		return domain.InboundRequest{}, fmt.Errorf("%w: missing chatId", domain.ErrInvalidFrame)
	}

	history := make([]domain.ChatMessage, 0, len(f.History))
	for i, turn := range f.History {
		if len(turn) != 2 {
			return domain.InboundRequest{}, fmt.Errorf("%w: history entry %d has %d fields", domain.ErrInvalidFrame, i, len(turn))
		}
		role := domain.RoleAssistant
		if turn[0] == "human" {
			role = domain.RoleUser
		}
		history = append(history, domain.ChatMessage{Role: role, Content: turn[1]})
	}

	req := domain.InboundRequest{
		ChatID:       f.Message.ChatID,
		MessageID:    f.Message.MessageID,
		Content:      f.Message.Content,
		FocusMode:    f.FocusMode,
		Optimization: domain.OptimizationMode(f.OptimizationMode),
		History:      history,
		Files:        f.Files,
	}
	if f.Type != "message" {
		return req, fmt.Errorf("%w: %q", errNotMessage, f.Type)
	}
	return req, nil
}
