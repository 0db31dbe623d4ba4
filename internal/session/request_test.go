package session

import (
	"errors"
	"testing"

	"searchbot/internal/domain"
)

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest([]byte(`{"type":"message","message":{"messageId":"m1","chatId":"c1","content":"hi"},"history":[["human","q"],["assistant","a"]],"focusMode":"academicSearch","optimizationMode":"quality","files":["f1","f2"]}`))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.ChatID != "c1" || req.MessageID != "m1" || req.Content != "hi" || req.FocusMode != "academicSearch" {
		t.Errorf("unexpected request %+v", req)
	}
	if req.Optimization != domain.OptimizeQuality || len(req.Files) != 2 || len(req.History) != 2 {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestParseRequestErrors(t *testing.T) {
	_, err := ParseRequest([]byte(`{"type":"message","message":{"chatId":"c1"}}`))
	if !errors.Is(err, domain.ErrInvalidFrame) {
		t.Errorf("expected ErrInvalidFrame, got %v", err)
	}
	_, err = ParseRequest([]byte(`{"type":"other","message":{"chatId":"c1","content":"x"}}`))
	if !errors.Is(err, errNotMessage) {
		t.Errorf("expected errNotMessage, got %v", err)
	}
}
