package agent

import (
	"strings"

	"searchbot/internal/domain"
)

const (
	defaultHistoryTokens = 3000
	// Keep at least this many recent messages regardless of size.
	minRecentMessages = 2
	wordsPerToken     = 0.75
)

// estimateTokens is a word-count heuristic, close enough for budgeting.
func estimateTokens(s string) int {
	words := len(strings.Fields(s))
	return int(float64(words)/wordsPerToken) + 1
}

// trimHistory drops the oldest messages until the rest fit in budget.
// The newest minRecentMessages are always kept.
func trimHistory(history []domain.ChatMessage, budget int) []domain.ChatMessage {
	if budget <= 0 {
		budget = defaultHistoryTokens
	}
	total := 0
	cut := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		total += estimateTokens(history[i].Content)
		if total > budget && len(history)-i > minRecentMessages {
			break
		}
		cut = i
	}
	return history[cut:]
}
