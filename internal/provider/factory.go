// Package provider implements the language model clients used to answer
// queries and to write image content.
package provider

import (
	"fmt"
	"log/slog"
	"time"

	"searchbot/internal/domain"
	"searchbot/internal/httpx"
)

// Client is what the rest of the program needs from a model backend.
type Client interface {
	domain.StreamingProvider
	domain.ContentGenerator
}

// Config selects and configures a backend.
type Config struct {
	Provider       string // ollama | openai
	APIBase        string
	APIKey         string
	ChatModel      string
	GeneratorModel string
	Timeout        time.Duration
	Retry          httpx.Retry
	Logger         *slog.Logger
}

// New builds the configured backend. Any OpenAI-compatible server (vLLM,
// LM Studio, Gemini's compatibility endpoint) uses "openai".
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "", "ollama":
		return NewOllama(OllamaConfig{
			APIBase:        cfg.APIBase,
			ChatModel:      cfg.ChatModel,
			GeneratorModel: cfg.GeneratorModel,
			Timeout:        cfg.Timeout,
			Retry:          cfg.Retry,
			Logger:         cfg.Logger,
		}), nil
	case "openai":
		return NewOpenAI(OpenAIConfig{
			APIKey:         cfg.APIKey,
			APIBase:        cfg.APIBase,
			ChatModel:      cfg.ChatModel,
			GeneratorModel: cfg.GeneratorModel,
			Timeout:        cfg.Timeout,
			Retry:          cfg.Retry,
			Logger:         cfg.Logger,
		}), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}
