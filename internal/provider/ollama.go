package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"searchbot/internal/domain"
	"searchbot/internal/httpx"
)

const (
	ollamaDefaultBase  = "http://localhost:11434"
	ollamaDefaultModel = "llama3.1:8b"
)

// Ollama talks to an Ollama server's /api/chat endpoint.
type Ollama struct {
	apiBase        string
	chatModel      string
	generatorModel string
	client         *http.Client
	retry          httpx.Retry
	logger         *slog.Logger
}

type OllamaConfig struct {
	APIBase        string
	ChatModel      string
	GeneratorModel string // model used by Generate; defaults to ChatModel
	Timeout        time.Duration
	Retry          httpx.Retry
	Logger         *slog.Logger
}

func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.APIBase == "" {
		cfg.APIBase = ollamaDefaultBase
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = ollamaDefaultModel
	}
	if cfg.GeneratorModel == "" {
		cfg.GeneratorModel = cfg.ChatModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Ollama{
		apiBase:        cfg.APIBase,
		chatModel:      cfg.ChatModel,
		generatorModel: cfg.GeneratorModel,
		client:         httpx.NewClient(cfg.Timeout),
		retry:          cfg.Retry,
		logger:         cfg.Logger,
	}
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.apiBase+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []ollamaMsg    `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaResponse struct {
	Message         ollamaMsg `json:"message"`
	Done            bool      `json:"done"`
	DoneReason      string    `json:"done_reason"`
	PromptEvalCount int       `json:"prompt_eval_count"`
	EvalCount       int       `json:"eval_count"`
	Error           string    `json:"error"`
}

func (o *Ollama) post(ctx context.Context, req domain.ChatRequest, model string, stream bool) (*http.Response, error) {
	if req.Model != "" {
		model = req.Model
	}
	msgs := make([]ollamaMsg, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, ollamaMsg{Role: m.Role, Content: m.Content})
	}
	body := ollamaRequest{Model: model, Messages: msgs, Stream: stream}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		body.Options = map[string]any{}
		if req.Temperature > 0 {
			body.Options["temperature"] = req.Temperature
		}
		if req.MaxTokens > 0 {
			body.Options["num_predict"] = req.MaxTokens
		}
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := httpx.DoWithRetry(ctx, o.client, o.retry, func() (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, o.apiBase+"/api/chat", bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		return r, nil
	}, o.logger)
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	if err := httpx.CheckStatus(resp); err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	return resp, nil
}

func (o *Ollama) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return o.chat(ctx, req, o.chatModel)
}

func (o *Ollama) chat(ctx context.Context, req domain.ChatRequest, model string) (*domain.ChatResponse, error) {
	start := time.Now()
	resp, err := o.post(ctx, req, model, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("ollama: %s", out.Error)
	}
	return &domain.ChatResponse{
		Content:      out.Message.Content,
		FinishReason: out.DoneReason,
		Usage: domain.Usage{
			PromptTokens:     out.PromptEvalCount,
			CompletionTokens: out.EvalCount,
			TotalTokens:      out.PromptEvalCount + out.EvalCount,
		},
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// ChatStream reads the NDJSON stream and forwards each content chunk.
func (o *Ollama) ChatStream(ctx context.Context, req domain.ChatRequest, out chan<- string) error {
	defer close(out)

	resp, err := o.post(ctx, req, o.chatModel, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)
	for decoder.More() {
		var chunk ollamaResponse
		if err := decoder.Decode(&chunk); err != nil {
			return fmt.Errorf("stream decode: %w", err)
		}
		if chunk.Error != "" {
			return fmt.Errorf("ollama: %s", chunk.Error)
		}
		if chunk.Message.Content != "" {
			select {
			case out <- chunk.Message.Content:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if chunk.Done {
			break
		}
	}
	return nil
}

// Generate returns a complete reply from the generator model.
func (o *Ollama) Generate(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	resp, err := o.chat(ctx, domain.ChatRequest{Messages: messages}, o.generatorModel)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
