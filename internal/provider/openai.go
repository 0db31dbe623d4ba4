package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"searchbot/internal/domain"
	"searchbot/internal/httpx"
)

// OpenAI talks to any OpenAI-compatible /chat/completions endpoint.
type OpenAI struct {
	apiKey         string
	apiBase        string
	chatModel      string
	generatorModel string
	client         *http.Client
	retry          httpx.Retry
	logger         *slog.Logger
}

type OpenAIConfig struct {
	APIKey         string
	APIBase        string
	ChatModel      string
	GeneratorModel string // model used by Generate; defaults to ChatModel
	Timeout        time.Duration
	Retry          httpx.Retry
	Logger         *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o-mini"
	}
	if cfg.GeneratorModel == "" {
		cfg.GeneratorModel = cfg.ChatModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OpenAI{
		apiKey:         cfg.APIKey,
		apiBase:        strings.TrimRight(cfg.APIBase, "/"),
		chatModel:      cfg.ChatModel,
		generatorModel: cfg.GeneratorModel,
		client:         httpx.NewClient(cfg.Timeout),
		retry:          cfg.Retry,
		logger:         cfg.Logger,
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.apiBase+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("openai not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("openai: invalid API key")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("openai returned %d", resp.StatusCode)
	}
	return nil
}

type oaiRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	Stream      bool         `json:"stream"`
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage domain.Usage `json:"usage"`
}

type oaiStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (o *OpenAI) post(ctx context.Context, req domain.ChatRequest, model string, stream bool) (*http.Response, error) {
	if req.Model != "" {
		model = req.Model
	}
	msgs := make([]oaiMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, oaiMessage{Role: m.Role, Content: m.Content})
	}
	body := oaiRequest{Model: model, Messages: msgs, Stream: stream, MaxTokens: req.MaxTokens}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	resp, err := httpx.DoWithRetry(ctx, o.client, o.retry, func() (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, o.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		if o.apiKey != "" {
			r.Header.Set("Authorization", "Bearer "+o.apiKey)
		}
		return r, nil
	}, o.logger)
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}
	if err := httpx.CheckStatus(resp); err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return resp, nil
}

func (o *OpenAI) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return o.chat(ctx, req, o.chatModel)
}

func (o *OpenAI) chat(ctx context.Context, req domain.ChatRequest, model string) (*domain.ChatResponse, error) {
	start := time.Now()
	resp, err := o.post(ctx, req, model, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return &domain.ChatResponse{FinishReason: "stop", LatencyMs: time.Since(start).Milliseconds()}, nil
	}
	choice := out.Choices[0]
	return &domain.ChatResponse{
		Content:      contentText(choice.Message.Content),
		FinishReason: choice.FinishReason,
		Usage:        out.Usage,
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}

// ChatStream reads the server-sent event stream and forwards each delta.
func (o *OpenAI) ChatStream(ctx context.Context, req domain.ChatRequest, out chan<- string) error {
	defer close(out)

	resp, err := o.post(ctx, req, o.chatModel, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return nil
		}
		var chunk oaiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("stream decode: %w", err)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == nil || *chunk.Choices[0].Delta.Content == "" {
			continue
		}
		select {
		case out <- *chunk.Choices[0].Delta.Content:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

// Generate returns a complete reply from the generator model.
func (o *OpenAI) Generate(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	resp, err := o.chat(ctx, domain.ChatRequest{Messages: messages}, o.generatorModel)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
