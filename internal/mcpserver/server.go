// Package mcpserver exposes text-to-image rendering, image intent
// classification and chat history over the Model Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"searchbot/internal/domain"
	"searchbot/internal/intent"
	"searchbot/internal/render"
)

const maxRenderChars = 20000

// ChatReader is the read side of the history store.
type ChatReader interface {
	ListChats(ctx context.Context, limit int) ([]domain.Chat, error)
	GetChat(ctx context.Context, id string) (domain.Chat, error)
	Messages(ctx context.Context, chatID string) ([]domain.PersistedMessage, error)
}

// Deps holds what the tools and resources need. Renderer and Chats may be
// nil, in which case the matching tools report an error.
type Deps struct {
	Renderer      domain.Renderer
	Defaults      domain.RenderOptions
	PublicBaseURL string
	Chats         ChatReader
	Version       string
	Logger        *slog.Logger
}

// New builds an MCP server with every tool and resource registered.
func New(deps Deps) *server.MCPServer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}
	s := server.NewMCPServer(
		"searchbot",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("searchbot renders text as shareable images and reads saved search chats."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("text_to_image",
			mcp.WithDescription("Render text (markdown headings and paragraphs) as an image card and return its URLs."),
			mcp.WithString("text", mcp.Description("Text to render"), mcp.Required()),
			mcp.WithString("theme", mcp.Description("light or dark (default light)")),
			mcp.WithNumber("width", mcp.Description("Image width in pixels (default 800)")),
		),
		textToImage(deps),
	)

	s.AddTool(
		mcp.NewTool("classify_image_intent",
			mcp.WithDescription("Decide whether a message asks for an image and extract the text to render."),
			mcp.WithString("text", mcp.Description("Message to classify"), mcp.Required()),
		),
		classifyIntent(),
	)

	s.AddResource(
		mcp.NewResource(
			"chat://recent",
			"Recent chats",
			mcp.WithResourceDescription("The 20 most recent chats"),
			mcp.WithMIMEType("application/json"),
		),
		recentChats(deps),
	)

	s.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"chat://{id}",
			"Chat history",
			mcp.WithTemplateDescription("A chat and its ordered messages"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		chatHistory(deps),
	)

	return s
}

func textToImage(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Renderer == nil {
			return mcpError("no renderer configured"), nil
		}
		text, err := req.RequireString("text")
		if err != nil || strings.TrimSpace(text) == "" {
			return mcpError("text is required"), nil
		}
		if utf8.RuneCountInString(text) > maxRenderChars {
			return mcpError(fmt.Sprintf("text is longer than %d characters", maxRenderChars)), nil
		}

		opts := deps.Defaults
		if theme := req.GetString("theme", ""); theme != "" {
			if theme != "light" && theme != "dark" {
				return mcpError("theme must be light or dark"), nil
			}
			opts.Theme = theme
		}
		if w := req.GetInt("width", 0); w > 0 {
			opts.Width = w
		}

		res, err := deps.Renderer.Render(ctx, text, opts)
		if err != nil {
			deps.Logger.Warn("mcp render failed", "err", err)
			return mcpError(fmt.Sprintf("render failed: %v", err)), nil
		}
		b, err := json.Marshal(map[string]string{
			"imageUrl":    render.Absolutize(deps.PublicBaseURL, res.ImageURL),
			"downloadUrl": render.Absolutize(deps.PublicBaseURL, res.DownloadURL),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func classifyIntent() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		d := intent.Classify(text)
		b, err := json.Marshal(map[string]any{
			"isImageRequest":   d.IsImageRequest,
			"extractedContent": d.ExtractedContent,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func recentChats(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		if deps.Chats == nil {
			return nil, errors.New("chat history is not available")
		}
		chats, err := deps.Chats.ListChats(ctx, 20)
		if err != nil {
			return nil, fmt.Errorf("failed to list chats: %w", err)
		}
		if chats == nil {
			chats = []domain.Chat{}
		}
		return jsonContents(req.Params.URI, chats)
	}
}

func chatHistory(deps Deps) server.ResourceTemplateHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		if deps.Chats == nil {
			return nil, errors.New("chat history is not available")
		}
		id := strings.TrimPrefix(req.Params.URI, "chat://")
		if id == "" || id == req.Params.URI {
			return nil, fmt.Errorf("invalid chat uri %q", req.Params.URI)
		}
		chat, err := deps.Chats.GetChat(ctx, id)
		if err != nil {
			return nil, err
		}
		msgs, err := deps.Chats.Messages(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to read messages: %w", err)
		}
		return jsonContents(req.Params.URI, map[string]any{"chat": chat, "messages": msgs})
	}
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
