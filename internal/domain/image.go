package domain

import "context"

// ImageDirective is the classifier's verdict on a piece of text.
type ImageDirective struct {
	IsImageRequest   bool
	ExtractedContent string
}

// RenderOptions control how text is drawn.
type RenderOptions struct {
	Theme string
	Width int
}

// RenderResult holds the URLs returned by a renderer. They may be relative.
type RenderResult struct {
	ImageURL    string
	DownloadURL string
}

// Renderer turns text into an image.
type Renderer interface {
	Render(ctx context.Context, text string, opts RenderOptions) (RenderResult, error)
}
