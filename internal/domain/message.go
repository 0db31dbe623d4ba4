package domain

// InboundRequest is a decoded client frame of type "message".
type InboundRequest struct {
	ChatID       string
	MessageID    string
	Content      string
	FocusMode    string
	Optimization OptimizationMode
	History      []ChatMessage
	Files        []string
}

// FileRef describes an uploaded attachment.
type FileRef struct {
	FileID    string `json:"fileId"`
	Name      string `json:"name"`
	Extension string `json:"fileExtension,omitempty"`
}

// Source is a retrieved document cited by an answer.
type Source struct {
	PageContent string         `json:"pageContent"`
	Metadata    SourceMetadata `json:"metadata"`
}

type SourceMetadata struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ImageData describes a rendered image and the text it was rendered from.
type ImageData struct {
	ImageURL    string `json:"imageUrl"`
	DownloadURL string `json:"downloadUrl"`
	Text        string `json:"text"`
}

// FileText is the extracted text of an uploaded attachment.
type FileText struct {
	Name string
	Text string
}
