package domain

import "encoding/json"

// FrameType tags an outbound frame.
type FrameType string

const (
	FrameMessage    FrameType = "message"
	FrameSources    FrameType = "sources"
	FrameImage      FrameType = "image"
	FrameMessageEnd FrameType = "messageEnd"
	FrameError      FrameType = "error"
)

// ErrorKey classifies an error frame.
type ErrorKey string

const (
	ErrKeyInvalidFormat    ErrorKey = "INVALID_FORMAT"
	ErrKeyInvalidFocusMode ErrorKey = "INVALID_FOCUS_MODE"
	ErrKeyChainError       ErrorKey = "CHAIN_ERROR"
)

// Frame is a single outbound message to a client. Only the fields that
// belong to Type are written on the wire.
type Frame struct {
	Type      FrameType
	MessageID string
	Text      string     // message chunk, end note or error message
	Sources   []Source   // sources and messageEnd
	Image     *ImageData // image
	Key       ErrorKey   // error
}

// TextDelta is a chunk of the streamed answer.
func TextDelta(messageID, text string) Frame {
	return Frame{Type: FrameMessage, MessageID: messageID, Text: text}
}

// SourceBatch announces the documents the answer is based on.
func SourceBatch(messageID string, sources []Source) Frame {
	return Frame{Type: FrameSources, MessageID: messageID, Sources: sources}
}

// ImageResult carries a rendered image.
func ImageResult(messageID string, img ImageData) Frame {
	return Frame{Type: FrameImage, MessageID: messageID, Image: &img}
}

// StreamEnd terminates a successful stream. note is optional.
func StreamEnd(messageID, note string, sources []Source) Frame {
	return Frame{Type: FrameMessageEnd, MessageID: messageID, Text: note, Sources: sources}
}

// ErrorFrame reports a failure to the client.
func ErrorFrame(key ErrorKey, message string) Frame {
	return Frame{Type: FrameError, Key: key, Text: message}
}

// Terminal reports whether no frame may follow f for the same request.
func (f Frame) Terminal() bool {
	return f.Type == FrameMessageEnd || f.Type == FrameError
}

func (f Frame) MarshalJSON() ([]byte, error) {
	sources := f.Sources
	if sources == nil {
		sources = []Source{}
	}
	switch f.Type {
	case FrameMessage:
		return json.Marshal(struct {
			Type      FrameType `json:"type"`
			Data      string    `json:"data"`
			MessageID string    `json:"messageId"`
		}{f.Type, f.Text, f.MessageID})
	case FrameSources:
		return json.Marshal(struct {
			Type      FrameType `json:"type"`
			Data      []Source  `json:"data"`
			MessageID string    `json:"messageId"`
		}{f.Type, sources, f.MessageID})
	case FrameImage:
		img := ImageData{}
		if f.Image != nil {
			img = *f.Image
		}
		return json.Marshal(struct {
			Type      FrameType `json:"type"`
			Data      ImageData `json:"data"`
			MessageID string    `json:"messageId"`
		}{f.Type, img, f.MessageID})
	case FrameMessageEnd:
		return json.Marshal(struct {
			Type      FrameType `json:"type"`
			Data      string    `json:"data"`
			MessageID string    `json:"messageId"`
			Sources   []Source  `json:"sources"`
		}{f.Type, f.Text, f.MessageID, sources})
	default:
		return json.Marshal(struct {
			Type FrameType `json:"type"`
			Data string    `json:"data"`
			Key  ErrorKey  `json:"key"`
		}{f.Type, f.Text, f.Key})
	}
}
