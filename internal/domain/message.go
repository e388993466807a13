package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Role constants for message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Part kinds for multimodal message content.
const (
	PartText  = "text"
	PartImage = "image"
)

// Part is a single typed segment of a multimodal message. Image parts carry
// their payload as a data URL (data:<mime>;base64,<payload>).
type Part struct {
	Kind    string `json:"kind"`
	Text    string `json:"text,omitempty"`
	DataURL string `json:"data_url,omitempty"`
}

// Message represents a single message in a conversation. Content holds plain
// text; Parts, when non-empty, holds an ordered multimodal sequence and takes
// precedence over Content. Messages are immutable once appended to history.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content,omitempty"`
	Parts     []Part    `json:"parts,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PlainText returns the textual content of the message. For multimodal
// messages only text parts contribute; images contribute nothing.
func (m Message) PlainText() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Kind != PartText {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// HasImages reports whether the message carries any image parts.
func (m Message) HasImages() bool {
	for _, p := range m.Parts {
		if p.Kind == PartImage {
			return true
		}
	}
	return false
}

// ChatRequest is sent to an LLM provider.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// ChatResponse is the normalized completion returned from any provider.
// Usage is zero-filled when the vendor does not report token counts.
type ChatResponse struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`    // model identifier echoed by the vendor
	Provider  string    `json:"provider"` // registry name of the serving provider
	Message   Message   `json:"message"`
	Usage     Usage     `json:"usage"`
	CreatedAt time.Time `json:"created_at"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamDelta is a single incremental chunk from a streaming provider
// response. Usage, when present, arrives only on the terminating delta.
// A delta with Err set reports a broken stream: the text received so far is
// truncated, not a completed response.
type StreamDelta struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Usage   *Usage `json:"usage,omitempty"`
	Err     error  `json:"-"`
}

// StreamChunk is the caller-facing streaming unit. The sequence is ordered,
// single-pass, and terminated by one chunk with Done set. Chunks never carry
// usage data.
type StreamChunk struct {
	Delta string `json:"delta,omitempty"`
	Done  bool   `json:"done,omitempty"`
}

// ParseDataURL splits a data URL into its mime type and base64 payload.
// The payload is validated but returned still encoded, so adapters that
// forward base64 avoid a decode/re-encode round trip.
func ParseDataURL(url string) (mime, payload string, err error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return "", "", fmt.Errorf("%w: not a data URL", ErrValidation)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", fmt.Errorf("%w: data URL missing payload", ErrValidation)
	}
	mime, enc, ok := strings.Cut(meta, ";")
	if !ok || enc != "base64" {
		return "", "", fmt.Errorf("%w: data URL is not base64-encoded", ErrValidation)
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return "", "", fmt.Errorf("%w: invalid base64 payload: %v", ErrValidation, err)
	}
	return mime, payload, nil
}
