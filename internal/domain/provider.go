package domain

import "context"

// Capabilities describes what a configured provider can do. Derived from
// static configuration; read-only at call time.
type Capabilities struct {
	Name       string   `json:"name"`
	Images     bool     `json:"images"`
	Streaming  bool     `json:"streaming"`
	Models     []string `json:"models"`
	Configured bool     `json:"configured"`
}

// ChatProvider is the interface every vendor adapter implements. Adapters
// that do not support a capability must answer false from Capabilities and
// additionally fail fast with ErrCapability when asked to perform it anyway.
type ChatProvider interface {
	// Name returns the provider's registry identifier (e.g. "openai").
	Name() string
	// Capabilities reports the provider's static capability set.
	Capabilities() Capabilities
	// Models returns the provider's supported model identifiers in order.
	Models() []string
	// Chat sends a request and returns a complete normalized response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// ChatStream sends a request and returns a channel of incremental deltas.
	// The channel is closed after a terminating delta: Done on completion,
	// Err when the stream broke mid-response.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamDelta, error)
}
