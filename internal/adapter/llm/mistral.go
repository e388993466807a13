package llm

import (
	"context"
	"log/slog"
	"strings"

	"llm-proxy/internal/domain"
	"llm-proxy/internal/infra/config"
)

// Compile-time interface assertion.
var _ domain.ChatProvider = (*MistralProvider)(nil)

// MistralProvider wraps OpenAIProvider to work with the Mistral chat API,
// which speaks the OpenAI-compatible envelope. Mistral chat models take no
// image input, so the provider answers false from the image capability probe
// and the inner adapter rejects multimodal requests with a capability error.
type MistralProvider struct {
	inner *OpenAIProvider
}

// NewMistralProvider creates a Mistral provider that delegates to
// OpenAIProvider with the Mistral endpoint and image input disabled.
func NewMistralProvider(cfg config.ProviderConfig, logger *slog.Logger) *MistralProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.mistral.ai/v1"
	}

	return &MistralProvider{
		inner: &OpenAIProvider{
			name:        cfg.Name,
			model:       cfg.Model,
			models:      cfg.Models,
			apiKey:      cfg.APIKey,
			baseURL:     baseURL,
			images:      false,
			temperature: cfg.Temperature,
			maxTokens:   cfg.MaxTokens,
			client:      NewHTTPClient(cfg),
			logger:      logger,
		},
	}
}

// Name implements domain.ChatProvider.
func (p *MistralProvider) Name() string { return p.inner.Name() }

// Models implements domain.ChatProvider.
func (p *MistralProvider) Models() []string { return p.inner.Models() }

// Capabilities implements domain.ChatProvider.
func (p *MistralProvider) Capabilities() domain.Capabilities { return p.inner.Capabilities() }

// Chat implements domain.ChatProvider.
func (p *MistralProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return p.inner.Chat(ctx, req)
}

// ChatStream implements domain.ChatProvider.
func (p *MistralProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	return p.inner.ChatStream(ctx, req)
}
