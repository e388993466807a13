package llm

import (
	"context"
	"log/slog"
	"strings"

	"llm-proxy/internal/domain"
	"llm-proxy/internal/infra/config"
)

// Compile-time interface assertion.
var _ domain.ChatProvider = (*FireworksProvider)(nil)

// fireworksModelPrefix is prepended to bare model names; the Fireworks API
// addresses models by full account path.
const fireworksModelPrefix = "accounts/fireworks/models/"

// FireworksProvider wraps OpenAIProvider to work with the Fireworks
// inference API, which speaks the OpenAI-compatible envelope with
// account-qualified model identifiers.
type FireworksProvider struct {
	inner *OpenAIProvider
}

// NewFireworksProvider creates a Fireworks provider that delegates to
// OpenAIProvider with the Fireworks inference endpoint.
func NewFireworksProvider(cfg config.ProviderConfig, logger *slog.Logger) *FireworksProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.fireworks.ai/inference/v1"
	}

	return &FireworksProvider{
		inner: &OpenAIProvider{
			name:        cfg.Name,
			model:       qualifyFireworksModel(cfg.Model),
			models:      cfg.Models,
			apiKey:      cfg.APIKey,
			baseURL:     baseURL,
			images:      true,
			temperature: cfg.Temperature,
			maxTokens:   cfg.MaxTokens,
			client:      NewHTTPClient(cfg),
			logger:      logger,
		},
	}
}

// qualifyFireworksModel prefixes bare model names with the account path.
func qualifyFireworksModel(model string) string {
	if model == "" || strings.Contains(model, "/") {
		return model
	}
	return fireworksModelPrefix + model
}

// Name implements domain.ChatProvider.
func (p *FireworksProvider) Name() string { return p.inner.Name() }

// Models implements domain.ChatProvider.
func (p *FireworksProvider) Models() []string { return p.inner.Models() }

// Capabilities implements domain.ChatProvider.
func (p *FireworksProvider) Capabilities() domain.Capabilities { return p.inner.Capabilities() }

// Chat implements domain.ChatProvider.
func (p *FireworksProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	req.Model = qualifyFireworksModel(req.Model)
	return p.inner.Chat(ctx, req)
}

// ChatStream implements domain.ChatProvider.
func (p *FireworksProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	req.Model = qualifyFireworksModel(req.Model)
	return p.inner.ChatStream(ctx, req)
}
