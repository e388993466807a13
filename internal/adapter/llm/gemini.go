package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"llm-proxy/internal/domain"
	"llm-proxy/internal/infra/config"
	"llm-proxy/internal/infra/tracer"
)

// GeminiProvider implements domain.ChatProvider for the Google Gemini API.
type GeminiProvider struct {
	name        string
	model       string
	models      []string
	apiKey      string
	baseURL     string
	temperature float64
	maxTokens   int
	client      *http.Client
	logger      *slog.Logger
}

// NewGeminiProvider creates a provider for the Google Gemini API.
func NewGeminiProvider(cfg config.ProviderConfig, logger *slog.Logger) *GeminiProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	return &GeminiProvider{
		name:        cfg.Name,
		model:       cfg.Model,
		models:      cfg.Models,
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      NewHTTPClient(cfg),
		logger:      logger,
	}
}

func (p *GeminiProvider) applyDefaults(req domain.ChatRequest) domain.ChatRequest {
	if req.Model == "" {
		req.Model = p.model
	}
	if req.Temperature == 0 {
		req.Temperature = p.temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = p.maxTokens
	}
	return req
}

// Name implements domain.ChatProvider.
func (p *GeminiProvider) Name() string { return p.name }

// Models implements domain.ChatProvider.
func (p *GeminiProvider) Models() []string { return p.models }

// Capabilities implements domain.ChatProvider.
func (p *GeminiProvider) Capabilities() domain.Capabilities {
	return domain.Capabilities{
		Name:       p.name,
		Images:     true,
		Streaming:  true,
		Models:     p.models,
		Configured: p.apiKey != "",
	}
}

// Chat implements domain.ChatProvider.
func (p *GeminiProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.chat",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", req.Model),
		),
	)
	defer span.End()

	req = p.applyDefaults(req)

	gemReq, err := toGeminiRequest(req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	body, err := json.Marshal(gemReq)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", p.baseURL, req.Model, p.apiKey)

	respBody, err := doJSONRequest(ctx, p.client, url, body, nil)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var gemResp geminiResponse
	if err := json.Unmarshal(respBody, &gemResp); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	result := fromGeminiResponse(gemResp)
	result.Model = req.Model
	result.Provider = p.name
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, result)

	return result, nil
}

// ChatStream implements domain.ChatProvider.
func (p *GeminiProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	req = p.applyDefaults(req)

	gemReq, err := toGeminiRequest(req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(gemReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse&key=%s",
		p.baseURL, req.Model, p.apiKey)

	httpResp, err := doStreamRequest(ctx, p.client, url, body, nil)
	if err != nil {
		return nil, err
	}

	ch := parseSSEStream(ctx, httpResp.Body, func(data []byte) (*domain.StreamDelta, error) {
		var chunk geminiStreamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return nil, err
		}

		delta := &domain.StreamDelta{}
		if len(chunk.Candidates) > 0 {
			for _, part := range chunk.Candidates[0].Content.Parts {
				delta.Content += part.Text
			}
		}
		if chunk.UsageMetadata != nil {
			delta.Usage = &domain.Usage{
				PromptTokens:     chunk.UsageMetadata.PromptTokenCount,
				CompletionTokens: chunk.UsageMetadata.CandidatesTokenCount,
				TotalTokens:      chunk.UsageMetadata.TotalTokenCount,
			}
		}
		return delta, nil
	})

	return ch, nil
}

// --- Gemini API wire types ---

type geminiRequest struct {
	Contents          []geminiContent  `json:"contents"`
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

// geminiInlineData carries a base64 image with an explicit mime type.
type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage      `json:"usageMetadata,omitempty"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiStreamChunk = geminiResponse // same shape as non-streaming

// toGeminiRequest translates the neutral request: the first system message
// becomes systemInstruction, assistant turns become role "model", and image
// parts are split out of their data URLs into inline_data blocks.
func toGeminiRequest(req domain.ChatRequest) (geminiRequest, error) {
	gemReq := geminiRequest{}

	if req.Temperature > 0 || req.MaxTokens > 0 {
		gemReq.GenerationConfig = &geminiGenConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
	}

	for _, m := range req.Messages {
		if m.Role == domain.RoleSystem && gemReq.SystemInstruction == nil {
			gemReq.SystemInstruction = &geminiContent{
				Parts: []geminiPart{{Text: m.PlainText()}},
			}
			continue
		}

		role := "user"
		if m.Role == domain.RoleAssistant {
			role = "model"
		}

		parts, err := toGeminiParts(m)
		if err != nil {
			return geminiRequest{}, err
		}
		gemReq.Contents = append(gemReq.Contents, geminiContent{Role: role, Parts: parts})
	}

	return gemReq, nil
}

func toGeminiParts(m domain.Message) ([]geminiPart, error) {
	if len(m.Parts) == 0 {
		return []geminiPart{{Text: m.Content}}, nil
	}

	parts := make([]geminiPart, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch p.Kind {
		case domain.PartImage:
			mime, payload, err := domain.ParseDataURL(p.DataURL)
			if err != nil {
				return nil, fmt.Errorf("image part: %w", err)
			}
			parts = append(parts, geminiPart{
				InlineData: &geminiInlineData{MimeType: mime, Data: payload},
			})
		default:
			parts = append(parts, geminiPart{Text: p.Text})
		}
	}
	return parts, nil
}

func fromGeminiResponse(resp geminiResponse) *domain.ChatResponse {
	result := &domain.ChatResponse{
		CreatedAt: time.Now(),
	}

	if resp.UsageMetadata != nil {
		result.Usage = domain.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}

	msg := domain.Message{
		Role:      domain.RoleAssistant,
		Timestamp: result.CreatedAt,
	}
	var text strings.Builder
	if len(resp.Candidates) > 0 {
		for _, part := range resp.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}
	msg.Content = text.String()

	result.Message = msg
	return result
}

// Compile-time interface check.
var _ domain.ChatProvider = (*GeminiProvider)(nil)
