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

const defaultAnthropicVersion = "2023-06-01"

// defaultAnthropicMaxTokens is used when the request does not set a limit;
// the Messages API requires max_tokens.
const defaultAnthropicMaxTokens = 4096

// AnthropicProvider implements domain.ChatProvider for the Anthropic
// Messages API.
type AnthropicProvider struct {
	name        string
	model       string
	models      []string
	apiKey      string
	baseURL     string
	temperature float64
	maxTokens   int
	client      *http.Client
	logger      *slog.Logger
	version     string
}

// NewAnthropicProvider creates a provider for the Anthropic Messages API.
func NewAnthropicProvider(cfg config.ProviderConfig, logger *slog.Logger) *AnthropicProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	return &AnthropicProvider{
		name:        cfg.Name,
		model:       cfg.Model,
		models:      cfg.Models,
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      NewHTTPClient(cfg),
		logger:      logger,
		version:     defaultAnthropicVersion,
	}
}

func (p *AnthropicProvider) applyDefaults(req domain.ChatRequest) domain.ChatRequest {
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
func (p *AnthropicProvider) Name() string { return p.name }

// Models implements domain.ChatProvider.
func (p *AnthropicProvider) Models() []string { return p.models }

// Capabilities implements domain.ChatProvider.
func (p *AnthropicProvider) Capabilities() domain.Capabilities {
	return domain.Capabilities{
		Name:       p.name,
		Images:     true,
		Streaming:  true,
		Models:     p.models,
		Configured: p.apiKey != "",
	}
}

// Chat implements domain.ChatProvider.
func (p *AnthropicProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.chat",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", req.Model),
		),
	)
	defer span.End()

	req = p.applyDefaults(req)

	antReq, err := toAnthropicRequest(req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	body, err := json.Marshal(antReq)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := doJSONRequest(ctx, p.client, p.baseURL+"/v1/messages", body, p.headers())
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var antResp anthropicResponse
	if err := json.Unmarshal(respBody, &antResp); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	result := fromAnthropicResponse(antResp)
	result.Provider = p.name
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, result)

	return result, nil
}

// ChatStream implements domain.ChatProvider.
func (p *AnthropicProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	req = p.applyDefaults(req)

	antReq, err := toAnthropicRequest(req)
	if err != nil {
		return nil, err
	}
	antReq.Stream = true

	body, err := json.Marshal(antReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpResp, err := doStreamRequest(ctx, p.client, p.baseURL+"/v1/messages", body, p.headers())
	if err != nil {
		return nil, err
	}

	// Anthropic emits "event: <type>\ndata: <json>" pairs; the data JSON
	// repeats the event type in its "type" field, so dispatching on the data
	// payload alone is sufficient.
	ch := parseSSEStream(ctx, httpResp.Body, func(data []byte) (*domain.StreamDelta, error) {
		var evt anthropicStreamEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, err
		}

		switch evt.Type {
		case "content_block_delta":
			var td anthropicDeltaText
			if err := json.Unmarshal(evt.Delta, &td); err == nil && td.Type == "text_delta" {
				return &domain.StreamDelta{Content: td.Text}, nil
			}
			return nil, nil

		case "message_delta":
			delta := &domain.StreamDelta{Done: true}
			if len(evt.Usage) > 0 {
				var u anthropicUsage
				if err := json.Unmarshal(evt.Usage, &u); err == nil {
					delta.Usage = &domain.Usage{
						PromptTokens:     u.InputTokens,
						CompletionTokens: u.OutputTokens,
						TotalTokens:      u.InputTokens + u.OutputTokens,
					}
				}
			}
			return delta, nil

		case "message_stop":
			return &domain.StreamDelta{Done: true}, nil

		default:
			return nil, nil
		}
	})

	return ch, nil
}

func (p *AnthropicProvider) headers() map[string]string {
	return map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": p.version,
	}
}

// --- Anthropic API wire types ---

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type   string              `json:"type"`
	Text   string              `json:"text,omitempty"`
	Source *anthropicImgSource `json:"source,omitempty"`
}

// anthropicImgSource addresses a base64 image block by media type.
type anthropicImgSource struct {
	Type      string `json:"type"` // always "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Type    string             `json:"type"`
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
	Usage   anthropicUsage     `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// --- Anthropic streaming wire types ---

type anthropicStreamEvent struct {
	Type  string          `json:"type"`
	Delta json.RawMessage `json:"delta,omitempty"`
	Usage json.RawMessage `json:"usage,omitempty"`
}

type anthropicDeltaText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// toAnthropicRequest translates the neutral request. The first system
// message is extracted into the dedicated system field and not resent
// inline; image parts are decomposed from data URLs into typed base64
// source blocks carrying the tagged media type.
func toAnthropicRequest(req domain.ChatRequest) (anthropicRequest, error) {
	antReq := anthropicRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	if antReq.MaxTokens <= 0 {
		antReq.MaxTokens = defaultAnthropicMaxTokens
	}

	for _, m := range req.Messages {
		if m.Role == domain.RoleSystem && antReq.System == "" {
			antReq.System = m.PlainText()
			continue
		}

		content, err := toAnthropicContent(m)
		if err != nil {
			return anthropicRequest{}, err
		}
		antReq.Messages = append(antReq.Messages, anthropicMessage{
			Role:    m.Role,
			Content: content,
		})
	}

	return antReq, nil
}

func toAnthropicContent(m domain.Message) ([]anthropicContent, error) {
	if len(m.Parts) == 0 {
		return []anthropicContent{{Type: "text", Text: m.Content}}, nil
	}

	content := make([]anthropicContent, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch p.Kind {
		case domain.PartImage:
			mime, payload, err := domain.ParseDataURL(p.DataURL)
			if err != nil {
				return nil, fmt.Errorf("image part: %w", err)
			}
			content = append(content, anthropicContent{
				Type: "image",
				Source: &anthropicImgSource{
					Type:      "base64",
					MediaType: mime,
					Data:      payload,
				},
			})
		default:
			content = append(content, anthropicContent{Type: "text", Text: p.Text})
		}
	}
	return content, nil
}

func fromAnthropicResponse(resp anthropicResponse) *domain.ChatResponse {
	result := &domain.ChatResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: domain.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		CreatedAt: time.Now(),
	}

	msg := domain.Message{
		Role:      domain.RoleAssistant,
		Timestamp: result.CreatedAt,
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	msg.Content = text.String()

	result.Message = msg
	return result
}

// Compile-time interface check.
var _ domain.ChatProvider = (*AnthropicProvider)(nil)
