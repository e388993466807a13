package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"llm-proxy/internal/domain"
	"llm-proxy/internal/infra/config"
)

func newTestLogger() *slog.Logger {
	return slog.Default()
}

const testDataURL = "data:image/png;base64,aGVsbG8="

func TestOpenAIProviderChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth: %s", r.Header.Get("Authorization"))
		}

		resp := openaiResponse{
			ID:    "chatcmpl-123",
			Model: "gpt-4o-mini",
			Choices: []openaiChoice{
				{
					Message:      openaiRespMessage{Role: "assistant", Content: "Hello! How can I help?"},
					FinishReason: "stop",
				},
			},
			Usage: openaiUsage{PromptTokens: 10, CompletionTokens: 8, TotalTokens: 18},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider := NewOpenAIProvider(config.ProviderConfig{
		Name:    "openai",
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
	}, newTestLogger())

	resp, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "Hello"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Message.Content != "Hello! How can I help?" {
		t.Errorf("unexpected content: %q", resp.Message.Content)
	}
	if resp.Message.Role != domain.RoleAssistant {
		t.Errorf("unexpected role: %q", resp.Message.Role)
	}
	if resp.Provider != "openai" {
		t.Errorf("unexpected provider: %q", resp.Provider)
	}
	if resp.Usage.TotalTokens != 18 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
}

func TestOpenAIProviderChatEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openaiResponse{ID: "chatcmpl-empty", Model: "gpt-4o-mini"})
	}))
	defer server.Close()

	provider := NewOpenAIProvider(config.ProviderConfig{
		Name:    "openai",
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
	}, newTestLogger())

	resp, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	// Even an empty response carries a well-formed assistant message, so it
	// never breaks role alternation in session history.
	if resp.Message.Role != domain.RoleAssistant {
		t.Errorf("unexpected role: %q", resp.Message.Role)
	}
	if resp.Message.Content != "" {
		t.Errorf("unexpected content: %q", resp.Message.Content)
	}
}

func TestOpenAIProviderAppliesConfiguredDefaults(t *testing.T) {
	var got openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openaiResponse{Choices: []openaiChoice{{}}})
	}))
	defer server.Close()

	provider := NewOpenAIProvider(config.ProviderConfig{
		Name:        "openai",
		BaseURL:     server.URL,
		APIKey:      "test-key",
		Model:       "gpt-4o-mini",
		Temperature: 0.3,
		MaxTokens:   256,
	}, newTestLogger())

	_, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if got.Model != "gpt-4o-mini" {
		t.Errorf("model not defaulted: %q", got.Model)
	}
	if got.Temperature == nil || *got.Temperature != 0.3 {
		t.Errorf("temperature not defaulted: %v", got.Temperature)
	}
	if got.MaxTokens != 256 {
		t.Errorf("max_tokens not defaulted: %d", got.MaxTokens)
	}
}

func TestOpenAIProviderImageParts(t *testing.T) {
	var raw map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &raw); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openaiResponse{Choices: []openaiChoice{{}}})
	}))
	defer server.Close()

	provider := NewOpenAIProvider(config.ProviderConfig{
		Name:    "openai",
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
	}, newTestLogger())

	_, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{
			Role: domain.RoleUser,
			Parts: []domain.Part{
				{Kind: domain.PartText, Text: "what is this?"},
				{Kind: domain.PartImage, DataURL: testDataURL},
			},
		}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	msgs := raw["messages"].([]any)
	content := msgs[0].(map[string]any)["content"].([]any)
	if len(content) != 2 {
		t.Fatalf("expected 2 content parts, got %d", len(content))
	}
	imgPart := content[1].(map[string]any)
	if imgPart["type"] != "image_url" {
		t.Errorf("unexpected part type: %v", imgPart["type"])
	}
	// Data URL must pass through byte-for-byte.
	url := imgPart["image_url"].(map[string]any)["url"]
	if url != testDataURL {
		t.Errorf("data URL altered in transit: %v", url)
	}
}

func TestOpenAIProviderVendorError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	provider := NewOpenAIProvider(config.ProviderConfig{
		Name:    "openai",
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
	}, newTestLogger())

	_, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	if !errors.Is(err, domain.ErrVendorCall) {
		t.Fatalf("expected ErrVendorCall, got %v", err)
	}
	if domain.ErrorCodeOf(err) != domain.CodeVendorCall {
		t.Errorf("unexpected error code: %s", domain.ErrorCodeOf(err))
	}
}

func TestOpenAIProviderChatStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"},\"finish_reason\":null}]}\n\n")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"},\"finish_reason\":null}]}\n\n")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}],\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":2,\"total_tokens\":7}}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	provider := NewOpenAIProvider(config.ProviderConfig{
		Name:    "openai",
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
	}, newTestLogger())

	ch, err := provider.ChatStream(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}

	var content string
	var sawDone bool
	var usage *domain.Usage
	for delta := range ch {
		if sawDone {
			t.Fatal("delta received after Done")
		}
		content += delta.Content
		if delta.Usage != nil {
			usage = delta.Usage
		}
		if delta.Done {
			sawDone = true
		}
	}

	if content != "Hello" {
		t.Errorf("unexpected streamed content: %q", content)
	}
	if !sawDone {
		t.Error("stream did not terminate with Done")
	}
	if usage == nil || usage.TotalTokens != 7 {
		t.Errorf("unexpected usage: %+v", usage)
	}
}
