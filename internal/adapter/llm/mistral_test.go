package llm

import (
	"context"
	"errors"
	"testing"

	"llm-proxy/internal/domain"
	"llm-proxy/internal/infra/config"
)

func TestMistralProviderRejectsImages(t *testing.T) {
	provider := NewMistralProvider(config.ProviderConfig{
		Name:   "mistral",
		APIKey: "test-key",
		Model:  "mistral-large-latest",
	}, newTestLogger())

	if provider.Capabilities().Images {
		t.Fatal("mistral must not advertise image support")
	}

	req := domain.ChatRequest{
		Messages: []domain.Message{{
			Role:  domain.RoleUser,
			Parts: []domain.Part{{Kind: domain.PartImage, DataURL: testDataURL}},
		}},
	}

	// The capability check fires before any network traffic.
	_, err := provider.Chat(context.Background(), req)
	if !errors.Is(err, domain.ErrCapability) {
		t.Fatalf("expected ErrCapability, got %v", err)
	}
	_, err = provider.ChatStream(context.Background(), req)
	if !errors.Is(err, domain.ErrCapability) {
		t.Fatalf("expected ErrCapability from stream, got %v", err)
	}
}

func TestQualifyFireworksModel(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"llama-v3p1-70b-instruct", "accounts/fireworks/models/llama-v3p1-70b-instruct"},
		{"accounts/fireworks/models/llama-v3p1-70b-instruct", "accounts/fireworks/models/llama-v3p1-70b-instruct"},
		{"accounts/acme/models/custom", "accounts/acme/models/custom"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := qualifyFireworksModel(tc.in); got != tc.want {
			t.Errorf("qualifyFireworksModel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
