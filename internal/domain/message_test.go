package domain

import (
	"errors"
	"testing"
)

func TestPlainText(t *testing.T) {
	plain := Message{Role: RoleUser, Content: "hello"}
	if got := plain.PlainText(); got != "hello" {
		t.Errorf("PlainText() = %q", got)
	}

	multi := Message{Role: RoleUser, Parts: []Part{
		{Kind: PartText, Text: "what is"},
		{Kind: PartImage, DataURL: "data:image/png;base64,aGk="},
		{Kind: PartText, Text: "this?"},
	}}
	if got := multi.PlainText(); got != "what is this?" {
		t.Errorf("PlainText() = %q, images must contribute nothing", got)
	}
}

func TestHasImages(t *testing.T) {
	if (Message{Content: "text"}).HasImages() {
		t.Error("plain message reports images")
	}
	msg := Message{Parts: []Part{{Kind: PartImage, DataURL: "data:image/png;base64,aGk="}}}
	if !msg.HasImages() {
		t.Error("image message not detected")
	}
}

func TestParseDataURL(t *testing.T) {
	mime, payload, err := ParseDataURL("data:image/jpeg;base64,aGVsbG8=")
	if err != nil {
		t.Fatalf("ParseDataURL failed: %v", err)
	}
	if mime != "image/jpeg" {
		t.Errorf("mime = %q", mime)
	}
	if payload != "aGVsbG8=" {
		t.Errorf("payload must stay encoded, got %q", payload)
	}
}

func TestParseDataURLRejectsMalformed(t *testing.T) {
	cases := []string{
		"https://example.com/cat.png",
		"data:image/png",
		"data:image/png;base64,!!!not-base64!!!",
		"data:image/png,plainpayload",
	}
	for _, url := range cases {
		if _, _, err := ParseDataURL(url); !errors.Is(err, ErrValidation) {
			t.Errorf("ParseDataURL(%q): expected ErrValidation, got %v", url, err)
		}
	}
}

func TestErrorCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorCode
	}{
		{NewDomainError("Registry.Resolve", ErrUnsupportedProvider, "llama-farm"), CodeUnsupportedProvider},
		{WrapOp("Agent.Respond", ErrCapability), CodeCapability},
		{ErrVendorCall, CodeVendorCall},
		{errors.New("plain"), CodeUnknown},
		{nil, CodeUnknown},
	}
	for _, tc := range cases {
		if got := ErrorCodeOf(tc.err); got != tc.want {
			t.Errorf("ErrorCodeOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestDomainErrorChain(t *testing.T) {
	inner := NewDomainError("Registry.Resolve", ErrUnsupportedProvider, "llama-farm")
	wrapped := WrapOp("Agent.Respond", inner)

	if !errors.Is(wrapped, ErrUnsupportedProvider) {
		t.Error("sentinel lost through wrapping")
	}
	var de *DomainError
	if !errors.As(wrapped, &de) || de.Op != "Registry.Resolve" {
		t.Errorf("DomainError not recoverable from chain: %v", wrapped)
	}
}
