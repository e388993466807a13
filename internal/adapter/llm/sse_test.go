package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"llm-proxy/internal/domain"
)

func parseTestLine(data []byte) (*domain.StreamDelta, error) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &domain.StreamDelta{Content: payload.Text}, nil
}

func collect(ch <-chan domain.StreamDelta) []domain.StreamDelta {
	var out []domain.StreamDelta
	for d := range ch {
		out = append(out, d)
	}
	return out
}

func TestParseSSEStreamBasic(t *testing.T) {
	body := io.NopCloser(strings.NewReader(
		"data: {\"text\":\"a\"}\n\n" +
			": keepalive comment\n" +
			"data: {\"text\":\"b\"}\n\n" +
			"data: [DONE]\n\n",
	))

	deltas := collect(parseSSEStream(context.Background(), body, parseTestLine))

	if len(deltas) != 3 {
		t.Fatalf("expected 3 deltas, got %d: %+v", len(deltas), deltas)
	}
	if deltas[0].Content != "a" || deltas[1].Content != "b" {
		t.Errorf("unexpected content: %+v", deltas)
	}
	if !deltas[2].Done {
		t.Error("final delta must be Done")
	}
}

func TestParseSSEStreamSkipsUnparseableLines(t *testing.T) {
	body := io.NopCloser(strings.NewReader(
		"data: not json\n\n" +
			"data: {\"text\":\"ok\"}\n\n" +
			"data: [DONE]\n\n",
	))

	deltas := collect(parseSSEStream(context.Background(), body, parseTestLine))

	if len(deltas) != 2 {
		t.Fatalf("expected 2 deltas, got %d", len(deltas))
	}
	if deltas[0].Content != "ok" {
		t.Errorf("unexpected content: %+v", deltas[0])
	}
}

func TestParseSSEStreamStopsAtDoneDelta(t *testing.T) {
	done := false
	body := io.NopCloser(strings.NewReader(
		"data: {}\n\ndata: {}\n\n",
	))

	ch := parseSSEStream(context.Background(), body, func([]byte) (*domain.StreamDelta, error) {
		if done {
			t.Error("parse called after Done delta")
		}
		done = true
		return &domain.StreamDelta{Done: true}, nil
	})
	deltas := collect(ch)

	if len(deltas) != 1 || !deltas[0].Done {
		t.Fatalf("expected a single Done delta, got %+v", deltas)
	}
}

// errReadCloser fails mid-stream, after yielding its prefix.
type errReadCloser struct {
	r io.Reader
}

func (e *errReadCloser) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err == io.EOF {
		return n, fmt.Errorf("connection reset")
	}
	return n, err
}

func (e *errReadCloser) Close() error { return nil }

func TestParseSSEStreamIOErrorTerminates(t *testing.T) {
	body := &errReadCloser{r: strings.NewReader("data: {\"text\":\"partial\"}\n\n")}

	deltas := collect(parseSSEStream(context.Background(), body, parseTestLine))

	if len(deltas) != 2 {
		t.Fatalf("expected content delta plus error delta, got %+v", deltas)
	}
	if deltas[0].Content != "partial" {
		t.Errorf("unexpected content: %+v", deltas[0])
	}
	// A broken stream terminates with an error delta, not a clean Done, so
	// consumers never mistake the truncated text for a completed response.
	if deltas[1].Err == nil {
		t.Fatal("broken stream must terminate with an error delta")
	}
	if deltas[1].Done {
		t.Error("error delta must not claim completion")
	}
	if !errors.Is(deltas[1].Err, domain.ErrVendorCall) {
		t.Errorf("expected ErrVendorCall, got %v", deltas[1].Err)
	}
}

func TestParseSSEStreamContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	body := io.NopCloser(strings.NewReader("data: {\"text\":\"a\"}\n\ndata: {\"text\":\"b\"}\n\n"))
	deltas := collect(parseSSEStream(ctx, body, parseTestLine))

	if len(deltas) != 0 {
		t.Fatalf("cancelled stream should yield nothing, got %+v", deltas)
	}
}
