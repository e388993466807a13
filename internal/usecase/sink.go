package usecase

import (
	"context"

	"llm-proxy/internal/domain"
)

// StreamSink receives streaming output as it arrives, in addition to the
// caller's chunk channel. Implementations persist or relay the stream;
// a sink error never interrupts the stream, it is logged and the stream
// continues.
type StreamSink interface {
	// OnChunk is called once per content delta, in arrival order.
	OnChunk(ctx context.Context, delta string) error
	// OnComplete is called once after the final delta with the assembled
	// response text and whatever usage the vendor reported.
	OnComplete(ctx context.Context, text string, usage domain.Usage) error
	// OnError is called instead of OnComplete when the stream is abandoned
	// before completion.
	OnError(ctx context.Context, err error)
}

// NopSink discards everything. Useful when no persistence is configured.
type NopSink struct{}

func (NopSink) OnChunk(context.Context, string) error { return nil }

func (NopSink) OnComplete(context.Context, string, domain.Usage) error { return nil }

func (NopSink) OnError(context.Context, error) {}

var _ StreamSink = NopSink{}
