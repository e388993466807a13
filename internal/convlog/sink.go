package convlog

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"llm-proxy/internal/domain"
	"llm-proxy/internal/usecase"
)

// Sink persists one streamed assistant response as it arrives. Each Sink is
// single-use: it owns one message row for the lifetime of one stream.
type Sink struct {
	log       *Log
	logger    *slog.Logger
	sessionID string
	messageID string
}

// NewSink creates a sink for one streaming exchange in the given session.
func NewSink(log *Log, sessionID string, logger *slog.Logger) *Sink {
	return &Sink{
		log:       log,
		logger:    logger,
		sessionID: sessionID,
		messageID: uuid.NewString(),
	}
}

// MessageID returns the identifier of the message row this sink writes.
func (s *Sink) MessageID() string { return s.messageID }

// OnChunk implements usecase.StreamSink.
func (s *Sink) OnChunk(ctx context.Context, delta string) error {
	return s.log.AppendChunk(ctx, s.messageID, s.sessionID, domain.RoleAssistant, delta)
}

// OnComplete implements usecase.StreamSink.
func (s *Sink) OnComplete(ctx context.Context, text string, _ domain.Usage) error {
	return s.log.Finalize(ctx, s.messageID, text)
}

// OnError implements usecase.StreamSink. The partial row stays on disk with
// its non-final marker, so interrupted streams remain inspectable.
func (s *Sink) OnError(_ context.Context, err error) {
	s.logger.Warn("stream abandoned, partial response retained",
		"message_id", s.messageID, "session_id", s.sessionID, "error", err)
}

var _ usecase.StreamSink = (*Sink)(nil)
