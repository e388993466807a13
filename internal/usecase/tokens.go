package usecase

import (
	"github.com/pkoukk/tiktoken-go"

	"llm-proxy/internal/domain"
)

// messageTokenOverhead approximates the per-message framing cost of chat
// formats.
const messageTokenOverhead = 4

// TokenEstimator gives a rough prompt-size estimate for debug logging. The
// count uses cl100k_base regardless of vendor, so it is an approximation,
// never an enforcement input.
type TokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTokenEstimator loads the encoder. A load failure degrades to a nil
// estimator whose estimates are zero.
func NewTokenEstimator() *TokenEstimator {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &TokenEstimator{}
	}
	return &TokenEstimator{enc: enc}
}

// Estimate returns the approximate token count of the given messages.
func (e *TokenEstimator) Estimate(messages []domain.Message) int {
	if e == nil || e.enc == nil {
		return 0
	}
	total := 0
	for _, m := range messages {
		total += len(e.enc.Encode(m.PlainText(), nil, nil)) + messageTokenOverhead
	}
	return total
}
