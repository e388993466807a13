// Package knowledge implements keyword retrieval over indexed documents.
// Two interchangeable backends produce the same fragment shape: a local
// in-memory index fed at ingestion time, and a remote object store listed
// fresh on every query.
package knowledge

import (
	"context"
	"sort"
	"strings"

	"llm-proxy/internal/domain"
)

// Default result limits.
const (
	// AugmentLimit is used by the retrieval step that feeds prompt
	// augmentation.
	AugmentLimit = 5
	// SearchLimit is used by the public search surface.
	SearchLimit = 10
)

// Searcher is the knowledge store contract shared by all backends.
type Searcher interface {
	// Search returns fragments ranked by descending relevance, at most
	// limit of them. An empty query yields no fragments, not an error.
	Search(ctx context.Context, query string, limit int) ([]domain.Fragment, error)
}

// tokenizeQuery splits the query by whitespace into lower-cased terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// scoreText counts query terms whose presence is a substring match in the
// lower-cased searchable text.
func scoreText(searchable string, terms []string) int {
	score := 0
	for _, t := range terms {
		if strings.Contains(searchable, t) {
			score++
		}
	}
	return score
}

// scoredFragment pairs a fragment with its raw term-match score.
type scoredFragment struct {
	frag  domain.Fragment
	score int
}

// rank orders candidates by raw score descending (ties keep first-encountered
// order), fills in relevance = min(score/termCount, 1.0), and truncates to
// limit. Zero-score candidates must already be excluded by the caller.
func rank(candidates []scoredFragment, termCount, limit int) []domain.Fragment {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]domain.Fragment, len(candidates))
	for i, c := range candidates {
		frag := c.frag
		frag.Relevance = relevance(c.score, termCount)
		out[i] = frag
	}
	return out
}

func relevance(score, termCount int) float64 {
	if termCount == 0 {
		return 0
	}
	r := float64(score) / float64(termCount)
	if r > 1.0 {
		r = 1.0
	}
	return r
}
