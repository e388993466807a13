package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-proxy/internal/domain"
)

func newPopulatedIndex() *LocalIndex {
	idx := NewLocalIndex()
	idx.Add(Document{
		ID:      "doc-pricing",
		Name:    "pricing.md",
		Kind:    domain.FragmentText,
		Text:    "Our premium plan costs $20/month and includes priority support.",
		Excerpt: "Our premium plan costs $20/month and includes priority support.",
	})
	idx.Add(Document{
		ID:      "doc-onboarding",
		Name:    "onboarding.md",
		Kind:    domain.FragmentText,
		Text:    "New customers start with the free plan.",
		Excerpt: "New customers start with the free plan.",
	})
	idx.Add(Document{
		ID:   "doc-diagram",
		Name: "pricing-diagram.png",
		Kind: domain.FragmentImage,
	})
	return idx
}

func TestLocalIndexSearchRanking(t *testing.T) {
	idx := newPopulatedIndex()

	frags, err := idx.Search(context.Background(), "premium plan pricing", SearchLimit)
	require.NoError(t, err)
	require.NotEmpty(t, frags)

	// pricing.md matches two terms and must outrank the single-term matches.
	assert.Equal(t, "pricing.md", frags[0].Name)

	for i := 1; i < len(frags); i++ {
		assert.GreaterOrEqual(t, frags[i-1].Relevance, frags[i].Relevance,
			"results must be ordered by descending relevance")
	}
	for _, f := range frags {
		assert.GreaterOrEqual(t, f.Relevance, 0.0)
		assert.LessOrEqual(t, f.Relevance, 1.0)
	}
}

func TestLocalIndexSearchImageMatchesOnName(t *testing.T) {
	idx := newPopulatedIndex()

	frags, err := idx.Search(context.Background(), "diagram", SearchLimit)
	require.NoError(t, err)
	require.Len(t, frags, 1)

	assert.Equal(t, "pricing-diagram.png", frags[0].Name)
	assert.Equal(t, domain.FragmentImage, frags[0].Kind)
	assert.Empty(t, frags[0].Excerpt, "image fragments carry no excerpt")
}

func TestLocalIndexSearchEmptyQuery(t *testing.T) {
	idx := newPopulatedIndex()

	for _, q := range []string{"", "   ", "\t\n"} {
		frags, err := idx.Search(context.Background(), q, SearchLimit)
		require.NoError(t, err)
		assert.Empty(t, frags, "query %q must yield nothing", q)
	}
}

func TestLocalIndexSearchExcludesZeroScores(t *testing.T) {
	idx := newPopulatedIndex()

	frags, err := idx.Search(context.Background(), "zebra", SearchLimit)
	require.NoError(t, err)
	assert.Empty(t, frags)
}

func TestLocalIndexSearchLimit(t *testing.T) {
	idx := NewLocalIndex()
	for _, id := range []string{"a", "b", "c", "d"} {
		idx.Add(Document{ID: id, Name: id + ".txt", Kind: domain.FragmentText, Text: "shared topic"})
	}

	frags, err := idx.Search(context.Background(), "topic", 2)
	require.NoError(t, err)
	assert.Len(t, frags, 2)

	// Equal scores keep first-encountered order.
	assert.Equal(t, "a", frags[0].ID)
	assert.Equal(t, "b", frags[1].ID)
}

func TestLocalIndexRelevanceCappedAtOne(t *testing.T) {
	idx := NewLocalIndex()
	idx.Add(Document{ID: "x", Name: "x.txt", Kind: domain.FragmentText, Text: "alpha beta"})

	frags, err := idx.Search(context.Background(), "alpha beta", SearchLimit)
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Equal(t, 1.0, frags[0].Relevance)
}

func TestLocalIndexRemove(t *testing.T) {
	idx := newPopulatedIndex()
	require.Equal(t, 3, idx.Len())

	require.NoError(t, idx.Remove("doc-pricing"))
	assert.Equal(t, 2, idx.Len())

	err := idx.Remove("doc-pricing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
