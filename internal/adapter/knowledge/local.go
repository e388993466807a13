package knowledge

import (
	"context"
	"strings"
	"sync"

	"llm-proxy/internal/domain"
)

// Document is a single indexed document in the local backend.
type Document struct {
	ID      string
	Name    string
	Kind    string // domain.FragmentText | domain.FragmentImage
	Text    string // extracted searchable text; empty for images and opaque formats
	Excerpt string // first 500 characters of Text
	Width   int    // image dimensions, zero for text documents
	Height  int
}

// LocalIndex is the local-filesystem-backed knowledge index. Document text
// is extracted at ingestion time; searches only read the in-memory index.
// Concurrent readers are safe; mutation takes the write lock.
type LocalIndex struct {
	mu    sync.RWMutex
	docs  map[string]Document
	order []string // insertion order, for deterministic tie-breaking
}

// NewLocalIndex creates an empty local index.
func NewLocalIndex() *LocalIndex {
	return &LocalIndex{docs: make(map[string]Document)}
}

// Add inserts or updates a document.
func (idx *LocalIndex) Add(doc Document) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.docs[doc.ID]; !exists {
		idx.order = append(idx.order, doc.ID)
	}
	idx.docs[doc.ID] = doc
}

// Remove deletes a document by identifier. A second remove of the same
// identifier reports not-found.
func (idx *LocalIndex) Remove(id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.docs[id]; !ok {
		return domain.NewDomainError("LocalIndex.Remove", domain.ErrNotFound, id)
	}
	delete(idx.docs, id)
	for i, oid := range idx.order {
		if oid == id {
			idx.order = append(idx.order[:i], idx.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of indexed documents.
func (idx *LocalIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// Search implements Searcher. Documents with extracted text match on that
// text; documents without (images, opaque formats) match on their name.
func (idx *LocalIndex) Search(_ context.Context, query string, limit int) ([]domain.Fragment, error) {
	terms := tokenizeQuery(query)
	if len(terms) == 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var candidates []scoredFragment
	for _, id := range idx.order {
		doc := idx.docs[id]

		searchable := strings.ToLower(doc.Text)
		if searchable == "" {
			searchable = strings.ToLower(doc.Name)
		}

		score := scoreText(searchable, terms)
		if score == 0 {
			continue
		}

		frag := domain.Fragment{
			ID:   doc.ID,
			Name: doc.Name,
			Kind: doc.Kind,
		}
		if doc.Kind == domain.FragmentText {
			frag.Excerpt = doc.Excerpt
		}
		candidates = append(candidates, scoredFragment{frag: frag, score: score})
	}

	return rank(candidates, len(terms), limit), nil
}

// Compile-time interface check.
var _ Searcher = (*LocalIndex)(nil)
