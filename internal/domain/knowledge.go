package domain

// Fragment kinds.
const (
	FragmentText  = "text"
	FragmentImage = "image"
)

// Fragment is a scored excerpt or reference returned by a knowledge search.
// Produced fresh per query and not retained beyond the call.
type Fragment struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	Excerpt   string  `json:"excerpt,omitempty"` // absent for images
	Relevance float64 `json:"relevance"`         // in [0,1]
}

// FragmentRef is the summary of a fragment handed back to callers alongside
// a completion. It deliberately omits the excerpt.
type FragmentRef struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	Relevance float64 `json:"relevance"`
}

// Ref returns the caller-facing summary of the fragment.
func (f Fragment) Ref() FragmentRef {
	return FragmentRef{ID: f.ID, Name: f.Name, Kind: f.Kind, Relevance: f.Relevance}
}
