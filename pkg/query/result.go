package query

import (
	"errors"
	"fmt"
	"time"
)

// ErrBackendUnavailable marks a store that failed or timed out during a
// search. It is wrapped in a *BackendError.
var ErrBackendUnavailable = errors.New("backend unavailable")

// ErrUnknownFilter is returned for filter keys neither store can apply.
var ErrUnknownFilter = errors.New("unknown filter")

// Backend names a store.
type Backend string

const (
	BackendRelational Backend = "relational"
	BackendVector     Backend = "vector"
)

// BackendError reports which store failed.
type BackendError struct {
	Backend Backend
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend unavailable: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() []error {
	return []error{ErrBackendUnavailable, e.Err}
}

// FusedResult is one deduplicated hit.
type FusedResult struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author,omitempty"`
	SourceURL   string    `json:"source_url,omitempty"`
	Domain      string    `json:"domain,omitempty"`
	Language    string    `json:"language,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Strategy    string    `json:"strategy,omitempty"`
	TableName   string    `json:"table_name,omitempty"`
	Snippet     string    `json:"snippet,omitempty"`
	Content     string    `json:"content,omitempty"`
	CreatedAt   time.Time `json:"created_at"`

	// Score is the weighted combination of VectorScore and TextScore, both
	// within [0, 1].
	Score       float64 `json:"score"`
	VectorScore float64 `json:"vector_score"`
	TextScore   float64 `json:"text_score"`

	// Sources lists the stores that matched.
	Sources []Backend `json:"sources"`

	// Enriched is false for vector hits described only by their payload.
	Enriched bool `json:"enriched"`
}

// SearchResult is the outcome of a search. Partial is set when one store
// was excluded; its error is in Errors.
type SearchResult struct {
	Results  []FusedResult `json:"results"`
	Partial  bool          `json:"partial"`
	Excluded []Backend     `json:"excluded,omitempty"`
	Errors   []error       `json:"-"`
}
