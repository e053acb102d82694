package result

import "time"

// Result is a single search hit. It is assembled per query and never persisted.
type Result struct {
	DocumentID string
	FileName   string
	Category   string
	Snippet    string

	// KeywordScore and SemanticScore are nil when the corresponding
	// subsearch did not rank the document.
	KeywordScore  *float64
	SemanticScore *float64
	CombinedScore float64

	Metadata map[string]string

	// EmbeddingPresent and IndexedAt expose the store/index consistency
	// window so callers can detect degraded answers.
	EmbeddingPresent bool
	IndexedAt        *time.Time

	// CreatedAt is carried for recency tie-breaking, not exposed over the wire.
	CreatedAt time.Time
}

// Float is a pointer helper for optional scores.
func Float(v float64) *float64 { return &v }
