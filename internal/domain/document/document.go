package document

import (
	"fmt"
	"regexp"
	"time"

	"github.com/calyra/docdex/internal/domain"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Status is the indexing lifecycle state of a document.
type Status string

// Indexing status values.
const (
	// StatusPending means the document has not been written to the search index yet.
	StatusPending Status = "pending"
	// StatusIndexed means the document is present in the search index.
	// An indexed document may still lack an embedding (degraded mode).
	StatusIndexed Status = "indexed"
	// StatusFailed means the last sync attempt could not write the document.
	StatusFailed Status = "failed"
)

// IsValid checks if the status is one of the supported values.
func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusIndexed || s == StatusFailed
}

// Document is the authoritative record of one ingested file.
// Content and Metadata are written by external ingestion/extraction;
// Embedding, Status, IndexedAt, ErrorMessage and RetryCount are owned
// by the sync pipeline.
type Document struct {
	ID       string
	FileName string
	Category string // empty when uncategorized
	Content  string

	// Metadata is the open extractor output, flattened to scalar strings.
	Metadata map[string]string

	// Confidence is the extractor confidence in [0,1], nil when unknown.
	Confidence *float64

	// Embedding is nil until the embedding backend has produced a vector.
	Embedding []float32

	Status       Status
	IndexedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ErrorMessage string
	RetryCount   int
}

// New validates and creates a pending Document.
// ID: ^[a-zA-Z0-9_-]+$, 1-256 chars. Content must be non-empty.
func New(id, fileName, content string) (Document, error) {
	if id == "" {
		return Document{}, fmt.Errorf("document ID is required: %w", domain.ErrInvalidDocument)
	}
	if len(id) > 256 {
		return Document{}, fmt.Errorf("document ID too long (max 256): %w", domain.ErrInvalidDocument)
	}
	if !idRegex.MatchString(id) {
		return Document{}, fmt.Errorf("document ID must be alphanumeric with underscores and hyphens: %w", domain.ErrInvalidDocument)
	}
	if content == "" {
		return Document{}, fmt.Errorf("content is required: %w", domain.ErrInvalidDocument)
	}

	now := time.Now().UTC()
	return Document{
		ID:        id,
		FileName:  fileName,
		Content:   content,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// EmbeddingPresent reports whether the document carries a vector.
func (d *Document) EmbeddingPresent() bool {
	return len(d.Embedding) > 0
}
