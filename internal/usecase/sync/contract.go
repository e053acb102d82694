package sync

import (
	"context"
	"time"

	domdoc "github.com/calyra/docdex/internal/domain/document"
)

// PendingLister reads documents awaiting indexing from the document store.
type PendingLister interface {
	ListPending(ctx context.Context, limit int) ([]domdoc.Document, error)
}

// StatusWriter records the indexing outcome for a document.
type StatusWriter interface {
	UpdateIndexing(
		ctx context.Context, id string, status domdoc.Status,
		indexedAt *time.Time, embedding []float32,
		errorMessage string, retryCount int,
	) error
}

// BulkIndexer writes a batch of records into the search index.
type BulkIndexer interface {
	BulkUpsert(ctx context.Context, docs []domdoc.Document) error
}

// Embedder computes a vector for a text, or nil when unavailable.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ItemError describes a single document failure inside a batch.
type ItemError struct {
	DocumentID string `json:"document_id"`
	Field      string `json:"field,omitempty"`
	Message    string `json:"message"`
}

// Report summarizes a sync run.
type Report struct {
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Errors    []ItemError `json:"errors,omitempty"`
}

func (r *Report) merge(other Report) {
	r.Succeeded += other.Succeeded
	r.Failed += other.Failed
	r.Errors = append(r.Errors, other.Errors...)
}
