// Package store persists the authoritative document records.
// The search index is a derived view; this repository is the source of truth.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/calyra/docdex/internal/db"
	"github.com/calyra/docdex/internal/domain"
	domdoc "github.com/calyra/docdex/internal/domain/document"
)

// DefaultKeyPrefix namespaces all document keys.
const DefaultKeyPrefix = "docdex:"

// jsonStore is the consumer interface for document records (ISP).
type jsonStore interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	JSONGetMulti(ctx context.Context, keys []string, path string) ([][]byte, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo implements the Document Store contract over a JSON-capable key store.
type Repo struct {
	store  jsonStore
	prefix string
}

// New creates a document store repository.
func New(s jsonStore, keyPrefix string) *Repo {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Repo{store: s, prefix: keyPrefix}
}

// Upsert creates or updates a document record. Returns true if created.
func (r *Repo) Upsert(ctx context.Context, doc *domdoc.Document) (bool, error) {
	key := r.docKey(doc.ID)

	data, err := json.Marshal(toJSONDoc(doc))
	if err != nil {
		return false, fmt.Errorf("marshal document: %w", err)
	}

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check exists %s: %w", key, err)
	}

	if err := r.store.JSONSet(ctx, key, "$", data); err != nil {
		return false, fmt.Errorf("json.set %s: %w", key, err)
	}

	return !exists, nil
}

// Get returns a document by ID.
func (r *Repo) Get(ctx context.Context, id string) (domdoc.Document, error) {
	key := r.docKey(id)
	raw, err := r.store.JSONGet(ctx, key, "$")
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domdoc.Document{}, domain.ErrDocumentNotFound
		}
		return domdoc.Document{}, fmt.Errorf("json.get %s: %w", key, err)
	}

	doc, ok := parseJSONGetResult(id, raw)
	if !ok {
		return domdoc.Document{}, fmt.Errorf("corrupt record %s: %w", key, domain.ErrInvalidDocument)
	}
	return doc, nil
}

// Delete removes a document record.
func (r *Repo) Delete(ctx context.Context, id string) error {
	key := r.docKey(id)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists %s: %w", key, err)
	}
	if !exists {
		return domain.ErrDocumentNotFound
	}

	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// ListPending returns up to limit documents awaiting indexing, ordered by ID
// so interrupted runs resume deterministically. limit <= 0 means no bound.
func (r *Repo) ListPending(ctx context.Context, limit int) ([]domdoc.Document, error) {
	docs, err := r.list(ctx)
	if err != nil {
		return nil, err
	}

	pending := docs[:0]
	for _, d := range docs {
		if d.Status == domdoc.StatusPending || d.Status == domdoc.StatusFailed {
			pending = append(pending, d)
		}
	}
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// ListAll returns up to limit document records, ordered by ID. Used by the
// keyword fallback path when the search index is unreachable. limit <= 0
// means no bound.
func (r *Repo) ListAll(ctx context.Context, limit int) ([]domdoc.Document, error) {
	docs, err := r.list(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// UpdateIndexing records the sync outcome for a document without touching
// ingestion-owned fields.
func (r *Repo) UpdateIndexing(
	ctx context.Context, id string,
	status domdoc.Status, indexedAt *time.Time,
	embedding []float32, errorMessage string, retryCount int,
) error {
	doc, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	doc.Status = status
	doc.IndexedAt = indexedAt
	if embedding != nil {
		doc.Embedding = embedding
	}
	doc.ErrorMessage = errorMessage
	doc.RetryCount = retryCount
	doc.UpdatedAt = time.Now().UTC()

	if _, err := r.Upsert(ctx, &doc); err != nil {
		return fmt.Errorf("update indexing %s: %w", id, err)
	}
	return nil
}

func (r *Repo) list(ctx context.Context) ([]domdoc.Document, error) {
	keys, err := r.store.Scan(ctx, r.docKey("*"))
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)

	raws, err := r.store.JSONGetMulti(ctx, keys, "$")
	if err != nil {
		return nil, fmt.Errorf("fetch documents: %w", err)
	}

	docs := make([]domdoc.Document, 0, len(keys))
	for i, raw := range raws {
		if raw == nil {
			continue // deleted between SCAN and fetch
		}
		id := strings.TrimPrefix(keys[i], r.docKey(""))
		if doc, ok := parseJSONGetResult(id, raw); ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (r *Repo) docKey(id string) string {
	return r.prefix + "doc:" + id
}
