// Package index maintains the derived search view of the document corpus.
// Records are keyed by document ID, so every write is an idempotent upsert
// and the view converges no matter how often a batch is replayed.
package index

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/calyra/docdex/internal/db"
	domdoc "github.com/calyra/docdex/internal/domain/document"
)

// Index naming and schema constants.
const (
	// DefaultKeyPrefix namespaces index record keys.
	DefaultKeyPrefix = "docdex:"

	indexSuffix = "idx"

	// BM25 field weights: file name and category outrank body content.
	fileNameWeight = 5.0
	categoryWeight = 3.0
)

// store is the consumer interface for index operations (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	Del(ctx context.Context, key string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchText(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// HNSWConfig tunes the vector index build.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo is the search index adapter.
type Repo struct {
	store     store
	prefix    string
	vectorDim int
	hnsw      HNSWConfig
}

// New creates a search index repository for vectors of the given dimension.
func New(s store, keyPrefix string, vectorDim int) *Repo {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Repo{store: s, prefix: keyPrefix, vectorDim: vectorDim}
}

// WithHNSW overrides HNSW build parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	r.hnsw = cfg
	return r
}

// EnsureIndex creates the FT index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.indexName())
	if err != nil {
		return fmt.Errorf("probe index: %w", err)
	}
	if exists {
		return nil
	}

	def, err := db.NewIndex(r.indexName()).
		Prefix(r.recordKey("")).
		Text(fieldFileName, fileNameWeight).
		Text(fieldCategoryText, categoryWeight).
		Text(fieldContent, 0).
		Tag(fieldCategory).
		Numeric(fieldConfidence).
		Numeric(fieldCreatedAt).
		Numeric(fieldIndexedAt).
		Numeric(fieldEmbeddingPresent).
		VectorHNSW(fieldEmbedding, r.vectorDim, r.hnsw.M, r.hnsw.EFConstruct).
		Build()
	if err != nil {
		return fmt.Errorf("build index definition: %w", err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// BulkUpsert writes all records in one pipelined round-trip, keyed by
// document ID. Documents without an embedding are indexed keyword-only.
// Records replace rather than merge: a re-ingested document that lost its
// vector or category must not keep the old values in the index.
func (r *Repo) BulkUpsert(ctx context.Context, docs []domdoc.Document) error {
	if len(docs) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, len(docs))
	for i := range docs {
		items[i] = db.HashSetItem{
			Key:     r.recordKey(docs[i].ID),
			Fields:  recordFields(&docs[i]),
			Replace: true,
		}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("bulk upsert %d records: %w", len(docs), err)
	}
	return nil
}

// Delete removes a record from the index.
func (r *Repo) Delete(ctx context.Context, id string) error {
	if err := r.store.Del(ctx, r.recordKey(id)); err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}

// SearchKeyword runs a BM25 search. Field weights in the schema rank file
// name and category matches above body matches; query operators pass through.
func (r *Repo) SearchKeyword(ctx context.Context, query, category string, topK int) ([]Hit, error) {
	sr, err := r.store.SearchText(ctx, &db.TextQuery{
		IndexName:    r.indexName(),
		Query:        query,
		Category:     category,
		TopK:         topK,
		ReturnFields: hitReturnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return parseHits(sr, r.recordKey("")), nil
}

// SearchSemantic runs a KNN search over records that carry a vector.
// Records without an embedding are absent from the vector index and are
// therefore excluded, not scored as zero.
func (r *Repo) SearchSemantic(ctx context.Context, vector []float32, category string, topK int) ([]Hit, error) {
	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName(),
		Category:     category,
		Vector:       vector,
		K:            topK,
		ReturnFields: hitReturnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	return parseHits(sr, r.recordKey("")), nil
}

// Count returns the number of indexed records.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n, err := r.store.SearchCount(ctx, r.indexName(), "*")
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

func (r *Repo) indexName() string {
	return r.prefix + indexSuffix
}

func (r *Repo) recordKey(id string) string {
	return r.prefix + "rec:" + id
}

func recordFields(d *domdoc.Document) map[string]string {
	fields := map[string]string{
		fieldFileName:  d.FileName,
		fieldContent:   d.Content,
		fieldCreatedAt: strconv.FormatInt(d.CreatedAt.Unix(), 10),
		fieldMetadata:  encodeMetadata(d.Metadata),
	}

	if d.Category != "" {
		fields[fieldCategory] = d.Category
		fields[fieldCategoryText] = d.Category
	}
	if d.Confidence != nil {
		fields[fieldConfidence] = strconv.FormatFloat(*d.Confidence, 'g', -1, 64)
	}
	if d.IndexedAt != nil {
		fields[fieldIndexedAt] = strconv.FormatInt(d.IndexedAt.Unix(), 10)
	}

	if d.EmbeddingPresent() {
		fields[fieldEmbeddingPresent] = "1"
		fields[fieldEmbedding] = vectorToBytes(d.Embedding)
	} else {
		fields[fieldEmbeddingPresent] = "0"
	}

	return fields
}
