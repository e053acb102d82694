package index

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/calyra/docdex/internal/db"
	domdoc "github.com/calyra/docdex/internal/domain/document"
)

func TestEnsureIndex_CreatesWeightedSchema(t *testing.T) {
	var captured *db.IndexDefinition
	ms := &mockStore{
		indexExistsFn: func(_ context.Context, _ string) (bool, error) { return false, nil },
		createIndexFn: func(_ context.Context, def *db.IndexDefinition) error {
			captured = def
			return nil
		},
	}

	r := New(ms, "docdex:", 1536)
	if err := r.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if captured == nil {
		t.Fatal("expected FT.CREATE to be issued")
	}
	if captured.Name != "docdex:idx" {
		t.Errorf("index name = %q, want docdex:idx", captured.Name)
	}

	weights := map[string]float64{}
	var vectorDim int
	for _, f := range captured.Fields {
		switch f.Type {
		case db.IndexFieldText:
			weights[f.Name] = f.Weight
		case db.IndexFieldVector:
			vectorDim = f.VectorDim
		}
	}
	if weights[fieldFileName] != 5 || weights[fieldCategoryText] != 3 || weights[fieldContent] != 0 {
		t.Errorf("text field weights = %v", weights)
	}
	if vectorDim != 1536 {
		t.Errorf("vector dim = %d, want 1536", vectorDim)
	}
}

func TestEnsureIndex_SkipsWhenPresent(t *testing.T) {
	created := false
	ms := &mockStore{
		indexExistsFn: func(_ context.Context, _ string) (bool, error) { return true, nil },
		createIndexFn: func(_ context.Context, _ *db.IndexDefinition) error {
			created = true
			return nil
		},
	}

	if err := New(ms, "docdex:", 8).EnsureIndex(context.Background()); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if created {
		t.Error("FT.CREATE issued for an existing index")
	}
}

func TestEnsureIndex_ToleratesConcurrentCreate(t *testing.T) {
	ms := &mockStore{
		createIndexFn: func(_ context.Context, _ *db.IndexDefinition) error {
			return db.ErrIndexExists
		},
	}
	if err := New(ms, "docdex:", 8).EnsureIndex(context.Background()); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
}

func TestBulkUpsert_BuildsRecords(t *testing.T) {
	conf := 0.9
	indexedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	docs := []domdoc.Document{
		{
			ID:         "doc-1",
			FileName:   "guide.md",
			Category:   "howto",
			Content:    "body text",
			Metadata:   map[string]string{"lang": "en"},
			Confidence: &conf,
			Embedding:  []float32{0.5, -1},
			CreatedAt:  time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			IndexedAt:  &indexedAt,
		},
		{
			ID:        "doc-2",
			FileName:  "notes.txt",
			Content:   "no vector here",
			CreatedAt: time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
		},
	}

	var items []db.HashSetItem
	ms := &mockStore{
		hsetMultiFn: func(_ context.Context, got []db.HashSetItem) error {
			items = got
			return nil
		},
	}

	if err := New(ms, "docdex:", 2).BulkUpsert(context.Background(), docs); err != nil {
		t.Fatalf("BulkUpsert: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}

	first := items[0]
	if first.Key != "docdex:rec:doc-1" {
		t.Errorf("key = %q", first.Key)
	}
	if first.Fields[fieldEmbeddingPresent] != "1" {
		t.Error("expected embedding_present=1 for doc-1")
	}
	if len(first.Fields[fieldEmbedding]) != 8 {
		t.Errorf("embedding blob length = %d, want 8", len(first.Fields[fieldEmbedding]))
	}
	if first.Fields[fieldCategory] != "howto" || first.Fields[fieldCategoryText] != "howto" {
		t.Error("category should populate both tag and text fields")
	}
	if first.Fields[fieldConfidence] != "0.9" {
		t.Errorf("confidence = %q", first.Fields[fieldConfidence])
	}

	second := items[1]
	if second.Fields[fieldEmbeddingPresent] != "0" {
		t.Error("expected embedding_present=0 for doc-2")
	}
	if _, ok := second.Fields[fieldEmbedding]; ok {
		t.Error("embedding field must be absent without a vector")
	}
	if _, ok := second.Fields[fieldCategory]; ok {
		t.Error("empty category must not be written")
	}
}

// Replaying the same batch produces byte-identical records under the same
// keys, so the index converges regardless of how many times a sync runs.
func TestBulkUpsert_Idempotent(t *testing.T) {
	docs := []domdoc.Document{
		{ID: "a", FileName: "a.md", Content: "alpha", CreatedAt: time.Unix(100, 0)},
		{ID: "b", FileName: "b.md", Content: "beta", CreatedAt: time.Unix(200, 0)},
	}

	var runs [][]db.HashSetItem
	ms := &mockStore{
		hsetMultiFn: func(_ context.Context, got []db.HashSetItem) error {
			runs = append(runs, got)
			return nil
		},
	}
	r := New(ms, "docdex:", 2)

	for i := 0; i < 3; i++ {
		if err := r.BulkUpsert(context.Background(), docs); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	for i := 1; i < len(runs); i++ {
		for j := range runs[0] {
			if runs[i][j].Key != runs[0][j].Key {
				t.Fatalf("run %d key mismatch: %q vs %q", i, runs[i][j].Key, runs[0][j].Key)
			}
			for k, v := range runs[0][j].Fields {
				if runs[i][j].Fields[k] != v {
					t.Fatalf("run %d field %s differs", i, k)
				}
			}
		}
	}
}

// A re-ingested document that lost its embedding must overwrite the whole
// record, not merge into it: a merge would leave the old vector field in the
// hash and keep the document visible to semantic search.
func TestBulkUpsert_ReplacesStaleRecords(t *testing.T) {
	doc := domdoc.Document{
		ID: "doc-1", FileName: "guide.md", Content: "re-ingested, no vector yet",
		CreatedAt: time.Unix(100, 0),
	}

	var items []db.HashSetItem
	ms := &mockStore{
		hsetMultiFn: func(_ context.Context, got []db.HashSetItem) error {
			items = got
			return nil
		},
	}

	if err := New(ms, "docdex:", 2).BulkUpsert(context.Background(), []domdoc.Document{doc}); err != nil {
		t.Fatalf("BulkUpsert: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if !items[0].Replace {
		t.Error("record write must replace the existing hash")
	}
	if _, ok := items[0].Fields[fieldEmbedding]; ok {
		t.Error("embedding field must be absent without a vector")
	}
	if items[0].Fields[fieldEmbeddingPresent] != "0" {
		t.Errorf("embedding_present = %q, want 0", items[0].Fields[fieldEmbeddingPresent])
	}
}

func TestBulkUpsert_EmptyBatchNoop(t *testing.T) {
	ms := &mockStore{
		hsetMultiFn: func(_ context.Context, _ []db.HashSetItem) error {
			t.Fatal("HSetMulti must not be called for an empty batch")
			return nil
		},
	}
	if err := New(ms, "docdex:", 2).BulkUpsert(context.Background(), nil); err != nil {
		t.Fatalf("BulkUpsert: %v", err)
	}
}

func TestSearchKeyword_ParsesHits(t *testing.T) {
	ms := &mockStore{
		searchTextFn: func(_ context.Context, q *db.TextQuery) (*db.SearchResult, error) {
			if q.Query != "error handling" {
				t.Errorf("query = %q", q.Query)
			}
			if q.Category != "howto" {
				t.Errorf("category = %q", q.Category)
			}
			return &db.SearchResult{
				Total: 1,
				Entries: []db.SearchEntry{{
					Key:   "docdex:rec:doc-1",
					Score: 3.5,
					Fields: map[string]string{
						fieldFileName:         "guide.md",
						fieldCategory:         "howto",
						fieldContent:          "on error handling",
						fieldConfidence:       "0.8",
						fieldCreatedAt:        "1700000000",
						fieldIndexedAt:        "1700000100",
						fieldEmbeddingPresent: "1",
						fieldMetadata:         `{"lang":"en"}`,
					},
				}},
			}, nil
		},
	}

	hits, err := New(ms, "docdex:", 2).SearchKeyword(context.Background(), "error handling", "howto", 10)
	if err != nil {
		t.Fatalf("SearchKeyword: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(hits))
	}

	h := hits[0]
	if h.DocumentID != "doc-1" {
		t.Errorf("DocumentID = %q, want doc-1 (key prefix stripped)", h.DocumentID)
	}
	if h.Score != 3.5 {
		t.Errorf("Score = %v", h.Score)
	}
	if h.Confidence == nil || *h.Confidence != 0.8 {
		t.Errorf("Confidence = %v", h.Confidence)
	}
	if !h.EmbeddingPresent {
		t.Error("EmbeddingPresent should be true")
	}
	if h.Metadata["lang"] != "en" {
		t.Errorf("Metadata = %v", h.Metadata)
	}
	if h.IndexedAt == nil || h.IndexedAt.Unix() != 1700000100 {
		t.Errorf("IndexedAt = %v", h.IndexedAt)
	}
	if h.CreatedAt.Unix() != 1700000000 {
		t.Errorf("CreatedAt = %v", h.CreatedAt)
	}
}

func TestSearchSemantic_PropagatesError(t *testing.T) {
	wantErr := errors.New("connection refused")
	ms := &mockStore{
		searchKNNFn: func(_ context.Context, _ *db.KNNQuery) (*db.SearchResult, error) {
			return nil, wantErr
		},
	}

	_, err := New(ms, "docdex:", 2).SearchSemantic(context.Background(), []float32{1, 0}, "", 5)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped %v", err, wantErr)
	}
}

func TestDelete_RemovesRecordKey(t *testing.T) {
	var deleted string
	ms := &mockStore{
		delFn: func(_ context.Context, key string) error {
			deleted = key
			return nil
		},
	}

	if err := New(ms, "docdex:", 2).Delete(context.Background(), "doc-9"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted != "docdex:rec:doc-9" {
		t.Errorf("deleted key = %q", deleted)
	}
}

func TestCount_QueriesWholeIndex(t *testing.T) {
	ms := &mockStore{
		searchCountFn: func(_ context.Context, index, query string) (int, error) {
			if index != "docdex:idx" || query != "*" {
				t.Errorf("count args = %q %q", index, query)
			}
			return 42, nil
		},
	}

	n, err := New(ms, "docdex:", 2).Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 42 {
		t.Errorf("count = %d, want 42", n)
	}
}

func TestSearchSemantic_ExcludesVectorBlobFromReturn(t *testing.T) {
	ms := &mockStore{
		searchKNNFn: func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
			for _, f := range q.ReturnFields {
				if f == fieldEmbedding {
					t.Error("raw embedding must not be returned by searches")
				}
			}
			return &db.SearchResult{}, nil
		},
	}

	if _, err := New(ms, "docdex:", 2).SearchSemantic(context.Background(), []float32{1, 0}, "", 5); err != nil {
		t.Fatalf("SearchSemantic: %v", err)
	}
}
