package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/calyra/docdex/internal/domain"
	domdoc "github.com/calyra/docdex/internal/domain/document"
)

func testDoc(id string) domdoc.Document {
	doc, _ := domdoc.New(id, id+".pdf", "Some content for "+id+".")
	return doc
}

func TestUpsertGet_RoundTrip(t *testing.T) {
	repo := New(newMemStore(), "")
	ctx := context.Background()

	doc := testDoc("d1")
	doc.Category = "invoice"
	doc.Metadata = map[string]string{"vendor": "acme"}
	conf := 0.92
	doc.Confidence = &conf
	doc.Embedding = []float32{0.1, 0.2, 0.3}

	created, err := repo.Upsert(ctx, &doc)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !created {
		t.Error("expected created=true on first upsert")
	}

	got, err := repo.Get(ctx, "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.FileName != "d1.pdf" || got.Category != "invoice" {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if got.Confidence == nil || *got.Confidence != 0.92 {
		t.Errorf("confidence lost: %v", got.Confidence)
	}
	if len(got.Embedding) != 3 {
		t.Errorf("embedding lost: %v", got.Embedding)
	}
	if got.Status != domdoc.StatusPending {
		t.Errorf("expected pending status, got %s", got.Status)
	}

	created, err = repo.Upsert(ctx, &doc)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created {
		t.Error("expected created=false on overwrite")
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := New(newMemStore(), "")
	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestDelete_NotFound(t *testing.T) {
	repo := New(newMemStore(), "")
	err := repo.Delete(context.Background(), "missing")
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestListPending_FiltersAndOrders(t *testing.T) {
	repo := New(newMemStore(), "")
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		doc := testDoc(id)
		if _, err := repo.Upsert(ctx, &doc); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}

	indexed := testDoc("z")
	indexed.Status = domdoc.StatusIndexed
	if _, err := repo.Upsert(ctx, &indexed); err != nil {
		t.Fatalf("upsert indexed: %v", err)
	}

	failed := testDoc("f")
	failed.Status = domdoc.StatusFailed
	if _, err := repo.Upsert(ctx, &failed); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	pending, err := repo.ListPending(ctx, 0)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}

	// failed documents are retried, indexed ones are not
	wantIDs := []string{"a", "b", "c", "f"}
	if len(pending) != len(wantIDs) {
		t.Fatalf("expected %d pending, got %d", len(wantIDs), len(pending))
	}
	for i, want := range wantIDs {
		if pending[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, pending[i].ID)
		}
	}

	limited, err := repo.ListPending(ctx, 2)
	if err != nil {
		t.Fatalf("list pending limited: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected limit 2, got %d", len(limited))
	}
}

func TestUpdateIndexing(t *testing.T) {
	repo := New(newMemStore(), "")
	ctx := context.Background()

	doc := testDoc("d1")
	if _, err := repo.Upsert(ctx, &doc); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	vec := []float32{1, 2}
	if err := repo.UpdateIndexing(ctx, "d1", domdoc.StatusIndexed, &now, vec, "", 0); err != nil {
		t.Fatalf("update indexing: %v", err)
	}

	got, err := repo.Get(ctx, "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domdoc.StatusIndexed {
		t.Errorf("expected indexed, got %s", got.Status)
	}
	if got.IndexedAt == nil || !got.IndexedAt.Equal(now) {
		t.Errorf("indexed_at not persisted: %v", got.IndexedAt)
	}
	if len(got.Embedding) != 2 {
		t.Errorf("embedding not persisted: %v", got.Embedding)
	}
	if got.Content != doc.Content {
		t.Error("ingestion-owned content was clobbered")
	}
}

func TestUpdateIndexing_FailureKeepsEmbeddingAbsent(t *testing.T) {
	repo := New(newMemStore(), "")
	ctx := context.Background()

	doc := testDoc("d1")
	if _, err := repo.Upsert(ctx, &doc); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := repo.UpdateIndexing(ctx, "d1", domdoc.StatusFailed, nil, nil, "bulk write timeout", 2); err != nil {
		t.Fatalf("update indexing: %v", err)
	}

	got, _ := repo.Get(ctx, "d1")
	if got.Status != domdoc.StatusFailed || got.RetryCount != 2 {
		t.Errorf("failure outcome not recorded: %+v", got)
	}
	if got.ErrorMessage != "bulk write timeout" {
		t.Errorf("error message not recorded: %q", got.ErrorMessage)
	}
	if got.EmbeddingPresent() {
		t.Error("no embedding should be present")
	}
}
