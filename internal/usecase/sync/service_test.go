package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"go.uber.org/zap"

	domdoc "github.com/calyra/docdex/internal/domain/document"
	"github.com/calyra/docdex/internal/metrics"
	"github.com/calyra/docdex/internal/usecase/embedding"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSyncMetrics()
	m.Run()
}

type mockLister struct {
	pages [][]domdoc.Document
	calls int
}

func (m *mockLister) ListPending(_ context.Context, _ int) ([]domdoc.Document, error) {
	if m.calls >= len(m.pages) {
		return nil, nil
	}
	page := m.pages[m.calls]
	m.calls++
	return page, nil
}

type statusUpdate struct {
	id           string
	status       domdoc.Status
	indexedAt    *time.Time
	embedding    []float32
	errorMessage string
	retryCount   int
}

type mockStatus struct {
	mu      stdsync.Mutex
	updates []statusUpdate
	err     error
}

func (m *mockStatus) UpdateIndexing(
	_ context.Context, id string, status domdoc.Status,
	indexedAt *time.Time, embedding []float32,
	errorMessage string, retryCount int,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.updates = append(m.updates, statusUpdate{
		id: id, status: status, indexedAt: indexedAt,
		embedding: embedding, errorMessage: errorMessage, retryCount: retryCount,
	})
	return nil
}

func (m *mockStatus) byID() map[string]statusUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]statusUpdate, len(m.updates))
	for _, u := range m.updates {
		out[u.id] = u
	}
	return out
}

type mockIndex struct {
	mu       stdsync.Mutex
	calls    int
	failures int // fail this many leading calls
	batches  [][]domdoc.Document
}

func (m *mockIndex) BulkUpsert(_ context.Context, docs []domdoc.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.failures {
		return errors.New("index write timeout")
	}
	cp := make([]domdoc.Document, len(docs))
	copy(cp, docs)
	m.batches = append(m.batches, cp)
	return nil
}

// flakyEmbedder fails for a configured set of document contents.
type flakyEmbedder struct {
	mu      stdsync.Mutex
	failFor map[string]bool
}

func (f *flakyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[text] {
		return nil, errors.New("backend saturated")
	}
	return []float32{1, 0}, nil
}

func newService(t *testing.T, lister PendingLister, status StatusWriter, index BulkIndexer, embed Embedder, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithRetry(2, time.Millisecond)}, opts...)
	svc, err := New(lister, status, index,
		embedding.NewLenient(embed, 1000, zap.NewNop()),
		4, zap.NewNop(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(svc.Release)
	return svc
}

func pendingDocs(n int) []domdoc.Document {
	docs := make([]domdoc.Document, n)
	for i := range docs {
		docs[i], _ = domdoc.New(fmt.Sprintf("doc-%03d", i), "f.md", fmt.Sprintf("content %d", i))
	}
	return docs
}

// Embedding failures degrade documents to keyword-only but every document
// in the batch still ends up indexed.
func TestSyncBatch_DegradedIndexing(t *testing.T) {
	docs := pendingDocs(100)
	failing := map[string]bool{}
	for i := 0; i < 5; i++ {
		failing[docs[i*20].Content] = true
	}

	status := &mockStatus{}
	index := &mockIndex{}
	svc := newService(t, nil, status, index, &flakyEmbedder{failFor: failing})

	report := svc.SyncBatch(context.Background(), docs)

	if report.Succeeded != 100 || report.Failed != 0 {
		t.Fatalf("report = %+v, want 100 succeeded", report)
	}

	updates := status.byID()
	if len(updates) != 100 {
		t.Fatalf("status updates = %d, want 100", len(updates))
	}

	embedded := 0
	for id, u := range updates {
		if u.status != domdoc.StatusIndexed {
			t.Fatalf("doc %s status = %s, want indexed", id, u.status)
		}
		if u.indexedAt == nil {
			t.Fatalf("doc %s has no indexed_at", id)
		}
		if len(u.embedding) > 0 {
			embedded++
		}
	}
	if embedded != 95 {
		t.Errorf("embedded docs = %d, want 95", embedded)
	}
}

func TestSyncBatch_RetriesBulkWrite(t *testing.T) {
	docs := pendingDocs(3)
	status := &mockStatus{}
	index := &mockIndex{failures: 2}
	svc := newService(t, nil, status, index, &flakyEmbedder{})

	report := svc.SyncBatch(context.Background(), docs)

	if report.Succeeded != 3 {
		t.Fatalf("report = %+v, want success after retries", report)
	}
	if index.calls != 3 {
		t.Errorf("bulk upsert calls = %d, want 3 (two failures, one success)", index.calls)
	}
}

func TestSyncBatch_ExhaustedRetriesMarksFailed(t *testing.T) {
	docs := pendingDocs(4)
	status := &mockStatus{}
	index := &mockIndex{failures: 100}
	svc := newService(t, nil, status, index, &flakyEmbedder{})

	report := svc.SyncBatch(context.Background(), docs)

	if report.Succeeded != 0 || report.Failed != 4 {
		t.Fatalf("report = %+v, want 4 failed", report)
	}
	if len(report.Errors) != 4 {
		t.Fatalf("errors = %d, want one per document", len(report.Errors))
	}
	// WithRetry(2, ...) allows the initial attempt plus two retries.
	if index.calls != 3 {
		t.Errorf("bulk upsert calls = %d, want 3", index.calls)
	}

	for id, u := range status.byID() {
		if u.status != domdoc.StatusFailed {
			t.Fatalf("doc %s status = %s, want failed", id, u.status)
		}
		if u.errorMessage == "" {
			t.Errorf("doc %s has no error message", id)
		}
		if u.retryCount != 1 {
			t.Errorf("doc %s retry count = %d, want 1", id, u.retryCount)
		}
	}
}

func TestSyncBatch_KeepsExistingEmbeddings(t *testing.T) {
	docs := pendingDocs(2)
	docs[0].Embedding = []float32{9, 9}

	embed := &flakyEmbedder{}
	status := &mockStatus{}
	index := &mockIndex{}
	svc := newService(t, nil, status, index, embed)

	if report := svc.SyncBatch(context.Background(), docs); report.Succeeded != 2 {
		t.Fatalf("report = %+v", report)
	}

	u := status.byID()["doc-000"]
	if len(u.embedding) != 2 || u.embedding[0] != 9 {
		t.Errorf("existing embedding replaced: %v", u.embedding)
	}
}

func TestSyncBatch_EmptyBatch(t *testing.T) {
	svc := newService(t, nil, &mockStatus{}, &mockIndex{}, &flakyEmbedder{})
	if report := svc.SyncBatch(context.Background(), nil); report.Succeeded != 0 || report.Failed != 0 {
		t.Fatalf("report = %+v, want zero", report)
	}
}

func TestRun_DrainsAllPages(t *testing.T) {
	lister := &mockLister{pages: [][]domdoc.Document{
		pendingDocs(2),
		pendingDocs(1),
	}}
	status := &mockStatus{}
	index := &mockIndex{}
	svc := newService(t, lister, status, index, &flakyEmbedder{}, WithBatchSize(2))

	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Succeeded != 3 {
		t.Errorf("succeeded = %d, want 3", report.Succeeded)
	}
	// Second page is short, so no third ListPending round-trip.
	if lister.calls != 2 {
		t.Errorf("ListPending calls = %d, want 2", lister.calls)
	}
}

// repoLister mimics the document store: failed documents stay listed, so a
// wholly failed page comes back unchanged on the next ListPending call.
type repoLister struct {
	docs  []domdoc.Document
	calls int
}

func (l *repoLister) ListPending(_ context.Context, limit int) ([]domdoc.Document, error) {
	l.calls++
	page := l.docs
	if limit > 0 && len(page) > limit {
		page = page[:limit]
	}
	cp := make([]domdoc.Document, len(page))
	copy(cp, page)
	return cp, nil
}

// A persistently failing index must end the run after one full page instead
// of re-listing and retrying the same batch forever.
func TestRun_StopsWhenPageMakesNoProgress(t *testing.T) {
	lister := &repoLister{docs: pendingDocs(2)}
	status := &mockStatus{}
	index := &mockIndex{failures: 1000}
	svc := newService(t, lister, status, index, &flakyEmbedder{}, WithBatchSize(2))

	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Succeeded != 0 || report.Failed != 2 {
		t.Fatalf("report = %+v, want 2 failed", report)
	}
	if lister.calls != 1 {
		t.Errorf("ListPending calls = %d, want 1", lister.calls)
	}

	for id, u := range status.byID() {
		if u.status != domdoc.StatusFailed {
			t.Fatalf("doc %s status = %s, want failed", id, u.status)
		}
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := newService(t, &mockLister{pages: [][]domdoc.Document{pendingDocs(1)}},
		&mockStatus{}, &mockIndex{}, &flakyEmbedder{})

	if _, err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
