// Package sync moves documents from the document store into the search
// index: coercion, embedding, bulk upsert with retries, status writeback.
package sync

import (
	"context"
	"fmt"
	"runtime"
	stdsync "sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	domdoc "github.com/calyra/docdex/internal/domain/document"
	"github.com/calyra/docdex/internal/metrics"
)

// Pipeline defaults.
const (
	DefaultBatchSize   = 100
	DefaultRetryCount  = 3
	DefaultBackoffBase = 200 * time.Millisecond

	// maxLoggedErrors caps per-batch error logging so a poisoned batch
	// cannot flood the log.
	maxLoggedErrors = 5
)

// Service is the sync pipeline.
type Service struct {
	store  PendingLister
	status StatusWriter
	index  BulkIndexer
	embed  Embedder

	pool        *ants.Pool
	batchSize   int
	retryCount  int
	backoffBase time.Duration
	logger      *zap.Logger
}

// Option configures the pipeline.
type Option func(*Service)

// WithBatchSize bounds how many documents one batch carries.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithRetry configures bulk-write retries: attempts beyond the first
// and the initial backoff interval.
func WithRetry(count int, base time.Duration) Option {
	return func(s *Service) {
		if count >= 0 {
			s.retryCount = count
		}
		if base > 0 {
			s.backoffBase = base
		}
	}
}

// New creates a sync pipeline. embedConcurrency bounds concurrent calls to
// the embedding backend within a batch; 0 derives it from CPU count.
func New(
	store PendingLister, status StatusWriter, index BulkIndexer, embed Embedder,
	embedConcurrency int, logger *zap.Logger, opts ...Option,
) (*Service, error) {
	if embedConcurrency <= 0 {
		embedConcurrency = runtime.NumCPU()
		if embedConcurrency < 1 {
			embedConcurrency = 1
		}
	}

	pool, err := ants.NewPool(embedConcurrency)
	if err != nil {
		return nil, fmt.Errorf("create embed pool: %w", err)
	}

	s := &Service{
		store:       store,
		status:      status,
		index:       index,
		embed:       embed,
		pool:        pool,
		batchSize:   DefaultBatchSize,
		retryCount:  DefaultRetryCount,
		backoffBase: DefaultBackoffBase,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Release frees the worker pool. The pipeline must not be used afterwards.
func (s *Service) Release() {
	s.pool.Release()
}

// Run drains pending documents from the store in batches until none remain.
// Failed documents stay listed for the next run, so a page that makes no
// progress ends this run instead of re-listing the same batch.
func (s *Service) Run(ctx context.Context) (Report, error) {
	var total Report

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		docs, err := s.store.ListPending(ctx, s.batchSize)
		if err != nil {
			return total, fmt.Errorf("list pending: %w", err)
		}
		if len(docs) == 0 {
			return total, nil
		}

		report := s.SyncBatch(ctx, docs)
		total.merge(report)

		// A page with zero successes would be listed again unchanged:
		// failed documents sort back to the front. Stop and leave the
		// batch to a later run.
		if report.Succeeded == 0 {
			return total, nil
		}

		// A short final page means the store is drained.
		if len(docs) < s.batchSize {
			return total, nil
		}
	}
}

// SyncBatch indexes one batch of documents. A document with no embedding
// gets one from the backend when possible; an embedding failure degrades
// the document to keyword-only instead of failing it. The bulk write is
// retried as a whole, and the store status of every document is updated to
// the batch outcome regardless of individual embedding results.
func (s *Service) SyncBatch(ctx context.Context, docs []domdoc.Document) Report {
	if len(docs) == 0 {
		return Report{}
	}

	start := time.Now()
	defer func() {
		metrics.SyncBatchDuration.Observe(time.Since(start).Seconds())
	}()

	s.embedMissing(ctx, docs)

	if err := s.bulkUpsertWithRetry(ctx, docs); err != nil {
		return s.recordBatchFailure(ctx, docs, err)
	}
	return s.recordBatchSuccess(ctx, docs)
}

// embedMissing fills in vectors for documents that lack one, with bounded
// concurrency against the embedding backend. The embedder is lenient, so a
// backend outage leaves vectors nil and the batch proceeds.
func (s *Service) embedMissing(ctx context.Context, docs []domdoc.Document) {
	var wg stdsync.WaitGroup

	for i := range docs {
		if docs[i].EmbeddingPresent() {
			continue
		}

		doc := &docs[i]
		wg.Add(1)
		if err := s.pool.Submit(func() {
			defer wg.Done()
			vec, _ := s.embed.Embed(ctx, doc.Content)
			doc.Embedding = vec
		}); err != nil {
			// Pool released or overloaded: embed inline rather than skip.
			vec, _ := s.embed.Embed(ctx, doc.Content)
			doc.Embedding = vec
			wg.Done()
		}
	}

	wg.Wait()
}

func (s *Service) bulkUpsertWithRetry(ctx context.Context, docs []domdoc.Document) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = s.backoffBase

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if attempt > 1 {
			metrics.SyncBatchRetriesTotal.Inc()
		}
		if err := s.index.BulkUpsert(ctx, docs); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(s.retryCount+1)),
	)
	return err
}

func (s *Service) recordBatchSuccess(ctx context.Context, docs []domdoc.Document) Report {
	now := time.Now().UTC()
	var report Report

	for i := range docs {
		d := &docs[i]
		if err := s.status.UpdateIndexing(
			ctx, d.ID, domdoc.StatusIndexed, &now, d.Embedding, "", 0,
		); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, ItemError{
				DocumentID: d.ID,
				Field:      "status",
				Message:    err.Error(),
			})
			continue
		}

		report.Succeeded++
		if d.EmbeddingPresent() {
			metrics.SyncDocumentsTotal.WithLabelValues("indexed").Inc()
		} else {
			metrics.SyncDocumentsTotal.WithLabelValues("degraded").Inc()
		}
	}

	s.logBatch(report, len(docs))
	return report
}

// recordBatchFailure marks every document in a failed batch so the next
// run retries it, and logs a bounded sample of the errors.
func (s *Service) recordBatchFailure(ctx context.Context, docs []domdoc.Document, cause error) Report {
	report := Report{Failed: len(docs)}

	for i := range docs {
		d := &docs[i]
		report.Errors = append(report.Errors, ItemError{
			DocumentID: d.ID,
			Field:      "index",
			Message:    cause.Error(),
		})
		metrics.SyncDocumentsTotal.WithLabelValues("failed").Inc()

		if err := s.status.UpdateIndexing(
			ctx, d.ID, domdoc.StatusFailed, nil, nil, cause.Error(), d.RetryCount+1,
		); err != nil {
			s.logger.Warn("Failed to record document failure",
				zap.String("document_id", d.ID),
				zap.Error(err),
			)
		}
	}

	logged := report.Errors
	if len(logged) > maxLoggedErrors {
		logged = logged[:maxLoggedErrors]
	}
	for _, e := range logged {
		s.logger.Error("Document sync failed",
			zap.String("document_id", e.DocumentID),
			zap.String("field", e.Field),
			zap.String("error", e.Message),
		)
	}
	s.logger.Error("Batch sync failed",
		zap.Int("batch_size", len(docs)),
		zap.Int("retries", s.retryCount),
		zap.Error(cause),
	)

	return report
}

func (s *Service) logBatch(report Report, batchSize int) {
	s.logger.Info("Batch synced",
		zap.Int("batch_size", batchSize),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
	)
}
