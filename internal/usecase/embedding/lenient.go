// Package embedding wraps the embedding provider with the policies the
// indexing pipeline needs: input truncation and failure tolerance.
package embedding

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/calyra/docdex/internal/domain"
	"github.com/calyra/docdex/internal/metrics"
)

// DefaultMaxChars is the truncation limit applied to embedding input.
const DefaultMaxChars = 8000

// Lenient wraps an Embedder so that indexing can never be blocked by the
// provider: oversized input is truncated silently and provider failures
// yield a nil vector instead of an error. Callers that need failures
// surfaced (query embedding) use the inner embedder directly.
type Lenient struct {
	inner    domain.Embedder
	maxChars int
	logger   *zap.Logger
}

// NewLenient wraps an embedder with truncation and error swallowing.
// A maxChars of 0 falls back to DefaultMaxChars.
func NewLenient(inner domain.Embedder, maxChars int, logger *zap.Logger) *Lenient {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Lenient{
		inner:    inner,
		maxChars: maxChars,
		logger:   logger,
	}
}

// Embed implements domain.Embedder. It never returns an error: any provider
// failure is logged and reported as a nil vector, which downstream treats as
// "embedding absent".
func (l *Lenient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	if len(runes) > l.maxChars {
		metrics.EmbeddingTruncationsTotal.Inc()
		l.logger.Debug("Truncated embedding input",
			zap.Int("original_chars", len(runes)),
			zap.Int("max_chars", l.maxChars),
		)
		text = string(runes[:l.maxChars])
	}

	start := time.Now()

	vec, err := l.inner.Embed(ctx, text)
	if err != nil {
		l.logger.Warn("Embedding failed, continuing without vector",
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return nil, nil
	}

	return vec, nil
}
