package domain

import "context"

// Embedder is the shared text vectorization contract between layers.
// Implementations may fail; callers that must not fail wrap the embedder
// with usecase/embedding.Lenient.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HealthChecker verifies embedding backend availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
