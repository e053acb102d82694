package search

import (
	"context"

	domdoc "github.com/calyra/docdex/internal/domain/document"
	"github.com/calyra/docdex/internal/domain/search/mode"
	"github.com/calyra/docdex/internal/domain/search/result"
	"github.com/calyra/docdex/internal/repository/index"
)

// Indexer is the search index contract the engine queries.
type Indexer interface {
	SearchKeyword(ctx context.Context, query, category string, topK int) ([]index.Hit, error)
	SearchSemantic(ctx context.Context, vector []float32, category string, topK int) ([]index.Hit, error)
}

// Embedder vectorizes the query text. Unlike the indexing path this one
// surfaces failures, so the engine can degrade explicitly.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// StoreScanner reads documents straight from the document store. Used only
// when the search index is unreachable.
type StoreScanner interface {
	ListAll(ctx context.Context, limit int) ([]domdoc.Document, error)
}

// Request carries one search invocation.
type Request struct {
	Query    string
	Mode     mode.Mode
	Category string
	Limit    int

	// Weights are used in hybrid mode only; nil means service default.
	KeywordWeight  *float64
	SemanticWeight *float64
}

// Response is the ranked answer. Degraded is set when the engine had to
// fall back (embedding backend or index unavailable) and the results are
// keyword-only where the caller asked for more.
type Response struct {
	Results  []result.Result
	Mode     mode.Mode
	Degraded bool
}
