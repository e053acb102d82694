// Package search implements the query engine: keyword, semantic, and
// hybrid ranking over the search index, with explicit degraded fallbacks
// when the index or the embedding backend is unreachable.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/calyra/docdex/internal/domain"
	"github.com/calyra/docdex/internal/domain/search/mode"
	"github.com/calyra/docdex/internal/domain/search/result"
	"github.com/calyra/docdex/internal/domain/snippet"
	"github.com/calyra/docdex/internal/metrics"
	"github.com/calyra/docdex/internal/repository/index"
)

// Engine limits.
const (
	DefaultLimit = 10
	MaxLimit     = 100

	DefaultKeywordWeight  = 0.5
	DefaultSemanticWeight = 0.5
)

// Config tunes ranking defaults and snippet extraction.
type Config struct {
	DefaultKeywordWeight  float64
	DefaultSemanticWeight float64
	SnippetSentences      int
	SnippetMaxLength      int
}

// Service is the query engine.
type Service struct {
	idx    Indexer
	embed  Embedder
	store  StoreScanner
	cfg    Config
	logger *zap.Logger
}

// New creates a query engine. Zero config fields fall back to defaults.
func New(idx Indexer, embed Embedder, store StoreScanner, cfg Config, logger *zap.Logger) *Service {
	if cfg.DefaultKeywordWeight <= 0 && cfg.DefaultSemanticWeight <= 0 {
		cfg.DefaultKeywordWeight = DefaultKeywordWeight
		cfg.DefaultSemanticWeight = DefaultSemanticWeight
	}
	if cfg.SnippetSentences <= 0 {
		cfg.SnippetSentences = snippet.DefaultContextSentences
	}
	if cfg.SnippetMaxLength <= 0 {
		cfg.SnippetMaxLength = snippet.DefaultMaxLength
	}
	return &Service{idx: idx, embed: embed, store: store, cfg: cfg, logger: logger}
}

// Search runs one query in the requested mode. The response reports the
// mode actually served: when a richer mode degrades to keyword-only, Mode
// is keyword and Degraded is set rather than returning an error.
func (s *Service) Search(ctx context.Context, req *Request) (*Response, error) {
	if err := s.normalizeRequest(req); err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(string(req.Mode), "error").Inc()
		return nil, err
	}

	var (
		resp *Response
		err  error
	)
	switch req.Mode {
	case mode.Keyword:
		resp, err = s.searchKeyword(ctx, req)
	case mode.Semantic:
		resp, err = s.searchSemantic(ctx, req)
	case mode.Hybrid:
		resp, err = s.searchHybrid(ctx, req)
	default:
		err = fmt.Errorf("unsupported search mode %q: %w", req.Mode, domain.ErrInvalidQuery)
	}

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case resp.Degraded:
		outcome = "degraded"
	}
	metrics.SearchRequestsTotal.WithLabelValues(string(req.Mode), outcome).Inc()

	return resp, err
}

func (s *Service) normalizeRequest(req *Request) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return fmt.Errorf("query is required: %w", domain.ErrInvalidQuery)
	}
	if req.Mode == "" {
		req.Mode = mode.Hybrid
	}
	if !req.Mode.IsValid() {
		return fmt.Errorf("unsupported search mode %q: %w", req.Mode, domain.ErrInvalidQuery)
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	if req.KeywordWeight == nil {
		req.KeywordWeight = result.Float(s.cfg.DefaultKeywordWeight)
	}
	if req.SemanticWeight == nil {
		req.SemanticWeight = result.Float(s.cfg.DefaultSemanticWeight)
	}
	if *req.KeywordWeight < 0 || *req.SemanticWeight < 0 {
		return fmt.Errorf("weights must be non-negative: %w", domain.ErrInvalidQuery)
	}
	return nil
}

func (s *Service) searchKeyword(ctx context.Context, req *Request) (*Response, error) {
	hits, err := s.idx.SearchKeyword(ctx, req.Query, req.Category, req.Limit)
	if err != nil {
		return s.keywordFallback(ctx, req, err)
	}

	sortKeyword(hits)
	results := make([]result.Result, len(hits))
	for i, h := range hits {
		results[i] = s.toResult(h, req.Query)
		results[i].KeywordScore = result.Float(h.Score)
		results[i].CombinedScore = h.Score
	}

	return &Response{Results: results, Mode: mode.Keyword}, nil
}

func (s *Service) searchSemantic(ctx context.Context, req *Request) (*Response, error) {
	vec, err := s.embed.Embed(ctx, req.Query)
	if err != nil {
		return s.degradeToKeyword(ctx, req, err)
	}

	hits, err := s.idx.SearchSemantic(ctx, vec, req.Category, req.Limit)
	if err != nil {
		return s.keywordFallback(ctx, req, err)
	}

	sortSemantic(hits)
	results := make([]result.Result, len(hits))
	for i, h := range hits {
		results[i] = s.toResult(h, req.Query)
		results[i].SemanticScore = result.Float(h.Score)
		results[i].CombinedScore = h.Score
	}

	return &Response{Results: results, Mode: mode.Semantic}, nil
}

func (s *Service) searchHybrid(ctx context.Context, req *Request) (*Response, error) {
	vec, err := s.embed.Embed(ctx, req.Query)
	if err != nil {
		return s.degradeToKeyword(ctx, req, err)
	}

	kwHits, err := s.idx.SearchKeyword(ctx, req.Query, req.Category, req.Limit)
	if err != nil {
		return s.keywordFallback(ctx, req, err)
	}
	semHits, err := s.idx.SearchSemantic(ctx, vec, req.Category, req.Limit)
	if err != nil {
		return s.keywordFallback(ctx, req, err)
	}

	// Blending preserves each subsearch's rank through ties, so the hits
	// must carry their pure-mode ordering first.
	sortKeyword(kwHits)
	sortSemantic(semHits)

	blended := blend(kwHits, semHits, *req.KeywordWeight, *req.SemanticWeight)
	if len(blended) > req.Limit {
		blended = blended[:req.Limit]
	}

	results := make([]result.Result, len(blended))
	for i, b := range blended {
		results[i] = s.toResult(b.hit, req.Query)
		results[i].KeywordScore = b.keywordScore
		results[i].SemanticScore = b.semanticScore
		results[i].CombinedScore = b.combined
	}

	return &Response{Results: results, Mode: mode.Hybrid}, nil
}

// degradeToKeyword serves keyword-only results when the embedding backend
// fails on a semantic or hybrid query.
func (s *Service) degradeToKeyword(ctx context.Context, req *Request, cause error) (*Response, error) {
	s.logger.Warn("Query embedding failed, serving keyword-only results",
		zap.String("mode", string(req.Mode)),
		zap.Error(cause),
	)

	resp, err := s.searchKeyword(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.Degraded = true
	return resp, nil
}

// keywordFallback scans the document store directly when the search index
// is unreachable.
func (s *Service) keywordFallback(ctx context.Context, req *Request, cause error) (*Response, error) {
	s.logger.Warn("Search index unreachable, falling back to store scan",
		zap.String("mode", string(req.Mode)),
		zap.Error(cause),
	)

	results, err := s.scanKeyword(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("index unreachable and store fallback failed: %w: %w",
			domain.ErrIndexUnavailable, err)
	}

	return &Response{Results: results, Mode: mode.Keyword, Degraded: true}, nil
}

func (s *Service) toResult(h index.Hit, query string) result.Result {
	return result.Result{
		DocumentID:       h.DocumentID,
		FileName:         h.FileName,
		Category:         h.Category,
		Snippet:          snippet.Extract(h.Content, query, s.cfg.SnippetSentences, s.cfg.SnippetMaxLength),
		Metadata:         h.Metadata,
		EmbeddingPresent: h.EmbeddingPresent,
		IndexedAt:        h.IndexedAt,
		CreatedAt:        h.CreatedAt,
	}
}

// sortKeyword orders by relevance, then recency, then ID for determinism.
func sortKeyword(hits []index.Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if !hits[i].CreatedAt.Equal(hits[j].CreatedAt) {
			return hits[i].CreatedAt.After(hits[j].CreatedAt)
		}
		return hits[i].DocumentID < hits[j].DocumentID
	})
}

func sortSemantic(hits []index.Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocumentID < hits[j].DocumentID
	})
}
