// Package chi is the HTTP transport: routing, wire DTOs, and the mapping
// from domain sentinels to status codes.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/calyra/docdex/internal/domain"
	domdoc "github.com/calyra/docdex/internal/domain/document"
	logpkg "github.com/calyra/docdex/internal/logger"
	healthuc "github.com/calyra/docdex/internal/usecase/health"
	searchuc "github.com/calyra/docdex/internal/usecase/search"
	syncuc "github.com/calyra/docdex/internal/usecase/sync"
)

// DocumentStore is the document CRUD contract the server needs.
type DocumentStore interface {
	Upsert(ctx context.Context, doc *domdoc.Document) (bool, error)
	Get(ctx context.Context, id string) (domdoc.Document, error)
	Delete(ctx context.Context, id string) error
}

// IndexDeleter removes a document's record from the search index.
type IndexDeleter interface {
	Delete(ctx context.Context, id string) error
}

// Searcher runs queries.
type Searcher interface {
	Search(ctx context.Context, req *searchuc.Request) (*searchuc.Response, error)
}

// Syncer drains pending documents into the search index.
type Syncer interface {
	Run(ctx context.Context) (syncuc.Report, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API server.
type Server struct {
	docs          DocumentStore
	index         IndexDeleter
	search        Searcher
	sync          Syncer
	health        HealthChecker
	logger        *zap.Logger
	schema        syncuc.MetadataSchema
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	docs DocumentStore, index IndexDeleter,
	search Searcher, sync Syncer, health HealthChecker,
	logger *zap.Logger,
) *Server {
	s := &Server{
		docs:   docs,
		index:  index,
		search: search,
		sync:   sync,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, codeDocumentNotFound),
		sentinelHandler(domain.ErrInvalidDocument, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProvider),
		sentinelHandler(domain.ErrIndexUnavailable, http.StatusServiceUnavailable, codeSearchIndexUnavailable),
	}
	return s
}

// WithMetadataSchema enables per-category metadata validation on document
// writes. A nil schema validates nothing.
func (s *Server) WithMetadataSchema(schema syncuc.MetadataSchema) *Server {
	s.schema = schema
	return s
}

// Routes mounts the API on a router.
func (s *Server) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/sync", s.handleSync)
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", s.handleUpsertDocument)
			r.Get("/{id}", s.handleGetDocument)
			r.Delete("/{id}", s.handleDeleteDocument)
		})
	})
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
}

// handleSearch handles POST /api/v1/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	resp, err := s.search.Search(r.Context(), &searchuc.Request{
		Query:          req.Query,
		Mode:           modeFromWire(req.Mode),
		Category:       req.Category,
		Limit:          req.Limit,
		KeywordWeight:  req.KeywordWeight,
		SemanticWeight: req.SemanticWeight,
	})
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponseToWire(resp))
}

// handleUpsertDocument handles POST /api/v1/documents. The body is the raw
// ingestion shape; malformed optional fields are coerced, reported as
// warnings, and never reject the document.
func (s *Server) handleUpsertDocument(w http.ResponseWriter, r *http.Request) {
	var raw syncuc.RawDocument
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	doc, warnings, err := syncuc.Coerce(&raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}
	warnings = append(warnings, s.schema.Check(doc.ID, doc.Category, doc.Metadata)...)

	created, err := s.docs.Upsert(r.Context(), &doc)
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		w.Header().Set("Location", "/api/v1/documents/"+doc.ID)
	}

	writeJSON(w, status, upsertResponse{
		Document: documentToWire(&doc),
		Warnings: warnings,
	})
}

// handleGetDocument handles GET /api/v1/documents/{id}.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.docs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, documentToWire(&doc))
}

// handleDeleteDocument handles DELETE /api/v1/documents/{id}. The index
// record goes first so a failed store delete leaves no orphaned hit.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.index.Delete(r.Context(), id); err != nil {
		s.logger.Warn("Failed to delete index record",
			zap.String("document_id", id),
			zap.Error(err),
		)
	}

	if err := s.docs.Delete(r.Context(), id); err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleSync handles POST /api/v1/sync: a synchronous drain of pending
// documents, returning the per-document outcome report.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	report, err := s.sync.Run(r.Context())
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrDocumentNotFound,
		domain.ErrInvalidDocument,
		domain.ErrInvalidQuery,
		domain.ErrRateLimited,
		domain.ErrEmbeddingProviderError,
		domain.ErrIndexUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	log := logpkg.FromContext(ctx, s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
