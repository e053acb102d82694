package chi

import (
	"time"

	domdoc "github.com/calyra/docdex/internal/domain/document"
	"github.com/calyra/docdex/internal/domain/search/mode"
	"github.com/calyra/docdex/internal/domain/search/result"
	searchuc "github.com/calyra/docdex/internal/usecase/search"
	syncuc "github.com/calyra/docdex/internal/usecase/sync"
)

// Error codes returned in error responses.
const (
	codeBadRequest             = "bad_request"
	codeValidationFailed       = "validation_failed"
	codeDocumentNotFound       = "document_not_found"
	codeRateLimited            = "rate_limited"
	codeEmbeddingProvider      = "embedding_provider_error"
	codeSearchIndexUnavailable = "search_index_unavailable"
	codeInternalError          = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type searchRequest struct {
	Query          string   `json:"query"`
	Mode           string   `json:"mode,omitempty"`
	Category       string   `json:"category,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	KeywordWeight  *float64 `json:"keyword_weight,omitempty"`
	SemanticWeight *float64 `json:"semantic_weight,omitempty"`
}

type searchResultItem struct {
	DocumentID       string            `json:"document_id"`
	FileName         string            `json:"file_name"`
	Category         string            `json:"category,omitempty"`
	Snippet          string            `json:"snippet"`
	KeywordScore     *float64          `json:"keyword_score,omitempty"`
	SemanticScore    *float64          `json:"semantic_score,omitempty"`
	CombinedScore    float64           `json:"combined_score"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	EmbeddingPresent bool              `json:"embedding_present"`
	IndexedAt        *time.Time        `json:"indexed_at,omitempty"`
}

type searchResponse struct {
	Items    []searchResultItem `json:"items"`
	Total    int                `json:"total"`
	Mode     string             `json:"mode"`
	Degraded bool               `json:"degraded"`
}

type documentResponse struct {
	ID               string            `json:"id"`
	FileName         string            `json:"file_name"`
	Category         string            `json:"category,omitempty"`
	Content          string            `json:"content"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	Confidence       *float64          `json:"confidence,omitempty"`
	Status           string            `json:"status"`
	EmbeddingPresent bool              `json:"embedding_present"`
	IndexedAt        *time.Time        `json:"indexed_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	ErrorMessage     string            `json:"error_message,omitempty"`
}

type upsertResponse struct {
	Document documentResponse   `json:"document"`
	Warnings []syncuc.ItemError `json:"warnings,omitempty"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func modeFromWire(s string) mode.Mode {
	return mode.Mode(s)
}

func searchResultToWire(r *result.Result) searchResultItem {
	return searchResultItem{
		DocumentID:       r.DocumentID,
		FileName:         r.FileName,
		Category:         r.Category,
		Snippet:          r.Snippet,
		KeywordScore:     r.KeywordScore,
		SemanticScore:    r.SemanticScore,
		CombinedScore:    r.CombinedScore,
		Metadata:         r.Metadata,
		EmbeddingPresent: r.EmbeddingPresent,
		IndexedAt:        r.IndexedAt,
	}
}

func searchResponseToWire(resp *searchuc.Response) searchResponse {
	items := make([]searchResultItem, len(resp.Results))
	for i := range resp.Results {
		items[i] = searchResultToWire(&resp.Results[i])
	}
	return searchResponse{
		Items:    items,
		Total:    len(items),
		Mode:     string(resp.Mode),
		Degraded: resp.Degraded,
	}
}

func documentToWire(d *domdoc.Document) documentResponse {
	return documentResponse{
		ID:               d.ID,
		FileName:         d.FileName,
		Category:         d.Category,
		Content:          d.Content,
		Metadata:         d.Metadata,
		Confidence:       d.Confidence,
		Status:           string(d.Status),
		EmbeddingPresent: d.EmbeddingPresent(),
		IndexedAt:        d.IndexedAt,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
		ErrorMessage:     d.ErrorMessage,
	}
}
