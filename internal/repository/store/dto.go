package store

import (
	"encoding/json"
	"time"

	domdoc "github.com/calyra/docdex/internal/domain/document"
)

// jsonDoc is the persisted JSON shape of a document record.
type jsonDoc struct {
	FileName     string            `json:"file_name"`
	Category     string            `json:"category,omitempty"`
	Content      string            `json:"content"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Confidence   *float64          `json:"confidence,omitempty"`
	Embedding    []float32         `json:"embedding,omitempty"`
	Status       string            `json:"status"`
	IndexedAt    *time.Time        `json:"indexed_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	ErrorMessage string            `json:"error_message,omitempty"`
	RetryCount   int               `json:"retry_count,omitempty"`
}

func toJSONDoc(d *domdoc.Document) jsonDoc {
	return jsonDoc{
		FileName:     d.FileName,
		Category:     d.Category,
		Content:      d.Content,
		Metadata:     d.Metadata,
		Confidence:   d.Confidence,
		Embedding:    d.Embedding,
		Status:       string(d.Status),
		IndexedAt:    d.IndexedAt,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		ErrorMessage: d.ErrorMessage,
		RetryCount:   d.RetryCount,
	}
}

func (j *jsonDoc) toDomain(id string) domdoc.Document {
	status := domdoc.Status(j.Status)
	if !status.IsValid() {
		status = domdoc.StatusPending
	}
	return domdoc.Document{
		ID:           id,
		FileName:     j.FileName,
		Category:     j.Category,
		Content:      j.Content,
		Metadata:     j.Metadata,
		Confidence:   j.Confidence,
		Embedding:    j.Embedding,
		Status:       status,
		IndexedAt:    j.IndexedAt,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		ErrorMessage: j.ErrorMessage,
		RetryCount:   j.RetryCount,
	}
}

// parseJSONGetResult unwraps a JSONPath "$" response, which arrives as a
// one-element array.
func parseJSONGetResult(id string, raw []byte) (domdoc.Document, bool) {
	var docs []jsonDoc
	if err := json.Unmarshal(raw, &docs); err != nil || len(docs) == 0 {
		return domdoc.Document{}, false
	}
	return docs[0].toDomain(id), true
}
