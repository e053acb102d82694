package sync

import (
	"encoding/json"
	"fmt"
	"strconv"

	domdoc "github.com/calyra/docdex/internal/domain/document"
)

// RawDocument is an untyped incoming document as delivered by ingestion.
// Extractor output is schema-free, so numeric fields may arrive as strings,
// vectors as serialized text, and metadata values as arbitrary scalars.
type RawDocument struct {
	ID         string         `json:"id"`
	FileName   string         `json:"file_name"`
	Category   string         `json:"category,omitempty"`
	Content    string         `json:"content"`
	Confidence any            `json:"confidence,omitempty"`
	Embedding  any            `json:"embedding,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Coerce converts a raw document into the typed schema. Malformed field
// values become null-equivalents and are reported as notes; they never
// reject the document. Identity fields (id, content) still validate hard.
func Coerce(raw *RawDocument) (domdoc.Document, []ItemError, error) {
	doc, err := domdoc.New(raw.ID, raw.FileName, raw.Content)
	if err != nil {
		return domdoc.Document{}, nil, err
	}
	doc.Category = raw.Category

	var notes []ItemError

	if raw.Confidence != nil {
		if v, ok := coerceConfidence(raw.Confidence); ok {
			doc.Confidence = &v
		} else {
			notes = append(notes, ItemError{
				DocumentID: raw.ID,
				Field:      "confidence",
				Message:    fmt.Sprintf("not a number in [0,1]: %v", raw.Confidence),
			})
		}
	}

	if raw.Embedding != nil {
		if vec, ok := coerceVector(raw.Embedding); ok {
			doc.Embedding = vec
		} else {
			notes = append(notes, ItemError{
				DocumentID: raw.ID,
				Field:      "embedding",
				Message:    "not a numeric vector",
			})
		}
	}

	if len(raw.Metadata) > 0 {
		doc.Metadata = make(map[string]string, len(raw.Metadata))
		for k, v := range raw.Metadata {
			s, ok := coerceScalar(v)
			if !ok {
				notes = append(notes, ItemError{
					DocumentID: raw.ID,
					Field:      "metadata." + k,
					Message:    "not a scalar value",
				})
				continue
			}
			doc.Metadata[k] = s
		}
	}

	return doc, notes, nil
}

func coerceConfidence(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if f < 0 || f > 1 {
		return 0, false
	}
	return f, true
}

// coerceVector accepts native float slices, JSON-decoded []any, and a
// serialized vector string like "[0.1, 0.2]".
func coerceVector(v any) ([]float32, bool) {
	switch t := v.(type) {
	case []float32:
		return t, true
	case []float64:
		vec := make([]float32, len(t))
		for i, f := range t {
			vec[i] = float32(f)
		}
		return vec, true
	case []any:
		vec := make([]float32, len(t))
		for i, el := range t {
			f, ok := coerceNumber(el)
			if !ok {
				return nil, false
			}
			vec[i] = float32(f)
		}
		return vec, true
	case string:
		var parsed []float32
		if err := json.Unmarshal([]byte(t), &parsed); err != nil {
			return nil, false
		}
		return parsed, true
	default:
		return nil, false
	}
}

func coerceNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func coerceScalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}
