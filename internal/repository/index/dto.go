package index

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/calyra/docdex/internal/db"
)

// Hash field names for index records.
const (
	fieldFileName         = "file_name"
	fieldCategory         = "category"
	fieldCategoryText     = "category_text"
	fieldContent          = "content"
	fieldConfidence       = "confidence"
	fieldCreatedAt        = "created_at"
	fieldIndexedAt        = "indexed_at"
	fieldEmbeddingPresent = "embedding_present"
	fieldEmbedding        = "embedding"
	fieldMetadata         = "metadata"
)

// hitReturnFields excludes the raw vector blob from search replies.
var hitReturnFields = []string{
	fieldFileName,
	fieldCategory,
	fieldContent,
	fieldConfidence,
	fieldCreatedAt,
	fieldIndexedAt,
	fieldEmbeddingPresent,
	fieldMetadata,
}

// Hit is a single search match from the index.
type Hit struct {
	DocumentID       string
	Score            float64
	FileName         string
	Category         string
	Content          string
	Confidence       *float64
	Metadata         map[string]string
	EmbeddingPresent bool
	CreatedAt        time.Time
	IndexedAt        *time.Time
}

func parseHits(sr *db.SearchResult, keyPrefix string) []Hit {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}

	hits := make([]Hit, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		h := Hit{
			DocumentID:       strings.TrimPrefix(e.Key, keyPrefix),
			Score:            e.Score,
			FileName:         e.Fields[fieldFileName],
			Category:         e.Fields[fieldCategory],
			Content:          e.Fields[fieldContent],
			Metadata:         decodeMetadata(e.Fields[fieldMetadata]),
			EmbeddingPresent: e.Fields[fieldEmbeddingPresent] == "1",
		}
		if v, err := strconv.ParseFloat(e.Fields[fieldConfidence], 64); err == nil {
			c := v
			h.Confidence = &c
		}
		if ts, err := strconv.ParseInt(e.Fields[fieldCreatedAt], 10, 64); err == nil {
			h.CreatedAt = time.Unix(ts, 0).UTC()
		}
		if ts, err := strconv.ParseInt(e.Fields[fieldIndexedAt], 10, 64); err == nil {
			t := time.Unix(ts, 0).UTC()
			h.IndexedAt = &t
		}
		hits = append(hits, h)
	}
	return hits
}

// encodeMetadata stores the metadata map as a single JSON field so search
// replies stay a fixed field set.
func encodeMetadata(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}

func decodeMetadata(s string) map[string]string {
	if s == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

// vectorToBytes serializes a float32 vector as little-endian bytes,
// matching the FLOAT32 layout the vector index expects.
func vectorToBytes(vec []float32) string {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return string(buf)
}
