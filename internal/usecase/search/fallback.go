package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	domdoc "github.com/calyra/docdex/internal/domain/document"
	"github.com/calyra/docdex/internal/domain/search/result"
	"github.com/calyra/docdex/internal/domain/snippet"
)

// scanLimit bounds how much of the store one fallback query may read.
const scanLimit = 10000

// Fallback term-frequency weights mirror the index schema weights.
const (
	scanFileNameWeight = 5
	scanCategoryWeight = 3
	scanContentWeight  = 1
)

// scanKeyword is the last-resort keyword search: a term-frequency scan of
// the document store. It ignores boolean and phrase operators and exists
// only to keep search answering while the index is down.
func (s *Service) scanKeyword(ctx context.Context, req *Request) ([]result.Result, error) {
	docs, err := s.store.ListAll(ctx, scanLimit)
	if err != nil {
		return nil, fmt.Errorf("scan store: %w", err)
	}

	terms := scanTerms(req.Query)
	if len(terms) == 0 {
		return nil, nil
	}

	type scored struct {
		doc   domdoc.Document
		score float64
	}

	var matched []scored
	for _, d := range docs {
		if req.Category != "" && d.Category != req.Category {
			continue
		}
		if sc := scanScore(&d, terms); sc > 0 {
			matched = append(matched, scored{doc: d, score: sc})
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].score != matched[j].score {
			return matched[i].score > matched[j].score
		}
		if !matched[i].doc.CreatedAt.Equal(matched[j].doc.CreatedAt) {
			return matched[i].doc.CreatedAt.After(matched[j].doc.CreatedAt)
		}
		return matched[i].doc.ID < matched[j].doc.ID
	})

	if len(matched) > req.Limit {
		matched = matched[:req.Limit]
	}

	results := make([]result.Result, len(matched))
	for i, m := range matched {
		d := m.doc
		results[i] = result.Result{
			DocumentID:       d.ID,
			FileName:         d.FileName,
			Category:         d.Category,
			Snippet:          snippet.Extract(d.Content, req.Query, s.cfg.SnippetSentences, s.cfg.SnippetMaxLength),
			KeywordScore:     result.Float(m.score),
			CombinedScore:    m.score,
			Metadata:         d.Metadata,
			EmbeddingPresent: d.EmbeddingPresent(),
			IndexedAt:        d.IndexedAt,
			CreatedAt:        d.CreatedAt,
		}
	}
	return results, nil
}

// scanTerms lowercases and splits the query, stripping operator syntax the
// scan cannot honor.
func scanTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `"'()|-`)
		if f != "" {
			terms = append(terms, f)
		}
	}
	return terms
}

func scanScore(d *domdoc.Document, terms []string) float64 {
	fileName := strings.ToLower(d.FileName)
	category := strings.ToLower(d.Category)
	content := strings.ToLower(d.Content)

	var score float64
	for _, t := range terms {
		score += float64(strings.Count(fileName, t) * scanFileNameWeight)
		score += float64(strings.Count(category, t) * scanCategoryWeight)
		score += float64(strings.Count(content, t) * scanContentWeight)
	}
	return score
}
