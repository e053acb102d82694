package search

import (
	"sort"

	"github.com/calyra/docdex/internal/repository/index"
)

// absentRank sorts documents a subsearch did not return after every
// document it did.
const absentRank = 1 << 30

// blended is one union entry with its normalized sub-scores and its rank
// in each subsearch result set.
type blended struct {
	hit           index.Hit
	keywordScore  *float64
	semanticScore *float64
	combined      float64
	kwRank        int
	semRank       int
}

// blend merges the two subsearch result sets. Each set's scores are min-max
// normalized into [0,1] independently, then every document from a positively
// weighted subsearch is scored keywordWeight*kw + semanticWeight*sem,
// treating a missing sub-score as 0. Equal combined scores order by the
// dominant subsearch's own rank, so the weight extremes (1,0) and (0,1)
// reproduce the pure keyword and semantic orderings exactly, ties included.
// Both input slices must already carry their mode's ordering.
func blend(kwHits, semHits []index.Hit, keywordWeight, semanticWeight float64) []blended {
	kwNorm := normalizeScores(kwHits)
	semNorm := normalizeScores(semHits)

	union := make(map[string]*blended, len(kwHits)+len(semHits))
	if keywordWeight > 0 {
		for rank, h := range kwHits {
			union[h.DocumentID] = &blended{hit: h, kwRank: rank, semRank: absentRank}
		}
	}
	if semanticWeight > 0 {
		for rank, h := range semHits {
			if b, seen := union[h.DocumentID]; seen {
				b.semRank = rank
				continue
			}
			union[h.DocumentID] = &blended{hit: h, kwRank: absentRank, semRank: rank}
		}
	}

	out := make([]blended, 0, len(union))
	for id, b := range union {
		if s, ok := kwNorm[id]; ok {
			b.keywordScore = &s
			b.combined += keywordWeight * s
		}
		if s, ok := semNorm[id]; ok {
			b.semanticScore = &s
			b.combined += semanticWeight * s
		}
		out = append(out, *b)
	}

	ranks := func(b *blended) (int, int) {
		if semanticWeight > keywordWeight {
			return b.semRank, b.kwRank
		}
		return b.kwRank, b.semRank
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].combined != out[j].combined {
			return out[i].combined > out[j].combined
		}
		pi, si := ranks(&out[i])
		pj, sj := ranks(&out[j])
		if pi != pj {
			return pi < pj
		}
		if si != sj {
			return si < sj
		}
		return out[i].hit.DocumentID < out[j].hit.DocumentID
	})

	return out
}

// normalizeScores min-max scales a result set's scores into [0,1].
// A set where every score is equal maps to 1 (a lone hit is a full match
// of its own distribution, not a zero).
func normalizeScores(hits []index.Hit) map[string]float64 {
	if len(hits) == 0 {
		return nil
	}

	min, max := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < min {
			min = h.Score
		}
		if h.Score > max {
			max = h.Score
		}
	}

	norm := make(map[string]float64, len(hits))
	for _, h := range hits {
		if max == min {
			norm[h.DocumentID] = 1
			continue
		}
		norm[h.DocumentID] = (h.Score - min) / (max - min)
	}
	return norm
}
