package retrieval

import (
	"sort"
	"strings"

	"github.com/tessera-ai/tessera/internal/domain"
)

// LexicalReranker rescores the fused head by blending the normalized fusion
// score with query-term overlap against the chunk text. Fusion only sees the
// ranks the two paths produced; the overlap component pulls chunks that
// actually mention the query's terms back above ones ranked on vector
// proximity alone.
type LexicalReranker struct {
	fusionWeight  float64
	overlapWeight float64
}

func NewLexicalReranker() *LexicalReranker {
	return &LexicalReranker{fusionWeight: 0.7, overlapWeight: 0.3}
}

func (r *LexicalReranker) Rerank(query string, fused []domain.RetrievedChunk, topN int) []domain.RetrievedChunk {
	if len(fused) == 0 {
		return fused
	}
	if topN > 0 && len(fused) > topN {
		fused = fused[:topN]
	}

	maxScore := fused[0].Score
	for _, c := range fused {
		if c.Score > maxScore {
			maxScore = c.Score
		}
	}
	if maxScore == 0 {
		maxScore = 1
	}

	terms := queryTerms(query)
	ranked := make([]domain.RetrievedChunk, len(fused))
	copy(ranked, fused)
	for i := range ranked {
		normalized := ranked[i].Score / maxScore
		overlap := termOverlap(terms, ranked[i].Text)
		ranked[i].Score = r.fusionWeight*normalized + r.overlapWeight*overlap
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.DenseScore != b.DenseScore {
			return a.DenseScore > b.DenseScore
		}
		if !a.IngestedAt.Equal(b.IngestedAt) {
			return a.IngestedAt.After(b.IngestedAt)
		}
		return a.ChunkID < b.ChunkID
	})
	return ranked
}

func queryTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !isWordRune(r)
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, skip := stopwords[f]; skip {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

// termOverlap is the fraction of query terms present in the text.
func termOverlap(terms []string, text string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}
