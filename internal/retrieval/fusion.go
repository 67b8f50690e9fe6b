package retrieval

import (
	"sort"
	"strings"

	"github.com/tessera-ai/tessera/internal/chunking"
	"github.com/tessera-ai/tessera/internal/domain"
)

// rrfK dampens the weight of top ranks so a single first-place vote cannot
// dominate an item that both paths ranked well.
const rrfK = 60

// fuse merges the two ranked lists with reciprocal rank fusion. Each list
// contributes 1/(rrfK+rank) per chunk; chunks found by both paths sum their
// contributions. Ordering is fully deterministic: fused score, then raw dense
// similarity, then ingestion recency (newer first), then chunk ID.
func fuse(sparse, dense []domain.RetrievedChunk) []domain.RetrievedChunk {
	type entry struct {
		chunk domain.RetrievedChunk
		score float64
	}
	byID := make(map[string]*entry, len(sparse)+len(dense))

	accumulate := func(list []domain.RetrievedChunk, isDense bool) {
		for rank, chunk := range list {
			contribution := 1.0 / float64(rrfK+rank+1)
			e, ok := byID[chunk.ChunkID]
			if !ok {
				e = &entry{chunk: chunk}
				byID[chunk.ChunkID] = e
			}
			e.score += contribution
			if isDense {
				e.chunk.DenseScore = chunk.Score
				e.chunk.Embedding = chunk.Embedding
			}
		}
	}
	accumulate(sparse, false)
	accumulate(dense, true)

	fused := make([]domain.RetrievedChunk, 0, len(byID))
	for _, e := range byID {
		e.chunk.Score = e.score
		fused = append(fused, e.chunk)
	}

	sort.Slice(fused, func(i, j int) bool {
		a, b := fused[i], fused[j]
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
	return fused
}

// dedupe drops chunks whose embeddings are near-identical to a higher-ranked
// survivor. Chunks without embeddings (sparse-only) are always kept.
func dedupe(chunks []domain.RetrievedChunk, threshold float64) []domain.RetrievedChunk {
	if threshold <= 0 || len(chunks) < 2 {
		return chunks
	}
	kept := make([]domain.RetrievedChunk, 0, len(chunks))
	for _, candidate := range chunks {
		duplicate := false
		if len(candidate.Embedding) > 0 {
			for _, survivor := range kept {
				if len(survivor.Embedding) == 0 {
					continue
				}
				if chunking.CosineSimilarity(candidate.Embedding, survivor.Embedding) > threshold {
					duplicate = true
					break
				}
			}
		}
		if !duplicate {
			kept = append(kept, candidate)
		}
	}
	return kept
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "how": {}, "in": {}, "is": {}, "it": {},
	"of": {}, "on": {}, "or": {}, "that": {}, "the": {}, "this": {}, "to": {},
	"was": {}, "what": {}, "when": {}, "where": {}, "which": {}, "who": {},
	"why": {}, "will": {}, "with": {},
}

// keywordQuery strips stopwords and punctuation so the full-text path sees
// content terms rather than question scaffolding.
func keywordQuery(query string) string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !isWordRune(r)
	})
	keep := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, skip := stopwords[f]; skip {
			continue
		}
		keep = append(keep, f)
	}
	if len(keep) == 0 {
		// All stopwords: fall back to the raw query rather than matching
		// nothing.
		return strings.TrimSpace(query)
	}
	return strings.Join(keep, " ")
}

func isWordRune(r rune) bool {
	return r == '-' || r == '_' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r > 127
}
