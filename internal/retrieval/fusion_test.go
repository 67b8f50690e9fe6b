package retrieval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-ai/tessera/internal/domain"
)

func chunk(id string, score float64) domain.RetrievedChunk {
	return domain.RetrievedChunk{
		ChunkID:    id,
		DocumentID: "doc-1",
		Text:       "text for " + id,
		Score:      score,
	}
}

func TestFuse_ChunkInBothPathsWins(t *testing.T) {
	sparse := []domain.RetrievedChunk{chunk("a", 0.9), chunk("b", 0.5)}
	dense := []domain.RetrievedChunk{chunk("b", 0.8), chunk("c", 0.7)}

	fused := fuse(sparse, dense)
	require.Len(t, fused, 3)

	// "b" appears in both lists and accumulates both contributions
	assert.Equal(t, "b", fused[0].ChunkID)
	// Raw path scores are replaced by the fused score
	assert.InDelta(t, 1.0/62.0+1.0/61.0, fused[0].Score, 1e-9)
}

func TestFuse_KeepsDenseScoreAndEmbedding(t *testing.T) {
	dense := []domain.RetrievedChunk{{ChunkID: "a", Score: 0.83, Embedding: []float32{1, 0}}}

	fused := fuse(nil, dense)
	require.Len(t, fused, 1)
	assert.InDelta(t, 0.83, fused[0].DenseScore, 1e-9)
	assert.Equal(t, []float32{1, 0}, fused[0].Embedding)
}

func TestFuse_TieBreakDeterministic(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	// Same rank position in disjoint lists gives identical fused scores.
	sparse := []domain.RetrievedChunk{{ChunkID: "z", IngestedAt: older}}
	dense := []domain.RetrievedChunk{{ChunkID: "a", IngestedAt: older}}

	fused := fuse(sparse, dense)
	require.Len(t, fused, 2)
	// Equal score, equal dense score (zero), equal time: chunk ID ascending
	assert.Equal(t, "a", fused[0].ChunkID)

	// Newer ingestion wins before the ID comparison
	sparse[0].IngestedAt = newer
	fused = fuse(sparse, dense)
	assert.Equal(t, "z", fused[0].ChunkID)
}

func TestFuse_StableAcrossRuns(t *testing.T) {
	sparse := []domain.RetrievedChunk{chunk("a", 0), chunk("b", 0), chunk("c", 0)}
	dense := []domain.RetrievedChunk{chunk("d", 0), chunk("e", 0), chunk("f", 0)}

	first := fuse(sparse, dense)
	for i := 0; i < 20; i++ {
		again := fuse(sparse, dense)
		require.Equal(t, first, again)
	}
}

func TestDedupe_DropsNearIdenticalEmbeddings(t *testing.T) {
	chunks := []domain.RetrievedChunk{
		{ChunkID: "a", Embedding: []float32{1, 0}},
		{ChunkID: "b", Embedding: []float32{0.999, 0.01}},
		{ChunkID: "c", Embedding: []float32{0, 1}},
	}

	kept := dedupe(chunks, 0.95)
	require.Len(t, kept, 2)
	assert.Equal(t, "a", kept[0].ChunkID)
	assert.Equal(t, "c", kept[1].ChunkID)
}

func TestDedupe_SparseOnlyChunksAlwaysKept(t *testing.T) {
	chunks := []domain.RetrievedChunk{
		{ChunkID: "a", Embedding: []float32{1, 0}},
		{ChunkID: "b"},
		{ChunkID: "c"},
	}

	kept := dedupe(chunks, 0.95)
	assert.Len(t, kept, 3)
}

func TestKeywordQuery(t *testing.T) {
	assert.Equal(t, "revenue target atlas project",
		keywordQuery("What is the revenue target for the Atlas project?"))
	assert.Equal(t, "co-founders", keywordQuery("who are the co-founders?"))
	// All stopwords falls back to the raw query
	assert.Equal(t, "what is the", keywordQuery("what is the"))
}

func TestLexicalReranker_OverlapPullsMatchingChunkUp(t *testing.T) {
	fused := []domain.RetrievedChunk{
		{ChunkID: "a", Score: 0.032, Text: "unrelated filler content"},
		{ChunkID: "b", Score: 0.031, Text: "the quarterly revenue target is twelve million"},
	}

	ranked := NewLexicalReranker().Rerank("quarterly revenue target", fused, 10)
	require.Len(t, ranked, 2)
	assert.Equal(t, "b", ranked[0].ChunkID)
}

func TestLexicalReranker_TruncatesToTopN(t *testing.T) {
	fused := []domain.RetrievedChunk{
		{ChunkID: "a", Score: 3},
		{ChunkID: "b", Score: 2},
		{ChunkID: "c", Score: 1},
	}

	ranked := NewLexicalReranker().Rerank("anything", fused, 2)
	assert.Len(t, ranked, 2)
}

func TestLexicalReranker_Empty(t *testing.T) {
	assert.Empty(t, NewLexicalReranker().Rerank("q", nil, 5))
}

func TestTermOverlap(t *testing.T) {
	terms := []string{"revenue", "target"}
	assert.Equal(t, 1.0, termOverlap(terms, "the Revenue Target is known"))
	assert.Equal(t, 0.5, termOverlap(terms, "revenue only"))
	assert.Equal(t, 0.0, termOverlap(nil, "anything"))
}
