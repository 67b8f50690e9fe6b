package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-ai/tessera/internal/chunking"
	"github.com/tessera-ai/tessera/internal/domain"
)

func TestCompressChunks_WithinBudgetUntouched(t *testing.T) {
	chunks := []domain.RetrievedChunk{{ChunkID: "a", Text: "short text"}}

	compressChunks("anything", chunks, 256)
	assert.Equal(t, "short text", chunks[0].Text)
}

func TestCompressChunks_KeepsMatchingSentencesWithNeighbors(t *testing.T) {
	text := "Intro sentence with nothing useful. " +
		"The deadline for Atlas is March. " +
		"Another filler line follows here. " +
		strings.Repeat("Padding sentence to push past the budget. ", 100)
	chunks := []domain.RetrievedChunk{{ChunkID: "a", Text: text}}

	compressChunks("atlas deadline", chunks, 40)
	require.NotEqual(t, text, chunks[0].Text)
	assert.Contains(t, chunks[0].Text, "deadline for Atlas")
	// Neighbors on both sides survive
	assert.Contains(t, chunks[0].Text, "Intro sentence")
	assert.Contains(t, chunks[0].Text, "Another filler line")
	assert.LessOrEqual(t, chunking.EstimateTokens(chunks[0].Text), 60)
}

func TestCompressChunks_NoMatchKeepsLeadingSentences(t *testing.T) {
	text := "First sentence here. Second sentence here. " +
		strings.Repeat("Later sentence that will be cut. ", 100)
	chunks := []domain.RetrievedChunk{{ChunkID: "a", Text: text}}

	compressChunks("unrelated query terms", chunks, 12)
	assert.True(t, strings.HasPrefix(chunks[0].Text, "First sentence here."))
	assert.NotContains(t, chunks[0].Text, "will be cut")
}

func TestSentenceWindow_SingleSentenceNotCompressed(t *testing.T) {
	assert.Equal(t, "", sentenceWindow("one long unbroken sentence without terminators", nil, 5))
}
