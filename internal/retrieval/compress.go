package retrieval

import (
	"strings"

	"github.com/tessera-ai/tessera/internal/chunking"
	"github.com/tessera-ai/tessera/internal/domain"
)

// compressChunks trims oversized chunk texts to a window of sentences around
// the ones matching the query, in place. Chunks already within budget pass
// through untouched so most results keep their full context.
func compressChunks(query string, chunks []domain.RetrievedChunk, budgetTokens int) {
	terms := queryTerms(query)
	for i := range chunks {
		if chunking.EstimateTokens(chunks[i].Text) <= budgetTokens {
			continue
		}
		if compressed := sentenceWindow(chunks[i].Text, terms, budgetTokens); compressed != "" {
			chunks[i].Text = compressed
		}
	}
}

// sentenceWindow keeps sentences mentioning a query term plus one neighbor on
// each side, up to the token budget. Without any match it keeps the leading
// sentences instead.
func sentenceWindow(text string, terms []string, budgetTokens int) string {
	sentences := chunking.SplitSentences(text)
	if len(sentences) <= 1 {
		return ""
	}

	relevant := make([]bool, len(sentences))
	anyHit := false
	for i, s := range sentences {
		if termOverlap(terms, s) > 0 {
			relevant[i] = true
			anyHit = true
		}
	}
	if anyHit {
		expanded := make([]bool, len(sentences))
		for i := range sentences {
			if relevant[i] {
				expanded[i] = true
				if i > 0 {
					expanded[i-1] = true
				}
				if i < len(sentences)-1 {
					expanded[i+1] = true
				}
			}
		}
		relevant = expanded
	} else {
		for i := range relevant {
			relevant[i] = true
		}
	}

	var picked []string
	used := 0
	for i, s := range sentences {
		if !relevant[i] {
			continue
		}
		tokens := chunking.EstimateTokens(s)
		if used+tokens > budgetTokens && len(picked) > 0 {
			break
		}
		picked = append(picked, s)
		used += tokens
	}
	if len(picked) == 0 {
		return ""
	}
	return strings.Join(picked, " ")
}
