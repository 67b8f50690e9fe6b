package chunking

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// semanticSplit groups sentences into pieces, breaking where the embedding
// similarity between adjacent sentences drops sharply (a topic shift) or the
// running piece exceeds the token budget.
func (s *Splitter) semanticSplit(ctx context.Context, text string, opts Options) ([]Piece, error) {
	sentences := SplitSentences(text)
	if len(sentences) <= 1 {
		return fixedSplit(text, opts), nil
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, sentences)
	if err != nil {
		return nil, fmt.Errorf("failed to embed sentences: %w", err)
	}
	if len(embeddings) != len(sentences) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d sentences", len(embeddings), len(sentences))
	}

	sims := make([]float64, len(sentences)-1)
	for i := 0; i < len(sims); i++ {
		sims[i] = CosineSimilarity(embeddings[i], embeddings[i+1])
	}
	threshold := breakpointThreshold(sims)

	pieces := make([]Piece, 0, 8)
	var group []string
	groupTokens := 0

	flush := func() {
		if len(group) == 0 {
			return
		}
		joined := strings.Join(group, " ")
		pieces = append(pieces, Piece{Text: joined, TokenCount: EstimateTokens(joined)})

		var carry []string
		carryTokens := 0
		for i := len(group) - 1; i >= 0 && opts.OverlapTokens > 0; i-- {
			tokens := EstimateTokens(group[i])
			if carryTokens+tokens > opts.OverlapTokens {
				break
			}
			carry = append([]string{group[i]}, carry...)
			carryTokens += tokens
		}
		group = carry
		groupTokens = carryTokens
	}

	for i, sentence := range sentences {
		tokens := EstimateTokens(sentence)
		if tokens > opts.MaxTokens {
			// A single sentence over budget is handed to the fixed splitter
			// rather than failing ingestion.
			flush()
			pieces = append(pieces, fixedSplit(sentence, opts)...)
			group = nil
			groupTokens = 0
			continue
		}

		if groupTokens+tokens > opts.MaxTokens {
			flush()
		}
		group = append(group, sentence)
		groupTokens += tokens

		if i < len(sims) && sims[i] < threshold {
			flush()
		}
	}
	if len(group) > 0 {
		joined := strings.Join(group, " ")
		if len(pieces) == 0 || pieces[len(pieces)-1].Text != joined {
			pieces = append(pieces, Piece{Text: joined, TokenCount: EstimateTokens(joined)})
		}
	}

	return pieces, nil
}

// breakpointThreshold marks similarities more than one standard deviation
// below the mean as topic boundaries.
func breakpointThreshold(sims []float64) float64 {
	if len(sims) == 0 {
		return 0
	}
	var sum float64
	for _, s := range sims {
		sum += s
	}
	mean := sum / float64(len(sims))

	var variance float64
	for _, s := range sims {
		variance += (s - mean) * (s - mean)
	}
	std := math.Sqrt(variance / float64(len(sims)))

	return mean - std
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Mismatched or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SplitSentences breaks text on terminal punctuation followed by whitespace.
func SplitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	runes := []rune(text)

	for i, r := range runes {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			atEnd := i == len(runes)-1
			followedBySpace := !atEnd && (runes[i+1] == ' ' || runes[i+1] == '\n')
			if atEnd || followedBySpace {
				if s := strings.TrimSpace(b.String()); s != "" {
					sentences = append(sentences, s)
				}
				b.Reset()
			}
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
