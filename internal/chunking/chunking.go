package chunking

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode"
)

// Strategy selects how raw text is split into retrieval-sized pieces.
type Strategy string

const (
	StrategyFixed     Strategy = "fixed"
	StrategyRecursive Strategy = "recursive"
	StrategySemantic  Strategy = "semantic"
)

// Options controls splitting for one document.
type Options struct {
	Strategy      Strategy
	MaxTokens     int
	OverlapTokens int
}

// DefaultOptions provides sane defaults for chunking.
func DefaultOptions() Options {
	return Options{
		Strategy:      StrategyRecursive,
		MaxTokens:     512,
		OverlapTokens: 50,
	}
}

// Piece is one chunk of text produced by a splitter, in document order.
type Piece struct {
	Text       string
	TokenCount int
}

// SentenceEmbedder supplies embeddings for the semantic strategy. The semantic
// splitter degrades to recursive splitting when none is configured.
type SentenceEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Splitter turns document text into ordered pieces.
type Splitter struct {
	embedder SentenceEmbedder
}

func NewSplitter() *Splitter {
	return &Splitter{}
}

// NewSemanticSplitter returns a splitter able to break at topic shifts
// detected through embedding-similarity drops between adjacent sentences.
func NewSemanticSplitter(embedder SentenceEmbedder) *Splitter {
	return &Splitter{embedder: embedder}
}

// Split chunks text according to opts. Text that fits within MaxTokens yields
// exactly one piece. An empty document yields no pieces.
func (s *Splitter) Split(ctx context.Context, text string, opts Options) ([]Piece, error) {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil, nil
	}
	if opts.MaxTokens <= 0 {
		opts = DefaultOptions()
	}
	if opts.OverlapTokens < 0 {
		opts.OverlapTokens = 0
	}
	if opts.OverlapTokens >= opts.MaxTokens {
		opts.OverlapTokens = opts.MaxTokens / 4
	}

	if EstimateTokens(clean) <= opts.MaxTokens {
		return []Piece{{Text: clean, TokenCount: EstimateTokens(clean)}}, nil
	}

	switch opts.Strategy {
	case StrategyFixed:
		return fixedSplit(clean, opts), nil
	case StrategySemantic:
		if s.embedder == nil {
			return recursiveSplit(clean, opts), nil
		}
		return s.semanticSplit(ctx, clean, opts)
	case StrategyRecursive, "":
		return recursiveSplit(clean, opts), nil
	default:
		return nil, fmt.Errorf("unknown chunking strategy: %s", opts.Strategy)
	}
}

// EstimateTokens approximates the token count of text. Four characters per
// token tracks the OpenAI tokenizers closely enough for sizing chunks.
func EstimateTokens(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	tokens := n / 4
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}

func maxChars(tokens int) int {
	return tokens * 4
}

// fixedSplit emits token windows of MaxTokens with a trailing overlap, cutting
// on whitespace where possible so words stay intact.
func fixedSplit(text string, opts Options) []Piece {
	runes := []rune(text)
	window := maxChars(opts.MaxTokens)
	overlap := maxChars(opts.OverlapTokens)

	pieces := make([]Piece, 0, len(runes)/window+1)
	start := 0
	for start < len(runes) {
		end := start + window
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) {
			cut := end
			minCut := start + window/2
			for i := end; i > minCut; i-- {
				if unicode.IsSpace(runes[i-1]) {
					cut = i
					break
				}
			}
			end = cut
		}

		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			pieces = append(pieces, Piece{Text: piece, TokenCount: EstimateTokens(piece)})
		}

		if end >= len(runes) {
			break
		}

		nextStart := end
		if overlap > 0 && end-start > overlap {
			nextStart = end - overlap
		}
		if nextStart <= start {
			nextStart = end
		}
		start = nextStart
	}

	return pieces
}

// separators ordered from coarsest to finest; recursive splitting walks down
// this hierarchy until a fragment fits the size budget.
var separators = []string{"\n\n", "\n", ". ", " "}

func recursiveSplit(text string, opts Options) []Piece {
	fragments := splitRecursive(text, opts.MaxTokens, 0)
	return assemble(fragments, opts)
}

func splitRecursive(text string, maxTokens, level int) []string {
	if EstimateTokens(text) <= maxTokens {
		return []string{text}
	}

	if level >= len(separators) {
		// A single unbreakable run longer than the budget. Truncate rather
		// than fail the document.
		log.Printf("chunking: truncating oversized fragment (%d tokens, budget %d)", EstimateTokens(text), maxTokens)
		runes := []rune(text)
		return []string{string(runes[:maxChars(maxTokens)])}
	}

	parts := strings.Split(text, separators[level])
	out := make([]string, 0, len(parts))
	for i, part := range parts {
		if i < len(parts)-1 && separators[level] == ". " {
			part += "."
		}
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, splitRecursive(part, maxTokens, level+1)...)
	}
	return out
}

// assemble packs fragments into pieces up to MaxTokens, carrying OverlapTokens
// of trailing text into the next piece so boundary context is not lost.
func assemble(fragments []string, opts Options) []Piece {
	pieces := make([]Piece, 0, len(fragments))
	var current strings.Builder
	currentTokens := 0

	flush := func() {
		text := strings.TrimSpace(current.String())
		if text == "" {
			return
		}
		pieces = append(pieces, Piece{Text: text, TokenCount: EstimateTokens(text)})

		current.Reset()
		currentTokens = 0
		if opts.OverlapTokens > 0 {
			tail := overlapTail(text, opts.OverlapTokens)
			if tail != "" {
				current.WriteString(tail)
				currentTokens = EstimateTokens(tail)
			}
		}
	}

	for _, fragment := range fragments {
		tokens := EstimateTokens(fragment)
		if currentTokens > 0 && currentTokens+tokens > opts.MaxTokens {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(fragment)
		currentTokens += tokens
	}

	text := strings.TrimSpace(current.String())
	if text != "" && (len(pieces) == 0 || !strings.HasSuffix(pieces[len(pieces)-1].Text, text)) {
		pieces = append(pieces, Piece{Text: text, TokenCount: EstimateTokens(text)})
	}

	return pieces
}

// overlapTail returns the last overlapTokens worth of text, cut on a word
// boundary.
func overlapTail(text string, overlapTokens int) string {
	runes := []rune(text)
	chars := maxChars(overlapTokens)
	if len(runes) <= chars {
		return text
	}
	tail := runes[len(runes)-chars:]
	for i, r := range tail {
		if unicode.IsSpace(r) {
			return strings.TrimSpace(string(tail[i:]))
		}
	}
	return strings.TrimSpace(string(tail))
}
