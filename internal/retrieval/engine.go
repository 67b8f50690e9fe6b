package retrieval

import (
	"context"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/metrics"
	"github.com/tessera-ai/tessera/internal/telemetry"
)

const (
	defaultTopK            = 5
	defaultOverFetch       = 3
	defaultMinCandidates   = 20
	defaultMaxCandidates   = 200
	defaultRerankSize      = 20
	defaultDedupSimilarity = 0.95
	defaultCompressTokens  = 256
)

// Index abstracts the two search paths of the store. Both take tenantID as a
// required first parameter; the repository panics on an empty one.
type Index interface {
	SearchSparse(ctx context.Context, tenantID, query string, limit int) ([]domain.RetrievedChunk, error)
	SearchDense(ctx context.Context, tenantID string, embedding []float32, limit int) ([]domain.RetrievedChunk, error)
}

// QueryEmbedder embeds the query text for the dense path.
type QueryEmbedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Reranker rescores the fused head of the candidate list.
type Reranker interface {
	Rerank(query string, fused []domain.RetrievedChunk, topN int) []domain.RetrievedChunk
}

// Config tunes the hybrid engine.
type Config struct {
	TopK            int
	OverFetch       int
	RerankSize      int
	DedupSimilarity float64
	CompressTokens  int
}

// DefaultConfig provides the default retrieval tuning.
func DefaultConfig() Config {
	return Config{
		TopK:            defaultTopK,
		OverFetch:       defaultOverFetch,
		RerankSize:      defaultRerankSize,
		DedupSimilarity: defaultDedupSimilarity,
		CompressTokens:  defaultCompressTokens,
	}
}

// Engine combines sparse and dense search with fusion, reranking, optional
// compression, and near-duplicate suppression.
type Engine struct {
	index    Index
	embedder QueryEmbedder
	reranker Reranker
	cfg      Config
}

func NewEngine(index Index, embedder QueryEmbedder, cfg Config) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.OverFetch <= 0 {
		cfg.OverFetch = defaultOverFetch
	}
	if cfg.RerankSize <= 0 {
		cfg.RerankSize = defaultRerankSize
	}
	if cfg.DedupSimilarity <= 0 || cfg.DedupSimilarity > 1 {
		cfg.DedupSimilarity = defaultDedupSimilarity
	}
	return &Engine{
		index:    index,
		embedder: embedder,
		reranker: NewLexicalReranker(),
		cfg:      cfg,
	}
}

// WithReranker replaces the default lexical reranker.
func (e *Engine) WithReranker(r Reranker) *Engine {
	if r != nil {
		e.reranker = r
	}
	return e
}

// Retrieve returns the tenant's topK most relevant chunks for the query.
// The sparse and dense paths run concurrently and are joined before fusion;
// each path gets one retry before it is written off. A dead dense path
// degrades to sparse-only results, a dead sparse path to dense-only; only
// when both fail does retrieval report unavailable.
func (e *Engine) Retrieve(ctx context.Context, tenantID, query string, topK int) (*domain.RetrievalResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}
	if topK <= 0 {
		topK = e.cfg.TopK
	}

	candidateLimit := topK * e.cfg.OverFetch
	if candidateLimit < defaultMinCandidates {
		candidateLimit = defaultMinCandidates
	}
	if candidateLimit > defaultMaxCandidates {
		candidateLimit = defaultMaxCandidates
	}

	var (
		sparse    []domain.RetrievedChunk
		dense     []domain.RetrievedChunk
		sparseErr error
		denseErr  error
	)

	// Both branches run to completion even if one fails; degraded mode needs
	// whichever succeeded.
	var g errgroup.Group
	g.Go(func() error {
		keyword := keywordQuery(query)
		if keyword == "" {
			return nil
		}
		sparse, sparseErr = retryOnce(ctx, func(ctx context.Context) ([]domain.RetrievedChunk, error) {
			return e.index.SearchSparse(ctx, tenantID, keyword, candidateLimit)
		})
		return nil
	})
	g.Go(func() error {
		if e.embedder == nil {
			denseErr = domain.ErrRetrievalUnavailable
			return nil
		}
		dense, denseErr = retryOnce(ctx, func(ctx context.Context) ([]domain.RetrievedChunk, error) {
			embedding, err := e.embedder.GenerateEmbedding(ctx, query)
			if err != nil {
				return nil, err
			}
			return e.index.SearchDense(ctx, tenantID, embedding, candidateLimit)
		})
		return nil
	})
	_ = g.Wait()

	if sparseErr != nil && denseErr != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeRetrievalUnavailable,
			"search backends are unavailable", denseErr)
	}

	degraded := sparseErr != nil || denseErr != nil
	if degraded {
		metrics.ObserveDegradedRetrieval()
		telemetry.AddBreadcrumb(ctx, "retrieval", "degraded to single search path")
	}
	if denseErr != nil {
		log.Printf("retrieval: dense path unavailable, serving sparse-only results: %v", denseErr)
	}
	if sparseErr != nil {
		log.Printf("retrieval: sparse path unavailable, serving dense-only results: %v", sparseErr)
	}

	fused := fuse(sparse, dense)

	rerankSize := e.cfg.RerankSize
	if rerankSize < topK {
		rerankSize = topK
	}
	ranked := e.reranker.Rerank(query, fused, rerankSize)

	if e.cfg.CompressTokens > 0 {
		compressChunks(query, ranked, e.cfg.CompressTokens)
	}

	deduped := dedupe(ranked, e.cfg.DedupSimilarity)
	if len(deduped) > topK {
		deduped = deduped[:topK]
	}

	return &domain.RetrievalResult{Chunks: deduped, Degraded: degraded}, nil
}

func retryOnce(ctx context.Context, fn func(context.Context) ([]domain.RetrievedChunk, error)) ([]domain.RetrievedChunk, error) {
	out, err := fn(ctx)
	if err == nil || ctx.Err() != nil {
		return out, err
	}
	return fn(ctx)
}
