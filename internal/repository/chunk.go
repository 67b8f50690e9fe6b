package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/tessera-ai/tessera/internal/domain"
)

// ChunkRepository persists chunks and serves both search paths. Every query
// predicate includes tenant_id; there is no unfiltered read.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// ReplaceChunks tombstones the live chunk set for a document and inserts the
// new one. Run inside a transaction so readers never observe a partial set.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, tenantID, documentID string, chunks []domain.Chunk) error {
	requireTenant(tenantID)
	_, err := r.db.Exec(ctx,
		`UPDATE chunks SET tombstoned = TRUE WHERE tenant_id = $1 AND document_id = $2 AND NOT tombstoned`,
		tenantID, documentID,
	)
	if err != nil {
		return err
	}

	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		var embedding any
		if c.Embedding != nil {
			embedding = pgvector.NewVector(c.Embedding)
		}

		_, err := r.db.Exec(ctx,
			`INSERT INTO chunks (id, document_id, tenant_id, ordinal, text, token_count, embedding, tombstoned, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)`,
			c.ID, c.DocumentID, c.TenantID, c.Ordinal, c.Text, c.TokenCount, embedding, createdAt,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// DeleteByDocument removes all chunks of a document, tombstoned or not.
func (r *ChunkRepository) DeleteByDocument(ctx context.Context, tenantID, documentID string) error {
	requireTenant(tenantID)
	_, err := r.db.Exec(ctx,
		`DELETE FROM chunks WHERE tenant_id = $1 AND document_id = $2`,
		tenantID, documentID,
	)
	return err
}

// CountLiveByDocument returns the number of non-tombstoned chunks.
func (r *ChunkRepository) CountLiveByDocument(ctx context.Context, tenantID, documentID string) (int, error) {
	requireTenant(tenantID)
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM chunks WHERE tenant_id = $1 AND document_id = $2 AND NOT tombstoned`,
		tenantID, documentID,
	).Scan(&count)
	return count, err
}

// SearchSparse runs inverted-index term matching over the tenant's live
// chunks, scored with ts_rank_cd.
func (r *ChunkRepository) SearchSparse(ctx context.Context, tenantID, query string, limit int) ([]domain.RetrievedChunk, error) {
	requireTenant(tenantID)
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.document_id, c.ordinal, c.text,
		        ts_rank_cd(c.text_search, q)::float8 AS score, c.created_at
		 FROM chunks c, websearch_to_tsquery('english', $2) q
		 WHERE c.tenant_id = $1 AND NOT c.tombstoned AND c.text_search @@ q
		 ORDER BY score DESC, c.created_at DESC, c.id ASC
		 LIMIT $3`,
		tenantID, query, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRetrievedChunks(rows, false)
}

// SearchDense runs approximate nearest-neighbor lookup over the tenant's live
// chunks that have embeddings, scored by cosine similarity.
func (r *ChunkRepository) SearchDense(ctx context.Context, tenantID string, embedding []float32, limit int) ([]domain.RetrievedChunk, error) {
	requireTenant(tenantID)
	if limit <= 0 {
		limit = 20
	}

	vec := pgvector.NewVector(embedding)
	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.document_id, c.ordinal, c.text,
		        (1 - (c.embedding <=> $2))::float8 AS score, c.created_at, c.embedding
		 FROM chunks c
		 WHERE c.tenant_id = $1 AND NOT c.tombstoned AND c.embedding IS NOT NULL
		 ORDER BY c.embedding <=> $2, c.id ASC
		 LIMIT $3`,
		tenantID, vec, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRetrievedChunks(rows, true)
}

func scanRetrievedChunks(rows pgx.Rows, withEmbedding bool) ([]domain.RetrievedChunk, error) {
	results := make([]domain.RetrievedChunk, 0)
	for rows.Next() {
		var c domain.RetrievedChunk
		var err error
		if withEmbedding {
			var vec pgvector.Vector
			err = rows.Scan(&c.ChunkID, &c.DocumentID, &c.Ordinal, &c.Text, &c.Score, &c.IngestedAt, &vec)
			c.Embedding = vec.Slice()
			c.DenseScore = c.Score
		} else {
			err = rows.Scan(&c.ChunkID, &c.DocumentID, &c.Ordinal, &c.Text, &c.Score, &c.IngestedAt)
		}
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}
