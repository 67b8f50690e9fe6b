package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/pagination"
)

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	requireTenant(d.TenantID)
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (id, tenant_id, source_uri, status, error, chunk_count, ingested_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.TenantID, d.SourceURI, d.Status, d.Error, d.ChunkCount, d.IngestedAt, d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Document, error) {
	requireTenant(tenantID)
	var d domain.Document
	var ingestedAt pgtype.Timestamptz
	err := r.db.QueryRow(ctx,
		`SELECT id, tenant_id, source_uri, status, error, chunk_count, ingested_at, created_at, updated_at
		 FROM documents WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	).Scan(&d.ID, &d.TenantID, &d.SourceURI, &d.Status, &d.Error, &d.ChunkCount, &ingestedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	if ingestedAt.Valid {
		t := ingestedAt.Time
		d.IngestedAt = &t
	}
	return &d, nil
}

func (r *DocumentRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.Document, error) {
	requireTenant(tenantID)
	rows, err := r.db.Query(ctx,
		`SELECT id, tenant_id, source_uri, status, error, chunk_count, ingested_at, created_at, updated_at
		 FROM documents WHERE tenant_id = $1 ORDER BY created_at DESC`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		var d domain.Document
		var ingestedAt pgtype.Timestamptz
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SourceURI, &d.Status, &d.Error, &d.ChunkCount, &ingestedAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		if ingestedAt.Valid {
			t := ingestedAt.Time
			d.IngestedAt = &t
		}
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

// ListWithCursor pages through a tenant's documents newest-first using keyset
// pagination on (created_at, id).
func (r *DocumentRepository) ListWithCursor(ctx context.Context, tenantID string, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.Document], error) {
	requireTenant(tenantID)
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error
	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT id, tenant_id, source_uri, status, error, chunk_count, ingested_at, created_at, updated_at
			 FROM documents
			 WHERE tenant_id = $1 AND (created_at, id) < ($2, $3)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $4`,
			tenantID, cursor.Timestamp, cursor.LastID, limit,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, tenant_id, source_uri, status, error, chunk_count, ingested_at, created_at, updated_at
			 FROM documents
			 WHERE tenant_id = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			tenantID, limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		var d domain.Document
		var ingestedAt pgtype.Timestamptz
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SourceURI, &d.Status, &d.Error, &d.ChunkCount, &ingestedAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		if ingestedAt.Valid {
			t := ingestedAt.Time
			d.IngestedAt = &t
		}
		docs = append(docs, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	next := pagination.CreateNextCursor(docs, limit,
		func(d *domain.Document) string { return d.ID },
		func(d *domain.Document) time.Time { return d.CreatedAt },
	)
	return &pagination.PageResult[*domain.Document]{
		Items:   docs,
		Cursor:  next,
		HasMore: next != "",
	}, nil
}

// MarkChunked records a successful ingestion: status, live chunk count, and
// the ingestion timestamp used for recency tie-breaks.
func (r *DocumentRepository) MarkChunked(ctx context.Context, tenantID, id string, chunkCount int, ingestedAt time.Time) error {
	requireTenant(tenantID)
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents
		 SET status = $1, error = '', chunk_count = $2, ingested_at = $3, updated_at = $3
		 WHERE tenant_id = $4 AND id = $5`,
		domain.DocumentStatusChunked, chunkCount, ingestedAt.UTC(), tenantID, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// MarkFailed records an ingestion failure scoped to this document.
func (r *DocumentRepository) MarkFailed(ctx context.Context, tenantID, id, errMsg string) error {
	requireTenant(tenantID)
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents
		 SET status = $1, error = $2, updated_at = now()
		 WHERE tenant_id = $3 AND id = $4`,
		domain.DocumentStatusFailed, errMsg, tenantID, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// Delete removes a document; chunks cascade through the foreign key.
func (r *DocumentRepository) Delete(ctx context.Context, tenantID, id string) error {
	requireTenant(tenantID)
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM documents WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}
