//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/pagination"
	"github.com/tessera-ai/tessera/internal/testutil"
)

func setupTestPool(t *testing.T) (context.Context, *pgxpool.Pool, func()) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")

	return ctx, pool, func() {
		pool.Close()
		pc.Terminate(ctx)
	}
}

func createTestTenant(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) string {
	tenant := &domain.Tenant{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, NewTenantRepository(pool).Create(ctx, tenant))
	return tenant.ID
}

func createTestDocument(ctx context.Context, t *testing.T, repo *DocumentRepository, tenantID string) *domain.Document {
	doc := domain.NewDocument(uuid.NewString(), tenantID, "s3://bucket/file.pdf", time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, repo.Create(ctx, doc))
	return doc
}

func TestDocumentRepository_CreateAndGet(t *testing.T) {
	ctx, pool, cleanup := setupTestPool(t)
	defer cleanup()

	tenantID := createTestTenant(ctx, t, pool, "acme")
	repo := NewDocumentRepository(pool)

	doc := createTestDocument(ctx, t, repo, tenantID)

	retrieved, err := repo.GetByID(ctx, tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, retrieved.ID)
	assert.Equal(t, tenantID, retrieved.TenantID)
	assert.Equal(t, "s3://bucket/file.pdf", retrieved.SourceURI)
	assert.Equal(t, domain.DocumentStatusPending, retrieved.Status)
	assert.Nil(t, retrieved.IngestedAt)
}

func TestDocumentRepository_GetByID_NotFound(t *testing.T) {
	ctx, pool, cleanup := setupTestPool(t)
	defer cleanup()

	tenantID := createTestTenant(ctx, t, pool, "acme")
	repo := NewDocumentRepository(pool)

	_, err := repo.GetByID(ctx, tenantID, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestDocumentRepository_GetByID_OtherTenantInvisible(t *testing.T) {
	ctx, pool, cleanup := setupTestPool(t)
	defer cleanup()

	acme := createTestTenant(ctx, t, pool, "acme")
	globex := createTestTenant(ctx, t, pool, "globex")
	repo := NewDocumentRepository(pool)

	doc := createTestDocument(ctx, t, repo, acme)

	_, err := repo.GetByID(ctx, globex, doc.ID)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestDocumentRepository_MarkChunked(t *testing.T) {
	ctx, pool, cleanup := setupTestPool(t)
	defer cleanup()

	tenantID := createTestTenant(ctx, t, pool, "acme")
	repo := NewDocumentRepository(pool)
	doc := createTestDocument(ctx, t, repo, tenantID)

	ingestedAt := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.MarkChunked(ctx, tenantID, doc.ID, 7, ingestedAt))

	retrieved, err := repo.GetByID(ctx, tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusChunked, retrieved.Status)
	assert.Equal(t, 7, retrieved.ChunkCount)
	require.NotNil(t, retrieved.IngestedAt)
	assert.True(t, retrieved.IngestedAt.Equal(ingestedAt))
}

func TestDocumentRepository_MarkFailed(t *testing.T) {
	ctx, pool, cleanup := setupTestPool(t)
	defer cleanup()

	tenantID := createTestTenant(ctx, t, pool, "acme")
	repo := NewDocumentRepository(pool)
	doc := createTestDocument(ctx, t, repo, tenantID)

	require.NoError(t, repo.MarkFailed(ctx, tenantID, doc.ID, "chunking exploded"))

	retrieved, err := repo.GetByID(ctx, tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusFailed, retrieved.Status)
	assert.Equal(t, "chunking exploded", retrieved.Error)
}

func TestDocumentRepository_Delete(t *testing.T) {
	ctx, pool, cleanup := setupTestPool(t)
	defer cleanup()

	tenantID := createTestTenant(ctx, t, pool, "acme")
	repo := NewDocumentRepository(pool)
	doc := createTestDocument(ctx, t, repo, tenantID)

	require.NoError(t, repo.Delete(ctx, tenantID, doc.ID))

	_, err := repo.GetByID(ctx, tenantID, doc.ID)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, tenantID, doc.ID), domain.ErrDocumentNotFound)
}

func TestDocumentRepository_ListWithCursor(t *testing.T) {
	ctx, pool, cleanup := setupTestPool(t)
	defer cleanup()

	tenantID := createTestTenant(ctx, t, pool, "acme")
	repo := NewDocumentRepository(pool)

	base := time.Now().UTC().Truncate(time.Microsecond)
	for i := 0; i < 5; i++ {
		doc := domain.NewDocument(uuid.NewString(), tenantID, "", base.Add(time.Duration(i)*time.Second))
		require.NoError(t, repo.Create(ctx, doc))
	}

	page, err := repo.ListWithCursor(ctx, tenantID, nil, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	require.NotEmpty(t, page.Cursor)
	// Newest first
	assert.True(t, page.Items[0].CreatedAt.After(page.Items[1].CreatedAt))

	cursor, err := pagination.DecodeCursor(page.Cursor)
	require.NoError(t, err)

	next, err := repo.ListWithCursor(ctx, tenantID, cursor, 2)
	require.NoError(t, err)
	require.Len(t, next.Items, 2)
	assert.NotEqual(t, page.Items[0].ID, next.Items[0].ID)
	assert.True(t, page.Items[1].CreatedAt.After(next.Items[0].CreatedAt))

	// Final partial page
	cursor, err = pagination.DecodeCursor(next.Cursor)
	require.NoError(t, err)
	last, err := repo.ListWithCursor(ctx, tenantID, cursor, 2)
	require.NoError(t, err)
	assert.Len(t, last.Items, 1)
	assert.False(t, last.HasMore)
}

func TestRequireTenant_PanicsOnBlank(t *testing.T) {
	assert.Panics(t, func() { requireTenant("") })
	assert.Panics(t, func() { requireTenant("   ") })
	assert.NotPanics(t, func() { requireTenant("tenant-1") })
}
