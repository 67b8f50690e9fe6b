package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tessera-ai/tessera/internal/chunking"
	"github.com/tessera-ai/tessera/internal/domain"
)

// MockDocumentStore is a mock implementation of DocumentStore
type MockDocumentStore struct {
	mock.Mock
}

func (m *MockDocumentStore) Create(ctx context.Context, d *domain.Document) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockDocumentStore) GetByID(ctx context.Context, tenantID, id string) (*domain.Document, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentStore) MarkChunked(ctx context.Context, tenantID, id string, chunkCount int, ingestedAt time.Time) error {
	args := m.Called(ctx, tenantID, id, chunkCount, ingestedAt)
	return args.Error(0)
}

func (m *MockDocumentStore) MarkFailed(ctx context.Context, tenantID, id, errMsg string) error {
	args := m.Called(ctx, tenantID, id, errMsg)
	return args.Error(0)
}

func (m *MockDocumentStore) Delete(ctx context.Context, tenantID, id string) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

// MockChunkStore is a mock implementation of ChunkStore
type MockChunkStore struct {
	mock.Mock
}

func (m *MockChunkStore) ReplaceChunks(ctx context.Context, tenantID, documentID string, chunks []domain.Chunk) error {
	args := m.Called(ctx, tenantID, documentID, chunks)
	return args.Error(0)
}

func (m *MockChunkStore) DeleteByDocument(ctx context.Context, tenantID, documentID string) error {
	args := m.Called(ctx, tenantID, documentID)
	return args.Error(0)
}

// MockJobStore is a mock implementation of JobStore
type MockJobStore struct {
	mock.Mock
}

func (m *MockJobStore) Create(ctx context.Context, job *domain.IngestJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

// fakeTxRunner runs the unit of work directly against the given stores.
type fakeTxRunner struct {
	docs   DocumentStore
	chunks ChunkStore
	err    error
}

func (f *fakeTxRunner) Documents() DocumentStore { return f.docs }
func (f *fakeTxRunner) Chunks() ChunkStore       { return f.chunks }

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(f)
}

// MockEmbedder is a mock implementation of Embedder
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func testVectors(n int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, domain.EmbeddingDimensions)
		out[i][0] = 1
	}
	return out
}

func newTestService(docs *MockDocumentStore, chunks *MockChunkStore, jobs *MockJobStore, embedder Embedder) *Service {
	tx := &fakeTxRunner{docs: docs, chunks: chunks}
	return NewService(docs, jobs, tx, chunking.NewSplitter(), embedder, chunking.DefaultOptions())
}

func TestIngest_NewDocument(t *testing.T) {
	docs := new(MockDocumentStore)
	jobs := new(MockJobStore)

	docs.On("GetByID", mock.Anything, "tenant-1", mock.Anything).Return(nil, domain.ErrDocumentNotFound)
	docs.On("Create", mock.Anything, mock.MatchedBy(func(d *domain.Document) bool {
		return d.TenantID == "tenant-1" && d.Status == domain.DocumentStatusPending
	})).Return(nil)
	jobs.On("Create", mock.Anything, mock.MatchedBy(func(j *domain.IngestJob) bool {
		return j.TenantID == "tenant-1" && j.Status == domain.IngestJobStatusPending && j.Text != ""
	})).Return(nil)

	svc := newTestService(docs, new(MockChunkStore), jobs, nil)
	ack, err := svc.Ingest(context.Background(), IngestInput{
		TenantID: "tenant-1",
		Text:     "some document text",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, ack.DocumentID)
	assert.Equal(t, domain.DocumentStatusPending, ack.Status)
	docs.AssertExpectations(t)
	jobs.AssertExpectations(t)
}

func TestIngest_ExistingDocumentQueuesNewJob(t *testing.T) {
	docs := new(MockDocumentStore)
	jobs := new(MockJobStore)

	existing := domain.NewDocument("doc-1", "tenant-1", "", time.Now().UTC())
	docs.On("GetByID", mock.Anything, "tenant-1", "doc-1").Return(existing, nil)
	jobs.On("Create", mock.Anything, mock.MatchedBy(func(j *domain.IngestJob) bool {
		return j.DocumentID == "doc-1"
	})).Return(nil)

	svc := newTestService(docs, new(MockChunkStore), jobs, nil)
	ack, err := svc.Ingest(context.Background(), IngestInput{
		DocumentID: "doc-1",
		TenantID:   "tenant-1",
		Text:       "updated text",
	})

	require.NoError(t, err)
	assert.Equal(t, "doc-1", ack.DocumentID)
	docs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	jobs.AssertExpectations(t)
}

func TestIngest_MissingTenant(t *testing.T) {
	svc := newTestService(new(MockDocumentStore), new(MockChunkStore), new(MockJobStore), nil)

	_, err := svc.Ingest(context.Background(), IngestInput{Text: "text"})
	assert.ErrorIs(t, err, domain.ErrMissingRequiredField)
}

func TestIngest_MissingText(t *testing.T) {
	svc := newTestService(new(MockDocumentStore), new(MockChunkStore), new(MockJobStore), nil)

	_, err := svc.Ingest(context.Background(), IngestInput{TenantID: "tenant-1"})
	require.Error(t, err)
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeValidation, domainErr.Code)
}

func TestProcess_StoresEmbeddedChunks(t *testing.T) {
	docs := new(MockDocumentStore)
	chunks := new(MockChunkStore)
	embedder := new(MockEmbedder)

	doc := domain.NewDocument("doc-1", "tenant-1", "", time.Now().UTC())
	docs.On("GetByID", mock.Anything, "tenant-1", "doc-1").Return(doc, nil)
	embedder.On("EmbedBatch", mock.Anything, mock.Anything).Return(testVectors(1), nil)
	chunks.On("ReplaceChunks", mock.Anything, "tenant-1", "doc-1", mock.MatchedBy(func(cs []domain.Chunk) bool {
		return len(cs) == 1 && cs[0].TenantID == "tenant-1" && cs[0].Embedding != nil
	})).Return(nil)
	docs.On("MarkChunked", mock.Anything, "tenant-1", "doc-1", 1, mock.Anything).Return(nil)

	svc := newTestService(docs, chunks, new(MockJobStore), embedder)
	err := svc.Process(context.Background(), &domain.IngestJob{
		ID:         "job-1",
		DocumentID: "doc-1",
		TenantID:   "tenant-1",
		Text:       "a short document body",
	})

	require.NoError(t, err)
	docs.AssertExpectations(t)
	chunks.AssertExpectations(t)
	embedder.AssertExpectations(t)
}

func TestProcess_EmbeddingFailureKeepsSparseChunks(t *testing.T) {
	docs := new(MockDocumentStore)
	chunks := new(MockChunkStore)
	embedder := new(MockEmbedder)

	doc := domain.NewDocument("doc-1", "tenant-1", "", time.Now().UTC())
	docs.On("GetByID", mock.Anything, "tenant-1", "doc-1").Return(doc, nil)
	embedder.On("EmbedBatch", mock.Anything, mock.Anything).Return(nil, errors.New("quota exceeded"))
	chunks.On("ReplaceChunks", mock.Anything, "tenant-1", "doc-1", mock.MatchedBy(func(cs []domain.Chunk) bool {
		return len(cs) == 1 && cs[0].Embedding == nil
	})).Return(nil)
	docs.On("MarkChunked", mock.Anything, "tenant-1", "doc-1", 1, mock.Anything).Return(nil)

	svc := newTestService(docs, chunks, new(MockJobStore), embedder)
	err := svc.Process(context.Background(), &domain.IngestJob{
		ID:         "job-1",
		DocumentID: "doc-1",
		TenantID:   "tenant-1",
		Text:       "a short document body",
	})

	require.NoError(t, err)
	chunks.AssertExpectations(t)
}

func TestEmbedPieces_FailedBatchKeepsEarlierVectors(t *testing.T) {
	embedder := new(MockEmbedder)
	pieces := make([]chunking.Piece, embedBatchSize+3)
	for i := range pieces {
		pieces[i] = chunking.Piece{Text: "piece text", TokenCount: 2}
	}

	embedder.On("EmbedBatch", mock.Anything, mock.MatchedBy(func(texts []string) bool {
		return len(texts) == embedBatchSize
	})).Return(testVectors(embedBatchSize), nil).Once()
	embedder.On("EmbedBatch", mock.Anything, mock.MatchedBy(func(texts []string) bool {
		return len(texts) == 3
	})).Return(nil, errors.New("quota exceeded")).Once()

	svc := newTestService(new(MockDocumentStore), new(MockChunkStore), new(MockJobStore), embedder)
	embeddings := svc.embedPieces(context.Background(), "doc-1", pieces)

	require.Len(t, embeddings, embedBatchSize+3)
	// The completed batch keeps its vectors
	assert.NotNil(t, embeddings[0])
	assert.NotNil(t, embeddings[embedBatchSize-1])
	// Only the failed batch's pieces fall back to sparse-only
	assert.Nil(t, embeddings[embedBatchSize])
	assert.Nil(t, embeddings[embedBatchSize+2])
	embedder.AssertExpectations(t)
}

func TestProcess_UnknownDocument(t *testing.T) {
	docs := new(MockDocumentStore)
	docs.On("GetByID", mock.Anything, "tenant-1", "doc-1").Return(nil, domain.ErrDocumentNotFound)

	svc := newTestService(docs, new(MockChunkStore), new(MockJobStore), nil)
	err := svc.Process(context.Background(), &domain.IngestJob{
		ID:         "job-1",
		DocumentID: "doc-1",
		TenantID:   "tenant-1",
		Text:       "text",
	})

	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestProcess_TxFailureSurfaces(t *testing.T) {
	docs := new(MockDocumentStore)
	doc := domain.NewDocument("doc-1", "tenant-1", "", time.Now().UTC())
	docs.On("GetByID", mock.Anything, "tenant-1", "doc-1").Return(doc, nil)

	tx := &fakeTxRunner{docs: docs, chunks: new(MockChunkStore), err: errors.New("deadlock")}
	svc := NewService(docs, new(MockJobStore), tx, chunking.NewSplitter(), nil, chunking.DefaultOptions())

	err := svc.Process(context.Background(), &domain.IngestJob{
		ID:         "job-1",
		DocumentID: "doc-1",
		TenantID:   "tenant-1",
		Text:       "text body",
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to store chunks")
}

func TestMarkFailed(t *testing.T) {
	docs := new(MockDocumentStore)
	docs.On("MarkFailed", mock.Anything, "tenant-1", "doc-1", "max retries exceeded").Return(nil)

	svc := newTestService(docs, new(MockChunkStore), new(MockJobStore), nil)
	err := svc.MarkFailed(context.Background(), "tenant-1", "doc-1", "max retries exceeded")

	assert.NoError(t, err)
	docs.AssertExpectations(t)
}

func TestDeleteDocument_RemovesChunksAndRow(t *testing.T) {
	docs := new(MockDocumentStore)
	chunks := new(MockChunkStore)

	chunks.On("DeleteByDocument", mock.Anything, "tenant-1", "doc-1").Return(nil)
	docs.On("Delete", mock.Anything, "tenant-1", "doc-1").Return(nil)

	svc := newTestService(docs, chunks, new(MockJobStore), nil)
	err := svc.DeleteDocument(context.Background(), "tenant-1", "doc-1")

	assert.NoError(t, err)
	docs.AssertExpectations(t)
	chunks.AssertExpectations(t)
}
