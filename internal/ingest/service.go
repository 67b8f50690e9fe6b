package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tessera-ai/tessera/internal/chunking"
	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/metrics"
	"github.com/tessera-ai/tessera/internal/telemetry"
)

// DocumentStore defines the repository interface for document rows
type DocumentStore interface {
	Create(ctx context.Context, d *domain.Document) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Document, error)
	MarkChunked(ctx context.Context, tenantID, id string, chunkCount int, ingestedAt time.Time) error
	MarkFailed(ctx context.Context, tenantID, id, errMsg string) error
	Delete(ctx context.Context, tenantID, id string) error
}

// ChunkStore defines the repository interface for chunk rows
type ChunkStore interface {
	ReplaceChunks(ctx context.Context, tenantID, documentID string, chunks []domain.Chunk) error
	DeleteByDocument(ctx context.Context, tenantID, documentID string) error
}

// JobStore defines the repository interface for ingest jobs
type JobStore interface {
	Create(ctx context.Context, job *domain.IngestJob) error
}

// TxRepositories exposes transactional repositories to one unit of work.
type TxRepositories interface {
	Documents() DocumentStore
	Chunks() ChunkStore
}

// TxRunner runs a function inside one database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}

// Embedder generates embeddings for a batch of texts.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Chunker splits document text into ordered pieces.
type Chunker interface {
	Split(ctx context.Context, text string, opts chunking.Options) ([]chunking.Piece, error)
}

// Service turns extracted document text into tenant-tagged, embedded chunks.
// Ingest acknowledges synchronously and queues the heavy work; Process runs
// on the background worker.
type Service struct {
	docs     DocumentStore
	jobs     JobStore
	tx       TxRunner
	chunker  Chunker
	embedder Embedder
	opts     chunking.Options
}

func NewService(docs DocumentStore, jobs JobStore, tx TxRunner, chunker Chunker, embedder Embedder, opts chunking.Options) *Service {
	if opts.MaxTokens <= 0 {
		opts = chunking.DefaultOptions()
	}
	return &Service{
		docs:     docs,
		jobs:     jobs,
		tx:       tx,
		chunker:  chunker,
		embedder: embedder,
		opts:     opts,
	}
}

// IngestInput carries one document's extracted plain text. Format conversion
// (OCR, tables, media) happens upstream; only text arrives here.
type IngestInput struct {
	DocumentID string
	TenantID   string
	SourceURI  string
	Text       string
}

// IngestAck is the synchronous acknowledgment; completion is async.
type IngestAck struct {
	DocumentID string
	Status     domain.DocumentStatus
}

// Ingest registers the document (first time) and queues an ingestion job.
// Re-ingesting an existing document queues a fresh job whose completion
// tombstones the prior chunk set.
func (s *Service) Ingest(ctx context.Context, input IngestInput) (*IngestAck, error) {
	if strings.TrimSpace(input.TenantID) == "" {
		return nil, domain.ErrMissingRequiredField
	}
	if strings.TrimSpace(input.Text) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "document text is required")
	}

	now := time.Now().UTC()
	documentID := input.DocumentID
	if documentID == "" {
		documentID = uuid.NewString()
	}

	_, err := s.docs.GetByID(ctx, input.TenantID, documentID)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		doc := domain.NewDocument(documentID, input.TenantID, input.SourceURI, now)
		if err := s.docs.Create(ctx, doc); err != nil {
			return nil, fmt.Errorf("failed to create document: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	job := &domain.IngestJob{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		TenantID:   input.TenantID,
		Text:       input.Text,
		Status:     domain.IngestJobStatusPending,
		CreatedAt:  now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to queue ingest job: %w", err)
	}

	return &IngestAck{DocumentID: documentID, Status: domain.DocumentStatusPending}, nil
}

// Process chunks and embeds one claimed job, then atomically replaces the
// document's chunk set. Chunk-set replacement and the status update share a
// transaction so a query never sees a partial set.
func (s *Service) Process(ctx context.Context, job *domain.IngestJob) error {
	ctx, span := telemetry.StartSpan(ctx, "ingest.process", telemetry.SpanAttributes{
		TenantID:   job.TenantID,
		DocumentID: job.DocumentID,
	})
	defer span.End()

	doc, err := s.docs.GetByID(ctx, job.TenantID, job.DocumentID)
	if err != nil {
		return fmt.Errorf("failed to load document %s: %w", job.DocumentID, err)
	}

	pieces, err := s.chunker.Split(ctx, job.Text, s.opts)
	if err != nil {
		if markErr := s.docs.MarkFailed(ctx, job.TenantID, job.DocumentID, err.Error()); markErr != nil {
			log.Printf("ingest: failed to mark document %s failed: %v", job.DocumentID, markErr)
		}
		return fmt.Errorf("chunking failed for document %s: %w", job.DocumentID, err)
	}

	embeddings := s.embedPieces(ctx, job.DocumentID, pieces)

	now := time.Now().UTC()
	chunks := make([]domain.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunk := domain.Chunk{
			ID:         uuid.NewString(),
			DocumentID: job.DocumentID,
			TenantID:   job.TenantID,
			Ordinal:    i,
			Text:       piece.Text,
			TokenCount: piece.TokenCount,
			Embedding:  embeddings[i],
			CreatedAt:  now,
		}
		if err := domain.ValidateChunk(&chunk, doc); err != nil {
			return fmt.Errorf("chunk %d rejected for document %s: %w", i, job.DocumentID, err)
		}
		chunks = append(chunks, chunk)
	}

	err = s.tx.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Chunks().ReplaceChunks(ctx, job.TenantID, job.DocumentID, chunks); err != nil {
			return err
		}
		return repos.Documents().MarkChunked(ctx, job.TenantID, job.DocumentID, len(chunks), now)
	})
	if err != nil {
		span.SetError(err)
		return fmt.Errorf("failed to store chunks for document %s: %w", job.DocumentID, err)
	}

	metrics.AddChunksStored(len(chunks))
	return nil
}

// embedBatchSize bounds how many chunks ride one provider call, and with it
// how many chunks a single failed call costs their vectors.
const embedBatchSize = 64

// embedPieces embeds pieces batch by batch. A failed batch leaves nil
// embeddings for its pieces only: those chunks stay searchable through the
// sparse path while the rest of the document keeps its vectors.
func (s *Service) embedPieces(ctx context.Context, documentID string, pieces []chunking.Piece) [][]float32 {
	embeddings := make([][]float32, len(pieces))
	if s.embedder == nil || len(pieces) == 0 {
		return embeddings
	}

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}

	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := s.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			log.Printf("ingest: embedding failed for document %s chunks %d-%d, they remain sparse-only: %v",
				documentID, start, end-1, err)
			continue
		}
		if len(vectors) != end-start {
			log.Printf("ingest: embedder returned %d vectors for %d chunks of document %s, dropping batch",
				len(vectors), end-start, documentID)
			continue
		}
		copy(embeddings[start:end], vectors)
	}
	return embeddings
}

// MarkFailed records an ingestion failure on the document row.
func (s *Service) MarkFailed(ctx context.Context, tenantID, documentID, errMsg string) error {
	return s.docs.MarkFailed(ctx, tenantID, documentID, errMsg)
}

// GetDocument returns a tenant's document with its ingestion status.
func (s *Service) GetDocument(ctx context.Context, tenantID, documentID string) (*domain.Document, error) {
	return s.docs.GetByID(ctx, tenantID, documentID)
}

// DeleteDocument removes a document and its chunks in one transaction.
func (s *Service) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	return s.tx.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Chunks().DeleteByDocument(ctx, tenantID, documentID); err != nil {
			return err
		}
		return repos.Documents().Delete(ctx, tenantID, documentID)
	})
}
