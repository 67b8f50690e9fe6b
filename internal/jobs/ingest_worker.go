package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/metrics"
	"github.com/tessera-ai/tessera/internal/telemetry"
)

const (
	// MaxRetries is the maximum number of attempts for a failed ingest job
	MaxRetries = 3
)

// IngestJobRepository defines the interface for ingest job persistence
type IngestJobRepository interface {
	// GetPendingJobs retrieves and claims pending ingest jobs
	GetPendingJobs(ctx context.Context) ([]*domain.IngestJob, error)

	// UpdateJobStatus updates the status of an ingest job
	UpdateJobStatus(ctx context.Context, jobID string, status domain.IngestJobStatus, errMsg string) error

	// IncrementRetries increments the retry count for a job
	IncrementRetries(ctx context.Context, jobID string) error
}

// IngestService chunks, embeds, and stores one claimed job's document.
type IngestService interface {
	Process(ctx context.Context, job *domain.IngestJob) error
	MarkFailed(ctx context.Context, tenantID, documentID, errMsg string) error
}

// IngestWorker processes queued document ingestion jobs
type IngestWorker struct {
	repo    IngestJobRepository
	service IngestService
}

// NewIngestWorker creates a new IngestWorker instance
func NewIngestWorker(repo IngestJobRepository, service IngestService) *IngestWorker {
	return &IngestWorker{
		repo:    repo,
		service: service,
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *IngestWorker) ProcessJobs(ctx context.Context) error {
	jobs, err := w.repo.GetPendingJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch pending jobs: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	log.Printf("Processing %d pending ingest jobs", len(jobs))

	for _, job := range jobs {
		if err := w.processJob(ctx, job); err != nil {
			log.Printf("Error processing job %s: %v", job.ID, err)
		}
	}

	return nil
}

func (w *IngestWorker) processJob(ctx context.Context, job *domain.IngestJob) error {
	log.Printf("Processing job %s for document %s", job.ID, job.DocumentID)

	if err := w.service.Process(ctx, job); err != nil {
		return w.handleJobFailure(ctx, job, err)
	}

	if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.IngestJobStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	metrics.ObserveIngestJob("completed")
	log.Printf("Job %s completed successfully", job.ID)
	return nil
}

// handleJobFailure retries a failed job up to MaxRetries, then marks both the
// job and its document failed so the caller sees the terminal status.
func (w *IngestWorker) handleJobFailure(ctx context.Context, job *domain.IngestJob, jobErr error) error {
	log.Printf("Job %s failed: %v", job.ID, jobErr)

	if err := w.repo.IncrementRetries(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	if job.Retries+1 >= MaxRetries {
		log.Printf("Job %s exceeded max retries (%d), marking as failed", job.ID, MaxRetries)
		errMsg := fmt.Sprintf("max retries exceeded: %v", jobErr)
		if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.IngestJobStatusFailed, errMsg); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		if err := w.service.MarkFailed(ctx, job.TenantID, job.DocumentID, errMsg); err != nil {
			return fmt.Errorf("failed to mark document failed: %w", err)
		}
		metrics.ObserveIngestJob("failed")
		telemetry.CaptureError(ctx, fmt.Errorf("ingest job %s exhausted retries: %w", job.ID, jobErr))
		return nil
	}

	log.Printf("Job %s will be retried (attempt %d/%d)", job.ID, job.Retries+1, MaxRetries)
	errMsg := fmt.Sprintf("retry %d: %v", job.Retries+1, jobErr)
	if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.IngestJobStatusPending, errMsg); err != nil {
		return fmt.Errorf("failed to reset job status to pending: %w", err)
	}

	return nil
}
