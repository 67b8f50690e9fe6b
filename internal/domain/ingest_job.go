package domain

import (
	"fmt"
	"time"
)

// IngestJobStatus represents the status of an ingestion job
type IngestJobStatus string

const (
	IngestJobStatusPending    IngestJobStatus = "pending"
	IngestJobStatusProcessing IngestJobStatus = "processing"
	IngestJobStatusCompleted  IngestJobStatus = "completed"
	IngestJobStatusFailed     IngestJobStatus = "failed"
)

// IngestJob carries one document's extracted text through the async
// chunk-and-embed pipeline. The ingest handler acknowledges the caller as
// soon as the job row exists; the worker does the rest.
type IngestJob struct {
	ID          string
	DocumentID  string
	TenantID    string
	Text        string
	Status      IngestJobStatus
	Retries     int32
	Error       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// ValidateIngestJob validates an IngestJob instance
func ValidateIngestJob(j *IngestJob) error {
	if j == nil {
		return fmt.Errorf("ingest job cannot be nil")
	}
	if j.ID == "" {
		return fmt.Errorf("ingest job ID is required")
	}
	if j.DocumentID == "" {
		return fmt.Errorf("ingest job DocumentID is required")
	}
	if j.TenantID == "" {
		return fmt.Errorf("ingest job TenantID is required")
	}
	if !isValidIngestJobStatus(j.Status) {
		return fmt.Errorf("ingest job Status is invalid: %s", j.Status)
	}
	if j.Retries < 0 {
		return fmt.Errorf("ingest job Retries cannot be negative")
	}
	return nil
}

func isValidIngestJobStatus(s IngestJobStatus) bool {
	switch s {
	case IngestJobStatusPending, IngestJobStatusProcessing,
		IngestJobStatusCompleted, IngestJobStatusFailed:
		return true
	}
	return false
}
