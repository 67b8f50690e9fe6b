package jobs

import (
	"context"
	"fmt"
	"log"
	"time"
)

// SessionPruner deletes terminal sessions older than the cutoff.
type SessionPruner interface {
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionWorker prunes finished query sessions past their retention window.
// Running sessions are never touched, whatever their age.
type RetentionWorker struct {
	pruner    SessionPruner
	retention time.Duration
}

// NewRetentionWorker creates a new RetentionWorker instance
func NewRetentionWorker(pruner SessionPruner, retention time.Duration) *RetentionWorker {
	return &RetentionWorker{
		pruner:    pruner,
		retention: retention,
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *RetentionWorker) ProcessJobs(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-w.retention)
	deleted, err := w.pruner.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune sessions: %w", err)
	}
	if deleted > 0 {
		log.Printf("Pruned %d sessions older than %v", deleted, w.retention)
	}
	return nil
}
