package jobs

import (
	"context"
	"log"
	"time"
)

// JobProcessor is one polling pass over whatever work is pending. Implemented
// by IngestWorker and RetentionWorker.
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker drives a JobProcessor on a fixed poll interval until stopped. A
// failed pass is logged and retried on the next tick; the loop never exits on
// processor errors.
type Worker struct {
	processor JobProcessor
	interval  time.Duration
	stop      chan struct{}
	done      chan struct{}
}

func NewWorker(processor JobProcessor, pollInterval time.Duration) *Worker {
	return &Worker{
		processor: processor,
		interval:  pollInterval,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the poll loop until the context is cancelled or Stop is called.
// The first pass runs immediately so pending work left over from a previous
// process is picked up without waiting a full interval.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.done)

	log.Printf("worker started, polling every %v", w.interval)
	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("worker stopped: context cancelled")
			return
		case <-w.stop:
			log.Println("worker stopped")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := w.processor.ProcessJobs(ctx); err != nil {
		log.Printf("worker pass failed: %v", err)
	}
}

// Stop signals the loop to exit and waits for the in-flight pass to finish.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}
