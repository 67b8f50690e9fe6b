package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/metrics"
	"github.com/tessera-ai/tessera/internal/telemetry"
)

// CheckpointStore persists the full session snapshot after every step
// transition and replays it on resume.
type CheckpointStore interface {
	Save(ctx context.Context, session *domain.Session) error
	GetForTenant(ctx context.Context, tenantID, sessionID string) (*domain.Session, error)
}

// Retriever is the hybrid search engine.
type Retriever interface {
	Retrieve(ctx context.Context, tenantID, query string, topK int) (*domain.RetrievalResult, error)
}

// LLM completes one chat turn. A nil LLM switches the orchestrator to its
// heuristic fallbacks for analysis, rewriting, and validation; generation
// then answers from the retrieved text directly.
type LLM interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Config tunes the orchestrator.
type Config struct {
	TopK              int
	MaxRetries        int
	RetrievalTimeout  time.Duration
	GenerationTimeout time.Duration
}

// DefaultConfig returns the default orchestration limits.
func DefaultConfig() Config {
	return Config{
		TopK:              5,
		MaxRetries:        2,
		RetrievalTimeout:  5 * time.Second,
		GenerationTimeout: 30 * time.Second,
	}
}

// Orchestrator drives a query session through the step machine, checkpointing
// after every transition so a crashed or restarted process resumes where it
// left off instead of repeating completed steps.
type Orchestrator struct {
	checkpoints CheckpointStore
	retriever   Retriever
	llm         LLM
	cfg         Config
}

func NewOrchestrator(checkpoints CheckpointStore, retriever Retriever, llm LLM, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetrievalTimeout <= 0 {
		cfg.RetrievalTimeout = def.RetrievalTimeout
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = def.GenerationTimeout
	}
	return &Orchestrator{
		checkpoints: checkpoints,
		retriever:   retriever,
		llm:         llm,
		cfg:         cfg,
	}
}

// Run starts a fresh session for the query and drives it to a terminal step.
// The returned session is always checkpointed, including on failure.
func (o *Orchestrator) Run(ctx context.Context, tenantID, userID, query string) (*domain.Session, error) {
	session := domain.NewSession(uuid.NewString(), tenantID, userID, query, time.Now().UTC())
	if err := domain.ValidateSession(session); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid session", err)
	}
	if err := o.checkpoints.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to checkpoint new session: %w", err)
	}
	return o.drive(ctx, session)
}

// Resume picks up a checkpointed session and continues from its current step.
// Sessions that already reached a terminal step are returned as-is with
// ErrSessionTerminal; a session belonging to another tenant surfaces
// ErrTenantMismatch from the store.
func (o *Orchestrator) Resume(ctx context.Context, tenantID, sessionID string) (*domain.Session, error) {
	session, err := o.checkpoints.GetForTenant(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Terminal() {
		return session, domain.ErrSessionTerminal
	}
	return o.drive(ctx, session)
}

// drive executes steps until the session is terminal. Cancellation is only
// honored at step boundaries: a step that started runs to completion so the
// checkpoint never captures a half-applied transition.
func (o *Orchestrator) drive(ctx context.Context, session *domain.Session) (*domain.Session, error) {
	for !session.Terminal() {
		if err := ctx.Err(); err != nil {
			o.cancel(session, err)
			break
		}

		stepStart := time.Now()
		step := session.CurrentStep

		stepCtx, span := telemetry.StartSpan(ctx, "agent.step", telemetry.SpanAttributes{
			TenantID:  session.TenantID,
			SessionID: session.ID,
			Operation: string(step),
		})

		var err error
		switch session.CurrentStep {
		case domain.StepAnalyzing:
			err = o.analyze(stepCtx, session)
		case domain.StepRewriting:
			err = o.rewrite(stepCtx, session)
		case domain.StepRetrieving:
			err = o.retrieve(stepCtx, session)
		case domain.StepReranking:
			err = o.rerank(session)
		case domain.StepGenerating:
			err = o.generate(stepCtx, session)
		case domain.StepValidating:
			err = o.validate(stepCtx, session)
		default:
			err = domain.NewDomainError(domain.ErrCodeInvalidOperation,
				fmt.Sprintf("unknown step %q", session.CurrentStep))
		}
		if err != nil {
			span.SetError(err)
			o.fail(session, err)
		}
		span.End()
		metrics.ObserveStep(string(step), time.Since(stepStart))

		if err := o.checkpoints.Save(ctx, session); err != nil {
			// The step already ran; losing the checkpoint only costs replay
			// work on resume.
			log.Printf("agent: checkpoint failed for session %s at %s: %v",
				session.ID, session.CurrentStep, err)
		}
	}

	// Best-effort final checkpoint for the cancelled path, which may have
	// broken out with a dead context.
	if session.CurrentStep == domain.StepCancelled {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := o.checkpoints.Save(saveCtx, session); err != nil {
			log.Printf("agent: failed to checkpoint cancelled session %s: %v", session.ID, err)
		}
	}

	metrics.ObserveSession(string(session.Status))
	return session, nil
}

func (o *Orchestrator) transition(session *domain.Session, next domain.Step, detail string) {
	session.Trace = append(session.Trace, domain.TraceEntry{
		Step:   session.CurrentStep,
		Detail: detail,
		At:     time.Now().UTC(),
	})
	session.CurrentStep = next
}

func (o *Orchestrator) finish(session *domain.Session, status domain.SessionStatus, detail string) {
	o.transition(session, domain.StepDone, detail)
	session.Status = status
	now := time.Now().UTC()
	session.CompletedAt = &now
}

// fail records the internal error on the session and sets a user-safe answer.
// Raw error text never reaches FinalAnswer.
func (o *Orchestrator) fail(session *domain.Session, err error) {
	log.Printf("agent: session %s failed at %s: %v", session.ID, session.CurrentStep, err)
	session.Error = err.Error()
	o.transition(session, domain.StepFailed, "step failed")
	session.Status = domain.SessionStatusFailed
	session.FinalAnswer = userSafeMessage(err)
	now := time.Now().UTC()
	session.CompletedAt = &now
}

func (o *Orchestrator) cancel(session *domain.Session, cause error) {
	session.Error = cause.Error()
	o.transition(session, domain.StepCancelled, "cancelled before step started")
	session.Status = domain.SessionStatusCancelled
	now := time.Now().UTC()
	session.CompletedAt = &now
}

func userSafeMessage(err error) string {
	var de *domain.DomainError
	if errors.As(err, &de) {
		switch de.Code {
		case domain.ErrCodeRetrievalUnavailable:
			return "Search is temporarily unavailable. Please try again shortly."
		case domain.ErrCodeGenerationFailed:
			return "I could not produce an answer right now. Please try again."
		case domain.ErrCodeAnswerNotGrounded:
			return "I could not verify an answer against your documents. Try rephrasing your question."
		}
	}
	return "Something went wrong while answering your question. Please try again."
}
