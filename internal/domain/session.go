package domain

import (
	"fmt"
	"time"
)

// Step identifies a stage of the query workflow. The orchestrator checkpoints
// the full session after every step transition, so a restarted process resumes
// from CurrentStep without repeating completed work.
type Step string

const (
	StepAnalyzing  Step = "analyzing"
	StepRewriting  Step = "rewriting"
	StepRetrieving Step = "retrieving"
	StepReranking  Step = "reranking"
	StepGenerating Step = "generating"
	StepValidating Step = "validating"
	StepDone       Step = "done"
	StepFailed     Step = "failed"
	StepCancelled  Step = "cancelled"
)

// SessionStatus is the caller-visible outcome of a query session.
type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusDegraded  SessionStatus = "degraded"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// QueryIntent classifies what a query needs from the pipeline.
type QueryIntent string

const (
	IntentRetrieval      QueryIntent = "retrieval"
	IntentConversational QueryIntent = "conversational"
)

// TraceEntry is one human-readable line of the session's reasoning trace.
type TraceEntry struct {
	Step   Step      `json:"step"`
	Detail string    `json:"detail"`
	At     time.Time `json:"at"`
}

// Citation references the chunk that supported part of the answer.
type Citation struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Ordinal    int     `json:"ordinal"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

// Session is the mutable state threaded through one orchestration run.
// TenantID is fixed at creation and never reassigned; every downstream chunk
// read filters on it.
type Session struct {
	ID             string           `json:"id"`
	TenantID       string           `json:"tenant_id"`
	UserID         string           `json:"user_id"`
	OriginalQuery  string           `json:"original_query"`
	RewrittenQuery string           `json:"rewritten_query,omitempty"`
	Intent         QueryIntent      `json:"intent,omitempty"`
	Retrieved      []RetrievedChunk `json:"retrieved,omitempty"`
	Trace          []TraceEntry     `json:"trace"`
	CurrentStep    Step             `json:"current_step"`
	Status         SessionStatus    `json:"status"`
	FinalAnswer    string           `json:"final_answer,omitempty"`
	Citations      []Citation       `json:"citations,omitempty"`
	Degraded       bool             `json:"degraded,omitempty"`
	RetryCount     int              `json:"retry_count"`
	Error          string           `json:"error,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
}

// NewSession creates a session entering the analyzing step.
func NewSession(id, tenantID, userID, query string, now time.Time) *Session {
	return &Session{
		ID:            id,
		TenantID:      tenantID,
		UserID:        userID,
		OriginalQuery: query,
		CurrentStep:   StepAnalyzing,
		Status:        SessionStatusRunning,
		StartedAt:     now,
	}
}

// EffectiveQuery returns the rewritten query when one exists.
func (s *Session) EffectiveQuery() string {
	if s.RewrittenQuery != "" {
		return s.RewrittenQuery
	}
	return s.OriginalQuery
}

// Terminal reports whether the session reached a final step.
func (s *Session) Terminal() bool {
	switch s.CurrentStep {
	case StepDone, StepFailed, StepCancelled:
		return true
	}
	return false
}

// ValidateSession validates a Session instance
func ValidateSession(s *Session) error {
	if s == nil {
		return fmt.Errorf("session cannot be nil")
	}
	if s.ID == "" {
		return fmt.Errorf("session ID is required")
	}
	if s.TenantID == "" {
		return fmt.Errorf("session TenantID is required")
	}
	if s.UserID == "" {
		return fmt.Errorf("session UserID is required")
	}
	if s.OriginalQuery == "" {
		return fmt.Errorf("session OriginalQuery is required")
	}
	if !isValidStep(s.CurrentStep) {
		return fmt.Errorf("session CurrentStep is invalid: %s", s.CurrentStep)
	}
	return nil
}

func isValidStep(s Step) bool {
	switch s {
	case StepAnalyzing, StepRewriting, StepRetrieving, StepReranking,
		StepGenerating, StepValidating, StepDone, StepFailed, StepCancelled:
		return true
	}
	return false
}
