package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tessera-ai/tessera/internal/api"
	"github.com/tessera-ai/tessera/internal/api/middleware"
	"github.com/tessera-ai/tessera/internal/domain"
)

type QueryService interface {
	Run(ctx context.Context, tenantID, userID, query string) (*domain.Session, error)
	Resume(ctx context.Context, tenantID, sessionID string) (*domain.Session, error)
}

type SessionReader interface {
	GetForTenant(ctx context.Context, tenantID, sessionID string) (*domain.Session, error)
}

type QueryHandler struct {
	svc      QueryService
	sessions SessionReader
}

func NewQueryHandler(svc QueryService, sessions SessionReader) *QueryHandler {
	return &QueryHandler{svc: svc, sessions: sessions}
}

type QueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

type CitationResponse struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Ordinal    int     `json:"ordinal"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

type TraceEntryResponse struct {
	Step   string `json:"step"`
	Detail string `json:"detail"`
	At     string `json:"at"`
}

type SessionResponse struct {
	ID          string               `json:"id"`
	Status      string               `json:"status"`
	CurrentStep string               `json:"current_step"`
	Query       string               `json:"query"`
	Answer      string               `json:"answer,omitempty"`
	Citations   []CitationResponse   `json:"citations,omitempty"`
	Degraded    bool                 `json:"degraded,omitempty"`
	Trace       []TraceEntryResponse `json:"trace,omitempty"`
	StartedAt   string               `json:"started_at"`
	CompletedAt string               `json:"completed_at,omitempty"`
}

func sessionToResponse(s *domain.Session) *SessionResponse {
	resp := &SessionResponse{
		ID:          s.ID,
		Status:      string(s.Status),
		CurrentStep: string(s.CurrentStep),
		Query:       s.OriginalQuery,
		Answer:      s.FinalAnswer,
		Degraded:    s.Degraded,
		StartedAt:   s.StartedAt.Format("2006-01-02T15:04:05Z"),
	}
	if s.CompletedAt != nil {
		resp.CompletedAt = s.CompletedAt.Format("2006-01-02T15:04:05Z")
	}
	for _, c := range s.Citations {
		resp.Citations = append(resp.Citations, CitationResponse{
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			Ordinal:    c.Ordinal,
			Snippet:    c.Snippet,
			Score:      c.Score,
		})
	}
	for _, t := range s.Trace {
		resp.Trace = append(resp.Trace, TraceEntryResponse{
			Step:   string(t.Step),
			Detail: t.Detail,
			At:     t.At.Format("2006-01-02T15:04:05Z"),
		})
	}
	return resp
}

// Query runs the full pipeline synchronously, or resumes a checkpointed
// session when session_id is set.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	userID := middleware.GetUserID(r.Context())

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var session *domain.Session
	var err error
	if req.SessionID != "" {
		session, err = h.svc.Resume(r.Context(), tenantID, req.SessionID)
		if errors.Is(err, domain.ErrSessionTerminal) {
			// A finished session resumes to itself.
			err = nil
		}
	} else {
		if req.Query == "" {
			api.Error(w, http.StatusBadRequest, "query is required")
			return
		}
		session, err = h.svc.Run(r.Context(), tenantID, userID, req.Query)
	}
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, sessionToResponse(session))
}

// GetSession returns the checkpointed state of a session, including its trace.
func (h *QueryHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	session, err := h.sessions.GetForTenant(r.Context(), tenantID, id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, sessionToResponse(session))
}
