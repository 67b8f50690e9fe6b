package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tessera-ai/tessera/internal/api"
	"github.com/tessera-ai/tessera/internal/api/middleware"
	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/ingest"
	"github.com/tessera-ai/tessera/internal/pagination"
)

type DocumentService interface {
	Ingest(ctx context.Context, input ingest.IngestInput) (*ingest.IngestAck, error)
	GetDocument(ctx context.Context, tenantID, documentID string) (*domain.Document, error)
	DeleteDocument(ctx context.Context, tenantID, documentID string) error
}

type DocumentLister interface {
	ListWithCursor(ctx context.Context, tenantID string, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.Document], error)
}

type DocumentHandler struct {
	svc    DocumentService
	lister DocumentLister
}

func NewDocumentHandler(svc DocumentService, lister DocumentLister) *DocumentHandler {
	return &DocumentHandler{svc: svc, lister: lister}
}

type IngestDocumentRequest struct {
	DocumentID string `json:"document_id,omitempty"`
	SourceURI  string `json:"source_uri,omitempty"`
	Text       string `json:"text"`
}

type IngestDocumentResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

type DocumentResponse struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	SourceURI  string `json:"source_uri,omitempty"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
	IngestedAt string `json:"ingested_at,omitempty"`
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	resp := &DocumentResponse{
		ID:         d.ID,
		TenantID:   d.TenantID,
		SourceURI:  d.SourceURI,
		Status:     string(d.Status),
		ChunkCount: d.ChunkCount,
		Error:      d.Error,
		CreatedAt:  d.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
	if d.IngestedAt != nil {
		resp.IngestedAt = d.IngestedAt.Format("2006-01-02T15:04:05Z")
	}
	return resp
}

// Ingest accepts extracted document text and queues chunking and embedding.
// The 202 acknowledgment returns before any heavy work runs.
func (h *DocumentHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req IngestDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Text == "" {
		api.Error(w, http.StatusBadRequest, "text is required")
		return
	}

	ack, err := h.svc.Ingest(r.Context(), ingest.IngestInput{
		DocumentID: req.DocumentID,
		TenantID:   tenantID,
		SourceURI:  req.SourceURI,
		Text:       req.Text,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, IngestDocumentResponse{
		DocumentID: ack.DocumentID,
		Status:     string(ack.Status),
	})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	doc, err := h.svc.GetDocument(r.Context(), tenantID, id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

type DocumentListResponse struct {
	Items   []*DocumentResponse `json:"items"`
	Cursor  string              `json:"cursor,omitempty"`
	HasMore bool                `json:"has_more"`
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursor, err := pagination.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid cursor")
		return
	}

	page, err := h.lister.ListWithCursor(r.Context(), tenantID, cursor, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*DocumentResponse, len(page.Items))
	for i, d := range page.Items {
		items[i] = documentToResponse(d)
	}
	api.Success(w, http.StatusOK, DocumentListResponse{
		Items:   items,
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	})
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

	if err := h.svc.DeleteDocument(r.Context(), tenantID, id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{"id": id, "deleted": "true"})
}
