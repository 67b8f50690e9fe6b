package domain

import (
	"fmt"
	"time"
)

// DocumentStatus represents the ingestion status of a document
type DocumentStatus string

const (
	DocumentStatusPending DocumentStatus = "pending"
	DocumentStatusChunked DocumentStatus = "chunked"
	DocumentStatusFailed  DocumentStatus = "failed"
)

// Document is an opaque unit of uploaded content owned by exactly one tenant.
// The raw bytes live with the preprocessing collaborator; this core only sees
// extracted plain text and the resulting chunks.
type Document struct {
	ID         string
	TenantID   string
	SourceURI  string
	Status     DocumentStatus
	Error      string
	ChunkCount int
	IngestedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewDocument creates a pending document owned by tenantID.
func NewDocument(id, tenantID, sourceURI string, now time.Time) *Document {
	return &Document{
		ID:        id,
		TenantID:  tenantID,
		SourceURI: sourceURI,
		Status:    DocumentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}
	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}
	if d.TenantID == "" {
		return fmt.Errorf("document TenantID is required")
	}
	if !isValidDocumentStatus(d.Status) {
		return fmt.Errorf("document Status is invalid: %s", d.Status)
	}
	return nil
}

func isValidDocumentStatus(s DocumentStatus) bool {
	switch s {
	case DocumentStatusPending, DocumentStatusChunked, DocumentStatusFailed:
		return true
	}
	return false
}
