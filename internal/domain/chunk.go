package domain

import (
	"fmt"
	"time"
)

// EmbeddingDimensions is the fixed dimensionality of chunk embeddings.
const EmbeddingDimensions = 1536

// Chunk is the atomic retrieval unit: a contiguous span of a document's text.
// TenantID is a denormalized copy of the owning document's tenant and is set
// once at write time; search never derives it through a join. A nil Embedding
// marks a chunk that exhausted embedding retries: it stays eligible for sparse
// retrieval but is excluded from the dense path.
type Chunk struct {
	ID         string
	DocumentID string
	TenantID   string
	Ordinal    int
	Text       string
	TokenCount int
	Embedding  []float32
	Tombstoned bool
	CreatedAt  time.Time
}

// ValidateChunk validates a Chunk instance. A chunk whose tenant does not
// match its parent document must be rejected here, at write time.
func ValidateChunk(c *Chunk, doc *Document) error {
	if c == nil {
		return fmt.Errorf("chunk cannot be nil")
	}
	if c.ID == "" {
		return fmt.Errorf("chunk ID is required")
	}
	if c.DocumentID == "" {
		return fmt.Errorf("chunk DocumentID is required")
	}
	if c.TenantID == "" {
		return fmt.Errorf("chunk TenantID is required")
	}
	if c.Ordinal < 0 {
		return fmt.Errorf("chunk Ordinal cannot be negative")
	}
	if c.Text == "" {
		return fmt.Errorf("chunk Text is required")
	}
	if doc != nil {
		if c.DocumentID != doc.ID {
			return fmt.Errorf("chunk DocumentID %s does not match document %s", c.DocumentID, doc.ID)
		}
		if c.TenantID != doc.TenantID {
			return &DomainError{
				Code:    ErrCodeTenantIsolation,
				Message: fmt.Sprintf("chunk tenant %s does not match document tenant %s", c.TenantID, doc.TenantID),
			}
		}
	}
	if c.Embedding != nil && len(c.Embedding) != EmbeddingDimensions {
		return fmt.Errorf("chunk embedding has %d dimensions, expected %d", len(c.Embedding), EmbeddingDimensions)
	}
	return nil
}
