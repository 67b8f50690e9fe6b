package domain

import (
	"fmt"
	"time"
)

// Tenant is the isolation unit. Every document, chunk, and session row carries
// the owning tenant's ID, and every read path filters on it.
type Tenant struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// ValidateTenant validates a Tenant instance
func ValidateTenant(t *Tenant) error {
	if t == nil {
		return fmt.Errorf("tenant cannot be nil")
	}
	if t.ID == "" {
		return fmt.Errorf("tenant ID is required")
	}
	if t.Name == "" {
		return fmt.Errorf("tenant Name is required")
	}
	return nil
}
