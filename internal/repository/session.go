package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-ai/tessera/internal/domain"
)

// SessionRepository stores full session snapshots, one row per session,
// overwritten at every checkpoint.
type SessionRepository struct {
	db dbtx
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: pool}
}

// Save upserts the session snapshot. Called after every step transition.
func (r *SessionRepository) Save(ctx context.Context, s *domain.Session) error {
	requireTenant(s.TenantID)
	state, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO sessions (id, tenant_id, user_id, current_step, status, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		 ON CONFLICT (id) DO UPDATE
		 SET current_step = EXCLUDED.current_step,
		     status = EXCLUDED.status,
		     state = EXCLUDED.state,
		     updated_at = now()`,
		s.ID, s.TenantID, s.UserID, s.CurrentStep, s.Status, state, s.StartedAt,
	)
	return err
}

// GetForTenant loads a session checkpoint. A session owned by a different
// tenant is reported as a mismatch, not as not-found, so resume attempts
// across tenants surface as the security error they are.
func (r *SessionRepository) GetForTenant(ctx context.Context, tenantID, id string) (*domain.Session, error) {
	requireTenant(tenantID)
	var storedTenant string
	var state []byte
	err := r.db.QueryRow(ctx,
		`SELECT tenant_id, state FROM sessions WHERE id = $1`,
		id,
	).Scan(&storedTenant, &state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	if storedTenant != tenantID {
		return nil, domain.ErrTenantMismatch
	}

	var s domain.Session
	if err := json.Unmarshal(state, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session state: %w", err)
	}
	return &s, nil
}

// DeleteCompletedBefore removes terminal sessions whose last update is older
// than cutoff. Runs from the retention job and is not tenant-scoped.
func (r *SessionRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM sessions
		 WHERE status IN ($1, $2, $3, $4) AND updated_at < $5`,
		domain.SessionStatusCompleted, domain.SessionStatusDegraded,
		domain.SessionStatusFailed, domain.SessionStatusCancelled,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}
