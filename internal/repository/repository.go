package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx so repositories work
// inside and outside transactions.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// requireTenant enforces the isolation invariant at the lowest data-access
// layer. A missing tenant ID here means a code path tried to read or write
// tenant-scoped rows without a filter; that is a programming error, so it
// fails loudly instead of defaulting to "no filter".
func requireTenant(tenantID string) {
	if strings.TrimSpace(tenantID) == "" {
		panic(fmt.Sprintf("repository: tenant_id is required on every tenant-scoped access (got %q)", tenantID))
	}
}
