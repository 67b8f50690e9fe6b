package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/tessera-ai/tessera/internal/api"
)

type contextKey string

const (
	TenantIDKey contextKey = "tenant_id"
	UserIDKey   contextKey = "user_id"
)

// Identity reads the tenant and user identifiers the upstream gateway
// verified and injected. Tessera never authenticates callers itself; a
// request without X-Tenant-ID means the gateway was bypassed and is
// rejected.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := strings.TrimSpace(r.Header.Get("X-Tenant-ID"))
		if tenantID == "" {
			api.Error(w, http.StatusUnauthorized, "missing tenant identity")
			return
		}
		userID := strings.TrimSpace(r.Header.Get("X-User-ID"))

		ctx := context.WithValue(r.Context(), TenantIDKey, tenantID)
		ctx = context.WithValue(ctx, UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetTenantID returns the tenant ID from context.
func GetTenantID(ctx context.Context) string {
	tenantID, _ := ctx.Value(TenantIDKey).(string)
	return tenantID
}

// GetUserID returns the user ID from context.
func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}
