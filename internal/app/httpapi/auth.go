package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/r3e-network/agentcp/internal/apierrors"
	"github.com/r3e-network/agentcp/internal/app/auth"
)

type contextKey string

const orgIDContextKey contextKey = "org_id"

// orgIDFromContext returns the organization id a prior adminAuth middleware
// resolved from the bearer token, or "" if none ran.
func orgIDFromContext(ctx context.Context) string {
	orgID, _ := ctx.Value(orgIDContextKey).(string)
	return orgID
}

// adminAuth validates the bearer JWT on every admin-surface request and
// injects its org id into the request context (spec §6: the management API
// is tenant-scoped by the authenticated user's organization).
func adminAuth(manager auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token := strings.TrimPrefix(header, "Bearer ")
			if token == "" || token == header {
				writeError(w, apierrors.New(apierrors.CodeInvalidAPIKey, "missing bearer token"))
				return
			}
			claims, err := manager.Validate(token)
			if err != nil || claims.OrgID == "" {
				writeError(w, apierrors.New(apierrors.CodeInvalidAPIKey, "invalid or expired token"))
				return
			}
			ctx := context.WithValue(r.Context(), orgIDContextKey, claims.OrgID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// presentedAPIKey extracts the agent-facing X-API-KEY header. The
// authz.Pipeline this key feeds resolves the Agent/Project/key validity
// itself, so this layer does no validation of its own (spec §4.4 step 1).
func presentedAPIKey(r *http.Request) string {
	return r.Header.Get("X-API-KEY")
}
