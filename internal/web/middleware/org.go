package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/punchclock/internal/logging"
)

type contextKey string

const orgContextKey contextKey = "org"

var orgIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// RequireOrg validates the {orgID} route parameter and scopes the request
// context and logger to it.
func RequireOrg(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		org := chi.URLParam(r, "orgID")
		if !orgIDPattern.MatchString(org) {
			http.Error(w, `{"error": "invalid organization id"}`, http.StatusBadRequest)
			return
		}

		ctx := SetOrgInContext(r.Context(), org)
		ctx = logging.ContextWithLogger(ctx, logging.FromContext(ctx).With("org", org))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OrgFromContext retrieves the organization id from the request context
func OrgFromContext(ctx context.Context) string {
	org, _ := ctx.Value(orgContextKey).(string)
	return org
}

// SetOrgInContext adds an organization id to the context.
// This is primarily for testing - use RequireOrg middleware in production.
func SetOrgInContext(ctx context.Context, org string) context.Context {
	return context.WithValue(ctx, orgContextKey, org)
}
