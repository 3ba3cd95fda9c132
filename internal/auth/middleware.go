package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mwhitfield/authgate/internal/models"
	pkghttp "github.com/mwhitfield/authgate/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// ClaimsContextKey is the key for storing token claims in context
	ClaimsContextKey contextKey = "claims"
)

// ClaimsFromContext returns the validated token claims, if any.
func ClaimsFromContext(ctx context.Context) (*models.TokenClaims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*models.TokenClaims)
	return claims, ok
}

// Middleware validates bearer tokens against the auth context the route
// group serves and injects the claims. Tokens issued for any other context
// are rejected here with 403, not 401: the token is real, just not valid in
// this context.
func Middleware(tm *TokenManager, authCtx models.AuthContext) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				pkghttp.WriteUnauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				pkghttp.WriteUnauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := tm.ValidateToken(parts[1])
			if err != nil {
				pkghttp.WriteUnauthorized(w, "Invalid or expired token")
				return
			}

			// Refresh tokens are only good at the refresh endpoint.
			if claims.Type != models.TokenTypeAccess {
				pkghttp.WriteUnauthorized(w, "Invalid or expired token")
				return
			}

			if claims.Context != authCtx.String() {
				pkghttp.WriteForbidden(w, "Token not valid for this context")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantMiddleware is Middleware for tenant routes where the tenant id is a
// URL parameter rather than fixed at router-build time.
func TenantMiddleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := chi.URLParam(r, "tenantID")
			if tenantID == "" {
				pkghttp.WriteBadRequest(w, "Missing tenant identifier")
				return
			}
			Middleware(tm, models.TenantContext(tenantID))(next).ServeHTTP(w, r)
		})
	}
}

// RequireAbility enforces a base ability. The check runs against the
// context the token itself was issued for (already verified to match the
// route by Middleware), so a central wildcard can never satisfy a tenant
// route even if an operator pastes the wrong token.
func RequireAbility(ability string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			authCtx, err := claims.AuthContext()
			if err != nil || !authCtx.Grants(claims.Abilities, ability) {
				pkghttp.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
