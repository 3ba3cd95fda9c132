package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mwhitfield/authgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func claimsEcho(t *testing.T, got **models.TokenClaims) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		*got = claims
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_RejectsMissingAndMalformedHeaders(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute, 24*time.Hour)
	handler := Middleware(tm, models.CentralContext())(okHandler())

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing", header: ""},
		{name: "not bearer", header: "Basic dXNlcjpwdw=="},
		{name: "garbage token", header: "Bearer not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestMiddleware_AcceptsAccessTokenAndInjectsClaims(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute, 24*time.Hour)
	token, err := tm.IssueAccessToken(testTokenUser(), models.CentralContext())
	require.NoError(t, err)

	var got *models.TokenClaims
	handler := Middleware(tm, models.CentralContext())(claimsEcho(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, "user-123", got.UserID)
}

func TestMiddleware_RejectsRefreshToken(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute, 24*time.Hour)
	token, err := tm.IssueRefreshToken(testTokenUser(), models.CentralContext())
	require.NoError(t, err)

	handler := Middleware(tm, models.CentralContext())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddleware_CrossContextTokenIsForbidden(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute, 24*time.Hour)
	token, err := tm.IssueAccessToken(testTokenUser(), models.TenantContext("acme"))
	require.NoError(t, err)

	// A real, valid tenant token on a central route: 403, not 401.
	handler := Middleware(tm, models.CentralContext())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTenantMiddleware_ScopesToURLTenant(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute, 24*time.Hour)
	acmeToken, err := tm.IssueAccessToken(testTokenUser(), models.TenantContext("acme"))
	require.NoError(t, err)

	router := chi.NewRouter()
	router.Route("/tenants/{tenantID}", func(r chi.Router) {
		r.Use(TenantMiddleware(tm))
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/tenants/acme/ping", nil)
	req.Header.Set("Authorization", "Bearer "+acmeToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// The same token on another tenant's route is forbidden.
	req = httptest.NewRequest(http.MethodGet, "/tenants/globex/ping", nil)
	req.Header.Set("Authorization", "Bearer "+acmeToken)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireAbility(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute, 24*time.Hour)

	user := testTokenUser()
	userToken, err := tm.IssueAccessToken(user, models.CentralContext())
	require.NoError(t, err)

	admin := testTokenUser()
	admin.Role = "admin"
	adminToken, err := tm.IssueAccessToken(admin, models.CentralContext())
	require.NoError(t, err)

	chain := func(ability string) http.Handler {
		return Middleware(tm, models.CentralContext())(RequireAbility(ability)(okHandler()))
	}

	serve := func(h http.Handler, token string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, serve(chain(models.AbilityUsersRead), userToken))
	assert.Equal(t, http.StatusForbidden, serve(chain(models.AbilityAuditRead), userToken))

	// Admin wildcard grants everything within its own context.
	assert.Equal(t, http.StatusOK, serve(chain(models.AbilityAuditRead), adminToken))
}

func TestRequireAbility_NoClaims(t *testing.T) {
	handler := RequireAbility(models.AbilityUsersRead)(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
