package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mwhitfield/authgate/internal/auth"
	"github.com/mwhitfield/authgate/internal/models"
	"github.com/stretchr/testify/assert"
)

func quotaHandler(cfg APIRateLimitConfig) http.Handler {
	return APIRateLimit(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func anonRequest(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/resource", nil)
	req.RemoteAddr = ip + ":40000"
	return req
}

func userRequest(ip, userID string) *http.Request {
	req := anonRequest(ip)
	claims := &models.TokenClaims{UserID: userID, Type: models.TokenTypeAccess}
	return req.WithContext(context.WithValue(req.Context(), auth.ClaimsContextKey, claims))
}

func TestAPIRateLimit_AnonymousQuota(t *testing.T) {
	handler := quotaHandler(APIRateLimitConfig{
		UserRequestsPerWindow: 100,
		AnonRequestsPerWindow: 3,
		Window:                time.Minute,
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, anonRequest("10.0.0.1"))
		assert.Equal(t, http.StatusOK, w.Code, "request %d within quota", i+1)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, anonRequest("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Another IP has its own budget.
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, anonRequest("10.0.0.2"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIRateLimit_AuthenticatedGetsHigherQuota(t *testing.T) {
	handler := quotaHandler(APIRateLimitConfig{
		UserRequestsPerWindow: 10,
		AnonRequestsPerWindow: 2,
		Window:                time.Minute,
	})

	// Same IP: the authenticated caller sails past the anonymous budget.
	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, userRequest("10.0.0.1", "user-123"))
		assert.Equal(t, http.StatusOK, w.Code, "request %d within user quota", i+1)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, userRequest("10.0.0.1", "user-123"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestAPIRateLimit_QuotasAreKeyedIndependently(t *testing.T) {
	handler := quotaHandler(APIRateLimitConfig{
		UserRequestsPerWindow: 5,
		AnonRequestsPerWindow: 5,
		Window:                time.Minute,
	})

	// Different users behind one NAT do not share a budget.
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, userRequest("10.0.0.1", fmt.Sprintf("user-%d", i)))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
