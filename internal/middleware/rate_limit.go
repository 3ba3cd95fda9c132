package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/mwhitfield/authgate/internal/auth"
	pkghttp "github.com/mwhitfield/authgate/pkg/http"
)

// APIRateLimitConfig holds the general API quota. Authenticated callers get
// a higher budget keyed by user id; anonymous callers are keyed by IP.
type APIRateLimitConfig struct {
	UserRequestsPerWindow int
	AnonRequestsPerWindow int
	Window                time.Duration
}

// DefaultAPIRateLimit returns the default general quota: 100 requests per
// minute per authenticated user, 20 per minute per anonymous IP.
func DefaultAPIRateLimit() APIRateLimitConfig {
	return APIRateLimitConfig{
		UserRequestsPerWindow: 100,
		AnonRequestsPerWindow: 20,
		Window:                time.Minute,
	}
}

func limitExceededHandler(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteError(w, http.StatusTooManyRequests, "Rate limit exceeded")
}

// APIRateLimit applies a differentiated quota to general API traffic. The
// two quotas keep independent counters; a caller who authenticates mid-
// window starts fresh against the user quota.
func APIRateLimit(config APIRateLimitConfig) func(next http.Handler) http.Handler {
	userLimiter := httprate.Limit(
		config.UserRequestsPerWindow,
		config.Window,
		httprate.WithKeyFuncs(keyByUserID),
		httprate.WithLimitHandler(limitExceededHandler),
	)
	anonLimiter := httprate.Limit(
		config.AnonRequestsPerWindow,
		config.Window,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(limitExceededHandler),
	)

	return func(next http.Handler) http.Handler {
		userNext := userLimiter(next)
		anonNext := anonLimiter(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := auth.ClaimsFromContext(r.Context()); ok {
				userNext.ServeHTTP(w, r)
				return
			}
			anonNext.ServeHTTP(w, r)
		})
	}
}

func keyByUserID(r *http.Request) (string, error) {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		return "user:" + claims.UserID, nil
	}
	return httprate.KeyByRealIP(r)
}
