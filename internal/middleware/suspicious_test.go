package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mwhitfield/authgate/internal/detect"
	"github.com/mwhitfield/authgate/internal/services"
	pkghttp "github.com/mwhitfield/authgate/pkg/http"
	pkglogger "github.com/mwhitfield/authgate/pkg/logger"
	"github.com/stretchr/testify/assert"
)

func suspiciousChain(opts detect.Options) (http.Handler, *bool) {
	logger := slog.Default()
	detector := detect.New(nil, opts, logger)
	audit := services.NewAuditRecorder(pkglogger.NewAuditLogger(logger), nil, logger)

	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})
	return SuspiciousActivity(detector, audit, &pkghttp.IPConfig{})(next), &reached
}

func TestSuspiciousActivity_CleanRequestPasses(t *testing.T) {
	handler, reached := suspiciousChain(detect.DefaultOptions())

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:40000"
	req.Header.Set("User-Agent", "Mozilla/5.0")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, *reached)
}

func TestSuspiciousActivity_BlocksScanner(t *testing.T) {
	handler, reached := suspiciousChain(detect.DefaultOptions())

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:40000"
	req.Header.Set("User-Agent", "sqlmap/1.7")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, *reached, "blocked requests never reach the handler")
}

func TestSuspiciousActivity_BlocksProbePath(t *testing.T) {
	handler, reached := suspiciousChain(detect.DefaultOptions())

	req := httptest.NewRequest(http.MethodGet, "/wp-admin/setup.php", nil)
	req.RemoteAddr = "10.0.0.1:40000"
	req.Header.Set("User-Agent", "Mozilla/5.0")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, *reached)
}
