package middleware

import (
	"net/http"

	"github.com/mwhitfield/authgate/internal/detect"
	"github.com/mwhitfield/authgate/internal/models"
	"github.com/mwhitfield/authgate/internal/services"
	pkghttp "github.com/mwhitfield/authgate/pkg/http"
)

// SuspiciousActivity screens requests through the detector before they reach
// any handler. Blocked requests are rejected with 403 and audited; flagged
// requests proceed but leave an audit record.
func SuspiciousActivity(detector *detect.Detector, audit *services.AuditRecorder, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := pkghttp.ExtractClientIP(r, ipConfig)

			assessment := detector.Assess(r.Context(), detect.RequestContext{
				IPAddress: ip,
				UserAgent: r.UserAgent(),
				Path:      r.URL.Path,
			})

			switch assessment.Action {
			case detect.ActionBlock:
				audit.SecurityEvent(models.AuditEventSuspiciousBlock, ip, assessment.Reason, map[string]string{
					"path": r.URL.Path,
				})
				pkghttp.WriteForbidden(w, "Request rejected")
				return
			case detect.ActionFlag:
				audit.SecurityEvent(models.AuditEventSuspiciousFlag, ip, assessment.Reason, map[string]string{
					"path": r.URL.Path,
				})
			}

			next.ServeHTTP(w, r)
		})
	}
}
