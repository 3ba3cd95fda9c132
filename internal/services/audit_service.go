package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mwhitfield/authgate/internal/models"
	pkglogger "github.com/mwhitfield/authgate/pkg/logger"
)

const auditWriteTimeout = 3 * time.Second

// AuditSink is the persistence half of the audit trail.
type AuditSink interface {
	Insert(ctx context.Context, entry *models.AuditLog) error
}

// AuditRecorder fans audit events out to the structured log (synchronously,
// never fails) and to the database (asynchronously, best effort). A slow or
// down database must not slow down or fail the operation being audited.
type AuditRecorder struct {
	auditLog *pkglogger.AuditLogger
	sink     AuditSink
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewAuditRecorder creates a new AuditRecorder. sink may be nil; events then
// go to the structured log only.
func NewAuditRecorder(auditLog *pkglogger.AuditLogger, sink AuditSink, logger *slog.Logger) *AuditRecorder {
	return &AuditRecorder{
		auditLog: auditLog,
		sink:     sink,
		logger:   logger,
	}
}

// AuthAttempt records an authentication attempt or denial.
func (ar *AuditRecorder) AuthAttempt(eventKind string, authCtx models.AuthContext, userID, ip, userAgent, reason string, success bool) {
	ar.auditLog.LogAuthAttempt(pkglogger.AuditEvent{
		EventKind: eventKind,
		UserID:    userID,
		AuthCtx:   authCtx.String(),
		IPAddress: ip,
		UserAgent: userAgent,
		Success:   success,
		Reason:    reason,
	})

	severity := models.AuditSeverityInfo
	if !success {
		severity = models.AuditSeverityWarning
	}
	ar.persist(&models.AuditLog{
		EventKind: eventKind,
		Subject:   optional(userID),
		AuthCtx:   optional(authCtx.String()),
		IPAddress: optional(ip),
		UserAgent: optional(userAgent),
		Success:   success,
		Reason:    optional(reason),
		Severity:  severity,
	})
}

// SecurityEvent records a perimeter decision (rate limit, suspicious flag or
// block).
func (ar *AuditRecorder) SecurityEvent(eventKind, ip, reason string, metadata map[string]string) {
	ar.auditLog.LogSecurityEvent(eventKind, ip, reason, metadata)

	meta := make(models.AuditMetadata, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	ar.persist(&models.AuditLog{
		EventKind: eventKind,
		IPAddress: optional(ip),
		Success:   false,
		Reason:    optional(reason),
		Severity:  models.AuditSeverityWarning,
		Metadata:  meta,
	})
}

// AccountAction records a non-auth account event (registration, password
// change).
func (ar *AuditRecorder) AccountAction(eventKind, userID, ip string, metadata map[string]string) {
	ar.auditLog.LogAccountAction(eventKind, userID, ip, metadata)

	meta := make(models.AuditMetadata, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	ar.persist(&models.AuditLog{
		EventKind: eventKind,
		Subject:   optional(userID),
		IPAddress: optional(ip),
		Success:   true,
		Severity:  models.AuditSeverityInfo,
		Metadata:  meta,
	})
}

func (ar *AuditRecorder) persist(entry *models.AuditLog) {
	if ar.sink == nil {
		return
	}
	entry.OccurredAt = time.Now().UTC()

	ar.wg.Add(1)
	go func() {
		defer ar.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		defer cancel()

		if err := ar.sink.Insert(ctx, entry); err != nil {
			ar.logger.Error("audit record dropped",
				slog.String("event_kind", entry.EventKind),
				slog.Any("error", err))
		}
	}()
}

// Flush waits for in-flight audit writes; used on shutdown and in tests.
func (ar *AuditRecorder) Flush() {
	ar.wg.Wait()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
