package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event kinds for audit logging
const (
	AuditEventLogin           = "login"
	AuditEventLoginDenied     = "login_denied"
	AuditEventLogout          = "logout"
	AuditEventRegister        = "register"
	AuditEventPasswordChange  = "password_change"
	AuditEventRateLimited     = "rate_limited"
	AuditEventSuspiciousFlag  = "suspicious_flagged"
	AuditEventSuspiciousBlock = "suspicious_blocked"
)

// Severities
const (
	AuditSeverityInfo    = "info"
	AuditSeverityWarning = "warning"
	AuditSeverityError   = "error"
)

// AuditLog is a persisted activity record. Writes are best-effort: a failed
// audit insert never fails the operation being audited.
type AuditLog struct {
	ID         uuid.UUID     `db:"id"`
	EventKind  string        `db:"event_kind"`
	Subject    *string       `db:"subject"` // user id when known
	AuthCtx    *string       `db:"auth_ctx"`
	IPAddress  *string       `db:"ip_address"`
	UserAgent  *string       `db:"user_agent"`
	Success    bool          `db:"success"`
	Reason     *string       `db:"reason"`
	Severity   string        `db:"severity"`
	Metadata   AuditMetadata `db:"metadata"`
	OccurredAt time.Time     `db:"occurred_at"`
}

// AuditMetadata holds additional context for audit events
type AuditMetadata map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (am *AuditMetadata) Scan(value interface{}) error {
	if value == nil {
		*am = make(AuditMetadata)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*am = AuditMetadata(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (am AuditMetadata) Value() (driver.Value, error) {
	if am == nil {
		return nil, nil
	}
	return json.Marshal(am)
}
