package models

import "time"

// LoginAttempt represents a single authentication attempt, success or failure.
// Rows are append-only and never mutated. UserID is a weak reference: the
// attempt survives deletion of the account it pointed at.
type LoginAttempt struct {
	ID            string     `db:"id"`
	UserID        *string    `db:"user_id"`
	Email         string     `db:"email"`
	IPAddress     string     `db:"ip_address"`
	UserAgent     string     `db:"user_agent"`
	Success       bool       `db:"success"`
	FailureReason *string    `db:"failure_reason"`
	AttemptedAt   time.Time  `db:"attempted_at"`
}

// AttemptScope selects which column a failure count is keyed by.
type AttemptScope string

const (
	ScopeEmail AttemptScope = "email"
	ScopeIP    AttemptScope = "ip_address"
)
