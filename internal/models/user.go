package models

import (
	"time"
)

// AccountStatus is the lifecycle state of a user account.
// Deleted accounts keep their row (and their login attempt history) but can
// never authenticate.
type AccountStatus string

const (
	StatusActive    AccountStatus = "active"
	StatusSuspended AccountStatus = "suspended"
	StatusDeleted   AccountStatus = "deleted"
)

// Valid reports whether s is one of the known statuses.
func (s AccountStatus) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusDeleted:
		return true
	}
	return false
}

type User struct {
	ID           string
	Email        string // stored normalized: lowercased, trimmed
	PasswordHash string
	Name         string
	Role         string  // e.g., "user", "admin"
	TenantID     *string // nil for central (platform) accounts
	Status       AccountStatus
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsCentral reports whether the account belongs to the central (platform)
// context rather than a tenant.
func (u *User) IsCentral() bool {
	return u.TenantID == nil
}
