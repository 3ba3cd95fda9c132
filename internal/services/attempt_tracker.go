package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/mwhitfield/authgate/internal/models"
)

// AttemptRepository defines the storage interface for the attempt log.
type AttemptRepository interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
	CountFailuresByEmail(ctx context.Context, email string, since time.Time) (int, error)
	CountFailuresByIP(ctx context.Context, ipAddress string, since time.Time) (int, error)
	OldestFailureSince(ctx context.Context, scope models.AttemptScope, value string, since time.Time) (*time.Time, error)
}

// TrackerConfig holds the lockout policy.
type TrackerConfig struct {
	MaxAttempts int           // failures before lockout, per scope
	Window      time.Duration // trailing window the failures must fall in
}

// DefaultTrackerConfig returns the policy used when a deployment overrides
// nothing: 5 failures in 15 minutes.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxAttempts: 5,
		Window:      15 * time.Minute,
	}
}

// AttemptTracker records authentication attempts and answers lockout queries
// from the persisted attempt log. A lockout decision is a pure function of
// the failed-attempt counts inside the trailing window.
type AttemptTracker struct {
	repo   AttemptRepository
	config TrackerConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewAttemptTracker creates a new AttemptTracker
func NewAttemptTracker(repo AttemptRepository, config TrackerConfig, logger *slog.Logger) *AttemptTracker {
	return &AttemptTracker{
		repo:   repo,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Record appends an immutable attempt record. Durability is the repository's
// problem; the tracker does no validation beyond filling the timestamp.
func (t *AttemptTracker) Record(ctx context.Context, email, ip, userAgent string, userID *string, success bool, reason *string) error {
	return t.repo.RecordAttempt(ctx, &models.LoginAttempt{
		UserID:        userID,
		Email:         email,
		IPAddress:     ip,
		UserAgent:     userAgent,
		Success:       success,
		FailureReason: reason,
		AttemptedAt:   t.now().UTC(),
	})
}

// CountRecentFailures counts failed attempts for one scope within the
// trailing window ending now.
func (t *AttemptTracker) CountRecentFailures(ctx context.Context, scope models.AttemptScope, value string, window time.Duration) (int, error) {
	since := t.now().Add(-window)
	switch scope {
	case models.ScopeEmail:
		return t.repo.CountFailuresByEmail(ctx, value, since)
	case models.ScopeIP:
		return t.repo.CountFailuresByIP(ctx, value, since)
	}
	return 0, models.ErrBadRequest
}

// IsLockedOut reports whether either the email's or the IP's recent-failure
// count has reached the threshold. OR semantics: credential stuffing across
// many emails from one IP is caught by the IP scope, and a distributed
// attack on one email is caught by the email scope.
func (t *AttemptTracker) IsLockedOut(ctx context.Context, email, ip string) (bool, error) {
	emailCount, err := t.CountRecentFailures(ctx, models.ScopeEmail, email, t.config.Window)
	if err != nil {
		return false, err
	}
	if emailCount >= t.config.MaxAttempts {
		return true, nil
	}

	ipCount, err := t.CountRecentFailures(ctx, models.ScopeIP, ip, t.config.Window)
	if err != nil {
		return false, err
	}
	return ipCount >= t.config.MaxAttempts, nil
}

// LockoutRemaining returns the time until the oldest qualifying failure falls
// outside the window, i.e. when the lockout lifts if no further failures
// arrive. Zero when no qualifying failure exists.
func (t *AttemptTracker) LockoutRemaining(ctx context.Context, email, ip string) (time.Duration, error) {
	since := t.now().Add(-t.config.Window)

	oldest, err := t.repo.OldestFailureSince(ctx, models.ScopeEmail, email, since)
	if err != nil {
		return 0, err
	}

	ipOldest, err := t.repo.OldestFailureSince(ctx, models.ScopeIP, ip, since)
	if err != nil {
		return 0, err
	}

	// Retry-after counts from the oldest qualifying failure in either scope.
	candidate := oldest
	if candidate == nil || (ipOldest != nil && ipOldest.Before(*candidate)) {
		candidate = ipOldest
	}
	if candidate == nil {
		return 0, nil
	}

	remaining := candidate.Add(t.config.Window).Sub(t.now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
