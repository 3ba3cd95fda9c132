package repositories

import (
	"context"
	"time"

	"github.com/mwhitfield/authgate/internal/database"
	"github.com/mwhitfield/authgate/internal/models"
	"github.com/jackc/pgx/v5"
)

// LoginAttemptRepository handles database operations for the append-only
// login attempt log. There is deliberately no update or single-row delete:
// attempts are immutable once written.
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// RecordAttempt appends an attempt record. user_id is a plain column, not a
// foreign key, so attempts outlive the accounts they reference.
func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (user_id, email, ip_address, user_agent, success, failure_reason, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	attemptedAt := attempt.AttemptedAt
	if attemptedAt.IsZero() {
		attemptedAt = time.Now().UTC()
	}

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.UserID,
		attempt.Email,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.Success,
		attempt.FailureReason,
		attemptedAt,
	)

	return database.MapPostgresError(err)
}

// CountFailuresByEmail returns the number of failed attempts for an email
// since the given time.
func (r *LoginAttemptRepository) CountFailuresByEmail(ctx context.Context, email string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE email = $1 AND success = false AND attempted_at >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, email, since).Scan(&count)
	return count, database.MapPostgresError(err)
}

// CountFailuresByIP returns the number of failed attempts from an IP since
// the given time.
func (r *LoginAttemptRepository) CountFailuresByIP(ctx context.Context, ipAddress string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE ip_address = $1 AND success = false AND attempted_at >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, ipAddress, since).Scan(&count)
	return count, database.MapPostgresError(err)
}

// OldestFailureSince returns the timestamp of the oldest failed attempt for
// the scope within the window, or nil when there is none. The lockout clock
// runs from this attempt: the lockout lifts when it ages out of the window.
func (r *LoginAttemptRepository) OldestFailureSince(ctx context.Context, scope models.AttemptScope, value string, since time.Time) (*time.Time, error) {
	var query string
	switch scope {
	case models.ScopeEmail:
		query = `
			SELECT attempted_at FROM login_attempts
			WHERE email = $1 AND success = false AND attempted_at >= $2
			ORDER BY attempted_at ASC
			LIMIT 1
		`
	case models.ScopeIP:
		query = `
			SELECT attempted_at FROM login_attempts
			WHERE ip_address = $1 AND success = false AND attempted_at >= $2
			ORDER BY attempted_at ASC
			LIMIT 1
		`
	default:
		return nil, models.ErrBadRequest
	}

	var attemptedAt time.Time
	err := r.db.Pool.QueryRow(ctx, query, value, since).Scan(&attemptedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &attemptedAt, nil
}

// LastSuccessByEmail returns the timestamp of the most recent successful
// login for an email, or nil when there is none.
func (r *LoginAttemptRepository) LastSuccessByEmail(ctx context.Context, email string) (*time.Time, error) {
	query := `
		SELECT attempted_at FROM login_attempts
		WHERE email = $1 AND success = true
		ORDER BY attempted_at DESC
		LIMIT 1
	`

	var attemptedAt time.Time
	err := r.db.Pool.QueryRow(ctx, query, email).Scan(&attemptedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &attemptedAt, nil
}

// DeleteOlderThan prunes attempts past the retention horizon. Called by the
// background cleanup job, never by the request path.
func (r *LoginAttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM login_attempts WHERE attempted_at < $1`
	tag, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
