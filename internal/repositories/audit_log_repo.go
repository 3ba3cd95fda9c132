package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mwhitfield/authgate/internal/database"
	"github.com/mwhitfield/authgate/internal/models"
)

// AuditLogRepository persists activity records. Inserts are issued by the
// audit recorder on a best-effort basis; callers never block on them.
type AuditLogRepository struct {
	db *database.DB
}

// NewAuditLogRepository creates a new AuditLogRepository
func NewAuditLogRepository(db *database.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Insert writes one audit record.
func (r *AuditLogRepository) Insert(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_logs (id, event_kind, subject, auth_ctx, ip_address, user_agent, success, reason, severity, metadata, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		entry.ID,
		entry.EventKind,
		entry.Subject,
		entry.AuthCtx,
		entry.IPAddress,
		entry.UserAgent,
		entry.Success,
		entry.Reason,
		entry.Severity,
		entry.Metadata,
		entry.OccurredAt,
	)

	return database.MapPostgresError(err)
}

// ListRecent returns the newest audit records, newest first.
func (r *AuditLogRepository) ListRecent(ctx context.Context, limit int) ([]*models.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, event_kind, subject, auth_ctx, ip_address, user_agent, success, reason, severity, metadata, occurred_at
		FROM audit_logs
		ORDER BY occurred_at DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var entries []*models.AuditLog
	for rows.Next() {
		var e models.AuditLog
		if err := rows.Scan(
			&e.ID,
			&e.EventKind,
			&e.Subject,
			&e.AuthCtx,
			&e.IPAddress,
			&e.UserAgent,
			&e.Success,
			&e.Reason,
			&e.Severity,
			&e.Metadata,
			&e.OccurredAt,
		); err != nil {
			return nil, database.MapPostgresError(err)
		}
		entries = append(entries, &e)
	}

	return entries, database.MapPostgresError(rows.Err())
}

// DeleteOlderThan prunes audit records past the retention horizon.
func (r *AuditLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM audit_logs WHERE occurred_at < $1`
	tag, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
