package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mwhitfield/authgate/internal/models"
)

// MapPostgresError translates driver errors into domain sentinels. Anything
// that looks like the store itself failing (timeouts, connection loss) maps
// to ErrStoreUnavailable so callers can distinguish infra trouble from
// genuine auth failures.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrStoreUnavailable
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return models.ErrConflict
		case "23503": // foreign_key_violation
			return models.ErrBadRequest
		case "23502": // not_null_violation
			return models.ErrBadRequest
		}
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return models.ErrStoreUnavailable
	}

	return err
}
