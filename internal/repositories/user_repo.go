package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mwhitfield/authgate/internal/database"
	"github.com/mwhitfield/authgate/internal/models"
)

// UserRepository handles database operations for user accounts
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, name, role, tenant_id, status, last_login_at, created_at, updated_at`

func (r *UserRepository) scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Name,
		&u.Role,
		&u.TenantID,
		&u.Status,
		&u.LastLoginAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &u, nil
}

// GetByEmail looks up an account by its normalized email within one auth
// context: tenant accounts match only their tenant, central accounts only
// the central context. The same email can exist once per context.
func (r *UserRepository) GetByEmail(ctx context.Context, authCtx models.AuthContext, email string) (*models.User, error) {
	if tenantID, ok := authCtx.TenantID(); ok {
		query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND tenant_id = $2`
		return r.scanUser(r.db.Pool.QueryRow(ctx, query, email, tenantID))
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND tenant_id IS NULL`
	return r.scanUser(r.db.Pool.QueryRow(ctx, query, email))
}

// GetByID fetches an account by id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.db.Pool.QueryRow(ctx, query, id))
}

// Create inserts a new account and returns it.
func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Status == "" {
		user.Status = models.StatusActive
	}

	query := `
		INSERT INTO users (id, email, password_hash, name, role, tenant_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + userColumns

	return r.scanUser(r.db.Pool.QueryRow(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Name,
		user.Role,
		user.TenantID,
		user.Status,
	))
}

// UpdateLastLogin stamps a successful authentication.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE users SET last_login_at = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, id, at)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdatePassword replaces the stored hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdateStatus moves an account between lifecycle states.
func (r *UserRepository) UpdateStatus(ctx context.Context, id string, status models.AccountStatus) error {
	if !status.Valid() {
		return models.ErrBadRequest
	}
	query := `UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, id, status)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
