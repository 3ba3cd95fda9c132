package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mwhitfield/authgate/internal/auth"
	"github.com/mwhitfield/authgate/internal/models"
	pkgauth "github.com/mwhitfield/authgate/pkg/auth"
	pkglogger "github.com/mwhitfield/authgate/pkg/logger"
)

// UserRepository defines the credential-store interface the core reads.
type UserRepository interface {
	GetByEmail(ctx context.Context, authCtx models.AuthContext, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// LockoutChecker is the slice of the attempt tracker the core consults.
type LockoutChecker interface {
	IsLockedOut(ctx context.Context, email, ip string) (bool, error)
	LockoutRemaining(ctx context.Context, email, ip string) (time.Duration, error)
	Record(ctx context.Context, email, ip, userAgent string, userID *string, success bool, reason *string) error
}

// AuthService orchestrates credential verification, lockout checks, token
// issuance and activity logging. Every failure it returns is a member of the
// error taxonomy in internal/models; internal errors never leak.
type AuthService struct {
	repo      UserRepository
	tracker   LockoutChecker
	tm        *auth.TokenManager
	validator *pkgauth.PasswordValidator
	timing    *auth.TimingDelay
	audit     *AuditRecorder
	logger    *slog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	repo UserRepository,
	tracker LockoutChecker,
	tm *auth.TokenManager,
	validator *pkgauth.PasswordValidator,
	timing *auth.TimingDelay,
	audit *AuditRecorder,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		repo:      repo,
		tracker:   tracker,
		tm:        tm,
		validator: validator,
		timing:    timing,
		audit:     audit,
		logger:    logger,
	}
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	Name        string  `json:"name"`
	Role        string  `json:"role"`
	TenantID    *string `json:"tenant_id,omitempty"`
	LastLoginAt *string `json:"last_login_at,omitempty"`
}

// AuthResponse represents the response from auth operations
type AuthResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	User         *UserResponse `json:"user"`
}

func failureReason(r string) *string { return &r }

// Login runs one authentication attempt through the full state machine:
// lockout check, credential verification, then token issuance or failure
// recording. authCtx is always explicit; the same email can be a different
// account per tenant.
func (s *AuthService) Login(ctx context.Context, authCtx models.AuthContext, email, password, ip, userAgent string) (*AuthResponse, error) {
	start := time.Now()
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		s.timing.WaitFrom(start)
		return nil, models.ErrInvalidCredentials
	}

	// Lockout is decided before the credential store is touched. A denied
	// attempt is audited but NOT recorded as a new failure: it was rejected
	// pre-verification and must not extend the lockout on its own.
	locked, err := s.tracker.IsLockedOut(ctx, email, ip)
	if err != nil {
		s.logger.Error("lockout check failed", slog.Any("error", err))
		return nil, models.ErrStoreUnavailable
	}
	if locked {
		remaining, err := s.tracker.LockoutRemaining(ctx, email, ip)
		if err != nil {
			s.logger.Error("lockout remaining lookup failed", slog.Any("error", err))
			return nil, models.ErrStoreUnavailable
		}

		s.logger.Info("login denied: account locked",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Duration("remaining", remaining))
		s.audit.AuthAttempt(models.AuditEventLoginDenied, authCtx, "", ip, userAgent, "account_locked", false)

		return nil, &models.LockoutError{RetryAfter: remaining}
	}

	user, err := s.repo.GetByEmail(ctx, authCtx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Burn a hash comparison so an unknown email costs the same as
			// a wrong password, then fail with the same generic error.
			pkgauth.CompareDummy(password)
			s.recordFailure(ctx, authCtx, email, ip, userAgent, nil, "invalid_credentials")
			s.timing.WaitFrom(start)
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrStoreUnavailable
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		s.recordFailure(ctx, authCtx, email, ip, userAgent, &user.ID, "invalid_credentials")
		s.timing.WaitFrom(start)
		return nil, models.ErrInvalidCredentials
	}

	// Status is checked only after the password verified, so a probe with a
	// wrong password cannot learn whether the account is suspended.
	if user.Status != models.StatusActive {
		s.recordFailure(ctx, authCtx, email, ip, userAgent, &user.ID, "account_inactive")
		s.timing.WaitFrom(start)
		return nil, models.ErrAccountInactive
	}

	accessToken, err := s.tm.IssueAccessToken(user, authCtx)
	if err != nil {
		s.logger.Error("failed to issue access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	refreshToken, err := s.tm.IssueRefreshToken(user, authCtx)
	if err != nil {
		s.logger.Error("failed to issue refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		// The login itself succeeded; a missed timestamp is not worth
		// failing it over.
		s.logger.Error("failed to update last login", slog.String("user_id", user.ID), slog.Any("error", err))
	}
	user.LastLoginAt = &now

	// Failure counters are not reset here: they age out of the trailing
	// window on their own.
	if err := s.tracker.Record(ctx, email, ip, userAgent, &user.ID, true, nil); err != nil {
		s.logger.Error("failed to record successful attempt", slog.Any("error", err))
	}

	s.logger.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("auth_ctx", authCtx.String()))
	s.audit.AuthAttempt(models.AuditEventLogin, authCtx, user.ID, ip, userAgent, "", true)

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         userModelToResponse(user),
	}, nil
}

// recordFailure appends the failed attempt and audits it. Recording happens
// after the lockout decision for this request, so a decision never counts
// attempts that are not durably stored yet.
func (s *AuthService) recordFailure(ctx context.Context, authCtx models.AuthContext, email, ip, userAgent string, userID *string, reason string) {
	if err := s.tracker.Record(ctx, email, ip, userAgent, userID, false, failureReason(reason)); err != nil {
		s.logger.Error("failed to record login attempt", slog.Any("error", err))
	}

	subject := ""
	if userID != nil {
		subject = *userID
	}
	s.logger.Info("login failed", slog.String("reason", reason))
	s.audit.AuthAttempt(models.AuditEventLoginDenied, authCtx, subject, ip, userAgent, reason, false)
}

// Refresh exchanges a valid refresh token for a fresh token pair. The new
// pair is issued for the same auth context the refresh token was bound to.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	claims, err := s.tm.ValidateToken(strings.TrimSpace(refreshToken))
	if err != nil {
		return nil, models.ErrUnauthorized
	}
	if claims.Type != models.TokenTypeRefresh {
		s.logger.Warn("refresh attempt with non-refresh token", slog.String("user_id", claims.UserID))
		return nil, models.ErrUnauthorized
	}

	authCtx, err := claims.AuthContext()
	if err != nil {
		return nil, models.ErrUnauthorized
	}

	user, err := s.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user for token refresh", slog.Any("error", err))
		return nil, models.ErrStoreUnavailable
	}

	if user.Status != models.StatusActive {
		return nil, models.ErrUnauthorized
	}

	accessToken, err := s.tm.IssueAccessToken(user, authCtx)
	if err != nil {
		return nil, models.ErrInternalServer
	}
	newRefreshToken, err := s.tm.IssueRefreshToken(user, authCtx)
	if err != nil {
		return nil, models.ErrInternalServer
	}

	s.logger.Info("token refreshed", slog.String("user_id", user.ID))

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		User:         userModelToResponse(user),
	}, nil
}

// Register creates a new account in the given auth context. This is the one
// flow where password-rule failures are reported with the specific rule that
// failed; login never explains itself.
func (s *AuthService) Register(ctx context.Context, authCtx models.AuthContext, email, password, name, ip string) (*UserResponse, error) {
	email = NormalizeEmail(email)
	name = strings.TrimSpace(name)

	if email == "" {
		return nil, fmt.Errorf("%w: email is required", models.ErrValidationFailed)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", models.ErrValidationFailed)
	}

	if err := s.validator.Validate(password); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrValidationFailed, err)
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         "user",
		Status:       models.StatusActive,
	}
	if tenantID, ok := authCtx.TenantID(); ok {
		user.TenantID = &tenantID
	}

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.logger.Info("registration failed: email already registered")
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrStoreUnavailable
	}

	s.logger.Info("user registered",
		slog.String("user_id", created.ID),
		slog.String("auth_ctx", authCtx.String()))
	s.audit.AccountAction(models.AuditEventRegister, created.ID, ip, map[string]string{
		"auth_ctx": authCtx.String(),
	})

	return userModelToResponse(created), nil
}

// ChangePassword verifies the current password and replaces it. Like
// Register, rule failures are reported with the violated rule.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next, ip string) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUnauthorized
		}
		return models.ErrStoreUnavailable
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, current); err != nil {
		s.audit.AccountAction(models.AuditEventPasswordChange, userID, ip, map[string]string{"outcome": "wrong_current_password"})
		return models.ErrInvalidCredentials
	}

	if err := s.validator.Validate(next); err != nil {
		return fmt.Errorf("%w: %w", models.ErrValidationFailed, err)
	}

	hash, err := pkgauth.HashPassword(next)
	if err != nil {
		return models.ErrInternalServer
	}

	if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
		return models.ErrStoreUnavailable
	}

	s.logger.Info("password changed", slog.String("user_id", userID))
	s.audit.AccountAction(models.AuditEventPasswordChange, userID, ip, map[string]string{"outcome": "changed"})
	return nil
}

// Logout audits the logout. Access tokens are short-lived and stateless;
// the client discards the pair.
func (s *AuthService) Logout(ctx context.Context, claims *models.TokenClaims, ip string) {
	authCtx, err := claims.AuthContext()
	if err != nil {
		authCtx = models.CentralContext()
	}
	s.logger.Info("user logged out", slog.String("user_id", claims.UserID))
	s.audit.AuthAttempt(models.AuditEventLogout, authCtx, claims.UserID, ip, "", "", true)
}

// CurrentUser loads the profile behind a validated token.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		return nil, models.ErrStoreUnavailable
	}
	return userModelToResponse(user), nil
}

// NormalizeEmail lowercases and trims an email for storage and lookup.
// Matching is an exact comparison on this normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func userModelToResponse(user *models.User) *UserResponse {
	resp := &UserResponse{
		ID:       user.ID,
		Email:    user.Email,
		Name:     user.Name,
		Role:     user.Role,
		TenantID: user.TenantID,
	}
	if user.LastLoginAt != nil {
		formatted := user.LastLoginAt.Format(time.RFC3339)
		resp.LastLoginAt = &formatted
	}
	return resp
}
