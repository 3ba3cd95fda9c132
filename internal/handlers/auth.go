package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mwhitfield/authgate/internal/auth"
	"github.com/mwhitfield/authgate/internal/models"
	"github.com/mwhitfield/authgate/internal/services"
	pkghttp "github.com/mwhitfield/authgate/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, authCtx models.AuthContext, email, password, ip, userAgent string) (*services.AuthResponse, error)
	Register(ctx context.Context, authCtx models.AuthContext, email, password, name, ip string) (*services.UserResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*services.AuthResponse, error)
	ChangePassword(ctx context.Context, userID, current, next, ip string) error
	Logout(ctx context.Context, claims *models.TokenClaims, ip string)
	CurrentUser(ctx context.Context, userID string) (*services.UserResponse, error)
}

// AuthGate is the slice of the rate limiter the handler consults before and
// after each authentication attempt.
type AuthGate interface {
	CheckAuthGates(ctx context.Context, ip string) (services.RateLimitResult, error)
	RecordAuthFailure(ctx context.Context, ip string) error
	Escalate(ctx context.Context, subject string) (time.Duration, error)
}

// AuthHandler handles authentication-related HTTP requests. It owns the
// perimeter rate-limit decisions; the service owns the lockout and
// credential decisions.
type AuthHandler struct {
	service  AuthServiceInterface
	gate     AuthGate
	audit    *services.AuditRecorder
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, gate AuthGate, audit *services.AuditRecorder, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:  service,
		gate:     gate,
		audit:    audit,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=255"`
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required,min=1,max=255"`
}

// RefreshTokenRequest represents the request body for token refresh
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// resolveAuthCtx derives the auth context from the mounted route: tenant
// routes carry a tenantID URL parameter, central routes do not.
func resolveAuthCtx(r *http.Request) models.AuthContext {
	if tenantID := chi.URLParam(r, "tenantID"); tenantID != "" {
		return models.TenantContext(tenantID)
	}
	return models.CentralContext()
}

// Login handles one authentication attempt. The per-IP and global gates are
// probed up front without consuming budget; budget is consumed only when the
// attempt ends in an authentication or validation failure.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	authCtx := resolveAuthCtx(r)
	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	gateRes, ok := h.admitAuthRequest(w, r, ip)
	if !ok {
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.recordGateFailure(r.Context(), ip)
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		h.recordGateFailure(r.Context(), ip)
		h.writeValidationError(w, err)
		return
	}

	authResp, err := h.service.Login(r.Context(), authCtx, req.Email, req.Password, ip, userAgent)
	if err != nil {
		h.writeLoginError(w, r, ip, err)
		return
	}

	pkghttp.SetRateLimitHeaders(w, rateLimitMeta(gateRes))
	pkghttp.WriteJSON(w, http.StatusOK, "Login successful", authResp)
}

// writeLoginError maps a login failure onto the response taxonomy and
// consumes gate budget for the outcomes that count as failed attempts.
func (h *AuthHandler) writeLoginError(w http.ResponseWriter, r *http.Request, ip string, err error) {
	var lockout *models.LockoutError

	switch {
	case errors.As(err, &lockout):
		// A locked-out attempt still burns gate budget so a client cannot
		// hammer the endpoint for free while waiting out the lockout.
		h.recordGateFailure(r.Context(), ip)
		pkghttp.SetRateLimitHeaders(w, pkghttp.RateLimitMeta{RetryAfter: lockout.RetryAfter})
		pkghttp.WriteError(w, http.StatusTooManyRequests, "Account temporarily locked due to too many failed attempts")
	case errors.Is(err, models.ErrInvalidCredentials):
		h.recordGateFailure(r.Context(), ip)
		pkghttp.WriteUnauthorized(w, "Invalid credentials")
	case errors.Is(err, models.ErrAccountInactive):
		h.recordGateFailure(r.Context(), ip)
		pkghttp.WriteForbidden(w, "Account is not active")
	case errors.Is(err, models.ErrStoreUnavailable):
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// Register handles user registration in the route's auth context.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	authCtx := resolveAuthCtx(r)
	ip := pkghttp.ExtractClientIP(r, h.ipConfig)

	if _, ok := h.admitAuthRequest(w, r, ip); !ok {
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	user, err := h.service.Register(r.Context(), authCtx, req.Email, req.Password, req.Name, ip)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrValidationFailed):
			pkghttp.WriteErrorWithDetails(w, http.StatusUnprocessableEntity, "Validation failed", err.Error())
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "Email is already registered")
		case errors.Is(err, models.ErrStoreUnavailable):
			pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, "Registration successful", user)
}

// RefreshToken exchanges a refresh token for a new token pair.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	authResp, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Invalid or expired refresh token")
		case errors.Is(err, models.ErrStoreUnavailable):
			pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, "Token refreshed", authResp)
}

// Logout records the logout for the authenticated caller.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	h.service.Logout(r.Context(), claims, ip)

	w.WriteHeader(http.StatusNoContent)
}

// Me returns the profile of the authenticated caller.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	user, err := h.service.CurrentUser(r.Context(), claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Invalid or expired token")
		case errors.Is(err, models.ErrStoreUnavailable):
			pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, "OK", user)
}

// ChangePassword replaces the authenticated caller's password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	if err := h.service.ChangePassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword, ip); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Current password is incorrect")
		case errors.Is(err, models.ErrValidationFailed):
			pkghttp.WriteErrorWithDetails(w, http.StatusUnprocessableEntity, "Validation failed", err.Error())
		case errors.Is(err, models.ErrStoreUnavailable):
			pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, "Password changed", nil)
}

// admitAuthRequest probes both auth gates. On rejection it escalates the
// caller's progressive penalty, audits the event and writes the 429 itself;
// the returned bool reports whether the request may proceed.
func (h *AuthHandler) admitAuthRequest(w http.ResponseWriter, r *http.Request, ip string) (services.RateLimitResult, bool) {
	res, err := h.gate.CheckAuthGates(r.Context(), ip)
	if err != nil {
		h.logger.Error("auth gate check failed", slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
		return services.RateLimitResult{}, false
	}
	if res.Allowed {
		return res, true
	}

	retryAfter := res.RetryAfter
	if backoff, err := h.gate.Escalate(r.Context(), ip); err != nil {
		h.logger.Error("penalty escalation failed", slog.Any("error", err))
	} else if backoff > retryAfter {
		retryAfter = backoff
	}

	h.audit.SecurityEvent(models.AuditEventRateLimited, ip, "auth_gate_exhausted", map[string]string{
		"path":        r.URL.Path,
		"retry_after": retryAfter.String(),
	})

	meta := rateLimitMeta(res)
	meta.RetryAfter = retryAfter
	pkghttp.WriteTooManyRequests(w, "Too many requests. Please try again later.", meta)
	return res, false
}

// recordGateFailure consumes one unit of budget on both auth gates.
func (h *AuthHandler) recordGateFailure(ctx context.Context, ip string) {
	if err := h.gate.RecordAuthFailure(ctx, ip); err != nil {
		h.logger.Error("failed to record auth gate failure", slog.Any("error", err))
	}
}

func (h *AuthHandler) writeValidationError(w http.ResponseWriter, err error) {
	var ve *RequestValidationError
	if errors.As(err, &ve) {
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "Validation failed", ve.Fields)
		return
	}
	pkghttp.WriteBadRequest(w, err.Error())
}

func rateLimitMeta(res services.RateLimitResult) pkghttp.RateLimitMeta {
	return pkghttp.RateLimitMeta{
		Limit:      res.Limit,
		Remaining:  res.Remaining,
		ResetAt:    res.ResetAt,
		RetryAfter: res.RetryAfter,
	}
}
