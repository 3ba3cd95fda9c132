package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mwhitfield/authgate/internal/models"
)

// TokenManager issues and validates JWTs. Every token is bound to exactly
// one auth context; abilities inside it are namespaced by that context, so a
// central token can never satisfy a tenant check or vice versa.
type TokenManager struct {
	secret             string
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, accessExpiry, refreshExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:             secret,
		accessTokenExpiry:  accessExpiry,
		refreshTokenExpiry: refreshExpiry,
	}
}

// IssueAccessToken creates a short-lived access token carrying the user's
// abilities namespaced under authCtx. Abilities are always constructed here
// from the account's role; callers never supply them.
func (tm *TokenManager) IssueAccessToken(user *models.User, authCtx models.AuthContext) (string, error) {
	return tm.issue(models.TokenTypeAccess, user, authCtx, tm.accessTokenExpiry,
		authCtx.Abilities(models.RoleAbilities(user.Role)...))
}

// IssueRefreshToken creates a long-lived refresh token. Refresh tokens carry
// no abilities; they are only good for minting a fresh pair.
func (tm *TokenManager) IssueRefreshToken(user *models.User, authCtx models.AuthContext) (string, error) {
	return tm.issue(models.TokenTypeRefresh, user, authCtx, tm.refreshTokenExpiry, nil)
}

func (tm *TokenManager) issue(tokenType string, user *models.User, authCtx models.AuthContext, expiry time.Duration, abilities []string) (string, error) {
	now := time.Now()
	claims := &models.TokenClaims{
		Type:      tokenType,
		UserID:    user.ID,
		Email:     user.Email,
		Context:   authCtx.String(),
		Abilities: abilities,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a token string.
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(tm.secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// ValidateForContext verifies a token AND that it was issued for the given
// auth context. This is the single place cross-context use is rejected.
func (tm *TokenManager) ValidateForContext(tokenString string, authCtx models.AuthContext) (*models.TokenClaims, error) {
	claims, err := tm.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Context != authCtx.String() {
		return nil, models.ErrForbidden
	}
	return claims, nil
}
