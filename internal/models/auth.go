package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the "type" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenClaims are the JWT claims issued by the token manager. Context and
// Abilities bind the token to exactly one auth context; validation rejects
// any use outside it.
type TokenClaims struct {
	Type      string   `json:"type"`
	UserID    string   `json:"user_id"`
	Email     string   `json:"email,omitempty"`
	Context   string   `json:"ctx"`
	Abilities []string `json:"abilities,omitempty"`
	jwt.RegisteredClaims
}

// AuthContext decodes the "ctx" claim.
func (c *TokenClaims) AuthContext() (AuthContext, error) {
	return ParseAuthContext(c.Context)
}
