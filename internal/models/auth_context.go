package models

import (
	"fmt"
	"strings"
)

// AuthContext identifies which guard a request authenticates against: the
// central (platform admin) context or a single tenant. It is always passed
// explicitly; nothing in this codebase infers it from transport hints or
// ambient state.
type AuthContext struct {
	kind     string
	tenantID string
}

const (
	contextCentral = "central"
	contextTenant  = "tenant"
)

// CentralContext returns the central auth context.
func CentralContext() AuthContext {
	return AuthContext{kind: contextCentral}
}

// TenantContext returns the auth context for a single tenant.
func TenantContext(tenantID string) AuthContext {
	return AuthContext{kind: contextTenant, tenantID: tenantID}
}

func (c AuthContext) IsCentral() bool { return c.kind == contextCentral }
func (c AuthContext) IsTenant() bool  { return c.kind == contextTenant }

// TenantID returns the tenant identifier and whether this is a tenant context.
func (c AuthContext) TenantID() (string, bool) {
	return c.tenantID, c.kind == contextTenant
}

func (c AuthContext) String() string {
	if c.kind == contextTenant {
		return contextTenant + ":" + c.tenantID
	}
	return contextCentral
}

// ParseAuthContext parses the String form back into an AuthContext.
func ParseAuthContext(s string) (AuthContext, error) {
	if s == contextCentral {
		return CentralContext(), nil
	}
	if rest, ok := strings.CutPrefix(s, contextTenant+":"); ok && rest != "" {
		return TenantContext(rest), nil
	}
	return AuthContext{}, fmt.Errorf("invalid auth context %q", s)
}

// Base ability names. Tokens never carry these bare; they are always
// namespaced by the issuing context (see Abilities).
const (
	AbilityUsersRead  = "users.read"
	AbilityUsersWrite = "users.write"
	AbilityAuditRead  = "audit.read"
	AbilityAll        = "*"
)

// Abilities returns the given base abilities namespaced for this context:
// "central:<ability>" or "tenant:<id>:<ability>". A central token therefore
// never matches a tenant-namespaced check and vice versa.
func (c AuthContext) Abilities(base ...string) []string {
	out := make([]string, 0, len(base))
	prefix := c.String() + ":"
	for _, a := range base {
		out = append(out, prefix+a)
	}
	return out
}

// Grants reports whether the namespaced ability set allows the required base
// ability within this context. The context-namespaced wildcard grants all
// abilities in that context only.
func (c AuthContext) Grants(abilities []string, required string) bool {
	prefix := c.String() + ":"
	for _, a := range abilities {
		if a == prefix+AbilityAll {
			return true
		}
		if a == prefix+required {
			return true
		}
	}
	return false
}

// RoleAbilities maps an account role to its base ability set.
func RoleAbilities(role string) []string {
	if role == "admin" {
		return []string{AbilityAll}
	}
	return []string{AbilityUsersRead, AbilityUsersWrite}
}
