package auth

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 14 // OWASP 2026 recommendation
	MinPasswordLen = 8
	MaxPasswordLen = 255
)

// RuleKind identifies which strength rule a password violated. Validation is
// first-fail: only the lowest-ordered violated rule is reported.
type RuleKind string

const (
	RuleTooShort           RuleKind = "too_short"
	RuleTooLong            RuleKind = "too_long"
	RuleMissingUppercase   RuleKind = "missing_uppercase"
	RuleMissingLowercase   RuleKind = "missing_lowercase"
	RuleMissingDigit       RuleKind = "missing_digit"
	RuleMissingSpecialChar RuleKind = "missing_special_char"
	RuleTooCommon          RuleKind = "too_common"
	RuleRepeatedChars      RuleKind = "repeated_chars"
	RuleSequentialPattern  RuleKind = "sequential_pattern"
)

// RuleViolation is the structured result of a failed password validation.
type RuleViolation struct {
	Kind RuleKind
}

func (e *RuleViolation) Error() string {
	switch e.Kind {
	case RuleTooShort:
		return fmt.Sprintf("password must be at least %d characters", MinPasswordLen)
	case RuleTooLong:
		return fmt.Sprintf("password must be at most %d characters", MaxPasswordLen)
	case RuleMissingUppercase:
		return "password must contain at least one uppercase letter"
	case RuleMissingLowercase:
		return "password must contain at least one lowercase letter"
	case RuleMissingDigit:
		return "password must contain at least one digit"
	case RuleMissingSpecialChar:
		return "password must contain at least one special character"
	case RuleTooCommon:
		return "password is too common, please choose a more unique password"
	case RuleRepeatedChars:
		return "password must not repeat the same character four or more times in a row"
	case RuleSequentialPattern:
		return "password must not contain sequential characters like \"123\" or \"abc\""
	}
	return "invalid password"
}

// defaultCommonPasswords is the built-in deny-list, matched case-insensitively.
var defaultCommonPasswords = []string{
	"password",
	"password1",
	"password123",
	"password@123",
	"passw0rd",
	"12345678",
	"123456789",
	"qwerty123",
	"qwertyuiop",
	"abc12345",
	"iloveyou",
	"admin123",
	"letmein1",
	"welcome1",
	"welcome123",
	"monkey123",
	"dragon123",
	"master123",
	"sunshine1",
	"princess1",
	"starwars1",
	"football1",
	"trustno1",
	"changeme1",
}

// PasswordPolicy holds the tunable parts of password validation. The zero
// value is not usable; construct with DefaultPasswordPolicy and override.
type PasswordPolicy struct {
	MinLength       int
	MaxLength       int
	CommonPasswords []string
}

// DefaultPasswordPolicy returns the policy used when a deployment does not
// override anything: 8..255 chars plus the built-in deny-list.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:       MinPasswordLen,
		MaxLength:       MaxPasswordLen,
		CommonPasswords: defaultCommonPasswords,
	}
}

// PasswordValidator evaluates candidate passwords against an ordered rule
// set. It is stateless and deterministic; classification uses code points
// only, never locale tables.
type PasswordValidator struct {
	policy PasswordPolicy
	deny   map[string]struct{}
}

// NewPasswordValidator builds a validator from the given policy.
func NewPasswordValidator(policy PasswordPolicy) *PasswordValidator {
	deny := make(map[string]struct{}, len(policy.CommonPasswords))
	for _, p := range policy.CommonPasswords {
		deny[strings.ToLower(p)] = struct{}{}
	}
	return &PasswordValidator{policy: policy, deny: deny}
}

// Validate returns nil for an acceptable password, or a *RuleViolation for
// the first rule the password breaks. Rule order is fixed: length bounds,
// character classes, deny-list, repetition, sequential runs.
func (v *PasswordValidator) Validate(password string) error {
	runes := []rune(password)

	if len(runes) < v.policy.MinLength {
		return &RuleViolation{Kind: RuleTooShort}
	}
	if len(runes) > v.policy.MaxLength {
		return &RuleViolation{Kind: RuleTooLong}
	}

	hasUpper, hasLower, hasDigit, hasSpecial := false, false, false, false
	for _, r := range runes {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}
	if !hasUpper {
		return &RuleViolation{Kind: RuleMissingUppercase}
	}
	if !hasLower {
		return &RuleViolation{Kind: RuleMissingLowercase}
	}
	if !hasDigit {
		return &RuleViolation{Kind: RuleMissingDigit}
	}
	if !hasSpecial {
		return &RuleViolation{Kind: RuleMissingSpecialChar}
	}

	if _, found := v.deny[strings.ToLower(password)]; found {
		return &RuleViolation{Kind: RuleTooCommon}
	}

	if hasRepeatedRun(runes, 4) {
		return &RuleViolation{Kind: RuleRepeatedChars}
	}

	if hasSequentialRun(runes, 3) {
		return &RuleViolation{Kind: RuleSequentialPattern}
	}

	return nil
}

// hasRepeatedRun reports whether any character appears n or more times
// consecutively.
func hasRepeatedRun(runes []rune, n int) bool {
	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// hasSequentialRun reports whether the password contains n consecutive
// ascending or descending code points, restricted to digit runs or letter
// runs. Letters compare case-insensitively, so "aBc" and "CBA" both count.
func hasSequentialRun(runes []rune, n int) bool {
	if len(runes) < n {
		return false
	}

	norm := make([]rune, len(runes))
	for i, r := range runes {
		norm[i] = unicode.ToLower(r)
	}

	sameClass := func(a, b rune) bool {
		return (unicode.IsDigit(a) && unicode.IsDigit(b)) ||
			(unicode.IsLetter(a) && unicode.IsLetter(b))
	}

	for i := 0; i+n <= len(norm); i++ {
		asc, desc := true, true
		for j := i + 1; j < i+n; j++ {
			if !sameClass(norm[j-1], norm[j]) {
				asc, desc = false, false
				break
			}
			if norm[j] != norm[j-1]+1 {
				asc = false
			}
			if norm[j] != norm[j-1]-1 {
				desc = false
			}
		}
		if asc || desc {
			return true
		}
	}
	return false
}

// HashPassword hashes a password with bcrypt at the configured cost.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// ComparePassword compares a bcrypt hash against a candidate in constant
// time with respect to the candidate.
func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// dummyHash is a valid bcrypt hash of an unguessable value, built lazily on
// first use. Comparing against it keeps the work factor of the unknown-email
// path equal to the wrong-password path.
var dummyHash = sync.OnceValue(func() string {
	h, err := bcrypt.GenerateFromPassword([]byte("authgate-dummy-credential"), BcryptCost)
	if err != nil {
		panic(err)
	}
	return string(h)
})

// CompareDummy burns a bcrypt comparison without verifying anything. Used on
// the unknown-email path so it is indistinguishable from a failed compare.
func CompareDummy(password string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash()), []byte(password))
}
