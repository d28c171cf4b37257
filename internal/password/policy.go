// Package password validates password strength against the platform policy.
//
// Validation is a pure function of the candidate password: every applicable
// rule is checked and reported, so callers can surface the full list of
// problems in one round trip.
package password

import (
	"fmt"
	"strings"
)

const (
	// DefaultMinLength and DefaultMaxLength bound accepted password lengths.
	DefaultMinLength = 12
	DefaultMaxLength = 128
)

const specialChars = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`

// weakPatterns are rejected as substrings, case-insensitively. Substring
// matching is deliberately aggressive: a password merely containing "admin"
// is rejected even if otherwise strong.
var weakPatterns = []string{
	"password", "123456", "password123", "admin", "root",
	"user", "qwerty", "abc123", "password1", "hunting", "cybersecurity",
}

// Violation codes.
const (
	CodeEmpty        = "empty"
	CodeTooShort     = "too_short"
	CodeTooLong      = "too_long"
	CodeNoUppercase  = "no_uppercase"
	CodeNoLowercase  = "no_lowercase"
	CodeNoDigit      = "no_digit"
	CodeNoSpecial    = "no_special"
	CodeWeakPattern  = "weak_pattern"
	CodeSequential   = "sequential_chars"
	CodeRepeated     = "repeated_chars"
)

// Violation describes a single failed policy rule.
type Violation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Policy checks password strength. The zero value is not usable; construct
// with NewPolicy.
type Policy struct {
	minLength int
	maxLength int
}

// NewPolicy returns a policy with the given length bounds. Non-positive
// values fall back to the defaults.
func NewPolicy(minLength, maxLength int) *Policy {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Policy{minLength: minLength, maxLength: maxLength}
}

// Validate returns every policy violation for the candidate password. An
// empty result means the password is acceptable.
func (p *Policy) Validate(candidate string) []Violation {
	var violations []Violation

	if strings.TrimSpace(candidate) == "" {
		return []Violation{{Code: CodeEmpty, Message: "password cannot be empty"}}
	}

	if len(candidate) < p.minLength {
		violations = append(violations, Violation{
			Code:    CodeTooShort,
			Message: fmt.Sprintf("password must be at least %d characters long", p.minLength),
		})
	}
	if len(candidate) > p.maxLength {
		violations = append(violations, Violation{
			Code:    CodeTooLong,
			Message: fmt.Sprintf("password must not exceed %d characters", p.maxLength),
		})
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, c := range candidate {
		switch {
		case c >= 'A' && c <= 'Z':
			hasUpper = true
		case c >= 'a' && c <= 'z':
			hasLower = true
		case c >= '0' && c <= '9':
			hasDigit = true
		case strings.ContainsRune(specialChars, c):
			hasSpecial = true
		}
	}
	if !hasUpper {
		violations = append(violations, Violation{Code: CodeNoUppercase, Message: "password must contain at least one uppercase letter"})
	}
	if !hasLower {
		violations = append(violations, Violation{Code: CodeNoLowercase, Message: "password must contain at least one lowercase letter"})
	}
	if !hasDigit {
		violations = append(violations, Violation{Code: CodeNoDigit, Message: "password must contain at least one digit"})
	}
	if !hasSpecial {
		violations = append(violations, Violation{Code: CodeNoSpecial, Message: "password must contain at least one special character"})
	}

	lower := strings.ToLower(candidate)
	for _, weak := range weakPatterns {
		if strings.Contains(lower, weak) {
			violations = append(violations, Violation{Code: CodeWeakPattern, Message: "password contains common weak patterns"})
			break
		}
	}

	if hasSequentialChars(candidate) {
		violations = append(violations, Violation{Code: CodeSequential, Message: "password cannot contain sequential characters"})
	}
	if hasRepeatedChars(candidate, 3) {
		violations = append(violations, Violation{Code: CodeRepeated, Message: "password cannot contain more than 2 repeated characters"})
	}

	return violations
}

// hasSequentialChars reports whether the password contains three consecutive
// characters with strictly ascending byte values ("abc", "123").
func hasSequentialChars(s string) bool {
	for i := 0; i+2 < len(s); i++ {
		if s[i+1] == s[i]+1 && s[i+2] == s[i+1]+1 {
			return true
		}
	}
	return false
}

// hasRepeatedChars reports whether any character repeats maxRepeats or more
// times in a row.
func hasRepeatedChars(s string, maxRepeats int) bool {
	count := 1
	for i := 1; i < len(s); i++ {
		if s[i] == s[i-1] {
			count++
			if count >= maxRepeats {
				return true
			}
		} else {
			count = 1
		}
	}
	return false
}
