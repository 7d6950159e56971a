package identity

import (
	"regexp"
	"strings"
)

var usernameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{2,31}$`)

// NormalizeUsername trims and lower-cases a username for uniqueness checks.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidUsername reports whether the normalized form is 3-32 characters of
// [a-z0-9._-] starting with a letter or digit.
func ValidUsername(s string) bool {
	return usernameRe.MatchString(NormalizeUsername(s))
}
