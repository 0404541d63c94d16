package logger

import (
	"strings"
)

// SanitizedEmail masks an email address for logging (e.g., "u***@*******.com")
func SanitizedEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "[invalid-email]"
	}

	local = SanitizedUsername(local)

	// keep the TLD only
	if i := strings.LastIndex(domain, "."); i > 0 {
		domain = strings.Repeat("*", i) + domain[i:]
	}

	return local + "@" + domain
}

// SanitizedUsername keeps the first character of a login name and masks the rest
func SanitizedUsername(username string) string {
	runes := []rune(username)
	switch len(runes) {
	case 0:
		return "[empty]"
	case 1:
		return "*"
	default:
		return string(runes[0]) + strings.Repeat("*", len(runes)-1)
	}
}

var sensitiveQueryParams = []string{
	"password", "token", "secret", "api_key", "apikey", "email", "username", "auth",
}

// SanitizeQueryString reports whether a raw query mentions a sensitive
// parameter and should be redacted as a whole
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveQueryParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
