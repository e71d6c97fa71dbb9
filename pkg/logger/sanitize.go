package logger

import (
	"net/url"
	"strings"
)

// sensitiveParams are query keys whose presence redacts the whole query string
var sensitiveParams = []string{"password", "token", "secret", "code", "otp", "session", "email"}

// SanitizedEmail masks an email address for logging (e.g., "u***@e***.com")
func SanitizedEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return "[invalid-email]"
	}

	// keep first char of the local part
	if len(local) > 1 {
		local = local[:1] + strings.Repeat("*", len(local)-1)
	}

	// keep the TLD
	labels := strings.Split(domain, ".")
	for i := 0; i < len(labels)-1; i++ {
		labels[i] = strings.Repeat("*", len(labels[i]))
	}

	return local + "@" + strings.Join(labels, ".")
}

// SanitizeQueryString reports whether rawQuery carries a sensitive parameter
// and must be redacted as a whole. Unparseable queries are redacted too.
func SanitizeQueryString(rawQuery string) bool {
	if rawQuery == "" {
		return false
	}

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return true
	}

	for key := range values {
		key = strings.ToLower(key)
		for _, param := range sensitiveParams {
			if strings.Contains(key, param) {
				return true
			}
		}
	}
	return false
}
