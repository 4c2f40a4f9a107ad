// Package logging builds the process logger and scrubs secrets from text
// before it reaches logs or API responses.
package logging

import (
	"regexp"
	"strings"
)

const (
	// MaxQueryLogLength is the maximum length of a SQL statement written to logs.
	MaxQueryLogLength = 100
	// MaxClientMessageLength caps error text returned to callers.
	MaxClientMessageLength = 300
	// RedactedText replaces sensitive data.
	RedactedText = "[REDACTED]"
)

type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

var (
	// key=value credentials in DSNs, e.g. password=x, Pwd=x;
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// user:pass@host in URL-style DSNs (postgres://, sqlserver://)
	urlCredentialPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s?]+`)

	bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*`)

	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`)

	// provider secret keys such as sk-... or sk-ant-...
	secretKeyPattern = regexp.MustCompile(`\bsk-[A-Za-z0-9-_]{16,}`)

	// network endpoints: "10.1.2.3:5432", "db.internal:1433"
	hostPortPattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}(?::\d+)?\b|\b[A-Za-z0-9-]+(?:\.[A-Za-z0-9-]+)+:\d{2,5}\b`)
)

var logRedactions = []redaction{
	{passwordPattern, "${1}=" + RedactedText},
	{urlCredentialPattern, "://" + RedactedText + "@" + RedactedText},
	{bearerPattern, "Bearer " + RedactedText},
	{apiKeyPattern, "${1}=" + RedactedText},
	{secretKeyPattern, RedactedText},
}

func redact(s string, rules []redaction) string {
	for _, r := range rules {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

// SanitizeConnectionString removes credentials from a connection string.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return urlCredentialPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError renders an error for logging with credentials and tokens removed.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return redact(err.Error(), logRedactions)
}

// ClientMessage renders an error for an API response. On top of SanitizeError
// it hides network endpoints and caps the length.
func ClientMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := SanitizeError(err)
	msg = hostPortPattern.ReplaceAllString(msg, RedactedText)
	return TruncateString(strings.TrimSpace(msg), MaxClientMessageLength)
}

// SanitizeQuery truncates a SQL statement for logging and removes secrets.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	return redact(TruncateString(query, MaxQueryLogLength), logRedactions)
}

// TruncateString truncates a string to maxLen bytes and adds an ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
