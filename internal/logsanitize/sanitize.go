// Package logsanitize provides helpers for sanitizing untrusted values before logging.
package logsanitize

import "strings"

// Sanitize replaces control characters in log field values with '_' to
// reduce the risk of log injection (CWE-117). Applied to anything that
// originates outside the process: query parameters, HTTP headers,
// service-reported error messages.
//
// Replaced ranges:
//   - C0 controls 0x00-0x1F (except horizontal tab 0x09)
//   - DEL 0x7F and C1 controls 0x80-0x9F
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' {
			return '_'
		}
		if r >= 0x7f && r <= 0x9f {
			return '_'
		}
		return r
	}, s)
}

// RedactEmail masks the local part of an email address for logging,
// keeping the first character and the domain: "a***@example.com".
// Non-address strings are returned sanitized but unmasked.
func RedactEmail(s string) string {
	local, domain, ok := strings.Cut(s, "@")
	if !ok || local == "" {
		return Sanitize(s)
	}
	return Sanitize(local[:1] + "***@" + domain)
}
