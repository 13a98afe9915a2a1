package sanitize

import (
	"regexp"
	"strings"
)

// Plain email addresses (case-insensitive)
var reEmail = regexp.MustCompile(`(?i)[A-Z0-9._%+\-]+@[A-Z0-9.\-]+\.[A-Z]{2,}`)

// Common phone shapes: +xx..., (xxx) xxx-xxxx, 08xx...
// At least 9 digits overall so case numbers and years are left alone.
var rePhone = regexp.MustCompile(`\+?\d[\d\s\-.()]{7,}\d`)

// RedactPII masks emails and phone numbers. Used for text that leaves the
// system through notification channels.
func RedactPII(s string) string {
	if s == "" {
		return s
	}
	s = reEmail.ReplaceAllString(s, "[redacted email]")
	s = rePhone.ReplaceAllString(s, "[redacted phone]")
	return s
}

// Summary cuts s at a word boundary no later than max bytes.
func Summary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	i := max
	for i > 0 && s[i] != ' ' {
		i--
	}
	if i <= 0 {
		i = max
	}
	return s[:i] + "…"
}

// Notes normalizes free-text notes stored on assignment, suspension and
// verification records.
func Notes(s string) string {
	return Summary(strings.TrimSpace(s), 1000)
}
