package gateway

import (
	"regexp"
	"strings"
)

// Redaction runs before the message is stored or sent anywhere: student
// contact details must not reach conversation memory, audit logs, or a
// backend.
var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	// Phone numbers with 9+ digits allowing separators. The digit floor keeps
	// ordinary lesson numbers (coordinates, scores, years) intact.
	phonePattern = regexp.MustCompile(`\(?\+?\d[\d\s().-]{7,}\d`)
)

const (
	emailPlaceholder = "[email removed]"
	phonePlaceholder = "[phone removed]"
)

// RedactPII replaces email addresses and phone numbers with placeholders.
func RedactPII(message string) string {
	message = emailPattern.ReplaceAllString(message, emailPlaceholder)
	message = phonePattern.ReplaceAllStringFunc(message, func(m string) string {
		if countDigits(m) < 9 {
			return m
		}
		return phonePlaceholder
	})
	return message
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// CapMessage truncates message to maxChars, reporting whether it was cut.
// A cap of 0 or below disables truncation.
func CapMessage(message string, maxChars int) (string, bool) {
	if maxChars <= 0 || len(message) <= maxChars {
		return message, false
	}
	return strings.TrimSpace(message[:maxChars]), true
}
