package ai

import (
	"strings"
	"unicode/utf8"
)

// truncateTail keeps the last maxLen bytes of s; the end of a model response is
// usually where a malformed payload went wrong.
func truncateTail(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	tail := s[len(s)-maxLen:]
	for len(tail) > 0 && !utf8.RuneStart(tail[0]) {
		tail = tail[1:]
	}
	return "..." + tail
}

// safeTruncateString truncates a string to maxLen bytes while preserving UTF-8 encoding
// If truncation would split a multi-byte UTF-8 sequence, it backs off to a valid boundary
func safeTruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	truncated := s[:maxLen]

	// A UTF-8 sequence is at most 4 bytes, so at most 3 trailing bytes need dropping
	for i := 0; i < 4 && len(truncated) > 0; i++ {
		if utf8.ValidString(truncated) {
			return truncated
		}
		truncated = truncated[:len(truncated)-1]
	}

	return ""
}

// oneLine collapses whitespace runs so multi-line task text stays on one prompt line
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// clampTokens bounds a computed max_tokens budget
func clampTokens(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
