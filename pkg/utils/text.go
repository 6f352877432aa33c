package utils

import "strings"

// Truncate returns s truncated to maxLen characters, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// WordCount returns the number of whitespace-separated words in s.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// Preview returns the first maxLen characters of s with whitespace collapsed,
// suitable for a catalog preview line.
func Preview(s string, maxLen int) string {
	return Truncate(strings.Join(strings.Fields(s), " "), maxLen)
}
