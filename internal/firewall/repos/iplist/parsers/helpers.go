package parsers

import (
	"strings"
)

// stripComment removes a trailing "#..." comment.
func stripComment(line string) string {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		return line[:idx]
	}
	return line
}

// splitNote separates the pattern token from the free-form note that may
// follow it after whitespace: "10.0.0.0/8 office network".
func splitNote(s string) (pattern, note string) {
	s = strings.TrimSpace(s)
	idx := strings.IndexAny(s, " \t")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx+1:])
}
