package textproc

import (
	"fmt"
	"strings"
)

// ParseError reports that a related-questions response could not be turned
// into a non-empty list.
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("no questions found in response (%d bytes)", len(e.Input))
}

// ParseQuestions splits a related-questions response into one entry per line.
// Lines are kept verbatim, numbering and bullets included. An empty response
// yields an empty list together with a *ParseError.
func ParseQuestions(raw string) ([]string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return []string{}, &ParseError{Input: raw}
	}
	return strings.Split(trimmed, "\n"), nil
}

// CleanAnswer trims an answer response and collapses doubled newlines.
// Markdown decoration is left in place.
func CleanAnswer(raw string) string {
	return strings.ReplaceAll(strings.TrimSpace(raw), "\n\n", "\n")
}
