package sanitize

import "strings"

// Input cleans user-submitted text before it is forwarded to the agent. It
// removes tag-like substrings, javascript: schemes, on<word>= handlers and
// entity-encoded script tags, trims whitespace, and caps the result at
// MaxInputLength characters.
//
// Input is idempotent. The result may be empty; callers must treat an empty
// result for non-empty input as a validation failure.
func Input(raw string) string {
	s := strings.TrimSpace(stripMarkup(raw, inputLiterals))
	// A cut can land right after a space.
	return trimRight(truncate(s, MaxInputLength))
}
