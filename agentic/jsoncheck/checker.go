// Package jsoncheck implements an incremental JSON object balance tracker:
// is this streamed JSON prefix a complete object yet? It answers that
// question without attempting a full incremental parse.
//
// Ported from the original implementation's JsonChecker
// (src/crates/core/src/util/json_checker.rs): a byte buffer, a brace
// depth counter, and an in-string flag with backslash-escape handling. No
// third-party incremental-JSON-balance library appears anywhere in the
// reference corpus, so this is implemented directly against the standard
// library — see DESIGN.md.
package jsoncheck

import "strings"

// Checker tracks whether a streamed sequence of fragments forms a
// complete, balanced JSON object once concatenated.
type Checker struct {
	buffer     strings.Builder
	depth      int
	inString   bool
	escapeNext bool
}

// New returns an empty Checker.
func New() *Checker {
	return &Checker{}
}

// Append feeds the next fragment of the stream into the checker.
func (c *Checker) Append(s string) {
	c.buffer.WriteString(s)

	for _, ch := range s {
		if c.escapeNext {
			c.escapeNext = false
			continue
		}
		switch {
		case ch == '\\' && c.inString:
			c.escapeNext = true
		case ch == '"':
			c.inString = !c.inString
		case ch == '{' && !c.inString:
			c.depth++
		case ch == '}' && !c.inString:
			if c.depth > 0 {
				c.depth--
			}
		}
	}
}

// Buffer returns everything appended so far.
func (c *Checker) Buffer() string {
	return c.buffer.String()
}

// IsValid reports whether the buffer is a complete, brace-balanced JSON
// object: every '{' has been closed and the buffer begins with '{'.
func (c *Checker) IsValid() bool {
	return c.depth == 0 && strings.HasPrefix(c.buffer.String(), "{")
}

// Reset clears the checker for reuse.
func (c *Checker) Reset() {
	c.buffer.Reset()
	c.depth = 0
	c.inString = false
	c.escapeNext = false
}
