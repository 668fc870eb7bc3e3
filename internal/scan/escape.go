package scan

import (
	"regexp"
	"strings"
)

// Boundaries used around interpolated identifiers. Handles and keys may
// contain '-', so it counts as part of the identifier on both sides.
const (
	identStart = `(?:^|[^\w-])`
	identEnd   = `(?:[^\w-]|$)`
)

// Escape quotes a data-derived literal for insertion into a pattern.
// Every matcher builds its alternations through this one function.
func Escape(literal string) string {
	return regexp.QuoteMeta(literal)
}

// quoted matches literal inside single or double quotes
func quoted(literal string) string {
	return `["']` + Escape(literal) + `["']`
}

// subscript matches a bracket subscript ['literal'] or ["literal"]
func subscript(literal string) string {
	return `\[\s*["']` + Escape(literal) + `["']\s*\]`
}

// alternation joins already-escaped fragments into one non-capturing group
func alternation(fragments ...string) string {
	return "(?:" + strings.Join(fragments, "|") + ")"
}
