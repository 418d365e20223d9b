package parser

import (
	"strings"
)

// ParseError reports a command string that does not fit the grammar.
// Parse errors are fatal: no functor is built and nothing runs.
type ParseError struct {
	Message    string // Clear, specific: "expected ')' but found end of input"
	Token      string // Offending token text, when there is one
	Input      string // The command being parsed
	Suggestion string // Actionable fix: "close the group with ')'"
	Err        error  // Underlying cause, e.g. *lexer.UnterminatedQuoteError
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("parse error: ")
	b.WriteString(e.Message)
	if e.Suggestion != "" {
		b.WriteString(" (")
		b.WriteString(e.Suggestion)
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error { return e.Err }
