package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/opal-lang/astro/core/payload"
	"github.com/opal-lang/astro/runtime/parser"
)

// Exit codes
const (
	exitOK       = 0
	exitFailure  = 1 // a pipeline reported is_success=false
	exitError    = 2 // configuration, I/O or usage error
	exitParse    = 3
	exitProtocol = 4
)

// errFailed marks an execution failure whose result has already been printed.
var errFailed = errors.New("execution failed")

// CLIError represents a formatted CLI error with context
type CLIError struct {
	Type    string // "config", "io", "usage"
	Message string
	Details string // Additional context
	Hint    string // How to fix it
}

// Error implements the error interface
func (e *CLIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Details != "" {
		b.WriteString("\n")
		b.WriteString(e.Details)
	}
	if e.Hint != "" {
		b.WriteString("\n")
		b.WriteString(e.Hint)
	}
	return b.String()
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	var (
		perr  *parser.ParseError
		proto *payload.ProtocolError
	)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errFailed):
		return exitFailure
	case errors.As(err, &perr):
		return exitParse
	case errors.As(err, &proto):
		return exitProtocol
	default:
		return exitError
	}
}

// FormatError formats an error for CLI output with colors
func FormatError(w io.Writer, err error, useColor bool) {
	if err == nil || errors.Is(err, errFailed) {
		return
	}

	var (
		perr  *parser.ParseError
		proto *payload.ProtocolError
		cerr  *CLIError
	)
	switch {
	case errors.As(err, &perr):
		formatParseError(w, perr, useColor)
	case errors.As(err, &proto):
		formatProtocolError(w, proto, useColor)
	case errors.As(err, &cerr):
		formatCLIError(w, cerr, useColor)
	default:
		_, _ = fmt.Fprintf(w, "%s%s\n", Colorize("Error: ", ColorRed, useColor), err.Error())
	}
}

// formatParseError shows the command and the offending token
func formatParseError(w io.Writer, err *parser.ParseError, useColor bool) {
	_, _ = fmt.Fprintf(w, "%s%s\n", Colorize("Parse error: ", ColorRed, useColor), err.Message)

	if err.Input != "" {
		_, _ = fmt.Fprintf(w, "%s%s\n", Colorize("  command: ", ColorGray, useColor), err.Input)
	}
	if err.Token != "" {
		_, _ = fmt.Fprintf(w, "%s%q\n", Colorize("  token:   ", ColorGray, useColor), err.Token)
	}
	if err.Suggestion != "" {
		_, _ = fmt.Fprintf(w, "%s%s\n", Colorize("Hint: ", ColorYellow, useColor), err.Suggestion)
	}
}

// formatProtocolError formats payload contract violations
func formatProtocolError(w io.Writer, err *payload.ProtocolError, useColor bool) {
	msg := err.Message
	if err.Functor != "" {
		msg = fmt.Sprintf("functor '%s': %s", err.Functor, err.Message)
	}
	_, _ = fmt.Fprintf(w, "%s%s\n", Colorize("Protocol error: ", ColorRed, useColor), msg)

	if err.Suggestion != "" {
		_, _ = fmt.Fprintf(w, "%s%s\n", Colorize("Hint: ", ColorYellow, useColor), err.Suggestion)
	}
}

// formatCLIError formats CLI errors
func formatCLIError(w io.Writer, err *CLIError, useColor bool) {
	_, _ = fmt.Fprintf(w, "%s%s\n", Colorize("Error: ", ColorRed, useColor), err.Message)

	if err.Details != "" {
		_, _ = fmt.Fprintf(w, "\n%s\n", err.Details)
	}

	if err.Hint != "" {
		_, _ = fmt.Fprintf(w, "%s%s\n", Colorize("Hint: ", ColorYellow, useColor), err.Hint)
	}
}
