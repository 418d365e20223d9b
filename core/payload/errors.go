package payload

import "strings"

// ProtocolError reports a violation of the payload contract: unknown or
// missing fields, a successful output without files, a system handler that was
// never registered. It is fatal: composite functors propagate it unchanged and
// it never appears inside an [Output].
type ProtocolError struct {
	Functor    string // Name of the functor that broke the contract (may be empty)
	Message    string // What went wrong: "output included unsupported fields: extra"
	Suggestion string // Optional fix: "did you mean 'list'?"
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	var b strings.Builder
	if e.Functor != "" {
		b.WriteString("functor '")
		b.WriteString(e.Functor)
		b.WriteString("': ")
	}
	b.WriteString(e.Message)
	if e.Suggestion != "" {
		b.WriteString(" (")
		b.WriteString(e.Suggestion)
		b.WriteString(")")
	}
	return b.String()
}

// For returns a copy of the error attributed to the named functor, unless it
// is already attributed.
func (e *ProtocolError) For(functor string) *ProtocolError {
	if e.Functor != "" {
		return e
	}
	cp := *e
	cp.Functor = functor
	return &cp
}

// EmptyOutput is the error for a successful output that carries no files.
func EmptyOutput(functor string) *ProtocolError {
	return &ProtocolError{
		Functor: functor,
		Message: "produced an empty '" + FieldOutputFiles + "' value",
	}
}
