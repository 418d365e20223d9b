// Package payload defines the structured records exchanged at every execution
// boundary: between pipeline stages, with user scripts, and across worker
// processes.
//
// Typed values ([Input], [Output]) are used inside the process. Untyped JSON
// arriving from outside (a user script's output buffer, a payload given on the
// command line) is checked against a JSON schema first; any schema violation is
// a [ProtocolError], never an execution failure.
package payload

import "strings"

// Field names of the wire format.
const (
	FieldInputFiles   = "input_files"
	FieldExtraArgs    = "extra_args"
	FieldOutputFiles  = "output_files"
	FieldIsSuccess    = "is_success"
	FieldErrorMessage = "error_message"

	// FieldOutputBuffer is reserved for the scratch file path handed to user scripts.
	FieldOutputBuffer = "output_buffer"
)

// Input is the payload a functor is called with.
//
// A nil slice means "not supplied"; the functor fills it from its defaults.
// An empty, non-nil slice is an explicit empty value.
type Input struct {
	InputFiles []string `json:"input_files" cbor:"input_files"`
	ExtraArgs  []string `json:"extra_args" cbor:"extra_args"`
}

// Output is the payload a functor returns.
//
// ErrorMessage is nil when absent. OutputFiles must be non-nil; a successful
// output with no files violates the pipeline contract and is rejected by the
// composite functors.
type Output struct {
	OutputFiles  []string `json:"output_files" cbor:"output_files"`
	IsSuccess    bool     `json:"is_success" cbor:"is_success"`
	ErrorMessage *string  `json:"error_message" cbor:"error_message"`
}

// Success builds a successful output.
func Success(files []string) Output {
	return Output{OutputFiles: Clone(files), IsSuccess: true}
}

// Failure builds a failed output. An empty message is recorded as absent.
func Failure(files []string, message string) Output {
	out := Output{OutputFiles: Clone(files)}
	if message != "" {
		out.ErrorMessage = &message
	}
	return out
}

// Message returns the error message, or "" when absent.
func (o Output) Message() string {
	if o.ErrorMessage == nil {
		return ""
	}
	return *o.ErrorMessage
}

// Validate checks the typed output contract: output_files must be present.
func (o Output) Validate() error {
	if o.OutputFiles == nil {
		return &ProtocolError{Message: "output missing fields: " + FieldOutputFiles}
	}
	return nil
}

// Clone returns an independent copy of the input.
func (in Input) Clone() Input {
	out := Input{}
	if in.InputFiles != nil {
		out.InputFiles = Clone(in.InputFiles)
	}
	if in.ExtraArgs != nil {
		out.ExtraArgs = Clone(in.ExtraArgs)
	}
	return out
}

// String renders the input the way history entries do: files, then args,
// omitting empty segments.
func (in Input) String() string {
	parts := make([]string, 0, 2)
	if len(in.InputFiles) > 0 {
		parts = append(parts, strings.Join(in.InputFiles, " "))
	}
	if len(in.ExtraArgs) > 0 {
		parts = append(parts, strings.Join(in.ExtraArgs, " "))
	}
	return strings.Join(parts, " ")
}

// Clone copies s into a new non-nil slice.
func Clone(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
