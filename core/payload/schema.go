package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const inputSchemaURL = "astro://payload/input.json"

const inputSchema = `{
  "type": "object",
  "properties": {
    "input_files": {"type": "array", "items": {"type": "string"}},
    "extra_args":  {"type": "array", "items": {"type": "string"}}
  },
  "additionalProperties": false
}`

const outputSchemaURL = "astro://payload/output.json"

// error_message may only be left out when the output reports success.
const outputSchema = `{
  "type": "object",
  "properties": {
    "output_files":  {"type": "array", "items": {"type": "string"}},
    "is_success":    {"type": "boolean"},
    "error_message": {"type": ["string", "null"]}
  },
  "required": ["output_files", "is_success"],
  "additionalProperties": false,
  "if":   {"properties": {"is_success": {"const": false}}},
  "then": {"required": ["error_message"]}
}`

type schemas struct {
	input  *jsonschema.Schema
	output *jsonschema.Schema
}

var compiled = sync.OnceValues(func() (schemas, error) {
	input, err := compileSchema(inputSchemaURL, inputSchema)
	if err != nil {
		return schemas{}, err
	}
	output, err := compileSchema(outputSchemaURL, outputSchema)
	if err != nil {
		return schemas{}, err
	}
	return schemas{input: input, output: output}, nil
})

func compileSchema(url, schema string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(url, strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", url, err)
	}
	return compiler.Compile(url)
}

// DecodeInput parses a JSON input payload. Malformed JSON is returned as a
// plain error; well-formed JSON that breaks the schema is a *ProtocolError.
func DecodeInput(data []byte) (Input, error) {
	s, err := compiled()
	if err != nil {
		return Input{}, err
	}

	doc, err := decodeDocument(data)
	if err != nil {
		return Input{}, err
	}
	if err := s.input.Validate(doc); err != nil {
		return Input{}, protocolError("input", err)
	}

	var in Input
	if err := json.Unmarshal(data, &in); err != nil {
		return Input{}, fmt.Errorf("decode input payload: %w", err)
	}
	return in, nil
}

// DecodeOutput parses a JSON output payload. Malformed JSON is returned as a
// plain error; well-formed JSON that breaks the schema is a *ProtocolError.
func DecodeOutput(data []byte) (Output, error) {
	s, err := compiled()
	if err != nil {
		return Output{}, err
	}

	doc, err := decodeDocument(data)
	if err != nil {
		return Output{}, err
	}
	if err := s.output.Validate(doc); err != nil {
		return Output{}, protocolError("output", err)
	}

	var out Output
	if err := json.Unmarshal(data, &out); err != nil {
		return Output{}, fmt.Errorf("decode output payload: %w", err)
	}
	return out, nil
}

func decodeDocument(data []byte) (interface{}, error) {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return doc, nil
}

// protocolError flattens a schema validation error into one readable line.
func protocolError(kind string, err error) *ProtocolError {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &ProtocolError{Message: fmt.Sprintf("%s payload: %v", kind, err)}
	}

	seen := make(map[string]bool)
	var reasons []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			reason := e.Message
			if e.InstanceLocation != "" {
				reason = e.InstanceLocation + ": " + reason
			}
			if !seen[reason] {
				seen[reason] = true
				reasons = append(reasons, reason)
			}
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(ve)
	sort.Strings(reasons)

	return &ProtocolError{Message: fmt.Sprintf("%s payload: %s", kind, strings.Join(reasons, "; "))}
}
