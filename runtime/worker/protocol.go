// Package worker runs parallel branches in separate processes.
//
// The parent re-executes its own binary with ASTRO_INTERNAL_WORKER=1. The
// worker reads one CBOR Request from stdin, runs the functor it describes
// against a context rebuilt from the snapshot, and writes one CBOR Response
// to file descriptor 3. Stdout and stderr are shared with the parent so user
// scripts keep logging to the terminal; results never travel on them.
package worker

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/opal-lang/astro/core/invariant"
	"github.com/opal-lang/astro/core/payload"
	"github.com/opal-lang/astro/runtime/execution"
	"github.com/opal-lang/astro/runtime/functor"
)

// EnvVar selects worker mode when set to "1".
const EnvVar = "ASTRO_INTERNAL_WORKER"

// resultFD is the descriptor the worker writes its Response to.
const resultFD = 3

// Requested reports whether this process was started as a worker.
func Requested() bool {
	return os.Getenv(EnvVar) == "1"
}

// Request is what the parent sends on the worker's stdin.
type Request struct {
	Functor functor.Spec       `cbor:"functor"`
	Context execution.Snapshot `cbor:"context"`
	Input   payload.Input      `cbor:"input"`
}

// Response is what the worker writes to its result descriptor. Exactly one
// of Output, Protocol or Fatal is meaningful: Protocol carries a contract
// violation, Fatal any other error, and Output is used when both are empty.
type Response struct {
	Output   payload.Output         `cbor:"output"`
	Protocol *payload.ProtocolError `cbor:"protocol,omitempty"`
	Fatal    string                 `cbor:"fatal,omitempty"`
}

// Err turns the error half of a response back into a Go error.
func (r Response) Err() error {
	switch {
	case r.Protocol != nil:
		return r.Protocol
	case r.Fatal != "":
		return errors.New(r.Fatal)
	default:
		return nil
	}
}

func responseFor(out payload.Output, err error) Response {
	if err == nil {
		return Response{Output: out}
	}
	var perr *payload.ProtocolError
	if errors.As(err, &perr) {
		return Response{Protocol: perr}
	}
	return Response{Fatal: err.Error()}
}

var encMode = func() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	invariant.ExpectNoError(err, "create CBOR encoder")
	return em
}()

func writeFrame(w io.Writer, v interface{}) error {
	data, err := encMode.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func readFrame(r io.Reader, v interface{}) error {
	if err := cbor.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	return nil
}

// normalizeOutput restores the non-nil output list a decoded frame may lose.
func normalizeOutput(out payload.Output) payload.Output {
	if out.OutputFiles == nil {
		out.OutputFiles = []string{}
	}
	return out
}
