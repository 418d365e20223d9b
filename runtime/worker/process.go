package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/opal-lang/astro/core/payload"
	"github.com/opal-lang/astro/runtime/execution"
	"github.com/opal-lang/astro/runtime/functor"
)

// Process is a functor.Isolation that runs each branch in a worker process.
// Only the branch's Spec, the context snapshot and the input cross the
// boundary, so handlers that are not portable are unavailable in the worker.
type Process struct {
	// Executable is the binary to re-execute. Empty means os.Executable().
	Executable string

	// Args are passed to the worker binary.
	Args []string

	// Logger receives spawn diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Supported reports whether worker processes can run on this platform.
func Supported() bool { return supported }

// Run implements functor.Isolation.
func (p *Process) Run(ctx context.Context, child functor.Functor, ec *execution.Context, in payload.Input) (payload.Output, error) {
	if !supported {
		return payload.Output{}, fmt.Errorf("worker processes are not supported on this platform")
	}

	exe := p.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return payload.Output{}, fmt.Errorf("locate worker binary: %w", err)
		}
	}

	var request bytes.Buffer
	if err := writeFrame(&request, Request{Functor: child.Spec(), Context: ec.Snapshot(), Input: in}); err != nil {
		return payload.Output{}, err
	}

	results, resultsW, err := os.Pipe()
	if err != nil {
		return payload.Output{}, fmt.Errorf("result pipe: %w", err)
	}
	defer results.Close()

	cmd := exec.Command(exe, p.Args...)
	cmd.Env = append(os.Environ(), EnvVar+"=1")
	cmd.Stdin = &request
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{resultsW} // fd 3 in the worker
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		resultsW.Close()
		return payload.Output{}, fmt.Errorf("start worker: %w", err)
	}
	resultsW.Close()

	p.logger().Debug("spawn worker", "functor", child.Name(), "pid", cmd.Process.Pid)

	type frame struct {
		resp Response
		err  error
	}
	read := make(chan frame, 1)
	go func() {
		var resp Response
		err := readFrame(results, &resp)
		// Drain so a worker writing past the frame never blocks.
		_, _ = io.Copy(io.Discard, results)
		read <- frame{resp: resp, err: err}
	}()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case <-ctx.Done():
		killProcessGroup(cmd)
		<-done
		return payload.Output{}, ctx.Err()
	case waitErr = <-done:
	}

	f := <-read
	if f.err != nil {
		if waitErr != nil {
			return payload.Output{}, fmt.Errorf("worker for '%s' failed: %w", child.Name(), waitErr)
		}
		return payload.Output{}, fmt.Errorf("worker for '%s' sent no result: %w", child.Name(), f.err)
	}
	if err := f.resp.Err(); err != nil {
		return payload.Output{}, err
	}
	return normalizeOutput(f.resp.Output), nil
}

func (p *Process) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.Logger
}

var _ functor.Isolation = (*Process)(nil)
