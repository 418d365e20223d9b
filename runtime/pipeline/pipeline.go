// Package pipeline drives a flat list of functors the way a Sequential node
// drives its children, and reports which stage failed.
package pipeline

import (
	"context"

	"github.com/opal-lang/astro/core/invariant"
	"github.com/opal-lang/astro/core/payload"
	"github.com/opal-lang/astro/runtime/execution"
	"github.com/opal-lang/astro/runtime/functor"
)

// UnknownError is reported for a failed stage that gave no message.
const UnknownError = "Unknown error."

// Result is the outcome of a pipeline run. FailedAt names the failing stage
// and is empty on success.
type Result struct {
	payload.Output
	FailedAt string `json:"failed_at,omitempty"`
}

// Run executes functors left to right. Each stage's output files become the
// next stage's input files and extra args reset between stages.
//
// A nil input, or a nil field in it, defaults to the context path as the only
// input file and no extra args. The first failed stage stops the run; it is
// logged and named in FailedAt. Fatal errors are returned unchanged.
func Run(ctx context.Context, ec *execution.Context, functors []functor.Functor, in *payload.Input) (Result, error) {
	invariant.Precondition(len(functors) > 0, "pipeline requires at least one functor")
	invariant.NotNil(ec, "execution context")

	current := initial(ec, in)
	result := Result{Output: payload.Success(current.InputFiles)}

	for _, f := range functors {
		out, err := f.Call(ctx, ec, &current)
		if err != nil {
			return Result{}, err
		}

		if !out.IsSuccess {
			msg := out.Message()
			if msg == "" {
				msg = UnknownError
			}
			ec.Logger().Error("pipeline stage failed", "functor", f.Name(), "error", msg)
			return Result{Output: out, FailedAt: f.Name()}, nil
		}

		if len(out.OutputFiles) == 0 {
			return Result{}, payload.EmptyOutput(f.Name())
		}

		current = payload.Input{
			InputFiles: payload.Clone(out.OutputFiles),
			ExtraArgs:  []string{},
		}
		result = Result{Output: out}
	}
	return result, nil
}

func initial(ec *execution.Context, in *payload.Input) payload.Input {
	start := payload.Input{
		InputFiles: []string{ec.Path()},
		ExtraArgs:  []string{},
	}
	if in == nil {
		return start
	}
	if in.InputFiles != nil {
		start.InputFiles = payload.Clone(in.InputFiles)
	}
	if in.ExtraArgs != nil {
		start.ExtraArgs = payload.Clone(in.ExtraArgs)
	}
	return start
}
