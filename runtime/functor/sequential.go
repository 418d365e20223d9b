package functor

import (
	"context"
	"strings"

	"github.com/opal-lang/astro/core/invariant"
	"github.com/opal-lang/astro/core/payload"
	"github.com/opal-lang/astro/runtime/execution"
)

// Sequential runs its children left to right. Each child's output files
// become the next child's input files; extra args do not carry over.
// The first failure stops the chain and is returned unchanged.
type Sequential struct {
	base
	children []Functor
}

// NewSequential composes children into a chain named "a | b | c".
func NewSequential(children []Functor) *Sequential {
	invariant.Precondition(len(children) > 0, "sequential functor requires at least one child")
	names := make([]string, len(children))
	for i, c := range children {
		invariant.NotNil(c, "child functor")
		names[i] = c.Name()
	}
	return &Sequential{
		base:     newBase(strings.Join(names, " | "), nil, nil),
		children: append([]Functor(nil), children...),
	}
}

// Children returns the child functors in declaration order.
func (s *Sequential) Children() []Functor {
	return append([]Functor(nil), s.children...)
}

// Call implements Functor.
func (s *Sequential) Call(ctx context.Context, ec *execution.Context, in *payload.Input) (payload.Output, error) {
	return call(ctx, s, &s.base, ec, in)
}

func (s *Sequential) variant() variant { return s }

func (s *Sequential) records() bool { return true }

func (s *Sequential) execute(ctx context.Context, ec *execution.Context, in payload.Input) (payload.Output, error) {
	current := in.Clone()

	var last payload.Output
	for _, child := range s.children {
		out, err := child.Call(ctx, ec, &current)
		if err != nil {
			return payload.Output{}, err
		}
		if !out.IsSuccess {
			return out, nil
		}
		if len(out.OutputFiles) == 0 {
			return payload.Output{}, payload.EmptyOutput(child.Name())
		}

		current = payload.Input{
			InputFiles: payload.Clone(out.OutputFiles),
			ExtraArgs:  []string{},
		}
		last = out
	}
	return last, nil
}
