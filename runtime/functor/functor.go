// Package functor implements the executable units of a parsed command: the
// three leaf kinds (Builtin, UserDefined, System) and the two composites
// (Sequential, Parallel).
//
// Every functor is called through the same contract:
//
//  1. Normalize: an input list that is nil or empty is replaced by the
//     functor's default, or by the context path when no default is set.
//     Extra args fall back to the default args, or to an empty list.
//  2. Execute the variant.
//  3. Validate the output. A missing output_files list is a ProtocolError.
//  4. Record the invocation in the context history (System opts out).
//
// Execution failures come back as an Output with IsSuccess false. Returned
// errors are fatal (ProtocolError, cancellation) and composites propagate
// them unchanged, except that Parallel reports a failing branch's error in
// its aggregated message.
package functor

import (
	"context"
	"errors"

	"github.com/opal-lang/astro/core/invariant"
	"github.com/opal-lang/astro/core/payload"
	"github.com/opal-lang/astro/runtime/execution"
)

// Functor is a named, executable pipeline unit. The set of implementations is
// closed: Builtin, UserDefined, System, Sequential and Parallel.
type Functor interface {
	// Name is the display name; composites join their children's names.
	Name() string

	// Call runs the functor. A nil input means "not supplied".
	Call(ctx context.Context, ec *execution.Context, in *payload.Input) (payload.Output, error)

	// Spec returns the serializable description of the functor tree.
	Spec() Spec

	variant() variant
}

type variant interface {
	execute(ctx context.Context, ec *execution.Context, in payload.Input) (payload.Output, error)
	records() bool
}

// base holds what every functor shares. Nil defaults mean "unset".
type base struct {
	name          string
	defaultInputs []string
	defaultArgs   []string
}

func newBase(name string, inputs, args []string) base {
	b := base{name: name}
	if inputs != nil {
		b.defaultInputs = payload.Clone(inputs)
	}
	if args != nil {
		b.defaultArgs = payload.Clone(args)
	}
	return b
}

// Name returns the functor's display name.
func (b *base) Name() string { return b.name }

// DefaultInputs returns a copy of the default input files, or nil when unset.
func (b *base) DefaultInputs() []string {
	if b.defaultInputs == nil {
		return nil
	}
	return payload.Clone(b.defaultInputs)
}

// DefaultArgs returns a copy of the default extra args, or nil when unset.
func (b *base) DefaultArgs() []string {
	if b.defaultArgs == nil {
		return nil
	}
	return payload.Clone(b.defaultArgs)
}

func (b *base) normalize(ec *execution.Context, in *payload.Input) payload.Input {
	var norm payload.Input
	if in != nil {
		norm = in.Clone()
	}

	if len(norm.InputFiles) == 0 {
		switch {
		case b.defaultInputs != nil:
			norm.InputFiles = payload.Clone(b.defaultInputs)
		default:
			norm.InputFiles = []string{ec.Path()}
		}
	}

	if len(norm.ExtraArgs) == 0 {
		norm.ExtraArgs = payload.Clone(b.defaultArgs)
	}
	return norm
}

// call runs the four-step contract shared by every functor.
func call(ctx context.Context, f Functor, b *base, ec *execution.Context, in *payload.Input) (payload.Output, error) {
	invariant.NotNil(ctx, "ctx")
	invariant.NotNil(ec, "execution context")

	norm := b.normalize(ec, in)

	v := f.variant()
	out, err := v.execute(ctx, ec, norm)
	if err != nil {
		var perr *payload.ProtocolError
		if errors.As(err, &perr) {
			return payload.Output{}, perr.For(b.name)
		}
		return payload.Output{}, err
	}

	if err := out.Validate(); err != nil {
		var perr *payload.ProtocolError
		if errors.As(err, &perr) {
			return payload.Output{}, perr.For(b.name)
		}
		return payload.Output{}, err
	}

	if v.records() {
		ec.Record(b.name, norm)
	}
	return out, nil
}
