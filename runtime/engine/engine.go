// Package engine ties parsing and execution together behind one entry point.
package engine

import (
	"context"
	"log/slog"

	"github.com/opal-lang/astro/core/payload"
	"github.com/opal-lang/astro/runtime/execution"
	"github.com/opal-lang/astro/runtime/functor"
	"github.com/opal-lang/astro/runtime/parser"
	"github.com/opal-lang/astro/runtime/pipeline"
)

// Engine parses command strings and runs the resulting functors.
// It holds no per-session state; history and handlers live on the
// execution.Context passed to each call.
type Engine struct {
	isolation functor.Isolation
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithIsolation sets how Parallel nodes run their branches.
func WithIsolation(iso functor.Isolation) Option {
	return func(e *Engine) { e.isolation = iso }
}

// WithLogger sets the logger used for parse diagnostics and handed to
// contexts created by NewContext.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine. Parallel branches run in process unless an
// isolation is configured.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.isolation == nil {
		e.isolation = functor.InProcess{}
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	return e
}

// NewContext creates a session context with this engine attached as its
// runner. Options given here override the engine's defaults.
func (e *Engine) NewContext(path string, opts ...execution.Option) (*execution.Context, error) {
	base := []execution.Option{execution.WithRunner(e), execution.WithLogger(e.logger)}
	return execution.New(path, append(base, opts...)...)
}

// Parse parses command against ec.
func (e *Engine) Parse(ec *execution.Context, command string) (functor.Functor, error) {
	return parser.Parse(command, ec, parser.WithIsolation(e.isolation), parser.WithLogger(e.logger))
}

// Execute calls f with the given input. A nil input lets f fill in its
// defaults.
func (e *Engine) Execute(ctx context.Context, ec *execution.Context, f functor.Functor, in *payload.Input) (payload.Output, error) {
	return f.Call(ctx, ec, in)
}

// Run parses and executes one command. It implements execution.Runner.
func (e *Engine) Run(ctx context.Context, ec *execution.Context, command string) (payload.Output, error) {
	return e.RunInput(ctx, ec, command, nil)
}

// RunInput parses one command and executes it with the given input.
func (e *Engine) RunInput(ctx context.Context, ec *execution.Context, command string, in *payload.Input) (payload.Output, error) {
	f, err := e.Parse(ec, command)
	if err != nil {
		return payload.Output{}, err
	}
	return e.Execute(ctx, ec, f, in)
}

// Pipe parses every command first, then drives them through the pipeline.
// Nothing runs if any command fails to parse.
func (e *Engine) Pipe(ctx context.Context, ec *execution.Context, commands []string, in *payload.Input) (pipeline.Result, error) {
	functors := make([]functor.Functor, 0, len(commands))
	for _, command := range commands {
		f, err := e.Parse(ec, command)
		if err != nil {
			return pipeline.Result{}, err
		}
		functors = append(functors, f)
	}
	return pipeline.Run(ctx, ec, functors, in)
}

var _ execution.Runner = (*Engine)(nil)
