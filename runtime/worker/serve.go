package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/opal-lang/astro/core/payload"
	"github.com/opal-lang/astro/runtime/execution"
	"github.com/opal-lang/astro/runtime/functor"
)

// Option configures the worker side.
type Option func(*serveConfig)

type serveConfig struct {
	runner    execution.Runner
	isolation functor.Isolation
	logger    *slog.Logger
}

// WithRunner attaches the runner handlers such as :run use inside the worker.
func WithRunner(r execution.Runner) Option {
	return func(c *serveConfig) { c.runner = r }
}

// WithIsolation sets how nested Parallel nodes run. The default starts
// further worker processes.
func WithIsolation(iso functor.Isolation) Option {
	return func(c *serveConfig) { c.isolation = iso }
}

// WithLogger sets the worker's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *serveConfig) { c.logger = l }
}

// Serve handles one request: it reads a Request from in, runs it, and writes
// the Response to out. Errors raised by the functor travel in the Response;
// the returned error only reports a broken exchange.
func Serve(ctx context.Context, in io.Reader, out io.Writer, opts ...Option) error {
	cfg := &serveConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	if cfg.isolation == nil {
		cfg.isolation = &Process{Logger: cfg.logger}
	}

	var req Request
	if err := readFrame(in, &req); err != nil {
		return err
	}

	ec := execution.FromSnapshot(req.Context,
		execution.WithRunner(cfg.runner),
		execution.WithLogger(cfg.logger),
	)

	f, err := functor.FromSpec(req.Functor, cfg.isolation)
	if err != nil {
		return writeFrame(out, responseFor(payload.Output{}, fmt.Errorf("rebuild functor: %w", err)))
	}

	cfg.logger.Debug("worker running", "functor", f.Name(), "pid", os.Getpid())
	result, err := f.Call(ctx, ec, &req.Input)
	return writeFrame(out, responseFor(result, err))
}

// Main runs the worker side of the protocol on stdin and descriptor 3 and
// returns the process exit code.
func Main(opts ...Option) int {
	closeOnExec(resultFD)
	results := os.NewFile(resultFD, "results")
	defer results.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Serve(ctx, os.Stdin, results, opts...); err != nil {
		fmt.Fprintf(os.Stderr, "astro worker: %v\n", err)
		return 2
	}
	return 0
}
