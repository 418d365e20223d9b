// Package execution holds the runtime state shared by one pipeline session:
// the working directory, the script directory, the interpreter used for user
// scripts, the history log and the registry of system handlers.
//
// A Context is owned by a single goroutine. Parallel branches never share it:
// each branch runs against a context produced by [Context.Derive] (same plain
// data, portable handlers only, empty history), and whatever a branch records
// there is discarded when it finishes. The parent's history therefore never
// shows invocations made inside parallel branches. This is an isolation
// boundary, not a lost update.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/opal-lang/astro/core/payload"
)

// DefaultInterpreter runs user scripts when no interpreter is configured.
const DefaultInterpreter = "python3"

// ScriptExt is the file extension a command word must have in the script
// directory to resolve to a user script.
const ScriptExt = ".py"

// SystemFunc is an in-process handler selected by a leading ':' on a command
// word. Its output is returned to the caller unmodified.
type SystemFunc func(ctx context.Context, in payload.Input, ec *Context) (payload.Output, error)

// Runner parses and executes a command string against a context. The engine
// implements it; handlers such as :run use it to re-enter the engine without
// importing it.
type Runner interface {
	Run(ctx context.Context, ec *Context, command string) (payload.Output, error)
}

type handler struct {
	fn       SystemFunc
	portable bool
}

// Context carries the state of one session.
type Context struct {
	path        string
	scriptsPath string
	interpreter string

	history  []string
	handlers map[string]handler

	runner Runner
	logger *slog.Logger
}

// Option configures a Context.
type Option func(*config)

type config struct {
	scriptsPath string
	interpreter string
	local       map[string]SystemFunc
	portable    []string
	runner      Runner
	logger      *slog.Logger
}

// WithScriptsPath sets the directory searched for user scripts.
// Relative paths are resolved against the process working directory.
func WithScriptsPath(path string) Option {
	return func(c *config) { c.scriptsPath = path }
}

// WithInterpreter sets the interpreter used to run user scripts.
func WithInterpreter(path string) Option {
	return func(c *config) { c.interpreter = path }
}

// WithSystemFunc registers a session-local handler. Local handlers cannot
// cross the parallel isolation boundary.
func WithSystemFunc(name string, fn SystemFunc) Option {
	return func(c *config) {
		if c.local == nil {
			c.local = make(map[string]SystemFunc)
		}
		c.local[name] = fn
	}
}

// WithPortable installs handlers from the process-wide portable registry.
func WithPortable(names ...string) Option {
	return func(c *config) { c.portable = append(c.portable, names...) }
}

// WithRunner attaches the runner used by handlers that re-enter the engine.
func WithRunner(r Runner) Option {
	return func(c *config) { c.runner = r }
}

// WithLogger sets the session logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// New creates a context rooted at path ("" means the process working
// directory). The script directory defaults to <path>/scripts.
func New(path string, opts ...Option) (*Context, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	base, err := resolve(path)
	if err != nil {
		return nil, fmt.Errorf("resolve context path: %w", err)
	}

	scripts := filepath.Join(base, "scripts")
	if cfg.scriptsPath != "" {
		scripts, err = resolve(cfg.scriptsPath)
		if err != nil {
			return nil, fmt.Errorf("resolve scripts path: %w", err)
		}
	}

	ec := &Context{
		path:        base,
		scriptsPath: scripts,
		interpreter: cfg.interpreter,
		history:     []string{},
		handlers:    make(map[string]handler),
		runner:      cfg.runner,
		logger:      cfg.logger,
	}
	if ec.interpreter == "" {
		ec.interpreter = DefaultInterpreter
	}
	if ec.logger == nil {
		ec.logger = discard()
	}

	if err := ec.Install(cfg.portable...); err != nil {
		return nil, err
	}
	for name, fn := range cfg.local {
		ec.Register(name, fn)
	}
	return ec, nil
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func resolve(path string) (string, error) {
	if path == "" {
		return os.Getwd()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

// Path returns the resolved working directory.
func (c *Context) Path() string { return c.path }

// ScriptsPath returns the resolved script directory.
func (c *Context) ScriptsPath() string { return c.scriptsPath }

// Interpreter returns the interpreter used for user scripts.
func (c *Context) Interpreter() string { return c.interpreter }

// Logger returns the session logger.
func (c *Context) Logger() *slog.Logger { return c.logger }

// Runner returns the attached runner, or nil.
func (c *Context) Runner() Runner { return c.runner }

// History returns a copy of the history log, oldest first.
func (c *Context) History() []string {
	out := make([]string, len(c.history))
	copy(out, c.history)
	return out
}

// Record appends the rendered invocation of a functor to the history log.
func (c *Context) Record(name string, in payload.Input) {
	c.history = append(c.history, RenderHistory(name, in))
}

// RenderHistory renders a history entry: "<name> <inputs> <args>", with empty
// segments left out.
func RenderHistory(name string, in payload.Input) string {
	if rest := in.String(); rest != "" {
		return name + " " + rest
	}
	return name
}

// Register adds a session-local handler, replacing any handler of that name.
func (c *Context) Register(name string, fn SystemFunc) {
	c.handlers[name] = handler{fn: fn}
}

// Install adds handlers from the portable registry by name.
func (c *Context) Install(names ...string) error {
	for _, name := range names {
		fn, ok := Portable(name)
		if !ok {
			return fmt.Errorf("portable system handler %q is not registered", name)
		}
		c.handlers[name] = handler{fn: fn, portable: true}
	}
	return nil
}

// SystemFunc looks up a handler by name.
func (c *Context) SystemFunc(name string) (SystemFunc, bool) {
	h, ok := c.handlers[name]
	return h.fn, ok
}

// SystemFuncNames returns the registered handler names, sorted.
func (c *Context) SystemFuncNames() []string {
	names := make([]string, 0, len(c.handlers))
	for name := range c.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Derive builds the context a parallel branch runs against: same path,
// script directory, interpreter, runner and logger, an empty history, and
// only the portable handlers. The names of dropped local handlers are
// returned so the caller can report them.
func (c *Context) Derive() (*Context, []string) {
	derived := &Context{
		path:        c.path,
		scriptsPath: c.scriptsPath,
		interpreter: c.interpreter,
		history:     []string{},
		handlers:    make(map[string]handler),
		runner:      c.runner,
		logger:      c.logger,
	}

	var dropped []string
	for name, h := range c.handlers {
		if !h.portable {
			dropped = append(dropped, name)
			continue
		}
		derived.handlers[name] = h
	}
	sort.Strings(dropped)
	return derived, dropped
}
