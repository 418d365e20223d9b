package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/opal-lang/astro/core/payload"
	"github.com/opal-lang/astro/runtime/catalog"
	"github.com/opal-lang/astro/runtime/engine"
	"github.com/opal-lang/astro/runtime/execution"
	"github.com/opal-lang/astro/runtime/functor"
	"github.com/opal-lang/astro/runtime/sysfuncs"
	"github.com/opal-lang/astro/runtime/worker"
)

// scriptsHandler is the session-local handler listing the script catalog.
const scriptsHandler = "scripts"

// session is one CLI run: an engine, its context and the script catalog.
type session struct {
	cfg     Config
	engine  *engine.Engine
	ec      *execution.Context
	catalog *catalog.Catalog
	logger  *slog.Logger
	errOut  io.Writer
}

func newSession(cfg Config, errOut io.Writer) (*session, error) {
	logger := newLogger(errOut, cfg.Debug)
	eng := engine.New(
		engine.WithIsolation(newIsolation(cfg, logger)),
		engine.WithLogger(logger),
	)

	ec, err := eng.NewContext("",
		execution.WithScriptsPath(cfg.ScriptsPath),
		execution.WithInterpreter(cfg.Interpreter),
		execution.WithPortable(sysfuncs.Names...),
	)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Open(ec.ScriptsPath(), logger)
	if err != nil {
		return nil, err
	}
	ec.Register(scriptsHandler, cat.Handler())

	logger.Debug("session ready",
		"path", ec.Path(),
		"scripts", ec.ScriptsPath(),
		"interpreter", ec.Interpreter(),
		"isolation", cfg.Isolation)

	return &session{
		cfg:     cfg,
		engine:  eng,
		ec:      ec,
		catalog: cat,
		logger:  logger,
		errOut:  errOut,
	}, nil
}

func newIsolation(cfg Config, logger *slog.Logger) functor.Isolation {
	if cfg.Isolation == isolationGoroutine {
		return functor.InProcess{}
	}
	if !worker.Supported() {
		logger.Warn("worker processes unsupported on this platform, running parallel branches in-process")
		return functor.InProcess{}
	}
	p := &worker.Process{Logger: logger}
	if cfg.Debug {
		p.Args = []string{"--debug"}
	}
	return p
}

// runCommands runs the commands as one pipeline and prints the result.
func (s *session) runCommands(ctx context.Context, commands []string, rawPayload string, out io.Writer) error {
	var in *payload.Input
	if rawPayload != "" {
		decoded, err := payload.DecodeInput([]byte(rawPayload))
		if err != nil {
			return fmt.Errorf("--payload: %w", err)
		}
		in = &decoded
	}

	if s.cfg.Debug {
		for _, command := range commands {
			f, err := s.engine.Parse(s.ec, command)
			if err != nil {
				return err
			}
			s.visualize(f)
		}
	}

	result, err := s.engine.Pipe(ctx, s.ec, commands, in)
	if err != nil {
		return err
	}
	if err := writeJSON(out, result); err != nil {
		return err
	}
	if !result.IsSuccess {
		return errFailed
	}
	return nil
}

// runOne parses and executes a single command and prints its output.
func (s *session) runOne(ctx context.Context, command string, out io.Writer) error {
	f, err := s.engine.Parse(s.ec, command)
	if err != nil {
		return err
	}
	if s.cfg.Debug {
		s.visualize(f)
	}

	result, err := s.engine.Execute(ctx, s.ec, f, nil)
	if err != nil {
		return err
	}
	if err := writeJSON(out, result); err != nil {
		return err
	}
	if !result.IsSuccess {
		return errFailed
	}
	return nil
}

// runLines executes one command per input line. Execution failures are
// printed and the run continues; any other error stops it.
func (s *session) runLines(ctx context.Context, r io.Reader, out io.Writer) error {
	failed := false
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		command := strings.TrimSpace(scanner.Text())
		if command == "" || strings.HasPrefix(command, "#") {
			continue
		}
		if isExit(command) {
			break
		}

		err := s.runOne(ctx, command, out)
		switch {
		case err == nil:
		case errors.Is(err, errFailed):
			failed = true
		default:
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return &CLIError{Type: "io", Message: "failed to read commands", Details: err.Error()}
	}
	if failed {
		return errFailed
	}
	return nil
}

func (s *session) visualize(f functor.Functor) {
	_, _ = fmt.Fprintln(s.errOut, functor.Visualize(f))
}

func isExit(command string) bool {
	return command == "exit" || command == "quit"
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
