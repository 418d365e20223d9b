// Package sysfuncs provides the built-in system handlers: :history, :run and
// :list. Importing the package registers them as portable handlers, so they
// also work inside parallel branches and worker processes.
package sysfuncs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opal-lang/astro/core/payload"
	"github.com/opal-lang/astro/runtime/execution"
)

// Handler names.
const (
	History = "history"
	Run     = "run"
	List    = "list"
)

// Names lists every handler this package registers.
var Names = []string{History, Run, List}

func init() {
	execution.RegisterPortable(History, history)
	execution.RegisterPortable(Run, run)
	execution.RegisterPortable(List, list)
}

// history returns the context's history entries as output files.
func history(ctx context.Context, in payload.Input, ec *execution.Context) (payload.Output, error) {
	return payload.Success(ec.History()), nil
}

// run executes each extra arg as a command through the context's runner and
// returns the last command's outputs. The first failure stops the loop.
func run(ctx context.Context, in payload.Input, ec *execution.Context) (payload.Output, error) {
	if len(in.ExtraArgs) == 0 {
		return payload.Failure([]string{}, "run requires commands in extra_args."), nil
	}

	runner := ec.Runner()
	if runner == nil {
		return payload.Output{}, &payload.ProtocolError{
			Functor: Run,
			Message: "no runner attached to the context",
		}
	}

	var last payload.Output
	for _, command := range in.ExtraArgs {
		out, err := runner.Run(ctx, ec, command)
		if err != nil {
			return payload.Output{}, err
		}
		if !out.IsSuccess {
			msg := out.Message()
			if msg == "" {
				msg = "Unknown error."
			}
			return payload.Failure(out.OutputFiles, fmt.Sprintf("Command '%s' failed: %s", command, msg)), nil
		}
		last = out
	}
	return payload.Success(last.OutputFiles), nil
}

// list expands its targets (input files, then extra args, else the context
// path). Directories expand to their children sorted by name.
func list(ctx context.Context, in payload.Input, ec *execution.Context) (payload.Output, error) {
	targets := append(payload.Clone(in.InputFiles), in.ExtraArgs...)
	if len(targets) == 0 {
		targets = []string{ec.Path()}
	}

	listed := []string{}
	var missing []string
	for _, target := range targets {
		path := absolute(ec.Path(), expandHome(target))

		info, err := os.Stat(path)
		if err != nil {
			missing = append(missing, path)
			continue
		}
		if !info.IsDir() {
			listed = append(listed, resolve(path))
			continue
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			missing = append(missing, path)
			continue
		}
		for _, entry := range entries {
			listed = append(listed, resolve(filepath.Join(path, entry.Name())))
		}
	}

	if len(missing) > 0 {
		return payload.Failure(listed, "Missing: "+strings.Join(missing, ", ")), nil
	}
	return payload.Success(listed), nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func absolute(base, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}

func resolve(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return path
}
