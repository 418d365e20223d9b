package functor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/opal-lang/astro/core/invariant"
	"github.com/opal-lang/astro/core/payload"
	"github.com/opal-lang/astro/runtime/execution"
)

// Builtin runs an external executable. Input files are fed on stdin, one per
// line, and non-blank stdout lines become the output files.
type Builtin struct {
	base
	command []string
	cwd     string
}

// NewBuiltin creates a Builtin named after the first word of command.
// Builtins default to an empty input list, so an unsupplied input sends
// nothing on stdin. A nil args slice leaves the default args unset.
func NewBuiltin(command []string, args []string, cwd string) *Builtin {
	invariant.Precondition(len(command) > 0, "builtin command cannot be empty")
	return &Builtin{
		base:    newBase(command[0], []string{}, args),
		command: payload.Clone(command),
		cwd:     cwd,
	}
}

// Command returns a copy of the command vector.
func (b *Builtin) Command() []string { return payload.Clone(b.command) }

// Call implements Functor.
func (b *Builtin) Call(ctx context.Context, ec *execution.Context, in *payload.Input) (payload.Output, error) {
	return call(ctx, b, &b.base, ec, in)
}

func (b *Builtin) variant() variant { return b }

func (b *Builtin) records() bool { return true }

func (b *Builtin) execute(ctx context.Context, ec *execution.Context, in payload.Input) (payload.Output, error) {
	argv := append(payload.Clone(b.command), in.ExtraArgs...)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = b.cwd
	if cmd.Dir == "" {
		cmd.Dir = ec.Path()
	}
	if len(in.InputFiles) > 0 {
		cmd.Stdin = strings.NewReader(strings.Join(in.InputFiles, "\n"))
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	ec.Logger().Debug("spawn builtin", "argv", argv, "cwd", cmd.Dir)

	err := cmd.Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return payload.Output{}, ctxErr
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return payload.Failure(in.InputFiles, err.Error()), nil
		}
	}

	files := nonBlankLines(stdout.String())
	if len(files) == 0 {
		files = in.InputFiles
	}
	if err != nil {
		return payload.Failure(files, strings.TrimSpace(stderr.String())), nil
	}
	return payload.Success(files), nil
}

func nonBlankLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
