package functor

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/opal-lang/astro/core/invariant"
	"github.com/opal-lang/astro/core/payload"
	"github.com/opal-lang/astro/runtime/execution"
)

// UserDefined runs a user script through an interpreter.
//
// The script receives its input as one JSON object on stdin, together with
// the path of a scratch file under "output_buffer". It must write its output
// payload to that file. Its own stdout and stderr go straight to the
// terminal, so scripts are free to log.
type UserDefined struct {
	base
	script      string
	interpreter string
	cwd         string
}

// NewUserDefined creates a UserDefined functor. An empty interpreter means
// the context's interpreter is used at call time.
func NewUserDefined(name, script, interpreter, cwd string, inputs, args []string) *UserDefined {
	invariant.Precondition(script != "", "script path cannot be empty")
	return &UserDefined{
		base:        newBase(name, inputs, args),
		script:      script,
		interpreter: interpreter,
		cwd:         cwd,
	}
}

// Script returns the script path.
func (u *UserDefined) Script() string { return u.script }

// Interpreter returns the configured interpreter, or "" when the context's
// interpreter applies.
func (u *UserDefined) Interpreter() string { return u.interpreter }

// Call implements Functor.
func (u *UserDefined) Call(ctx context.Context, ec *execution.Context, in *payload.Input) (payload.Output, error) {
	return call(ctx, u, &u.base, ec, in)
}

func (u *UserDefined) variant() variant { return u }

func (u *UserDefined) records() bool { return true }

// scriptRequest is the document a script reads from stdin.
type scriptRequest struct {
	InputFiles   []string `json:"input_files"`
	ExtraArgs    []string `json:"extra_args"`
	OutputBuffer string   `json:"output_buffer"`
}

func (u *UserDefined) execute(ctx context.Context, ec *execution.Context, in payload.Input) (payload.Output, error) {
	buffer, err := u.createBuffer()
	if err != nil {
		return payload.Failure(in.InputFiles, err.Error()), nil
	}
	defer removeBuffer(buffer)

	request, err := json.Marshal(scriptRequest{
		InputFiles:   in.InputFiles,
		ExtraArgs:    in.ExtraArgs,
		OutputBuffer: buffer,
	})
	invariant.ExpectNoError(err, "encode script request")

	interpreter := u.interpreter
	if interpreter == "" {
		interpreter = ec.Interpreter()
	}

	cmd := exec.CommandContext(ctx, interpreter, u.script)
	cmd.Dir = u.cwd
	if cmd.Dir == "" {
		cmd.Dir = ec.Path()
	}
	cmd.Stdin = strings.NewReader(string(request))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	ec.Logger().Debug("spawn script", "interpreter", interpreter, "script", u.script, "cwd", cmd.Dir, "buffer", buffer)

	exitCode := 0
	if runErr := cmd.Run(); runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return payload.Output{}, ctxErr
		}
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return payload.Failure(in.InputFiles, runErr.Error()), nil
		}
		exitCode = exitErr.ExitCode()
	}

	data, err := os.ReadFile(buffer)
	if err != nil {
		return payload.Failure(in.InputFiles, "no output produced: script did not write its output buffer"), nil
	}

	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 {
		return payload.Failure(in.InputFiles, "empty output: script wrote an empty output buffer"), nil
	}

	out, err := payload.DecodeOutput(data)
	if err != nil {
		var perr *payload.ProtocolError
		if errors.As(err, &perr) {
			return payload.Output{}, perr
		}
		return payload.Failure(in.InputFiles, err.Error()), nil
	}

	if exitCode != 0 && out.IsSuccess {
		files := out.OutputFiles
		if len(files) == 0 {
			files = in.InputFiles
		}
		return payload.Failure(files, fmt.Sprintf("script exited with status %d", exitCode)), nil
	}
	return out, nil
}

// createBuffer allocates the scratch file a script writes its output to. The
// name carries a short digest of the script path to make leftovers traceable.
func (u *UserDefined) createBuffer() (string, error) {
	sum := blake2b.Sum256([]byte(u.script))
	f, err := os.CreateTemp("", "functor-"+hex.EncodeToString(sum[:4])+"-*.json")
	if err != nil {
		return "", fmt.Errorf("create output buffer: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		removeBuffer(name)
		return "", fmt.Errorf("create output buffer: %w", err)
	}
	return name, nil
}

// removeBuffer is best effort; the script may already have removed it.
func removeBuffer(path string) {
	_ = os.Remove(path)
}
