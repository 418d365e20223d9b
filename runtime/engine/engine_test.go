package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opal-lang/astro/core/payload"
	"github.com/opal-lang/astro/runtime/execution"
	"github.com/opal-lang/astro/runtime/functor"
	"github.com/opal-lang/astro/runtime/parser"
)

func newContext(t *testing.T, e *Engine, opts ...execution.Option) *execution.Context {
	t.Helper()
	ec, err := e.NewContext(t.TempDir(), opts...)
	require.NoError(t, err)
	return ec
}

func TestNewContextAttachesRunner(t *testing.T) {
	e := New()
	ec := newContext(t, e)
	assert.Same(t, e, ec.Runner())
}

func TestRunBuiltin(t *testing.T) {
	e := New()
	ec := newContext(t, e)

	out, err := e.Run(context.Background(), ec, "echo hello")
	require.NoError(t, err)

	assert.Equal(t, payload.Success([]string{"hello"}), out)
	assert.Equal(t, []string{"echo hello"}, ec.History())
}

func TestRunComposite(t *testing.T) {
	e := New()
	ec := newContext(t, e)

	out, err := e.Run(context.Background(), ec, "(echo b, echo a) | sort")
	require.NoError(t, err)

	assert.True(t, out.IsSuccess)
	assert.Equal(t, []string{"a", "b"}, out.OutputFiles)
}

func TestRunParseError(t *testing.T) {
	e := New()
	ec := newContext(t, e)

	_, err := e.Run(context.Background(), ec, "echo (")

	var perr *parser.ParseError
	require.ErrorAs(t, err, &perr)
}

func TestRunInput(t *testing.T) {
	e := New()
	ec := newContext(t, e)

	out, err := e.RunInput(context.Background(), ec, "sort -r", &payload.Input{InputFiles: []string{"a", "c", "b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, out.OutputFiles)
}

func TestExecuteParsedFunctor(t *testing.T) {
	e := New()
	ec := newContext(t, e)

	f, err := e.Parse(ec, "echo x")
	require.NoError(t, err)
	_, ok := f.(*functor.Builtin)
	require.True(t, ok)

	out, err := e.Execute(context.Background(), ec, f, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, out.OutputFiles)
}

func TestPipe(t *testing.T) {
	e := New()
	ec := newContext(t, e)

	res, err := e.Pipe(context.Background(), ec, []string{"printf %s\\n b a", "sort"}, nil)
	require.NoError(t, err)

	assert.True(t, res.IsSuccess)
	assert.Equal(t, []string{"a", "b"}, res.OutputFiles)
}

func TestPipeReportsFailedStage(t *testing.T) {
	e := New()
	ec := newContext(t, e)

	res, err := e.Pipe(context.Background(), ec, []string{"echo a", "false", "echo never"}, nil)
	require.NoError(t, err)

	assert.False(t, res.IsSuccess)
	assert.Equal(t, "false", res.FailedAt)
	assert.Equal(t, []string{"echo " + ec.Path() + " a"}, ec.History()[:1], "the first stage receives the context path")
	assert.NotContains(t, ec.History(), "echo never")
}

func TestPipeParsesBeforeRunning(t *testing.T) {
	e := New()
	ec := newContext(t, e)

	_, err := e.Pipe(context.Background(), ec, []string{"echo a", "("}, nil)

	var perr *parser.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Empty(t, ec.History())
}

func TestScriptResolutionFollowsFilesystem(t *testing.T) {
	e := New()
	dir := t.TempDir()
	scripts := filepath.Join(dir, "scripts")
	require.NoError(t, os.MkdirAll(scripts, 0o755))
	ec, err := e.NewContext(dir, execution.WithInterpreter("sh"))
	require.NoError(t, err)

	script := filepath.Join(scripts, "touchup.py")
	body := `buf=$(sed -n 's/.*"output_buffer":"\([^"]*\)".*/\1/p')
printf '%s' '{"output_files":["from-script"],"is_success":true}' > "$buf"
`
	require.NoError(t, os.WriteFile(script, []byte(body), 0o644))

	out, err := e.Run(context.Background(), ec, "touchup")
	require.NoError(t, err)
	assert.Equal(t, []string{"from-script"}, out.OutputFiles)

	require.NoError(t, os.Remove(script))
	f, err := e.Parse(ec, "touchup")
	require.NoError(t, err)
	assert.Equal(t, functor.KindBuiltin, f.Spec().Kind)
}
