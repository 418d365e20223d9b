package functor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opal-lang/astro/core/payload"
	"github.com/opal-lang/astro/runtime/execution"
)

// writeScript creates a shell script that saves its stdin next to itself,
// extracts the buffer path and then runs body with $buf set.
func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	script := filepath.Join(dir, "script.sh")
	src := strings.Join([]string{
		`dir=$(dirname "$0")`,
		`cat > "$dir/stdin.json"`,
		`buf=$(sed -n 's/.*"output_buffer":"\([^"]*\)".*/\1/p' "$dir/stdin.json")`,
		`printf '%s' "$buf" > "$dir/buffer.path"`,
		body,
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(script, []byte(src), 0o644))
	return script
}

func runScript(t *testing.T, body string, in *payload.Input) (payload.Output, string, error) {
	t.Helper()
	ec := newContext(t, execution.WithInterpreter("sh"))
	dir := t.TempDir()
	u := NewUserDefined("convert", writeScript(t, dir, body), "", "", nil, nil)
	out, err := u.Call(context.Background(), ec, in)
	return out, dir, err
}

func TestUserDefinedReturnsBufferVerbatim(t *testing.T) {
	out, _, err := runScript(t,
		`printf '%s' '{"output_files":["out.png"],"is_success":true,"error_message":null}' > "$buf"`,
		nil)
	require.NoError(t, err)

	assert.Equal(t, payload.Success([]string{"out.png"}), out)
}

func TestUserDefinedSendsRequestOnStdin(t *testing.T) {
	_, dir, err := runScript(t,
		`printf '%s' '{"output_files":["x"],"is_success":true}' > "$buf"`,
		&payload.Input{InputFiles: []string{"a.png"}, ExtraArgs: []string{"-q"}})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "stdin.json"))
	require.NoError(t, err)

	var req map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &req))
	assert.Equal(t, []interface{}{"a.png"}, req["input_files"])
	assert.Equal(t, []interface{}{"-q"}, req["extra_args"])
	assert.Contains(t, req["output_buffer"], "functor-")
}

func TestUserDefinedRemovesBuffer(t *testing.T) {
	_, dir, err := runScript(t,
		`printf '%s' '{"output_files":["x"],"is_success":true}' > "$buf"`,
		nil)
	require.NoError(t, err)

	path, err := os.ReadFile(filepath.Join(dir, "buffer.path"))
	require.NoError(t, err)
	require.NotEmpty(t, path)
	assert.NoFileExists(t, string(path))
}

func TestUserDefinedFailureModes(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantMessage string
		wantFiles   []string
	}{
		{
			name:        "buffer removed",
			body:        `rm -f "$buf"`,
			wantMessage: "no output produced",
			wantFiles:   []string{"in.txt"},
		},
		{
			name:        "buffer left empty",
			body:        `printf '   \n' > "$buf"`,
			wantMessage: "empty output",
			wantFiles:   []string{"in.txt"},
		},
		{
			name:        "buffer not json",
			body:        `printf '%s' '{"output_files":' > "$buf"`,
			wantMessage: "invalid JSON",
			wantFiles:   []string{"in.txt"},
		},
		{
			name: "non-zero exit with successful buffer",
			body: `printf '%s' '{"output_files":["half.txt"],"is_success":true}' > "$buf"
exit 2`,
			wantMessage: "script exited with status 2",
			wantFiles:   []string{"half.txt"},
		},
		{
			name: "non-zero exit with successful buffer and no files",
			body: `printf '%s' '{"output_files":[],"is_success":true}' > "$buf"
exit 1`,
			wantMessage: "script exited with status 1",
			wantFiles:   []string{"in.txt"},
		},
		{
			name: "non-zero exit with failed buffer",
			body: `printf '%s' '{"output_files":["log.txt"],"is_success":false,"error_message":"bad image"}' > "$buf"
exit 1`,
			wantMessage: "bad image",
			wantFiles:   []string{"log.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := runScript(t, tt.body, &payload.Input{InputFiles: []string{"in.txt"}})
			require.NoError(t, err)

			assert.False(t, out.IsSuccess)
			assert.Contains(t, out.Message(), tt.wantMessage)
			assert.Equal(t, tt.wantFiles, out.OutputFiles)
		})
	}
}

func TestUserDefinedSchemaViolationIsFatal(t *testing.T) {
	_, _, err := runScript(t,
		`printf '%s' '{"output_files":["x"],"is_success":true,"extra":1}' > "$buf"`,
		nil)

	var perr *payload.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "convert", perr.Functor)
	assert.Contains(t, perr.Message, "extra")
}

func TestUserDefinedSpawnFailure(t *testing.T) {
	ec := newContext(t)
	u := NewUserDefined("convert", "/nowhere/convert.py", "/nonexistent/interpreter", "", nil, nil)

	out, err := u.Call(context.Background(), ec, &payload.Input{InputFiles: []string{"a"}})
	require.NoError(t, err)

	assert.False(t, out.IsSuccess)
	assert.Equal(t, []string{"a"}, out.OutputFiles)
	assert.Contains(t, out.Message(), "/nonexistent/interpreter")
}

func TestUserDefinedDefaultsAndHistory(t *testing.T) {
	ec := newContext(t, execution.WithInterpreter("sh"))
	dir := t.TempDir()
	script := writeScript(t, dir, `printf '%s' '{"output_files":["x"],"is_success":true}' > "$buf"`)
	u := NewUserDefined("resize", script, "", "", []string{"a.png"}, []string{"--width", "10"})

	_, err := u.Call(context.Background(), ec, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"resize a.png --width 10"}, ec.History())
}
