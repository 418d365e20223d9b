package worker

import (
	"bytes"
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opal-lang/astro/core/payload"
	"github.com/opal-lang/astro/runtime/execution"
	"github.com/opal-lang/astro/runtime/functor"
)

// TestMain doubles as the worker binary: Process re-executes the test binary
// with the worker environment variable set.
func TestMain(m *testing.M) {
	if Requested() {
		os.Exit(Main(WithIsolation(functor.InProcess{})))
	}
	os.Exit(m.Run())
}

func init() {
	execution.RegisterPortable("test-pid", func(ctx context.Context, in payload.Input, ec *execution.Context) (payload.Output, error) {
		return payload.Success([]string{strconv.Itoa(os.Getpid())}), nil
	})
}

func newContext(t *testing.T, opts ...execution.Option) *execution.Context {
	t.Helper()
	ec, err := execution.New(t.TempDir(), opts...)
	require.NoError(t, err)
	return ec
}

func serve(t *testing.T, req Request) Response {
	t.Helper()
	var in, out bytes.Buffer
	require.NoError(t, writeFrame(&in, req))
	require.NoError(t, Serve(context.Background(), &in, &out, WithIsolation(functor.InProcess{})))

	var resp Response
	require.NoError(t, readFrame(&out, &resp))
	return resp
}

func TestServeRunsFunctor(t *testing.T) {
	ec := newContext(t)

	resp := serve(t, Request{
		Functor: functor.NewBuiltin([]string{"echo"}, []string{"hi"}, "").Spec(),
		Context: ec.Snapshot(),
		Input:   payload.Input{InputFiles: []string{"a"}},
	})

	require.NoError(t, resp.Err())
	assert.Equal(t, payload.Success([]string{"hi"}), normalizeOutput(resp.Output))
}

func TestServeReportsProtocolErrors(t *testing.T) {
	ec := newContext(t)

	resp := serve(t, Request{
		Functor: functor.NewSystem("missing", nil).Spec(),
		Context: ec.Snapshot(),
	})

	var perr *payload.ProtocolError
	require.ErrorAs(t, resp.Err(), &perr)
	assert.Equal(t, "missing", perr.Functor)
	assert.Contains(t, perr.Message, "not registered")
}

func TestServeReportsBadSpec(t *testing.T) {
	ec := newContext(t)

	resp := serve(t, Request{Functor: functor.Spec{Kind: "Nope"}, Context: ec.Snapshot()})

	require.Error(t, resp.Err())
	assert.Contains(t, resp.Fatal, "rebuild functor")
}

func TestServeRejectsGarbage(t *testing.T) {
	var out bytes.Buffer
	err := Serve(context.Background(), bytes.NewReader([]byte("not cbor")), &out)
	assert.Error(t, err)
	assert.Zero(t, out.Len())
}

func TestProcessRunsBranchInAnotherProcess(t *testing.T) {
	ec := newContext(t, execution.WithPortable("test-pid"))
	iso := &Process{}

	out, err := iso.Run(context.Background(), functor.NewSystem("test-pid", nil), ec, payload.Input{})
	require.NoError(t, err)

	require.Len(t, out.OutputFiles, 1)
	assert.NotEqual(t, strconv.Itoa(os.Getpid()), out.OutputFiles[0])
}

func TestProcessParallel(t *testing.T) {
	ec := newContext(t)
	par := functor.NewParallel([]functor.Functor{
		functor.NewBuiltin([]string{"echo"}, []string{"a"}, ""),
		functor.NewBuiltin([]string{"echo"}, []string{"b", "c"}, ""),
	}, &Process{})

	out, err := par.Call(context.Background(), ec, nil)
	require.NoError(t, err)

	assert.Equal(t, payload.Success([]string{"a", "b c"}), out)
	assert.Equal(t, []string{"echo, echo " + ec.Path()}, ec.History(), "branch history stays in the worker")
}

func TestProcessDropsLocalHandlers(t *testing.T) {
	local := func(ctx context.Context, in payload.Input, ec *execution.Context) (payload.Output, error) {
		return payload.Success([]string{"local"}), nil
	}
	ec := newContext(t, execution.WithSystemFunc("local", local))
	par := functor.NewParallel([]functor.Functor{
		functor.NewSystem("local", nil),
		functor.NewBuiltin([]string{"echo"}, []string{"ok"}, ""),
	}, &Process{})

	out, err := par.Call(context.Background(), ec, nil)
	require.NoError(t, err)

	assert.False(t, out.IsSuccess)
	assert.Contains(t, out.Message(), "local: functor 'local': system functor 'local' is not registered")
	assert.Equal(t, []string{ec.Path()}, out.OutputFiles)
}

func TestProcessReturnsFailures(t *testing.T) {
	ec := newContext(t)
	iso := &Process{}

	out, err := iso.Run(context.Background(), functor.NewBuiltin([]string{"sh"}, []string{"-c", "echo nope >&2; exit 4"}, ""), ec, payload.Input{InputFiles: []string{"in"}})
	require.NoError(t, err)

	assert.False(t, out.IsSuccess)
	assert.Equal(t, "nope", out.Message())
	assert.Equal(t, []string{"in"}, out.OutputFiles)
}

func TestProcessCancellationKillsWorker(t *testing.T) {
	ec := newContext(t)
	iso := &Process{}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := iso.Run(ctx, functor.NewBuiltin([]string{"sleep"}, []string{"30"}, ""), ec, payload.Input{})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestProcessMissingBinary(t *testing.T) {
	ec := newContext(t)
	iso := &Process{Executable: "/nonexistent/astro"}

	_, err := iso.Run(context.Background(), functor.NewBuiltin([]string{"true"}, nil, ""), ec, payload.Input{})
	assert.ErrorContains(t, err, "start worker")
}

func TestResponseErr(t *testing.T) {
	assert.NoError(t, Response{Output: payload.Success([]string{"a"})}.Err())
	assert.EqualError(t, Response{Fatal: "boom"}.Err(), "boom")

	perr := &payload.ProtocolError{Functor: "f", Message: "bad"}
	assert.Same(t, perr, Response{Protocol: perr}.Err())
}
