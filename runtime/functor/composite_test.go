package functor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opal-lang/astro/core/payload"
	"github.com/opal-lang/astro/runtime/execution"
)

func TestSequentialName(t *testing.T) {
	seq := NewSequential([]Functor{succeed("a"), succeed("b"), succeed("c")})
	assert.Equal(t, "a | b | c", seq.Name())
	assert.Len(t, seq.Children(), 3)
}

func TestSequentialRequiresChildren(t *testing.T) {
	assert.Panics(t, func() { NewSequential(nil) })
	assert.Panics(t, func() { NewParallel([]Functor{}, nil) })
}

func TestSequentialShortCircuits(t *testing.T) {
	ec := newContext(t)
	s1 := fail("s1", "boom")
	s2 := succeed("s2", "y")

	out, err := NewSequential([]Functor{s1, s2}).Call(context.Background(), ec, nil)
	require.NoError(t, err)

	assert.Equal(t, s1.out, out)
	assert.Empty(t, s2.Calls(), "stages after a failure must not run")
}

func TestSequentialChainsOutputsAndResetsArgs(t *testing.T) {
	ec := newContext(t)
	s1 := succeed("s1", "x")
	s2 := succeed("s2", "y")

	out, err := NewSequential([]Functor{s1, s2}).Call(context.Background(), ec, &payload.Input{
		InputFiles: []string{"in"},
		ExtraArgs:  []string{"-v"},
	})
	require.NoError(t, err)

	assert.Equal(t, payload.Input{InputFiles: []string{"in"}, ExtraArgs: []string{"-v"}}, s1.Calls()[0])
	assert.Equal(t, payload.Input{InputFiles: []string{"x"}, ExtraArgs: []string{}}, s2.Calls()[0])
	assert.Equal(t, []string{"y"}, out.OutputFiles)
}

func TestSequentialEmptyOutputIsFatal(t *testing.T) {
	ec := newContext(t)
	s2 := succeed("s2", "y")

	_, err := NewSequential([]Functor{succeed("s1"), s2}).Call(context.Background(), ec, nil)

	var perr *payload.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "s1", perr.Functor)
	assert.Contains(t, perr.Message, "empty 'output_files'")
	assert.Empty(t, s2.Calls())
}

func TestSequentialPropagatesFatalErrors(t *testing.T) {
	ec := newContext(t)
	s1 := succeed("s1", "x")
	s1.err = &payload.ProtocolError{Functor: "s1", Message: "bad"}

	_, err := NewSequential([]Functor{s1, succeed("s2", "y")}).Call(context.Background(), ec, nil)

	var perr *payload.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "s1", perr.Functor, "errors keep their original attribution")
}

func TestSequentialHistory(t *testing.T) {
	ec := newContext(t)

	_, err := NewSequential([]Functor{succeed("a", "x"), succeed("b", "y")}).
		Call(context.Background(), ec, &payload.Input{InputFiles: []string{"in"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"a in", "b x", "a | b in"}, ec.History())
}

func TestParallelName(t *testing.T) {
	assert.Equal(t, "a, b", NewParallel([]Functor{succeed("a"), succeed("b")}, nil).Name())
}

func TestParallelFlattensInDeclarationOrder(t *testing.T) {
	ec := newContext(t)
	par := NewParallel([]Functor{succeed("a", "a"), succeed("bc", "b", "c")}, nil)

	out, err := par.Call(context.Background(), ec, nil)
	require.NoError(t, err)

	assert.Equal(t, payload.Success([]string{"a", "b", "c"}), out)
}

func TestParallelFansOutIdenticalInput(t *testing.T) {
	ec := newContext(t)
	a, b := succeed("a", "x"), succeed("b", "y")
	in := &payload.Input{InputFiles: []string{"1", "2"}, ExtraArgs: []string{"-v"}}

	_, err := NewParallel([]Functor{a, b}, nil).Call(context.Background(), ec, in)
	require.NoError(t, err)

	if diff := cmp.Diff(a.Calls(), b.Calls()); diff != "" {
		t.Errorf("branches received different input (-a +b):\n%s", diff)
	}
	assert.Equal(t, *in, a.Calls()[0])
}

func TestParallelPartialFailure(t *testing.T) {
	ec := newContext(t)
	ok := succeed("ok", "done")
	par := NewParallel([]Functor{fail("first", "boom"), ok, fail("third", "")}, nil)

	out, err := par.Call(context.Background(), ec, &payload.Input{InputFiles: []string{"snap"}})
	require.NoError(t, err)

	assert.False(t, out.IsSuccess)
	assert.Equal(t, []string{"snap"}, out.OutputFiles, "no partial results are merged")
	assert.Equal(t, "first: boom; third: Unknown error.", out.Message())
	assert.Len(t, ok.Calls(), 1, "no cancellation on failure")
}

func TestParallelAggregatesBranchErrors(t *testing.T) {
	ec := newContext(t)
	broken := succeed("broken", "x")
	broken.err = errors.New("worker crashed")

	out, err := NewParallel([]Functor{broken, succeed("ok", "y")}, nil).
		Call(context.Background(), ec, &payload.Input{InputFiles: []string{"in"}})
	require.NoError(t, err)

	assert.False(t, out.IsSuccess)
	assert.Equal(t, "broken: worker crashed", out.Message())
}

func TestParallelEmptyOutputIsFatal(t *testing.T) {
	ec := newContext(t)

	_, err := NewParallel([]Functor{succeed("a", "x"), succeed("empty")}, nil).Call(context.Background(), ec, nil)

	var perr *payload.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "empty", perr.Functor)
}

func TestParallelBranchHistoryStaysInBranch(t *testing.T) {
	ec := newContext(t)

	_, err := NewParallel([]Functor{succeed("a", "x"), succeed("b", "y")}, nil).
		Call(context.Background(), ec, &payload.Input{InputFiles: []string{"in"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"a, b in"}, ec.History())
}

// recordingIsolation captures the contexts branches are run against.
type recordingIsolation struct {
	mu       sync.Mutex
	contexts []*execution.Context
}

func (r *recordingIsolation) Run(ctx context.Context, child Functor, ec *execution.Context, in payload.Input) (payload.Output, error) {
	r.mu.Lock()
	r.contexts = append(r.contexts, ec)
	r.mu.Unlock()
	return InProcess{}.Run(ctx, child, ec, in)
}

func TestParallelBranchesGetDerivedContexts(t *testing.T) {
	var logs bytes.Buffer
	noop := func(ctx context.Context, in payload.Input, ec *execution.Context) (payload.Output, error) {
		return payload.Success([]string{"x"}), nil
	}
	ec := newContext(t,
		execution.WithSystemFunc("local", noop),
		execution.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)
	iso := &recordingIsolation{}

	_, err := NewParallel([]Functor{succeed("a", "x"), succeed("b", "y")}, iso).Call(context.Background(), ec, nil)
	require.NoError(t, err)

	require.Len(t, iso.contexts, 2)
	assert.NotSame(t, iso.contexts[0], iso.contexts[1])
	for _, wc := range iso.contexts {
		assert.NotSame(t, ec, wc)
		assert.Equal(t, ec.Path(), wc.Path())
		assert.Empty(t, wc.SystemFuncNames(), "local handlers do not cross into branches")
	}
	assert.Empty(t, logs.String(), "no branch calls the dropped handler")
}

func TestParallelWarnsOnlyForReferencedHandlers(t *testing.T) {
	var logs bytes.Buffer
	noop := func(ctx context.Context, in payload.Input, ec *execution.Context) (payload.Output, error) {
		return payload.Success([]string{"x"}), nil
	}
	ec := newContext(t,
		execution.WithSystemFunc("local", noop),
		execution.WithSystemFunc("unused", noop),
		execution.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)

	branch := NewSequential([]Functor{succeed("a", "x"), NewSystem("local", nil)})
	_, err := NewParallel([]Functor{branch, succeed("b", "y")}, nil).Call(context.Background(), ec, nil)
	require.NoError(t, err)

	assert.Contains(t, logs.String(), "system handlers unavailable in parallel branches")
	assert.Contains(t, logs.String(), "handlers=[local]")
	assert.NotContains(t, logs.String(), "unused")
}

func TestParallelLocalHandlerUnavailableInBranch(t *testing.T) {
	noop := func(ctx context.Context, in payload.Input, ec *execution.Context) (payload.Output, error) {
		return payload.Success([]string{"x"}), nil
	}
	ec := newContext(t, execution.WithSystemFunc("local", noop))

	out, err := NewParallel([]Functor{NewSystem("local", nil), succeed("b", "y")}, nil).Call(context.Background(), ec, nil)
	require.NoError(t, err)

	assert.False(t, out.IsSuccess)
	assert.Contains(t, out.Message(), "local: functor 'local': system functor 'local' is not registered")
}

func TestNestedComposition(t *testing.T) {
	ec := newContext(t)
	tree := NewSequential([]Functor{
		NewParallel([]Functor{succeed("a", "a1"), succeed("b", "b1")}, nil),
		succeed("c", "c1"),
	})

	out, err := tree.Call(context.Background(), ec, nil)
	require.NoError(t, err)
	assert.Equal(t, "a, b | c", tree.Name())
	assert.Equal(t, []string{"c1"}, out.OutputFiles)
}
