package functor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/opal-lang/astro/core/invariant"
	"github.com/opal-lang/astro/core/payload"
	"github.com/opal-lang/astro/runtime/execution"
)

// Isolation runs one parallel branch against its derived context.
type Isolation interface {
	Run(ctx context.Context, child Functor, ec *execution.Context, in payload.Input) (payload.Output, error)
}

// InProcess runs branches on goroutines in the current process.
type InProcess struct{}

// Run implements Isolation.
func (InProcess) Run(ctx context.Context, child Functor, ec *execution.Context, in payload.Input) (payload.Output, error) {
	return child.Call(ctx, ec, &in)
}

// Parallel fans the same input out to every child at once and waits for all
// of them. Nothing is cancelled when a branch fails.
//
// Each branch runs against a context from execution.Context.Derive: history
// recorded inside a branch never reaches the caller's context, and handlers
// that are not portable are unavailable there.
type Parallel struct {
	base
	children  []Functor
	isolation Isolation
}

// NewParallel composes children into a fan-out named "a, b, c". A nil
// isolation runs branches in process.
func NewParallel(children []Functor, isolation Isolation) *Parallel {
	invariant.Precondition(len(children) > 0, "parallel functor requires at least one child")
	names := make([]string, len(children))
	for i, c := range children {
		invariant.NotNil(c, "child functor")
		names[i] = c.Name()
	}
	if isolation == nil {
		isolation = InProcess{}
	}
	return &Parallel{
		base:      newBase(strings.Join(names, ", "), nil, nil),
		children:  append([]Functor(nil), children...),
		isolation: isolation,
	}
}

// Children returns the child functors in declaration order.
func (p *Parallel) Children() []Functor {
	return append([]Functor(nil), p.children...)
}

// Call implements Functor.
func (p *Parallel) Call(ctx context.Context, ec *execution.Context, in *payload.Input) (payload.Output, error) {
	return call(ctx, p, &p.base, ec, in)
}

func (p *Parallel) variant() variant { return p }

func (p *Parallel) records() bool { return true }

// referenced returns the dropped handlers that some branch calls by name.
// Handlers reached only through :run are not visible here.
func (p *Parallel) referenced(dropped []string) []string {
	if len(dropped) == 0 {
		return nil
	}
	used := make(map[string]bool)
	for _, child := range p.children {
		systemNames(child.Spec(), used)
	}

	var out []string
	for _, name := range dropped {
		if used[name] {
			out = append(out, name)
		}
	}
	return out
}

func systemNames(s Spec, into map[string]bool) {
	if s.Kind == KindSystem {
		into[s.Name] = true
	}
	for _, child := range s.Children {
		systemNames(child, into)
	}
}

type branchResult struct {
	out payload.Output
	err error
}

func (p *Parallel) execute(ctx context.Context, ec *execution.Context, in payload.Input) (payload.Output, error) {
	snapshot := in.Clone()

	contexts := make([]*execution.Context, len(p.children))
	var dropped []string
	for i := range p.children {
		contexts[i], dropped = ec.Derive()
	}
	if missing := p.referenced(dropped); len(missing) > 0 {
		ec.Logger().Warn("system handlers unavailable in parallel branches", "functor", p.name, "handlers", missing)
	}
	ec.Logger().Debug("fan out", "functor", p.name, "branches", len(p.children))

	results := make([]branchResult, len(p.children))
	var wg sync.WaitGroup
	wg.Add(len(p.children))
	for i, child := range p.children {
		go func() {
			defer wg.Done()
			out, err := p.isolation.Run(ctx, child, contexts[i], snapshot.Clone())
			results[i] = branchResult{out: out, err: err}
		}()
	}
	wg.Wait()

	var combined []string
	var errs []string
	for i, child := range p.children {
		r := results[i]
		switch {
		case r.err != nil:
			errs = append(errs, fmt.Sprintf("%s: %v", child.Name(), r.err))
		case !r.out.IsSuccess:
			msg := r.out.Message()
			if msg == "" {
				msg = "Unknown error."
			}
			errs = append(errs, fmt.Sprintf("%s: %s", child.Name(), msg))
		case len(r.out.OutputFiles) == 0:
			return payload.Output{}, payload.EmptyOutput(child.Name())
		default:
			combined = append(combined, r.out.OutputFiles...)
		}
	}

	if len(errs) > 0 {
		return payload.Failure(snapshot.InputFiles, strings.Join(errs, "; ")), nil
	}
	return payload.Success(combined), nil
}
