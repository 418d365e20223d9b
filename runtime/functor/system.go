package functor

import (
	"context"
	"fmt"
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/opal-lang/astro/core/payload"
	"github.com/opal-lang/astro/runtime/execution"
)

// System calls an in-process handler registered on the context. The handler
// is looked up at call time, so it need not exist when the command is parsed.
// System invocations are not recorded in the history.
type System struct {
	base
}

// NewSystem creates a System functor for the handler called name.
func NewSystem(name string, args []string) *System {
	return &System{base: newBase(name, []string{}, args)}
}

// Call implements Functor.
func (s *System) Call(ctx context.Context, ec *execution.Context, in *payload.Input) (payload.Output, error) {
	return call(ctx, s, &s.base, ec, in)
}

func (s *System) variant() variant { return s }

func (s *System) records() bool { return false }

func (s *System) execute(ctx context.Context, ec *execution.Context, in payload.Input) (payload.Output, error) {
	fn, ok := ec.SystemFunc(s.name)
	if !ok {
		return payload.Output{}, &payload.ProtocolError{
			Functor:    s.name,
			Message:    fmt.Sprintf("system functor '%s' is not registered in the context", s.name),
			Suggestion: suggest(s.name, ec.SystemFuncNames()),
		}
	}
	return fn(ctx, in, ec)
}

// suggest returns a "did you mean" hint for a mistyped handler name.
func suggest(target string, candidates []string) string {
	ranks := fuzzy.RankFindFold(target, candidates)
	if len(ranks) == 0 {
		return ""
	}
	sort.Sort(ranks)
	return fmt.Sprintf("did you mean '%s'?", ranks[0].Target)
}
