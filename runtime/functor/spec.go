package functor

import (
	"fmt"

	"github.com/opal-lang/astro/core/payload"
)

// Kind identifies a functor variant.
type Kind string

const (
	KindBuiltin     Kind = "Builtin"
	KindUserDefined Kind = "UserDefined"
	KindSystem      Kind = "System"
	KindSequential  Kind = "Sequential"
	KindParallel    Kind = "Parallel"
)

// Spec is the plain-data form of a functor tree. It carries everything needed
// to rebuild the tree in another process. Default lists are paired with a
// "set" flag because an unset default and an empty one behave differently.
type Spec struct {
	Kind        Kind     `cbor:"kind"`
	Name        string   `cbor:"name"`
	Command     []string `cbor:"command,omitempty"`
	Cwd         string   `cbor:"cwd,omitempty"`
	Script      string   `cbor:"script,omitempty"`
	Interpreter string   `cbor:"interpreter,omitempty"`

	DefaultInputs []string `cbor:"default_inputs,omitempty"`
	InputsSet     bool     `cbor:"inputs_set,omitempty"`
	DefaultArgs   []string `cbor:"default_args,omitempty"`
	ArgsSet       bool     `cbor:"args_set,omitempty"`

	Children []Spec `cbor:"children,omitempty"`
}

func (b *base) spec(kind Kind) Spec {
	return Spec{
		Kind:          kind,
		Name:          b.name,
		DefaultInputs: b.DefaultInputs(),
		InputsSet:     b.defaultInputs != nil,
		DefaultArgs:   b.DefaultArgs(),
		ArgsSet:       b.defaultArgs != nil,
	}
}

// Spec implements Functor.
func (b *Builtin) Spec() Spec {
	s := b.spec(KindBuiltin)
	s.Command = b.Command()
	s.Cwd = b.cwd
	return s
}

// Spec implements Functor.
func (u *UserDefined) Spec() Spec {
	s := u.spec(KindUserDefined)
	s.Script = u.script
	s.Interpreter = u.interpreter
	s.Cwd = u.cwd
	return s
}

// Spec implements Functor.
func (s *System) Spec() Spec { return s.spec(KindSystem) }

// Spec implements Functor.
func (s *Sequential) Spec() Spec {
	spec := s.spec(KindSequential)
	spec.Children = childSpecs(s.children)
	return spec
}

// Spec implements Functor.
func (p *Parallel) Spec() Spec {
	spec := p.spec(KindParallel)
	spec.Children = childSpecs(p.children)
	return spec
}

func childSpecs(children []Functor) []Spec {
	specs := make([]Spec, len(children))
	for i, c := range children {
		specs[i] = c.Spec()
	}
	return specs
}

// FromSpec rebuilds a functor tree. Parallel nodes use the given isolation
// (nil runs branches in process). A spec that could not have come from a
// valid tree is rejected with an error.
func FromSpec(s Spec, isolation Isolation) (Functor, error) {
	inputs := defaults(s.DefaultInputs, s.InputsSet)
	args := defaults(s.DefaultArgs, s.ArgsSet)

	switch s.Kind {
	case KindBuiltin:
		if len(s.Command) == 0 {
			return nil, fmt.Errorf("builtin spec %q has no command", s.Name)
		}
		b := NewBuiltin(s.Command, args, s.Cwd)
		b.name = s.Name
		return b, nil

	case KindUserDefined:
		if s.Script == "" {
			return nil, fmt.Errorf("user-defined spec %q has no script", s.Name)
		}
		return NewUserDefined(s.Name, s.Script, s.Interpreter, s.Cwd, inputs, args), nil

	case KindSystem:
		if s.Name == "" {
			return nil, fmt.Errorf("system spec has no name")
		}
		return NewSystem(s.Name, args), nil

	case KindSequential, KindParallel:
		if len(s.Children) == 0 {
			return nil, fmt.Errorf("%s spec %q has no children", s.Kind, s.Name)
		}
		children := make([]Functor, len(s.Children))
		for i, cs := range s.Children {
			child, err := FromSpec(cs, isolation)
			if err != nil {
				return nil, err
			}
			children[i] = child
		}
		if s.Kind == KindSequential {
			return NewSequential(children), nil
		}
		return NewParallel(children, isolation), nil

	default:
		return nil, fmt.Errorf("unknown functor kind %q", s.Kind)
	}
}

func defaults(values []string, set bool) []string {
	if !set {
		return nil
	}
	return payload.Clone(values)
}
