package functor

import (
	"strings"
)

// Visualize renders a functor tree, one node per line, indented two spaces
// per level:
//
//	ls | filter (Sequential)
//	  ls (Builtin) [args=[-la] | command=[ls]]
//	  filter (UserDefined) [script=/work/scripts/filter.py]
func Visualize(f Functor) string {
	var lines []string
	render(f.Spec(), 0, &lines)
	return strings.Join(lines, "\n")
}

func render(s Spec, depth int, lines *[]string) {
	*lines = append(*lines, strings.Repeat("  ", depth)+describe(s))
	for _, child := range s.Children {
		render(child, depth+1, lines)
	}
}

func describe(s Spec) string {
	var details []string
	if len(s.DefaultInputs) > 0 {
		details = append(details, "inputs="+list(s.DefaultInputs))
	}
	if len(s.DefaultArgs) > 0 {
		details = append(details, "args="+list(s.DefaultArgs))
	}

	switch s.Kind {
	case KindBuiltin:
		details = append(details, "command="+list(s.Command))
	case KindUserDefined:
		details = append(details, "script="+s.Script)
	case KindSystem:
		details = append(details, "system")
	}

	head := s.Name + " (" + string(s.Kind) + ")"
	if len(details) == 0 {
		return head
	}
	return head + " [" + strings.Join(details, " | ") + "]"
}

func list(values []string) string {
	return "[" + strings.Join(values, ", ") + "]"
}
