package execution

import (
	"sort"
	"sync"

	"github.com/opal-lang/astro/core/invariant"
)

// The portable registry holds handlers that are safe to run inside any
// context, including parallel branches and worker processes. Packages
// register into it from init().
var portable = struct {
	sync.RWMutex
	funcs map[string]SystemFunc
}{funcs: make(map[string]SystemFunc)}

// RegisterPortable adds a handler to the process-wide portable registry.
// Registering the same name twice is a programming error.
func RegisterPortable(name string, fn SystemFunc) {
	invariant.Precondition(name != "", "portable handler name cannot be empty")
	invariant.NotNil(fn, "portable handler")

	portable.Lock()
	defer portable.Unlock()

	_, exists := portable.funcs[name]
	invariant.Precondition(!exists, "portable handler %q registered twice", name)
	portable.funcs[name] = fn
}

// Portable looks up a handler in the portable registry.
func Portable(name string) (SystemFunc, bool) {
	portable.RLock()
	defer portable.RUnlock()
	fn, ok := portable.funcs[name]
	return fn, ok
}

// PortableNames returns every portable handler name, sorted.
func PortableNames() []string {
	portable.RLock()
	defer portable.RUnlock()
	names := make([]string, 0, len(portable.funcs))
	for name := range portable.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
