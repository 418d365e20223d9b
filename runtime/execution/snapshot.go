package execution

import "sort"

// Snapshot is the plain data of a context that can cross a process boundary.
// Handlers are carried by name and must be portable on the receiving side.
type Snapshot struct {
	Path        string   `cbor:"path"`
	ScriptsPath string   `cbor:"scripts_path"`
	Interpreter string   `cbor:"interpreter"`
	Handlers    []string `cbor:"handlers"`
}

// Snapshot captures the context for a worker process. Only portable handlers
// are listed; history is never carried.
func (c *Context) Snapshot() Snapshot {
	s := Snapshot{
		Path:        c.path,
		ScriptsPath: c.scriptsPath,
		Interpreter: c.interpreter,
		Handlers:    []string{},
	}
	for name, h := range c.handlers {
		if h.portable {
			s.Handlers = append(s.Handlers, name)
		}
	}
	sort.Strings(s.Handlers)
	return s
}

// FromSnapshot rebuilds a context from a snapshot. Paths are taken as is.
// Handler names missing from this process's portable registry are skipped
// with a warning on the configured logger.
func FromSnapshot(s Snapshot, opts ...Option) *Context {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	ec := &Context{
		path:        s.Path,
		scriptsPath: s.ScriptsPath,
		interpreter: s.Interpreter,
		history:     []string{},
		handlers:    make(map[string]handler),
		runner:      cfg.runner,
		logger:      cfg.logger,
	}
	if ec.interpreter == "" {
		ec.interpreter = DefaultInterpreter
	}
	if ec.logger == nil {
		ec.logger = discard()
	}

	for _, name := range s.Handlers {
		fn, ok := Portable(name)
		if !ok {
			ec.logger.Warn("skipping unknown portable handler", "handler", name)
			continue
		}
		ec.handlers[name] = handler{fn: fn, portable: true}
	}
	return ec
}
