package parser

import (
	"log/slog"

	"github.com/opal-lang/astro/runtime/functor"
)

// Opt represents a parser configuration option
type Opt func(*Config)

// Config holds parser configuration
type Config struct {
	isolation functor.Isolation
	log       *slog.Logger
}

// WithIsolation sets how Parallel nodes run their branches.
// The default runs them on goroutines in the current process.
func WithIsolation(iso functor.Isolation) Opt {
	return func(c *Config) {
		c.isolation = iso
	}
}

// WithLogger enables debug logging of parsed commands.
func WithLogger(l *slog.Logger) Opt {
	return func(c *Config) {
		c.log = l
	}
}

func (c *Config) logger() *slog.Logger {
	if c.log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.log
}
