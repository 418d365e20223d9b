// Package catalog indexes the user scripts available as command words.
//
// The parser does not consult the catalog: it checks the filesystem on every
// parse. The catalog serves interactive features (tab completion, :scripts),
// where a slightly stale view is acceptable.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/opal-lang/astro/core/payload"
	"github.com/opal-lang/astro/runtime/execution"
)

// Catalog is a live index of <dir>/**/*.py, keyed by command word
// ("convert", "test/filter").
type Catalog struct {
	dir    string
	logger *slog.Logger

	mu      sync.RWMutex
	scripts map[string]string // command word -> script path
}

// Open scans dir. A missing directory yields an empty catalog.
func Open(dir string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Catalog{dir: dir, logger: logger, scripts: map[string]string{}}
	if err := c.Refresh(); err != nil {
		return nil, err
	}
	return c, nil
}

// Dir returns the indexed directory.
func (c *Catalog) Dir() string { return c.dir }

// Refresh rescans the directory.
func (c *Catalog) Refresh() error {
	scripts := make(map[string]string)
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == c.dir && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || filepath.Ext(path) != execution.ScriptExt {
			return nil
		}
		rel, err := filepath.Rel(c.dir, path)
		if err != nil {
			return err
		}
		word := filepath.ToSlash(strings.TrimSuffix(rel, execution.ScriptExt))
		scripts[word] = path
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan scripts in %s: %w", c.dir, err)
	}

	c.mu.Lock()
	c.scripts = scripts
	c.mu.Unlock()
	return nil
}

// Names returns every command word, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.scripts))
	for name := range c.scripts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Paths returns every script path, sorted by command word.
func (c *Catalog) Paths() []string {
	names := c.Names()
	c.mu.RLock()
	defer c.mu.RUnlock()
	paths := make([]string, 0, len(names))
	for _, name := range names {
		if path, ok := c.scripts[name]; ok {
			paths = append(paths, path)
		}
	}
	return paths
}

// Complete returns the command words starting with prefix.
func (c *Catalog) Complete(prefix string) []string {
	var out []string
	for _, name := range c.Names() {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	return out
}

// Watch keeps the catalog current until ctx is done. It blocks; run it on
// its own goroutine.
func (c *Catalog) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := c.watchTree(watcher); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			c.logger.Debug("scripts changed", "path", event.Name, "op", event.Op.String())
			if event.Has(fsnotify.Create) {
				// New subdirectories need their own watch.
				if err := c.watchTree(watcher); err != nil {
					c.logger.Warn("watch scripts", "error", err)
				}
			}
			if err := c.Refresh(); err != nil {
				c.logger.Warn("refresh scripts", "error", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("watch scripts", "error", err)
		}
	}
}

// watchTree adds the directory and every subdirectory to the watcher.
// fsnotify ignores paths it already watches.
func (c *Catalog) watchTree(w *fsnotify.Watcher) error {
	return filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == c.dir && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// Handler returns a system handler that lists the catalogued script paths.
// It closes over the catalog, so it is session-local and never portable.
func (c *Catalog) Handler() execution.SystemFunc {
	return func(ctx context.Context, in payload.Input, ec *execution.Context) (payload.Output, error) {
		paths := c.Paths()
		if len(paths) == 0 {
			return payload.Failure([]string{}, "no scripts in "+c.dir), nil
		}
		return payload.Success(paths), nil
	}
}
