package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/opal-lang/astro/runtime/execution"
	"gopkg.in/yaml.v3"
)

// Isolation modes for parallel branches.
const (
	isolationProcess   = "process"
	isolationGoroutine = "goroutine"
)

const localConfigFile = ".astro.yaml"

// Config holds settings read from the config file and overridden by flags.
type Config struct {
	ScriptsPath string `yaml:"scripts_path"`
	Interpreter string `yaml:"interpreter"`
	Isolation   string `yaml:"isolation"`
	Debug       bool   `yaml:"debug"`
	NoColor     bool   `yaml:"no_color"`
	HistoryFile string `yaml:"history_file"`
}

func defaultConfig() Config {
	return Config{
		Interpreter: execution.DefaultInterpreter,
		Isolation:   isolationProcess,
	}
}

// configPaths lists the files searched when --config is not given, in order.
func configPaths() []string {
	paths := []string{localConfigFile}

	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		}
	}
	if dir != "" {
		paths = append(paths, filepath.Join(dir, "astro", "config.yaml"))
	}
	return paths
}

// loadConfig reads the config file. An explicit path must exist; otherwise
// the first file found in configPaths wins and none at all means defaults.
func loadConfig(path string) (Config, error) {
	if path != "" {
		return readConfig(path)
	}

	for _, candidate := range configPaths() {
		cfg, err := readConfig(candidate)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		return cfg, err
	}
	return defaultConfig(), nil
}

func readConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	cfg, err := decodeConfig(f)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// decodeConfig decodes YAML over the defaults. Unknown keys are errors.
func decodeConfig(r io.Reader) (Config, error) {
	cfg := defaultConfig()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Isolation {
	case isolationProcess, isolationGoroutine:
	default:
		return fmt.Errorf("isolation must be %q or %q, got %q", isolationProcess, isolationGoroutine, c.Isolation)
	}
	if c.Interpreter == "" {
		return errors.New("interpreter must not be empty")
	}
	return nil
}
