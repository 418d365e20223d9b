package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/opal-lang/astro/runtime/engine"
	"github.com/opal-lang/astro/runtime/worker"
	"github.com/spf13/cobra"
)

// flags holds the raw command-line values. Only flags the user set override
// the config file.
type flags struct {
	configPath  string
	scriptsPath string
	interpreter string
	isolation   string
	debug       bool
	noColor     bool
	commands    []string
	payload     string
}

type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

func main() {
	// Parallel branches re-execute this binary; the worker side never
	// reaches cobra.
	if worker.Requested() {
		os.Exit(runWorker(os.Args[1:]))
	}
	os.Exit(execute(os.Args[1:], streams{in: os.Stdin, out: os.Stdout, err: os.Stderr}))
}

func runWorker(args []string) int {
	debug := slices.Contains(args, "--debug")
	logger := newLogger(os.Stderr, debug)

	nested := &worker.Process{Logger: logger}
	if debug {
		nested.Args = []string{"--debug"}
	}
	eng := engine.New(engine.WithIsolation(nested), engine.WithLogger(logger))
	return worker.Main(
		worker.WithRunner(eng),
		worker.WithIsolation(nested),
		worker.WithLogger(logger),
	)
}

// execute runs the CLI and returns the process exit code.
func execute(args []string, s streams) int {
	var f flags

	rootCmd := &cobra.Command{
		Use:   "astro",
		Short: "Compose shell commands, scripts and system handlers into file pipelines",
		Long: `astro runs pipelines written in a small composition language:

  cmd | cmd    run left to right, feeding output files forward
  cmd, cmd     run side by side on the same input
  (...)        group
  :name        call a system handler
  name         run scripts/name.py if it exists, otherwise the executable`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, f, s)
		},
	}

	rootCmd.Flags().StringVar(&f.configPath, "config", "", "Path to config file (default .astro.yaml or $XDG_CONFIG_HOME/astro/config.yaml)")
	rootCmd.Flags().StringVar(&f.scriptsPath, "scripts-path", "", "Directory searched for user scripts (default ./scripts)")
	rootCmd.Flags().StringVar(&f.interpreter, "interpreter", "", "Interpreter for user scripts (default python3)")
	rootCmd.Flags().StringVar(&f.isolation, "isolation", "", "Isolation of parallel branches: process or goroutine")
	rootCmd.Flags().BoolVar(&f.debug, "debug", false, "Enable debug output")
	rootCmd.Flags().BoolVar(&f.noColor, "no-color", false, "Disable colored output")
	rootCmd.Flags().StringArrayVarP(&f.commands, "command", "c", nil, "Command to run; repeat to chain commands into a pipeline")
	rootCmd.Flags().StringVar(&f.payload, "payload", "", "JSON input payload for --command mode")

	rootCmd.SetArgs(args)
	rootCmd.SetIn(s.in)
	rootCmd.SetOut(s.out)
	rootCmd.SetErr(s.err)

	err := rootCmd.ExecuteContext(context.Background())
	FormatError(s.err, err, ShouldUseColor(f.noColor, fileOf(s.err)))
	return exitCode(err)
}

func run(cmd *cobra.Command, f flags, s streams) error {
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return &CLIError{
			Type:    "config",
			Message: "failed to load config",
			Details: err.Error(),
			Hint:    "known keys: scripts_path, interpreter, isolation, debug, no_color, history_file",
		}
	}
	applyFlags(&cfg, cmd, f)
	if err := cfg.validate(); err != nil {
		return &CLIError{Type: "usage", Message: err.Error()}
	}

	sess, err := newSession(cfg, s.err)
	if err != nil {
		return &CLIError{Type: "config", Message: "failed to set up session", Details: err.Error()}
	}

	switch {
	case len(f.commands) > 0:
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return sess.runCommands(ctx, f.commands, f.payload, s.out)
	case isTerminal(fileOf(s.in)):
		return sess.repl(cmd.Context(), s.out)
	default:
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return sess.runLines(ctx, s.in, s.out)
	}
}

// applyFlags overrides config values with the flags the user set.
func applyFlags(cfg *Config, cmd *cobra.Command, f flags) {
	changed := cmd.Flags().Changed
	if changed("scripts-path") {
		cfg.ScriptsPath = f.scriptsPath
	}
	if changed("interpreter") {
		cfg.Interpreter = f.interpreter
	}
	if changed("isolation") {
		cfg.Isolation = f.isolation
	}
	if changed("debug") {
		cfg.Debug = f.debug
	}
	if changed("no-color") {
		cfg.NoColor = f.noColor
	}
}

// newLogger writes plain key=value lines without time or level, the way a
// terminal user wants to read them.
func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey || a.Key == slog.LevelKey {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func fileOf(v interface{}) *os.File {
	f, _ := v.(*os.File)
	return f
}
