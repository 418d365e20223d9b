package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterh/liner"
)

const prompt = "astro> "

// repl runs the interactive loop until exit, quit or end of input.
func (s *session) repl(ctx context.Context, out io.Writer) error {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := s.catalog.Watch(watchCtx); err != nil {
			s.logger.Warn("script catalog will not refresh", "error", err)
		}
	}()

	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetTabCompletionStyle(liner.TabPrints)
	line.SetWordCompleter(s.complete)

	if path := s.cfg.HistoryFile; path != "" {
		if f, err := os.Open(path); err == nil {
			_, _ = line.ReadHistory(f)
			f.Close()
		}
		defer func() {
			f, err := os.Create(path)
			if err != nil {
				s.logger.Warn("save history", "error", err)
				return
			}
			defer f.Close()
			_, _ = line.WriteHistory(f)
		}()
	}

	useColor := ShouldUseColor(s.cfg.NoColor, fileOf(s.errOut))
	_, _ = fmt.Fprintln(out, "Interactive mode. Type 'exit' or 'quit' to leave.")

	for {
		input, err := line.Prompt(prompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if errors.Is(err, io.EOF) {
			_, _ = fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return &CLIError{Type: "io", Message: "failed to read input", Details: err.Error()}
		}

		command := strings.TrimSpace(input)
		if command == "" {
			continue
		}
		line.AppendHistory(input)
		if isExit(command) {
			return nil
		}

		// Ctrl-C while a command runs cancels that command only.
		cmdCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		err = s.runOne(cmdCtx, command, out)
		stop()
		FormatError(s.errOut, err, useColor)
	}
}

// complete suggests script names and :handlers for the word under the
// cursor when it is in command position.
func (s *session) complete(line string, pos int) (head string, completions []string, tail string) {
	before, tail := line[:pos], line[pos:]
	start := strings.LastIndexAny(before, " \t|,(") + 1
	head, word := before[:start], before[start:]

	if !commandPosition(head) {
		return before, nil, tail
	}

	if strings.HasPrefix(word, ":") {
		for _, name := range s.ec.SystemFuncNames() {
			if strings.HasPrefix(":"+name, word) {
				completions = append(completions, ":"+name)
			}
		}
		return head, completions, tail
	}
	return head, s.catalog.Complete(word), tail
}

// commandPosition reports whether the text before a word ends where a command
// may start: the beginning of the line or right after | , or (.
func commandPosition(before string) bool {
	trimmed := strings.TrimRight(before, " \t")
	if trimmed == "" {
		return true
	}
	return strings.ContainsAny(trimmed[len(trimmed)-1:], "|,(")
}
