// Package parser turns a command string into a functor tree.
//
// Grammar, lowest precedence first:
//
//	parallel   := sequential (',' sequential)*
//	sequential := block ('|' block)*
//	block      := '(' parallel ')' | command
//	command    := WORD WORD*
//
// A level with a single child collapses to that child. The first word of a
// command picks the functor kind:
//
//   - ":name" selects the system handler "name"; every following word is an
//     extra arg.
//   - "word" selects a user script when <scriptsPath>/word.py is a regular
//     file. Leading words that do not start with '-' become default inputs;
//     the first flag and everything after it become default extra args.
//   - Anything else is a builtin executable and every following word is an
//     extra arg.
//
// Script resolution hits the filesystem on every parse, so a script added or
// removed between two commands is picked up immediately.
package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opal-lang/astro/core/invariant"
	"github.com/opal-lang/astro/runtime/execution"
	"github.com/opal-lang/astro/runtime/functor"
	"github.com/opal-lang/astro/runtime/lexer"
)

// Parse parses command into a functor tree resolved against ec.
func Parse(command string, ec *execution.Context, opts ...Opt) (functor.Functor, error) {
	invariant.NotNil(ec, "execution context")

	cfg := &Config{}
	for _, opt := range opts {
		opt(cfg)
	}

	tokens, err := lexer.Tokenize(command)
	if err != nil {
		var qerr *lexer.UnterminatedQuoteError
		if errors.As(err, &qerr) {
			return nil, &ParseError{
				Message:    "unterminated quote",
				Token:      string(qerr.Quote),
				Input:      command,
				Suggestion: fmt.Sprintf("close the %c opened at offset %d", qerr.Quote, qerr.Offset),
				Err:        err,
			}
		}
		return nil, &ParseError{Message: err.Error(), Input: command, Err: err}
	}
	if len(tokens) == 0 {
		return nil, &ParseError{Message: "empty command", Input: command}
	}

	p := &parser{tokens: tokens, input: command, ec: ec, config: cfg}
	f, err := p.parseParallel()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		return nil, p.errorf(p.tokens[p.pos].Text, "unexpected token '%s'", p.tokens[p.pos].Text)
	}

	cfg.logger().Debug("parsed command", "command", command, "functor", f.Name())
	return f, nil
}

type parser struct {
	tokens []lexer.Token
	pos    int
	input  string
	ec     *execution.Context
	config *Config
}

func (p *parser) parseParallel() (functor.Functor, error) {
	first, err := p.parseSequential()
	if err != nil {
		return nil, err
	}
	children := []functor.Functor{first}
	for p.peekIs(lexer.COMMA) {
		p.pos++
		next, err := p.parseSequential()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return functor.NewParallel(children, p.config.isolation), nil
}

func (p *parser) parseSequential() (functor.Functor, error) {
	first, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	children := []functor.Functor{first}
	for p.peekIs(lexer.PIPE) {
		p.pos++
		next, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return functor.NewSequential(children), nil
}

func (p *parser) parseBlock() (functor.Functor, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, p.errorf("", "unexpected end of input")
	}

	switch tok.Type {
	case lexer.LPAREN:
		p.pos++
		f, err := p.parseParallel()
		if err != nil {
			return nil, err
		}
		if err := p.expect(lexer.RPAREN); err != nil {
			return nil, err
		}
		return f, nil
	case lexer.WORD:
		return p.parseCommand()
	default:
		return nil, p.errorf(tok.Text, "unexpected token '%s'", tok.Text)
	}
}

func (p *parser) parseCommand() (functor.Functor, error) {
	word := p.tokens[p.pos].Text
	p.pos++

	var args []string
	for {
		tok, ok := p.peek()
		if !ok || tok.Is(lexer.PIPE) || tok.Is(lexer.COMMA) || tok.Is(lexer.RPAREN) {
			break
		}
		if tok.Is(lexer.LPAREN) {
			return nil, p.errorf(tok.Text, "unexpected token '(' in command arguments")
		}
		args = append(args, tok.Text)
		p.pos++
	}
	return p.resolve(word, args)
}

func (p *parser) resolve(word string, args []string) (functor.Functor, error) {
	if strings.HasPrefix(word, ":") {
		name := strings.TrimPrefix(word, ":")
		if name == "" {
			return nil, &ParseError{
				Message:    "system command name missing",
				Token:      word,
				Input:      p.input,
				Suggestion: "write the handler name right after ':', e.g. ':history'",
			}
		}
		if args == nil {
			args = []string{}
		}
		return functor.NewSystem(name, args), nil
	}

	if script, ok := p.findScript(word); ok {
		inputs, extra := splitScriptArgs(args)
		if len(extra) > 0 && !strings.HasPrefix(extra[0], "-") {
			return nil, p.errorf(extra[0], "extra args must start with '-'")
		}
		return functor.NewUserDefined(word, script, p.ec.Interpreter(), "", inputs, extra), nil
	}

	return functor.NewBuiltin([]string{word}, args, ""), nil
}

// findScript reports whether word names a regular file in the script
// directory and returns its resolved path.
func (p *parser) findScript(word string) (string, bool) {
	path := filepath.Join(p.ec.ScriptsPath(), word+execution.ScriptExt)
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return path, true
}

// splitScriptArgs routes leading non-flag words to inputs and the first flag
// onward to extra args. Empty groups come back nil (unset).
func splitScriptArgs(args []string) (inputs, extra []string) {
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") {
			return inputs, append([]string(nil), args[i:]...)
		}
		inputs = append(inputs, arg)
	}
	return inputs, nil
}

func (p *parser) peek() (lexer.Token, bool) {
	if p.pos >= len(p.tokens) {
		return lexer.Token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) peekIs(tt lexer.TokenType) bool {
	tok, ok := p.peek()
	return ok && tok.Is(tt)
}

func (p *parser) expect(tt lexer.TokenType) error {
	tok, ok := p.peek()
	if !ok {
		err := p.errorf("", "expected '%s' but found end of input", symbol(tt))
		if tt == lexer.RPAREN {
			err.Suggestion = "close the group with ')'"
		}
		return err
	}
	if !tok.Is(tt) {
		return p.errorf(tok.Text, "expected '%s' but found '%s'", symbol(tt), tok.Text)
	}
	p.pos++
	return nil
}

func (p *parser) errorf(token, format string, args ...interface{}) *ParseError {
	return &ParseError{
		Message: fmt.Sprintf(format, args...),
		Token:   token,
		Input:   p.input,
	}
}

func symbol(tt lexer.TokenType) string {
	switch tt {
	case lexer.PIPE:
		return "|"
	case lexer.COMMA:
		return ","
	case lexer.LPAREN:
		return "("
	case lexer.RPAREN:
		return ")"
	default:
		return tt.String()
	}
}
