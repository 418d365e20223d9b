// Package lexer splits a command string into words and composition operators.
//
// Scanning rules:
//   - ' or " opens a quoted span. Inside it a backslash escapes the next
//     character literally and the matching unescaped quote closes the span,
//     emitting its text as one WORD (even when empty).
//   - Outside quotes whitespace separates words and each of | , ( ) is its own
//     token, flushing any word in progress. A quote also flushes the word in
//     progress, so ab"cd" yields two words.
//   - Input ending inside a quote is an error.
package lexer

import (
	"fmt"
	"strings"
	"unicode"
)

// UnterminatedQuoteError is returned when the input ends inside a quoted span.
type UnterminatedQuoteError struct {
	Quote  rune // ' or "
	Offset int  // byte offset of the opening quote
}

func (e *UnterminatedQuoteError) Error() string {
	return fmt.Sprintf("unterminated quote %c opened at offset %d", e.Quote, e.Offset)
}

// Tokenize scans command into tokens.
func Tokenize(command string) ([]Token, error) {
	var (
		tokens  []Token
		current strings.Builder
		inWord  bool
		quote   rune
		quoteAt int
		escaped bool
	)

	flush := func() {
		if inWord {
			tokens = append(tokens, Token{Type: WORD, Text: current.String()})
			current.Reset()
			inWord = false
		}
	}

	for offset, ch := range command {
		if quote != 0 {
			switch {
			case escaped:
				current.WriteRune(ch)
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == quote:
				tokens = append(tokens, Token{Type: WORD, Text: current.String()})
				current.Reset()
				quote = 0
			default:
				current.WriteRune(ch)
			}
			continue
		}

		if ch == '\'' || ch == '"' {
			flush()
			quote = ch
			quoteAt = offset
			continue
		}

		if unicode.IsSpace(ch) {
			flush()
			continue
		}

		if tt, ok := operators[ch]; ok {
			flush()
			tokens = append(tokens, Token{Type: tt, Text: string(ch)})
			continue
		}

		current.WriteRune(ch)
		inWord = true
	}

	if quote != 0 {
		return nil, &UnterminatedQuoteError{Quote: quote, Offset: quoteAt}
	}

	flush()
	return tokens, nil
}
