package lexer

// TokenType represents the lexical tokens of the composition language
type TokenType int

const (
	WORD   TokenType = iota // command word or argument (quoted or bare)
	PIPE                    // | - sequential composition
	COMMA                   // , - parallel composition
	LPAREN                  // ( - group open
	RPAREN                  // ) - group close
)

// Token is a single lexical unit. Tokens carry no position; only their order matters.
type Token struct {
	Type TokenType
	Text string
}

// Is reports whether the token is the given operator.
func (t Token) Is(tt TokenType) bool {
	return t.Type == tt
}

// String returns the token text (operators render as their symbol)
func (t Token) String() string {
	return t.Text
}

func (t TokenType) String() string {
	switch t {
	case WORD:
		return "WORD"
	case PIPE:
		return "PIPE"
	case COMMA:
		return "COMMA"
	case LPAREN:
		return "LPAREN"
	case RPAREN:
		return "RPAREN"
	default:
		return "UNKNOWN"
	}
}

var operators = map[rune]TokenType{
	'|': PIPE,
	',': COMMA,
	'(': LPAREN,
	')': RPAREN,
}
