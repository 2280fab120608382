// Package token defines the lexical token contract the Boba core consumes.
//
// The lexer and parser are external collaborators to the compiler/vm core:
// they are implemented here for a complete, runnable CLI, but nothing in
// pkg/compiler or pkg/vm depends on their internals, only on this contract.
package token

// Kind tags the lexical category of a Token.
type Kind int

const (
	Illegal Kind = iota
	Eof

	Symbol      // identifiers and operator glyphs: foo, +, >=, my-func
	Punctuation // ( ) [ ] { } :
	IntLiteral
	FloatLiteral
	StrLiteral
	BoolLiteral
)

func (k Kind) String() string {
	switch k {
	case Eof:
		return "eof"
	case Symbol:
		return "symbol"
	case Punctuation:
		return "punctuation"
	case IntLiteral:
		return "int"
	case FloatLiteral:
		return "float"
	case StrLiteral:
		return "string"
	case BoolLiteral:
		return "bool"
	default:
		return "illegal"
	}
}

// Token is one lexeme tagged with its source location. Source holds a
// reference to the full buffer it was lexed from, so diagnostics can
// re-extract the offending line without the lexer keeping it alive
// separately.
type Token struct {
	Kind   Kind
	Text   string
	Line   int // 1-based
	Col    int // 1-based
	Source *string
}

func (t Token) String() string {
	return t.Text
}

// GetLine, GetCol, GetText and GetSource satisfy errors.Locatable without
// pkg/token importing pkg/errors.
func (t Token) GetLine() int    { return t.Line }
func (t Token) GetCol() int     { return t.Col }
func (t Token) GetText() string { return t.Text }
func (t Token) GetSource() string {
	if t.Source == nil {
		return ""
	}
	return *t.Source
}
