package errors_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	bobaerrors "github.com/jstankevicius/boba/pkg/errors"
)

type fakeTok struct {
	line, col int
	text      string
	source    string
}

func (f fakeTok) GetLine() int     { return f.line }
func (f fakeTok) GetCol() int      { return f.col }
func (f fakeTok) GetText() string  { return f.text }
func (f fakeTok) GetSource() string { return f.source }

func TestFormatParseErrorLayout(t *testing.T) {
	tok := fakeTok{line: 2, col: 5, text: "bad", source: "(+ 1 2)\n(bad 1 2)\n"}
	err := bobaerrors.NewParseError(tok, "unexpected symbol")
	msg := bobaerrors.Format(err, false)

	assert.Contains(t, msg, "ERROR: line 2, column 5")
	assert.Contains(t, msg, "(bad 1 2)")
	assert.Contains(t, msg, "unexpected symbol")
	assert.Contains(t, msg, "^^^") // len("bad") == 3
}

func TestFormatCompileErrorUsesSameLayout(t *testing.T) {
	tok := fakeTok{line: 1, col: 1, text: "x", source: "x\n"}
	err := bobaerrors.NewCompileError(tok, "undefined symbol")
	msg := bobaerrors.Format(err, false)
	assert.Contains(t, msg, "ERROR: line 1, column 1")
	assert.Contains(t, msg, "undefined symbol")
}

func TestRuntimeFaultHasNoSourceLocation(t *testing.T) {
	err := bobaerrors.NewRuntimeFault("Add", 3, "value stack underflow")
	msg := err.Error()
	assert.Contains(t, msg, "Add")
	assert.Contains(t, msg, "3")
	assert.Contains(t, msg, "value stack underflow")
	assert.NotContains(t, msg, "ERROR: line")
}

func TestFormatCaretMinimumLengthOne(t *testing.T) {
	tok := fakeTok{line: 1, col: 1, text: "", source: "\n"}
	err := bobaerrors.NewParseError(tok, "empty token")
	msg := bobaerrors.Format(err, false)
	assert.Contains(t, msg, "^")
}

func TestFormatWithColorsAddsEscapes(t *testing.T) {
	tok := fakeTok{line: 1, col: 1, text: "x", source: "x\n"}
	err := bobaerrors.NewParseError(tok, "oops")
	msg := bobaerrors.Format(err, true)
	assert.Contains(t, msg, "\x1b[")
}
