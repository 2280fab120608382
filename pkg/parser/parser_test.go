package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jstankevicius/boba/pkg/ast"
	"github.com/jstankevicius/boba/pkg/lexer"
	"github.com/jstankevicius/boba/pkg/parser"
)

func mustParseOne(t *testing.T, src string) *ast.Node {
	t.Helper()
	toks := lexer.Tokenize(src)
	n, err := parser.New(toks).ParseOne()
	require.NoError(t, err)
	require.NotNil(t, n)
	return n
}

func TestParseSimpleCall(t *testing.T) {
	n := mustParseOne(t, "(+ 2 3)")
	assert.Equal(t, ast.Expr, n.Kind)
	assert.Equal(t, "+", n.Head())
	require.Len(t, n.Children, 3)
	assert.Equal(t, ast.Symbol, n.Children[0].Kind)
	assert.Equal(t, ast.IntLiteral, n.Children[1].Kind)
}

func TestParseNestedCall(t *testing.T) {
	n := mustParseOne(t, "(+ (* 2 3) 1)")
	assert.Equal(t, "+", n.Head())
	inner := n.Children[1]
	assert.Equal(t, "*", inner.Head())
}

func TestParseEmptyList(t *testing.T) {
	n := mustParseOne(t, "()")
	assert.Equal(t, ast.Expr, n.Kind)
	assert.Empty(t, n.Children)
	assert.Equal(t, "", n.Head())
}

func TestParseUnterminatedListErrors(t *testing.T) {
	toks := lexer.Tokenize("(+ 1 2")
	_, err := parser.New(toks).ParseOne()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unterminated list")
}

func TestParseUnexpectedClosingParen(t *testing.T) {
	toks := lexer.Tokenize(")")
	_, err := parser.New(toks).ParseOne()
	require.Error(t, err)
}

func TestParseOneReturnsNilAtEof(t *testing.T) {
	toks := lexer.Tokenize("")
	n, err := parser.New(toks).ParseOne()
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestParseProgramCollectsAllTopLevelExprs(t *testing.T) {
	toks := lexer.Tokenize("(def a 1) (def b 2) (+ a b)")
	root, err := parser.New(toks).ParseProgram()
	require.NoError(t, err)
	assert.Equal(t, ast.Root, root.Kind)
	require.Len(t, root.Children, 3)
	assert.Equal(t, "def", root.Children[0].Head())
	assert.Equal(t, "+", root.Children[2].Head())
}
