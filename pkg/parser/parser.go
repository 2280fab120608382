// Package parser turns a token stream into the AST the core compiles.
//
// This is the "Parser" named in the core's external-collaborator contract.
// Only parenthesized s-expressions nest; everything else is a leaf.
package parser

import (
	"fmt"

	"github.com/jstankevicius/boba/pkg/ast"
	bobaerrors "github.com/jstankevicius/boba/pkg/errors"
	"github.com/jstankevicius/boba/pkg/token"
)

// Parser consumes a flat token slice and builds AST nodes.
type Parser struct {
	toks []token.Token
	pos  int
}

// New constructs a Parser over a complete token stream (including the
// trailing Eof token).
func New(toks []token.Token) *Parser {
	return &Parser{toks: toks}
}

func (p *Parser) peek() token.Token {
	if p.pos >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos]
}

func (p *Parser) advance() token.Token {
	t := p.peek()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

// ParseProgram parses every top-level expression until Eof and returns a
// Root node holding them in source order.
func (p *Parser) ParseProgram() (*ast.Node, error) {
	var children []*ast.Node
	for p.peek().Kind != token.Eof {
		n, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	}
	return ast.NewRoot(children...), nil
}

// ParseOne parses a single top-level expression, for REPL use where each
// line is compiled and evaluated independently.
func (p *Parser) ParseOne() (*ast.Node, error) {
	if p.peek().Kind == token.Eof {
		return nil, nil
	}
	return p.parseExpr()
}

func (p *Parser) parseExpr() (*ast.Node, error) {
	tok := p.peek()

	switch tok.Kind {
	case token.Eof:
		return nil, p.errAt(tok, "unexpected end of input")

	case token.Punctuation:
		if tok.Text != "(" {
			return nil, p.errAt(tok, fmt.Sprintf("unexpected '%s'", tok.Text))
		}
		return p.parseList()

	case token.IntLiteral:
		p.advance()
		return ast.NewLeaf(ast.IntLiteral, tok), nil

	case token.FloatLiteral:
		p.advance()
		return ast.NewLeaf(ast.FloatLiteral, tok), nil

	case token.StrLiteral:
		p.advance()
		return ast.NewLeaf(ast.StrLiteral, tok), nil

	case token.BoolLiteral:
		p.advance()
		return ast.NewLeaf(ast.BoolLiteral, tok), nil

	case token.Symbol:
		p.advance()
		return ast.NewLeaf(ast.Symbol, tok), nil

	default:
		return nil, p.errAt(tok, fmt.Sprintf("unexpected token %q", tok.Text))
	}
}

func (p *Parser) parseList() (*ast.Node, error) {
	open := p.advance() // consume '('
	var children []*ast.Node
	for {
		t := p.peek()
		if t.Kind == token.Eof {
			return nil, p.errAt(open, "unterminated list")
		}
		if t.Kind == token.Punctuation && t.Text == ")" {
			p.advance()
			return ast.NewExpr(open, children...), nil
		}
		child, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
}

func (p *Parser) errAt(tok token.Token, msg string) error {
	return bobaerrors.NewParseError(tok, msg)
}
