// Package ast defines the AST node contract the Boba core consumes.
//
// Every node carries a kind, an ordered list of children, and a back
// reference to the token it was built from, so the compiler can attribute
// errors precisely. The core never mutates a Node after the parser hands
// it over.
package ast

import "github.com/jstankevicius/boba/pkg/token"

// Kind tags the syntactic category of a Node.
type Kind int

const (
	Root Kind = iota
	Expr
	Symbol
	IntLiteral
	FloatLiteral
	StrLiteral
	BoolLiteral
)

func (k Kind) String() string {
	switch k {
	case Root:
		return "Root"
	case Expr:
		return "Expr"
	case Symbol:
		return "Symbol"
	case IntLiteral:
		return "IntLiteral"
	case FloatLiteral:
		return "FloatLiteral"
	case StrLiteral:
		return "StrLiteral"
	case BoolLiteral:
		return "BoolLiteral"
	default:
		return "Unknown"
	}
}

// Node is a single AST node. Leaf nodes (Symbol, IntLiteral, FloatLiteral,
// StrLiteral, BoolLiteral) carry their literal text in Token.Text and have
// no children. Expr nodes hold the s-expression's elements in source order
// as Children, with no separate head field: the head is Children[0].
type Node struct {
	Kind     Kind
	Children []*Node
	Token    token.Token
}

// NewLeaf builds a leaf node (Symbol or one of the literal kinds) from its
// originating token.
func NewLeaf(kind Kind, tok token.Token) *Node {
	return &Node{Kind: kind, Token: tok}
}

// NewExpr builds an Expr node from its parenthesized children, attributed
// to the opening-paren token.
func NewExpr(tok token.Token, children ...*Node) *Node {
	return &Node{Kind: Expr, Children: children, Token: tok}
}

// NewRoot builds the top-level container node for a parsed program.
func NewRoot(children ...*Node) *Node {
	return &Node{Kind: Root, Children: children}
}

// Head returns the head symbol of an Expr node, or "" if the node is not
// an Expr, is empty, or its first child is not a Symbol.
func (n *Node) Head() string {
	if n.Kind != Expr || len(n.Children) == 0 {
		return ""
	}
	head := n.Children[0]
	if head.Kind != Symbol {
		return ""
	}
	return head.Token.Text
}
