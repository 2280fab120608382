// Package compiler implements Boba's Emitter: the single-pass compiler
// that walks one AST expression at a time and appends forward-only
// bytecode, with back-patched relative jumps for `if` and `fn`, to a
// shared vm.Processor instruction buffer.
//
// The Emitter never executes code. It owns the compile-time Scope stack
// and the monotonically increasing variable counter; the vm.Processor it
// targets owns the actual bytes.
package compiler

import (
	"fmt"
	"strconv"

	"github.com/jstankevicius/boba/pkg/ast"
	bobaerrors "github.com/jstankevicius/boba/pkg/errors"
	"github.com/jstankevicius/boba/pkg/token"
	"github.com/jstankevicius/boba/pkg/vm"
)

// jumpOperandSize is the byte length of a Jmp/JmpTrue/JmpFalse opcode
// plus its i32 offset operand, reserved up front and back-patched once
// the jump target is known.
const jumpOperandSize = 1 + 4

// Emitter compiles one AST node at a time onto a shared vm.Processor.
type Emitter struct {
	Proc  *vm.Processor
	Scope *Scope

	varCounter int

	// builtinOpcodes maps a builtin's variable index to the single
	// opcode its body consists of, letting emitCall inline the opcode
	// directly instead of emitting a Call.
	builtinOpcodes map[int]vm.Opcode
	builtinCount   int
	minusIdx       int // variable index of the builtin "-", for the unary/binary tie-break
}

// NewEmitter builds an Emitter over proc with an empty global scope. It
// does not register builtins; call DefineBuiltin for each one during
// Runtime construction (see pkg/runtime).
func NewEmitter(proc *vm.Processor) *Emitter {
	return &Emitter{
		Proc:           proc,
		Scope:          NewScope(),
		builtinOpcodes: make(map[int]vm.Opcode),
		minusIdx:       -1,
	}
}

// DefineBuiltin installs a primitive procedure at the next variable
// index: binds it in the global scope, records its single opcode for
// call-site inlining, and writes a one-opcode-plus-Ret Closure into the
// Processor's global environment so an unresolved inline site (none
// exist today, since every builtin call is inlined) would still work.
func (e *Emitter) DefineBuiltin(name string, op vm.Opcode) int {
	idx := e.nextVar()
	e.Scope.DefineLocal(name, idx)
	e.builtinOpcodes[idx] = op
	if idx+1 > e.builtinCount {
		e.builtinCount = idx + 1
	}
	if name == "-" {
		e.minusIdx = idx
	}

	body := []byte{byte(op), byte(vm.Ret)}
	e.Proc.Envs[0][idx] = vm.ClosureValue(&vm.Closure{Arity: 2, Body: body, Env: vm.Environment{}})
	return idx
}

func (e *Emitter) nextVar() int {
	idx := e.varCounter
	e.varCounter++
	return idx
}

func compileErr(tok token.Token, msg string) error {
	return bobaerrors.NewCompileError(tok, msg)
}

// Emit compiles one AST node, appending bytecode to e.Proc. It is the
// Emitter's single public entry point per §4.1.
func (e *Emitter) Emit(node *ast.Node) error {
	switch node.Kind {
	case ast.IntLiteral:
		v, err := strconv.ParseInt(node.Token.Text, 10, 64)
		if err != nil {
			return compileErr(node.Token, "malformed integer literal")
		}
		e.Proc.Emit(vm.PushInt)
		e.Proc.EmitInt32(int32(v))
		return nil

	case ast.FloatLiteral:
		v, err := strconv.ParseFloat(node.Token.Text, 64)
		if err != nil {
			return compileErr(node.Token, "malformed float literal")
		}
		e.Proc.Emit(vm.PushFloat)
		e.Proc.EmitFloat64(v)
		return nil

	case ast.StrLiteral:
		e.Proc.Emit(vm.PushStr)
		e.Proc.EmitStr(node.Token.Text)
		return nil

	case ast.BoolLiteral:
		if node.Token.Text == "true" {
			e.Proc.Emit(vm.PushTrue)
		} else {
			e.Proc.Emit(vm.PushFalse)
		}
		return nil

	case ast.Symbol:
		idx, ok := e.Scope.Resolve(node.Token.Text)
		if !ok {
			return compileErr(node.Token, "undefined symbol")
		}
		e.Proc.Emit(vm.PushRef)
		e.Proc.EmitInt32(int32(idx))
		return nil

	case ast.Expr:
		if len(node.Children) == 0 {
			return nil
		}
		switch node.Head() {
		case "def":
			return e.emitDef(node)
		case "do":
			return e.emitDo(node)
		case "if":
			return e.emitIf(node)
		case "fn":
			return e.emitFn(node)
		default:
			return e.emitCall(node)
		}

	default:
		return compileErr(node.Token, fmt.Sprintf("cannot compile node of kind %s", node.Kind))
	}
}

// emitDef implements `(def name expr)`: name is bound to a fresh index
// before expr is compiled, so a recursive reference inside expr resolves.
func (e *Emitter) emitDef(node *ast.Node) error {
	if len(node.Children) != 3 {
		return compileErr(node.Token, "def requires a name and an expression")
	}
	nameNode := node.Children[1]
	if nameNode.Kind != ast.Symbol {
		return compileErr(nameNode.Token, "def name must be a symbol")
	}
	name := nameNode.Token.Text
	if e.Scope.ExistsLocal(name) {
		return compileErr(nameNode.Token, "redefinition of variable")
	}

	idx := e.nextVar()
	e.Scope.DefineLocal(name, idx)

	if err := e.Emit(node.Children[2]); err != nil {
		return err
	}
	e.Proc.Emit(vm.Store)
	e.Proc.EmitInt32(int32(idx))
	return nil
}

// emitDo implements `(do e1 e2 ... en)`: each ei is compiled in order and
// the last one's result is left on the stack.
func (e *Emitter) emitDo(node *ast.Node) error {
	for _, child := range node.Children[1:] {
		if err := e.Emit(child); err != nil {
			return err
		}
	}
	return nil
}

// emitIf implements `(if cond t e)` with back-patched relative jumps.
func (e *Emitter) emitIf(node *ast.Node) error {
	if len(node.Children) != 4 {
		return compileErr(node.Token, "if requires a condition, then-branch and else-branch")
	}
	cond, thenExpr, elseExpr := node.Children[1], node.Children[2], node.Children[3]

	if err := e.Emit(cond); err != nil {
		return err
	}

	jmpFalseAddr := e.Proc.Emit(vm.JmpFalse)
	e.Proc.EmitInt32(0) // placeholder

	if err := e.Emit(thenExpr); err != nil {
		return err
	}

	jmpAddr := e.Proc.Emit(vm.Jmp)
	e.Proc.EmitInt32(0) // placeholder

	elseStart := e.Proc.Cursor()
	if err := e.Emit(elseExpr); err != nil {
		return err
	}
	end := e.Proc.Cursor()

	e.Proc.PatchInt32(jmpFalseAddr+1, int32(elseStart-jmpFalseAddr))
	e.Proc.PatchInt32(jmpAddr+1, int32(end-jmpAddr))
	return nil
}

// emitFn implements `(fn (p1 ... pk) body...)`.
func (e *Emitter) emitFn(node *ast.Node) error {
	if len(node.Children) < 3 {
		return compileErr(node.Token, "fn requires a parameter list and at least one body expression")
	}
	paramList := node.Children[1]
	if paramList.Kind != ast.Expr {
		return compileErr(paramList.Token, "fn parameter list must be a list")
	}
	bodyNodes := node.Children[2:]

	jmpAddr := e.Proc.Emit(vm.Jmp)
	e.Proc.EmitInt32(0) // placeholder, skips the body at the definition site

	e.Scope = e.Scope.Push()

	paramIdxs := make([]int, len(paramList.Children))
	for i, p := range paramList.Children {
		if p.Kind != ast.Symbol {
			e.Scope = e.Scope.Pop()
			return compileErr(p.Token, "fn parameter must be a symbol")
		}
		idx := e.nextVar()
		if !e.Scope.DefineLocal(p.Token.Text, idx) {
			e.Scope = e.Scope.Pop()
			return compileErr(p.Token, "duplicate parameter name")
		}
		paramIdxs[i] = idx
	}

	// Parameters are pushed by the caller left-to-right, so the top of
	// stack is the right-most argument; storing right-to-left consumes
	// pops in left-to-right order and binds names correctly.
	for i := len(paramIdxs) - 1; i >= 0; i-- {
		e.Proc.Emit(vm.Store)
		e.Proc.EmitInt32(int32(paramIdxs[i]))
	}

	for _, b := range bodyNodes {
		if err := e.Emit(b); err != nil {
			e.Scope = e.Scope.Pop()
			return err
		}
	}
	e.Proc.Emit(vm.Ret)

	codeBegin := jmpAddr + jumpOperandSize
	bodyEnd := e.Proc.Cursor()
	bodyLen := bodyEnd - codeBegin

	// The leading Jmp must land on CreateClosure itself, not past it: it
	// skips the compiled body at the definition site so execution falls
	// through to CreateClosure, which is what actually pushes the
	// Closure value callers/def expect.
	e.Proc.PatchInt32(jmpAddr+1, int32(bodyEnd-jmpAddr))

	e.Proc.Emit(vm.CreateClosure)
	e.Proc.EmitInt32(int32(bodyLen))

	e.Scope = e.Scope.Pop()
	return nil
}

// emitCall compiles `(callee arg1 ... argN)`. callee must be a symbol:
// Boba's opcode table has no opcode for calling a computed closure value,
// only Call-by-bound-name.
func (e *Emitter) emitCall(node *ast.Node) error {
	headNode := node.Children[0]
	if headNode.Kind != ast.Symbol {
		return compileErr(headNode.Token, "call target must be a symbol")
	}
	name := headNode.Token.Text
	idx, ok := e.Scope.Resolve(name)
	if !ok {
		return compileErr(headNode.Token, "undefined symbol")
	}
	args := node.Children[1:]

	// (- x) is Neg, (- x y) is Sub; both route through the unshadowed "-"
	// builtin only. A user redefinition of "-" falls through to a normal
	// call, with no special single-argument case.
	if name == "-" && idx == e.minusIdx {
		switch len(args) {
		case 1:
			if err := e.Emit(args[0]); err != nil {
				return err
			}
			e.Proc.Emit(vm.Neg)
			return nil
		case 2:
			if err := e.Emit(args[0]); err != nil {
				return err
			}
			if err := e.Emit(args[1]); err != nil {
				return err
			}
			e.Proc.Emit(vm.Sub)
			return nil
		default:
			return compileErr(node.Token, "expected 1 or 2 args")
		}
	}

	for _, a := range args {
		if err := e.Emit(a); err != nil {
			return err
		}
	}

	if op, ok := e.builtinOpcodes[idx]; ok {
		if len(args) != 2 {
			return compileErr(node.Token, "expected 2 args")
		}
		e.Proc.Emit(op)
		return nil
	}

	e.Proc.Emit(vm.Call)
	e.Proc.EmitInt32(int32(idx))
	return nil
}
