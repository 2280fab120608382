package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jstankevicius/boba/pkg/ast"
	"github.com/jstankevicius/boba/pkg/compiler"
	"github.com/jstankevicius/boba/pkg/lexer"
	"github.com/jstankevicius/boba/pkg/parser"
	"github.com/jstankevicius/boba/pkg/vm"
)

func parseOne(t *testing.T, src string) *ast.Node {
	t.Helper()
	toks := lexer.Tokenize(src)
	n, err := parser.New(toks).ParseOne()
	require.NoError(t, err)
	require.NotNil(t, n)
	return n
}

func newEmitterWithArith(proc *vm.Processor) *compiler.Emitter {
	e := compiler.NewEmitter(proc)
	e.DefineBuiltin("+", vm.Add)
	e.DefineBuiltin("-", vm.Sub)
	e.DefineBuiltin("*", vm.Mul)
	e.DefineBuiltin("/", vm.Div)
	e.DefineBuiltin("=", vm.Eq)
	return e
}

func TestEmitLiteralsAndRun(t *testing.T) {
	proc := vm.NewProcessor()
	e := newEmitterWithArith(proc)
	mark := proc.Cursor()
	require.NoError(t, e.Emit(parseOne(t, "(+ 1 2)")))
	proc.PrepareEval(mark)
	require.NoError(t, proc.Run())
	assert.Equal(t, "3", proc.Top().ToString())
}

func TestEmitUndefinedSymbolIsCompileError(t *testing.T) {
	proc := vm.NewProcessor()
	e := newEmitterWithArith(proc)
	err := e.Emit(parseOne(t, "unbound"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined symbol")
}

func TestEmitRedefinitionIsCompileError(t *testing.T) {
	proc := vm.NewProcessor()
	e := newEmitterWithArith(proc)
	require.NoError(t, e.Emit(parseOne(t, "(def a 1)")))
	err := e.Emit(parseOne(t, "(def a 2)"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redefinition")
}

func TestEmitCallTargetMustBeSymbol(t *testing.T) {
	proc := vm.NewProcessor()
	e := newEmitterWithArith(proc)
	err := e.Emit(parseOne(t, "((fn () 1))"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a symbol")
}

func TestEmitIfBranchesRun(t *testing.T) {
	proc := vm.NewProcessor()
	e := newEmitterWithArith(proc)

	mark := proc.Cursor()
	require.NoError(t, e.Emit(parseOne(t, "(if (= 1 1) 10 20)")))
	proc.PrepareEval(mark)
	require.NoError(t, proc.Run())
	assert.Equal(t, "10", proc.Top().ToString())
	proc.ClearValueStack()
	proc.Rewind(mark)

	require.NoError(t, e.Emit(parseOne(t, "(if (= 1 2) 10 20)")))
	proc.PrepareEval(mark)
	require.NoError(t, proc.Run())
	assert.Equal(t, "20", proc.Top().ToString())
}

func TestEmitFnAndCall(t *testing.T) {
	proc := vm.NewProcessor()
	e := newEmitterWithArith(proc)

	mark := proc.Cursor()
	require.NoError(t, e.Emit(parseOne(t, "(def double (fn (x) (* x 2)))")))
	require.NoError(t, e.Emit(parseOne(t, "(double 21)")))
	proc.PrepareEval(mark)
	require.NoError(t, proc.Run())
	assert.Equal(t, "42", proc.Top().ToString())
}

func TestUnaryMinusIsNeg(t *testing.T) {
	proc := vm.NewProcessor()
	e := newEmitterWithArith(proc)
	mark := proc.Cursor()
	require.NoError(t, e.Emit(parseOne(t, "(- 5)")))
	proc.PrepareEval(mark)
	require.NoError(t, proc.Run())
	assert.Equal(t, "-5", proc.Top().ToString())
}
