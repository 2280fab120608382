package vm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jstankevicius/boba/pkg/vm"
)

func runSimple(t *testing.T, emit func(p *vm.Processor)) (vm.Value, error) {
	t.Helper()
	p := vm.NewProcessor()
	emit(p)
	p.PrepareEval(0)
	err := p.Run()
	return p.Top(), err
}

func TestPushIntAndAdd(t *testing.T) {
	v, err := runSimple(t, func(p *vm.Processor) {
		p.Emit(vm.PushInt)
		p.EmitInt32(2)
		p.Emit(vm.PushInt)
		p.EmitInt32(3)
		p.Emit(vm.Add)
	})
	require.NoError(t, err)
	assert.Equal(t, "5", v.ToString())
}

func TestSubArgumentOrder(t *testing.T) {
	// (- 1 3): push 1, push 3, Sub pops 3 first (rhs), then 1 (lhs) -> 1-3 = -2
	v, err := runSimple(t, func(p *vm.Processor) {
		p.Emit(vm.PushInt)
		p.EmitInt32(1)
		p.Emit(vm.PushInt)
		p.EmitInt32(3)
		p.Emit(vm.Sub)
	})
	require.NoError(t, err)
	assert.Equal(t, "-2", v.ToString())
}

func TestDivArgumentOrder(t *testing.T) {
	v, err := runSimple(t, func(p *vm.Processor) {
		p.Emit(vm.PushInt)
		p.EmitInt32(12)
		p.Emit(vm.PushInt)
		p.EmitInt32(4)
		p.Emit(vm.Div)
	})
	require.NoError(t, err)
	assert.Equal(t, "3", v.ToString())
}

func TestJumpOffsetRelativeToOpcodeStart(t *testing.T) {
	// Jmp immediately past a PushInt 99 that should be skipped, landing on
	// a PushInt 7.
	v, err := runSimple(t, func(p *vm.Processor) {
		jmpAddr := p.Emit(vm.Jmp)
		p.EmitInt32(0)
		skipStart := p.Cursor()
		p.Emit(vm.PushInt)
		p.EmitInt32(99)
		target := p.Cursor()
		p.Emit(vm.PushInt)
		p.EmitInt32(7)
		p.PatchInt32(jmpAddr+1, int32(target-jmpAddr))
		_ = skipStart
	})
	require.NoError(t, err)
	assert.Equal(t, "7", v.ToString())
}

func TestStackUnderflowFaults(t *testing.T) {
	_, err := runSimple(t, func(p *vm.Processor) {
		p.Emit(vm.Add)
	})
	require.Error(t, err)
}

func TestPushRefUnboundFaults(t *testing.T) {
	_, err := runSimple(t, func(p *vm.Processor) {
		p.Emit(vm.PushRef)
		p.EmitInt32(42)
	})
	require.Error(t, err)
}

func TestTypeMismatchFaults(t *testing.T) {
	_, err := runSimple(t, func(p *vm.Processor) {
		p.Emit(vm.PushInt)
		p.EmitInt32(1)
		p.Emit(vm.PushFloat)
		p.EmitFloat64(2.5)
		p.Emit(vm.Add)
	})
	require.Error(t, err)
}

func TestRewindReclaimsBuffer(t *testing.T) {
	p := vm.NewProcessor()
	mark := p.Cursor()
	p.Emit(vm.PushInt)
	p.EmitInt32(1)
	assert.Greater(t, p.Cursor(), mark)
	p.Rewind(mark)
	assert.Equal(t, mark, p.Cursor())
}

func TestStoreAndPushRefRoundTrip(t *testing.T) {
	v, err := runSimple(t, func(p *vm.Processor) {
		p.Emit(vm.PushInt)
		p.EmitInt32(41)
		p.Emit(vm.Store)
		p.EmitInt32(0)
		p.Emit(vm.PushRef)
		p.EmitInt32(0)
		p.Emit(vm.PushInt)
		p.EmitInt32(1)
		p.Emit(vm.Add)
	})
	require.NoError(t, err)
	assert.Equal(t, "42", v.ToString())
}

func TestValueStackEmptyAfterFaultRecovery(t *testing.T) {
	p := vm.NewProcessor()
	p.Emit(vm.Add)
	p.PrepareEval(0)
	err := p.Run()
	require.Error(t, err)
	assert.Empty(t, p.ValueStack)
}
