// Package vm implements Boba's value model and stack-based Processor: the
// instruction buffer, the fetch-execute dispatch loop, and every opcode
// handler. The Processor owns the single instruction buffer the Emitter
// (pkg/compiler) appends to; this package exposes the narrow set of
// buffer-editing methods the Emitter needs and nothing about AST or scope
// resolution, which stay entirely on the compiler side.
package vm

import (
	"encoding/binary"
	"math"

	bobaerrors "github.com/jstankevicius/boba/pkg/errors"
)

// createClosureOverhead is the byte length of a CreateClosure opcode plus
// its i32 operand; used to locate where a closure's body begins relative
// to its CreateClosure instruction.
const createClosureOverhead = 1 + 4

// callFrame is a saved return point: which buffer was executing (the
// shared top-level buffer, or some other closure's private body) and
// where in it to resume. Go has no raw instruction-pointer arithmetic
// across unrelated allocations the way the original's `unsigned char*`
// does, so the buffer identity travels alongside the offset explicitly.
type callFrame struct {
	buf []byte
	ip  int
}

// Processor is Boba's stack-based VM: instruction buffer, instruction
// pointer, value stack, environment stack and call stack.
//
// There is no zero-byte sentinel terminator; Go slices already carry
// their own length, so the fetch-execute loop halts at len(buf) instead.
// Design note 9 calls this substitution out explicitly as acceptable.
type Processor struct {
	Instructions []byte // the Emitter's shared, append-only buffer
	buf          []byte // the buffer currently executing (Instructions, or a Closure's own Body)
	ip           int    // cursor into buf

	ValueStack []Value
	Envs       []Environment
	callStack  []callFrame

	MaxCallDepth int

	// ClosuresCreated counts every CreateClosure execution over the
	// Processor's lifetime, for pkg/metrics' closures_created_total.
	ClosuresCreated int
}

// defaultMaxCallDepth bounds recursion so a runaway recursive def faults
// instead of exhausting the host process's stack.
const defaultMaxCallDepth = 4096

// NewProcessor builds a Processor with one empty global environment and
// an empty instruction buffer.
func NewProcessor() *Processor {
	p := &Processor{
		Envs:         []Environment{{}},
		MaxCallDepth: defaultMaxCallDepth,
	}
	p.buf = p.Instructions
	return p
}

// ---- buffer editing, used by pkg/compiler ----

// Cursor returns the current write position: the address the next emitted
// byte will occupy.
func (p *Processor) Cursor() int { return len(p.Instructions) }

// Emit appends a single opcode byte and returns its address.
func (p *Processor) Emit(op Opcode) int {
	addr := len(p.Instructions)
	p.Instructions = append(p.Instructions, byte(op))
	return addr
}

// EmitInt32 appends a little-endian 4-byte operand.
func (p *Processor) EmitInt32(v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	p.Instructions = append(p.Instructions, b[:]...)
}

// EmitFloat64 appends a little-endian 8-byte operand.
func (p *Processor) EmitFloat64(v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	p.Instructions = append(p.Instructions, b[:]...)
}

// EmitStr appends a u32 length prefix followed by the raw string bytes.
func (p *Processor) EmitStr(s string) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	p.Instructions = append(p.Instructions, lenBuf[:]...)
	p.Instructions = append(p.Instructions, s...)
}

// PatchInt32 overwrites the 4 bytes at addr, used for back-patching jump
// offsets and closure body lengths once they're known.
func (p *Processor) PatchInt32(addr int, v int32) {
	binary.LittleEndian.PutUint32(p.Instructions[addr:addr+4], uint32(v))
}

// Rewind truncates the instruction buffer back to addr, discarding any
// bytes emitted since. Used for throwaway-code reclamation after a
// non-def top-level expression, and to unwind partial emission on a
// compile error.
func (p *Processor) Rewind(addr int) {
	p.Instructions = p.Instructions[:addr]
}

// PrepareEval points the fetch-execute loop at addr in the shared
// instruction buffer, for the start of one top-level expression.
func (p *Processor) PrepareEval(addr int) {
	p.buf = p.Instructions
	p.ip = addr
}

// ---- stacks ----

func (p *Processor) push(v Value) { p.ValueStack = append(p.ValueStack, v) }

func (p *Processor) pop() (Value, error) {
	if len(p.ValueStack) == 0 {
		return Value{}, bobaerrors.NewRuntimeFault(p.lastOpcodeName(), len(p.ValueStack), "value stack underflow")
	}
	v := p.ValueStack[len(p.ValueStack)-1]
	p.ValueStack = p.ValueStack[:len(p.ValueStack)-1]
	return v, nil
}

// ClearValueStack empties the value stack, used on fault recovery.
func (p *Processor) ClearValueStack() { p.ValueStack = p.ValueStack[:0] }

func (p *Processor) topEnv() Environment {
	return p.Envs[len(p.Envs)-1]
}

var lastOpcode Opcode

func (p *Processor) lastOpcodeName() string { return lastOpcode.String() }

// ---- fetch-execute ----

// AtEnd reports whether execution of the current top-level expression has
// reached the end of the active buffer.
func (p *Processor) AtEnd() bool { return p.ip >= len(p.buf) }

// Run executes the fetch-execute loop until the active buffer is
// exhausted or a handler faults. On fault, the value stack and the call
// stack are cleared and the environment stack is cut back to the global
// environment per §7's runtime-fault recovery policy, and the error is
// returned.
func (p *Processor) Run() error {
	for p.ip < len(p.buf) {
		op := Opcode(p.buf[p.ip])
		lastOpcode = op
		p.ip++
		var err error
		if handler, ok := dispatch[op]; ok {
			err = handler(p)
		} else {
			err = bobaerrors.NewRuntimeFault(op.String(), len(p.ValueStack), "illegal opcode")
		}
		if err != nil {
			p.ClearValueStack()
			p.callStack = p.callStack[:0]
			p.Envs = p.Envs[:1]
			return err
		}
	}
	return nil
}

// Top returns the value on top of the value stack, or Nil if empty, per
// the Runtime facade's eval contract.
func (p *Processor) Top() Value {
	if len(p.ValueStack) == 0 {
		return NilValue
	}
	return p.ValueStack[len(p.ValueStack)-1]
}

func (p *Processor) readInt32() int32 {
	v := int32(binary.LittleEndian.Uint32(p.buf[p.ip : p.ip+4]))
	p.ip += 4
	return v
}

func (p *Processor) readFloat64() float64 {
	v := math.Float64frombits(binary.LittleEndian.Uint64(p.buf[p.ip : p.ip+8]))
	p.ip += 8
	return v
}

func (p *Processor) readStr() string {
	n := binary.LittleEndian.Uint32(p.buf[p.ip : p.ip+4])
	p.ip += 4
	s := string(p.buf[p.ip : p.ip+int(n)])
	p.ip += int(n)
	return s
}

type handlerFunc func(p *Processor) error

var dispatch = map[Opcode]handlerFunc{
	PushInt:       execPushInt,
	PushFloat:     execPushFloat,
	PushStr:       execPushStr,
	PushTrue:      execPushTrue,
	PushFalse:     execPushFalse,
	PushNil:       execPushNil,
	PushRef:       execPushRef,
	Store:         execStore,
	Jmp:           execJmp,
	JmpTrue:       execJmpTrue,
	JmpFalse:      execJmpFalse,
	Call:          execCall,
	Ret:           execRet,
	CreateClosure: execCreateClosure,
	Add:           execAdd,
	Sub:           execSub,
	Mul:           execMul,
	Div:           execDiv,
	Neg:           execNeg,
	Eq:            execEq,
	Less:          execLess,
	LessEq:        execLessEq,
	Greater:       execGreater,
	GreaterEq:     execGreaterEq,
	And:           execAnd,
	Or:            execOr,
	Not:           execNot,
}

func execPushInt(p *Processor) error {
	p.push(IntValue(int64(p.readInt32())))
	return nil
}

func execPushFloat(p *Processor) error {
	p.push(FloatValue(p.readFloat64()))
	return nil
}

func execPushStr(p *Processor) error {
	p.push(StrValue(p.readStr()))
	return nil
}

func execPushTrue(p *Processor) error  { p.push(TrueValue); return nil }
func execPushFalse(p *Processor) error { p.push(FalseValue); return nil }
func execPushNil(p *Processor) error   { p.push(NilValue); return nil }

func execPushRef(p *Processor) error {
	idx := int(p.readInt32())
	v, ok := p.topEnv()[idx]
	if !ok {
		return bobaerrors.NewRuntimeFault(PushRef.String(), len(p.ValueStack), "unbound variable index")
	}
	p.push(v)
	return nil
}

func execStore(p *Processor) error {
	idx := int(p.readInt32())
	v, err := p.pop()
	if err != nil {
		return err
	}
	if v.Kind == ClosureVal {
		// Recursive self-reference: the closure writes itself into its own
		// captured environment under its own binding slot. This makes the
		// closure reachable from its own Env, a cycle that Go's garbage
		// collector reclaims without any explicit breaking step.
		v.Closure.Env[idx] = v
	}
	p.topEnv()[idx] = v
	return nil
}

func execJmp(p *Processor) error {
	jmpStart := p.ip - 1
	off := p.readInt32()
	p.ip = jmpStart + int(off)
	return nil
}

func execJmpTrue(p *Processor) error {
	jmpStart := p.ip - 1
	off := p.readInt32()
	b, err := p.popBool()
	if err != nil {
		return err
	}
	if b {
		p.ip = jmpStart + int(off)
	}
	return nil
}

func execJmpFalse(p *Processor) error {
	jmpStart := p.ip - 1
	off := p.readInt32()
	b, err := p.popBool()
	if err != nil {
		return err
	}
	if !b {
		p.ip = jmpStart + int(off)
	}
	return nil
}

func (p *Processor) popBool() (bool, error) {
	v, err := p.pop()
	if err != nil {
		return false, err
	}
	if v.Kind != Bool {
		return false, bobaerrors.NewRuntimeFault(lastOpcode.String(), len(p.ValueStack), "operand is not a bool")
	}
	return v.Bool, nil
}

func execCall(p *Processor) error {
	idx := int(p.readInt32())
	returnIP := p.ip

	closureVal, ok := p.topEnv()[idx]
	if !ok {
		return bobaerrors.NewRuntimeFault(Call.String(), len(p.ValueStack), "call of an unbound variable")
	}
	if closureVal.Kind != ClosureVal {
		return bobaerrors.NewRuntimeFault(Call.String(), len(p.ValueStack), "call of a non-closure")
	}
	if len(p.callStack) >= p.MaxCallDepth {
		return bobaerrors.NewRuntimeFault(Call.String(), len(p.ValueStack), "call stack depth exceeded")
	}

	p.callStack = append(p.callStack, callFrame{buf: p.buf, ip: returnIP})
	p.Envs = append(p.Envs, closureVal.Closure.Env.Clone())
	p.buf = closureVal.Closure.Body
	p.ip = 0
	return nil
}

func execRet(p *Processor) error {
	if len(p.callStack) == 0 {
		return bobaerrors.NewRuntimeFault(Ret.String(), len(p.ValueStack), "return with empty call stack")
	}
	p.Envs = p.Envs[:len(p.Envs)-1]
	frame := p.callStack[len(p.callStack)-1]
	p.callStack = p.callStack[:len(p.callStack)-1]
	p.buf = frame.buf
	p.ip = frame.ip
	return nil
}

func execCreateClosure(p *Processor) error {
	bodyLen := int(p.readInt32())
	operandEnd := p.ip
	codeBegin := operandEnd - createClosureOverhead - bodyLen
	if codeBegin < 0 || codeBegin+bodyLen > len(p.buf) {
		return bobaerrors.NewRuntimeFault(CreateClosure.String(), len(p.ValueStack), "closure body exceeds reserved length")
	}
	body := make([]byte, bodyLen)
	copy(body, p.buf[codeBegin:codeBegin+bodyLen])

	closure := &Closure{Body: body, Env: p.topEnv().Clone()}
	p.push(ClosureValue(closure))
	p.ClosuresCreated++
	return nil
}

func binaryNumeric(p *Processor, op Opcode, fInt func(a, b int64) int64, fFloat func(a, b float64) float64) error {
	right, err := p.pop()
	if err != nil {
		return err
	}
	left, err := p.pop()
	if err != nil {
		return err
	}
	switch {
	case left.Kind == Int && right.Kind == Int:
		p.push(IntValue(fInt(left.Int, right.Int)))
	case left.Kind == Float && right.Kind == Float:
		p.push(FloatValue(fFloat(left.Float, right.Float)))
	default:
		return bobaerrors.NewRuntimeFault(op.String(), len(p.ValueStack), "operands must both be Int or both be Float")
	}
	return nil
}

func execAdd(p *Processor) error {
	return binaryNumeric(p, Add, func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b })
}

func execSub(p *Processor) error {
	return binaryNumeric(p, Sub, func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b })
}

func execMul(p *Processor) error {
	return binaryNumeric(p, Mul, func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b })
}

func execDiv(p *Processor) error {
	right, err := p.pop()
	if err != nil {
		return err
	}
	left, err := p.pop()
	if err != nil {
		return err
	}
	switch {
	case left.Kind == Int && right.Kind == Int:
		if right.Int == 0 {
			return bobaerrors.NewRuntimeFault(Div.String(), len(p.ValueStack), "division by zero")
		}
		p.push(IntValue(left.Int / right.Int))
	case left.Kind == Float && right.Kind == Float:
		p.push(FloatValue(left.Float / right.Float))
	default:
		return bobaerrors.NewRuntimeFault(Div.String(), len(p.ValueStack), "operands must both be Int or both be Float")
	}
	return nil
}

func execNeg(p *Processor) error {
	v, err := p.pop()
	if err != nil {
		return err
	}
	switch v.Kind {
	case Int:
		p.push(IntValue(-v.Int))
	case Float:
		p.push(FloatValue(-v.Float))
	default:
		return bobaerrors.NewRuntimeFault(Neg.String(), len(p.ValueStack), "operand must be Int or Float")
	}
	return nil
}

func valuesEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case Nil, EmptyListVal:
		return true
	case Int:
		return a.Int == b.Int
	case Float:
		return a.Float == b.Float
	case Str:
		return a.Str == b.Str
	case Bool:
		return a.Bool == b.Bool
	case SymbolVal:
		return a.Symbol == b.Symbol
	case ClosureVal:
		return a.Closure == b.Closure
	default:
		return false
	}
}

func execEq(p *Processor) error {
	right, err := p.pop()
	if err != nil {
		return err
	}
	left, err := p.pop()
	if err != nil {
		return err
	}
	p.push(BoolValue(valuesEqual(left, right)))
	return nil
}

func compareNumeric(p *Processor, op Opcode, cmpInt func(a, b int64) bool, cmpFloat func(a, b float64) bool) error {
	right, err := p.pop()
	if err != nil {
		return err
	}
	left, err := p.pop()
	if err != nil {
		return err
	}
	switch {
	case left.Kind == Int && right.Kind == Int:
		p.push(BoolValue(cmpInt(left.Int, right.Int)))
	case left.Kind == Float && right.Kind == Float:
		p.push(BoolValue(cmpFloat(left.Float, right.Float)))
	default:
		return bobaerrors.NewRuntimeFault(op.String(), len(p.ValueStack), "operands must both be Int or both be Float")
	}
	return nil
}

func execLess(p *Processor) error {
	return compareNumeric(p, Less, func(a, b int64) bool { return a < b }, func(a, b float64) bool { return a < b })
}

func execLessEq(p *Processor) error {
	return compareNumeric(p, LessEq, func(a, b int64) bool { return a <= b }, func(a, b float64) bool { return a <= b })
}

func execGreater(p *Processor) error {
	return compareNumeric(p, Greater, func(a, b int64) bool { return a > b }, func(a, b float64) bool { return a > b })
}

func execGreaterEq(p *Processor) error {
	return compareNumeric(p, GreaterEq, func(a, b int64) bool { return a >= b }, func(a, b float64) bool { return a >= b })
}

func execAnd(p *Processor) error {
	right, err := p.popBool()
	if err != nil {
		return err
	}
	left, err := p.popBool()
	if err != nil {
		return err
	}
	p.push(BoolValue(left && right))
	return nil
}

func execOr(p *Processor) error {
	right, err := p.popBool()
	if err != nil {
		return err
	}
	left, err := p.popBool()
	if err != nil {
		return err
	}
	p.push(BoolValue(left || right))
	return nil
}

func execNot(p *Processor) error {
	v, err := p.popBool()
	if err != nil {
		return err
	}
	p.push(BoolValue(!v))
	return nil
}
