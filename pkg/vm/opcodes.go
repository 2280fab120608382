package vm

// Opcode is a single byte naming a Processor operation. Zero is never
// assigned to a real opcode. The fetch-execute loop halts at the end of
// the active buffer rather than on a zero byte; a zero byte met inside the
// buffer faults as an illegal opcode.
type Opcode byte

const (
	_ Opcode = iota // 0 is not a valid opcode

	// PushInt pushes a literal int32 operand.
	// Operand: i32. Stack: [] -> [Int(v)]
	PushInt

	// PushFloat pushes a literal float64 operand.
	// Operand: f64. Stack: [] -> [Float(v)]
	PushFloat

	// PushStr pushes a literal string operand, encoded as a u32 length
	// followed by that many raw bytes.
	// Operand: u32 len + bytes. Stack: [] -> [Str(v)]
	PushStr

	// PushTrue pushes the Bool true constant.
	// Operand: none. Stack: [] -> [Bool(true)]
	PushTrue

	// PushFalse pushes the Bool false constant.
	// Operand: none. Stack: [] -> [Bool(false)]
	PushFalse

	// PushNil pushes the Nil constant.
	// Operand: none. Stack: [] -> [Nil]
	PushNil

	// PushRef loads the value bound to a variable index in the top
	// environment frame and pushes it. Faults if the index is absent.
	// Operand: i32 idx. Stack: [] -> [env.top[idx]]
	PushRef

	// Store pops the top of stack and binds it to a variable index in the
	// top environment frame. If the popped value is a Closure, it is also
	// written back into that closure's own captured environment under the
	// same index, which is how a recursive def resolves its own name.
	// Operand: i32 idx. Stack: [v] -> []
	Store

	// Jmp moves the instruction pointer by a signed offset measured from
	// the address of the Jmp opcode byte itself, not from the byte after
	// its operand.
	// Operand: i32 off (relative to this opcode's own address). Stack: unchanged
	Jmp

	// JmpTrue pops a Bool and, if true, jumps by the relative offset in
	// the same way as Jmp; otherwise execution falls through to the next
	// instruction.
	// Operand: i32 off. Stack: [Bool(b)] -> []
	JmpTrue

	// JmpFalse is JmpTrue with the condition negated.
	// Operand: i32 off. Stack: [Bool(b)] -> []
	JmpFalse

	// Call pushes a return address onto the call stack, resolves a
	// Closure at the given variable index in the top environment frame,
	// pushes a fresh copy of that closure's captured environment, and
	// transfers control to the closure's own body.
	// Operand: i32 idx. Stack: [aN...a1] -> [] (args consumed by the callee's Store sequence)
	Call

	// Ret pops the current environment frame and resumes execution at the
	// return address popped from the call stack.
	// Operand: none. Stack: unchanged
	Ret

	// CreateClosure captures the current top environment frame and pairs
	// it with the body bytes immediately preceding this opcode's own
	// operand, producing a Closure value.
	// Operand: i32 body_len. Stack: [] -> [Closure]
	CreateClosure

	// Add pops b then a and pushes a+b. Commutative, so pop order does not
	// affect the result, but is specified for consistency with the other
	// binary arithmetic opcodes.
	// Operand: none. Stack: [a, b] -> [a+b]
	Add

	// Sub pops b then a and pushes a-b: the first-popped operand is the
	// right-hand side of the subtraction.
	// Operand: none. Stack: [a, b] -> [a-b]
	Sub

	// Mul pops b then a and pushes a*b.
	// Operand: none. Stack: [a, b] -> [a*b]
	Mul

	// Div pops b then a and pushes a/b: the first-popped operand is the
	// divisor.
	// Operand: none. Stack: [a, b] -> [a/b]
	Div

	// Neg pops a and pushes its negation.
	// Operand: none. Stack: [a] -> [-a]
	Neg

	// Eq pops b then a and pushes whether a equals b.
	// Operand: none. Stack: [a, b] -> [Bool(a==b)]
	Eq

	// Less pops b then a and pushes whether a < b.
	// Operand: none. Stack: [a, b] -> [Bool(a<b)]
	Less

	// LessEq pops b then a and pushes whether a <= b.
	// Operand: none. Stack: [a, b] -> [Bool(a<=b)]
	LessEq

	// Greater pops b then a and pushes whether a > b.
	// Operand: none. Stack: [a, b] -> [Bool(a>b)]
	Greater

	// GreaterEq pops b then a and pushes whether a >= b.
	// Operand: none. Stack: [a, b] -> [Bool(a>=b)]
	GreaterEq

	// And pops b then a and pushes a&&b. Both operands are evaluated
	// eagerly before this opcode runs; there is no short-circuiting.
	// Operand: none. Stack: [a, b] -> [Bool(a&&b)]
	And

	// Or pops b then a and pushes a||b, eagerly as with And.
	// Operand: none. Stack: [a, b] -> [Bool(a||b)]
	Or

	// Not pops a and pushes its logical negation.
	// Operand: none. Stack: [a] -> [Bool(!a)]
	Not
)

var mnemonics = map[Opcode]string{
	PushInt: "PushInt", PushFloat: "PushFloat", PushStr: "PushStr",
	PushTrue: "PushTrue", PushFalse: "PushFalse", PushNil: "PushNil",
	PushRef: "PushRef", Store: "Store",
	Jmp: "Jmp", JmpTrue: "JmpTrue", JmpFalse: "JmpFalse",
	Call: "Call", Ret: "Ret", CreateClosure: "CreateClosure",
	Add: "Add", Sub: "Sub", Mul: "Mul", Div: "Div", Neg: "Neg",
	Eq: "Eq", Less: "Less", LessEq: "LessEq", Greater: "Greater", GreaterEq: "GreaterEq",
	And: "And", Or: "Or", Not: "Not",
}

func (op Opcode) String() string {
	if m, ok := mnemonics[op]; ok {
		return m
	}
	return "Illegal"
}

// HasInt32Operand reports whether op is followed by a 4-byte little-endian
// operand, as opposed to no operand, the 8-byte PushFloat operand, or the
// variable-length PushStr encoding.
func (op Opcode) HasInt32Operand() bool {
	switch op {
	case PushInt, PushRef, Store, Jmp, JmpTrue, JmpFalse, Call, CreateClosure:
		return true
	default:
		return false
	}
}
