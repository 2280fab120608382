// Package decompiler renders a Boba instruction buffer as a human
// readable listing. It is pure read-only introspection: it adds no
// opcode semantics of its own.
package decompiler

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/jstankevicius/boba/pkg/vm"
)

// Line is one decoded instruction: its byte offset, mnemonic, and decoded
// operand text (empty for opcodes with no operand).
type Line struct {
	Offset  int
	Opcode  vm.Opcode
	Operand string
}

func (l Line) String() string {
	if l.Operand == "" {
		return fmt.Sprintf("%04d  %s", l.Offset, l.Opcode)
	}
	return fmt.Sprintf("%04d  %-14s %s", l.Offset, l.Opcode, l.Operand)
}

// Disassemble decodes code into a sequence of Lines. It stops early, with
// "<truncated>" as a final pseudo-line's Operand, if it encounters a
// truncated operand. An illegal opcode byte is listed as "Illegal" with no
// operand and decoding continues at the next byte — the buffer is trusted
// to have been produced by pkg/compiler, so this is a diagnostic aid, not
// a validator.
func Disassemble(code []byte) []Line {
	var lines []Line
	offset := 0
	for offset < len(code) {
		op := vm.Opcode(code[offset])
		start := offset
		offset++

		operand := ""
		switch op {
		case vm.PushInt:
			if offset+4 > len(code) {
				return appendTruncated(lines, start, op)
			}
			v := int32(binary.LittleEndian.Uint32(code[offset : offset+4]))
			operand = fmt.Sprintf("%d", v)
			offset += 4

		case vm.PushFloat:
			if offset+8 > len(code) {
				return appendTruncated(lines, start, op)
			}
			v := math.Float64frombits(binary.LittleEndian.Uint64(code[offset : offset+8]))
			operand = fmt.Sprintf("%g", v)
			offset += 8

		case vm.PushStr:
			if offset+4 > len(code) {
				return appendTruncated(lines, start, op)
			}
			n := int(binary.LittleEndian.Uint32(code[offset : offset+4]))
			offset += 4
			if offset+n > len(code) {
				return appendTruncated(lines, start, op)
			}
			operand = fmt.Sprintf("%q", string(code[offset:offset+n]))
			offset += n

		case vm.PushRef, vm.Store, vm.Call, vm.CreateClosure:
			if offset+4 > len(code) {
				return appendTruncated(lines, start, op)
			}
			v := int32(binary.LittleEndian.Uint32(code[offset : offset+4]))
			operand = fmt.Sprintf("%d", v)
			offset += 4

		case vm.Jmp, vm.JmpTrue, vm.JmpFalse:
			if offset+4 > len(code) {
				return appendTruncated(lines, start, op)
			}
			v := int32(binary.LittleEndian.Uint32(code[offset : offset+4]))
			operand = fmt.Sprintf("%+d -> %04d", v, start+int(v))
			offset += 4

		default:
			// No-operand opcodes (PushTrue/False/Nil, Ret, arithmetic,
			// comparisons, logical ops) fall through with operand == "".
		}

		lines = append(lines, Line{Offset: start, Opcode: op, Operand: operand})
	}
	return lines
}

func appendTruncated(lines []Line, offset int, op vm.Opcode) []Line {
	return append(lines, Line{Offset: offset, Opcode: op, Operand: "<truncated>"})
}

// Format joins Disassemble's output into a single printable listing.
func Format(code []byte) string {
	lines := Disassemble(code)
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.String()
	}
	return strings.Join(parts, "\n")
}
