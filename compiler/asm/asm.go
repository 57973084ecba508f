package asm

import (
	"encoding/binary"

	"tlog.app/go/errors"

	"github.com/slowlang/slvm/compiler/bytecode"
)

type (
	Reg   uint16
	Label uint32

	// Instr is one decoded instruction.
	Instr interface {
		Opcode() bytecode.Opcode
		Emit(u *bytecode.Unit)
	}

	Func struct {
		RegCount uint16
		ArgCount uint16
	}

	Call struct {
		Func uint32
	}

	Ret struct {
		In [1]Reg
	}

	Set struct {
		Type bytecode.RegType
		Out  [1]Reg
		Imm  uint64 // raw bits, truncated to Type width
	}

	Mov struct {
		Out [1]Reg
		In  [1]Reg
	}

	Math struct {
		Op   bytecode.Opcode
		Type bytecode.RegType
		Out  [1]Reg
		In   [2]Reg
	}

	Cmp struct {
		Type bytecode.RegType
		In   [2]Reg
	}

	Jump struct {
		Op    bytecode.Opcode
		Label Label
	}

	Push struct {
		Type bytecode.RegType
		In   [1]Reg
	}

	Pop struct {
		Type bytecode.RegType
		Out  [1]Reg
	}
)

// Decode decodes the instruction at pc and returns the offset of the next one.
func Decode(code []byte, pc int) (x Instr, next int, err error) {
	if pc < 0 || pc+2 > len(code) {
		return nil, pc, errors.Wrap(bytecode.ErrTruncated, "opcode at %#x", pc)
	}

	op := bytecode.Opcode(binary.LittleEndian.Uint16(code[pc:]))
	if !op.Valid() {
		return nil, pc, errors.Wrap(bytecode.ErrUnknownOpcode, "%d at %#x", uint16(op), pc)
	}

	i := pc + 2

	var t bytecode.RegType

	switch op {
	case bytecode.OpSet, bytecode.OpCmp, bytecode.OpPush, bytecode.OpPop, bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod:
		if i >= len(code) {
			return nil, pc, errors.Wrap(bytecode.ErrTruncated, "%v at %#x", op, pc)
		}

		t = bytecode.RegType(code[i])
		if !t.Valid() {
			return nil, pc, errors.Wrap(bytecode.ErrBadRegType, "%v at %#x: %d", op, pc, uint8(t))
		}
	}

	next = i + op.OperandSize(t)
	if next > len(code) {
		return nil, pc, errors.Wrap(bytecode.ErrTruncated, "%v at %#x", op, pc)
	}

	u16 := func(off int) uint16 { return binary.LittleEndian.Uint16(code[i+off:]) }
	u32 := func(off int) uint32 { return binary.LittleEndian.Uint32(code[i+off:]) }

	switch {
	case op == bytecode.OpFunc:
		x = Func{RegCount: u16(0), ArgCount: u16(2)}
	case op == bytecode.OpCall:
		x = Call{Func: u32(0)}
	case op == bytecode.OpRet:
		x = Ret{In: [1]Reg{Reg(u16(0))}}
	case op == bytecode.OpSet:
		s := Set{Type: t, Out: [1]Reg{Reg(u16(1))}}

		switch t.Size() {
		case 1:
			s.Imm = uint64(code[i+3])
		case 2:
			s.Imm = uint64(u16(3))
		case 4:
			s.Imm = uint64(u32(3))
		case 8:
			s.Imm = binary.LittleEndian.Uint64(code[i+3:])
		}

		x = s
	case op == bytecode.OpMov:
		x = Mov{Out: [1]Reg{Reg(u16(0))}, In: [1]Reg{Reg(u16(2))}}
	case op.IsMath():
		x = Math{Op: op, Type: t, Out: [1]Reg{Reg(u16(1))}, In: [2]Reg{Reg(u16(3)), Reg(u16(5))}}
	case op == bytecode.OpCmp:
		x = Cmp{Type: t, In: [2]Reg{Reg(u16(1)), Reg(u16(3))}}
	case op.IsJump():
		x = Jump{Op: op, Label: Label(u32(0))}
	case op == bytecode.OpPush:
		x = Push{Type: t, In: [1]Reg{Reg(u16(1))}}
	case op == bytecode.OpPop:
		x = Pop{Type: t, Out: [1]Reg{Reg(u16(1))}}
	}

	return x, next, nil
}

// Encode appends instructions to u.
func Encode(u *bytecode.Unit, l ...Instr) {
	for _, x := range l {
		x.Emit(u)
	}
}

func (Func) Opcode() bytecode.Opcode { return bytecode.OpFunc }
func (Call) Opcode() bytecode.Opcode { return bytecode.OpCall }
func (Ret) Opcode() bytecode.Opcode { return bytecode.OpRet }
func (Set) Opcode() bytecode.Opcode { return bytecode.OpSet }
func (Mov) Opcode() bytecode.Opcode { return bytecode.OpMov }
func (x Math) Opcode() bytecode.Opcode { return x.Op }
func (Cmp) Opcode() bytecode.Opcode { return bytecode.OpCmp }
func (x Jump) Opcode() bytecode.Opcode { return x.Op }
func (Push) Opcode() bytecode.Opcode { return bytecode.OpPush }
func (Pop) Opcode() bytecode.Opcode { return bytecode.OpPop }

func (x Func) Emit(u *bytecode.Unit) { u.PushFunction(x.ArgCount, x.RegCount) }
func (x Call) Emit(u *bytecode.Unit) { u.PushCall(x.Func) }
func (x Ret) Emit(u *bytecode.Unit) { u.PushReturn(uint16(x.In[0])) }
func (x Set) Emit(u *bytecode.Unit) { u.PushSet(x.Type, uint16(x.Out[0]), x.Imm) }
func (x Mov) Emit(u *bytecode.Unit) { u.PushMov(uint16(x.Out[0]), uint16(x.In[0])) }
func (x Cmp) Emit(u *bytecode.Unit) { u.PushCmp(x.Type, uint16(x.In[0]), uint16(x.In[1])) }
func (x Jump) Emit(u *bytecode.Unit) { u.PushJump(x.Op, uint32(x.Label)) }
func (x Push) Emit(u *bytecode.Unit) { u.PushPush(x.Type, uint16(x.In[0])) }
func (x Pop) Emit(u *bytecode.Unit) { u.PushPop(x.Type, uint16(x.Out[0])) }

func (x Math) Emit(u *bytecode.Unit) {
	u.PushMath(x.Op, x.Type, uint16(x.Out[0]), uint16(x.In[0]), uint16(x.In[1]))
}
