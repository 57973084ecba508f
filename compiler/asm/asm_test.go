package asm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/slowlang/slvm/compiler/bytecode"
)

func TestRoundTrip(t *testing.T) {
	prog := []Instr{
		Func{RegCount: 7, ArgCount: 2},
		Call{Func: 3},
		Ret{In: [1]Reg{5}},
		Mov{Out: [1]Reg{1}, In: [1]Reg{65535}},
		Jump{Op: bytecode.OpJmp, Label: 0},
		Jump{Op: bytecode.OpJl, Label: 1},
		Jump{Op: bytecode.OpJg, Label: 2},
		Jump{Op: bytecode.OpJe, Label: 3},
		Jump{Op: bytecode.OpJne, Label: 4},
		Jump{Op: bytecode.OpJz, Label: 5},
		Jump{Op: bytecode.OpJnz, Label: 1 << 20},
	}

	for rt := bytecode.S8; rt.Valid(); rt++ {
		imm := uint64(0x0102030405060708)
		if rt.Size() < 8 {
			imm &= 1<<(8*rt.Size()) - 1
		}

		prog = append(prog,
			Set{Type: rt, Out: [1]Reg{3}, Imm: imm},
			Cmp{Type: rt, In: [2]Reg{1, 2}},
			Push{Type: rt, In: [1]Reg{4}},
			Pop{Type: rt, Out: [1]Reg{6}},
		)

		for op := bytecode.OpAdd; op <= bytecode.OpMod; op++ {
			prog = append(prog, Math{Op: op, Type: rt, Out: [1]Reg{0}, In: [2]Reg{1, 2}})
		}
	}

	u := bytecode.NewUnit(16, 0, 0)
	st := u.Len()

	Encode(u, prog...)

	code := u.Bytes()

	var got []Instr
	seen := map[bytecode.Opcode]bool{}

	for pc := st; pc < len(code); {
		x, next, err := Decode(code, pc)
		require.NoError(t, err, "pc %#x", pc)
		require.Equal(t, pc+2+x.Opcode().OperandSize(typeOf(x)), next)

		got = append(got, x)
		seen[x.Opcode()] = true
		pc = next
	}

	assert.Equal(t, prog, got)

	for op := bytecode.OpFunc; op.Valid(); op++ {
		assert.True(t, seen[op], "opcode %v not covered", op)
	}
}

func typeOf(x Instr) bytecode.RegType {
	if s, ok := x.(Set); ok {
		return s.Type
	}

	return 0
}

func TestDecodeErrors(t *testing.T) {
	_, _, err := Decode([]byte{0xff, 0x00}, 0)
	assert.True(t, errors.Is(err, bytecode.ErrUnknownOpcode))

	_, _, err = Decode([]byte{byte(bytecode.OpMov), 0, 1, 0}, 0)
	assert.True(t, errors.Is(err, bytecode.ErrTruncated))

	_, _, err = Decode([]byte{byte(bytecode.OpSet), 0, 99, 0, 0}, 0)
	assert.True(t, errors.Is(err, bytecode.ErrBadRegType))

	_, _, err = Decode([]byte{byte(bytecode.OpRet)}, 0)
	assert.True(t, errors.Is(err, bytecode.ErrTruncated))
}

func TestDisassemble(t *testing.T) {
	u := bytecode.NewUnit(16, 2, 1)

	add := u.PushFunction(2, 2)
	u.SetFunctionPos(1, add)
	Encode(u,
		Math{Op: bytecode.OpAdd, Type: bytecode.S32, Out: [1]Reg{0}, In: [2]Reg{0, 1}},
		Ret{},
	)

	main := u.PushFunction(0, 2)
	u.SetFunctionPos(0, main)
	Encode(u,
		Set{Type: bytecode.S32, Out: [1]Reg{0}, Imm: uint64(math.MaxUint32)},
		Set{Type: bytecode.Double, Out: [1]Reg{1}, Imm: math.Float64bits(2.5)},
		Cmp{Type: bytecode.S32, In: [2]Reg{0, 1}},
	)
	u.PlaceLabel(0)
	Encode(u,
		Jump{Op: bytecode.OpJl, Label: 0},
		Call{Func: 1},
		Ret{},
	)

	text, err := Disassemble(u.Bytes())
	require.NoError(t, err)

	assert.Equal(t, `; magic 80 00 00 8a
; funcs 2
;   [  0] 0x0037
;   [  1] 0x0024
; labels 1
;   [  0] 0x005a

func#1:
0024  func  regs 2, args 2
002a  add   s32    r0, r0, r1
0033  ret   r0

func#0:
0037  func  regs 2, args 0
003d  set   s32    r0, -1
0046  set   double r1, 2.5
0053  cmp   s32    r0, r1
L0:
005a  jl    L0
0060  call  func#1
0066  ret   r0
`, text)

	_, err = Disassemble([]byte{1, 2, 3, 4})
	assert.True(t, errors.Is(err, bytecode.ErrBadMagic))
}

func TestDisassembleTables(t *testing.T) {
	u := bytecode.NewUnit(16, 1, 1)

	u.SetFunctionPos(0, u.Len())
	Encode(u,
		Func{RegCount: 1},
		Set{Type: bytecode.S8, Out: [1]Reg{0}, Imm: 0xff},
	)
	u.PlaceLabel(0)
	Encode(u,
		Set{Type: bytecode.Pointer, Out: [1]Reg{0}, Imm: 16},
		Ret{},
	)

	text, err := Disassemble(u.Bytes())
	require.NoError(t, err)

	assert.Equal(t, `; magic 80 00 00 8a
; funcs 1
;   [  0] 0x001c
; labels 1
;   [  0] 0x0028

func#0:
001c  func  regs 1, args 0
0022  set   s8     r0, -1
L0:
0028  set   pointer r0, 0x10
0031  ret   r0
`, text)
}
