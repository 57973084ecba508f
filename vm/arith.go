package vm

import (
	"math"

	"github.com/slowlang/slvm/compiler/bytecode"
)

type (
	integer interface {
		~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
	}

	float interface {
		~float32 | ~float64
	}
)

// arith applies op to a and b interpreted as t.
// The result is raw bits to be written with t width.
func arith(op bytecode.Opcode, t bytecode.RegType, a, b Register) (uint64, error) {
	switch t {
	case bytecode.S8:
		r, err := intOp(op, a.S8(), b.S8())
		return uint64(r), err
	case bytecode.U8:
		r, err := intOp(op, a.U8(), b.U8())
		return uint64(r), err
	case bytecode.S16:
		r, err := intOp(op, a.S16(), b.S16())
		return uint64(r), err
	case bytecode.U16:
		r, err := intOp(op, a.U16(), b.U16())
		return uint64(r), err
	case bytecode.S32:
		r, err := intOp(op, a.S32(), b.S32())
		return uint64(r), err
	case bytecode.U32, bytecode.Pointer:
		r, err := intOp(op, a.U32(), b.U32())
		return uint64(r), err
	case bytecode.S64:
		r, err := intOp(op, a.S64(), b.S64())
		return uint64(r), err
	case bytecode.U64:
		return intOp(op, a.U64(), b.U64())
	case bytecode.Float:
		r := floatOp(op, a.Float(), b.Float())
		return uint64(math.Float32bits(r)), nil
	case bytecode.Double:
		r := floatOp(op, a.Double(), b.Double())
		return math.Float64bits(r), nil
	}

	return 0, ErrBadRegType
}

func intOp[T integer](op bytecode.Opcode, x, y T) (T, error) {
	switch op {
	case bytecode.OpAdd:
		return x + y, nil
	case bytecode.OpSub:
		return x - y, nil
	case bytecode.OpMul:
		return x * y, nil
	case bytecode.OpDiv:
		if y == 0 {
			return 0, ErrDivByZero
		}

		return x / y, nil
	case bytecode.OpMod:
		if y == 0 {
			return 0, ErrDivByZero
		}

		return x % y, nil
	}

	return 0, ErrUnknownOpcode
}

func floatOp[T float](op bytecode.Opcode, x, y T) T {
	switch op {
	case bytecode.OpAdd:
		return x + y
	case bytecode.OpSub:
		return x - y
	case bytecode.OpMul:
		return x * y
	case bytecode.OpDiv:
		return x / y
	default:
		return T(math.Mod(float64(x), float64(y)))
	}
}

// compare sets flags from a - b interpreted as t.
func compare(t bytecode.RegType, a, b Register) Flags {
	switch t {
	case bytecode.S8:
		return flagsOf(a.S8(), b.S8())
	case bytecode.U8:
		return flagsOf(a.U8(), b.U8())
	case bytecode.S16:
		return flagsOf(a.S16(), b.S16())
	case bytecode.U16:
		return flagsOf(a.U16(), b.U16())
	case bytecode.S32:
		return flagsOf(a.S32(), b.S32())
	case bytecode.U32, bytecode.Pointer:
		return flagsOf(a.U32(), b.U32())
	case bytecode.S64:
		return flagsOf(a.S64(), b.S64())
	case bytecode.U64:
		return flagsOf(a.U64(), b.U64())
	case bytecode.Float:
		return flagsOf(a.Float(), b.Float())
	case bytecode.Double:
		return flagsOf(a.Double(), b.Double())
	}

	return 0
}

func flagsOf[T integer | float](x, y T) Flags {
	switch {
	case x == y:
		return FlagZero | FlagEQ
	case x > y:
		return FlagGT
	case x < y:
		return FlagLT
	}

	return 0 // NaN
}
