package vm

import (
	"math"
	"strconv"

	"tlog.app/go/tlog/tlwire"

	"github.com/slowlang/slvm/compiler/bytecode"
)

type (
	// Register is a tagged 8-byte cell.
	// Kind is the interpretation of the last write, accessors reinterpret bits regardless of it.
	Register struct {
		Kind bytecode.RegType
		bits uint64
	}

	Flags uint8
)

const (
	FlagZero Flags = 1 << iota
	FlagGT
	FlagLT
	FlagEQ
)

func MakeRegister(t bytecode.RegType, bits uint64) Register {
	var r Register
	r.set(t, bits)

	return r
}

func (r Register) Bits() uint64 { return r.bits }

func (r Register) S8() int8 { return int8(r.bits) }
func (r Register) U8() uint8 { return uint8(r.bits) }
func (r Register) S16() int16 { return int16(r.bits) }
func (r Register) U16() uint16 { return uint16(r.bits) }
func (r Register) S32() int32 { return int32(r.bits) }
func (r Register) U32() uint32 { return uint32(r.bits) }
func (r Register) S64() int64 { return int64(r.bits) }
func (r Register) U64() uint64 { return r.bits }
func (r Register) Float() float32 { return math.Float32frombits(uint32(r.bits)) }
func (r Register) Double() float64 { return math.Float64frombits(r.bits) }
func (r Register) Pointer() uint32 { return uint32(r.bits) }

// set overwrites the low bytes of t width, upper bytes are kept.
func (r *Register) set(t bytecode.RegType, v uint64) {
	r.Kind = t

	if t.Size() == 8 {
		r.bits = v
		return
	}

	mask := uint64(1)<<(8*t.Size()) - 1
	r.bits = r.bits&^mask | v&mask
}

// Int64 converts the value interpreted by Kind.
func (r Register) Int64() int64 {
	switch r.Kind {
	case bytecode.S8:
		return int64(r.S8())
	case bytecode.U8:
		return int64(r.U8())
	case bytecode.S16:
		return int64(r.S16())
	case bytecode.U16:
		return int64(r.U16())
	case bytecode.S32:
		return int64(r.S32())
	case bytecode.U32, bytecode.Pointer:
		return int64(r.U32())
	case bytecode.Float:
		return int64(r.Float())
	case bytecode.Double:
		return int64(r.Double())
	default:
		return int64(r.bits)
	}
}

func (r Register) String() string {
	var b []byte

	b = append(b, r.Kind.String()...)
	b = append(b, ':')

	switch r.Kind {
	case bytecode.U64:
		b = strconv.AppendUint(b, r.U64(), 10)
	case bytecode.Float:
		b = strconv.AppendFloat(b, float64(r.Float()), 'g', -1, 32)
	case bytecode.Double:
		b = strconv.AppendFloat(b, r.Double(), 'g', -1, 64)
	case bytecode.Pointer:
		b = append(b, "0x"...)
		b = strconv.AppendUint(b, uint64(r.Pointer()), 16)
	default:
		b = strconv.AppendInt(b, r.Int64(), 10)
	}

	return string(b)
}

func (r Register) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	return e.AppendString(b, r.String())
}

func (f Flags) String() string {
	if f == 0 {
		return "-"
	}

	var b []byte

	for _, x := range []struct {
		f Flags
		n string
	}{{FlagZero, "Z"}, {FlagGT, "G"}, {FlagLT, "L"}, {FlagEQ, "E"}} {
		if f&x.f != 0 {
			b = append(b, x.n...)
		}
	}

	return string(b)
}
