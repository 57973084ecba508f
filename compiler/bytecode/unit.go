package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Magic starts every bytecode image.
var Magic = [4]byte{0x80, 0x00, 0x00, 0x8A}

const (
	HeaderFuncsOffset = 4 // u32 function count
	PrologueSize      = 6 // func opcode, regCount, argCount
	tableEntrySize    = 8 // u32 index, u32 offset
)

// Unit is a growable bytecode image.
// Both tables are reserved up front and patched as code is emitted.
type Unit struct {
	b     []byte
	count int

	funcs  int // function table entries offset
	nfuncs int

	labels  int
	nlabels int
}

// NewUnit writes the magic and reserves nfuncs function
// and nlabels label table entries with zero offsets.
func NewUnit(size, nfuncs, nlabels int) *Unit {
	if size < 16 {
		size = 16
	}

	u := &Unit{
		b: make([]byte, size),
	}

	u.PushBytes(Magic[:])

	u.PushU32(uint32(nfuncs))
	u.funcs = u.count
	u.nfuncs = nfuncs

	for i := 0; i < nfuncs; i++ {
		u.PushU32(uint32(i))
		u.PushU32(0)
	}

	u.PushU32(uint32(nlabels))
	u.labels = u.count
	u.nlabels = nlabels

	for i := 0; i < nlabels; i++ {
		u.PushU32(uint32(i))
		u.PushU32(0)
	}

	return u
}

func (u *Unit) Len() int { return u.count }

func (u *Unit) Bytes() []byte { return u.b[:u.count] }

func (u *Unit) Cap() int { return len(u.b) }

func (u *Unit) Funcs() int { return u.nfuncs }

func (u *Unit) Labels() int { return u.nlabels }

func (u *Unit) Resize(size int) {
	if size <= len(u.b) {
		return
	}

	b := make([]byte, size)
	copy(b, u.b[:u.count])

	u.b = b
}

func (u *Unit) grow(n int) {
	if u.count+n <= len(u.b) {
		return
	}

	size := len(u.b) * 2
	for size < u.count+n {
		size *= 2
	}

	u.Resize(size)
}

func (u *Unit) SetFunctionPos(i int, pos int) {
	if i < 0 || i >= u.nfuncs {
		panic(fmt.Sprintf("function index %d out of table (%d entries)", i, u.nfuncs))
	}

	binary.LittleEndian.PutUint32(u.b[u.funcs+i*tableEntrySize+4:], uint32(pos))
}

func (u *Unit) SetLabelPos(i int, pos int) {
	if i < 0 || i >= u.nlabels {
		panic(fmt.Sprintf("label index %d out of table (%d entries)", i, u.nlabels))
	}

	binary.LittleEndian.PutUint32(u.b[u.labels+i*tableEntrySize+4:], uint32(pos))
}

// PlaceLabel points label i at the current end of code.
func (u *Unit) PlaceLabel(i int) {
	u.SetLabelPos(i, u.count)
}

func (u *Unit) PushBytes(p []byte) {
	u.grow(len(p))
	u.count += copy(u.b[u.count:], p)
}

func (u *Unit) PushU8(v uint8) {
	u.grow(1)
	u.b[u.count] = v
	u.count++
}

func (u *Unit) PushU16(v uint16) {
	u.grow(2)
	binary.LittleEndian.PutUint16(u.b[u.count:], v)
	u.count += 2
}

func (u *Unit) PushU32(v uint32) {
	u.grow(4)
	binary.LittleEndian.PutUint32(u.b[u.count:], v)
	u.count += 4
}

func (u *Unit) PushU64(v uint64) {
	u.grow(8)
	binary.LittleEndian.PutUint64(u.b[u.count:], v)
	u.count += 8
}

func (u *Unit) PushI32(v int32) { u.PushU32(uint32(v)) }

func (u *Unit) PushI64(v int64) { u.PushU64(uint64(v)) }

func (u *Unit) PushFloat(v float32) { u.PushU32(math.Float32bits(v)) }

func (u *Unit) PushDouble(v float64) { u.PushU64(math.Float64bits(v)) }

func (u *Unit) PushOp(op Opcode) { u.PushU16(uint16(op)) }

// PushFunction emits a function prologue and returns its offset,
// which is what the function table refers to.
func (u *Unit) PushFunction(argCount, regCount uint16) int {
	pos := u.count

	u.PushOp(OpFunc)
	u.PushU16(regCount)
	u.PushU16(argCount)

	return pos
}

func (u *Unit) PushMath(op Opcode, t RegType, dst, a, b uint16) {
	if !op.IsMath() {
		panic(fmt.Sprintf("not a math opcode: %v", op))
	}

	u.PushOp(op)
	u.PushU8(uint8(t))
	u.PushU16(dst)
	u.PushU16(a)
	u.PushU16(b)
}

func (u *Unit) PushAdd(t RegType, dst, a, b uint16) { u.PushMath(OpAdd, t, dst, a, b) }
func (u *Unit) PushSub(t RegType, dst, a, b uint16) { u.PushMath(OpSub, t, dst, a, b) }
func (u *Unit) PushMul(t RegType, dst, a, b uint16) { u.PushMath(OpMul, t, dst, a, b) }
func (u *Unit) PushDiv(t RegType, dst, a, b uint16) { u.PushMath(OpDiv, t, dst, a, b) }
func (u *Unit) PushMod(t RegType, dst, a, b uint16) { u.PushMath(OpMod, t, dst, a, b) }

// PushSet emits set with the immediate truncated to the width of t.
// bits holds the raw value, floats as their IEEE bits.
func (u *Unit) PushSet(t RegType, dst uint16, bits uint64) {
	u.PushOp(OpSet)
	u.PushU8(uint8(t))
	u.PushU16(dst)

	switch t.Size() {
	case 1:
		u.PushU8(uint8(bits))
	case 2:
		u.PushU16(uint16(bits))
	case 4:
		u.PushU32(uint32(bits))
	case 8:
		u.PushU64(bits)
	default:
		panic(fmt.Sprintf("bad set type: %v", t))
	}
}

func (u *Unit) PushSetS32(dst uint16, v int32) { u.PushSet(S32, dst, uint64(uint32(v))) }
func (u *Unit) PushSetS64(dst uint16, v int64) { u.PushSet(S64, dst, uint64(v)) }
func (u *Unit) PushSetU64(dst uint16, v uint64) { u.PushSet(U64, dst, v) }

func (u *Unit) PushSetFloat(dst uint16, v float32) {
	u.PushSet(Float, dst, uint64(math.Float32bits(v)))
}

func (u *Unit) PushSetDouble(dst uint16, v float64) {
	u.PushSet(Double, dst, math.Float64bits(v))
}

func (u *Unit) PushMov(dst, src uint16) {
	u.PushOp(OpMov)
	u.PushU16(dst)
	u.PushU16(src)
}

func (u *Unit) PushReturn(reg uint16) {
	u.PushOp(OpRet)
	u.PushU16(reg)
}

func (u *Unit) PushCall(index uint32) {
	u.PushOp(OpCall)
	u.PushU32(index)
}

func (u *Unit) PushCmp(t RegType, a, b uint16) {
	u.PushOp(OpCmp)
	u.PushU8(uint8(t))
	u.PushU16(a)
	u.PushU16(b)
}

// PushJump emits jmp or a conditional jump to a label table index.
func (u *Unit) PushJump(op Opcode, label uint32) {
	if !op.IsJump() {
		panic(fmt.Sprintf("not a jump opcode: %v", op))
	}

	u.PushOp(op)
	u.PushU32(label)
}

func (u *Unit) PushJumpIf(op Opcode, label uint32) { u.PushJump(op, label) }

func (u *Unit) PushPush(t RegType, reg uint16) {
	u.PushOp(OpPush)
	u.PushU8(uint8(t))
	u.PushU16(reg)
}

func (u *Unit) PushPop(t RegType, reg uint16) {
	u.PushOp(OpPop)
	u.PushU8(uint8(t))
	u.PushU16(reg)
}
