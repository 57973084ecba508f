package bytecode

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"
)

func TestUnitLayout(t *testing.T) {
	u := NewUnit(16, 2, 1)

	b := u.Bytes()
	require.Equal(t, 4+4+2*8+4+1*8, len(b))

	assert.Equal(t, Magic[:], b[:4])
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(b[4:]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(b[8:]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(b[16:]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(b[24:]))

	f1 := u.PushFunction(2, 3)
	u.SetFunctionPos(1, f1)
	u.PlaceLabel(0)
	u.PushReturn(0)

	f0 := u.PushFunction(0, 1)
	u.SetFunctionPos(0, f0)
	u.PushSetS32(0, -7)
	u.PushReturn(0)

	h, err := ReadHeader(u.Bytes())
	require.NoError(t, err)

	assert.Equal(t, []uint32{uint32(f0), uint32(f1)}, h.Funcs)
	assert.Equal(t, []uint32{uint32(f1 + PrologueSize)}, h.Labels)
	assert.Equal(t, f1, h.Code)

	b = u.Bytes()
	assert.Equal(t, uint16(OpFunc), binary.LittleEndian.Uint16(b[f1:]))
	assert.Equal(t, uint16(3), binary.LittleEndian.Uint16(b[f1+2:]), "regCount")
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(b[f1+4:]), "argCount")
}

func TestUnitWriters(t *testing.T) {
	u := NewUnit(16, 0, 0)
	st := u.Len()

	u.PushU8(0xab)
	u.PushU16(0x1234)
	u.PushU32(0xdeadbeef)
	u.PushU64(0x0102030405060708)
	u.PushI32(-2)
	u.PushI64(-3)
	u.PushFloat(1.5)
	u.PushDouble(-2.25)

	b := u.Bytes()[st:]
	require.Len(t, b, 1+2+4+8+4+8+4+8)

	assert.Equal(t, []byte{0xab, 0x34, 0x12, 0xef, 0xbe, 0xad, 0xde}, b[:7])
	assert.Equal(t, uint64(0x0102030405060708), binary.LittleEndian.Uint64(b[7:]))
	assert.Equal(t, int32(-2), int32(binary.LittleEndian.Uint32(b[15:])))
	assert.Equal(t, int64(-3), int64(binary.LittleEndian.Uint64(b[19:])))
	assert.Equal(t, float32(1.5), math.Float32frombits(binary.LittleEndian.Uint32(b[27:])))
	assert.Equal(t, -2.25, math.Float64frombits(binary.LittleEndian.Uint64(b[31:])))
}

func TestUnitGrowth(t *testing.T) {
	u := NewUnit(16, 0, 0)

	for i := 0; i < 1000; i++ {
		u.PushMov(uint16(i), uint16(i+1))
	}

	assert.Equal(t, 12+1000*6, u.Len())
	assert.GreaterOrEqual(t, u.Cap(), u.Len())

	b := u.Bytes()
	assert.Equal(t, uint16(OpMov), binary.LittleEndian.Uint16(b[12+999*6:]))
	assert.Equal(t, uint16(999), binary.LittleEndian.Uint16(b[12+999*6+2:]))
}

func TestSetWidths(t *testing.T) {
	for rt := S8; rt < regTypeCount; rt++ {
		u := NewUnit(16, 0, 0)
		st := u.Len()

		u.PushSet(rt, 1, 0)

		assert.Equal(t, 2+OpSet.OperandSize(rt), u.Len()-st, "%v", rt)
	}
}

func TestTablePatchOutOfRange(t *testing.T) {
	u := NewUnit(16, 1, 1)

	assert.Panics(t, func() { u.SetFunctionPos(1, 0) })
	assert.Panics(t, func() { u.SetLabelPos(1, 0) })
	assert.Panics(t, func() { u.SetLabelPos(-1, 0) })
	assert.NotPanics(t, func() { u.SetFunctionPos(0, 100) })
}

func TestReadHeaderErrors(t *testing.T) {
	_, err := ReadHeader([]byte{0x80, 0, 0, 0x8B, 0, 0, 0, 0, 0, 0, 0, 0})
	assert.True(t, errors.Is(err, ErrBadMagic))

	_, err = ReadHeader(nil)
	assert.True(t, errors.Is(err, ErrBadMagic))

	_, err = ReadHeader([]byte{0x80, 0, 0, 0x8A, 5, 0, 0, 0})
	assert.True(t, errors.Is(err, ErrTruncated))

	b := NewUnit(16, 1, 0).Bytes()
	binary.LittleEndian.PutUint32(b[8:], 7) // entry index

	_, err = ReadHeader(b)
	assert.True(t, errors.Is(err, ErrBadIndex))
}

func TestOpcodeNames(t *testing.T) {
	assert.Equal(t, "add", OpAdd.String())
	assert.Equal(t, "jnz", OpJnz.String())
	assert.Equal(t, "Opcode(999)", Opcode(999).String())
	assert.Equal(t, "double", Double.String())

	rt, ok := RegTypeByName("u64")
	assert.True(t, ok)
	assert.Equal(t, U64, rt)

	_, ok = RegTypeByName("Point")
	assert.False(t, ok)
}
