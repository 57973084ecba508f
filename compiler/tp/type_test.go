package tp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"
)

func TestPrimitives(t *testing.T) {
	r := New()

	for _, tc := range []struct {
		name        string
		size, align uint32
	}{
		{"s8", 1, 1},
		{"u8", 1, 1},
		{"s16", 2, 2},
		{"u16", 2, 2},
		{"s32", 4, 4},
		{"u32", 4, 4},
		{"s64", 8, 8},
		{"u64", 8, 8},
		{"float", 4, 4},
		{"double", 8, 8},
		{"char", 2, 2},
		{"string", 4, 4},
		{"void", 0, 0},
	} {
		assert.True(t, r.IsPrimitive(tc.name), tc.name)

		x, err := r.GetType(tc.name)
		require.NoError(t, err, tc.name)

		assert.Equal(t, tc.size, x.Size, tc.name)
		assert.Equal(t, tc.align, x.Align, tc.name)
		assert.False(t, x.IsRecord(), tc.name)
	}

	a, _ := r.GetType("s32")
	b, _ := r.GetType("s32")
	assert.Same(t, a, b)
}

func TestRecordLayout(t *testing.T) {
	r := New()

	p := NewRecord("Point", []FieldInfo{
		{Name: "x", Type: S32},
		{Name: "y", Type: S32},
	})

	assert.Equal(t, uint32(8), p.Size)
	assert.Equal(t, uint32(4), p.Align)
	require.True(t, r.RegisterType(p))

	got, err := r.GetType("Point")
	require.NoError(t, err)
	assert.Same(t, p, got)

	f, ok := got.Field("y")
	require.True(t, ok)
	assert.Same(t, S32, f.Type)

	packed := NewRecord("Packed", []FieldInfo{
		{Name: "a", Type: U8},
		{Name: "b", Type: Double},
		{Name: "c", Type: S16},
	})

	assert.Equal(t, uint32(11), packed.Size)
	assert.Equal(t, uint32(8), packed.Align)

	empty := NewRecord("Empty", nil)
	assert.Equal(t, uint32(0), empty.Size)
	assert.Equal(t, uint32(1), empty.Align)
	assert.True(t, empty.IsRecord())
}

func TestDuplicateType(t *testing.T) {
	r := New()

	p := NewRecord("Point", []FieldInfo{{Name: "x", Type: S32}, {Name: "y", Type: S32}})

	assert.True(t, r.RegisterType(p))
	assert.False(t, r.RegisterType(NewRecord("Point", nil)))
	assert.False(t, r.RegisterType(NewRecord("s32", nil)))

	got, err := r.GetType("Point")
	require.NoError(t, err)
	assert.Same(t, p, got)
}

func TestUnknownTypeAndInit(t *testing.T) {
	r := New()

	_, err := r.GetType("Vec3")
	assert.True(t, errors.Is(err, ErrUnknownType))

	require.True(t, r.RegisterType(NewRecord("Vec3", []FieldInfo{{Name: "x", Type: Float}})))
	assert.Len(t, r.Types(), 1)

	r.Init()
	r.Init()

	assert.Empty(t, r.Types())

	_, err = r.GetType("Vec3")
	assert.True(t, errors.Is(err, ErrUnknownType))
}
