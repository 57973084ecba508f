package set

import (
	"math/bits"

	"tlog.app/go/tlog/tlwire"
)

// Bitmap is a growable set of small non-negative ints.
// Zero value is an empty set.
type Bitmap struct {
	b  []uint64
	b0 [1]uint64
}

func MakeBitmap(n int) Bitmap {
	s := Bitmap{}
	s.b = s.b0[:]

	n = (n + 63) / 64

	if n > len(s.b) {
		s.b = make([]uint64, n)
	}

	return s
}

func (s *Bitmap) Set(i int) {
	i, j := ij(i)

	s.grow(i)

	s.b[i] |= 1 << j
}

// TestAndSet sets i and reports whether it was set before.
func (s *Bitmap) TestAndSet(i int) bool {
	was := s.IsSet(i)
	s.Set(i)

	return was
}

func (s *Bitmap) Clear(i int) {
	i, j := ij(i)

	if i >= len(s.b) {
		return
	}

	s.b[i] &^= 1 << j
}

func (s *Bitmap) IsSet(i int) bool {
	i, j := ij(i)

	if i >= len(s.b) {
		return false
	}

	return s.b[i]&(1<<j) != 0
}

func (s *Bitmap) Size() (r int) {
	if s == nil {
		return 0
	}

	for _, c := range s.b {
		r += bits.OnesCount64(c)
	}

	return r
}

// FirstUnset returns the lowest i in [0, n) not in the set or -1.
func (s *Bitmap) FirstUnset(n int) int {
	for i := 0; i < n; i += 64 {
		var x uint64
		if i/64 < len(s.b) {
			x = s.b[i/64]
		}

		j := bits.TrailingZeros64(^x)
		if j < 64 && i+j < n {
			return i + j
		}
	}

	return -1
}

func (s *Bitmap) Range(f func(i int) bool) {
	for i, x := range s.b {
		for x != 0 {
			j := bits.TrailingZeros64(x)
			x &^= 1 << j

			if !f(i*64 + j) {
				return
			}
		}
	}
}

func (s *Bitmap) Reset() {
	clear(s.b)
}

func (s Bitmap) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	if s.b == nil {
		return e.AppendNil(b)
	}

	b = e.AppendTag(b, tlwire.Array, -1)

	s.Range(func(i int) bool {
		b = e.AppendInt(b, i)

		return true
	})

	b = e.AppendBreak(b)

	return b
}

func ij(pos int) (i, j int) {
	return pos / 64, pos % 64
}

func (s *Bitmap) grow(i int) {
	for i >= len(s.b) {
		s.b = append(s.b, 0)
	}
}
