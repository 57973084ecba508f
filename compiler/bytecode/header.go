package bytecode

import (
	"encoding/binary"

	"tlog.app/go/errors"
)

type Header struct {
	Funcs  []uint32 // function index -> prologue offset
	Labels []uint32 // label index -> code offset

	Code int // first instruction offset
}

var (
	ErrBadMagic  = errors.New("bad magic")
	ErrTruncated = errors.New("truncated bytecode")
	ErrBadIndex  = errors.New("table index out of range")

	ErrUnknownOpcode = errors.New("unknown opcode")
	ErrBadRegType    = errors.New("bad register type")
)

// ReadHeader validates the magic and loads both tables.
func ReadHeader(b []byte) (h Header, err error) {
	if len(b) < 4 || b[0] != Magic[0] || b[1] != Magic[1] || b[2] != Magic[2] || b[3] != Magic[3] {
		return h, ErrBadMagic
	}

	i := HeaderFuncsOffset

	h.Funcs, i, err = readTable(b, i)
	if err != nil {
		return h, errors.Wrap(err, "function table")
	}

	h.Labels, i, err = readTable(b, i)
	if err != nil {
		return h, errors.Wrap(err, "label table")
	}

	h.Code = i

	return h, nil
}

func readTable(b []byte, st int) (t []uint32, i int, err error) {
	i = st

	if i+4 > len(b) {
		return nil, i, ErrTruncated
	}

	n := int(binary.LittleEndian.Uint32(b[i:]))
	i += 4

	if n > (len(b)-i)/tableEntrySize {
		return nil, i, errors.Wrap(ErrTruncated, "%d entries", n)
	}

	t = make([]uint32, n)

	for j := 0; j < n; j++ {
		idx := binary.LittleEndian.Uint32(b[i:])
		pos := binary.LittleEndian.Uint32(b[i+4:])
		i += tableEntrySize

		if idx >= uint32(n) {
			return nil, i, errors.Wrap(ErrBadIndex, "entry %d: index %d of %d", j, idx, n)
		}

		t[idx] = pos
	}

	return t, i, nil
}
