package vm

import (
	"tlog.app/go/tlog/tlwire"
)

// Frame is one active call.
// Registers [Start, End) of the global array are its window.
type Frame struct {
	Start int
	End   int

	Ret int // return pc, -1 for the outermost frame
}

func (f Frame) Size() int { return f.End - f.Start }

func (f Frame) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 3)

	b = e.AppendKeyInt(b, "start", f.Start)
	b = e.AppendKeyInt(b, "end", f.End)
	b = e.AppendKeyInt(b, "ret", f.Ret)

	return b
}
