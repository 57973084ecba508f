package asm

import (
	"math"

	"github.com/nikandfor/hacked/hfmt"
	"nikand.dev/go/heap"
	"tlog.app/go/errors"

	"github.com/slowlang/slvm/compiler/bytecode"
)

type (
	marker struct {
		pos   uint32
		label bool
		index int
	}
)

// Disassemble prints the tables and the instruction listing of a code unit.
// Function and label markers are placed before the instruction they point to.
func Disassemble(code []byte) (string, error) {
	b, err := AppendDisassemble(nil, code)
	return string(b), err
}

func AppendDisassemble(b, code []byte) ([]byte, error) {
	h, err := bytecode.ReadHeader(code)
	if err != nil {
		return b, errors.Wrap(err, "header")
	}

	b = hfmt.Appendf(b, "; magic % x\n", code[:4])

	marks := heap.Heap[marker]{Less: markerLess}

	b = hfmt.Appendf(b, "; funcs %d\n", len(h.Funcs))

	for i, pos := range h.Funcs {
		b = hfmt.Appendf(b, ";   [%3d] 0x%04x\n", i, pos)

		marks.Push(marker{pos: pos, index: i})
	}

	b = hfmt.Appendf(b, "; labels %d\n", len(h.Labels))

	for i, pos := range h.Labels {
		b = hfmt.Appendf(b, ";   [%3d] 0x%04x\n", i, pos)

		marks.Push(marker{pos: pos, label: true, index: i})
	}

	for pc := h.Code; pc < len(code); {
		b = appendMarkers(b, &marks, uint32(pc))

		x, next, err := Decode(code, pc)
		if err != nil {
			return b, err
		}

		b = hfmt.Appendf(b, "%04x  ", pc)
		b = Append(b, x)
		b = append(b, '\n')

		pc = next
	}

	b = appendMarkers(b, &marks, math.MaxUint32)

	return b, nil
}

func appendMarkers(b []byte, marks *heap.Heap[marker], pc uint32) []byte {
	for marks.Len() != 0 && marks.Data[0].pos <= pc {
		m := marks.Pop()

		if m.label {
			b = hfmt.Appendf(b, "L%d:\n", m.index)
		} else {
			b = hfmt.Appendf(b, "\nfunc#%d:\n", m.index)
		}
	}

	return b
}

func markerLess(d []marker, i, j int) bool {
	if d[i].pos != d[j].pos {
		return d[i].pos < d[j].pos
	}

	if d[i].label != d[j].label {
		return !d[i].label
	}

	return d[i].index < d[j].index
}

// Append appends instruction text.
func Append(b []byte, x Instr) []byte {
	b = hfmt.Appendf(b, "%-6s", x.Opcode().String())

	switch x := x.(type) {
	case Func:
		b = hfmt.Appendf(b, "regs %d, args %d", x.RegCount, x.ArgCount)
	case Call:
		b = hfmt.Appendf(b, "func#%d", x.Func)
	case Ret:
		b = hfmt.Appendf(b, "r%d", x.In[0])
	case Set:
		b = hfmt.Appendf(b, "%-6s r%d, ", x.Type.String(), x.Out[0])
		b = appendImm(b, x.Type, x.Imm)
	case Mov:
		b = hfmt.Appendf(b, "r%d, r%d", x.Out[0], x.In[0])
	case Math:
		b = hfmt.Appendf(b, "%-6s r%d, r%d, r%d", x.Type.String(), x.Out[0], x.In[0], x.In[1])
	case Cmp:
		b = hfmt.Appendf(b, "%-6s r%d, r%d", x.Type.String(), x.In[0], x.In[1])
	case Jump:
		b = hfmt.Appendf(b, "L%d", x.Label)
	case Push:
		b = hfmt.Appendf(b, "%-6s r%d", x.Type.String(), x.In[0])
	case Pop:
		b = hfmt.Appendf(b, "%-6s r%d", x.Type.String(), x.Out[0])
	}

	return b
}

func appendImm(b []byte, t bytecode.RegType, v uint64) []byte {
	switch t {
	case bytecode.S8:
		return hfmt.Appendf(b, "%d", int8(v))
	case bytecode.S16:
		return hfmt.Appendf(b, "%d", int16(v))
	case bytecode.S32:
		return hfmt.Appendf(b, "%d", int32(v))
	case bytecode.S64:
		return hfmt.Appendf(b, "%d", int64(v))
	case bytecode.Float:
		return hfmt.Appendf(b, "%g", math.Float32frombits(uint32(v)))
	case bytecode.Double:
		return hfmt.Appendf(b, "%g", math.Float64frombits(v))
	case bytecode.Pointer:
		return hfmt.Appendf(b, "%#x", v)
	default:
		return hfmt.Appendf(b, "%d", v)
	}
}
