package vm

import (
	"context"
	"encoding/binary"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/slvm/compiler/bytecode"
)

type (
	Config struct {
		Registers int `toml:"registers"`
		Frames    int `toml:"frames"`
		Stack     int `toml:"stack"` // bytes
	}

	// VM executes one code unit at a time.
	// It's not safe for concurrent use.
	VM struct {
		cfg Config

		regs   []Register
		frames []Frame
		stack  []byte
		flags  Flags

		code   []byte
		funcs  []uint32
		labels []uint32
	}
)

var DefaultConfig = Config{
	Registers: 512 << 10,
	Frames:    1024,
	Stack:     8 << 20,
}

var (
	ErrBadMagic         = bytecode.ErrBadMagic
	ErrTruncated        = bytecode.ErrTruncated
	ErrUnknownOpcode    = bytecode.ErrUnknownOpcode
	ErrBadRegType       = bytecode.ErrBadRegType
	ErrFuncIndex        = errors.New("function index out of range")
	ErrLabelIndex       = errors.New("label index out of range")
	ErrRegisterOverflow = errors.New("register window overflow")
	ErrFrameOverflow    = errors.New("call frame overflow")
	ErrStackOverflow    = errors.New("stack overflow")
	ErrStackUnderflow   = errors.New("stack underflow")
	ErrDivByZero        = errors.New("integer division by zero")
)

// New creates a VM, zero cfg fields are taken from DefaultConfig.
func New(cfg Config) *VM {
	if cfg.Registers <= 0 {
		cfg.Registers = DefaultConfig.Registers
	}

	if cfg.Frames <= 0 {
		cfg.Frames = DefaultConfig.Frames
	}

	if cfg.Stack <= 0 {
		cfg.Stack = DefaultConfig.Stack
	}

	v := &VM{
		cfg:    cfg,
		regs:   make([]Register, cfg.Registers),
		frames: make([]Frame, 0, 16),
		stack:  make([]byte, 0, min(cfg.Stack, 1024)),
	}

	return v
}

// Init resets registers, frames, the byte stack and flags.
func (v *VM) Init() {
	clear(v.regs)

	v.frames = v.frames[:0]
	v.stack = v.stack[:0]
	v.flags = 0

	v.code = nil
	v.funcs = nil
	v.labels = nil
}

// Depth is the number of active frames.
func (v *VM) Depth() int { return len(v.frames) }

// StackLen is the number of bytes on the byte stack.
func (v *VM) StackLen() int { return len(v.stack) }

// Flags are set by the last cmp.
func (v *VM) Flags() Flags { return v.flags }

// Run executes code from function 0 and returns its result converted to int64.
func (v *VM) Run(ctx context.Context, code []byte) (int64, error) {
	r, err := v.Exec(ctx, code)
	if err != nil {
		return 0, err
	}

	return r.Int64(), nil
}

// Exec resets the VM and executes code until the outermost function returns.
func (v *VM) Exec(ctx context.Context, code []byte) (res Register, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "vm: exec", "size", len(code))
	defer tr.Finish("err", &err)

	v.Init()

	h, err := bytecode.ReadHeader(code)
	if err != nil {
		return res, errors.Wrap(err, "header")
	}

	v.code = code
	v.funcs = h.Funcs
	v.labels = h.Labels

	regs, _, body, err := v.prologue(0)
	if err != nil {
		return res, errors.Wrap(err, "main")
	}

	if regs > len(v.regs) {
		return res, errors.Wrap(ErrRegisterOverflow, "main needs %d registers of %d", regs, len(v.regs))
	}

	v.frames = append(v.frames, Frame{Start: 0, End: regs, Ret: -1})

	res, err = v.loop(ctx, body)
	if err != nil {
		return res, err
	}

	tr.Printw("exited", "result", res)

	return res, nil
}

// prologue reads func opcode at the function table entry.
func (v *VM) prologue(idx uint32) (regs, args, body int, err error) {
	if idx >= uint32(len(v.funcs)) {
		return 0, 0, 0, errors.Wrap(ErrFuncIndex, "%d of %d", idx, len(v.funcs))
	}

	off := int(v.funcs[idx])

	if off < 0 || off+bytecode.PrologueSize > len(v.code) {
		return 0, 0, 0, errors.Wrap(ErrTruncated, "function %d prologue at %#x", idx, off)
	}

	if op := bytecode.Opcode(binary.LittleEndian.Uint16(v.code[off:])); op != bytecode.OpFunc {
		return 0, 0, 0, errors.Wrap(ErrUnknownOpcode, "function %d: want func at %#x, got %v", idx, off, op)
	}

	regs = int(binary.LittleEndian.Uint16(v.code[off+2:]))
	args = int(binary.LittleEndian.Uint16(v.code[off+4:]))

	return regs, args, off + bytecode.PrologueSize, nil
}

func (v *VM) loop(ctx context.Context, pc int) (res Register, err error) {
	tr := tlog.SpanFromContext(ctx)
	trace := tr.If("vm_trace")

	code := v.code
	regs := v.regs
	base := 0

	var st int // instruction start

	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pc %#x", st)
		}
	}()

	reg := func(r uint16) (*Register, error) {
		i := base + int(r)
		if i >= len(regs) {
			return nil, errors.Wrap(ErrRegisterOverflow, "r%d in frame at %d", r, base)
		}

		return &regs[i], nil
	}

	u16 := func(off int) uint16 { return binary.LittleEndian.Uint16(code[st+off:]) }
	u32 := func(off int) uint32 { return binary.LittleEndian.Uint32(code[st+off:]) }

	for {
		st = pc

		if pc+2 > len(code) {
			return res, errors.Wrap(ErrTruncated, "opcode")
		}

		op := bytecode.Opcode(binary.LittleEndian.Uint16(code[pc:]))

		var t bytecode.RegType

		switch op {
		case bytecode.OpSet, bytecode.OpCmp, bytecode.OpPush, bytecode.OpPop, bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod:
			if pc+3 > len(code) {
				return res, errors.Wrap(ErrTruncated, "%v", op)
			}

			t = bytecode.RegType(code[pc+2])
			if !t.Valid() {
				return res, errors.Wrap(ErrBadRegType, "%v: %d", op, uint8(t))
			}
		}

		size := op.OperandSize(t)
		if size < 0 {
			return res, errors.Wrap(ErrUnknownOpcode, "%d", uint16(op))
		}

		pc += 2 + size
		if pc > len(code) {
			return res, errors.Wrap(ErrTruncated, "%v", op)
		}

		if trace {
			tr.Printw("exec", "pc", st, "op", op, "type", t, "frame", v.frames[len(v.frames)-1], "flags", v.flags)
		}

		switch {
		case op == bytecode.OpFunc:
		case op == bytecode.OpCall:
			idx := u32(2)

			nregs, nargs, body, err := v.prologue(idx)
			if err != nil {
				return res, err
			}

			if len(v.frames) >= v.cfg.Frames {
				return res, errors.Wrap(ErrFrameOverflow, "depth %d", len(v.frames))
			}

			caller := v.frames[len(v.frames)-1]

			f := Frame{
				Start: caller.End - nargs,
				Ret:   pc,
			}
			f.End = f.Start + nregs

			if f.Start < 0 || f.End > len(regs) {
				return res, errors.Wrap(ErrRegisterOverflow, "function %d window [%d, %d) of %d", idx, f.Start, f.End, len(regs))
			}

			v.frames = append(v.frames, f)

			base = f.Start
			pc = body
		case op == bytecode.OpRet:
			r, err := reg(u16(2))
			if err != nil {
				return res, err
			}

			val := *r

			f := v.frames[len(v.frames)-1]
			v.frames = v.frames[:len(v.frames)-1]

			if len(v.frames) == 0 {
				return val, nil
			}

			regs[f.Start] = val

			base = v.frames[len(v.frames)-1].Start
			pc = f.Ret
		case op == bytecode.OpSet:
			dst, err := reg(u16(3))
			if err != nil {
				return res, err
			}

			var imm uint64

			switch t.Size() {
			case 1:
				imm = uint64(code[st+5])
			case 2:
				imm = uint64(u16(5))
			case 4:
				imm = uint64(u32(5))
			case 8:
				imm = binary.LittleEndian.Uint64(code[st+5:])
			}

			dst.set(t, imm)
		case op == bytecode.OpMov:
			dst, err := reg(u16(2))
			if err != nil {
				return res, err
			}

			src, err := reg(u16(4))
			if err != nil {
				return res, err
			}

			*dst = *src
		case op.IsMath():
			dst, err := reg(u16(3))
			if err != nil {
				return res, err
			}

			a, err := reg(u16(5))
			if err != nil {
				return res, err
			}

			b, err := reg(u16(7))
			if err != nil {
				return res, err
			}

			r, err := arith(op, t, *a, *b)
			if err != nil {
				return res, errors.Wrap(err, "%v %v", op, t)
			}

			dst.set(t, r)
		case op == bytecode.OpCmp:
			a, err := reg(u16(3))
			if err != nil {
				return res, err
			}

			b, err := reg(u16(5))
			if err != nil {
				return res, err
			}

			v.flags = compare(t, *a, *b)
		case op.IsJump():
			l := u32(2)
			if l >= uint32(len(v.labels)) {
				return res, errors.Wrap(ErrLabelIndex, "%d of %d", l, len(v.labels))
			}

			if v.taken(op) {
				pc = int(v.labels[l])
			}
		case op == bytecode.OpPush:
			r, err := reg(u16(3))
			if err != nil {
				return res, err
			}

			n := t.Size()
			if len(v.stack)+n > v.cfg.Stack {
				return res, errors.Wrap(ErrStackOverflow, "%d + %d bytes", len(v.stack), n)
			}

			v.stack = binary.LittleEndian.AppendUint64(v.stack, r.bits)[:len(v.stack)+n]
		case op == bytecode.OpPop:
			r, err := reg(u16(3))
			if err != nil {
				return res, err
			}

			n := t.Size()
			if len(v.stack) < n {
				return res, errors.Wrap(ErrStackUnderflow, "%d bytes of %d", n, len(v.stack))
			}

			var buf [8]byte
			copy(buf[:], v.stack[len(v.stack)-n:])
			v.stack = v.stack[:len(v.stack)-n]

			r.set(t, binary.LittleEndian.Uint64(buf[:]))
		default:
			return res, errors.Wrap(ErrUnknownOpcode, "%d", uint16(op))
		}
	}
}

func (v *VM) taken(op bytecode.Opcode) bool {
	switch op {
	case bytecode.OpJmp:
		return true
	case bytecode.OpJl:
		return v.flags&FlagLT != 0
	case bytecode.OpJg:
		return v.flags&FlagGT != 0
	case bytecode.OpJe:
		return v.flags&FlagEQ != 0
	case bytecode.OpJne:
		return v.flags&FlagEQ == 0
	case bytecode.OpJz:
		return v.flags&FlagZero != 0
	case bytecode.OpJnz:
		return v.flags&FlagZero == 0
	}

	return false
}
