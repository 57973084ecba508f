package back

import (
	"context"
	"fmt"
	"math"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/slvm/compiler/ast"
	"github.com/slowlang/slvm/compiler/bytecode"
	"github.com/slowlang/slvm/compiler/set"
	"github.com/slowlang/slvm/compiler/tp"
)

type (
	// emitter is pass 2 state of a function.
	emitter struct {
		*funContext

		p *pkgContext
		u *bytecode.Unit

		label  int // next label index
		placed set.Bitmap
	}
)

func (c *Compiler) emitFunc(ctx context.Context, u *bytecode.Unit, p *pkgContext, fc *funContext) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "back: emit func", "name", fc.fn.Ident.Name, "index", fc.index, "regs", fc.regs)
	defer tr.Finish("err", &err)

	pos := u.PushFunction(uint16(fc.args), uint16(fc.regs))
	u.SetFunctionPos(fc.index, pos)

	e := &emitter{
		funContext: fc,
		p:          p,
		u:          u,
		label:      fc.labelBase,
	}

	body := fc.fn.Body

	c.block(ctx, e, body)

	if n := len(body); n == 0 || !isReturn(body[n-1]) {
		u.PushReturn(0)
	}

	if e.label != fc.labelBase+fc.labels {
		return errors.New("labels used %d, reserved %d", e.label-fc.labelBase, fc.labels)
	}

	if l := e.placed.FirstUnset(fc.labels); l >= 0 {
		return errors.New("label %d is not placed", fc.labelBase+l)
	}

	tr.V("emit_func").Printw("emitted", "from", pos, "to", u.Len(), "labels", e.placed)

	return nil
}

func (c *Compiler) block(ctx context.Context, e *emitter, body []ast.Stmt) {
	for _, s := range body {
		c.stmt(ctx, e, s)
	}
}

func (c *Compiler) stmt(ctx context.Context, e *emitter, s ast.Stmt) {
	free := e.free()

	switch s := s.(type) {
	case *ast.VarDecl:
		v := e.vars[s.Ident.Name]

		if s.Init == nil {
			e.u.PushSet(v.t, v.reg, 0)
			return
		}

		c.lowerInto(e, s.Init, v.reg, free, v.typ)
	case *ast.Assign:
		v, ok := c.lookup(e, s.Ident)
		if !ok {
			return
		}

		c.lowerInto(e, s.Expr, v.reg, free, v.typ)
	case *ast.Return:
		if s.Expr == nil {
			e.u.PushSetS32(0, 0)
		} else {
			c.lowerInto(e, s.Expr, 0, free, e.fn.Ret)
		}

		e.u.PushReturn(0)
	case *ast.ExprStmt:
		call, ok := s.Expr.(*ast.Funcall)
		if !ok {
			c.errs.Push("unused expression", s.Pos, "function call", "expression")
			return
		}

		c.call(e, call, free)
	case *ast.If:
		c.ifStmt(ctx, e, s, free)
	default:
		c.errs.Pushf(s.Position(), "unsupported statement: %T", s)
	}
}

func (c *Compiler) ifStmt(ctx context.Context, e *emitter, s *ast.If, free uint16) {
	then, els, end := e.label, e.label+1, e.label+2
	e.label += 3

	cond := s.Cond

	want := c.typeOf(e.p, e.funContext, cond, nil)

	t, ok := regType(want)
	if !ok {
		c.errs.Push("type does not fit a register", cond.Pos, "primitive type", want.String())

		e.place(then)
		e.place(els)
		e.place(end)

		return
	}

	a := c.operand(e, cond.Left, free, want)
	b := c.operand(e, cond.Right, free+1, want)

	e.u.PushCmp(t, a, b)

	switch cond.Op {
	case ast.OpLt:
		e.u.PushJumpIf(bytecode.OpJl, uint32(then))
	case ast.OpGt:
		e.u.PushJumpIf(bytecode.OpJg, uint32(then))
	case ast.OpLe:
		e.u.PushJumpIf(bytecode.OpJl, uint32(then))
		e.u.PushJumpIf(bytecode.OpJe, uint32(then))
	case ast.OpGe:
		e.u.PushJumpIf(bytecode.OpJg, uint32(then))
		e.u.PushJumpIf(bytecode.OpJe, uint32(then))
	case ast.OpEq:
		e.u.PushJumpIf(bytecode.OpJe, uint32(then))
	case ast.OpNe:
		e.u.PushJumpIf(bytecode.OpJne, uint32(then))
	default:
		c.errs.Push("bad condition", cond.Pos, "comparison", cond.Op.String())
	}

	e.u.PushJump(bytecode.OpJmp, uint32(els))

	e.place(then)
	c.block(ctx, e, s.Then)
	e.u.PushJump(bytecode.OpJmp, uint32(end))

	e.place(els)
	c.block(ctx, e, s.Else)

	e.place(end)
}

func (e *emitter) place(l int) {
	if e.placed.TestAndSet(l - e.labelBase) {
		panic(fmt.Sprintf("label %d placed twice", l))
	}

	e.u.PlaceLabel(l)
}

// lowerInto emits code leaving x value in dst.
// Registers from free up are scratch. dst is written last.
func (c *Compiler) lowerInto(e *emitter, x ast.Expr, dst, free uint16, want *tp.TypeInfo) {
	switch x := x.(type) {
	case *ast.Ident:
		v, ok := c.lookup(e, x)
		if !ok {
			return
		}

		if v.reg != dst {
			e.u.PushMov(dst, v.reg)
		}
	case *ast.IntLiteral, *ast.FloatLiteral, *ast.DoubleLiteral, *ast.CharLiteral, *ast.StringLiteral:
		c.literal(e, x, dst, want)
	case *ast.Operator:
		typ := c.typeOf(e.p, e.funContext, x, want)

		t, ok := regType(typ)
		if !ok {
			c.errs.Push("type does not fit a register", x.Pos, "primitive type", typ.String())
			return
		}

		if !x.Binary {
			e.u.PushSet(t, free, 0)
			r := c.operand(e, x.Right, free+1, typ)
			e.u.PushSub(t, dst, free, r)

			return
		}

		op, ok := mathOp(x.Op)
		if !ok {
			c.errs.Push("unexpected operator", x.Pos, "arithmetic operator", x.Op.String())
			return
		}

		a := c.operand(e, x.Left, free, typ)
		b := c.operand(e, x.Right, free+1, typ)

		e.u.PushMath(op, t, dst, a, b)
	case *ast.Funcall:
		r, ok := c.call(e, x, free)
		if ok && r != dst {
			e.u.PushMov(dst, r)
		}
	default:
		c.errs.Pushf(x.Position(), "unsupported expression: %T", x)
	}
}

// operand returns the register holding x.
// Variables are read in place, anything else is lowered into free.
func (c *Compiler) operand(e *emitter, x ast.Expr, free uint16, want *tp.TypeInfo) uint16 {
	if id, ok := x.(*ast.Ident); ok {
		v, _ := c.lookup(e, id)
		return v.reg
	}

	c.lowerInto(e, x, free, free+1, want)

	return free
}

// call stages arguments at the top of the window and returns
// the register the result lands in.
func (c *Compiler) call(e *emitter, x *ast.Funcall, free uint16) (uint16, bool) {
	name := x.Ident.Name

	callee, ok := e.p.funcs[name]
	if !ok {
		c.errs.Push("undeclared function", x.Pos, "declared function", name)
		return 0, false
	}

	if len(x.Args) != len(callee.fn.Args) {
		c.errs.Pushf(x.Pos, "function %q takes %d arguments, got %d", name, len(callee.fn.Args), len(x.Args))
		return 0, false
	}

	n := len(x.Args)
	base := uint16(e.regs - n)

	if !containsCall(x.Args) {
		for i, a := range x.Args {
			c.lowerInto(e, a, base+uint16(i), free, callee.fn.Args[i].Type)
		}
	} else {
		for i, a := range x.Args {
			c.lowerInto(e, a, free+uint16(i), free+uint16(i)+1, callee.fn.Args[i].Type)
		}

		for i := range x.Args {
			e.u.PushMov(base+uint16(i), free+uint16(i))
		}
	}

	e.u.PushCall(uint32(callee.index))

	return base, true
}

func (c *Compiler) literal(e *emitter, x ast.Expr, dst uint16, want *tp.TypeInfo) {
	typ := c.typeOf(e.p, e.funContext, x, want)

	t, ok := regType(typ)
	if !ok {
		c.errs.Push("type does not fit a register", x.Position(), "primitive type", typ.String())
		return
	}

	var bits uint64

	switch x := x.(type) {
	case *ast.IntLiteral:
		switch {
		case t == bytecode.Float && x.Neg:
			bits = uint64(math.Float32bits(-float32(x.Value)))
		case t == bytecode.Float:
			bits = uint64(math.Float32bits(float32(x.Value)))
		case t == bytecode.Double && x.Neg:
			bits = math.Float64bits(-float64(x.Value))
		case t == bytecode.Double:
			bits = math.Float64bits(float64(x.Value))
		case x.Neg:
			bits = -x.Value
		default:
			bits = x.Value
		}
	case *ast.FloatLiteral:
		bits = floatBits(t, float64(x.Value))
	case *ast.DoubleLiteral:
		bits = floatBits(t, x.Value)
	case *ast.CharLiteral:
		bits = uint64(x.Value)
	case *ast.StringLiteral:
		c.errs.Push("unsupported literal", x.Pos, "number or char", "string")
		return
	}

	e.u.PushSet(t, dst, bits)
}

func floatBits(t bytecode.RegType, v float64) uint64 {
	switch t {
	case bytecode.Float:
		return uint64(math.Float32bits(float32(v)))
	case bytecode.Double:
		return math.Float64bits(v)
	case bytecode.U8, bytecode.U16, bytecode.U32, bytecode.U64:
		return uint64(v)
	default:
		return uint64(int64(v))
	}
}

func (c *Compiler) lookup(e *emitter, id *ast.Ident) (variable, bool) {
	v, ok := e.vars[id.Name]
	if !ok {
		c.errs.Push("undeclared identifier", id.Pos, "declared variable", id.Name)
	}

	return v, ok
}

// typeOf is the annotated type of x, or inferred the same way if x is not annotated.
func (c *Compiler) typeOf(p *pkgContext, fc *funContext, x ast.Expr, want *tp.TypeInfo) *tp.TypeInfo {
	if t := x.TypeOf(); t != nil {
		return t
	}

	switch x := x.(type) {
	case *ast.Ident:
		if v, ok := fc.vars[x.Name]; ok {
			return v.typ
		}
	case *ast.IntLiteral:
		if isNumeric(want) {
			return want
		}

		if x.Value > math.MaxInt32 {
			return tp.S64
		}

		return tp.S32
	case *ast.FloatLiteral:
		if want == tp.Double {
			return want
		}

		return tp.Float
	case *ast.DoubleLiteral:
		if want == tp.Float {
			return want
		}

		return tp.Double
	case *ast.CharLiteral:
		return tp.Char
	case *ast.StringLiteral:
		return tp.String
	case *ast.Operator:
		if x.Op.IsComparison() {
			want = nil
		}

		if x.Left == nil || isUntyped(x.Left) && !isUntyped(x.Right) {
			return c.typeOf(p, fc, x.Right, want)
		}

		return c.typeOf(p, fc, x.Left, want)
	case *ast.Funcall:
		if f, ok := p.funcs[x.Ident.Name]; ok {
			return f.fn.Ret
		}
	}

	return nil
}

func (fc *funContext) free() uint16 { return uint16(fc.locals) }

func mathOp(op ast.Op) (bytecode.Opcode, bool) {
	switch op {
	case ast.OpAdd:
		return bytecode.OpAdd, true
	case ast.OpSub:
		return bytecode.OpSub, true
	case ast.OpMul:
		return bytecode.OpMul, true
	case ast.OpDiv:
		return bytecode.OpDiv, true
	case ast.OpMod:
		return bytecode.OpMod, true
	}

	return 0, false
}

func isNumeric(t *tp.TypeInfo) bool {
	switch t {
	case tp.S8, tp.U8, tp.S16, tp.U16, tp.S32, tp.U32, tp.S64, tp.U64, tp.Float, tp.Double:
		return true
	}

	return false
}

func isUntyped(x ast.Expr) bool {
	switch x.(type) {
	case *ast.IntLiteral, *ast.FloatLiteral, *ast.DoubleLiteral:
		return x.TypeOf() == nil
	}

	return false
}

func isReturn(s ast.Stmt) bool {
	_, ok := s.(*ast.Return)
	return ok
}
