package back

import (
	"context"
	"math"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"
	"tlog.app/go/tlog/tlwire"

	"github.com/slowlang/slvm/compiler/ast"
	"github.com/slowlang/slvm/compiler/bytecode"
	"github.com/slowlang/slvm/compiler/diag"
	"github.com/slowlang/slvm/compiler/tp"
)

type (
	Compiler struct {
		types *tp.Registry
		errs  *diag.Stream

		// BufferSize is the initial code buffer size.
		BufferSize int
	}

	// funContext is the pass 1 layout of a function.
	// It's not modified while emitting.
	funContext struct {
		fn *ast.Fundef

		index int
		args  int

		vars   map[string]variable
		locals int // args included

		temps   int
		staging int // widest call
		regs    int

		labelBase int
		labels    int
	}

	variable struct {
		reg uint16
		t   bytecode.RegType
		typ *tp.TypeInfo
	}

	pkgContext struct {
		funcs map[string]*funContext
		order []*funContext // by index
		units int           // labels total
	}
)

var ErrGenerate = errors.New("generate")

const maxRegs = math.MaxUint16

func New(types *tp.Registry, errs *diag.Stream) *Compiler {
	return &Compiler{
		types:      types,
		errs:       errs,
		BufferSize: 2048,
	}
}

// Generate lowers the file into a code unit.
// User errors go to the diagnostic stream, if any was reported the unit is nil
// and the error wraps ErrGenerate.
func (c *Compiler) Generate(ctx context.Context, f *ast.File) (u *bytecode.Unit, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "back: generate", "name", f.Name, "funcs", len(f.Funcs))
	defer tr.Finish("err", &err)

	errs0 := c.errs.Len()

	p := c.layout(ctx, f)

	if tr.If("dump_funcs") {
		for _, fc := range p.order {
			tr.Printw("func", "func", fc)
		}
	}

	if c.errs.Len() != errs0 {
		return nil, errors.Wrap(ErrGenerate, "%d errors", c.errs.Len()-errs0)
	}

	u = bytecode.NewUnit(c.BufferSize, len(p.order), p.units)

	for _, fc := range p.order {
		err = c.emitFunc(ctx, u, p, fc)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", fc.fn.Ident.Name)
		}
	}

	if c.errs.Len() != errs0 {
		return nil, errors.Wrap(ErrGenerate, "%d errors", c.errs.Len()-errs0)
	}

	tr.Printw("generated", "size", u.Len(), "funcs", u.Funcs(), "labels", u.Labels())

	return u, nil
}

// layout is pass 1: function indexes, register maps and label ranges.
func (c *Compiler) layout(ctx context.Context, f *ast.File) *pkgContext {
	p := &pkgContext{
		funcs: map[string]*funContext{},
	}

	var main *funContext

	for _, fn := range f.Funcs {
		name := fn.Ident.Name

		if _, ok := p.funcs[name]; ok {
			c.errs.Pushf(fn.Pos, "function %q is already defined", name)
			continue
		}

		fc := &funContext{fn: fn}
		p.funcs[name] = fc

		if name == "main" {
			main = fc
			continue
		}

		p.order = append(p.order, fc)
	}

	if main == nil {
		c.errs.Pushf(diag.Pos{}, "function %q is not defined", "main")
	} else {
		p.order = append([]*funContext{main}, p.order...)
	}

	for i, fc := range p.order {
		fc.index = i
		fc.labelBase = p.units

		c.layoutFunc(ctx, p, fc)

		p.units += fc.labels
	}

	return p
}

func (c *Compiler) layoutFunc(ctx context.Context, p *pkgContext, fc *funContext) {
	fn := fc.fn

	fc.args = len(fn.Args)
	fc.vars = make(map[string]variable)

	for _, a := range fn.Args {
		c.declare(p, fc, a)
	}

	ast.Walk(fn.Body, func(s ast.Stmt) {
		switch s := s.(type) {
		case *ast.VarDecl:
			c.declare(p, fc, s)

			if s.Init != nil {
				fc.temps = max(fc.temps, c.need(p, s.Init))
				fc.staging = max(fc.staging, c.widestCall(s.Init))
			}
		case *ast.Assign:
			fc.temps = max(fc.temps, c.need(p, s.Expr))
			fc.staging = max(fc.staging, c.widestCall(s.Expr))
		case *ast.Return:
			if s.Expr != nil {
				fc.temps = max(fc.temps, c.need(p, s.Expr))
				fc.staging = max(fc.staging, c.widestCall(s.Expr))
			}
		case *ast.ExprStmt:
			fc.temps = max(fc.temps, c.need(p, s.Expr))
			fc.staging = max(fc.staging, c.widestCall(s.Expr))
		case *ast.If:
			fc.labels += 3
			fc.temps = max(fc.temps, c.need(p, s.Cond))
			fc.staging = max(fc.staging, c.widestCall(s.Cond))
		}
	})

	fc.regs = max(1, fc.locals+fc.temps+fc.staging)

	if fc.regs > maxRegs {
		c.errs.Pushf(fn.Pos, "function %q needs %d registers, max %d", fn.Ident.Name, fc.regs, maxRegs)
	}
}

func (c *Compiler) declare(p *pkgContext, fc *funContext, d *ast.VarDecl) {
	name := d.Ident.Name

	if _, ok := fc.vars[name]; ok {
		c.errs.Pushf(d.Pos, "variable %q is already defined", name)
		return
	}

	typ := d.Type
	if typ == nil && d.Init != nil {
		typ = c.typeOf(p, fc, d.Init, nil)
	}

	t, ok := regType(typ)
	if !ok {
		c.errs.Push("type does not fit a register", d.Pos, "primitive type", typ.String())
	}

	fc.vars[name] = variable{reg: uint16(fc.locals), t: t, typ: typ}
	fc.locals++
}

// need is the number of temporaries lowering x takes beyond its destination.
// It mirrors lowering exactly.
func (c *Compiler) need(p *pkgContext, x ast.Expr) int {
	switch x := x.(type) {
	case *ast.Operator:
		if !x.Binary {
			return max(1, 1+c.operandNeed(p, x.Right))
		}

		return max(c.operandNeed(p, x.Left), 1+c.operandNeed(p, x.Right))
	case *ast.Funcall:
		n := 0

		if !containsCall(x.Args) {
			for _, a := range x.Args {
				n = max(n, c.need(p, a))
			}

			return n
		}

		for i, a := range x.Args {
			n = max(n, i+1+c.need(p, a))
		}

		return n
	}

	return 0
}

func (c *Compiler) operandNeed(p *pkgContext, x ast.Expr) int {
	if _, ok := x.(*ast.Ident); ok {
		return 0
	}

	return 1 + c.need(p, x)
}

func (c *Compiler) widestCall(x ast.Expr) (n int) {
	switch x := x.(type) {
	case *ast.Operator:
		if x.Left != nil {
			n = c.widestCall(x.Left)
		}

		return max(n, c.widestCall(x.Right))
	case *ast.Funcall:
		n = len(x.Args)

		for _, a := range x.Args {
			n = max(n, c.widestCall(a))
		}
	}

	return n
}

func containsCall(l []ast.Expr) bool {
	for _, x := range l {
		switch x := x.(type) {
		case *ast.Funcall:
			return true
		case *ast.Operator:
			if x.Left != nil && containsCall([]ast.Expr{x.Left}) || containsCall([]ast.Expr{x.Right}) {
				return true
			}
		}
	}

	return false
}

// regType maps a language type to the register interpretation.
func regType(t *tp.TypeInfo) (bytecode.RegType, bool) {
	switch t {
	case tp.S8:
		return bytecode.S8, true
	case tp.U8:
		return bytecode.U8, true
	case tp.S16:
		return bytecode.S16, true
	case tp.U16, tp.Char:
		return bytecode.U16, true
	case tp.S32:
		return bytecode.S32, true
	case tp.U32:
		return bytecode.U32, true
	case tp.S64:
		return bytecode.S64, true
	case tp.U64:
		return bytecode.U64, true
	case tp.Float:
		return bytecode.Float, true
	case tp.Double:
		return bytecode.Double, true
	case tp.String:
		return bytecode.Pointer, true
	}

	return bytecode.S32, false
}

func (fc *funContext) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 8)
	b = e.AppendString(b, "name")
	b = e.AppendString(b, fc.fn.Ident.Name)
	b = e.AppendKeyInt(b, "index", fc.index)
	b = e.AppendKeyInt(b, "args", fc.args)
	b = e.AppendKeyInt(b, "locals", fc.locals)
	b = e.AppendKeyInt(b, "temps", fc.temps)
	b = e.AppendKeyInt(b, "staging", fc.staging)
	b = e.AppendKeyInt(b, "regs", fc.regs)
	b = e.AppendKeyInt(b, "labels", fc.labels)

	return b
}
