package front

import (
	"context"
	"math"

	"tlog.app/go/tlog"

	"github.com/slowlang/slvm/compiler/ast"
	"github.com/slowlang/slvm/compiler/diag"
	"github.com/slowlang/slvm/compiler/tp"
)

type (
	checker struct {
		errs  *diag.Stream
		funcs map[string]*ast.Fundef

		fn   *ast.Fundef
		vars map[string]*tp.TypeInfo
	}
)

// Check annotates every expression of f with its type.
// Problems are reported to errs.
func Check(ctx context.Context, f *ast.File, errs *diag.Stream) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "front: check", "name", f.Name)
	defer func() {
		tr.Finish("errors", errs.Len())
	}()

	c := &checker{
		errs:  errs,
		funcs: map[string]*ast.Fundef{},
	}

	for _, fn := range f.Funcs {
		if _, ok := c.funcs[fn.Ident.Name]; ok {
			continue // back end reports it
		}

		c.funcs[fn.Ident.Name] = fn
		fn.Ident.Type = fn.Ret
	}

	for _, fn := range f.Funcs {
		c.checkFunc(ctx, fn)
	}
}

func (c *checker) checkFunc(ctx context.Context, fn *ast.Fundef) {
	c.fn = fn
	c.vars = map[string]*tp.TypeInfo{}

	for _, a := range fn.Args {
		c.vars[a.Ident.Name] = a.Type
	}

	c.checkBlock(ctx, fn.Body)
}

func (c *checker) checkBlock(ctx context.Context, body []ast.Stmt) {
	for _, s := range body {
		c.checkStmt(ctx, s)
	}
}

func (c *checker) checkStmt(ctx context.Context, s ast.Stmt) {
	switch s := s.(type) {
	case *ast.VarDecl:
		if s.Init != nil {
			t := c.checkExpr(ctx, s.Init, s.Type)

			if s.Type == nil {
				s.Type = t
			}
		}

		if s.Type == nil {
			s.Type = tp.S32
		}

		s.Ident.Type = s.Type
		c.vars[s.Ident.Name] = s.Type
	case *ast.Assign:
		t := c.checkIdent(s.Ident)

		c.checkExpr(ctx, s.Expr, t)
	case *ast.Return:
		if s.Expr == nil {
			return
		}

		if c.fn.Ret == tp.Void {
			c.errs.Push("unexpected return value", s.Expr.Position(), "no value", "expression")
		}

		c.checkExpr(ctx, s.Expr, c.fn.Ret)
	case *ast.ExprStmt:
		c.checkExpr(ctx, s.Expr, nil)
	case *ast.If:
		c.checkExpr(ctx, s.Cond, nil)
		c.checkBlock(ctx, s.Then)
		c.checkBlock(ctx, s.Else)
	}
}

// checkExpr sets x type. want is the type expected by the context, if known.
func (c *checker) checkExpr(ctx context.Context, x ast.Expr, want *tp.TypeInfo) *tp.TypeInfo {
	switch x := x.(type) {
	case *ast.Ident:
		return c.checkIdent(x)
	case *ast.IntLiteral:
		x.Type = intLiteralType(x, want)
		return x.Type
	case *ast.FloatLiteral:
		x.Type = floatLiteralType(tp.Float, want)
		return x.Type
	case *ast.DoubleLiteral:
		x.Type = floatLiteralType(tp.Double, want)
		return x.Type
	case *ast.CharLiteral:
		x.Type = tp.Char
		return x.Type
	case *ast.StringLiteral:
		x.Type = tp.String
		return x.Type
	case *ast.Funcall:
		return c.checkFuncall(ctx, x)
	case *ast.Operator:
		if !x.Binary {
			x.Type = c.checkExpr(ctx, x.Right, want)
			return x.Type
		}

		operand := want
		if x.Op.IsComparison() {
			operand = nil
		}

		l, r := c.checkPair(ctx, x.Left, x.Right, operand)

		if l != nil && r != nil && l != r {
			c.errs.Push("mismatched operand types", x.Pos, l.Name, r.Name)
		}

		x.Type = l
		if x.Type == nil {
			x.Type = r
		}

		return x.Type
	}

	return nil
}

// checkPair types both operands so that an untyped literal on either side follows the other one.
func (c *checker) checkPair(ctx context.Context, l, r ast.Expr, want *tp.TypeInfo) (lt, rt *tp.TypeInfo) {
	if want == nil && isLiteral(l) && !isLiteral(r) {
		rt = c.checkExpr(ctx, r, nil)
		lt = c.checkExpr(ctx, l, rt)

		return lt, rt
	}

	lt = c.checkExpr(ctx, l, want)

	if want == nil {
		want = lt
	}

	rt = c.checkExpr(ctx, r, want)

	return lt, rt
}

func (c *checker) checkIdent(x *ast.Ident) *tp.TypeInfo {
	t, ok := c.vars[x.Name]
	if !ok {
		c.errs.Push("undeclared identifier", x.Pos, "declared variable", x.Name)
		return nil
	}

	x.Type = t

	return t
}

func (c *checker) checkFuncall(ctx context.Context, x *ast.Funcall) *tp.TypeInfo {
	fn, ok := c.funcs[x.Ident.Name]
	if !ok {
		c.errs.Push("undeclared function", x.Pos, "declared function", x.Ident.Name)

		for _, a := range x.Args {
			c.checkExpr(ctx, a, nil)
		}

		return nil
	}

	if len(x.Args) != len(fn.Args) {
		c.errs.Pushf(x.Pos, "function %q takes %d arguments, got %d", fn.Ident.Name, len(fn.Args), len(x.Args))
	}

	for i, a := range x.Args {
		var want *tp.TypeInfo
		if i < len(fn.Args) {
			want = fn.Args[i].Type
		}

		t := c.checkExpr(ctx, a, want)

		if want != nil && t != nil && t != want {
			c.errs.Push("mismatched argument type", a.Position(), want.Name, t.Name)
		}
	}

	x.Type = fn.Ret
	x.Ident.Type = fn.Ret

	return x.Type
}

func intLiteralType(x *ast.IntLiteral, want *tp.TypeInfo) *tp.TypeInfo {
	switch want {
	case tp.S8, tp.U8, tp.S16, tp.U16, tp.S32, tp.U32, tp.S64, tp.U64, tp.Float, tp.Double:
		return want
	}

	switch {
	case !x.Neg && x.Value <= math.MaxInt32, x.Neg && x.Value <= -math.MinInt32:
		return tp.S32
	case !x.Neg && x.Value <= math.MaxInt64, x.Neg && x.Value <= -math.MinInt64:
		return tp.S64
	default:
		return tp.U64
	}
}

func floatLiteralType(def, want *tp.TypeInfo) *tp.TypeInfo {
	if want == tp.Float || want == tp.Double {
		return want
	}

	return def
}

func isLiteral(x ast.Expr) bool {
	switch x.(type) {
	case *ast.IntLiteral, *ast.FloatLiteral, *ast.DoubleLiteral:
		return true
	}

	return false
}
