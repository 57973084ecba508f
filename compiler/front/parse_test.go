package front

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/slvm/compiler/ast"
	"github.com/slowlang/slvm/compiler/diag"
	"github.com/slowlang/slvm/compiler/tp"
)

func parse(t *testing.T, text string) (*ast.File, *tp.Registry, *diag.Stream) {
	t.Helper()

	types := tp.New()
	errs := diag.New()

	f, err := Parse(context.Background(), "test.sl", []byte(text), types, errs)
	require.NoError(t, err)

	return f, types, errs
}

func TestParseFuncs(t *testing.T) {
	f, _, errs := parse(t, `
// sum of two
add :: (a: s32, b: s32) -> s32 {
	return a + b;
}

main :: () -> s32 {
	return add(10, 5);
}
`)
	require.Zero(t, errs.Len(), "%v", errs)
	require.Len(t, f.Funcs, 2)

	add := f.Funcs[0]
	assert.Equal(t, "add", add.Ident.Name)
	assert.Equal(t, tp.S32, add.Ret)
	require.Len(t, add.Args, 2)
	assert.Equal(t, "b", add.Args[1].Ident.Name)
	assert.Equal(t, tp.S32, add.Args[1].Type)
	assert.Equal(t, diag.Pos{Line: 3, Col: 1}, add.Pos)

	require.Len(t, add.Body, 1)
	ret := add.Body[0].(*ast.Return)
	op := ret.Expr.(*ast.Operator)
	assert.Equal(t, ast.OpAdd, op.Op)
	assert.Equal(t, "a", op.Left.(*ast.Ident).Name)

	main := f.Funcs[1]
	call := main.Body[0].(*ast.Return).Expr.(*ast.Funcall)
	assert.Equal(t, "add", call.Ident.Name)
	require.Len(t, call.Args, 2)
	assert.Equal(t, uint64(10), call.Args[0].(*ast.IntLiteral).Value)
}

func TestParsePrecedence(t *testing.T) {
	f, _, errs := parse(t, `main :: () -> s32 { return 1 + 2 * (3 - 4) % 5; }`)
	require.Zero(t, errs.Len(), "%v", errs)

	x := f.Funcs[0].Body[0].(*ast.Return).Expr.(*ast.Operator)
	assert.Equal(t, ast.OpAdd, x.Op)

	r := x.Right.(*ast.Operator)
	assert.Equal(t, ast.OpMod, r.Op)
	assert.Equal(t, ast.OpMul, r.Left.(*ast.Operator).Op)
	assert.Equal(t, ast.OpSub, r.Left.(*ast.Operator).Right.(*ast.Operator).Op)
}

func TestParseStatements(t *testing.T) {
	f, _, errs := parse(t, `
main :: () -> s32 {
	a: s32 = 10;
	b := 11;
	c: s64;
	a = a - -1;
	if a <= b {
		return 0;
	} else if a == b {
		return 1;
	} else {
		f();
	}
	return;
}

f :: () { }
`)
	require.Zero(t, errs.Len(), "%v", errs)

	body := f.Funcs[0].Body
	require.Len(t, body, 6)

	d := body[0].(*ast.VarDecl)
	assert.Equal(t, tp.S32, d.Type)
	assert.NotNil(t, d.Init)

	d = body[1].(*ast.VarDecl)
	assert.Nil(t, d.Type)

	d = body[2].(*ast.VarDecl)
	assert.Equal(t, tp.S64, d.Type)
	assert.Nil(t, d.Init)

	a := body[3].(*ast.Assign)
	neg := a.Expr.(*ast.Operator).Right.(*ast.IntLiteral)
	assert.True(t, neg.Neg)

	n := body[4].(*ast.If)
	assert.Equal(t, ast.OpLe, n.Cond.Op)
	require.Len(t, n.Else, 1)

	elif := n.Else[0].(*ast.If)
	assert.Equal(t, ast.OpEq, elif.Cond.Op)
	require.Len(t, elif.Else, 1)
	assert.IsType(t, &ast.ExprStmt{}, elif.Else[0])

	assert.Nil(t, body[5].(*ast.Return).Expr)

	assert.Equal(t, tp.Void, f.Funcs[1].Ret)
}

func TestParseLiterals(t *testing.T) {
	f, _, errs := parse(t, `main :: () { a := 1.5f; b := 2.5; c := 3d; d := 0x10; e := 'x'; s := "hi\n"; }`)
	require.Zero(t, errs.Len(), "%v", errs)

	body := f.Funcs[0].Body

	assert.Equal(t, float32(1.5), body[0].(*ast.VarDecl).Init.(*ast.FloatLiteral).Value)
	assert.Equal(t, 2.5, body[1].(*ast.VarDecl).Init.(*ast.DoubleLiteral).Value)
	assert.Equal(t, 3.0, body[2].(*ast.VarDecl).Init.(*ast.DoubleLiteral).Value)
	assert.Equal(t, uint64(16), body[3].(*ast.VarDecl).Init.(*ast.IntLiteral).Value)
	assert.Equal(t, 'x', body[4].(*ast.VarDecl).Init.(*ast.CharLiteral).Value)
	assert.Equal(t, "hi\n", body[5].(*ast.VarDecl).Init.(*ast.StringLiteral).Value)
}

func TestParseTypedef(t *testing.T) {
	f, types, errs := parse(t, `
struct Point { x: s32; y: s32; }
struct Line { a: Point; b: Point; }
main :: () -> s32 { return 0; }
`)
	require.Zero(t, errs.Len(), "%v", errs)
	require.Len(t, f.Typedefs, 2)

	pt, err := types.GetType("Point")
	require.NoError(t, err)
	assert.Equal(t, uint32(8), pt.Size)
	assert.Equal(t, uint32(4), pt.Align)

	ln, err := types.GetType("Line")
	require.NoError(t, err)
	assert.Equal(t, uint32(16), ln.Size)
	assert.Same(t, pt, ln.Fields[0].Type)
}

func TestParseTypeErrors(t *testing.T) {
	_, _, errs := parse(t, `
struct Point { x: s32; }
struct Point { y: s32; }
main :: () -> s32 { a: Vec = 1; return 0; }
`)
	require.Equal(t, 2, errs.Len(), "%v", errs)

	e := errs.Entries()
	assert.Contains(t, e[0].Msg, `type "Point" is already defined`)
	assert.Equal(t, diag.Pos{Line: 3, Col: 1}, e[0].Pos)

	assert.Equal(t, "unknown type", e[1].Msg)
	assert.Equal(t, "Vec", e[1].Got)
	assert.Equal(t, diag.Pos{Line: 4, Col: 24}, e[1].Pos)
}

func TestParseSyntaxError(t *testing.T) {
	types := tp.New()
	errs := diag.New()

	_, err := Parse(context.Background(), "bad.sl", []byte("main :: () -> s32 {\n\treturn 1 +;\n}\n"), types, errs)
	require.Error(t, err)

	var u UnexpectedError
	assert.ErrorAs(t, err, &u)

	require.Equal(t, 1, errs.Len())

	e := errs.Entries()[0]
	assert.Equal(t, "unexpected symbol", e.Msg)
	assert.Equal(t, diag.Pos{Line: 2, Col: 12}, e.Pos)
	assert.Equal(t, "';'", e.Got)
}

func TestCheck(t *testing.T) {
	f, _, errs := parse(t, `
add :: (a: s64, b: s64) -> s64 { return a + b; }
main :: () -> s64 {
	x := 5;
	y: double = 2;
	if 3 < x { }
	return add(1, 2);
}
`)
	require.Zero(t, errs.Len(), "%v", errs)

	Check(context.Background(), f, errs)
	require.Zero(t, errs.Len(), "%v", errs)

	body := f.Funcs[1].Body

	x := body[0].(*ast.VarDecl)
	assert.Equal(t, tp.S32, x.Type)
	assert.Equal(t, tp.S32, x.Init.TypeOf())

	y := body[1].(*ast.VarDecl)
	assert.Equal(t, tp.Double, y.Init.TypeOf())

	cond := body[2].(*ast.If).Cond
	assert.Equal(t, tp.S32, cond.Left.TypeOf())

	call := body[3].(*ast.Return).Expr.(*ast.Funcall)
	assert.Equal(t, tp.S64, call.TypeOf())
	assert.Equal(t, tp.S64, call.Args[0].TypeOf())
	assert.Equal(t, tp.S64, call.Args[1].TypeOf())
}

func TestCheckErrors(t *testing.T) {
	f, _, errs := parse(t, `
main :: () -> s32 {
	a: s32 = 1;
	b: s64 = 2;
	c := a + b;
	return d + nope(a);
}
`)
	require.Zero(t, errs.Len(), "%v", errs)

	Check(context.Background(), f, errs)

	var msgs []string
	for _, e := range errs.Entries() {
		msgs = append(msgs, e.Msg)
	}

	assert.Equal(t, []string{"mismatched operand types", "undeclared identifier", "undeclared function"}, msgs)
}

func TestIntLiteralType(t *testing.T) {
	for _, tc := range []struct {
		v    uint64
		neg  bool
		want *tp.TypeInfo
	}{
		{v: 0, want: tp.S32},
		{v: 1 << 31, neg: true, want: tp.S32},
		{v: 1 << 31, want: tp.S64},
		{v: 1 << 63, neg: true, want: tp.S64},
		{v: 1 << 63, want: tp.U64},
	} {
		x := &ast.IntLiteral{Value: tc.v, Neg: tc.neg}
		assert.Equal(t, tc.want, intLiteralType(x, nil), "%d neg %v", tc.v, tc.neg)
	}

	assert.Equal(t, tp.U8, intLiteralType(&ast.IntLiteral{Value: 3}, tp.U8))
	assert.Equal(t, tp.S32, intLiteralType(&ast.IntLiteral{Value: 3}, tp.String))
}
