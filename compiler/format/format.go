package format

import (
	"context"
	"strconv"
	"strings"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"

	"github.com/slowlang/slvm/compiler/ast"
	"github.com/slowlang/slvm/compiler/tp"
)

// Format appends x printed as source text.
func Format(ctx context.Context, b []byte, x any) ([]byte, error) {
	return format(ctx, b, x, 0)
}

func format(ctx context.Context, b []byte, x any, d int) ([]byte, error) {
	switch x := x.(type) {
	case *ast.File:
		return formatFile(ctx, b, x, d)
	case *ast.Fundef:
		return formatFunc(ctx, b, x, d)
	case ast.Stmt:
		return formatBlock(ctx, b, []ast.Stmt{x}, d)
	default:
		return nil, errors.New("unsupported type: %T", x)
	}
}

func formatFile(ctx context.Context, b []byte, x *ast.File, d int) (_ []byte, err error) {
	for i, t := range x.Typedefs {
		if i != 0 {
			b = append(b, '\n')
		}

		b = formatTypedef(b, t, d)
	}

	for i, f := range x.Funcs {
		if i != 0 || len(x.Typedefs) != 0 {
			b = append(b, '\n')
		}

		b, err = formatFunc(ctx, b, f, d)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", f.Ident.Name)
		}
	}

	return b, nil
}

func formatTypedef(b []byte, x *ast.Typedef, d int) []byte {
	b = app(b, d, "struct %s {\n", x.Type.Name)

	for _, f := range x.Type.Fields {
		b = app(b, d+1, "%s: %s;\n", f.Name, f.Type.Name)
	}

	return app(b, d, "}\n")
}

func formatFunc(ctx context.Context, b []byte, x *ast.Fundef, d int) ([]byte, error) {
	b = app(b, d, "%s :: (", x.Ident.Name)

	for i, a := range x.Args {
		if i != 0 {
			b = append(b, ", "...)
		}

		b = app(b, 0, "%s: %s", a.Ident.Name, a.Type.String())
	}

	b = append(b, ")"...)

	if x.Ret != nil && x.Ret != tp.Void {
		b = app(b, 0, " -> %s", x.Ret.Name)
	}

	b = append(b, " {\n"...)

	b, err := formatBlock(ctx, b, x.Body, d+1)
	if err != nil {
		return nil, errors.Wrap(err, "body")
	}

	b = app(b, d, "}\n")

	return b, nil
}

func formatBlock(ctx context.Context, b []byte, body []ast.Stmt, d int) (_ []byte, err error) {
	for _, s := range body {
		switch s := s.(type) {
		case *ast.Return:
			if s.Expr == nil {
				b = app(b, d, "return;\n")
				break
			}

			b = app(b, d, "return ")

			b, err = formatExpr(ctx, b, s.Expr, 0)
			if err != nil {
				return nil, errors.Wrap(err, "return")
			}

			b = append(b, ";\n"...)
		case *ast.VarDecl:
			b = app(b, d, "%s", s.Ident.Name)

			switch {
			case s.Type == nil:
				b = append(b, " :="...)
			case s.Init == nil:
				b = app(b, 0, ": %s", s.Type.Name)
			default:
				b = app(b, 0, ": %s =", s.Type.Name)
			}

			if s.Init != nil {
				b = append(b, ' ')

				b, err = formatExpr(ctx, b, s.Init, 0)
				if err != nil {
					return nil, errors.Wrap(err, "var %v", s.Ident.Name)
				}
			}

			b = append(b, ";\n"...)
		case *ast.Assign:
			b = app(b, d, "%s = ", s.Ident.Name)

			b, err = formatExpr(ctx, b, s.Expr, 0)
			if err != nil {
				return nil, errors.Wrap(err, "assign %v", s.Ident.Name)
			}

			b = append(b, ";\n"...)
		case *ast.ExprStmt:
			b = app(b, d, "")

			b, err = formatExpr(ctx, b, s.Expr, 0)
			if err != nil {
				return nil, errors.Wrap(err, "expr")
			}

			b = append(b, ";\n"...)
		case *ast.If:
			b = app(b, d, "")

			b, err = formatIf(ctx, b, s, d)
			if err != nil {
				return nil, err
			}

			b = append(b, '\n')
		default:
			return nil, errors.New("unsupported stmt: %T", s)
		}
	}

	return b, nil
}

func formatIf(ctx context.Context, b []byte, s *ast.If, d int) (_ []byte, err error) {
	b = append(b, "if "...)

	b, err = formatExpr(ctx, b, s.Cond, 0)
	if err != nil {
		return nil, errors.Wrap(err, "cond")
	}

	b = append(b, " {\n"...)

	b, err = formatBlock(ctx, b, s.Then, d+1)
	if err != nil {
		return nil, errors.Wrap(err, "then block")
	}

	b = app(b, d, "}")

	if len(s.Else) == 0 {
		return b, nil
	}

	if elif, ok := s.Else[0].(*ast.If); ok && len(s.Else) == 1 {
		b = append(b, " else "...)

		return formatIf(ctx, b, elif, d)
	}

	b = append(b, " else {\n"...)

	b, err = formatBlock(ctx, b, s.Else, d+1)
	if err != nil {
		return nil, errors.Wrap(err, "else block")
	}

	b = app(b, d, "}")

	return b, nil
}

// formatExpr prints x, parenthesized if it binds weaker than prec.
func formatExpr(ctx context.Context, b []byte, x ast.Expr, prec int) (_ []byte, err error) {
	switch x := x.(type) {
	case *ast.Ident:
		b = append(b, x.Name...)
	case *ast.IntLiteral:
		if x.Neg {
			b = append(b, '-')
		}

		b = strconv.AppendUint(b, x.Value, 10)
	case *ast.FloatLiteral:
		b = strconv.AppendFloat(b, float64(x.Value), 'g', -1, 32)
		b = append(b, 'f')
	case *ast.DoubleLiteral:
		st := len(b)
		b = strconv.AppendFloat(b, x.Value, 'g', -1, 64)

		if !strings.ContainsAny(string(b[st:]), ".eIN") {
			b = append(b, ".0"...)
		}
	case *ast.CharLiteral:
		b = strconv.AppendQuoteRune(b, x.Value)
	case *ast.StringLiteral:
		b = strconv.AppendQuote(b, x.Value)
	case *ast.Funcall:
		b = append(b, x.Ident.Name...)
		b = append(b, '(')

		for i, a := range x.Args {
			if i != 0 {
				b = append(b, ", "...)
			}

			b, err = formatExpr(ctx, b, a, 0)
			if err != nil {
				return nil, errors.Wrap(err, "arg %d", i)
			}
		}

		b = append(b, ')')
	case *ast.Operator:
		if !x.Binary {
			b = append(b, x.Op.String()...)

			return formatExpr(ctx, b, x.Right, precUnary)
		}

		p := precedence(x.Op)
		if p < prec {
			b = append(b, '(')
		}

		b, err = formatExpr(ctx, b, x.Left, p)
		if err != nil {
			return nil, errors.Wrap(err, "left")
		}

		b = hfmt.Appendf(b, " %s ", x.Op.String())

		b, err = formatExpr(ctx, b, x.Right, p+1)
		if err != nil {
			return nil, errors.Wrap(err, "right")
		}

		if p < prec {
			b = append(b, ')')
		}
	default:
		return nil, errors.New("unsupported expr: %T", x)
	}

	return b, nil
}

const precUnary = 30

func precedence(op ast.Op) int {
	switch op {
	case ast.OpMul, ast.OpDiv, ast.OpMod:
		return 20
	case ast.OpAdd, ast.OpSub:
		return 10
	default:
		return 5
	}
}

func app(b []byte, d int, f string, args ...any) []byte {
	const tabs = "\t\t\t\t\t\t\t\t\t\t\t\t\t\t\t"
	b = append(b, tabs[:d]...)
	b = hfmt.Appendf(b, f, args...)
	return b
}
