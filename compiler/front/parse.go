package front

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/slowlang/slvm/compiler/ast"
	"github.com/slowlang/slvm/compiler/diag"
	"github.com/slowlang/slvm/compiler/tp"
)

type (
	State struct {
		b []byte

		name  string
		lines []int // line start offsets

		types *tp.Registry
		errs  *diag.Stream
	}

	Token interface{}

	Punct   string
	Keyword string
	Ident   string
	Number  string
	String  string
	Char    rune

	EOF struct{}

	UnexpectedError struct {
		Token Token
		Want  []Token
		Pos   int
	}
)

// Parse parses text into a file.
// Typedefs are registered in types as they are met.
// Syntax errors stop parsing, semantic ones are reported to errs and parsing goes on.
func Parse(ctx context.Context, name string, text []byte, types *tp.Registry, errs *diag.Stream) (f *ast.File, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "front: parse", "name", name, "size", len(text))
	defer tr.Finish("err", &err)

	s := New(name, text, types, errs)

	f, err = s.Parse(ctx)
	if err != nil {
		var u UnexpectedError
		if errors.As(err, &u) {
			errs.Push("unexpected symbol", s.Pos(u.Pos), u.wantString(), tokenString(u.Token))
		} else {
			errs.Pushf(diag.Pos{}, "%v", err)
		}

		return f, err
	}

	return f, nil
}

func New(name string, text []byte, types *tp.Registry, errs *diag.Stream) *State {
	s := &State{
		b:     text,
		name:  name,
		lines: []int{0},
		types: types,
		errs:  errs,
	}

	for i, c := range text {
		if c == '\n' {
			s.lines = append(s.lines, i+1)
		}
	}

	return s
}

// Pos converts a byte offset into 1-based line and column.
func (s *State) Pos(i int) diag.Pos {
	l := sort.Search(len(s.lines), func(j int) bool { return s.lines[j] > i }) - 1
	if l < 0 {
		l = 0
	}

	return diag.Pos{Line: l + 1, Col: i - s.lines[l] + 1}
}

func (s *State) Parse(ctx context.Context) (f *ast.File, err error) {
	f = &ast.File{Name: s.name}

	for i := 0; ; {
		tk, tst, e := s.next(ctx, i)

		switch tk := tk.(type) {
		case EOF:
			return f, nil
		case Keyword:
			if tk != "struct" {
				return f, NewUnexpected(tst, tk, Keyword("struct"), Ident(""))
			}

			var td *ast.Typedef
			td, i, err = s.parseTypedef(ctx, tst, e)
			if err != nil {
				return f, errors.Wrap(err, "typedef")
			}

			if td != nil {
				f.Typedefs = append(f.Typedefs, td)
			}
		case Ident:
			var fn *ast.Fundef
			fn, i, err = s.parseFundef(ctx, tst, tk, e)
			if err != nil {
				return f, errors.Wrap(err, "func %v", tk)
			}

			f.Funcs = append(f.Funcs, fn)
		default:
			return f, NewUnexpected(tst, tk, Keyword("struct"), Ident(""))
		}
	}
}

func (s *State) parseTypedef(ctx context.Context, st, i int) (td *ast.Typedef, _ int, err error) {
	name, i, err := s.expectIdent(ctx, i)
	if err != nil {
		return nil, i, err
	}

	i, err = s.expect(ctx, i, Punct("{"))
	if err != nil {
		return nil, i, err
	}

	var fields []tp.FieldInfo

	for {
		tk, tst, e := s.next(ctx, i)
		if tk == Punct("}") {
			i = e
			break
		}

		fname, ok := tk.(Ident)
		if !ok {
			return nil, tst, NewUnexpected(tst, tk, Ident(""), Punct("}"))
		}

		i, err = s.expect(ctx, e, Punct(":"))
		if err != nil {
			return nil, i, err
		}

		ft, fst, e, err := s.parseType(ctx, i)
		if err != nil {
			return nil, fst, err
		}

		i, err = s.expect(ctx, e, Punct(";"))
		if err != nil {
			return nil, i, err
		}

		if ft == nil {
			continue
		}

		fields = append(fields, tp.FieldInfo{Name: string(fname), Type: ft})
	}

	t := tp.NewRecord(string(name), fields)

	if !s.types.RegisterType(t) {
		s.errs.Pushf(s.Pos(st), "type %q is already defined", name)
		return nil, i, nil
	}

	td = &ast.Typedef{
		Base: ast.Base{Pos: s.Pos(st)},
		Type: t,
	}

	return td, i, nil
}

func (s *State) parseFundef(ctx context.Context, st int, name Ident, i int) (f *ast.Fundef, _ int, err error) {
	i, err = s.expect(ctx, i, Punct("::"))
	if err != nil {
		return nil, i, err
	}

	i, err = s.expect(ctx, i, Punct("("))
	if err != nil {
		return nil, i, err
	}

	f = &ast.Fundef{
		Base:  ast.Base{Pos: s.Pos(st)},
		Ident: &ast.Ident{Base: ast.Base{Pos: s.Pos(st)}, Name: string(name)},
		Ret:   tp.Void,
	}

	for {
		tk, tst, e := s.next(ctx, i)
		if tk == Punct(")") {
			i = e
			break
		}

		if len(f.Args) != 0 {
			if tk != Punct(",") {
				return nil, tst, NewUnexpected(tst, tk, Punct(","), Punct(")"))
			}

			tk, tst, e = s.next(ctx, e)
		}

		aname, ok := tk.(Ident)
		if !ok {
			return nil, tst, NewUnexpected(tst, tk, Ident(""))
		}

		i, err = s.expect(ctx, e, Punct(":"))
		if err != nil {
			return nil, i, err
		}

		var at *tp.TypeInfo
		at, _, i, err = s.parseType(ctx, i)
		if err != nil {
			return nil, i, err
		}

		f.Args = append(f.Args, &ast.VarDecl{
			Base:  ast.Base{Pos: s.Pos(tst)},
			Ident: &ast.Ident{Base: ast.Base{Pos: s.Pos(tst)}, Typed: ast.Typed{Type: at}, Name: string(aname)},
			Type:  at,
		})
	}

	if tk, _, e := s.next(ctx, i); tk == Punct("->") {
		var rt *tp.TypeInfo
		rt, _, i, err = s.parseType(ctx, e)
		if err != nil {
			return nil, i, err
		}

		if rt != nil {
			f.Ret = rt
		}
	}

	f.Body, i, err = s.parseBlock(ctx, i)
	if err != nil {
		return nil, i, err
	}

	tlog.SpanFromContext(ctx).V("parse_func").Printw("func", "name", f.Ident.Name, "args", len(f.Args), "stmts", len(f.Body))

	return f, i, nil
}

// parseType returns nil type if the name is unknown, it's reported already.
func (s *State) parseType(ctx context.Context, st int) (t *tp.TypeInfo, tst, i int, err error) {
	name, tst, i, err := s.expectIdentPos(ctx, st)
	if err != nil {
		return nil, tst, i, err
	}

	t, err = s.types.GetType(string(name))
	if err != nil {
		s.errs.Push("unknown type", s.Pos(tst), "type name", string(name))
		return nil, tst, i, nil
	}

	return t, tst, i, nil
}

func (s *State) parseBlock(ctx context.Context, st int) (body []ast.Stmt, i int, err error) {
	i, err = s.expect(ctx, st, Punct("{"))
	if err != nil {
		return nil, i, err
	}

	body = []ast.Stmt{}

	for {
		tk, tst, e := s.next(ctx, i)

		switch tk {
		case Punct("}"):
			return body, e, nil
		case Punct(";"):
			i = e
			continue
		case EOF{}:
			return nil, tst, NewUnexpected(tst, tk, Punct("}"))
		}

		var x ast.Stmt
		x, i, err = s.parseStatement(ctx, i)
		if err != nil {
			return nil, i, err
		}

		body = append(body, x)
	}
}

func (s *State) parseStatement(ctx context.Context, st int) (x ast.Stmt, i int, err error) {
	tk, tst, i := s.next(ctx, st)

	switch tk := tk.(type) {
	case Keyword:
		switch tk {
		case "return":
			return s.parseReturn(ctx, tst, i)
		case "if":
			return s.parseIf(ctx, tst, i)
		}
	case Ident:
		return s.parseIdentStatement(ctx, tst, tk, i)
	}

	return nil, tst, NewUnexpected(tst, tk, Keyword("return"), Keyword("if"), Ident(""))
}

func (s *State) parseReturn(ctx context.Context, st, i int) (x ast.Stmt, _ int, err error) {
	r := &ast.Return{Base: ast.Base{Pos: s.Pos(st)}}

	if tk, _, e := s.next(ctx, i); tk == Punct(";") {
		return r, e, nil
	}

	r.Expr, i, err = s.parseExpr(ctx, i, 0)
	if err != nil {
		return nil, i, errors.Wrap(err, "return")
	}

	i, err = s.expect(ctx, i, Punct(";"))
	if err != nil {
		return nil, i, err
	}

	return r, i, nil
}

func (s *State) parseIf(ctx context.Context, st, i int) (x ast.Stmt, _ int, err error) {
	cond, i, err := s.parseExpr(ctx, i, 0)
	if err != nil {
		return nil, i, errors.Wrap(err, "condition")
	}

	op, ok := cond.(*ast.Operator)
	if !ok || !op.Op.IsComparison() {
		return nil, i, NewUnexpected(i, Ident("condition"), Punct("<"), Punct(">"), Punct("<="), Punct(">="), Punct("=="), Punct("!="))
	}

	n := &ast.If{
		Base: ast.Base{Pos: s.Pos(st)},
		Cond: op,
	}

	n.Then, i, err = s.parseBlock(ctx, i)
	if err != nil {
		return nil, i, err
	}

	tk, _, e := s.next(ctx, i)
	if tk != Keyword("else") {
		return n, i, nil
	}

	if tk, tst, ie := s.next(ctx, e); tk == Keyword("if") {
		var y ast.Stmt
		y, i, err = s.parseIf(ctx, tst, ie)
		if err != nil {
			return nil, i, err
		}

		n.Else = []ast.Stmt{y}

		return n, i, nil
	}

	n.Else, i, err = s.parseBlock(ctx, e)
	if err != nil {
		return nil, i, err
	}

	return n, i, nil
}

func (s *State) parseIdentStatement(ctx context.Context, st int, name Ident, i int) (x ast.Stmt, _ int, err error) {
	id := &ast.Ident{Base: ast.Base{Pos: s.Pos(st)}, Name: string(name)}

	tk, tst, e := s.next(ctx, i)

	switch tk {
	case Punct(":"): // a: s32 [= expr];
		d := &ast.VarDecl{Base: ast.Base{Pos: s.Pos(st)}, Ident: id}

		d.Type, _, i, err = s.parseType(ctx, e)
		if err != nil {
			return nil, i, err
		}

		if tk, _, e := s.next(ctx, i); tk == Punct("=") {
			d.Init, i, err = s.parseExpr(ctx, e, 0)
			if err != nil {
				return nil, i, errors.Wrap(err, "init %v", name)
			}
		}

		x = d
	case Punct(":="):
		d := &ast.VarDecl{Base: ast.Base{Pos: s.Pos(st)}, Ident: id}

		d.Init, i, err = s.parseExpr(ctx, e, 0)
		if err != nil {
			return nil, i, errors.Wrap(err, "init %v", name)
		}

		x = d
	case Punct("="):
		a := &ast.Assign{Base: ast.Base{Pos: s.Pos(st)}, Ident: id}

		a.Expr, i, err = s.parseExpr(ctx, e, 0)
		if err != nil {
			return nil, i, errors.Wrap(err, "assign %v", name)
		}

		x = a
	case Punct("("):
		var call ast.Expr
		call, i, err = s.parseFuncall(ctx, st, id, e)
		if err != nil {
			return nil, i, err
		}

		x = &ast.ExprStmt{Base: ast.Base{Pos: s.Pos(st)}, Expr: call}
	default:
		return nil, tst, NewUnexpected(tst, tk, Punct(":"), Punct(":="), Punct("="), Punct("("))
	}

	i, err = s.expect(ctx, i, Punct(";"))
	if err != nil {
		return nil, i, err
	}

	return x, i, nil
}

// parseExpr is precedence climbing over binary operators.
func (s *State) parseExpr(ctx context.Context, st int, prec int) (x ast.Expr, i int, err error) {
	x, i, err = s.parseUnary(ctx, st)
	if err != nil {
		return nil, i, err
	}

	for {
		tk, tst, e := s.next(ctx, i)

		p, ok := tk.(Punct)
		if !ok {
			return x, i, nil
		}

		op, oprec := binaryOp(p)
		if op == ast.OpNone || oprec <= prec {
			return x, i, nil
		}

		var r ast.Expr
		r, i, err = s.parseExpr(ctx, e, oprec)
		if err != nil {
			return nil, i, errors.Wrap(err, "%v rhs", op)
		}

		x = &ast.Operator{
			Base:   ast.Base{Pos: s.Pos(tst)},
			Op:     op,
			Binary: true,
			Left:   x,
			Right:  r,
		}
	}
}

func (s *State) parseUnary(ctx context.Context, st int) (x ast.Expr, i int, err error) {
	tk, tst, i := s.next(ctx, st)

	if tk != Punct("-") {
		return s.parsePrimary(ctx, st)
	}

	x, i, err = s.parseUnary(ctx, i)
	if err != nil {
		return nil, i, err
	}

	switch l := x.(type) {
	case *ast.IntLiteral:
		l.Neg = !l.Neg
		l.Pos = s.Pos(tst)

		return l, i, nil
	case *ast.FloatLiteral:
		l.Value = -l.Value
		l.Pos = s.Pos(tst)

		return l, i, nil
	case *ast.DoubleLiteral:
		l.Value = -l.Value
		l.Pos = s.Pos(tst)

		return l, i, nil
	}

	return &ast.Operator{
		Base:  ast.Base{Pos: s.Pos(tst)},
		Op:    ast.OpNeg,
		Right: x,
	}, i, nil
}

func (s *State) parsePrimary(ctx context.Context, st int) (x ast.Expr, i int, err error) {
	tk, tst, i := s.next(ctx, st)
	base := ast.Base{Pos: s.Pos(tst)}

	switch tk := tk.(type) {
	case Number:
		x, err = s.parseNumber(base, tk)
		if err != nil {
			return nil, tst, err
		}

		return x, i, nil
	case String:
		return &ast.StringLiteral{Base: base, Value: string(tk)}, i, nil
	case Char:
		return &ast.CharLiteral{Base: base, Value: rune(tk)}, i, nil
	case Ident:
		id := &ast.Ident{Base: base, Name: string(tk)}

		if tk, _, e := s.next(ctx, i); tk == Punct("(") {
			return s.parseFuncall(ctx, tst, id, e)
		}

		return id, i, nil
	case Punct:
		if tk != "(" {
			break
		}

		x, i, err = s.parseExpr(ctx, i, 0)
		if err != nil {
			return nil, i, err
		}

		i, err = s.expect(ctx, i, Punct(")"))
		if err != nil {
			return nil, i, err
		}

		return x, i, nil
	}

	return nil, tst, NewUnexpected(tst, tk, Number(""), Ident(""), Punct("("))
}

func (s *State) parseFuncall(ctx context.Context, st int, id *ast.Ident, i int) (x ast.Expr, _ int, err error) {
	call := &ast.Funcall{
		Base:  ast.Base{Pos: s.Pos(st)},
		Ident: id,
		Args:  []ast.Expr{},
	}

	for {
		tk, tst, e := s.next(ctx, i)
		if tk == Punct(")") {
			return call, e, nil
		}

		if len(call.Args) != 0 {
			if tk != Punct(",") {
				return nil, tst, NewUnexpected(tst, tk, Punct(","), Punct(")"))
			}

			i = e
		}

		var a ast.Expr
		a, i, err = s.parseExpr(ctx, i, 0)
		if err != nil {
			return nil, i, errors.Wrap(err, "arg %d", len(call.Args))
		}

		call.Args = append(call.Args, a)
	}
}

func (s *State) parseNumber(base ast.Base, n Number) (ast.Expr, error) {
	text := string(n)
	hex := strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X")

	switch {
	case hex:
	case strings.HasSuffix(text, "f") || strings.HasSuffix(text, "F"):
		v, err := strconv.ParseFloat(text[:len(text)-1], 32)
		if err != nil {
			return nil, errors.Wrap(err, "float literal")
		}

		return &ast.FloatLiteral{Base: base, Value: float32(v)}, nil
	case strings.HasSuffix(text, "d") || strings.HasSuffix(text, "D"):
		text = text[:len(text)-1]
		fallthrough
	case strings.ContainsAny(text, ".eE"):
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, errors.Wrap(err, "double literal")
		}

		return &ast.DoubleLiteral{Base: base, Value: v}, nil
	}

	v, err := strconv.ParseUint(text, 0, 64)
	if err != nil {
		return nil, errors.Wrap(err, "int literal")
	}

	return &ast.IntLiteral{Base: base, Value: v}, nil
}

func (s *State) expect(ctx context.Context, st int, want Token) (i int, err error) {
	tk, tst, i := s.next(ctx, st)
	if tk != want {
		return tst, NewUnexpected(tst, tk, want)
	}

	return i, nil
}

func (s *State) expectIdent(ctx context.Context, st int) (name Ident, i int, err error) {
	name, _, i, err = s.expectIdentPos(ctx, st)
	return
}

func (s *State) expectIdentPos(ctx context.Context, st int) (name Ident, tst, i int, err error) {
	tk, tst, i := s.next(ctx, st)

	name, ok := tk.(Ident)
	if !ok {
		return "", tst, tst, NewUnexpected(tst, tk, Ident(""))
	}

	return name, tst, i, nil
}

func binaryOp(p Punct) (ast.Op, int) {
	switch p {
	case "<":
		return ast.OpLt, 5
	case ">":
		return ast.OpGt, 5
	case "<=":
		return ast.OpLe, 5
	case ">=":
		return ast.OpGe, 5
	case "==":
		return ast.OpEq, 5
	case "!=":
		return ast.OpNe, 5
	case "+":
		return ast.OpAdd, 10
	case "-":
		return ast.OpSub, 10
	case "*":
		return ast.OpMul, 20
	case "/":
		return ast.OpDiv, 20
	case "%":
		return ast.OpMod, 20
	}

	return ast.OpNone, 0
}

// next returns the token starting at or after st,
// tst is where the token starts and i is where it ends.
func (s *State) next(ctx context.Context, st int) (tk Token, tst int, i int) {
	if tr := tlog.SpanFromContext(ctx); tr.If("next_token") {
		defer func(st int) {
			tr.Printw("next token", "st", st, "tk", tk, "tst", tst, "i", i, "from", loc.Caller(1))
		}(st)
	}

	st = skipSpaces(s.b, st)
	i = st

	if i == len(s.b) {
		return EOF{}, st, i
	}

	c := s.b[i]

	if i+1 < len(s.b) {
		switch two := string(s.b[i : i+2]); two {
		case "::", ":=", "->", "<=", ">=", "==", "!=":
			return Punct(two), st, i + 2
		}
	}

	switch c {
	case '{', '}', '(', ')', ':', ';', ',', '=', '+', '-', '*', '/', '%', '<', '>':
		return Punct(s.b[i : i+1]), st, i + 1
	case '"':
		e := skipQuoted(s.b, i, '"')
		v, err := strconv.Unquote(string(s.b[i:e]))
		if err != nil {
			return Punct(s.b[i:e]), st, e
		}

		return String(v), st, e
	case '\'':
		e := skipQuoted(s.b, i, '\'')
		if e-i < 3 || s.b[e-1] != '\'' {
			return Punct(s.b[i:e]), st, e
		}

		v, _, _, err := strconv.UnquoteChar(string(s.b[i+1:e-1]), '\'')
		if err != nil {
			return Punct(s.b[i:e]), st, e
		}

		return Char(v), st, e
	}

	switch {
	case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_':
		e := skipIdent(s.b, i)

		switch string(s.b[i:e]) {
		case "return", "struct", "if", "else":
			return Keyword(s.b[i:e]), st, e
		}

		return Ident(s.b[i:e]), st, e
	case c >= '0' && c <= '9':
		e := skipNum(s.b, i)
		return Number(s.b[i:e]), st, e
	default:
		return Punct(s.b[i : i+1]), st, i + 1
	}
}

func NewUnexpected(pos int, got Token, want ...Token) error {
	return UnexpectedError{
		Token: got,
		Want:  want,
		Pos:   pos,
	}
}

func (e UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected token: %s, want: %v", tokenString(e.Token), e.wantString())
}

func (e UnexpectedError) wantString() string {
	l := make([]string, len(e.Want))

	for i := range e.Want {
		l[i] = tokenString(e.Want[i])
	}

	return strings.Join(l, " or ")
}

func tokenString(tk Token) string {
	switch tk := tk.(type) {
	case EOF:
		return "end of file"
	case Punct:
		return fmt.Sprintf("'%s'", string(tk))
	case Keyword:
		return string(tk)
	case Ident:
		if tk == "" {
			return "identifier"
		}

		return fmt.Sprintf("identifier %s", string(tk))
	case Number:
		if tk == "" {
			return "number"
		}

		return string(tk)
	case String:
		return strconv.Quote(string(tk))
	case Char:
		return strconv.QuoteRune(rune(tk))
	default:
		return fmt.Sprintf("%v", tk)
	}
}

func skipNum(b []byte, i int) int {
	for i < len(b) && (b[i] >= '0' && b[i] <= '9' || b[i] >= 'a' && b[i] <= 'z' || b[i] >= 'A' && b[i] <= 'Z' || b[i] == '.' || b[i] == '_') {
		i++
	}

	return i
}

func skipIdent(b []byte, i int) int {
	for i < len(b) && (b[i] >= 'a' && b[i] <= 'z' || b[i] >= 'A' && b[i] <= 'Z' || b[i] >= '0' && b[i] <= '9' || b[i] == '_') {
		i++
	}

	return i
}

func skipQuoted(b []byte, i int, q byte) int {
	for i++; i < len(b) && b[i] != q && b[i] != '\n'; i++ {
		if b[i] == '\\' {
			i++
		}
	}

	if i < len(b) && b[i] == q {
		i++
	}

	if i > len(b) {
		i = len(b)
	}

	return i
}

// skipSpaces skips whitespace and line comments.
func skipSpaces(b []byte, i int) int {
	for i < len(b) {
		switch {
		case b[i] == ' ' || b[i] == '\t' || b[i] == '\r' || b[i] == '\n':
			i++
		case b[i] == '/' && i+1 < len(b) && b[i+1] == '/':
			for i < len(b) && b[i] != '\n' {
				i++
			}
		default:
			return i
		}
	}

	return i
}
