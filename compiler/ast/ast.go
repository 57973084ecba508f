package ast

import (
	"github.com/slowlang/slvm/compiler/diag"
	"github.com/slowlang/slvm/compiler/tp"
)

type (
	Node interface {
		Position() diag.Pos
	}

	Expr interface {
		Node
		TypeOf() *tp.TypeInfo
	}

	Stmt interface {
		Node
	}

	Base struct {
		Pos diag.Pos
	}

	// Typed is embedded by expressions, Type is set by the front end.
	Typed struct {
		Type *tp.TypeInfo
	}

	File struct {
		Name string

		Typedefs []*Typedef
		Funcs    []*Fundef
	}

	Ident struct {
		Base  `tlog:",embed"`
		Typed `tlog:",embed"`

		Name string
	}

	IntLiteral struct {
		Base  `tlog:",embed"`
		Typed `tlog:",embed"`

		Value uint64
		Neg   bool
	}

	FloatLiteral struct {
		Base  `tlog:",embed"`
		Typed `tlog:",embed"`

		Value float32
	}

	DoubleLiteral struct {
		Base  `tlog:",embed"`
		Typed `tlog:",embed"`

		Value float64
	}

	StringLiteral struct {
		Base  `tlog:",embed"`
		Typed `tlog:",embed"`

		Value string
	}

	CharLiteral struct {
		Base  `tlog:",embed"`
		Typed `tlog:",embed"`

		Value rune
	}

	Operator struct {
		Base  `tlog:",embed"`
		Typed `tlog:",embed"`

		Op     Op
		Binary bool

		Left  Expr // nil for unary
		Right Expr
	}

	Funcall struct {
		Base  `tlog:",embed"`
		Typed `tlog:",embed"`

		Ident *Ident
		Args  []Expr
	}

	VarDecl struct {
		Base `tlog:",embed"`

		Ident *Ident
		Type  *tp.TypeInfo
		Init  Expr // optional
	}

	Assign struct {
		Base `tlog:",embed"`

		Ident *Ident
		Expr  Expr
	}

	Return struct {
		Base `tlog:",embed"`

		Expr Expr // optional
	}

	// ExprStmt evaluates a call for its effect.
	ExprStmt struct {
		Base `tlog:",embed"`

		Expr Expr
	}

	If struct {
		Base `tlog:",embed"`

		Cond *Operator // comparison
		Then []Stmt
		Else []Stmt
	}

	Typedef struct {
		Base `tlog:",embed"`

		Type *tp.TypeInfo
	}

	Fundef struct {
		Base `tlog:",embed"`

		Ident *Ident
		Args  []*VarDecl
		Ret   *tp.TypeInfo
		Body  []Stmt
	}

	Op int
)

const (
	OpNone Op = iota

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg

	OpLt
	OpGt
	OpLe
	OpGe
	OpEq
	OpNe
)

var opStrings = [...]string{
	OpNone: "?",
	OpAdd:  "+",
	OpSub:  "-",
	OpMul:  "*",
	OpDiv:  "/",
	OpMod:  "%",
	OpNeg:  "-",
	OpLt:   "<",
	OpGt:   ">",
	OpLe:   "<=",
	OpGe:   ">=",
	OpEq:   "==",
	OpNe:   "!=",
}

func (b Base) Position() diag.Pos { return b.Pos }

func (t Typed) TypeOf() *tp.TypeInfo { return t.Type }

func (op Op) IsComparison() bool { return op >= OpLt && op <= OpNe }

func (op Op) String() string {
	if op >= 0 && int(op) < len(opStrings) {
		return opStrings[op]
	}

	return "?"
}

// Walk calls f for every statement in body, descending into if branches.
func Walk(body []Stmt, f func(Stmt)) {
	for _, s := range body {
		f(s)

		if s, ok := s.(*If); ok {
			Walk(s.Then, f)
			Walk(s.Else, f)
		}
	}
}
