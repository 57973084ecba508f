package back

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/slowlang/slvm/compiler/asm"
	"github.com/slowlang/slvm/compiler/ast"
	"github.com/slowlang/slvm/compiler/bytecode"
	"github.com/slowlang/slvm/compiler/diag"
	"github.com/slowlang/slvm/compiler/front"
	"github.com/slowlang/slvm/compiler/tp"
	"github.com/slowlang/slvm/vm"
)

func parse(t *testing.T, text string) (*ast.File, *Compiler, *diag.Stream) {
	t.Helper()

	types := tp.New()
	errs := diag.New()

	f, err := front.Parse(context.Background(), "test.sl", []byte(text), types, errs)
	require.NoError(t, err)
	require.Zero(t, errs.Len(), "%v", errs)

	return f, New(types, errs), errs
}

func generate(t *testing.T, text string) *bytecode.Unit {
	t.Helper()

	f, c, errs := parse(t, text)

	u, err := c.Generate(context.Background(), f)
	require.NoError(t, err, "%v", errs)

	return u
}

func run(t *testing.T, text string) int64 {
	t.Helper()

	u := generate(t, text)

	v := vm.New(vm.Config{Registers: 1 << 12})

	res, err := v.Run(context.Background(), u.Bytes())
	require.NoError(t, err)

	assert.Equal(t, 0, v.Depth())
	assert.Equal(t, 0, v.StackLen())

	return res
}

func TestGenerateCall(t *testing.T) {
	const text = `
add :: (a: s32, b: s32) -> s32 {
	return a + b;
}

main :: () -> s32 {
	return add(10, 5);
}
`

	u := generate(t, text)

	h, err := bytecode.ReadHeader(u.Bytes())
	require.NoError(t, err)
	require.Len(t, h.Funcs, 2)
	assert.Len(t, h.Labels, 0)

	var got []asm.Instr

	for pc := int(h.Funcs[0]); pc < int(h.Funcs[1]); {
		var x asm.Instr

		x, pc, err = asm.Decode(u.Bytes(), pc)
		require.NoError(t, err)

		got = append(got, x)
	}

	assert.Equal(t, []asm.Instr{
		asm.Func{RegCount: 2, ArgCount: 0},
		asm.Set{Type: bytecode.S32, Out: [1]asm.Reg{0}, Imm: 10},
		asm.Set{Type: bytecode.S32, Out: [1]asm.Reg{1}, Imm: 5},
		asm.Call{Func: 1},
		asm.Ret{In: [1]asm.Reg{0}},
	}, got)

	assert.Equal(t, int64(15), run(t, text))
}

func TestLayout(t *testing.T) {
	f, c, errs := parse(t, `
add :: (a: s32, b: s32) -> s32 {
	return a + b;
}

fact :: (n: s64) -> s64 {
	if n <= 1 {
		return 1;
	}

	return n * fact(n - 1);
}

main :: () -> s32 {
	x := add(add(1, 2), add(3, 4));
	return x;
}
`)

	p := c.layout(context.Background(), f)
	require.Zero(t, errs.Len(), "%v", errs)
	require.Len(t, p.order, 3)

	main := p.funcs["main"]
	assert.Equal(t, 0, main.index)
	assert.Equal(t, 1, main.locals)
	assert.Equal(t, 2, main.temps)
	assert.Equal(t, 2, main.staging)
	assert.Equal(t, 5, main.regs)

	add := p.funcs["add"]
	assert.Equal(t, 1, add.index)
	assert.Equal(t, 2, add.args)
	assert.Equal(t, 3, add.regs)
	assert.Equal(t, variable{reg: 1, t: bytecode.S32, typ: tp.S32}, add.vars["b"])

	fact := p.funcs["fact"]
	assert.Equal(t, 2, fact.index)
	assert.Equal(t, 4, fact.temps)
	assert.Equal(t, 1, fact.staging)
	assert.Equal(t, 6, fact.regs)
	assert.Equal(t, 3, fact.labels)
	assert.Equal(t, 0, fact.labelBase)

	assert.Equal(t, 3, p.units)
}

func TestPrograms(t *testing.T) {
	for _, tc := range []struct {
		name string
		text string
		exp  int64
	}{
		{"branch", `
main :: () -> s32 {
	a: s32 = 10;
	b := 11;

	if a < b {
		return 0;
	} else {
		return 1;
	}
}
`, 0},
		{"branch_else", `
main :: () -> s32 {
	a := 12;

	if a <= 11 {
		return 0;
	} else if a == 12 {
		return 2;
	}

	return 1;
}
`, 2},
		{"nested_calls", `
add :: (a: s32, b: s32) -> s32 {
	return a + b;
}

main :: () -> s32 {
	return add(add(1, 2), add(3, 4));
}
`, 10},
		{"locals", `
main :: () -> s32 {
	a := 7;
	b: s32 = 3;
	c: s32;

	c = a * b - -a;
	c = c % 5;

	return c;
}
`, 3},
		{"negative", `
main :: () -> s32 {
	return -5;
}
`, -5},
		{"double", `
half :: (x: double) -> double {
	return x / 2.0;
}

main :: () -> s32 {
	d := half(5.0);

	if d > 2.0 {
		return 1;
	}

	return 0;
}
`, 1},
		{"recursion", `
fact :: (n: s64) -> s64 {
	if n <= 1 {
		return 1;
	}

	return n * fact(n - 1);
}

main :: () -> s64 {
	return fact(10);
}
`, 3628800},
		{"void_call", `
nop :: () -> void {
	return;
}

main :: () -> s32 {
	nop();
	return 4;
}
`, 4},
		{"four_args", `
pick :: (a: u8, b: u16, c: u32, d: u64) -> u64 {
	return d - c;
}

main :: () -> u64 {
	return pick(1, 2, 3, 10);
}
`, 7},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.exp, run(t, tc.text))
		})
	}
}

func TestGenerateErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		text string
		msg  string
	}{
		{"undeclared_identifier", `
main :: () -> s32 {
	return a;
}
`, "3:9: undeclared identifier (expected declared variable, got a)"},
		{"undeclared_function", `
main :: () -> s32 {
	return f(1);
}
`, "3:9: undeclared function (expected declared function, got f)"},
		{"no_main", `
f :: () -> s32 {
	return 1;
}
`, `function "main" is not defined`},
		{"duplicate_function", `
main :: () -> s32 {
	return 1;
}

main :: () -> s32 {
	return 2;
}
`, `6:1: function "main" is already defined`},
		{"duplicate_variable", `
main :: () -> s32 {
	a := 1;
	a := 2;
	return a;
}
`, `4:2: variable "a" is already defined`},
		{"argument_count", `
f :: (a: s32) -> s32 {
	return a;
}

main :: () -> s32 {
	return f(1, 2);
}
`, `7:9: function "f" takes 1 arguments, got 2`},
		{"record_variable", `
struct Point {
	x: s32;
	y: s32;
}

main :: () -> s32 {
	p: Point;
	return 0;
}
`, "8:2: type does not fit a register (expected primitive type, got Point)"},
		{"string_literal", `
main :: () -> s32 {
	s := "abc";
	return 0;
}
`, `3:7: unsupported literal (expected number or char, got string)`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f, c, errs := parse(t, tc.text)

			u, err := c.Generate(context.Background(), f)
			assert.Nil(t, u)
			assert.True(t, errors.Is(err, ErrGenerate), "%v", err)

			require.NotZero(t, errs.Len())
			assert.Equal(t, tc.msg, errs.Entries()[0].String())
		})
	}
}
