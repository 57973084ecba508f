package compiler

import (
	"context"
	"os"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/slvm/compiler/ast"
	"github.com/slowlang/slvm/compiler/back"
	"github.com/slowlang/slvm/compiler/bytecode"
	"github.com/slowlang/slvm/compiler/diag"
	"github.com/slowlang/slvm/compiler/front"
	"github.com/slowlang/slvm/compiler/tp"
	"github.com/slowlang/slvm/config"
	"github.com/slowlang/slvm/vm"
)

type Compiler struct {
	BufferSize int
}

func New(cfg config.Compiler) *Compiler {
	return &Compiler{
		BufferSize: cfg.Buffer,
	}
}

func CompileFile(ctx context.Context, name string) (*bytecode.Unit, error) {
	return New(config.Default().Compiler).CompileFile(ctx, name)
}

func Compile(ctx context.Context, name string, text []byte) (*bytecode.Unit, error) {
	return New(config.Default().Compiler).Compile(ctx, name, text)
}

// Run executes a code unit on a fresh VM.
func Run(ctx context.Context, cfg vm.Config, code []byte) (int64, error) {
	return vm.New(cfg).Run(ctx, code)
}

func (c *Compiler) CompileFile(ctx context.Context, name string) (*bytecode.Unit, error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "size", len(text), "name", name)

	return c.Compile(ctx, name, text)
}

// Parse parses and annotates text.
// Diagnostics are returned as diag.List.
func (c *Compiler) Parse(ctx context.Context, name string, text []byte) (f *ast.File, types *tp.Registry, err error) {
	types = tp.New()
	errs := diag.New()

	f, err = c.parse(ctx, name, text, types, errs)
	if err != nil {
		return nil, nil, err
	}

	return f, types, nil
}

// Compile parses, checks and generates code.
// Each phase runs only if the previous one reported nothing.
func (c *Compiler) Compile(ctx context.Context, name string, text []byte) (u *bytecode.Unit, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile", "name", name)
	defer tr.Finish("err", &err)

	types := tp.New()
	errs := diag.New()

	f, err := c.parse(ctx, name, text, types, errs)
	if err != nil {
		return nil, err
	}

	g := back.New(types, errs)

	if c.BufferSize > 0 {
		g.BufferSize = c.BufferSize
	}

	u, err = g.Generate(ctx, f)
	if errs.Len() != 0 {
		return nil, errors.Wrap(errs.Err(), "generate")
	}
	if err != nil {
		return nil, errors.Wrap(err, "generate")
	}

	return u, nil
}

func (c *Compiler) parse(ctx context.Context, name string, text []byte, types *tp.Registry, errs *diag.Stream) (f *ast.File, err error) {
	f, err = front.Parse(ctx, name, text, types, errs)
	if errs.Len() != 0 {
		return nil, errors.Wrap(errs.Err(), "parse")
	}
	if err != nil {
		return nil, errors.Wrap(err, "parse")
	}

	front.Check(ctx, f, errs)

	if errs.Len() != 0 {
		return nil, errors.Wrap(errs.Err(), "check")
	}

	return f, nil
}
