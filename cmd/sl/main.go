package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/slvm/compiler"
	"github.com/slowlang/slvm/compiler/asm"
	"github.com/slowlang/slvm/compiler/bytecode"
	"github.com/slowlang/slvm/compiler/diag"
	"github.com/slowlang/slvm/compiler/format"
	"github.com/slowlang/slvm/config"
)

func main() {
	parseCmd := &cli.Command{
		Name:        "parse",
		Description: "parse, check and print source files back",
		Action:      parseAct,
		Args:        cli.Args{},
	}

	compileCmd := &cli.Command{
		Name:        "compile",
		Description: "compile source file into code unit",
		Action:      compileAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("output,o", "", "output file (default: source name with .cu extension)"),
		},
	}

	runCmd := &cli.Command{
		Name:        "run",
		Description: "run compiled code unit",
		Action:      runAct,
		Args:        cli.Args{},
	}

	execCmd := &cli.Command{
		Name:        "exec",
		Description: "compile and run source file",
		Action:      execAct,
		Args:        cli.Args{},
	}

	disasmCmd := &cli.Command{
		Name:        "disasm",
		Description: "print code unit listing, source files are compiled first",
		Action:      disasmAct,
		Args:        cli.Args{},
	}

	app := &cli.Command{
		Name:        "sl",
		Description: "sl is a compiler and virtual machine for sl source code",
		Before:      before,
		Flags: []*cli.Flag{
			cli.NewFlag("config", "", "config file (default: "+config.FileName+" in current or parent dirs)"),
			cli.NewFlag("verbosity,v", "", "logger verbosity topics (vm_trace, dump_funcs, ...)"),
			cli.HelpFlag,
		},
		Commands: []*cli.Command{
			parseCmd,
			compileCmd,
			runCmd,
			execCmd,
			disasmCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func before(c *cli.Command) error {
	tlog.SetVerbosity(c.String("verbosity"))

	return nil
}

func setup(c *cli.Command) (context.Context, config.Config, error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	var cfg config.Config
	var err error

	if p := c.String("config"); p != "" {
		cfg, err = config.Load(p)
	} else {
		cfg, err = config.FindAndLoad(".")
	}

	if err != nil {
		return ctx, cfg, errors.Wrap(err, "load config")
	}

	return ctx, cfg, nil
}

func parseAct(c *cli.Command) (err error) {
	ctx, cfg, err := setup(c)
	if err != nil {
		return err
	}

	comp := compiler.New(cfg.Compiler)

	for _, a := range c.Args {
		text, err := os.ReadFile(a)
		if err != nil {
			return errors.Wrap(err, "read file")
		}

		f, _, err := comp.Parse(ctx, a, text)
		if err != nil {
			return report(a, err)
		}

		b, err := format.Format(ctx, nil, f)
		if err != nil {
			return errors.Wrap(err, "format %v", a)
		}

		_, _ = os.Stdout.Write(b)
	}

	return nil
}

func compileAct(c *cli.Command) (err error) {
	ctx, cfg, err := setup(c)
	if err != nil {
		return err
	}

	out := c.String("output")
	if out != "" && len(c.Args) > 1 {
		return errors.New("--output with %d input files", len(c.Args))
	}

	comp := compiler.New(cfg.Compiler)

	for _, a := range c.Args {
		u, err := comp.CompileFile(ctx, a)
		if err != nil {
			return report(a, err)
		}

		name := out
		if name == "" {
			name = strings.TrimSuffix(a, filepath.Ext(a)) + ".cu"
		}

		err = os.WriteFile(name, u.Bytes(), 0o644)
		if err != nil {
			return errors.Wrap(err, "write %v", name)
		}

		tlog.Printw("compiled", "src", a, "out", name, "size", u.Len())
	}

	return nil
}

func runAct(c *cli.Command) (err error) {
	ctx, cfg, err := setup(c)
	if err != nil {
		return err
	}

	for _, a := range c.Args {
		code, err := os.ReadFile(a)
		if err != nil {
			return errors.Wrap(err, "read file")
		}

		res, err := compiler.Run(ctx, cfg.VM, code)
		if err != nil {
			return errors.Wrap(err, "run %v", a)
		}

		fmt.Printf("%d\n", res)
	}

	return nil
}

func execAct(c *cli.Command) (err error) {
	ctx, cfg, err := setup(c)
	if err != nil {
		return err
	}

	comp := compiler.New(cfg.Compiler)

	for _, a := range c.Args {
		u, err := comp.CompileFile(ctx, a)
		if err != nil {
			return report(a, err)
		}

		res, err := compiler.Run(ctx, cfg.VM, u.Bytes())
		if err != nil {
			return errors.Wrap(err, "run %v", a)
		}

		fmt.Printf("%d\n", res)
	}

	return nil
}

func disasmAct(c *cli.Command) (err error) {
	ctx, cfg, err := setup(c)
	if err != nil {
		return err
	}

	comp := compiler.New(cfg.Compiler)

	for _, a := range c.Args {
		code, err := os.ReadFile(a)
		if err != nil {
			return errors.Wrap(err, "read file")
		}

		if !bytes.HasPrefix(code, bytecode.Magic[:]) {
			u, err := comp.Compile(ctx, a, code)
			if err != nil {
				return report(a, err)
			}

			code = u.Bytes()
		}

		text, err := asm.Disassemble(code)
		if err != nil {
			return errors.Wrap(err, "disassemble %v", a)
		}

		fmt.Printf("; %s\n%s", a, text)
	}

	return nil
}

// report prints diagnostics one per line.
func report(name string, err error) error {
	var l diag.List
	if !errors.As(err, &l) {
		return errors.Wrap(err, "compile %v", name)
	}

	for _, e := range l {
		fmt.Fprintf(os.Stderr, "%s:%s\n", name, e)
	}

	return errors.New("%v: %d errors", name, len(l))
}
