package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/casualjim/polyscript"
	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/k0kubun/pp/v3"
)

const helpText = `# polyscript

Lines are evaluated by the active engine. Variables survive engine switches.

| command | effect |
| --- | --- |
| ` + "`:engine`" + ` | show the active engine |
| ` + "`:engine <kind>`" + ` | switch to another engine |
| ` + "`:engines`" + ` | list registered engines |
| ` + "`:get <name>`" + ` | show a namespace variable |
| ` + "`:capture <names> <source>`" + ` | run source and print calls to the comma separated names |
| ` + "`:snapshot`" + ` | show executor diagnostics |
| ` + "`:help`" + ` | this text |
| ` + "`:quit`" + ` | leave |

Ctrl-C interrupts the running evaluation.
`

var glam *glamour.TermRenderer

func init() {
	var err error
	glam, err = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
	)
	if err != nil {
		panic(err)
	}
}

type repl struct {
	exec *polyscript.Executor
	in   io.Reader
	out  io.Writer
	pp   *pp.PrettyPrinter
}

func newREPL(exec *polyscript.Executor, in io.Reader, out io.Writer) *repl {
	printer := pp.New()
	printer.SetOutput(out)
	printer.SetColoringEnabled(!color.NoColor)
	return &repl{exec: exec, in: in, out: out, pp: printer}
}

// Run reads lines until the input ends, ctx is done or the user quits.
func (r *repl) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(r.in)
	scanner.Split(bufio.ScanLines)

	// the prompt names the engine, so let activation finish first
	if _, err := r.exec.Execute(func(context.Context) error { return nil }).Await(ctx); err != nil {
		return err
	}

	for {
		fmt.Fprintf(r.out, "%s> ", color.CyanString(r.exec.Snapshot().Engine))
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "exit" || line == ":quit" || line == ":q":
			return nil
		case strings.HasPrefix(line, ":"):
			r.command(ctx, line)
		default:
			r.eval(ctx, line)
		}
	}
}

func (r *repl) command(ctx context.Context, line string) {
	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "help":
		rendered, err := glam.Render(helpText)
		if err != nil {
			r.fail(err)
			return
		}
		fmt.Fprint(r.out, rendered)
	case "engine":
		if rest == "" {
			fmt.Fprintln(r.out, r.exec.Snapshot().Engine)
			return
		}
		if _, err := r.exec.SetEngine(rest).Await(ctx); err != nil {
			r.fail(err)
		}
	case "engines":
		fmt.Fprintln(r.out, strings.Join(r.exec.Engines(), " "))
	case "get":
		v, err := r.exec.GetVariable(rest).Await(ctx)
		if err != nil {
			r.fail(err)
			return
		}
		fmt.Fprintln(r.out, v.String())
	case "capture":
		names, src, ok := strings.Cut(rest, " ")
		if !ok {
			r.fail(fmt.Errorf("usage: :capture <names> <source>"))
			return
		}
		// failures reach the stderr sink
		calls, err := r.exec.EvalWithCallbackFunctions(src, strings.Split(names, ","), r.stdout(), r.stderr()).Await(ctx)
		if err != nil || len(calls) == 0 {
			return
		}
		data, err := json.MarshalIndent(calls, "", "  ")
		if err != nil {
			r.fail(err)
			return
		}
		fmt.Fprintln(r.out, string(data))
	case "snapshot":
		r.pp.Println(r.exec.Snapshot())
	default:
		r.fail(fmt.Errorf("unknown command :%s, try :help", name))
	}
}

func (r *repl) eval(ctx context.Context, src string) {
	v, err := r.exec.Eval(src, r.stdout(), r.stderr()).Await(ctx)
	if err != nil {
		return
	}
	if !v.IsNil() {
		fmt.Fprintln(r.out, color.GreenString(v.String()))
	}
}

func (r *repl) stdout() polyscript.Sink {
	return func(line string) { fmt.Fprintln(r.out, line) }
}

func (r *repl) stderr() polyscript.Sink {
	return func(line string) { fmt.Fprintln(r.out, color.RedString(line)) }
}

func (r *repl) fail(err error) {
	fmt.Fprintln(r.out, color.RedString("error: %v", err))
}
