// Command stepflow inspects and runs workflow definitions from the shell.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/goliatone/go-logger/glog"

	stepflow "github.com/goliatone/go-stepflow"
)

type cli struct {
	Config   kong.ConfigFlag `help:"YAML or JSON file with default flag values." placeholder:"FILE"`
	LogLevel string          `help:"Log level." default:"warn" enum:"trace,debug,info,warn,error"`
	LogJSON  bool            `help:"Log as JSON." name:"log-json"`

	Validate validateCmd `cmd:"" help:"Report validation diagnostics for a definition."`
	Layout   layoutCmd   `cmd:"" help:"Print the canvas graph of a definition."`
	Deps     depsCmd     `cmd:"" help:"Print which fields and guards read which values."`
	Eval     evalCmd     `cmd:"" help:"Evaluate an expression against data."`
	Run      runCmd      `cmd:"" help:"Step through a definition interactively."`
}

// environment is bound into every command's Run method.
type environment struct {
	in     io.Reader
	out    io.Writer
	logger stepflow.Logger
}

func newParser(c *cli, out, errOut io.Writer, exit func(int)) (*kong.Kong, error) {
	return kong.New(c,
		kong.Name("stepflow"),
		kong.Description("Validate, lay out and run step workflows."),
		kong.UsageOnError(),
		kong.Configuration(yamlConfig, "~/.stepflow.yaml", ".stepflow.yaml"),
		kong.Writers(out, errOut),
		kong.Exit(exit),
	)
}

func newLogger(level string, asJSON bool, out io.Writer) stepflow.Logger {
	if asJSON {
		return stepflow.NewGlogLogger(glog.NewLogger(
			glog.WithWriter(out),
			glog.WithLoggerTypeJSON(),
			glog.WithLevel(level),
		))
	}
	return stepflow.NewGlogLogger(glog.NewLogger(
		glog.WithWriter(out),
		glog.WithLevel(level),
	))
}

func run(args []string, in io.Reader, out, errOut io.Writer) error {
	var c cli
	parser, err := newParser(&c, out, errOut, func(code int) { os.Exit(code) })
	if err != nil {
		return err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	env := &environment{in: in, out: out, logger: newLogger(c.LogLevel, c.LogJSON, errOut)}
	return ctx.Run(env)
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		code := stepflow.ErrorCode(err)
		if code == "" {
			code = "error"
		}
		fmt.Fprintf(os.Stderr, "stepflow: %s: %v\n", code, err)
		os.Exit(1)
	}
}
