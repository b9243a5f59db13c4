package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/benbjohnson/dcpa/cfa"
	"github.com/benbjohnson/dcpa/dot"
)

// DotCommand represents a command for exporting the block graph of a program.
type DotCommand struct {
	Stdout io.Writer
	Stderr io.Writer
}

// NewDotCommand returns a new instance of DotCommand.
func NewDotCommand() *DotCommand {
	return &DotCommand{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run executes the "dot" subcommand.
func (cmd *DotCommand) Run(ctx context.Context, args []string) (err error) {
	fs := flag.NewFlagSet("dcpa-dot", flag.ContinueOnError)
	fn := fs.String("func", "", "function to export")
	format := fs.String("format", "dot", "output format")
	output := fs.String("o", "", "output file")
	fs.SetOutput(cmd.Stderr)
	fs.Usage = cmd.usage
	if err := fs.Parse(args); err != nil {
		return err
	} else if fs.NArg() == 0 {
		return fmt.Errorf("program required")
	} else if fs.NArg() > 1 {
		return fmt.Errorf("too many programs specified")
	}

	c, err := loadProgram(fs.Arg(0), *fn)
	if err != nil {
		return err
	}
	g, err := cfa.Decompose(c)
	if err != nil {
		return err
	}

	w := cmd.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return err
		}
		defer func() {
			if e := f.Close(); err == nil {
				err = e
			}
		}()
		w = f
	}

	if *format == "dot" {
		return dot.Write(w, g)
	}
	return dot.Render(w, g, *format)
}

func (cmd *DotCommand) usage() {
	fmt.Fprintln(cmd.Stderr, `
usage: dcpa dot [arguments] <program.yaml | package>

Arguments:

	-format format
	    Output format: dot, svg or png. Defaults to dot.

	-func name
	    Function to export. Required for Go packages.

	-o path
	    Write to a file instead of stdout.
`[1:])
}
