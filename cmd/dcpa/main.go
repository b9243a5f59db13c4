package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/benbjohnson/dcpa/cfa"
)

// ErrUnsafe is returned by the verify command when an error location is
// reachable.
var ErrUnsafe = errors.New("error location reachable")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err == flag.ErrHelp {
		os.Exit(1)
	} else if err == ErrUnsafe {
		os.Exit(2)
	} else if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	var cmd string
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "", "-h", "--help", "help":
		usage()
		return flag.ErrHelp
	case "verify":
		return NewVerifyCommand().Run(ctx, args)
	case "dot":
		return NewDotCommand().Run(ctx, args)
	default:
		return fmt.Errorf(`dcpa %s: unknown command`, cmd)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `
Dcpa checks that the error locations of a program are unreachable.

Usage:

	dcpa <command> [arguments]

The commands are:

	verify      verify a program
	dot         export the block graph of a program
	help        this screen
`[1:])
}

// loadProgram reads a YAML program or translates function fn of a Go package.
func loadProgram(path, fn string) (*cfa.CFA, error) {
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		return cfa.LoadYAML(path)
	} else if fn == "" {
		return nil, fmt.Errorf("function required for package %s", path)
	}
	return cfa.LoadFunction(path, fn)
}
