package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/benbjohnson/dcpa/cfa"
	"github.com/benbjohnson/dcpa/config"
	"github.com/benbjohnson/dcpa/worker"
	"github.com/fatih/color"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// VerifyCommand represents a command for verifying a program.
type VerifyCommand struct {
	Stdout io.Writer
	Stderr io.Writer
}

// NewVerifyCommand returns a new instance of VerifyCommand.
func NewVerifyCommand() *VerifyCommand {
	return &VerifyCommand{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run executes the "verify" subcommand.
func (cmd *VerifyCommand) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("dcpa-verify", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file")
	verbose := fs.Bool("v", false, "verbose")
	fn := fs.String("func", "", "function to verify")
	format := fs.String("format", "", "log format")
	timeout := fs.Duration("timeout", 0, "")
	fs.SetOutput(cmd.Stderr)
	fs.Usage = cmd.usage
	if err := fs.Parse(args); err != nil {
		return err
	} else if fs.NArg() == 0 {
		return fmt.Errorf("program required")
	} else if fs.NArg() > 1 {
		return fmt.Errorf("too many programs specified")
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}
	if *format != "" {
		cfg.Logging.Format = *format
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	logger.SetOutput(cmd.Stderr)

	c, err := loadProgram(fs.Arg(0), *fn)
	if err != nil {
		return err
	}
	g, err := cfa.Decompose(c)
	if err != nil {
		return err
	}
	a, err := cfg.NewAnalysis(g, logger)
	if err != nil {
		return err
	}

	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	result, err := a.Run(ctx)
	if err != nil {
		return err
	}
	cmd.printResult(c.Function, result)

	if result.Verdict == worker.Unsafe {
		return ErrUnsafe
	}
	return nil
}

func (cmd *VerifyCommand) printResult(function string, result *worker.Result) {
	switch result.Verdict {
	case worker.Safe:
		color.New(color.FgGreen, color.Bold).Fprintf(cmd.Stdout, "SAFE")
	case worker.Unsafe:
		color.New(color.FgRed, color.Bold).Fprintf(cmd.Stdout, "UNSAFE")
	default:
		color.New(color.FgYellow, color.Bold).Fprintf(cmd.Stdout, "UNKNOWN")
	}
	fmt.Fprintf(cmd.Stdout, " %s\n", function)

	if result.Verdict == worker.Unsafe {
		fmt.Fprintf(cmd.Stdout, "trace: %s\n", strings.Join(result.Trace, " -> "))

		names := maps.Keys(result.Inputs)
		slices.Sort(names)
		for _, name := range names {
			v := result.Inputs[name]
			fmt.Fprintf(cmd.Stdout, "input: %s = %d (%#x)\n", name, v.Int(), v.Value)
		}
	}

	stats := result.Stats
	fmt.Fprintf(cmd.Stdout, "%d blocks, %d post-conditions, %d error conditions, %d abstractions (%d reused) in %s\n",
		stats.BlockN, stats.PostN, stats.ErrorN, stats.AbstractionN, stats.AbstractionCacheHitN, stats.Time.Round(time.Millisecond))
	if stats.DroppedErrorN > 0 {
		fmt.Fprintf(cmd.Stdout, "%d error conditions dropped, raise analysis.max-error-hops\n", stats.DroppedErrorN)
	}
}

func (cmd *VerifyCommand) usage() {
	fmt.Fprintln(cmd.Stderr, `
usage: dcpa verify [arguments] <program.yaml | package>

Arguments:

	-config path
	    Read settings from a YAML config file.

	-func name
	    Function to verify. Required for Go packages.

	-format format
	    Log format: text or json.

	-timeout duration
	    Give up after the given duration.

	-v
	    Enable verbose logging.
`[1:])
}
