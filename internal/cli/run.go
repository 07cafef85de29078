// Package cli implements the command-line interface for extsort.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/extsort/internal/config"
)

// Error variables for command handling.
var (
	ErrFileRequired   = errors.New("file argument is required")
	ErrTooManyArgs    = errors.New("too many arguments")
	ErrDigestMismatch = errors.New("output does not hold the same records as the input")
	ErrUnsorted       = errors.New("file is not sorted")
	ErrInvalidFlag    = errors.New("invalid flag value")
)

// loggers whose level --log-level controls.
var subsystems = []string{"extsort", "blockfile"}

// Run is the main entry point. Returns exit code.
//
// A signal on sigCh cancels the running command; sigCh may be nil.
func Run(_ io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globalFlags := flag.NewFlagSet("extsort", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.SetOutput(&strings.Builder{})

	workDir := globalFlags.StringP("cwd", "C", "", "Run as if started in `dir`")
	configPath := globalFlags.StringP("config", "c", "", "Use specified config `file`")
	logLevel := globalFlags.String("log-level", "", "Log `level` (debug, info, warn, error)")
	help := globalFlags.BoolP("help", "h", false, "Show help")

	if len(args) > 0 {
		args = args[1:]
	}

	if err := globalFlags.Parse(args); err != nil {
		fprintln(errOut, "error:", err)
		fprintln(errOut)
		printUsage(errOut, globalFlags, nil)

		return 1
	}

	if *logLevel != "" {
		for _, name := range subsystems {
			if err := logging.SetLogLevel(name, *logLevel); err != nil {
				fprintln(errOut, "error: --log-level:", err)

				return 1
			}
		}
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: *workDir,
		ConfigPath:      *configPath,
		Env:             env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	commands := []*Command{
		SortCmd(&cfg),
		PrintCmd(&cfg),
		GenCmd(&cfg),
		VerifyCmd(&cfg),
		RunsCmd(&cfg),
		BackupCmd(&cfg),
		RestoreCmd(&cfg),
		PrintConfigCmd(&cfg),
	}

	rest := globalFlags.Args()

	if *help || len(rest) == 0 {
		printUsage(out, globalFlags, commands)

		return 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	o := NewIO(out, errOut)

	for _, cmd := range commands {
		if cmd.Name() == rest[0] {
			return cmd.Run(ctx, o, rest[1:])
		}
	}

	// "extsort <file>" is shorthand for "extsort sort <file>".
	return commands[0].Run(ctx, o, rest)
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, globalFlags *flag.FlagSet, commands []*Command) {
	fprintln(w, `extsort - external sort for binary record files

Usage: extsort [global flags] <command> [args]
       extsort [global flags] <file>    (same as "sort <file>")

Global flags:`)

	var buf strings.Builder

	globalFlags.SetOutput(&buf)
	globalFlags.PrintDefaults()
	globalFlags.SetOutput(&strings.Builder{})

	_, _ = io.WriteString(w, buf.String())

	if len(commands) == 0 {
		return
	}

	printCommands(func(a ...any) { fprintln(w, a...) }, commands)
}
