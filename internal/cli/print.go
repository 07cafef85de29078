package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/extsort/internal/config"
	"github.com/calvinalkan/extsort/pkg/extsort"
)

// PrintCmd returns the print command.
func PrintCmd(cfg *config.Config) *Command {
	flagSet := flag.NewFlagSet("print", flag.ContinueOnError)
	addPrintFlags(flagSet, cfg)

	return &Command{
		Flags: flagSet,
		Usage: "print <file> [flags]",
		Args:  []string{"file"},
		Group: groupFiles,
		Short: "Print the first record of every block",
		Long: `Print "<id> <key>" for the first record of every 8 KiB block, which
samples a large sorted file. With --all every record is printed.`,
		Exec: func(_ context.Context, io *IO, args []string) error {
			return execPrint(io, cfg, flagSet, args)
		},
	}
}

func addPrintFlags(flagSet *flag.FlagSet, cfg *config.Config) {
	flagSet.Bool("all", cfg.PrintAll, "Print every record, not one per block")
	flagSet.Int("per-line", cfg.PerLine, "Records per output line")
}

func printOptions(flagSet *flag.FlagSet) (extsort.PrintOptions, error) {
	all, _ := flagSet.GetBool("all")
	perLine, _ := flagSet.GetInt("per-line")

	if perLine <= 0 {
		return extsort.PrintOptions{}, fmt.Errorf("%w: --per-line must be positive", ErrInvalidFlag)
	}

	return extsort.PrintOptions{All: all, PerLine: perLine}, nil
}

func execPrint(io *IO, cfg *config.Config, flagSet *flag.FlagSet, args []string) error {
	path := cfg.Abs(args[0])

	opts, err := printOptions(flagSet)
	if err != nil {
		return err
	}

	_, err = extsort.Print(io.Out(), realFS, path, opts)

	return err
}
