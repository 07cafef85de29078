package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/extsort/internal/config"
	"github.com/calvinalkan/extsort/pkg/extsort"
)

// VerifyCmd returns the verify command.
func VerifyCmd(cfg *config.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("verify", flag.ContinueOnError),
		Usage: "verify <file>",
		Args:  []string{"file"},
		Group: groupFiles,
		Short: "Check that a record file is sorted",
		Long: `Read <file> through a memory map and report its record count, whether it
is sorted, the index of the first out-of-order record and its digest.
Exits 1 if the file is not sorted.`,
		Exec: func(_ context.Context, io *IO, args []string) error {
			return execVerify(io, cfg, args)
		},
	}
}

func execVerify(io *IO, cfg *config.Config, args []string) error {
	path := cfg.Abs(args[0])

	rep, err := extsort.Verify(path)
	if err != nil {
		return err
	}

	io.Printf("records=%d\n", rep.Records)
	io.Printf("sorted=%t\n", rep.Sorted)

	if !rep.Sorted {
		io.Printf("first_violation=%d\n", rep.FirstViolation)
	}

	io.Printf("digest=%016x%016x\n", rep.Digest.Sum, rep.Digest.Xor)

	if rep.TrailingBytes > 0 {
		io.Warn(fmt.Sprintf("%s has %d trailing bytes", path, rep.TrailingBytes),
			"the size is not a multiple of 16; sorting will discard them")
	}

	if !rep.Sorted {
		return fmt.Errorf("%w: %s: record %d sorts before record %d",
			ErrUnsorted, path, rep.FirstViolation, rep.FirstViolation-1)
	}

	return nil
}
