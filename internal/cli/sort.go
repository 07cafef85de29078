package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/extsort/internal/config"
	"github.com/calvinalkan/extsort/pkg/extsort"
	"github.com/calvinalkan/extsort/pkg/fs"
)

// SortCmd returns the sort command.
func SortCmd(cfg *config.Config) *Command {
	flagSet := flag.NewFlagSet("sort", flag.ContinueOnError)
	addSorterFlags(flagSet, cfg)
	flagSet.Bool("keep-run-file", cfg.KeepRunFile, "Leave the run file on disk")
	flagSet.Bool("check", false, "Re-read the output and compare its digest with the input's")
	flagSet.Bool("backup", cfg.Backup, "Write a compressed backup of the input before sorting")
	flagSet.Bool("progress", false, "Show progress bars on stderr")
	flagSet.Bool("no-print", false, "Print a summary instead of records")
	addPrintFlags(flagSet, cfg)

	return &Command{
		Flags: flagSet,
		Usage: "sort <file> [flags]",
		Args:  []string{"file"},
		Group: groupSort,
		Short: "Sort a record file in place",
		Long: `Sort a file of 16-byte records (big-endian int64 id, float64 key) by key,
then id, overwriting it in place. Runs are written to a scratch run file
next to the input. Afterwards the first record of every block is printed.

The input is overwritten during the merge; use --backup to keep a copy.`,
		Exec: func(ctx context.Context, io *IO, args []string) error {
			return execSort(ctx, io, cfg, flagSet, args)
		},
	}
}

func addSorterFlags(flagSet *flag.FlagSet, cfg *config.Config) {
	flagSet.Int("memory-blocks", cfg.MemoryBlocks, "Heap size in 8 KiB blocks")
	flagSet.String("run-file", cfg.RunFile, "Run file `path` (default runFile.bin next to the input)")
	flagSet.String("merge-mode", cfg.MergeMode, "Merge read strategy: buffered or shared")
}

func sorterOptions(cfg *config.Config, flagSet *flag.FlagSet) (extsort.Options, error) {
	blocks, _ := flagSet.GetInt("memory-blocks")
	if blocks <= 0 {
		return extsort.Options{}, fmt.Errorf("%w: --memory-blocks must be positive", ErrInvalidFlag)
	}

	runFile, _ := flagSet.GetString("run-file")
	modeName, _ := flagSet.GetString("merge-mode")

	mode, err := extsort.ParseMergeMode(modeName)
	if err != nil {
		return extsort.Options{}, err
	}

	return extsort.Options{
		MemoryBlocks: blocks,
		RunFile:      cfg.Abs(runFile),
		MergeMode:    mode,
	}, nil
}

func execSort(ctx context.Context, io *IO, cfg *config.Config, flagSet *flag.FlagSet, args []string) error {
	path := cfg.Abs(args[0])

	opts, err := sorterOptions(cfg, flagSet)
	if err != nil {
		return err
	}

	printOpts, err := printOptions(flagSet)
	if err != nil {
		return err
	}

	opts.KeepRunFile, _ = flagSet.GetBool("keep-run-file")
	check, _ := flagSet.GetBool("check")
	backup, _ := flagSet.GetBool("backup")
	progress, _ := flagSet.GetBool("progress")
	noPrint, _ := flagSet.GetBool("no-print")

	lock, err := lockFile(cfg, path)
	if err != nil {
		return err
	}
	defer lock.Close()

	if backup {
		if _, err := extsort.Backup(realFS, path, backupPath(cfg, path)); err != nil {
			return err
		}
	}

	var bars *progressBars
	if progress {
		bars = newProgressBars(io.ErrOut())
		opts.Progress = bars.report
	}

	stats, err := sortFile(ctx, path, opts)

	bars.finish()

	if err != nil {
		return err
	}

	if stats.Input.TrailingBytes > 0 {
		io.Warn(fmt.Sprintf("discarded %d trailing bytes of %s", stats.Input.TrailingBytes, path),
			"the input size was not a multiple of 16; the partial record is gone from the output")
	}

	if check {
		got, err := extsort.DigestFile(realFS, path)
		if err != nil {
			return err
		}

		if !got.Equal(stats.InputDigest) {
			return fmt.Errorf("%w: input %s, output %s", ErrDigestMismatch, stats.InputDigest, got)
		}
	}

	if noPrint {
		io.Printf("sorted %s: %d records in %d runs\n", path, stats.Merged, stats.Runs)

		return nil
	}

	_, err = extsort.Print(io.Out(), realFS, path, printOpts)

	return err
}

func sortFile(ctx context.Context, path string, opts extsort.Options) (extsort.Stats, error) {
	s, err := extsort.Open(realFS, path, opts)
	if err != nil {
		return extsort.Stats{}, err
	}

	runErr := s.Run(ctx)
	stats := s.Stats()

	if err := errors.Join(runErr, s.Close()); err != nil {
		return stats, err
	}

	return stats, nil
}

var realFS = fs.NewReal()

// lockFile takes the advisory lock that serializes extsort processes working
// on path.
func lockFile(cfg *config.Config, path string) (*fs.Lock, error) {
	lock, err := fs.NewLocker(realFS).LockWithTimeout(path+".lock", cfg.LockWait)
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	return lock, nil
}

func backupPath(cfg *config.Config, path string) string {
	dir := filepath.Dir(path)
	if cfg.BackupDir != "" {
		dir = cfg.Abs(cfg.BackupDir)
	}

	return filepath.Join(dir, filepath.Base(path)+".s2")
}
