package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/extsort/internal/config"
	"github.com/calvinalkan/extsort/pkg/extsort"
)

// BackupCmd returns the backup command.
func BackupCmd(cfg *config.Config) *Command {
	flagSet := flag.NewFlagSet("backup", flag.ContinueOnError)
	flagSet.StringP("out", "o", "", "Backup `path` (default <file>.s2 in backup_dir or next to <file>)")

	return &Command{
		Flags: flagSet,
		Usage: "backup <file> [flags]",
		Args:  []string{"file"},
		Group: groupFiles,
		Short: "Write a compressed copy of a file",
		Exec: func(_ context.Context, io *IO, args []string) error {
			path := cfg.Abs(args[0])

			dst, _ := flagSet.GetString("out")
			if dst == "" {
				dst = backupPath(cfg, path)
			} else {
				dst = cfg.Abs(dst)
			}

			lock, err := lockFile(cfg, path)
			if err != nil {
				return err
			}
			defer lock.Close()

			n, err := extsort.Backup(realFS, path, dst)
			if err != nil {
				return err
			}

			io.Printf("backed up %d bytes to %s\n", n, dst)

			return nil
		},
	}
}

// RestoreCmd returns the restore command.
func RestoreCmd(cfg *config.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("restore", flag.ContinueOnError),
		Usage: "restore <backup> <file>",
		Args:  []string{"backup", "file"},
		Group: groupFiles,
		Short: "Replace a file with a backup",
		Exec: func(_ context.Context, io *IO, args []string) error {
			src, dst := cfg.Abs(args[0]), cfg.Abs(args[1])

			lock, err := lockFile(cfg, dst)
			if err != nil {
				return err
			}
			defer lock.Close()

			n, err := extsort.Restore(realFS, src, dst)
			if err != nil {
				return err
			}

			io.Printf("restored %d bytes to %s\n", n, dst)

			return nil
		},
	}
}
