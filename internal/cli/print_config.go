package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/extsort/internal/config"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(cfg *config.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Group: groupConfig,
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			return execPrintConfig(io, cfg)
		},
	}
}

func execPrintConfig(io *IO, cfg *config.Config) error {
	formatted, err := config.Format(*cfg)
	if err != nil {
		return err
	}

	io.Println(formatted)
	io.Println("")
	io.Println("# sources")
	io.Println("effective_cwd=" + cfg.EffectiveCwd)

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
		io.Println("(defaults only)")

		return nil
	}

	if cfg.Sources.Global != "" {
		io.Println("global_config=" + cfg.Sources.Global)
	}

	if cfg.Sources.Project != "" {
		io.Println("project_config=" + cfg.Sources.Project)
	}

	return nil
}
