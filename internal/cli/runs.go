package cli

import (
	"context"
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/calvinalkan/extsort/internal/config"
	"github.com/calvinalkan/extsort/pkg/extsort"
)

// RunsCmd returns the runs command.
func RunsCmd(cfg *config.Config) *Command {
	flagSet := flag.NewFlagSet("runs", flag.ContinueOnError)
	addSorterFlags(flagSet, cfg)
	flagSet.String("plot", "", "Save a bar chart of run lengths to `file` (.png, .svg, .pdf)")

	return &Command{
		Flags: flagSet,
		Usage: "runs <file> [flags]",
		Args:  []string{"file"},
		Group: groupSort,
		Short: "Show the runs a sort would generate",
		Long: `Generate sorted runs from <file> without merging them, print one line per
run and remove the run file. The input is left untouched.`,
		Exec: func(ctx context.Context, io *IO, args []string) error {
			return execRuns(ctx, io, cfg, flagSet, args)
		},
	}
}

func execRuns(ctx context.Context, io *IO, cfg *config.Config, flagSet *flag.FlagSet, args []string) error {
	path := cfg.Abs(args[0])

	opts, err := sorterOptions(cfg, flagSet)
	if err != nil {
		return err
	}

	plotPath, _ := flagSet.GetString("plot")

	lock, err := lockFile(cfg, path)
	if err != nil {
		return err
	}
	defer lock.Close()

	s, err := extsort.Open(realFS, path, opts)
	if err != nil {
		return err
	}

	sortErr := s.Sort(ctx)
	runs, stats := s.Runs(), s.Stats()

	if err := errors.Join(sortErr, s.Close()); err != nil {
		return err
	}

	io.Printf("%-6s %-14s %s\n", "run", "start", "records")

	for i, r := range runs {
		io.Printf("%-6d %-14d %d\n", i, r.Start, r.Length)
	}

	io.Printf("\nrecords=%d runs=%d longest=%d deferred=%d capacity=%d\n",
		stats.Records, stats.Runs, stats.LongestRun, stats.Deferred, s.Capacity())

	if plotPath == "" {
		return nil
	}

	if len(runs) == 0 {
		io.Warn("no runs to plot", path+" holds no records")

		return nil
	}

	return plotRuns(cfg.Abs(plotPath), runs)
}

func plotRuns(path string, runs []extsort.RunInfo) error {
	p := plot.New()
	p.Title.Text = "Run lengths"
	p.X.Label.Text = "run"
	p.Y.Label.Text = "records"

	values := make(plotter.Values, len(runs))
	for i, r := range runs {
		values[i] = float64(r.Length)
	}

	width := max(vg.Points(1), vg.Points(400/float64(len(runs))))

	bars, err := plotter.NewBarChart(values, width)
	if err != nil {
		return fmt.Errorf("plotting runs: %w", err)
	}

	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("saving plot: %w", err)
	}

	return nil
}
