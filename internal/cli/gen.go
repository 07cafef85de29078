package cli

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/extsort/internal/config"
	"github.com/calvinalkan/extsort/pkg/blockfile"
	"github.com/calvinalkan/extsort/pkg/record"
)

// GenCmd returns the gen command.
func GenCmd(cfg *config.Config) *Command {
	flagSet := flag.NewFlagSet("gen", flag.ContinueOnError)
	flagSet.Int64P("count", "n", 0, "Number of records to write (required)")
	flagSet.Uint64("seed", 1, "Random seed")
	flagSet.Bool("sorted", false, "Write keys in ascending order")
	flagSet.Bool("reverse", false, "Write keys in descending order")
	flagSet.Bool("equal", false, "Write the same key for every record")

	return &Command{
		Flags: flagSet,
		Usage: "gen <file> --count N [flags]",
		Args:  []string{"file"},
		Group: groupFiles,
		Short: "Generate a record file",
		Long: `Write N records with ids 0..N-1 to <file>, replacing it. Keys are random
with two decimals unless --sorted, --reverse or --equal is given.`,
		Exec: func(ctx context.Context, io *IO, args []string) error {
			return execGen(ctx, io, cfg, flagSet, args)
		},
	}
}

var errConflictingOrder = errors.New("--sorted, --reverse and --equal are mutually exclusive")

func execGen(ctx context.Context, io *IO, cfg *config.Config, flagSet *flag.FlagSet, args []string) error {
	path := cfg.Abs(args[0])

	count, _ := flagSet.GetInt64("count")
	if count <= 0 {
		return fmt.Errorf("%w: --count must be positive", ErrInvalidFlag)
	}

	seed, _ := flagSet.GetUint64("seed")

	key, err := keyFunc(flagSet, count, seed)
	if err != nil {
		return err
	}

	lock, err := lockFile(cfg, path)
	if err != nil {
		return err
	}
	defer lock.Close()

	a, err := blockfile.Open(realFS, path, blockfile.Scratch)
	if err != nil {
		return err
	}

	for i := range count {
		if i%record.PerBlock == 0 {
			if err := ctx.Err(); err != nil {
				return errors.Join(err, a.Close())
			}
		}

		if err := a.WriteRecord(record.Record{ID: i, Key: key(i)}); err != nil {
			return errors.Join(err, a.Close())
		}
	}

	if err := a.Sync(); err != nil {
		return errors.Join(err, a.Close())
	}

	if err := a.Close(); err != nil {
		return err
	}

	io.Printf("wrote %d records to %s\n", count, path)

	return nil
}

func keyFunc(flagSet *flag.FlagSet, count int64, seed uint64) (func(int64) float64, error) {
	sorted, _ := flagSet.GetBool("sorted")
	reverse, _ := flagSet.GetBool("reverse")
	equal, _ := flagSet.GetBool("equal")

	n := 0

	for _, set := range []bool{sorted, reverse, equal} {
		if set {
			n++
		}
	}

	if n > 1 {
		return nil, errConflictingOrder
	}

	switch {
	case sorted:
		return func(i int64) float64 { return float64(i) }, nil
	case reverse:
		return func(i int64) float64 { return float64(count - i) }, nil
	case equal:
		return func(int64) float64 { return 1 }, nil
	}

	rng := rand.New(rand.NewPCG(seed, seed+1))

	return func(int64) float64 {
		return math.Round(rng.Float64()*float64(count)*100) / 100
	}, nil
}
