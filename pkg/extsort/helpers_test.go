package extsort_test

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/extsort/pkg/record"
)

func keysToRecords(keys ...float64) []record.Record {
	recs := make([]record.Record, len(keys))
	for i, k := range keys {
		recs[i] = record.Record{ID: int64(i), Key: k}
	}

	return recs
}

func randomRecords(seed uint64, n int) []record.Record {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	recs := make([]record.Record, n)
	for i := range recs {
		// Small key space so ties are common.
		recs[i] = record.Record{ID: int64(i), Key: float64(rng.IntN(n/4+1)) - float64(n/8)}
	}

	return recs
}

func encode(recs []record.Record) []byte {
	out := make([]byte, 0, len(recs)*record.Size)
	for _, r := range recs {
		out = record.AppendEncode(out, r)
	}

	return out
}

func writeRecords(t *testing.T, dir string, recs []record.Record) string {
	t.Helper()

	return writeBytes(t, dir, encode(recs))
}

func writeBytes(t *testing.T, dir string, data []byte) string {
	t.Helper()

	path := filepath.Join(dir, "input.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	return path
}

func readRecords(t *testing.T, path string) []record.Record {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	require.Zero(t, len(data)%record.Size, "file size %d is not record aligned", len(data))

	out := make([]record.Record, 0, len(data)/record.Size)

	for off := 0; off < len(data); off += record.Size {
		r, err := record.Decode(data[off:])
		require.NoError(t, err)

		out = append(out, r)
	}

	return out
}

func sorted(recs []record.Record) []record.Record {
	out := slices.Clone(recs)
	slices.SortFunc(out, record.Compare)

	return out
}
