package cli_test

import (
	"bytes"
	"math/rand/v2"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/extsort/internal/cli"
	"github.com/calvinalkan/extsort/pkg/fs"
	"github.com/calvinalkan/extsort/pkg/record"
)

func shuffled(n int) []record.Record {
	rng := rand.New(rand.NewPCG(7, 8))

	recs := make([]record.Record, n)
	for i := range recs {
		recs[i] = record.Record{ID: int64(i), Key: float64(i)}
	}

	rng.Shuffle(n, func(i, j int) { recs[i], recs[j] = recs[j], recs[i] })

	return recs
}

func sortedCopy(recs []record.Record) []record.Record {
	out := slices.Clone(recs)
	slices.SortFunc(out, record.Compare)

	return out
}

func Test_Bare_File_Argument_Sorts_And_Prints_Block_Heads(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	input := shuffled(2*record.PerBlock + 10)
	c.WriteRecords("data.bin", input)

	stdout := c.MustRun("data.bin")

	if diff := cmp.Diff(sortedCopy(input), c.ReadRecords("data.bin")); diff != "" {
		t.Fatalf("output mismatch (-want +got):\n%s", diff)
	}

	if got, want := stdout, "0 0.0 512 512.0 1024 1024.0"; got != want {
		t.Fatalf("stdout=%q, want=%q", got, want)
	}

	if _, err := os.Stat(c.Path("runFile.bin")); !os.IsNotExist(err) {
		t.Fatalf("run file still exists: err=%v", err)
	}
}

func Test_Sort_Small_Example_Prints_All_Records(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteRecords("data.bin", []record.Record{
		{ID: 1, Key: 5}, {ID: 2, Key: 3}, {ID: 3, Key: 8}, {ID: 4, Key: 1}, {ID: 5, Key: 9},
		{ID: 6, Key: 2}, {ID: 7, Key: 7}, {ID: 8, Key: 4}, {ID: 9, Key: 6},
	})

	stdout := c.MustRun("sort", "data.bin", "--all", "--memory-blocks", "1")

	want := "4 1.0 6 2.0 2 3.0 8 4.0 1 5.0\n9 6.0 7 7.0 3 8.0 5 9.0"
	if got := stdout; got != want {
		t.Fatalf("stdout=%q, want=%q", got, want)
	}
}

func Test_Sort_With_Check_Backup_And_Summary(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	input := shuffled(3000)
	c.WriteRecords("data.bin", input)

	original, err := os.ReadFile(c.Path("data.bin"))
	require.NoError(t, err)

	stdout := c.MustRun("sort", "data.bin", "--check", "--backup", "--no-print", "--merge-mode", "shared")

	if got, want := stdout, "sorted "+c.Path("data.bin")+": 3000 records in 1 runs"; got != want {
		t.Fatalf("stdout=%q, want=%q", got, want)
	}

	c.MustRun("restore", "data.bin.s2", "data.bin")

	restored, err := os.ReadFile(c.Path("data.bin"))
	require.NoError(t, err)

	if !bytes.Equal(original, restored) {
		t.Fatal("restored file differs from original")
	}
}

func Test_Sort_Keeps_Run_File_When_Asked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteRecords("data.bin", shuffled(100))

	c.MustRun("sort", "data.bin", "--keep-run-file", "--run-file", "runs.tmp", "--no-print")

	info, err := os.Stat(c.Path("runs.tmp"))
	require.NoError(t, err)

	if got, want := info.Size(), int64(100*record.Size); got != want {
		t.Fatalf("run file size=%d, want=%d", got, want)
	}
}

func Test_Sort_Warns_About_Trailing_Bytes(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	var data []byte
	for _, r := range shuffled(10) {
		data = record.AppendEncode(data, r)
	}

	c.WriteFile("data.bin", append(data, 1, 2, 3))

	stdout, stderr, exitCode := c.Run("sort", "data.bin", "--no-print")

	if got, want := exitCode, 1; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	cli.AssertContains(t, stdout, "10 records")
	cli.AssertContains(t, stderr, "warning: discarded 3 trailing bytes")

	if got, want := len(c.ReadRecords("data.bin")), 10; got != want {
		t.Fatalf("records=%d, want=%d", got, want)
	}
}

func Test_Sort_Warns_About_Trailing_Bytes_When_Input_Exceeds_Heap(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	input := shuffled(3*record.PerBlock + 5)

	var data []byte
	for _, r := range input {
		data = record.AppendEncode(data, r)
	}

	c.WriteFile("data.bin", append(data, 4, 5, 6, 7, 8, 9, 10))

	_, stderr, exitCode := c.Run("sort", "data.bin", "--memory-blocks", "1", "--no-print")

	if got, want := exitCode, 1; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	cli.AssertContains(t, stderr, "warning: discarded 7 trailing bytes")

	if diff := cmp.Diff(sortedCopy(input), c.ReadRecords("data.bin")); diff != "" {
		t.Fatalf("output mismatch (-want +got):\n%s", diff)
	}
}

func Test_Sort_Fails_When_File_Is_Locked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteRecords("data.bin", shuffled(10))
	writeConfig(t, c.Path(".extsort.json"), `{"lock_timeout": "20ms"}`)

	lock, err := fs.NewLocker(fs.NewReal()).TryLock(c.Path("data.bin.lock"))
	require.NoError(t, err)

	defer lock.Close()

	start := time.Now()
	stderr := c.MustFail("sort", "data.bin")

	cli.AssertContains(t, stderr, "lock would block")

	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("gave up after %s, before the lock timeout", elapsed)
	}
}

func Test_Sort_Fails_When_File_Is_Missing(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("sort", "nope.bin")

	cli.AssertContains(t, stderr, "i/o error")
	cli.AssertContains(t, stderr, "no such file")
}

func Test_Sort_Rejects_Invalid_Flag_Values(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteRecords("data.bin", shuffled(4))

	cli.AssertContains(t, c.MustFail("sort", "data.bin", "--memory-blocks", "0"), "--memory-blocks must be positive")
	cli.AssertContains(t, c.MustFail("sort", "data.bin", "--merge-mode", "zip"), "unknown merge mode")
	cli.AssertContains(t, c.MustFail("sort", "data.bin", "--per-line", "0"), "--per-line must be positive")
	cli.AssertContains(t, c.MustFail("sort", "a.bin", "b.bin"), "too many arguments")
}

func Test_Gen_Verify_Sort_Verify(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	cli.AssertContains(t, c.MustRun("gen", "data.bin", "--count", "5000", "--seed", "3"), "wrote 5000 records")

	stdout, _, exitCode := c.Run("verify", "data.bin")
	if got, want := exitCode, 1; got != want {
		t.Fatalf("exitCode=%d, want=%d", got, want)
	}

	cli.AssertContains(t, stdout, "records=5000")
	cli.AssertContains(t, stdout, "sorted=false")
	cli.AssertContains(t, stdout, "first_violation=")

	before := digestLine(t, stdout)

	c.MustRun("sort", "data.bin", "--memory-blocks", "1", "--no-print")

	stdout = c.MustRun("verify", "data.bin")
	cli.AssertContains(t, stdout, "sorted=true")
	cli.AssertNotContains(t, stdout, "first_violation")

	if got := digestLine(t, stdout); got != before {
		t.Fatalf("digest changed by sort: before %s, after %s", before, got)
	}
}

func digestLine(t *testing.T, out string) string {
	t.Helper()

	for line := range strings.Lines(out) {
		if strings.HasPrefix(line, "digest=") {
			return strings.TrimSpace(line)
		}
	}

	t.Fatalf("no digest line in %q", out)

	return ""
}

func Test_Gen_Orders(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	c.MustRun("gen", "sorted.bin", "-n", "10", "--sorted")
	c.MustRun("gen", "reverse.bin", "-n", "10", "--reverse")
	c.MustRun("gen", "equal.bin", "-n", "10", "--equal")

	recs := c.ReadRecords("sorted.bin")
	if !slices.IsSortedFunc(recs, record.Compare) {
		t.Fatalf("sorted.bin is not sorted: %v", recs)
	}

	recs = c.ReadRecords("reverse.bin")
	if got, want := recs[0].Key, 10.0; got != want {
		t.Fatalf("first key=%v, want=%v", got, want)
	}

	for _, r := range c.ReadRecords("equal.bin") {
		if r.Key != 1 {
			t.Fatalf("key=%v, want=1", r.Key)
		}
	}

	cli.AssertContains(t, c.MustFail("gen", "x.bin", "-n", "3", "--sorted", "--equal"), "mutually exclusive")
	cli.AssertContains(t, c.MustFail("gen", "x.bin"), "--count must be positive")
}

func Test_Runs_Prints_Table_And_Leaves_Input(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteRecords("data.bin", []record.Record{
		{ID: 0, Key: 5}, {ID: 1, Key: 3}, {ID: 2, Key: 8}, {ID: 3, Key: 1}, {ID: 4, Key: 9},
		{ID: 5, Key: 2}, {ID: 6, Key: 7}, {ID: 7, Key: 4}, {ID: 8, Key: 6},
	})

	before, err := os.ReadFile(c.Path("data.bin"))
	require.NoError(t, err)

	stdout := c.MustRun("runs", "data.bin", "--plot", "runs.svg")

	cli.AssertContains(t, stdout, "records=9 runs=1")

	after, err := os.ReadFile(c.Path("data.bin"))
	require.NoError(t, err)

	if !bytes.Equal(before, after) {
		t.Fatal("runs modified the input")
	}

	info, err := os.Stat(c.Path("runs.svg"))
	require.NoError(t, err)
	require.Positive(t, info.Size())

	if _, err := os.Stat(c.Path("runFile.bin")); !os.IsNotExist(err) {
		t.Fatalf("run file still exists: err=%v", err)
	}
}

func Test_Print_Command_Respects_Config(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteRecords("data.bin", []record.Record{{ID: 1, Key: 1}, {ID: 2, Key: 2.5}, {ID: 3, Key: 3}})
	writeConfig(t, c.Path(".extsort.json"), `{"print_all": true, "per_line": 1}`)

	if got, want := c.MustRun("print", "data.bin"), "1 1.0\n2 2.5\n3 3.0"; got != want {
		t.Fatalf("stdout=%q, want=%q", got, want)
	}

	if got, want := c.MustRun("print", "data.bin", "--all=false"), "1 1.0"; got != want {
		t.Fatalf("stdout=%q, want=%q", got, want)
	}
}

func Test_Backup_Command_Honors_Backup_Dir(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteRecords("data.bin", shuffled(50))
	writeConfig(t, c.Path(".extsort.json"), `{"backup_dir": "snapshots"}`)
	require.NoError(t, os.Mkdir(c.Path("snapshots"), 0o750))

	stdout := c.MustRun("backup", "data.bin")
	cli.AssertContains(t, stdout, "backed up 800 bytes")

	if _, err := os.Stat(c.Path("snapshots/data.bin.s2")); err != nil {
		t.Fatalf("backup missing: %v", err)
	}

	c.MustRun("backup", "data.bin", "-o", "other.s2")

	if _, err := os.Stat(c.Path("other.s2")); err != nil {
		t.Fatalf("backup missing: %v", err)
	}

	cli.AssertContains(t, c.MustFail("restore", "other.s2"), "want <backup> <file>")
}
