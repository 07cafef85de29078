package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calvinalkan/extsort/pkg/record"
)

// CLI provides a clean interface for running CLI commands in tests.
// It manages a temp directory and environment variables.
type CLI struct {
	t   *testing.T
	Dir string
	Env map[string]string
}

// NewCLI creates a new test CLI with a temp directory.
func NewCLI(t *testing.T) *CLI {
	t.Helper()

	return &CLI{
		t:   t,
		Dir: t.TempDir(),
		Env: map[string]string{},
	}
}

// Run executes the CLI with the given args and returns stdout, stderr, and exit code.
// Args should not include "extsort" or "--cwd" - those are added automatically.
func (r *CLI) Run(args ...string) (string, string, int) {
	var outBuf, errBuf bytes.Buffer

	fullArgs := append([]string{"extsort", "--cwd", r.Dir}, args...)
	code := Run(nil, &outBuf, &errBuf, fullArgs, r.Env, nil)

	return outBuf.String(), errBuf.String(), code
}

// MustRun executes the CLI and fails the test if the command returns non-zero.
// Returns trimmed stdout on success.
func (r *CLI) MustRun(args ...string) string {
	r.t.Helper()

	stdout, stderr, code := r.Run(args...)
	if code != 0 {
		r.t.Fatalf("command %v failed with exit code %d\nstderr: %s", args, code, stderr)
	}

	return strings.TrimSpace(stdout)
}

// MustFail executes the CLI and fails the test if the command succeeds.
// Returns trimmed stderr.
func (r *CLI) MustFail(args ...string) string {
	r.t.Helper()

	stdout, stderr, code := r.Run(args...)
	if code == 0 {
		r.t.Fatalf("command %v should have failed but succeeded\nstdout: %s", args, stdout)
	}

	return strings.TrimSpace(stderr)
}

// Path returns name joined to the test directory.
func (r *CLI) Path(name string) string {
	return filepath.Join(r.Dir, name)
}

// WriteRecords writes recs to name in the test directory.
func (r *CLI) WriteRecords(name string, recs []record.Record) {
	r.t.Helper()

	data := make([]byte, 0, len(recs)*record.Size)
	for _, rec := range recs {
		data = record.AppendEncode(data, rec)
	}

	r.WriteFile(name, data)
}

// WriteFile writes raw bytes to name in the test directory.
func (r *CLI) WriteFile(name string, data []byte) {
	r.t.Helper()

	err := os.WriteFile(r.Path(name), data, 0o600)
	if err != nil {
		r.t.Fatalf("failed to write %s: %v", name, err)
	}
}

// ReadRecords decodes every record of name in the test directory.
func (r *CLI) ReadRecords(name string) []record.Record {
	r.t.Helper()

	data, err := os.ReadFile(r.Path(name))
	if err != nil {
		r.t.Fatalf("failed to read %s: %v", name, err)
	}

	if len(data)%record.Size != 0 {
		r.t.Fatalf("%s: size %d is not a multiple of %d", name, len(data), record.Size)
	}

	recs := make([]record.Record, 0, len(data)/record.Size)

	for off := 0; off < len(data); off += record.Size {
		rec, err := record.Decode(data[off:])
		if err != nil {
			r.t.Fatalf("%s: %v", name, err)
		}

		recs = append(recs, rec)
	}

	return recs
}

// AssertContains fails the test if content doesn't contain substr.
func AssertContains(t *testing.T, content, substr string) {
	t.Helper()

	if !strings.Contains(content, substr) {
		t.Errorf("content should contain %q\ncontent:\n%s", substr, content)
	}
}

// AssertNotContains fails the test if content contains substr.
func AssertNotContains(t *testing.T, content, substr string) {
	t.Helper()

	if strings.Contains(content, substr) {
		t.Errorf("content should NOT contain %q\ncontent:\n%s", substr, content)
	}
}
