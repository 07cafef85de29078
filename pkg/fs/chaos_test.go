package fs

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func writeTestFile(t *testing.T, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	return path
}

func Test_Chaos_Passes_Through_When_Mode_Is_NoOp(t *testing.T) {
	chaosFS := NewChaos(NewReal(), 1, ChaosConfig{
		OpenFailRate:  1.0,
		ReadFailRate:  1.0,
		WriteFailRate: 1.0,
	})
	chaosFS.SetMode(ChaosModeNoOp)

	path := filepath.Join(t.TempDir(), "a.bin")

	f, err := chaosFS.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	if _, err := f.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := make([]byte, 5)
	if _, err := f.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got, want := string(got), "hello"; got != want {
		t.Fatalf("ReadAt=%q, want=%q", got, want)
	}

	if got, want := chaosFS.TotalFaults(), int64(0); got != want {
		t.Fatalf("TotalFaults=%d, want=%d", got, want)
	}
}

func Test_Chaos_Injects_Open_Error_When_Open_Fail_Rate_Is_One(t *testing.T) {
	chaosFS := NewChaos(NewReal(), 1, ChaosConfig{OpenFailRate: 1.0})
	path := writeTestFile(t, []byte("x"))

	_, err := chaosFS.OpenFile(path, os.O_RDWR, 0)
	if err == nil {
		t.Fatal("OpenFile unexpectedly succeeded")
	}

	if !IsChaosErr(err) {
		t.Fatalf("err=%v, want injected error", err)
	}

	if errors.Is(err, syscall.ENOENT) {
		t.Fatalf("chaos must never inject ENOENT: %v", err)
	}

	var pathErr *os.PathError
	if !errors.As(err, &pathErr) {
		t.Fatalf("err should be *os.PathError, got %T", err)
	}

	if got, want := chaosFS.Stats().OpenFails, int64(1); got != want {
		t.Fatalf("OpenFails=%d, want=%d", got, want)
	}
}

func Test_Chaos_Passes_Through_Real_NotExist_Errors(t *testing.T) {
	chaosFS := NewChaos(NewReal(), 1, ChaosConfig{})

	_, err := chaosFS.Open(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err=%v, want=%v", err, os.ErrNotExist)
	}

	if IsChaosErr(err) {
		t.Fatalf("real error reported as injected: %v", err)
	}
}

func Test_ChaosFile_Read_Does_Not_Skip_Bytes_When_Partial_Read_Rate_Is_One(t *testing.T) {
	want := bytes.Repeat([]byte("0123456789abcdef"), 64)
	path := writeTestFile(t, want)

	chaosFS := NewChaos(NewReal(), 42, ChaosConfig{PartialReadRate: 1.0})

	f, err := chaosFS.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	if !bytes.Equal(got, want) {
		t.Fatalf("short reads lost or duplicated bytes: got %d bytes, want %d", len(got), len(want))
	}

	if chaosFS.Stats().PartialReads == 0 {
		t.Fatal("expected at least one short read")
	}
}

func Test_ChaosFile_Write_Returns_ErrShortWrite_When_Short_Write_Rate_Is_One(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	chaosFS := NewChaos(NewReal(), 7, ChaosConfig{PartialWriteRate: 1.0, ShortWriteRate: 1.0})

	f, err := chaosFS.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	data := []byte("abcdefgh")

	n, err := f.Write(data)
	if !errors.Is(err, io.ErrShortWrite) {
		t.Fatalf("err=%v, want=%v", err, io.ErrShortWrite)
	}

	if n <= 0 || n >= len(data) {
		t.Fatalf("n=%d, want in [1,%d)", n, len(data))
	}

	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if got, want := string(onDisk), string(data[:n]); got != want {
		t.Fatalf("on disk=%q, want=%q", got, want)
	}
}

func Test_ChaosFile_Write_Returns_Errno_When_Short_Write_Rate_Is_Zero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	chaosFS := NewChaos(NewReal(), 7, ChaosConfig{PartialWriteRate: 1.0})

	f, err := chaosFS.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	_, err = f.Write([]byte("abcdefgh"))
	if err == nil || errors.Is(err, io.ErrShortWrite) {
		t.Fatalf("err=%v, want errno partial write", err)
	}

	if !IsChaosErr(err) {
		t.Fatalf("err=%v, want injected", err)
	}
}

func Test_ChaosFile_Truncate_And_ReadAt_Fail_When_Rates_Are_One(t *testing.T) {
	path := writeTestFile(t, []byte("0123456789"))
	chaosFS := NewChaos(NewReal(), 3, ChaosConfig{TruncateFailRate: 1.0, ReadFailRate: 1.0})

	f, err := chaosFS.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	if err := f.Truncate(2); !IsChaosErr(err) {
		t.Fatalf("Truncate err=%v, want injected", err)
	}

	buf := make([]byte, 4)
	if n, err := f.ReadAt(buf, 0); n != 0 || !errors.Is(err, syscall.EIO) {
		t.Fatalf("ReadAt=(%d,%v), want=(0,EIO)", n, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}

	if got, want := info.Size(), int64(10); got != want {
		t.Fatalf("size=%d, want=%d (failed truncate must not change file)", got, want)
	}
}

func Test_ChaosFile_Close_Still_Closes_File_When_Close_Fail_Rate_Is_One(t *testing.T) {
	path := writeTestFile(t, []byte("x"))
	chaosFS := NewChaos(NewReal(), 3, ChaosConfig{CloseFailRate: 1.0})

	f, err := chaosFS.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := f.Close(); !IsChaosErr(err) {
		t.Fatalf("Close err=%v, want injected", err)
	}

	if _, err := f.Read(make([]byte, 1)); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("Read after close err=%v, want=%v", err, os.ErrClosed)
	}
}

func Test_Chaos_Same_Seed_Produces_Identical_Fault_Sequence(t *testing.T) {
	run := func() []bool {
		c := NewChaos(NewReal(), 99, ChaosConfig{RemoveFailRate: 0.5})
		dir := t.TempDir()

		out := make([]bool, 0, 32)

		for range 32 {
			err := c.Remove(filepath.Join(dir, "missing"))
			out = append(out, IsChaosErr(err))
		}

		return out
	}

	a, b := run(), run()

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sequence diverged at %d", i)
		}
	}
}

func Test_NewChaos_Panics_When_FS_Is_Nil(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()

	NewChaos(nil, 1, ChaosConfig{})
}
