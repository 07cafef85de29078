package extsort

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/s2"
	"github.com/natefinch/atomic"

	"github.com/calvinalkan/extsort/pkg/fs"
)

// Backup writes an s2-compressed copy of src to dst. dst is replaced
// atomically, so an interrupted backup never leaves a torn file behind.
// It returns the number of uncompressed bytes copied.
func Backup(fsys fs.FS, src, dst string) (int64, error) {
	in, err := fsys.Open(src)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %w", ErrIO, src, err)
	}
	defer in.Close()

	pr, pw := io.Pipe()
	done := make(chan struct{})

	var copied int64

	go func() {
		defer close(done)

		enc := s2.NewWriter(pw)

		n, err := io.Copy(enc, in)
		copied = n

		pw.CloseWithError(errors.Join(err, enc.Close()))
	}()

	// dst is written through os directly, not fsys.
	err = atomic.WriteFile(dst, pr)
	if err != nil {
		_ = pr.CloseWithError(err)
	}

	// The copier reads from in, which is closed on return.
	<-done

	if err != nil {
		return 0, fmt.Errorf("%w: backup %s to %s: %w", ErrIO, src, dst, err)
	}

	log.Debugw("backup written", "src", src, "dst", dst, "bytes", copied)

	return copied, nil
}

// Restore decompresses the backup at src and atomically replaces dst with it.
func Restore(fsys fs.FS, src, dst string) (int64, error) {
	in, err := fsys.Open(src)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %w", ErrIO, src, err)
	}
	defer in.Close()

	counter := &countingReader{r: s2.NewReader(in)}

	if err := atomic.WriteFile(dst, counter); err != nil {
		return 0, fmt.Errorf("%w: restore %s to %s: %w", ErrIO, src, dst, err)
	}

	log.Debugw("backup restored", "src", src, "dst", dst, "bytes", counter.n)

	return counter.n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)

	return n, err
}
