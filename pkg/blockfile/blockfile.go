// Package blockfile provides buffered, block-oriented record access to a
// random-access file.
//
// An [Accessor] keeps one read window and one write buffer, each at most one
// block long. Records are decoded from the read window and encoded into the
// write buffer; physical I/O happens a block at a time.
//
// Reads and writes share one physical file offset. Callers switching from
// writing to reading at a different offset must [Accessor.Flush] and then
// [Accessor.SetPosition]; SetPosition refuses to discard buffered writes.
package blockfile

import (
	"errors"
	"fmt"
	"io"
	"os"

	logging "github.com/ipfs/go-log/v2"

	"github.com/calvinalkan/extsort/pkg/fs"
	"github.com/calvinalkan/extsort/pkg/record"
)

var log = logging.Logger("blockfile")

var (
	// ErrIO wraps every failure of the underlying file: open, read, write,
	// seek, truncate, sync and close.
	ErrIO = errors.New("blockfile: i/o error")

	// ErrPendingWrites is returned when an operation would move the file
	// offset while records are still buffered for writing.
	ErrPendingWrites = errors.New("blockfile: pending writes")

	// ErrClosed is returned by operations on a closed accessor.
	ErrClosed = errors.New("blockfile: closed")

	// ErrInvalidBlockSize is returned by [Open] for a block size that is not a
	// positive multiple of the record size.
	ErrInvalidBlockSize = errors.New("blockfile: invalid block size")
)

// Mode selects how [Open] opens the file.
type Mode int

const (
	// ReadOnly opens an existing file for reading.
	ReadOnly Mode = iota
	// ReadWrite opens an existing file for reading and writing.
	ReadWrite
	// Scratch creates the file, truncating any previous content, and opens
	// it for reading and writing.
	Scratch
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "read-only"
	case ReadWrite:
		return "read-write"
	case Scratch:
		return "scratch"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func (m Mode) flags() int {
	switch m {
	case ReadWrite:
		return os.O_RDWR
	case Scratch:
		return os.O_RDWR | os.O_CREATE | os.O_TRUNC
	default:
		return os.O_RDONLY
	}
}

const filePerm = 0o644

// maxNoProgress bounds consecutive zero-byte reads or writes before giving up.
const maxNoProgress = 64

// Stats counts physical I/O performed by an [Accessor].
type Stats struct {
	BlockReads        int64
	BytesRead         int64
	BytesWritten      int64
	Flushes           int64
	ShortWriteRetries int64
	Seeks             int64
	TrailingBytes     int64
}

// Option configures an [Accessor].
type Option func(*options)

type options struct {
	blockSize int
}

// WithBlockSize overrides the physical block size. It must be a positive
// multiple of [record.Size].
func WithBlockSize(n int) Option {
	return func(o *options) { o.blockSize = n }
}

// Accessor reads and writes records through block-sized buffers.
//
// An Accessor is not safe for concurrent use.
type Accessor struct {
	f    fs.File
	path string
	mode Mode

	// pos is the physical offset of f. size is the file size as seen through
	// this accessor, kept current across writes and truncation.
	pos  int64
	size int64

	rbuf     []byte
	r, limit int

	wbuf []byte

	stats  Stats
	closed bool
}

// Open opens path on fsys in the given mode.
func Open(fsys fs.FS, path string, mode Mode, opts ...Option) (*Accessor, error) {
	o := options{blockSize: record.BlockSize}
	for _, opt := range opts {
		opt(&o)
	}

	if o.blockSize <= 0 || o.blockSize%record.Size != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBlockSize, o.blockSize)
	}

	f, err := fsys.OpenFile(path, mode.flags(), filePerm)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s (%s): %w", ErrIO, path, mode, err)
	}

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Join(
			fmt.Errorf("%w: stat %s: %w", ErrIO, path, err),
			f.Close(),
		)
	}

	log.Debugw("opened", "path", path, "mode", mode.String(), "size", info.Size())

	return &Accessor{
		f:    f,
		path: path,
		mode: mode,
		size: info.Size(),
		rbuf: make([]byte, o.blockSize),
		wbuf: make([]byte, 0, o.blockSize),
	}, nil
}

// Path returns the path the accessor was opened with.
func (a *Accessor) Path() string { return a.path }

// Size returns the current file size, including flushed writes.
func (a *Accessor) Size() int64 { return a.size }

// Stats returns a snapshot of the I/O counters.
func (a *Accessor) Stats() Stats { return a.stats }

// BlockSize returns the physical block size.
func (a *Accessor) BlockSize() int { return len(a.rbuf) }

// Position returns the logical write position: the physical offset plus
// bytes still sitting in the write buffer.
func (a *Accessor) Position() int64 {
	return a.pos + int64(len(a.wbuf))
}

// Buffered returns the number of bytes waiting in the write buffer.
func (a *Accessor) Buffered() int { return len(a.wbuf) }

// HasData reports whether unread bytes remain, in the read window or in the
// file beyond the physical offset. A trailing partial record counts, so the
// next [Accessor.ReadRecord] sees it, discards it and returns [io.EOF].
func (a *Accessor) HasData() bool {
	remaining := a.size - a.pos
	if remaining < 0 {
		remaining = 0
	}

	return remaining+int64(a.limit-a.r) > 0
}

// ReadRecord decodes the next record. It returns [io.EOF] once fewer than
// [record.Size] unread bytes remain. A trailing partial record is dropped and
// counted in [Stats].TrailingBytes.
//
// Pending writes are flushed first so the read observes them.
func (a *Accessor) ReadRecord() (record.Record, error) {
	if a.closed {
		return record.Record{}, ErrClosed
	}

	if a.limit-a.r < record.Size {
		if err := a.Flush(); err != nil {
			return record.Record{}, err
		}

		if err := a.fill(); err != nil {
			return record.Record{}, err
		}

		if rem := a.limit - a.r; rem < record.Size {
			if rem > 0 {
				a.stats.TrailingBytes += int64(rem)
				a.r = a.limit

				log.Warnw("discarding trailing partial record", "path", a.path, "bytes", rem)
			}

			return record.Record{}, io.EOF
		}
	}

	rec, err := record.Decode(a.rbuf[a.r:a.limit])
	if err != nil {
		return record.Record{}, err
	}

	a.r += record.Size

	return rec, nil
}

// fill moves unread bytes to the front of the read window and reads until
// the window is full or the file ends. Short reads are retried.
func (a *Accessor) fill() error {
	n := copy(a.rbuf, a.rbuf[a.r:a.limit])
	a.r, a.limit = 0, n

	a.stats.BlockReads++

	stalls := 0

	for a.limit < len(a.rbuf) {
		m, err := a.f.Read(a.rbuf[a.limit:])
		a.limit += m
		a.pos += int64(m)
		a.stats.BytesRead += int64(m)

		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return fmt.Errorf("%w: read %s at %d: %w", ErrIO, a.path, a.pos, err)
		}

		if m > 0 {
			stalls = 0

			continue
		}

		stalls++
		if stalls >= maxNoProgress {
			return fmt.Errorf("%w: read %s at %d: %w", ErrIO, a.path, a.pos, io.ErrNoProgress)
		}
	}

	if a.pos > a.size {
		a.size = a.pos
	}

	return nil
}

// WriteRecord appends r to the write buffer, flushing first when the buffer
// has no room for another record. Any unread read window is discarded.
func (a *Accessor) WriteRecord(r record.Record) error {
	if a.closed {
		return ErrClosed
	}

	if a.mode == ReadOnly {
		return fmt.Errorf("%w: write %s: opened %s", ErrIO, a.path, a.mode)
	}

	a.r, a.limit = 0, 0

	if cap(a.wbuf)-len(a.wbuf) < record.Size {
		if err := a.Flush(); err != nil {
			return err
		}
	}

	a.wbuf = record.AppendEncode(a.wbuf, r)

	return nil
}

// Flush writes the whole write buffer at the physical offset and clears it.
//
// Short writes that report io.ErrShortWrite, or no error, are retried with
// the remainder. Any other write error is returned wrapped in [ErrIO].
func (a *Accessor) Flush() error {
	if a.closed {
		return ErrClosed
	}

	if len(a.wbuf) == 0 {
		return nil
	}

	buf := a.wbuf
	stalls := 0

	for len(buf) > 0 {
		n, err := a.f.Write(buf)
		buf = buf[n:]
		a.pos += int64(n)
		a.stats.BytesWritten += int64(n)

		if a.pos > a.size {
			a.size = a.pos
		}

		if len(buf) == 0 {
			break
		}

		if err != nil && !errors.Is(err, io.ErrShortWrite) {
			a.wbuf = a.wbuf[:copy(a.wbuf, buf)]

			return fmt.Errorf("%w: write %s at %d: %w", ErrIO, a.path, a.pos, err)
		}

		a.stats.ShortWriteRetries++

		if n > 0 {
			stalls = 0

			continue
		}

		stalls++
		if stalls >= maxNoProgress {
			a.wbuf = a.wbuf[:copy(a.wbuf, buf)]

			return fmt.Errorf("%w: write %s at %d: %w", ErrIO, a.path, a.pos, io.ErrNoProgress)
		}
	}

	a.wbuf = a.wbuf[:0]
	a.stats.Flushes++

	return nil
}

// SetPosition moves the physical offset to pos and empties the read window,
// so the next read fetches a fresh block.
//
// It returns [ErrPendingWrites] if the write buffer is not empty.
func (a *Accessor) SetPosition(pos int64) error {
	if a.closed {
		return ErrClosed
	}

	if len(a.wbuf) > 0 {
		return fmt.Errorf("%w: %d bytes buffered in %s", ErrPendingWrites, len(a.wbuf), a.path)
	}

	got, err := a.f.Seek(pos, io.SeekStart)
	if err != nil {
		return fmt.Errorf("%w: seek %s to %d: %w", ErrIO, a.path, pos, err)
	}

	a.pos = got
	a.r, a.limit = 0, 0
	a.stats.Seeks++

	return nil
}

// ReadAt reads len(p) bytes at off without touching the buffers or the
// physical offset. Buffered writes are not visible; flush first.
//
// At end of file it returns the bytes read and [io.EOF].
func (a *Accessor) ReadAt(p []byte, off int64) (int, error) {
	if a.closed {
		return 0, ErrClosed
	}

	n, err := a.f.ReadAt(p, off)
	a.stats.BytesRead += int64(n)

	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("%w: read %s at %d: %w", ErrIO, a.path, off, err)
	}

	return n, err
}

// Truncate sets the file size. It returns [ErrPendingWrites] if the write
// buffer is not empty.
func (a *Accessor) Truncate(size int64) error {
	if a.closed {
		return ErrClosed
	}

	if len(a.wbuf) > 0 {
		return fmt.Errorf("%w: truncate %s", ErrPendingWrites, a.path)
	}

	if err := a.f.Truncate(size); err != nil {
		return fmt.Errorf("%w: truncate %s to %d: %w", ErrIO, a.path, size, err)
	}

	a.size = size

	log.Debugw("truncated", "path", a.path, "size", size)

	return nil
}

// Sync flushes the write buffer and commits the file to stable storage.
func (a *Accessor) Sync() error {
	if err := a.Flush(); err != nil {
		return err
	}

	if err := a.f.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %w", ErrIO, a.path, err)
	}

	return nil
}

// Close flushes the write buffer and closes the file. The file is closed
// even if the flush fails; both errors are returned joined.
// Close on a closed accessor returns nil.
func (a *Accessor) Close() error {
	if a.closed {
		return nil
	}

	flushErr := a.Flush()
	a.closed = true

	var closeErr error
	if err := a.f.Close(); err != nil {
		closeErr = fmt.Errorf("%w: close %s: %w", ErrIO, a.path, err)
	}

	log.Debugw("closed", "path", a.path, "size", a.size,
		"blockReads", a.stats.BlockReads, "bytesWritten", a.stats.BytesWritten, "seeks", a.stats.Seeks)

	return errors.Join(flushErr, closeErr)
}
