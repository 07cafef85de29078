package fs

import (
	"errors"
	"io"
	"io/fs"
	"math/rand/v2"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
)

// ChaosConfig controls fault injection probabilities.
// Each rate is a float64 from 0.0 (never) to 1.0 (always).
//
// The zero value disables all fault injection.
type ChaosConfig struct {
	// OpenFailRate controls how often FS.Open and FS.OpenFile fail.
	OpenFailRate float64

	// ReadFailRate controls how often File.Read and File.ReadAt fail
	// entirely, returning zero bytes and EIO.
	ReadFailRate float64

	// PartialReadRate controls how often File.Read returns a short read
	// (n < len(buf), err == nil) by limiting the underlying read size. This is
	// valid io.Reader behavior and tests that callers loop until EOF.
	PartialReadRate float64

	// WriteFailRate controls how often File.Write fails entirely, writing zero
	// bytes and returning EIO, ENOSPC, EDQUOT or EROFS.
	WriteFailRate float64

	// PartialWriteRate controls how often File.Write writes only a prefix.
	// The error type is controlled by ShortWriteRate.
	PartialWriteRate float64

	// ShortWriteRate is the fraction of partial writes that return
	// io.ErrShortWrite instead of an errno. Callers may retry those.
	ShortWriteRate float64

	// SeekFailRate controls how often File.Seek fails with EIO.
	SeekFailRate float64

	// SyncFailRate controls how often File.Sync fails.
	SyncFailRate float64

	// TruncateFailRate controls how often File.Truncate fails.
	TruncateFailRate float64

	// CloseFailRate controls how often File.Close reports an error. The
	// underlying descriptor is always closed.
	CloseFailRate float64

	// StatFailRate controls how often FS.Stat and File.Stat fail.
	StatFailRate float64

	// RemoveFailRate controls how often FS.Remove fails.
	RemoveFailRate float64
}

// ChaosMode controls how [Chaos] behaves.
type ChaosMode uint8

const (
	// ChaosModeActive enables fault-rate injection. This is the default.
	ChaosModeActive ChaosMode = iota

	// ChaosModeNoOp passes every operation directly to the underlying FS.
	ChaosModeNoOp
)

// ChaosStats contains counts of injected faults.
type ChaosStats struct {
	OpenFails     int64
	ReadFails     int64
	PartialReads  int64
	WriteFails    int64
	PartialWrites int64
	ShortWrites   int64
	SeekFails     int64
	SyncFails     int64
	TruncateFails int64
	CloseFails    int64
	StatFails     int64
	RemoveFails   int64
}

// chaosError marks an error as intentionally injected by [Chaos].
// It wraps the underlying error so errors.Is/As continue to work.
type chaosError struct {
	Err error
}

func (e *chaosError) Error() string {
	return "chaos: " + e.Err.Error()
}

func (e *chaosError) Unwrap() error {
	return e.Err
}

// IsChaosErr reports whether err (or any wrapped error) was injected by [Chaos].
func IsChaosErr(err error) bool {
	var injected *chaosError

	return errors.As(err, &injected)
}

// Chaos wraps an [FS] and injects random failures for testing.
//
// Injected errno failures are returned as an [*fs.PathError] wrapped in a
// marker so tests can tell them apart from real errors with [IsChaosErr].
// Chaos never injects ENOENT; missing-path errors come from the wrapped FS.
//
// Short reads never skip bytes: the underlying read is limited, so the file
// offset only advances by what was returned.
type Chaos struct {
	fs     FS
	config ChaosConfig
	mode   atomic.Uint32

	rngMu sync.Mutex
	rng   *rand.Rand

	openFails     atomic.Int64
	readFails     atomic.Int64
	partialReads  atomic.Int64
	writeFails    atomic.Int64
	partialWrites atomic.Int64
	shortWrites   atomic.Int64
	seekFails     atomic.Int64
	syncFails     atomic.Int64
	truncateFails atomic.Int64
	closeFails    atomic.Int64
	statFails     atomic.Int64
	removeFails   atomic.Int64
}

// NewChaos creates a new [Chaos] filesystem wrapping the given [FS].
// The seed controls random fault injection for reproducibility.
// Panics if underlying is nil.
func NewChaos(underlying FS, seed int64, config ChaosConfig) *Chaos {
	if underlying == nil {
		panic("underlying fs is nil")
	}

	return &Chaos{
		fs:     underlying,
		config: config,
		rng:    rand.New(rand.NewPCG(uint64(seed), uint64(seed))),
	}
}

// SetMode updates [Chaos] behavior. Safe to call concurrently.
func (c *Chaos) SetMode(m ChaosMode) { c.mode.Store(uint32(m)) }

// Stats returns the current fault injection counts.
func (c *Chaos) Stats() ChaosStats {
	return ChaosStats{
		OpenFails:     c.openFails.Load(),
		ReadFails:     c.readFails.Load(),
		PartialReads:  c.partialReads.Load(),
		WriteFails:    c.writeFails.Load(),
		PartialWrites: c.partialWrites.Load(),
		ShortWrites:   c.shortWrites.Load(),
		SeekFails:     c.seekFails.Load(),
		SyncFails:     c.syncFails.Load(),
		TruncateFails: c.truncateFails.Load(),
		CloseFails:    c.closeFails.Load(),
		StatFails:     c.statFails.Load(),
		RemoveFails:   c.removeFails.Load(),
	}
}

// TotalFaults returns the total number of injected faults, including
// short reads and short writes that returned no error.
func (c *Chaos) TotalFaults() int64 {
	s := c.Stats()

	return s.OpenFails + s.ReadFails + s.PartialReads + s.WriteFails + s.PartialWrites +
		s.ShortWrites + s.SeekFails + s.SyncFails + s.TruncateFails + s.CloseFails + s.StatFails + s.RemoveFails
}

func (c *Chaos) Open(path string) (File, error) {
	return c.openWithChaos(path, os.O_RDONLY, func() (File, error) { return c.fs.Open(path) })
}

func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	return c.openWithChaos(path, flag, func() (File, error) { return c.fs.OpenFile(path, flag, perm) })
}

func (c *Chaos) Stat(path string) (os.FileInfo, error) {
	if c.should(c.config.StatFailRate) {
		c.statFails.Add(1)

		return nil, pathError("stat", path, c.pick(syscall.EACCES, syscall.EIO))
	}

	return c.fs.Stat(path)
}

func (c *Chaos) Remove(path string) error {
	if c.should(c.config.RemoveFailRate) {
		c.removeFails.Add(1)

		return pathError("remove", path, c.pick(syscall.EACCES, syscall.EPERM, syscall.EBUSY, syscall.EIO))
	}

	return c.fs.Remove(path)
}

func (c *Chaos) openWithChaos(path string, flag int, open func() (File, error)) (File, error) {
	if c.should(c.config.OpenFailRate) {
		c.openFails.Add(1)

		errnos := []syscall.Errno{syscall.EACCES, syscall.EIO, syscall.EMFILE, syscall.ENFILE}
		if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC) != 0 {
			errnos = append(errnos, syscall.ENOSPC, syscall.EDQUOT, syscall.EROFS)
		}

		return nil, pathError("open", path, c.pick(errnos...))
	}

	f, err := open()
	if err != nil {
		return nil, err
	}

	return &chaosFile{f: f, chaos: c, path: path}, nil
}

func (c *Chaos) should(rate float64) bool {
	if ChaosMode(c.mode.Load()) != ChaosModeActive || rate <= 0 {
		return false
	}

	return c.randFloat() < rate
}

func (c *Chaos) randFloat() float64 {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()

	return c.rng.Float64()
}

func (c *Chaos) randIntn(n int) int {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()

	return c.rng.IntN(n)
}

func (c *Chaos) pick(errnos ...syscall.Errno) syscall.Errno {
	return errnos[c.randIntn(len(errnos))]
}

func pathError(op, path string, errno syscall.Errno) error {
	return &chaosError{Err: &fs.PathError{Op: op, Path: path, Err: errno}}
}

// chaosFile wraps a [File] and injects faults on its operations.
type chaosFile struct {
	f     File
	chaos *Chaos
	path  string
}

var _ File = (*chaosFile)(nil)

func (cf *chaosFile) Read(buf []byte) (int, error) {
	c := cf.chaos

	if c.should(c.config.ReadFailRate) {
		c.readFails.Add(1)

		return 0, pathError("read", cf.path, syscall.EIO)
	}

	if len(buf) > 1 && c.should(c.config.PartialReadRate) {
		c.partialReads.Add(1)

		return cf.f.Read(buf[:c.randIntn(len(buf)-1)+1])
	}

	return cf.f.Read(buf)
}

func (cf *chaosFile) ReadAt(buf []byte, off int64) (int, error) {
	c := cf.chaos

	if c.should(c.config.ReadFailRate) {
		c.readFails.Add(1)

		return 0, pathError("read", cf.path, syscall.EIO)
	}

	return cf.f.ReadAt(buf, off)
}

func (cf *chaosFile) Write(data []byte) (int, error) {
	c := cf.chaos

	if c.should(c.config.WriteFailRate) {
		c.writeFails.Add(1)

		return 0, pathError("write", cf.path, c.pick(syscall.EIO, syscall.ENOSPC, syscall.EDQUOT, syscall.EROFS))
	}

	if len(data) > 1 && c.should(c.config.PartialWriteRate) {
		wrote, err := cf.f.Write(data[:c.randIntn(len(data)-1)+1])
		if err != nil {
			return wrote, err
		}

		if c.randFloat() < c.config.ShortWriteRate {
			c.shortWrites.Add(1)

			return wrote, &chaosError{Err: io.ErrShortWrite}
		}

		c.partialWrites.Add(1)

		return wrote, pathError("write", cf.path, c.pick(syscall.EIO, syscall.ENOSPC, syscall.EDQUOT, syscall.EROFS))
	}

	return cf.f.Write(data)
}

func (cf *chaosFile) Seek(offset int64, whence int) (int64, error) {
	c := cf.chaos

	if c.should(c.config.SeekFailRate) {
		c.seekFails.Add(1)

		return 0, pathError("seek", cf.path, syscall.EIO)
	}

	return cf.f.Seek(offset, whence)
}

func (cf *chaosFile) Stat() (os.FileInfo, error) {
	c := cf.chaos

	if c.should(c.config.StatFailRate) {
		c.statFails.Add(1)

		return nil, pathError("stat", cf.path, syscall.EIO)
	}

	return cf.f.Stat()
}

func (cf *chaosFile) Sync() error {
	c := cf.chaos

	if c.should(c.config.SyncFailRate) {
		c.syncFails.Add(1)

		return pathError("sync", cf.path, c.pick(syscall.EIO, syscall.ENOSPC, syscall.EDQUOT))
	}

	return cf.f.Sync()
}

func (cf *chaosFile) Truncate(size int64) error {
	c := cf.chaos

	if c.should(c.config.TruncateFailRate) {
		c.truncateFails.Add(1)

		return pathError("truncate", cf.path, c.pick(syscall.EIO, syscall.EROFS))
	}

	return cf.f.Truncate(size)
}

func (cf *chaosFile) Close() error {
	c := cf.chaos
	inject := c.should(c.config.CloseFailRate)

	if err := cf.f.Close(); err != nil {
		return err
	}

	if inject {
		c.closeFails.Add(1)

		return pathError("close", cf.path, syscall.EIO)
	}

	return nil
}

func (cf *chaosFile) Fd() uintptr {
	return cf.f.Fd()
}

var _ FS = (*Chaos)(nil)
