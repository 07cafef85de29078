package fs

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

var (
	// ErrWouldBlock is returned when a lock is held by another process and
	// could not be acquired before the timeout.
	ErrWouldBlock = errors.New("fs: lock would block")

	// ErrInvalidTimeout is returned for negative timeouts.
	ErrInvalidTimeout = errors.New("fs: invalid lock timeout")

	errInodeMismatch = errors.New("fs: lock file replaced")
)

const lockFilePerm = 0o600

// Locker takes advisory exclusive flock(2) locks on a lock file.
//
// flock applies to an inode, not a pathname, so all cooperating processes
// must lock the same stable file (for example "data.bin.lock"). After
// locking, Locker checks that the descriptor still refers to the file at
// path and retries if it was replaced in between.
//
// This implementation is Unix-only.
type Locker struct {
	fs    FS
	flock func(fd int, how int) error
}

// NewLocker creates a Locker that opens lock files through fsys.
func NewLocker(fsys FS) *Locker {
	return &Locker{fs: fsys, flock: unix.Flock}
}

// Lock is a held file lock. Call [Lock.Close] to release it.
type Lock struct {
	mu    sync.Mutex
	file  File
	flock func(fd int, how int) error
}

// Close releases the lock and closes the lock file. Idempotent.
func (lk *Lock) Close() error {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	if lk.file == nil {
		return nil
	}

	unlockErr := flockRetryEINTR(lk.flock, int(lk.file.Fd()), unix.LOCK_UN)
	closeErr := lk.file.Close()
	lk.file = nil

	if unlockErr != nil {
		unlockErr = fmt.Errorf("unlocking lock: %w", unlockErr)
	}

	if closeErr != nil {
		closeErr = fmt.Errorf("closing lock fd: %w", closeErr)
	}

	return errors.Join(unlockErr, closeErr)
}

// TryLock attempts to take the lock once without waiting.
func (l *Locker) TryLock(path string) (*Lock, error) {
	return l.LockWithTimeout(path, 0)
}

// LockWithTimeout polls for the lock with backoff (1ms doubling to 25ms)
// until timeout expires. A zero timeout tries exactly once.
//
// Returns an error wrapping [ErrWouldBlock] when the lock stays held.
func (l *Locker) LockWithTimeout(path string, timeout time.Duration) (*Lock, error) {
	if timeout < 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimeout, timeout)
	}

	deadline := time.Now().Add(timeout)
	backoff := time.Millisecond

	for {
		file, err := l.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, lockFilePerm)
		if err != nil {
			return nil, fmt.Errorf("opening lockfile: %w", err)
		}

		err = l.acquire(file, path)
		if err == nil {
			return &Lock{file: file, flock: l.flock}, nil
		}

		_ = file.Close()

		if !errors.Is(err, ErrWouldBlock) && !errors.Is(err, errInodeMismatch) {
			return nil, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			if timeout == 0 {
				return nil, fmt.Errorf("%w: %s", ErrWouldBlock, path)
			}

			return nil, fmt.Errorf("%w: %s: timed out after %s", ErrWouldBlock, path, timeout)
		}

		time.Sleep(min(backoff, remaining))

		backoff = min(backoff*2, 25*time.Millisecond)
	}
}

func (l *Locker) acquire(file File, path string) error {
	fd := int(file.Fd())

	if err := flockRetryEINTR(l.flock, fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			return ErrWouldBlock
		}

		return fmt.Errorf("flock: %w", err)
	}

	match, err := l.sameInode(path, file)
	if err != nil || !match {
		_ = flockRetryEINTR(l.flock, fd, unix.LOCK_UN)

		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("verifying lock inode: %w", err)
		}

		return errInodeMismatch
	}

	return nil
}

// sameInode reports whether f still refers to the file currently at path.
func (l *Locker) sameInode(path string, f File) (bool, error) {
	openInfo, err := f.Stat()
	if err != nil {
		return false, err
	}

	pathInfo, err := l.fs.Stat(path)
	if err != nil {
		return false, err
	}

	return os.SameFile(openInfo, pathInfo), nil
}

func flockRetryEINTR(flock func(fd int, how int) error, fd int, how int) error {
	const maxEINTRRetries = 10000

	var err error
	for range maxEINTRRetries {
		err = flock(fd, how)
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}

	return err
}
