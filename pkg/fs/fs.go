// Package fs provides the filesystem seam used by the sorter.
//
// The main types are:
//   - [FS]: interface for filesystem operations
//   - [File]: interface for open files (satisfied by [os.File])
//   - [Real]: production implementation using [os] package
//   - [Chaos]: testing implementation that injects random failures
//   - [Locker]: advisory flock(2) locks on a lock file
//
// Example usage:
//
//	fsys := fs.NewReal()
//	f, err := fsys.OpenFile("data.bin", os.O_RDWR, 0)
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
package fs

import (
	"io"
	"os"
)

// File represents an OS-backed open file descriptor.
//
// This interface is satisfied by [os.File]. Implementations must behave like
// [os.File], including that [File.Fd] returns a descriptor usable with
// flock(2) until the file is closed.
//
// Note: [File] includes [io.Writer] even for read-only handles. Like [os.File],
// implementations should return an error from Write when the file wasn't opened
// for writing.
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// ReadAt reads at an absolute offset without moving the file offset.
	// See [os.File.ReadAt].
	io.ReaderAt

	// Fd returns the file descriptor. See [os.File.Fd].
	Fd() uintptr

	// Stat returns the [os.FileInfo] for this file. See [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to disk. See [os.File.Sync].
	Sync() error

	// Truncate changes the size of the file without moving the file offset.
	// See [os.File.Truncate].
	Truncate(size int64) error
}

// FS is the set of path operations the sorter needs. Methods mirror their
// [os] equivalents so [Chaos] can intercept them.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type FS interface {
	// Open opens a file for reading. See [os.Open].
	Open(path string) (File, error)

	// OpenFile opens a file with specified flags and permissions. See [os.OpenFile].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// Stat returns file info. See [os.Stat].
	Stat(path string) (os.FileInfo, error)

	// Remove deletes a file or empty directory. See [os.Remove].
	Remove(path string) error
}

var _ File = (*os.File)(nil)
