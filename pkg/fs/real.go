package fs

import (
	"os"
)

// Real implements [FS] using the real filesystem.
//
// All methods are passthroughs to the [os] package with identical behavior
// and error semantics.
type Real struct{}

// NewReal returns a new [Real] filesystem.
func NewReal() *Real {
	return &Real{}
}

func (r *Real) Open(path string) (File, error) {
	return os.Open(path)
}

func (r *Real) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(path, flag, perm)
}

func (r *Real) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func (r *Real) Remove(path string) error {
	return os.Remove(path)
}

var _ FS = (*Real)(nil)
