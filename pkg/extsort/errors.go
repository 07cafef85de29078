package extsort

import (
	"errors"

	"github.com/calvinalkan/extsort/pkg/blockfile"
	"github.com/calvinalkan/extsort/pkg/minheap"
)

var (
	// ErrCorruptData is returned when a run claims more records than the run
	// file holds.
	ErrCorruptData = errors.New("extsort: corrupt run data")

	// ErrClosed is returned by operations on a closed [Sorter].
	ErrClosed = errors.New("extsort: sorter closed")

	// ErrAlreadySorted is returned when a phase is run twice.
	ErrAlreadySorted = errors.New("extsort: phase already completed")

	// ErrNotSorted is returned by [Sorter.Merge] before [Sorter.Sort].
	ErrNotSorted = errors.New("extsort: runs not generated")

	// ErrInvalidOptions is returned by [Open] for unusable [Options].
	ErrInvalidOptions = errors.New("extsort: invalid options")
)

// Re-exported so callers only need this package for errors.Is checks.
var (
	ErrIO               = blockfile.ErrIO
	ErrCapacityExceeded = minheap.ErrCapacityExceeded
	ErrEmptyHeap        = minheap.ErrEmpty
)
