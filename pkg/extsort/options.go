package extsort

import (
	"fmt"
	"path/filepath"

	"github.com/calvinalkan/extsort/pkg/record"
)

// DefaultMemoryBlocks is the heap budget in blocks when none is configured.
const DefaultMemoryBlocks = 8

// DefaultRunFileName is the run file created next to the input by default.
const DefaultRunFileName = "runFile.bin"

// MergeMode selects how run cursors read the run file during the merge.
type MergeMode int

const (
	// MergeBuffered gives each run cursor a private read window filled with
	// positional reads. The heap budget is split between the cursors.
	MergeBuffered MergeMode = iota

	// MergeShared repositions the shared run-file accessor before every
	// record, re-reading a block each time more than one run is active.
	MergeShared
)

func (m MergeMode) String() string {
	switch m {
	case MergeBuffered:
		return "buffered"
	case MergeShared:
		return "shared"
	default:
		return fmt.Sprintf("MergeMode(%d)", int(m))
	}
}

// ParseMergeMode parses "buffered" or "shared". The empty string is buffered.
func ParseMergeMode(s string) (MergeMode, error) {
	switch s {
	case "", "buffered":
		return MergeBuffered, nil
	case "shared":
		return MergeShared, nil
	default:
		return 0, fmt.Errorf("%w: unknown merge mode %q (want buffered or shared)", ErrInvalidOptions, s)
	}
}

// Phase identifies the sorter phase reported through [Options.Progress].
type Phase int

const (
	PhaseSort Phase = iota
	PhaseMerge
)

func (p Phase) String() string {
	if p == PhaseMerge {
		return "merge"
	}

	return "sort"
}

// Progress is reported once per block of records processed.
type Progress struct {
	Phase Phase
	Done  int64
	Total int64
}

// Options configures a [Sorter]. The zero value is usable.
type Options struct {
	// MemoryBlocks is the heap budget in blocks of [record.PerBlock] records.
	// Zero means [DefaultMemoryBlocks].
	MemoryBlocks int

	// HeapCapacity overrides MemoryBlocks with an exact record capacity.
	HeapCapacity int

	// RunFile is the scratch run file path. Empty means [DefaultRunFileName]
	// in the input's directory.
	RunFile string

	MergeMode MergeMode

	// KeepRunFile leaves the run file on disk after [Sorter.Close].
	KeepRunFile bool

	// BlockSize overrides the physical block size of both files.
	// Zero means [record.BlockSize].
	BlockSize int

	// Progress, if set, is called synchronously from Sort and Merge.
	Progress func(Progress)
}

func (o Options) withDefaults(inputPath string) (Options, error) {
	if o.MemoryBlocks < 0 || o.HeapCapacity < 0 || o.BlockSize < 0 {
		return o, fmt.Errorf("%w: negative size", ErrInvalidOptions)
	}

	if o.MemoryBlocks == 0 {
		o.MemoryBlocks = DefaultMemoryBlocks
	}

	if o.HeapCapacity == 0 {
		o.HeapCapacity = o.MemoryBlocks * record.PerBlock
	}

	if o.BlockSize == 0 {
		o.BlockSize = record.BlockSize
	}

	if o.RunFile == "" {
		o.RunFile = filepath.Join(filepath.Dir(inputPath), DefaultRunFileName)
	}

	if o.MergeMode != MergeBuffered && o.MergeMode != MergeShared {
		return o, fmt.Errorf("%w: %s", ErrInvalidOptions, o.MergeMode)
	}

	if filepath.Clean(o.RunFile) == filepath.Clean(inputPath) {
		return o, fmt.Errorf("%w: run file must differ from input %s", ErrInvalidOptions, inputPath)
	}

	return o, nil
}
