// Package extsort sorts a file of fixed-width records that does not fit in
// memory.
//
// [Sorter.Sort] reads the input through a heap of bounded capacity and writes
// sorted runs to a scratch run file using replacement selection: each record
// read replaces the one just written, unless it is smaller, in which case it
// is deferred to the next run. [Sorter.Merge] then merges all runs in a
// single pass back into the input file, overwriting it in place, and
// truncates it to the merged length.
//
// A failed sort leaves the input in an indeterminate state. Callers that need
// to recover should take a [Backup] first.
package extsort

import (
	"context"
	"errors"
	"fmt"
	"io"

	logging "github.com/ipfs/go-log/v2"

	"github.com/calvinalkan/extsort/pkg/blockfile"
	"github.com/calvinalkan/extsort/pkg/dlist"
	"github.com/calvinalkan/extsort/pkg/fs"
	"github.com/calvinalkan/extsort/pkg/minheap"
	"github.com/calvinalkan/extsort/pkg/record"
)

var log = logging.Logger("extsort")

type state int

const (
	stateOpen state = iota
	stateSorted
	stateMerged
	stateClosed
)

// RunInfo describes one generated run.
type RunInfo struct {
	Start  int64 // byte offset in the run file
	Length int64 // records
}

// Stats summarizes a sort.
type Stats struct {
	Records    int64 // records read from the input
	Runs       int
	Deferred   int64 // records deferred to a later run
	LongestRun int64
	Merged     int64 // records written back by the merge

	InputDigest  Digest
	OutputDigest Digest

	Input   blockfile.Stats
	RunFile blockfile.Stats
}

// Sorter owns the input and run file accessors for one sort-then-merge
// sequence. A Sorter is not safe for concurrent use.
type Sorter struct {
	fsys      fs.FS
	opts      Options
	inputPath string

	input *blockfile.Accessor
	runs  *blockfile.Accessor

	deferred *dlist.List[record.Record]
	runList  *dlist.List[*RunCursor]

	total int64
	state state
	stats Stats
}

// Open opens inputPath read-write and creates (or truncates) the run file.
func Open(fsys fs.FS, inputPath string, opts Options) (*Sorter, error) {
	opts, err := opts.withDefaults(inputPath)
	if err != nil {
		return nil, err
	}

	input, err := blockfile.Open(fsys, inputPath, blockfile.ReadWrite, blockfile.WithBlockSize(opts.BlockSize))
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}

	runs, err := blockfile.Open(fsys, opts.RunFile, blockfile.Scratch, blockfile.WithBlockSize(opts.BlockSize))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("opening run file: %w", err), input.Close())
	}

	log.Debugw("sorter opened", "input", inputPath, "runFile", opts.RunFile,
		"capacity", opts.HeapCapacity, "mergeMode", opts.MergeMode.String())

	return &Sorter{
		fsys:      fsys,
		opts:      opts,
		inputPath: inputPath,
		input:     input,
		runs:      runs,
		deferred:  dlist.New[record.Record](0),
		runList:   dlist.New[*RunCursor](0),
		total:     input.Size() / record.Size,
	}, nil
}

// Capacity returns the heap capacity in records.
func (s *Sorter) Capacity() int { return s.opts.HeapCapacity }

// RunFile returns the run file path.
func (s *Sorter) RunFile() string { return s.opts.RunFile }

// Run performs [Sorter.Sort] followed by [Sorter.Merge].
func (s *Sorter) Run(ctx context.Context) error {
	if err := s.Sort(ctx); err != nil {
		return err
	}

	return s.Merge(ctx)
}

// Sort generates sorted runs from the input into the run file.
func (s *Sorter) Sort(ctx context.Context) error {
	switch s.state {
	case stateClosed:
		return ErrClosed
	case stateOpen:
	default:
		return fmt.Errorf("%w: sort", ErrAlreadySorted)
	}

	capacity := s.opts.HeapCapacity
	batch := make([]record.Record, capacity)

	for s.input.HasData() || s.deferred.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := s.fillBatch(batch)
		if err != nil {
			return err
		}

		if n == 0 {
			break
		}

		heap, err := minheap.New(batch, n, capacity, record.Compare)
		if err != nil {
			return err
		}

		if err := s.generateRun(ctx, heap); err != nil {
			return err
		}
	}

	s.state = stateSorted
	s.report(PhaseSort, s.stats.Records, s.total)

	log.Debugw("runs generated", "input", s.inputPath, "records", s.stats.Records,
		"runs", s.stats.Runs, "deferred", s.stats.Deferred, "longestRun", s.stats.LongestRun)

	return nil
}

// fillBatch collects the next heap batch: fresh input when nothing is
// deferred, otherwise the deferred records.
func (s *Sorter) fillBatch(batch []record.Record) (int, error) {
	n := 0

	if s.deferred.Len() == 0 {
		for n < len(batch) {
			r, err := s.input.ReadRecord()
			if errors.Is(err, io.EOF) {
				break
			}

			if err != nil {
				return 0, fmt.Errorf("reading input: %w", err)
			}

			s.observeInput(r)
			batch[n] = r
			n++
		}

		return n, nil
	}

	for n < len(batch) {
		r, ok := s.deferred.RemoveHead()
		if !ok {
			break
		}

		batch[n] = r
		n++
	}

	return n, nil
}

// generateRun writes one run: it repeatedly emits the heap minimum and
// replaces it with the next input record, deferring records that are
// smaller than the one just written.
func (s *Sorter) generateRun(ctx context.Context, heap *minheap.Heap[record.Record]) error {
	start := s.runs.Position()

	var count int64

	for heap.Len() > 0 {
		minimum, err := heap.RemoveMin()
		if err != nil {
			return err
		}

		if err := s.runs.WriteRecord(minimum); err != nil {
			return fmt.Errorf("writing run: %w", err)
		}

		count++

		if s.input.HasData() {
			next, err := s.input.ReadRecord()

			switch {
			case errors.Is(err, io.EOF):
			case err != nil:
				return fmt.Errorf("reading input: %w", err)
			default:
				s.observeInput(next)

				if next.Less(minimum) {
					s.deferred.InsertTail(next)
					s.stats.Deferred++
				} else if err := heap.Insert(next); err != nil {
					return err
				}
			}
		}

		if count%record.PerBlock == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}

	if err := s.runs.Flush(); err != nil {
		return fmt.Errorf("flushing run: %w", err)
	}

	s.runList.InsertTail(NewRunCursor(count, start))
	s.stats.Runs++
	s.stats.LongestRun = max(s.stats.LongestRun, count)

	log.Debugw("run written", "run", s.stats.Runs, "start", start, "records", count,
		"deferred", s.deferred.Len())

	return nil
}

func (s *Sorter) observeInput(r record.Record) {
	s.stats.Records++
	s.stats.InputDigest.Add(r)

	if s.stats.Records%record.PerBlock == 0 {
		s.report(PhaseSort, s.stats.Records, s.total)
	}
}

func (s *Sorter) report(phase Phase, done, total int64) {
	if s.opts.Progress != nil {
		s.opts.Progress(Progress{Phase: phase, Done: done, Total: total})
	}
}

// Merge merges all runs back into the input file from offset 0 and
// truncates the input to the merged length. The run file is closed.
func (s *Sorter) Merge(ctx context.Context) error {
	switch s.state {
	case stateClosed:
		return ErrClosed
	case stateOpen:
		return ErrNotSorted
	case stateMerged:
		return fmt.Errorf("%w: merge", ErrAlreadySorted)
	}

	numRuns := s.runList.Len()
	if numRuns == 0 {
		// Only a partial record, if anything, was read.
		if s.input.Size() > 0 {
			if err := s.input.Truncate(0); err != nil {
				return fmt.Errorf("truncating output: %w", err)
			}
		}

		s.state = stateMerged

		return nil
	}

	if numRuns > s.opts.HeapCapacity {
		log.Warnw("merge fan-in exceeds heap capacity", "runs", numRuns, "capacity", s.opts.HeapCapacity)
	}

	if err := s.input.SetPosition(0); err != nil {
		return fmt.Errorf("rewinding input: %w", err)
	}

	heap, err := minheap.New[*RunCursor](nil, 0, numRuns, CompareCursors)
	if err != nil {
		return err
	}

	window := windowRecords(s.opts.HeapCapacity, numRuns)

	for c := range s.runList.All() {
		if s.opts.MergeMode == MergeBuffered {
			c.buffer(window)
		}

		ok, err := c.LoadNext(s.runs)
		if err != nil {
			return fmt.Errorf("loading run at %d: %w", c.Start(), err)
		}

		if ok {
			if err := heap.Insert(c); err != nil {
				return err
			}
		}
	}

	for heap.Len() > 0 {
		c, err := heap.RemoveMin()
		if err != nil {
			return err
		}

		rec, _ := c.Current()

		if err := s.input.WriteRecord(rec); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}

		s.stats.Merged++
		s.stats.OutputDigest.Add(rec)

		ok, err := c.LoadNext(s.runs)
		if err != nil {
			return fmt.Errorf("loading run at %d: %w", c.Start(), err)
		}

		if ok {
			if err := heap.Insert(c); err != nil {
				return err
			}
		}

		if s.stats.Merged%record.PerBlock == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}

			s.report(PhaseMerge, s.stats.Merged, s.stats.Records)
		}
	}

	if err := s.input.Flush(); err != nil {
		return fmt.Errorf("flushing output: %w", err)
	}

	if err := s.input.Truncate(s.input.Position()); err != nil {
		return fmt.Errorf("truncating output: %w", err)
	}

	if err := s.runs.Close(); err != nil {
		return fmt.Errorf("closing run file: %w", err)
	}

	s.state = stateMerged
	s.report(PhaseMerge, s.stats.Merged, s.stats.Records)

	log.Debugw("merge complete", "input", s.inputPath, "records", s.stats.Merged,
		"runs", numRuns, "window", window, "runFileSeeks", s.runs.Stats().Seeks)

	return nil
}

// Runs returns the runs generated by [Sorter.Sort] in file order.
func (s *Sorter) Runs() []RunInfo {
	out := make([]RunInfo, 0, s.runList.Len())

	for c := range s.runList.All() {
		out = append(out, RunInfo{Start: c.Start(), Length: c.Total()})
	}

	return out
}

// Stats returns a snapshot of the counters collected so far.
func (s *Sorter) Stats() Stats {
	st := s.stats
	st.Input = s.input.Stats()
	st.RunFile = s.runs.Stats()

	return st
}

// Close releases both files and removes the run file unless
// [Options.KeepRunFile] is set. It is safe to call more than once.
func (s *Sorter) Close() error {
	if s.state == stateClosed {
		return nil
	}

	s.state = stateClosed

	errs := []error{s.input.Close(), s.runs.Close()}

	if !s.opts.KeepRunFile {
		if err := s.fsys.Remove(s.opts.RunFile); err != nil {
			errs = append(errs, fmt.Errorf("removing run file: %w", err))
		}
	}

	return errors.Join(errs...)
}
