package extsort

import (
	"errors"
	"fmt"
	"io"

	"github.com/calvinalkan/extsort/pkg/blockfile"
	"github.com/calvinalkan/extsort/pkg/record"
)

// RunCursor tracks one sorted run in the run file during the merge.
//
// A cursor with no current record (exhausted or failed) sorts after every
// cursor that has one, see [CompareCursors].
type RunCursor struct {
	start     int64
	total     int64
	remaining int64
	pos       int64

	cur record.Record
	has bool

	// Private read window used in buffered merge mode. Nil in shared mode.
	window   []byte
	wr, wlim int
}

// NewRunCursor returns a cursor over length records starting at byte offset
// start of the run file.
func NewRunCursor(length, start int64) *RunCursor {
	return &RunCursor{
		start:     start,
		total:     length,
		remaining: length,
		pos:       start,
	}
}

// Start returns the byte offset of the run.
func (c *RunCursor) Start() int64 { return c.start }

// Total returns the number of records in the run.
func (c *RunCursor) Total() int64 { return c.total }

// Remaining returns how many records are still unread.
func (c *RunCursor) Remaining() int64 { return c.remaining }

// Current returns the most recently loaded record.
func (c *RunCursor) Current() (record.Record, bool) { return c.cur, c.has }

// buffer switches the cursor to buffered mode with a window of n records.
func (c *RunCursor) buffer(n int) {
	c.window = make([]byte, n*record.Size)
	c.wr, c.wlim = 0, 0
}

// LoadNext reads the next record of the run from a.
//
// It returns false with a nil error once the run is exhausted. If the file
// ends before the run does, it returns false and an error wrapping
// [ErrCorruptData]. In both cases the cursor no longer has a current record.
func (c *RunCursor) LoadNext(a *blockfile.Accessor) (bool, error) {
	c.has = false
	c.cur = record.Record{}

	if c.remaining == 0 {
		return false, nil
	}

	var (
		rec record.Record
		err error
	)

	if c.window != nil {
		rec, err = c.nextBuffered(a)
	} else {
		rec, err = c.nextShared(a)
	}

	if errors.Is(err, io.EOF) {
		return false, fmt.Errorf("%w: run at %d ends at %d with %d of %d records left",
			ErrCorruptData, c.start, c.pos, c.remaining, c.total)
	}

	if err != nil {
		return false, err
	}

	c.remaining--
	c.pos += record.Size
	c.cur, c.has = rec, true

	return true, nil
}

func (c *RunCursor) nextShared(a *blockfile.Accessor) (record.Record, error) {
	if err := a.SetPosition(c.pos); err != nil {
		return record.Record{}, err
	}

	return a.ReadRecord()
}

func (c *RunCursor) nextBuffered(a *blockfile.Accessor) (record.Record, error) {
	if c.wlim-c.wr < record.Size {
		want := min(int64(len(c.window)), c.remaining*record.Size)

		n, err := a.ReadAt(c.window[:want], c.pos)
		if err != nil && !errors.Is(err, io.EOF) {
			return record.Record{}, err
		}

		c.wr, c.wlim = 0, n-n%record.Size

		if c.wlim == 0 {
			return record.Record{}, io.EOF
		}
	}

	rec, err := record.Decode(c.window[c.wr:c.wlim])
	if err != nil {
		return record.Record{}, err
	}

	c.wr += record.Size

	return rec, nil
}

// CompareCursors orders cursors by their current record. Cursors without a
// current record compare greater than any cursor with one, and equal to
// each other.
func CompareCursors(a, b *RunCursor) int {
	switch {
	case !a.has && !b.has:
		return 0
	case !a.has:
		return 1
	case !b.has:
		return -1
	default:
		return record.Compare(a.cur, b.cur)
	}
}

// windowRecords returns the per-run window size when a heap budget of
// capacity records is split across runs, clamped to [1, record.PerBlock].
func windowRecords(capacity, runs int) int {
	if runs <= 0 {
		return 1
	}

	return max(1, min(record.PerBlock, capacity/runs))
}
