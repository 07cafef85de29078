package extsort

import (
	"fmt"
	"os"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/calvinalkan/extsort/pkg/record"
)

// Report is the result of [Verify].
type Report struct {
	Records       int64
	TrailingBytes int64
	Sorted        bool

	// FirstViolation is the index of the first record that sorts before its
	// predecessor, or -1.
	FirstViolation int64

	Digest Digest
}

// Verify reads path through a read-only memory map, independent of the
// buffered accessor used for sorting, and checks that its records are in
// order.
func Verify(path string) (Report, error) {
	f, err := os.Open(path) //nolint:gosec // path is from caller
	if err != nil {
		return Report{}, fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Report{}, fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
	}

	rep := Report{Sorted: true, FirstViolation: -1}

	// mmap of a zero-length file fails.
	if info.Size() == 0 {
		return rep, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return Report{}, fmt.Errorf("%w: mmap %s: %w", ErrIO, path, err)
	}

	rep.scan(m)

	if err := m.Unmap(); err != nil {
		return rep, fmt.Errorf("%w: unmap %s: %w", ErrIO, path, err)
	}

	return rep, nil
}

func (rep *Report) scan(data []byte) {
	whole := len(data) - len(data)%record.Size
	rep.TrailingBytes = int64(len(data) - whole)

	var prev record.Record

	for off := 0; off < whole; off += record.Size {
		r, _ := record.Decode(data[off:])

		if rep.Records > 0 && rep.Sorted && r.Less(prev) {
			rep.Sorted = false
			rep.FirstViolation = rep.Records
		}

		rep.Digest.Add(r)
		rep.Records++
		prev = r
	}
}
