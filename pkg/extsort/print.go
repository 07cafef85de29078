package extsort

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/calvinalkan/extsort/pkg/blockfile"
	"github.com/calvinalkan/extsort/pkg/fs"
	"github.com/calvinalkan/extsort/pkg/record"
)

// DefaultPerLine is the number of records printed per line.
const DefaultPerLine = 5

// PrintOptions controls [Print].
type PrintOptions struct {
	// All prints every record instead of the first record of each block.
	All bool

	// PerLine is the number of records per output line. Zero means
	// [DefaultPerLine].
	PerLine int
}

// Print writes records of path to w as "<id> <key>" pairs separated by
// spaces, PerLine records to a line.
//
// By default only the first record of every block is printed, which samples
// a large sorted file cheaply. A trailing partial block counts as a block.
func Print(w io.Writer, fsys fs.FS, path string, opts PrintOptions) (int64, error) {
	if opts.PerLine <= 0 {
		opts.PerLine = DefaultPerLine
	}

	a, err := blockfile.Open(fsys, path, blockfile.ReadOnly)
	if err != nil {
		return 0, err
	}

	p := &printer{w: bufio.NewWriter(w), perLine: opts.PerLine}

	if opts.All {
		err = p.all(a)
	} else {
		err = p.blockHeads(a)
	}

	if err == nil {
		err = p.finish()
	}

	return p.count, errors.Join(err, a.Close())
}

type printer struct {
	w       *bufio.Writer
	perLine int
	count   int64
}

func (p *printer) add(r record.Record) error {
	if p.count > 0 {
		sep := byte(' ')
		if p.count%int64(p.perLine) == 0 {
			sep = '\n'
		}

		if err := p.w.WriteByte(sep); err != nil {
			return err
		}
	}

	p.count++

	_, err := p.w.WriteString(r.String())

	return err
}

func (p *printer) finish() error {
	if p.count > 0 {
		if err := p.w.WriteByte('\n'); err != nil {
			return err
		}
	}

	if err := p.w.Flush(); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	return nil
}

func (p *printer) all(a *blockfile.Accessor) error {
	for {
		r, err := a.ReadRecord()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return err
		}

		if err := p.add(r); err != nil {
			return err
		}
	}
}

func (p *printer) blockHeads(a *blockfile.Accessor) error {
	var buf [record.Size]byte

	blockSize := int64(a.BlockSize())

	for off := int64(0); off+record.Size <= a.Size(); off += blockSize {
		if _, err := a.ReadAt(buf[:], off); err != nil {
			return err
		}

		r, err := record.Decode(buf[:])
		if err != nil {
			return err
		}

		if err := p.add(r); err != nil {
			return err
		}
	}

	return nil
}
