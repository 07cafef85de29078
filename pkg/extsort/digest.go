package extsort

import (
	"errors"
	"fmt"
	"io"

	"github.com/spaolacci/murmur3"

	"github.com/calvinalkan/extsort/pkg/blockfile"
	"github.com/calvinalkan/extsort/pkg/fs"
	"github.com/calvinalkan/extsort/pkg/record"
)

// Digest is an order-independent fingerprint of a multiset of records:
// the count, sum and xor of the murmur3 64-bit hash of each encoded record.
//
// Two files holding the same records in any order have equal digests, so
// comparing the digest of the input before a sort with that of the output
// checks that no record was lost, duplicated or altered.
type Digest struct {
	Count int64
	Sum   uint64
	Xor   uint64
}

// Add folds r into the digest.
func (d *Digest) Add(r record.Record) {
	var buf [record.Size]byte

	record.Encode(buf[:], r)

	h := murmur3.Sum64(buf[:])
	d.Count++
	d.Sum += h
	d.Xor ^= h
}

// Equal reports whether both digests describe the same multiset.
func (d Digest) Equal(other Digest) bool {
	return d == other
}

func (d Digest) String() string {
	return fmt.Sprintf("records=%d sum=%016x xor=%016x", d.Count, d.Sum, d.Xor)
}

// DigestFile computes the digest of every whole record in path.
func DigestFile(fsys fs.FS, path string) (Digest, error) {
	a, err := blockfile.Open(fsys, path, blockfile.ReadOnly)
	if err != nil {
		return Digest{}, err
	}

	var d Digest

	for {
		r, err := a.ReadRecord()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return Digest{}, errors.Join(err, a.Close())
		}

		d.Add(r)
	}

	return d, a.Close()
}
