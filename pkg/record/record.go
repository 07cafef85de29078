// Package record defines the fixed-width binary record sorted by extsort.
//
// A record is an (ID, Key) pair encoded as 16 bytes, big-endian:
//
//	offset 0: ID  int64   (two's complement)
//	offset 8: Key float64 (IEEE-754 bits)
//
// Records order by Key ascending, ties broken by ID ascending. Keys compare
// with [cmp.Compare] semantics, so NaN sorts before every other key and the
// order is total.
package record

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
)

const (
	// Size is the encoded size of one record in bytes.
	Size = 16

	// BlockSize is the unit of physical file I/O.
	BlockSize = 8192

	// PerBlock is the number of records in one block.
	PerBlock = BlockSize / Size
)

// ErrShortRecord is returned by [Decode] when fewer than [Size] bytes are given.
var ErrShortRecord = errors.New("record: short record")

// Record is the unit of sort.
type Record struct {
	ID  int64
	Key float64
}

// Encode writes r into dst[:Size]. Panics if dst is shorter than [Size].
func Encode(dst []byte, r Record) {
	_ = dst[Size-1]

	binary.BigEndian.PutUint64(dst[0:8], uint64(r.ID))
	binary.BigEndian.PutUint64(dst[8:16], math.Float64bits(r.Key))
}

// AppendEncode appends the encoding of r to dst and returns the extended slice.
func AppendEncode(dst []byte, r Record) []byte {
	dst = binary.BigEndian.AppendUint64(dst, uint64(r.ID))

	return binary.BigEndian.AppendUint64(dst, math.Float64bits(r.Key))
}

// Decode reads one record from the first [Size] bytes of b.
func Decode(b []byte) (Record, error) {
	if len(b) < Size {
		return Record{}, fmt.Errorf("%w: have %d bytes, need %d", ErrShortRecord, len(b), Size)
	}

	return Record{
		ID:  int64(binary.BigEndian.Uint64(b[0:8])),
		Key: math.Float64frombits(binary.BigEndian.Uint64(b[8:16])),
	}, nil
}

// Compare returns -1, 0 or +1 ordering a before, equal to, or after b.
func Compare(a, b Record) int {
	if c := cmp.Compare(a.Key, b.Key); c != 0 {
		return c
	}

	return cmp.Compare(a.ID, b.ID)
}

// Less reports whether r sorts before other.
func (r Record) Less(other Record) bool {
	return Compare(r, other) < 0
}

// String formats the record as "<id> <key>", the layout used by the printer.
func (r Record) String() string {
	return strconv.FormatInt(r.ID, 10) + " " + FormatKey(r.Key)
}

// FormatKey formats a key in the shortest form that round-trips, always
// keeping a fractional part for finite integral values ("5.0", not "5").
func FormatKey(k float64) string {
	s := strconv.FormatFloat(k, 'g', -1, 64)

	if math.IsInf(k, 0) || math.IsNaN(k) {
		return s
	}

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '.', 'e', 'E':
			return s
		}
	}

	return s + ".0"
}
