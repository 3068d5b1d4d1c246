package boltdb

import (
	"math"

	"github.com/eigerco/colstore/pkg/codec"
	"github.com/eigerco/colstore/pkg/comparator"
	"github.com/eigerco/colstore/pkg/errors"
)

// Keys inside a table bucket are row (8, canonical) | column (8). The column
// segment is canonical for ascending tables and bit-inverted for descending
// ones.
const keyLen = 2 * codec.KeySize

func encodeDirection(d comparator.Direction) []byte {
	if d == comparator.Descending {
		return []byte{1}
	}
	return []byte{0}
}

func decodeDirection(v []byte) (comparator.Direction, error) {
	if len(v) != 1 || v[0] > 1 {
		return 0, errors.Newf(errors.ErrStorageFailure, "boltdb: corrupt catalog entry %x", v)
	}
	if v[0] == 1 {
		return comparator.Descending, nil
	}
	return comparator.Ascending, nil
}

func rowKey(row int64) []byte {
	return codec.AppendInt64(make([]byte, 0, keyLen+1), row)
}

func columnKey(d comparator.Direction, row, column int64) []byte {
	k := codec.AppendInt64(rowKey(row), column)
	if d == comparator.Descending {
		invert(k[codec.KeySize:])
	}
	return k
}

func decodeColumn(d comparator.Direction, k []byte) int64 {
	var seg [codec.KeySize]byte
	copy(seg[:], k[codec.KeySize:keyLen])
	if d == comparator.Descending {
		invert(seg[:])
	}
	return codec.ReadInt64(seg[:])
}

func invert(b []byte) {
	for i := range b {
		b[i] = ^b[i]
	}
}

// columnSpan returns the first and last keys, inclusive, a column scan of
// row over [lo, hi] visits.
func columnSpan(d comparator.Direction, row, lo, hi int64) (first, last []byte) {
	if d == comparator.Descending {
		lo, hi = hi, lo
	}
	return columnKey(d, row, lo), columnKey(d, row, hi)
}

// nextRow returns the seek key of the row after row, or nil past the last row.
func nextRow(row int64) []byte {
	if row == math.MaxInt64 {
		return nil
	}
	return rowKey(row + 1)
}
