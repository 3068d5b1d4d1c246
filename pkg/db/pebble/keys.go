package pebble

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/pebble"

	"github.com/eigerco/colstore/pkg/codec"
	"github.com/eigerco/colstore/pkg/comparator"
)

// Key layout:
//
//	table id (4, big-endian) | direction (1) | row (8, canonical) | column (8, canonical)
//
// Table id 0 is reserved for the catalog. Everything up to and including the
// row is ordered byte-wise; the column segment is ordered by the comparator
// registered for the direction byte.
const (
	tableIDSize  = 4
	tableHeadLen = tableIDSize + 1
	rowPrefixLen = tableHeadLen + codec.KeySize
	columnKeyLen = rowPrefixLen + codec.KeySize

	directionAscending  byte = 0
	directionDescending byte = 1

	catalogTableMarker byte = 'c'
	catalogNextID      byte = 'n'

	comparerName = "colstore.long-column.v1"
)

var (
	catalogPrefix = []byte{0, 0, 0, 0, catalogTableMarker}
	nextIDKey     = []byte{0, 0, 0, 0, catalogNextID}
)

func directionByte(d comparator.Direction) byte {
	if d == comparator.Descending {
		return directionDescending
	}
	return directionAscending
}

func catalogKey(name string) []byte {
	return append(append(make([]byte, 0, len(catalogPrefix)+len(name)), catalogPrefix...), name...)
}

func tablePrefix(id uint32) []byte {
	return binary.BigEndian.AppendUint32(make([]byte, 0, tableIDSize), id)
}

func tableHead(t table) []byte {
	return append(tablePrefix(t.id), directionByte(t.dir))
}

func rowPrefix(t table, row int64) []byte {
	b := make([]byte, 0, columnKeyLen+1)
	b = binary.BigEndian.AppendUint32(b, t.id)
	b = append(b, directionByte(t.dir))
	return codec.AppendInt64(b, row)
}

func columnKey(t table, row, column int64) []byte {
	return codec.AppendInt64(rowPrefix(t, row), column)
}

// prefixEnd returns the smallest key greater than every key starting with p.
func prefixEnd(p []byte) []byte {
	end := append([]byte{}, p...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// newComparer builds the native pebble comparer. byDirection maps a
// direction byte to the ordering of the column segment.
func newComparer(byDirection map[byte]comparator.Comparator) *pebble.Comparer {
	asc := byDirection[directionAscending]

	compare := func(a, b []byte) int {
		ha, hb := a[:min(len(a), rowPrefixLen)], b[:min(len(b), rowPrefixLen)]
		if c := bytes.Compare(ha, hb); c != 0 {
			return c
		}
		ra, rb := a[len(ha):], b[len(hb):]
		if len(ra) < codec.KeySize || len(rb) < codec.KeySize {
			// Row prefixes and partial keys are only used as scan bounds. Whole
			// columns sort after them.
			switch {
			case len(ra) < len(rb):
				return -1
			case len(ra) > len(rb):
				return 1
			}
			return bytes.Compare(ra, rb)
		}
		cmp := asc
		if len(ha) == rowPrefixLen {
			if c, ok := byDirection[ha[tableIDSize]]; ok {
				cmp = c
			}
		}
		if c := cmp.Compare(ra[:codec.KeySize], rb[:codec.KeySize]); c != 0 {
			return c
		}
		return bytes.Compare(ra[codec.KeySize:], rb[codec.KeySize:])
	}

	c := *pebble.DefaultComparer
	c.Compare = compare
	c.Equal = bytes.Equal
	c.AbbreviatedKey = func(key []byte) uint64 {
		// The first eight bytes sit inside the byte-wise ordered head.
		var b [8]byte
		copy(b[:], key)
		return binary.BigEndian.Uint64(b[:])
	}
	c.Separator = func(dst, a, b []byte) []byte { return append(dst, a...) }
	c.Successor = func(dst, a []byte) []byte { return append(dst, a...) }
	c.Name = comparerName
	return &c
}
