package pebble

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/colstore/pkg/codec"
	"github.com/eigerco/colstore/pkg/comparator"
)

func testComparer() func(a, b []byte) int {
	return newComparer(map[byte]comparator.Comparator{
		directionAscending:  comparator.Long(comparator.Ascending),
		directionDescending: comparator.Long(comparator.Descending),
	}).Compare
}

func TestComparerOrdersColumnsByDirection(t *testing.T) {
	compare := testComparer()
	asc := table{id: 1, dir: comparator.Ascending}
	desc := table{id: 2, dir: comparator.Descending}

	cols := []int64{math.MinInt64, -1, 0, 1, math.MaxInt64}
	var keys [][]byte
	for _, tb := range []table{desc, asc} {
		for _, row := range []int64{1, -1} {
			for _, c := range cols {
				keys = append(keys, columnKey(tb, row, c))
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool { return compare(keys[i], keys[j]) < 0 })

	type decoded struct {
		id       uint32
		row, col int64
	}
	got := make([]decoded, len(keys))
	for i, k := range keys {
		require.Len(t, k, columnKeyLen)
		got[i] = decoded{
			id:  uint32(k[3]),
			row: codec.ReadInt64(k[tableHeadLen:rowPrefixLen]),
			col: codec.ReadInt64(k[rowPrefixLen:]),
		}
	}

	var want []decoded
	for _, row := range []int64{-1, 1} {
		for _, c := range cols {
			want = append(want, decoded{1, row, c})
		}
	}
	for _, row := range []int64{-1, 1} {
		for i := len(cols) - 1; i >= 0; i-- {
			want = append(want, decoded{2, row, cols[i]})
		}
	}
	assert.Equal(t, want, got)
}

func TestComparerBounds(t *testing.T) {
	compare := testComparer()
	for _, tb := range []table{{id: 3, dir: comparator.Ascending}, {id: 3, dir: comparator.Descending}} {
		prefix := rowPrefix(tb, 5)
		end := prefixEnd(prefix)
		for _, c := range []int64{math.MinInt64, 0, math.MaxInt64} {
			k := columnKey(tb, 5, c)
			assert.Equal(t, -1, compare(prefix, k))
			assert.Equal(t, -1, compare(k, end))
			assert.Equal(t, -1, compare(k, append(append([]byte{}, k...), 0)))
			assert.Equal(t, 1, compare(columnKey(tb, 6, math.MinInt64), k))
		}
		assert.Equal(t, -1, compare(end, prefixEnd(tablePrefix(tb.id))))
		assert.Equal(t, -1, compare(columnKey(tb, math.MaxInt64, 0), prefixEnd(rowPrefix(tb, math.MaxInt64))))
	}
}

func TestComparerAbbreviatedKeyConsistent(t *testing.T) {
	c := newComparer(map[byte]comparator.Comparator{
		directionAscending:  comparator.Long(comparator.Ascending),
		directionDescending: comparator.Long(comparator.Descending),
	})
	keys := [][]byte{
		nil,
		tablePrefix(1),
		tableHead(table{id: 1, dir: comparator.Descending}),
		columnKey(table{id: 1, dir: comparator.Descending}, 0, 9),
		columnKey(table{id: 1, dir: comparator.Descending}, 0, -9),
		catalogKey("t"),
		columnKey(table{id: 2}, -5, 1),
	}
	for _, a := range keys {
		for _, b := range keys {
			aa, ab := c.AbbreviatedKey(a), c.AbbreviatedKey(b)
			if aa < ab {
				assert.Equal(t, -1, c.Compare(a, b), "%x %x", a, b)
			}
			if aa > ab {
				assert.Equal(t, 1, c.Compare(a, b), "%x %x", a, b)
			}
		}
	}
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte{1, 3}, prefixEnd([]byte{1, 2}))
	assert.Equal(t, []byte{2}, prefixEnd([]byte{1, 0xff}))
	assert.Nil(t, prefixEnd([]byte{0xff, 0xff}))
}
