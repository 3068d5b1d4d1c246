package memory

import (
	"context"
	"math"

	"github.com/eigerco/colstore/pkg/codec"
	"github.com/eigerco/colstore/pkg/comparator"
	"github.com/eigerco/colstore/pkg/db"
)

// ScanColumns pages through a snapshot of the table. The cursor is the
// encoded column-id to resume from.
func (s *Store) ScanColumns(ctx context.Context, name string, row int64, r db.Range) (db.ColumnIterator, error) {
	t, err := s.snapshot(ctx, name)
	if err != nil {
		return nil, err
	}
	if r.Empty() {
		return db.EmptyColumns(), nil
	}

	lo, hi := r.Bounds()
	first, last := lo, hi
	if t.cmp.Direction() == comparator.Descending {
		first, last = hi, lo
	}
	end := codec.AppendInt64(nil, last)

	return db.NewColumnPager(func(cursor []byte) ([]db.Column, []byte, error) {
		if cursor == nil {
			cursor = codec.AppendInt64(nil, first)
		}
		var (
			page []db.Column
			next []byte
		)
		t.tree.AscendGreaterOrEqual(item{row: row, col: cursor}, func(it item) bool {
			if it.row != row || t.cmp.Compare(it.col, end) > 0 {
				return false
			}
			if len(page) == pageSize {
				next = it.col
				return false
			}
			v := make([]byte, len(it.value))
			copy(v, it.value)
			page = append(page, db.Column{ID: codec.ReadInt64(it.col), Value: v})
			return true
		})
		return page, next, nil
	}), nil
}

// ScanRows pages through a snapshot of the table, seeking to the start of the
// next row after each row it reports.
func (s *Store) ScanRows(ctx context.Context, name string, r db.Range) (db.RowIterator, error) {
	t, err := s.snapshot(ctx, name)
	if err != nil {
		return nil, err
	}
	if r.Empty() {
		return db.EmptyRows(), nil
	}

	lo, hi := r.Bounds()
	return db.NewRowPager(func(cursor []byte) ([]int64, []byte, error) {
		start := lo
		if cursor != nil {
			start = codec.ReadInt64(cursor)
		}
		var page []int64
		for {
			found, ok := t.firstAtOrAfter(start)
			if !ok || found > hi {
				return page, nil, nil
			}
			if len(page) == pageSize {
				return page, codec.AppendInt64(nil, found), nil
			}
			page = append(page, found)
			if found == math.MaxInt64 {
				return page, nil, nil
			}
			start = found + 1
		}
	}), nil
}

// firstAtOrAfter returns the first row-id at or after row holding a column.
func (t *table) firstAtOrAfter(row int64) (int64, bool) {
	var (
		found int64
		ok    bool
	)
	t.tree.AscendGreaterOrEqual(item{row: row}, func(it item) bool {
		found, ok = it.row, true
		return false
	})
	return found, ok
}
