package store

import (
	"context"
	"iter"

	"github.com/eigerco/colstore/pkg/db"
)

// ScanColumns returns the columns of row within r, ordered by the table's
// direction. Every range over the sequence starts a fresh backend scan. A
// failure is yielded once as the last element.
func (d *Database) ScanColumns(ctx context.Context, table string, row int64, r db.Range) iter.Seq2[db.Column, error] {
	return func(yield func(db.Column, error) bool) {
		if err := checkName(table); err != nil {
			yield(db.Column{}, err)
			return
		}
		it, err := d.backend.ScanColumns(ctx, table, row, r)
		if err != nil {
			yield(db.Column{}, d.fail("scan columns", table, err))
			return
		}
		defer it.Close() //nolint:errcheck

		for it.Next() {
			if !yield(it.Column(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(db.Column{}, d.fail("scan columns", table, err))
		}
	}
}

// ScanRows returns the ids of rows within r that hold at least one column,
// in ascending order whatever the table's direction.
func (d *Database) ScanRows(ctx context.Context, table string, r db.Range) iter.Seq2[int64, error] {
	return func(yield func(int64, error) bool) {
		if err := checkName(table); err != nil {
			yield(0, err)
			return
		}
		it, err := d.backend.ScanRows(ctx, table, r)
		if err != nil {
			yield(0, d.fail("scan rows", table, err))
			return
		}
		defer it.Close() //nolint:errcheck

		for it.Next() {
			if !yield(it.Row(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(0, d.fail("scan rows", table, err))
		}
	}
}
