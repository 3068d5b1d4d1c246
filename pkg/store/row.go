package store

import (
	"context"

	"github.com/eigerco/colstore/pkg/db"
)

// Row is a materialised row: its id and every column in table order.
type Row struct {
	ID      int64
	Columns []db.Column
}

// Column returns the value of column id.
func (r Row) Column(id int64) ([]byte, bool) {
	for _, c := range r.Columns {
		if c.ID == id {
			return c.Value, true
		}
	}
	return nil, false
}

// RowExists reports whether row holds at least one column.
func (d *Database) RowExists(ctx context.Context, table string, row int64) (bool, error) {
	for _, err := range d.ScanColumns(ctx, table, row, db.All()) {
		if err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// ReadRow loads every column of row. A row without columns reports false.
func (d *Database) ReadRow(ctx context.Context, table string, row int64) (Row, bool, error) {
	out := Row{ID: row}
	for c, err := range d.ScanColumns(ctx, table, row, db.All()) {
		if err != nil {
			return Row{}, false, err
		}
		out.Columns = append(out.Columns, c)
	}
	return out, len(out.Columns) > 0, nil
}

// DeleteRow deletes every column of row one at a time. A failure part way
// leaves the remaining columns in place.
func (d *Database) DeleteRow(ctx context.Context, table string, row int64) error {
	var ids []int64
	for c, err := range d.ScanColumns(ctx, table, row, db.All()) {
		if err != nil {
			return err
		}
		ids = append(ids, c.ID)
	}
	for _, id := range ids {
		if err := d.DeleteColumn(ctx, table, row, id); err != nil {
			return err
		}
	}
	return nil
}
