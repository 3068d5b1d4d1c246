package store

import (
	"context"
	"iter"

	"github.com/eigerco/colstore/pkg/codec"
	"github.com/eigerco/colstore/pkg/comparator"
	"github.com/eigerco/colstore/pkg/db"
)

// Table is a handle bound to one table name. It does not pin the table: a
// concurrent drop makes its operations fail with ErrNoSuchTable.
type Table struct {
	db   *Database
	name string
	dir  comparator.Direction
}

func (t *Table) Name() string                    { return t.name }
func (t *Table) Direction() comparator.Direction { return t.dir }

func (t *Table) Put(ctx context.Context, row, column int64, value []byte) error {
	return t.db.PutColumn(ctx, t.name, row, column, value)
}

func (t *Table) Get(ctx context.Context, row, column int64) ([]byte, bool, error) {
	return t.db.GetColumn(ctx, t.name, row, column)
}

func (t *Table) Delete(ctx context.Context, row, column int64) error {
	return t.db.DeleteColumn(ctx, t.name, row, column)
}

func (t *Table) Columns(ctx context.Context, row int64, r db.Range) iter.Seq2[db.Column, error] {
	return t.db.ScanColumns(ctx, t.name, row, r)
}

func (t *Table) Rows(ctx context.Context, r db.Range) iter.Seq2[int64, error] {
	return t.db.ScanRows(ctx, t.name, r)
}

func (t *Table) RowExists(ctx context.Context, row int64) (bool, error) {
	return t.db.RowExists(ctx, t.name, row)
}

func (t *Table) ReadRow(ctx context.Context, row int64) (Row, bool, error) {
	return t.db.ReadRow(ctx, t.name, row)
}

func (t *Table) DeleteRow(ctx context.Context, row int64) error {
	return t.db.DeleteRow(ctx, t.name, row)
}

// TypedTable maps row-ids and column-ids through codecs. Range scans are
// only meaningful for codecs that preserve order.
type TypedTable[R, C any] struct {
	*Table
	rows codec.Codec[R]
	cols codec.Codec[C]
}

// Typed wraps t with the given row and column codecs.
func Typed[R, C any](t *Table, rows codec.Codec[R], cols codec.Codec[C]) *TypedTable[R, C] {
	return &TypedTable[R, C]{Table: t, rows: rows, cols: cols}
}

// TypedColumn is a column with its id decoded.
type TypedColumn[C any] struct {
	ID    C
	Value []byte
}

func (t *TypedTable[R, C]) key(row R, column C) (int64, int64, error) {
	r, err := t.rows.FromValue(row)
	if err != nil {
		return 0, 0, err
	}
	c, err := t.cols.FromValue(column)
	if err != nil {
		return 0, 0, err
	}
	return r, c, nil
}

func (t *TypedTable[R, C]) PutValue(ctx context.Context, row R, column C, value []byte) error {
	r, c, err := t.key(row, column)
	if err != nil {
		return err
	}
	return t.Put(ctx, r, c, value)
}

func (t *TypedTable[R, C]) GetValue(ctx context.Context, row R, column C) ([]byte, bool, error) {
	r, c, err := t.key(row, column)
	if err != nil {
		return nil, false, err
	}
	return t.Get(ctx, r, c)
}

func (t *TypedTable[R, C]) DeleteValue(ctx context.Context, row R, column C) error {
	r, c, err := t.key(row, column)
	if err != nil {
		return err
	}
	return t.Delete(ctx, r, c)
}

// ColumnRange converts typed bounds into a Range. Nil bounds are open.
func (t *TypedTable[R, C]) ColumnRange(lo, hi *C) (db.Range, error) {
	return bounds(t.cols, lo, hi)
}

// RowRange converts typed row bounds into a Range. Nil bounds are open.
func (t *TypedTable[R, C]) RowRange(lo, hi *R) (db.Range, error) {
	return bounds(t.rows, lo, hi)
}

func bounds[E any](c codec.Codec[E], lo, hi *E) (db.Range, error) {
	var r db.Range
	if lo != nil {
		v, err := c.FromValue(*lo)
		if err != nil {
			return db.Range{}, err
		}
		r.Lo = &v
	}
	if hi != nil {
		v, err := c.FromValue(*hi)
		if err != nil {
			return db.Range{}, err
		}
		r.Hi = &v
	}
	return r, nil
}

func (t *TypedTable[R, C]) TypedColumns(ctx context.Context, row R, r db.Range) iter.Seq2[TypedColumn[C], error] {
	return func(yield func(TypedColumn[C], error) bool) {
		id, err := t.rows.FromValue(row)
		if err != nil {
			yield(TypedColumn[C]{}, err)
			return
		}
		for c, err := range t.Columns(ctx, id, r) {
			if err != nil {
				yield(TypedColumn[C]{}, err)
				return
			}
			if !yield(TypedColumn[C]{ID: t.cols.ToValue(c.ID), Value: c.Value}, nil) {
				return
			}
		}
	}
}

func (t *TypedTable[R, C]) TypedRows(ctx context.Context, r db.Range) iter.Seq2[R, error] {
	return func(yield func(R, error) bool) {
		for id, err := range t.Rows(ctx, r) {
			if err != nil {
				var zero R
				yield(zero, err)
				return
			}
			if !yield(t.rows.ToValue(id), nil) {
				return
			}
		}
	}
}

// ColumnIDs decodes the ids of a row's columns into an array made by the
// column codec.
func (t *TypedTable[R, C]) ColumnIDs(ctx context.Context, row R) ([]C, error) {
	id, err := t.rows.FromValue(row)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for c, err := range t.Columns(ctx, id, db.All()) {
		if err != nil {
			return nil, err
		}
		ids = append(ids, c.ID)
	}
	out := t.cols.NewArray(len(ids))
	for i, id := range ids {
		out[i] = t.cols.ToValue(id)
	}
	return out, nil
}
