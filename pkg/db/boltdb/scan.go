package boltdb

import (
	"bytes"
	"context"

	"github.com/eigerco/colstore/pkg/codec"
	"github.com/eigerco/colstore/pkg/comparator"
	"github.com/eigerco/colstore/pkg/db"
	bolt "go.etcd.io/bbolt"
)

// ScanColumns checks the table up front and then reads the row's columns in
// pages of d.pageSize.
func (d *DB) ScanColumns(ctx context.Context, name string, row int64, r db.Range) (db.ColumnIterator, error) {
	var dir comparator.Direction
	if err := d.view(ctx, "scan columns", func(tx *bolt.Tx) (err error) {
		dir, _, err = table(tx, name)
		return err
	}); err != nil {
		return nil, err
	}
	if r.Empty() {
		return db.EmptyColumns(), nil
	}

	lo, hi := r.Bounds()
	first, last := columnSpan(dir, row, lo, hi)

	return db.NewColumnPager(func(cursor []byte) ([]db.Column, []byte, error) {
		if cursor == nil {
			cursor = first
		}
		var (
			page []db.Column
			next []byte
		)
		err := d.view(ctx, "scan columns", func(tx *bolt.Tx) error {
			current, b, err := table(tx, name)
			if err != nil {
				return err
			}
			// A same-named table with the other direction lays its columns
			// out differently, so the cursor no longer applies.
			if current != dir {
				return db.NoSuchTable(name)
			}
			c := b.Cursor()
			for k, v := c.Seek(cursor); k != nil && bytes.Compare(k, last) <= 0; k, v = c.Next() {
				if len(page) == d.pageSize {
					next = append([]byte{}, k...)
					return nil
				}
				value := make([]byte, len(v))
				copy(value, v)
				page = append(page, db.Column{ID: decodeColumn(dir, k), Value: value})
			}
			return nil
		})
		return page, next, err
	}), nil
}

// ScanRows reads distinct row-ids in pages, seeking past each row it reports.
func (d *DB) ScanRows(ctx context.Context, name string, r db.Range) (db.RowIterator, error) {
	if err := d.view(ctx, "scan rows", func(tx *bolt.Tx) error {
		_, _, err := table(tx, name)
		return err
	}); err != nil {
		return nil, err
	}
	if r.Empty() {
		return db.EmptyRows(), nil
	}

	lo, hi := r.Bounds()
	return db.NewRowPager(func(cursor []byte) ([]int64, []byte, error) {
		if cursor == nil {
			cursor = rowKey(lo)
		}
		var (
			page []int64
			next []byte
		)
		err := d.view(ctx, "scan rows", func(tx *bolt.Tx) error {
			_, b, err := table(tx, name)
			if err != nil {
				return err
			}
			c := b.Cursor()
			for k, _ := c.Seek(cursor); k != nil; k, _ = c.Seek(next) {
				row := codec.ReadInt64(k[:codec.KeySize])
				if row > hi {
					next = nil
					return nil
				}
				if len(page) == d.pageSize {
					next = rowKey(row)
					return nil
				}
				page = append(page, row)
				if next = nextRow(row); next == nil {
					return nil
				}
			}
			next = nil
			return nil
		})
		return page, next, err
	}), nil
}
