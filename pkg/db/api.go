package db

import (
	"context"

	"github.com/eigerco/colstore/pkg/comparator"
)

// Backend is the contract a storage engine implements to hold tables of
// long-keyed rows and columns. Handles are obtained from the engine's own
// constructor (its open operation) and released with Close; both are
// idempotent.
//
// Implementations translate every engine failure into the codes of package
// errors. GetColumn reports a missing column as ErrNotFound, which the data
// model turns into an absent result. Scans honour the table's comparator and
// must document whether they observe writes made after the scan started.
type Backend interface {
	TableAdmin
	Writer
	Reader

	// RegisterComparator returns the engine's implementation of the ordering
	// for d. Tables created with d are stored and scanned in exactly that
	// order. Engines that cannot honour d fail with ErrBackendUnavailable.
	RegisterComparator(d comparator.Direction) (comparator.Comparator, error)

	Close() error
}

type TableAdmin interface {
	CreateTable(ctx context.Context, name string, d comparator.Direction) error
	DropTable(ctx context.Context, name string) error
	// ListTables returns every table ordered by name.
	ListTables(ctx context.Context) ([]TableInfo, error)
}

type Writer interface {
	PutColumn(ctx context.Context, table string, row, column int64, value []byte) error
	// DeleteColumn succeeds when the column is already absent.
	DeleteColumn(ctx context.Context, table string, row, column int64) error
}

type Reader interface {
	GetColumn(ctx context.Context, table string, row, column int64) ([]byte, error)
	// ScanColumns iterates one row's columns within r in the table's order.
	ScanColumns(ctx context.Context, table string, row int64, r Range) (ColumnIterator, error)
	// ScanRows iterates the ids of rows holding at least one column within r,
	// always ascending.
	ScanRows(ctx context.Context, table string, r Range) (RowIterator, error)
}

// TableInfo describes a table as recorded by the backend.
type TableInfo struct {
	Name      string
	Direction comparator.Direction
}

// Column is a column-id and its value.
type Column struct {
	ID    int64
	Value []byte
}

// ColumnIterator provides sequential access over the columns of a row.
// Iterators must be closed after use; Close is idempotent.
type ColumnIterator interface {
	// Next advances to the next column, returning false when the scan is
	// exhausted or failed. Check Err afterwards.
	Next() bool
	Column() Column
	Err() error
	Close() error
}

// RowIterator provides sequential access over row-ids.
type RowIterator interface {
	Next() bool
	Row() int64
	Err() error
	Close() error
}
