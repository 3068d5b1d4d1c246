// Package store is the data model over a db.Backend: a database of named
// tables, each holding rows of long-keyed columns.
//
// Database keeps no state of its own beyond the handle it was given. Column
// writes are atomic per (table, row, column) as far as the backend makes
// them so; nothing here spans several columns or rows. Scans are lazy
// sequences and stopping a range loop abandons the underlying backend scan.
package store

import (
	"context"
	stderrors "errors"

	"github.com/rs/zerolog"

	"github.com/eigerco/colstore/pkg/comparator"
	"github.com/eigerco/colstore/pkg/db"
	"github.com/eigerco/colstore/pkg/errors"
	"github.com/eigerco/colstore/pkg/log"
)

// Database is the entry point of the data model.
type Database struct {
	backend   db.Backend
	lifecycle *db.Supervisor
	log       zerolog.Logger
}

type Option func(*Database)

// WithLifecycle attaches the collaborator that owns the backend's process.
// It is started by Open and stopped by Close.
func WithLifecycle(l db.Lifecycle) Option {
	return func(d *Database) { d.lifecycle = db.Supervise(l) }
}

func WithLogger(l zerolog.Logger) Option {
	return func(d *Database) { d.log = l }
}

// Open wraps a backend handle. On failure the caller keeps ownership of
// backend and must close it.
func Open(ctx context.Context, backend db.Backend, opts ...Option) (*Database, error) {
	d := &Database{backend: backend, log: log.Store}
	for _, opt := range opts {
		opt(d)
	}
	if d.lifecycle != nil {
		if err := d.lifecycle.Start(ctx); err != nil {
			d.log.Error().Err(err).Msg("backend process failed to start")
			return nil, err
		}
	}
	return d, nil
}

// Backend returns the handle the database was opened with.
func (d *Database) Backend() db.Backend { return d.backend }

// Close releases the backend handle and stops its process, in that order.
// Both steps run even if the first fails.
func (d *Database) Close() error {
	err := d.backend.Close()
	if d.lifecycle != nil {
		if stopErr := d.lifecycle.Stop(); stopErr != nil {
			d.log.Warn().Err(stopErr).Msg("backend process failed to stop")
			if err == nil {
				err = errors.Wrap(stopErr, errors.ErrBackendUnavailable, "stop backend process")
			}
		}
	}
	return err
}

// fail logs a backend failure and returns it unchanged.
func (d *Database) fail(op, table string, err error) error {
	d.log.Warn().Err(err).Str("op", op).Str("table", table).Str("code", string(errors.CodeOf(err))).Msg("backend failure")
	return err
}

func checkName(name string) error {
	if name == "" {
		return errors.New(errors.ErrNoSuchTable, "empty table name")
	}
	return nil
}

func (d *Database) CreateTable(ctx context.Context, name string, dir comparator.Direction) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := d.backend.CreateTable(ctx, name, dir); err != nil {
		return d.fail("create table", name, err)
	}
	d.log.Debug().Str("table", name).Stringer("direction", dir).Msg("table created")
	return nil
}

// DropTable removes a table with all its rows. Dropping it again fails with
// ErrNoSuchTable.
func (d *Database) DropTable(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := d.backend.DropTable(ctx, name); err != nil {
		return d.fail("drop table", name, err)
	}
	d.log.Debug().Str("table", name).Msg("table dropped")
	return nil
}

// Tables lists every table ordered by name.
func (d *Database) Tables(ctx context.Context) ([]db.TableInfo, error) {
	tables, err := d.backend.ListTables(ctx)
	if err != nil {
		return nil, d.fail("list tables", "", err)
	}
	return tables, nil
}

// Table returns a handle bound to an existing table.
func (d *Database) Table(ctx context.Context, name string) (*Table, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	tables, err := d.Tables(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tables {
		if t.Name == name {
			return &Table{db: d, name: name, dir: t.Direction}, nil
		}
	}
	return nil, db.NoSuchTable(name)
}

// PutColumn stores value, creating the row if needed and replacing any
// previous value of the column.
func (d *Database) PutColumn(ctx context.Context, table string, row, column int64, value []byte) error {
	if err := checkName(table); err != nil {
		return err
	}
	if err := d.backend.PutColumn(ctx, table, row, column, value); err != nil {
		return d.fail("put column", table, err)
	}
	return nil
}

// GetColumn returns the column's value. A missing row or column reports
// false with a nil error.
func (d *Database) GetColumn(ctx context.Context, table string, row, column int64) ([]byte, bool, error) {
	if err := checkName(table); err != nil {
		return nil, false, err
	}
	v, err := d.backend.GetColumn(ctx, table, row, column)
	if stderrors.Is(err, db.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, d.fail("get column", table, err)
	}
	return v, true, nil
}

// DeleteColumn removes a column. Removing the last column of a row removes
// the row. Deleting an absent column succeeds.
func (d *Database) DeleteColumn(ctx context.Context, table string, row, column int64) error {
	if err := checkName(table); err != nil {
		return err
	}
	if err := d.backend.DeleteColumn(ctx, table, row, column); err != nil {
		return d.fail("delete column", table, err)
	}
	return nil
}
