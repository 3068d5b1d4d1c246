// Package boltdb implements db.Backend on top of a bbolt file.
//
// bbolt orders keys byte-wise and takes no custom comparator, so descending
// tables store the column segment of each key bit-inverted. Scans read in
// pages, each in its own short read transaction, and resume by key: a scan
// may observe writes committed between two pages.
package boltdb

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/eigerco/colstore/pkg/comparator"
	"github.com/eigerco/colstore/pkg/db"
	"github.com/eigerco/colstore/pkg/errors"
	"github.com/eigerco/colstore/pkg/log"
	bolt "go.etcd.io/bbolt"
)

const backendName = "boltdb"

var (
	bucketCatalog = []byte("catalog")
	bucketData    = []byte("data")
)

type options struct {
	timeout  time.Duration
	pageSize int
	noSync   bool
}

type Option func(*options)

// WithTimeout bounds how long Open waits for the file lock.
func WithTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

// WithPageSize sets how many columns or rows one scan transaction reads.
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// WithNoSync skips fsync after each commit.
func WithNoSync(noSync bool) Option { return func(o *options) { o.noSync = noSync } }

// DB is a bbolt backed db.Backend handle.
type DB struct {
	db       *bolt.DB
	path     string
	pageSize int
	closed   atomic.Bool
}

var _ db.Backend = (*DB)(nil)

// Open opens or creates the database file at path.
func Open(path string, opts ...Option) (*DB, error) {
	o := options{timeout: time.Second, pageSize: 256}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		return nil, errors.Wrapf(err, errors.ErrBackendUnavailable, "boltdb: mkdir %s", filepath.Dir(path))
	}
	bdb, err := bolt.Open(path, 0666, &bolt.Options{Timeout: o.timeout, NoSync: o.noSync})
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrBackendUnavailable, "boltdb: open %s", path)
	}

	if err := bdb.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketCatalog, bucketData} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return errors.Wrapf(err, errors.ErrStorageFailure, "creating bucket: %s", bucket)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, errors.Wrap(err, errors.ErrBackendUnavailable, "boltdb: initializing buckets")
	}

	log.Backend.Info().Str("backend", backendName).Str("path", path).Msg("opened")
	return &DB{db: bdb, path: path, pageSize: o.pageSize}, nil
}

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

// RegisterComparator returns the ordering bbolt produces for d. The stored
// key transform makes byte-wise order equal to this comparator.
func (d *DB) RegisterComparator(dir comparator.Direction) (comparator.Comparator, error) {
	if !dir.Valid() {
		return nil, errors.Newf(errors.ErrBackendUnavailable, "boltdb: no comparator for %s", dir)
	}
	return comparator.Long(dir), nil
}

// view runs fn in a read transaction after the closed and context checks.
func (d *DB) view(ctx context.Context, op string, fn func(tx *bolt.Tx) error) error {
	if err := d.check(ctx); err != nil {
		return err
	}
	return d.translate(d.db.View(fn), op)
}

func (d *DB) update(ctx context.Context, op string, fn func(tx *bolt.Tx) error) error {
	if err := d.check(ctx); err != nil {
		return err
	}
	return d.translate(d.db.Update(fn), op)
}

func (d *DB) check(ctx context.Context) error {
	if d.closed.Load() {
		return db.ErrClosed(backendName)
	}
	return db.CheckContext(ctx)
}

func (d *DB) translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, bolt.ErrDatabaseNotOpen) {
		return errors.Wrap(err, errors.ErrBackendUnavailable, backendName+": "+op)
	}
	return db.StorageFailure(err, backendName+": "+op)
}

// table resolves a table's direction and data bucket within tx.
func table(tx *bolt.Tx, name string) (comparator.Direction, *bolt.Bucket, error) {
	v := tx.Bucket(bucketCatalog).Get([]byte(name))
	if v == nil {
		return 0, nil, db.NoSuchTable(name)
	}
	dir, err := decodeDirection(v)
	if err != nil {
		return 0, nil, err
	}
	b := tx.Bucket(bucketData).Bucket([]byte(name))
	if b == nil {
		return 0, nil, errors.Newf(errors.ErrStorageFailure, "boltdb: bucket '%s' not found", name)
	}
	return dir, b, nil
}

func (d *DB) CreateTable(ctx context.Context, name string, dir comparator.Direction) error {
	if _, err := d.RegisterComparator(dir); err != nil {
		return err
	}
	if name == "" {
		return db.NoSuchTable(name)
	}
	err := d.update(ctx, "create table", func(tx *bolt.Tx) error {
		cat := tx.Bucket(bucketCatalog)
		if cat.Get([]byte(name)) != nil {
			return db.DuplicateTable(name)
		}
		if err := cat.Put([]byte(name), encodeDirection(dir)); err != nil {
			return err
		}
		_, err := tx.Bucket(bucketData).CreateBucket([]byte(name))
		return err
	})
	if err == nil {
		log.Backend.Debug().Str("table", name).Stringer("direction", dir).Msg("table created")
	}
	return err
}

func (d *DB) DropTable(ctx context.Context, name string) error {
	err := d.update(ctx, "drop table", func(tx *bolt.Tx) error {
		if _, _, err := table(tx, name); err != nil {
			return err
		}
		if err := tx.Bucket(bucketData).DeleteBucket([]byte(name)); err != nil {
			return err
		}
		return tx.Bucket(bucketCatalog).Delete([]byte(name))
	})
	if err == nil {
		log.Backend.Debug().Str("table", name).Msg("table dropped")
	}
	return err
}

func (d *DB) ListTables(ctx context.Context) ([]db.TableInfo, error) {
	out := []db.TableInfo{}
	err := d.view(ctx, "list tables", func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCatalog).ForEach(func(k, v []byte) error {
			dir, err := decodeDirection(v)
			if err != nil {
				return err
			}
			out = append(out, db.TableInfo{Name: string(k), Direction: dir})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *DB) PutColumn(ctx context.Context, name string, row, column int64, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return d.update(ctx, "put column", func(tx *bolt.Tx) error {
		dir, b, err := table(tx, name)
		if err != nil {
			return err
		}
		return b.Put(columnKey(dir, row, column), value)
	})
}

func (d *DB) GetColumn(ctx context.Context, name string, row, column int64) ([]byte, error) {
	var out []byte
	err := d.view(ctx, "get column", func(tx *bolt.Tx) error {
		dir, b, err := table(tx, name)
		if err != nil {
			return err
		}
		key := columnKey(dir, row, column)
		// A cursor distinguishes an empty value from a missing key.
		if k, v := b.Cursor().Seek(key); bytes.Equal(k, key) {
			out = make([]byte, len(v))
			copy(out, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, db.ErrNotFound
	}
	return out, nil
}

func (d *DB) DeleteColumn(ctx context.Context, name string, row, column int64) error {
	return d.update(ctx, "delete column", func(tx *bolt.Tx) error {
		dir, b, err := table(tx, name)
		if err != nil {
			return err
		}
		return b.Delete(columnKey(dir, row, column))
	})
}

// Close closes the file. It is safe to call more than once.
func (d *DB) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := d.db.Close(); err != nil {
		return errors.Wrap(err, errors.ErrStorageFailure, "boltdb: close")
	}
	log.Backend.Info().Str("backend", backendName).Msg("closed")
	return nil
}
