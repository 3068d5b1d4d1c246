// Package pebble implements db.Backend on top of an embedded pebble LSM.
//
// Column-ids are ordered on disk by a native pebble.Comparer that delegates
// to the registered comparator for each table's direction, so scans never
// sort. Scans read from a point-in-time view taken when the scan starts and
// do not observe later writes.
package pebble

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/eigerco/colstore/pkg/comparator"
	"github.com/eigerco/colstore/pkg/db"
	cerrors "github.com/eigerco/colstore/pkg/errors"
	"github.com/eigerco/colstore/pkg/log"
)

const backendName = "pebble"

type table struct {
	id  uint32
	dir comparator.Direction
}

type options struct {
	path         string
	fs           vfs.FS
	cacheSize    int64
	memTableSize uint64
	sync         bool
}

type Option func(*options)

// WithPath stores data on disk under dir. Without it the store lives in memory.
func WithPath(dir string) Option { return func(o *options) { o.path = dir } }

// WithFS overrides the filesystem.
func WithFS(fs vfs.FS) Option { return func(o *options) { o.fs = fs } }

func WithCacheSize(bytes int64) Option { return func(o *options) { o.cacheSize = bytes } }

func WithMemTableSize(bytes uint64) Option { return func(o *options) { o.memTableSize = bytes } }

// WithSync controls whether every write waits for the WAL to reach disk.
func WithSync(sync bool) Option { return func(o *options) { o.sync = sync } }

// KVStore is a pebble backed db.Backend handle.
type KVStore struct {
	db          *pebble.DB
	writeOpts   *pebble.WriteOptions
	comparators map[byte]comparator.Comparator

	mu     sync.RWMutex
	closed bool
	tables map[string]table
	nextID uint32

	itersMu sync.Mutex
	iters   map[iterCloser]struct{}
}

var _ db.Backend = (*KVStore)(nil)

type iterCloser interface{ Close() error }

// NewKVStore opens a pebble instance.
func NewKVStore(opts ...Option) (*KVStore, error) {
	o := options{
		cacheSize:    64 << 20,
		memTableSize: 32 << 20,
		sync:         true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.fs == nil {
		if o.path == "" {
			o.fs = vfs.NewMem()
		} else {
			o.fs = vfs.Default
		}
	}

	comparators := map[byte]comparator.Comparator{
		directionAscending:  comparator.Long(comparator.Ascending),
		directionDescending: comparator.Long(comparator.Descending),
	}

	cache := pebble.NewCache(o.cacheSize)
	defer cache.Unref()

	pdb, err := pebble.Open(o.path, &pebble.Options{
		FS:           o.fs,
		Cache:        cache,
		MemTableSize: o.memTableSize,
		Comparer:     newComparer(comparators),
	})
	if err != nil {
		return nil, cerrors.Wrapf(err, cerrors.ErrBackendUnavailable, "pebble: open %q", o.path)
	}

	s := &KVStore{
		db:          pdb,
		writeOpts:   &pebble.WriteOptions{Sync: o.sync},
		comparators: comparators,
		tables:      make(map[string]table),
		nextID:      1,
		iters:       make(map[iterCloser]struct{}),
	}
	if err := s.loadCatalog(); err != nil {
		_ = pdb.Close()
		return nil, cerrors.Wrap(err, cerrors.ErrBackendUnavailable, "pebble: load catalog")
	}

	log.Backend.Info().Str("backend", backendName).Str("path", o.path).Int("tables", len(s.tables)).Msg("opened")
	return s, nil
}

func (s *KVStore) loadCatalog() error {
	v, closer, err := s.db.Get(nextIDKey)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
	case err != nil:
		return err
	default:
		if len(v) == tableIDSize {
			s.nextID = binary.BigEndian.Uint32(v)
		}
		_ = closer.Close()
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: catalogPrefix,
		UpperBound: prefixEnd(catalogPrefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close() //nolint:errcheck

	for valid := iter.First(); valid; valid = iter.Next() {
		t, err := decodeCatalogValue(iter.Value())
		if err != nil {
			return err
		}
		s.tables[string(iter.Key()[len(catalogPrefix):])] = t
	}
	return iter.Error()
}

func encodeCatalogValue(t table) []byte {
	return append(tablePrefix(t.id), directionByte(t.dir))
}

func decodeCatalogValue(v []byte) (table, error) {
	if len(v) != tableHeadLen {
		return table{}, cerrors.Newf(cerrors.ErrStorageFailure, "pebble: corrupt catalog entry of %d bytes", len(v))
	}
	t := table{id: binary.BigEndian.Uint32(v)}
	if v[tableIDSize] == directionDescending {
		t.dir = comparator.Descending
	}
	return t, nil
}

// lookup resolves a table. Callers hold s.mu.
func (s *KVStore) lookup(ctx context.Context, name string) (table, error) {
	if s.closed {
		return table{}, db.ErrClosed(backendName)
	}
	if err := db.CheckContext(ctx); err != nil {
		return table{}, err
	}
	t, ok := s.tables[name]
	if !ok {
		return table{}, db.NoSuchTable(name)
	}
	return t, nil
}

func (s *KVStore) RegisterComparator(d comparator.Direction) (comparator.Comparator, error) {
	if !d.Valid() {
		return nil, cerrors.Newf(cerrors.ErrBackendUnavailable, "pebble: no comparator for %s", d)
	}
	return s.comparators[directionByte(d)], nil
}

func (s *KVStore) CreateTable(ctx context.Context, name string, d comparator.Direction) error {
	if _, err := s.RegisterComparator(d); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return db.ErrClosed(backendName)
	}
	if err := db.CheckContext(ctx); err != nil {
		return err
	}
	if _, ok := s.tables[name]; ok {
		return db.DuplicateTable(name)
	}
	if s.nextID == math.MaxUint32 {
		return cerrors.New(cerrors.ErrStorageFailure, "pebble: table ids exhausted")
	}

	t := table{id: s.nextID, dir: d}
	batch := s.db.NewBatch()
	defer batch.Close() //nolint:errcheck

	if err := batch.Set(catalogKey(name), encodeCatalogValue(t), nil); err != nil {
		return db.StorageFailure(err, "pebble: create table")
	}
	if err := batch.Set(nextIDKey, tablePrefix(t.id+1), nil); err != nil {
		return db.StorageFailure(err, "pebble: create table")
	}
	if err := batch.Commit(s.writeOpts); err != nil {
		return db.StorageFailure(err, "pebble: create table")
	}

	s.tables[name] = t
	s.nextID = t.id + 1
	log.Backend.Debug().Str("table", name).Stringer("direction", d).Uint32("id", t.id).Msg("table created")
	return nil
}

func (s *KVStore) DropTable(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookup(ctx, name)
	if err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close() //nolint:errcheck

	if err := batch.DeleteRange(tablePrefix(t.id), tablePrefix(t.id+1), nil); err != nil {
		return db.StorageFailure(err, "pebble: drop table")
	}
	if err := batch.Delete(catalogKey(name), nil); err != nil {
		return db.StorageFailure(err, "pebble: drop table")
	}
	if err := batch.Commit(s.writeOpts); err != nil {
		return db.StorageFailure(err, "pebble: drop table")
	}

	delete(s.tables, name)
	log.Backend.Debug().Str("table", name).Uint32("id", t.id).Msg("table dropped")
	return nil
}

func (s *KVStore) ListTables(ctx context.Context) ([]db.TableInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, db.ErrClosed(backendName)
	}
	if err := db.CheckContext(ctx); err != nil {
		return nil, err
	}
	out := make([]db.TableInfo, 0, len(s.tables))
	for name, t := range s.tables {
		out = append(out, db.TableInfo{Name: name, Direction: t.dir})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *KVStore) PutColumn(ctx context.Context, name string, row, column int64, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.lookup(ctx, name)
	if err != nil {
		return err
	}
	return db.StorageFailure(s.db.Set(columnKey(t, row, column), value, s.writeOpts), "pebble: put column")
}

func (s *KVStore) GetColumn(ctx context.Context, name string, row, column int64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.lookup(ctx, name)
	if err != nil {
		return nil, err
	}

	value, closer, err := s.db.Get(columnKey(t, row, column))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, db.StorageFailure(err, "pebble: get column")
	}
	defer closer.Close() //nolint:errcheck

	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

func (s *KVStore) DeleteColumn(ctx context.Context, name string, row, column int64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.lookup(ctx, name)
	if err != nil {
		return err
	}
	return db.StorageFailure(s.db.Delete(columnKey(t, row, column), s.writeOpts), "pebble: delete column")
}

// track registers an open iterator. Callers hold s.mu for reading.
func (s *KVStore) track(c iterCloser) {
	s.itersMu.Lock()
	s.iters[c] = struct{}{}
	s.itersMu.Unlock()
}

func (s *KVStore) untrack(c iterCloser) {
	s.itersMu.Lock()
	delete(s.iters, c)
	s.itersMu.Unlock()
}

// Close closes the store and every iterator still open on it. It is safe to
// call more than once.
func (s *KVStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.itersMu.Lock()
	iters := make([]iterCloser, 0, len(s.iters))
	for it := range s.iters {
		iters = append(iters, it)
	}
	s.iters = make(map[iterCloser]struct{})
	s.itersMu.Unlock()

	for _, it := range iters {
		_ = it.Close()
	}
	if err := s.db.Close(); err != nil {
		return cerrors.Wrap(err, cerrors.ErrStorageFailure, "pebble: close")
	}
	log.Backend.Info().Str("backend", backendName).Msg("closed")
	return nil
}
