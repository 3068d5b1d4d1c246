// Package memory implements db.Backend in process memory.
//
// Each table is a B-tree ordered by row and then by the table's comparator
// over the encoded column-id. Scans iterate a copy-on-write clone of the tree
// taken when the scan starts and do not observe later writes.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/btree"

	"github.com/eigerco/colstore/pkg/codec"
	"github.com/eigerco/colstore/pkg/comparator"
	"github.com/eigerco/colstore/pkg/db"
	"github.com/eigerco/colstore/pkg/errors"
	"github.com/eigerco/colstore/pkg/log"
)

const (
	backendName = "memory"
	degree      = 32
	pageSize    = 128
)

// item is one stored column. A nil col sorts before every column of row,
// which makes it the seek key for the start of a row.
type item struct {
	row   int64
	col   []byte
	value []byte
}

type table struct {
	cmp  comparator.Comparator
	tree *btree.BTreeG[item]
}

func newTable(cmp comparator.Comparator) *table {
	return &table{
		cmp: cmp,
		tree: btree.NewG(degree, func(a, b item) bool {
			if a.row != b.row {
				return a.row < b.row
			}
			return cmp.Compare(a.col, b.col) < 0
		}),
	}
}

// Store is an in-memory db.Backend.
type Store struct {
	mu     sync.RWMutex
	closed bool
	tables map[string]*table
}

var _ db.Backend = (*Store)(nil)

func New() *Store {
	log.Backend.Debug().Str("backend", backendName).Msg("opened")
	return &Store{tables: make(map[string]*table)}
}

func (s *Store) RegisterComparator(d comparator.Direction) (comparator.Comparator, error) {
	if !d.Valid() {
		return nil, errors.Newf(errors.ErrBackendUnavailable, "memory: no comparator for %s", d)
	}
	return comparator.Long(d), nil
}

// lookup resolves a table. Callers hold s.mu.
func (s *Store) lookup(ctx context.Context, name string) (*table, error) {
	if s.closed {
		return nil, db.ErrClosed(backendName)
	}
	if err := db.CheckContext(ctx); err != nil {
		return nil, err
	}
	t, ok := s.tables[name]
	if !ok {
		return nil, db.NoSuchTable(name)
	}
	return t, nil
}

func (s *Store) CreateTable(ctx context.Context, name string, d comparator.Direction) error {
	cmp, err := s.RegisterComparator(d)
	if err != nil {
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
	s.tables[name] = newTable(cmp)
	return nil
}

func (s *Store) DropTable(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lookup(ctx, name); err != nil {
		return err
	}
	delete(s.tables, name)
	return nil
}

func (s *Store) ListTables(ctx context.Context) ([]db.TableInfo, error) {
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
		out = append(out, db.TableInfo{Name: name, Direction: t.cmp.Direction()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) PutColumn(ctx context.Context, name string, row, column int64, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookup(ctx, name)
	if err != nil {
		return err
	}
	v := make([]byte, len(value))
	copy(v, value)
	t.tree.ReplaceOrInsert(item{row: row, col: codec.AppendInt64(nil, column), value: v})
	return nil
}

func (s *Store) GetColumn(ctx context.Context, name string, row, column int64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	it, ok := t.tree.Get(item{row: row, col: codec.AppendInt64(nil, column)})
	if !ok {
		return nil, db.ErrNotFound
	}
	v := make([]byte, len(it.value))
	copy(v, it.value)
	return v, nil
}

func (s *Store) DeleteColumn(ctx context.Context, name string, row, column int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookup(ctx, name)
	if err != nil {
		return err
	}
	t.tree.Delete(item{row: row, col: codec.AppendInt64(nil, column)})
	return nil
}

// snapshot clones the table tree. Clone updates the source tree's
// copy-on-write state, so it runs under the write lock.
func (s *Store) snapshot(ctx context.Context, name string) (*table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	return &table{cmp: t.cmp, tree: t.tree.Clone()}, nil
}

// Close drops every table. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.tables = nil
	log.Backend.Debug().Str("backend", backendName).Msg("closed")
	return nil
}
