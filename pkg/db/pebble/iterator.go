package pebble

import (
	"context"
	"math"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/eigerco/colstore/pkg/codec"
	"github.com/eigerco/colstore/pkg/comparator"
	"github.com/eigerco/colstore/pkg/db"
	cerrors "github.com/eigerco/colstore/pkg/errors"
)

// columnBounds returns pebble iterator bounds covering the columns of row
// within r. Descending tables store higher ids first, so the numeric upper
// bound becomes the lower key bound.
func columnBounds(t table, row int64, r db.Range) (lower, upper []byte) {
	first, last := r.Lo, r.Hi
	if t.dir == comparator.Descending {
		first, last = r.Hi, r.Lo
	}

	prefix := rowPrefix(t, row)
	lower = prefix
	if first != nil {
		lower = codec.AppendInt64(rowPrefix(t, row), *first)
	}
	upper = prefixEnd(prefix)
	if last != nil {
		// The immediate successor of the last column key.
		upper = append(codec.AppendInt64(rowPrefix(t, row), *last), 0)
	}
	return lower, upper
}

func rowBounds(t table, r db.Range) (lower, upper []byte) {
	lo, hi := r.Bounds()
	return rowPrefix(t, lo), prefixEnd(rowPrefix(t, hi))
}

func (s *KVStore) newIter(ctx context.Context, name string, bounds func(table) ([]byte, []byte)) (*pebble.Iterator, table, error) {
	t, err := s.lookup(ctx, name)
	if err != nil {
		return nil, table{}, err
	}
	lower, upper := bounds(t)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, table{}, db.StorageFailure(err, "pebble: create iterator")
	}
	return iter, t, nil
}

// ScanColumns iterates the columns of row in the table's order over a
// pebble snapshot taken at call time.
func (s *KVStore) ScanColumns(ctx context.Context, name string, row int64, r db.Range) (db.ColumnIterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r.Empty() {
		if _, err := s.lookup(ctx, name); err != nil {
			return nil, err
		}
		return db.EmptyColumns(), nil
	}

	iter, _, err := s.newIter(ctx, name, func(t table) ([]byte, []byte) { return columnBounds(t, row, r) })
	if err != nil {
		return nil, err
	}
	it := &columnIterator{iterator: iterator{iter: iter, store: s}}
	s.track(it)
	return it, nil
}

// ScanRows iterates row-ids in ascending order, seeking past the columns of
// each row it reports.
func (s *KVStore) ScanRows(ctx context.Context, name string, r db.Range) (db.RowIterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r.Empty() {
		if _, err := s.lookup(ctx, name); err != nil {
			return nil, err
		}
		return db.EmptyRows(), nil
	}

	iter, t, err := s.newIter(ctx, name, func(t table) ([]byte, []byte) { return rowBounds(t, r) })
	if err != nil {
		return nil, err
	}
	it := &rowIterator{iterator: iterator{iter: iter, store: s}, table: t}
	s.track(it)
	return it, nil
}

// iterator is the shared state of the column and row iterators. mu guards
// against KVStore.Close closing the pebble iterator under a running Next.
type iterator struct {
	mu      sync.Mutex
	iter    *pebble.Iterator
	store   *KVStore
	started bool
	closed  bool
	err     error
}

// key returns the current key after checking it is at least n bytes long.
func (it *iterator) key(n int) ([]byte, bool) {
	k := it.iter.Key()
	if len(k) < n {
		it.err = cerrors.Newf(cerrors.ErrStorageFailure, "pebble: corrupt key of %d bytes", len(k))
		return nil, false
	}
	return k, true
}

func (it *iterator) fail() bool {
	if err := it.iter.Error(); err != nil {
		it.err = db.StorageFailure(err, "pebble: iterate")
	}
	return false
}

func (it *iterator) Err() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.err
}

func (it *iterator) close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return db.StorageFailure(it.iter.Close(), "pebble: close iterator")
}

type columnIterator struct {
	iterator
	cur db.Column
}

func (it *columnIterator) Next() bool {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.closed || it.err != nil {
		return false
	}
	var valid bool
	if !it.started {
		it.started = true
		valid = it.iter.First()
	} else {
		valid = it.iter.Next()
	}
	if !valid {
		return it.fail()
	}

	k, ok := it.key(columnKeyLen)
	if !ok {
		return false
	}
	val, err := it.iter.ValueAndErr()
	if err != nil {
		it.err = db.StorageFailure(err, "pebble: read value")
		return false
	}
	value := make([]byte, len(val))
	copy(value, val)
	it.cur = db.Column{ID: codec.ReadInt64(k[rowPrefixLen:columnKeyLen]), Value: value}
	return true
}

func (it *columnIterator) Column() db.Column {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.cur
}

func (it *columnIterator) Close() error {
	it.mu.Lock()
	err := it.close()
	it.mu.Unlock()
	it.store.untrack(it)
	return err
}

type rowIterator struct {
	iterator
	table table
	row   int64
}

func (it *rowIterator) Next() bool {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.closed || it.err != nil {
		return false
	}
	var valid bool
	switch {
	case !it.started:
		it.started = true
		valid = it.iter.First()
	case it.row == math.MaxInt64:
		return false
	default:
		valid = it.iter.SeekGE(rowPrefix(it.table, it.row+1))
	}
	if !valid {
		return it.fail()
	}

	k, ok := it.key(rowPrefixLen)
	if !ok {
		return false
	}
	it.row = codec.ReadInt64(k[tableHeadLen:rowPrefixLen])
	return true
}

func (it *rowIterator) Row() int64 {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.row
}

func (it *rowIterator) Close() error {
	it.mu.Lock()
	err := it.close()
	it.mu.Unlock()
	it.store.untrack(it)
	return err
}
