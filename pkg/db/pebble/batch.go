package pebble

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/eigerco/colstore/pkg/db"
	cerrors "github.com/eigerco/colstore/pkg/errors"
)

var ErrBatchDone = cerrors.New(cerrors.ErrStorageFailure, "pebble: batch already committed or closed")

// Batch groups column writes, possibly across rows and tables, into one
// atomic pebble commit. This is a pebble extension: db.Backend itself makes
// no multi-column guarantee.
type Batch struct {
	store  *KVStore
	batch  *pebble.Batch
	done   atomic.Bool
	tables map[string]uint32
}

func (s *KVStore) NewBatch() *Batch {
	return &Batch{
		store:  s,
		batch:  s.db.NewBatch(),
		tables: make(map[string]uint32),
	}
}

func (b *Batch) PutColumn(ctx context.Context, name string, row, column int64, value []byte) error {
	if b.done.Load() {
		return ErrBatchDone
	}
	t, err := b.table(ctx, name)
	if err != nil {
		return err
	}
	return db.StorageFailure(b.batch.Set(columnKey(t, row, column), value, nil), "pebble: batch put")
}

func (b *Batch) DeleteColumn(ctx context.Context, name string, row, column int64) error {
	if b.done.Load() {
		return ErrBatchDone
	}
	t, err := b.table(ctx, name)
	if err != nil {
		return err
	}
	return db.StorageFailure(b.batch.Delete(columnKey(t, row, column), nil), "pebble: batch delete")
}

func (b *Batch) table(ctx context.Context, name string) (table, error) {
	b.store.mu.RLock()
	defer b.store.mu.RUnlock()
	t, err := b.store.lookup(ctx, name)
	if err != nil {
		return table{}, err
	}
	b.tables[name] = t.id
	return t, nil
}

// Commit applies every queued write. Tables dropped since the writes were
// queued fail the commit with ErrNoSuchTable and nothing is applied.
func (b *Batch) Commit(ctx context.Context) error {
	if b.done.Load() {
		return ErrBatchDone
	}

	b.store.mu.RLock()
	defer b.store.mu.RUnlock()

	if b.store.closed {
		return db.ErrClosed(backendName)
	}
	if err := db.CheckContext(ctx); err != nil {
		return err
	}
	for name, id := range b.tables {
		if t, ok := b.store.tables[name]; !ok || t.id != id {
			return db.NoSuchTable(name)
		}
	}
	if err := b.batch.Commit(b.store.writeOpts); err != nil {
		return db.StorageFailure(err, "pebble: commit batch")
	}
	b.done.Store(true)
	return b.batch.Close()
}

func (b *Batch) Close() error {
	if !b.done.CompareAndSwap(false, true) {
		return nil
	}
	return b.batch.Close()
}
