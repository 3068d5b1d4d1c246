package pebble

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/colstore/pkg/comparator"
	"github.com/eigerco/colstore/pkg/db"
	"github.com/eigerco/colstore/pkg/db/dbtest"
	cerrors "github.com/eigerco/colstore/pkg/errors"
)

func TestBatch(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store *KVStore)
	}{
		{
			name: "basic_batch_operations",
			fn:   testBasicBatchOperations,
		},
		{
			name: "batch_commit_closure",
			fn:   testBatchCommitAndClose,
		},
		{
			name: "multiple_batches",
			fn:   testMultipleBatches,
		},
		{
			name: "dropped_table_fails_commit",
			fn:   testBatchDroppedTable,
		},
		{
			name: "unknown_table",
			fn:   testBatchUnknownTable,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewKVStore()
			require.NoError(t, err)
			defer store.Close() //nolint:errcheck

			ctx := context.Background()
			require.NoError(t, store.CreateTable(ctx, "A", comparator.Ascending))
			require.NoError(t, store.CreateTable(ctx, "D", comparator.Descending))

			tc.fn(t, store)
		})
	}
}

func testBasicBatchOperations(t *testing.T, store *KVStore) {
	ctx := context.Background()
	batch := store.NewBatch()
	defer batch.Close() //nolint:errcheck

	for _, c := range []int64{1, 2, 3} {
		require.NoError(t, batch.PutColumn(ctx, "A", 10, c, []byte{byte(c)}))
		require.NoError(t, batch.PutColumn(ctx, "D", 20, c, []byte{byte(c)}))
	}
	require.NoError(t, batch.DeleteColumn(ctx, "A", 10, 2))

	// Nothing is visible before commit.
	_, err := store.GetColumn(ctx, "A", 10, 1)
	assert.ErrorIs(t, err, db.ErrNotFound)

	require.NoError(t, batch.Commit(ctx))

	it, err := store.ScanColumns(ctx, "A", 10, db.All())
	require.NoError(t, err)
	assert.Equal(t, []db.Column{{ID: 1, Value: []byte{1}}, {ID: 3, Value: []byte{3}}}, dbtest.Columns(t, it))

	it, err = store.ScanColumns(ctx, "D", 20, db.All())
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2, 1}, columnIDs(dbtest.Columns(t, it)))
}

func testBatchCommitAndClose(t *testing.T, store *KVStore) {
	ctx := context.Background()
	batch := store.NewBatch()

	require.NoError(t, batch.PutColumn(ctx, "A", 1, 1, []byte("value")))
	require.NoError(t, batch.Commit(ctx))

	err := batch.PutColumn(ctx, "A", 1, 2, []byte("value2"))
	assert.ErrorIs(t, err, ErrBatchDone)
	assert.True(t, cerrors.Is(err, cerrors.ErrStorageFailure))

	assert.ErrorIs(t, batch.DeleteColumn(ctx, "A", 1, 2), ErrBatchDone)
	assert.ErrorIs(t, batch.Commit(ctx), ErrBatchDone)

	assert.NoError(t, batch.Close())
	assert.NoError(t, batch.Close())
}

func testMultipleBatches(t *testing.T, store *KVStore) {
	ctx := context.Background()
	batch1 := store.NewBatch()
	batch2 := store.NewBatch()
	defer batch1.Close() //nolint:errcheck
	defer batch2.Close() //nolint:errcheck

	require.NoError(t, batch1.PutColumn(ctx, "A", 1, 1, []byte("batch1")))
	require.NoError(t, batch2.PutColumn(ctx, "A", 1, 1, []byte("batch2")))

	require.NoError(t, batch1.Commit(ctx))
	require.NoError(t, batch2.Commit(ctx))

	v, err := store.GetColumn(ctx, "A", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("batch2"), v)
}

func testBatchDroppedTable(t *testing.T, store *KVStore) {
	ctx := context.Background()
	batch := store.NewBatch()
	defer batch.Close() //nolint:errcheck

	require.NoError(t, batch.PutColumn(ctx, "A", 1, 1, []byte("a")))
	require.NoError(t, batch.PutColumn(ctx, "D", 1, 1, []byte("d")))

	require.NoError(t, store.DropTable(ctx, "D"))
	require.NoError(t, store.CreateTable(ctx, "D", comparator.Descending))

	err := batch.Commit(ctx)
	assert.True(t, cerrors.Is(err, cerrors.ErrNoSuchTable))

	_, err = store.GetColumn(ctx, "A", 1, 1)
	assert.ErrorIs(t, err, db.ErrNotFound)
	_, err = store.GetColumn(ctx, "D", 1, 1)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func testBatchUnknownTable(t *testing.T, store *KVStore) {
	ctx := context.Background()
	batch := store.NewBatch()
	defer batch.Close() //nolint:errcheck

	err := batch.PutColumn(ctx, "missing", 1, 1, nil)
	assert.True(t, cerrors.Is(err, cerrors.ErrNoSuchTable))
	err = batch.DeleteColumn(ctx, "missing", 1, 1)
	assert.True(t, cerrors.Is(err, cerrors.ErrNoSuchTable))
}
