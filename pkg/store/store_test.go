package store

import (
	"bytes"
	"context"
	"iter"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/colstore/pkg/codec"
	"github.com/eigerco/colstore/pkg/comparator"
	"github.com/eigerco/colstore/pkg/db"
	"github.com/eigerco/colstore/pkg/db/boltdb"
	"github.com/eigerco/colstore/pkg/db/memory"
	"github.com/eigerco/colstore/pkg/db/pebble"
	"github.com/eigerco/colstore/pkg/errors"
)

var backends = []struct {
	name string
	open func(t *testing.T) db.Backend
}{
	{
		name: "memory",
		open: func(t *testing.T) db.Backend { return memory.New() },
	},
	{
		name: "pebble",
		open: func(t *testing.T) db.Backend {
			b, err := pebble.NewKVStore()
			require.NoError(t, err)
			return b
		},
	},
	{
		name: "boltdb",
		open: func(t *testing.T) db.Backend {
			b, err := boltdb.Open(filepath.Join(t.TempDir(), "colstore.boltdb"), boltdb.WithNoSync(true))
			require.NoError(t, err)
			return b
		},
	},
}

func TestDatabase(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T, d *Database)
	}{
		{name: "ascending_scan", fn: testAscendingScan},
		{name: "descending_scan", fn: testDescendingScan},
		{name: "missing_column_is_absent", fn: testMissingColumnIsAbsent},
		{name: "drop_then_recreate", fn: testDropThenRecreate},
		{name: "missing_table", fn: testMissingTable},
		{name: "empty_table_name", fn: testEmptyTableName},
		{name: "scan_restarts", fn: testScanRestarts},
		{name: "scan_early_stop", fn: testScanEarlyStop},
		{name: "inverted_range", fn: testInvertedRange},
		{name: "rows", fn: testRows},
		{name: "table_handle", fn: testTableHandle},
		{name: "typed_table", fn: testTypedTable},
	}

	for _, b := range backends {
		for _, tc := range tests {
			t.Run(b.name+"/"+tc.name, func(t *testing.T) {
				d, err := Open(context.Background(), b.open(t))
				require.NoError(t, err)
				defer d.Close() //nolint:errcheck

				tc.fn(t, d)
			})
		}
	}
}

func collect[T any](t *testing.T, seq iter.Seq2[T, error]) []T {
	t.Helper()
	var out []T
	for v, err := range seq {
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

func testAscendingScan(t *testing.T, d *Database) {
	ctx := context.Background()
	require.NoError(t, d.CreateTable(ctx, "T", comparator.Ascending))
	require.NoError(t, d.PutColumn(ctx, "T", 1, 5, []byte("x")))
	require.NoError(t, d.PutColumn(ctx, "T", 1, 3, []byte("y")))

	assert.Equal(t, []db.Column{
		{ID: 3, Value: []byte("y")},
		{ID: 5, Value: []byte("x")},
	}, collect(t, d.ScanColumns(ctx, "T", 1, db.All())))
}

func testDescendingScan(t *testing.T, d *Database) {
	ctx := context.Background()
	require.NoError(t, d.CreateTable(ctx, "T", comparator.Descending))
	require.NoError(t, d.PutColumn(ctx, "T", 1, 5, []byte("x")))
	require.NoError(t, d.PutColumn(ctx, "T", 1, 3, []byte("y")))

	assert.Equal(t, []db.Column{
		{ID: 5, Value: []byte("x")},
		{ID: 3, Value: []byte("y")},
	}, collect(t, d.ScanColumns(ctx, "T", 1, db.All())))
}

func testMissingColumnIsAbsent(t *testing.T, d *Database) {
	ctx := context.Background()
	require.NoError(t, d.CreateTable(ctx, "T", comparator.Ascending))

	v, ok, err := d.GetColumn(ctx, "T", 42, 99)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)

	require.NoError(t, d.PutColumn(ctx, "T", 42, 1, nil))
	v, ok, err = d.GetColumn(ctx, "T", 42, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, v)
}

func testDropThenRecreate(t *testing.T, d *Database) {
	ctx := context.Background()
	require.NoError(t, d.CreateTable(ctx, "T", comparator.Descending))
	require.NoError(t, d.PutColumn(ctx, "T", 1, 1, []byte("old")))
	require.NoError(t, d.PutColumn(ctx, "T", 2, 2, []byte("old")))

	require.NoError(t, d.DropTable(ctx, "T"))
	assert.True(t, errors.Is(d.DropTable(ctx, "T"), errors.ErrNoSuchTable))
	require.NoError(t, d.CreateTable(ctx, "T", comparator.Ascending))

	require.NoError(t, d.PutColumn(ctx, "T", 1, 1, []byte("new")))
	v, ok, err := d.GetColumn(ctx, "T", 1, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("new"), v)

	_, ok, err = d.GetColumn(ctx, "T", 2, 2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []int64{1}, collect(t, d.ScanRows(ctx, "T", db.All())))

	tables, err := d.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []db.TableInfo{{Name: "T", Direction: comparator.Ascending}}, tables)
}

func testMissingTable(t *testing.T, d *Database) {
	ctx := context.Background()
	noSuchTable := func(err error) {
		t.Helper()
		assert.True(t, errors.Is(err, errors.ErrNoSuchTable), "got %v", err)
	}

	noSuchTable(d.PutColumn(ctx, "nope", 1, 1, nil))
	_, _, err := d.GetColumn(ctx, "nope", 1, 1)
	noSuchTable(err)
	noSuchTable(d.DeleteColumn(ctx, "nope", 1, 1))
	noSuchTable(d.DropTable(ctx, "nope"))
	_, err = d.Table(ctx, "nope")
	noSuchTable(err)
	for _, err := range d.ScanColumns(ctx, "nope", 1, db.All()) {
		noSuchTable(err)
	}
	for _, err := range d.ScanRows(ctx, "nope", db.All()) {
		noSuchTable(err)
	}

	require.NoError(t, d.CreateTable(ctx, "T", comparator.Ascending))
	assert.True(t, errors.Is(d.CreateTable(ctx, "T", comparator.Descending), errors.ErrDuplicateTable))
}

func testEmptyTableName(t *testing.T, d *Database) {
	ctx := context.Background()
	assert.True(t, errors.Is(d.CreateTable(ctx, "", comparator.Ascending), errors.ErrNoSuchTable))
	assert.True(t, errors.Is(d.PutColumn(ctx, "", 1, 1, nil), errors.ErrNoSuchTable))
	_, err := d.Table(ctx, "")
	assert.True(t, errors.Is(err, errors.ErrNoSuchTable))
}

func testScanRestarts(t *testing.T, d *Database) {
	ctx := context.Background()
	require.NoError(t, d.CreateTable(ctx, "T", comparator.Ascending))
	for c := int64(0); c < 5; c++ {
		require.NoError(t, d.PutColumn(ctx, "T", 9, c, nil))
	}

	seq := d.ScanColumns(ctx, "T", 9, db.Between(1, 3))
	first := collect(t, seq)
	require.Len(t, first, 3)

	require.NoError(t, d.DeleteColumn(ctx, "T", 9, 2))
	second := collect(t, seq)
	assert.Equal(t, []int64{1, 3}, []int64{second[0].ID, second[1].ID})
	assert.Len(t, second, 2)
}

func testScanEarlyStop(t *testing.T, d *Database) {
	ctx := context.Background()
	require.NoError(t, d.CreateTable(ctx, "T", comparator.Descending))
	for c := int64(0); c < 100; c++ {
		require.NoError(t, d.PutColumn(ctx, "T", 1, c, nil))
	}

	var got []int64
	for c, err := range d.ScanColumns(ctx, "T", 1, db.All()) {
		require.NoError(t, err)
		got = append(got, c.ID)
		if len(got) == 3 {
			break
		}
	}
	assert.Equal(t, []int64{99, 98, 97}, got)

	// Early exit leaves the backend usable.
	require.NoError(t, d.PutColumn(ctx, "T", 1, 100, nil))
}

func testInvertedRange(t *testing.T, d *Database) {
	ctx := context.Background()
	require.NoError(t, d.CreateTable(ctx, "T", comparator.Descending))
	require.NoError(t, d.PutColumn(ctx, "T", 1, 4, nil))

	assert.Empty(t, collect(t, d.ScanColumns(ctx, "T", 1, db.Between(5, 3))))
	assert.Empty(t, collect(t, d.ScanRows(ctx, "T", db.Between(2, 0))))
	assert.Len(t, collect(t, d.ScanColumns(ctx, "T", 1, db.Between(3, 5))), 1)
}

func testRows(t *testing.T, d *Database) {
	ctx := context.Background()
	require.NoError(t, d.CreateTable(ctx, "T", comparator.Descending))
	for _, c := range []int64{math.MinInt64, 0, math.MaxInt64} {
		require.NoError(t, d.PutColumn(ctx, "T", 7, c, []byte{byte(c & 0xff)}))
	}

	ok, err := d.RowExists(ctx, "T", 7)
	require.NoError(t, err)
	assert.True(t, ok)

	row, ok, err := d.ReadRow(ctx, "T", 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), row.ID)
	require.Len(t, row.Columns, 3)
	assert.Equal(t, int64(math.MaxInt64), row.Columns[0].ID)
	v, found := row.Column(0)
	assert.True(t, found)
	assert.Equal(t, []byte{0}, v)
	_, found = row.Column(5)
	assert.False(t, found)

	require.NoError(t, d.DeleteRow(ctx, "T", 7))
	ok, err = d.RowExists(ctx, "T", 7)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = d.ReadRow(ctx, "T", 7)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, collect(t, d.ScanRows(ctx, "T", db.All())))
}

func testTableHandle(t *testing.T, d *Database) {
	ctx := context.Background()
	require.NoError(t, d.CreateTable(ctx, "T", comparator.Descending))

	tbl, err := d.Table(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, "T", tbl.Name())
	assert.Equal(t, comparator.Descending, tbl.Direction())

	require.NoError(t, tbl.Put(ctx, 3, 1, []byte("a")))
	require.NoError(t, tbl.Put(ctx, 3, 2, []byte("b")))
	require.NoError(t, tbl.Put(ctx, -3, 1, []byte("c")))
	require.NoError(t, tbl.Delete(ctx, 3, 1))

	v, ok, err := tbl.Get(ctx, 3, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("b"), v)

	assert.Equal(t, []int64{-3, 3}, collect(t, tbl.Rows(ctx, db.All())))
	assert.Len(t, collect(t, tbl.Columns(ctx, 3, db.All())), 1)

	require.NoError(t, d.DropTable(ctx, "T"))
	assert.True(t, errors.Is(tbl.Put(ctx, 1, 1, nil), errors.ErrNoSuchTable))
}

func testTypedTable(t *testing.T, d *Database) {
	ctx := context.Background()
	require.NoError(t, d.CreateTable(ctx, "events", comparator.Descending))
	tbl, err := d.Table(ctx, "events")
	require.NoError(t, err)
	events := Typed(tbl, codec.Uint64, codec.Time)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, events.PutValue(ctx, 7, base.Add(time.Duration(i)*time.Hour), []byte{byte(i)}))
	}

	v, ok, err := events.GetValue(ctx, 7, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{2}, v)

	lo, hi := base.Add(time.Hour), base.Add(3*time.Hour)
	r, err := events.ColumnRange(&lo, &hi)
	require.NoError(t, err)
	got := collect(t, events.TypedColumns(ctx, 7, r))
	require.Len(t, got, 3)
	assert.True(t, got[0].ID.Equal(hi))
	assert.True(t, got[2].ID.Equal(lo))

	ids, err := events.ColumnIDs(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, ids, 5)

	require.NoError(t, events.DeleteValue(ctx, 7, base))
	require.NoError(t, events.PutValue(ctx, math.MaxUint64, base, []byte{9}))
	rowLo := uint64(7)
	rr, err := events.RowRange(&rowLo, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{7, math.MaxUint64}, collect(t, events.TypedRows(ctx, rr)))

	_, err = events.ColumnRange(nil, &time.Time{})
	assert.True(t, errors.Is(err, errors.ErrEncoding), "got %v", err)
}

func TestOpenLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("start_failure", func(t *testing.T) {
		backend := memory.New()
		defer backend.Close() //nolint:errcheck
		_, err := Open(ctx, backend, WithLifecycle(db.LifecycleFuncs{
			StartFunc: func(context.Context) error { return assert.AnError },
		}))
		assert.True(t, errors.Is(err, errors.ErrBackendUnavailable))
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("start_and_stop", func(t *testing.T) {
		var starts, stops int
		d, err := Open(ctx, memory.New(), WithLifecycle(db.LifecycleFuncs{
			StartFunc: func(context.Context) error { starts++; return nil },
			StopFunc:  func() error { stops++; return nil },
		}))
		require.NoError(t, err)
		require.NoError(t, d.Close())
		require.NoError(t, d.Close())
		assert.Equal(t, 1, starts)
		assert.Equal(t, 1, stops)

		err = d.PutColumn(ctx, "T", 1, 1, nil)
		assert.True(t, errors.Is(err, errors.ErrBackendUnavailable))
	})
}

func TestFailuresAreLogged(t *testing.T) {
	var buf bytes.Buffer
	d, err := Open(context.Background(), memory.New(), WithLogger(zerolog.New(&buf)))
	require.NoError(t, err)
	defer d.Close() //nolint:errcheck

	require.Error(t, d.PutColumn(context.Background(), "nope", 1, 1, nil))
	assert.Contains(t, buf.String(), `"code":"NoSuchTable"`)
	assert.Contains(t, buf.String(), `"op":"put column"`)
}
