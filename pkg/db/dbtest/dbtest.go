// Package dbtest holds the conformance suite every db.Backend runs.
package dbtest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/eigerco/colstore/pkg/codec"
	"github.com/eigerco/colstore/pkg/comparator"
	"github.com/eigerco/colstore/pkg/db"
	"github.com/eigerco/colstore/pkg/errors"
)

// Factory returns a fresh, empty backend handle. Run closes it.
type Factory func(t *testing.T) db.Backend

// Run exercises a backend against the db.Backend contract.
func Run(t *testing.T, newBackend Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, b db.Backend)
	}{
		{name: "create_and_list_tables", fn: testCreateAndListTables},
		{name: "duplicate_table", fn: testDuplicateTable},
		{name: "drop_table", fn: testDropTable},
		{name: "drop_clears_state", fn: testDropClearsState},
		{name: "missing_table", fn: testMissingTable},
		{name: "put_get_overwrite", fn: testPutGetOverwrite},
		{name: "get_missing", fn: testGetMissing},
		{name: "empty_value", fn: testEmptyValue},
		{name: "delete_idempotent", fn: testDeleteIdempotent},
		{name: "scan_columns_ascending", fn: testScanColumnsAscending},
		{name: "scan_columns_descending", fn: testScanColumnsDescending},
		{name: "scan_columns_bounds", fn: testScanColumnsBounds},
		{name: "scan_columns_restart", fn: testScanColumnsRestart},
		{name: "scan_rows", fn: testScanRows},
		{name: "scan_rows_bounds", fn: testScanRowsBounds},
		{name: "row_disappearance", fn: testRowDisappearance},
		{name: "table_isolation", fn: testTableIsolation},
		{name: "extreme_ids", fn: testExtremeIDs},
		{name: "many_columns", fn: testManyColumns},
		{name: "value_ownership", fn: testValueOwnership},
		{name: "register_comparator", fn: testRegisterComparator},
		{name: "concurrent_writers", fn: testConcurrentWriters},
		{name: "cancelled_context", fn: testCancelledContext},
		{name: "closed_backend", fn: testClosedBackend},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := newBackend(t)
			defer b.Close() //nolint:errcheck

			tc.fn(t, b)
		})
	}
}

// Columns drains it and closes it.
func Columns(t *testing.T, it db.ColumnIterator) []db.Column {
	t.Helper()
	defer it.Close() //nolint:errcheck

	var out []db.Column
	for it.Next() {
		out = append(out, it.Column())
	}
	require.NoError(t, it.Err())
	return out
}

// Rows drains it and closes it.
func Rows(t *testing.T, it db.RowIterator) []int64 {
	t.Helper()
	defer it.Close() //nolint:errcheck

	var out []int64
	for it.Next() {
		out = append(out, it.Row())
	}
	require.NoError(t, it.Err())
	return out
}

func ids(cols []db.Column) []int64 {
	out := make([]int64, len(cols))
	for i, c := range cols {
		out[i] = c.ID
	}
	return out
}

func scanColumns(t *testing.T, b db.Backend, table string, row int64, r db.Range) []db.Column {
	t.Helper()
	it, err := b.ScanColumns(context.Background(), table, row, r)
	require.NoError(t, err)
	return Columns(t, it)
}

func scanRows(t *testing.T, b db.Backend, table string, r db.Range) []int64 {
	t.Helper()
	it, err := b.ScanRows(context.Background(), table, r)
	require.NoError(t, err)
	return Rows(t, it)
}

func mustCreate(t *testing.T, b db.Backend, name string, d comparator.Direction) {
	t.Helper()
	require.NoError(t, b.CreateTable(context.Background(), name, d))
}

func mustPut(t *testing.T, b db.Backend, table string, row, col int64, value string) {
	t.Helper()
	require.NoError(t, b.PutColumn(context.Background(), table, row, col, []byte(value)))
}

func testCreateAndListTables(t *testing.T, b db.Backend) {
	ctx := context.Background()
	tables, err := b.ListTables(ctx)
	require.NoError(t, err)
	assert.Empty(t, tables)

	mustCreate(t, b, "events", comparator.Descending)
	mustCreate(t, b, "accounts", comparator.Ascending)

	tables, err = b.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []db.TableInfo{
		{Name: "accounts", Direction: comparator.Ascending},
		{Name: "events", Direction: comparator.Descending},
	}, tables)
}

func testDuplicateTable(t *testing.T, b db.Backend) {
	mustCreate(t, b, "T", comparator.Ascending)
	err := b.CreateTable(context.Background(), "T", comparator.Descending)
	assert.True(t, errors.Is(err, errors.ErrDuplicateTable), "got %v", err)

	tables, err := b.ListTables(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, comparator.Ascending, tables[0].Direction)
}

func testDropTable(t *testing.T, b db.Backend) {
	ctx := context.Background()
	mustCreate(t, b, "T", comparator.Ascending)
	require.NoError(t, b.DropTable(ctx, "T"))

	err := b.DropTable(ctx, "T")
	assert.True(t, errors.Is(err, errors.ErrNoSuchTable), "got %v", err)

	err = b.DropTable(ctx, "never")
	assert.True(t, errors.Is(err, errors.ErrNoSuchTable), "got %v", err)
}

func testDropClearsState(t *testing.T, b db.Backend) {
	ctx := context.Background()
	mustCreate(t, b, "T", comparator.Descending)
	mustPut(t, b, "T", 1, 5, "old")
	mustPut(t, b, "T", 2, 6, "old")
	require.NoError(t, b.DropTable(ctx, "T"))

	mustCreate(t, b, "T", comparator.Ascending)
	_, err := b.GetColumn(ctx, "T", 1, 5)
	assert.ErrorIs(t, err, db.ErrNotFound)
	assert.Empty(t, scanRows(t, b, "T", db.All()))

	mustPut(t, b, "T", 1, 5, "new")
	mustPut(t, b, "T", 1, 3, "newer")
	v, err := b.GetColumn(ctx, "T", 1, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), v)
	assert.Equal(t, []int64{3, 5}, ids(scanColumns(t, b, "T", 1, db.All())))
}

func testMissingTable(t *testing.T, b db.Backend) {
	ctx := context.Background()
	isMissing := func(err error) {
		t.Helper()
		assert.True(t, errors.Is(err, errors.ErrNoSuchTable), "got %v", err)
	}

	isMissing(b.PutColumn(ctx, "nope", 1, 1, []byte("x")))
	_, err := b.GetColumn(ctx, "nope", 1, 1)
	isMissing(err)
	isMissing(b.DeleteColumn(ctx, "nope", 1, 1))
	_, err = b.ScanColumns(ctx, "nope", 1, db.All())
	isMissing(err)
	_, err = b.ScanRows(ctx, "nope", db.All())
	isMissing(err)
}

func testPutGetOverwrite(t *testing.T, b db.Backend) {
	ctx := context.Background()
	mustCreate(t, b, "T", comparator.Ascending)
	mustPut(t, b, "T", 1, 5, "x")

	v, err := b.GetColumn(ctx, "T", 1, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), v)

	mustPut(t, b, "T", 1, 5, "replaced")
	v, err = b.GetColumn(ctx, "T", 1, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("replaced"), v)
	assert.Len(t, scanColumns(t, b, "T", 1, db.All()), 1)
}

func testGetMissing(t *testing.T, b db.Backend) {
	ctx := context.Background()
	mustCreate(t, b, "T", comparator.Ascending)
	_, err := b.GetColumn(ctx, "T", 42, 99)
	assert.ErrorIs(t, err, db.ErrNotFound)

	mustPut(t, b, "T", 42, 1, "x")
	_, err = b.GetColumn(ctx, "T", 42, 99)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func testEmptyValue(t *testing.T, b db.Backend) {
	ctx := context.Background()
	mustCreate(t, b, "T", comparator.Ascending)
	require.NoError(t, b.PutColumn(ctx, "T", 1, 1, nil))

	v, err := b.GetColumn(ctx, "T", 1, 1)
	require.NoError(t, err)
	assert.Empty(t, v)
	assert.Equal(t, []int64{1}, scanRows(t, b, "T", db.All()))
}

func testDeleteIdempotent(t *testing.T, b db.Backend) {
	ctx := context.Background()
	mustCreate(t, b, "T", comparator.Ascending)
	mustPut(t, b, "T", 1, 1, "a")
	mustPut(t, b, "T", 1, 2, "b")

	require.NoError(t, b.DeleteColumn(ctx, "T", 1, 1))
	require.NoError(t, b.DeleteColumn(ctx, "T", 1, 1))
	require.NoError(t, b.DeleteColumn(ctx, "T", 7, 7))

	assert.Equal(t, []db.Column{{ID: 2, Value: []byte("b")}}, scanColumns(t, b, "T", 1, db.All()))
	assert.Equal(t, []int64{1}, scanRows(t, b, "T", db.All()))
}

func testScanColumnsAscending(t *testing.T, b db.Backend) {
	mustCreate(t, b, "T", comparator.Ascending)
	mustPut(t, b, "T", 1, 5, "x")
	mustPut(t, b, "T", 1, 3, "y")

	assert.Equal(t, []db.Column{
		{ID: 3, Value: []byte("y")},
		{ID: 5, Value: []byte("x")},
	}, scanColumns(t, b, "T", 1, db.All()))
}

func testScanColumnsDescending(t *testing.T, b db.Backend) {
	mustCreate(t, b, "T", comparator.Descending)
	mustPut(t, b, "T", 1, 5, "x")
	mustPut(t, b, "T", 1, 3, "y")

	assert.Equal(t, []db.Column{
		{ID: 5, Value: []byte("x")},
		{ID: 3, Value: []byte("y")},
	}, scanColumns(t, b, "T", 1, db.All()))
}

func testScanColumnsBounds(t *testing.T, b db.Backend) {
	for _, d := range []comparator.Direction{comparator.Ascending, comparator.Descending} {
		name := "T_" + d.String()
		mustCreate(t, b, name, d)
		for _, c := range []int64{-10, -3, -1, 0, 1, 2, 3, 4, 9} {
			mustPut(t, b, name, 8, c, fmt.Sprint(c))
		}
		// Neighbouring rows must never leak into a row's scan.
		mustPut(t, b, name, 7, 0, "prev")
		mustPut(t, b, name, 9, 0, "next")

		ordered := func(in ...int64) []int64 {
			out := append([]int64{}, in...)
			sort.Slice(out, func(i, j int) bool { return comparator.Compare(d, out[i], out[j]) < 0 })
			return out
		}

		tests := []struct {
			r    db.Range
			want []int64
		}{
			{db.All(), ordered(-10, -3, -1, 0, 1, 2, 3, 4, 9)},
			{db.Between(-1, 3), ordered(-1, 0, 1, 2, 3)},
			{db.Between(3, 3), ordered(3)},
			{db.Between(5, 8), nil},
			{db.Between(4, -4), nil},
			{db.From(3), ordered(3, 4, 9)},
			{db.To(-1), ordered(-10, -3, -1)},
			{db.From(10), nil},
		}
		for _, tc := range tests {
			got := ids(scanColumns(t, b, name, 8, tc.r))
			if tc.want == nil {
				assert.Empty(t, got, "%s %s", d, tc.r)
				continue
			}
			assert.Equal(t, tc.want, got, "%s %s", d, tc.r)
		}
	}
}

func testScanColumnsRestart(t *testing.T, b db.Backend) {
	mustCreate(t, b, "T", comparator.Ascending)
	for c := int64(0); c < 10; c++ {
		mustPut(t, b, "T", 1, c, "v")
	}

	it, err := b.ScanColumns(context.Background(), "T", 1, db.All())
	require.NoError(t, err)
	require.True(t, it.Next())
	require.True(t, it.Next())
	assert.Equal(t, int64(1), it.Column().ID)
	require.NoError(t, it.Close())
	require.NoError(t, it.Close())
	assert.False(t, it.Next())

	assert.Len(t, scanColumns(t, b, "T", 1, db.All()), 10)
}

func testScanRows(t *testing.T, b db.Backend) {
	for _, d := range []comparator.Direction{comparator.Ascending, comparator.Descending} {
		name := "T_" + d.String()
		mustCreate(t, b, name, d)
		for _, r := range []int64{5, -2, 100, 0} {
			for c := int64(0); c < 3; c++ {
				mustPut(t, b, name, r, c, "v")
			}
		}
		assert.Equal(t, []int64{-2, 0, 5, 100}, scanRows(t, b, name, db.All()), d.String())
	}
}

func testScanRowsBounds(t *testing.T, b db.Backend) {
	mustCreate(t, b, "T", comparator.Descending)
	for r := int64(-5); r <= 5; r++ {
		mustPut(t, b, "T", r, r*10, "v")
	}

	assert.Equal(t, []int64{-1, 0, 1}, scanRows(t, b, "T", db.Between(-1, 1)))
	assert.Equal(t, []int64{4, 5}, scanRows(t, b, "T", db.From(4)))
	assert.Equal(t, []int64{-5, -4}, scanRows(t, b, "T", db.To(-4)))
	assert.Empty(t, scanRows(t, b, "T", db.Between(1, -1)))
	assert.Empty(t, scanRows(t, b, "T", db.From(6)))
}

func testRowDisappearance(t *testing.T, b db.Backend) {
	ctx := context.Background()
	mustCreate(t, b, "T", comparator.Ascending)
	mustPut(t, b, "T", 1, 1, "a")
	mustPut(t, b, "T", 2, 1, "a")
	mustPut(t, b, "T", 2, 2, "b")

	require.NoError(t, b.DeleteColumn(ctx, "T", 2, 1))
	assert.Equal(t, []int64{1, 2}, scanRows(t, b, "T", db.All()))

	require.NoError(t, b.DeleteColumn(ctx, "T", 2, 2))
	assert.Equal(t, []int64{1}, scanRows(t, b, "T", db.All()))
	assert.Empty(t, scanColumns(t, b, "T", 2, db.All()))
}

func testTableIsolation(t *testing.T, b db.Backend) {
	ctx := context.Background()
	mustCreate(t, b, "a", comparator.Ascending)
	mustCreate(t, b, "b", comparator.Descending)
	mustPut(t, b, "a", 1, 1, "from-a")
	mustPut(t, b, "b", 1, 1, "from-b")
	mustPut(t, b, "b", 2, 2, "only-b")

	v, err := b.GetColumn(ctx, "a", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("from-a"), v)
	assert.Equal(t, []int64{1}, scanRows(t, b, "a", db.All()))
	assert.Equal(t, []int64{1, 2}, scanRows(t, b, "b", db.All()))

	require.NoError(t, b.DropTable(ctx, "a"))
	v, err = b.GetColumn(ctx, "b", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("from-b"), v)
}

func testExtremeIDs(t *testing.T, b db.Backend) {
	ctx := context.Background()
	extremes := []int64{math.MinInt64, -1, 0, 1, math.MaxInt64}
	for _, d := range []comparator.Direction{comparator.Ascending, comparator.Descending} {
		name := "T_" + d.String()
		mustCreate(t, b, name, d)
		for _, r := range extremes {
			for _, c := range extremes {
				mustPut(t, b, name, r, c, fmt.Sprint(r, c))
			}
		}
		assert.Equal(t, extremes, scanRows(t, b, name, db.All()))
		for _, r := range extremes {
			want := append([]int64{}, extremes...)
			if d == comparator.Descending {
				sort.Slice(want, func(i, j int) bool { return want[i] > want[j] })
			}
			assert.Equal(t, want, ids(scanColumns(t, b, name, r, db.All())), "%s row %d", d, r)

			v, err := b.GetColumn(ctx, name, r, math.MaxInt64)
			require.NoError(t, err)
			assert.Equal(t, []byte(fmt.Sprint(r, int64(math.MaxInt64))), v)
		}
		assert.Equal(t, []int64{math.MaxInt64}, scanRows(t, b, name, db.From(math.MaxInt64)))
		assert.Equal(t, []int64{math.MinInt64}, scanRows(t, b, name, db.To(math.MinInt64)))
	}
}

func testManyColumns(t *testing.T, b db.Backend) {
	const n = 1500
	mustCreate(t, b, "T", comparator.Descending)
	for c := int64(0); c < n; c++ {
		mustPut(t, b, "T", 3, c, fmt.Sprint(c))
	}
	for r := int64(0); r < n; r += 100 {
		mustPut(t, b, "T", r+1000, 0, "")
	}

	cols := scanColumns(t, b, "T", 3, db.All())
	require.Len(t, cols, n)
	for i, c := range cols {
		assert.Equal(t, int64(n-1-i), c.ID)
		assert.Equal(t, []byte(fmt.Sprint(c.ID)), c.Value)
	}
	assert.Len(t, scanRows(t, b, "T", db.All()), 1+n/100)
}

func testValueOwnership(t *testing.T, b db.Backend) {
	ctx := context.Background()
	mustCreate(t, b, "T", comparator.Ascending)
	in := []byte("value")
	require.NoError(t, b.PutColumn(ctx, "T", 1, 1, in))
	in[0] = 'X'

	v, err := b.GetColumn(ctx, "T", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), v)
	v[0] = 'Y'

	v, err = b.GetColumn(ctx, "T", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), v)

	cols := scanColumns(t, b, "T", 1, db.All())
	require.Len(t, cols, 1)
	cols[0].Value[0] = 'Z'
	assert.Equal(t, []byte("value"), scanColumns(t, b, "T", 1, db.All())[0].Value)
}

func testRegisterComparator(t *testing.T, b db.Backend) {
	samples := []int64{math.MinInt64, -7, -1, 0, 1, 7, math.MaxInt64}
	for _, d := range []comparator.Direction{comparator.Ascending, comparator.Descending} {
		c, err := b.RegisterComparator(d)
		require.NoError(t, err)
		assert.Equal(t, d, c.Direction())

		for _, x := range samples {
			for _, y := range samples {
				got := c.Compare(codec.AppendInt64(nil, x), codec.AppendInt64(nil, y))
				assert.Equal(t, comparator.Compare(d, x, y), got, "%s %d %d", d, x, y)
			}
		}
		assert.Equal(t, -1, c.Compare(nil, codec.AppendInt64(nil, math.MinInt64)))
		assert.True(t, errors.Is(c.Validate([]byte{1}), errors.ErrInvalidEncoding))
	}
}

func testConcurrentWriters(t *testing.T, b db.Backend) {
	const writers, perWriter = 8, 50
	ctx := context.Background()
	mustCreate(t, b, "T", comparator.Ascending)

	var g errgroup.Group
	for w := 0; w < writers; w++ {
		row := int64(w)
		g.Go(func() error {
			for c := int64(0); c < perWriter; c++ {
				if err := b.PutColumn(ctx, "T", row, c, []byte{byte(c)}); err != nil {
					return err
				}
				if c%2 == 1 {
					if err := b.DeleteColumn(ctx, "T", row, c); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Len(t, scanRows(t, b, "T", db.All()), writers)
	for w := int64(0); w < writers; w++ {
		assert.Len(t, scanColumns(t, b, "T", w, db.All()), perWriter/2)
	}
}

func testCancelledContext(t *testing.T, b db.Backend) {
	mustCreate(t, b, "T", comparator.Ascending)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.PutColumn(ctx, "T", 1, 1, []byte("x"))
	assert.True(t, errors.Is(err, errors.ErrStorageFailure), "got %v", err)
	_, err = b.GetColumn(ctx, "T", 1, 1)
	assert.True(t, errors.Is(err, errors.ErrStorageFailure), "got %v", err)
	assert.Empty(t, scanRows(t, b, "T", db.All()))
}

func testClosedBackend(t *testing.T, b db.Backend) {
	ctx := context.Background()
	mustCreate(t, b, "T", comparator.Ascending)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	unavailable := func(err error) {
		t.Helper()
		assert.True(t, errors.Is(err, errors.ErrBackendUnavailable), "got %v", err)
	}
	unavailable(b.PutColumn(ctx, "T", 1, 1, []byte("x")))
	_, err := b.GetColumn(ctx, "T", 1, 1)
	unavailable(err)
	unavailable(b.DeleteColumn(ctx, "T", 1, 1))
	unavailable(b.CreateTable(ctx, "U", comparator.Ascending))
	unavailable(b.DropTable(ctx, "T"))
	_, err = b.ListTables(ctx)
	unavailable(err)
	_, err = b.ScanColumns(ctx, "T", 1, db.All())
	unavailable(err)
	_, err = b.ScanRows(ctx, "T", db.All())
	unavailable(err)
}
