package metrics

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/colstore/pkg/comparator"
	"github.com/eigerco/colstore/pkg/db"
	"github.com/eigerco/colstore/pkg/db/dbtest"
	"github.com/eigerco/colstore/pkg/db/memory"
)

func TestBackendConformance(t *testing.T) {
	dbtest.Run(t, func(t *testing.T) db.Backend {
		b, err := Wrap(memory.New(), prometheus.NewRegistry())
		require.NoError(t, err)
		return b
	})
}

func TestBackendCounts(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	b, err := Wrap(memory.New(), reg)
	require.NoError(t, err)
	defer b.Close() //nolint:errcheck

	require.NoError(t, b.CreateTable(ctx, "T", comparator.Ascending))
	require.Error(t, b.CreateTable(ctx, "T", comparator.Ascending))
	require.NoError(t, b.PutColumn(ctx, "T", 1, 1, []byte("a")))
	require.NoError(t, b.PutColumn(ctx, "T", 1, 2, []byte("b")))
	_, err = b.GetColumn(ctx, "T", 1, 3)
	require.ErrorIs(t, err, db.ErrNotFound)
	_, err = b.GetColumn(ctx, "missing", 1, 3)
	require.Error(t, err)

	it, err := b.ScanColumns(ctx, "T", 1, db.All())
	require.NoError(t, err)
	assert.Len(t, dbtest.Columns(t, it), 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(b.operations.WithLabelValues("create_table", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.operations.WithLabelValues("create_table", "DuplicateTable")))
	assert.Equal(t, 2.0, testutil.ToFloat64(b.operations.WithLabelValues("put_column", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.operations.WithLabelValues("get_column", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.operations.WithLabelValues("get_column", "NoSuchTable")))
	assert.Equal(t, 2.0, testutil.ToFloat64(b.scanned.WithLabelValues("scan_columns")))

	expected := `
# HELP colstore_backend_scanned_entries_total Columns and rows yielded by scans.
# TYPE colstore_backend_scanned_entries_total counter
colstore_backend_scanned_entries_total{op="scan_columns"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), namespace+"_"+MetricScannedEntries))
}

func TestWrapTwiceOnSameRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := Wrap(memory.New(), reg)
	require.NoError(t, err)
	_, err = Wrap(memory.New(), reg)
	assert.Error(t, err)
}
