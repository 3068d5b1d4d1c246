// Package metrics instruments a db.Backend with Prometheus collectors.
package metrics

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eigerco/colstore/pkg/comparator"
	"github.com/eigerco/colstore/pkg/db"
	"github.com/eigerco/colstore/pkg/errors"
)

const (
	namespace = "colstore"

	MetricOperations     = "backend_operations_total"
	MetricDuration       = "backend_operation_duration_seconds"
	MetricScannedEntries = "backend_scanned_entries_total"

	resultOK       = "ok"
	resultNotFound = "not_found"
)

// Backend records every call made through it and forwards it unchanged.
type Backend struct {
	next       db.Backend
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	scanned    *prometheus.CounterVec
}

var _ db.Backend = (*Backend)(nil)

// Wrap registers the collectors with reg and returns the instrumented
// backend. It fails if the collectors are already registered with reg.
func Wrap(next db.Backend, reg prometheus.Registerer) (*Backend, error) {
	b := &Backend{
		next: next,
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      MetricOperations,
				Help:      "Backend calls by operation and result code.",
			},
			[]string{"op", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      MetricDuration,
				Help:      "Backend call latency by operation.",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"op"},
		),
		scanned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      MetricScannedEntries,
				Help:      "Columns and rows yielded by scans.",
			},
			[]string{"op"},
		),
	}
	for _, c := range []prometheus.Collector{b.operations, b.duration, b.scanned} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, errors.ErrBackendUnavailable, "metrics: register collector")
		}
	}
	return b, nil
}

func (b *Backend) observe(op string, start time.Time, err error) {
	b.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	b.operations.WithLabelValues(op, result(err)).Inc()
}

// result labels err by its code. A missing column is a normal outcome of
// GetColumn and gets its own label.
func result(err error) string {
	switch {
	case err == nil:
		return resultOK
	case stderrors.Is(err, db.ErrNotFound):
		return resultNotFound
	}
	return string(errors.CodeOf(err))
}

func (b *Backend) RegisterComparator(d comparator.Direction) (comparator.Comparator, error) {
	return b.next.RegisterComparator(d)
}

func (b *Backend) CreateTable(ctx context.Context, name string, d comparator.Direction) error {
	start := time.Now()
	err := b.next.CreateTable(ctx, name, d)
	b.observe("create_table", start, err)
	return err
}

func (b *Backend) DropTable(ctx context.Context, name string) error {
	start := time.Now()
	err := b.next.DropTable(ctx, name)
	b.observe("drop_table", start, err)
	return err
}

func (b *Backend) ListTables(ctx context.Context) ([]db.TableInfo, error) {
	start := time.Now()
	tables, err := b.next.ListTables(ctx)
	b.observe("list_tables", start, err)
	return tables, err
}

func (b *Backend) PutColumn(ctx context.Context, table string, row, column int64, value []byte) error {
	start := time.Now()
	err := b.next.PutColumn(ctx, table, row, column, value)
	b.observe("put_column", start, err)
	return err
}

func (b *Backend) GetColumn(ctx context.Context, table string, row, column int64) ([]byte, error) {
	start := time.Now()
	v, err := b.next.GetColumn(ctx, table, row, column)
	b.observe("get_column", start, err)
	return v, err
}

func (b *Backend) DeleteColumn(ctx context.Context, table string, row, column int64) error {
	start := time.Now()
	err := b.next.DeleteColumn(ctx, table, row, column)
	b.observe("delete_column", start, err)
	return err
}

// ScanColumns times the opening of the scan. Yielded columns are counted as
// the caller pulls them.
func (b *Backend) ScanColumns(ctx context.Context, table string, row int64, r db.Range) (db.ColumnIterator, error) {
	start := time.Now()
	it, err := b.next.ScanColumns(ctx, table, row, r)
	b.observe("scan_columns", start, err)
	if err != nil {
		return nil, err
	}
	return &columnIterator{ColumnIterator: it, yielded: b.scanned.WithLabelValues("scan_columns")}, nil
}

func (b *Backend) ScanRows(ctx context.Context, table string, r db.Range) (db.RowIterator, error) {
	start := time.Now()
	it, err := b.next.ScanRows(ctx, table, r)
	b.observe("scan_rows", start, err)
	if err != nil {
		return nil, err
	}
	return &rowIterator{RowIterator: it, yielded: b.scanned.WithLabelValues("scan_rows")}, nil
}

func (b *Backend) Close() error {
	return b.next.Close()
}

type columnIterator struct {
	db.ColumnIterator
	yielded prometheus.Counter
}

func (it *columnIterator) Next() bool {
	if !it.ColumnIterator.Next() {
		return false
	}
	it.yielded.Inc()
	return true
}

type rowIterator struct {
	db.RowIterator
	yielded prometheus.Counter
}

func (it *rowIterator) Next() bool {
	if !it.RowIterator.Next() {
		return false
	}
	it.yielded.Inc()
	return true
}
