package db

// PageFunc loads the page of items that follows cursor, where a nil cursor
// asks for the first page. It returns the cursor to resume from, or nil when
// the scan is exhausted.
type PageFunc[T any] func(cursor []byte) (items []T, next []byte, err error)

// pager turns a PageFunc into a pull iterator. Engines use it when holding a
// native cursor open for the lifetime of a scan is not an option.
type pager[T any] struct {
	fetch  PageFunc[T]
	cursor []byte
	buf    []T
	pos    int
	cur    T
	done   bool
	err    error
}

func (p *pager[T]) next() bool {
	for p.pos >= len(p.buf) {
		if p.done || p.err != nil {
			return false
		}
		items, next, err := p.fetch(p.cursor)
		if err != nil {
			p.err = err
			return false
		}
		p.buf, p.pos, p.cursor = items, 0, next
		if next == nil {
			p.done = true
		}
	}
	p.cur = p.buf[p.pos]
	p.pos++
	return true
}

func (p *pager[T]) close() error {
	p.done = true
	p.buf = nil
	p.pos = 0
	return nil
}

// NewColumnPager returns a ColumnIterator driven by fetch.
func NewColumnPager(fetch PageFunc[Column]) ColumnIterator {
	return &columnPager{pager[Column]{fetch: fetch}}
}

type columnPager struct{ pager[Column] }

func (c *columnPager) Next() bool     { return c.next() }
func (c *columnPager) Column() Column { return c.cur }
func (c *columnPager) Err() error     { return c.err }
func (c *columnPager) Close() error   { return c.close() }

// NewRowPager returns a RowIterator driven by fetch.
func NewRowPager(fetch PageFunc[int64]) RowIterator {
	return &rowPager{pager[int64]{fetch: fetch}}
}

type rowPager struct{ pager[int64] }

func (r *rowPager) Next() bool   { return r.next() }
func (r *rowPager) Row() int64   { return r.cur }
func (r *rowPager) Err() error   { return r.err }
func (r *rowPager) Close() error { return r.close() }

// EmptyColumns returns an exhausted ColumnIterator.
func EmptyColumns() ColumnIterator {
	return NewColumnPager(func([]byte) ([]Column, []byte, error) { return nil, nil, nil })
}

// EmptyRows returns an exhausted RowIterator.
func EmptyRows() RowIterator {
	return NewRowPager(func([]byte) ([]int64, []byte, error) { return nil, nil, nil })
}
