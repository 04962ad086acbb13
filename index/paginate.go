package index

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/redivec/query"
)

// Paginator walks a search query in fixed-size pages, re-issuing the query
// with an advancing offset. The result set may shift between round trips if
// the index changes mid-iteration; no snapshot is taken.
type Paginator struct {
	index    *SearchIndex
	query    query.SearchQuery
	pageSize int

	offset  int
	total   int
	started bool
	err     error
}

// Paginate prepares page-wise iteration over a search query. The query's
// own offset is the starting position; its limit is replaced by pageSize.
// pageSize must be positive.
func (i *SearchIndex) Paginate(q query.SearchQuery, pageSize int) *Paginator {
	offset, _ := q.Window()
	p := &Paginator{
		index:    i,
		query:    q,
		pageSize: pageSize,
		offset:   offset,
	}
	if pageSize <= 0 {
		p.err = fmt.Errorf("page size must be positive, got %d: %w",
			pageSize, query.ErrInvalidQuery)
	}
	return p
}

// HasNext reports whether another page is available. Before the first Next
// call it is optimistically true; afterwards it reflects the engine-reported
// total.
func (p *Paginator) HasNext() bool {
	if p.err != nil || p.pageSize <= 0 {
		return false
	}
	if !p.started {
		return true
	}
	return p.offset < p.total
}

// Next fetches the next page of normalized rows. The final page may be
// shorter than pageSize; after it, HasNext reports false.
func (p *Paginator) Next(ctx context.Context) ([]map[string]any, error) {
	if p.err != nil {
		return nil, p.err
	}

	rows, total, err := p.index.search(ctx, p.query, p.offset, p.pageSize)
	if err != nil {
		p.err = err
		return nil, err
	}

	p.started = true
	p.total = total
	p.offset += len(rows)
	return rows, nil
}

// Err returns the first error encountered during iteration.
func (p *Paginator) Err() error { return p.err }

// All drains the paginator and returns every remaining row.
func (p *Paginator) All(ctx context.Context) ([]map[string]any, error) {
	var all []map[string]any
	for p.HasNext() {
		rows, err := p.Next(ctx)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}
		all = append(all, rows...)
	}
	return all, nil
}
