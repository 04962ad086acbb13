package query

import (
	"fmt"

	"github.com/kailas-cloud/redivec/filter"
)

// FilterQuery is a pure metadata query with no vector clause. With no
// filter set it matches every document.
type FilterQuery struct {
	baseQuery
	f filter.Expression
}

// FilterQueryBuilder assembles a FilterQuery.
type FilterQueryBuilder struct {
	q      FilterQuery
	numSet bool
}

// NewFilterQuery starts building a filter-only query.
func NewFilterQuery() *FilterQueryBuilder {
	b := &FilterQueryBuilder{}
	b.q.dialect = DefaultDialect
	return b
}

// Filter sets the filter expression (default match-all).
func (b *FilterQueryBuilder) Filter(f filter.Expression) *FilterQueryBuilder {
	b.q.f = f
	return b
}

// ReturnFields projects the given fields into result rows.
func (b *FilterQueryBuilder) ReturnFields(fields ...string) *FilterQueryBuilder {
	b.q.returnFields = fields
	return b
}

// SortBy orders results by the given sortable field.
func (b *FilterQueryBuilder) SortBy(field string, asc bool) *FilterQueryBuilder {
	b.q.sortBy = field
	b.q.sortAsc = asc
	return b
}

// NumResults bounds the number of rows returned (default 10).
func (b *FilterQueryBuilder) NumResults(n int) *FilterQueryBuilder {
	b.q.numResults = n
	b.numSet = true
	return b
}

// Offset sets the pagination offset.
func (b *FilterQueryBuilder) Offset(n int) *FilterQueryBuilder {
	b.q.offset = n
	return b
}

// Build validates the builder and returns the immutable query.
func (b *FilterQueryBuilder) Build() (*FilterQuery, error) {
	if !b.numSet {
		b.q.numResults = DefaultNumResults
	}
	if b.q.numResults <= 0 {
		return nil, fmt.Errorf("numResults must be positive, got %d: %w",
			b.q.numResults, ErrInvalidQuery)
	}
	if b.q.offset < 0 {
		return nil, fmt.Errorf("offset must not be negative, got %d: %w",
			b.q.offset, ErrInvalidQuery)
	}
	q := b.q
	return &q, nil
}

// MustBuild calls Build and panics on error.
func (b *FilterQueryBuilder) MustBuild() *FilterQuery {
	q, err := b.Build()
	if err != nil {
		panic(err)
	}
	return q
}

// QueryString renders the filter expression, or * when none is set.
func (q *FilterQuery) QueryString() string {
	if filter.IsWildcard(q.f) {
		return "*"
	}
	return q.f.String()
}

// Params returns no bindings; filter queries carry no vector.
func (q *FilterQuery) Params() []string { return nil }

// CountQuery counts documents matching a filter without fetching rows.
type CountQuery struct {
	f filter.Expression
}

// NewCountQuery builds a count over the given filter (nil means match-all).
func NewCountQuery(f filter.Expression) *CountQuery {
	return &CountQuery{f: f}
}

// QueryString renders the filter expression, or * when none is set.
func (q *CountQuery) QueryString() string {
	if filter.IsWildcard(q.f) {
		return "*"
	}
	return q.f.String()
}

// Params returns no bindings.
func (q *CountQuery) Params() []string { return nil }
