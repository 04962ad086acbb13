package query

import "fmt"

// RangeAggregationQuery runs a vector range scan and reduces the yielded
// distances per group in one engine round trip. This is the execution form
// behind semantic routing: one search retrieves candidates for every
// group's threshold check at once.
type RangeAggregationQuery struct {
	rangeQuery *VectorRangeQuery
	load       []string
	groupBy    string
	reducer    Reducer
	sortAsc    bool
	limit      int
}

// RangeAggregationBuilder assembles a RangeAggregationQuery.
type RangeAggregationBuilder struct {
	rb      *VectorRangeQueryBuilder
	load    []string
	groupBy string
	fn      string
	limit   int
}

// NewRangeAggregation starts building a grouped vector range query.
func NewRangeAggregation() *RangeAggregationBuilder {
	return &RangeAggregationBuilder{
		rb: NewVectorRangeQuery(),
		fn: ReduceAvg,
	}
}

// Vector sets the query vector.
func (b *RangeAggregationBuilder) Vector(v []float32) *RangeAggregationBuilder {
	b.rb.Vector(v)
	return b
}

// Field names the vector field to search.
func (b *RangeAggregationBuilder) Field(name string) *RangeAggregationBuilder {
	b.rb.Field(name)
	return b
}

// DistanceThreshold bounds the candidate pool.
func (b *RangeAggregationBuilder) DistanceThreshold(t float64) *RangeAggregationBuilder {
	b.rb.DistanceThreshold(t)
	return b
}

// GroupBy sets the field candidate rows are grouped on.
func (b *RangeAggregationBuilder) GroupBy(field string) *RangeAggregationBuilder {
	b.groupBy = field
	return b
}

// Reduce selects the distance reducer: ReduceAvg, ReduceMin or ReduceSum.
func (b *RangeAggregationBuilder) Reduce(fn string) *RangeAggregationBuilder {
	b.fn = fn
	return b
}

// Load adds fields loaded into the pipeline before grouping.
func (b *RangeAggregationBuilder) Load(fields ...string) *RangeAggregationBuilder {
	b.load = fields
	return b
}

// Limit bounds the number of groups returned.
func (b *RangeAggregationBuilder) Limit(n int) *RangeAggregationBuilder {
	b.limit = n
	return b
}

// Build validates the builder and returns the immutable query.
func (b *RangeAggregationBuilder) Build() (*RangeAggregationQuery, error) {
	if b.groupBy == "" {
		return nil, fmt.Errorf("group-by field is required: %w", ErrInvalidQuery)
	}
	switch b.fn {
	case ReduceAvg, ReduceMin, ReduceSum:
	default:
		return nil, fmt.Errorf("unknown reducer %q: %w", b.fn, ErrInvalidQuery)
	}
	if b.limit < 0 {
		return nil, fmt.Errorf("limit must not be negative, got %d: %w", b.limit, ErrInvalidQuery)
	}

	// The aggregation pipeline reads the yielded distance itself; rows do
	// not need a projected distance column.
	rq, err := b.rb.SortBy("", false).ReturnDistance(false).Build()
	if err != nil {
		return nil, err
	}

	return &RangeAggregationQuery{
		rangeQuery: rq,
		load:       b.load,
		groupBy:    b.groupBy,
		reducer:    Reducer{Fn: b.fn, Arg: DistanceField, As: "distance"},
		sortAsc:    true,
		limit:      b.limit,
	}, nil
}

// QueryString renders the underlying VECTOR_RANGE clause.
func (q *RangeAggregationQuery) QueryString() string { return q.rangeQuery.QueryString() }

// Params binds the threshold and the serialized query vector.
func (q *RangeAggregationQuery) Params() []string { return q.rangeQuery.Params() }

// Load lists fields loaded into the pipeline before grouping.
func (q *RangeAggregationQuery) Load() []string { return q.load }

// Group returns the group-by field and the reducer.
func (q *RangeAggregationQuery) Group() (string, Reducer) { return q.groupBy, q.reducer }

// Sort orders groups by the reduced distance.
func (q *RangeAggregationQuery) Sort() (string, bool) { return q.reducer.As, q.sortAsc }

// Limit bounds the number of groups returned, 0 for all.
func (q *RangeAggregationQuery) Limit() int { return q.limit }

// Dialect returns the query dialect.
func (q *RangeAggregationQuery) Dialect() int { return q.rangeQuery.Dialect() }
