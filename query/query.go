// Package query builds FT search requests: KNN vector queries, distance
// threshold (range) queries, pure filter queries, counts, and the grouped
// aggregation form used for routing. Builders validate late, at Build(),
// and the built query objects are immutable and reusable.
package query

import "errors"

// ErrInvalidQuery marks builder validation failures raised at Build() time.
var ErrInvalidQuery = errors.New("query: invalid argument")

// DistanceField is the canonical key under which vector distance appears in
// query strings and normalized result rows, regardless of execution path.
const DistanceField = "vector_distance"

// DefaultDialect is the query dialect sent with every vector query.
const DefaultDialect = 2

// DefaultNumResults bounds queries that do not set an explicit limit.
const DefaultNumResults = 10

// SearchQuery is a request executable over the plain FT.SEARCH path.
type SearchQuery interface {
	// QueryString renders the dialect-2 query text.
	QueryString() string
	// Params returns flat name/value pairs bound via PARAMS.
	Params() []string
	// ReturnFields lists the fields to project into result rows.
	ReturnFields() []string
	// Sort returns the sort field and direction; empty field means engine order.
	Sort() (field string, asc bool)
	// Window returns the offset/limit pagination window.
	Window() (offset, limit int)
	// Dialect returns the query dialect, 0 for server default.
	Dialect() int
}

// AggregationQuery is a request executable over the FT.AGGREGATE path.
type AggregationQuery interface {
	QueryString() string
	Params() []string
	// Load lists fields loaded into the pipeline before grouping.
	Load() []string
	// Group returns the group-by field and the reducer.
	Group() (by string, reduce Reducer)
	Sort() (field string, asc bool)
	Limit() int
	Dialect() int
}

// Reducer is a single GROUPBY REDUCE stage.
type Reducer struct {
	// Fn is the reducer function name: AVG, MIN or SUM.
	Fn string
	// Arg is the reduced field.
	Arg string
	// As is the output alias for the reduced value.
	As string
}

// Reducer function names.
const (
	ReduceAvg = "AVG"
	ReduceMin = "MIN"
	ReduceSum = "SUM"
)

// baseQuery carries the options shared by every query shape.
type baseQuery struct {
	returnFields []string
	sortBy       string
	sortAsc      bool
	offset       int
	numResults   int
	dialect      int
}

func (q *baseQuery) ReturnFields() []string    { return q.returnFields }
func (q *baseQuery) Sort() (string, bool)      { return q.sortBy, q.sortAsc }
func (q *baseQuery) Window() (offset, num int) { return q.offset, q.numResults }
func (q *baseQuery) Dialect() int              { return q.dialect }
