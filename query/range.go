package query

import (
	"fmt"
	"strconv"

	"github.com/kailas-cloud/redivec/filter"
)

// thresholdParam is the PARAMS name the distance threshold is bound to.
const thresholdParam = "distance_threshold"

// VectorRangeQuery selects every document within an absolute distance of
// the query vector, rather than the global top-K:
// @field:[VECTOR_RANGE $distance_threshold $vector]=>{$yield_distance_as: vector_distance}.
type VectorRangeQuery struct {
	baseQuery
	field          string
	blob           string
	threshold      float64
	preFilter      filter.Expression
	returnDistance bool
	epsilon        float64
}

// VectorRangeQueryBuilder assembles a VectorRangeQuery.
type VectorRangeQueryBuilder struct {
	q      VectorRangeQuery
	vec32  []float32
	vec64  []float64
	numSet bool
}

// NewVectorRangeQuery starts building a distance-threshold query.
func NewVectorRangeQuery() *VectorRangeQueryBuilder {
	b := &VectorRangeQueryBuilder{}
	b.q.returnDistance = true
	b.q.dialect = DefaultDialect
	return b
}

// Vector sets the query vector with float32 serialization.
func (b *VectorRangeQueryBuilder) Vector(v []float32) *VectorRangeQueryBuilder {
	b.vec32 = v
	b.vec64 = nil
	return b
}

// Vector64 sets the query vector with float64 serialization.
func (b *VectorRangeQueryBuilder) Vector64(v []float64) *VectorRangeQueryBuilder {
	b.vec64 = v
	b.vec32 = nil
	return b
}

// Field names the vector field to search.
func (b *VectorRangeQueryBuilder) Field(name string) *VectorRangeQueryBuilder {
	b.q.field = name
	return b
}

// DistanceThreshold sets the inclusive distance bound.
func (b *VectorRangeQueryBuilder) DistanceThreshold(t float64) *VectorRangeQueryBuilder {
	b.q.threshold = t
	return b
}

// Epsilon widens the range-search boundary factor (engine default 0.01).
func (b *VectorRangeQueryBuilder) Epsilon(e float64) *VectorRangeQueryBuilder {
	b.q.epsilon = e
	return b
}

// NumResults bounds the number of rows returned (default 10).
func (b *VectorRangeQueryBuilder) NumResults(n int) *VectorRangeQueryBuilder {
	b.q.numResults = n
	b.numSet = true
	return b
}

// Filter intersects the range clause with a metadata filter.
func (b *VectorRangeQueryBuilder) Filter(f filter.Expression) *VectorRangeQueryBuilder {
	b.q.preFilter = f
	return b
}

// ReturnFields projects the given fields into result rows.
func (b *VectorRangeQueryBuilder) ReturnFields(fields ...string) *VectorRangeQueryBuilder {
	b.q.returnFields = fields
	return b
}

// ReturnDistance controls whether the yielded distance is projected into
// result rows (default true).
func (b *VectorRangeQueryBuilder) ReturnDistance(on bool) *VectorRangeQueryBuilder {
	b.q.returnDistance = on
	return b
}

// SortBy overrides the default distance-ascending ordering.
func (b *VectorRangeQueryBuilder) SortBy(field string, asc bool) *VectorRangeQueryBuilder {
	b.q.sortBy = field
	b.q.sortAsc = asc
	return b
}

// Build validates the builder and returns the immutable query.
func (b *VectorRangeQueryBuilder) Build() (*VectorRangeQuery, error) {
	if len(b.vec32) == 0 && len(b.vec64) == 0 {
		return nil, fmt.Errorf("vector is required and must be non-empty: %w", ErrInvalidQuery)
	}
	if b.q.field == "" {
		return nil, fmt.Errorf("vector field name is required: %w", ErrInvalidQuery)
	}
	if b.q.threshold <= 0 {
		return nil, fmt.Errorf("distance threshold must be positive, got %g: %w",
			b.q.threshold, ErrInvalidQuery)
	}
	if !b.numSet {
		b.q.numResults = DefaultNumResults
	}
	if b.q.numResults <= 0 {
		return nil, fmt.Errorf("numResults must be positive, got %d: %w",
			b.q.numResults, ErrInvalidQuery)
	}

	q := b.q
	if len(b.vec64) > 0 {
		q.blob = VectorBlob64(b.vec64)
	} else {
		q.blob = VectorBlob32(b.vec32)
	}
	if q.sortBy == "" && q.returnDistance {
		q.sortBy = DistanceField
		q.sortAsc = true
	}
	if q.returnDistance {
		q.returnFields = appendMissing(q.returnFields, DistanceField)
	}
	return &q, nil
}

// MustBuild calls Build and panics on error.
func (b *VectorRangeQueryBuilder) MustBuild() *VectorRangeQuery {
	q, err := b.Build()
	if err != nil {
		panic(err)
	}
	return q
}

// QueryString renders the VECTOR_RANGE clause, intersected with the
// pre-filter when one is set.
func (q *VectorRangeQuery) QueryString() string {
	attrs := fmt.Sprintf("$yield_distance_as: %s", DistanceField)
	if q.epsilon > 0 {
		attrs += fmt.Sprintf("; $epsilon: %s", strconv.FormatFloat(q.epsilon, 'g', -1, 64))
	}
	rangePart := fmt.Sprintf("@%s:[VECTOR_RANGE $%s $%s]=>{%s}",
		q.field, thresholdParam, vectorParam, attrs)

	if filter.IsWildcard(q.preFilter) {
		return rangePart
	}
	return fmt.Sprintf("(%s %s)", rangePart, q.preFilter.String())
}

// Params binds the threshold and the serialized query vector.
func (q *VectorRangeQuery) Params() []string {
	return []string{
		thresholdParam, strconv.FormatFloat(q.threshold, 'g', -1, 64),
		vectorParam, q.blob,
	}
}

// DistanceThreshold returns the configured bound.
func (q *VectorRangeQuery) DistanceThreshold() float64 { return q.threshold }
