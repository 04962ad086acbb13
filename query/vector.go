package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/redivec/filter"
)

// vectorParam is the PARAMS name the query vector is bound to.
const vectorParam = "vector"

// VectorQuery is an immutable KNN search request:
// (prefilter)=>[KNN k @field $vector AS vector_distance].
type VectorQuery struct {
	baseQuery
	field          string
	blob           string
	preFilter      filter.Expression
	returnDistance bool
	efRuntime      int
}

// VectorQueryBuilder assembles a VectorQuery. Validation happens at Build.
type VectorQueryBuilder struct {
	q      VectorQuery
	vec32  []float32
	vec64  []float64
	numSet bool
}

// NewVectorQuery starts building a KNN vector query.
func NewVectorQuery() *VectorQueryBuilder {
	b := &VectorQueryBuilder{}
	b.q.returnDistance = true
	b.q.dialect = DefaultDialect
	return b
}

// Vector sets the query vector with float32 serialization.
func (b *VectorQueryBuilder) Vector(v []float32) *VectorQueryBuilder {
	b.vec32 = v
	b.vec64 = nil
	return b
}

// Vector64 sets the query vector with float64 serialization, for indexes
// declared with a float64 data type.
func (b *VectorQueryBuilder) Vector64(v []float64) *VectorQueryBuilder {
	b.vec64 = v
	b.vec32 = nil
	return b
}

// Field names the vector field to search. The field's type is validated
// against the schema at execution time, not here.
func (b *VectorQueryBuilder) Field(name string) *VectorQueryBuilder {
	b.q.field = name
	return b
}

// NumResults bounds the number of neighbors returned (default 10).
func (b *VectorQueryBuilder) NumResults(n int) *VectorQueryBuilder {
	b.q.numResults = n
	b.numSet = true
	return b
}

// Offset sets the pagination offset.
func (b *VectorQueryBuilder) Offset(n int) *VectorQueryBuilder {
	b.q.offset = n
	return b
}

// Filter sets the hybrid pre-filter evaluated before the vector scan.
func (b *VectorQueryBuilder) Filter(f filter.Expression) *VectorQueryBuilder {
	b.q.preFilter = f
	return b
}

// ReturnFields projects the given fields into result rows.
func (b *VectorQueryBuilder) ReturnFields(fields ...string) *VectorQueryBuilder {
	b.q.returnFields = fields
	return b
}

// ReturnDistance controls whether the distance alias is requested and
// therefore present in result rows (default true).
func (b *VectorQueryBuilder) ReturnDistance(on bool) *VectorQueryBuilder {
	b.q.returnDistance = on
	return b
}

// SortBy overrides the default distance-ascending ordering.
func (b *VectorQueryBuilder) SortBy(field string, asc bool) *VectorQueryBuilder {
	b.q.sortBy = field
	b.q.sortAsc = asc
	return b
}

// EFRuntime overrides the HNSW query-time candidate list size.
func (b *VectorQueryBuilder) EFRuntime(ef int) *VectorQueryBuilder {
	b.q.efRuntime = ef
	return b
}

// Dialect overrides the query dialect (default 2).
func (b *VectorQueryBuilder) Dialect(d int) *VectorQueryBuilder {
	b.q.dialect = d
	return b
}

// Build validates the builder and returns the immutable query.
func (b *VectorQueryBuilder) Build() (*VectorQuery, error) {
	if len(b.vec32) == 0 && len(b.vec64) == 0 {
		return nil, fmt.Errorf("vector is required and must be non-empty: %w", ErrInvalidQuery)
	}
	if b.q.field == "" {
		return nil, fmt.Errorf("vector field name is required: %w", ErrInvalidQuery)
	}
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
func (b *VectorQueryBuilder) MustBuild() *VectorQuery {
	q, err := b.Build()
	if err != nil {
		panic(err)
	}
	return q
}

// QueryString renders (prefilter)=>[KNN k @field $vector AS distance].
func (q *VectorQuery) QueryString() string {
	knn := fmt.Sprintf("[KNN %d @%s $%s", q.numResults, q.field, vectorParam)
	if q.efRuntime > 0 {
		knn += fmt.Sprintf(" EF_RUNTIME %d", q.efRuntime)
	}
	knn += fmt.Sprintf(" AS %s]", DistanceField)

	if filter.IsWildcard(q.preFilter) {
		return "*=>" + knn
	}
	return fmt.Sprintf("(%s)=>%s", q.preFilter.String(), knn)
}

// Params binds the serialized query vector.
func (q *VectorQuery) Params() []string {
	return []string{vectorParam, q.blob}
}

// String returns a debug form with the blob elided.
func (q *VectorQuery) String() string {
	return strings.Replace(q.QueryString(), "$"+vectorParam,
		"$"+vectorParam+"("+strconv.Itoa(len(q.blob))+"B)", 1)
}

func appendMissing(fields []string, name string) []string {
	for _, f := range fields {
		if f == name {
			return fields
		}
	}
	out := make([]string, 0, len(fields)+1)
	out = append(out, fields...)
	return append(out, name)
}
