package query

import (
	"errors"
	"testing"

	"github.com/kailas-cloud/redivec/filter"
)

func TestVectorRangeQuery_QueryString(t *testing.T) {
	q := NewVectorRangeQuery().
		Vector(testVec()).
		Field("embedding").
		DistanceThreshold(0.3).
		MustBuild()

	want := "@embedding:[VECTOR_RANGE $distance_threshold $vector]" +
		"=>{$yield_distance_as: vector_distance}"
	if got := q.QueryString(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestVectorRangeQuery_WithFilter(t *testing.T) {
	q := NewVectorRangeQuery().
		Vector(testVec()).
		Field("embedding").
		DistanceThreshold(0.5).
		Filter(filter.Tag("lang", "en")).
		MustBuild()

	want := "(@embedding:[VECTOR_RANGE $distance_threshold $vector]" +
		"=>{$yield_distance_as: vector_distance} @lang:{en})"
	if got := q.QueryString(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestVectorRangeQuery_Epsilon(t *testing.T) {
	q := NewVectorRangeQuery().
		Vector(testVec()).
		Field("embedding").
		DistanceThreshold(0.5).
		Epsilon(0.05).
		MustBuild()

	want := "@embedding:[VECTOR_RANGE $distance_threshold $vector]" +
		"=>{$yield_distance_as: vector_distance; $epsilon: 0.05}"
	if got := q.QueryString(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestVectorRangeQuery_Params(t *testing.T) {
	q := NewVectorRangeQuery().
		Vector(testVec()).
		Field("embedding").
		DistanceThreshold(0.25).
		MustBuild()

	params := q.Params()
	if len(params) != 4 {
		t.Fatalf("params = %v", params)
	}
	if params[0] != "distance_threshold" || params[1] != "0.25" {
		t.Errorf("threshold binding = %v", params[:2])
	}
	if params[2] != "vector" || len(params[3]) != 16 {
		t.Errorf("vector binding name=%q len=%d", params[2], len(params[3]))
	}
}

func TestVectorRangeQuery_BuildErrors(t *testing.T) {
	tests := []struct {
		name string
		b    *VectorRangeQueryBuilder
	}{
		{"missing vector", NewVectorRangeQuery().Field("v").DistanceThreshold(0.5)},
		{"missing field", NewVectorRangeQuery().Vector(testVec()).DistanceThreshold(0.5)},
		{"zero threshold", NewVectorRangeQuery().Vector(testVec()).Field("v")},
		{"negative threshold", NewVectorRangeQuery().Vector(testVec()).Field("v").DistanceThreshold(-0.1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.b.Build(); !errors.Is(err, ErrInvalidQuery) {
				t.Errorf("err = %v, want ErrInvalidQuery", err)
			}
		})
	}
}

func TestFilterQuery_DefaultsViaMustBuild(t *testing.T) {
	q := NewFilterQuery().MustBuild()

	if got := q.QueryString(); got != "*" {
		t.Errorf("query = %q, want *", got)
	}
	if q.Params() != nil {
		t.Errorf("params = %v, want nil", q.Params())
	}
	if _, num := q.Window(); num != DefaultNumResults {
		t.Errorf("limit = %d, want %d", num, DefaultNumResults)
	}
}

func TestFilterQuery_WithFilterAndSort(t *testing.T) {
	q := NewFilterQuery().
		Filter(filter.Tag("session", "abc")).
		SortBy("timestamp", true).
		NumResults(50).
		MustBuild()

	if got := q.QueryString(); got != "@session:{abc}" {
		t.Errorf("query = %q", got)
	}
	sortBy, asc := q.Sort()
	if sortBy != "timestamp" || !asc {
		t.Errorf("sort = %q/%v", sortBy, asc)
	}
}

func TestFilterQuery_BuildErrors(t *testing.T) {
	if _, err := NewFilterQuery().NumResults(-5).Build(); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("err = %v, want ErrInvalidQuery", err)
	}
	if _, err := NewFilterQuery().Offset(-1).Build(); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("err = %v, want ErrInvalidQuery", err)
	}
}

func TestCountQueryViaRange(t *testing.T) {
	if got := NewCountQuery(nil).QueryString(); got != "*" {
		t.Errorf("query = %q, want *", got)
	}
	if got := NewCountQuery(filter.Tag("a", "x")).QueryString(); got != "@a:{x}" {
		t.Errorf("query = %q", got)
	}
}

func TestRangeAggregation_BuildViaRange(t *testing.T) {
	q, err := NewRangeAggregation().
		Vector(testVec()).
		Field("vector").
		DistanceThreshold(0.8).
		GroupBy("route_name").
		Reduce(ReduceMin).
		Limit(3).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	groupBy, red := q.Group()
	if groupBy != "route_name" {
		t.Errorf("groupBy = %q", groupBy)
	}
	if red.Fn != "MIN" || red.Arg != DistanceField || red.As != "distance" {
		t.Errorf("reducer = %+v", red)
	}

	sortBy, asc := q.Sort()
	if sortBy != "distance" || !asc {
		t.Errorf("sort = %q/%v, want distance asc", sortBy, asc)
	}
	if q.Limit() != 3 {
		t.Errorf("limit = %d", q.Limit())
	}

	want := "@vector:[VECTOR_RANGE $distance_threshold $vector]" +
		"=>{$yield_distance_as: vector_distance}"
	if got := q.QueryString(); got != want {
		t.Errorf("query = %q, want %q", got, want)
	}
}

func TestRangeAggregation_BuildErrors(t *testing.T) {
	base := func() *RangeAggregationBuilder {
		return NewRangeAggregation().Vector(testVec()).Field("v").DistanceThreshold(0.5)
	}
	if _, err := base().Build(); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("missing groupBy: err = %v", err)
	}
	if _, err := base().GroupBy("g").Reduce("MEDIAN").Build(); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("bad reducer: err = %v", err)
	}
}
