package query

import (
	"errors"
	"strings"
	"testing"
)

func TestRangeAggregation_Build(t *testing.T) {
	q, err := NewRangeAggregation().
		Vector([]float32{0.1, 0.2, 0.3, 0.4}).
		Field("vector").
		DistanceThreshold(0.5).
		GroupBy("route_name").
		Reduce(ReduceMin).
		Limit(3).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	qs := q.QueryString()
	if !strings.Contains(qs, "VECTOR_RANGE $distance_threshold $vector") {
		t.Errorf("QueryString() = %q", qs)
	}
	if !strings.Contains(qs, "$yield_distance_as: "+DistanceField) {
		t.Errorf("QueryString() = %q, missing yield clause", qs)
	}

	groupBy, reduce := q.Group()
	if groupBy != "route_name" {
		t.Errorf("groupBy = %q", groupBy)
	}
	if reduce.Fn != ReduceMin || reduce.Arg != DistanceField || reduce.As != "distance" {
		t.Errorf("reducer = %+v", reduce)
	}

	sortBy, asc := q.Sort()
	if sortBy != "distance" || !asc {
		t.Errorf("Sort() = (%q, %v)", sortBy, asc)
	}
	if q.Limit() != 3 {
		t.Errorf("Limit() = %d", q.Limit())
	}
	if q.Dialect() != DefaultDialect {
		t.Errorf("Dialect() = %d", q.Dialect())
	}

	params := q.Params()
	if len(params) != 4 || params[0] != "distance_threshold" || params[1] != "0.5" {
		t.Fatalf("params = %v", params)
	}
	if params[2] != "vector" || len(params[3]) != 16 {
		t.Errorf("vector param = %q (%d bytes)", params[2], len(params[3]))
	}
}

func TestRangeAggregation_DefaultReducer(t *testing.T) {
	q, err := NewRangeAggregation().
		Vector([]float32{1}).
		Field("vector").
		DistanceThreshold(0.2).
		GroupBy("route_name").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, reduce := q.Group(); reduce.Fn != ReduceAvg {
		t.Errorf("default reducer = %q, want %q", reduce.Fn, ReduceAvg)
	}
}

func TestRangeAggregation_Validation(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*RangeAggregationQuery, error)
	}{
		{"missing group by", func() (*RangeAggregationQuery, error) {
			return NewRangeAggregation().
				Vector([]float32{1}).Field("vector").DistanceThreshold(0.2).Build()
		}},
		{"unknown reducer", func() (*RangeAggregationQuery, error) {
			return NewRangeAggregation().
				Vector([]float32{1}).Field("vector").DistanceThreshold(0.2).
				GroupBy("g").Reduce("MEDIAN").Build()
		}},
		{"negative limit", func() (*RangeAggregationQuery, error) {
			return NewRangeAggregation().
				Vector([]float32{1}).Field("vector").DistanceThreshold(0.2).
				GroupBy("g").Limit(-1).Build()
		}},
		{"missing vector", func() (*RangeAggregationQuery, error) {
			return NewRangeAggregation().
				Field("vector").DistanceThreshold(0.2).GroupBy("g").Build()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.build(); !errors.Is(err, ErrInvalidQuery) {
				t.Errorf("err = %v, want ErrInvalidQuery", err)
			}
		})
	}
}
