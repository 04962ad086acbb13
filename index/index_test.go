package index

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/redivec/filter"
	"github.com/kailas-cloud/redivec/internal/db"
	"github.com/kailas-cloud/redivec/query"
)

func TestCreate_New(t *testing.T) {
	idx, ms := newTestIndex(t)

	var created *db.IndexDefinition
	ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
		created = def
		return nil
	}

	if err := idx.Create(context.Background(), false); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created == nil {
		t.Fatal("FT.CREATE was not issued")
	}
	if created.Name != "docs" {
		t.Errorf("index name = %q", created.Name)
	}
	if len(created.Prefixes) != 1 || created.Prefixes[0] != "doc:" {
		t.Errorf("prefixes = %v, want [doc:]", created.Prefixes)
	}
	if len(created.Fields) != 3 {
		t.Errorf("fields = %d, want 3", len(created.Fields))
	}
}

func TestCreate_ExistsNoOverwrite(t *testing.T) {
	idx, ms := newTestIndex(t)
	ms.indexExistsFn = func(context.Context, string) (bool, error) { return true, nil }

	err := idx.Create(context.Background(), false)
	if !errors.Is(err, ErrIndexExists) {
		t.Errorf("err = %v, want ErrIndexExists", err)
	}
}

func TestCreate_Overwrite(t *testing.T) {
	idx, ms := newTestIndex(t)
	ms.indexExistsFn = func(context.Context, string) (bool, error) { return true, nil }

	var droppedData bool
	dropped := false
	ms.dropIndexFn = func(_ context.Context, name string, dropData bool) error {
		dropped = true
		droppedData = dropData
		return nil
	}
	created := false
	ms.createIndexFn = func(context.Context, *db.IndexDefinition) error {
		created = true
		return nil
	}

	if err := idx.Create(context.Background(), true); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !dropped || !created {
		t.Errorf("dropped=%v created=%v, want both", dropped, created)
	}
	if droppedData {
		t.Error("overwrite must keep existing documents")
	}
}

func TestClear_KeepsIndex(t *testing.T) {
	idx, ms := newTestIndex(t)

	var scanned string
	ms.scanFn = func(_ context.Context, pattern string) ([]string, error) {
		scanned = pattern
		return []string{"doc:1", "doc:2"}, nil
	}
	var deleted []string
	ms.delFn = func(_ context.Context, keys ...string) (int, error) {
		deleted = keys
		return len(keys), nil
	}
	ms.dropIndexFn = func(context.Context, string, bool) error {
		t.Fatal("Clear must not drop the index")
		return nil
	}

	n, err := idx.Clear(context.Background())
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if scanned != "doc:*" {
		t.Errorf("scan pattern = %q, want doc:*", scanned)
	}
	if n != 2 || len(deleted) != 2 {
		t.Errorf("deleted %d keys (%v), want 2", n, deleted)
	}
}

func TestClear_Empty(t *testing.T) {
	idx, ms := newTestIndex(t)
	ms.delFn = func(context.Context, ...string) (int, error) {
		t.Fatal("DEL must not be issued without keys")
		return 0, nil
	}

	n, err := idx.Clear(context.Background())
	if err != nil || n != 0 {
		t.Errorf("Clear = (%d, %v), want (0, nil)", n, err)
	}
}

func TestLoad_Hash(t *testing.T) {
	idx, ms := newTestIndex(t)

	var items []db.HashSetItem
	ms.hsetMultiFn = func(_ context.Context, got []db.HashSetItem) error {
		items = got
		return nil
	}

	keys, err := idx.Load(context.Background(), []map[string]any{
		{"doc_id": "a1", "category": "books", "year": 2021, "embedding": testVector()},
		{"doc_id": "a2", "category": "films", "year": 2022, "embedding": testVector()},
	}, WithIDField("doc_id"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := []string{"doc:a1", "doc:a2"}
	for n, k := range want {
		if keys[n] != k {
			t.Errorf("keys[%d] = %q, want %q", n, keys[n], k)
		}
	}
	if len(items) != 2 {
		t.Fatalf("wrote %d items", len(items))
	}
	fields := items[0].Fields
	if fields["year"] != "2021" {
		t.Errorf("year = %q", fields["year"])
	}
	if len(fields["embedding"]) != 16 {
		t.Errorf("embedding blob = %d bytes, want 16", len(fields["embedding"]))
	}
}

func TestLoad_GeneratedIDsKeepPrefix(t *testing.T) {
	idx, _ := newTestIndex(t)

	keys, err := idx.Load(context.Background(), []map[string]any{
		{"category": "books"},
		{"category": "films"},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, k := range keys {
		if !strings.HasPrefix(k, "doc:") {
			t.Errorf("key %q lacks schema prefix", k)
		}
		if len(k) == len("doc:") {
			t.Errorf("key %q has empty id", k)
		}
	}
	if keys[0] == keys[1] {
		t.Error("generated ids must be unique")
	}
}

func TestLoad_DimsMismatch(t *testing.T) {
	idx, ms := newTestIndex(t)
	ms.hsetMultiFn = func(context.Context, []db.HashSetItem) error {
		t.Fatal("bad batch must not reach storage")
		return nil
	}

	_, err := idx.Load(context.Background(), []map[string]any{
		{"embedding": []float32{0.1, 0.2}},
	})
	if err == nil {
		t.Fatal("expected dims mismatch error")
	}
}

func TestLoad_TTL(t *testing.T) {
	idx, ms := newTestIndex(t)

	expired := map[string]time.Duration{}
	ms.expireFn = func(_ context.Context, key string, ttl time.Duration) error {
		expired[key] = ttl
		return nil
	}

	keys, err := idx.Load(context.Background(), []map[string]any{
		{"doc_id": "a1", "category": "books"},
	}, WithIDField("doc_id"), WithTTL(time.Minute))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if expired[keys[0]] != time.Minute {
		t.Errorf("ttl on %q = %v, want 1m", keys[0], expired[keys[0]])
	}
}

func TestFetch_Hash(t *testing.T) {
	idx, ms := newTestIndex(t)

	var asked string
	ms.hgetAllFn = func(_ context.Context, key string) (map[string]string, error) {
		asked = key
		return map[string]string{"category": "books", "year": "2021"}, nil
	}

	doc, err := idx.Fetch(context.Background(), "a1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if asked != "doc:a1" {
		t.Errorf("fetched key = %q, want doc:a1", asked)
	}
	if doc["category"] != "books" {
		t.Errorf("category = %v", doc["category"])
	}
	if doc["year"] != 2021.0 {
		t.Errorf("year = %v (%T), want float64 2021", doc["year"], doc["year"])
	}
}

func TestFetch_Missing(t *testing.T) {
	idx, _ := newTestIndex(t)

	_, err := idx.Fetch(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestQuery_VectorSearch(t *testing.T) {
	idx, ms := newTestIndex(t)

	var req *db.SearchRequest
	ms.searchFn = func(_ context.Context, r *db.SearchRequest) (*db.SearchResult, error) {
		req = r
		return &db.SearchResult{
			Total: 2,
			Entries: []db.SearchEntry{
				{Key: "doc:a1", Fields: map[string]string{
					"category": "books", "year": "2021", "vector_distance": "0.12",
				}},
				{Key: "doc:a2", Fields: map[string]string{
					"category": "films", "year": "2022", "vector_distance": "0.34",
				}},
			},
		}, nil
	}

	q := query.NewVectorQuery().
		Vector(testVector()).
		Field("embedding").
		NumResults(2).
		Filter(filter.Tag("category", "books", "films")).
		ReturnFields("category", "year").
		MustBuild()

	rows, err := idx.Query(context.Background(), q)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	if req.Index != "docs" {
		t.Errorf("index = %q", req.Index)
	}
	if !strings.Contains(req.Query, "KNN 2 @embedding $vector") {
		t.Errorf("query = %q", req.Query)
	}
	if req.SortBy != query.DistanceField || !req.SortAsc {
		t.Errorf("sort = %q/%v, want vector_distance asc", req.SortBy, req.SortAsc)
	}
	if req.Dialect != query.DefaultDialect {
		t.Errorf("dialect = %d", req.Dialect)
	}

	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0][IDField] != "doc:a1" {
		t.Errorf("id = %v", rows[0][IDField])
	}
	if rows[0][query.DistanceField] != 0.12 {
		t.Errorf("distance = %v (%T), want float64 0.12",
			rows[0][query.DistanceField], rows[0][query.DistanceField])
	}
	if rows[1]["year"] != 2022.0 {
		t.Errorf("year = %v (%T), want float64", rows[1]["year"], rows[1]["year"])
	}
}

func TestQuery_Aggregation(t *testing.T) {
	idx, ms := newTestIndex(t)

	var req *db.AggregateRequest
	ms.aggregateFn = func(_ context.Context, r *db.AggregateRequest) (*db.AggregateResult, error) {
		req = r
		return &db.AggregateResult{
			Total: 2,
			Rows: []map[string]string{
				{"route_name": "greeting", "distance": "0.21"},
				{"route_name": "farewell", "distance": "0.58"},
			},
		}, nil
	}

	q, err := query.NewRangeAggregation().
		Vector(testVector()).
		Field("embedding").
		DistanceThreshold(0.8).
		GroupBy("route_name").
		Reduce(query.ReduceAvg).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	rows, err := idx.Query(context.Background(), q)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	if req.GroupBy != "route_name" || req.Reduce != "AVG" || req.ReduceArg != query.DistanceField {
		t.Errorf("pipeline = %+v", req)
	}
	if req.SortBy != "distance" || !req.SortAsc {
		t.Errorf("sort = %q/%v", req.SortBy, req.SortAsc)
	}
	if rows[0]["route_name"] != "greeting" || rows[0]["distance"] != 0.21 {
		t.Errorf("row = %v", rows[0])
	}
}

func TestQuery_UnsupportedType(t *testing.T) {
	idx, _ := newTestIndex(t)
	if _, err := idx.Query(context.Background(), "not a query"); err == nil {
		t.Error("expected error for unsupported query type")
	}
}

func TestCount(t *testing.T) {
	idx, ms := newTestIndex(t)

	var gotQuery string
	ms.countFn = func(_ context.Context, index, q string, _ []string) (int, error) {
		gotQuery = q
		return 7, nil
	}

	n, err := idx.Count(context.Background(), query.NewCountQuery(filter.Tag("category", "books")))
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 7 {
		t.Errorf("count = %d", n)
	}
	if gotQuery != "@category:{books}" {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestQuery_StoreError(t *testing.T) {
	idx, ms := newTestIndex(t)
	ms.searchFn = func(context.Context, *db.SearchRequest) (*db.SearchResult, error) {
		return nil, &db.Error{Op: db.OpSearch, Err: db.ErrIndexNotFound}
	}

	q := query.NewFilterQuery().MustBuild()
	_, err := idx.Query(context.Background(), q)
	if !errors.Is(err, db.ErrIndexNotFound) {
		t.Errorf("err = %v, want ErrIndexNotFound", err)
	}
}
