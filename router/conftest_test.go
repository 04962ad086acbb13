package router

import (
	"context"
	"strings"
	"testing"

	"github.com/kailas-cloud/redivec/internal/db"
)

// mockStore implements the router's consumer store interface with an
// in-memory key space plus a scriptable aggregation hook.
type mockStore struct {
	rows        map[string]map[string]string
	kv          map[string][]byte
	indexes     map[string]bool
	aggregateFn func(ctx context.Context, req *db.AggregateRequest) (*db.AggregateResult, error)
	aggregated  []*db.AggregateRequest
}

func newMockStore() *mockStore {
	return &mockStore{
		rows:    map[string]map[string]string{},
		kv:      map[string][]byte{},
		indexes: map[string]bool{},
	}
}

func (m *mockStore) HSetMulti(_ context.Context, items []db.HashSetItem) error {
	for _, item := range items {
		m.rows[item.Key] = item.Fields
	}
	return nil
}

func (m *mockStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	fields, ok := m.rows[key]
	if !ok {
		return map[string]string{}, nil
	}
	return fields, nil
}

func (m *mockStore) Del(_ context.Context, keys ...string) (int, error) {
	deleted := 0
	for _, key := range keys {
		if _, ok := m.rows[key]; ok {
			delete(m.rows, key)
			deleted++
		}
		if _, ok := m.kv[key]; ok {
			delete(m.kv, key)
			deleted++
		}
	}
	return deleted, nil
}

func (m *mockStore) Scan(_ context.Context, pattern string) ([]string, error) {
	var keys []string
	for key := range m.rows {
		if matchPattern(pattern, key) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// matchPattern supports the single-star glob shapes the router issues.
func matchPattern(pattern, key string) bool {
	parts := strings.SplitN(pattern, "*", 2)
	if len(parts) == 1 {
		return pattern == key
	}
	return strings.HasPrefix(key, parts[0]) && strings.HasSuffix(key, parts[1])
}

func (m *mockStore) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := m.kv[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return data, nil
}

func (m *mockStore) Set(_ context.Context, key string, value []byte) error {
	m.kv[key] = value
	return nil
}

func (m *mockStore) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	m.indexes[def.Name] = true
	return nil
}

func (m *mockStore) DropIndex(_ context.Context, name string, dropData bool) error {
	if !m.indexes[name] {
		return db.ErrIndexNotFound
	}
	delete(m.indexes, name)
	if dropData {
		for key := range m.rows {
			if strings.HasPrefix(key, name+":") {
				delete(m.rows, key)
			}
		}
	}
	return nil
}

func (m *mockStore) IndexExists(_ context.Context, name string) (bool, error) {
	return m.indexes[name], nil
}

func (m *mockStore) Aggregate(ctx context.Context, req *db.AggregateRequest) (*db.AggregateResult, error) {
	m.aggregated = append(m.aggregated, req)
	if m.aggregateFn != nil {
		return m.aggregateFn(ctx, req)
	}
	return &db.AggregateResult{}, nil
}

// fakeVectorizer returns fixed embeddings per text, defaulting to a unit
// vector so unknown texts still embed.
type fakeVectorizer struct {
	vectors map[string][]float32
	batches int
}

func newFakeVectorizer() *fakeVectorizer {
	return &fakeVectorizer{vectors: map[string][]float32{}}
}

func (f *fakeVectorizer) Embed(_ context.Context, text string) ([]float32, error) {
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	return []float32{1, 0, 0, 0}, nil
}

func (f *fakeVectorizer) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batches++
	out := make([][]float32, len(texts))
	for n, text := range texts {
		out[n], _ = f.Embed(ctx, text)
	}
	return out, nil
}

func (f *fakeVectorizer) Dims() int { return 4 }

func testRoutes() []Route {
	return []Route{
		{
			Name:              "greeting",
			References:        []string{"hello", "hi there"},
			Metadata:          map[string]string{"team": "support"},
			DistanceThreshold: 0.3,
		},
		{
			Name:              "farewell",
			References:        []string{"goodbye", "see you"},
			DistanceThreshold: 0.3,
		},
	}
}

func newTestRouter(t *testing.T) (*SemanticRouter, *mockStore, *fakeVectorizer) {
	t.Helper()
	ms := newMockStore()
	fv := newFakeVectorizer()
	r, err := newRouter(context.Background(), Config{
		Name:       "intents",
		Routes:     testRoutes(),
		Vectorizer: fv,
	}, ms)
	if err != nil {
		t.Fatalf("newRouter: %v", err)
	}
	return r, ms, fv
}
