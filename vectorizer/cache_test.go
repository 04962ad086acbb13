package vectorizer

import (
	"context"
	"testing"
	"time"

	"github.com/kailas-cloud/redivec/internal/db"
	"github.com/kailas-cloud/redivec/query"
)

// mockKV implements kvStore for tests.
type mockKV struct {
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
}

func newMockKV() *mockKV {
	return &mockKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *mockKV) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKV) Set(_ context.Context, key string, value []byte) error {
	m.data[key] = value
	return nil
}

func (m *mockKV) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

// fakeVectorizer counts calls and returns a fixed vector per text length.
type fakeVectorizer struct {
	calls int
	batch int
}

func (f *fakeVectorizer) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	return []float32{float32(len(text)), 0.5}, nil
}

func (f *fakeVectorizer) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.batch++
	out := make([][]float32, len(texts))
	for n, t := range texts {
		out[n] = []float32{float32(len(t)), 0.5}
	}
	return out, nil
}

func (f *fakeVectorizer) Dims() int { return 2 }

func TestCached_MissThenHit(t *testing.T) {
	inner := &fakeVectorizer{}
	c := newCached(inner, newMockKV())

	v1, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	v2, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if inner.calls != 1 {
		t.Errorf("inner called %d times, want 1", inner.calls)
	}
	if v1[0] != v2[0] || v1[1] != v2[1] {
		t.Errorf("cached vector differs: %v vs %v", v1, v2)
	}
}

func TestCached_DistinctTextsDistinctKeys(t *testing.T) {
	kv := newMockKV()
	c := newCached(&fakeVectorizer{}, kv)

	if _, err := c.Embed(context.Background(), "alpha"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Embed(context.Background(), "beta"); err != nil {
		t.Fatal(err)
	}
	if len(kv.data) != 2 {
		t.Errorf("cache holds %d entries, want 2", len(kv.data))
	}
	for key := range kv.data {
		if len(key) != len(DefaultCachePrefix)+64 {
			t.Errorf("key %q is not prefix + sha256 hex", key)
		}
	}
}

func TestCached_EmbedBatch_PartialHits(t *testing.T) {
	inner := &fakeVectorizer{}
	kv := newMockKV()
	c := newCached(inner, kv)

	// warm one of three texts
	if _, err := c.Embed(context.Background(), "bb"); err != nil {
		t.Fatal(err)
	}

	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if inner.batch != 1 {
		t.Errorf("inner batches = %d, want 1", inner.batch)
	}
	want := []float32{1, 2, 3}
	for n, vec := range vecs {
		if vec[0] != want[n] {
			t.Errorf("vecs[%d] = %v, want first element %v", n, vec, want[n])
		}
	}
}

func TestCached_TTL(t *testing.T) {
	kv := newMockKV()
	c := newCached(&fakeVectorizer{}, kv, WithCacheTTL(time.Hour))

	if _, err := c.Embed(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	for key, ttl := range kv.ttls {
		if ttl != time.Hour {
			t.Errorf("ttl on %q = %v, want 1h", key, ttl)
		}
	}
	if len(kv.ttls) != 1 {
		t.Errorf("expected one TTL write, got %d", len(kv.ttls))
	}
}

func TestCached_ReadFailureFallsThrough(t *testing.T) {
	inner := &fakeVectorizer{}
	kv := newMockKV()
	kv.getErr = context.DeadlineExceeded
	c := newCached(inner, kv)

	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed must not fail on cache errors: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("vec = %v", vec)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
}

func TestCached_StoredBlobRoundTrips(t *testing.T) {
	kv := newMockKV()
	c := newCached(&fakeVectorizer{}, kv)

	if _, err := c.Embed(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	for _, data := range kv.data {
		vec := query.BlobToVector32(data)
		if len(vec) != 2 || vec[0] != 5 {
			t.Errorf("stored blob decodes to %v", vec)
		}
	}
}
