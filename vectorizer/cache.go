package vectorizer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/kailas-cloud/redivec/internal/db"
	redisdb "github.com/kailas-cloud/redivec/internal/db/redis"
	"github.com/kailas-cloud/redivec/internal/metrics"
	"github.com/kailas-cloud/redivec/query"
)

// DefaultCachePrefix namespaces embedding cache keys.
const DefaultCachePrefix = "redivec:emb_cache:"

// kvStore is the consumer interface the cache needs.
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cached wraps a Vectorizer with a key-value embedding cache. Cache keys
// are SHA-256 of the text; values are little-endian float32 blobs. Cache
// failures degrade to provider calls, never to errors.
type Cached struct {
	inner  Vectorizer
	store  kvStore
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

// CacheOption customizes a Cached vectorizer.
type CacheOption func(*Cached)

// WithCachePrefix overrides the cache key prefix.
func WithCachePrefix(prefix string) CacheOption {
	return func(c *Cached) { c.prefix = prefix }
}

// WithCacheTTL expires cached embeddings after ttl (default: no expiry).
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *Cached) { c.ttl = ttl }
}

// WithCacheLogger attaches a logger (default no-op).
func WithCacheLogger(log *zap.Logger) CacheOption {
	return func(c *Cached) { c.log = log }
}

// NewCached creates a caching decorator over a caller-owned rueidis client.
func NewCached(inner Vectorizer, client rueidis.Client, opts ...CacheOption) *Cached {
	return newCached(inner, redisdb.NewStore(client), opts...)
}

func newCached(inner Vectorizer, store kvStore, opts ...CacheOption) *Cached {
	c := &Cached{
		inner:  inner,
		store:  store,
		prefix: DefaultCachePrefix,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dims returns the inner vectorizer's dimensionality.
func (c *Cached) Dims() int { return c.inner.Dims() }

// Embed returns a cached embedding or calls the inner vectorizer and
// caches the result.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if vec, ok := c.lookup(ctx, key); ok {
		metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
		return vec, nil
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.put(ctx, key, vec)
	return vec, nil
}

// EmbedBatch serves cache hits locally and embeds only the missing texts in
// one inner round trip, preserving input order.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vecs := make([][]float32, len(texts))
	var missing []string
	var missingAt []int
	for n, text := range texts {
		if vec, ok := c.lookup(ctx, c.cacheKey(text)); ok {
			metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
			vecs[n] = vec
			continue
		}
		metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
		missing = append(missing, text)
		missingAt = append(missingAt, n)
	}
	if len(missing) == 0 {
		return vecs, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for n, vec := range fresh {
		at := missingAt[n]
		vecs[at] = vec
		c.put(ctx, c.cacheKey(texts[at]), vec)
	}
	return vecs, nil
}

func (c *Cached) cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return c.prefix + hex.EncodeToString(h[:])
}

func (c *Cached) lookup(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.log.Warn("embedding cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, false
	}
	return query.BlobToVector32(data), true
}

func (c *Cached) put(ctx context.Context, key string, vec []float32) {
	data := []byte(query.VectorBlob32(vec))
	var err error
	if c.ttl > 0 {
		err = c.store.SetWithTTL(ctx, key, data, c.ttl)
	} else {
		err = c.store.Set(ctx, key, data)
	}
	if err != nil {
		c.log.Warn("embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
}
