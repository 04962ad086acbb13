// Package cache provides a semantic response cache: prompts are stored with
// their embeddings, and lookups return responses of prior prompts whose
// embedding distance stays under a threshold.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/kailas-cloud/redivec/index"
	"github.com/kailas-cloud/redivec/query"
	"github.com/kailas-cloud/redivec/schema"
	"github.com/kailas-cloud/redivec/vectorizer"
)

// ErrNotSupported marks operations the cache configuration cannot perform.
var ErrNotSupported = errors.New("cache: operation not supported")

// DefaultName is the index name and key prefix for the cache.
const DefaultName = "semcache"

// DefaultDistanceThreshold accepts near-duplicate prompts only.
const DefaultDistanceThreshold = 0.1

// Stored document field names.
const (
	promptField   = "prompt"
	responseField = "response"
	vectorField   = "prompt_vector"
	metadataField = "metadata"
	insertedField = "inserted_at"
)

// searchIndex is the facade surface the cache consumes.
type searchIndex interface {
	Create(ctx context.Context, overwrite bool) error
	Exists(ctx context.Context) (bool, error)
	Load(ctx context.Context, docs []map[string]any, opts ...index.LoadOption) ([]string, error)
	Query(ctx context.Context, q any) ([]map[string]any, error)
	DropKeys(ctx context.Context, keys ...string) (int, error)
	ExpireKeys(ctx context.Context, ttl time.Duration, keys ...string) error
	Clear(ctx context.Context) (int, error)
	Delete(ctx context.Context, dropData bool) error
}

// SemanticCache stores prompt/response pairs in a dedicated vector index.
type SemanticCache struct {
	index     searchIndex
	vec       vectorizer.Vectorizer
	threshold float64
	ttl       time.Duration
	log       *zap.Logger
}

// Hit is one cache lookup result.
type Hit struct {
	Key      string
	Prompt   string
	Response string
	Distance float64
	Metadata map[string]string
}

// Option customizes a SemanticCache.
type Option func(*options)

type options struct {
	name      string
	dims      int
	threshold float64
	ttl       time.Duration
	overwrite bool
	logger    *zap.Logger
}

// WithName overrides the index name and key prefix.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithDims fixes the vector dimensionality; required when the vectorizer
// does not report one.
func WithDims(dims int) Option {
	return func(o *options) { o.dims = dims }
}

// WithDistanceThreshold sets the acceptance distance for lookups.
func WithDistanceThreshold(t float64) Option {
	return func(o *options) { o.threshold = t }
}

// WithTTL expires cache entries after ttl.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithOverwrite recreates the backing index on construction.
func WithOverwrite() Option {
	return func(o *options) { o.overwrite = true }
}

// WithLogger attaches a logger (default no-op).
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.logger = log }
}

// New creates the cache and materializes its backing index over a
// caller-owned rueidis client.
func New(ctx context.Context, vec vectorizer.Vectorizer, client rueidis.Client, opts ...Option) (*SemanticCache, error) {
	o := options{
		name:      DefaultName,
		threshold: DefaultDistanceThreshold,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if vec == nil {
		return nil, fmt.Errorf("cache: vectorizer is required")
	}
	dims := o.dims
	if dims == 0 {
		dims = vec.Dims()
	}
	if dims <= 0 {
		return nil, fmt.Errorf("cache: vector dims unknown, set WithDims")
	}
	if o.threshold <= 0 {
		return nil, fmt.Errorf("cache: distance threshold must be positive, got %v", o.threshold)
	}

	s, err := schema.New(
		schema.IndexInfo{Name: o.name, Prefix: o.name},
		schema.NewTextField(promptField),
		schema.NewTextField(responseField),
		schema.NewNumericField(insertedField, schema.Sortable()),
		schema.MustVectorField(vectorField, dims),
	)
	if err != nil {
		return nil, err
	}

	return newWithIndex(ctx, index.New(s, client, index.WithLogger(o.logger)), vec, o)
}

func newWithIndex(ctx context.Context, si searchIndex, vec vectorizer.Vectorizer, o options) (*SemanticCache, error) {
	c := &SemanticCache{
		index:     si,
		vec:       vec,
		threshold: o.threshold,
		ttl:       o.ttl,
		log:       o.logger,
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}

	if err := si.Create(ctx, o.overwrite); err != nil && !errors.Is(err, index.ErrIndexExists) {
		return nil, err
	}
	return c, nil
}

// DistanceThreshold returns the current acceptance distance.
func (c *SemanticCache) DistanceThreshold() float64 { return c.threshold }

// SetDistanceThreshold adjusts the acceptance distance for future lookups.
func (c *SemanticCache) SetDistanceThreshold(t float64) error {
	if t <= 0 {
		return fmt.Errorf("cache: distance threshold must be positive, got %v", t)
	}
	c.threshold = t
	return nil
}

// Store writes a prompt/response pair and returns the key written.
func (c *SemanticCache) Store(ctx context.Context, prompt, response string, metadata map[string]string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("cache: prompt is required")
	}

	vec, err := c.vec.Embed(ctx, prompt)
	if err != nil {
		return "", err
	}

	doc := map[string]any{
		promptField:   prompt,
		responseField: response,
		vectorField:   vec,
		insertedField: time.Now().Unix(),
	}
	if len(metadata) > 0 {
		data, err := json.Marshal(metadata)
		if err != nil {
			return "", err
		}
		doc[metadataField] = string(data)
	}

	var loadOpts []index.LoadOption
	if c.ttl > 0 {
		loadOpts = append(loadOpts, index.WithTTL(c.ttl))
	}
	keys, err := c.index.Load(ctx, []map[string]any{doc}, loadOpts...)
	if err != nil {
		return "", err
	}
	return keys[0], nil
}

// Check looks up the closest stored prompt under the distance threshold.
// The boolean reports whether a qualifying entry was found.
func (c *SemanticCache) Check(ctx context.Context, prompt string) (Hit, bool, error) {
	vec, err := c.vec.Embed(ctx, prompt)
	if err != nil {
		return Hit{}, false, err
	}

	q, err := query.NewVectorRangeQuery().
		Vector(vec).
		Field(vectorField).
		DistanceThreshold(c.threshold).
		ReturnFields(promptField, responseField, metadataField).
		Build()
	if err != nil {
		return Hit{}, false, err
	}

	rows, err := c.index.Query(ctx, q)
	if err != nil {
		return Hit{}, false, err
	}
	if len(rows) == 0 {
		return Hit{}, false, nil
	}

	return hitFromRow(rows[0]), true, nil
}

func hitFromRow(row map[string]any) Hit {
	hit := Hit{}
	if v, ok := row[index.IDField].(string); ok {
		hit.Key = v
	}
	if v, ok := row[promptField].(string); ok {
		hit.Prompt = v
	}
	if v, ok := row[responseField].(string); ok {
		hit.Response = v
	}
	if v, ok := row[query.DistanceField].(float64); ok {
		hit.Distance = v
	}
	if v, ok := row[metadataField].(string); ok && v != "" {
		var meta map[string]string
		if json.Unmarshal([]byte(v), &meta) == nil {
			hit.Metadata = meta
		}
	}
	return hit
}

// Drop removes specific cache entries by key.
func (c *SemanticCache) Drop(ctx context.Context, keys ...string) (int, error) {
	return c.index.DropKeys(ctx, keys...)
}

// UpdateTTL re-arms the expiry of an entry. Only supported when the cache
// was configured with a TTL; otherwise entries are permanent and the call
// fails explicitly rather than silently no-oping.
func (c *SemanticCache) UpdateTTL(ctx context.Context, key string) error {
	if c.ttl <= 0 {
		return fmt.Errorf("cache has no TTL configured: %w", ErrNotSupported)
	}
	return c.index.ExpireKeys(ctx, c.ttl, key)
}

// Clear removes every cache entry, keeping the index.
func (c *SemanticCache) Clear(ctx context.Context) (int, error) {
	return c.index.Clear(ctx)
}

// Delete drops the backing index and all entries.
func (c *SemanticCache) Delete(ctx context.Context) error {
	return c.index.Delete(ctx, true)
}
