// Package index orchestrates schema materialization and query execution
// against the engine: index lifecycle, document load/fetch/delete under the
// schema's key-prefixing convention, and dispatch of query objects with
// result-row normalization.
package index

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/kailas-cloud/redivec/internal/db"
	redisdb "github.com/kailas-cloud/redivec/internal/db/redis"
	"github.com/kailas-cloud/redivec/query"
	"github.com/kailas-cloud/redivec/schema"
)

// Sentinel errors surfaced by the facade.
var (
	// ErrIndexExists is returned by Create when the index already exists
	// and overwrite was not requested.
	ErrIndexExists = db.ErrIndexExists
	// ErrIndexNotFound is returned when operating on an absent index.
	ErrIndexNotFound = db.ErrIndexNotFound
	// ErrNotFound is returned by Fetch for missing documents.
	ErrNotFound = db.ErrKeyNotFound
)

// SearchIndex is the facade over one schema-defined index. It holds a
// reference to a caller-owned connection handle and performs one blocking
// round trip per method; it is safe for concurrent use once constructed.
type SearchIndex struct {
	schema *schema.IndexSchema
	store  db.Store
	log    *zap.Logger
}

// Option customizes a SearchIndex.
type Option func(*SearchIndex)

// WithLogger attaches a logger (default no-op).
func WithLogger(log *zap.Logger) Option {
	return func(i *SearchIndex) { i.log = log }
}

// New creates a SearchIndex over a caller-owned rueidis client.
// The client should be configured with AlwaysRESP2; it is never closed by
// the index.
func New(s *schema.IndexSchema, client rueidis.Client, opts ...Option) *SearchIndex {
	return newWithStore(s, redisdb.NewStore(client), opts...)
}

func newWithStore(s *schema.IndexSchema, store db.Store, opts ...Option) *SearchIndex {
	idx := &SearchIndex{schema: s, store: store, log: zap.NewNop()}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Schema returns the index's schema.
func (i *SearchIndex) Schema() *schema.IndexSchema { return i.schema }

// Name returns the index name.
func (i *SearchIndex) Name() string { return i.schema.Name() }

// Create materializes the schema in the engine. When the index already
// exists it fails with ErrIndexExists unless overwrite is set, in which
// case the old definition is dropped (keeping data) and recreated.
func (i *SearchIndex) Create(ctx context.Context, overwrite bool) error {
	def, err := i.schema.Compile()
	if err != nil {
		return err
	}

	exists, err := i.store.IndexExists(ctx, i.schema.Name())
	if err != nil {
		return err
	}
	if exists {
		if !overwrite {
			return ErrIndexExists
		}
		i.log.Info("overwriting existing index", zap.String("index", i.schema.Name()))
		if err := i.store.DropIndex(ctx, i.schema.Name(), false); err != nil {
			return err
		}
	}

	if err := i.store.CreateIndex(ctx, def); err != nil {
		return err
	}
	i.log.Info("index created",
		zap.String("index", i.schema.Name()),
		zap.Int("fields", len(def.Fields)))
	return nil
}

// Exists checks index existence without side effects.
func (i *SearchIndex) Exists(ctx context.Context) (bool, error) {
	return i.store.IndexExists(ctx, i.schema.Name())
}

// Drop removes the index definition, keeping the documents.
func (i *SearchIndex) Drop(ctx context.Context) error {
	return i.Delete(ctx, false)
}

// Delete removes the index definition; with dropData the indexed documents
// are deleted as well.
func (i *SearchIndex) Delete(ctx context.Context, dropData bool) error {
	return i.store.DropIndex(ctx, i.schema.Name(), dropData)
}

// Clear deletes every document under the schema's key prefix while keeping
// the index definition, returning the number of keys removed.
func (i *SearchIndex) Clear(ctx context.Context) (int, error) {
	keys, err := i.store.Scan(ctx, i.schema.KeyPattern())
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return i.store.Del(ctx, keys...)
}

// Fetch retrieves one document by id (not full key); returns ErrNotFound
// for missing documents.
func (i *SearchIndex) Fetch(ctx context.Context, id string) (map[string]any, error) {
	key := i.schema.Key(id)

	if i.schema.StorageType() == schema.JSON {
		data, err := i.store.JSONGet(ctx, key)
		if err != nil {
			return nil, err
		}
		return decodeJSONDocument(data)
	}

	fields, err := i.store.HGetAll(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return i.normalizeFetched(fields), nil
}

// DropKeys deletes documents by fully-qualified key, returning the number
// actually removed.
func (i *SearchIndex) DropKeys(ctx context.Context, keys ...string) (int, error) {
	return i.store.Del(ctx, keys...)
}

// ExpireKeys re-arms the expiry of documents by fully-qualified key.
func (i *SearchIndex) ExpireKeys(ctx context.Context, ttl time.Duration, keys ...string) error {
	for _, key := range keys {
		if err := i.store.Expire(ctx, key, ttl); err != nil {
			return err
		}
	}
	return nil
}

// Query executes a query object over the appropriate low-level path and
// returns normalized result rows.
func (i *SearchIndex) Query(ctx context.Context, q any) ([]map[string]any, error) {
	switch tq := q.(type) {
	case query.AggregationQuery:
		return i.aggregate(ctx, tq)
	case query.SearchQuery:
		offset, limit := tq.Window()
		rows, _, err := i.search(ctx, tq, offset, limit)
		return rows, err
	default:
		return nil, fmt.Errorf("unsupported query type %T", q)
	}
}

// Count returns the number of documents matching a count query.
func (i *SearchIndex) Count(ctx context.Context, q *query.CountQuery) (int, error) {
	return i.store.Count(ctx, i.schema.Name(), q.QueryString(), q.Params())
}

// Info surfaces index-level metadata for diagnostics.
func (i *SearchIndex) Info(ctx context.Context) (*db.IndexInfo, error) {
	return i.store.IndexInfo(ctx, i.schema.Name())
}

func (i *SearchIndex) search(
	ctx context.Context, q query.SearchQuery, offset, limit int,
) ([]map[string]any, int, error) {
	sortBy, sortAsc := q.Sort()
	req := &db.SearchRequest{
		Index:        i.schema.Name(),
		Query:        q.QueryString(),
		Params:       q.Params(),
		ReturnFields: q.ReturnFields(),
		SortBy:       sortBy,
		SortAsc:      sortAsc,
		Offset:       offset,
		Limit:        limit,
		Dialect:      q.Dialect(),
	}

	res, err := i.store.Search(ctx, req)
	if err != nil {
		return nil, 0, err
	}

	rows := make([]map[string]any, 0, len(res.Entries))
	for _, e := range res.Entries {
		rows = append(rows, i.normalizeEntry(e))
	}
	return rows, res.Total, nil
}

func (i *SearchIndex) aggregate(ctx context.Context, q query.AggregationQuery) ([]map[string]any, error) {
	groupBy, reduce := q.Group()
	sortBy, sortAsc := q.Sort()
	req := &db.AggregateRequest{
		Index:     i.schema.Name(),
		Query:     q.QueryString(),
		Params:    q.Params(),
		Load:      q.Load(),
		GroupBy:   groupBy,
		Reduce:    reduce.Fn,
		ReduceArg: reduce.Arg,
		ReduceAs:  reduce.As,
		SortBy:    sortBy,
		SortAsc:   sortAsc,
		Limit:     q.Limit(),
		Dialect:   q.Dialect(),
	}

	res, err := i.store.Aggregate(ctx, req)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]any, 0, len(res.Rows))
	for _, raw := range res.Rows {
		rows = append(rows, i.normalizeAggregateRow(raw, reduce.As))
	}
	return rows, nil
}
