package router

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/kailas-cloud/redivec/internal/db"
	redisdb "github.com/kailas-cloud/redivec/internal/db/redis"
	"github.com/kailas-cloud/redivec/query"
	"github.com/kailas-cloud/redivec/schema"
	"github.com/kailas-cloud/redivec/vectorizer"
)

// Reference row field names in the backing index.
const (
	routeNameField   = "route_name"
	referenceIDField = "reference_id"
	referenceField   = "reference"
	vectorField      = "vector"
)

const configKeySuffix = ":route_config"

// store is the consumer interface the router needs.
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, keys ...string) (int, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string, dropData bool) error
	IndexExists(ctx context.Context, name string) (bool, error)
	Aggregate(ctx context.Context, req *db.AggregateRequest) (*db.AggregateResult, error)
}

// SemanticRouter classifies text into routes. Reference mutations follow a
// read-modify-persist cycle guarded by an internal mutex, so one instance
// is safe for concurrent use; separate instances over the same backing
// index still race and need external coordination.
type SemanticRouter struct {
	mu     sync.Mutex
	name   string
	routes []Route
	config RoutingConfig
	vec    vectorizer.Vectorizer
	store  store
	log    *zap.Logger
}

// Config assembles a SemanticRouter.
type Config struct {
	// Name is the router identity: index name, key prefix and config key.
	Name   string
	Routes []Route
	// Vectorizer embeds references and routed texts.
	Vectorizer vectorizer.Vectorizer
	// RoutingConfig tunes match selection; zero value means defaults.
	RoutingConfig RoutingConfig
	// Overwrite recreates the backing index when it already exists.
	Overwrite bool
	Logger    *zap.Logger
}

// New initializes a router over a caller-owned rueidis client: creates the
// backing index, embeds every route's references in one batch, writes one
// row per reference, and persists the configuration document.
func New(ctx context.Context, cfg Config, client rueidis.Client) (*SemanticRouter, error) {
	return newRouter(ctx, cfg, redisdb.NewStore(client))
}

func newRouter(ctx context.Context, cfg Config, st store) (*SemanticRouter, error) {
	if cfg.Name == "" || !db.IsValidIdentifier(cfg.Name) {
		return nil, fmt.Errorf("router name %q is invalid: %w", cfg.Name, ErrInvalidRoute)
	}
	if cfg.Vectorizer == nil {
		return nil, fmt.Errorf("vectorizer is required: %w", ErrInvalidRoute)
	}
	if len(cfg.Routes) == 0 {
		return nil, fmt.Errorf("at least one route is required: %w", ErrInvalidRoute)
	}
	if (cfg.RoutingConfig == RoutingConfig{}) {
		cfg.RoutingConfig = DefaultRoutingConfig()
	}
	if err := cfg.RoutingConfig.Validate(); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(cfg.Routes))
	for _, route := range cfg.Routes {
		if err := route.Validate(); err != nil {
			return nil, err
		}
		if seen[route.Name] {
			return nil, fmt.Errorf("duplicate route %q: %w", route.Name, ErrInvalidRoute)
		}
		seen[route.Name] = true
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	r := &SemanticRouter{
		name:   cfg.Name,
		routes: cfg.Routes,
		config: cfg.RoutingConfig,
		vec:    cfg.Vectorizer,
		store:  st,
		log:    cfg.Logger,
	}
	if err := r.initialize(ctx, cfg.Overwrite); err != nil {
		return nil, err
	}
	return r, nil
}

// FromExisting rebuilds a router from its persisted configuration document.
// The backing index and reference rows are left untouched.
func FromExisting(ctx context.Context, name string, vec vectorizer.Vectorizer, client rueidis.Client, logger *zap.Logger) (*SemanticRouter, error) {
	return fromExisting(ctx, name, vec, redisdb.NewStore(client), logger)
}

func fromExisting(ctx context.Context, name string, vec vectorizer.Vectorizer, st store, logger *zap.Logger) (*SemanticRouter, error) {
	if vec == nil {
		return nil, fmt.Errorf("vectorizer is required: %w", ErrInvalidRoute)
	}
	data, err := st.Get(ctx, name+configKeySuffix)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, fmt.Errorf("router %q: %w", name, ErrNotInitialized)
		}
		return nil, err
	}

	var cfg persistedConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("router %q: parse persisted config: %w", name, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SemanticRouter{
		name:   cfg.Name,
		routes: cfg.Routes,
		config: cfg.RoutingConfig,
		vec:    vec,
		store:  st,
		log:    logger,
	}, nil
}

func (r *SemanticRouter) initialize(ctx context.Context, overwrite bool) error {
	texts := make([]string, 0, 16)
	for _, route := range r.routes {
		texts = append(texts, route.References...)
	}
	vecs, err := r.vec.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return fmt.Errorf("vectorizer produced no embedding: %w", vectorizer.ErrProvider)
	}
	dims := len(vecs[0])

	exists, err := r.store.IndexExists(ctx, r.name)
	if err != nil {
		return err
	}
	if exists && overwrite {
		if err := r.store.DropIndex(ctx, r.name, true); err != nil {
			return err
		}
		exists = false
	}
	if !exists {
		def, err := r.compileSchema(dims)
		if err != nil {
			return err
		}
		if err := r.store.CreateIndex(ctx, def); err != nil {
			return err
		}
	}

	items := make([]db.HashSetItem, 0, len(texts))
	n := 0
	for _, route := range r.routes {
		for _, ref := range route.References {
			items = append(items, r.referenceRow(route.Name, ref, vecs[n]))
			n++
		}
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return err
	}

	r.log.Info("router initialized",
		zap.String("router", r.name),
		zap.Int("routes", len(r.routes)),
		zap.Int("references", len(items)))
	return r.persist(ctx)
}

func (r *SemanticRouter) compileSchema(dims int) (*db.IndexDefinition, error) {
	s, err := schema.New(
		schema.IndexInfo{Name: r.name, Prefix: r.name},
		schema.NewTagField(routeNameField),
		schema.NewTagField(referenceIDField),
		schema.NewTextField(referenceField),
		schema.MustVectorField(vectorField, dims),
	)
	if err != nil {
		return nil, err
	}
	return s.Compile()
}

func (r *SemanticRouter) referenceRow(routeName, ref string, vec []float32) db.HashSetItem {
	return db.HashSetItem{
		Key: r.referenceKey(routeName, referenceID(ref)),
		Fields: map[string]string{
			routeNameField:   routeName,
			referenceIDField: referenceID(ref),
			referenceField:   ref,
			vectorField:      query.VectorBlob32(vec),
		},
	}
}

func (r *SemanticRouter) referenceKey(routeName, refID string) string {
	return r.name + ":" + routeName + ":" + refID
}

func (r *SemanticRouter) configKey() string { return r.name + configKeySuffix }

// referenceID derives the stable row id for a reference text.
func referenceID(ref string) string {
	h := sha256.Sum256([]byte(ref))
	return hex.EncodeToString(h[:])[:16]
}

// persist writes the configuration document. Callers hold r.mu.
func (r *SemanticRouter) persist(ctx context.Context) error {
	doc := persistedConfig{Name: r.name, Routes: r.routes, RoutingConfig: r.config}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, r.configKey(), data)
}

// Name returns the router identity.
func (r *SemanticRouter) Name() string { return r.name }

// Routes returns a copy of the configured routes.
func (r *SemanticRouter) Routes() []Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Route, len(r.routes))
	copy(out, r.routes)
	return out
}

// RoutingConfig returns the current match-selection settings.
func (r *SemanticRouter) RoutingConfig() RoutingConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config
}

// UpdateRoutingConfig replaces the match-selection settings and re-persists
// the configuration document.
func (r *SemanticRouter) UpdateRoutingConfig(ctx context.Context, cfg RoutingConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = cfg
	return r.persist(ctx)
}

// RouteOption overrides per-call routing behavior.
type RouteOption func(*routeOptions)

type routeOptions struct {
	vector      []float32
	aggregation Aggregation
	maxK        int
}

// WithVector routes a pre-computed embedding, skipping the vectorizer.
func WithVector(vec []float32) RouteOption {
	return func(o *routeOptions) { o.vector = vec }
}

// WithAggregation overrides the configured aggregation method for one call.
func WithAggregation(a Aggregation) RouteOption {
	return func(o *routeOptions) { o.aggregation = a }
}

// WithMaxK overrides the configured match limit for one RouteMany call.
func WithMaxK(k int) RouteOption {
	return func(o *routeOptions) { o.maxK = k }
}

// Route classifies text into the single best matching route. The zero
// RouteMatch is returned when no route's aggregated distance stays within
// that route's own threshold.
func (r *SemanticRouter) Route(ctx context.Context, text string, opts ...RouteOption) (RouteMatch, error) {
	matches, err := r.routeMany(ctx, text, 1, opts)
	if err != nil {
		return RouteMatch{}, err
	}
	if len(matches) == 0 {
		return RouteMatch{}, nil
	}
	return matches[0], nil
}

// RouteMany classifies text into up to maxK routes (configured MaxK unless
// overridden), each filtered against its own threshold, ordered by
// aggregated distance ascending.
func (r *SemanticRouter) RouteMany(ctx context.Context, text string, opts ...RouteOption) ([]RouteMatch, error) {
	return r.routeMany(ctx, text, 0, opts)
}

func (r *SemanticRouter) routeMany(ctx context.Context, text string, forceK int, opts []RouteOption) ([]RouteMatch, error) {
	var o routeOptions
	for _, opt := range opts {
		opt(&o)
	}

	r.mu.Lock()
	routes := make([]Route, len(r.routes))
	copy(routes, r.routes)
	agg := r.config.AggregationMethod
	maxK := r.config.MaxK
	r.mu.Unlock()

	if o.aggregation != "" {
		if !o.aggregation.IsValid() {
			return nil, fmt.Errorf("unknown aggregation method %q: %w", o.aggregation, ErrInvalidRoute)
		}
		agg = o.aggregation
	}
	if o.maxK > 0 {
		maxK = o.maxK
	}
	if forceK > 0 {
		maxK = forceK
	}
	if len(routes) == 0 {
		return nil, nil
	}

	vec := o.vector
	if vec == nil {
		var err error
		vec, err = r.vec.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
	}

	// One range search bounded by the widest threshold retrieves candidates
	// for every route's own check at once.
	maxThreshold := 0.0
	thresholds := make(map[string]float64, len(routes))
	for _, route := range routes {
		thresholds[route.Name] = route.DistanceThreshold
		if route.DistanceThreshold > maxThreshold {
			maxThreshold = route.DistanceThreshold
		}
	}

	q, err := query.NewRangeAggregation().
		Vector(vec).
		Field(vectorField).
		DistanceThreshold(maxThreshold).
		GroupBy(routeNameField).
		Reduce(reducerFor(agg)).
		Limit(len(routes)).
		Build()
	if err != nil {
		return nil, err
	}

	rows, err := r.execAggregation(ctx, q)
	if err != nil {
		return nil, err
	}

	matches := make([]RouteMatch, 0, maxK)
	for _, row := range rows {
		threshold, known := thresholds[row.name]
		if !known || row.distance > threshold {
			continue
		}
		matches = append(matches, RouteMatch{Name: row.name, Distance: row.distance})
		if len(matches) == maxK {
			break
		}
	}
	return matches, nil
}

func reducerFor(a Aggregation) string {
	switch a {
	case AggregationMin:
		return query.ReduceMin
	case AggregationSum:
		return query.ReduceSum
	default:
		return query.ReduceAvg
	}
}

type aggregatedRow struct {
	name     string
	distance float64
}

func (r *SemanticRouter) execAggregation(ctx context.Context, q query.AggregationQuery) ([]aggregatedRow, error) {
	groupBy, reduce := q.Group()
	sortBy, sortAsc := q.Sort()
	res, err := r.store.Aggregate(ctx, &db.AggregateRequest{
		Index:     r.name,
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
	})
	if err != nil {
		return nil, err
	}

	rows := make([]aggregatedRow, 0, len(res.Rows))
	for _, raw := range res.Rows {
		dist, err := strconv.ParseFloat(raw[reduce.As], 64)
		if err != nil {
			continue
		}
		rows = append(rows, aggregatedRow{name: raw[groupBy], distance: dist})
	}
	return rows, nil
}

// Delete drops the backing index with its reference rows and removes the
// configuration document.
func (r *SemanticRouter) Delete(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.DropIndex(ctx, r.name, true); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return err
	}
	_, err := r.store.Del(ctx, r.configKey())
	return err
}

// Clear removes every reference row and empties each route's reference
// list, keeping the index definition and the routes themselves. The updated
// (empty-reference) configuration is re-persisted.
func (r *SemanticRouter) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for n := range r.routes {
		keys, err := r.store.Scan(ctx, r.referenceKey(r.routes[n].Name, "*"))
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if _, err := r.store.Del(ctx, keys...); err != nil {
				return err
			}
		}
		r.routes[n].References = nil
	}
	return r.persist(ctx)
}
