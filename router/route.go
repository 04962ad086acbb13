// Package router classifies text into named routes by embedding distance.
// Each route carries reference utterances and an acceptance threshold; the
// router embeds references into a dedicated vector index and resolves a
// query with one range search + per-route aggregation round trip.
package router

import (
	"errors"
	"fmt"
)

// ErrInvalidRoute marks route and routing-config validation failures.
var ErrInvalidRoute = errors.New("router: invalid route")

// ErrRouteNotFound is returned when an operation names an unknown route.
var ErrRouteNotFound = errors.New("router: route not found")

// ErrNotInitialized is returned when loading router state that was never
// persisted.
var ErrNotInitialized = errors.New("router: no persisted configuration")

// MaxDistanceThreshold is the upper bound of the cosine distance range.
const MaxDistanceThreshold = 2.0

// Route is a named cluster of reference utterances with an embedding-space
// acceptance threshold.
type Route struct {
	Name       string            `json:"name"`
	References []string          `json:"references"`
	Metadata   map[string]string `json:"metadata"`
	// DistanceThreshold accepts matches with aggregated cosine distance at
	// or below it; valid range (0, 2].
	DistanceThreshold float64 `json:"distance_threshold"`
}

// Validate checks the route invariants.
func (r Route) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("route name is required: %w", ErrInvalidRoute)
	}
	if len(r.References) == 0 {
		return fmt.Errorf("route %q needs at least one reference: %w", r.Name, ErrInvalidRoute)
	}
	for _, ref := range r.References {
		if ref == "" {
			return fmt.Errorf("route %q has an empty reference: %w", r.Name, ErrInvalidRoute)
		}
	}
	if r.DistanceThreshold <= 0 || r.DistanceThreshold > MaxDistanceThreshold {
		return fmt.Errorf("route %q threshold %v outside (0, %v]: %w",
			r.Name, r.DistanceThreshold, MaxDistanceThreshold, ErrInvalidRoute)
	}
	return nil
}

// RouteMatch is the result of routing one text: the matched route's name
// and its aggregated distance. The zero value means no route matched.
type RouteMatch struct {
	Name     string
	Distance float64
}

// Matched reports whether the match names a route.
func (m RouteMatch) Matched() bool { return m.Name != "" }

// Aggregation folds per-reference distances of one route into one score.
type Aggregation string

const (
	// AggregationAvg scores a route by its mean reference distance.
	AggregationAvg Aggregation = "avg"
	// AggregationMin scores a route by its closest reference.
	AggregationMin Aggregation = "min"
	// AggregationSum rewards routes with many close references.
	AggregationSum Aggregation = "sum"
)

// IsValid checks if the aggregation method is supported.
func (a Aggregation) IsValid() bool {
	return a == AggregationAvg || a == AggregationMin || a == AggregationSum
}

// RoutingConfig tunes match selection.
type RoutingConfig struct {
	// MaxK bounds how many matches RouteMany returns.
	MaxK int `json:"max_k"`
	// AggregationMethod folds reference distances per route.
	AggregationMethod Aggregation `json:"aggregation_method"`
}

// DefaultRoutingConfig returns the stock single-match configuration.
func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{MaxK: 1, AggregationMethod: AggregationAvg}
}

// Validate checks the config invariants.
func (c RoutingConfig) Validate() error {
	if c.MaxK <= 0 {
		return fmt.Errorf("max_k must be positive, got %d: %w", c.MaxK, ErrInvalidRoute)
	}
	if !c.AggregationMethod.IsValid() {
		return fmt.Errorf("unknown aggregation method %q: %w", c.AggregationMethod, ErrInvalidRoute)
	}
	return nil
}

// persistedConfig is the bit-exact shape of the router state document stored
// at {routerName}:route_config. External tools parse this contract.
type persistedConfig struct {
	Name          string        `json:"name"`
	Routes        []Route       `json:"routes"`
	RoutingConfig RoutingConfig `json:"routing_config"`
}
