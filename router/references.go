package router

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/redivec/internal/db"
)

// Reference is one stored reference row.
type Reference struct {
	Key         string
	RouteName   string
	ReferenceID string
	Text        string
}

// ReferenceSelector addresses stored references one of three ways, checked
// in order: explicit key, reference id (scanned across routes), or route
// name (every reference of that route).
type ReferenceSelector struct {
	Key         string
	ReferenceID string
	RouteName   string
}

func (s ReferenceSelector) validate() error {
	if s.Key == "" && s.ReferenceID == "" && s.RouteName == "" {
		return fmt.Errorf("reference selector is empty: %w", ErrInvalidRoute)
	}
	return nil
}

// AddRouteReferences embeds and stores new references for an existing
// route, re-persists the configuration, and returns the keys written.
// References the route already holds are skipped.
func (r *SemanticRouter) AddRouteReferences(ctx context.Context, routeName string, refs ...string) ([]string, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	route := r.findRoute(routeName)
	if route == nil {
		return nil, fmt.Errorf("%q: %w", routeName, ErrRouteNotFound)
	}

	existing := make(map[string]bool, len(route.References))
	for _, ref := range route.References {
		existing[ref] = true
	}
	var fresh []string
	for _, ref := range refs {
		if ref == "" {
			return nil, fmt.Errorf("route %q: empty reference: %w", routeName, ErrInvalidRoute)
		}
		if !existing[ref] {
			fresh = append(fresh, ref)
			existing[ref] = true
		}
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	vecs, err := r.vec.EmbedBatch(ctx, fresh)
	if err != nil {
		return nil, err
	}

	items := make([]db.HashSetItem, len(fresh))
	keys := make([]string, len(fresh))
	for n, ref := range fresh {
		items[n] = r.referenceRow(routeName, ref, vecs[n])
		keys[n] = items[n].Key
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return nil, err
	}

	route.References = append(route.References, fresh...)
	if err := r.persist(ctx); err != nil {
		return nil, err
	}

	r.log.Info("route references added",
		zap.String("router", r.name),
		zap.String("route", routeName),
		zap.Int("count", len(fresh)))
	return keys, nil
}

// GetRouteReferences fetches stored references by selector.
func (r *SemanticRouter) GetRouteReferences(ctx context.Context, sel ReferenceSelector) ([]Reference, error) {
	if err := sel.validate(); err != nil {
		return nil, err
	}

	keys, err := r.selectKeys(ctx, sel)
	if err != nil {
		return nil, err
	}

	refs := make([]Reference, 0, len(keys))
	for _, key := range keys {
		fields, err := r.store.HGetAll(ctx, key)
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue
		}
		refs = append(refs, Reference{
			Key:         key,
			RouteName:   fields[routeNameField],
			ReferenceID: fields[referenceIDField],
			Text:        fields[referenceField],
		})
	}
	return refs, nil
}

// DeleteRouteReferences removes stored references by selector, prunes them
// from the in-memory route lists, re-persists the configuration, and
// returns the number of rows deleted.
func (r *SemanticRouter) DeleteRouteReferences(ctx context.Context, sel ReferenceSelector) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	refs, err := r.GetRouteReferences(ctx, sel)
	if err != nil {
		return 0, err
	}
	if len(refs) == 0 {
		return 0, nil
	}

	keys := make([]string, len(refs))
	for n, ref := range refs {
		keys[n] = ref.Key
	}
	deleted, err := r.store.Del(ctx, keys...)
	if err != nil {
		return 0, err
	}

	for _, ref := range refs {
		if route := r.findRoute(ref.RouteName); route != nil {
			route.References = removeString(route.References, ref.Text)
		}
	}
	if err := r.persist(ctx); err != nil {
		return 0, err
	}
	return deleted, nil
}

// RemoveRoute deletes a route entirely: its reference rows and its entry in
// the configuration document.
func (r *SemanticRouter) RemoveRoute(ctx context.Context, routeName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findRoute(routeName) == nil {
		return fmt.Errorf("%q: %w", routeName, ErrRouteNotFound)
	}

	keys, err := r.store.Scan(ctx, r.referenceKey(routeName, "*"))
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		if _, err := r.store.Del(ctx, keys...); err != nil {
			return err
		}
	}

	kept := r.routes[:0]
	for _, route := range r.routes {
		if route.Name != routeName {
			kept = append(kept, route)
		}
	}
	r.routes = kept
	return r.persist(ctx)
}

func (r *SemanticRouter) selectKeys(ctx context.Context, sel ReferenceSelector) ([]string, error) {
	switch {
	case sel.Key != "":
		return []string{sel.Key}, nil
	case sel.ReferenceID != "":
		return r.store.Scan(ctx, r.name+":*:"+sel.ReferenceID)
	default:
		return r.store.Scan(ctx, r.referenceKey(sel.RouteName, "*"))
	}
}

// findRoute returns a pointer into r.routes. Callers hold r.mu.
func (r *SemanticRouter) findRoute(name string) *Route {
	for n := range r.routes {
		if r.routes[n].Name == name {
			return &r.routes[n]
		}
	}
	return nil
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
