package wranglz

import "context"

// Finder locates existing instances for get-or-create flows. A Pipeline
// configured with a Finder consults it before constructing in GetOrCreate
// and FindOrInto; everything else ignores it.
//
// Find receives the registered name of the wanted type and the evaluated
// match fields downgraded to plain Go values (string, float64, bool,
// []any, map[string]any, or the instance itself for nested constructions).
// It returns the found instance, whether one was found, and any lookup
// failure. A miss is (nil, false, nil), not an error; errors abort the
// construction that asked.
//
// The returned instance must be assignable to the wanted type: either a T
// or a *T for a registered type T.
//
// Implementations are typically thin adapters over a cache, a repository,
// or a database session:
//
//	finder := wranglz.FinderFunc(func(_ context.Context, typeName string, match map[string]any) (any, bool, error) {
//	    if typeName != "Customer" {
//	        return nil, false, nil
//	    }
//	    c, ok := cache[match["ID"].(string)]
//	    return c, ok, nil
//	})
//	pipeline.WithFinder(finder)
type Finder interface {
	Find(ctx context.Context, typeName string, match map[string]any) (any, bool, error)
}

// FinderFunc adapts a plain function to the Finder interface.
type FinderFunc func(ctx context.Context, typeName string, match map[string]any) (any, bool, error)

// Find implements the Finder interface.
func (f FinderFunc) Find(ctx context.Context, typeName string, match map[string]any) (any, bool, error) {
	return f(ctx, typeName, match)
}
