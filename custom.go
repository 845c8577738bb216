package wranglz

import (
	"context"

	"github.com/zclconf/go-cty/cty"
)

// Func creates a Step from a plain function over values. Func is the
// general-purpose escape hatch: use it when no built-in step expresses the
// transformation you need and the logic does not depend on the construction
// context.
//
// The function receives a context for cancellation support. On error, chain
// evaluation stops immediately and the error is returned wrapped with the
// step's name for debugging.
//
// Func is ideal for:
//   - One-off value cleanups (trimming, normalizing, reformatting)
//   - Domain-specific parsing that no Cast covers
//   - Guards that reject out-of-range values
//
// For logic that must reach the owning Pipeline or the current target type,
// use Custom.
//
// Example:
//
//	upper := wranglz.Func("upper", func(_ context.Context, v cty.Value) (cty.Value, error) {
//	    if v.Type() != cty.String || v.IsNull() {
//	        return cty.NilVal, fmt.Errorf("expected a string, got %s", v.Type().FriendlyName())
//	    }
//	    return cty.StringVal(strings.ToUpper(v.AsString())), nil
//	})
func Func(name Name, fn func(context.Context, cty.Value) (cty.Value, error)) Step {
	return step(name, func(ctx context.Context, value cty.Value, _ *Scope) (cty.Value, error) {
		return fn(ctx, value)
	})
}

// Custom creates a Step from a function that also receives the construction
// Scope. The scope exposes the owning Pipeline, the current target type,
// and the raw source record, so Custom steps can make decisions based on
// where in a construction they are running.
//
// Outside a Pipeline the scope is nil; Custom functions that support
// standalone application should tolerate that.
//
// Example:
//
//	tagOwner := wranglz.Custom("tag_owner", func(_ context.Context, v cty.Value, sc *wranglz.Scope) (cty.Value, error) {
//	    return cty.ObjectVal(map[string]cty.Value{
//	        "owner": cty.StringVal(sc.TypeName()),
//	        "value": v,
//	    }), nil
//	})
func Custom(name Name, fn func(context.Context, cty.Value, *Scope) (cty.Value, error)) Step {
	return step(name, fn)
}
