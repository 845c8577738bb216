package wranglz

import (
	"context"

	"github.com/zclconf/go-cty/cty"
)

// Identity creates a Step that returns its input unchanged. Useful as a
// branch of If or Switch and as the neutral element when building chains
// programmatically.
func Identity() Step {
	return step("identity", func(_ context.Context, value cty.Value, _ *Scope) (cty.Value, error) {
		return value, nil
	})
}

// Constant creates a Step that ignores its input and returns v.
//
// Example:
//
//	source := wranglz.Constant(cty.StringVal("import"))
func Constant(v cty.Value) Step {
	return step("constant", func(_ context.Context, _ cty.Value, _ *Scope) (cty.Value, error) {
		return v, nil
	})
}

// Default creates a Step that substitutes v when the input is null and
// passes any other input through unchanged. Place it after a lookup that
// may legitimately yield null.
//
// Example:
//
//	country := wranglz.Compose(wranglz.GetOr("country", cty.NullVal(cty.String)), wranglz.Default(cty.StringVal("unknown")))
func Default(v cty.Value) Step {
	return step("default", func(_ context.Context, value cty.Value, _ *Scope) (cty.Value, error) {
		if value.IsNull() {
			return v, nil
		}
		return value, nil
	})
}
