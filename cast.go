package wranglz

import (
	"context"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Cast creates a Step that converts its input to the wanted type using the
// standard conversion rules: numeric strings convert to numbers, anything
// converts to string, "true"/"false" convert to bool, and collections
// convert element-wise. It fails with ConversionError when no conversion
// exists or the value does not fit.
//
// Example:
//
//	age := wranglz.Compose(wranglz.Get("age"), wranglz.Cast(cty.Number))
func Cast(want cty.Type) Step {
	return step("cast", func(_ context.Context, value cty.Value, _ *Scope) (cty.Value, error) {
		out, err := convert.Convert(value, want)
		if err != nil {
			return cty.NilVal, &ConversionError{Got: value.Type(), Want: want, Reason: err}
		}
		return out, nil
	})
}
