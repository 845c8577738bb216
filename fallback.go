package wranglz

import (
	"context"
	"time"

	"github.com/zclconf/go-cty/cty"
)

// Fallback creates a transformation that tries each alternative in order,
// always against the original input, until one succeeds. When every
// alternative fails, the last failure is returned with the step's name
// prepended to its path.
//
// Unlike a Chain, which feeds each step's output to the next, Fallback
// gives every alternative the same input. Use it for records that appear
// in more than one shape:
//
//	id := wranglz.Fallback(
//	    wranglz.Get("id"),
//	    wranglz.Get("legacy_id"),
//	    wranglz.Constant(cty.StringVal("unknown")),
//	)
//
// Avoid circular references between Fallback instances when all
// alternatives fail; that creates infinite recursion.
//
// Panics when called with no alternatives.
func Fallback(alternatives ...Transformation) Transformation {
	if len(alternatives) == 0 {
		panic("Fallback requires at least one transformation")
	}
	return &fallbackStep{alternatives: alternatives}
}

type fallbackStep struct {
	alternatives []Transformation
}

// Apply tries each alternative in order until one succeeds or all fail.
func (f *fallbackStep) Apply(ctx context.Context, value cty.Value, scope *Scope) (result cty.Value, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	defer recoverFromPanic(&result, &err, f.Name(), value)
	start := time.Now()

	var lastErr error
	for _, alternative := range f.alternatives {
		out, aerr := alternative.Apply(ctx, value, scope)
		if aerr == nil {
			return out, nil
		}
		lastErr = aerr
	}
	return cty.NilVal, wrapError(f.Name(), lastErr, value, start)
}

func (f *fallbackStep) Name() Name {
	return "fallback"
}

func (f *fallbackStep) children() []Transformation {
	return f.alternatives
}
