package wranglz

import (
	"context"
	"time"

	"github.com/zclconf/go-cty/cty"
)

// If creates a transformation that applies then when cond returns true for
// the input and els otherwise. A nil els passes the input through
// unchanged, making If a conditional gate:
//
//	knownOnly := wranglz.If(cty.Value.IsNull, wranglz.Constant(cty.StringVal("n/a")), nil)
//
// Panics when cond or then is nil; those are programmer errors, not data
// errors.
func If(cond func(cty.Value) bool, then, els Transformation) Transformation {
	if cond == nil {
		panic("If requires a condition")
	}
	if then == nil {
		panic("If requires a then transformation")
	}
	return &ifStep{cond: cond, then: then, els: els}
}

type ifStep struct {
	cond func(cty.Value) bool
	then Transformation
	els  Transformation
}

func (s *ifStep) Apply(ctx context.Context, value cty.Value, scope *Scope) (result cty.Value, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	defer recoverFromPanic(&result, &err, s.Name(), value)
	start := time.Now()

	branch := s.els
	if s.cond(value) {
		branch = s.then
	}
	if branch == nil {
		return value, nil
	}
	out, berr := branch.Apply(ctx, value, scope)
	if berr != nil {
		return cty.NilVal, wrapError(s.Name(), berr, value, start)
	}
	return out, nil
}

func (s *ifStep) Name() Name {
	return "if"
}

func (s *ifStep) children() []Transformation {
	if s.els == nil {
		return []Transformation{s.then}
	}
	return []Transformation{s.then, s.els}
}

// Switch creates a transformation that routes its input to one of several
// transformations based on a selector key. When no route exists for the
// returned key, the input passes through unchanged.
//
// Example:
//
//	shaped := wranglz.Switch(
//	    func(v cty.Value) string { return v.Type().FriendlyName() },
//	    map[string]wranglz.Transformation{
//	        "string": wranglz.Cast(cty.Number),
//	        "object": wranglz.Get("value"),
//	    },
//	)
func Switch[K comparable](selector func(cty.Value) K, routes map[K]Transformation) Transformation {
	if selector == nil {
		panic("Switch requires a selector")
	}
	copied := make(map[K]Transformation, len(routes))
	for key, route := range routes {
		copied[key] = route
	}
	return &switchStep[K]{selector: selector, routes: copied}
}

type switchStep[K comparable] struct {
	selector func(cty.Value) K
	routes   map[K]Transformation
}

func (s *switchStep[K]) Apply(ctx context.Context, value cty.Value, scope *Scope) (result cty.Value, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	defer recoverFromPanic(&result, &err, s.Name(), value)
	start := time.Now()

	route, ok := s.routes[s.selector(value)]
	if !ok {
		return value, nil
	}
	out, rerr := route.Apply(ctx, value, scope)
	if rerr != nil {
		return cty.NilVal, wrapError(s.Name(), rerr, value, start)
	}
	return out, nil
}

func (s *switchStep[K]) Name() Name {
	return "switch"
}

func (s *switchStep[K]) children() []Transformation {
	out := make([]Transformation, 0, len(s.routes))
	for _, route := range s.routes {
		out = append(out, route)
	}
	return out
}
