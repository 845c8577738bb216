package wranglz

import (
	"context"
	"errors"
	"reflect"
	"time"

	"github.com/zclconf/go-cty/cty"
)

// ErrNoPipeline is returned when a construction step runs outside a
// Pipeline, with no scope to reach it through.
var ErrNoPipeline = errors.New("no pipeline in scope")

// Into creates a transformation that constructs a registered type from the
// current value by re-entering the owning Pipeline. The current value
// becomes the raw source of the nested construction and the result is the
// constructed instance, carried as a capsule value until binding unwraps
// it.
//
// Into is the recursion point of the library: placing it in a field chain
// composes nested object graphs.
//
//	wranglz.MustRegister[Square](schema, wranglz.Fields{
//	    "A": wranglz.Compose(wranglz.Get("A"), wranglz.Into[Point]()),
//	    "B": wranglz.Compose(wranglz.Get("B"), wranglz.Into[Point]()),
//	})
//
// The target type must itself be registered; NewPipeline rejects schemas
// whose Into targets are unknown or form a cycle.
func Into[T any]() Transformation {
	return &intoStep{target: reflect.TypeFor[T]()}
}

type intoStep struct {
	target reflect.Type
}

func (s *intoStep) Apply(ctx context.Context, value cty.Value, scope *Scope) (result cty.Value, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	defer recoverFromPanic(&result, &err, s.Name(), value)
	start := time.Now()

	p := scope.Pipeline()
	if p == nil {
		return cty.NilVal, wrapError(s.Name(), ErrNoPipeline, value, start)
	}
	out, cerr := p.create(ctx, s.target, value, scope)
	if cerr != nil {
		return cty.NilVal, wrapError(s.Name(), cerr, value, start)
	}
	return out, nil
}

func (s *intoStep) Name() Name {
	return "into"
}

func (s *intoStep) creates() reflect.Type {
	return s.target
}

// EachInto creates a transformation that constructs one instance of a
// registered type per element of a sequence input, yielding a list of
// capsule values. The first element failure aborts the whole step; use
// CreateMultiple at the pipeline level when per-element isolation is
// needed.
//
//	wranglz.MustRegister[Polygon](schema, wranglz.Fields{
//	    "Vertices": wranglz.Compose(wranglz.Get("vertices"), wranglz.EachInto[Point]()),
//	})
func EachInto[T any]() Transformation {
	return &eachIntoStep{target: reflect.TypeFor[T]()}
}

type eachIntoStep struct {
	target reflect.Type
}

func (s *eachIntoStep) Apply(ctx context.Context, value cty.Value, scope *Scope) (result cty.Value, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	defer recoverFromPanic(&result, &err, s.Name(), value)
	start := time.Now()

	p := scope.Pipeline()
	if p == nil {
		return cty.NilVal, wrapError(s.Name(), ErrNoPipeline, value, start)
	}
	bp, berr := p.schema.lookup(s.target)
	if berr != nil {
		return cty.NilVal, wrapError(s.Name(), berr, value, start)
	}
	elements, serr := sequenceElements(value)
	if serr != nil {
		return cty.NilVal, wrapError(s.Name(), serr, value, start)
	}
	out := make([]cty.Value, 0, len(elements))
	for _, elem := range elements {
		capsule, cerr := p.create(ctx, s.target, elem, scope)
		if cerr != nil {
			return cty.NilVal, wrapError(s.Name(), cerr, value, start)
		}
		out = append(out, capsule)
	}
	if len(out) == 0 {
		return cty.ListValEmpty(bp.capsule), nil
	}
	return cty.ListVal(out), nil
}

func (s *eachIntoStep) Name() Name {
	return "each_into"
}

func (s *eachIntoStep) creates() reflect.Type {
	return s.target
}

// FindOrInto creates a transformation like Into that first consults the
// Pipeline's Finder for an existing instance. The declared field chains are
// evaluated once; the named match fields (all declared fields when none are
// named) are handed to the Finder, and on a hit the found instance is
// returned without constructing. On a miss, or when no Finder is
// configured, the already-evaluated fields are bound into a new instance.
//
//	wranglz.MustRegister[Order](schema, wranglz.Fields{
//	    "Customer": wranglz.Compose(wranglz.Get("customer"), wranglz.FindOrInto[Customer]("ID")),
//	})
//
// Wrapping it in ForEach resolves a sequence field element by element, the
// in-chain counterpart of GetOrCreateMultiple at the pipeline level:
//
//	"Members": wranglz.Compose(wranglz.Get("members"), wranglz.ForEach(wranglz.FindOrInto[Member]("ID"))),
func FindOrInto[T any](match ...string) Transformation {
	return &findOrIntoStep{target: reflect.TypeFor[T](), match: match}
}

type findOrIntoStep struct {
	target reflect.Type
	match  []string
}

func (s *findOrIntoStep) Apply(ctx context.Context, value cty.Value, scope *Scope) (result cty.Value, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	defer recoverFromPanic(&result, &err, s.Name(), value)
	start := time.Now()

	p := scope.Pipeline()
	if p == nil {
		return cty.NilVal, wrapError(s.Name(), ErrNoPipeline, value, start)
	}
	out, cerr := p.findOrCreate(ctx, s.target, value, scope, s.match)
	if cerr != nil {
		return cty.NilVal, wrapError(s.Name(), cerr, value, start)
	}
	return out, nil
}

func (s *findOrIntoStep) Name() Name {
	return "find_or_into"
}

func (s *findOrIntoStep) creates() reflect.Type {
	return s.target
}
