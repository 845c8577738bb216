// Package wranglz provides a lightweight library for composing value
// transformations and recursively constructing typed Go values from
// loosely-typed, nested record data.
//
// # Overview
//
// wranglz turns already-parsed dynamic data (JSON documents, HCL bodies,
// CSV rows) into fully constructed Go structs. Callers declare, per target
// type and per field, a chain of small named transformation steps; a
// Pipeline then walks input records, runs each field's chain, and binds the
// results onto new instances, recursing into nested target types where a
// construction step appears in a chain.
//
// Dynamic values are represented uniformly as cty.Value from
// github.com/zclconf/go-cty: mappings become objects or maps, sequences
// become lists or tuples, scalars become strings, numbers, and bools.
// Parsing raw text into cty values is the caller's responsibility.
//
// # Installation
//
//	go get github.com/zoobzio/wranglz
//
// Requires Go 1.23+ for range-over-func iterators.
//
// # Core Concepts
//
// The library is built around a single, uniform interface:
//
//	type Transformation interface {
//	    Apply(context.Context, cty.Value, *Scope) (cty.Value, error)
//	    Name() Name
//	}
//
// Key components:
//   - Steps: individual transformation units (Get, Cast, Into, ...) built
//     by constructor functions; immutable values
//   - Chains: ordered compositions of Transformations built with Compose;
//     a Chain is itself a Transformation
//   - Schema: the per-type, per-field declaration of chains, frozen before
//     first use
//   - Pipeline: the orchestrator that looks up a type's declaration, runs
//     its field chains, and constructs instances
//   - Scope: the per-call construction context carrying the owning
//     Pipeline, current target type, and source record
//
// Every step obeys the same contract: pure, single input, single output,
// fail-fast. Steps never mutate their input; cty values are immutable.
//
// # Built-in Steps
//
// Lookup:
//
//	wranglz.Get("x")                  // object/map attribute, MissingKeyError if absent
//	wranglz.GetOr("x", fallback)      // like Get but yields fallback instead of failing
//	wranglz.At(0)                     // list/tuple element by index
//
// Scalars:
//
//	wranglz.Identity()                // input unchanged
//	wranglz.Constant(v)               // fixed value
//	wranglz.Default(v)                // v when input is null
//	wranglz.Cast(cty.Number)          // conversion, ConversionError on failure
//
// Sequences and mappings:
//
//	wranglz.ForEach(t)                // apply t to each element
//	wranglz.MapEach(fn)               // apply a plain function to each element
//	wranglz.Filter(keep)              // keep matching elements
//	wranglz.Flatten(1)                // splice nested sequences
//	wranglz.Gather("a", "b")          // sub-object of named keys
//	wranglz.Keys(), wranglz.Values()  // mapping introspection
//	wranglz.FoldInKeys("id")          // mapping-of-mappings to sequence, key folded in
//	wranglz.FoldInValue("meta", "m")  // fold one value into sibling mappings
//
// Branching:
//
//	wranglz.If(cond, then, els)
//	wranglz.Switch(selector, routes)
//	wranglz.Fallback(primary, backup)
//
// Construction:
//
//	wranglz.Into[Point]()             // re-enter the Pipeline for a nested type
//	wranglz.EachInto[Point]()         // one instance per sequence element
//	wranglz.FindOrInto[User]("ID")    // consult the Finder before constructing
//
// Escape hatches:
//
//	wranglz.Func("upper", func(_ context.Context, v cty.Value) (cty.Value, error) {
//	    return cty.StringVal(strings.ToUpper(v.AsString())), nil
//	})
//
// # Composition
//
// Compose builds a Chain; composing chains flattens them, so composition is
// associative and the result is always one ordered sequence of steps:
//
//	toInt := wranglz.Compose(wranglz.Get("x"), wranglz.Cast(cty.Number))
//	// identical step sequences:
//	wranglz.Compose(wranglz.Compose(a, b), c)
//	wranglz.Compose(a, wranglz.Compose(b, c))
//	wranglz.Compose(a, b, c)
//
// A Chain applies its steps strictly in order, feeding each step's output
// to the next, and stops at the first failure, returning it unchanged.
//
// # Quick Start
//
//	type Point struct {
//	    X int
//	    Y int
//	}
//
//	schema := wranglz.NewSchema()
//	wranglz.MustRegister[Point](schema, wranglz.Fields{
//	    "X": wranglz.Compose(wranglz.Get("x"), wranglz.Cast(cty.Number)),
//	    "Y": wranglz.Compose(wranglz.Get("y"), wranglz.Cast(cty.Number)),
//	})
//
//	pipeline, err := wranglz.NewPipeline("geometry", schema)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pipeline.Close()
//
//	raw := cty.ObjectVal(map[string]cty.Value{
//	    "x": cty.StringVal("3"),
//	    "y": cty.StringVal("4"),
//	})
//	point, err := wranglz.Create[Point](context.Background(), pipeline, raw)
//	// point: Point{X: 3, Y: 4}
//
// Multi-record construction is lazy and per-element isolated:
//
//	for point, err := range wranglz.CreateMultiple[Point](ctx, pipeline, raws) {
//	    if err != nil {
//	        log.Printf("skipping record: %v", err)
//	        continue
//	    }
//	    use(point)
//	}
//
// When a Finder is configured with WithFinder, GetOrCreate and
// GetOrCreateMultiple consult it before constructing, so repeated records
// resolve to instances the caller has already registered instead of fresh
// ones.
//
// # Error Handling
//
// Failures carry rich context through the Error type:
//
//	type Error struct {
//	    Path      []Name        // full path: ["geometry", "Point", "X", "cast"]
//	    InputData cty.Value     // the value that caused the failure
//	    Err       error         // the underlying error
//	    Timestamp time.Time     // when the failure occurred
//	    Duration  time.Duration // how long before failure
//	    Timeout   bool          // was it a timeout?
//	    Canceled  bool          // was it canceled?
//	}
//
// Specific failure kinds are matchable with errors.As: MissingKeyError,
// ConversionError, UnknownTypeError, FieldConstructionError,
// ConstructorError, and SchemaError.
//
//	point, err := wranglz.Create[Point](ctx, pipeline, raw)
//	if err != nil {
//	    var convErr *wranglz.ConversionError
//	    if errors.As(err, &convErr) {
//	        log.Printf("bad value: cannot convert %s to %s",
//	            convErr.Got.FriendlyName(), convErr.Want.FriendlyName())
//	    }
//	}
//
// # Observability
//
// Each Pipeline carries its own metrics registry, tracer, and hook bus.
// Counters and gauges are readable through Metrics(), spans through
// Tracer(), and construction lifecycle events (created, failed, lookup hit,
// lookup miss) through the On* registration methods:
//
//	pipeline.OnCreateFailed(func(_ context.Context, e wranglz.CreateEvent) error {
//	    log.Printf("%s failed: %v", e.TypeName, e.Err)
//	    return nil
//	})
//
// For more examples, see the examples directory.
package wranglz

import (
	"context"
	"time"

	"github.com/zclconf/go-cty/cty"
)

// Transformation is the interface implemented by every unit of work in the
// library: built-in steps, caller-defined steps, and chains. The uniform
// interface is what makes composition associative and lets a Chain stand
// anywhere a single step can.
//
// Key design principles:
//   - Context support for cancellation
//   - Purity: inputs are never mutated, outputs are new values
//   - Fail-fast error propagation
//   - Named components for debugging and monitoring
//
// The Scope argument carries the construction context when the
// transformation runs inside a Pipeline; it is nil-safe, so standalone
// application with a nil scope works for every step except the
// construction steps, which need the Pipeline reference it carries.
type Transformation interface {
	Apply(context.Context, cty.Value, *Scope) (cty.Value, error)
	Name() Name
}

// Name is a type alias for step, chain, and pipeline names.
// Using this type encourages storing names as constants rather than
// using inline strings throughout your code.
//
// Example:
//
//	const (
//	    ParseCoordName  Name = "parse-coordinate"
//	    NormalizeName   Name = "normalize"
//	)
//
//	parse := wranglz.Func(ParseCoordName, parseFunc)
type Name = string

// Step is the immutable value type behind every built-in transformation.
// It pairs a descriptive name with a private application function. The name
// appears in Error.Path to identify exactly where failures occur.
//
// The fn field is intentionally private so steps are only created through
// the provided constructors, keeping error wrapping and panic recovery
// consistent.
type Step struct {
	fn   func(context.Context, cty.Value, *Scope) (cty.Value, error)
	name Name
}

// step builds a Step from a name and an application function. All built-in
// constructors funnel through here.
func step(name Name, fn func(context.Context, cty.Value, *Scope) (cty.Value, error)) Step {
	return Step{name: name, fn: fn}
}

// Apply implements the Transformation interface. It guards against nil
// contexts, recovers panics from the wrapped function, and wraps failures
// into an *Error carrying the step name.
func (s Step) Apply(ctx context.Context, value cty.Value, scope *Scope) (result cty.Value, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	defer recoverFromPanic(&result, &err, s.name, value)
	start := time.Now()
	out, ferr := s.fn(ctx, value, scope)
	if ferr != nil {
		return cty.NilVal, wrapError(s.name, ferr, value, start)
	}
	return out, nil
}

// Name returns the name of the step for debugging and error reporting.
func (s Step) Name() Name {
	return s.name
}
