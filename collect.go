package wranglz

import (
	"context"
	"fmt"
	"time"

	"github.com/zclconf/go-cty/cty"
)

// ForEach creates a transformation that applies t to every element of a
// sequence input (list, tuple, or set) and collects the results into a
// tuple, preserving element order. The first element failure aborts the
// whole step.
//
// The construction scope is forwarded to t, so ForEach(Into[T]()) builds
// one nested instance per element and ForEach(FindOrInto[T](match...))
// resolves each element through the Finder first. For plain construction
// EachInto is the more direct spelling.
//
// Example:
//
//	prices := wranglz.Compose(wranglz.Get("prices"), wranglz.ForEach(wranglz.Cast(cty.Number)))
func ForEach(t Transformation) Transformation {
	return &forEachStep{transformation: t}
}

type forEachStep struct {
	transformation Transformation
}

func (f *forEachStep) Apply(ctx context.Context, value cty.Value, scope *Scope) (result cty.Value, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	defer recoverFromPanic(&result, &err, f.Name(), value)
	start := time.Now()

	elements, serr := sequenceElements(value)
	if serr != nil {
		return cty.NilVal, wrapError(f.Name(), serr, value, start)
	}
	out := make([]cty.Value, 0, len(elements))
	for _, elem := range elements {
		transformed, terr := f.transformation.Apply(ctx, elem, scope)
		if terr != nil {
			return cty.NilVal, wrapError(f.Name(), terr, value, start)
		}
		out = append(out, transformed)
	}
	return tupleOf(out), nil
}

func (f *forEachStep) Name() Name {
	return "for_each"
}

func (f *forEachStep) children() []Transformation {
	return []Transformation{f.transformation}
}

// MapEach creates a Step that applies a plain function to every element of
// a sequence input and collects the results into a tuple. Use ForEach when
// the per-element work is itself a Transformation.
//
// Example:
//
//	trimmed := wranglz.MapEach(func(_ context.Context, v cty.Value) (cty.Value, error) {
//	    return cty.StringVal(strings.TrimSpace(v.AsString())), nil
//	})
func MapEach(fn func(context.Context, cty.Value) (cty.Value, error)) Step {
	return step("map", func(ctx context.Context, value cty.Value, _ *Scope) (cty.Value, error) {
		elements, err := sequenceElements(value)
		if err != nil {
			return cty.NilVal, err
		}
		out := make([]cty.Value, 0, len(elements))
		for _, elem := range elements {
			transformed, ferr := fn(ctx, elem)
			if ferr != nil {
				return cty.NilVal, ferr
			}
			out = append(out, transformed)
		}
		return tupleOf(out), nil
	})
}

// Filter creates a Step that keeps the elements of a sequence input for
// which keep returns true, preserving order.
//
// Example:
//
//	active := wranglz.Filter(func(v cty.Value) bool {
//	    return v.GetAttr("active").True()
//	})
func Filter(keep func(cty.Value) bool) Step {
	return step("filter", func(_ context.Context, value cty.Value, _ *Scope) (cty.Value, error) {
		elements, err := sequenceElements(value)
		if err != nil {
			return cty.NilVal, err
		}
		out := make([]cty.Value, 0, len(elements))
		for _, elem := range elements {
			if keep(elem) {
				out = append(out, elem)
			}
		}
		return tupleOf(out), nil
	})
}

// Flatten creates a Step that splices nested sequences into their parent,
// depth levels deep. Every element encountered while splicing must itself
// be a sequence. Flatten(1) turns [[a, b], [c]] into [a, b, c].
func Flatten(depth int) Step {
	return step("flatten", func(_ context.Context, value cty.Value, _ *Scope) (cty.Value, error) {
		current := value
		for level := 0; level < depth; level++ {
			elements, err := sequenceElements(current)
			if err != nil {
				return cty.NilVal, err
			}
			flat := make([]cty.Value, 0, len(elements))
			for _, elem := range elements {
				inner, ierr := sequenceElements(elem)
				if ierr != nil {
					return cty.NilVal, fmt.Errorf("flatten level %d: %w", level+1, ierr)
				}
				flat = append(flat, inner...)
			}
			current = tupleOf(flat)
		}
		return current, nil
	})
}

// sequenceElements returns the elements of a list, tuple, or set value in
// iteration order.
func sequenceElements(value cty.Value) ([]cty.Value, error) {
	if value.IsNull() {
		return nil, fmt.Errorf("cannot iterate null value")
	}
	ty := value.Type()
	if !ty.IsListType() && !ty.IsTupleType() && !ty.IsSetType() {
		return nil, fmt.Errorf("cannot iterate %s value", ty.FriendlyName())
	}
	elements := make([]cty.Value, 0, value.LengthInt())
	for it := value.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		elements = append(elements, elem)
	}
	return elements, nil
}

// tupleOf wraps elements into a tuple value, tolerating heterogeneous
// element types and the empty case.
func tupleOf(elements []cty.Value) cty.Value {
	if len(elements) == 0 {
		return cty.EmptyTupleVal
	}
	return cty.TupleVal(elements)
}
