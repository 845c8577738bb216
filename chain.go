package wranglz

import (
	"context"

	"github.com/zclconf/go-cty/cty"
)

// ChainName is the name every Chain reports. Chains return step failures
// unchanged, so the name never appears in error paths; it exists for
// debugging surfaces that print component names.
const ChainName Name = "chain"

// Chain is an ordered composition of Transformations that is itself a
// Transformation. Applying a Chain runs its steps strictly in declaration
// order, feeding each step's output to the next, and stops at the first
// failure, returning that failure unchanged.
//
// Chains are immutable: Compose and Then always return new values, and the
// step sequence never changes after construction. Composing with operands
// that are already Chains splices their steps into one flat sequence, which
// is what makes composition associative:
//
//	Compose(Compose(a, b), c)  // same steps as
//	Compose(a, Compose(b, c))  // same steps as
//	Compose(a, b, c)
type Chain struct {
	steps []Transformation
}

// Compose builds a Chain from the given transformations in order.
// Chain operands are flattened into the result. Panics when called with no
// transformations; a Chain is never empty.
func Compose(transformations ...Transformation) *Chain {
	if len(transformations) == 0 {
		panic("Compose requires at least one transformation")
	}
	return &Chain{steps: flattenInto(make([]Transformation, 0, len(transformations)), transformations)}
}

// flattenInto appends transformations to dst, splicing Chain operands into
// their constituent steps. Chains are flat by construction, so one level of
// splicing suffices.
func flattenInto(dst []Transformation, transformations []Transformation) []Transformation {
	for _, t := range transformations {
		if chain, ok := t.(*Chain); ok {
			dst = append(dst, chain.steps...)
			continue
		}
		dst = append(dst, t)
	}
	return dst
}

// Then returns a new Chain with the given transformations appended,
// flattening Chain operands. The receiver is not modified.
func (c *Chain) Then(next ...Transformation) *Chain {
	steps := make([]Transformation, 0, len(c.steps)+len(next))
	steps = append(steps, c.steps...)
	return &Chain{steps: flattenInto(steps, next)}
}

// Apply implements the Transformation interface. Steps run in order with
// each output feeding the next input; the first failure is returned as-is.
func (c *Chain) Apply(ctx context.Context, value cty.Value, scope *Scope) (result cty.Value, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	defer recoverFromPanic(&result, &err, ChainName, value)

	current := value
	for _, s := range c.steps {
		current, err = s.Apply(ctx, current, scope)
		if err != nil {
			return cty.NilVal, err
		}
	}
	return current, nil
}

// Name implements the Transformation interface.
func (c *Chain) Name() Name {
	return ChainName
}

// Len returns the number of steps in the chain.
func (c *Chain) Len() int {
	return len(c.steps)
}

// Names returns the names of the steps in order.
func (c *Chain) Names() []Name {
	names := make([]Name, len(c.steps))
	for i, s := range c.steps {
		names[i] = s.Name()
	}
	return names
}

// Steps returns a copy of the step sequence.
func (c *Chain) Steps() []Transformation {
	steps := make([]Transformation, len(c.steps))
	copy(steps, c.steps)
	return steps
}

// children exposes the step sequence for schema validation walks.
func (c *Chain) children() []Transformation {
	return c.steps
}
