package wranglz

import (
	"fmt"
	"reflect"
	"strings"
)

// walkable lets composite transformations expose their nested
// transformations to schema validation.
type walkable interface {
	children() []Transformation
}

// creator marks construction steps with the type they construct.
type creator interface {
	creates() reflect.Type
}

// validate checks the frozen schema before a Pipeline accepts it: every
// construction step's target must be registered, and the graph of
// who-constructs-whom must be acyclic. Both violations are configuration
// errors; construction never starts on an invalid schema.
func (s *Schema) validate() error {
	blueprints := s.snapshot()

	edges := make(map[reflect.Type][]reflect.Type, len(blueprints))
	registered := make(map[reflect.Type]bool, len(blueprints))
	for _, bp := range blueprints {
		registered[bp.goType] = true
	}

	for _, bp := range blueprints {
		for _, field := range bp.fields {
			for _, target := range createTargets(field.chain) {
				if !registered[target] {
					return &SchemaError{
						TypeName: bp.name,
						Field:    field.declared,
						Reason:   fmt.Errorf("construction target %s is not registered", typeLabel(target)),
					}
				}
				edges[bp.goType] = append(edges[bp.goType], target)
			}
		}
	}

	// Cycle detection over the creates graph, in deterministic order.
	const (
		unvisited = iota
		visiting
		done
	)
	colors := make(map[reflect.Type]int, len(blueprints))

	var visit func(goType reflect.Type, trail []string) error
	visit = func(goType reflect.Type, trail []string) error {
		switch colors[goType] {
		case visiting:
			cycle := append(trail, typeLabel(goType))
			return &SchemaError{
				TypeName: typeLabel(goType),
				Reason:   fmt.Errorf("cyclic type graph: %s", strings.Join(cycle, " -> ")),
			}
		case done:
			return nil
		}
		colors[goType] = visiting
		for _, next := range edges[goType] {
			if err := visit(next, append(trail, typeLabel(goType))); err != nil {
				return err
			}
		}
		colors[goType] = done
		return nil
	}

	for _, bp := range blueprints {
		if err := visit(bp.goType, nil); err != nil {
			return err
		}
	}
	return nil
}

// createTargets walks a transformation tree and collects the target types
// of every construction step in it. The tree is finite: transformations
// are immutable, so no value can contain itself.
func createTargets(t Transformation) []reflect.Type {
	var out []reflect.Type
	var walk func(Transformation)
	walk = func(t Transformation) {
		if c, ok := t.(creator); ok {
			out = append(out, c.creates())
		}
		if w, ok := t.(walkable); ok {
			for _, child := range w.children() {
				walk(child)
			}
		}
	}
	walk(t)
	return out
}
