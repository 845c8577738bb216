package wranglz

import (
	"reflect"

	"github.com/zclconf/go-cty/cty"
)

// Scope is the construction context for a single create call. It carries
// the owning Pipeline, the Blueprint being constructed, the raw source
// record, and the chain of parent scopes for nested constructions.
//
// A fresh Scope is created per create call and per nested Create step;
// scopes are never shared across concurrent constructions, and sibling
// fields never observe each other's nested scopes. Transformations receive
// the scope by pointer and must treat it as read-only.
//
// All accessors are nil-safe so transformations can be applied standalone
// with a nil scope; only the construction steps require a real one.
type Scope struct {
	pipeline *Pipeline
	target   *Blueprint
	source   cty.Value
	parent   *Scope
	depth    int
}

// newScope derives the scope for a construction of target from source.
// parent is nil for top-level calls.
func (p *Pipeline) newScope(parent *Scope, target *Blueprint, source cty.Value) *Scope {
	depth := 0
	if parent != nil {
		depth = parent.depth + 1
	}
	return &Scope{
		pipeline: p,
		target:   target,
		source:   source,
		parent:   parent,
		depth:    depth,
	}
}

// Pipeline returns the Pipeline that owns this construction.
func (s *Scope) Pipeline() *Pipeline {
	if s == nil {
		return nil
	}
	return s.pipeline
}

// Target returns the Go type currently under construction.
func (s *Scope) Target() reflect.Type {
	if s == nil || s.target == nil {
		return nil
	}
	return s.target.goType
}

// TypeName returns the name of the type currently under construction.
func (s *Scope) TypeName() string {
	if s == nil || s.target == nil {
		return ""
	}
	return s.target.name
}

// Source returns the raw record this construction started from.
func (s *Scope) Source() cty.Value {
	if s == nil {
		return cty.NilVal
	}
	return s.source
}

// Parent returns the scope of the enclosing construction, or nil at the
// top level.
func (s *Scope) Parent() *Scope {
	if s == nil {
		return nil
	}
	return s.parent
}

// Depth returns how many constructions enclose this one. Top-level calls
// have depth zero.
func (s *Scope) Depth() int {
	if s == nil {
		return 0
	}
	return s.depth
}
