package wranglz

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/zclconf/go-cty/cty"
)

// Fields maps declared field names to the transformation that produces each
// field's value. Every chain receives the whole raw record; fields select
// their slice of it with Get and friends.
type Fields map[string]Transformation

// Schema is the registry of per-type construction declarations. Types are
// added with Register or MustRegister while the schema is open; NewPipeline
// freezes it, after which registration fails and the registry never changes
// again.
//
// A Schema is safe for concurrent use.
type Schema struct {
	blueprints map[reflect.Type]*Blueprint
	mu         sync.RWMutex
	frozen     bool
}

// NewSchema creates an empty, open Schema.
func NewSchema() *Schema {
	return &Schema{
		blueprints: make(map[reflect.Type]*Blueprint),
	}
}

// Register declares how to construct T: one transformation per field.
// Declared names resolve to struct fields through the `wranglz` tag first,
// then exact name match, then unique case-insensitive match. Registration
// fails with a SchemaError when T is not a struct type, a declared name
// resolves to no field or to a field another declaration already claimed,
// a transformation is nil, T is already registered, or the schema is
// frozen.
//
//	type Point struct {
//	    X int `wranglz:"x"`
//	    Y int `wranglz:"y"`
//	}
//
//	err := wranglz.Register[Point](schema, wranglz.Fields{
//	    "x": wranglz.Compose(wranglz.Get("x"), wranglz.Cast(cty.Number)),
//	    "y": wranglz.Compose(wranglz.Get("y"), wranglz.Cast(cty.Number)),
//	})
func Register[T any](s *Schema, fields Fields) error {
	goType := reflect.TypeFor[T]()
	name := typeLabel(goType)
	if goType.Kind() != reflect.Struct {
		return &SchemaError{TypeName: name, Reason: errors.New("target must be a struct type")}
	}
	if len(fields) == 0 {
		return &SchemaError{TypeName: name, Reason: errors.New("at least one field must be declared")}
	}

	declared := make([]string, 0, len(fields))
	for fieldName := range fields {
		declared = append(declared, fieldName)
	}
	sort.Strings(declared)

	plans := make([]fieldPlan, 0, len(declared))
	claimed := make(map[string]string, len(declared))
	for _, fieldName := range declared {
		chain := fields[fieldName]
		if chain == nil {
			return &SchemaError{TypeName: name, Field: fieldName, Reason: errors.New("nil transformation")}
		}
		structField, ok := resolveField(goType, fieldName)
		if !ok {
			return &SchemaError{TypeName: name, Field: fieldName, Reason: errors.New("no matching struct field")}
		}
		if prev, clash := claimed[structField.Name]; clash {
			return &SchemaError{
				TypeName: name,
				Field:    fieldName,
				Reason:   fmt.Errorf("resolves to struct field %s already claimed by %q", structField.Name, prev),
			}
		}
		claimed[structField.Name] = fieldName
		plans = append(plans, fieldPlan{declared: fieldName, index: structField.Index, chain: chain})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return &SchemaError{TypeName: name, Reason: errors.New("schema is frozen")}
	}
	if _, exists := s.blueprints[goType]; exists {
		return &SchemaError{TypeName: name, Reason: errors.New("type already registered")}
	}
	s.blueprints[goType] = &Blueprint{
		name:    name,
		goType:  goType,
		capsule: cty.Capsule(name, goType),
		fields:  plans,
	}
	return nil
}

// MustRegister is Register that panics on error. Use it in package setup
// where a declaration problem is a programming error.
func MustRegister[T any](s *Schema, fields Fields) {
	if err := Register[T](s, fields); err != nil {
		panic(err)
	}
}

// lookup returns the blueprint for goType, or UnknownTypeError when the
// type was never registered.
func (s *Schema) lookup(goType reflect.Type) (*Blueprint, error) {
	s.mu.RLock()
	bp, ok := s.blueprints[goType]
	s.mu.RUnlock()
	if !ok {
		return nil, &UnknownTypeError{TypeName: typeLabel(goType)}
	}
	return bp, nil
}

// freeze marks the schema read-only. Called by NewPipeline; freezing twice
// is harmless.
func (s *Schema) freeze() {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
}

// snapshot returns the registered blueprints ordered by type name.
func (s *Schema) snapshot() []*Blueprint {
	s.mu.RLock()
	out := make([]*Blueprint, 0, len(s.blueprints))
	for _, bp := range s.blueprints {
		out = append(out, bp)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Len returns the number of registered types.
func (s *Schema) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blueprints)
}

// Types returns the names of registered types in lexical order.
func (s *Schema) Types() []string {
	blueprints := s.snapshot()
	out := make([]string, len(blueprints))
	for i, bp := range blueprints {
		out[i] = bp.name
	}
	return out
}

// Blueprint is the frozen construction plan for one registered type: the
// struct type, the capsule type that carries constructed instances through
// chains, and the field plans in declared-name order.
type Blueprint struct {
	goType  reflect.Type
	capsule cty.Type
	name    string
	fields  []fieldPlan
}

// fieldPlan pairs a declared field name with the struct field it resolved
// to and the chain that produces its value.
type fieldPlan struct {
	chain    Transformation
	declared string
	index    []int
}

// TypeName returns the registered name of the blueprint's type.
func (b *Blueprint) TypeName() string {
	return b.name
}

// Type returns the Go struct type this blueprint constructs.
func (b *Blueprint) Type() reflect.Type {
	return b.goType
}

// CapsuleType returns the cty capsule type that carries constructed
// instances. Custom steps can use it to produce or recognize instances of
// the registered type.
func (b *Blueprint) CapsuleType() cty.Type {
	return b.capsule
}

// FieldNames returns the declared field names in evaluation order.
func (b *Blueprint) FieldNames() []string {
	out := make([]string, len(b.fields))
	for i, f := range b.fields {
		out[i] = f.declared
	}
	return out
}

// resolveField maps a declared name onto an exported struct field: tag
// match first, then exact name, then unique case-insensitive name.
func resolveField(goType reflect.Type, declared string) (reflect.StructField, bool) {
	for i := 0; i < goType.NumField(); i++ {
		field := goType.Field(i)
		if !field.IsExported() {
			continue
		}
		tag, ok := field.Tag.Lookup("wranglz")
		if !ok {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			continue
		}
		if name == declared {
			return field, true
		}
	}

	if field, ok := goType.FieldByName(declared); ok && field.IsExported() {
		return field, true
	}

	var match reflect.StructField
	count := 0
	for i := 0; i < goType.NumField(); i++ {
		field := goType.Field(i)
		if !field.IsExported() {
			continue
		}
		if strings.EqualFold(field.Name, declared) {
			match = field
			count++
		}
	}
	if count == 1 {
		return match, true
	}
	return reflect.StructField{}, false
}

// typeLabel returns the diagnostic name for a target type.
func typeLabel(goType reflect.Type) string {
	if goType.Name() != "" {
		return goType.Name()
	}
	return goType.String()
}
