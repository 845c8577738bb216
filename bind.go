package wranglz

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

var (
	// impliedTypeCache stores the cty type implied by a Go type to avoid
	// repeated reflection.
	impliedTypeCache = make(map[reflect.Type]cty.Type)
	// impliedTypeMu protects concurrent access to the implied type cache.
	impliedTypeMu sync.RWMutex
)

// impliedTypeFor returns the cached cty type implied by goType. The result
// is cached after the first call for each unique type. Safe for concurrent
// use.
func impliedTypeFor(goType reflect.Type) (cty.Type, error) {
	impliedTypeMu.RLock()
	if ty, ok := impliedTypeCache[goType]; ok {
		impliedTypeMu.RUnlock()
		return ty, nil
	}
	impliedTypeMu.RUnlock()

	ty, err := gocty.ImpliedType(reflect.Zero(goType).Interface())
	if err != nil {
		return cty.NilType, err
	}

	impliedTypeMu.Lock()
	defer impliedTypeMu.Unlock()

	// Double-check after acquiring write lock
	if cached, ok := impliedTypeCache[goType]; ok {
		return cached, nil
	}
	impliedTypeCache[goType] = ty
	return ty, nil
}

// bind builds a new instance of the blueprint's type from evaluated field
// values and wraps it in the blueprint's capsule. Binding failures surface
// as ConstructorError naming the offending field.
func (b *Blueprint) bind(values map[string]cty.Value) (cty.Value, error) {
	ptr := reflect.New(b.goType)
	elem := ptr.Elem()
	for _, plan := range b.fields {
		v, ok := values[plan.declared]
		if !ok {
			return cty.NilVal, &ConstructorError{
				TypeName: b.name,
				Field:    plan.declared,
				Err:      fmt.Errorf("no value produced"),
			}
		}
		if err := bindValue(elem.FieldByIndex(plan.index), v); err != nil {
			return cty.NilVal, &ConstructorError{TypeName: b.name, Field: plan.declared, Err: err}
		}
	}
	return cty.CapsuleVal(b.capsule, ptr.Interface()), nil
}

// bindValue assigns a cty value onto an addressable struct field or
// element. Capsules unwrap to their instances, sequences and mappings bind
// element-wise, pointer fields allocate, and leaves go through the standard
// conversion into gocty, falling back to a direct decode when no implied
// type exists.
func bindValue(target reflect.Value, v cty.Value) error {
	if v.IsNull() {
		// Null leaves the zero value in place; pointer fields stay nil.
		return nil
	}
	ty := v.Type()

	if ty.IsCapsuleType() {
		instance := reflect.ValueOf(v.EncapsulatedValue())
		switch {
		case instance.Type() == target.Type():
			target.Set(instance)
			return nil
		case instance.Type().Elem() == target.Type():
			target.Set(instance.Elem())
			return nil
		default:
			return fmt.Errorf("cannot assign %s to %s", instance.Type().Elem(), target.Type())
		}
	}

	if target.Kind() == reflect.Slice && (ty.IsListType() || ty.IsTupleType() || ty.IsSetType()) {
		elements, err := sequenceElements(v)
		if err != nil {
			return err
		}
		out := reflect.MakeSlice(target.Type(), len(elements), len(elements))
		for i, elem := range elements {
			if err := bindValue(out.Index(i), elem); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		target.Set(out)
		return nil
	}

	if target.Kind() == reflect.Map && target.Type().Key().Kind() == reflect.String &&
		(ty.IsMapType() || ty.IsObjectType()) {
		keys, entries, err := mappingEntries(v)
		if err != nil {
			return err
		}
		out := reflect.MakeMapWithSize(target.Type(), len(keys))
		for _, key := range keys {
			elem := reflect.New(target.Type().Elem()).Elem()
			if err := bindValue(elem, entries[key]); err != nil {
				return fmt.Errorf("entry %q: %w", key, err)
			}
			out.SetMapIndex(reflect.ValueOf(key).Convert(target.Type().Key()), elem)
		}
		target.Set(out)
		return nil
	}

	if target.Kind() == reflect.Pointer {
		ptr := reflect.New(target.Type().Elem())
		if err := bindValue(ptr.Elem(), v); err != nil {
			return err
		}
		target.Set(ptr)
		return nil
	}

	want, err := impliedTypeFor(target.Type())
	if err != nil {
		// No implied type for this Go type; attempt direct decoding.
		return gocty.FromCtyValue(v, target.Addr().Interface())
	}
	converted, err := convert.Convert(v, want)
	if err != nil {
		return fmt.Errorf("cannot convert %s to required type %s: %w",
			ty.FriendlyName(), want.FriendlyName(), err)
	}
	return gocty.FromCtyValue(converted, target.Addr().Interface())
}

// native downgrades a cty value to a plain Go representation: strings,
// float64 numbers, bools, []any sequences, map[string]any mappings, and
// encapsulated instances as themselves. Used to hand match fields to a
// Finder without exposing cty to it.
func native(v cty.Value) any {
	if v.IsNull() {
		return nil
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString()
	case ty == cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return f
	case ty == cty.Bool:
		return v.True()
	case ty.IsCapsuleType():
		return v.EncapsulatedValue()
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		elements, err := sequenceElements(v)
		if err != nil {
			return nil
		}
		out := make([]any, len(elements))
		for i, elem := range elements {
			out[i] = native(elem)
		}
		return out
	case ty.IsMapType() || ty.IsObjectType():
		keys, entries, err := mappingEntries(v)
		if err != nil {
			return nil
		}
		out := make(map[string]any, len(keys))
		for _, key := range keys {
			out[key] = native(entries[key])
		}
		return out
	default:
		return v
	}
}

// encapsulate wraps an externally supplied instance in the blueprint's
// capsule type. Finders may return either T or *T.
func (b *Blueprint) encapsulate(instance any) (cty.Value, error) {
	if instance == nil {
		return cty.NilVal, fmt.Errorf("finder returned nil instance for %s", b.name)
	}
	rv := reflect.ValueOf(instance)
	switch rv.Type() {
	case reflect.PointerTo(b.goType):
		return cty.CapsuleVal(b.capsule, instance), nil
	case b.goType:
		ptr := reflect.New(b.goType)
		ptr.Elem().Set(rv)
		return cty.CapsuleVal(b.capsule, ptr.Interface()), nil
	default:
		return cty.NilVal, fmt.Errorf("finder returned %T, want %s or *%s", instance, typeLabel(b.goType), typeLabel(b.goType))
	}
}
