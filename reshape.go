package wranglz

import (
	"context"
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"
)

// Gather creates a Step that projects a mapping input down to the named
// keys, returning an object with exactly those attributes. Any absent key
// fails with MissingKeyError.
//
// Example:
//
//	coords := wranglz.Gather("x", "y")
func Gather(keys ...string) Step {
	return step("gather", func(_ context.Context, value cty.Value, _ *Scope) (cty.Value, error) {
		attrs := make(map[string]cty.Value, len(keys))
		for _, key := range keys {
			v, err := lookupKey(value, key)
			if err != nil {
				return cty.NilVal, err
			}
			attrs[key] = v
		}
		return objectOf(attrs), nil
	})
}

// Keys creates a Step that returns the keys of a mapping input as a list
// of strings in lexical order.
func Keys() Step {
	return step("keys", func(_ context.Context, value cty.Value, _ *Scope) (cty.Value, error) {
		keys, _, err := mappingEntries(value)
		if err != nil {
			return cty.NilVal, err
		}
		if len(keys) == 0 {
			return cty.ListValEmpty(cty.String), nil
		}
		out := make([]cty.Value, len(keys))
		for i, key := range keys {
			out[i] = cty.StringVal(key)
		}
		return cty.ListVal(out), nil
	})
}

// Values creates a Step that returns the values of a mapping input as a
// tuple, ordered by their keys lexically.
func Values() Step {
	return step("values", func(_ context.Context, value cty.Value, _ *Scope) (cty.Value, error) {
		keys, entries, err := mappingEntries(value)
		if err != nil {
			return cty.NilVal, err
		}
		out := make([]cty.Value, len(keys))
		for i, key := range keys {
			out[i] = entries[key]
		}
		return tupleOf(out), nil
	})
}

// FoldInKeys creates a Step that turns a mapping of mappings into a
// sequence of objects, each inner mapping extended with its outer key under
// name. Keys already present in an inner mapping win over the folded one.
//
//	{"a": {"v": 1}, "b": {"v": 2}}  --FoldInKeys("id")-->
//	[{"id": "a", "v": 1}, {"id": "b", "v": 2}]
func FoldInKeys(name string) Step {
	return step("fold_in_keys", func(_ context.Context, value cty.Value, _ *Scope) (cty.Value, error) {
		keys, entries, err := mappingEntries(value)
		if err != nil {
			return cty.NilVal, err
		}
		out := make([]cty.Value, 0, len(keys))
		for _, key := range keys {
			_, inner, ierr := mappingEntries(entries[key])
			if ierr != nil {
				return cty.NilVal, fmt.Errorf("entry %q: %w", key, ierr)
			}
			merged := make(map[string]cty.Value, len(inner)+1)
			merged[name] = cty.StringVal(key)
			for ik, iv := range inner {
				merged[ik] = iv
			}
			out = append(out, objectOf(merged))
		}
		return tupleOf(out), nil
	})
}

// FoldInValue creates a Step that extracts key's value from a mapping and
// folds it into every remaining inner mapping under name, dropping the
// extracted entry from the result. Keys already present in an inner mapping
// win over the folded one.
//
//	{"unit": "m", "a": {"v": 1}}  --FoldInValue("unit", "unit")-->
//	{"a": {"unit": "m", "v": 1}}
func FoldInValue(key, name string) Step {
	return step("fold_in_value", func(_ context.Context, value cty.Value, _ *Scope) (cty.Value, error) {
		keys, entries, err := mappingEntries(value)
		if err != nil {
			return cty.NilVal, err
		}
		folded, ok := entries[key]
		if !ok {
			return cty.NilVal, &MissingKeyError{Key: key}
		}
		attrs := make(map[string]cty.Value, len(keys))
		for _, k := range keys {
			if k == key {
				continue
			}
			_, inner, ierr := mappingEntries(entries[k])
			if ierr != nil {
				return cty.NilVal, fmt.Errorf("entry %q: %w", k, ierr)
			}
			merged := make(map[string]cty.Value, len(inner)+1)
			merged[name] = folded
			for ik, iv := range inner {
				merged[ik] = iv
			}
			attrs[k] = objectOf(merged)
		}
		return objectOf(attrs), nil
	})
}

// mappingEntries returns the keys of an object or map value in lexical
// order along with a key-to-value index.
func mappingEntries(value cty.Value) ([]string, map[string]cty.Value, error) {
	if value.IsNull() {
		return nil, nil, fmt.Errorf("cannot read entries of null value")
	}
	ty := value.Type()
	switch {
	case ty.IsObjectType():
		attrTypes := ty.AttributeTypes()
		keys := make([]string, 0, len(attrTypes))
		for name := range attrTypes {
			keys = append(keys, name)
		}
		sort.Strings(keys)
		entries := make(map[string]cty.Value, len(keys))
		for _, name := range keys {
			entries[name] = value.GetAttr(name)
		}
		return keys, entries, nil
	case ty.IsMapType():
		keys := make([]string, 0, value.LengthInt())
		entries := make(map[string]cty.Value, value.LengthInt())
		for it := value.ElementIterator(); it.Next(); {
			k, v := it.Element()
			keys = append(keys, k.AsString())
			entries[k.AsString()] = v
		}
		return keys, entries, nil
	default:
		return nil, nil, fmt.Errorf("cannot read entries of %s value", ty.FriendlyName())
	}
}

// objectOf wraps attributes into an object value, tolerating the empty
// case.
func objectOf(attrs map[string]cty.Value) cty.Value {
	if len(attrs) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(attrs)
}
