package wranglz

import (
	"context"
	"fmt"
	"strconv"

	"github.com/zclconf/go-cty/cty"
)

// Get creates a Step that returns the value at key in a mapping-like input
// (an object or a map). It fails with MissingKeyError when the key is
// absent or the input is null, and with a plain error when the input is not
// a mapping at all.
//
// Get is how field chains select their slice of the raw record: every field
// chain receives the whole record, so most chains start with a Get.
//
// Example:
//
//	first := wranglz.Get("name")
func Get(key string) Step {
	return step("get", func(_ context.Context, value cty.Value, _ *Scope) (cty.Value, error) {
		return lookupKey(value, key)
	})
}

// GetOr creates a Step like Get that yields fallback instead of failing
// when the key cannot be retrieved. GetOr never fails.
//
// Example:
//
//	port := wranglz.GetOr("port", cty.NumberIntVal(8080))
func GetOr(key string, fallback cty.Value) Step {
	return step("get_or", func(_ context.Context, value cty.Value, _ *Scope) (cty.Value, error) {
		out, err := lookupKey(value, key)
		if err != nil {
			return fallback, nil
		}
		return out, nil
	})
}

// At creates a Step that returns the element at index in a sequence-like
// input (a list or a tuple). It fails with MissingKeyError when the index
// is out of range or the input is null.
//
// Example:
//
//	head := wranglz.At(0)
func At(index int) Step {
	return step("at", func(_ context.Context, value cty.Value, _ *Scope) (cty.Value, error) {
		if value.IsNull() {
			return cty.NilVal, &MissingKeyError{Key: strconv.Itoa(index)}
		}
		ty := value.Type()
		if !ty.IsListType() && !ty.IsTupleType() {
			return cty.NilVal, fmt.Errorf("cannot index %s value", ty.FriendlyName())
		}
		if index < 0 || index >= value.LengthInt() {
			return cty.NilVal, &MissingKeyError{Key: strconv.Itoa(index)}
		}
		return value.Index(cty.NumberIntVal(int64(index))), nil
	})
}

// lookupKey retrieves key from an object or map value.
func lookupKey(value cty.Value, key string) (cty.Value, error) {
	if value.IsNull() {
		return cty.NilVal, &MissingKeyError{Key: key}
	}
	ty := value.Type()
	switch {
	case ty.IsObjectType():
		if !ty.HasAttribute(key) {
			return cty.NilVal, &MissingKeyError{Key: key}
		}
		return value.GetAttr(key), nil
	case ty.IsMapType():
		index := cty.StringVal(key)
		if value.HasIndex(index).False() {
			return cty.NilVal, &MissingKeyError{Key: key}
		}
		return value.Index(index), nil
	default:
		return cty.NilVal, fmt.Errorf("cannot get %q from %s value", key, ty.FriendlyName())
	}
}
