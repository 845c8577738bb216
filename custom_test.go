package wranglz

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/zclconf/go-cty/cty"
)

func TestFunc(t *testing.T) {
	t.Run("Applies Function", func(t *testing.T) {
		upper := Func("upper", func(_ context.Context, v cty.Value) (cty.Value, error) {
			return cty.StringVal(strings.ToUpper(v.AsString())), nil
		})

		out, err := upper.Apply(context.Background(), cty.StringVal("ada"), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.AsString() != "ADA" {
			t.Errorf("expected ADA, got %v", out)
		}
	})

	t.Run("Failure Carries Step Name", func(t *testing.T) {
		reject := Func("reject", func(_ context.Context, v cty.Value) (cty.Value, error) {
			return cty.NilVal, fmt.Errorf("value %v not allowed", v)
		})

		_, err := reject.Apply(context.Background(), cty.NumberIntVal(13), nil)
		var engineErr *Error
		if !errors.As(err, &engineErr) {
			t.Fatalf("expected *Error, got %T", err)
		}
		if !reflect.DeepEqual(engineErr.Path, []Name{"reject"}) {
			t.Errorf("expected path [reject], got %v", engineErr.Path)
		}
		if engineErr.InputData.Equals(cty.NumberIntVal(13)).False() {
			t.Errorf("expected failing input to be recorded, got %v", engineErr.InputData)
		}
	})

	t.Run("Panic Recovery", func(t *testing.T) {
		angry := Func("angry", func(_ context.Context, _ cty.Value) (cty.Value, error) {
			panic("no thanks")
		})

		_, err := angry.Apply(context.Background(), cty.NumberIntVal(1), nil)
		if err == nil {
			t.Fatal("expected error from panic")
		}
		if !strings.Contains(err.Error(), "panic occurred: no thanks") {
			t.Errorf("expected sanitized panic message, got %v", err)
		}
	})
}

func TestCustom(t *testing.T) {
	t.Run("Nil Scope Is Tolerated", func(t *testing.T) {
		probe := Custom("probe", func(_ context.Context, v cty.Value, scope *Scope) (cty.Value, error) {
			if scope.Pipeline() != nil {
				return cty.NilVal, errors.New("expected no pipeline")
			}
			return v, nil
		})

		out, err := probe.Apply(context.Background(), cty.StringVal("x"), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.AsString() != "x" {
			t.Errorf("expected input unchanged, got %v", out)
		}
	})

	t.Run("Sees Construction Scope", func(t *testing.T) {
		type Tagged struct {
			Owner string
		}

		schema := NewSchema()
		MustRegister[Tagged](schema, Fields{
			"Owner": Compose(Custom("owner_of", func(_ context.Context, _ cty.Value, scope *Scope) (cty.Value, error) {
				return cty.StringVal(scope.TypeName()), nil
			})),
		})

		pipeline, err := NewPipeline("custom-test", schema)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer pipeline.Close()

		tagged, err := Create[Tagged](context.Background(), pipeline, cty.EmptyObjectVal)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tagged.Owner != "Tagged" {
			t.Errorf("expected scope type name Tagged, got %q", tagged.Owner)
		}
	})
}
