package wranglz

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/zclconf/go-cty/cty"
)

type coordinate struct {
	X int
	Y int
}

type taggedRecord struct {
	ID     string `wranglz:"identifier"`
	Hidden string `wranglz:"-"`
	Label  string
}

type caseyRecord struct {
	Username string
	Email    string
}

func numberField(key string) Transformation {
	return Compose(Get(key), Cast(cty.Number))
}

func stringField(key string) Transformation {
	return Compose(Get(key), Cast(cty.String))
}

func TestRegister(t *testing.T) {
	t.Run("Valid Declaration", func(t *testing.T) {
		schema := NewSchema()
		err := Register[coordinate](schema, Fields{
			"X": numberField("x"),
			"Y": numberField("y"),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if schema.Len() != 1 {
			t.Errorf("expected 1 registered type, got %d", schema.Len())
		}
	})

	t.Run("Tag Resolution", func(t *testing.T) {
		schema := NewSchema()
		err := Register[taggedRecord](schema, Fields{
			"identifier": stringField("id"),
			"Label":      stringField("label"),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("Skipped Tag Is Not Addressable", func(t *testing.T) {
		schema := NewSchema()
		err := Register[taggedRecord](schema, Fields{
			"-": stringField("hidden"),
		})
		var schemaErr *SchemaError
		if !errors.As(err, &schemaErr) {
			t.Fatalf("expected SchemaError, got %v", err)
		}
	})

	t.Run("Case Insensitive Resolution", func(t *testing.T) {
		schema := NewSchema()
		err := Register[caseyRecord](schema, Fields{
			"username": stringField("username"),
			"email":    stringField("email"),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("Unknown Field", func(t *testing.T) {
		schema := NewSchema()
		err := Register[coordinate](schema, Fields{
			"Z": numberField("z"),
		})
		var schemaErr *SchemaError
		if !errors.As(err, &schemaErr) {
			t.Fatalf("expected SchemaError, got %v", err)
		}
		if schemaErr.TypeName != "coordinate" || schemaErr.Field != "Z" {
			t.Errorf("expected type/field in error, got %v", schemaErr)
		}
	})

	t.Run("Clashing Declarations", func(t *testing.T) {
		schema := NewSchema()
		// Both names resolve to the struct field X.
		err := Register[coordinate](schema, Fields{
			"X": numberField("x"),
			"x": numberField("x2"),
		})
		var schemaErr *SchemaError
		if !errors.As(err, &schemaErr) {
			t.Fatalf("expected SchemaError, got %v", err)
		}
		if !strings.Contains(schemaErr.Error(), "already claimed") {
			t.Errorf("expected claim clash message, got %v", schemaErr)
		}
	})

	t.Run("Nil Transformation", func(t *testing.T) {
		schema := NewSchema()
		err := Register[coordinate](schema, Fields{
			"X": nil,
		})
		var schemaErr *SchemaError
		if !errors.As(err, &schemaErr) {
			t.Fatalf("expected SchemaError, got %v", err)
		}
	})

	t.Run("Empty Fields", func(t *testing.T) {
		schema := NewSchema()
		err := Register[coordinate](schema, Fields{})
		var schemaErr *SchemaError
		if !errors.As(err, &schemaErr) {
			t.Fatalf("expected SchemaError, got %v", err)
		}
	})

	t.Run("Non Struct Target", func(t *testing.T) {
		schema := NewSchema()
		err := Register[int](schema, Fields{"X": numberField("x")})
		var schemaErr *SchemaError
		if !errors.As(err, &schemaErr) {
			t.Fatalf("expected SchemaError, got %v", err)
		}
		if !strings.Contains(schemaErr.Error(), "struct") {
			t.Errorf("expected struct requirement in message, got %v", schemaErr)
		}
	})

	t.Run("Duplicate Registration", func(t *testing.T) {
		schema := NewSchema()
		fields := Fields{"X": numberField("x"), "Y": numberField("y")}
		if err := Register[coordinate](schema, fields); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		err := Register[coordinate](schema, fields)
		var schemaErr *SchemaError
		if !errors.As(err, &schemaErr) {
			t.Fatalf("expected SchemaError, got %v", err)
		}
		if !strings.Contains(schemaErr.Error(), "already registered") {
			t.Errorf("expected duplicate message, got %v", schemaErr)
		}
	})

	t.Run("Frozen Schema", func(t *testing.T) {
		schema := NewSchema()
		MustRegister[coordinate](schema, Fields{"X": numberField("x"), "Y": numberField("y")})

		pipeline, err := NewPipeline("freeze-test", schema)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer pipeline.Close()

		err = Register[caseyRecord](schema, Fields{"Username": stringField("u"), "Email": stringField("e")})
		var schemaErr *SchemaError
		if !errors.As(err, &schemaErr) {
			t.Fatalf("expected SchemaError after freeze, got %v", err)
		}
		if !strings.Contains(schemaErr.Error(), "frozen") {
			t.Errorf("expected frozen message, got %v", schemaErr)
		}
	})
}

func TestMustRegister(t *testing.T) {
	t.Run("Passes Through Valid Declarations", func(t *testing.T) {
		schema := NewSchema()
		MustRegister[coordinate](schema, Fields{"X": numberField("x"), "Y": numberField("y")})
		if schema.Len() != 1 {
			t.Errorf("expected 1 registered type, got %d", schema.Len())
		}
	})

	t.Run("Panics On Error", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected panic for invalid declaration")
			}
		}()
		schema := NewSchema()
		MustRegister[coordinate](schema, Fields{"Z": numberField("z")})
	})
}

func TestSchemaIntrospection(t *testing.T) {
	schema := NewSchema()
	MustRegister[coordinate](schema, Fields{"X": numberField("x"), "Y": numberField("y")})
	MustRegister[caseyRecord](schema, Fields{"Username": stringField("u"), "Email": stringField("e")})

	t.Run("Types Are Sorted", func(t *testing.T) {
		want := []string{"caseyRecord", "coordinate"}
		if !reflect.DeepEqual(schema.Types(), want) {
			t.Errorf("expected %v, got %v", want, schema.Types())
		}
	})

	t.Run("Lookup Unknown Type", func(t *testing.T) {
		_, err := schema.lookup(reflect.TypeFor[taggedRecord]())
		var unknown *UnknownTypeError
		if !errors.As(err, &unknown) {
			t.Fatalf("expected UnknownTypeError, got %v", err)
		}
		if unknown.TypeName != "taggedRecord" {
			t.Errorf("expected type name in error, got %q", unknown.TypeName)
		}
	})

	t.Run("Blueprint Accessors", func(t *testing.T) {
		bp, err := schema.lookup(reflect.TypeFor[coordinate]())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if bp.TypeName() != "coordinate" {
			t.Errorf("expected coordinate, got %q", bp.TypeName())
		}
		if bp.Type() != reflect.TypeFor[coordinate]() {
			t.Errorf("unexpected Go type %v", bp.Type())
		}
		if !bp.CapsuleType().IsCapsuleType() {
			t.Error("expected a capsule type")
		}
		if !reflect.DeepEqual(bp.FieldNames(), []string{"X", "Y"}) {
			t.Errorf("expected sorted field names, got %v", bp.FieldNames())
		}
	})
}
