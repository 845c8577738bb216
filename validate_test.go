package wranglz

import (
	"errors"
	"strings"
	"testing"

	"github.com/zclconf/go-cty/cty"
)

type vertex struct {
	X float64
	Y float64
}

type edge struct {
	From vertex
	To   vertex
}

type ring struct {
	Next *loop
	Tag  string
}

type loop struct {
	Back *ring
	Tag  string
}

func vertexFields() Fields {
	return Fields{
		"X": Compose(Get("x"), Cast(cty.Number)),
		"Y": Compose(Get("y"), Cast(cty.Number)),
	}
}

func TestValidateTargets(t *testing.T) {
	t.Run("Registered Targets Pass", func(t *testing.T) {
		schema := NewSchema()
		MustRegister[vertex](schema, vertexFields())
		MustRegister[edge](schema, Fields{
			"From": Compose(Get("from"), Into[vertex]()),
			"To":   Compose(Get("to"), Into[vertex]()),
		})

		pipeline, err := NewPipeline("graph", schema)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		pipeline.Close()
	})

	t.Run("Unregistered Target Fails", func(t *testing.T) {
		schema := NewSchema()
		MustRegister[edge](schema, Fields{
			"From": Compose(Get("from"), Into[vertex]()),
			"To":   Compose(Get("to"), Into[vertex]()),
		})

		_, err := NewPipeline("graph", schema)
		var schemaErr *SchemaError
		if !errors.As(err, &schemaErr) {
			t.Fatalf("expected SchemaError, got %v", err)
		}
		if schemaErr.TypeName != "edge" {
			t.Errorf("expected owning type edge, got %q", schemaErr.TypeName)
		}
		if !strings.Contains(schemaErr.Error(), "vertex is not registered") {
			t.Errorf("expected target name in message, got %v", schemaErr)
		}
	})

	t.Run("Targets Found Inside Composites", func(t *testing.T) {
		schema := NewSchema()
		// The Into step hides inside If, Fallback, and ForEach layers.
		buried := Compose(
			Get("items"),
			ForEach(Fallback(
				If(cty.Value.IsNull, Constant(cty.EmptyObjectVal), nil),
				Into[vertex](),
			)),
		)
		MustRegister[edge](schema, Fields{
			"From": buried,
			"To":   Compose(Get("to"), Into[vertex]()),
		})

		_, err := NewPipeline("graph", schema)
		var schemaErr *SchemaError
		if !errors.As(err, &schemaErr) {
			t.Fatalf("expected SchemaError for buried target, got %v", err)
		}
	})

	t.Run("EachInto Target Checked", func(t *testing.T) {
		type polygon struct {
			Vertices []vertex
		}

		schema := NewSchema()
		MustRegister[polygon](schema, Fields{
			"Vertices": Compose(Get("vertices"), EachInto[vertex]()),
		})

		_, err := NewPipeline("graph", schema)
		var schemaErr *SchemaError
		if !errors.As(err, &schemaErr) {
			t.Fatalf("expected SchemaError, got %v", err)
		}
	})
}

func TestValidateCycles(t *testing.T) {
	t.Run("Two Node Cycle", func(t *testing.T) {
		schema := NewSchema()
		MustRegister[ring](schema, Fields{
			"Next": Compose(Get("next"), Into[loop]()),
			"Tag":  Compose(Get("tag"), Cast(cty.String)),
		})
		MustRegister[loop](schema, Fields{
			"Back": Compose(Get("back"), Into[ring]()),
			"Tag":  Compose(Get("tag"), Cast(cty.String)),
		})

		_, err := NewPipeline("cyclic", schema)
		var schemaErr *SchemaError
		if !errors.As(err, &schemaErr) {
			t.Fatalf("expected SchemaError, got %v", err)
		}
		if !strings.Contains(schemaErr.Error(), "cyclic type graph") {
			t.Errorf("expected cycle message, got %v", schemaErr)
		}
	})

	t.Run("Self Cycle", func(t *testing.T) {
		type node struct {
			Child *node
		}

		schema := NewSchema()
		MustRegister[node](schema, Fields{
			"Child": Compose(Get("child"), Into[node]()),
		})

		_, err := NewPipeline("self", schema)
		var schemaErr *SchemaError
		if !errors.As(err, &schemaErr) {
			t.Fatalf("expected SchemaError, got %v", err)
		}
		if !strings.Contains(schemaErr.Error(), "cyclic") {
			t.Errorf("expected cycle message, got %v", schemaErr)
		}
	})

	t.Run("Diamond DAG Passes", func(t *testing.T) {
		type leaf struct {
			V int
		}
		type left struct {
			L leaf
		}
		type right struct {
			L leaf
		}
		type top struct {
			A left
			B right
		}

		schema := NewSchema()
		MustRegister[leaf](schema, Fields{"V": Compose(Get("v"), Cast(cty.Number))})
		MustRegister[left](schema, Fields{"L": Compose(Get("l"), Into[leaf]())})
		MustRegister[right](schema, Fields{"L": Compose(Get("l"), Into[leaf]())})
		MustRegister[top](schema, Fields{
			"A": Compose(Get("a"), Into[left]()),
			"B": Compose(Get("b"), Into[right]()),
		})

		pipeline, err := NewPipeline("diamond", schema)
		if err != nil {
			t.Fatalf("expected a diamond to validate, got %v", err)
		}
		pipeline.Close()
	})
}
