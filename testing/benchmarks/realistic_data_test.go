package benchmarks

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/zclconf/go-cty/cty"
	"github.com/zoobzio/wranglz"
	wranglztesting "github.com/zoobzio/wranglz/testing"
)

// Customer, LineItem, and Order form a realistic construction graph: a
// nested instance, a constructed list, and a computed field.
type Customer struct {
	ID    string
	Email string
	Tier  string
}

type LineItem struct {
	SKU      string
	Quantity int
	Price    float64
}

type Order struct {
	Number   string
	Customer Customer
	Lines    []LineItem
	Total    float64
}

func orderBenchSchema() *wranglz.Schema {
	schema := wranglz.NewSchema()
	wranglz.MustRegister[Customer](schema, wranglz.Fields{
		"ID":    wranglz.Compose(wranglz.Get("id"), wranglz.Cast(cty.String)),
		"Email": wranglz.Compose(wranglz.Get("email"), wranglz.Cast(cty.String)),
		"Tier":  wranglz.Compose(wranglz.GetOr("tier", cty.StringVal("standard")), wranglz.Cast(cty.String)),
	})
	wranglz.MustRegister[LineItem](schema, wranglz.Fields{
		"SKU":      wranglz.Compose(wranglz.Get("sku"), wranglz.Cast(cty.String)),
		"Quantity": wranglz.Compose(wranglz.Get("qty"), wranglz.Cast(cty.Number)),
		"Price":    wranglz.Compose(wranglz.Get("price"), wranglz.Cast(cty.Number)),
	})
	total := wranglz.Func("total", func(_ context.Context, v cty.Value) (cty.Value, error) {
		sum := 0.0
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			qty, _ := elem.GetAttr("qty").AsBigFloat().Float64()
			price, _ := elem.GetAttr("price").AsBigFloat().Float64()
			sum += qty * price
		}
		return cty.NumberFloatVal(sum), nil
	})
	wranglz.MustRegister[Order](schema, wranglz.Fields{
		"Number":   wranglz.Compose(wranglz.Get("number"), wranglz.Cast(cty.String)),
		"Customer": wranglz.Compose(wranglz.Get("customer"), wranglz.Into[Customer]()),
		"Lines":    wranglz.Compose(wranglz.Get("lines"), wranglz.EachInto[LineItem]()),
		"Total":    wranglz.Compose(wranglz.Get("lines"), total),
	})
	return schema
}

func orderBenchRecord(lines int) cty.Value {
	items := make([]any, lines)
	for i := range items {
		items[i] = map[string]any{
			"sku":   fmt.Sprintf("PROD-%03d", i),
			"qty":   i%10 + 1,
			"price": float64(i)*1.5 + 9.99,
		}
	}
	return wranglztesting.Record(map[string]any{
		"number": "ORD-2024-001",
		"customer": map[string]any{
			"id":    "cust-12345",
			"email": "buyer@example.com",
			"tier":  "gold",
		},
		"lines": items,
	})
}

// BenchmarkRealisticConstruction compares a trivial flat target against the
// full order graph at growing record sizes.
func BenchmarkRealisticConstruction(b *testing.B) {
	ctx := context.Background()

	b.Run("Flat_Point_Baseline", func(b *testing.B) {
		pipeline, err := wranglz.NewPipeline("realistic-baseline", pointSchema())
		if err != nil {
			b.Fatal(err)
		}
		defer pipeline.Close()
		raw := wranglztesting.Record(map[string]any{"x": 1.5, "y": 2.5})
		b.ResetTimer()
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			point, err := wranglz.Create[Point](ctx, pipeline, raw)
			if err != nil {
				b.Fatal(err)
			}
			_ = point
		}
	})

	sizes := []struct {
		name  string
		lines int
	}{
		{name: "Order_One_Line", lines: 1},
		{name: "Order_Ten_Lines", lines: 10},
		{name: "Order_Hundred_Lines", lines: 100},
	}
	for _, size := range sizes {
		b.Run(size.name, func(b *testing.B) {
			pipeline, err := wranglz.NewPipeline("realistic-order", orderBenchSchema())
			if err != nil {
				b.Fatal(err)
			}
			defer pipeline.Close()
			raw := orderBenchRecord(size.lines)
			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				order, err := wranglz.Create[Order](ctx, pipeline, raw)
				if err != nil {
					b.Fatal(err)
				}
				_ = order
			}
		})
	}

	b.Run("Order_Feed_Ten_Elements", func(b *testing.B) {
		pipeline, err := wranglz.NewPipeline("realistic-feed", orderBenchSchema())
		if err != nil {
			b.Fatal(err)
		}
		defer pipeline.Close()
		elements := make([]any, 10)
		for i := range elements {
			elements[i] = orderBenchRecord(3)
		}
		feed := wranglztesting.List(elements...)
		b.ResetTimer()
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			for order, err := range wranglz.CreateMultiple[Order](ctx, pipeline, feed) {
				if err != nil {
					b.Fatal(err)
				}
				_ = order
			}
		}
	})
}

// BenchmarkRecordShapes measures how raw record shape affects field chains.
func BenchmarkRecordShapes(b *testing.B) {
	ctx := context.Background()

	b.Run("Wide_Record_Narrow_Schema", func(b *testing.B) {
		// Thirty keys in the record, two in the schema.
		fields := make(map[string]any, 30)
		for i := 0; i < 28; i++ {
			fields[fmt.Sprintf("noise_%02d", i)] = i
		}
		fields["x"] = 1.5
		fields["y"] = 2.5
		raw := wranglztesting.Record(fields)

		pipeline, err := wranglz.NewPipeline("wide-record", pointSchema())
		if err != nil {
			b.Fatal(err)
		}
		defer pipeline.Close()
		b.ResetTimer()
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			point, err := wranglz.Create[Point](ctx, pipeline, raw)
			if err != nil {
				b.Fatal(err)
			}
			_ = point
		}
	})

	b.Run("Deep_Record_Long_Chain", func(b *testing.B) {
		raw := wranglztesting.Record(map[string]any{
			"a": map[string]any{
				"b": map[string]any{
					"c": map[string]any{
						"d": map[string]any{"x": 1.5, "y": 2.5},
					},
				},
			},
		})

		schema := wranglz.NewSchema()
		dig := func(leaf string) wranglz.Transformation {
			return wranglz.Compose(
				wranglz.Get("a"), wranglz.Get("b"), wranglz.Get("c"), wranglz.Get("d"),
				wranglz.Get(leaf), wranglz.Cast(cty.Number),
			)
		}
		wranglz.MustRegister[Point](schema, wranglz.Fields{
			"X": dig("x"),
			"Y": dig("y"),
		})
		pipeline, err := wranglz.NewPipeline("deep-record", schema)
		if err != nil {
			b.Fatal(err)
		}
		defer pipeline.Close()
		b.ResetTimer()
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			point, err := wranglz.Create[Point](ctx, pipeline, raw)
			if err != nil {
				b.Fatal(err)
			}
			_ = point
		}
	})
}

// BenchmarkErrorFormattingOverhead measures rich error construction and
// message rendering against realistic failing records.
func BenchmarkErrorFormattingOverhead(b *testing.B) {
	ctx := context.Background()

	b.Run("Shallow_Failure", func(b *testing.B) {
		pipeline, err := wranglz.NewPipeline("shallow-failure", pointSchema())
		if err != nil {
			b.Fatal(err)
		}
		defer pipeline.Close()
		raw := wranglztesting.Record(map[string]any{"y": 2.5})
		b.ResetTimer()
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			_, err := wranglz.Create[Point](ctx, pipeline, raw)
			if err == nil {
				b.Fatal("expected error")
			}
			_ = err.Error() // Force error string generation
		}
	})

	b.Run("Deep_Failure_Large_Record", func(b *testing.B) {
		pipeline, err := wranglz.NewPipeline("deep-failure", orderBenchSchema())
		if err != nil {
			b.Fatal(err)
		}
		defer pipeline.Close()
		// The last line is missing its price, so the failure carries a
		// path through the list construction.
		items := make([]any, 20)
		for i := range items {
			items[i] = map[string]any{"sku": "ok", "qty": 1, "price": 5.0}
		}
		items[19] = map[string]any{"sku": "broken", "qty": 1}
		raw := wranglztesting.Record(map[string]any{
			"number":   "ORD-FAIL",
			"customer": map[string]any{"id": "c", "email": "c@example.com"},
			"lines":    items,
		})
		var wrapped error = errors.New("placeholder")
		b.ResetTimer()
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			_, err := wranglz.Create[Order](ctx, pipeline, raw)
			if err == nil {
				b.Fatal("expected error")
			}
			wrapped = err
			_ = err.Error() // Force error string generation
		}
		_ = wrapped
	})
}
