package testing

import (
	"context"
	"testing"

	"github.com/zclconf/go-cty/cty"
	"github.com/zoobzio/wranglz"
)

// Simple test to verify the testing infrastructure works.
func TestSimpleInfrastructure(t *testing.T) {
	ctx := context.Background()

	// Test basic transformation
	get := wranglz.Get("n")
	record := Record(map[string]any{"n": 21})

	result, err := get.Apply(ctx, record, nil)
	if err != nil {
		t.Fatalf("transformation failed: %v", err)
	}
	n, _ := result.AsBigFloat().Int64()
	if n != 21 {
		t.Errorf("expected 21, got %d", n)
	}

	// Test simple chain
	chain := wranglz.Compose(
		wranglz.Get("n"),
		wranglz.Cast(cty.String),
	)

	result, err = chain.Apply(ctx, record, nil)
	if err != nil {
		t.Fatalf("chain failed: %v", err)
	}
	if result.AsString() != "21" {
		t.Errorf("expected %q, got %q", "21", result.AsString())
	}
}

func TestHelpers(t *testing.T) {
	ctx := context.Background()

	// Test mock transformation
	mock := NewMockTransformation(t, "mock-test")
	mock.WithReturn(cty.StringVal("mocked"), nil)

	result, err := mock.Apply(ctx, cty.StringVal("input"), nil)
	if err != nil {
		t.Fatalf("mock failed: %v", err)
	}

	if result.AsString() != "mocked" {
		t.Errorf("expected 'mocked', got %q", result.AsString())
	}

	// Test assertions
	AssertApplied(t, mock, 1)
	AssertAppliedWith(t, mock, cty.StringVal("input"))

	// Test chaos transformation with no chaos
	chaos := NewChaosTransformation("chaos", wranglz.Identity(), ChaosConfig{
		FailureRate: 0.0, // No failures
		Seed:        12345,
	})

	result, err = chaos.Apply(ctx, cty.StringVal("test"), nil)
	if err != nil {
		t.Fatalf("chaos transformation failed: %v", err)
	}

	if result.AsString() != "test" {
		t.Errorf("expected 'test', got %q", result.AsString())
	}

	stats := chaos.Stats()
	if stats.TotalCalls != 1 {
		t.Errorf("expected 1 call, got %d", stats.TotalCalls)
	}
}
