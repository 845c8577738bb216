// Package testing provides test utilities and helpers for wranglz-based applications.
//
// This package includes mock transformations, an in-memory Finder, assertion
// helpers, and chaos testing tools to make testing wranglz chains and
// pipelines easier and more comprehensive.
//
// Example usage:
//
//	func TestMyChain(t *testing.T) {
//		mock := testing.NewMockTransformation(t, "lookup")
//		mock.WithReturn(cty.StringVal("resolved"), nil)
//
//		chain := wranglz.Compose(wranglz.Get("id"), mock)
//		result, err := chain.Apply(context.Background(), record, nil)
//
//		require.NoError(t, err)
//		assert.Equal(t, "resolved", result.AsString())
//		testing.AssertApplied(t, mock, 1)
//	}
package testing

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	mathrand "math/rand"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zclconf/go-cty/cty"
	"github.com/zoobzio/wranglz"
)

// MockTransformation provides a configurable mock implementation of
// wranglz.Transformation. It tracks calls, allows configuring return values
// and delays, and provides assertion methods for testing chain behavior.
type MockTransformation struct { //nolint:govet // fieldalignment: Test helper struct optimized for functionality over memory efficiency
	t           *testing.T
	name        string
	callCount   int64
	lastInput   cty.Value
	returnVal   cty.Value
	returnErr   error
	delay       time.Duration
	panicMsg    string
	mu          sync.RWMutex
	callHistory []MockCall
	maxHistory  int
}

// MockCall represents a single call to the mock transformation.
type MockCall struct {
	Input     cty.Value
	Timestamp time.Time
	Context   context.Context
	Scope     *wranglz.Scope
}

// NewMockTransformation creates a new mock transformation for testing.
// The mock tracks all calls and provides configurable behavior; with no
// configured return it passes its input through unchanged.
func NewMockTransformation(t *testing.T, name string) *MockTransformation {
	return &MockTransformation{
		t:          t,
		name:       name,
		returnVal:  cty.NilVal,
		maxHistory: 100, // Keep last 100 calls by default
	}
}

// WithReturn configures the mock to return specific values.
// The mock will return these values for all subsequent calls.
func (m *MockTransformation) WithReturn(val cty.Value, err error) *MockTransformation {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.returnVal = val
	m.returnErr = err
	return m
}

// WithDelay configures the mock to delay execution.
// This is useful for testing timeout behavior and concurrent constructions.
func (m *MockTransformation) WithDelay(d time.Duration) *MockTransformation {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithPanic configures the mock to panic with a specific message.
// This is useful for testing panic recovery in chains.
func (m *MockTransformation) WithPanic(msg string) *MockTransformation {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicMsg = msg
	return m
}

// WithHistorySize configures how many calls to keep in history.
// Set to 0 to disable history tracking.
func (m *MockTransformation) WithHistorySize(size int) *MockTransformation {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxHistory = size
	if size == 0 {
		m.callHistory = nil
	} else if len(m.callHistory) > size {
		// Trim history to new size
		m.callHistory = m.callHistory[len(m.callHistory)-size:]
	}
	return m
}

// Name returns the name of the mock transformation.
func (m *MockTransformation) Name() wranglz.Name {
	return wranglz.Name(m.name)
}

// Apply implements wranglz.Transformation. It records the call and returns
// the configured values, potentially after a delay or panic. A mock with no
// configured return value passes its input through.
func (m *MockTransformation) Apply(ctx context.Context, value cty.Value, scope *wranglz.Scope) (cty.Value, error) {
	// Record the call
	atomic.AddInt64(&m.callCount, 1)

	m.mu.Lock()
	m.lastInput = value
	if m.maxHistory > 0 {
		call := MockCall{
			Input:     value,
			Timestamp: time.Now(),
			Context:   ctx,
			Scope:     scope,
		}
		m.callHistory = append(m.callHistory, call)
		if len(m.callHistory) > m.maxHistory {
			m.callHistory = m.callHistory[1:] // Remove oldest
		}
	}

	// Get configured behavior
	delay := m.delay
	returnVal := m.returnVal
	returnErr := m.returnErr
	panicMsg := m.panicMsg
	m.mu.Unlock()

	// Handle panic
	if panicMsg != "" {
		panic(panicMsg)
	}

	// Handle delay with context cancellation
	if delay > 0 {
		select {
		case <-time.After(delay):
			// Continue
		case <-ctx.Done():
			return value, ctx.Err()
		}
	}

	if returnVal == cty.NilVal && returnErr == nil {
		return value, nil
	}
	return returnVal, returnErr
}

// CallCount returns the number of times Apply has been called.
func (m *MockTransformation) CallCount() int {
	return int(atomic.LoadInt64(&m.callCount))
}

// LastInput returns the input from the most recent call.
func (m *MockTransformation) LastInput() cty.Value {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastInput
}

// CallHistory returns a copy of all recorded calls.
// Returns nil if history tracking is disabled.
func (m *MockTransformation) CallHistory() []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.maxHistory == 0 {
		return nil
	}
	history := make([]MockCall, len(m.callHistory))
	copy(history, m.callHistory)
	return history
}

// Reset clears all call tracking and resets the mock to initial state.
func (m *MockTransformation) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	atomic.StoreInt64(&m.callCount, 0)
	m.lastInput = cty.NilVal
	m.callHistory = nil
}

// Assertion Helpers

// AssertApplied verifies that a mock transformation was called exactly n times.
func AssertApplied(t *testing.T, mock *MockTransformation, expectedCalls int) {
	t.Helper()
	actualCalls := mock.CallCount()
	if actualCalls != expectedCalls {
		t.Errorf("expected mock transformation %s to be applied %d times, but was applied %d times",
			mock.name, expectedCalls, actualCalls)
	}
}

// AssertNotApplied verifies that a mock transformation was never called.
func AssertNotApplied(t *testing.T, mock *MockTransformation) {
	t.Helper()
	AssertApplied(t, mock, 0)
}

// AssertAppliedWith verifies that a mock transformation was last called with
// a specific input value.
func AssertAppliedWith(t *testing.T, mock *MockTransformation, expectedInput cty.Value) {
	t.Helper()
	if mock.CallCount() == 0 {
		t.Errorf("expected mock transformation %s to be applied with input %v, but it was never applied",
			mock.name, expectedInput)
		return
	}

	actualInput := mock.LastInput()
	if !actualInput.RawEquals(expectedInput) {
		t.Errorf("expected mock transformation %s to be applied with input %v, but was applied with %v",
			mock.name, expectedInput, actualInput)
	}
}

// AssertAppliedBetween verifies that a mock transformation was called between
// min and max times.
func AssertAppliedBetween(t *testing.T, mock *MockTransformation, minCalls, maxCalls int) {
	t.Helper()
	actualCalls := mock.CallCount()
	if actualCalls < minCalls || actualCalls > maxCalls {
		t.Errorf("expected mock transformation %s to be applied between %d and %d times, but was applied %d times",
			mock.name, minCalls, maxCalls, actualCalls)
	}
}

// MemoryFinder is an in-memory wranglz.Finder for testing GetOrCreate and
// FindOrInto flows. Instances are stored with the match values that identify
// them; Find returns the first instance whose stored values all equal the
// incoming match set.
type MemoryFinder struct {
	mu      sync.RWMutex
	entries map[string][]memoryEntry
	lookups int64
	hits    int64
}

type memoryEntry struct {
	match    map[string]any
	instance any
}

// NewMemoryFinder creates an empty in-memory finder.
func NewMemoryFinder() *MemoryFinder {
	return &MemoryFinder{
		entries: make(map[string][]memoryEntry),
	}
}

// Add stores an instance under a type name with the match values that
// identify it. Returns the finder for chaining.
func (f *MemoryFinder) Add(typeName string, match map[string]any, instance any) *MemoryFinder {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[typeName] = append(f.entries[typeName], memoryEntry{match: match, instance: instance})
	return f
}

// Find implements wranglz.Finder.
func (f *MemoryFinder) Find(_ context.Context, typeName string, match map[string]any) (any, bool, error) {
	atomic.AddInt64(&f.lookups, 1)
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, entry := range f.entries[typeName] {
		if entryMatches(entry.match, match) {
			atomic.AddInt64(&f.hits, 1)
			return entry.instance, true, nil
		}
	}
	return nil, false, nil
}

// entryMatches reports whether every stored identifying value equals the
// corresponding incoming match value.
func entryMatches(stored, incoming map[string]any) bool {
	for key, want := range stored {
		got, ok := incoming[key]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return len(stored) > 0
}

// Lookups returns how many times Find has been called.
func (f *MemoryFinder) Lookups() int {
	return int(atomic.LoadInt64(&f.lookups))
}

// Hits returns how many lookups found an instance.
func (f *MemoryFinder) Hits() int {
	return int(atomic.LoadInt64(&f.hits))
}

// Reset clears all stored instances and counters.
func (f *MemoryFinder) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = make(map[string][]memoryEntry)
	atomic.StoreInt64(&f.lookups, 0)
	atomic.StoreInt64(&f.hits, 0)
}

// ChaosTransformation introduces controlled failures and delays for chaos
// testing. It wraps another transformation and randomly injects failures
// based on configured rates.
type ChaosTransformation struct { //nolint:govet // fieldalignment: Test helper struct optimized for functionality over memory efficiency
	name         string
	wrapped      wranglz.Transformation
	failureRate  float64
	latencyMin   time.Duration
	latencyMax   time.Duration
	timeoutRate  float64
	panicRate    float64
	rng          *mathrand.Rand
	mu           sync.Mutex
	totalCalls   int64
	failedCalls  int64
	timeoutCalls int64
	panicCalls   int64
}

// ChaosConfig holds configuration for chaos testing.
type ChaosConfig struct {
	FailureRate float64       // Probability of returning an error (0.0 to 1.0)
	LatencyMin  time.Duration // Minimum additional latency to inject
	LatencyMax  time.Duration // Maximum additional latency to inject
	TimeoutRate float64       // Probability of simulating timeout (0.0 to 1.0)
	PanicRate   float64       // Probability of panicking (0.0 to 1.0)
	Seed        int64         // Random seed for reproducible chaos (0 for random seed)
}

// NewChaosTransformation creates a chaos transformation that wraps another
// transformation.
func NewChaosTransformation(name string, wrapped wranglz.Transformation, config ChaosConfig) *ChaosTransformation {
	seed := config.Seed
	if seed == 0 {
		// Use crypto/rand for better randomness
		var seedBytes [8]byte
		if _, err := rand.Read(seedBytes[:]); err != nil {
			// Fallback to time-based seed if crypto/rand fails
			seed = time.Now().UnixNano()
		} else {
			seed = int64(seedBytes[0])<<56 | int64(seedBytes[1])<<48 | int64(seedBytes[2])<<40 | int64(seedBytes[3])<<32 |
				int64(seedBytes[4])<<24 | int64(seedBytes[5])<<16 | int64(seedBytes[6])<<8 | int64(seedBytes[7])
		}
	}

	return &ChaosTransformation{
		name:        name,
		wrapped:     wrapped,
		failureRate: config.FailureRate,
		latencyMin:  config.LatencyMin,
		latencyMax:  config.LatencyMax,
		timeoutRate: config.TimeoutRate,
		panicRate:   config.PanicRate,
		rng:         mathrand.New(mathrand.NewSource(seed)), //nolint:gosec // G404: Test utility uses weak RNG for deterministic chaos scenarios
	}
}

// Name returns the name of the chaos transformation.
func (c *ChaosTransformation) Name() wranglz.Name {
	return wranglz.Name(c.name)
}

// Apply implements wranglz.Transformation with chaos injection.
func (c *ChaosTransformation) Apply(ctx context.Context, value cty.Value, scope *wranglz.Scope) (cty.Value, error) {
	atomic.AddInt64(&c.totalCalls, 1)

	c.mu.Lock()
	// Check for panic injection
	if c.rng.Float64() < c.panicRate {
		c.mu.Unlock()
		atomic.AddInt64(&c.panicCalls, 1)
		panic("chaos transformation induced panic")
	}

	// Add latency if configured
	var latency time.Duration
	if c.latencyMax > c.latencyMin {
		latencyRange := c.latencyMax - c.latencyMin
		latency = c.latencyMin + time.Duration(c.rng.Int63n(int64(latencyRange)))
	} else if c.latencyMin > 0 {
		latency = c.latencyMin
	}

	// Check for timeout simulation
	simulateTimeout := c.rng.Float64() < c.timeoutRate

	// Check for failure injection
	injectFailure := c.rng.Float64() < c.failureRate

	c.mu.Unlock()

	// Apply latency with context cancellation
	if latency > 0 {
		select {
		case <-time.After(latency):
			// Continue
		case <-ctx.Done():
			return value, ctx.Err()
		}
	}

	// Simulate timeout
	if simulateTimeout {
		atomic.AddInt64(&c.timeoutCalls, 1)
		return value, context.DeadlineExceeded
	}

	// Call wrapped transformation
	result, err := c.wrapped.Apply(ctx, value, scope)

	// Inject failure
	if injectFailure && err == nil {
		atomic.AddInt64(&c.failedCalls, 1)
		return value, errors.New("chaos transformation induced failure")
	}

	return result, err
}

// Stats returns statistics about chaos injection.
func (c *ChaosTransformation) Stats() ChaosStats {
	return ChaosStats{
		TotalCalls:   atomic.LoadInt64(&c.totalCalls),
		FailedCalls:  atomic.LoadInt64(&c.failedCalls),
		TimeoutCalls: atomic.LoadInt64(&c.timeoutCalls),
		PanicCalls:   atomic.LoadInt64(&c.panicCalls),
	}
}

// ChaosStats holds statistics about chaos injection.
type ChaosStats struct {
	TotalCalls   int64
	FailedCalls  int64
	TimeoutCalls int64
	PanicCalls   int64
}

// FailureRate returns the actual failure rate observed.
func (s ChaosStats) FailureRate() float64 {
	if s.TotalCalls == 0 {
		return 0
	}
	return float64(s.FailedCalls) / float64(s.TotalCalls)
}

// TimeoutRate returns the actual timeout rate observed.
func (s ChaosStats) TimeoutRate() float64 {
	if s.TotalCalls == 0 {
		return 0
	}
	return float64(s.TimeoutCalls) / float64(s.TotalCalls)
}

// PanicRate returns the actual panic rate observed.
func (s ChaosStats) PanicRate() float64 {
	if s.TotalCalls == 0 {
		return 0
	}
	return float64(s.PanicCalls) / float64(s.TotalCalls)
}

// String returns a human-readable representation of the stats.
func (s ChaosStats) String() string {
	return fmt.Sprintf("ChaosStats{Total: %d, Failed: %d (%.1f%%), Timeouts: %d (%.1f%%), Panics: %d (%.1f%%)}",
		s.TotalCalls, s.FailedCalls, s.FailureRate()*100,
		s.TimeoutCalls, s.TimeoutRate()*100,
		s.PanicCalls, s.PanicRate()*100)
}

// Value Builders

// Record builds a cty object value from plain Go values. Supported leaf
// types are string, bool, int, int64, float64, and cty.Value; maps and
// slices of those nest. Record panics on unsupported types; it is a test
// helper, not a codec.
//
//	raw := testing.Record(map[string]any{
//	    "id":    "ord-1",
//	    "total": 99.5,
//	    "lines": []any{
//	        map[string]any{"sku": "a", "qty": 2},
//	    },
//	})
func Record(fields map[string]any) cty.Value {
	if len(fields) == 0 {
		return cty.EmptyObjectVal
	}
	out := make(map[string]cty.Value, len(fields))
	for key, value := range fields {
		out[key] = valueOf(value)
	}
	return cty.ObjectVal(out)
}

// List builds a cty tuple value from plain Go values, converting each item
// the way Record does.
func List(items ...any) cty.Value {
	if len(items) == 0 {
		return cty.EmptyTupleVal
	}
	out := make([]cty.Value, len(items))
	for i, item := range items {
		out[i] = valueOf(item)
	}
	return cty.TupleVal(out)
}

// valueOf converts one plain Go value to its cty representation.
func valueOf(v any) cty.Value {
	switch x := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType)
	case cty.Value:
		return x
	case string:
		return cty.StringVal(x)
	case bool:
		return cty.BoolVal(x)
	case int:
		return cty.NumberIntVal(int64(x))
	case int64:
		return cty.NumberIntVal(x)
	case float64:
		return cty.NumberFloatVal(x)
	case map[string]any:
		return Record(x)
	case []any:
		return List(x...)
	default:
		panic(fmt.Sprintf("testing.Record: unsupported value type %T", v))
	}
}

// Helper Functions

// WaitForCalls waits for a mock transformation to be called at least n times,
// with a timeout. Returns true if the expected calls were reached.
func WaitForCalls(mock *MockTransformation, expectedCalls int, timeout time.Duration) bool {
	start := time.Now()
	for time.Since(start) < timeout {
		if mock.CallCount() >= expectedCalls {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// ParallelTest runs a test function in parallel with multiple goroutines.
// Useful for testing concurrent behavior of pipelines.
func ParallelTest(t *testing.T, goroutines int, testFunc func(int)) {
	t.Helper()

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			testFunc(id)
		}(i)
	}

	wg.Wait()
}

// MeasureLatency measures the latency of a function call.
func MeasureLatency(fn func()) time.Duration {
	start := time.Now()
	fn()
	return time.Since(start)
}

// MeasureLatencyWithResult measures the latency of a function call and returns both the result and duration.
func MeasureLatencyWithResult[T any](fn func() T) (T, time.Duration) {
	start := time.Now()
	result := fn()
	return result, time.Since(start)
}
