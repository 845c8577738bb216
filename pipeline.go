package wranglz

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zclconf/go-cty/cty"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the Pipeline.
const (
	// Metrics.
	PipelineCreatesTotal      = metricz.Key("pipeline.creates.total")
	PipelineCreateFailures    = metricz.Key("pipeline.create.failures.total")
	PipelineFieldsTotal       = metricz.Key("pipeline.fields.total")
	PipelineFieldFailures     = metricz.Key("pipeline.field.failures.total")
	PipelineLookupHitsTotal   = metricz.Key("pipeline.lookup.hits.total")
	PipelineLookupMissesTotal = metricz.Key("pipeline.lookup.misses.total")
	PipelineElementsTotal     = metricz.Key("pipeline.elements.total")
	PipelineActiveCreates     = metricz.Key("pipeline.creates.active")
	PipelineCreateDurationMs  = metricz.Key("pipeline.create.duration.ms")
	PipelineBatchWorkers      = metricz.Key("pipeline.batch.workers")

	// Spans.
	PipelineCreateSpan = tracez.Key("pipeline.create")
	PipelineFieldSpan  = tracez.Key("pipeline.field")

	// Tags.
	PipelineTagType    = tracez.Tag("pipeline.type")
	PipelineTagField   = tracez.Tag("pipeline.field")
	PipelineTagSuccess = tracez.Tag("pipeline.success")
	PipelineTagError   = tracez.Tag("pipeline.error")

	// Hook event keys.
	PipelineEventCreated    = hookz.Key("pipeline.created")
	PipelineEventFailed     = hookz.Key("pipeline.create_failed")
	PipelineEventLookupHit  = hookz.Key("pipeline.lookup_hit")
	PipelineEventLookupMiss = hookz.Key("pipeline.lookup_miss")
)

// CreateEvent represents a construction lifecycle event.
// This is emitted via hookz when a construction succeeds or fails and when
// a Finder lookup hits or misses, providing visibility into what the
// Pipeline builds and why it rejects records.
type CreateEvent struct {
	Name      Name          // Pipeline name
	TypeName  string        // Registered name of the target type
	Field     string        // Failing field, for create_failed events
	Success   bool          // Whether the construction or lookup succeeded
	Err       error         // Error if the construction failed
	Depth     int           // Nesting depth of the construction
	Duration  time.Duration // How long the construction took
	Timestamp time.Time     // When the event occurred
}

// Pipeline orchestrates recursive construction of registered types from raw
// records. It owns a frozen, validated Schema and carries the observability
// stack for every construction it runs.
//
// Construction is a single-pass, depth-first evaluation: for each declared
// field the Pipeline runs that field's chain against the whole raw record
// in a fresh Scope, then binds the collected values onto a new instance.
// Chains containing Into steps re-enter the Pipeline for nested types, so
// recursion depth is bounded by the declared type graph, which validation
// guarantees is acyclic.
//
// Any field failure aborts the whole construction; no partially populated
// instance is ever returned. Multi-record operations isolate failures per
// element.
//
// A Pipeline is safe for concurrent use: the Schema is frozen, chains are
// immutable, and every construction owns its Scope.
//
// # Observability
//
// Pipeline provides comprehensive observability through metrics, tracing,
// and events:
//
// Metrics:
//   - pipeline.creates.total: Counter of construction attempts
//   - pipeline.create.failures.total: Counter of failed constructions
//   - pipeline.fields.total: Counter of field chain evaluations
//   - pipeline.field.failures.total: Counter of failed field chains
//   - pipeline.lookup.hits.total: Counter of Finder hits
//   - pipeline.lookup.misses.total: Counter of Finder misses
//   - pipeline.elements.total: Counter of multi-record elements seen
//   - pipeline.creates.active: Gauge of constructions in flight
//   - pipeline.create.duration.ms: Gauge of last construction duration
//   - pipeline.batch.workers: Gauge of batch workers in flight
//
// Traces:
//   - pipeline.create: Span per construction
//   - pipeline.field: Child span per field chain
//
// Events (via hooks):
//   - pipeline.created: Fired after each successful construction
//   - pipeline.create_failed: Fired when a construction fails
//   - pipeline.lookup_hit: Fired when a Finder returns an instance
//   - pipeline.lookup_miss: Fired when a Finder finds nothing
//
// Example with hooks:
//
//	pipeline, err := wranglz.NewPipeline("geometry", schema)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pipeline.OnCreateFailed(func(_ context.Context, event wranglz.CreateEvent) error {
//	    log.Printf("dropping %s record: %v", event.TypeName, event.Err)
//	    return nil
//	})
type Pipeline struct {
	schema  *Schema
	finder  Finder
	clock   clockz.Clock
	metrics *metricz.Registry
	tracer  *tracez.Tracer
	hooks   *hookz.Hooks[CreateEvent]
	name    Name
	workers int
	active  atomic.Int64
	mu      sync.RWMutex
}

// NewPipeline creates a Pipeline over the given schema. The schema is
// frozen and validated: every construction target must be registered and
// the declared type graph must be acyclic. A validation failure returns a
// SchemaError and no Pipeline.
//
// Panics when schema is nil; that is a programming error, not a
// configuration one.
func NewPipeline(name Name, schema *Schema) (*Pipeline, error) {
	if schema == nil {
		panic("NewPipeline requires a schema")
	}
	schema.freeze()
	if err := schema.validate(); err != nil {
		return nil, err
	}

	// Initialize observability
	metrics := metricz.New()
	metrics.Counter(PipelineCreatesTotal)
	metrics.Counter(PipelineCreateFailures)
	metrics.Counter(PipelineFieldsTotal)
	metrics.Counter(PipelineFieldFailures)
	metrics.Counter(PipelineLookupHitsTotal)
	metrics.Counter(PipelineLookupMissesTotal)
	metrics.Counter(PipelineElementsTotal)
	metrics.Gauge(PipelineActiveCreates)
	metrics.Gauge(PipelineCreateDurationMs)
	metrics.Gauge(PipelineBatchWorkers)

	return &Pipeline{
		name:    name,
		schema:  schema,
		workers: runtime.NumCPU(),
		metrics: metrics,
		tracer:  tracez.New(),
		hooks:   hookz.New[CreateEvent](),
	}, nil
}

// Create constructs one instance of T from a raw record. The record is
// handed whole to every field chain declared for T; results are bound onto
// a new instance. Failures are returned as *Error values carrying the full
// path down to the failing step, with the specific kind (MissingKeyError,
// ConversionError, UnknownTypeError, FieldConstructionError,
// ConstructorError) reachable through errors.As. No partial instance is
// ever returned.
//
//	point, err := wranglz.Create[Point](ctx, pipeline, raw)
func Create[T any](ctx context.Context, p *Pipeline, raw cty.Value) (T, error) {
	var zero T
	if p == nil {
		panic("Create requires a pipeline")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	capsule, err := p.create(ctx, reflect.TypeFor[T](), raw, nil)
	if err != nil {
		return zero, wrapError(p.name, err, raw, start)
	}
	return *(capsule.EncapsulatedValue().(*T)), nil
}

// CreateMultiple constructs one instance of T per element of a sequence
// value, lazily: each element is constructed as the caller's range loop
// reaches it. Elements are independent; one element's failure is yielded
// for that element and the iteration continues. Ranging over the returned
// sequence again restarts construction from the first element.
//
//	for point, err := range wranglz.CreateMultiple[Point](ctx, pipeline, raws) {
//	    if err != nil {
//	        log.Printf("bad record: %v", err)
//	        continue
//	    }
//	    use(point)
//	}
func CreateMultiple[T any](ctx context.Context, p *Pipeline, raws cty.Value) iter.Seq2[T, error] {
	if p == nil {
		panic("CreateMultiple requires a pipeline")
	}
	return func(yield func(T, error) bool) {
		innerCtx := ctx
		if innerCtx == nil {
			innerCtx = context.Background()
		}
		elements, err := sequenceElements(raws)
		if err != nil {
			var zero T
			yield(zero, wrapError(p.name, err, raws, time.Now()))
			return
		}
		for _, elem := range elements {
			if cerr := innerCtx.Err(); cerr != nil {
				var zero T
				yield(zero, wrapError(p.name, cerr, elem, time.Now()))
				return
			}
			p.metrics.Counter(PipelineElementsTotal).Inc()
			instance, ierr := Create[T](innerCtx, p, elem)
			if !yield(instance, ierr) {
				return
			}
		}
	}
}

// GetOrCreate evaluates T's field chains against the raw record, asks the
// Pipeline's Finder for an existing instance matching the named fields
// (all declared fields when none are named), and constructs a new instance
// only on a miss. With no Finder configured every call constructs.
//
//	user, err := wranglz.GetOrCreate[User](ctx, pipeline, raw, "ID")
func GetOrCreate[T any](ctx context.Context, p *Pipeline, raw cty.Value, match ...string) (T, error) {
	var zero T
	if p == nil {
		panic("GetOrCreate requires a pipeline")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	capsule, err := p.findOrCreate(ctx, reflect.TypeFor[T](), raw, nil, match)
	if err != nil {
		return zero, wrapError(p.name, err, raw, start)
	}
	return *(capsule.EncapsulatedValue().(*T)), nil
}

// GetOrCreateMultiple resolves one instance of T per element of a sequence
// value, consulting the Finder before constructing each one. Elements are
// resolved lazily as the caller's range loop reaches them, so instances
// added to the Finder during iteration satisfy lookups for later elements.
// Elements are independent; one element's failure is yielded for that
// element and the iteration continues. Ranging over the returned sequence
// again restarts resolution from the first element.
//
//	for user, err := range wranglz.GetOrCreateMultiple[User](ctx, pipeline, raws, "ID") {
//	    if err != nil {
//	        log.Printf("bad record: %v", err)
//	        continue
//	    }
//	    use(user)
//	}
func GetOrCreateMultiple[T any](ctx context.Context, p *Pipeline, raws cty.Value, match ...string) iter.Seq2[T, error] {
	if p == nil {
		panic("GetOrCreateMultiple requires a pipeline")
	}
	return func(yield func(T, error) bool) {
		innerCtx := ctx
		if innerCtx == nil {
			innerCtx = context.Background()
		}
		elements, err := sequenceElements(raws)
		if err != nil {
			var zero T
			yield(zero, wrapError(p.name, err, raws, time.Now()))
			return
		}
		for _, elem := range elements {
			if cerr := innerCtx.Err(); cerr != nil {
				var zero T
				yield(zero, wrapError(p.name, cerr, elem, time.Now()))
				return
			}
			p.metrics.Counter(PipelineElementsTotal).Inc()
			instance, ierr := GetOrCreate[T](innerCtx, p, elem, match...)
			if !yield(instance, ierr) {
				return
			}
		}
	}
}

// create looks up the blueprint for target and constructs an instance,
// returning it as a capsule value.
func (p *Pipeline) create(ctx context.Context, target reflect.Type, raw cty.Value, parent *Scope) (cty.Value, error) {
	bp, err := p.schema.lookup(target)
	if err != nil {
		return cty.NilVal, err
	}
	return p.construct(ctx, bp, raw, parent)
}

// construct runs one construction: evaluate every field chain in a fresh
// scope, then bind the results onto a new instance.
func (p *Pipeline) construct(ctx context.Context, bp *Blueprint, raw cty.Value, parent *Scope) (result cty.Value, err error) {
	start := time.Now()
	p.metrics.Counter(PipelineCreatesTotal).Inc()
	p.metrics.Gauge(PipelineActiveCreates).Set(float64(p.active.Add(1)))
	defer func() {
		p.metrics.Gauge(PipelineActiveCreates).Set(float64(p.active.Add(-1)))
	}()

	ctx, span := p.tracer.StartSpan(ctx, PipelineCreateSpan)
	span.SetTag(PipelineTagType, bp.name)
	defer func() {
		elapsed := time.Since(start)
		p.metrics.Gauge(PipelineCreateDurationMs).Set(float64(elapsed.Milliseconds()))
		if err == nil {
			span.SetTag(PipelineTagSuccess, "true")
		} else {
			span.SetTag(PipelineTagSuccess, "false")
			span.SetTag(PipelineTagError, err.Error())
		}
		span.Finish()
	}()

	scope := p.newScope(parent, bp, raw)
	values, ferr := p.evaluateFields(ctx, bp, raw, scope)
	if ferr != nil {
		err = ferr
		p.metrics.Counter(PipelineCreateFailures).Inc()
		p.emitFailed(ctx, bp, scope, err, start)
		return cty.NilVal, err
	}

	capsule, berr := bp.bind(values)
	if berr != nil {
		err = &Error{
			Path:      []Name{bp.name},
			InputData: raw,
			Err:       berr,
			Timestamp: time.Now(),
			Duration:  time.Since(start),
		}
		p.metrics.Counter(PipelineCreateFailures).Inc()
		p.emitFailed(ctx, bp, scope, err, start)
		return cty.NilVal, err
	}

	p.emitCreated(ctx, bp, scope, start)
	return capsule, nil
}

// evaluateFields runs every declared field chain against the raw record.
// The context is checked before each field; the first failure aborts and
// is escalated with the owning type and field.
func (p *Pipeline) evaluateFields(ctx context.Context, bp *Blueprint, raw cty.Value, scope *Scope) (map[string]cty.Value, error) {
	values := make(map[string]cty.Value, len(bp.fields))
	for _, field := range bp.fields {
		select {
		case <-ctx.Done():
			return nil, &Error{
				Err:       ctx.Err(),
				InputData: raw,
				Path:      []Name{bp.name},
				Timeout:   errors.Is(ctx.Err(), context.DeadlineExceeded),
				Canceled:  errors.Is(ctx.Err(), context.Canceled),
				Timestamp: time.Now(),
			}
		default:
		}

		fieldCtx, fieldSpan := p.tracer.StartSpan(ctx, PipelineFieldSpan)
		fieldSpan.SetTag(PipelineTagType, bp.name)
		fieldSpan.SetTag(PipelineTagField, field.declared)
		p.metrics.Counter(PipelineFieldsTotal).Inc()

		out, err := field.chain.Apply(fieldCtx, raw, scope)
		if err != nil {
			fieldSpan.SetTag(PipelineTagError, err.Error())
			fieldSpan.Finish()
			p.metrics.Counter(PipelineFieldFailures).Inc()
			return nil, escalateField(bp, field.declared, err, raw)
		}
		fieldSpan.Finish()
		values[field.declared] = out
	}
	return values, nil
}

// findOrCreate evaluates the target's fields once, consults the Finder
// with the match set, and binds a new instance only on a miss.
func (p *Pipeline) findOrCreate(ctx context.Context, target reflect.Type, raw cty.Value, parent *Scope, match []string) (cty.Value, error) {
	bp, err := p.schema.lookup(target)
	if err != nil {
		return cty.NilVal, err
	}
	start := time.Now()
	scope := p.newScope(parent, bp, raw)

	values, err := p.evaluateFields(ctx, bp, raw, scope)
	if err != nil {
		p.metrics.Counter(PipelineCreatesTotal).Inc()
		p.metrics.Counter(PipelineCreateFailures).Inc()
		p.emitFailed(ctx, bp, scope, err, start)
		return cty.NilVal, err
	}

	if finder := p.getFinder(); finder != nil {
		matchMap, merr := matchValues(bp, values, match)
		if merr != nil {
			return cty.NilVal, merr
		}
		found, ok, ferr := finder.Find(ctx, bp.name, matchMap)
		if ferr != nil {
			return cty.NilVal, fmt.Errorf("finder: %w", ferr)
		}
		if ok {
			p.metrics.Counter(PipelineLookupHitsTotal).Inc()
			p.emitLookup(ctx, PipelineEventLookupHit, bp, scope, true, start)
			return bp.encapsulate(found)
		}
		p.metrics.Counter(PipelineLookupMissesTotal).Inc()
		p.emitLookup(ctx, PipelineEventLookupMiss, bp, scope, false, start)
	}

	return p.bindNew(ctx, bp, raw, scope, values, start)
}

// bindNew binds already-evaluated field values onto a new instance under
// the same accounting construct applies to a full construction: the
// attempt is counted before the bind and the bind runs inside a create
// span that records the outcome.
func (p *Pipeline) bindNew(ctx context.Context, bp *Blueprint, raw cty.Value, scope *Scope, values map[string]cty.Value, start time.Time) (result cty.Value, err error) {
	p.metrics.Counter(PipelineCreatesTotal).Inc()
	p.metrics.Gauge(PipelineActiveCreates).Set(float64(p.active.Add(1)))
	defer func() {
		p.metrics.Gauge(PipelineActiveCreates).Set(float64(p.active.Add(-1)))
	}()

	ctx, span := p.tracer.StartSpan(ctx, PipelineCreateSpan)
	span.SetTag(PipelineTagType, bp.name)
	defer func() {
		elapsed := time.Since(start)
		p.metrics.Gauge(PipelineCreateDurationMs).Set(float64(elapsed.Milliseconds()))
		if err == nil {
			span.SetTag(PipelineTagSuccess, "true")
		} else {
			span.SetTag(PipelineTagSuccess, "false")
			span.SetTag(PipelineTagError, err.Error())
		}
		span.Finish()
	}()

	capsule, berr := bp.bind(values)
	if berr != nil {
		err = &Error{
			Path:      []Name{bp.name},
			InputData: raw,
			Err:       berr,
			Timestamp: time.Now(),
			Duration:  time.Since(start),
		}
		p.metrics.Counter(PipelineCreateFailures).Inc()
		p.emitFailed(ctx, bp, scope, err, start)
		return cty.NilVal, err
	}

	p.emitCreated(ctx, bp, scope, start)
	return capsule, nil
}

// matchValues projects the evaluated fields down to the Finder match set,
// downgraded to plain Go values.
func matchValues(bp *Blueprint, values map[string]cty.Value, match []string) (map[string]any, error) {
	names := match
	if len(names) == 0 {
		names = bp.FieldNames()
	}
	out := make(map[string]any, len(names))
	for _, name := range names {
		v, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("match field %q is not declared for %s", name, bp.name)
		}
		out[name] = native(v)
	}
	return out, nil
}

// escalateField wraps a field chain failure with the owning type and field
// so no construction failure ever loses its origin.
func escalateField(bp *Blueprint, field string, cause error, raw cty.Value) *Error {
	fieldErr := &FieldConstructionError{TypeName: bp.name, Field: field, Err: cause}
	out := &Error{
		Path:      []Name{bp.name, field},
		InputData: raw,
		Err:       fieldErr,
		Timestamp: time.Now(),
	}
	var inner *Error
	if errors.As(cause, &inner) {
		out.Path = append(out.Path, inner.Path...)
		out.Duration = inner.Duration
		out.Timeout = inner.Timeout
		out.Canceled = inner.Canceled
	}
	return out
}

func (p *Pipeline) emitCreated(ctx context.Context, bp *Blueprint, scope *Scope, start time.Time) {
	_ = p.hooks.Emit(ctx, PipelineEventCreated, CreateEvent{ //nolint:errcheck
		Name:      p.name,
		TypeName:  bp.name,
		Success:   true,
		Depth:     scope.Depth(),
		Duration:  time.Since(start),
		Timestamp: p.getClock().Now(),
	})
}

func (p *Pipeline) emitFailed(ctx context.Context, bp *Blueprint, scope *Scope, err error, start time.Time) {
	field := ""
	var fieldErr *FieldConstructionError
	if errors.As(err, &fieldErr) {
		field = fieldErr.Field
	}
	_ = p.hooks.Emit(ctx, PipelineEventFailed, CreateEvent{ //nolint:errcheck
		Name:      p.name,
		TypeName:  bp.name,
		Field:     field,
		Success:   false,
		Err:       err,
		Depth:     scope.Depth(),
		Duration:  time.Since(start),
		Timestamp: p.getClock().Now(),
	})
}

func (p *Pipeline) emitLookup(ctx context.Context, key hookz.Key, bp *Blueprint, scope *Scope, hit bool, start time.Time) {
	_ = p.hooks.Emit(ctx, key, CreateEvent{ //nolint:errcheck
		Name:      p.name,
		TypeName:  bp.name,
		Success:   hit,
		Depth:     scope.Depth(),
		Duration:  time.Since(start),
		Timestamp: p.getClock().Now(),
	})
}

// WithFinder sets the Finder consulted by GetOrCreate and FindOrInto.
// Returns the pipeline for chaining.
func (p *Pipeline) WithFinder(finder Finder) *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finder = finder
	return p
}

// getFinder returns the configured Finder, if any.
func (p *Pipeline) getFinder() Finder {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.finder
}

// WithClock sets a custom clock for event timestamps. Useful for testing
// with a fake clock. Returns the pipeline for chaining.
func (p *Pipeline) WithClock(clock clockz.Clock) *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock = clock
	return p
}

// getClock returns the clock to use.
func (p *Pipeline) getClock() clockz.Clock {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.clock == nil {
		return clockz.RealClock
	}
	return p.clock
}

// WithParallelism bounds how many batch workers CreateBatch may run at
// once. Values below one are treated as one. The default is the number of
// CPUs. Returns the pipeline for chaining.
func (p *Pipeline) WithParallelism(workers int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.workers = workers
	return p
}

// parallelism returns the configured batch worker bound.
func (p *Pipeline) parallelism() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.workers
}

// Name returns the pipeline's name.
func (p *Pipeline) Name() Name {
	return p.name
}

// Schema returns the frozen schema this pipeline constructs from.
func (p *Pipeline) Schema() *Schema {
	return p.schema
}

// Metrics returns the metrics registry for this pipeline.
func (p *Pipeline) Metrics() *metricz.Registry {
	return p.metrics
}

// Tracer returns the tracer for span observation.
func (p *Pipeline) Tracer() *tracez.Tracer {
	return p.tracer
}

// Close releases observability resources.
func (p *Pipeline) Close() error {
	if p.tracer != nil {
		p.tracer.Close()
	}
	p.hooks.Close()
	return nil
}

// OnCreated registers a handler for successful constructions.
// The handler is called asynchronously after each instance is built,
// including nested instances constructed through Into steps.
func (p *Pipeline) OnCreated(handler func(context.Context, CreateEvent) error) error {
	_, err := p.hooks.Hook(PipelineEventCreated, handler)
	return err
}

// OnCreateFailed registers a handler for failed constructions.
// The handler is called asynchronously with the failing type, field, and
// error.
func (p *Pipeline) OnCreateFailed(handler func(context.Context, CreateEvent) error) error {
	_, err := p.hooks.Hook(PipelineEventFailed, handler)
	return err
}

// OnLookupHit registers a handler for Finder hits.
func (p *Pipeline) OnLookupHit(handler func(context.Context, CreateEvent) error) error {
	_, err := p.hooks.Hook(PipelineEventLookupHit, handler)
	return err
}

// OnLookupMiss registers a handler for Finder misses.
func (p *Pipeline) OnLookupMiss(handler func(context.Context, CreateEvent) error) error {
	_, err := p.hooks.Hook(PipelineEventLookupMiss, handler)
	return err
}
