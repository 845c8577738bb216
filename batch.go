package wranglz

import (
	"context"
	"sync"
	"time"

	"github.com/zclconf/go-cty/cty"
)

// Result pairs one constructed instance with the outcome of its element.
// Index is the element's position in the input sequence so callers can
// correlate failures back to source records after a concurrent batch.
type Result[T any] struct {
	Err      error         // Error if this element failed
	Value    T             // Constructed instance, zero on failure
	Index    int           // Position in the input sequence
	Duration time.Duration // How long this element took
}

// CreateBatch constructs one instance of T per element of a sequence value
// concurrently, bounded by the pipeline's parallelism setting (see
// WithParallelism). Unlike CreateMultiple it is eager: the call blocks
// until every element has been attempted and returns results in input
// order. Element failures are isolated to their own Result; the call
// itself fails only when the input is not a sequence.
//
// Cancellation drains quickly: elements that have not yet acquired a
// worker slot record the context error instead of constructing.
//
//	results, err := wranglz.CreateBatch[Point](ctx, pipeline, raws)
//	if err != nil {
//	    return err
//	}
//	for _, r := range results {
//	    if r.Err != nil {
//	        log.Printf("record %d: %v", r.Index, r.Err)
//	    }
//	}
func CreateBatch[T any](ctx context.Context, p *Pipeline, raws cty.Value) ([]Result[T], error) {
	if p == nil {
		panic("CreateBatch requires a pipeline")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	elements, err := sequenceElements(raws)
	if err != nil {
		return nil, wrapError(p.name, err, raws, time.Now())
	}
	if len(elements) == 0 {
		return []Result[T]{}, nil
	}

	results := make([]Result[T], len(elements))
	sem := make(chan struct{}, p.parallelism())
	var wg sync.WaitGroup

	for i, elem := range elements {
		wg.Add(1)
		go func(index int, raw cty.Value) {
			defer wg.Done()
			start := time.Now()

			// Acquire semaphore slot (blocks if all workers busy)
			select {
			case sem <- struct{}{}:
				p.metrics.Gauge(PipelineBatchWorkers).Set(float64(len(sem)))
				defer func() {
					<-sem // Release slot when done
					p.metrics.Gauge(PipelineBatchWorkers).Set(float64(len(sem)))
				}()
			case <-ctx.Done():
				results[index] = Result[T]{
					Err:      wrapError(p.name, ctx.Err(), raw, start),
					Index:    index,
					Duration: time.Since(start),
				}
				return
			}

			p.metrics.Counter(PipelineElementsTotal).Inc()
			value, cerr := Create[T](ctx, p, raw)
			results[index] = Result[T]{
				Value:    value,
				Err:      cerr,
				Index:    index,
				Duration: time.Since(start),
			}
		}(i, elem)
	}

	wg.Wait()
	p.metrics.Gauge(PipelineBatchWorkers).Set(float64(len(sem)))
	return results, nil
}
