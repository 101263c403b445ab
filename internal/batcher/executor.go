package batcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"suitcase/internal/balancer"
	"suitcase/internal/metrics"
)

// ErrEmptyPool is returned when an executor is created without endpoints
var ErrEmptyPool = balancer.ErrEmptyPool

// DefaultMinBatchInterval is the default minimum spacing between batch starts
const DefaultMinBatchInterval = 334 * time.Millisecond

// Operation issues one logical request for input against endpoint
type Operation[E, I, O any] func(ctx context.Context, endpoint E, input I) (O, error)

// Executor runs operations in batches over a fixed endpoint pool.
//
// Each batch is sized to the pool and served by a single endpoint chosen by
// round-robin; batches run one after another, and failed items are retried in
// further passes until they succeed or the pass limit is reached.
//
// An Executor may be shared by concurrent callers. The round-robin cursor and
// the throttle are shared between them, so the endpoint sequence seen by one
// call depends on the interleaving with the others.
type Executor[E any] struct {
	balancer    *balancer.RoundRobin[E]
	limiter     *rate.Limiter
	minInterval time.Duration
	maxPasses   int
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

// NewExecutor creates a new Executor over endpoints
func NewExecutor[E any](endpoints []E, opts ...Option) (*Executor[E], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.minInterval < 0 {
		return nil, fmt.Errorf("min batch interval must be non-negative, got %s", o.minInterval)
	}
	if o.maxPasses < 0 {
		return nil, fmt.Errorf("max passes must be non-negative, got %d", o.maxPasses)
	}

	rr, err := balancer.NewRoundRobin(endpoints)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if o.minInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(o.minInterval), 1)
	}

	return &Executor[E]{
		balancer:    rr,
		limiter:     limiter,
		minInterval: o.minInterval,
		maxPasses:   o.maxPasses,
		logger:      o.logger.With().Str("component", "batcher").Logger(),
		metrics:     o.metrics,
	}, nil
}

// Endpoints returns the pool in round-robin order
func (ex *Executor[E]) Endpoints() []E {
	return ex.balancer.Items()
}

// PoolSize returns the number of endpoints, which is also the batch size
func (ex *Executor[E]) PoolSize() int {
	return ex.balancer.Len()
}

// MinBatchInterval returns the configured throttle interval
func (ex *Executor[E]) MinBatchInterval() time.Duration {
	return ex.minInterval
}

// MaxPasses returns the pass limit, 0 meaning unbounded
func (ex *Executor[E]) MaxPasses() int {
	return ex.maxPasses
}

// ExecuteInBatches maps inputs to outputs with op, keeping result[i] aligned with inputs[i].
//
// Item failures never abort the call: they are retried in later passes. With an
// unbounded executor the call returns only once every item has succeeded or ctx
// is done. With a pass limit, items still failing after the last pass are
// reported through *PartialFailureError together with the partially filled results.
func ExecuteInBatches[E, I, O any](ctx context.Context, ex *Executor[E], inputs []I, op Operation[E, I, O]) ([]O, error) {
	results := make([]O, len(inputs))
	if len(inputs) == 0 {
		return results, nil
	}

	pending := make([]int, len(inputs))
	for i := range pending {
		pending[i] = i
	}
	var lastErrs []error

	passes := 0
	err := retry.Do(
		func() error {
			passes++
			ex.metrics.IncPass()

			failed, errs, err := runPass(ctx, ex, inputs, pending, results, op)
			if err != nil {
				return err
			}
			pending, lastErrs = failed, errs
			if len(pending) > 0 {
				return &pendingError{count: len(pending)}
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(ex.maxPasses)),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isPending),
		retry.OnRetry(func(n uint, err error) {
			ex.logger.Debug().
				Int("nextPass", int(n)+2).
				Int("inputs", len(inputs)).
				Err(err).
				Msg("retrying failed items")
		}),
	)

	var pe *pendingError
	switch {
	case err == nil:
		if passes > 1 {
			ex.logger.Debug().
				Int("inputs", len(inputs)).
				Int("passes", passes).
				Msg("all items succeeded after retry")
		}
		return results, nil
	case errors.As(err, &pe):
		ex.logger.Warn().
			Int("inputs", len(inputs)).
			Int("failed", len(pending)).
			Int("passes", passes).
			Msg("pass limit reached with failing items")
		return results, newPartialFailure(pending, lastErrs, passes)
	default:
		return nil, err
	}
}

// runPass runs one pass over the pending indices.
// Returns the indices that failed, in input order, and their errors.
func runPass[E, I, O any](ctx context.Context, ex *Executor[E], inputs []I, pending []int, results []O, op Operation[E, I, O]) ([]int, []error, error) {
	size := ex.balancer.Len()

	var failed []int
	var errs []error

	for start := 0; start < len(pending); start += size {
		end := start + size
		if end > len(pending) {
			end = len(pending)
		}

		if err := ex.throttle(ctx); err != nil {
			return nil, nil, err
		}

		endpoint := ex.balancer.Next()
		batchFailed, batchErrs := runBatch(ctx, ex, endpoint, inputs, pending[start:end], results, op)
		failed = append(failed, batchFailed...)
		errs = append(errs, batchErrs...)
	}

	return failed, errs, nil
}

// runBatch dispatches every index of batch concurrently against endpoint and
// waits for all of them to settle. Successful outputs are written in place.
func runBatch[E, I, O any](ctx context.Context, ex *Executor[E], endpoint E, inputs []I, batch []int, results []O, op Operation[E, I, O]) ([]int, []error) {
	started := time.Now()
	itemErrs := make([]error, len(batch))

	var g errgroup.Group
	for j, idx := range batch {
		j, idx := j, idx
		g.Go(func() error {
			out, err := op(ctx, endpoint, inputs[idx])
			if err != nil {
				itemErrs[j] = err
				return nil
			}
			results[idx] = out
			return nil
		})
	}
	_ = g.Wait()

	var failed []int
	var errs []error
	for j, err := range itemErrs {
		if err != nil {
			failed = append(failed, batch[j])
			errs = append(errs, err)
		}
	}

	elapsed := time.Since(started)
	name := endpointName(endpoint)
	ex.metrics.ObserveBatch(name, elapsed)
	ex.metrics.AddItems(len(batch)-len(failed), len(failed))

	logEvent := ex.logger.Debug()
	if len(failed) > 0 {
		logEvent = ex.logger.Warn().Err(errs[0])
	}
	logEvent.
		Str("endpoint", name).
		Int("items", len(batch)).
		Int("failed", len(failed)).
		Dur("elapsed", elapsed).
		Msg("batch settled")

	return failed, errs
}

// throttle blocks until the next batch may start
func (ex *Executor[E]) throttle(ctx context.Context) error {
	if ex.limiter == nil {
		return ctx.Err()
	}
	return ex.limiter.Wait(ctx)
}

// endpointName returns a label for logs and metrics
func endpointName(endpoint any) string {
	if n, ok := endpoint.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprint(endpoint)
}
