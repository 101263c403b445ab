package batcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suitcase/internal/metrics"
)

var errBoom = errors.New("boom")

type call struct {
	endpoint string
	input    int
}

// recorder logs every op invocation. Batches run one after another, so the
// calls of one batch are contiguous in the log.
type recorder struct {
	mu       sync.Mutex
	calls    []call
	attempts map[int]int
}

func newRecorder() *recorder {
	return &recorder{attempts: make(map[int]int)}
}

// record logs the call and returns the attempt number for input, starting at 1
func (r *recorder) record(endpoint string, input int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{endpoint: endpoint, input: input})
	r.attempts[input]++
	return r.attempts[input]
}

type batch struct {
	endpoint string
	inputs   []int
}

// batches groups consecutive calls against the same endpoint
func (r *recorder) batches() []batch {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []batch
	for _, c := range r.calls {
		if n := len(result); n > 0 && result[n-1].endpoint == c.endpoint {
			result[n-1].inputs = append(result[n-1].inputs, c.input)
			continue
		}
		result = append(result, batch{endpoint: c.endpoint, inputs: []int{c.input}})
	}
	for _, b := range result {
		sort.Ints(b.inputs)
	}
	return result
}

func newTestExecutor(t *testing.T, endpoints []string, opts ...Option) *Executor[string] {
	t.Helper()
	opts = append([]Option{WithMinBatchInterval(0), WithLogger(zerolog.Nop())}, opts...)
	ex, err := NewExecutor(endpoints, opts...)
	require.NoError(t, err)
	return ex
}

func inputs(n int) []int {
	result := make([]int, n)
	for i := range result {
		result[i] = i
	}
	return result
}

func square(i int) string {
	return fmt.Sprintf("out-%d", i*i)
}

func TestNewExecutor_EmptyPool(t *testing.T) {
	ex, err := NewExecutor[string](nil)
	require.ErrorIs(t, err, ErrEmptyPool)
	assert.Nil(t, ex)
}

func TestNewExecutor_InvalidOptions(t *testing.T) {
	_, err := NewExecutor([]string{"A"}, WithMinBatchInterval(-time.Second))
	require.Error(t, err)

	_, err = NewExecutor([]string{"A"}, WithMaxPasses(-1))
	require.Error(t, err)
}

func TestNewExecutor_Defaults(t *testing.T) {
	ex, err := NewExecutor([]string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, DefaultMinBatchInterval, ex.MinBatchInterval())
	assert.Equal(t, 0, ex.MaxPasses())
	assert.Equal(t, 2, ex.PoolSize())
	assert.Equal(t, []string{"A", "B"}, ex.Endpoints())
}

func TestExecuteInBatches_EmptyInputs(t *testing.T) {
	ex := newTestExecutor(t, []string{"A"})
	rec := newRecorder()

	results, err := ExecuteInBatches(context.Background(), ex, []int{}, func(_ context.Context, ep string, in int) (string, error) {
		rec.record(ep, in)
		return square(in), nil
	})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, rec.calls)
}

func TestExecuteInBatches_BatchSizing(t *testing.T) {
	ex := newTestExecutor(t, []string{"A", "B"})
	rec := newRecorder()

	results, err := ExecuteInBatches(context.Background(), ex, inputs(5), func(_ context.Context, ep string, in int) (string, error) {
		rec.record(ep, in)
		return square(in), nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"out-0", "out-1", "out-4", "out-9", "out-16"}, results)
	assert.Equal(t, []batch{
		{endpoint: "A", inputs: []int{0, 1}},
		{endpoint: "B", inputs: []int{2, 3}},
		{endpoint: "A", inputs: []int{4}},
	}, rec.batches())
	assert.Len(t, rec.calls, 5, "no retry pass expected")
}

func TestExecuteInBatches_RetryConvergence(t *testing.T) {
	ex := newTestExecutor(t, []string{"A", "B"})
	rec := newRecorder()

	results, err := ExecuteInBatches(context.Background(), ex, inputs(4), func(_ context.Context, ep string, in int) (string, error) {
		attempt := rec.record(ep, in)
		if in == 2 && attempt == 1 {
			return "", errBoom
		}
		return square(in), nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"out-0", "out-1", "out-4", "out-9"}, results)
	assert.Equal(t, []batch{
		{endpoint: "A", inputs: []int{0, 1}},
		{endpoint: "B", inputs: []int{2, 3}},
		// second pass: only the failed input, on the next endpoint in the rotation
		{endpoint: "A", inputs: []int{2}},
	}, rec.batches())
	assert.Equal(t, 2, rec.attempts[2])
}

func TestExecuteInBatches_OrderingInvariant(t *testing.T) {
	ex := newTestExecutor(t, []string{"A", "B", "C"})
	rec := newRecorder()

	// input i fails on its first i%4 attempts
	results, err := ExecuteInBatches(context.Background(), ex, inputs(23), func(_ context.Context, ep string, in int) (string, error) {
		attempt := rec.record(ep, in)
		if attempt <= in%4 {
			return "", fmt.Errorf("input %d attempt %d: %w", in, attempt, errBoom)
		}
		return square(in), nil
	})
	require.NoError(t, err)

	require.Len(t, results, 23)
	for i, r := range results {
		assert.Equal(t, square(i), r, "index %d", i)
		assert.Equal(t, i%4+1, rec.attempts[i], "attempts for %d", i)
	}
}

func TestExecuteInBatches_CursorContinuesAcrossCalls(t *testing.T) {
	ex := newTestExecutor(t, []string{"A", "B", "C"})
	rec := newRecorder()
	op := func(_ context.Context, ep string, in int) (int, error) {
		rec.record(ep, in)
		return in, nil
	}

	_, err := ExecuteInBatches(context.Background(), ex, []int{0}, op)
	require.NoError(t, err)
	_, err = ExecuteInBatches(context.Background(), ex, []int{10, 11, 12, 13}, op)
	require.NoError(t, err)

	assert.Equal(t, []batch{
		{endpoint: "A", inputs: []int{0}},
		{endpoint: "B", inputs: []int{10, 11, 12}},
		{endpoint: "C", inputs: []int{13}},
	}, rec.batches())
}

func TestExecuteInBatches_DispatchesBatchConcurrently(t *testing.T) {
	ex := newTestExecutor(t, []string{"A", "B", "C"}, WithMaxPasses(1))

	var arrived atomic.Int32
	allArrived := make(chan struct{})

	results, err := ExecuteInBatches(context.Background(), ex, inputs(3), func(_ context.Context, _ string, in int) (int, error) {
		if arrived.Add(1) == 3 {
			close(allArrived)
		}
		select {
		case <-allArrived:
			return in, nil
		case <-time.After(2 * time.Second):
			return 0, errors.New("items were not dispatched concurrently")
		}
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, results)
}

func TestExecuteInBatches_FailureDoesNotCancelSiblings(t *testing.T) {
	ex := newTestExecutor(t, []string{"A", "B"}, WithMaxPasses(1))

	results, err := ExecuteInBatches(context.Background(), ex, inputs(2), func(ctx context.Context, _ string, in int) (int, error) {
		if in == 0 {
			return 0, errBoom
		}
		select {
		case <-time.After(20 * time.Millisecond):
			return 100, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	})

	var pf *PartialFailureError
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, []int{0}, pf.Failed)
	assert.Equal(t, 100, results[1])
}

func TestExecuteInBatches_Throttle(t *testing.T) {
	ex, err := NewExecutor([]string{"A", "B"}, WithMinBatchInterval(30*time.Millisecond))
	require.NoError(t, err)

	started := time.Now()
	_, err = ExecuteInBatches(context.Background(), ex, inputs(5), func(_ context.Context, _ string, in int) (int, error) {
		return in, nil
	})
	require.NoError(t, err)

	// three batches: the second and third each wait for the interval
	assert.GreaterOrEqual(t, time.Since(started), 55*time.Millisecond)
}

func TestExecuteInBatches_MaxPasses(t *testing.T) {
	reg := prometheus.NewRegistry()
	ex := newTestExecutor(t, []string{"A", "B"}, WithMaxPasses(3), WithMetrics(metrics.New(reg)))
	rec := newRecorder()

	results, err := ExecuteInBatches(context.Background(), ex, inputs(4), func(_ context.Context, ep string, in int) (string, error) {
		rec.record(ep, in)
		if in == 1 || in == 3 {
			return "", fmt.Errorf("input %d: %w", in, errBoom)
		}
		return square(in), nil
	})

	var pf *PartialFailureError
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, []int{1, 3}, pf.Failed)
	assert.Equal(t, 3, pf.Passes)
	assert.ErrorIs(t, err, errBoom)
	assert.Len(t, pf.ItemErrors(), 2)

	assert.Equal(t, []string{"out-0", "", "out-4", ""}, results)
	assert.Equal(t, 3, rec.attempts[1])
	assert.Equal(t, 3, rec.attempts[3])
	assert.Equal(t, 1, rec.attempts[0])
}

func TestExecuteInBatches_SinglePassLimit(t *testing.T) {
	ex := newTestExecutor(t, []string{"A"}, WithMaxPasses(1))
	rec := newRecorder()

	_, err := ExecuteInBatches(context.Background(), ex, inputs(2), func(_ context.Context, ep string, in int) (int, error) {
		rec.record(ep, in)
		return 0, errBoom
	})

	var pf *PartialFailureError
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, []int{0, 1}, pf.Failed)
	assert.Equal(t, 1, pf.Passes)
	assert.Len(t, rec.calls, 2)
}

func TestExecuteInBatches_ContextCanceled(t *testing.T) {
	ex := newTestExecutor(t, []string{"A", "B"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	results, err := ExecuteInBatches(ctx, ex, inputs(3), func(_ context.Context, _ string, in int) (int, error) {
		if calls.Add(1) == 10 {
			cancel()
		}
		return 0, errBoom
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, results)
}

func TestExecuteInBatches_AlreadyCanceled(t *testing.T) {
	ex := newTestExecutor(t, []string{"A"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	_, err := ExecuteInBatches(ctx, ex, inputs(3), func(_ context.Context, _ string, in int) (int, error) {
		calls.Add(1)
		return in, nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}
