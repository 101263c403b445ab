package batcher

import (
	"time"

	"github.com/rs/zerolog"

	"suitcase/internal/metrics"
)

type options struct {
	minInterval time.Duration
	maxPasses   int
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

func defaultOptions() *options {
	return &options{
		minInterval: DefaultMinBatchInterval,
		logger:      zerolog.Nop(),
	}
}

// Option configures an Executor
type Option func(*options)

// WithMinBatchInterval sets the minimum spacing between batch starts; 0 disables throttling
func WithMinBatchInterval(d time.Duration) Option {
	return func(o *options) {
		o.minInterval = d
	}
}

// WithMaxPasses bounds the number of passes, the first one included; 0 retries until every item succeeds
func WithMaxPasses(n int) Option {
	return func(o *options) {
		o.maxPasses = n
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics collectors
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
