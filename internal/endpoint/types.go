package endpoint

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/block-vision/sui-go-sdk/models"
)

// Client is the part of the Sui SDK client an Endpoint issues requests through.
// sui.ISuiAPI satisfies it.
type Client interface {
	SuiXGetBalance(ctx context.Context, req models.SuiXGetBalanceRequest) (models.CoinBalanceResponse, error)
	SuiXGetAllBalance(ctx context.Context, req models.SuiXGetAllBalanceRequest) (models.CoinAllBalanceResponse, error)
	SuiXGetCoinMetadata(ctx context.Context, req models.SuiXGetCoinMetadataRequest) (models.CoinMetadataResponse, error)
	SuiGetLatestCheckpointSequenceNumber(ctx context.Context) (uint64, error)
}

// Status holds the request counters and probe state of an endpoint
type Status struct {
	healthy      atomic.Bool
	requestCount atomic.Uint64
	failureCount atomic.Uint64
	latency      atomic.Int64 // ns, last successful probe
}

// NewStatus creates a new Status
func NewStatus() *Status {
	s := &Status{}
	s.healthy.Store(true)
	return s
}

// IsHealthy returns the health status
func (s *Status) IsHealthy() bool {
	return s.healthy.Load()
}

// SetHealthy sets the health status
func (s *Status) SetHealthy(healthy bool) {
	s.healthy.Store(healthy)
}

// RecordRequest counts one request and, if err is non-nil, one failure
func (s *Status) RecordRequest(err error) {
	s.requestCount.Add(1)
	if err != nil {
		s.failureCount.Add(1)
	}
}

// SwapRequestCount returns the request count and resets it to zero
func (s *Status) SwapRequestCount() uint64 {
	return s.requestCount.Swap(0)
}

// SwapFailureCount returns the failure count and resets it to zero
func (s *Status) SwapFailureCount() uint64 {
	return s.failureCount.Swap(0)
}

// GetLatency returns the latency of the last successful probe
func (s *Status) GetLatency() time.Duration {
	return time.Duration(s.latency.Load())
}

// SetLatency stores the latency of a successful probe
func (s *Status) SetLatency(d time.Duration) {
	s.latency.Store(int64(d))
}
