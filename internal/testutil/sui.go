package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/block-vision/sui-go-sdk/models"
)

// ErrUnavailable is returned by FakeSuiClient for injected failures
var ErrUnavailable = errors.New("fake node unavailable")

// FakeSuiClient is an in-memory stand-in for the Sui SDK client
type FakeSuiClient struct {
	// Balances maps owner -> coin type -> total balance
	Balances map[string]map[string]string
	// Metadata maps coin type -> metadata
	Metadata map[string]models.CoinMetadataResponse
	// Checkpoint is returned by SuiGetLatestCheckpointSequenceNumber
	Checkpoint uint64
	// Delay is applied to every call
	Delay time.Duration
	// Down makes every call fail
	Down bool

	mu       sync.Mutex
	failures map[string]int
	calls    map[string]int
}

// NewFakeSuiClient creates an empty fake
func NewFakeSuiClient() *FakeSuiClient {
	return &FakeSuiClient{
		Balances: make(map[string]map[string]string),
		Metadata: make(map[string]models.CoinMetadataResponse),
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}
}

// SetBalance sets the balance of coinType held by owner
func (f *FakeSuiClient) SetBalance(owner, coinType, total string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Balances[owner] == nil {
		f.Balances[owner] = make(map[string]string)
	}
	f.Balances[owner][coinType] = total
}

// FailNext makes the next n calls for key fail. Keys are the owner for balance
// calls, the coin type for metadata calls and "checkpoint" for checkpoint calls.
func (f *FakeSuiClient) FailNext(key string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[key] = n
}

// Calls returns how many calls were made for key
func (f *FakeSuiClient) Calls(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *FakeSuiClient) enter(ctx context.Context, key string) error {
	f.mu.Lock()
	f.calls[key]++
	fail := f.Down || f.failures[key] > 0
	if f.failures[key] > 0 {
		f.failures[key]--
	}
	delay := f.Delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail {
		return fmt.Errorf("%s: %w", key, ErrUnavailable)
	}
	return nil
}

// SuiXGetBalance implements endpoint.Client
func (f *FakeSuiClient) SuiXGetBalance(ctx context.Context, req models.SuiXGetBalanceRequest) (models.CoinBalanceResponse, error) {
	if err := f.enter(ctx, req.Owner); err != nil {
		return models.CoinBalanceResponse{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	total, ok := f.Balances[req.Owner][req.CoinType]
	if !ok {
		total = "0"
	}
	return models.CoinBalanceResponse{
		CoinType:     req.CoinType,
		TotalBalance: total,
	}, nil
}

// SuiXGetAllBalance implements endpoint.Client
func (f *FakeSuiClient) SuiXGetAllBalance(ctx context.Context, req models.SuiXGetAllBalanceRequest) (models.CoinAllBalanceResponse, error) {
	if err := f.enter(ctx, req.Owner); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var result models.CoinAllBalanceResponse
	for coinType, total := range f.Balances[req.Owner] {
		result = append(result, models.CoinBalanceResponse{
			CoinType:        coinType,
			CoinObjectCount: 1,
			TotalBalance:    total,
		})
	}
	return result, nil
}

// SuiXGetCoinMetadata implements endpoint.Client
func (f *FakeSuiClient) SuiXGetCoinMetadata(ctx context.Context, req models.SuiXGetCoinMetadataRequest) (models.CoinMetadataResponse, error) {
	if err := f.enter(ctx, req.CoinType); err != nil {
		return models.CoinMetadataResponse{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	md, ok := f.Metadata[req.CoinType]
	if !ok {
		return models.CoinMetadataResponse{}, fmt.Errorf("coin metadata for %s not found", req.CoinType)
	}
	return md, nil
}

// SuiGetLatestCheckpointSequenceNumber implements endpoint.Client
func (f *FakeSuiClient) SuiGetLatestCheckpointSequenceNumber(ctx context.Context) (uint64, error) {
	if err := f.enter(ctx, "checkpoint"); err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Checkpoint, nil
}
