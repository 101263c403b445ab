package endpoint

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/block-vision/sui-go-sdk/models"
	"github.com/block-vision/sui-go-sdk/sui"
	"github.com/rs/zerolog"

	"suitcase/internal/config"
)

// SuiCoinType is the coin type of the native SUI coin
const SuiCoinType = "0x2::sui::SUI"

// ErrInvalidBalance is returned when a node reports a balance that is not a base-10 integer
var ErrInvalidBalance = errors.New("invalid balance in response")

// Endpoint represents a single Sui fullnode reachable through the SDK client
type Endpoint struct {
	name   string
	rpcURL string
	wsURL  string

	client Client
	status *Status
	logger zerolog.Logger
}

// Config for creating a new Endpoint
type Config struct {
	Name   string
	RPCURL string
	WSURL  string
	// Client overrides the SDK client built from RPCURL
	Client Client
	Logger zerolog.Logger
}

// CoinBalance is the balance of one coin type held by an owner
type CoinBalance struct {
	CoinType        string
	CoinObjectCount int
	Total           *big.Int
}

// New creates a new Endpoint instance
func New(cfg Config) *Endpoint {
	client := cfg.Client
	if client == nil {
		client = sui.NewSuiClient(cfg.RPCURL)
	}

	return &Endpoint{
		name:   cfg.Name,
		rpcURL: cfg.RPCURL,
		wsURL:  cfg.WSURL,
		client: client,
		status: NewStatus(),
		logger: cfg.Logger.With().Str("endpoint", cfg.Name).Logger(),
	}
}

// NewFromConfig creates an Endpoint from config
func NewFromConfig(cfg config.EndpointConfig, logger zerolog.Logger) *Endpoint {
	return New(Config{
		Name:   cfg.Name,
		RPCURL: cfg.RPCURL,
		WSURL:  cfg.WSURL,
		Logger: logger,
	})
}

// Name returns the endpoint name
func (e *Endpoint) Name() string {
	return e.name
}

// RPCURL returns the HTTP RPC URL
func (e *Endpoint) RPCURL() string {
	return e.rpcURL
}

// WSURL returns the WebSocket URL
func (e *Endpoint) WSURL() string {
	return e.wsURL
}

// HasWS returns true if WebSocket URL is configured
func (e *Endpoint) HasWS() bool {
	return e.wsURL != ""
}

// Status returns the endpoint status
func (e *Endpoint) Status() *Status {
	return e.status
}

// String implements fmt.Stringer
func (e *Endpoint) String() string {
	return e.name
}

// GetBalance returns the total balance of coinType held by owner
func (e *Endpoint) GetBalance(ctx context.Context, owner, coinType string) (*big.Int, error) {
	resp, err := e.client.SuiXGetBalance(ctx, models.SuiXGetBalanceRequest{
		Owner:    owner,
		CoinType: coinType,
	})
	e.status.RecordRequest(err)
	if err != nil {
		return nil, fmt.Errorf("get balance of %s: %w", owner, err)
	}

	total, err := parseBalance(resp.TotalBalance)
	if err != nil {
		return nil, fmt.Errorf("get balance of %s: %w", owner, err)
	}
	return total, nil
}

// GetAllBalances returns every coin balance held by owner
func (e *Endpoint) GetAllBalances(ctx context.Context, owner string) ([]CoinBalance, error) {
	resp, err := e.client.SuiXGetAllBalance(ctx, models.SuiXGetAllBalanceRequest{
		Owner: owner,
	})
	e.status.RecordRequest(err)
	if err != nil {
		return nil, fmt.Errorf("get all balances of %s: %w", owner, err)
	}

	result := make([]CoinBalance, 0, len(resp))
	for _, b := range resp {
		total, err := parseBalance(b.TotalBalance)
		if err != nil {
			return nil, fmt.Errorf("get all balances of %s: %s: %w", owner, b.CoinType, err)
		}
		result = append(result, CoinBalance{
			CoinType:        b.CoinType,
			CoinObjectCount: b.CoinObjectCount,
			Total:           total,
		})
	}
	return result, nil
}

// GetCoinMetadata returns the metadata of coinType
func (e *Endpoint) GetCoinMetadata(ctx context.Context, coinType string) (models.CoinMetadataResponse, error) {
	resp, err := e.client.SuiXGetCoinMetadata(ctx, models.SuiXGetCoinMetadataRequest{
		CoinType: coinType,
	})
	e.status.RecordRequest(err)
	if err != nil {
		return models.CoinMetadataResponse{}, fmt.Errorf("get coin metadata of %s: %w", coinType, err)
	}
	return resp, nil
}

// LatestCheckpoint returns the sequence number of the latest executed checkpoint
func (e *Endpoint) LatestCheckpoint(ctx context.Context) (uint64, error) {
	seq, err := e.client.SuiGetLatestCheckpointSequenceNumber(ctx)
	e.status.RecordRequest(err)
	if err != nil {
		return 0, fmt.Errorf("get latest checkpoint: %w", err)
	}
	return seq, nil
}

// Ping issues the cheapest read the node serves; used as the default latency probe
func (e *Endpoint) Ping(ctx context.Context) error {
	_, err := e.LatestCheckpoint(ctx)
	return err
}

func parseBalance(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBalance, s)
	}
	return v, nil
}
