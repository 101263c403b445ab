package multiclient

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"

	"suitcase/internal/balance"
	"suitcase/internal/batcher"
	"suitcase/internal/cache"
	"suitcase/internal/config"
	"suitcase/internal/endpoint"
	"suitcase/internal/metrics"
	"suitcase/internal/probe"
)

// ErrAllEndpointsFailed is returned when a single request failed on every endpoint
var ErrAllEndpointsFailed = errors.New("all endpoints failed")

// ErrNoWSEndpoints is returned when a WebSocket probe is requested but no endpoint has a WS URL
var ErrNoWSEndpoints = errors.New("no endpoints with a WebSocket URL")

// Config holds the MultiClient settings
type Config struct {
	MinBatchInterval time.Duration
	// MaxPasses bounds the retry passes of batched calls; 0 retries until every item succeeds
	MaxPasses int
	// RequestTimeout bounds every single request; 0 disables it
	RequestTimeout time.Duration
	ProbeTimeout   time.Duration

	MetadataCacheSize int
	// MetadataCacheTTL is how long coin decimals are cached; 0 caches forever
	MetadataCacheTTL time.Duration

	Metrics *metrics.Metrics
}

// ConfigFrom converts the file configuration into client settings
func ConfigFrom(cfg *config.Config, m *metrics.Metrics) Config {
	return Config{
		MinBatchInterval:  cfg.GetMinBatchIntervalDuration(),
		MaxPasses:         cfg.MaxPasses,
		RequestTimeout:    cfg.GetRequestTimeoutDuration(),
		ProbeTimeout:      cfg.GetProbeTimeoutDuration(),
		MetadataCacheSize: cfg.MetadataCacheSize,
		MetadataCacheTTL:  cfg.GetMetadataCacheTTLDuration(),
		Metrics:           m,
	}
}

// Balance is the balance of one owner
type Balance struct {
	Owner    string
	CoinType string
	// Total is nil if the owner's request never succeeded
	Total *big.Int
}

// FormattedBalance is a balance rendered for display
type FormattedBalance struct {
	Balance
	Decimals uint
	// Exact is the lossless decimal string, e.g. "1234.5"
	Exact string
	// Display is the rounded, grouped string, e.g. "1,235" or "1.23M"
	Display string
}

// MultiClient spreads Sui reads over a pool of fullnodes
type MultiClient struct {
	endpoints []*endpoint.Endpoint
	executor  *batcher.Executor[*endpoint.Endpoint]
	decimals  cache.Cache[string, uint]
	lookups   singleflight.Group

	requestTimeout time.Duration
	probeTimeout   time.Duration

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New creates a MultiClient over endpoints
func New(endpoints []*endpoint.Endpoint, cfg Config, logger zerolog.Logger) (*MultiClient, error) {
	logger = logger.With().Str("component", "multiclient").Logger()

	executor, err := batcher.NewExecutor(endpoints,
		batcher.WithMinBatchInterval(cfg.MinBatchInterval),
		batcher.WithMaxPasses(cfg.MaxPasses),
		batcher.WithLogger(logger),
		batcher.WithMetrics(cfg.Metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}

	var decimals cache.Cache[string, uint]
	if cfg.MetadataCacheSize > 0 {
		decimals, err = cache.NewMemoryCache[string, uint](cfg.MetadataCacheSize, cfg.MetadataCacheTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to create metadata cache: %w", err)
		}
	} else {
		decimals = cache.NewNoopCache[string, uint]()
	}

	logger.Debug().
		Int("endpoints", len(endpoints)).
		Dur("minBatchInterval", cfg.MinBatchInterval).
		Int("maxPasses", cfg.MaxPasses).
		Msg("multiclient created")

	return &MultiClient{
		endpoints:      executor.Endpoints(),
		executor:       executor,
		decimals:       decimals,
		requestTimeout: cfg.RequestTimeout,
		probeTimeout:   cfg.ProbeTimeout,
		metrics:        cfg.Metrics,
		logger:         logger,
	}, nil
}

// NewFromConfig creates a MultiClient with SDK-backed endpoints from configuration
func NewFromConfig(cfg *config.Config, m *metrics.Metrics, logger zerolog.Logger) (*MultiClient, error) {
	endpoints := make([]*endpoint.Endpoint, 0, len(cfg.Endpoints))
	for _, ec := range cfg.Endpoints {
		endpoints = append(endpoints, endpoint.NewFromConfig(ec, logger))
	}
	return New(endpoints, ConfigFrom(cfg, m), logger)
}

// Endpoints returns the pool in round-robin order
func (c *MultiClient) Endpoints() []*endpoint.Endpoint {
	return c.executor.Endpoints()
}

// Executor returns the underlying batch executor
func (c *MultiClient) Executor() *batcher.Executor[*endpoint.Endpoint] {
	return c.executor
}

// Close releases the metadata cache
func (c *MultiClient) Close() {
	c.decimals.Close()
}

// ExecuteInBatches runs op for every input over the client's pool, each call
// bounded by the request timeout. See batcher.ExecuteInBatches for the semantics.
func ExecuteInBatches[I, O any](ctx context.Context, c *MultiClient, inputs []I, op batcher.Operation[*endpoint.Endpoint, I, O]) ([]O, error) {
	return batcher.ExecuteInBatches(ctx, c.executor, inputs, withTimeout(c, op))
}

// GetBalances returns the coinType balance of every owner, in owner order.
// On *batcher.PartialFailureError the balances of the failed owners have a nil Total.
func (c *MultiClient) GetBalances(ctx context.Context, owners []string, coinType string) ([]Balance, error) {
	totals, err := ExecuteInBatches(ctx, c, owners,
		func(ctx context.Context, e *endpoint.Endpoint, owner string) (*big.Int, error) {
			return e.GetBalance(ctx, owner, coinType)
		})
	if totals == nil {
		return nil, err
	}

	result := make([]Balance, len(owners))
	for i, owner := range owners {
		result[i] = Balance{Owner: owner, CoinType: coinType, Total: totals[i]}
	}
	return result, err
}

// GetAllBalances returns every coin balance of every owner, in owner order
func (c *MultiClient) GetAllBalances(ctx context.Context, owners []string) ([][]endpoint.CoinBalance, error) {
	return ExecuteInBatches(ctx, c, owners,
		func(ctx context.Context, e *endpoint.Endpoint, owner string) ([]endpoint.CoinBalance, error) {
			return e.GetAllBalances(ctx, owner)
		})
}

// GetCoinDecimals returns the number of decimals of coinType.
// Results are cached; concurrent lookups of the same coin share one request.
func (c *MultiClient) GetCoinDecimals(ctx context.Context, coinType string) (uint, error) {
	if d, ok := c.decimals.Get(coinType); ok {
		return d, nil
	}

	v, err, _ := c.lookups.Do(coinType, func() (interface{}, error) {
		md, err := c.lookupMetadata(ctx, coinType)
		if err != nil {
			return uint(0), err
		}
		if md.Decimals < 0 {
			return uint(0), fmt.Errorf("coin %s reports negative decimals %d", coinType, md.Decimals)
		}

		d := uint(md.Decimals)
		c.decimals.Set(coinType, d)
		return d, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(uint), nil
}

// FormattedBalances fetches balances and coin decimals and renders them in both
// exact and display form
func (c *MultiClient) FormattedBalances(ctx context.Context, owners []string, coinType string, mode balance.Mode) ([]FormattedBalance, error) {
	decimals, err := c.GetCoinDecimals(ctx, coinType)
	if err != nil {
		return nil, err
	}

	balances, err := c.GetBalances(ctx, owners, coinType)
	if balances == nil {
		return nil, err
	}

	result := make([]FormattedBalance, len(balances))
	for i, b := range balances {
		result[i] = FormattedBalance{Balance: b, Decimals: decimals}
		if b.Total == nil {
			continue
		}
		result[i].Exact = balance.BalanceToString(b.Total, decimals)
		result[i].Display = balance.FormatBalance(b.Total, decimals, mode)
	}
	return result, err
}

// ProbeLatency measures every endpoint with a checkpoint request.
// Samples are returned in pool order.
func (c *MultiClient) ProbeLatency(ctx context.Context) []probe.Sample[*endpoint.Endpoint] {
	fn := probe.WithTimeout(func(ctx context.Context, e *endpoint.Endpoint) error {
		return e.Ping(ctx)
	}, c.probeTimeout)

	return c.observe(probe.Measure(ctx, c.endpoints, fn))
}

// ProbeWSLatency measures the WebSocket handshake of every endpoint that has a WS URL
func (c *MultiClient) ProbeWSLatency(ctx context.Context) ([]probe.Sample[*endpoint.Endpoint], error) {
	var endpoints []*endpoint.Endpoint
	for _, e := range c.endpoints {
		if e.HasWS() {
			endpoints = append(endpoints, e)
		}
	}
	if len(endpoints) == 0 {
		return nil, ErrNoWSEndpoints
	}

	fn := probe.WithTimeout(func(ctx context.Context, e *endpoint.Endpoint) error {
		return probe.DialWS(ctx, e.WSURL())
	}, c.probeTimeout)

	return c.observe(probe.Measure(ctx, endpoints, fn)), nil
}

// FastestEndpoint probes the pool and returns the endpoint with the lowest latency
func (c *MultiClient) FastestEndpoint(ctx context.Context) (*endpoint.Endpoint, time.Duration, error) {
	best, err := probe.Fastest(c.ProbeLatency(ctx))
	if err != nil {
		return nil, 0, err
	}
	return best.Endpoint, best.Latency, nil
}

func (c *MultiClient) observe(samples []probe.Sample[*endpoint.Endpoint]) []probe.Sample[*endpoint.Endpoint] {
	for _, s := range samples {
		c.metrics.ObserveProbe(s.Endpoint.Name(), s.Latency, s.Err)
		if !s.OK() {
			c.logger.Debug().Err(s.Err).Str("endpoint", s.Endpoint.Name()).Msg("probe failed")
		}
	}
	return samples
}

// lookupMetadata tries the endpoints one after another, healthy ones first,
// until one returns the coin metadata
func (c *MultiClient) lookupMetadata(ctx context.Context, coinType string) (metadata, error) {
	var errs error
	for _, e := range c.byHealth() {
		reqCtx, cancel := c.requestContext(ctx)
		resp, reqErr := e.GetCoinMetadata(reqCtx, coinType)
		cancel()
		if reqErr == nil {
			return metadata{Decimals: resp.Decimals}, nil
		}

		errs = multierr.Append(errs, reqErr)
		if ctx.Err() != nil {
			return metadata{}, ctx.Err()
		}

		c.logger.Debug().
			Err(reqErr).
			Str("endpoint", e.Name()).
			Str("coinType", coinType).
			Msg("metadata lookup failed, trying next endpoint")
	}
	return metadata{}, fmt.Errorf("%w: coin metadata of %s: %w", ErrAllEndpointsFailed, coinType, errs)
}

// metadata is the subset of the coin metadata the client uses
type metadata struct {
	Decimals int
}

// byHealth returns the endpoints with healthy ones first, keeping pool order otherwise
func (c *MultiClient) byHealth() []*endpoint.Endpoint {
	result := make([]*endpoint.Endpoint, 0, len(c.endpoints))
	var unhealthy []*endpoint.Endpoint
	for _, e := range c.endpoints {
		if e.Status().IsHealthy() {
			result = append(result, e)
		} else {
			unhealthy = append(unhealthy, e)
		}
	}
	return append(result, unhealthy...)
}

func (c *MultiClient) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

// withTimeout bounds every call of op by the client's request timeout
func withTimeout[I, O any](c *MultiClient, op batcher.Operation[*endpoint.Endpoint, I, O]) batcher.Operation[*endpoint.Endpoint, I, O] {
	return func(ctx context.Context, e *endpoint.Endpoint, input I) (O, error) {
		ctx, cancel := c.requestContext(ctx)
		defer cancel()
		return op(ctx, e, input)
	}
}
