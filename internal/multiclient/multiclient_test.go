package multiclient

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/block-vision/sui-go-sdk/models"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suitcase/internal/balance"
	"suitcase/internal/batcher"
	"suitcase/internal/config"
	"suitcase/internal/endpoint"
	"suitcase/internal/metrics"
	"suitcase/internal/testutil"
)

const usdc = "0xdba3::usdc::USDC"

var owners = []string{"0x1", "0x2", "0x3", "0x4", "0x5"}

func newFakes(n int) []*testutil.FakeSuiClient {
	fakes := make([]*testutil.FakeSuiClient, n)
	for i := range fakes {
		fake := testutil.NewFakeSuiClient()
		for j, owner := range owners {
			fake.SetBalance(owner, endpoint.SuiCoinType, big.NewInt(int64(j+1)*1_000_000_000).String())
		}
		fake.Metadata[endpoint.SuiCoinType] = models.CoinMetadataResponse{Decimals: 9, Symbol: "SUI", Name: "Sui"}
		fakes[i] = fake
	}
	return fakes
}

func newTestClient(t *testing.T, cfg Config, fakes ...*testutil.FakeSuiClient) *MultiClient {
	t.Helper()

	endpoints := make([]*endpoint.Endpoint, len(fakes))
	for i, fake := range fakes {
		name := string(rune('a' + i))
		endpoints[i] = endpoint.New(endpoint.Config{
			Name:   name,
			RPCURL: "http://" + name,
			Client: fake,
			Logger: zerolog.Nop(),
		})
	}

	if cfg.MetadataCacheSize == 0 {
		cfg.MetadataCacheSize = 16
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = time.Second
	}

	c, err := New(endpoints, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestNew_EmptyPool(t *testing.T) {
	_, err := New(nil, Config{}, zerolog.Nop())
	require.ErrorIs(t, err, batcher.ErrEmptyPool)
}

func TestNewFromConfig(t *testing.T) {
	cfg, err := config.FromURLs([]string{"https://one.example", "https://two.example"})
	require.NoError(t, err)

	c, err := NewFromConfig(cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	require.Len(t, c.Endpoints(), 2)
	assert.Equal(t, "https://one.example", c.Endpoints()[0].RPCURL())
	assert.Equal(t, cfg.GetMinBatchIntervalDuration(), c.Executor().MinBatchInterval())
}

func TestGetBalances(t *testing.T) {
	c := newTestClient(t, Config{}, newFakes(2)...)

	balances, err := c.GetBalances(context.Background(), owners, endpoint.SuiCoinType)
	require.NoError(t, err)
	require.Len(t, balances, len(owners))

	for i, b := range balances {
		assert.Equal(t, owners[i], b.Owner)
		assert.Equal(t, endpoint.SuiCoinType, b.CoinType)
		assert.Equal(t, big.NewInt(int64(i+1)*1_000_000_000), b.Total)
	}
}

func TestGetBalances_RetriesOnAnotherEndpoint(t *testing.T) {
	fakes := newFakes(2)
	// 0x2 is in the first batch, served by a
	fakes[0].FailNext("0x2", 1)

	c := newTestClient(t, Config{}, fakes...)

	balances, err := c.GetBalances(context.Background(), owners, endpoint.SuiCoinType)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(2_000_000_000), balances[1].Total)

	assert.Equal(t, 1, fakes[0].Calls("0x2"))
	assert.Equal(t, 1, fakes[1].Calls("0x2"))
}

func TestGetBalances_PartialFailure(t *testing.T) {
	fakes := newFakes(2)
	fakes[0].Down = true

	c := newTestClient(t, Config{MaxPasses: 1}, fakes...)

	balances, err := c.GetBalances(context.Background(), owners[:3], endpoint.SuiCoinType)

	var pfe *batcher.PartialFailureError
	require.ErrorAs(t, err, &pfe)
	assert.Equal(t, []int{0, 1}, pfe.Failed)
	assert.ErrorIs(t, err, testutil.ErrUnavailable)

	require.Len(t, balances, 3)
	assert.Nil(t, balances[0].Total)
	assert.Nil(t, balances[1].Total)
	assert.Equal(t, big.NewInt(3_000_000_000), balances[2].Total)
}

func TestGetBalances_Canceled(t *testing.T) {
	fakes := newFakes(1)
	fakes[0].Down = true

	c := newTestClient(t, Config{}, fakes...)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	balances, err := c.GetBalances(ctx, owners, endpoint.SuiCoinType)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, balances)
}

func TestGetAllBalances(t *testing.T) {
	fakes := newFakes(2)
	for _, fake := range fakes {
		fake.SetBalance("0x1", usdc, "2500000")
	}

	c := newTestClient(t, Config{}, fakes...)

	all, err := c.GetAllBalances(context.Background(), []string{"0x1", "0x9"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Len(t, all[0], 2)
	assert.Empty(t, all[1])
}

func TestExecuteInBatches_RequestTimeout(t *testing.T) {
	c := newTestClient(t, Config{MaxPasses: 1, RequestTimeout: 20 * time.Millisecond}, newFakes(2)...)

	_, err := ExecuteInBatches(context.Background(), c, []int{1, 2, 3},
		func(ctx context.Context, e *endpoint.Endpoint, i int) (string, error) {
			if i == 2 {
				<-ctx.Done()
				return "", ctx.Err()
			}
			return e.Name(), nil
		})

	var pfe *batcher.PartialFailureError
	require.ErrorAs(t, err, &pfe)
	assert.Equal(t, []int{1}, pfe.Failed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecuteInBatches_Endpoints(t *testing.T) {
	c := newTestClient(t, Config{}, newFakes(2)...)

	names, err := ExecuteInBatches(context.Background(), c, []int{0, 1, 2, 3, 4},
		func(ctx context.Context, e *endpoint.Endpoint, _ int) (string, error) {
			return e.Name(), nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a", "b", "b", "a"}, names)
}

func TestGetCoinDecimals_Cached(t *testing.T) {
	fakes := newFakes(2)
	c := newTestClient(t, Config{}, fakes...)

	for n := 0; n < 3; n++ {
		d, err := c.GetCoinDecimals(context.Background(), endpoint.SuiCoinType)
		require.NoError(t, err)
		assert.Equal(t, uint(9), d)
	}

	calls := fakes[0].Calls(endpoint.SuiCoinType) + fakes[1].Calls(endpoint.SuiCoinType)
	assert.Equal(t, 1, calls)
}

func TestGetCoinDecimals_Failover(t *testing.T) {
	fakes := newFakes(2)
	fakes[0].FailNext(endpoint.SuiCoinType, 1)

	c := newTestClient(t, Config{}, fakes...)

	d, err := c.GetCoinDecimals(context.Background(), endpoint.SuiCoinType)
	require.NoError(t, err)
	assert.Equal(t, uint(9), d)
	assert.Equal(t, 1, fakes[0].Calls(endpoint.SuiCoinType))
	assert.Equal(t, 1, fakes[1].Calls(endpoint.SuiCoinType))
}

func TestGetCoinDecimals_HealthyFirst(t *testing.T) {
	fakes := newFakes(2)
	c := newTestClient(t, Config{}, fakes...)
	c.Endpoints()[0].Status().SetHealthy(false)

	_, err := c.GetCoinDecimals(context.Background(), endpoint.SuiCoinType)
	require.NoError(t, err)
	assert.Equal(t, 0, fakes[0].Calls(endpoint.SuiCoinType))
	assert.Equal(t, 1, fakes[1].Calls(endpoint.SuiCoinType))
}

func TestGetCoinDecimals_AllFailed(t *testing.T) {
	c := newTestClient(t, Config{}, newFakes(2)...)

	_, err := c.GetCoinDecimals(context.Background(), usdc)
	require.ErrorIs(t, err, ErrAllEndpointsFailed)
	assert.Contains(t, err.Error(), usdc)
}

func TestFormattedBalances(t *testing.T) {
	fakes := newFakes(2)
	for _, fake := range fakes {
		fake.SetBalance("0x1", endpoint.SuiCoinType, "1234567890000")
		fake.SetBalance("0x2", endpoint.SuiCoinType, "1500000000")
	}

	c := newTestClient(t, Config{}, fakes...)

	result, err := c.FormattedBalances(context.Background(), []string{"0x1", "0x2"}, endpoint.SuiCoinType, balance.Standard)
	require.NoError(t, err)
	require.Len(t, result, 2)

	assert.Equal(t, uint(9), result[0].Decimals)
	assert.Equal(t, "1234.56789", result[0].Exact)
	assert.Equal(t, "1,235", result[0].Display)
	assert.Equal(t, "1.5", result[1].Exact)
	assert.Equal(t, "1.50", result[1].Display)
}

func TestFormattedBalances_UnknownCoin(t *testing.T) {
	c := newTestClient(t, Config{}, newFakes(1)...)

	_, err := c.FormattedBalances(context.Background(), owners, usdc, balance.Standard)
	require.ErrorIs(t, err, ErrAllEndpointsFailed)
}

func TestFastestEndpoint(t *testing.T) {
	fakes := newFakes(3)
	fakes[0].Delay = 40 * time.Millisecond
	fakes[1].Delay = 2 * time.Millisecond
	fakes[2].Down = true

	reg := prometheus.NewRegistry()
	c := newTestClient(t, Config{ProbeTimeout: time.Second, Metrics: metrics.New(reg)}, fakes...)

	best, latency, err := c.FastestEndpoint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", best.Name())
	assert.GreaterOrEqual(t, latency, 2*time.Millisecond)

	latencies, err := promtest.GatherAndCount(reg, "suitcase_probe_latency_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, latencies)

	failures, err := promtest.GatherAndCount(reg, "suitcase_probe_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, failures)
}

func TestFastestEndpoint_AllDown(t *testing.T) {
	fakes := newFakes(2)
	for _, fake := range fakes {
		fake.Down = true
	}
	c := newTestClient(t, Config{}, fakes...)

	_, _, err := c.FastestEndpoint(context.Background())
	require.Error(t, err)
}

func TestProbeLatency_Timeout(t *testing.T) {
	fakes := newFakes(2)
	fakes[0].Delay = time.Second

	c := newTestClient(t, Config{ProbeTimeout: 20 * time.Millisecond}, fakes...)

	samples := c.ProbeLatency(context.Background())
	require.Len(t, samples, 2)
	assert.True(t, errors.Is(samples[0].Err, context.DeadlineExceeded))
	assert.True(t, samples[1].OK())
}

func TestProbeWSLatency(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	withWS := endpoint.New(endpoint.Config{
		Name:   "ws",
		RPCURL: "http://ws",
		WSURL:  "ws" + strings.TrimPrefix(srv.URL, "http"),
		Client: testutil.NewFakeSuiClient(),
		Logger: zerolog.Nop(),
	})
	withoutWS := endpoint.New(endpoint.Config{
		Name:   "http-only",
		RPCURL: "http://http-only",
		Client: testutil.NewFakeSuiClient(),
		Logger: zerolog.Nop(),
	})

	c, err := New([]*endpoint.Endpoint{withoutWS, withWS}, Config{ProbeTimeout: time.Second}, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	samples, err := c.ProbeWSLatency(context.Background())
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "ws", samples[0].Endpoint.Name())
	assert.True(t, samples[0].OK())
}

func TestProbeWSLatency_NoWSEndpoints(t *testing.T) {
	c := newTestClient(t, Config{}, newFakes(1)...)

	_, err := c.ProbeWSLatency(context.Background())
	require.ErrorIs(t, err, ErrNoWSEndpoints)
}
