package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"suitcase/internal/endpoint"
	"suitcase/internal/metrics"
)

// MonitorConfig configures a Monitor
type MonitorConfig struct {
	// Interval between probe rounds; 0 probes once on Start only
	Interval time.Duration
	// Timeout bounds each probe
	Timeout time.Duration
	// Probe defaults to endpoint.Ping
	Probe   Func[*endpoint.Endpoint]
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// Monitor periodically probes a set of endpoints, updates their health and
// latency, and logs their status and request statistics
type Monitor struct {
	endpoints []*endpoint.Endpoint
	probe     Func[*endpoint.Endpoint]
	interval  time.Duration
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	latest   []Sample[*endpoint.Endpoint]
	lastTick time.Time
}

// NewMonitor creates a new Monitor
func NewMonitor(endpoints []*endpoint.Endpoint, cfg MonitorConfig) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())

	fn := cfg.Probe
	if fn == nil {
		fn = func(ctx context.Context, e *endpoint.Endpoint) error {
			return e.Ping(ctx)
		}
	}

	return &Monitor{
		endpoints: endpoints,
		probe:     WithTimeout(fn, cfg.Timeout),
		interval:  cfg.Interval,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger.With().Str("component", "probe-monitor").Logger(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start runs a first probe round synchronously, then keeps probing in the background
func (m *Monitor) Start() {
	m.ProbeNow()

	if m.interval > 0 {
		m.wg.Add(1)
		go m.run()
	}
}

// Stop stops probing and waits for the background goroutine
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

// run probes on every tick until stopped
func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.ProbeNow()
		}
	}
}

// ProbeNow runs one probe round and returns its samples in endpoint order
func (m *Monitor) ProbeNow() []Sample[*endpoint.Endpoint] {
	samples := Measure(m.ctx, m.endpoints, m.probe)

	for _, s := range samples {
		e := s.Endpoint
		m.metrics.ObserveProbe(e.Name(), s.Latency, s.Err)

		if s.OK() {
			if !e.Status().IsHealthy() {
				m.logger.Info().
					Str("endpoint", e.Name()).
					Dur("latency", s.Latency).
					Msg("endpoint recovered, marking healthy")
			}
			e.Status().SetHealthy(true)
			e.Status().SetLatency(s.Latency)
			continue
		}

		if e.Status().IsHealthy() {
			m.logger.Warn().
				Err(s.Err).
				Str("endpoint", e.Name()).
				Msg("probe failed, marking unhealthy")
		}
		e.Status().SetHealthy(false)
	}

	m.mu.Lock()
	m.latest = samples
	previous := m.lastTick
	m.lastTick = time.Now()
	m.mu.Unlock()

	m.logCurrentStatus(samples)
	if !previous.IsZero() {
		m.logRequestStats(time.Since(previous))
	}

	return samples
}

// Latest returns the samples of the most recent round
func (m *Monitor) Latest() []Sample[*endpoint.Endpoint] {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Sample[*endpoint.Endpoint], len(m.latest))
	copy(result, m.latest)
	return result
}

// Fastest returns the lowest-latency endpoint of the most recent round
func (m *Monitor) Fastest() (*endpoint.Endpoint, error) {
	s, err := Fastest(m.Latest())
	if err != nil {
		return nil, err
	}
	return s.Endpoint, nil
}

// logCurrentStatus logs the status of all endpoints
func (m *Monitor) logCurrentStatus(samples []Sample[*endpoint.Endpoint]) {
	var healthy, unhealthy []string

	for _, s := range samples {
		if s.OK() {
			healthy = append(healthy, fmt.Sprintf("%s(%s)", s.Endpoint.Name(), s.Latency.Round(time.Millisecond)))
		} else {
			unhealthy = append(unhealthy, s.Endpoint.Name())
		}
	}

	m.logger.Info().
		Strs("healthy", healthy).
		Strs("unhealthy", unhealthy).
		Msg("endpoints status")
}

// logRequestStats logs the request statistics since the previous round and resets counters
func (m *Monitor) logRequestStats(interval time.Duration) {
	var totalRequests, totalFailures uint64
	requests := make(map[string]uint64, len(m.endpoints))

	for _, e := range m.endpoints {
		count := e.Status().SwapRequestCount()
		requests[e.Name()] = count
		totalRequests += count
		totalFailures += e.Status().SwapFailureCount()
	}

	logEvent := m.logger.Info().
		Uint64("totalRequests", totalRequests).
		Uint64("totalFailures", totalFailures).
		Dur("interval", interval)

	for _, e := range m.endpoints {
		logEvent = logEvent.Uint64(e.Name(), requests[e.Name()])
	}

	logEvent.Msg("request statistics")
}
