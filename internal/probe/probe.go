package probe

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// ErrAllProbesFailed is returned by Fastest when no probe succeeded
var ErrAllProbesFailed = errors.New("all probes failed")

// Func issues one lightweight request against endpoint
type Func[E any] func(ctx context.Context, endpoint E) error

// Sample is the outcome of probing one endpoint.
// Latency is only meaningful when Err is nil.
type Sample[E any] struct {
	Endpoint E
	Latency  time.Duration
	Err      error
}

// OK returns true if the probe succeeded
func (s Sample[E]) OK() bool {
	return s.Err == nil
}

// Measure probes every endpoint once, all concurrently, and returns the samples
// in endpoint order. Failures are reported in the samples, never returned.
func Measure[E any](ctx context.Context, endpoints []E, fn Func[E]) []Sample[E] {
	samples := make([]Sample[E], len(endpoints))

	var g errgroup.Group
	for i, ep := range endpoints {
		i, ep := i, ep
		g.Go(func() error {
			started := time.Now()
			err := fn(ctx, ep)
			latency := time.Since(started)

			samples[i] = Sample[E]{Endpoint: ep, Err: err}
			if err == nil {
				samples[i].Latency = latency
			}
			return nil
		})
	}
	_ = g.Wait()

	return samples
}

// Sort orders samples by ascending latency, failed samples last.
// The sort is stable and happens in place.
func Sort[E any](samples []Sample[E]) {
	sort.SliceStable(samples, func(i, j int) bool {
		a, b := samples[i], samples[j]
		if a.OK() != b.OK() {
			return a.OK()
		}
		if !a.OK() {
			return false
		}
		return a.Latency < b.Latency
	})
}

// Fastest returns the successful sample with the lowest latency.
// Failed samples count as infinitely slow and are never chosen.
func Fastest[E any](samples []Sample[E]) (Sample[E], error) {
	var best Sample[E]
	found := false
	for _, s := range samples {
		if !s.OK() {
			continue
		}
		if !found || s.Latency < best.Latency {
			best = s
			found = true
		}
	}
	if !found {
		return Sample[E]{}, fmt.Errorf("%w (%d endpoints)", ErrAllProbesFailed, len(samples))
	}
	return best, nil
}

// DialWS opens a WebSocket connection to url and closes it again,
// so the probe latency covers the TCP, TLS and upgrade handshakes
func DialWS(ctx context.Context, url string) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial %s: HTTP %d: %w", url, resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial %s: %w", url, err)
	}
	defer conn.Close()

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return nil
}

// WithTimeout bounds every probe of fn by timeout; 0 leaves fn unchanged
func WithTimeout[E any](fn Func[E], timeout time.Duration) Func[E] {
	if timeout <= 0 {
		return fn
	}
	return func(ctx context.Context, endpoint E) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return fn(ctx, endpoint)
	}
}
