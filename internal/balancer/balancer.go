package balancer

import (
	"errors"
	"sync"
)

// ErrEmptyPool is returned when a balancer is created without endpoints
var ErrEmptyPool = errors.New("endpoint pool is empty")

// RoundRobin cycles through a fixed, non-empty pool in order.
// Membership never changes after construction; only the cursor moves.
type RoundRobin[E any] struct {
	items []E
	mu    sync.Mutex
	index int
}

// NewRoundRobin creates a new round-robin balancer over items.
// The slice is copied so later changes by the caller have no effect.
func NewRoundRobin[E any](items []E) (*RoundRobin[E], error) {
	if len(items) == 0 {
		return nil, ErrEmptyPool
	}

	pool := make([]E, len(items))
	copy(pool, items)

	return &RoundRobin[E]{
		items: pool,
	}, nil
}

// Next returns the item under the cursor and advances the cursor
func (rr *RoundRobin[E]) Next() E {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	item := rr.items[rr.index]
	rr.index = (rr.index + 1) % len(rr.items)
	return item
}

// Position returns the cursor, i.e. the index Next will return
func (rr *RoundRobin[E]) Position() int {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return rr.index
}

// Len returns the pool size
func (rr *RoundRobin[E]) Len() int {
	return len(rr.items)
}

// Items returns a copy of the pool in order
func (rr *RoundRobin[E]) Items() []E {
	result := make([]E, len(rr.items))
	copy(result, rr.items)
	return result
}
