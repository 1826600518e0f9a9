// Package pool hands out exclusively owned resources, such as browser
// sessions, with a fixed upper bound on how many exist at once.
package pool

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/tcees/models"
)

// ErrClosed is returned by Get after Close.
var ErrClosed = errors.New("pool: closed")

// Factory creates a new resource.
type Factory[T any] func(ctx context.Context) (T, error)

// Destroyer releases a resource for good.
type Destroyer[T any] func(T)

// Config controls capacity and reuse.
type Config struct {
	// Capacity is the maximum number of resources checked out at once.
	Capacity int

	// Reuse keeps healthy resources idle for the next Get. Without it every
	// resource is destroyed on release.
	Reuse bool

	// Retirement limits for reused resources. Zero values take defaults.
	MaxUses     int           // default: 50
	MaxAge      time.Duration // default: 50m
	MaxErrScore float64       // default: 3
}

// handle tracks the health of one resource.
type handle[T any] struct {
	id       int64
	value    T
	errScore float64
	useCount int
	created  time.Time
}

func (h *handle[T]) recordSuccess() {
	h.useCount++
	h.errScore = math.Max(0, h.errScore-0.5)
}

func (h *handle[T]) recordFailure() {
	h.useCount++
	h.errScore += 1.0
}

func (h *handle[T]) shouldRetire(cfg Config) bool {
	return h.errScore >= cfg.MaxErrScore ||
		h.useCount >= cfg.MaxUses ||
		time.Since(h.created) >= cfg.MaxAge
}

// Pool is a bounded set of resources. Each resource is owned by at most one
// Lease at a time.
type Pool[T any] struct {
	cfg       Config
	factory   Factory[T]
	destroyer Destroyer[T]

	slots chan struct{}

	mu     sync.Mutex
	idle   []*handle[T]
	closed bool

	nextID    atomic.Int64
	inUse     atomic.Int32
	created   atomic.Int64
	destroyed atomic.Int64
}

// New creates a pool. Resources are created lazily by Get.
func New[T any](cfg Config, factory Factory[T], destroyer Destroyer[T]) *Pool[T] {
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.MaxUses <= 0 {
		cfg.MaxUses = 50
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 50 * time.Minute
	}
	if cfg.MaxErrScore <= 0 {
		cfg.MaxErrScore = 3.0
	}
	return &Pool[T]{
		cfg:       cfg,
		factory:   factory,
		destroyer: destroyer,
		slots:     make(chan struct{}, cfg.Capacity),
	}
}

// Get checks out a resource, blocking until a slot is free or ctx is done.
// An idle resource is reused when reuse is enabled; otherwise a new one is
// created.
func (p *Pool[T]) Get(ctx context.Context) (*Lease[T], error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.slots
		return nil, ErrClosed
	}
	var h *handle[T]
	if n := len(p.idle); n > 0 {
		h = p.idle[n-1]
		p.idle = p.idle[:n-1]
	}
	p.mu.Unlock()

	if h == nil {
		v, err := p.factory(ctx)
		if err != nil {
			<-p.slots
			return nil, err
		}
		h = &handle[T]{id: p.nextID.Add(1), value: v, created: time.Now()}
		p.created.Add(1)
	}

	p.inUse.Add(1)
	return &Lease[T]{pool: p, h: h}, nil
}

// put takes a resource back, keeping it idle or destroying it, and frees
// its slot.
func (p *Pool[T]) put(h *handle[T], healthy bool) {
	if healthy {
		h.recordSuccess()
	} else {
		h.recordFailure()
	}

	p.mu.Lock()
	keep := p.cfg.Reuse && !p.closed && healthy && !h.shouldRetire(p.cfg)
	if keep {
		p.idle = append(p.idle, h)
	}
	p.mu.Unlock()

	if !keep {
		slog.Debug("pool: destroying resource", "id", h.id,
			"healthy", healthy, "errScore", h.errScore, "useCount", h.useCount)
		p.destroy(h)
	}

	p.inUse.Add(-1)
	<-p.slots
}

func (p *Pool[T]) destroy(h *handle[T]) {
	p.destroyer(h.value)
	p.destroyed.Add(1)
}

// Stats reports current usage.
func (p *Pool[T]) Stats() models.PoolStats {
	p.mu.Lock()
	idle := len(p.idle)
	p.mu.Unlock()
	return models.PoolStats{
		Capacity:  p.cfg.Capacity,
		InUse:     int(p.inUse.Load()),
		Idle:      idle,
		Created:   p.created.Load(),
		Destroyed: p.destroyed.Load(),
	}
}

// Close destroys idle resources and makes further Gets fail. Resources
// still checked out are destroyed when their lease is released.
func (p *Pool[T]) Close() {
	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, h := range idle {
		p.destroy(h)
	}
}

// Lease is exclusive ownership of one resource. Release it exactly once;
// later calls are no-ops.
type Lease[T any] struct {
	pool *Pool[T]
	h    *handle[T]
	once sync.Once
}

// Value returns the leased resource.
func (l *Lease[T]) Value() T { return l.h.value }

// ID identifies the resource for logging.
func (l *Lease[T]) ID() int64 { return l.h.id }

// Release gives the resource back. healthy=false marks it as failed so it
// is destroyed instead of reused. It reports whether this call released
// the lease.
func (l *Lease[T]) Release(healthy bool) bool {
	released := false
	l.once.Do(func() {
		l.pool.put(l.h, healthy)
		released = true
	})
	return released
}
