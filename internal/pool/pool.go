// Package pool provides a bounded, thread-safe connection pool.
//
// The pool opens MinConns connections eagerly at construction and grows on
// demand up to MaxConns. Acquire blocks while all connections are checked
// out, waiting FIFO for a release, and fails with ErrPoolExhausted once the
// acquire timeout elapses. Handles are exclusively owned between Acquire and
// Release; releasing twice is a contract violation reported as
// ErrHandleMisuse. Broken connections are discarded instead of returned and
// the pool replenishes toward the floor on later acquisitions.
package pool

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/meteolog/internal/errors"
	"github.com/xtxerr/meteolog/internal/logging"
)

// Factory creates and destroys pooled connections.
type Factory[T any] interface {
	// Open establishes a new connection. It is called during construction
	// for the eager floor and later whenever the pool grows.
	Open(ctx context.Context) (T, error)

	// Close tears a connection down. Called for discarded connections and
	// during pool shutdown.
	Close(conn T) error
}

// Config holds pool settings.
type Config struct {
	// MinConns connections are opened eagerly and kept as the floor.
	MinConns int

	// MaxConns is the hard ceiling on open connections.
	MaxConns int

	// AcquireTimeout bounds how long Acquire waits for a free connection.
	AcquireTimeout time.Duration
}

// handoff is what a releasing goroutine passes to a waiting acquirer:
// either a live connection, permission to open one, or the closed signal.
type handoff[T any] struct {
	conn    T
	hasConn bool
	closed  bool
}

type waiter[T any] struct {
	ch        chan handoff[T] // buffered, capacity 1
	delivered bool            // set under the pool mutex
}

// Pool is a bounded connection pool. It uses a single mutex guarding the
// idle set, the waiter queue and the counters, so the accounting invariant
// idle+active == total <= max holds at every observable instant.
type Pool[T any] struct {
	factory Factory[T]
	cfg     Config
	log     *slog.Logger

	mu           sync.Mutex
	idle         []T
	waiters      *list.List // of *waiter[T], FIFO
	live         map[*Handle[T]]struct{}
	total        int // open connections plus reserved in-flight opens
	active       int // checked out or reserved for an acquirer
	replenishing bool
	closed       bool

	// Statistics
	acquireCount atomic.Int64
	timeoutCount atomic.Int64
	createCount  atomic.Int64
	discardCount atomic.Int64
}

// New creates a pool and eagerly opens the MinConns floor. If any initial
// connection fails, everything opened so far is closed and the error is
// returned.
func New[T any](cfg Config, factory Factory[T]) (*Pool[T], error) {
	if cfg.MaxConns < 1 {
		return nil, errors.NewInvalidValue("max_conns", cfg.MaxConns, "must be at least 1")
	}
	if cfg.MinConns < 0 || cfg.MinConns > cfg.MaxConns {
		return nil, errors.NewInvalidValue("min_conns", cfg.MinConns, "must be between 0 and max_conns")
	}
	if cfg.AcquireTimeout <= 0 {
		return nil, errors.NewInvalidValue("acquire_timeout", cfg.AcquireTimeout, "must be positive")
	}

	p := &Pool[T]{
		factory: factory,
		cfg:     cfg,
		log:     logging.Component("pool"),
		waiters: list.New(),
		live:    make(map[*Handle[T]]struct{}),
	}

	for i := 0; i < cfg.MinConns; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.AcquireTimeout)
		conn, err := factory.Open(ctx)
		cancel()
		if err != nil {
			for _, c := range p.idle {
				_ = factory.Close(c)
			}
			return nil, fmt.Errorf("open initial connection %d/%d: %w", i+1, cfg.MinConns, err)
		}
		p.idle = append(p.idle, conn)
		p.total++
		p.createCount.Add(1)
	}

	p.log.Debug("pool ready", "min", cfg.MinConns, "max", cfg.MaxConns)
	return p, nil
}

// ============================================================================
// Acquire / wait queue
// ============================================================================

// Acquire returns a handle exclusively owned by the caller. It takes an
// idle connection when one exists, opens a new one while total is below
// MaxConns, and otherwise waits FIFO for a release. The wait ends with
// ErrPoolExhausted when the acquire timeout (or the caller's deadline)
// elapses first.
func (p *Pool[T]) Acquire(ctx context.Context) (*Handle[T], error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	p.acquireCount.Add(1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.ErrPoolClosed
	}

	p.maybeReplenishLocked()

	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.active++
		h := p.registerLocked(conn)
		p.mu.Unlock()
		return h, nil
	}

	if p.total < p.cfg.MaxConns {
		p.total++
		p.active++
		p.mu.Unlock()
		return p.open(ctx)
	}

	// All connections are checked out: wait for one.
	w := &waiter[T]{ch: make(chan handoff[T], 1)}
	elem := p.waiters.PushBack(w)
	p.mu.Unlock()

	start := time.Now()
	select {
	case h := <-w.ch:
		return p.redeem(ctx, h)

	case <-ctx.Done():
		p.mu.Lock()
		if !w.delivered {
			p.waiters.Remove(elem)
			p.mu.Unlock()
			return nil, p.waitErr(ctx, start)
		}
		p.mu.Unlock()
		// A handoff raced the timeout; take it and pass it on.
		p.requeue(<-w.ch)
		return nil, p.waitErr(ctx, start)
	}
}

// waitErr maps a context error on the wait path to the pool error contract.
func (p *Pool[T]) waitErr(ctx context.Context, start time.Time) error {
	if ctx.Err() == context.DeadlineExceeded {
		p.timeoutCount.Add(1)
		return fmt.Errorf("no connection after %v (max %d checked out): %w",
			time.Since(start).Round(time.Millisecond), p.cfg.MaxConns, errors.ErrPoolExhausted)
	}
	return fmt.Errorf("acquire: %w", ctx.Err())
}

// redeem converts a handoff into an owned handle. Accounting for the
// connection (or the reserved open slot) was already transferred to this
// acquirer by the goroutine that produced the handoff.
func (p *Pool[T]) redeem(ctx context.Context, h handoff[T]) (*Handle[T], error) {
	if h.closed {
		return nil, errors.ErrPoolClosed
	}
	if h.hasConn {
		p.mu.Lock()
		if p.closed {
			p.total--
			p.active--
			p.mu.Unlock()
			_ = p.factory.Close(h.conn)
			return nil, errors.ErrPoolClosed
		}
		handle := p.registerLocked(h.conn)
		p.mu.Unlock()
		return handle, nil
	}
	// Permission to open a replacement for a discarded connection.
	return p.open(ctx)
}

// open calls the factory with total/active already reserved by the caller.
// On failure the reservation is rolled back, or passed to the next waiter
// so it can retry instead of idling out.
func (p *Pool[T]) open(ctx context.Context) (*Handle[T], error) {
	conn, err := p.factory.Open(ctx)
	if err != nil {
		p.mu.Lock()
		p.unreserveLocked()
		p.mu.Unlock()
		return nil, fmt.Errorf("open connection: %w", err)
	}
	p.createCount.Add(1)

	p.mu.Lock()
	if p.closed {
		p.total--
		p.active--
		p.mu.Unlock()
		_ = p.factory.Close(conn)
		return nil, errors.ErrPoolClosed
	}
	h := p.registerLocked(conn)
	p.mu.Unlock()
	return h, nil
}

// unreserveLocked rolls back one reserved open, handing the slot to the
// next waiter when there is one.
func (p *Pool[T]) unreserveLocked() {
	p.total--
	p.active--
	if !p.closed {
		if w := p.popWaiterLocked(); w != nil {
			p.total++
			p.active++
			w.ch <- handoff[T]{}
		}
	}
}

// requeue hands a redeemed-but-unwanted handoff to the next waiter, or
// folds it back into the pool.
func (p *Pool[T]) requeue(h handoff[T]) {
	if h.closed {
		return
	}
	if !h.hasConn {
		p.mu.Lock()
		p.unreserveLocked()
		p.mu.Unlock()
		return
	}

	p.mu.Lock()
	if p.closed {
		p.total--
		p.active--
		p.mu.Unlock()
		_ = p.factory.Close(h.conn)
		return
	}
	if w := p.popWaiterLocked(); w != nil {
		w.ch <- h
		p.mu.Unlock()
		return
	}
	p.idle = append(p.idle, h.conn)
	p.active--
	p.mu.Unlock()
}

func (p *Pool[T]) popWaiterLocked() *waiter[T] {
	front := p.waiters.Front()
	if front == nil {
		return nil
	}
	p.waiters.Remove(front)
	w := front.Value.(*waiter[T])
	w.delivered = true
	return w
}

func (p *Pool[T]) registerLocked(conn T) *Handle[T] {
	h := &Handle[T]{conn: conn, pool: p}
	p.live[h] = struct{}{}
	return h
}

// maybeReplenishLocked tops the pool back up toward MinConns after
// discards, one background open per acquisition.
func (p *Pool[T]) maybeReplenishLocked() {
	if p.replenishing || p.total >= p.cfg.MinConns || p.total >= p.cfg.MaxConns {
		return
	}
	p.replenishing = true
	p.total++
	p.active++
	go p.replenish()
}

func (p *Pool[T]) replenish() {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.AcquireTimeout)
	defer cancel()

	conn, err := p.factory.Open(ctx)

	p.mu.Lock()
	p.replenishing = false
	if err != nil {
		p.total--
		p.active--
		p.mu.Unlock()
		p.log.Warn("replenish connection failed", "error", err)
		return
	}
	p.createCount.Add(1)
	if p.closed {
		p.total--
		p.active--
		p.mu.Unlock()
		_ = p.factory.Close(conn)
		return
	}
	if w := p.popWaiterLocked(); w != nil {
		// The reservation becomes the waiter's checkout.
		w.ch <- handoff[T]{conn: conn, hasConn: true}
		p.mu.Unlock()
		return
	}
	p.idle = append(p.idle, conn)
	p.active--
	p.mu.Unlock()
}

// ============================================================================
// Release / discard (called through Handle)
// ============================================================================

func (p *Pool[T]) release(h *Handle[T]) error {
	p.mu.Lock()
	delete(p.live, h)

	if p.closed {
		p.total--
		p.active--
		p.mu.Unlock()
		if h.forced.Load() {
			return nil
		}
		return p.factory.Close(h.conn)
	}

	if w := p.popWaiterLocked(); w != nil {
		// Ownership moves straight to the waiter; active is unchanged.
		w.ch <- handoff[T]{conn: h.conn, hasConn: true}
		p.mu.Unlock()
		return nil
	}

	p.idle = append(p.idle, h.conn)
	p.active--
	p.mu.Unlock()
	return nil
}

func (p *Pool[T]) discard(h *Handle[T]) error {
	p.discardCount.Add(1)

	p.mu.Lock()
	delete(p.live, h)
	p.total--
	p.active--
	if !p.closed {
		if w := p.popWaiterLocked(); w != nil {
			// Reserve a fresh open on behalf of the waiter.
			p.total++
			p.active++
			w.ch <- handoff[T]{}
		}
	}
	p.mu.Unlock()

	if h.forced.Load() {
		return nil
	}
	return p.factory.Close(h.conn)
}

// ============================================================================
// Shutdown
// ============================================================================

// Close shuts the pool down: idle connections are closed immediately,
// checked-out connections are closed in place (their handles report the
// close on release), waiters are woken with ErrPoolClosed, and subsequent
// Acquire calls fail with ErrPoolClosed. Close is idempotent.
func (p *Pool[T]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	idle := p.idle
	p.idle = nil
	p.total -= len(idle)

	for {
		w := p.popWaiterLocked()
		if w == nil {
			break
		}
		w.ch <- handoff[T]{closed: true}
	}

	forced := make([]T, 0, len(p.live))
	for h := range p.live {
		h.forced.Store(true)
		forced = append(forced, h.conn)
	}
	p.mu.Unlock()

	var errs []error
	for _, conn := range idle {
		if err := p.factory.Close(conn); err != nil {
			errs = append(errs, err)
		}
	}
	for _, conn := range forced {
		if err := p.factory.Close(conn); err != nil {
			errs = append(errs, err)
		}
	}

	p.log.Debug("pool closed", "idle_closed", len(idle), "forced_closed", len(forced))
	if len(errs) > 0 {
		return fmt.Errorf("close pool: %w", errors.Join(errs...))
	}
	return nil
}

// ============================================================================
// Introspection
// ============================================================================

// Stats holds pool statistics. Idle, Active and Total are read under the
// pool lock and always satisfy Idle+Active == Total <= Max.
type Stats struct {
	Idle   int `json:"idle"`
	Active int `json:"active"`
	Total  int `json:"total"`
	Max    int `json:"max"`

	AcquireCount int64 `json:"acquire_count"`
	TimeoutCount int64 `json:"timeout_count"`
	CreateCount  int64 `json:"create_count"`
	DiscardCount int64 `json:"discard_count"`
}

// Stats returns a consistent snapshot of the pool state.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Idle:         len(p.idle),
		Active:       p.active,
		Total:        p.total,
		Max:          p.cfg.MaxConns,
		AcquireCount: p.acquireCount.Load(),
		TimeoutCount: p.timeoutCount.Load(),
		CreateCount:  p.createCount.Load(),
		DiscardCount: p.discardCount.Load(),
	}
}
