package pool

import (
	"context"
	"sync/atomic"

	"github.com/xtxerr/meteolog/internal/errors"
)

const (
	handleLive int32 = iota
	handleDone
)

// Handle is an exclusively owned connection checked out of a pool. The
// owner must finish with exactly one Release or Discard; the connection
// must not be used afterwards.
type Handle[T any] struct {
	conn   T
	pool   *Pool[T]
	state  atomic.Int32
	forced atomic.Bool // set when Close tore the connection down in place
}

// Conn returns the underlying connection.
func (h *Handle[T]) Conn() T {
	return h.conn
}

// Release returns the connection to the pool, waking the oldest waiter if
// one is blocked in Acquire. Releasing a handle twice, or after Discard,
// returns ErrHandleMisuse.
func (h *Handle[T]) Release() error {
	if !h.state.CompareAndSwap(handleLive, handleDone) {
		return errors.ErrHandleMisuse
	}
	return h.pool.release(h)
}

// Discard removes a broken connection from the pool instead of returning
// it. The pool replaces it lazily: a blocked waiter gets permission to open
// a fresh connection right away, and the MinConns floor is restored on
// later acquisitions.
func (h *Handle[T]) Discard() error {
	if !h.state.CompareAndSwap(handleLive, handleDone) {
		return errors.ErrHandleMisuse
	}
	return h.pool.discard(h)
}

// With runs fn with a pooled connection and guarantees the handle is
// settled on every path: released after success, discarded when fn returns
// an error or panics. The fn error is returned as-is.
func (p *Pool[T]) With(ctx context.Context, fn func(conn T) error) error {
	h, err := p.Acquire(ctx)
	if err != nil {
		return err
	}

	settled := false
	defer func() {
		if !settled {
			_ = h.Discard()
		}
	}()

	if err := fn(h.conn); err != nil {
		settled = true
		_ = h.Discard()
		return err
	}

	settled = true
	return h.Release()
}
