// Package pool provides a bounded pool of reusable resources with scoped,
// exclusive acquisition. It backs the broker connection and channel pools.
package pool

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrClosed is returned by Acquire after the pool has been shut down.
	ErrClosed = errors.New("pool is closed")

	// ErrBadResource marks a resource as broken. When a function run under
	// With returns an error wrapping it, the resource is discarded instead
	// of being returned to the pool.
	ErrBadResource = errors.New("bad resource")
)

type Factory[T any] func(ctx context.Context) (T, error)

// Pool is a bounded pool of resources of type T. At most max resources are
// live at any time; Acquire blocks once the bound is reached until a
// resource is released or discarded.
type Pool[T any] struct {
	factory Factory[T]
	closer  func(T)
	slots   chan struct{}
	idle    chan T
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

func New[T any](max int, factory Factory[T], closer func(T)) *Pool[T] {
	if max < 1 {
		max = 1
	}

	return &Pool[T]{
		factory: factory,
		closer:  closer,
		slots:   make(chan struct{}, max),
		idle:    make(chan T, max),
		done:    make(chan struct{}),
	}
}

// Acquire returns a resource for exclusive use by the caller. It reuses an
// idle resource when one is available, creates a new one while the pool is
// under its bound, and otherwise blocks until a resource is released or ctx
// is done. Factory failures propagate to the caller and free the reserved
// slot.
func (p *Pool[T]) Acquire(ctx context.Context) (T, error) {
	var zero T

	select {
	case r := <-p.idle:
		return r, nil
	default:
	}

	select {
	case r := <-p.idle:
		return r, nil
	case p.slots <- struct{}{}:
		r, err := p.factory(ctx)
		if err != nil {
			<-p.slots
			return zero, err
		}

		return r, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-p.done:
		return zero, ErrClosed
	}
}

// Release returns a resource to the pool for reuse.
func (p *Pool[T]) Release(r T) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed {
		p.destroy(r)
		return
	}

	p.idle <- r
}

// Discard closes a broken resource and frees its slot so a replacement can
// be created.
func (p *Pool[T]) Discard(r T) {
	p.destroy(r)
}

// With acquires a resource, runs fn with it, and returns the resource on
// every path. A fn error wrapping ErrBadResource discards the resource
// instead.
func (p *Pool[T]) With(ctx context.Context, fn func(T) error) error {
	r, err := p.Acquire(ctx)
	if err != nil {
		return err
	}

	err = fn(r)
	if errors.Is(err, ErrBadResource) {
		p.Discard(r)
		return err
	}

	p.Release(r)
	return err
}

// Close shuts the pool down: idle resources are closed, blocked Acquire
// calls return ErrClosed, and resources released later are closed instead
// of being pooled.
func (p *Pool[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.done)

	for {
		select {
		case r := <-p.idle:
			p.destroy(r)
		default:
			return
		}
	}
}

func (p *Pool[T]) destroy(r T) {
	if p.closer != nil {
		p.closer(r)
	}
	<-p.slots
}
