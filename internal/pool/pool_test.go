package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resource struct {
	id     int32
	closed atomic.Bool
}

func countingFactory(created *atomic.Int32) Factory[*resource] {
	return func(_ context.Context) (*resource, error) {
		return &resource{id: created.Add(1)}, nil
	}
}

func closeResource(r *resource) {
	r.closed.Store(true)
}

func TestAcquireCreatesUpToBound(t *testing.T) {
	var created atomic.Int32
	p := New(2, countingFactory(&created), closeResource)
	defer p.Close()

	ctx := context.Background()

	r1, err := p.Acquire(ctx)
	require.NoError(t, err)
	r2, err := p.Acquire(ctx)
	require.NoError(t, err)

	assert.NotSame(t, r1, r2)
	assert.Equal(t, int32(2), created.Load())
}

func TestAcquireReusesIdleResource(t *testing.T) {
	var created atomic.Int32
	p := New(2, countingFactory(&created), closeResource)
	defer p.Close()

	ctx := context.Background()

	r1, err := p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(r1)

	r2, err := p.Acquire(ctx)
	require.NoError(t, err)

	assert.Same(t, r1, r2)
	assert.Equal(t, int32(1), created.Load())
}

func TestAcquireBlocksAtCapacity(t *testing.T) {
	var created atomic.Int32
	p := New(2, countingFactory(&created), closeResource)
	defer p.Close()

	ctx := context.Background()

	r1, err := p.Acquire(ctx)
	require.NoError(t, err)
	_, err = p.Acquire(ctx)
	require.NoError(t, err)

	acquired := make(chan *resource)
	go func() {
		r, err := p.Acquire(ctx)
		assert.NoError(t, err)
		acquired <- r
	}()

	select {
	case <-acquired:
		t.Fatal("third acquire should block while the pool is at capacity")
	case <-time.After(50 * time.Millisecond):
	}

	p.Release(r1)

	select {
	case r := <-acquired:
		assert.Same(t, r1, r)
	case <-time.After(time.Second):
		t.Fatal("waiter was not unblocked by the release")
	}

	assert.Equal(t, int32(2), created.Load())
}

func TestAcquireRespectsContextTimeout(t *testing.T) {
	var created atomic.Int32
	p := New(1, countingFactory(&created), closeResource)
	defer p.Close()

	r, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = p.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The abandoned wait must not leak the slot: releasing and
	// re-acquiring still works.
	p.Release(r)
	got, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, r, got)
}

func TestFactoryFailureFreesSlot(t *testing.T) {
	boom := errors.New("broker unreachable")
	calls := 0
	p := New(1, func(_ context.Context) (*resource, error) {
		calls++
		if calls == 1 {
			return nil, boom
		}

		return &resource{}, nil
	}, closeResource)
	defer p.Close()

	_, err := p.Acquire(context.Background())
	require.ErrorIs(t, err, boom)

	// The failed attempt must not occupy the single slot.
	r, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestWithReleasesOnError(t *testing.T) {
	var created atomic.Int32
	p := New(1, countingFactory(&created), closeResource)
	defer p.Close()

	opErr := errors.New("operation failed")
	err := p.With(context.Background(), func(_ *resource) error {
		return opErr
	})
	require.ErrorIs(t, err, opErr)

	// Resource went back to the pool despite the error.
	r, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, r.closed.Load())
	assert.Equal(t, int32(1), created.Load())
}

func TestWithDiscardsBadResource(t *testing.T) {
	var created atomic.Int32
	p := New(1, countingFactory(&created), closeResource)
	defer p.Close()

	var seen *resource
	err := p.With(context.Background(), func(r *resource) error {
		seen = r
		return fmt.Errorf("%w: connection reset", ErrBadResource)
	})
	require.ErrorIs(t, err, ErrBadResource)
	assert.True(t, seen.closed.Load())

	// The slot is free again, so a replacement gets created.
	r, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, seen, r)
	assert.Equal(t, int32(2), created.Load())
}

func TestCloseUnblocksWaiters(t *testing.T) {
	var created atomic.Int32
	p := New(1, countingFactory(&created), closeResource)

	r, err := p.Acquire(context.Background())
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background())
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	p.Close()

	select {
	case err := <-errc:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter was not unblocked by Close")
	}

	// A release after close destroys the resource instead of pooling it.
	p.Release(r)
	assert.True(t, r.closed.Load())
}
