package manager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource blocks in Stop until wait is closed, when set.
type fakeSource struct {
	wait    <-chan struct{}
	stopped atomic.Bool
	closed  atomic.Bool
}

func (s *fakeSource) Stop() {
	if s.wait != nil {
		<-s.wait
	}
	s.stopped.Store(true)
}

func (s *fakeSource) Close() error { s.closed.Store(true); return nil }

// fakePool blocks in Stop until its work context is cancelled or release is closed.
type fakePool struct {
	mu        sync.Mutex
	ctx       context.Context
	submitted []amqp.Delivery
	release   chan struct{}
	stopped   atomic.Bool
}

func (p *fakePool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctx = ctx
}

func (p *fakePool) Submit(msg amqp.Delivery) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitted = append(p.submitted, msg)
}

func (p *fakePool) Stop() {
	select {
	case <-p.release:
	case <-p.ctx.Done():
	}
	p.stopped.Store(true)
}

type countingMonitor struct{ n atomic.Int32 }

func (m *countingMonitor) UpdateQueueDepth() { m.n.Add(1) }

func TestManager_Lifecycle(t *testing.T) {
	pool := &fakePool{release: make(chan struct{})}
	src := &fakeSource{}
	mon := &countingMonitor{}

	var handler func(amqp.Delivery)
	m := NewManager(pool, func(h func(amqp.Delivery)) (Source, error) {
		handler = h
		return src, nil
	}, mon, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))
	require.Error(t, m.Start(ctx))

	// A cancelled start context does not cancel in-flight work.
	cancel()
	assert.NoError(t, pool.ctx.Err())

	handler(amqp.Delivery{DeliveryTag: 7})
	assert.Len(t, pool.submitted, 1)

	require.Eventually(t, func() bool { return mon.n.Load() > 0 }, time.Second, 5*time.Millisecond)

	close(pool.release)
	m.Shutdown(context.Background())

	assert.True(t, src.stopped.Load())
	assert.True(t, src.closed.Load())
	assert.True(t, pool.stopped.Load())

	// Second shutdown is a no-op.
	m.Shutdown(context.Background())
}

func TestManager_ShutdownDeadlineCancelsWork(t *testing.T) {
	pool := &fakePool{release: make(chan struct{})}
	src := &fakeSource{}
	m := NewManager(pool, func(func(amqp.Delivery)) (Source, error) { return src, nil }, nil, 0, nil)
	require.NoError(t, m.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	m.Shutdown(ctx)

	assert.ErrorIs(t, pool.ctx.Err(), context.Canceled)
	assert.True(t, pool.stopped.Load())
	assert.True(t, src.closed.Load())
}

func TestManager_ShutdownDeadlineCoversBlockedConsumer(t *testing.T) {
	pool := &fakePool{release: make(chan struct{})}
	src := &fakeSource{}
	m := NewManager(pool, func(func(amqp.Delivery)) (Source, error) {
		// The consumer is stuck submitting until workers are cancelled.
		src.wait = pool.ctx.Done()
		return src, nil
	}, nil, 0, nil)
	require.NoError(t, m.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		m.Shutdown(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shutdown did not honour its deadline")
	}
	assert.ErrorIs(t, pool.ctx.Err(), context.Canceled)
	assert.True(t, src.stopped.Load())
	assert.True(t, pool.stopped.Load())
	assert.True(t, src.closed.Load())
}

func TestManager_StartFailure(t *testing.T) {
	pool := &fakePool{release: make(chan struct{})}
	close(pool.release)
	m := NewManager(pool, func(func(amqp.Delivery)) (Source, error) {
		return nil, errors.New("no channel")
	}, nil, 0, nil)

	require.Error(t, m.Start(context.Background()))
	assert.True(t, pool.stopped.Load())

	// Nothing to shut down.
	m.Shutdown(context.Background())
}
