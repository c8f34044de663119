// internal/manager/manager.go
package manager

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

// Source is a running event consumer.
type Source interface {
	Stop()
	Close() error
}

// StartFunc starts consuming and hands every delivery to handler.
type StartFunc func(handler func(amqp.Delivery)) (Source, error)

type Pool interface {
	Start(ctx context.Context)
	Submit(msg amqp.Delivery)
	Stop()
}

type QueueMonitor interface {
	UpdateQueueDepth()
}

// Manager owns the lifecycle of the event pipeline: the worker pool, the consumer
// feeding it and the queue depth poller.
type Manager struct {
	pool     Pool
	start    StartFunc
	monitor  QueueMonitor
	interval time.Duration
	logger   *slog.Logger

	mu         sync.Mutex
	source     Source
	cancelWork context.CancelFunc
	stopPoll   chan struct{}
	pollDone   chan struct{}
}

func NewManager(pool Pool, start StartFunc, monitor QueueMonitor, interval time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Manager{
		pool:     pool,
		start:    start,
		monitor:  monitor,
		interval: interval,
		logger:   logger.With("component", "manager"),
	}
}

// Start launches the pool, then the consumer. Work contexts are detached from ctx so
// that a shutdown signal does not abort deliveries already in flight.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.source != nil {
		return errors.New("pipeline already started")
	}

	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.pool.Start(workCtx)

	src, err := m.start(m.pool.Submit)
	if err != nil {
		cancel()
		m.pool.Stop()
		return err
	}
	m.source = src
	m.cancelWork = cancel

	if m.monitor != nil {
		m.stopPoll = make(chan struct{})
		m.pollDone = make(chan struct{})
		go m.pollQueueDepth()
	}

	m.logger.Info("pipeline started")
	return nil
}

func (m *Manager) pollQueueDepth() {
	defer close(m.pollDone)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopPoll:
			return
		case <-ticker.C:
			m.monitor.UpdateQueueDepth()
		}
	}
}

// Shutdown stops taking events and waits for submitted ones to finish. When ctx expires
// first, in-flight deliveries are cancelled and Shutdown still waits for the workers to exit.
// Stopping the consumer counts against the same deadline since it may be blocked handing a
// delivery to a busy pool.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.source == nil {
		return
	}

	if m.stopPoll != nil {
		close(m.stopPoll)
		<-m.pollDone
		m.stopPoll = nil
	}

	drained := make(chan struct{})
	go func() {
		m.source.Stop()
		m.pool.Stop()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		m.logger.Warn("in-flight deliveries cancelled at shutdown deadline")
		m.cancelWork()
		<-drained
	}
	m.cancelWork()

	if err := m.source.Close(); err != nil {
		m.logger.Warn("failed to close consumer channel", "error", err)
	}
	m.source = nil
	m.logger.Info("pipeline stopped")
}
