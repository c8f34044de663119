package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"

	"webhook-bridge/internal/dedup"
	"webhook-bridge/internal/delivery"
	"webhook-bridge/internal/metrics"
	"webhook-bridge/internal/model"
)

const (
	KindMessage   = "message"
	KindCommand   = "command"
	KindTombstone = "tombstone"
	KindIgnored   = "ignored"
	KindDuplicate = "duplicate"
	KindInvalid   = "invalid"
)

type Router interface {
	IsOwnEcho(sender string) bool
	HandleMessage(ctx context.Context, msg *model.MessageEvent) []delivery.Outcome
	HandleTombstone(ctx context.Context, evt *model.TombstoneEvent)
}

type Commands interface {
	Matches(msg *model.MessageEvent) bool
	Handle(ctx context.Context, msg *model.MessageEvent)
}

// WorkerPool runs a fixed number of goroutines that handle deliveries handed over by Submit.
// Every delivery is acked once handled except undecodable payloads, which are rejected
// without requeue so they land in the dead-letter queue. Deliveries whose handling
// context was cancelled are nacked with requeue instead of acked.
type WorkerPool struct {
	router   Router
	commands Commands
	dedup    dedup.Deduper
	workers  int
	jobs     chan amqp.Delivery
	wg       sync.WaitGroup
	logger   *slog.Logger
}

func NewWorkerPool(workerCount int, router Router, commands Commands, deduper dedup.Deduper, logger *slog.Logger) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	if deduper == nil {
		deduper = dedup.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		router:   router,
		commands: commands,
		dedup:    deduper,
		workers:  workerCount,
		jobs:     make(chan amqp.Delivery, workerCount),
		logger:   logger.With("component", "worker"),
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	wp.logger.Info("starting pool", "workers", wp.workers)

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go func(id int) {
			defer wp.wg.Done()
			metrics.WorkerActive.Inc()
			defer metrics.WorkerActive.Dec()

			for msg := range wp.jobs {
				wp.process(ctx, msg)
			}
			wp.logger.Debug("worker exited", "worker", id)
		}(i)
	}
}

// Submit hands a delivery to the pool, blocking while all workers are busy.
// It must not be called after Stop.
func (wp *WorkerPool) Submit(msg amqp.Delivery) {
	wp.jobs <- msg
}

// Stop lets the workers drain what was already submitted and waits for them.
func (wp *WorkerPool) Stop() {
	close(wp.jobs)
	wp.wg.Wait()
	wp.logger.Info("stopped pool")
}

func (wp *WorkerPool) process(ctx context.Context, msg amqp.Delivery) {
	// Work cancelled before or during handling goes back to the queue.
	if ctx.Err() != nil {
		wp.requeue(msg)
		return
	}

	kind, err := wp.handleMessage(ctx, msg.Body)
	metrics.EventsReceived.WithLabelValues(kind).Inc()

	if err != nil {
		wp.logger.Warn("failed to process event", "error", err)
		_ = msg.Reject(false) // send to DLQ
		return
	}
	if ctx.Err() != nil {
		wp.requeue(msg)
		return
	}

	if err := msg.Ack(false); err != nil {
		wp.logger.Error("failed to ack event", "error", err)
		return
	}
	metrics.WorkerProcessed.Inc()
}

func (wp *WorkerPool) requeue(msg amqp.Delivery) {
	if err := msg.Nack(false, true); err != nil {
		wp.logger.Error("failed to requeue event", "delivery_tag", msg.DeliveryTag, "error", err)
		return
	}
	wp.logger.Info("requeued event after cancellation", "delivery_tag", msg.DeliveryTag)
}

// handleMessage decodes and dispatches one payload, returning the event kind for metrics.
// A non-nil error means the payload itself is unusable. The event id is only
// recorded as seen once handling ran to completion under a live context.
func (wp *WorkerPool) handleMessage(ctx context.Context, body []byte) (string, error) {
	env, err := model.DecodeEnvelope(body)
	if err != nil {
		return KindInvalid, err
	}

	switch env.Type {
	case model.EventRoomMessage, model.EventRoomTombstone:
	default:
		return KindIgnored, nil
	}

	seen, err := wp.dedup.Seen(ctx, env.EventID)
	if err != nil {
		wp.logger.Warn("dedup unavailable, processing anyway", "event_id", env.EventID, "error", err)
	} else if seen {
		return KindDuplicate, nil
	}

	kind, err := wp.dispatch(ctx, env)
	if err != nil {
		return kind, err
	}
	if (kind == KindMessage || kind == KindCommand || kind == KindTombstone) && ctx.Err() == nil {
		if err := wp.dedup.Mark(ctx, env.EventID); err != nil {
			wp.logger.Warn("failed to mark event as seen", "event_id", env.EventID, "error", err)
		}
	}
	return kind, nil
}

func (wp *WorkerPool) dispatch(ctx context.Context, env *model.Envelope) (string, error) {
	if env.Type == model.EventRoomTombstone {
		evt, err := env.Tombstone()
		if err != nil {
			return KindInvalid, err
		}
		wp.router.HandleTombstone(ctx, evt)
		return KindTombstone, nil
	}

	msg, err := env.Message()
	if err != nil {
		return KindInvalid, err
	}
	if wp.router.IsOwnEcho(msg.Sender) {
		return KindIgnored, nil
	}
	if wp.commands != nil && wp.commands.Matches(msg) {
		wp.commands.Handle(ctx, msg)
		return KindCommand, nil
	}
	wp.router.HandleMessage(ctx, msg)
	return KindMessage, nil
}
