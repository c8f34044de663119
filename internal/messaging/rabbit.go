// internal/messaging/rabbit.go
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"webhook-bridge/internal/metrics"
	"webhook-bridge/internal/model"
)

type RabbitClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel

	eventsQueue  string
	repliesQueue string
	logger       *slog.Logger

	// mu serializes use of the shared publishing channel
	mu sync.Mutex
}

func NewRabbitClient(url, eventsQueue, repliesQueue string, logger *slog.Logger) (*RabbitClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}

	return &RabbitClient{
		conn:         conn,
		channel:      ch,
		eventsQueue:  eventsQueue,
		repliesQueue: repliesQueue,
		logger:       logger.With("component", "rabbit"),
	}, nil
}

func (r *RabbitClient) GetChannel() *amqp.Channel {
	return r.channel
}

func (r *RabbitClient) GetConnection() *amqp.Connection {
	return r.conn
}

func (r *RabbitClient) EventsQueue() string {
	return r.eventsQueue
}

// DeadLetterQueue names the queue that receives rejected events.
func (r *RabbitClient) DeadLetterQueue() string {
	return r.eventsQueue + "_dlq"
}

// DeclareQueues creates the durable events queue, its dead-letter queue and the replies
// queue. Declaring is idempotent as long as the arguments do not change.
func (r *RabbitClient) DeclareQueues() error {
	queues := []struct {
		name string
		args amqp.Table
	}{
		{name: r.DeadLetterQueue()},
		{name: r.eventsQueue, args: amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": r.DeadLetterQueue(),
		}},
		{name: r.repliesQueue},
	}

	for _, q := range queues {
		// durable and non-exclusive
		if _, err := r.channel.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	r.logger.Info("queues declared", "events", r.eventsQueue, "dlq", r.DeadLetterQueue(), "replies", r.repliesQueue)
	return nil
}

func (r *RabbitClient) publish(queue string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	}
	// default exchange routes by queue name
	if err := r.channel.Publish("", queue, false, false, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

// PublishEvent puts a raw inbound envelope on the events queue
func (r *RabbitClient) PublishEvent(_ context.Context, body []byte) error {
	return r.publish(r.eventsQueue, body)
}

// Reply publishes a notice into roomID, threaded on inReplyTo
func (r *RabbitClient) Reply(_ context.Context, roomID, inReplyTo, text string) error {
	body, err := json.Marshal(model.Reply{
		RoomID:    roomID,
		InReplyTo: inReplyTo,
		MsgType:   model.MsgTypeNotice,
		Body:      text,
	})
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}
	return r.publish(r.repliesQueue, body)
}

// Close shuts the publishing channel and the connection, reporting both failures.
func (r *RabbitClient) Close() error {
	return errors.Join(r.channel.Close(), r.conn.Close())
}

func (r *RabbitClient) UpdateQueueDepth() {
	r.mu.Lock()
	q, err := r.channel.QueueInspect(r.eventsQueue)
	r.mu.Unlock()
	if err != nil {
		r.logger.Warn("failed to inspect events queue", "queue", r.eventsQueue, "error", err)
		return
	}

	metrics.QueueDepth.Set(float64(q.Messages))
}
