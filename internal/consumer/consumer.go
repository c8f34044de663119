// Package consumer reads raw chat events off the inbound AMQP queue.
package consumer

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

type MessageHandlerFunc func(delivery amqp.Delivery)

// Consumer is a single AMQP subscription on the events queue. Deliveries are acked by
// whoever the handler passes them to.
type Consumer struct {
	queue   string
	tag     string
	ch      *amqp.Channel
	handler MessageHandlerFunc
	logger  *slog.Logger

	stop chan struct{}
	done chan struct{}
}

// StartConsumer subscribes to queue on a fresh channel and feeds handler from a background
// goroutine. prefetch bounds the unacked deliveries held by this consumer.
func StartConsumer(conn *amqp.Connection, queue string, prefetch int, handler MessageHandlerFunc, logger *slog.Logger) (*Consumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("consumer %s: open channel: %w", queue, err)
	}

	c := &Consumer{
		queue:   queue,
		tag:     "bridge-" + uuid.NewString(),
		ch:      ch,
		handler: handler,
		logger:  logger.With("component", "consumer", "queue", queue),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	deliveries, err := c.subscribe(prefetch)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	go c.run(deliveries)

	c.logger.Info("started consumer", "tag", c.tag)
	return c, nil
}

func (c *Consumer) subscribe(prefetch int) (<-chan amqp.Delivery, error) {
	if err := c.ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("consumer %s: set qos: %w", c.queue, err)
	}
	// manual ack: the worker decides between Ack and Reject
	deliveries, err := c.ch.Consume(c.queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consumer %s: consume: %w", c.queue, err)
	}
	return deliveries, nil
}

func (c *Consumer) run(deliveries <-chan amqp.Delivery) {
	defer close(c.done)

	for {
		select {
		case <-c.stop:
			if err := c.ch.Cancel(c.tag, false); err != nil {
				c.logger.Warn("failed to cancel subscription", "error", err)
			}
			return
		case d, ok := <-deliveries:
			if !ok {
				c.logger.Warn("delivery channel closed by broker")
				return
			}
			c.handler(d)
		}
	}
}

// Tag returns the AMQP consumer tag.
func (c *Consumer) Tag() string {
	return c.tag
}

// Stop cancels the subscription and waits for the loop to exit. The channel stays open so
// deliveries already handed out can still be acked; call Close afterwards.
func (c *Consumer) Stop() {
	close(c.stop)
	<-c.done
	c.logger.Info("stopped consumer")
}

// Close releases the channel. Unacked deliveries go back to the queue.
func (c *Consumer) Close() error {
	return c.ch.Close()
}
