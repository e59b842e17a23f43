// Package notify fans change notifications out to other processes
// sharing the same state slot, so each of them can reload and stay in
// sync. Last writer wins; nothing is merged.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"eyemoney/internal/log"
)

type Broadcaster struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	queue    string
	instance string
	logger   *log.Logger
}

// New connects to the broker and declares a fanout exchange plus an
// exclusive queue for this instance.
func New(url, exchange string, logger *log.Logger) (*Broadcaster, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	b := &Broadcaster{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		instance: uuid.NewString(),
		logger:   logger,
	}

	if err := b.setup(); err != nil {
		b.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return b, nil
}

func (b *Broadcaster) setup() error {
	err := b.channel.ExchangeDeclare(
		b.exchange, // name
		"fanout",   // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	// A broker-named exclusive queue: every instance gets its own copy
	// of each notification.
	q, err := b.channel.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	b.queue = q.Name

	if err := b.channel.QueueBind(b.queue, "", b.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// Publish announces that this instance changed the shared state.
func (b *Broadcaster) Publish(ctx context.Context) error {
	err := b.channel.PublishWithContext(ctx,
		b.exchange, // exchange
		"",         // routing key (fanout ignores it)
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType: "text/plain",
			Body:        []byte(b.instance),
			Timestamp:   time.Now(),
		})
	if err != nil {
		return fmt.Errorf("publish change notification: %w", err)
	}
	return nil
}

// Listen invokes onChange for every notification published by another
// instance, until the context is canceled. Notifications from this
// instance are skipped so a publish never triggers its own reload.
func (b *Broadcaster) Listen(ctx context.Context, onChange func()) error {
	deliveries, err := b.channel.Consume(
		b.queue, // queue
		"",      // consumer tag
		true,    // auto-ack
		true,    // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return fmt.Errorf("consume notifications: %w", err)
	}

	return b.drain(ctx, deliveries, onChange)
}

func (b *Broadcaster) drain(ctx context.Context, deliveries <-chan amqp091.Delivery, onChange func()) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("notification channel closed")
			}
			if string(d.Body) == b.instance {
				continue
			}
			b.logger.Debug("external state change", "from", string(d.Body))
			onChange()
		}
	}
}

func (b *Broadcaster) Close() {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}
