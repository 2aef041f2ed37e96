package consumer

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPSubscriber consumes a durable queue with broker-side auto-ack.
type AMQPSubscriber struct {
	url   string
	queue string
	dial  func(url string) (*amqp.Connection, error)
}

func NewAMQPSubscriber(url, queue string) *AMQPSubscriber {
	return &AMQPSubscriber{url: url, queue: queue, dial: amqp.Dial}
}

func (s *AMQPSubscriber) Subscribe(ctx context.Context) (Subscription, error) {
	conn, err := s.dial(s.url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("amqp channel: %w", err), conn.Close())
	}

	if _, err := ch.QueueDeclare(s.queue, true, false, false, false, nil); err != nil {
		return nil, errors.Join(fmt.Errorf("queue declare %s: %w", s.queue, err), ch.Close(), conn.Close())
	}

	deliveries, err := ch.ConsumeWithContext(ctx, s.queue, "", true, false, false, false, nil)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("consume %s: %w", s.queue, err), ch.Close(), conn.Close())
	}

	return &amqpSubscription{conn: conn, ch: ch, deliveries: deliveries}, nil
}

type amqpSubscription struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	deliveries <-chan amqp.Delivery
}

func (s *amqpSubscription) Deliveries() <-chan amqp.Delivery { return s.deliveries }

// Close releases the channel and then the connection.
func (s *amqpSubscription) Close() error {
	chErr := s.ch.Close()
	connErr := s.conn.Close()
	if errors.Is(chErr, amqp.ErrClosed) {
		chErr = nil
	}
	if errors.Is(connErr, amqp.ErrClosed) {
		connErr = nil
	}
	return errors.Join(chErr, connErr)
}
