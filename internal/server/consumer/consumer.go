// Package consumer applies profile-image updates published on an AMQP queue.
//
// Deliveries are acknowledged by the broker on receipt, so a crash while a
// message is being handled loses that update. Malformed messages are logged
// and dropped.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ImageUpdate is the message body.
type ImageUpdate struct {
	AccountID uuid.UUID `json:"accountId"`
	FileName  string    `json:"fileName"`
}

var ErrMalformedMessage = errors.New("malformed message")

func decode(body []byte) (ImageUpdate, error) {
	var m ImageUpdate
	if err := json.Unmarshal(body, &m); err != nil {
		return m, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if m.AccountID == uuid.Nil {
		return m, fmt.Errorf("%w: missing accountId", ErrMalformedMessage)
	}
	if m.FileName == "" {
		return m, fmt.Errorf("%w: missing fileName", ErrMalformedMessage)
	}
	return m, nil
}

// ImageUpdater is the write path the consumer drives.
type ImageUpdater interface {
	UpdateImage(ctx context.Context, id uuid.UUID, fileName string) error
}

// Subscription is an open stream of deliveries owned by the consumer.
type Subscription interface {
	Deliveries() <-chan amqp.Delivery
	Close() error
}

// Subscriber opens a Subscription.
type Subscriber interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

type Consumer struct {
	subscriber Subscriber
	updater    ImageUpdater
	logger     logging.Logger
}

func NewConsumer(s Subscriber, u ImageUpdater, l logging.Logger) *Consumer {
	return &Consumer{
		subscriber: s,
		updater:    u,
		logger:     l.With("module", "image_consumer"),
	}
}

// Run consumes until ctx is cancelled or the broker closes the delivery
// channel. The subscription is released exactly once on return.
func (c *Consumer) Run(ctx context.Context) error {
	sub, err := c.subscriber.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer func() {
		if err := sub.Close(); err != nil {
			c.logger.Warn(ctx, "closing subscription", "error", err)
		}
	}()

	c.logger.Info(ctx, "Starting image consumer")

	deliveries := sub.Deliveries()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info(ctx, "Stopping image consumer...")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("delivery channel closed by broker")
			}
			c.handle(ctx, d.Body)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, body []byte) {
	m, err := decode(body)
	if err != nil {
		c.logger.Warn(ctx, "dropping message", "error", err)
		return
	}

	if err := c.updater.UpdateImage(ctx, m.AccountID, m.FileName); err != nil {
		c.logger.Warn(ctx, "image update failed", "account_id", m.AccountID, "error", err)
		return
	}
	c.logger.Debug(ctx, "image updated", "account_id", m.AccountID)
}
