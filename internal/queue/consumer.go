// Package queue consumes transformation requests from an AMQP queue.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/timmy/transformer/internal/config"
	"github.com/timmy/transformer/internal/domain"
	"github.com/timmy/transformer/internal/logger"
)

const reconnectDelay = 5 * time.Second

// Handler runs a request to completion.
type Handler interface {
	Process(ctx context.Context, req domain.TransformationRequest) (*domain.JobResult, error)
}

// Consumer reads job messages and hands them to a Handler one at a time.
// Every delivery is acknowledged once handled, whatever the outcome; jobs
// are never redelivered.
type Consumer struct {
	cfg     config.AMQPConfig
	handler Handler
	logger  *logger.Logger
}

// NewConsumer creates a consumer for the configured queue.
func NewConsumer(cfg *config.AMQPConfig, handler Handler, log *logger.Logger) *Consumer {
	if log == nil {
		log = logger.GetDefault()
	}
	c := &Consumer{cfg: *cfg, handler: handler, logger: log}
	if c.cfg.Prefetch <= 0 {
		c.cfg.Prefetch = 1
	}
	return c
}

// Run consumes until ctx is cancelled, reconnecting after broker failures.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.WithError(err).WithField("retry_in", reconnectDelay.String()).Error("AMQP consumer stopped")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}
	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", c.cfg.Queue, err)
	}

	tag := "transformer-" + uuid.New().String()
	deliveries, err := ch.ConsumeWithContext(ctx, c.cfg.Queue, tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", c.cfg.Queue, err)
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	c.logger.WithFields(logger.Fields{
		"queue":    c.cfg.Queue,
		"consumer": tag,
		"prefetch": c.cfg.Prefetch,
	}).Info("AMQP consumer started")

	for {
		select {
		case <-ctx.Done():
			_ = ch.Cancel(tag, false)
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr == nil {
				return errors.New("connection closed")
			}
			return amqpErr
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

// handle processes one delivery and always acknowledges it.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	ctx = logger.WithField(c.logger.WithContext(ctx), "delivery_tag", d.DeliveryTag)
	log := logger.FromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Message handling failed unexpectedly")
		}
		if err := d.Ack(false); err != nil {
			log.WithError(err).Error("Failed to acknowledge message")
		}
	}()

	var msg domain.TransformationMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		log.WithError(err).Error("Discarding malformed transformation message")
		return
	}

	req := msg.ToRequest()
	if err := req.Validate(); err != nil {
		log.WithError(err).Error("Discarding invalid transformation message")
		return
	}

	res, err := c.handler.Process(ctx, req)
	if err != nil {
		log.WithError(err).Error("Transformation job could not be run")
		return
	}

	entry := log.WithFields(logger.Fields{
		logger.FieldJobID:   res.JobID,
		logger.FieldOutcome: string(res.Outcome),
	})
	if res.Success {
		entry.Info("Transformation job completed")
	} else {
		entry.WithError(res.Err).Warn("Transformation job did not succeed")
	}
}
