package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// MessageHandler is a function that handles a message
type MessageHandler func(ctx context.Context, envelope *Envelope) error

// Consumer handles consuming messages from RabbitMQ
type Consumer struct {
	rmq       *RabbitMQ
	queueName string
	handlers  map[string]MessageHandler
	logger    *logger.Logger
}

// NewConsumer creates a new consumer for the given queue
func NewConsumer(rmq *RabbitMQ, queueName string, log *logger.Logger) (*Consumer, error) {
	_, err := rmq.DeclareQueue(queueName)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	return &Consumer{
		rmq:       rmq,
		queueName: queueName,
		handlers:  make(map[string]MessageHandler),
		logger:    log,
	}, nil
}

// Subscribe binds the queue to an exchange with a routing key pattern
func (c *Consumer) Subscribe(exchange, routingKeyPattern string) error {
	if err := c.rmq.DeclareExchange(exchange); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if err := c.rmq.BindQueue(c.queueName, exchange, routingKeyPattern); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	c.logger.Info().
		Str("queue", c.queueName).
		Str("exchange", exchange).
		Str("routing_key", routingKeyPattern).
		Msg("subscribed to exchange")

	return nil
}

// RegisterHandler registers a handler for a specific message type
func (c *Consumer) RegisterHandler(msgType string, handler MessageHandler) {
	c.handlers[msgType] = handler
}

// Start starts consuming messages from the queue
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.rmq.Channel().Consume(
		c.queueName, // queue
		"",          // consumer tag (auto-generated)
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info().Str("queue", c.queueName).Msg("consumer started")

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.logger.Info().Str("queue", c.queueName).Msg("consumer stopped")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn().Msg("message channel closed")
					return
				}

				var envelope Envelope
				if err := json.Unmarshal(msg.Body, &envelope); err != nil {
					c.logger.Error().Err(err).Msg("failed to unmarshal message, dropping")
					msg.Nack(false, false)
					continue
				}

				handler, ok := c.handlers[envelope.Type]
				if !ok {
					c.logger.Debug().Str("message_type", envelope.Type).Msg("no handler registered, acking")
					msg.Ack(false)
					continue
				}

				msgCtx := ctx
				if envelope.CorrelationID != "" {
					msgCtx = WithCorrelationID(ctx, envelope.CorrelationID)
				}

				if err := handler(msgCtx, &envelope); err != nil {
					c.logger.Error().
						Err(err).
						Str("message_type", envelope.Type).
						Str("message_id", envelope.ID).
						Msg("handler failed, requeueing message")
					msg.Nack(false, true)
					continue
				}

				msg.Ack(false)
			}
		}
	}()

	return nil
}
