package broker

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/chatstack/routing-service/internal/config"
	"github.com/chatstack/routing-service/internal/observability"
	"github.com/chatstack/routing-service/pkg/util"
)

// Handler processes one decoded broker message. Returning nil acks the
// delivery; returning an error routes it to the callback exchange.
type Handler func(ctx context.Context, delivery amqp.Delivery) error

// FailureEnvelope is published when a consumer rejects a message. It
// preserves the original body so the upstream producer can replay it.
type FailureEnvelope struct {
	OriginalBody json.RawMessage `json:"original_body"`
	ErrorKind    string          `json:"error_kind"`
	ErrorMessage string          `json:"error_message"`
}

// Consumer runs every registered topic serially over one channel.
type Consumer struct {
	channel   *amqp.Channel
	publisher *Publisher
	cfg       config.AMQPConfig
	logger    *zap.Logger
	handlers  map[string]Handler
}

// NewConsumer builds an empty registry over the process channel.
func NewConsumer(cfg config.AMQPConfig, channel *amqp.Channel, publisher *Publisher, logger *zap.Logger) *Consumer {
	return &Consumer{
		channel:   channel,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		handlers:  make(map[string]Handler),
	}
}

// Register binds a handler to a queue name. Must be called before Run.
func (c *Consumer) Register(queue string, handler Handler) {
	c.handlers[queue] = handler
}

// Run declares every registered queue, fans the deliveries into one
// stream and dispatches serially until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	type tagged struct {
		queue    string
		delivery amqp.Delivery
	}
	deliveries := make(chan tagged)
	for queue := range c.handlers {
		if _, err := c.channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
		stream, err := c.channel.Consume(queue, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume queue %s: %w", queue, err)
		}
		go func(queue string, stream <-chan amqp.Delivery) {
			for d := range stream {
				select {
				case deliveries <- tagged{queue: queue, delivery: d}:
				case <-ctx.Done():
					return
				}
			}
		}(queue, stream)
		c.logger.Info("consumer registered", zap.String("queue", queue))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-deliveries:
			c.dispatch(ctx, t.queue, t.delivery)
		}
	}
}

// dispatch wraps the handler with the observability signals and the
// error-routing decorator.
func (c *Consumer) dispatch(ctx context.Context, topic string, d amqp.Delivery) {
	observability.ConsumerMessage(topic, "started")

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("consumer panicked",
				zap.String("topic", topic),
				zap.Any("panic", r),
			)
			c.routeFailure(ctx, d, "panic", fmt.Sprint(r))
			observability.ConsumerMessage(topic, "panicked")
			// A framework panic means the process state is suspect;
			// re-raise so the supervisor restarts us nonzero.
			panic(r)
		}
	}()

	handler, ok := c.handlers[topic]
	if !ok {
		c.logger.Error("no handler for topic", zap.String("topic", topic))
		c.routeFailure(ctx, d, "unknown_topic", topic)
		observability.ConsumerMessage(topic, "rejected")
		return
	}

	if err := handler(ctx, d); err != nil {
		kind := util.ToDomainError(err).Code
		c.logger.Error("consumer failed",
			zap.String("topic", topic),
			zap.Error(err),
		)
		c.routeFailure(ctx, d, kind, err.Error())
		observability.ConsumerMessage(topic, "rejected")
		return
	}

	if err := d.Ack(false); err != nil {
		c.logger.Error("ack failed", zap.String("topic", topic), zap.Error(err))
	}
	observability.ConsumerMessage(topic, "finished")
}

// routeFailure rejects without requeue and publishes the failure
// envelope to the header-specified or default callback exchange.
func (c *Consumer) routeFailure(ctx context.Context, d amqp.Delivery, kind, message string) {
	if err := d.Reject(false); err != nil {
		c.logger.Error("reject failed", zap.Error(err))
	}

	exchange := c.cfg.DefaultCallbackExchange
	if v, ok := d.Headers["callback_exchange"].(string); ok && v != "" {
		exchange = v
	}
	envelope := FailureEnvelope{
		OriginalBody: json.RawMessage(d.Body),
		ErrorKind:    kind,
		ErrorMessage: message,
	}
	if err := c.publisher.Publish(ctx, exchange, "", envelope); err != nil {
		c.logger.Error("failure envelope publish failed", zap.Error(err))
	}
}

// DecodeBody parses a JSON delivery body into dst, returning a domain
// error that the error router treats as a parse rejection.
func DecodeBody(d amqp.Delivery, dst any) error {
	if err := json.Unmarshal(d.Body, dst); err != nil {
		return util.NewValidationError("invalid message body", map[string]any{"reason": err.Error()})
	}
	return nil
}
