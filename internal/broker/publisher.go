package broker

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/chatstack/routing-service/internal/config"
)

// Publisher pushes JSON payloads to broker exchanges with a bounded
// retry budget. A payload that exhausts the budget is dropped with an
// error log; publication is best effort by contract.
type Publisher struct {
	channel *amqp.Channel
	retries int
	backoff time.Duration
	logger  *zap.Logger
}

// NewPublisher wires one publisher over the process channel.
func NewPublisher(cfg config.AMQPConfig, channel *amqp.Channel, logger *zap.Logger) *Publisher {
	retries := cfg.PublishRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := time.Duration(cfg.PublishBackoffMS) * time.Millisecond
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &Publisher{channel: channel, retries: retries, backoff: backoff, logger: logger}
}

// Publish marshals payload and sends it to exchange/routingKey,
// retrying with exponential backoff on transient channel errors.
func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.PublishRaw(ctx, exchange, routingKey, body, nil)
}

// PublishRaw sends a pre-encoded body, optionally carrying headers
// through (used by the dead-letter requeue path to preserve x-death).
func (p *Publisher) PublishRaw(ctx context.Context, exchange, routingKey string, body []byte, headers amqp.Table) error {
	var lastErr error
	backoff := p.backoff
	for attempt := 0; attempt < p.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		lastErr = p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now().UTC(),
			Headers:     headers,
			Body:        body,
		})
		if lastErr == nil {
			return nil
		}
		p.logger.Warn("publish attempt failed",
			zap.String("exchange", exchange),
			zap.String("routing_key", routingKey),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}
	p.logger.Error("publish retry budget exhausted, dropping payload",
		zap.String("exchange", exchange),
		zap.String("routing_key", routingKey),
		zap.Error(lastErr),
	)
	return lastErr
}
