package persistence

import (
	"context"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/chatstack/routing-service/internal/config"
)

// AMQP wraps one broker connection and its single channel. Consumers
// dispatch serially on this channel; one connection per process.
type AMQP struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
}

// NewAMQP dials the broker with a short bounded retry so process start
// survives a broker restart window.
func NewAMQP(cfg config.AMQPConfig, logger *zap.Logger) (*AMQP, error) {
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
		conn, err := amqp.Dial(cfg.URL)
		if err != nil {
			lastErr = err
			logger.Warn("amqp dial failed", zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		ch, err := conn.Channel()
		if err != nil {
			lastErr = err
			_ = conn.Close()
			continue
		}
		logger.Info("connected to amqp broker")
		return &AMQP{Conn: conn, Channel: ch}, nil
	}
	if lastErr == nil {
		lastErr = errors.New("amqp: no connection")
	}
	return nil, lastErr
}

// Ping reports whether the broker connection is still open.
func (a *AMQP) Ping(ctx context.Context) error {
	if a == nil || a.Conn == nil {
		return errors.New("amqp: not connected")
	}
	if a.Conn.IsClosed() {
		return errors.New("amqp: connection closed")
	}
	return nil
}

// Close releases the channel and connection.
func (a *AMQP) Close() {
	if a == nil {
		return
	}
	if a.Channel != nil {
		_ = a.Channel.Close()
	}
	if a.Conn != nil {
		_ = a.Conn.Close()
	}
}
