package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatstack/routing-service/internal/config"
	"github.com/chatstack/routing-service/internal/domain"
	"github.com/chatstack/routing-service/internal/events"
	"github.com/chatstack/routing-service/internal/repository"
)

// QueueService syncs queues and announces every change to the flow
// engine over the parallel exchange.
type QueueService struct {
	queues     repository.QueueRepository
	publisher  InfoPublisher
	dispatcher events.Dispatcher
	amqpCfg    config.AMQPConfig
	logger     *zap.Logger
}

// NewQueueService creates the queue service.
func NewQueueService(queues repository.QueueRepository, publisher InfoPublisher, dispatcher events.Dispatcher, amqpCfg config.AMQPConfig, logger *zap.Logger) *QueueService {
	return &QueueService{
		queues:     queues,
		publisher:  publisher,
		dispatcher: dispatcher,
		amqpCfg:    amqpCfg,
		logger:     logger,
	}
}

// Create registers a queue.
func (s *QueueService) Create(ctx context.Context, queue *domain.Queue) error {
	if queue.ID == "" {
		queue.ID = uuid.NewString()
	}
	if queue.CreatedAt.IsZero() {
		queue.CreatedAt = time.Now().UTC()
	}
	if err := s.queues.Create(ctx, queue); err != nil {
		return err
	}
	s.announce(ctx, queue, "create")
	s.publishChange(ctx, queue, "create")
	return nil
}

// Update applies a queue sync.
func (s *QueueService) Update(ctx context.Context, queue *domain.Queue) error {
	if err := s.queues.Update(ctx, queue); err != nil {
		return err
	}
	s.announce(ctx, queue, "update")
	s.publishChange(ctx, queue, "update")
	return nil
}

// Delete soft-deletes a queue, keeping its name unique via the deleted
// rename.
func (s *QueueService) Delete(ctx context.Context, id, actor string) error {
	queue, err := s.queues.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.queues.SoftDelete(ctx, id, actor); err != nil {
		return err
	}
	s.announce(ctx, queue, "delete")
	s.publishChange(ctx, queue, "delete")
	return nil
}

// announce mirrors the change onto the flow engine's exchange so its
// triggers stay aligned with the queue topology.
func (s *QueueService) announce(ctx context.Context, queue *domain.Queue, action string) {
	payload := map[string]any{
		"uuid":   queue.ID,
		"name":   queue.Name,
		"sector": queue.SectorID,
	}
	if err := s.publisher.Publish(ctx, s.amqpCfg.FlowsQueueExchange, action, payload); err != nil {
		s.logger.Warn("flows announce failed",
			zap.String("queue", queue.ID),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func (s *QueueService) publishChange(ctx context.Context, queue *domain.Queue, action string) {
	ev := events.NewEvent(events.EventQueueChanged, "queues."+action)
	ev.QueueIDs = []string{queue.ID}
	ev.Content = map[string]any{"uuid": queue.ID, "name": queue.Name, "action": action}
	_ = s.dispatcher.Publish(ctx, ev)
}
