package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/chatstack/routing-service/internal/domain"
	"github.com/chatstack/routing-service/internal/repository"
)

// MetricsService finalizes per-room metrics on closure.
type MetricsService struct {
	metrics  repository.MetricsRepository
	rooms    repository.RoomRepository
	messages repository.MessageRepository
	logger   *zap.Logger
}

// NewMetricsService creates the metrics service.
func NewMetricsService(metrics repository.MetricsRepository, rooms repository.RoomRepository, messages repository.MessageRepository, logger *zap.Logger) *MetricsService {
	return &MetricsService{metrics: metrics, rooms: rooms, messages: messages, logger: logger}
}

// Finalize computes closure metrics for a room. Idempotent: a room whose
// metrics were already finalized is left untouched and reported false.
func (s *MetricsService) Finalize(ctx context.Context, roomID string) (bool, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return false, err
	}
	if room.EndedAt == nil {
		return false, nil
	}
	metric, err := s.metrics.GetByRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	if metric.Finalized() {
		return false, nil
	}

	metric.InteractionTime = int64(room.EndedAt.Sub(room.CreatedAt).Seconds())
	if room.FirstUserAssignedAt != nil {
		metric.WaitingTime = int64(room.FirstUserAssignedAt.Sub(room.CreatedAt).Seconds())
	}
	if room.FirstAgentMessageAt != nil {
		metric.FirstResponseTime = int64(room.FirstAgentMessageAt.Sub(room.CreatedAt).Seconds())
	}

	messages, err := s.messages.ListByRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	metric.MessageResponseTime = meanAgentResponse(messages)

	written, err := s.metrics.Finalize(ctx, metric)
	if err != nil {
		return false, err
	}
	if written {
		s.logger.Info("room metrics finalized", zap.String("room", roomID))
	}
	return written, nil
}

// meanAgentResponse computes the mean latency, in seconds, between a
// contact message and the next agent reply.
func meanAgentResponse(messages []domain.Message) int64 {
	var total, count int64
	var pendingContact *domain.Message
	for i := range messages {
		msg := &messages[i]
		switch {
		case msg.ContactID != nil:
			if pendingContact == nil {
				pendingContact = msg
			}
		case msg.UserID != nil:
			if pendingContact != nil {
				total += int64(msg.CreatedAt.Sub(pendingContact.CreatedAt).Seconds())
				count++
				pendingContact = nil
			}
		}
	}
	if count == 0 {
		return 0
	}
	return total / count
}
