package service

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/chatstack/routing-service/internal/config"
	"github.com/chatstack/routing-service/internal/domain"
	"github.com/chatstack/routing-service/internal/events"
	"github.com/chatstack/routing-service/internal/repository"
	"github.com/chatstack/routing-service/pkg/util"
)

// MessageService creates messages and maintains the first-agent-message
// room timestamp.
type MessageService struct {
	messages   repository.MessageRepository
	rooms      repository.RoomRepository
	metrics    repository.MetricsRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewMessageService creates the message service.
func NewMessageService(messages repository.MessageRepository, rooms repository.RoomRepository, metrics repository.MetricsRepository, dispatcher events.Dispatcher, logger *zap.Logger) *MessageService {
	return &MessageService{
		messages:   messages,
		rooms:      rooms,
		metrics:    metrics,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// MessageCreateInput describes one utterance.
type MessageCreateInput struct {
	RoomID    string
	UserID    *string
	ContactID *string
	Text      string
	Media     []domain.Media
	Metadata  map[string]any
}

// Create persists a message. The first agent-authored message stamps the
// room and the first-response metric.
func (s *MessageService) Create(ctx context.Context, in MessageCreateInput) (*domain.Message, error) {
	room, err := s.rooms.GetByID(ctx, in.RoomID)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, util.NewValidationError("room is closed", nil)
	}

	now := time.Now().UTC()
	msg := &domain.Message{
		ID:        ulid.Make().String(),
		RoomID:    in.RoomID,
		UserID:    in.UserID,
		ContactID: in.ContactID,
		Text:      in.Text,
		Media:     in.Media,
		Status:    domain.MessageQueued,
		Metadata:  in.Metadata,
		CreatedAt: now,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	if in.UserID != nil && room.FirstAgentMessageAt == nil {
		room.FirstAgentMessageAt = &now
		if err := s.rooms.Update(ctx, room); err != nil {
			s.logger.Warn("first agent message stamp failed",
				zap.String("room", room.ID), zap.Error(err))
		}
	}

	ev := events.NewEvent(events.EventMessageCreated, "msg.create")
	ev.RoomID = room.ID
	ev.RoomIDs = []string{room.ID}
	ev.Content = map[string]any{
		"uuid": msg.ID,
		"room": room.ID,
		"text": msg.Text,
	}
	_ = s.dispatcher.Publish(ctx, ev)
	return msg, nil
}

// BindExternalID attaches the broker-side id to a message.
func (s *MessageService) BindExternalID(ctx context.Context, messageID, externalID string) error {
	return s.messages.BindExternalID(ctx, messageID, externalID)
}

// StatusBuffer batches message-status updates and flushes them in bulk
// on a timer, on buffer fill, or on shutdown.
type StatusBuffer struct {
	messages repository.MessageRepository
	logger   *zap.Logger

	size     int
	interval time.Duration

	mu      sync.Mutex
	pending []repository.StatusUpdate
}

// NewStatusBuffer creates a buffer with the configured flush thresholds.
func NewStatusBuffer(cfg config.RoutingConfig, messages repository.MessageRepository, logger *zap.Logger) *StatusBuffer {
	size := cfg.StatusFlushSize
	if size <= 0 {
		size = 100
	}
	interval := time.Duration(cfg.StatusFlushSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &StatusBuffer{messages: messages, logger: logger, size: size, interval: interval}
}

// Add buffers one update, flushing synchronously when the buffer fills.
func (b *StatusBuffer) Add(ctx context.Context, update repository.StatusUpdate) {
	b.mu.Lock()
	b.pending = append(b.pending, update)
	full := len(b.pending) >= b.size
	b.mu.Unlock()
	if full {
		b.Flush(ctx)
	}
}

// Flush writes every pending update. Safe to call concurrently and on an
// empty buffer.
func (b *StatusBuffer) Flush(ctx context.Context) {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	if err := b.messages.BulkUpdateStatus(ctx, batch); err != nil {
		b.logger.Error("status flush failed",
			zap.Int("batch", len(batch)), zap.Error(err))
		return
	}
	b.logger.Debug("status batch flushed", zap.Int("batch", len(batch)))
}

// Run flushes on the interval until ctx is canceled, then drains one
// final time so SIGTERM loses nothing.
func (b *StatusBuffer) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			b.Flush(context.Background())
			return
		case <-ticker.C:
			b.Flush(ctx)
		}
	}
}
