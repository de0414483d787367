package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/chatstack/routing-service/internal/events"
	"github.com/chatstack/routing-service/internal/service"
)

// MetricsWorker finalizes room metrics after closure. Finalization is
// idempotent, so replays and the startup rescan are safe.
type MetricsWorker struct {
	metrics *service.MetricsService
	logger  *zap.Logger
	jobs    chan string
}

// NewMetricsWorker creates the worker.
func NewMetricsWorker(metrics *service.MetricsService, logger *zap.Logger) *MetricsWorker {
	return &MetricsWorker{
		metrics: metrics,
		logger:  logger,
		jobs:    make(chan string, 256),
	}
}

// RegisterHandlers subscribes the worker to room closures.
func (w *MetricsWorker) RegisterHandlers(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventRoomClosed, func(ctx context.Context, event events.Event) error {
		if event.RoomID != "" {
			w.enqueue(event.RoomID)
		}
		return nil
	})
}

// Rescan enqueues every closed room whose metrics were never finalized.
// Called once at startup to recover work lost to a crash.
func (w *MetricsWorker) Rescan(ctx context.Context, pending []string) {
	for _, roomID := range pending {
		w.enqueue(roomID)
	}
	if len(pending) > 0 {
		w.logger.Info("metric finalization rescan", zap.Int("pending", len(pending)))
	}
}

// Run processes finalization jobs until ctx is canceled.
func (w *MetricsWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case roomID := <-w.jobs:
			if _, err := w.metrics.Finalize(ctx, roomID); err != nil && ctx.Err() == nil {
				w.logger.Error("metric finalization failed",
					zap.String("room", roomID), zap.Error(err))
			}
		}
	}
}

func (w *MetricsWorker) enqueue(roomID string) {
	select {
	case w.jobs <- roomID:
	default:
		w.logger.Warn("metric job buffer full, dropping (rescan will recover)",
			zap.String("room", roomID))
	}
}
