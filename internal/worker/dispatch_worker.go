package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/chatstack/routing-service/internal/events"
	"github.com/chatstack/routing-service/internal/repository"
	"github.com/chatstack/routing-service/internal/service"
)

// DispatchWorker triggers the queue-priority dispatcher whenever a room
// arrives, an agent's presence changes, or a room closes. Triggers are
// coalesced per queue so a burst of events runs the dispatcher once.
type DispatchWorker struct {
	routing     *service.RoutingService
	rooms       repository.RoomRepository
	permissions repository.PermissionRepository
	queueAuths  repository.QueueAuthorizationRepository
	logger      *zap.Logger

	triggers chan string

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewDispatchWorker creates the worker.
func NewDispatchWorker(routing *service.RoutingService, rooms repository.RoomRepository, permissions repository.PermissionRepository, queueAuths repository.QueueAuthorizationRepository, logger *zap.Logger) *DispatchWorker {
	return &DispatchWorker{
		routing:     routing,
		rooms:       rooms,
		permissions: permissions,
		queueAuths:  queueAuths,
		logger:      logger,
		triggers:    make(chan string, 256),
		pending:     make(map[string]struct{}),
	}
}

// RegisterHandlers subscribes the worker to dispatch triggers.
func (w *DispatchWorker) RegisterHandlers(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventRoomCreated, w.handleRoomEvent)
	dispatcher.Subscribe(events.EventRoomClosed, w.handleRoomEvent)
	dispatcher.Subscribe(events.EventRoomTransferred, w.handleRoomEvent)
	dispatcher.Subscribe(events.EventPermissionChanged, w.handlePermissionEvent)
}

// Run drains triggers with a pool of workers until ctx is canceled.
func (w *DispatchWorker) Run(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 2
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case queueID := <-w.triggers:
					w.clearPending(queueID)
					if err := w.routing.DispatchQueue(ctx, queueID); err != nil && ctx.Err() == nil {
						w.logger.Error("dispatch run failed",
							zap.String("queue", queueID), zap.Error(err))
					}
				}
			}
		}()
	}
	wg.Wait()
}

// Trigger schedules one dispatcher run for the queue.
func (w *DispatchWorker) Trigger(queueID string) {
	if queueID == "" {
		return
	}
	w.mu.Lock()
	if _, dup := w.pending[queueID]; dup {
		w.mu.Unlock()
		return
	}
	w.pending[queueID] = struct{}{}
	w.mu.Unlock()

	select {
	case w.triggers <- queueID:
	default:
		// Channel full; drop the coalescing mark so a later event can
		// reschedule.
		w.clearPending(queueID)
	}
}

func (w *DispatchWorker) clearPending(queueID string) {
	w.mu.Lock()
	delete(w.pending, queueID)
	w.mu.Unlock()
}

func (w *DispatchWorker) handleRoomEvent(ctx context.Context, event events.Event) error {
	for _, queueID := range event.QueueIDs {
		w.Trigger(queueID)
	}
	return nil
}

// handlePermissionEvent re-runs the dispatcher for every queue the
// permission is authorized on, so a status flip to online drains waiting
// rooms.
func (w *DispatchWorker) handlePermissionEvent(ctx context.Context, event events.Event) error {
	for _, permissionID := range event.PermissionIDs {
		auths, err := w.queueAuths.ListByPermission(ctx, permissionID)
		if err != nil {
			w.logger.Warn("queue lookup for dispatch trigger failed",
				zap.String("permission", permissionID), zap.Error(err))
			continue
		}
		for _, auth := range auths {
			w.Trigger(auth.QueueID)
		}
	}
	return nil
}
