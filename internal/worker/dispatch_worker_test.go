package worker

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/chatstack/routing-service/internal/domain"
	"github.com/chatstack/routing-service/internal/events"
)

type staticQueueAuths struct {
	byPermission map[string][]domain.QueueAuthorization
}

func (s *staticQueueAuths) Create(context.Context, *domain.QueueAuthorization) error { return nil }

func (s *staticQueueAuths) Delete(context.Context, string) error { return nil }

func (s *staticQueueAuths) GetByID(context.Context, string) (*domain.QueueAuthorization, error) {
	return nil, pgx.ErrNoRows
}

func (s *staticQueueAuths) GetByPermissionQueue(context.Context, string, string) (*domain.QueueAuthorization, error) {
	return nil, pgx.ErrNoRows
}

func (s *staticQueueAuths) ListByQueue(context.Context, string, string) ([]domain.QueueAuthorization, error) {
	return nil, nil
}

func (s *staticQueueAuths) ListByPermission(_ context.Context, permissionID string) ([]domain.QueueAuthorization, error) {
	return s.byPermission[permissionID], nil
}

func TestTriggerCoalescesPerQueue(t *testing.T) {
	w := NewDispatchWorker(nil, nil, nil, nil, zap.NewNop())

	w.Trigger("q1")
	w.Trigger("q1")
	w.Trigger("q2")
	w.Trigger("")

	if got := len(w.triggers); got != 2 {
		t.Fatalf("scheduled triggers = %d, want 2", got)
	}

	// Draining a trigger clears the mark, so the queue can schedule again.
	queueID := <-w.triggers
	w.clearPending(queueID)
	w.Trigger(queueID)
	if got := len(w.triggers); got != 2 {
		t.Fatalf("triggers after reschedule = %d, want 2", got)
	}
}

func TestRoomEventsTriggerDispatch(t *testing.T) {
	w := NewDispatchWorker(nil, nil, nil, nil, zap.NewNop())
	dispatcher := events.NewInMemoryDispatcher()
	w.RegisterHandlers(dispatcher)

	ev := events.NewEvent(events.EventRoomCreated, "rooms.create")
	ev.QueueIDs = []string{"q1"}
	_ = dispatcher.Publish(context.Background(), ev)

	closedEv := events.NewEvent(events.EventRoomClosed, "rooms.close")
	closedEv.QueueIDs = []string{"q1", "q2"}
	_ = dispatcher.Publish(context.Background(), closedEv)

	// q1 coalesces across both events.
	if got := len(w.triggers); got != 2 {
		t.Fatalf("scheduled triggers = %d, want 2", got)
	}
}

func TestPermissionEventsTriggerAuthorizedQueues(t *testing.T) {
	auths := &staticQueueAuths{byPermission: map[string][]domain.QueueAuthorization{
		"perm-1": {
			{ID: "a1", QueueID: "q1", PermissionID: "perm-1", Role: domain.ScopeRoleAgent},
			{ID: "a2", QueueID: "q2", PermissionID: "perm-1", Role: domain.ScopeRoleAgent},
		},
	}}
	w := NewDispatchWorker(nil, nil, nil, auths, zap.NewNop())
	dispatcher := events.NewInMemoryDispatcher()
	w.RegisterHandlers(dispatcher)

	ev := events.NewEvent(events.EventPermissionChanged, "permissions.status")
	ev.PermissionIDs = []string{"perm-1"}
	_ = dispatcher.Publish(context.Background(), ev)

	if got := len(w.triggers); got != 2 {
		t.Fatalf("scheduled triggers = %d, want 2", got)
	}
}
