package ws

import (
	"context"

	"github.com/chatstack/routing-service/internal/events"
)

// Notifier forwards domain events to socket groups. It subscribes to the
// dispatcher the way the services publish, so every room mutation is
// re-emitted to the fan-out layer.
type Notifier struct {
	hub *Hub
}

// NewNotifier creates the notifier.
func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

// RegisterHandlers subscribes to every event type the services emit.
func (n *Notifier) RegisterHandlers(dispatcher events.Dispatcher) {
	for _, t := range []events.EventType{
		events.EventRoomCreated,
		events.EventRoomUpdated,
		events.EventRoomClosed,
		events.EventRoomTransferred,
		events.EventMessageCreated,
		events.EventQueueChanged,
		events.EventPermissionChanged,
	} {
		dispatcher.Subscribe(t, n.handle)
	}
}

func (n *Notifier) handle(_ context.Context, event events.Event) error {
	frame := Notify(event.Action, event.Content)
	for _, id := range event.PermissionIDs {
		n.hub.SendGroup(PermissionGroup(id), frame)
	}
	for _, id := range event.QueueIDs {
		n.hub.SendGroup(QueueGroup(id), frame)
	}
	for _, id := range event.RoomIDs {
		n.hub.SendGroup(RoomGroup(id), frame)
	}
	return nil
}
