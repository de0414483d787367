package events

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRoomCreated       EventType = "room_created"
	EventRoomUpdated       EventType = "room_updated"
	EventRoomClosed        EventType = "room_closed"
	EventRoomTransferred   EventType = "room_transferred"
	EventMessageCreated    EventType = "message_created"
	EventQueueChanged      EventType = "queue_changed"
	EventPermissionChanged EventType = "permission_changed"
)

// Event represents a domain event emitted by services. Actions follow the
// dotted websocket convention ("rooms.update", "msg.create"); the fan-out
// layer forwards Content to every target group verbatim.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Action    string    `json:"action"`
	RoomID    string    `json:"room_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	// Target groups for the fan-out layer.
	PermissionIDs []string `json:"-"`
	QueueIDs      []string `json:"-"`
	RoomIDs       []string `json:"-"`
	Content       any      `json:"content"`
}

// NewEvent stamps a sortable id and timestamp onto an event.
func NewEvent(t EventType, action string) Event {
	return Event{
		ID:        ulid.Make().String(),
		Type:      t,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
}
