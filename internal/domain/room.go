package domain

import "time"

// TransferAction enumerates the transfer-history action labels.
type TransferAction string

const (
	TransferActionTransfer      TransferAction = "transfer"
	TransferActionForward       TransferAction = "forward"
	TransferActionPick          TransferAction = "pick"
	TransferActionAutoAssign    TransferAction = "auto_assign_from_queue"
	TransferActionQueueTransfer TransferAction = "queue_transfer"
)

// TransferRef describes one side of a transfer event.
type TransferRef struct {
	Type string `json:"type"` // "user" or "queue"
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// UserRef builds a user-side transfer descriptor.
func UserRef(id, name string) *TransferRef {
	return &TransferRef{Type: "user", ID: id, Name: name}
}

// QueueRef builds a queue-side transfer descriptor.
func QueueRef(id, name string) *TransferRef {
	return &TransferRef{Type: "queue", ID: id, Name: name}
}

// TransferEvent is one append-only record in a room's transfer history.
type TransferEvent struct {
	Action      TransferAction `json:"action"`
	From        *TransferRef   `json:"from,omitempty"`
	To          *TransferRef   `json:"to,omitempty"`
	RequestedBy *TransferRef   `json:"requested_by,omitempty"`
	At          time.Time      `json:"at"`
}

// MessageSnapshot denormalizes the latest message onto the room.
type MessageSnapshot struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Room is one conversation between a contact and (eventually) an agent.
// Lifecycle: created (active, unassigned) -> assigned (active, user set)
// -> closed (inactive, ended_at set, never mutated again).
type Room struct {
	ID          string
	QueueID     string
	UserID      *string
	ContactID   string
	TicketUUID  *string
	CallbackURL *string
	URN         string
	IsActive    bool

	CreatedAt            time.Time
	AddedToQueueAt       *time.Time
	FirstUserAssignedAt  *time.Time
	FirstAgentMessageAt  *time.Time
	EndedAt              *time.Time
	EndedBy              *string

	Tags            []string
	CustomFields    map[string]any
	TransferHistory []TransferEvent
	LastMessage     *MessageSnapshot
}

// Assigned reports whether the room currently has an agent.
func (r *Room) Assigned() bool {
	return r.UserID != nil && *r.UserID != ""
}

// AppendTransfer appends one event to the history. History is append-only;
// callers never remove or rewrite past events.
func (r *Room) AppendTransfer(ev TransferEvent) {
	r.TransferHistory = append(r.TransferHistory, ev)
}

// RoomMetrics is the per-room aggregate written at creation and finalized
// on closure.
type RoomMetrics struct {
	ID                  string
	RoomID              string
	WaitingTime         int64 // seconds from creation to first assignment
	QueuedCount         int
	FirstResponseTime   int64 // seconds to first agent message
	MessageResponseTime int64 // mean agent response latency, seconds
	InteractionTime     int64 // seconds from creation to closure
	TransferCount       int
}

// Finalized reports whether closure metrics were already computed.
func (m *RoomMetrics) Finalized() bool {
	return m.InteractionTime > 0
}
