package domain

import "time"

// MessageStatus tracks broker-acknowledged delivery progress.
type MessageStatus string

const (
	MessageQueued    MessageStatus = "QUEUED"
	MessageSent      MessageStatus = "SENT"
	MessageDelivered MessageStatus = "DELIVERED"
	MessageRead      MessageStatus = "READ"
	MessageFailed    MessageStatus = "FAILED"
)

// Media is one attachment on a message.
type Media struct {
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
}

// Message is one utterance in a room. Author is a user, a contact, or the
// system (both author fields nil). Messages are totally ordered per room
// by (created_at, id); ids are ULIDs so the id tie-break follows creation
// order.
type Message struct {
	ID         string
	RoomID     string
	UserID     *string
	ContactID  *string
	Text       string
	Media      []Media
	Seen       bool
	ExternalID *string
	Status     MessageStatus
	Metadata   map[string]any
	CreatedAt  time.Time
}

// FromSystem reports whether the message was authored by the platform.
func (m *Message) FromSystem() bool {
	return m.UserID == nil && m.ContactID == nil
}

// Snapshot returns the denormalized form stored on the room.
func (m *Message) Snapshot() *MessageSnapshot {
	return &MessageSnapshot{ID: m.ID, Text: m.Text, CreatedAt: m.CreatedAt}
}
