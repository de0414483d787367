package dto

import (
	"time"

	"github.com/chatstack/routing-service/internal/domain"
)

// CreateRoomRequest is the external room-creation payload.
type CreateRoomRequest struct {
	Contact      ContactDescriptor `json:"contact"`
	QueueUUID    string            `json:"queue_uuid"`
	SectorUUID   string            `json:"sector_uuid"`
	TicketUUID   *string           `json:"ticket_uuid"`
	CallbackURL  *string           `json:"callback_url"`
	CustomFields map[string]any    `json:"custom_fields"`
	FlowUUID     string            `json:"flow_uuid"`
}

// ContactDescriptor identifies the end-user correspondent.
type ContactDescriptor struct {
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
	URN        string `json:"urn"`
}

// CloseRoomRequest carries a single-room closure.
type CloseRoomRequest struct {
	Tags  []string `json:"tags"`
	EndBy string   `json:"end_by"`
}

// BulkCloseRequest carries a bulk closure.
type BulkCloseRequest struct {
	Rooms []BulkCloseRoom `json:"rooms"`
	EndBy string          `json:"end_by"`
}

// BulkCloseRoom is one entry in a bulk closure.
type BulkCloseRoom struct {
	UUID string   `json:"uuid"`
	Tags []string `json:"tags"`
}

// UpdateCustomFieldsRequest merges fields into a room.
type UpdateCustomFieldsRequest struct {
	CustomFields map[string]any `json:"custom_fields"`
}

// RoomResponse is the external room representation.
type RoomResponse struct {
	UUID         string                 `json:"uuid"`
	Queue        string                 `json:"queue"`
	User         *string                `json:"user"`
	Contact      string                 `json:"contact"`
	TicketUUID   *string                `json:"ticket_uuid"`
	CallbackURL  *string                `json:"callback_url"`
	URN          string                 `json:"urn"`
	IsActive     bool                   `json:"is_active"`
	Tags         []string               `json:"tags"`
	CustomFields map[string]any         `json:"custom_fields"`
	Transfers    []domain.TransferEvent `json:"transfer_history"`
	CreatedOn    time.Time              `json:"created_on"`
	EndedAt      *time.Time             `json:"ended_at"`
	EndedBy      *string                `json:"ended_by"`
}

// FromRoom maps a domain room onto the wire shape.
func FromRoom(room *domain.Room) RoomResponse {
	return RoomResponse{
		UUID:         room.ID,
		Queue:        room.QueueID,
		User:         room.UserID,
		Contact:      room.ContactID,
		TicketUUID:   room.TicketUUID,
		CallbackURL:  room.CallbackURL,
		URN:          room.URN,
		IsActive:     room.IsActive,
		Tags:         room.Tags,
		CustomFields: room.CustomFields,
		Transfers:    room.TransferHistory,
		CreatedOn:    room.CreatedAt,
		EndedAt:      room.EndedAt,
		EndedBy:      room.EndedBy,
	}
}
