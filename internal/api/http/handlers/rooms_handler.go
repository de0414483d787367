package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/chatstack/routing-service/internal/api/dto"
	"github.com/chatstack/routing-service/internal/auth"
	"github.com/chatstack/routing-service/internal/service"
	"github.com/chatstack/routing-service/pkg/util"
)

// RoomsHandler exposes the conversation state machine over HTTP.
type RoomsHandler struct {
	rooms *service.RoomService
}

// NewRoomsHandler returns a new handler instance.
func NewRoomsHandler(rooms *service.RoomService) *RoomsHandler {
	return &RoomsHandler{rooms: rooms}
}

// Create opens a room (or re-engages an existing one).
func (h *RoomsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid request body", nil)
	}
	if req.Contact.ExternalID == "" {
		return util.NewValidationError("contact external_id is required", nil)
	}

	user := auth.CurrentUser(c)
	in := service.RoomCreateInput{
		ContactExternalID: req.Contact.ExternalID,
		ContactName:       req.Contact.Name,
		URN:               req.Contact.URN,
		QueueID:           req.QueueUUID,
		SectorID:          req.SectorUUID,
		TicketUUID:        req.TicketUUID,
		CallbackURL:       req.CallbackURL,
		CustomFields:      req.CustomFields,
		FlowUUID:          req.FlowUUID,
		CreatedByUserID:   user.ID,
	}
	if err := h.rooms.AuthorizeExternal(c.UserContext(), user.ID, in); err != nil {
		return err
	}

	room, err := h.rooms.Create(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromRoom(room))
}

// Close ends a room.
func (h *RoomsHandler) Close(c *fiber.Ctx) error {
	var req dto.CloseRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid request body", nil)
	}
	user := auth.CurrentUser(c)
	room, err := h.rooms.Close(c.UserContext(), c.Params("uuid"), req.Tags, user.ID, req.EndBy)
	if err != nil {
		return err
	}
	return c.JSON(dto.FromRoom(room))
}

// Pick assigns the caller to a queued room by ticket.
func (h *RoomsHandler) Pick(c *fiber.Ctx) error {
	user := auth.CurrentUser(c)
	room, err := h.rooms.Pick(c.UserContext(), c.Params("ticket"), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(dto.FromRoom(room))
}

// BulkClose closes a batch of rooms.
func (h *RoomsHandler) BulkClose(c *fiber.Ctx) error {
	var req dto.BulkCloseRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid request body", nil)
	}
	if len(req.Rooms) == 0 {
		return util.NewValidationError("rooms list is empty", nil)
	}

	in := service.BulkCloseInput{
		Actor: auth.CurrentUser(c).ID,
		EndBy: req.EndBy,
		Tags:  make(map[string][]string, len(req.Rooms)),
	}
	for _, room := range req.Rooms {
		in.RoomIDs = append(in.RoomIDs, room.UUID)
		in.Tags[room.UUID] = room.Tags
	}

	result, err := h.rooms.BulkClose(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// UpdateCustomFields merges custom fields into a room.
func (h *RoomsHandler) UpdateCustomFields(c *fiber.Ctx) error {
	var req dto.UpdateCustomFieldsRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid request body", nil)
	}
	room, err := h.rooms.UpdateCustomFields(c.UserContext(), c.Params("uuid"), req.CustomFields)
	if err != nil {
		return err
	}
	return c.JSON(dto.FromRoom(room))
}
