package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/chatstack/routing-service/internal/service"
)

// QueuesHandler exposes queue-scoped lookups.
type QueuesHandler struct {
	routing *service.RoutingService
}

// NewQueuesHandler returns a new handler instance.
func NewQueuesHandler(routing *service.RoutingService) *QueuesHandler {
	return &QueuesHandler{routing: routing}
}

// TransferAgents lists the users eligible to receive transfers on a
// queue.
func (h *QueuesHandler) TransferAgents(c *fiber.Ctx) error {
	agents, err := h.routing.TransferAgents(c.UserContext(), c.Params("uuid"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"agents": agents})
}
