package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/chatstack/routing-service/internal/service"
)

// SectorsHandler exposes sector-scoped lookups.
type SectorsHandler struct {
	sectors *service.SectorService
}

// NewSectorsHandler returns a new handler instance.
func NewSectorsHandler(sectors *service.SectorService) *SectorsHandler {
	return &SectorsHandler{sectors: sectors}
}

// CheckRequiredTags reports whether the sector requires tags on closure.
func (h *SectorsHandler) CheckRequiredTags(c *fiber.Ctx) error {
	policy, err := h.sectors.CheckRequiredTags(c.UserContext(), c.Params("uuid"))
	if err != nil {
		return err
	}
	return c.JSON(policy)
}
