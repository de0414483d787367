package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/chatstack/routing-service/internal/api/http/handlers"
	"github.com/chatstack/routing-service/internal/auth"
	"github.com/chatstack/routing-service/internal/observability"
	"github.com/chatstack/routing-service/internal/ws"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Rooms          *handlers.RoomsHandler
	Queues         *handlers.QueuesHandler
	Sectors        *handlers.SectorsHandler
	Gateway        *ws.Gateway
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(observability.MetricsHandler()))

	app.Get("/ws", cfg.Gateway.UpgradeGuard(), cfg.Gateway.Handler())

	external := app.Group("/external", cfg.AuthMiddleware.Handle)
	external.Post("/rooms", cfg.Rooms.Create)
	external.Put("/rooms/:uuid/close", cfg.Rooms.Close)
	external.Patch("/rooms/:ticket", cfg.Rooms.Pick)

	rooms := app.Group("/rooms", cfg.AuthMiddleware.Handle)
	rooms.Post("/bulk-close", cfg.Rooms.BulkClose)
	rooms.Patch("/:uuid/custom-fields", cfg.Rooms.UpdateCustomFields)

	queues := app.Group("/queues", cfg.AuthMiddleware.Handle)
	queues.Get("/:uuid/transfer-agents", cfg.Queues.TransferAgents)

	sectors := app.Group("/sectors", cfg.AuthMiddleware.Handle)
	sectors.Get("/:uuid/check-required-tags", cfg.Sectors.CheckRequiredTags)
}
