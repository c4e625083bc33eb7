package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type Handlers struct {
	Query     *QueryHandler
	Analytics *AnalyticsHandler
	Health    *HealthHandler
	WebSocket *WebSocketHandler
}

// Register mounts every route on app.
func Register(app *fiber.App, h Handlers) {
	api := app.Group("/api/v1")

	api.Post("/query", h.Query.HandleQuery)
	api.Post("/search", h.Query.HandleSearch)
	api.Get("/employee-count", h.Query.EmployeeCount)

	api.Get("/analytics/summary", h.Analytics.Summary)
	api.Get("/analytics/departments", h.Analytics.Departments)
	api.Get("/search/suggestions", h.Analytics.Suggestions)
	api.Get("/search/facets", h.Analytics.Facets)
	api.Get("/stats", h.Analytics.Stats)

	api.Get("/health", h.Health.Health)
	api.Get("/ready", h.Health.Ready)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/query", websocket.New(h.WebSocket.HandleConnection))
}
