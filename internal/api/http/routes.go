package httpapi

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes wires the HTTP handlers into the Fiber app. limiter guards
// the write endpoints and may be nil.
func RegisterRoutes(app *fiber.App, h *Handler, limiter *RateLimiter) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "stock-smart-kitchen",
		})
	})

	writes := []fiber.Handler{}
	if limiter != nil {
		writes = append(writes, limiter.Middleware())
	}

	v1 := app.Group("/api/v1")

	v1.Get("/locations", h.GetLocations)
	v1.Post("/observations", append(writes, h.PostObservations)...)
	v1.Get("/aggregates", h.GetAggregates)
	v1.Get("/correlations", h.GetCorrelations)
	v1.Get("/forecasts/accuracy", h.GetForecastAccuracy)
	v1.Get("/waste", h.GetWaste)

	inv := v1.Group("/inventory")
	inv.Get("/", h.GetInventory)
	inv.Get("/summary", h.GetInventorySummary)
	inv.Post("/events", append(writes, h.PostInventoryEvent)...)
	inv.Put("/items/:id", append(writes, h.PutInventoryItem)...)

	app.Get("/ws/observations", h.RequireLocationForUpgrade, websocket.New(h.LiveFeed))
}
