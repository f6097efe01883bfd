package handlers

import (
	"arcade-analytics-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupEventRoutes(app *fiber.App, eventStore *services.EventStore) {
	// Ingestion — called by the ingestion layer, once per client event.
	app.Post("/s/events", eventStore.IngestEvent)
	app.Post("/s/events/batch", eventStore.IngestEventBatch)
}
