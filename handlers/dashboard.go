package handlers

import (
	"time"

	"arcade-analytics-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupDashboardRoutes(app *fiber.App, snapshots *services.SnapshotService, eventStore *services.EventStore, jobs *services.JobSet) {
	// Read-only aggregate views for dashboards
	app.Get("/s/dashboard/leaderboard", snapshots.GetLeaderboardSnapshot)
	app.Get("/s/dashboard/kpis", snapshots.GetKPISnapshot)
	app.Get("/s/dashboard/retention", snapshots.GetRetention)
	app.Get("/s/dashboard/roi", snapshots.GetROI)
	app.Get("/s/dashboard/jobs", snapshots.GetJobs)

	// Operator endpoints
	admin := app.Group("/s/admin")
	admin.Get("/events/stuck", eventStore.GetStuckEvents)
	admin.Post("/refresh", func(c *fiber.Ctx) error {
		if err := jobs.RunAll(time.Now().UTC()); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"message": "refresh completed with errors",
				"error":   err.Error(),
			})
		}
		return c.JSON(fiber.Map{"message": "refresh complete"})
	})
}
