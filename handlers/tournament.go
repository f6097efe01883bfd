package handlers

import (
	"arcade-analytics-system/middleware"
	"arcade-analytics-system/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func SetupTournamentRoutes(app *fiber.App, tournamentService *services.TournamentService, prizeService *services.PrizeService, log *zap.Logger) {
	// Tournament reads for clients/dashboards
	app.Get("/s/tournaments/current", tournamentService.GetCurrentTournament)
	app.Get("/s/tournaments/:id", tournamentService.GetTournamentByID)
	app.Get("/s/tournaments/:id/leaderboard", tournamentService.GetTournamentLeaderboard)

	// Prize poll/claim — needs the gateway-provided user identity
	secured := app.Group("/s/prizes", middleware.UserContextMiddleware(log))
	secured.Get("/pending", prizeService.GetPendingPrizes)
	secured.Post("/:id/claim", prizeService.ClaimPrize)
}
