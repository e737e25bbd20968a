package server

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playperu/detective/internal/detective"
	"github.com/playperu/detective/internal/handler/health"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	e := deps.Engine

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Detective API", "/openapi.json", "/docs"))
	r.Mount("/healthz", health.NewHandler(logger, deps.Checks).Routes())

	r.Post("/api/rooms/{roomID}/login", handleRoomLogin(logger, e, deps.Admin, deps.Sessions, deps.SessionTTL))

	// Player routes; the session fixes the room and scenario.
	r.Route("/api/game", func(r chi.Router) {
		r.Use(playerAuthMiddleware(deps.Sessions, logger))
		r.Get("/state", handleGameState(logger, e))
		r.Post("/visit", handleVisit(logger, e, playerScopeOf))
		r.Post("/choice", handleChoice(logger, e, playerScopeOf))
		r.Get("/visited", handleVisited(logger, e, playerScopeOf))
		r.Get("/attempts", handleAttempts(logger, e, playerScopeOf))
		r.Get("/statistics", handlePlayerStatistics(logger, e))
	})

	r.Post("/api/admin/login", handleAdminLogin(logger, deps.Admin, deps.Sessions, deps.SessionTTL))
	r.Post("/api/admin/logout", handleAdminLogout(deps.Sessions))

	r.Group(func(r chi.Router) {
		r.Use(adminAuthMiddleware(deps.Sessions, logger))

		r.Get("/api/admin/me", handleAdminMe())

		r.Route("/api/admin/rooms", func(r chi.Router) {
			r.Get("/", handleAdminListRooms(logger, e, deps.Admin))
			r.Post("/", handleAdminCreateRoom(logger, e, deps.Admin))
			r.Post("/{roomID}/players", handleAdminCreatePlayer(logger, deps.Admin, deps.BcryptCost))
			r.Get("/{roomID}/state", handleAdminRoomState(logger, e))
			r.Post("/{roomID}/start", handleAdminTransition(logger, e, detective.TransitionStart))
			r.Post("/{roomID}/pause", handleAdminTransition(logger, e, detective.TransitionPause))
			r.Post("/{roomID}/resume", handleAdminTransition(logger, e, detective.TransitionResume))
			r.Post("/{roomID}/stop", handleAdminTransition(logger, e, detective.TransitionStop))
			r.Get("/{roomID}/statistics", handleAdminRoomStatistics(logger, e))
		})

		// Room-less play against a scenario, or "active".
		r.Route("/api/admin/scenarios/{scenarioID}", func(r chi.Router) {
			r.Use(scenarioMiddleware(e, logger))
			r.Post("/visit", handleVisit(logger, e, adminScopeOf))
			r.Post("/choice", handleChoice(logger, e, adminScopeOf))
			r.Get("/visited", handleVisited(logger, e, adminScopeOf))
			r.Get("/attempts", handleAttempts(logger, e, adminScopeOf))
			r.Get("/statistics", handleAdminScenarioStatistics(logger, e))
			r.Get("/addresses/{addressID}/choices", handleAdminAddressChoices(logger, e))
		})
	})
}
