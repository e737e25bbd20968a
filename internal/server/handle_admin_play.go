package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/detective/internal/detective"
	"github.com/playperu/detective/internal/engine"
)

// handleAdminScenarioStatistics picks the narrowest aggregate the query
// asks for: ?actor= (optionally with ?room=), then ?room=, then the whole
// scenario.
func handleAdminScenarioStatistics(logger *slog.Logger, e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scenarioID := scenarioFrom(r)
		room := r.URL.Query().Get("room")
		actor := r.URL.Query().Get("actor")

		var (
			rows []detective.DistrictStats
			err  error
		)
		switch {
		case actor != "":
			rows, err = e.StatsByUser(r.Context(), actor, scenarioID, room)
		case room != "":
			rows, err = e.StatsByRoom(r.Context(), room, scenarioID)
		default:
			rows, err = e.StatsByDistrict(r.Context(), scenarioID)
		}
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, statisticsView(rows))
	}
}

func handleAdminAddressChoices(logger *slog.Logger, e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		choices, err := e.Choices(r.Context(), scenarioFrom(r), chi.URLParam(r, "addressID"))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, ChoicesResponse{
			HasChoices: len(choices) > 0,
			Choices:    choiceItems(choices),
		})
	}
}
