package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/playperu/detective/internal/detective"
	"github.com/playperu/detective/internal/engine"
)

// scopeFunc extracts who is playing and where from an authenticated
// request.
type scopeFunc func(r *http.Request) (detective.Actor, detective.Scope)

func playerScopeOf(r *http.Request) (detective.Actor, detective.Scope) {
	sess := sessionFrom(r)
	return sess.Actor(), playerScope(sess)
}

func adminScopeOf(r *http.Request) (detective.Actor, detective.Scope) {
	return sessionFrom(r).Actor(), detective.Scope{ScenarioID: scenarioFrom(r)}
}

func handleGameState(logger *slog.Logger, e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := sessionFrom(r)
		st, err := e.RoomStatus(r.Context(), sess.RoomID)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, roomStateView(st))
	}
}

// handleVisit answers a miss with 404 and the guessed location echoed.
func handleVisit(logger *slog.Logger, e *engine.Engine, scopeOf scopeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VisitRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		actor, scope := scopeOf(r)
		out, err := e.ResolveVisit(r.Context(), actor, scope, req.District, req.HouseNumber)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}

		status := http.StatusOK
		if !out.Success {
			status = http.StatusNotFound
		}
		writeJSON(w, status, visitView(out))
	}
}

func handleChoice(logger *slog.Logger, e *engine.Engine, scopeOf scopeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChoiceRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		actor, scope := scopeOf(r)
		out, err := e.ResolveChoice(r.Context(), actor, scope, req.AddressID, req.ChoiceID)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, ChoiceResponse{
			Choice:        playerChoiceItem(out.Choice),
			AlreadyChosen: out.AlreadyChosen,
		})
	}
}

func handleVisited(logger *slog.Logger, e *engine.Engine, scopeOf scopeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, scope := scopeOf(r)
		entries, err := e.VisitedLocations(r.Context(), actor, scope)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, visitedItems(entries))
	}
}

func handleAttempts(logger *slog.Logger, e *engine.Engine, scopeOf scopeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		actor, scope := scopeOf(r)
		entries, err := e.Attempts(r.Context(), actor, scope, limit)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, attemptItems(entries))
	}
}

// handlePlayerStatistics reports the player's own attempts in their room.
func handlePlayerStatistics(logger *slog.Logger, e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := sessionFrom(r)
		rows, err := e.StatsByUser(r.Context(), sess.ActorID, sess.ScenarioID, sess.RoomID)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, statisticsView(rows))
	}
}
