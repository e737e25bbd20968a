package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/playperu/detective/internal/detective"
	"github.com/playperu/detective/internal/engine"
)

type CreateRoomRequest struct {
	ScenarioID      string `json:"scenario_id"`
	Name            string `json:"name"`
	DurationSeconds int    `json:"duration_seconds"`
}

type CreatePlayerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type PlayerItem struct {
	ID       string `json:"id"`
	RoomID   string `json:"room_id"`
	Username string `json:"username"`
}

// handleAdminListRooms reports every room as currently observed, so
// expired rooms show as finished.
func handleAdminListRooms(logger *slog.Logger, e *engine.Engine, admin AdminStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms, err := admin.ListRooms(r.Context())
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}

		items := make([]RoomStateResponse, 0, len(rooms))
		for _, room := range rooms {
			st, err := e.RoomStatus(r.Context(), room.ID)
			if err != nil {
				writeDomainError(w, logger, err)
				return
			}
			items = append(items, roomStateView(st))
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func handleAdminCreateRoom(logger *slog.Logger, e *engine.Engine, admin AdminStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRoomRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		switch {
		case req.Name == "":
			writeError(w, http.StatusBadRequest, "name is required")
			return
		case req.DurationSeconds <= 0:
			writeError(w, http.StatusBadRequest, "duration_seconds must be positive")
			return
		}

		if req.ScenarioID == "" || req.ScenarioID == activeScenario {
			sc, err := e.ActiveScenario(r.Context())
			if err != nil {
				writeDomainError(w, logger, err)
				return
			}
			req.ScenarioID = sc.ID
		}

		room, err := admin.CreateRoom(r.Context(), detective.Room{
			ScenarioID:      req.ScenarioID,
			Name:            req.Name,
			CreatedBy:       sessionFrom(r).ActorID,
			DurationSeconds: req.DurationSeconds,
			State:           detective.RoomPending,
		})
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}

		st, err := e.RoomStatus(r.Context(), room.ID)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		logger.Info("room created", "room_id", room.ID, "scenario_id", room.ScenarioID)
		writeJSON(w, http.StatusCreated, roomStateView(st))
	}
}

func handleAdminCreatePlayer(logger *slog.Logger, admin AdminStore, cost int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePlayerRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Username = strings.TrimSpace(req.Username)
		if req.Username == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "username and password are required")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), cost)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid password")
			return
		}

		u, err := admin.CreateRoomUser(r.Context(), detective.RoomUser{
			RoomID:       chi.URLParam(r, "roomID"),
			Username:     req.Username,
			PasswordHash: string(hash),
		})
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, PlayerItem{ID: u.ID, RoomID: u.RoomID, Username: u.Username})
	}
}

func handleAdminRoomState(logger *slog.Logger, e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := e.RoomStatus(r.Context(), chi.URLParam(r, "roomID"))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, roomStateView(st))
	}
}

func handleAdminTransition(logger *slog.Logger, e *engine.Engine, t detective.Transition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := e.Transition(r.Context(), chi.URLParam(r, "roomID"), t)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, roomStateView(st))
	}
}

func handleAdminRoomStatistics(logger *slog.Logger, e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := e.StatsByRoom(r.Context(), chi.URLParam(r, "roomID"), "")
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, statisticsView(rows))
	}
}
