package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/playperu/detective/internal/detective"
	"github.com/playperu/detective/internal/engine"
	"github.com/playperu/detective/internal/session"
)

// RoomLoginRequest is the request body for POST /api/rooms/{roomID}/login.
type RoomLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RoomLoginResponse struct {
	Token      string `json:"token"`
	PlayerID   string `json:"playerId"`
	RoomID     string `json:"roomId"`
	ScenarioID string `json:"scenarioId"`
}

// handleRoomLogin issues a bearer token bound to one room. Login is allowed
// in any room state so players can wait for the start. An unknown room is
// reported like a bad password.
func handleRoomLogin(logger *slog.Logger, e *engine.Engine, admin AdminStore, sessions session.Store, ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomID")

		var req RoomLoginRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Username = strings.TrimSpace(req.Username)
		if req.Username == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "username and password are required")
			return
		}

		u, err := admin.RoomUser(r.Context(), roomID, req.Username)
		if errors.Is(err, detective.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		st, err := e.RoomStatus(r.Context(), roomID)
		if errors.Is(err, detective.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}

		sess := session.Session{
			Token:      session.NewToken(),
			Kind:       detective.ActorPlayer,
			ActorID:    u.ID,
			Username:   u.Username,
			RoomID:     roomID,
			ScenarioID: st.Room.ScenarioID,
			ExpiresAt:  time.Now().Add(ttl),
		}
		if err := sessions.CreateSession(r.Context(), sess); err != nil {
			logger.Error("creating player session", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		logger.Info("player logged in", "room_id", roomID, "player_id", u.ID)
		writeJSON(w, http.StatusOK, RoomLoginResponse{
			Token:      sess.Token,
			PlayerID:   u.ID,
			RoomID:     roomID,
			ScenarioID: st.Room.ScenarioID,
		})
	}
}
