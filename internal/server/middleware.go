package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/detective/internal/detective"
	"github.com/playperu/detective/internal/engine"
	"github.com/playperu/detective/internal/session"
)

type ctxKey int

const (
	ctxKeySession ctxKey = iota
	ctxKeyScenario
)

// activeScenario is the path literal that selects the globally active
// scenario.
const activeScenario = "active"

func playerAuthMiddleware(sessions session.Store, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or missing session token")
				return
			}
			sess, ok := lookupSession(w, r, sessions, logger, token, detective.ActorPlayer)
			if !ok {
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeySession, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func adminAuthMiddleware(sessions session.Store, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(adminCookieName)
			if err != nil || cookie.Value == "" {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			sess, ok := lookupSession(w, r, sessions, logger, cookie.Value, detective.ActorAdmin)
			if !ok {
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeySession, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func lookupSession(w http.ResponseWriter, r *http.Request, sessions session.Store, logger *slog.Logger, token string, kind detective.ActorKind) (session.Session, bool) {
	sess, err := sessions.Session(r.Context(), token)
	if errors.Is(err, session.ErrNoSession) || (err == nil && sess.Kind != kind) {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return session.Session{}, false
	}
	if err != nil {
		logger.Error("session lookup failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "internal error")
		return session.Session{}, false
	}
	return sess, true
}

// scenarioMiddleware resolves {scenarioID}, including the "active" literal,
// once per request.
func scenarioMiddleware(e *engine.Engine, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "scenarioID")
			if id == activeScenario {
				sc, err := e.ActiveScenario(r.Context())
				if err != nil {
					writeDomainError(w, logger, err)
					return
				}
				id = sc.ID
			}
			ctx := context.WithValue(r.Context(), ctxKeyScenario, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionFrom(r *http.Request) session.Session {
	return r.Context().Value(ctxKeySession).(session.Session)
}

func scenarioFrom(r *http.Request) string {
	return r.Context().Value(ctxKeyScenario).(string)
}

// playerScope is the scope a player session was issued for.
func playerScope(sess session.Session) detective.Scope {
	return detective.Scope{ScenarioID: sess.ScenarioID, RoomID: sess.RoomID}
}
