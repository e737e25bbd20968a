package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/playperu/detective/internal/detective"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError renders err by kind. Storage failures and unclassified
// errors never leak their cause to the client.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch detective.KindOf(err) {
	case detective.KindValidation:
		writeError(w, http.StatusBadRequest, detective.Message(err))
	case detective.KindState, detective.KindConflict:
		writeError(w, http.StatusConflict, detective.Message(err))
	case detective.KindNotFound:
		writeError(w, http.StatusNotFound, detective.Message(err))
	case detective.KindPersistence:
		writeError(w, http.StatusServiceUnavailable, "internal error")
	default:
		logger.Error("unhandled error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
