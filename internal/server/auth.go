package server

import (
	"errors"
	"net/http"
	"strings"
)

const adminCookieName = "admin_session"

var errNoToken = errors.New("no bearer token")

func bearerToken(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(auth, "Bearer ")
	if !found || token == "" {
		return "", errNoToken
	}
	return token, nil
}
