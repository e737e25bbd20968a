// Package session maps opaque bearer tokens and admin cookies to the actor
// they authenticate.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/playperu/detective/internal/detective"
)

var ErrNoSession = errors.New("no session")

// Session is what a token resolves to. Player sessions carry the room they
// were issued for; admin sessions carry the email.
type Session struct {
	Token      string
	Kind       detective.ActorKind
	ActorID    string
	Email      string
	Username   string
	RoomID     string
	ScenarioID string
	ExpiresAt  time.Time
}

func (s Session) Actor() detective.Actor {
	return detective.Actor{ID: s.ActorID, Kind: s.Kind}
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store persists sessions. Session returns ErrNoSession for unknown or expired
// tokens.
type Store interface {
	CreateSession(ctx context.Context, s Session) error
	Session(ctx context.Context, token string) (Session, error)
	DeleteSession(ctx context.Context, token string) error
}

func NewToken() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
