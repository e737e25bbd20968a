package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/playperu/detective/internal/detective"
)

// RedisStore keeps sessions as JSON values that expire with the session.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "detective:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (r *RedisStore) key(token string) string {
	return r.keyPrefix + "session:" + token
}

type redisSession struct {
	Kind       string    `json:"kind"`
	ActorID    string    `json:"actor_id"`
	Email      string    `json:"email,omitempty"`
	Username   string    `json:"username,omitempty"`
	RoomID     string    `json:"room_id,omitempty"`
	ScenarioID string    `json:"scenario_id,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func (r *RedisStore) CreateSession(ctx context.Context, s Session) error {
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("redis: session already expired")
	}
	b, err := json.Marshal(redisSession{
		Kind:       string(s.Kind),
		ActorID:    s.ActorID,
		Email:      s.Email,
		Username:   s.Username,
		RoomID:     s.RoomID,
		ScenarioID: s.ScenarioID,
		ExpiresAt:  s.ExpiresAt,
	})
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(s.Token), b, ttl).Err(); err != nil {
		return fmt.Errorf("redis: storing session: %w", err)
	}
	return nil
}

func (r *RedisStore) Session(ctx context.Context, token string) (Session, error) {
	b, err := r.client.Get(ctx, r.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("redis: loading session: %w", err)
	}
	var rs redisSession
	if err := json.Unmarshal(b, &rs); err != nil {
		return Session{}, fmt.Errorf("redis: decoding session: %w", err)
	}
	s := Session{
		Token:      token,
		Kind:       detective.ActorKind(rs.Kind),
		ActorID:    rs.ActorID,
		Email:      rs.Email,
		Username:   rs.Username,
		RoomID:     rs.RoomID,
		ScenarioID: rs.ScenarioID,
		ExpiresAt:  rs.ExpiresAt,
	}
	if s.Expired(time.Now()) {
		return Session{}, ErrNoSession
	}
	return s, nil
}

func (r *RedisStore) DeleteSession(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, r.key(token)).Err(); err != nil {
		return fmt.Errorf("redis: deleting session: %w", err)
	}
	return nil
}
