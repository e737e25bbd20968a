// Package sqlstore implements the engine, admin and session storage
// interfaces on SQLite through database/sql.
//
// Timestamps are stored as Unix milliseconds. Room-less rows store room_id
// as '' so that the unique keys (actor, room, address) and (actor, address)
// are enforced by the database.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/playperu/detective/internal/detective"
	"github.com/playperu/detective/internal/session"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Scenarios

func (s *Store) Scenario(ctx context.Context, id string) (detective.Scenario, error) {
	var sc detective.Scenario
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, is_active FROM scenarios WHERE id = ?
	`, id).Scan(&sc.ID, &sc.Name, &sc.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return sc, detective.NotFoundf("scenario %s not found", id)
	}
	return sc, err
}

func (s *Store) ActiveScenario(ctx context.Context) (detective.Scenario, error) {
	var sc detective.Scenario
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, is_active FROM scenarios
		WHERE is_active = 1
		ORDER BY created_at DESC
		LIMIT 1
	`).Scan(&sc.ID, &sc.Name, &sc.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return sc, detective.NotFoundf("no active scenario")
	}
	return sc, err
}

// CreateScenario inserts sc. An active scenario deactivates all others.
func (s *Store) CreateScenario(ctx context.Context, sc detective.Scenario) (detective.Scenario, error) {
	if sc.ID == "" {
		sc.ID = detective.NewID()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return detective.Scenario{}, err
	}
	defer tx.Rollback()

	if sc.Active {
		if _, err := tx.ExecContext(ctx, `UPDATE scenarios SET is_active = 0`); err != nil {
			return detective.Scenario{}, err
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO scenarios (id, name, is_active, created_at) VALUES (?, ?, ?, ?)
	`, sc.ID, sc.Name, boolInt(sc.Active), toMillis(s.now()))
	if isUnique(err) {
		return detective.Scenario{}, detective.Conflictf("scenario %s already exists", sc.ID)
	}
	if err != nil {
		return detective.Scenario{}, err
	}
	return sc, tx.Commit()
}

func (s *Store) CountScenarios(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scenarios`).Scan(&n)
	return n, err
}

// Rooms

const roomColumns = `id, scenario_id, name, created_by, duration_seconds, state, start_time, end_time`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (detective.Room, error) {
	var (
		r          detective.Room
		state      string
		start, end sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.ScenarioID, &r.Name, &r.CreatedBy, &r.DurationSeconds, &state, &start, &end); err != nil {
		return r, err
	}
	r.State = detective.RoomState(state)
	r.StartTime = fromNullMillis(start)
	r.EndTime = fromNullMillis(end)
	return r, nil
}

func (s *Store) Room(ctx context.Context, id string) (detective.Room, error) {
	r, err := scanRoom(s.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return r, detective.NotFoundf("room %s not found", id)
	}
	return r, err
}

// UpdateRoom is a compare-and-set on the room's state.
func (s *Store) UpdateRoom(ctx context.Context, next detective.Room, from detective.RoomState) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rooms SET state = ?, start_time = ?, end_time = ?
		WHERE id = ? AND state = ?
	`, string(next.State), toNullMillis(next.StartTime), toNullMillis(next.EndTime), next.ID, string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var cur string
	err = s.db.QueryRowContext(ctx, `SELECT state FROM rooms WHERE id = ?`, next.ID).Scan(&cur)
	if errors.Is(err, sql.ErrNoRows) {
		return detective.NotFoundf("room %s not found", next.ID)
	}
	if err != nil {
		return err
	}
	return detective.Conflictf("room %s is %s, not %s", next.ID, cur, from)
}

func (s *Store) ExpiredRooms(ctx context.Context, now time.Time) ([]detective.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+roomColumns+` FROM rooms
		WHERE state IN ('running', 'paused') AND end_time <= ?
	`, toMillis(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []detective.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CreateRoom(ctx context.Context, r detective.Room) (detective.Room, error) {
	if r.ID == "" {
		r.ID = detective.NewID()
	}
	if r.State == "" {
		r.State = detective.RoomPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (`+roomColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.ScenarioID, r.Name, r.CreatedBy, r.DurationSeconds, string(r.State),
		toNullMillis(r.StartTime), toNullMillis(r.EndTime))
	switch {
	case isForeignKey(err):
		return detective.Room{}, detective.NotFoundf("scenario %s not found", r.ScenarioID)
	case isUnique(err):
		return detective.Room{}, detective.Conflictf("room %s already exists", r.ID)
	case err != nil:
		return detective.Room{}, err
	}
	return r, nil
}

func (s *Store) ListRooms(ctx context.Context) ([]detective.Room, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []detective.Room{}
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CreateRoomUser(ctx context.Context, u detective.RoomUser) (detective.RoomUser, error) {
	if u.ID == "" {
		u.ID = detective.NewID()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO room_users (id, room_id, username, password_hash) VALUES (?, ?, ?, ?)
	`, u.ID, u.RoomID, u.Username, u.PasswordHash)
	switch {
	case isForeignKey(err):
		return detective.RoomUser{}, detective.NotFoundf("room %s not found", u.RoomID)
	case isUnique(err):
		return detective.RoomUser{}, detective.Conflictf("username %q is taken in this room", u.Username)
	case err != nil:
		return detective.RoomUser{}, err
	}
	return u, nil
}

func (s *Store) RoomUser(ctx context.Context, roomID, username string) (detective.RoomUser, error) {
	var u detective.RoomUser
	err := s.db.QueryRowContext(ctx, `
		SELECT id, room_id, username, password_hash FROM room_users
		WHERE room_id = ? AND username = ?
	`, roomID, username).Scan(&u.ID, &u.RoomID, &u.Username, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return u, detective.NotFoundf("player %q not found", username)
	}
	return u, err
}

// Admins

func (s *Store) CreateAdmin(ctx context.Context, a detective.Admin) (detective.Admin, error) {
	if a.ID == "" {
		a.ID = detective.NewID()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admins (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)
	`, a.ID, a.Email, a.PasswordHash, toMillis(s.now()))
	if isUnique(err) {
		return detective.Admin{}, detective.Conflictf("admin %s already exists", a.Email)
	}
	if err != nil {
		return detective.Admin{}, err
	}
	return a, nil
}

func (s *Store) AdminByEmail(ctx context.Context, email string) (detective.Admin, error) {
	var a detective.Admin
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash FROM admins WHERE email = ?
	`, email).Scan(&a.ID, &a.Email, &a.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return a, detective.NotFoundf("admin not found")
	}
	return a, err
}

// Sessions

func (s *Store) CreateSession(ctx context.Context, sess session.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, kind, actor_id, email, username, room_id, scenario_id, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.Token, string(sess.Kind), sess.ActorID, sess.Email, sess.Username, sess.RoomID, sess.ScenarioID,
		toMillis(sess.ExpiresAt))
	return err
}

func (s *Store) Session(ctx context.Context, token string) (session.Session, error) {
	var (
		sess      session.Session
		kind      string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT token, kind, actor_id, email, username, room_id, scenario_id, expires_at
		FROM sessions
		WHERE token = ? AND expires_at > ?
	`, token, toMillis(s.now())).Scan(&sess.Token, &kind, &sess.ActorID, &sess.Email, &sess.Username,
		&sess.RoomID, &sess.ScenarioID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, session.ErrNoSession
	}
	if err != nil {
		return session.Session{}, err
	}
	sess.Kind = detective.ActorKind(kind)
	sess.ExpiresAt = fromMillis(expiresAt)
	return sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	return err
}

// DeleteExpiredSessions removes sessions that expired before now.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func toNullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// truncate rounds t to the stored precision.
func truncate(t time.Time) time.Time {
	return fromMillis(toMillis(t))
}

// Both drivers surface constraint failures only through the message text.
func isUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
