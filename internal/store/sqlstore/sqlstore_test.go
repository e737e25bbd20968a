package sqlstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/playperu/detective/internal/database"
	"github.com/playperu/detective/internal/detective"
	"github.com/playperu/detective/internal/migrations"
	"github.com/playperu/detective/internal/session"
	"github.com/playperu/detective/internal/store/sqlstore"
	"github.com/playperu/detective/internal/store/storetest"
)

func newStore(t *testing.T) *sqlstore.Store {
	return openStore(t, database.DriverSQLite, ":memory:")
}

func openStore(t *testing.T, driver, path string) *sqlstore.Store {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, driver, path)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Run(ctx, db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return sqlstore.New(db)
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store {
		return newStore(t)
	})
}

// TestStoreOnFile runs the suite, including its concurrent gameplay cases,
// against database files for both drivers.
func TestStoreOnFile(t *testing.T) {
	for _, driver := range []string{database.DriverSQLite, database.DriverLibSQL} {
		t.Run(driver, func(t *testing.T) {
			storetest.Run(t, func(t *testing.T) storetest.Store {
				return openStore(t, driver, filepath.Join(t.TempDir(), "detective.db"))
			})
		})
	}
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	live := session.Session{
		Token:     "live",
		Kind:      detective.ActorPlayer,
		ActorID:   "u1",
		Username:  "holmes",
		RoomID:    "r1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	stale := live
	stale.Token = "stale"
	stale.ExpiresAt = time.Now().Add(-time.Minute)

	for _, sess := range []session.Session{live, stale} {
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("create %s: %v", sess.Token, err)
		}
	}

	got, err := s.Session(ctx, "live")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if got.Username != "holmes" || got.Kind != detective.ActorPlayer || got.RoomID != "r1" {
		t.Errorf("got %+v", got)
	}

	if _, err := s.Session(ctx, "stale"); !errors.Is(err, session.ErrNoSession) {
		t.Errorf("expired session: err = %v, want ErrNoSession", err)
	}

	n, err := s.DeleteExpiredSessions(ctx, time.Now())
	if err != nil || n != 1 {
		t.Errorf("DeleteExpiredSessions = %d, %v; want 1", n, err)
	}

	if err := s.DeleteSession(ctx, "live"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Session(ctx, "live"); !errors.Is(err, session.ErrNoSession) {
		t.Errorf("deleted session: err = %v, want ErrNoSession", err)
	}
}

func TestTimestampsRoundTripInUTC(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	s.CreateScenario(ctx, detective.Scenario{ID: "s1", Name: "S"})
	s.CreateRoom(ctx, detective.Room{ID: "r1", ScenarioID: "s1", Name: "R", DurationSeconds: 90})

	room, _ := s.Room(ctx, "r1")
	start := time.Date(2026, 3, 1, 21, 0, 0, 123456789, time.FixedZone("MSK", 3*3600))
	next, err := detective.TransitionStart.Apply(room, start)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.UpdateRoom(ctx, next, detective.RoomPending); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := s.Room(ctx, "r1")
	if got.StartTime.Location() != time.UTC {
		t.Errorf("start time location = %v, want UTC", got.StartTime.Location())
	}
	if !got.StartTime.Equal(start.Truncate(time.Millisecond)) {
		t.Errorf("start time = %v, want %v", got.StartTime, start.Truncate(time.Millisecond))
	}
}
