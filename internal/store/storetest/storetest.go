// Package storetest is a conformance suite run against every store
// implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/playperu/detective/internal/detective"
	"github.com/playperu/detective/internal/engine"
)

// Store is the full capability set a backend provides.
type Store interface {
	engine.Store

	CreateScenario(ctx context.Context, sc detective.Scenario) (detective.Scenario, error)
	CountScenarios(ctx context.Context) (int, error)
	CreateAddress(ctx context.Context, a detective.Address) (detective.Address, error)
	CreateChoice(ctx context.Context, scenarioID string, c detective.Choice) (detective.Choice, error)
	CreateRoom(ctx context.Context, r detective.Room) (detective.Room, error)
	ListRooms(ctx context.Context) ([]detective.Room, error)
	CreateRoomUser(ctx context.Context, u detective.RoomUser) (detective.RoomUser, error)
	RoomUser(ctx context.Context, roomID, username string) (detective.RoomUser, error)
	CreateAdmin(ctx context.Context, a detective.Admin) (detective.Admin, error)
	AdminByEmail(ctx context.Context, email string) (detective.Admin, error)
}

var t0 = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

// Run executes the suite. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Store)
	}{
		{"ScenarioLookup", testScenarioLookup},
		{"AddressCatalog", testAddressCatalog},
		{"ActiveChoicesOrdered", testActiveChoicesOrdered},
		{"RoomCompareAndSet", testRoomCompareAndSet},
		{"ExpiredRooms", testExpiredRooms},
		{"RoomUsers", testRoomUsers},
		{"Admins", testAdmins},
		{"VisitedLocationIdempotent", testVisitedLocationIdempotent},
		{"PlayerChoiceFirstWins", testPlayerChoiceFirstWins},
		{"AttemptEntriesNewestFirst", testAttemptEntriesNewestFirst},
		{"DistrictStatsFilters", testDistrictStatsFilters},
		{"ScenarioIsolation", testScenarioIsolation},
		{"ConcurrentUpsert", testConcurrentUpsert},
		{"EngineConcurrentVisits", testEngineConcurrentVisits},
		{"EngineConcurrentChoices", testEngineConcurrentChoices},
		{"EnginePauseRacesStop", testEnginePauseRacesStop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func mustScenario(t *testing.T, s Store, id string, active bool) {
	t.Helper()
	if _, err := s.CreateScenario(context.Background(), detective.Scenario{ID: id, Name: "Scenario " + id, Active: active}); err != nil {
		t.Fatalf("creating scenario %s: %v", id, err)
	}
}

func mustAddress(t *testing.T, s Store, scenarioID, id string, d detective.District, house string) {
	t.Helper()
	_, err := s.CreateAddress(context.Background(), detective.Address{
		ID: id, ScenarioID: scenarioID, District: d, HouseNumber: house, Description: "desc " + id,
	})
	if err != nil {
		t.Fatalf("creating address %s: %v", id, err)
	}
}

func mustRoom(t *testing.T, s Store, id, scenarioID string) {
	t.Helper()
	if _, err := s.CreateRoom(context.Background(), detective.Room{ID: id, ScenarioID: scenarioID, Name: "Room " + id, DurationSeconds: 600}); err != nil {
		t.Fatalf("creating room %s: %v", id, err)
	}
}

func attempt(actor, scenario, room string, d detective.District, house string, found bool, addressID string, at time.Time) detective.VisitAttempt {
	return detective.VisitAttempt{
		ID:          fmt.Sprintf("%s-%s-%s-%d", actor, d, house, at.UnixNano()),
		ActorID:     actor,
		ScenarioID:  scenario,
		RoomID:      room,
		District:    d,
		HouseNumber: house,
		Found:       found,
		AddressID:   addressID,
		AttemptedAt: at,
	}
}

func testScenarioLookup(t *testing.T, s Store) {
	ctx := context.Background()
	if _, err := s.ActiveScenario(ctx); !errors.Is(err, detective.ErrNotFound) {
		t.Errorf("active scenario on empty store: err = %v, want ErrNotFound", err)
	}

	mustScenario(t, s, "s1", true)
	mustScenario(t, s, "s2", true)

	active, err := s.ActiveScenario(ctx)
	if err != nil {
		t.Fatalf("active scenario: %v", err)
	}
	if active.ID != "s2" {
		t.Errorf("active scenario = %s, want s2", active.ID)
	}

	s1, err := s.Scenario(ctx, "s1")
	if err != nil {
		t.Fatalf("scenario s1: %v", err)
	}
	if s1.Active {
		t.Error("creating an active scenario should deactivate the others")
	}

	if _, err := s.Scenario(ctx, "nope"); !errors.Is(err, detective.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	n, err := s.CountScenarios(ctx)
	if err != nil || n != 2 {
		t.Errorf("CountScenarios = %d, %v; want 2", n, err)
	}
}

func testAddressCatalog(t *testing.T, s Store) {
	ctx := context.Background()
	mustScenario(t, s, "s1", true)
	mustAddress(t, s, "s1", "a1", detective.DistrictNorth, "12")

	got, err := s.FindAddress(ctx, "s1", detective.DistrictNorth, "12")
	if err != nil {
		t.Fatalf("find address: %v", err)
	}
	if got.ID != "a1" || got.Description != "desc a1" {
		t.Errorf("got %+v", got)
	}

	if _, err := s.FindAddress(ctx, "s1", detective.DistrictNorth, "12a"); !errors.Is(err, detective.ErrNotFound) {
		t.Errorf("house numbers must match exactly: err = %v", err)
	}

	_, err = s.CreateAddress(ctx, detective.Address{ScenarioID: "s1", District: detective.DistrictNorth, HouseNumber: "12"})
	if !errors.Is(err, detective.ErrConflict) {
		t.Errorf("duplicate address: err = %v, want ErrConflict", err)
	}

	_, err = s.CreateAddress(ctx, detective.Address{ScenarioID: "s1", District: "N", HouseNumber: "1"})
	if !errors.Is(err, detective.ErrValidation) {
		t.Errorf("invalid district: err = %v, want ErrValidation", err)
	}
}

func testActiveChoicesOrdered(t *testing.T, s Store) {
	ctx := context.Background()
	mustScenario(t, s, "s1", true)
	mustAddress(t, s, "s1", "a1", detective.DistrictEast, "3")

	for _, c := range []detective.Choice{
		{ID: "c2", AddressID: "a1", Order: 2, Prompt: "second", Active: true},
		{ID: "c1", AddressID: "a1", Order: 1, Prompt: "first", Active: true},
		{ID: "c3", AddressID: "a1", Order: 0, Prompt: "retired", Active: false},
	} {
		if _, err := s.CreateChoice(ctx, "s1", c); err != nil {
			t.Fatalf("creating choice %s: %v", c.ID, err)
		}
	}

	got, err := s.ActiveChoices(ctx, "s1", "a1")
	if err != nil {
		t.Fatalf("active choices: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c1" || got[1].ID != "c2" {
		t.Errorf("choices = %+v, want [c1 c2]", got)
	}

	if _, err := s.CreateChoice(ctx, "s1", detective.Choice{AddressID: "missing", Prompt: "x"}); !errors.Is(err, detective.ErrNotFound) {
		t.Errorf("choice for unknown address: err = %v, want ErrNotFound", err)
	}
}

func testRoomCompareAndSet(t *testing.T, s Store) {
	ctx := context.Background()
	mustScenario(t, s, "s1", true)
	mustRoom(t, s, "r1", "s1")

	room, err := s.Room(ctx, "r1")
	if err != nil {
		t.Fatalf("room: %v", err)
	}
	if room.State != detective.RoomPending || room.StartTime != nil {
		t.Errorf("new room = %+v, want pending without clock", room)
	}

	next, err := detective.TransitionStart.Apply(room, t0)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.UpdateRoom(ctx, next, detective.RoomPending); err != nil {
		t.Fatalf("update: %v", err)
	}

	// A second writer still believing the room is pending loses.
	if err := s.UpdateRoom(ctx, next, detective.RoomPending); !errors.Is(err, detective.ErrConflict) {
		t.Errorf("stale update: err = %v, want ErrConflict", err)
	}

	got, err := s.Room(ctx, "r1")
	if err != nil {
		t.Fatalf("room: %v", err)
	}
	if got.State != detective.RoomRunning {
		t.Errorf("state = %s, want running", got.State)
	}
	if got.EndTime == nil || !got.EndTime.Equal(t0.Add(600*time.Second)) {
		t.Errorf("end time = %v, want %v", got.EndTime, t0.Add(600*time.Second))
	}

	missing := next
	missing.ID = "nope"
	if err := s.UpdateRoom(ctx, missing, detective.RoomRunning); !errors.Is(err, detective.ErrNotFound) {
		t.Errorf("missing room: err = %v, want ErrNotFound", err)
	}

	if _, err := s.CreateRoom(ctx, detective.Room{ScenarioID: "nope", Name: "x", DurationSeconds: 1}); !errors.Is(err, detective.ErrNotFound) {
		t.Errorf("room for unknown scenario: err = %v, want ErrNotFound", err)
	}
}

func testExpiredRooms(t *testing.T, s Store) {
	ctx := context.Background()
	mustScenario(t, s, "s1", true)
	mustRoom(t, s, "r1", "s1")
	mustRoom(t, s, "r2", "s1")
	mustRoom(t, s, "r3", "s1")

	for _, id := range []string{"r1", "r2"} {
		room, _ := s.Room(ctx, id)
		next, _ := detective.TransitionStart.Apply(room, t0)
		if err := s.UpdateRoom(ctx, next, detective.RoomPending); err != nil {
			t.Fatalf("start %s: %v", id, err)
		}
	}
	r2, _ := s.Room(ctx, "r2")
	paused, _ := detective.TransitionPause.Apply(r2, t0.Add(time.Second))
	if err := s.UpdateRoom(ctx, paused, detective.RoomRunning); err != nil {
		t.Fatalf("pause r2: %v", err)
	}

	got, err := s.ExpiredRooms(ctx, t0.Add(599*time.Second))
	if err != nil {
		t.Fatalf("expired rooms: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("before deadline: %d expired rooms, want 0", len(got))
	}

	got, err = s.ExpiredRooms(ctx, t0.Add(600*time.Second))
	if err != nil {
		t.Fatalf("expired rooms: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("at deadline: %d expired rooms, want 2 (running and paused)", len(got))
	}
}

func testRoomUsers(t *testing.T, s Store) {
	ctx := context.Background()
	mustScenario(t, s, "s1", true)
	mustRoom(t, s, "r1", "s1")
	mustRoom(t, s, "r2", "s1")

	if _, err := s.CreateRoomUser(ctx, detective.RoomUser{RoomID: "r1", Username: "holmes", PasswordHash: "h"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := s.CreateRoomUser(ctx, detective.RoomUser{RoomID: "r1", Username: "holmes", PasswordHash: "h"}); !errors.Is(err, detective.ErrConflict) {
		t.Errorf("duplicate username: err = %v, want ErrConflict", err)
	}
	if _, err := s.CreateRoomUser(ctx, detective.RoomUser{RoomID: "r2", Username: "holmes", PasswordHash: "h"}); err != nil {
		t.Errorf("same username in another room: %v", err)
	}

	u, err := s.RoomUser(ctx, "r1", "holmes")
	if err != nil {
		t.Fatalf("room user: %v", err)
	}
	if u.RoomID != "r1" || u.ID == "" {
		t.Errorf("user = %+v", u)
	}

	rooms, err := s.ListRooms(ctx)
	if err != nil || len(rooms) != 2 {
		t.Errorf("ListRooms = %d, %v; want 2", len(rooms), err)
	}
}

func testAdmins(t *testing.T, s Store) {
	ctx := context.Background()
	if _, err := s.CreateAdmin(ctx, detective.Admin{Email: "a@example.com", PasswordHash: "h"}); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	if _, err := s.CreateAdmin(ctx, detective.Admin{Email: "a@example.com", PasswordHash: "h"}); !errors.Is(err, detective.ErrConflict) {
		t.Errorf("duplicate admin: err = %v, want ErrConflict", err)
	}
	a, err := s.AdminByEmail(ctx, "a@example.com")
	if err != nil || a.PasswordHash != "h" {
		t.Errorf("AdminByEmail = %+v, %v", a, err)
	}
	if _, err := s.AdminByEmail(ctx, "b@example.com"); !errors.Is(err, detective.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func testVisitedLocationIdempotent(t *testing.T, s Store) {
	ctx := context.Background()
	mustScenario(t, s, "s1", true)
	mustRoom(t, s, "r1", "s1")
	mustAddress(t, s, "s1", "a1", detective.DistrictCenter, "1")

	first := detective.VisitedLocation{ID: "v1", ActorID: "u1", ScenarioID: "s1", RoomID: "r1", AddressID: "a1", VisitedAt: t0}
	got, created, err := s.UpsertVisitedLocation(ctx, first)
	if err != nil || !created {
		t.Fatalf("first upsert: created=%v err=%v", created, err)
	}

	second := first
	second.ID = "v2"
	second.VisitedAt = t0.Add(time.Minute)
	got, created, err = s.UpsertVisitedLocation(ctx, second)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created {
		t.Error("second upsert should not create")
	}
	if got.ID != "v1" || !got.VisitedAt.Equal(t0) {
		t.Errorf("stored visit = %+v, want the first one", got)
	}

	// Room-less play is a separate key.
	roomless := first
	roomless.ID = "v3"
	roomless.RoomID = ""
	if _, created, err := s.UpsertVisitedLocation(ctx, roomless); err != nil || !created {
		t.Errorf("room-less upsert: created=%v err=%v", created, err)
	}

	if _, err := s.VisitedLocation(ctx, "u2", "s1", "r1", "a1"); !errors.Is(err, detective.ErrNotFound) {
		t.Errorf("other actor: err = %v, want ErrNotFound", err)
	}
}

func testPlayerChoiceFirstWins(t *testing.T, s Store) {
	ctx := context.Background()
	mustScenario(t, s, "s1", true)
	mustAddress(t, s, "s1", "a1", detective.DistrictWest, "9")

	pc := detective.PlayerChoice{
		ID: "p1", ActorID: "u1", ScenarioID: "s1", AddressID: "a1",
		ChoiceID: "c1", ChoiceText: "Knock", ResponseText: "Nobody home", ChosenAt: t0,
	}
	if _, created, err := s.InsertPlayerChoiceIfAbsent(ctx, pc); err != nil || !created {
		t.Fatalf("first insert: created=%v err=%v", created, err)
	}

	other := pc
	other.ID = "p2"
	other.ChoiceID = "c2"
	other.RoomID = "r9"
	got, created, err := s.InsertPlayerChoiceIfAbsent(ctx, other)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if created || got.ChoiceID != "c1" {
		t.Errorf("got %+v created=%v, want first choice kept", got, created)
	}
}

func testAttemptEntriesNewestFirst(t *testing.T, s Store) {
	ctx := context.Background()
	mustScenario(t, s, "s1", true)
	mustAddress(t, s, "s1", "a1", detective.DistrictNorth, "5")

	for i, a := range []detective.VisitAttempt{
		attempt("u1", "s1", "", detective.DistrictNorth, "4", false, "", t0),
		attempt("u1", "s1", "", detective.DistrictNorth, "5", true, "a1", t0.Add(time.Second)),
		attempt("u1", "s1", "", detective.DistrictSouth, "1", false, "", t0.Add(2*time.Second)),
		attempt("u2", "s1", "", detective.DistrictSouth, "1", false, "", t0.Add(3*time.Second)),
	} {
		if err := s.InsertAttempt(ctx, a); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}

	f := detective.AttemptFilter{ScenarioID: "s1", ActorID: "u1"}
	got, err := s.AttemptEntries(ctx, f, 10)
	if err != nil {
		t.Fatalf("attempt entries: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	if got[0].District != detective.DistrictSouth || got[2].HouseNumber != "4" {
		t.Errorf("entries not newest first: %+v", got)
	}
	if got[1].AddressDescription != "desc a1" || got[0].AddressDescription != "" {
		t.Errorf("descriptions = %q, %q", got[1].AddressDescription, got[0].AddressDescription)
	}

	limited, err := s.AttemptEntries(ctx, f, 2)
	if err != nil || len(limited) != 2 {
		t.Errorf("limit 2: got %d, %v", len(limited), err)
	}
}

func testDistrictStatsFilters(t *testing.T, s Store) {
	ctx := context.Background()
	mustScenario(t, s, "s1", true)
	mustRoom(t, s, "r1", "s1")

	for i, a := range []detective.VisitAttempt{
		attempt("u1", "s1", "r1", detective.DistrictNorth, "1", true, "a", t0),
		attempt("u1", "s1", "r1", detective.DistrictNorth, "2", false, "", t0.Add(time.Second)),
		attempt("u2", "s1", "r1", detective.DistrictEast, "1", false, "", t0.Add(2*time.Second)),
		attempt("admin", "s1", "", detective.DistrictNorth, "3", false, "", t0.Add(3*time.Second)),
	} {
		if err := s.InsertAttempt(ctx, a); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}

	tests := []struct {
		name   string
		filter detective.AttemptFilter
		want   map[detective.District][3]int
	}{
		{
			name:   "any room",
			filter: detective.AttemptFilter{ScenarioID: "s1", AnyRoom: true},
			want: map[detective.District][3]int{
				detective.DistrictNorth: {3, 1, 2},
				detective.DistrictEast:  {1, 0, 1},
			},
		},
		{
			name:   "room",
			filter: detective.AttemptFilter{ScenarioID: "s1", RoomID: "r1"},
			want: map[detective.District][3]int{
				detective.DistrictNorth: {2, 1, 1},
				detective.DistrictEast:  {1, 0, 1},
			},
		},
		{
			name:   "room-less actor",
			filter: detective.AttemptFilter{ScenarioID: "s1", ActorID: "admin"},
			want: map[detective.District][3]int{
				detective.DistrictNorth: {1, 0, 1},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := s.DistrictStats(ctx, tt.filter)
			if err != nil {
				t.Fatalf("stats: %v", err)
			}
			if len(rows) != len(tt.want) {
				t.Fatalf("got %d rows, want %d: %+v", len(rows), len(tt.want), rows)
			}
			for _, r := range rows {
				w, ok := tt.want[r.District]
				if !ok {
					t.Errorf("unexpected district %s", r.District)
					continue
				}
				if got := [3]int{r.TotalAttempts, r.FoundCount, r.NotFoundCount}; got != w {
					t.Errorf("%s: got %v, want %v", r.District, got, w)
				}
			}
		})
	}
}

func testScenarioIsolation(t *testing.T, s Store) {
	ctx := context.Background()
	mustScenario(t, s, "A", false)
	mustScenario(t, s, "B", false)
	mustAddress(t, s, "A", "a1", detective.DistrictNorth, "12")

	if _, err := s.FindAddress(ctx, "B", detective.DistrictNorth, "12"); !errors.Is(err, detective.ErrNotFound) {
		t.Errorf("address leaked across scenarios: err = %v", err)
	}
	if _, err := s.Address(ctx, "B", "a1"); !errors.Is(err, detective.ErrNotFound) {
		t.Errorf("address by id leaked across scenarios: err = %v", err)
	}

	if err := s.InsertAttempt(ctx, attempt("u1", "A", "", detective.DistrictNorth, "12", true, "a1", t0)); err != nil {
		t.Fatalf("insert attempt: %v", err)
	}
	rows, err := s.DistrictStats(ctx, detective.AttemptFilter{ScenarioID: "B", AnyRoom: true})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("scenario B stats = %+v, want none", rows)
	}
	entries, err := s.AttemptEntries(ctx, detective.AttemptFilter{ScenarioID: "B", ActorID: "u1"}, 10)
	if err != nil || len(entries) != 0 {
		t.Errorf("scenario B attempts = %d, %v; want 0", len(entries), err)
	}
}

func testConcurrentUpsert(t *testing.T, s Store) {
	ctx := context.Background()
	mustScenario(t, s, "s1", true)
	mustAddress(t, s, "s1", "a1", detective.DistrictNorth, "1")

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = make(map[string]bool)
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, ok, err := s.UpsertVisitedLocation(ctx, detective.VisitedLocation{
				ID: fmt.Sprintf("v%d", i), ActorID: "u1", ScenarioID: "s1", AddressID: "a1", VisitedAt: t0,
			})
			if err != nil {
				t.Errorf("upsert %d: %v", i, err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if ok {
				created++
			}
			ids[v.ID] = true
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("created = %d, want exactly 1", created)
	}
	if len(ids) != 1 {
		t.Errorf("callers saw %d different rows, want 1", len(ids))
	}
}
