package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/playperu/detective/internal/detective"
	"github.com/playperu/detective/internal/store/memstore"
)

var t0 = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	engine *Engine
	store  *memstore.Store
	clock  *clock
}

var (
	player = detective.Actor{ID: "u1", Kind: detective.ActorPlayer}
	admin  = detective.Actor{ID: "admin-1", Kind: detective.ActorAdmin}
)

// newFixture seeds scenario "s1" with two addresses, one carrying choices,
// and a pending room "r1" of the given duration.
func newFixture(t *testing.T, durationSeconds int) *fixture {
	t.Helper()
	ctx := context.Background()
	s := memstore.New()
	c := &clock{now: t0}

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}
	_, err := s.CreateScenario(ctx, detective.Scenario{ID: "s1", Name: "Baker Street", Active: true})
	must(err)
	_, err = s.CreateAddress(ctx, detective.Address{ID: "a1", ScenarioID: "s1", District: detective.DistrictNorth, HouseNumber: "12", Description: "Pharmacy"})
	must(err)
	_, err = s.CreateAddress(ctx, detective.Address{ID: "a2", ScenarioID: "s1", District: detective.DistrictEast, HouseNumber: "3", Description: "Docks"})
	must(err)
	_, err = s.CreateChoice(ctx, "s1", detective.Choice{ID: "c1", AddressID: "a1", Order: 1, Prompt: "Ask the clerk", Response: "He saw nothing", Active: true})
	must(err)
	_, err = s.CreateChoice(ctx, "s1", detective.Choice{ID: "c2", AddressID: "a1", Order: 2, Prompt: "Check the ledger", Response: "A page is torn", Active: true})
	must(err)
	_, err = s.CreateRoom(ctx, detective.Room{ID: "r1", ScenarioID: "s1", Name: "Evening", DurationSeconds: durationSeconds})
	must(err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(s, logger, WithClock(c.Now))
	e.retryWait = 0
	return &fixture{engine: e, store: s, clock: c}
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if _, err := f.engine.StartRoom(context.Background(), "r1"); err != nil {
		t.Fatalf("starting room: %v", err)
	}
}

var inRoom = detective.Scope{ScenarioID: "s1", RoomID: "r1"}

func TestVisitIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 600)
	f.start(t)

	f.clock.Advance(10 * time.Second)
	first, err := f.engine.ResolveVisit(ctx, player, inRoom, "С", "12")
	if err != nil {
		t.Fatalf("first visit: %v", err)
	}
	if !first.Success || first.AlreadyVisited {
		t.Fatalf("first visit = %+v, want new success", first)
	}
	if first.Description != "Pharmacy" || len(first.Choices) != 2 || first.PlayerChoice != nil {
		t.Errorf("first visit = %+v", first)
	}

	f.clock.Advance(5 * time.Second)
	second, err := f.engine.ResolveVisit(ctx, player, inRoom, "С", " 12 ")
	if err != nil {
		t.Fatalf("second visit: %v", err)
	}
	if !second.AlreadyVisited || !second.VisitedAt.Equal(first.VisitedAt) {
		t.Errorf("second visit = %+v, want already visited at %v", second, first.VisitedAt)
	}

	visited, err := f.engine.VisitedLocations(ctx, player, inRoom)
	if err != nil {
		t.Fatalf("visited: %v", err)
	}
	if len(visited) != 1 {
		t.Errorf("visited = %d entries, want 1", len(visited))
	}

	attempts, err := f.engine.Attempts(ctx, player, inRoom, 0)
	if err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if len(attempts) != 2 {
		t.Errorf("attempts = %d, want 2", len(attempts))
	}
}

func TestVisitMissIsRecorded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 600)
	f.start(t)

	out, err := f.engine.ResolveVisit(ctx, player, inRoom, "Ю", "99")
	if err != nil {
		t.Fatalf("visit: %v", err)
	}
	if out.Success {
		t.Errorf("visit = %+v, want miss", out)
	}

	attempts, _ := f.engine.Attempts(ctx, player, inRoom, 0)
	if len(attempts) != 1 || attempts[0].Found || attempts[0].District != detective.DistrictSouth {
		t.Errorf("attempts = %+v, want one miss in Ю", attempts)
	}
}

func TestVisitValidationWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 600)
	f.start(t)

	tests := []struct {
		name     string
		actor    detective.Actor
		district string
		house    string
	}{
		{"unknown district", player, "N", "12"},
		{"lowercase district", player, "с", "12"},
		{"empty house", player, "С", "   "},
		{"no actor", detective.Actor{}, "С", "12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.ResolveVisit(ctx, tt.actor, inRoom, tt.district, tt.house)
			if !errors.Is(err, detective.ErrValidation) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}

	attempts, _ := f.engine.Attempts(ctx, player, inRoom, 0)
	if len(attempts) != 0 {
		t.Errorf("rejected visits wrote %d attempts", len(attempts))
	}
}

func TestVisitRequiresRunningRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 600)

	if _, err := f.engine.ResolveVisit(ctx, player, inRoom, "С", "12"); !errors.Is(err, detective.ErrState) {
		t.Errorf("pending room: err = %v, want state error", err)
	}

	f.start(t)
	if _, err := f.engine.PauseRoom(ctx, "r1"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := f.engine.ResolveVisit(ctx, player, inRoom, "С", "12"); !errors.Is(err, detective.ErrState) {
		t.Errorf("paused room: err = %v, want state error", err)
	}

	attempts, _ := f.engine.Attempts(ctx, player, inRoom, 0)
	if len(attempts) != 0 {
		t.Errorf("gated visits wrote %d attempts", len(attempts))
	}
}

func TestLazyAutoFinish(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 500)
	f.start(t)

	f.clock.Set(t0.Add(499*time.Second + 500*time.Millisecond))
	st, err := f.engine.RoomStatus(ctx, "r1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State() != detective.RoomRunning || *st.RemainingSeconds != 1 {
		t.Errorf("before deadline: state=%s remaining=%d, want running 1", st.State(), *st.RemainingSeconds)
	}

	f.clock.Set(t0.Add(500 * time.Second))
	st, err = f.engine.RoomStatus(ctx, "r1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State() != detective.RoomFinished || *st.RemainingSeconds != 0 {
		t.Errorf("at deadline: state=%s remaining=%d, want finished 0", st.State(), *st.RemainingSeconds)
	}
	if !st.Room.EndTime.Equal(t0.Add(500 * time.Second)) {
		t.Errorf("end time = %v, want original deadline", st.Room.EndTime)
	}
	if st.ScenarioName != "Baker Street" {
		t.Errorf("scenario name = %q", st.ScenarioName)
	}

	stored, _ := f.store.Room(ctx, "r1")
	if stored.State != detective.RoomFinished {
		t.Errorf("stored state = %s, want finished persisted", stored.State)
	}

	if _, err := f.engine.ResolveVisit(ctx, player, inRoom, "С", "12"); !errors.Is(err, detective.ErrState) {
		t.Errorf("visit after deadline: err = %v, want state error", err)
	}
}

func TestPausedRoomStillExpires(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 500)
	f.start(t)

	f.clock.Set(t0.Add(200 * time.Second))
	st, err := f.engine.PauseRoom(ctx, "r1")
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if *st.RemainingSeconds != 300 {
		t.Errorf("remaining while paused = %d, want 300", *st.RemainingSeconds)
	}

	f.clock.Set(t0.Add(501 * time.Second))
	if _, err := f.engine.ResumeRoom(ctx, "r1"); !errors.Is(err, detective.ErrState) {
		t.Errorf("resume after deadline: err = %v, want state error", err)
	}
	st, _ = f.engine.RoomStatus(ctx, "r1")
	if st.State() != detective.RoomFinished {
		t.Errorf("state = %s, want finished", st.State())
	}
}

func TestStopRecordsEndTime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 500)
	f.start(t)

	f.clock.Set(t0.Add(450 * time.Second))
	st, err := f.engine.StopRoom(ctx, "r1")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !st.Room.EndTime.Equal(t0.Add(450 * time.Second)) {
		t.Errorf("end time = %v, want stop time", st.Room.EndTime)
	}

	for _, tr := range []detective.Transition{detective.TransitionStart, detective.TransitionPause, detective.TransitionResume, detective.TransitionStop} {
		if _, err := f.engine.Transition(ctx, "r1", tr); !errors.Is(err, detective.ErrState) {
			t.Errorf("%s on finished room: err = %v, want state error", tr, err)
		}
	}
}

func TestRoomNotFound(t *testing.T) {
	f := newFixture(t, 60)
	if _, err := f.engine.RoomStatus(context.Background(), "nope"); !errors.Is(err, detective.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestChoiceRequiresVisit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 600)
	f.start(t)

	if _, err := f.engine.ResolveChoice(ctx, player, inRoom, "a1", "c1"); !errors.Is(err, detective.ErrState) {
		t.Errorf("choice before visit: err = %v, want state error", err)
	}
}

func TestChoiceFirstWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 600)
	f.start(t)

	if _, err := f.engine.ResolveVisit(ctx, player, inRoom, "С", "12"); err != nil {
		t.Fatalf("visit: %v", err)
	}

	if _, err := f.engine.ResolveChoice(ctx, player, inRoom, "a1", "nope"); !errors.Is(err, detective.ErrNotFound) {
		t.Errorf("unknown choice: err = %v, want not found", err)
	}

	first, err := f.engine.ResolveChoice(ctx, player, inRoom, "a1", "c1")
	if err != nil {
		t.Fatalf("choice: %v", err)
	}
	if first.AlreadyChosen || first.Choice.ResponseText != "He saw nothing" {
		t.Errorf("first choice = %+v", first)
	}

	second, err := f.engine.ResolveChoice(ctx, player, inRoom, "a1", "c2")
	if err != nil {
		t.Fatalf("second choice: %v", err)
	}
	if !second.AlreadyChosen || second.Choice.ChoiceID != "c1" {
		t.Errorf("second choice = %+v, want already chosen c1", second)
	}

	revisit, err := f.engine.ResolveVisit(ctx, player, inRoom, "С", "12")
	if err != nil {
		t.Fatalf("revisit: %v", err)
	}
	if revisit.PlayerChoice == nil || revisit.PlayerChoice.ChoiceID != "c1" {
		t.Errorf("revisit player choice = %+v, want c1", revisit.PlayerChoice)
	}
}

func TestConcurrentDuplicateVisits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 600)
	f.start(t)

	const n = 10
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.engine.ResolveVisit(ctx, player, inRoom, "С", "12")
			if err != nil {
				t.Errorf("visit: %v", err)
				return
			}
			if !out.AlreadyVisited {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if fresh != 1 {
		t.Errorf("%d visits reported first visit, want 1", fresh)
	}
	attempts, _ := f.engine.Attempts(ctx, player, inRoom, MaxAttemptLimit)
	if len(attempts) != n {
		t.Errorf("attempts = %d, want %d", len(attempts), n)
	}
}

func TestRoomlessPlay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 600)
	roomless := detective.Scope{ScenarioID: "s1"}

	// Room-less play is not gated by any room state.
	out, err := f.engine.ResolveVisit(ctx, admin, roomless, "В", "3")
	if err != nil {
		t.Fatalf("visit: %v", err)
	}
	if !out.Success || out.Description != "Docks" {
		t.Errorf("visit = %+v", out)
	}

	if _, err := f.engine.ResolveVisit(ctx, admin, detective.Scope{ScenarioID: "nope"}, "В", "3"); !errors.Is(err, detective.ErrNotFound) {
		t.Errorf("unknown scenario: err = %v, want not found", err)
	}
	if _, err := f.engine.ResolveVisit(ctx, admin, detective.Scope{}, "В", "3"); !errors.Is(err, detective.ErrValidation) {
		t.Errorf("empty scope: err = %v, want validation error", err)
	}

	// A room-less visit does not count as a visit in the room.
	f.start(t)
	if _, err := f.engine.ResolveVisit(ctx, admin, inRoom, "В", "3"); err != nil {
		t.Fatalf("room visit: %v", err)
	}
	stats, err := f.engine.StatsByUser(ctx, admin.ID, "s1", "")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(stats) != 1 || stats[0].TotalAttempts != 1 {
		t.Errorf("room-less stats = %+v, want one attempt", stats)
	}
}

func TestScenarioIsolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 600)
	f.start(t)

	if _, err := f.store.CreateScenario(ctx, detective.Scenario{ID: "s2", Name: "Other"}); err != nil {
		t.Fatalf("creating scenario: %v", err)
	}

	if _, err := f.engine.ResolveVisit(ctx, player, detective.Scope{ScenarioID: "s2", RoomID: "r1"}, "С", "12"); !errors.Is(err, detective.ErrValidation) {
		t.Errorf("mismatched scope: err = %v, want validation error", err)
	}

	out, err := f.engine.ResolveVisit(ctx, admin, detective.Scope{ScenarioID: "s2"}, "С", "12")
	if err != nil {
		t.Fatalf("visit: %v", err)
	}
	if out.Success {
		t.Error("address from s1 resolved in s2")
	}

	if _, err := f.engine.ResolveVisit(ctx, player, inRoom, "С", "12"); err != nil {
		t.Fatalf("visit: %v", err)
	}
	stats, err := f.engine.StatsByDistrict(ctx, "s2")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(stats) != 1 || stats[0].FoundCount != 0 {
		t.Errorf("s2 stats = %+v, want only the one miss", stats)
	}
}

func TestStatsOrderedByDistrict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 600)
	f.start(t)

	for _, g := range [][2]string{{"Ц", "1"}, {"В", "3"}, {"С", "12"}, {"С", "13"}, {"СЗ", "1"}} {
		if _, err := f.engine.ResolveVisit(ctx, player, inRoom, g[0], g[1]); err != nil {
			t.Fatalf("visit %v: %v", g, err)
		}
	}

	rows, err := f.engine.StatsByRoom(ctx, "r1", "")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := []struct {
		district           detective.District
		total, found, miss int
	}{
		{detective.DistrictNorth, 2, 1, 1},
		{detective.DistrictEast, 1, 1, 0},
		{detective.DistrictNorthWest, 1, 0, 1},
		{detective.DistrictCenter, 1, 0, 1},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %+v", rows)
	}
	for i, w := range want {
		r := rows[i]
		if r.District != w.district || r.TotalAttempts != w.total || r.FoundCount != w.found || r.NotFoundCount != w.miss {
			t.Errorf("row %d = %+v, want %+v", i, r, w)
		}
	}

	byUser, err := f.engine.StatsByUser(ctx, player.ID, "", "r1")
	if err != nil {
		t.Fatalf("user stats: %v", err)
	}
	if len(byUser) != len(want) {
		t.Errorf("user stats = %+v", byUser)
	}
}

func TestAttemptsLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 600)
	f.start(t)

	for i := range 5 {
		f.clock.Advance(time.Second)
		if _, err := f.engine.ResolveVisit(ctx, player, inRoom, "Ю", string(rune('1'+i))); err != nil {
			t.Fatalf("visit: %v", err)
		}
	}

	got, err := f.engine.Attempts(ctx, player, inRoom, 2)
	if err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if len(got) != 2 || got[0].HouseNumber != "5" || got[1].HouseNumber != "4" {
		t.Errorf("attempts = %+v, want newest two", got)
	}
}

func TestSweepExpiredRooms(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 60)
	f.start(t)

	n, err := f.engine.SweepExpiredRooms(ctx)
	if err != nil || n != 0 {
		t.Errorf("sweep before deadline = %d, %v; want 0", n, err)
	}

	f.clock.Advance(time.Minute)
	n, err = f.engine.SweepExpiredRooms(ctx)
	if err != nil || n != 1 {
		t.Errorf("sweep at deadline = %d, %v; want 1", n, err)
	}
	stored, _ := f.store.Room(ctx, "r1")
	if stored.State != detective.RoomFinished {
		t.Errorf("stored state = %s, want finished", stored.State)
	}
}

func TestHasChoices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 60)

	tests := []struct {
		address string
		want    bool
	}{
		{"a1", true},
		{"a2", false},
	}
	for _, tt := range tests {
		got, err := f.engine.HasChoices(ctx, "s1", tt.address)
		if err != nil {
			t.Fatalf("%s: %v", tt.address, err)
		}
		if got != tt.want {
			t.Errorf("HasChoices(%s) = %v, want %v", tt.address, got, tt.want)
		}
	}
	if _, err := f.engine.HasChoices(ctx, "s1", "nope"); !errors.Is(err, detective.ErrNotFound) {
		t.Errorf("unknown address: err = %v, want not found", err)
	}
}

// flakyStore fails FindAddress a fixed number of times.
type flakyStore struct {
	*memstore.Store
	mu       sync.Mutex
	failures int
	calls    int
}

func (s *flakyStore) FindAddress(ctx context.Context, scenarioID string, d detective.District, house string) (detective.Address, error) {
	s.mu.Lock()
	s.calls++
	fail := s.calls <= s.failures
	s.mu.Unlock()
	if fail {
		return detective.Address{}, errors.New("disk I/O error")
	}
	return s.Store.FindAddress(ctx, scenarioID, d, house)
}

func TestReadRetriedOnce(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		failures int
		wantKind detective.Kind
	}{
		{"recovers", 1, detective.KindUnknown},
		{"gives up", 2, detective.KindPersistence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 600)
			flaky := &flakyStore{Store: f.store, failures: tt.failures}
			e := New(flaky, f.engine.logger, WithClock(f.clock.Now))
			e.retryWait = 0

			_, err := e.ResolveVisit(ctx, admin, detective.Scope{ScenarioID: "s1"}, "С", "12")
			if got := detective.KindOf(err); got != tt.wantKind {
				t.Errorf("kind = %v (err %v), want %v", got, err, tt.wantKind)
			}
			if err != nil && detective.Message(err) != "internal error" {
				t.Errorf("client message = %q, want internal error", detective.Message(err))
			}
		})
	}
}

func TestConcurrentChoicesConverge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 600)
	f.start(t)
	if _, err := f.engine.ResolveVisit(ctx, player, inRoom, "С", "12"); err != nil {
		t.Fatalf("visit: %v", err)
	}

	const n = 16
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got = make(map[string]int)
	)
	for i := range n {
		choiceID := "c1"
		if i%2 == 1 {
			choiceID = "c2"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.engine.ResolveChoice(ctx, player, inRoom, "a1", choiceID)
			if err != nil {
				t.Errorf("choice %s: %v", choiceID, err)
				return
			}
			mu.Lock()
			got[out.Choice.ChoiceID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(got) != 1 {
		t.Fatalf("callers saw different choices: %v", got)
	}
	stored, err := f.store.PlayerChoice(ctx, player.ID, "s1", "a1")
	if err != nil {
		t.Fatalf("stored choice: %v", err)
	}
	if got[stored.ChoiceID] != n {
		t.Errorf("stored choice %s, callers saw %v", stored.ChoiceID, got)
	}
}

func TestPauseRacesStop(t *testing.T) {
	ctx := context.Background()
	for round := range 20 {
		f := newFixture(t, 600)
		f.start(t)

		var wg sync.WaitGroup
		var pauseErr, stopErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, pauseErr = f.engine.PauseRoom(ctx, "r1")
		}()
		go func() {
			defer wg.Done()
			_, stopErr = f.engine.StopRoom(ctx, "r1")
		}()
		wg.Wait()

		for name, err := range map[string]error{"pause": pauseErr, "stop": stopErr} {
			if err != nil && detective.KindOf(err) != detective.KindState {
				t.Fatalf("round %d: %s err = %v, want nil or state error", round, name, err)
			}
		}
		if pauseErr != nil && stopErr != nil {
			t.Fatalf("round %d: both transitions failed", round)
		}

		st, err := f.engine.RoomStatus(ctx, "r1")
		if err != nil {
			t.Fatalf("round %d: status: %v", round, err)
		}
		switch {
		case st.State() == detective.RoomRunning:
			t.Fatalf("round %d: room still running", round)
		case stopErr == nil && st.State() != detective.RoomFinished:
			t.Fatalf("round %d: stop succeeded but state = %s", round, st.State())
		case stopErr != nil && st.State() != detective.RoomPaused:
			t.Fatalf("round %d: stop lost but state = %s", round, st.State())
		}
	}
}

func TestChoicesUnknownScenario(t *testing.T) {
	f := newFixture(t, 600)
	_, err := f.engine.Choices(context.Background(), "nope", "a1")
	if !errors.Is(err, detective.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
