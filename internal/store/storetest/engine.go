package storetest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/playperu/detective/internal/detective"
	"github.com/playperu/detective/internal/engine"
)

// runningRoom seeds scenario s1 with address a1 (Ц 5) carrying two choices,
// then starts room r1 through a fresh engine.
func runningRoom(t *testing.T, s Store) *engine.Engine {
	t.Helper()
	ctx := context.Background()
	mustScenario(t, s, "s1", true)
	mustAddress(t, s, "s1", "a1", detective.DistrictCenter, "5")
	for i, id := range []string{"c1", "c2"} {
		if _, err := s.CreateChoice(ctx, "s1", detective.Choice{
			ID: id, AddressID: "a1", Order: i + 1, Prompt: "prompt " + id, Response: "response " + id, Active: true,
		}); err != nil {
			t.Fatalf("creating choice %s: %v", id, err)
		}
	}
	mustRoom(t, s, "r1", "s1")

	e := engine.New(s, slog.New(slog.DiscardHandler))
	if _, err := e.StartRoom(ctx, "r1"); err != nil {
		t.Fatalf("starting room: %v", err)
	}
	return e
}

func testEngineConcurrentVisits(t *testing.T, s Store) {
	ctx := context.Background()
	e := runningRoom(t, s)
	scope := detective.Scope{ScenarioID: "s1", RoomID: "r1"}

	const players, visits = 8, 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh = make(map[string]int)
	)
	for p := range players {
		actor := detective.Actor{ID: fmt.Sprintf("u%d", p), Kind: detective.ActorPlayer}
		for range visits {
			wg.Add(1)
			go func() {
				defer wg.Done()
				out, err := e.ResolveVisit(ctx, actor, scope, "Ц", "5")
				if err != nil {
					t.Errorf("visit by %s: %v", actor.ID, err)
					return
				}
				if !out.AlreadyVisited {
					mu.Lock()
					fresh[actor.ID]++
					mu.Unlock()
				}
			}()
		}
	}
	wg.Wait()

	for p := range players {
		id := fmt.Sprintf("u%d", p)
		if fresh[id] != 1 {
			t.Errorf("%s: %d visits reported first visit, want 1", id, fresh[id])
		}
	}
	stats, err := s.DistrictStats(ctx, detective.AttemptFilter{ScenarioID: "s1", RoomID: "r1"})
	if err != nil {
		t.Fatalf("district stats: %v", err)
	}
	if len(stats) != 1 || stats[0].TotalAttempts != players*visits || stats[0].FoundCount != players*visits {
		t.Errorf("stats = %+v, want %d found attempts", stats, players*visits)
	}
	visited, err := s.VisitedEntries(ctx, detective.AttemptFilter{ScenarioID: "s1", RoomID: "r1"})
	if err != nil {
		t.Fatalf("visited entries: %v", err)
	}
	if len(visited) != players {
		t.Errorf("visited rows = %d, want %d", len(visited), players)
	}
}

func testEngineConcurrentChoices(t *testing.T, s Store) {
	ctx := context.Background()
	e := runningRoom(t, s)
	scope := detective.Scope{ScenarioID: "s1", RoomID: "r1"}
	actor := detective.Actor{ID: "u1", Kind: detective.ActorPlayer}
	if _, err := e.ResolveVisit(ctx, actor, scope, "Ц", "5"); err != nil {
		t.Fatalf("visit: %v", err)
	}

	const n = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]int)
	)
	for i := range n {
		choiceID := []string{"c1", "c2"}[i%2]
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := e.ResolveChoice(ctx, actor, scope, "a1", choiceID)
			if err != nil {
				t.Errorf("choice %s: %v", choiceID, err)
				return
			}
			mu.Lock()
			seen[out.Choice.ChoiceID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	stored, err := s.PlayerChoice(ctx, "u1", "s1", "a1")
	if err != nil {
		t.Fatalf("stored choice: %v", err)
	}
	if len(seen) != 1 || seen[stored.ChoiceID] != n {
		t.Errorf("stored %s, callers saw %v", stored.ChoiceID, seen)
	}
}

func testEnginePauseRacesStop(t *testing.T, s Store) {
	ctx := context.Background()
	e := runningRoom(t, s)

	var wg sync.WaitGroup
	var pauseErr, stopErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, pauseErr = e.PauseRoom(ctx, "r1")
	}()
	go func() {
		defer wg.Done()
		_, stopErr = e.StopRoom(ctx, "r1")
	}()
	wg.Wait()

	for name, err := range map[string]error{"pause": pauseErr, "stop": stopErr} {
		if err != nil && detective.KindOf(err) != detective.KindState {
			t.Fatalf("%s err = %v, want nil or state error", name, err)
		}
	}

	room, err := s.Room(ctx, "r1")
	if err != nil {
		t.Fatalf("room: %v", err)
	}
	switch {
	case room.State == detective.RoomRunning:
		t.Fatal("room still running")
	case stopErr == nil && room.State != detective.RoomFinished:
		t.Fatalf("stop succeeded but state = %s", room.State)
	case stopErr != nil && room.State != detective.RoomPaused:
		t.Fatalf("stop lost but state = %s", room.State)
	}
}
