package memstore_test

import (
	"context"
	"testing"

	"github.com/playperu/detective/internal/detective"
	"github.com/playperu/detective/internal/store/memstore"
	"github.com/playperu/detective/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store {
		return memstore.New()
	})
}

func TestRoomIsolatedFromCaller(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	s.CreateScenario(ctx, detective.Scenario{ID: "s1", Name: "S"})
	s.CreateRoom(ctx, detective.Room{ID: "r1", ScenarioID: "s1", Name: "R", DurationSeconds: 60})

	room, err := s.Room(ctx, "r1")
	if err != nil {
		t.Fatalf("room: %v", err)
	}
	room.State = detective.RoomFinished

	again, _ := s.Room(ctx, "r1")
	if again.State != detective.RoomPending {
		t.Errorf("mutating a returned room changed the store: state = %s", again.State)
	}
}
