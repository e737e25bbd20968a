package engine

import (
	"cmp"
	"context"
	"slices"

	"github.com/playperu/detective/internal/detective"
)

// StatsByDistrict aggregates every attempt in the scenario, across rooms
// and room-less play.
func (e *Engine) StatsByDistrict(ctx context.Context, scenarioID string) ([]detective.DistrictStats, error) {
	if scenarioID == "" {
		return nil, detective.Validationf("scenario id is required")
	}
	if _, err := e.scenario(ctx, scenarioID); err != nil {
		return nil, err
	}
	return e.stats(ctx, detective.AttemptFilter{ScenarioID: scenarioID, AnyRoom: true})
}

// StatsByRoom aggregates the attempts made in one room. An empty
// scenarioID defaults to the room's scenario.
func (e *Engine) StatsByRoom(ctx context.Context, roomID, scenarioID string) ([]detective.DistrictStats, error) {
	if roomID == "" {
		return nil, detective.Validationf("room id is required")
	}
	scope, _, err := e.resolveScope(ctx, detective.Scope{ScenarioID: scenarioID, RoomID: roomID})
	if err != nil {
		return nil, err
	}
	return e.stats(ctx, detective.AttemptFilter{ScenarioID: scope.ScenarioID, RoomID: scope.RoomID})
}

// StatsByUser aggregates one actor's attempts. An empty roomID selects
// room-less play.
func (e *Engine) StatsByUser(ctx context.Context, actorID, scenarioID, roomID string) ([]detective.DistrictStats, error) {
	if actorID == "" {
		return nil, detective.Validationf("actor is required")
	}
	scope, _, err := e.resolveScope(ctx, detective.Scope{ScenarioID: scenarioID, RoomID: roomID})
	if err != nil {
		return nil, err
	}
	return e.stats(ctx, detective.AttemptFilter{ScenarioID: scope.ScenarioID, RoomID: scope.RoomID, ActorID: actorID})
}

func (e *Engine) stats(ctx context.Context, f detective.AttemptFilter) ([]detective.DistrictStats, error) {
	rows, err := read(ctx, e, "aggregate attempts", func(ctx context.Context) ([]detective.DistrictStats, error) {
		return e.store.DistrictStats(ctx, f)
	})
	if err != nil {
		return nil, err
	}
	SortStats(rows)
	return rows, nil
}

// SortStats orders rows by district display order.
func SortStats(rows []detective.DistrictStats) {
	slices.SortFunc(rows, func(a, b detective.DistrictStats) int {
		return cmp.Compare(a.District.Rank(), b.District.Rank())
	})
}
