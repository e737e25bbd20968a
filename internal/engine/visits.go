package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/playperu/detective/internal/detective"
)

// VisitOutcome is the result of one guess. A guess that matches nothing is
// a normal outcome with Success=false, not an error.
type VisitOutcome struct {
	Success     bool
	District    detective.District
	HouseNumber string

	AddressID      string
	Description    string
	AlreadyVisited bool
	VisitedAt      time.Time

	// Choices are the address's active choices; PlayerChoice is set when
	// the actor already resolved one of them.
	Choices      []detective.Choice
	PlayerChoice *detective.PlayerChoice
}

// ResolveVisit matches a guess against the scope's catalog, records the
// attempt and, when found, records the first visit idempotently.
func (e *Engine) ResolveVisit(ctx context.Context, actor detective.Actor, scope detective.Scope, district, houseNumber string) (VisitOutcome, error) {
	if actor.ID == "" {
		return VisitOutcome{}, detective.Validationf("actor is required")
	}
	d, ok := detective.ParseDistrict(district)
	if !ok {
		return VisitOutcome{}, detective.Validationf("district must be one of %s", districtList())
	}
	houseNumber = strings.TrimSpace(houseNumber)
	if houseNumber == "" {
		return VisitOutcome{}, detective.Validationf("house number is required")
	}

	scope, err := e.gate(ctx, scope)
	if err != nil {
		return VisitOutcome{}, err
	}

	addr, err := read(ctx, e, "find address", func(ctx context.Context) (detective.Address, error) {
		return e.store.FindAddress(ctx, scope.ScenarioID, d, houseNumber)
	})
	found := err == nil
	if err != nil && !errors.Is(err, detective.ErrNotFound) {
		return VisitOutcome{}, err
	}

	now := e.clock()
	attempt := detective.VisitAttempt{
		ID:          detective.NewID(),
		ActorID:     actor.ID,
		ScenarioID:  scope.ScenarioID,
		RoomID:      scope.RoomID,
		District:    d,
		HouseNumber: houseNumber,
		Found:       found,
		AddressID:   addr.ID,
		AttemptedAt: now,
	}
	if _, err := write(ctx, e, "insert attempt", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.store.InsertAttempt(ctx, attempt)
	}); err != nil {
		return VisitOutcome{}, err
	}

	out := VisitOutcome{District: d, HouseNumber: houseNumber}
	if !found {
		return out, nil
	}

	type upserted struct {
		visit   detective.VisitedLocation
		created bool
	}
	res, err := write(ctx, e, "record visit", func(ctx context.Context) (upserted, error) {
		v, created, err := e.store.UpsertVisitedLocation(ctx, detective.VisitedLocation{
			ID:         detective.NewID(),
			ActorID:    actor.ID,
			ScenarioID: scope.ScenarioID,
			RoomID:     scope.RoomID,
			AddressID:  addr.ID,
			VisitedAt:  now,
		})
		return upserted{v, created}, err
	})
	if err != nil {
		return VisitOutcome{}, err
	}

	out.Success = true
	out.AddressID = addr.ID
	out.Description = addr.Description
	out.AlreadyVisited = !res.created
	out.VisitedAt = res.visit.VisitedAt

	out.Choices, err = e.activeChoices(ctx, scope.ScenarioID, addr.ID)
	if err != nil {
		return VisitOutcome{}, err
	}
	if len(out.Choices) > 0 {
		pc, err := e.playerChoice(ctx, actor.ID, scope.ScenarioID, addr.ID)
		if err != nil {
			return VisitOutcome{}, err
		}
		out.PlayerChoice = pc
	}
	return out, nil
}

// VisitedLocations lists the actor's first visits in scope, oldest first.
func (e *Engine) VisitedLocations(ctx context.Context, actor detective.Actor, scope detective.Scope) ([]detective.VisitedEntry, error) {
	if actor.ID == "" {
		return nil, detective.Validationf("actor is required")
	}
	scope, _, err := e.resolveScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	f := detective.AttemptFilter{ScenarioID: scope.ScenarioID, RoomID: scope.RoomID, ActorID: actor.ID}
	return read(ctx, e, "list visited locations", func(ctx context.Context) ([]detective.VisitedEntry, error) {
		return e.store.VisitedEntries(ctx, f)
	})
}

// Attempts lists the actor's guesses in scope, most recent first. limit is
// clamped to [1, MaxAttemptLimit]; zero selects the configured default.
func (e *Engine) Attempts(ctx context.Context, actor detective.Actor, scope detective.Scope, limit int) ([]detective.AttemptEntry, error) {
	if actor.ID == "" {
		return nil, detective.Validationf("actor is required")
	}
	switch {
	case limit <= 0:
		limit = e.attemptLimit
	case limit > MaxAttemptLimit:
		limit = MaxAttemptLimit
	}
	scope, _, err := e.resolveScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	f := detective.AttemptFilter{ScenarioID: scope.ScenarioID, RoomID: scope.RoomID, ActorID: actor.ID}
	return read(ctx, e, "list attempts", func(ctx context.Context) ([]detective.AttemptEntry, error) {
		return e.store.AttemptEntries(ctx, f, limit)
	})
}

func districtList() string {
	codes := make([]string, len(detective.Districts))
	for i, d := range detective.Districts {
		codes[i] = string(d)
	}
	return strings.Join(codes, ", ")
}
