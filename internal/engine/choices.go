package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/playperu/detective/internal/detective"
)

// ChoiceOutcome is the actor's persisted selection for an address.
// AlreadyChosen means an earlier selection was returned instead of the
// requested one.
type ChoiceOutcome struct {
	Choice        detective.PlayerChoice
	AlreadyChosen bool
}

// ResolveChoice records the actor's one-time selection for an address the
// actor has already visited in scope. The first recorded choice sticks.
func (e *Engine) ResolveChoice(ctx context.Context, actor detective.Actor, scope detective.Scope, addressID, choiceID string) (ChoiceOutcome, error) {
	addressID = strings.TrimSpace(addressID)
	choiceID = strings.TrimSpace(choiceID)
	switch {
	case actor.ID == "":
		return ChoiceOutcome{}, detective.Validationf("actor is required")
	case addressID == "":
		return ChoiceOutcome{}, detective.Validationf("address id is required")
	case choiceID == "":
		return ChoiceOutcome{}, detective.Validationf("choice id is required")
	}

	scope, err := e.gate(ctx, scope)
	if err != nil {
		return ChoiceOutcome{}, err
	}

	addr, err := read(ctx, e, "load address", func(ctx context.Context) (detective.Address, error) {
		return e.store.Address(ctx, scope.ScenarioID, addressID)
	})
	if err != nil {
		return ChoiceOutcome{}, err
	}

	_, err = read(ctx, e, "load visit", func(ctx context.Context) (detective.VisitedLocation, error) {
		return e.store.VisitedLocation(ctx, actor.ID, scope.ScenarioID, scope.RoomID, addr.ID)
	})
	if errors.Is(err, detective.ErrNotFound) {
		return ChoiceOutcome{}, detective.Statef("address has not been visited")
	}
	if err != nil {
		return ChoiceOutcome{}, err
	}

	if prior, err := e.playerChoice(ctx, actor.ID, scope.ScenarioID, addr.ID); err != nil {
		return ChoiceOutcome{}, err
	} else if prior != nil {
		return ChoiceOutcome{Choice: *prior, AlreadyChosen: true}, nil
	}

	choices, err := e.activeChoices(ctx, scope.ScenarioID, addr.ID)
	if err != nil {
		return ChoiceOutcome{}, err
	}
	var picked *detective.Choice
	for i := range choices {
		if choices[i].ID == choiceID {
			picked = &choices[i]
			break
		}
	}
	if picked == nil {
		return ChoiceOutcome{}, detective.NotFoundf("choice %s not found for address", choiceID)
	}

	pc := detective.PlayerChoice{
		ID:           detective.NewID(),
		ActorID:      actor.ID,
		ScenarioID:   scope.ScenarioID,
		RoomID:       scope.RoomID,
		AddressID:    addr.ID,
		ChoiceID:     picked.ID,
		ChoiceText:   picked.Prompt,
		ResponseText: picked.Response,
		ChosenAt:     e.clock(),
	}

	type inserted struct {
		choice  detective.PlayerChoice
		created bool
	}
	res, err := write(ctx, e, "record choice", func(ctx context.Context) (inserted, error) {
		c, created, err := e.store.InsertPlayerChoiceIfAbsent(ctx, pc)
		return inserted{c, created}, err
	})
	if errors.Is(err, detective.ErrConflict) {
		// Lost a race the store did not resolve itself: the winner's row is
		// the answer.
		prior, err := e.playerChoice(ctx, actor.ID, scope.ScenarioID, addr.ID)
		if err != nil {
			return ChoiceOutcome{}, err
		}
		if prior == nil {
			return ChoiceOutcome{}, detective.Persistence("record choice", errors.New("conflicting choice vanished"))
		}
		return ChoiceOutcome{Choice: *prior, AlreadyChosen: true}, nil
	}
	if err != nil {
		return ChoiceOutcome{}, err
	}
	return ChoiceOutcome{Choice: res.choice, AlreadyChosen: !res.created}, nil
}

// HasChoices reports whether an address offers any active choice.
func (e *Engine) HasChoices(ctx context.Context, scenarioID, addressID string) (bool, error) {
	choices, err := e.Choices(ctx, scenarioID, addressID)
	if err != nil {
		return false, err
	}
	return len(choices) > 0, nil
}

// Choices lists an address's active choices in display order.
func (e *Engine) Choices(ctx context.Context, scenarioID, addressID string) ([]detective.Choice, error) {
	if scenarioID == "" || addressID == "" {
		return nil, detective.Validationf("scenario id and address id are required")
	}
	if _, err := e.scenario(ctx, scenarioID); err != nil {
		return nil, err
	}
	if _, err := read(ctx, e, "load address", func(ctx context.Context) (detective.Address, error) {
		return e.store.Address(ctx, scenarioID, addressID)
	}); err != nil {
		return nil, err
	}
	return e.activeChoices(ctx, scenarioID, addressID)
}

func (e *Engine) activeChoices(ctx context.Context, scenarioID, addressID string) ([]detective.Choice, error) {
	return read(ctx, e, "list choices", func(ctx context.Context) ([]detective.Choice, error) {
		return e.store.ActiveChoices(ctx, scenarioID, addressID)
	})
}

// playerChoice returns nil when the actor has not chosen yet.
func (e *Engine) playerChoice(ctx context.Context, actorID, scenarioID, addressID string) (*detective.PlayerChoice, error) {
	pc, err := read(ctx, e, "load player choice", func(ctx context.Context) (detective.PlayerChoice, error) {
		return e.store.PlayerChoice(ctx, actorID, scenarioID, addressID)
	})
	if errors.Is(err, detective.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pc, nil
}
