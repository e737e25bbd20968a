package engine

import (
	"context"
	"errors"
	"time"

	"github.com/playperu/detective/internal/detective"
)

// RoomStatus is a room as observed at a point in time.
type RoomStatus struct {
	Room             detective.Room
	ScenarioName     string
	RemainingSeconds *int
	ObservedAt       time.Time
}

func (s RoomStatus) State() detective.RoomState { return s.Room.State }

// RoomStatus reads a room, persisting finished first when its deadline has
// passed.
func (e *Engine) RoomStatus(ctx context.Context, roomID string) (RoomStatus, error) {
	if roomID == "" {
		return RoomStatus{}, detective.Validationf("room id is required")
	}
	room, now, err := e.observeRoom(ctx, roomID)
	if err != nil {
		return RoomStatus{}, err
	}
	return e.status(ctx, room, now)
}

func (e *Engine) StartRoom(ctx context.Context, roomID string) (RoomStatus, error) {
	return e.transition(ctx, roomID, detective.TransitionStart)
}

func (e *Engine) PauseRoom(ctx context.Context, roomID string) (RoomStatus, error) {
	return e.transition(ctx, roomID, detective.TransitionPause)
}

func (e *Engine) ResumeRoom(ctx context.Context, roomID string) (RoomStatus, error) {
	return e.transition(ctx, roomID, detective.TransitionResume)
}

func (e *Engine) StopRoom(ctx context.Context, roomID string) (RoomStatus, error) {
	return e.transition(ctx, roomID, detective.TransitionStop)
}

// Transition applies a named lifecycle operation.
func (e *Engine) Transition(ctx context.Context, roomID string, t detective.Transition) (RoomStatus, error) {
	return e.transition(ctx, roomID, t)
}

func (e *Engine) transition(ctx context.Context, roomID string, t detective.Transition) (RoomStatus, error) {
	if roomID == "" {
		return RoomStatus{}, detective.Validationf("room id is required")
	}
	room, now, err := e.observeRoom(ctx, roomID)
	if err != nil {
		return RoomStatus{}, err
	}

	next, err := t.Apply(room, now)
	if err != nil {
		return RoomStatus{}, err
	}

	_, err = write(ctx, e, "update room", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.store.UpdateRoom(ctx, next, room.State)
	})
	if errors.Is(err, detective.ErrConflict) {
		return RoomStatus{}, detective.Statef("room %s changed concurrently; %s rejected", roomID, t)
	}
	if err != nil {
		return RoomStatus{}, err
	}

	e.logger.Info("room transition",
		"room_id", roomID,
		"op", string(t),
		"from", string(room.State),
		"to", string(next.State),
	)
	return e.status(ctx, next, now)
}

// observeRoom loads a room and applies lazy auto-finish.
func (e *Engine) observeRoom(ctx context.Context, roomID string) (detective.Room, time.Time, error) {
	for attempt := 0; ; attempt++ {
		room, err := read(ctx, e, "load room", func(ctx context.Context) (detective.Room, error) {
			return e.store.Room(ctx, roomID)
		})
		if err != nil {
			return detective.Room{}, time.Time{}, err
		}

		now := e.clock()
		if !room.Expired(now) {
			return room, now, nil
		}

		finished, err := e.finish(ctx, room)
		if errors.Is(err, detective.ErrConflict) {
			if attempt == 0 {
				// Another request moved the room first; observe its result.
				continue
			}
			return detective.Room{}, time.Time{}, detective.Statef("room %s changed concurrently", roomID)
		}
		if err != nil {
			return detective.Room{}, time.Time{}, err
		}
		return finished, now, nil
	}
}

// finish persists an expired room as finished. end_time stays at the
// original deadline.
func (e *Engine) finish(ctx context.Context, room detective.Room) (detective.Room, error) {
	finished := room
	finished.State = detective.RoomFinished
	_, err := write(ctx, e, "finish room", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.store.UpdateRoom(ctx, finished, room.State)
	})
	if err != nil {
		return room, err
	}
	e.logger.Info("room finished at deadline", "room_id", room.ID, "from", string(room.State))
	return finished, nil
}

func (e *Engine) status(ctx context.Context, room detective.Room, now time.Time) (RoomStatus, error) {
	sc, err := e.scenario(ctx, room.ScenarioID)
	if err != nil && !errors.Is(err, detective.ErrNotFound) {
		return RoomStatus{}, err
	}
	return RoomStatus{
		Room:             room,
		ScenarioName:     sc.Name,
		RemainingSeconds: room.RemainingSeconds(now),
		ObservedAt:       now,
	}, nil
}

// SweepExpiredRooms persists finished for every room past its deadline.
// Reads already self-correct; this only keeps stored state tidy.
func (e *Engine) SweepExpiredRooms(ctx context.Context) (int, error) {
	now := e.clock()
	rooms, err := read(ctx, e, "list expired rooms", func(ctx context.Context) ([]detective.Room, error) {
		return e.store.ExpiredRooms(ctx, now)
	})
	if err != nil {
		return 0, err
	}

	n := 0
	for _, room := range rooms {
		if !room.Expired(now) {
			continue
		}
		if _, err := e.finish(ctx, room); err != nil {
			if errors.Is(err, detective.ErrConflict) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

// gate resolves scope and, for room play, requires a running room.
func (e *Engine) gate(ctx context.Context, scope detective.Scope) (detective.Scope, error) {
	scope, room, err := e.resolveScope(ctx, scope)
	if err != nil {
		return scope, err
	}
	if scope.HasRoom() && room.State != detective.RoomRunning {
		return scope, detective.Statef("game is not active: room is %s", room.State)
	}
	return scope, nil
}

// resolveScope checks that the scenario and room exist and agree. The
// room's scenario is authoritative.
func (e *Engine) resolveScope(ctx context.Context, scope detective.Scope) (detective.Scope, detective.Room, error) {
	if scope.HasRoom() {
		room, _, err := e.observeRoom(ctx, scope.RoomID)
		if err != nil {
			return scope, room, err
		}
		if scope.ScenarioID != "" && scope.ScenarioID != room.ScenarioID {
			return scope, room, detective.Validationf("room %s does not belong to scenario %s", room.ID, scope.ScenarioID)
		}
		scope.ScenarioID = room.ScenarioID
		return scope, room, nil
	}

	if scope.ScenarioID == "" {
		return scope, detective.Room{}, detective.Validationf("scenario id is required")
	}
	if _, err := e.scenario(ctx, scope.ScenarioID); err != nil {
		return scope, detective.Room{}, err
	}
	return scope, detective.Room{}, nil
}
