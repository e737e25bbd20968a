// Package engine runs game sessions: the room lifecycle controller, visit
// resolution against a scenario's address catalog, one-time choice
// resolution and the statistics read side.
//
// The engine keeps no state of its own. All time-based behaviour is
// evaluated lazily against the injected clock when a room is read.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/playperu/detective/internal/detective"
)

// Store is the storage capability set the engine runs on. Implementations
// must scope every ledger query by scenario and provide the conditional
// writes below atomically.
type Store interface {
	Scenario(ctx context.Context, id string) (detective.Scenario, error)
	ActiveScenario(ctx context.Context) (detective.Scenario, error)

	Room(ctx context.Context, id string) (detective.Room, error)
	// UpdateRoom persists next only if the stored state still equals from.
	// It returns a conflict error otherwise.
	UpdateRoom(ctx context.Context, next detective.Room, from detective.RoomState) error
	// ExpiredRooms lists running or paused rooms whose end_time is not after now.
	ExpiredRooms(ctx context.Context, now time.Time) ([]detective.Room, error)

	FindAddress(ctx context.Context, scenarioID string, district detective.District, houseNumber string) (detective.Address, error)
	Address(ctx context.Context, scenarioID, addressID string) (detective.Address, error)
	ActiveChoices(ctx context.Context, scenarioID, addressID string) ([]detective.Choice, error)

	InsertAttempt(ctx context.Context, a detective.VisitAttempt) error
	// UpsertVisitedLocation inserts v unless a row for (actor, room, address)
	// exists, in which case the existing row is returned with created=false.
	UpsertVisitedLocation(ctx context.Context, v detective.VisitedLocation) (stored detective.VisitedLocation, created bool, err error)
	VisitedLocation(ctx context.Context, actorID, scenarioID, roomID, addressID string) (detective.VisitedLocation, error)
	// InsertPlayerChoiceIfAbsent behaves like UpsertVisitedLocation, keyed by
	// (actor, address).
	InsertPlayerChoiceIfAbsent(ctx context.Context, c detective.PlayerChoice) (stored detective.PlayerChoice, created bool, err error)
	PlayerChoice(ctx context.Context, actorID, scenarioID, addressID string) (detective.PlayerChoice, error)

	VisitedEntries(ctx context.Context, f detective.AttemptFilter) ([]detective.VisitedEntry, error)
	AttemptEntries(ctx context.Context, f detective.AttemptFilter, limit int) ([]detective.AttemptEntry, error)
	DistrictStats(ctx context.Context, f detective.AttemptFilter) ([]detective.DistrictStats, error)
}

const (
	DefaultAttemptLimit = 100
	MaxAttemptLimit     = 200
)

type Engine struct {
	store        Store
	logger       *slog.Logger
	now          func() time.Time
	timeout      time.Duration
	attemptLimit int
	retryWait    time.Duration
}

type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithTimeout bounds every storage call.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithAttemptLimit sets the default size of attempt listings.
func WithAttemptLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 && n <= MaxAttemptLimit {
			e.attemptLimit = n
		}
	}
}

func New(store Store, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		logger:       logger,
		now:          time.Now,
		timeout:      5 * time.Second,
		attemptLimit: DefaultAttemptLimit,
		retryWait:    50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// read runs an idempotent storage read, retrying once on an unclassified
// failure.
func read[T any](ctx context.Context, e *Engine, op string, fn func(context.Context) (T, error)) (T, error) {
	v, err := backoff.Retry(ctx, func() (T, error) {
		cctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		v, err := fn(cctx)
		if err != nil && detective.KindOf(err) != detective.KindUnknown {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(e.retryWait)),
		backoff.WithMaxTries(2),
	)
	if err != nil {
		return v, e.persistence(op, err)
	}
	return v, nil
}

// write runs a storage write once.
func write[T any](ctx context.Context, e *Engine, op string, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	v, err := fn(cctx)
	if err != nil {
		return v, e.persistence(op, err)
	}
	return v, nil
}

func (e *Engine) persistence(op string, err error) error {
	wrapped := detective.Persistence(op, err)
	if detective.KindOf(wrapped) == detective.KindPersistence {
		e.logger.Error("storage failure", "op", op, "error", err)
	}
	return wrapped
}

func (e *Engine) scenario(ctx context.Context, id string) (detective.Scenario, error) {
	return read(ctx, e, "load scenario", func(ctx context.Context) (detective.Scenario, error) {
		return e.store.Scenario(ctx, id)
	})
}

// ActiveScenario resolves the globally active scenario used by room-less
// play. Callers resolve it once at the request boundary.
func (e *Engine) ActiveScenario(ctx context.Context) (detective.Scenario, error) {
	return read(ctx, e, "load active scenario", e.store.ActiveScenario)
}
