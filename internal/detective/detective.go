// Package detective defines the core domain types of the detective game:
// scenarios and their address catalogs, timed rooms, and the visit ledger.
// Its only dependency is the uuid generator behind NewID.
package detective

import "time"

type Scenario struct {
	ID     string
	Name   string
	Active bool
}

type Address struct {
	ID          string
	ScenarioID  string
	District    District
	HouseNumber string
	Description string
}

// Choice is branching content attached to an address. Inactive choices are
// kept for history and never offered to players.
type Choice struct {
	ID        string
	AddressID string
	Order     int
	Prompt    string
	Response  string
	Active    bool
}

type Room struct {
	ID              string
	ScenarioID      string
	Name            string
	CreatedBy       string
	DurationSeconds int
	State           RoomState
	StartTime       *time.Time
	EndTime         *time.Time
}

type RoomUser struct {
	ID           string
	RoomID       string
	Username     string
	PasswordHash string
}

type ActorKind string

const (
	ActorAdmin  ActorKind = "admin"
	ActorPlayer ActorKind = "player"
)

// Actor is the opaque identity supplied by the authentication layer.
type Actor struct {
	ID   string
	Kind ActorKind
}

// Scope is the session context of a gameplay call. An empty RoomID means
// room-less play against the scenario.
type Scope struct {
	ScenarioID string
	RoomID     string
}

func (s Scope) HasRoom() bool { return s.RoomID != "" }

// VisitAttempt is one guess, successful or not. Rows are never updated.
type VisitAttempt struct {
	ID          string
	ActorID     string
	ScenarioID  string
	RoomID      string
	District    District
	HouseNumber string
	Found       bool
	AddressID   string
	AttemptedAt time.Time
}

// VisitedLocation is the first successful visit of an actor to an address
// within a room (or room-less play).
type VisitedLocation struct {
	ID         string
	ActorID    string
	ScenarioID string
	RoomID     string
	AddressID  string
	VisitedAt  time.Time
}

// PlayerChoice is copied from the catalog when resolved, so later catalog
// edits do not rewrite what the player already saw.
type PlayerChoice struct {
	ID           string
	ActorID      string
	ScenarioID   string
	RoomID       string
	AddressID    string
	ChoiceID     string
	ChoiceText   string
	ResponseText string
	ChosenAt     time.Time
}

// VisitedEntry joins a visited location with its address.
type VisitedEntry struct {
	VisitedAt   time.Time
	District    District
	HouseNumber string
	Description string
}

// AttemptEntry is an attempt joined with the resolved address description.
type AttemptEntry struct {
	District           District
	HouseNumber        string
	Found              bool
	AddressDescription string
	AttemptedAt        time.Time
}

// DistrictStats is one aggregate row of the statistics dashboards.
type DistrictStats struct {
	District      District
	TotalAttempts int
	FoundCount    int
	NotFoundCount int
}

// AttemptFilter narrows aggregate and listing queries. Empty fields are
// not applied, except that ScenarioID is always required.
type AttemptFilter struct {
	ScenarioID string
	RoomID     string
	ActorID    string
	// AnyRoom disables room filtering; otherwise RoomID "" selects
	// room-less play only.
	AnyRoom bool
}

type Admin struct {
	ID           string
	Email        string
	PasswordHash string
}
