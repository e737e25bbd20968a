// Package memstore is an in-memory implementation of the engine and admin
// storage interfaces, used by tests and by ephemeral deployments.
//
// Ledger data is partitioned per scenario: each scenario owns an arena of
// addresses, choices and ledger rows behind its own lock, so scenarios never
// contend and a query can only ever see its own partition.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/playperu/detective/internal/detective"
)

type addressKey struct {
	district detective.District
	house    string
}

type visitKey struct {
	actor, room, address string
}

type choiceKey struct {
	actor, address string
}

type partition struct {
	mu sync.RWMutex

	addresses map[string]detective.Address
	byKey     map[addressKey]string
	choices   map[string][]detective.Choice // by address id

	attempts      []detective.VisitAttempt
	visited       map[visitKey]detective.VisitedLocation
	playerChoices map[choiceKey]detective.PlayerChoice
}

func newPartition() *partition {
	return &partition{
		addresses:     make(map[string]detective.Address),
		byKey:         make(map[addressKey]string),
		choices:       make(map[string][]detective.Choice),
		visited:       make(map[visitKey]detective.VisitedLocation),
		playerChoices: make(map[choiceKey]detective.PlayerChoice),
	}
}

type Store struct {
	mu         sync.RWMutex
	scenarios  map[string]detective.Scenario
	rooms      map[string]detective.Room
	roomUsers  map[string]detective.RoomUser // by room id + "/" + username
	admins     map[string]detective.Admin    // by email
	partitions map[string]*partition
}

func New() *Store {
	return &Store{
		scenarios:  make(map[string]detective.Scenario),
		rooms:      make(map[string]detective.Room),
		roomUsers:  make(map[string]detective.RoomUser),
		admins:     make(map[string]detective.Admin),
		partitions: make(map[string]*partition),
	}
}

// partition returns the scenario's partition, creating it on first use.
func (s *Store) partition(scenarioID string) *partition {
	s.mu.RLock()
	p, ok := s.partitions[scenarioID]
	s.mu.RUnlock()
	if ok {
		return p
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock.
	if p, ok := s.partitions[scenarioID]; ok {
		return p
	}
	p = newPartition()
	s.partitions[scenarioID] = p
	return p
}

// noPartition stands in for scenarios that have no data yet. Only read
// paths see it.
var noPartition = newPartition()

// lookup returns the scenario's partition without creating it.
func (s *Store) lookup(scenarioID string) *partition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.partitions[scenarioID]; ok {
		return p
	}
	return noPartition
}

// Scenarios and rooms

func (s *Store) Scenario(_ context.Context, id string) (detective.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scenarios[id]
	if !ok {
		return sc, detective.NotFoundf("scenario %s not found", id)
	}
	return sc, nil
}

func (s *Store) ActiveScenario(_ context.Context) (detective.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sc := range s.scenarios {
		if sc.Active {
			return sc, nil
		}
	}
	return detective.Scenario{}, detective.NotFoundf("no active scenario")
}

func (s *Store) CreateScenario(_ context.Context, sc detective.Scenario) (detective.Scenario, error) {
	if sc.ID == "" {
		sc.ID = detective.NewID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scenarios[sc.ID]; ok {
		return detective.Scenario{}, detective.Conflictf("scenario %s already exists", sc.ID)
	}
	if sc.Active {
		for id, other := range s.scenarios {
			other.Active = false
			s.scenarios[id] = other
		}
	}
	s.scenarios[sc.ID] = sc
	return sc, nil
}

func (s *Store) CountScenarios(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scenarios), nil
}

func (s *Store) Room(_ context.Context, id string) (detective.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return r, detective.NotFoundf("room %s not found", id)
	}
	return cloneRoom(r), nil
}

func (s *Store) UpdateRoom(_ context.Context, next detective.Room, from detective.RoomState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rooms[next.ID]
	if !ok {
		return detective.NotFoundf("room %s not found", next.ID)
	}
	if cur.State != from {
		return detective.Conflictf("room %s is %s, not %s", next.ID, cur.State, from)
	}
	cur.State = next.State
	cur.StartTime = cloneTime(next.StartTime)
	cur.EndTime = cloneTime(next.EndTime)
	s.rooms[next.ID] = cur
	return nil
}

func (s *Store) ExpiredRooms(_ context.Context, now time.Time) ([]detective.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []detective.Room
	for _, r := range s.rooms {
		if r.Expired(now) {
			out = append(out, cloneRoom(r))
		}
	}
	return out, nil
}

func (s *Store) CreateRoom(_ context.Context, r detective.Room) (detective.Room, error) {
	if r.ID == "" {
		r.ID = detective.NewID()
	}
	if r.State == "" {
		r.State = detective.RoomPending
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scenarios[r.ScenarioID]; !ok {
		return detective.Room{}, detective.NotFoundf("scenario %s not found", r.ScenarioID)
	}
	if _, ok := s.rooms[r.ID]; ok {
		return detective.Room{}, detective.Conflictf("room %s already exists", r.ID)
	}
	s.rooms[r.ID] = cloneRoom(r)
	return r, nil
}

func (s *Store) ListRooms(_ context.Context) ([]detective.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]detective.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, cloneRoom(r))
	}
	slices.SortFunc(out, func(a, b detective.Room) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) CreateRoomUser(_ context.Context, u detective.RoomUser) (detective.RoomUser, error) {
	if u.ID == "" {
		u.ID = detective.NewID()
	}
	key := u.RoomID + "/" + u.Username
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[u.RoomID]; !ok {
		return detective.RoomUser{}, detective.NotFoundf("room %s not found", u.RoomID)
	}
	if _, ok := s.roomUsers[key]; ok {
		return detective.RoomUser{}, detective.Conflictf("username %q is taken in this room", u.Username)
	}
	s.roomUsers[key] = u
	return u, nil
}

func (s *Store) RoomUser(_ context.Context, roomID, username string) (detective.RoomUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.roomUsers[roomID+"/"+username]
	if !ok {
		return u, detective.NotFoundf("player %q not found", username)
	}
	return u, nil
}

func (s *Store) CreateAdmin(_ context.Context, a detective.Admin) (detective.Admin, error) {
	if a.ID == "" {
		a.ID = detective.NewID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.admins[a.Email]; ok {
		return detective.Admin{}, detective.Conflictf("admin %s already exists", a.Email)
	}
	s.admins[a.Email] = a
	return a, nil
}

func (s *Store) AdminByEmail(_ context.Context, email string) (detective.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.admins[email]
	if !ok {
		return a, detective.NotFoundf("admin not found")
	}
	return a, nil
}

// Catalog

func (s *Store) CreateAddress(_ context.Context, a detective.Address) (detective.Address, error) {
	if !a.District.Valid() {
		return detective.Address{}, detective.Validationf("invalid district %q", a.District)
	}
	if a.ID == "" {
		a.ID = detective.NewID()
	}
	if _, err := s.Scenario(context.Background(), a.ScenarioID); err != nil {
		return detective.Address{}, err
	}
	p := s.partition(a.ScenarioID)
	p.mu.Lock()
	defer p.mu.Unlock()
	key := addressKey{a.District, a.HouseNumber}
	if _, ok := p.byKey[key]; ok {
		return detective.Address{}, detective.Conflictf("address %s %s already exists", a.District, a.HouseNumber)
	}
	p.addresses[a.ID] = a
	p.byKey[key] = a.ID
	return a, nil
}

func (s *Store) CreateChoice(_ context.Context, scenarioID string, c detective.Choice) (detective.Choice, error) {
	if c.ID == "" {
		c.ID = detective.NewID()
	}
	p := s.partition(scenarioID)
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.addresses[c.AddressID]; !ok {
		return detective.Choice{}, detective.NotFoundf("address %s not found", c.AddressID)
	}
	p.choices[c.AddressID] = append(p.choices[c.AddressID], c)
	return c, nil
}

func (s *Store) FindAddress(_ context.Context, scenarioID string, district detective.District, houseNumber string) (detective.Address, error) {
	p := s.lookup(scenarioID)
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.byKey[addressKey{district, houseNumber}]
	if !ok {
		return detective.Address{}, detective.NotFoundf("address not found")
	}
	return p.addresses[id], nil
}

func (s *Store) Address(_ context.Context, scenarioID, addressID string) (detective.Address, error) {
	p := s.lookup(scenarioID)
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.addresses[addressID]
	if !ok {
		return a, detective.NotFoundf("address %s not found", addressID)
	}
	return a, nil
}

func (s *Store) ActiveChoices(_ context.Context, scenarioID, addressID string) ([]detective.Choice, error) {
	p := s.lookup(scenarioID)
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []detective.Choice
	for _, c := range p.choices[addressID] {
		if c.Active {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b detective.Choice) int { return cmp.Compare(a.Order, b.Order) })
	return out, nil
}

// Ledger

func (s *Store) InsertAttempt(_ context.Context, a detective.VisitAttempt) error {
	p := s.partition(a.ScenarioID)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts = append(p.attempts, a)
	return nil
}

func (s *Store) UpsertVisitedLocation(_ context.Context, v detective.VisitedLocation) (detective.VisitedLocation, bool, error) {
	p := s.partition(v.ScenarioID)
	p.mu.Lock()
	defer p.mu.Unlock()
	key := visitKey{v.ActorID, v.RoomID, v.AddressID}
	if existing, ok := p.visited[key]; ok {
		return existing, false, nil
	}
	p.visited[key] = v
	return v, true, nil
}

func (s *Store) VisitedLocation(_ context.Context, actorID, scenarioID, roomID, addressID string) (detective.VisitedLocation, error) {
	p := s.lookup(scenarioID)
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.visited[visitKey{actorID, roomID, addressID}]
	if !ok {
		return v, detective.NotFoundf("visit not found")
	}
	return v, nil
}

func (s *Store) InsertPlayerChoiceIfAbsent(_ context.Context, c detective.PlayerChoice) (detective.PlayerChoice, bool, error) {
	p := s.partition(c.ScenarioID)
	p.mu.Lock()
	defer p.mu.Unlock()
	key := choiceKey{c.ActorID, c.AddressID}
	if existing, ok := p.playerChoices[key]; ok {
		return existing, false, nil
	}
	p.playerChoices[key] = c
	return c, true, nil
}

func (s *Store) PlayerChoice(_ context.Context, actorID, scenarioID, addressID string) (detective.PlayerChoice, error) {
	p := s.lookup(scenarioID)
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.playerChoices[choiceKey{actorID, addressID}]
	if !ok {
		return c, detective.NotFoundf("choice not found")
	}
	return c, nil
}

func (s *Store) VisitedEntries(_ context.Context, f detective.AttemptFilter) ([]detective.VisitedEntry, error) {
	p := s.lookup(f.ScenarioID)
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []detective.VisitedEntry
	for _, v := range p.visited {
		if !matches(f, v.ActorID, v.RoomID) {
			continue
		}
		a := p.addresses[v.AddressID]
		out = append(out, detective.VisitedEntry{
			VisitedAt:   v.VisitedAt,
			District:    a.District,
			HouseNumber: a.HouseNumber,
			Description: a.Description,
		})
	}
	slices.SortFunc(out, func(a, b detective.VisitedEntry) int { return a.VisitedAt.Compare(b.VisitedAt) })
	return out, nil
}

func (s *Store) AttemptEntries(_ context.Context, f detective.AttemptFilter, limit int) ([]detective.AttemptEntry, error) {
	p := s.lookup(f.ScenarioID)
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []detective.AttemptEntry
	// Attempts are appended in time order; walk backwards for newest first.
	for i := len(p.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		a := p.attempts[i]
		if !matches(f, a.ActorID, a.RoomID) {
			continue
		}
		e := detective.AttemptEntry{
			District:    a.District,
			HouseNumber: a.HouseNumber,
			Found:       a.Found,
			AttemptedAt: a.AttemptedAt,
		}
		if a.Found {
			e.AddressDescription = p.addresses[a.AddressID].Description
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) DistrictStats(_ context.Context, f detective.AttemptFilter) ([]detective.DistrictStats, error) {
	p := s.lookup(f.ScenarioID)
	p.mu.RLock()
	defer p.mu.RUnlock()
	byDistrict := make(map[detective.District]*detective.DistrictStats)
	for _, a := range p.attempts {
		if !matches(f, a.ActorID, a.RoomID) {
			continue
		}
		row, ok := byDistrict[a.District]
		if !ok {
			row = &detective.DistrictStats{District: a.District}
			byDistrict[a.District] = row
		}
		row.TotalAttempts++
		if a.Found {
			row.FoundCount++
		} else {
			row.NotFoundCount++
		}
	}
	out := make([]detective.DistrictStats, 0, len(byDistrict))
	for _, row := range byDistrict {
		out = append(out, *row)
	}
	return out, nil
}

func matches(f detective.AttemptFilter, actorID, roomID string) bool {
	if f.ActorID != "" && f.ActorID != actorID {
		return false
	}
	if !f.AnyRoom && f.RoomID != roomID {
		return false
	}
	return true
}

func cloneRoom(r detective.Room) detective.Room {
	r.StartTime = cloneTime(r.StartTime)
	r.EndTime = cloneTime(r.EndTime)
	return r
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
