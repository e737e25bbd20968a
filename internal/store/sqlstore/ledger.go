package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/playperu/detective/internal/detective"
)

// Catalog

func (s *Store) CreateAddress(ctx context.Context, a detective.Address) (detective.Address, error) {
	if !a.District.Valid() {
		return detective.Address{}, detective.Validationf("invalid district %q", a.District)
	}
	if a.ID == "" {
		a.ID = detective.NewID()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO addresses (id, scenario_id, district, house_number, description)
		VALUES (?, ?, ?, ?, ?)
	`, a.ID, a.ScenarioID, string(a.District), a.HouseNumber, a.Description)
	switch {
	case isForeignKey(err):
		return detective.Address{}, detective.NotFoundf("scenario %s not found", a.ScenarioID)
	case isUnique(err):
		return detective.Address{}, detective.Conflictf("address %s %s already exists", a.District, a.HouseNumber)
	case err != nil:
		return detective.Address{}, err
	}
	return a, nil
}

func (s *Store) CreateChoice(ctx context.Context, scenarioID string, c detective.Choice) (detective.Choice, error) {
	if c.ID == "" {
		c.ID = detective.NewID()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO address_choices (id, address_id, display_order, prompt, response, is_active)
		SELECT ?, id, ?, ?, ?, ? FROM addresses WHERE id = ? AND scenario_id = ?
	`, c.ID, c.Order, c.Prompt, c.Response, boolInt(c.Active), c.AddressID, scenarioID)
	if err != nil {
		return detective.Choice{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return detective.Choice{}, err
	} else if n == 0 {
		return detective.Choice{}, detective.NotFoundf("address %s not found", c.AddressID)
	}
	return c, nil
}

const addressColumns = `id, scenario_id, district, house_number, description`

func scanAddress(row rowScanner) (detective.Address, error) {
	var (
		a detective.Address
		d string
	)
	err := row.Scan(&a.ID, &a.ScenarioID, &d, &a.HouseNumber, &a.Description)
	a.District = detective.District(d)
	return a, err
}

func (s *Store) FindAddress(ctx context.Context, scenarioID string, district detective.District, houseNumber string) (detective.Address, error) {
	a, err := scanAddress(s.db.QueryRowContext(ctx, `
		SELECT `+addressColumns+` FROM addresses
		WHERE scenario_id = ? AND district = ? AND house_number = ?
	`, scenarioID, string(district), houseNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return a, detective.NotFoundf("address not found")
	}
	return a, err
}

func (s *Store) Address(ctx context.Context, scenarioID, addressID string) (detective.Address, error) {
	a, err := scanAddress(s.db.QueryRowContext(ctx, `
		SELECT `+addressColumns+` FROM addresses WHERE id = ? AND scenario_id = ?
	`, addressID, scenarioID))
	if errors.Is(err, sql.ErrNoRows) {
		return a, detective.NotFoundf("address %s not found", addressID)
	}
	return a, err
}

func (s *Store) ActiveChoices(ctx context.Context, scenarioID, addressID string) ([]detective.Choice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.address_id, c.display_order, c.prompt, c.response, c.is_active
		FROM address_choices c
		JOIN addresses a ON a.id = c.address_id
		WHERE c.address_id = ? AND a.scenario_id = ? AND c.is_active = 1
		ORDER BY c.display_order, c.rowid
	`, addressID, scenarioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []detective.Choice
	for rows.Next() {
		var c detective.Choice
		if err := rows.Scan(&c.ID, &c.AddressID, &c.Order, &c.Prompt, &c.Response, &c.Active); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Ledger

func (s *Store) InsertAttempt(ctx context.Context, a detective.VisitAttempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO visit_attempts
			(id, actor_id, scenario_id, room_id, district, house_number, found, address_id, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.ActorID, a.ScenarioID, a.RoomID, string(a.District), a.HouseNumber, boolInt(a.Found),
		a.AddressID, toMillis(a.AttemptedAt))
	return err
}

func (s *Store) UpsertVisitedLocation(ctx context.Context, v detective.VisitedLocation) (detective.VisitedLocation, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO visited_locations (id, actor_id, scenario_id, room_id, address_id, visited_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (actor_id, room_id, address_id) DO NOTHING
	`, v.ID, v.ActorID, v.ScenarioID, v.RoomID, v.AddressID, toMillis(v.VisitedAt))
	if err != nil {
		return detective.VisitedLocation{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return detective.VisitedLocation{}, false, err
	}
	if n == 1 {
		v.VisitedAt = truncate(v.VisitedAt)
		return v, true, nil
	}
	existing, err := s.VisitedLocation(ctx, v.ActorID, v.ScenarioID, v.RoomID, v.AddressID)
	return existing, false, err
}

func (s *Store) VisitedLocation(ctx context.Context, actorID, scenarioID, roomID, addressID string) (detective.VisitedLocation, error) {
	var (
		v  detective.VisitedLocation
		at int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, actor_id, scenario_id, room_id, address_id, visited_at
		FROM visited_locations
		WHERE actor_id = ? AND scenario_id = ? AND room_id = ? AND address_id = ?
	`, actorID, scenarioID, roomID, addressID).Scan(&v.ID, &v.ActorID, &v.ScenarioID, &v.RoomID, &v.AddressID, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return v, detective.NotFoundf("visit not found")
	}
	v.VisitedAt = fromMillis(at)
	return v, err
}

func (s *Store) InsertPlayerChoiceIfAbsent(ctx context.Context, c detective.PlayerChoice) (detective.PlayerChoice, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO player_choices
			(id, actor_id, scenario_id, room_id, address_id, choice_id, choice_text, response_text, chosen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (actor_id, address_id) DO NOTHING
	`, c.ID, c.ActorID, c.ScenarioID, c.RoomID, c.AddressID, c.ChoiceID, c.ChoiceText, c.ResponseText,
		toMillis(c.ChosenAt))
	if err != nil {
		return detective.PlayerChoice{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return detective.PlayerChoice{}, false, err
	}
	if n == 1 {
		c.ChosenAt = truncate(c.ChosenAt)
		return c, true, nil
	}
	existing, err := s.PlayerChoice(ctx, c.ActorID, c.ScenarioID, c.AddressID)
	return existing, false, err
}

func (s *Store) PlayerChoice(ctx context.Context, actorID, scenarioID, addressID string) (detective.PlayerChoice, error) {
	var (
		c  detective.PlayerChoice
		at int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, actor_id, scenario_id, room_id, address_id, choice_id, choice_text, response_text, chosen_at
		FROM player_choices
		WHERE actor_id = ? AND scenario_id = ? AND address_id = ?
	`, actorID, scenarioID, addressID).Scan(&c.ID, &c.ActorID, &c.ScenarioID, &c.RoomID, &c.AddressID,
		&c.ChoiceID, &c.ChoiceText, &c.ResponseText, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return c, detective.NotFoundf("choice not found")
	}
	c.ChosenAt = fromMillis(at)
	return c, err
}

// Read side

// where builds the WHERE clause for f against a table aliased as alias.
func where(alias string, f detective.AttemptFilter) (string, []any) {
	clauses := []string{alias + ".scenario_id = ?"}
	args := []any{f.ScenarioID}
	if !f.AnyRoom {
		clauses = append(clauses, alias+".room_id = ?")
		args = append(args, f.RoomID)
	}
	if f.ActorID != "" {
		clauses = append(clauses, alias+".actor_id = ?")
		args = append(args, f.ActorID)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *Store) VisitedEntries(ctx context.Context, f detective.AttemptFilter) ([]detective.VisitedEntry, error) {
	clause, args := where("v", f)
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.visited_at, a.district, a.house_number, a.description
		FROM visited_locations v
		JOIN addresses a ON a.id = v.address_id
	`+clause+` ORDER BY v.visited_at, v.rowid`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []detective.VisitedEntry
	for rows.Next() {
		var (
			e  detective.VisitedEntry
			at int64
			d  string
		)
		if err := rows.Scan(&at, &d, &e.HouseNumber, &e.Description); err != nil {
			return nil, err
		}
		e.VisitedAt = fromMillis(at)
		e.District = detective.District(d)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) AttemptEntries(ctx context.Context, f detective.AttemptFilter, limit int) ([]detective.AttemptEntry, error) {
	clause, args := where("t", f)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.district, t.house_number, t.found, COALESCE(a.description, ''), t.attempted_at
		FROM visit_attempts t
		LEFT JOIN addresses a ON a.id = t.address_id AND t.found = 1
	`+clause+` ORDER BY t.attempted_at DESC, t.rowid DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []detective.AttemptEntry
	for rows.Next() {
		var (
			e  detective.AttemptEntry
			d  string
			at int64
		)
		if err := rows.Scan(&d, &e.HouseNumber, &e.Found, &e.AddressDescription, &at); err != nil {
			return nil, err
		}
		e.District = detective.District(d)
		e.AttemptedAt = fromMillis(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) DistrictStats(ctx context.Context, f detective.AttemptFilter) ([]detective.DistrictStats, error) {
	clause, args := where("t", f)
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.district, COUNT(*), COALESCE(SUM(t.found), 0)
		FROM visit_attempts t
	`+clause+` GROUP BY t.district`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []detective.DistrictStats
	for rows.Next() {
		var (
			row detective.DistrictStats
			d   string
		)
		if err := rows.Scan(&d, &row.TotalAttempts, &row.FoundCount); err != nil {
			return nil, err
		}
		row.District = detective.District(d)
		row.NotFoundCount = row.TotalAttempts - row.FoundCount
		out = append(out, row)
	}
	return out, rows.Err()
}
