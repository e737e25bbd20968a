package server

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/playperu/detective/internal/detective"
)

// demoAdminHash is the bcrypt hash of "changeme".
const demoAdminHash = "$2a$10$trCdqP4npsbw0R1vQxVwXeT1HebzRmP01SXaNGPz1eSAZ7mpcL0Uu"

type demoAddress struct {
	district    detective.District
	houseNumber string
	description string
	choices     [][2]string
}

var demoAddresses = []demoAddress{
	{detective.DistrictCenter, "1", "The town hall. The clerk remembers a man in a grey coat asking for old maps.", [][2]string{
		{"Ask about the maps", "He wanted the harbour plans from 1921."},
		{"Ask about the coat", "Grey wool, with a torn left pocket."},
	}},
	{detective.DistrictNorth, "12", "A pharmacy. The owner sold sleeping powder to a stranger last week.", [][2]string{
		{"Check the ledger", "The buyer signed as \"J. Marlowe\"."},
		{"Describe the stranger", "Tall, limping, smelled of tar."},
	}},
	{detective.DistrictEast, "3", "The docks. A night watchman heard a boat leave without lights.", nil},
	{detective.DistrictSouthWest, "27", "A boarding house. Room 4 was paid a month in advance and never used.", [][2]string{
		{"Search room 4", "A ticket stub for the 6:40 ferry."},
	}},
	{detective.DistrictNorthWest, "8", "An antique shop, closed since Monday.", nil},
}

// SeedDemo creates the demo admin, an active scenario with its catalog, and
// a pending room with two players. It does nothing once any scenario exists.
func SeedDemo(ctx context.Context, logger *slog.Logger, s Seeder, cost int) error {
	n, err := s.CountScenarios(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	if _, err := s.CreateAdmin(ctx, detective.Admin{
		Email:        "admin@playperu.com",
		PasswordHash: demoAdminHash,
	}); err != nil {
		return fmt.Errorf("seeding admin: %w", err)
	}

	sc, err := s.CreateScenario(ctx, detective.Scenario{Name: "The Harbour Affair", Active: true})
	if err != nil {
		return fmt.Errorf("seeding scenario: %w", err)
	}

	for _, da := range demoAddresses {
		a, err := s.CreateAddress(ctx, detective.Address{
			ScenarioID:  sc.ID,
			District:    da.district,
			HouseNumber: da.houseNumber,
			Description: da.description,
		})
		if err != nil {
			return fmt.Errorf("seeding address %s %s: %w", da.district, da.houseNumber, err)
		}
		for i, c := range da.choices {
			if _, err := s.CreateChoice(ctx, sc.ID, detective.Choice{
				AddressID: a.ID,
				Order:     i + 1,
				Prompt:    c[0],
				Response:  c[1],
				Active:    true,
			}); err != nil {
				return fmt.Errorf("seeding choice: %w", err)
			}
		}
	}

	room, err := s.CreateRoom(ctx, detective.Room{
		ScenarioID:      sc.ID,
		Name:            "Demo room",
		DurationSeconds: 3600,
		State:           detective.RoomPending,
	})
	if err != nil {
		return fmt.Errorf("seeding room: %w", err)
	}

	for _, name := range []string{"holmes", "watson"} {
		hash, err := bcrypt.GenerateFromPassword([]byte(name), cost)
		if err != nil {
			return err
		}
		if _, err := s.CreateRoomUser(ctx, detective.RoomUser{
			RoomID:       room.ID,
			Username:     name,
			PasswordHash: string(hash),
		}); err != nil {
			return fmt.Errorf("seeding player %s: %w", name, err)
		}
	}

	logger.Info("demo data seeded", "scenario_id", sc.ID, "room_id", room.ID)
	return nil
}
