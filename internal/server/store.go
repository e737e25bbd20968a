package server

import (
	"context"

	"github.com/playperu/detective/internal/detective"
)

// AdminStore is what the HTTP layer needs beyond the engine: credentials
// and room administration.
type AdminStore interface {
	AdminByEmail(ctx context.Context, email string) (detective.Admin, error)
	RoomUser(ctx context.Context, roomID, username string) (detective.RoomUser, error)
	CreateRoom(ctx context.Context, r detective.Room) (detective.Room, error)
	ListRooms(ctx context.Context) ([]detective.Room, error)
	CreateRoomUser(ctx context.Context, u detective.RoomUser) (detective.RoomUser, error)
}

// Seeder writes the demo catalog.
type Seeder interface {
	AdminStore
	CountScenarios(ctx context.Context) (int, error)
	CreateScenario(ctx context.Context, sc detective.Scenario) (detective.Scenario, error)
	CreateAddress(ctx context.Context, a detective.Address) (detective.Address, error)
	CreateChoice(ctx context.Context, scenarioID string, c detective.Choice) (detective.Choice, error)
	CreateAdmin(ctx context.Context, a detective.Admin) (detective.Admin, error)
}
