package server

import (
	"time"

	"github.com/playperu/detective/internal/detective"
	"github.com/playperu/detective/internal/engine"
)

// RoomInfo is the room part of the room-state response.
type RoomInfo struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	ScenarioID      string     `json:"scenario_id"`
	ScenarioName    string     `json:"scenario_name"`
	GameStartTime   *time.Time `json:"game_start_time"`
	GameEndTime     *time.Time `json:"game_end_time"`
	DurationSeconds int        `json:"duration_seconds"`
}

// RoomStateResponse is returned by the room-state endpoints and by every
// lifecycle transition.
type RoomStateResponse struct {
	Room             RoomInfo `json:"room"`
	State            string   `json:"state"`
	RemainingSeconds *int     `json:"remaining_seconds"`
}

func roomStateView(st engine.RoomStatus) RoomStateResponse {
	return RoomStateResponse{
		Room: RoomInfo{
			ID:              st.Room.ID,
			Name:            st.Room.Name,
			ScenarioID:      st.Room.ScenarioID,
			ScenarioName:    st.ScenarioName,
			GameStartTime:   st.Room.StartTime,
			GameEndTime:     st.Room.EndTime,
			DurationSeconds: st.Room.DurationSeconds,
		},
		State:            string(st.State()),
		RemainingSeconds: st.RemainingSeconds,
	}
}

type Location struct {
	District    string `json:"district"`
	HouseNumber string `json:"house_number"`
}

// ChoiceItem is an offered choice. The response text stays hidden until
// the choice is made.
type ChoiceItem struct {
	ID     string `json:"id"`
	Order  int    `json:"order"`
	Prompt string `json:"prompt"`
}

type PlayerChoiceItem struct {
	AddressID    string    `json:"address_id"`
	ChoiceID     string    `json:"choice_id"`
	ChoiceText   string    `json:"choice_text"`
	ResponseText string    `json:"response_text"`
	ChosenAt     time.Time `json:"chosen_at"`
}

type VisitRequest struct {
	District    string `json:"district"`
	HouseNumber string `json:"house_number"`
}

type VisitResponse struct {
	Success        bool              `json:"success"`
	Description    string            `json:"description,omitempty"`
	Location       Location          `json:"location"`
	AddressID      string            `json:"address_id,omitempty"`
	AlreadyVisited *bool             `json:"alreadyVisited,omitempty"`
	VisitedAt      *time.Time        `json:"visitedAt,omitempty"`
	Choices        []ChoiceItem      `json:"choices,omitempty"`
	PlayerChoice   *PlayerChoiceItem `json:"player_choice,omitempty"`
}

func visitView(out engine.VisitOutcome) VisitResponse {
	resp := VisitResponse{
		Success:  out.Success,
		Location: Location{District: string(out.District), HouseNumber: out.HouseNumber},
	}
	if !out.Success {
		return resp
	}
	already := out.AlreadyVisited
	resp.Description = out.Description
	resp.AddressID = out.AddressID
	resp.AlreadyVisited = &already
	if already {
		at := out.VisitedAt
		resp.VisitedAt = &at
	}
	resp.Choices = choiceItems(out.Choices)
	if out.PlayerChoice != nil {
		pc := playerChoiceItem(*out.PlayerChoice)
		resp.PlayerChoice = &pc
	}
	return resp
}

func choiceItems(choices []detective.Choice) []ChoiceItem {
	items := make([]ChoiceItem, 0, len(choices))
	for _, c := range choices {
		items = append(items, ChoiceItem{ID: c.ID, Order: c.Order, Prompt: c.Prompt})
	}
	return items
}

func playerChoiceItem(pc detective.PlayerChoice) PlayerChoiceItem {
	return PlayerChoiceItem{
		AddressID:    pc.AddressID,
		ChoiceID:     pc.ChoiceID,
		ChoiceText:   pc.ChoiceText,
		ResponseText: pc.ResponseText,
		ChosenAt:     pc.ChosenAt,
	}
}

type ChoiceRequest struct {
	AddressID string `json:"address_id"`
	ChoiceID  string `json:"choice_id"`
}

type ChoiceResponse struct {
	Choice        PlayerChoiceItem `json:"choice"`
	AlreadyChosen bool             `json:"already_chosen"`
}

type ChoicesResponse struct {
	HasChoices bool         `json:"has_choices"`
	Choices    []ChoiceItem `json:"choices"`
}

type VisitedItem struct {
	VisitedAt   time.Time `json:"visited_at"`
	District    string    `json:"district"`
	HouseNumber string    `json:"house_number"`
	Description string    `json:"description"`
}

func visitedItems(entries []detective.VisitedEntry) []VisitedItem {
	items := make([]VisitedItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, VisitedItem{
			VisitedAt:   e.VisitedAt,
			District:    string(e.District),
			HouseNumber: e.HouseNumber,
			Description: e.Description,
		})
	}
	return items
}

type AttemptItem struct {
	District           string    `json:"district"`
	HouseNumber        string    `json:"house_number"`
	Found              bool      `json:"found"`
	AddressDescription string    `json:"address_description,omitempty"`
	AttemptedAt        time.Time `json:"attempted_at"`
}

func attemptItems(entries []detective.AttemptEntry) []AttemptItem {
	items := make([]AttemptItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, AttemptItem{
			District:           string(e.District),
			HouseNumber:        e.HouseNumber,
			Found:              e.Found,
			AddressDescription: e.AddressDescription,
			AttemptedAt:        e.AttemptedAt,
		})
	}
	return items
}

type DistrictStatsItem struct {
	District      string `json:"district"`
	TotalAttempts int    `json:"total_attempts"`
	FoundCount    int    `json:"found_count"`
	NotFoundCount int    `json:"not_found_count"`
}

type StatisticsResponse struct {
	Districts []DistrictStatsItem `json:"districts"`
}

func statisticsView(rows []detective.DistrictStats) StatisticsResponse {
	items := make([]DistrictStatsItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, DistrictStatsItem{
			District:      string(r.District),
			TotalAttempts: r.TotalAttempts,
			FoundCount:    r.FoundCount,
			NotFoundCount: r.NotFoundCount,
		})
	}
	return StatisticsResponse{Districts: items}
}
