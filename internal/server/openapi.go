package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthCheck is one entry of the /healthz response, keyed by dependency.
type HealthCheck struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type roomPath struct {
	RoomID string `path:"roomID"`
}

type scenarioPath struct {
	ScenarioID string `path:"scenarioID" description:"Scenario ID or \"active\"."`
}

type addressChoicesPath struct {
	ScenarioID string `path:"scenarioID"`
	AddressID  string `path:"addressID"`
}

type attemptsQuery struct {
	Limit int `query:"limit" minimum:"1" description:"Maximum entries, newest first."`
}

type scenarioStatsQuery struct {
	Actor string `query:"actor" description:"Restrict to one actor."`
	Room  string `query:"room" description:"Restrict to one room."`
}

func withErrors(op openapi.OperationContext, codes ...int) {
	for _, code := range codes {
		op.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(code))
	}
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Detective API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Game session engine for the detective location-guessing game.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(map[string]HealthCheck{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(map[string]HealthCheck{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// POST /api/rooms/{roomID}/login
	roomLogin, _ := r.NewOperationContext(http.MethodPost, "/api/rooms/{roomID}/login")
	roomLogin.SetSummary("Room login")
	roomLogin.SetDescription("Player logs into a room with room credentials. Returns a bearer token.")
	roomLogin.AddReqStructure(roomPath{})
	roomLogin.AddReqStructure(RoomLoginRequest{})
	roomLogin.AddRespStructure(RoomLoginResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	withErrors(roomLogin, http.StatusBadRequest, http.StatusUnauthorized)
	_ = r.AddOperation(roomLogin)

	// GET /api/game/state
	getState, _ := r.NewOperationContext(http.MethodGet, "/api/game/state")
	getState.SetSummary("Room state")
	getState.SetDescription("Returns the player's room with its effective state and remaining time. Requires Bearer token.")
	getState.AddRespStructure(RoomStateResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	withErrors(getState, http.StatusUnauthorized, http.StatusNotFound)
	_ = r.AddOperation(getState)

	// POST /api/game/visit
	postVisit, _ := r.NewOperationContext(http.MethodPost, "/api/game/visit")
	postVisit.SetSummary("Visit location")
	postVisit.SetDescription("Guesses a district and house number. Every valid guess is recorded. Requires Bearer token.")
	postVisit.AddReqStructure(VisitRequest{})
	postVisit.AddRespStructure(VisitResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postVisit.AddRespStructure(VisitResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	withErrors(postVisit, http.StatusBadRequest, http.StatusUnauthorized, http.StatusConflict)
	_ = r.AddOperation(postVisit)

	// POST /api/game/choice
	postChoice, _ := r.NewOperationContext(http.MethodPost, "/api/game/choice")
	postChoice.SetSummary("Make choice")
	postChoice.SetDescription("Selects a choice at a visited address. The first choice per address is final. Requires Bearer token.")
	postChoice.AddReqStructure(ChoiceRequest{})
	postChoice.AddRespStructure(ChoiceResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	withErrors(postChoice, http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict)
	_ = r.AddOperation(postChoice)

	// GET /api/game/visited
	getVisited, _ := r.NewOperationContext(http.MethodGet, "/api/game/visited")
	getVisited.SetSummary("Visited locations")
	getVisited.SetDescription("Lists the player's distinct found addresses, oldest first. Requires Bearer token.")
	getVisited.AddRespStructure([]VisitedItem{}, openapi.WithHTTPStatus(http.StatusOK))
	withErrors(getVisited, http.StatusUnauthorized)
	_ = r.AddOperation(getVisited)

	// GET /api/game/attempts
	getAttempts, _ := r.NewOperationContext(http.MethodGet, "/api/game/attempts")
	getAttempts.SetSummary("Attempt history")
	getAttempts.SetDescription("Lists the player's attempts, newest first. Requires Bearer token.")
	getAttempts.AddReqStructure(attemptsQuery{})
	getAttempts.AddRespStructure([]AttemptItem{}, openapi.WithHTTPStatus(http.StatusOK))
	withErrors(getAttempts, http.StatusBadRequest, http.StatusUnauthorized)
	_ = r.AddOperation(getAttempts)

	// GET /api/game/statistics
	getStats, _ := r.NewOperationContext(http.MethodGet, "/api/game/statistics")
	getStats.SetSummary("Player statistics")
	getStats.SetDescription("Per-district attempt counts for the player in their room. Requires Bearer token.")
	getStats.AddRespStructure(StatisticsResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	withErrors(getStats, http.StatusUnauthorized)
	_ = r.AddOperation(getStats)

	// POST /api/admin/login
	postLogin, _ := r.NewOperationContext(http.MethodPost, "/api/admin/login")
	postLogin.SetSummary("Admin login")
	postLogin.SetDescription("Authenticate with email and password. Sets admin_session cookie.")
	postLogin.AddReqStructure(AdminLoginRequest{})
	postLogin.AddRespStructure(AdminMeResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	withErrors(postLogin, http.StatusBadRequest, http.StatusUnauthorized)
	_ = r.AddOperation(postLogin)

	// POST /api/admin/logout
	postLogout, _ := r.NewOperationContext(http.MethodPost, "/api/admin/logout")
	postLogout.SetSummary("Admin logout")
	postLogout.SetDescription("Clears admin session and cookie.")
	postLogout.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(postLogout)

	// GET /api/admin/me
	getMe, _ := r.NewOperationContext(http.MethodGet, "/api/admin/me")
	getMe.SetSummary("Current admin")
	getMe.SetDescription("Returns the currently authenticated admin. Requires admin_session cookie.")
	getMe.AddRespStructure(AdminMeResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	withErrors(getMe, http.StatusUnauthorized)
	_ = r.AddOperation(getMe)

	// GET /api/admin/rooms
	listRooms, _ := r.NewOperationContext(http.MethodGet, "/api/admin/rooms")
	listRooms.SetSummary("List rooms")
	listRooms.SetDescription("Returns every room with its effective state. Requires admin_session cookie.")
	listRooms.AddRespStructure([]RoomStateResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	withErrors(listRooms, http.StatusUnauthorized)
	_ = r.AddOperation(listRooms)

	// POST /api/admin/rooms
	createRoom, _ := r.NewOperationContext(http.MethodPost, "/api/admin/rooms")
	createRoom.SetSummary("Create room")
	createRoom.SetDescription("Creates a pending room. An empty scenario_id selects the active scenario. Requires admin_session cookie.")
	createRoom.AddReqStructure(CreateRoomRequest{})
	createRoom.AddRespStructure(RoomStateResponse{}, openapi.WithHTTPStatus(http.StatusCreated))
	withErrors(createRoom, http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound)
	_ = r.AddOperation(createRoom)

	// POST /api/admin/rooms/{roomID}/players
	createPlayer, _ := r.NewOperationContext(http.MethodPost, "/api/admin/rooms/{roomID}/players")
	createPlayer.SetSummary("Create player")
	createPlayer.SetDescription("Adds room credentials for a player. Requires admin_session cookie.")
	createPlayer.AddReqStructure(roomPath{})
	createPlayer.AddReqStructure(CreatePlayerRequest{})
	createPlayer.AddRespStructure(PlayerItem{}, openapi.WithHTTPStatus(http.StatusCreated))
	withErrors(createPlayer, http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict)
	_ = r.AddOperation(createPlayer)

	// GET /api/admin/rooms/{roomID}/state
	roomState, _ := r.NewOperationContext(http.MethodGet, "/api/admin/rooms/{roomID}/state")
	roomState.SetSummary("Room state")
	roomState.SetDescription("Returns a room with its effective state. Requires admin_session cookie.")
	roomState.AddReqStructure(roomPath{})
	roomState.AddRespStructure(RoomStateResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	withErrors(roomState, http.StatusUnauthorized, http.StatusNotFound)
	_ = r.AddOperation(roomState)

	for _, t := range []struct{ verb, summary string }{
		{"start", "Start room"},
		{"pause", "Pause room"},
		{"resume", "Resume room"},
		{"stop", "Stop room"},
	} {
		op, _ := r.NewOperationContext(http.MethodPost, "/api/admin/rooms/{roomID}/"+t.verb)
		op.SetSummary(t.summary)
		op.SetDescription("Applies a lifecycle transition. Requires admin_session cookie.")
		op.AddReqStructure(roomPath{})
		op.AddRespStructure(RoomStateResponse{}, openapi.WithHTTPStatus(http.StatusOK))
		withErrors(op, http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict)
		_ = r.AddOperation(op)
	}

	// GET /api/admin/rooms/{roomID}/statistics
	roomStats, _ := r.NewOperationContext(http.MethodGet, "/api/admin/rooms/{roomID}/statistics")
	roomStats.SetSummary("Room statistics")
	roomStats.SetDescription("Per-district attempt counts across all players of a room. Requires admin_session cookie.")
	roomStats.AddReqStructure(roomPath{})
	roomStats.AddRespStructure(StatisticsResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	withErrors(roomStats, http.StatusUnauthorized, http.StatusNotFound)
	_ = r.AddOperation(roomStats)

	// POST /api/admin/scenarios/{scenarioID}/visit
	adminVisit, _ := r.NewOperationContext(http.MethodPost, "/api/admin/scenarios/{scenarioID}/visit")
	adminVisit.SetSummary("Room-less visit")
	adminVisit.SetDescription("Visits a location outside any room. Requires admin_session cookie.")
	adminVisit.AddReqStructure(scenarioPath{})
	adminVisit.AddReqStructure(VisitRequest{})
	adminVisit.AddRespStructure(VisitResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	adminVisit.AddRespStructure(VisitResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	withErrors(adminVisit, http.StatusBadRequest, http.StatusUnauthorized)
	_ = r.AddOperation(adminVisit)

	// POST /api/admin/scenarios/{scenarioID}/choice
	adminChoice, _ := r.NewOperationContext(http.MethodPost, "/api/admin/scenarios/{scenarioID}/choice")
	adminChoice.SetSummary("Room-less choice")
	adminChoice.SetDescription("Selects a choice outside any room. Requires admin_session cookie.")
	adminChoice.AddReqStructure(scenarioPath{})
	adminChoice.AddReqStructure(ChoiceRequest{})
	adminChoice.AddRespStructure(ChoiceResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	withErrors(adminChoice, http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict)
	_ = r.AddOperation(adminChoice)

	// GET /api/admin/scenarios/{scenarioID}/visited
	adminVisited, _ := r.NewOperationContext(http.MethodGet, "/api/admin/scenarios/{scenarioID}/visited")
	adminVisited.SetSummary("Room-less visited locations")
	adminVisited.AddReqStructure(scenarioPath{})
	adminVisited.AddRespStructure([]VisitedItem{}, openapi.WithHTTPStatus(http.StatusOK))
	withErrors(adminVisited, http.StatusUnauthorized, http.StatusNotFound)
	_ = r.AddOperation(adminVisited)

	// GET /api/admin/scenarios/{scenarioID}/attempts
	adminAttempts, _ := r.NewOperationContext(http.MethodGet, "/api/admin/scenarios/{scenarioID}/attempts")
	adminAttempts.SetSummary("Room-less attempt history")
	adminAttempts.AddReqStructure(scenarioPath{})
	adminAttempts.AddReqStructure(attemptsQuery{})
	adminAttempts.AddRespStructure([]AttemptItem{}, openapi.WithHTTPStatus(http.StatusOK))
	withErrors(adminAttempts, http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound)
	_ = r.AddOperation(adminAttempts)

	// GET /api/admin/scenarios/{scenarioID}/statistics
	scenarioStats, _ := r.NewOperationContext(http.MethodGet, "/api/admin/scenarios/{scenarioID}/statistics")
	scenarioStats.SetSummary("Scenario statistics")
	scenarioStats.SetDescription("Per-district attempt counts across a scenario, optionally for one actor or room. Requires admin_session cookie.")
	scenarioStats.AddReqStructure(scenarioPath{})
	scenarioStats.AddReqStructure(scenarioStatsQuery{})
	scenarioStats.AddRespStructure(StatisticsResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	withErrors(scenarioStats, http.StatusUnauthorized, http.StatusNotFound)
	_ = r.AddOperation(scenarioStats)

	// GET /api/admin/scenarios/{scenarioID}/addresses/{addressID}/choices
	addrChoices, _ := r.NewOperationContext(http.MethodGet, "/api/admin/scenarios/{scenarioID}/addresses/{addressID}/choices")
	addrChoices.SetSummary("Address choices")
	addrChoices.SetDescription("Lists the active choices offered at an address. Requires admin_session cookie.")
	addrChoices.AddReqStructure(addressChoicesPath{})
	addrChoices.AddRespStructure(ChoicesResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	withErrors(addrChoices, http.StatusUnauthorized, http.StatusNotFound)
	_ = r.AddOperation(addrChoices)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
