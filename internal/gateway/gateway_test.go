package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"arena-shooter/internal/arena"
	"arena-shooter/internal/config"
	"arena-shooter/internal/lifecycle"
	"arena-shooter/internal/match"
	"arena-shooter/internal/physics"
)

// stubStore/stubSettlement are no-op collaborators; lifecycle already ships
// a noopStore/noopSettlement but they're unexported to that package.
type stubStore struct{}

func (stubStore) EnsureMatchExists(context.Context, string, string) error        { return nil }
func (stubStore) RecordAgentJoin(context.Context, lifecycle.AgentJoin) error     { return nil }
func (stubStore) RecordMatchEnd(context.Context, lifecycle.MatchEndRecord) error { return nil }
func (stubStore) GetHighestMatchID(context.Context, string) (int, error)         { return 0, nil }
func (stubStore) Close()                                                        {}

type stubSettlement struct{}

func (stubSettlement) OpenBetting(context.Context, string, []string, bool) error { return nil }
func (stubSettlement) AddBettingAgent(context.Context, string, string) error     { return nil }
func (stubSettlement) CloseBetting(context.Context, string) error               { return nil }
func (stubSettlement) ResolveMatch(context.Context, lifecycle.MatchResult) error { return nil }

func testGateway(t *testing.T, maxPlayers int) (*Gateway, *lifecycle.Controller) {
	t.Helper()
	geo, err := arena.Load("", 100)
	if err != nil {
		t.Fatalf("load geometry: %v", err)
	}
	world := physics.NewWorld(geo, config.DefaultPhysics())
	matchCfg := config.DefaultMatch()
	matchCfg.TickIntervalMS = 10
	matchCfg.LobbyCountdownMS = 40
	matchCfg.MatchDurationMS = 60_000
	matchCfg.MaxPlayers = maxPlayers

	hub := NewHub()
	sink := NewSnapshotSink(hub)
	ctrl := lifecycle.New(matchCfg, config.DefaultBot(), geo, world, stubStore{}, stubSettlement{}, sink)
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("start controller: %v", err)
	}
	t.Cleanup(func() {
		if e := ctrl.CurrentEngine(); e != nil {
			e.Stop()
		}
	})

	gwCfg := config.DefaultGateway()
	identity := NewIdentityCache(&fakeVerifier{name: "unused"}, gwCfg.IdentitySuccessTTL, gwCfg.IdentityFailureTTL, false)
	gw := New(ctrl, gwCfg, identity, hub)
	return gw, ctrl
}

func TestHandleStatusReportsLobby(t *testing.T) {
	gw, _ := testGateway(t, 8)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	gw.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["currentMatch"] != nil {
		t.Fatalf("expected nil currentMatch in lobby phase, got %v", body["currentMatch"])
	}
	if body["nextMatch"] == nil {
		t.Fatal("expected nextMatch to be populated in lobby phase")
	}
}

func authedRequest(method, path, token string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHandleJoinThenStateRoundTrip(t *testing.T) {
	gw, _ := testGateway(t, 8)
	router := gw.Router()

	joinReq := authedRequest(http.MethodPost, "/join", "test_agent_1", map[string]string{"displayName": "Agent One"})
	joinRec := httptest.NewRecorder()
	router.ServeHTTP(joinRec, joinReq)
	if joinRec.Code != http.StatusOK {
		t.Fatalf("expected join 200, got %d: %s", joinRec.Code, joinRec.Body.String())
	}

	var joinBody map[string]interface{}
	json.Unmarshal(joinRec.Body.Bytes(), &joinBody)
	if joinBody["success"] != true {
		t.Fatalf("expected success join, got %v", joinBody)
	}

	stateReq := authedRequest(http.MethodGet, "/state", "test_agent_1", nil)
	stateRec := httptest.NewRecorder()
	router.ServeHTTP(stateRec, stateReq)
	if stateRec.Code != http.StatusOK {
		t.Fatalf("expected state 200, got %d: %s", stateRec.Code, stateRec.Body.String())
	}

	var snap match.AgentSnapshot
	if err := json.Unmarshal(stateRec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.You == nil || snap.You.Name != "Agent One" {
		t.Fatalf("expected You to be the joined agent, got %+v", snap.You)
	}
}

func TestHandleStateWithoutJoinReturnsNotInMatch(t *testing.T) {
	gw, _ := testGateway(t, 8)
	req := authedRequest(http.MethodGet, "/state", "test_never_joined", nil)
	rec := httptest.NewRecorder()
	gw.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != string(ErrNotInMatch) {
		t.Fatalf("expected NOT_IN_MATCH, got %v", body["error"])
	}
}

func TestHandleActionWithoutTokenIsUnauthorized(t *testing.T) {
	gw, _ := testGateway(t, 8)
	req := httptest.NewRequest(http.MethodPost, "/action", bytes.NewBufferString(`{"action":"stop"}`))
	rec := httptest.NewRecorder()
	gw.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleActionRejectsUnknownAction(t *testing.T) {
	gw, ctrl := testGateway(t, 8)
	router := gw.Router()

	joinReq := authedRequest(http.MethodPost, "/join", "test_agent_1", map[string]string{"displayName": "A"})
	router.ServeHTTP(httptest.NewRecorder(), joinReq)
	if _, err := ctrl.JoinMatch(lifecycle.AgentInfo{AgentName: "test_agent_2"}, "B", "", ""); err != nil {
		t.Fatalf("second join: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for ctrl.CurrentEngine().Phase() != match.PhaseActive {
		if time.Now().After(deadline) {
			t.Fatalf("match never went active")
		}
		time.Sleep(5 * time.Millisecond)
	}

	req := authedRequest(http.MethodPost, "/action", "test_agent_1", map[string]string{"action": "teleport"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleActionMoveSucceeds(t *testing.T) {
	gw, ctrl := testGateway(t, 8)
	router := gw.Router()

	joinReq := authedRequest(http.MethodPost, "/join", "test_agent_1", map[string]string{"displayName": "A"})
	router.ServeHTTP(httptest.NewRecorder(), joinReq)
	if _, err := ctrl.JoinMatch(lifecycle.AgentInfo{AgentName: "test_agent_2"}, "B", "", ""); err != nil {
		t.Fatalf("second join: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for ctrl.CurrentEngine().Phase() != match.PhaseActive {
		if time.Now().After(deadline) {
			t.Fatalf("match never went active")
		}
		time.Sleep(5 * time.Millisecond)
	}

	req := authedRequest(http.MethodPost, "/action", "test_agent_1", map[string]interface{}{"action": "move", "angle": 1.5})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRoundingHelpers(t *testing.T) {
	if got := round2(1.23456); got != 1.23 {
		t.Fatalf("round2(1.23456) = %v, want 1.23", got)
	}
	if got := round1(12.34); got != 12.3 {
		t.Fatalf("round1(12.34) = %v, want 12.3", got)
	}
}
