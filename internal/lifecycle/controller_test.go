package lifecycle

import (
	"context"
	"testing"
	"time"

	"arena-shooter/internal/arena"
	"arena-shooter/internal/config"
	"arena-shooter/internal/match"
	"arena-shooter/internal/physics"
)

type recordingSink struct {
	events []match.Event
}

func (s *recordingSink) Publish(e match.Event) { s.events = append(s.events, e) }

func testController(t *testing.T, maxPlayers int) *Controller {
	t.Helper()
	geo, err := arena.Load("", 100)
	if err != nil {
		t.Fatalf("load geometry: %v", err)
	}
	world := physics.NewWorld(geo, config.DefaultPhysics())
	cfg := config.DefaultMatch()
	cfg.TickIntervalMS = 10
	cfg.LobbyCountdownMS = 40
	cfg.MatchDurationMS = 60_000
	cfg.ResultsDurationMS = 20
	cfg.MaxPlayers = maxPlayers

	ctrl := New(cfg, config.DefaultBot(), geo, world, noopStore{}, noopSettlement{}, &recordingSink{})
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("start controller: %v", err)
	}
	t.Cleanup(func() {
		if e := ctrl.CurrentEngine(); e != nil {
			e.Stop()
		}
	})
	return ctrl
}

func TestJoinMatchIsIdempotentPerAgent(t *testing.T) {
	ctrl := testController(t, 8)
	info := AgentInfo{AgentName: "agent-a"}

	first, err := ctrl.JoinMatch(info, "Agent A", "", "")
	if err != nil {
		t.Fatalf("first join: %v", err)
	}
	second, err := ctrl.JoinMatch(info, "Agent A", "", "")
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if first.PlayerID != second.PlayerID || first.MatchID != second.MatchID {
		t.Fatalf("expected idempotent join, got %+v then %+v", first, second)
	}
}

func TestJoinMatchRejectsOverfullLobby(t *testing.T) {
	ctrl := testController(t, 2)
	if _, err := ctrl.JoinMatch(AgentInfo{AgentName: "a"}, "A", "", ""); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if _, err := ctrl.JoinMatch(AgentInfo{AgentName: "b"}, "B", "", ""); err != nil {
		t.Fatalf("join b: %v", err)
	}

	_, err := ctrl.JoinMatch(AgentInfo{AgentName: "c"}, "C", "", "")
	if err == nil {
		t.Fatal("expected lobby-full error")
	}
	joinErr, ok := err.(*JoinError)
	if !ok || joinErr.Kind != ErrLobbyFull {
		t.Fatalf("expected ErrLobbyFull, got %v", err)
	}
}

func TestJoinMatchRejectsOnceActive(t *testing.T) {
	ctrl := testController(t, 8)
	if _, err := ctrl.JoinMatch(AgentInfo{AgentName: "a"}, "A", "", ""); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if _, err := ctrl.JoinMatch(AgentInfo{AgentName: "b"}, "B", "", ""); err != nil {
		t.Fatalf("join b: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for ctrl.CurrentEngine().Phase() != match.PhaseActive {
		if time.Now().After(deadline) {
			t.Fatalf("match never reached active phase, stuck at %s", ctrl.CurrentEngine().Phase())
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, err := ctrl.JoinMatch(AgentInfo{AgentName: "c"}, "C", "", "")
	if err == nil {
		t.Fatal("expected match-in-progress error")
	}
	joinErr, ok := err.(*JoinError)
	if !ok || joinErr.Kind != ErrMatchInProgress {
		t.Fatalf("expected ErrMatchInProgress, got %v", err)
	}
}

func TestPlayerIDForResolvesJoinedAgent(t *testing.T) {
	ctrl := testController(t, 8)
	result, err := ctrl.JoinMatch(AgentInfo{AgentName: "agent-a"}, "Agent A", "", "")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	playerID, matchID, ok := ctrl.PlayerIDFor("agent-a")
	if !ok {
		t.Fatal("expected agent to resolve to a player id")
	}
	if playerID != result.PlayerID || matchID != result.MatchID {
		t.Fatalf("PlayerIDFor mismatch: got (%s,%s), want (%s,%s)", playerID, matchID, result.PlayerID, result.MatchID)
	}

	if _, _, ok := ctrl.PlayerIDFor("never-joined"); ok {
		t.Fatal("expected unknown agent to not resolve")
	}
}

func TestStatusReflectsLobbyPhase(t *testing.T) {
	ctrl := testController(t, 8)
	status := ctrl.Status()
	if status.NextMatch == nil || status.CurrentMatch != nil {
		t.Fatalf("expected lobby phase to report nextMatch only, got %+v", status)
	}
	if status.NextMatch.LobbyOpensAt.IsZero() {
		t.Fatal("expected lobbyOpensAt to be set")
	}
}

func TestStatusReflectsActivePhase(t *testing.T) {
	ctrl := testController(t, 8)
	if _, err := ctrl.JoinMatch(AgentInfo{AgentName: "a"}, "A", "", ""); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if _, err := ctrl.JoinMatch(AgentInfo{AgentName: "b"}, "B", "", ""); err != nil {
		t.Fatalf("join b: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for ctrl.CurrentEngine().Phase() != match.PhaseActive {
		if time.Now().After(deadline) {
			t.Fatalf("match never reached active phase")
		}
		time.Sleep(5 * time.Millisecond)
	}

	status := ctrl.Status()
	if status.CurrentMatch == nil || status.NextMatch != nil {
		t.Fatalf("expected active phase to report currentMatch only, got %+v", status)
	}
	if status.CurrentMatch.PlayerCount != 2 {
		t.Fatalf("expected 2 players, got %d", status.CurrentMatch.PlayerCount)
	}
}

func TestCountdownAutomaticallyStartsMatch(t *testing.T) {
	ctrl := testController(t, 8)
	if _, err := ctrl.JoinMatch(AgentInfo{AgentName: "a"}, "A", "", ""); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if _, err := ctrl.JoinMatch(AgentInfo{AgentName: "b"}, "B", "", ""); err != nil {
		t.Fatalf("join b: %v", err)
	}
	if ctrl.CurrentEngine().Phase() != match.PhaseCountdown {
		t.Fatalf("expected countdown immediately after second join, got %s", ctrl.CurrentEngine().Phase())
	}

	deadline := time.Now().Add(2 * time.Second)
	for ctrl.CurrentEngine().Phase() != match.PhaseActive {
		if time.Now().After(deadline) {
			t.Fatalf("countdown never transitioned to active")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
