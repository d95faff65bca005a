package match

import (
	"math"
	"testing"
	"time"

	"arena-shooter/internal/arena"
	"arena-shooter/internal/config"
	"arena-shooter/internal/physics"
)

type recordingSink struct {
	events []Event
}

func (s *recordingSink) Publish(e Event) { s.events = append(s.events, e) }

func testEngine(t *testing.T) (*Engine, *recordingSink) {
	t.Helper()
	geo, err := arena.Load("", 100)
	if err != nil {
		t.Fatalf("load geometry: %v", err)
	}
	world := physics.NewWorld(geo, config.DefaultPhysics())
	cfg := config.DefaultMatch()
	cfg.MatchDurationMS = 60_000
	cfg.RespawnDelayMS = 100
	sink := &recordingSink{}
	return NewEngine("shooter_test", cfg, geo, world, sink), sink
}

func joinTwo(t *testing.T, e *Engine) (*Player, *Player) {
	t.Helper()
	a := NewPlayer("a", "Alice", "", "", false, "", 0)
	b := NewPlayer("b", "Bob", "", "", false, "", 0)
	e.AddPlayer(a, arena.Vec3{X: -10, Z: 0})
	e.AddPlayer(b, arena.Vec3{X: 10, Z: 0})
	if e.Phase() != PhaseCountdown {
		t.Fatalf("expected countdown after 2nd join, got %s", e.Phase())
	}
	if err := e.StartMatch(time.Now()); err != nil {
		t.Fatalf("start match: %v", err)
	}
	return a, b
}

func TestSecondJoinStartsCountdownAndMatch(t *testing.T) {
	e, _ := testEngine(t)
	joinTwo(t, e)
	if e.Phase() != PhaseActive {
		t.Fatalf("expected active after StartMatch, got %s", e.Phase())
	}
}

func TestMutualKillCreditsBothShooters(t *testing.T) {
	e, sink := testEngine(t)
	a, b := joinTwo(t, e)
	a.Health, b.Health = 10, 10
	a.Weapon, b.Weapon = "pistol", "pistol"
	a.Ammo, b.Ammo = 5, 5

	e.Actions().Shoot(a.ID, headingTo(b.X-a.X, b.Z-a.Z), 1.0)
	e.Actions().Shoot(b.ID, headingTo(a.X-b.X, a.Z-b.Z), 1.0)

	e.mu.Lock()
	e.tickActive(time.Now())
	e.mu.Unlock()

	if a.Deaths != 1 || b.Deaths != 1 {
		t.Fatalf("expected both players to die, got a.Deaths=%d b.Deaths=%d", a.Deaths, b.Deaths)
	}
	if a.Kills != 1 || b.Kills != 1 {
		t.Fatalf("expected both players credited a kill, got a.Kills=%d b.Kills=%d", a.Kills, b.Kills)
	}

	hits := 0
	for _, ev := range sink.events {
		if ev.Type == EventHit {
			hits++
		}
	}
	if hits != 2 {
		t.Fatalf("expected 2 hit events, got %d", hits)
	}
}

func TestAmmoExhaustionDowngradesAndSpawnsPickup(t *testing.T) {
	e, _ := testEngine(t)
	a, b := joinTwo(t, e)
	a.Weapon = "pistol"
	a.Ammo = 1
	b.X, b.Z = 1000, 1000 // out of range, so the shot always misses

	before := len(e.pickups)
	e.Actions().Shoot(a.ID, 0, 1.0)
	e.mu.Lock()
	e.tickActive(time.Now())
	e.mu.Unlock()

	if a.Weapon != "knife" || a.Ammo != -1 {
		t.Fatalf("expected downgrade to knife with unlimited ammo, got weapon=%s ammo=%d", a.Weapon, a.Ammo)
	}
	if len(e.pickups) != before+1 {
		t.Fatalf("expected a replacement pickup to spawn, had %d now %d", before, len(e.pickups))
	}
}

func TestDeadPlayerRespawnsAfterDelay(t *testing.T) {
	e, _ := testEngine(t)
	a, _ := joinTwo(t, e)
	a.Health, a.Lives = 0, 2
	a.Alive = false
	a.DiedAtMs = 0

	e.mu.Lock()
	e.lastTickAt = time.UnixMilli(0)
	e.tickActive(time.UnixMilli(200))
	e.mu.Unlock()

	if !a.Alive {
		t.Fatal("expected player to respawn after RespawnDelayMS elapsed")
	}
	if a.Health != 100 || a.Weapon != "knife" {
		t.Fatalf("expected full health and knife on respawn, got health=%d weapon=%s", a.Health, a.Weapon)
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	players := []*Player{
		{ID: "x", SurvivalTime: 10, Kills: 1},
		{ID: "y", SurvivalTime: 20, Kills: 0},
		{ID: "z", SurvivalTime: 20, Kills: 3},
	}
	board := buildLeaderboard(players)
	if board[0].ID != "z" || board[1].ID != "y" || board[2].ID != "x" {
		t.Fatalf("unexpected leaderboard order: %+v", board)
	}
}

func headingTo(dx, dz float64) float64 {
	// angle convention matches the physics world: 0 = +Z, dir = (sin, cos).
	return math.Atan2(dx, dz)
}
