package bot

import (
	"testing"

	"arena-shooter/internal/config"
	"arena-shooter/internal/match"
)

// clearWorld never reports a hit, every ray is unobstructed.
type clearWorld struct{}

func (clearWorld) RayFirstHit(ox, oz, angleRad, maxLen float64) (float64, bool) { return 0, false }
func (clearWorld) IsInsideBuilding(x, z, radius float64) bool                   { return false }

func newCtx(nowMs int64, players []*match.Player, pickups []*match.WeaponPickup, actions *match.ActionQueue) match.BotContext {
	return match.BotContext{
		NowMs: nowMs, DtSec: 0.05,
		Players: players, Pickups: pickups,
		World: clearWorld{}, Actions: actions,
	}
}

func newActions(ids ...string) *match.ActionQueue {
	q := match.NewActionQueue()
	for _, id := range ids {
		q.Register(id)
	}
	return q
}

func TestGetPersonalityDefaultsToTactical(t *testing.T) {
	if GetPersonality("not-a-real-tag").Tag != "tactical" {
		t.Fatal("expected unknown tag to default to tactical")
	}
	if GetPersonality("sniper").Tag != "sniper" {
		t.Fatal("expected known tag to round-trip")
	}
}

func TestBrainWandersWithNoEnemies(t *testing.T) {
	bot := newTestPlayer(t, "bot1", "berserker")
	actions := newActions("bot1")
	brain := NewBrain(config.DefaultBot(), config.DefaultMatch())

	brain.Step(newCtx(0, []*match.Player{bot}, nil, actions))

	set := actions.Drain("bot1")
	if set.Stop {
		t.Fatal("expected a bot alone in the arena to wander, not stop")
	}
	if set.Move == nil {
		t.Fatal("expected a wander move to be queued")
	}
}

func TestBrainShootsArmedEnemyInRange(t *testing.T) {
	bot := newTestPlayer(t, "bot1", "tactical")
	bot.Weapon = "pistol"
	bot.Ammo = 12
	enemy := newTestPlayer(t, "enemy1", "")
	enemy.X, enemy.Z = 5, 0

	actions := newActions("bot1", "enemy1")
	brain := NewBrain(config.DefaultBot(), config.DefaultMatch())

	brain.Step(newCtx(0, []*match.Player{bot, enemy}, nil, actions))

	set := actions.Drain("bot1")
	if set.Shoot == nil {
		t.Fatal("expected bot to shoot a visible in-range enemy")
	}
}

func TestBrainRushesUnarmedEnemyNearby(t *testing.T) {
	bot := newTestPlayer(t, "bot1", "berserker")
	enemy := newTestPlayer(t, "enemy1", "")
	enemy.X, enemy.Z = 3, 0

	actions := newActions("bot1", "enemy1")
	brain := NewBrain(config.DefaultBot(), config.DefaultMatch())

	brain.Step(newCtx(0, []*match.Player{bot, enemy}, nil, actions))

	set := actions.Drain("bot1")
	if set.Move == nil {
		t.Fatal("expected bot to close in on a nearby unarmed enemy")
	}
}

func TestBrainSeeksCloserPickupBeforeRushing(t *testing.T) {
	bot := newTestPlayer(t, "bot1", "tactical")
	enemy := newTestPlayer(t, "enemy1", "")
	enemy.X, enemy.Z = 3, 0
	pickup := match.NewPickup("pk1", "pistol", 1, 0, 0)

	actions := newActions("bot1", "enemy1")
	brain := NewBrain(config.DefaultBot(), config.DefaultMatch())

	brain.Step(newCtx(0, []*match.Player{bot, enemy}, []*match.WeaponPickup{pickup}, actions))

	set := actions.Drain("bot1")
	if set.Move == nil {
		t.Fatal("expected bot to move toward the nearer pickup")
	}
}

func TestBrainSkipsDeadBots(t *testing.T) {
	bot := newTestPlayer(t, "bot1", "tactical")
	bot.Alive = false
	actions := newActions("bot1")
	brain := NewBrain(config.DefaultBot(), config.DefaultMatch())

	brain.Step(newCtx(0, []*match.Player{bot}, nil, actions))

	set := actions.Drain("bot1")
	if set.Move != nil || set.Shoot != nil || set.Melee || set.Stop {
		t.Fatal("expected no action queued for a dead bot")
	}
}

// newTestPlayer is a tiny test helper building an AI player at the origin.
func newTestPlayer(t *testing.T, id, personality string) *match.Player {
	t.Helper()
	p := match.NewPlayer(id, id, "", "", true, personality, 0)
	return p
}
