// Package match implements the authoritative match engine: the fixed-tick
// simulation loop, player and pickup state, the pending-action intake, and
// the spectator/per-agent snapshot views. Everything here runs on a single
// tick goroutine; gateway and bot code only ever reach it through Snapshot
// reads and ActionQueue writes.
package match

import "arena-shooter/internal/combat"

// Player is the only mutable entity of real significance. X, Y, Z are world
// position with Y held at the capsule's floor offset; Angle is heading in
// radians, 0 = +Z and pi/2 = +X (direction (sin Angle, cos Angle)), matching
// the physics world's convention.
type Player struct {
	ID             string
	DisplayName    string
	StrategyTag    string
	CharacterID    string
	IsAI           bool
	PersonalityTag string

	X, Y, Z float64
	Angle   float64
	Moving  bool

	Weapon string
	Ammo   int
	Health int
	Lives  int

	Alive      bool
	Eliminated bool

	Kills        int
	Deaths       int
	SurvivalTime float64 // seconds accumulated across all lives
	AliveSinceMs int64
	DiedAtMs     int64

	LastShotMs int64
}

// NewPlayer constructs a freshly joined player at full health with the
// starting knife, ready to be teleported onto a spawn point.
func NewPlayer(id, displayName, strategyTag, characterID string, isAI bool, personalityTag string, nowMs int64) *Player {
	return &Player{
		ID:             id,
		DisplayName:    displayName,
		StrategyTag:    strategyTag,
		CharacterID:    characterID,
		IsAI:           isAI,
		PersonalityTag: personalityTag,
		Weapon:         "knife",
		Ammo:           combat.Unlimited,
		Health:         100,
		Lives:          3,
		Alive:          true,
		AliveSinceMs:   nowMs,
	}
}

// SpawnAt places the player's pose without touching combat/score state,
// used for the initial spawn and for teleporting the physics body; the
// caller is responsible for the matching physics.World.Teleport call.
func (p *Player) SpawnAt(x, y, z float64) {
	p.X, p.Y, p.Z = x, y, z
}

// DowngradeToKnife resets the weapon to the unlimited-ammo knife, applied
// the same tick a weapon's ammo counter reaches zero.
func (p *Player) DowngradeToKnife() {
	p.Weapon = "knife"
	p.Ammo = combat.Unlimited
}

// Equip switches weapon and fills ammo to capacity, used on pickup.
func (p *Player) Equip(weaponID string) {
	w := combat.GetWeapon(weaponID)
	p.Weapon = w.ID
	p.Ammo = w.AmmoCap
}

// AccrueSurvival adds elapsed wall-clock seconds to the running total while
// the player is alive; called once per tick with the tick's dt.
func (p *Player) AccrueSurvival(dtSeconds float64) {
	if p.Alive {
		p.SurvivalTime += dtSeconds
	}
}

// Kill marks the player dead: decrements lives, marks eliminated at zero,
// stamps diedAt, and leaves health at zero. Returns whether this death
// eliminates the player for the rest of the match.
func (p *Player) Kill(nowMs int64, result combat.DamageResult) (eliminated bool) {
	p.Health = result.NewHealth
	p.Lives = result.NewLives
	p.Alive = false
	p.Eliminated = result.Eliminated
	p.Deaths++
	p.DiedAtMs = nowMs
	return p.Eliminated
}

// Respawn revives the player at the given point: full health, knife,
// unlimited ammo, alive, a fresh aliveSince stamp.
func (p *Player) Respawn(x, y, z float64, nowMs int64) {
	p.SpawnAt(x, y, z)
	p.Health = 100
	p.DowngradeToKnife()
	p.Alive = true
	p.AliveSinceMs = nowMs
}

// InMatch reports whether the player can still take part (not eliminated).
func (p *Player) InMatch() bool {
	return !p.Eliminated
}

// Score is the leaderboard/snapshot scalar, kills weighted at 100 each.
func (p *Player) Score() int {
	return p.Kills * 100
}
