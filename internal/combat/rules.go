package combat

import (
	"math"
	"math/rand"
)

// MeleeRange is the default melee contact range. The engine passes
// config.MatchConfig.MeleeRange (same default) to ResolveMelee, not this
// constant.
const MeleeRange = 2.0

// RayCaster matches the physics world's RayFirstHit signature, combat never
// imports the physics package directly, it is handed this capability so the
// two packages stay decoupled (see Design Notes on brain/engine cycles).
type RayCaster func(ox, oz, angleRad, maxLen float64) (t float64, hit bool)

// Target is the minimal read-only view resolveShot needs of a candidate
// victim. The match engine builds these from live Players.
type Target struct {
	ID     string
	X, Y, Z float64
	Radius float64
	Alive  bool
}

// Pellet describes the outcome of one fired pellet, whether or not it hit.
type Pellet struct {
	Hit      bool
	VictimID string
	Damage   int
	EndX, EndY, EndZ float64
}

// CanFire gates firing on cooldown and ammo. lastShotMs/nowMs are
// milliseconds on the same clock (match wall-clock since start).
func CanFire(w Weapon, ammo int, lastShotMs, nowMs int64) bool {
	if !w.IsMelee && ammo == 0 {
		return false
	}
	return nowMs-lastShotMs >= int64(w.FireRateMs)
}

// ConsumeAmmo decrements ammo for a shot, clamped at zero. Unlimited weapons
// (knife) are a no-op.
func ConsumeAmmo(w Weapon, ammo int) int {
	if w.AmmoCap == Unlimited {
		return Unlimited
	}
	if ammo <= 0 {
		return 0
	}
	return ammo - 1
}

// ResolveShot fires one pellet (or Pellets for a shotgun) from (originX,
// originY, originZ) along aimAngle, jittered by spread scaled by accuracy.
// For each pellet it finds the nearest living non-self target within range,
// inside the angular cone asin(radius/distance), and with clear LOS per
// rayFirstHit; damage applies once per pellet to the first qualifying
// target. A pellet that hits nothing produces a miss Pellet whose endpoint
// is at max range along the jittered aim, or at the first static collider
// rayFirstHit reports before that.
func ResolveShot(
	originX, originY, originZ, aimAngle float64,
	w Weapon,
	accuracy float64,
	shooterID string,
	targets []Target,
	rayFirstHit RayCaster,
	rng *rand.Rand,
) []Pellet {
	pellets := w.Pellets
	if pellets < 1 {
		pellets = 1
	}

	out := make([]Pellet, 0, pellets)
	for i := 0; i < pellets; i++ {
		jitter := w.SpreadRad * (2 - accuracy) * (rng.Float64()*2 - 1)
		angle := aimAngle + jitter
		out = append(out, fireOnePellet(originX, originY, originZ, angle, w, shooterID, targets, rayFirstHit))
	}
	return out
}

func fireOnePellet(
	originX, originY, originZ, angle float64,
	w Weapon,
	shooterID string,
	targets []Target,
	rayFirstHit RayCaster,
) Pellet {
	dirX, dirZ := math.Sin(angle), math.Cos(angle)

	bestDist := math.Inf(1)
	var bestTarget *Target

	for i := range targets {
		t := &targets[i]
		if t.ID == shooterID || !t.Alive {
			continue
		}
		dx, dz := t.X-originX, t.Z-originZ
		dist := math.Hypot(dx, dz)
		if dist > w.RangeWorld || dist < 1e-6 {
			continue
		}

		toTargetAngle := math.Atan2(dx, dz)
		angleDiff := normalizeAngle(toTargetAngle - angle)
		cone := math.Asin(math.Min(1, t.Radius/dist))
		if math.Abs(angleDiff) > cone {
			continue
		}

		if !w.IsMelee {
			if _, hit := rayFirstHit(originX, originZ, angle, dist); hit {
				continue // blocked LOS
			}
		}

		if dist < bestDist {
			bestDist, bestTarget = dist, t
		}
	}

	if bestTarget != nil {
		return Pellet{
			Hit:      true,
			VictimID: bestTarget.ID,
			Damage:   w.Damage,
			EndX:     bestTarget.X, EndY: bestTarget.Y, EndZ: bestTarget.Z,
		}
	}

	endX := originX + dirX*w.RangeWorld
	endZ := originZ + dirZ*w.RangeWorld
	if rayFirstHit != nil {
		if t, hit := rayFirstHit(originX, originZ, angle, w.RangeWorld); hit {
			endX = originX + dirX*t
			endZ = originZ + dirZ*t
		}
	}
	return Pellet{Hit: false, EndX: endX, EndY: originY, EndZ: endZ}
}

// ResolveMelee finds the nearest living non-self target whose center lies
// within rangeWorld plus the target's radius, with no angular or line-of-sight constraint (melee is a 360° contact
// check, per the weapon-rules contract). Returns a miss Pellet if nothing
// qualifies.
func ResolveMelee(originX, originY, originZ float64, shooterID string, targets []Target, damage int, rangeWorld float64) Pellet {
	bestDist := math.Inf(1)
	var bestTarget *Target

	for i := range targets {
		t := &targets[i]
		if t.ID == shooterID || !t.Alive {
			continue
		}
		dist := math.Hypot(t.X-originX, t.Z-originZ)
		if dist > rangeWorld+t.Radius {
			continue
		}
		if dist < bestDist {
			bestDist, bestTarget = dist, t
		}
	}

	if bestTarget == nil {
		return Pellet{Hit: false, EndX: originX, EndY: originY, EndZ: originZ}
	}
	return Pellet{
		Hit: true, VictimID: bestTarget.ID, Damage: damage,
		EndX: bestTarget.X, EndY: bestTarget.Y, EndZ: bestTarget.Z,
	}
}

// normalizeAngle normalizes an angle to the range [-π, π] using O(1) modulo
// arithmetic.
func normalizeAngle(angle float64) float64 {
	const twoPi = 2 * math.Pi
	angle = math.Mod(angle, twoPi)
	if angle < 0 {
		angle += twoPi
	}
	if angle > math.Pi {
		angle -= twoPi
	}
	return angle
}

// DamageResult reports the effect of applying damage to a victim.
type DamageResult struct {
	Killed     bool
	Eliminated bool
	NewHealth  int
	NewLives   int
}

// ApplyDamage decrements health and, on reaching zero, marks the kill: lives
// decrement, deaths increment by the caller, eliminated is set once lives
// hits zero. health/lives are the victim's values before this hit.
func ApplyDamage(health, lives, damage int) DamageResult {
	newHealth := health - damage
	if newHealth > 0 {
		return DamageResult{NewHealth: newHealth, NewLives: lives}
	}

	newLives := lives - 1
	if newLives < 0 {
		newLives = 0
	}
	return DamageResult{
		Killed:     true,
		Eliminated: newLives == 0,
		NewHealth:  0,
		NewLives:   newLives,
	}
}
