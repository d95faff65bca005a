// Package combat holds the static weapon table and the pure damage/LOS rules
// the match engine applies every tick: canFire, consumeAmmo, resolveShot,
// applyDamage. Nothing here touches Player or Match directly, everything is
// value-in, value-out so it can be tested without a running match.
package combat

// Weapon is a static row in the weapon stats table.
type Weapon struct {
	ID          string
	Damage      int
	FireRateMs  int
	RangeWorld  float64
	AmmoCap     int // Unlimited (-1) means unlimited (only true for knife)
	IsMelee     bool
	SpreadRad   float64
	Pellets     int
}

// Unlimited marks a weapon's ammo capacity (and a player's current ammo) as
// unbounded. Only the knife ever carries this value.
const Unlimited = -1

// Weapons is the static table keyed by weapon id.
var Weapons = map[string]Weapon{
	"knife": {
		ID:         "knife",
		Damage:     34,
		FireRateMs: 400,
		RangeWorld: 2.0,
		AmmoCap:    Unlimited,
		IsMelee:    true,
		SpreadRad:  0,
		Pellets:    1,
	},
	"pistol": {
		ID:         "pistol",
		Damage:     18,
		FireRateMs: 350,
		RangeWorld: 30,
		AmmoCap:    12,
		SpreadRad:  0.02,
		Pellets:    1,
	},
	"smg": {
		ID:         "smg",
		Damage:     12,
		FireRateMs: 120,
		RangeWorld: 22,
		AmmoCap:    30,
		SpreadRad:  0.05,
		Pellets:    1,
	},
	"shotgun": {
		ID:         "shotgun",
		Damage:     9,
		FireRateMs: 900,
		RangeWorld: 12,
		AmmoCap:    8,
		SpreadRad:  0.18,
		Pellets:    8,
	},
	"assault_rifle": {
		ID:         "assault_rifle",
		Damage:     16,
		FireRateMs: 180,
		RangeWorld: 35,
		AmmoCap:    25,
		SpreadRad:  0.035,
		Pellets:    1,
	},
}

// GetWeapon returns a weapon by id, defaulting to the knife for unknown ids,
// the knife is the only weapon with no ammo gate, so it is always a safe
// fallback (mirrors the "downgrade to knife" rule applied on ammo exhaustion).
func GetWeapon(id string) Weapon {
	if w, ok := Weapons[id]; ok {
		return w
	}
	return Weapons["knife"]
}
