package combat

import (
	"math/rand"
	"testing"
)

func clearRay(ox, oz, angle, maxLen float64) (float64, bool) { return 0, false }

func blockedAt(dist float64) RayCaster {
	return func(ox, oz, angle, maxLen float64) (float64, bool) {
		if maxLen >= dist {
			return dist, true
		}
		return 0, false
	}
}

func TestCanFireGatesOnCooldownAndAmmo(t *testing.T) {
	pistol := GetWeapon("pistol")
	if CanFire(pistol, 0, 0, 100) {
		t.Fatal("expected CanFire to be false with zero ammo")
	}
	if CanFire(pistol, 5, 1000, 1100) {
		t.Fatal("expected CanFire to be false within cooldown")
	}
	if !CanFire(pistol, 5, 1000, 1000+int64(pistol.FireRateMs)) {
		t.Fatal("expected CanFire to be true once cooldown elapses with ammo")
	}
}

func TestConsumeAmmoKnifeUnlimited(t *testing.T) {
	knife := GetWeapon("knife")
	if ConsumeAmmo(knife, Unlimited) != Unlimited {
		t.Fatal("expected knife ammo to remain unlimited")
	}
}

func TestConsumeAmmoClampsAtZero(t *testing.T) {
	pistol := GetWeapon("pistol")
	if got := ConsumeAmmo(pistol, 0); got != 0 {
		t.Fatalf("expected clamped ammo 0, got %d", got)
	}
	if got := ConsumeAmmo(pistol, 1); got != 0 {
		t.Fatalf("expected ammo to drop to 0, got %d", got)
	}
}

func TestResolveShotHitsInRangeTarget(t *testing.T) {
	pistol := GetWeapon("pistol")
	targets := []Target{{ID: "b", X: 0, Z: 20, Radius: 0.5, Alive: true}}
	pellets := ResolveShot(0, 0, 0, 0, pistol, 1.0, "a", targets, clearRay, rand.New(rand.NewSource(1)))
	if len(pellets) != 1 || !pellets[0].Hit || pellets[0].VictimID != "b" {
		t.Fatalf("expected a hit on b, got %+v", pellets)
	}
}

func TestResolveShotBlockedByLOS(t *testing.T) {
	pistol := GetWeapon("pistol")
	targets := []Target{{ID: "b", X: 0, Z: 20, Radius: 0.5, Alive: true}}
	pellets := ResolveShot(0, 0, 0, 0, pistol, 1.0, "a", targets, blockedAt(10), rand.New(rand.NewSource(1)))
	if pellets[0].Hit {
		t.Fatalf("expected shot blocked by LOS to miss, got %+v", pellets[0])
	}
}

func TestResolveShotIgnoresSelfAndDead(t *testing.T) {
	pistol := GetWeapon("pistol")
	targets := []Target{
		{ID: "a", X: 0, Z: 5, Radius: 0.5, Alive: true},
		{ID: "b", X: 0, Z: 10, Radius: 0.5, Alive: false},
	}
	pellets := ResolveShot(0, 0, 0, 0, pistol, 1.0, "a", targets, clearRay, rand.New(rand.NewSource(1)))
	if pellets[0].Hit {
		t.Fatalf("expected no hit (self excluded, other dead), got %+v", pellets[0])
	}
}

func TestApplyDamageKillAndEliminate(t *testing.T) {
	r := ApplyDamage(10, 1, 20)
	if !r.Killed || !r.Eliminated || r.NewLives != 0 {
		t.Fatalf("expected killed+eliminated with 0 lives, got %+v", r)
	}
}

func TestApplyDamageSurvives(t *testing.T) {
	r := ApplyDamage(50, 3, 20)
	if r.Killed || r.NewHealth != 30 {
		t.Fatalf("expected survive at 30hp, got %+v", r)
	}
}
