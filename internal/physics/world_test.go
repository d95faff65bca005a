package physics

import (
	"testing"

	"arena-shooter/internal/arena"
	"arena-shooter/internal/config"
)

func testGeometry() *arena.Geometry {
	return &arena.Geometry{
		MinX: -50, MaxX: 50, MinZ: -50, MaxZ: 50,
		Buildings: []arena.AABB{
			{Min: arena.Vec3{X: -2, Y: 0, Z: 5}, Max: arena.Vec3{X: 2, Y: 5, Z: 25}},
		},
		Perimeter: []arena.AABB{
			{Min: arena.Vec3{X: -51, Y: 0, Z: -51}, Max: arena.Vec3{X: 51, Y: 5, Z: -50}},
		},
	}
}

func TestMoveCapsuleStoppedByBuilding(t *testing.T) {
	w := NewWorld(testGeometry(), config.DefaultPhysics())
	w.CreateCapsule("a", 0, 0)

	x, z := w.MoveCapsule("a", 0, 30)
	if z >= 5 {
		t.Fatalf("expected capsule to be stopped by building, got z=%v", z)
	}
	_ = x
}

func TestIsInsideBuilding(t *testing.T) {
	w := NewWorld(testGeometry(), config.DefaultPhysics())
	if !w.IsInsideBuilding(0, 10, 0.5) {
		t.Fatal("expected point inside building AABB to be detected")
	}
	if w.IsInsideBuilding(40, 40, 0.5) {
		t.Fatal("expected point far from buildings to be clear")
	}
}

func TestRayFirstHitBlockedByBuilding(t *testing.T) {
	w := NewWorld(testGeometry(), config.DefaultPhysics())
	_, hit := w.RayFirstHit(0, 0, 0, 40) // angle 0 = +Z
	if !hit {
		t.Fatal("expected ray toward +Z to hit the building")
	}
}

func TestRayFirstHitClear(t *testing.T) {
	w := NewWorld(testGeometry(), config.DefaultPhysics())
	_, hit := w.RayFirstHit(20, 20, 0, 10)
	if hit {
		t.Fatal("expected clear ray to report no hit")
	}
}

func TestTeleportAndRemove(t *testing.T) {
	w := NewWorld(testGeometry(), config.DefaultPhysics())
	w.CreateCapsule("a", 0, 0)
	w.Teleport("a", 10, 10)
	x, z, ok := w.Position("a")
	if !ok || x != 10 || z != 10 {
		t.Fatalf("expected teleport to (10,10), got (%v,%v,%v)", x, z, ok)
	}
	w.Remove("a")
	if _, _, ok := w.Position("a"); ok {
		t.Fatal("expected removed capsule to be gone")
	}
}
