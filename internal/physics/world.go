// Package physics owns one kinematic capsule per live player plus the static
// arena colliders, and exposes the moveCapsule/rayFirstHit/teleport/remove
// contract the match engine drives every tick. All exported methods are
// meant to be called only from the single tick goroutine, see the
// concurrency model in the package's design doc.
package physics

import (
	"math"

	"arena-shooter/internal/arena"
	"arena-shooter/internal/config"
	"arena-shooter/internal/physics/spatial"
)

// Body is one player's kinematic capsule.
type Body struct {
	X, Z float64
}

// World is the single kinematic-body world for one match.
type World struct {
	geo *arena.Geometry

	radius     float64
	halfHeight float64
	stepHeight float64
	floorY     float64

	bodies map[string]*Body

	// buildingGrid indexes geo.Buildings by center point. Buildings are
	// static for the life of a match, so this is built once in NewWorld and
	// never rebuilt; collides/RayFirstHit query it to cull the building list
	// before running the precise AABB test.
	buildingGrid   *spatial.SpatialGrid
	buildingHalfEx float64 // half the largest building's diagonal, the query-radius pad
}

// NewWorld builds a physics world over the given static geometry.
func NewWorld(geo *arena.Geometry, cfg config.PhysicsConfig) *World {
	width := geo.MaxX - geo.MinX
	depth := geo.MaxZ - geo.MinZ
	if width <= 0 {
		width = 1
	}
	if depth <= 0 {
		depth = 1
	}

	w := &World{
		geo:        geo,
		radius:     cfg.CapsuleRadius,
		halfHeight: cfg.CapsuleHalfHeight,
		stepHeight: cfg.StepHeight,
		floorY:     cfg.FloorY,
		bodies:     make(map[string]*Body),
		buildingGrid: spatial.NewSpatialGrid(width, depth, math.Max(width, depth)/8,
			len(geo.Buildings)+1),
	}
	for i, b := range geo.Buildings {
		cx, cz := (b.Min.X+b.Max.X)/2, (b.Min.Z+b.Max.Z)/2
		w.buildingGrid.Insert(uint32(i), cx, cz)
		if half := math.Hypot(b.Max.X-b.Min.X, b.Max.Z-b.Min.Z) / 2; half > w.buildingHalfEx {
			w.buildingHalfEx = half
		}
	}
	return w
}

// CreateCapsule allocates a kinematic body at (x, floorY+halfHeight+radius, z).
// Fails silently on duplicate id, callers that need to reposition an
// existing player should call Teleport instead.
func (w *World) CreateCapsule(id string, x, z float64) {
	if _, exists := w.bodies[id]; exists {
		return
	}
	w.bodies[id] = &Body{X: x, Z: z}
}

// Remove deletes the body for id, if any.
func (w *World) Remove(id string) {
	delete(w.bodies, id)
}

// Teleport forces the body to (x, z), clearing any pending integration.
func (w *World) Teleport(id string, x, z float64) {
	b, exists := w.bodies[id]
	if !exists {
		w.CreateCapsule(id, x, z)
		return
	}
	b.X, b.Z = x, z
}

// Position returns the current XZ position of a body.
func (w *World) Position(id string) (x, z float64, ok bool) {
	b, exists := w.bodies[id]
	if !exists {
		return 0, 0, false
	}
	return b.X, b.Z, true
}

// MoveCapsule computes the collision-corrected displacement with sliding
// along walls and returns the resulting XZ position. Y is held constant.
func (w *World) MoveCapsule(id string, dx, dz float64) (x, z float64) {
	b, exists := w.bodies[id]
	if !exists {
		return 0, 0
	}

	// A displacement longer than the capsule radius is applied in halves,
	// recursively, so a single call cannot pass through a building.
	if w.radius > 0 && math.Hypot(dx, dz) > w.radius {
		w.MoveCapsule(id, dx/2, dz/2)
		return w.MoveCapsule(id, dx/2, dz/2)
	}

	// Try the full displacement first.
	nx, nz := b.X+dx, b.Z+dz
	if w.clampToBounds(&nx, &nz); !w.collides(nx, nz) {
		b.X, b.Z = nx, nz
		return b.X, b.Z
	}

	// Axis-decomposed slide: attempt each axis independently so movement
	// along a wall keeps the tangential component instead of stopping dead.
	slideX, slideZ := b.X, b.Z
	if tx := b.X + dx; !w.collides(tx, b.Z) {
		slideX = tx
	}
	if tz := b.Z + dz; !w.collides(slideX, tz) {
		slideZ = tz
	}
	w.clampToBounds(&slideX, &slideZ)
	if w.collides(slideX, slideZ) {
		// Both axes blocked (corner case); hold position.
		slideX, slideZ = b.X, b.Z
	}
	b.X, b.Z = slideX, slideZ
	return b.X, b.Z
}

func (w *World) clampToBounds(x, z *float64) {
	skin := w.radius
	if *x < w.geo.MinX+skin {
		*x = w.geo.MinX + skin
	}
	if *x > w.geo.MaxX-skin {
		*x = w.geo.MaxX - skin
	}
	if *z < w.geo.MinZ+skin {
		*z = w.geo.MinZ + skin
	}
	if *z > w.geo.MaxZ-skin {
		*z = w.geo.MaxZ - skin
	}
}

// collides reports whether a capsule centered at (x,z) would overlap any
// building AABB by more than the collider skin (the capsule radius). The
// building grid culls candidates to the cells within reach of (x,z) before
// the precise AABB test runs.
func (w *World) collides(x, z float64) bool {
	for _, idx := range w.buildingGrid.QueryRadius(x, z, w.radius+w.buildingHalfEx) {
		if w.geo.Buildings[idx].Contains(arena.Vec3{X: x, Z: z}, w.radius) {
			return true
		}
	}
	return false
}

// IsInsideBuilding reports whether a circle of the given radius at (x,z)
// overlaps any building AABB. Used for spawn/respawn point validation.
func (w *World) IsInsideBuilding(x, z, radius float64) bool {
	for _, idx := range w.buildingGrid.QueryRadius(x, z, radius+w.buildingHalfEx) {
		if w.geo.Buildings[idx].Contains(arena.Vec3{X: x, Z: z}, radius) {
			return true
		}
	}
	return false
}

// RayFirstHit casts a horizontal ray from (ox, oz) along angleRad (0 = +Z,
// increasing clockwise, matching the movement heading convention) and
// returns the distance to the first static collider hit, or ok=false if
// clear over maxLen.
func (w *World) RayFirstHit(ox, oz, angleRad, maxLen float64) (t float64, ok bool) {
	dx, dz := math.Sin(angleRad), math.Cos(angleRad)
	best := maxLen
	found := false

	// Cull buildings against the ray's bounding circle (midpoint, radius
	// half the ray length plus the largest building's half-diagonal) before
	// the exact slab test; buildings outside it cannot intersect the ray.
	midX, midZ := ox+dx*maxLen/2, oz+dz*maxLen/2
	cullRadius := maxLen/2 + w.buildingHalfEx
	for _, idx := range w.buildingGrid.QueryRadius(midX, midZ, cullRadius) {
		if ht, hit := rayAABB2D(ox, oz, dx, dz, w.geo.Buildings[idx], maxLen); hit && ht < best {
			best, found = ht, true
		}
	}
	for _, b := range w.geo.Perimeter {
		if ht, hit := rayAABB2D(ox, oz, dx, dz, b, maxLen); hit && ht < best {
			best, found = ht, true
		}
	}

	if !found {
		return 0, false
	}
	return best, true
}

// rayAABB2D intersects a ray against an AABB's XZ footprint using the slab
// method, ignoring Y (buildings are treated as infinitely tall for LOS).
func rayAABB2D(ox, oz, dx, dz float64, box arena.AABB, maxLen float64) (t float64, hit bool) {
	tmin, tmax := 0.0, maxLen

	if dx != 0 {
		t1 := (box.Min.X - ox) / dx
		t2 := (box.Max.X - ox) / dx
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
	} else if ox < box.Min.X || ox > box.Max.X {
		return 0, false
	}

	if dz != 0 {
		t1 := (box.Min.Z - oz) / dz
		t2 := (box.Max.Z - oz) / dz
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
	} else if oz < box.Min.Z || oz > box.Max.Z {
		return 0, false
	}

	if tmin > tmax || tmax < 0 {
		return 0, false
	}
	if tmin < 0 {
		tmin = 0
	}
	return tmin, true
}

// HasLineOfSight reports whether a straight line from (ox,oz) to (tx,tz) is
// unobstructed by any static collider. The bot brain does not call it; it
// computes line of sight from RayFirstHit through match.BotWorld.
func (w *World) HasLineOfSight(ox, oz, tx, tz float64) bool {
	dx, dz := tx-ox, tz-oz
	dist := math.Hypot(dx, dz)
	if dist < 1e-9 {
		return true
	}
	angle := math.Atan2(dx, dz)
	_, hit := w.RayFirstHit(ox, oz, angle, dist-0.01)
	return !hit
}

// Bounds returns the playable XZ bounds.
func (w *World) Bounds() (minX, maxX, minZ, maxZ float64) {
	return w.geo.MinX, w.geo.MaxX, w.geo.MinZ, w.geo.MaxZ
}
