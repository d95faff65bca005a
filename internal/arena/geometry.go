// Package arena parses the static map asset once at startup and produces the
// immutable geometry the physics world and bot AI collide and query against.
package arena

import (
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// Vec3 is a world-space point or direction.
type Vec3 struct {
	X, Y, Z float64
}

// AABB is an axis-aligned bounding box in world space.
type AABB struct {
	Min, Max Vec3
}

// Contains reports whether point p lies within the box, expanded by margin on
// every side (a negative margin shrinks the box).
func (b AABB) Contains(p Vec3, margin float64) bool {
	return p.X >= b.Min.X-margin && p.X <= b.Max.X+margin &&
		p.Z >= b.Min.Z-margin && p.Z <= b.Max.Z+margin
}

// Triangle is a raycast primitive in world space.
type Triangle struct {
	A, B, C Vec3
}

// Geometry is the immutable static arena produced once at startup.
// Consumers (physics, bot AI) only ever read it; it is never mutated after Load.
type Geometry struct {
	Triangles   []Triangle
	Buildings   []AABB
	Perimeter   []AABB
	SpawnPoints []Vec3
	MinX, MaxX  float64
	MinZ, MaxZ  float64
}

const (
	wallThickness = 1.0
	wallHeight    = 5.0
)

// Load parses the glTF map at path and produces a Geometry rescaled to fit
// arenaSize. If path is empty or unreadable, a perimeter-only geometry is
// returned with a warning logged, the core can still run with no buildings.
// If the file exists but contains no mesh primitives, Load fails: there is no
// sane fallback for a map asset that was supposed to have geometry.
func Load(path string, arenaSize float64) (*Geometry, error) {
	half := arenaSize / 2

	if path == "" {
		log.Printf("⚠️ no arena map path configured, using perimeter-only geometry")
		return perimeterOnly(half), nil
	}

	doc, err := gltf.Open(path)
	if err != nil {
		log.Printf("⚠️ arena map %q unreadable (%v), using perimeter-only geometry", path, err)
		return perimeterOnly(half), nil
	}

	rawVerts, spawnMarkers, err := walkScene(doc)
	if err != nil {
		return nil, fmt.Errorf("arena: walking scene graph: %w", err)
	}
	if len(rawVerts) == 0 {
		return nil, fmt.Errorf("arena: map %q contains no mesh primitives", path)
	}

	scale, offsetX, offsetZ := fitTransform(rawVerts, arenaSize)

	g := &Geometry{
		MinX: -half, MaxX: half,
		MinZ: -half, MaxZ: half,
	}

	for _, mesh := range groupByMesh(rawVerts) {
		box := boundsOf(mesh)
		transformed := AABB{
			Min: transformPoint(box.Min, scale, offsetX, offsetZ),
			Max: transformPoint(box.Max, scale, offsetX, offsetZ),
		}
		normalizeBox(&transformed)

		switch classify(box, arenaSize) {
		case classFloor:
			// discarded for collision
		case classClutter:
			// discarded for collision
		case classBuilding:
			g.Buildings = append(g.Buildings, transformed)
			g.Triangles = append(g.Triangles, trianglesFor(transformed)...)
		}
	}

	seen := make(map[Vec3]bool)
	for _, m := range spawnMarkers {
		p := transformPoint(m, scale, offsetX, offsetZ)
		if !seen[p] {
			seen[p] = true
			g.SpawnPoints = append(g.SpawnPoints, p)
		}
	}

	g.Perimeter = perimeterWalls(half)
	for _, wall := range g.Perimeter {
		g.Triangles = append(g.Triangles, trianglesFor(wall)...)
	}

	if len(g.SpawnPoints) == 0 {
		log.Printf("⚠️ arena map %q declares no spawn points, falling back to corners", path)
		g.SpawnPoints = cornerSpawns(half)
	}

	return g, nil
}

func perimeterOnly(half float64) *Geometry {
	g := &Geometry{
		MinX: -half, MaxX: half,
		MinZ: -half, MaxZ: half,
		Perimeter:   perimeterWalls(half),
		SpawnPoints: cornerSpawns(half),
	}
	for _, wall := range g.Perimeter {
		g.Triangles = append(g.Triangles, trianglesFor(wall)...)
	}
	return g
}

func perimeterWalls(half float64) []AABB {
	return []AABB{
		{Min: Vec3{-half - wallThickness, 0, -half - wallThickness}, Max: Vec3{half + wallThickness, wallHeight, -half}},
		{Min: Vec3{-half - wallThickness, 0, half}, Max: Vec3{half + wallThickness, wallHeight, half + wallThickness}},
		{Min: Vec3{-half - wallThickness, 0, -half}, Max: Vec3{-half, wallHeight, half}},
		{Min: Vec3{half, 0, -half}, Max: Vec3{half + wallThickness, wallHeight, half}},
	}
}

func cornerSpawns(half float64) []Vec3 {
	inset := half * 0.8
	return []Vec3{
		{X: -inset, Y: 0, Z: -inset},
		{X: inset, Y: 0, Z: -inset},
		{X: -inset, Y: 0, Z: inset},
		{X: inset, Y: 0, Z: inset},
	}
}

func trianglesFor(b AABB) []Triangle {
	corners := [8]Vec3{
		{b.Min.X, b.Min.Y, b.Min.Z}, {b.Max.X, b.Min.Y, b.Min.Z},
		{b.Max.X, b.Min.Y, b.Max.Z}, {b.Min.X, b.Min.Y, b.Max.Z},
		{b.Min.X, b.Max.Y, b.Min.Z}, {b.Max.X, b.Max.Y, b.Min.Z},
		{b.Max.X, b.Max.Y, b.Max.Z}, {b.Min.X, b.Max.Y, b.Max.Z},
	}
	faces := [6][4]int{
		{0, 1, 2, 3}, {4, 5, 6, 7}, {0, 1, 5, 4},
		{2, 3, 7, 6}, {1, 2, 6, 5}, {0, 3, 7, 4},
	}
	tris := make([]Triangle, 0, 12)
	for _, f := range faces {
		tris = append(tris, Triangle{corners[f[0]], corners[f[1]], corners[f[2]]})
		tris = append(tris, Triangle{corners[f[0]], corners[f[2]], corners[f[3]]})
	}
	return tris
}

type meshClass int

const (
	classFloor meshClass = iota
	classClutter
	classBuilding
)

// classify implements the floor/clutter/building rule from the arena
// geometry contract, evaluated on the box in its pre-rescale (raw) units.
func classify(box AABB, arenaSize float64) meshClass {
	height := box.Max.Y - box.Min.Y
	spanX := box.Max.X - box.Min.X
	spanZ := box.Max.Z - box.Min.Z

	if height < 0.5 && spanX > 0.6*arenaSize && spanZ > 0.6*arenaSize {
		return classFloor
	}
	if height < 2.0 || spanX < 2.0 || spanZ < 2.0 || spanX > 0.5*arenaSize || spanZ > 0.5*arenaSize {
		return classClutter
	}
	return classBuilding
}

// mat4 is a column-major 4x4 transform, matching glTF's convention.
type mat4 [16]float64

func identity() mat4 {
	return mat4{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
}

func mul(a, b mat4) mat4 {
	var r mat4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += a[k*4+row] * b[col*4+k]
			}
			r[col*4+row] = sum
		}
	}
	return r
}

func apply(m mat4, v Vec3) Vec3 {
	x := m[0]*v.X + m[4]*v.Y + m[8]*v.Z + m[12]
	y := m[1]*v.X + m[5]*v.Y + m[9]*v.Z + m[13]
	z := m[2]*v.X + m[6]*v.Y + m[10]*v.Z + m[14]
	return Vec3{x, y, z}
}

func nodeLocalMatrix(n *gltf.Node) mat4 {
	if n.Matrix != gltf.DefaultMatrix && n.Matrix != [16]float64{} {
		return mat4(n.Matrix)
	}
	t, r, s := n.Translation, n.Rotation, n.Scale
	if t == [3]float64{} {
		t = [3]float64{0, 0, 0}
	}
	if s == [3]float64{} {
		s = [3]float64{1, 1, 1}
	}
	// Build scale * rotation(quat) * translation in the glTF TRS order.
	qx, qy, qz, qw := r[0], r[1], r[2], r[3]
	if qx == 0 && qy == 0 && qz == 0 && qw == 0 {
		qw = 1
	}
	rot := mat4{
		1 - 2*(qy*qy+qz*qz), 2 * (qx*qy + qz*qw), 2 * (qx*qz - qy*qw), 0,
		2 * (qx*qy - qz*qw), 1 - 2*(qx*qx+qz*qz), 2 * (qy*qz + qx*qw), 0,
		2 * (qx*qz + qy*qw), 2 * (qy*qz - qx*qw), 1 - 2*(qx*qx+qy*qy), 0,
		0, 0, 0, 1,
	}
	scale := mat4{s[0], 0, 0, 0, 0, s[1], 0, 0, 0, 0, s[2], 0, 0, 0, 0, 1}
	trans := identity()
	trans[12], trans[13], trans[14] = t[0], t[1], t[2]
	return mul(trans, mul(rot, scale))
}

type meshVertex struct {
	meshKey int
	pos     Vec3
}

// walkScene accumulates world transforms down the node tree and collects
// every mesh primitive's POSITION accessor plus any spawn marker nodes.
func walkScene(doc *gltf.Document) ([]meshVertex, []Vec3, error) {
	var verts []meshVertex
	var spawns []Vec3
	meshKey := 0

	var visit func(nodeIdx uint32, parent mat4) error
	visit = func(nodeIdx uint32, parent mat4) error {
		if int(nodeIdx) >= len(doc.Nodes) {
			return fmt.Errorf("node index %d out of range", nodeIdx)
		}
		node := doc.Nodes[nodeIdx]
		world := mul(parent, nodeLocalMatrix(node))

		if isSpawnName(node.Name) {
			spawns = append(spawns, apply(world, Vec3{}))
		}

		if node.Mesh != nil {
			mesh := doc.Meshes[*node.Mesh]
			for _, prim := range mesh.Primitives {
				posIdx, ok := prim.Attributes[gltf.POSITION]
				if !ok {
					continue
				}
				positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
				if err != nil {
					return fmt.Errorf("reading positions: %w", err)
				}
				meshKey++
				for _, p := range positions {
					wp := apply(world, Vec3{float64(p[0]), float64(p[1]), float64(p[2])})
					verts = append(verts, meshVertex{meshKey: meshKey, pos: wp})
				}
			}
		}

		for _, child := range node.Children {
			if err := visit(child, world); err != nil {
				return err
			}
		}
		return nil
	}

	if len(doc.Scenes) == 0 {
		return nil, nil, nil
	}
	scene := doc.Scenes[0]
	if doc.Scene != nil {
		scene = doc.Scenes[*doc.Scene]
	}
	for _, root := range scene.Nodes {
		if err := visit(root, identity()); err != nil {
			return nil, nil, err
		}
	}
	return verts, spawns, nil
}

func isSpawnName(name string) bool {
	n := strings.ToLower(name)
	return strings.HasPrefix(n, "player_spawn_") || strings.HasPrefix(n, "spawn_")
}

func groupByMesh(verts []meshVertex) map[int][]Vec3 {
	groups := make(map[int][]Vec3)
	for _, v := range verts {
		groups[v.meshKey] = append(groups[v.meshKey], v.pos)
	}
	return groups
}

func boundsOf(points []Vec3) AABB {
	b := AABB{Min: Vec3{math.Inf(1), math.Inf(1), math.Inf(1)}, Max: Vec3{math.Inf(-1), math.Inf(-1), math.Inf(-1)}}
	for _, p := range points {
		b.Min.X, b.Max.X = math.Min(b.Min.X, p.X), math.Max(b.Max.X, p.X)
		b.Min.Y, b.Max.Y = math.Min(b.Min.Y, p.Y), math.Max(b.Max.Y, p.Y)
		b.Min.Z, b.Max.Z = math.Min(b.Min.Z, p.Z), math.Max(b.Max.Z, p.Z)
	}
	return b
}

// fitTransform derives the uniform rescale + re-centering offset from the
// combined span of every raw vertex, per the arena geometry contract.
func fitTransform(verts []meshVertex, arenaSize float64) (scale, offsetX, offsetZ float64) {
	var pts []Vec3
	for _, v := range verts {
		pts = append(pts, v.pos)
	}
	b := boundsOf(pts)
	spanX := b.Max.X - b.Min.X
	spanZ := b.Max.Z - b.Min.Z
	span := math.Max(spanX, math.Max(spanZ, 1e-6))
	scale = arenaSize / span
	centerX := (b.Min.X + b.Max.X) / 2
	centerZ := (b.Min.Z + b.Max.Z) / 2
	return scale, -centerX, -centerZ
}

func transformPoint(p Vec3, scale, offsetX, offsetZ float64) Vec3 {
	return Vec3{
		X: (p.X + offsetX) * scale,
		Y: p.Y * scale,
		Z: (p.Z + offsetZ) * scale,
	}
}

func normalizeBox(b *AABB) {
	if b.Min.X > b.Max.X {
		b.Min.X, b.Max.X = b.Max.X, b.Min.X
	}
	if b.Min.Y > b.Max.Y {
		b.Min.Y, b.Max.Y = b.Max.Y, b.Min.Y
	}
	if b.Min.Z > b.Max.Z {
		b.Min.Z, b.Max.Z = b.Max.Z, b.Min.Z
	}
}
