// Package spatial provides a cache-efficient spatial index used by the
// physics world to cull the building list before a precise collision or
// ray test over the XZ ground plane.
//
// The grid uses preallocated slices with integer indices (not pointers) to
// minimize GC pressure and maximize cache locality.
package spatial

import (
	"math"
)

// SpatialGrid provides O(1) average spatial queries via fixed-size cells
// over the XZ plane. Uses preallocated slices with entity indices (not
// pointers) for GC efficiency.
//
// Memory layout: cells are stored in row-major order (cells[row*cols+col]).
type SpatialGrid struct {
	cellSize    float64
	invCellSize float64 // 1/cellSize for faster division
	cols, rows  int
	cells       [][]uint32 // cells[row*cols+col] = list of entity indices
	scratch     []uint32   // reusable buffer for query results
	maxEntities int
}

// NewSpatialGrid creates a grid whose cells cover [0, arenaWidth) x
// [0, arenaDepth); positions outside that range are clamped into the edge
// cells. cellSize should equal the
// largest query radius for optimal performance. maxEntities preallocates
// cell capacity.
func NewSpatialGrid(arenaWidth, arenaDepth, cellSize float64, maxEntities int) *SpatialGrid {
	cols := int(math.Ceil(arenaWidth / cellSize))
	rows := int(math.Ceil(arenaDepth / cellSize))

	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	cells := make([][]uint32, cols*rows)
	avgPerCell := maxEntities / len(cells)
	if avgPerCell < 4 {
		avgPerCell = 4
	}
	for i := range cells {
		cells[i] = make([]uint32, 0, avgPerCell)
	}

	return &SpatialGrid{
		cellSize:    cellSize,
		invCellSize: 1.0 / cellSize,
		cols:        cols,
		rows:        rows,
		cells:       cells,
		scratch:     make([]uint32, 0, 64),
		maxEntities: maxEntities,
	}
}

// Insert adds an entity at world position (x, z). entityID should be the
// index into the caller's own slice (the physics world uses the building
// index). O(1).
func (g *SpatialGrid) Insert(entityID uint32, x, z float64) {
	idx := g.cellIndex(x, z)
	g.cells[idx] = append(g.cells[idx], entityID)
}

func (g *SpatialGrid) cellIndex(x, z float64) int {
	col := int(x * g.invCellSize)
	row := int(z * g.invCellSize)

	if col < 0 {
		col = 0
	}
	if col >= g.cols {
		col = g.cols - 1
	}
	if row < 0 {
		row = 0
	}
	if row >= g.rows {
		row = g.rows - 1
	}

	return row*g.cols + col
}

// QueryRadius returns all entity IDs potentially within radius of (cx, cz).
// Uses an internal scratch buffer to avoid allocation.
//
// IMPORTANT: the returned slice is reused on subsequent calls, copy it if
// it needs to outlive the next query.
//
// Candidates may lie outside the radius; the caller performs the precise
// distance / AABB check.
func (g *SpatialGrid) QueryRadius(cx, cz, radius float64) []uint32 {
	g.scratch = g.scratch[:0]

	minCol := int((cx - radius) * g.invCellSize)
	maxCol := int((cx + radius) * g.invCellSize)
	minRow := int((cz - radius) * g.invCellSize)
	maxRow := int((cz + radius) * g.invCellSize)

	if minCol < 0 {
		minCol = 0
	}
	if maxCol >= g.cols {
		maxCol = g.cols - 1
	}
	if minRow < 0 {
		minRow = 0
	}
	if maxRow >= g.rows {
		maxRow = g.rows - 1
	}
	// Insert clamps out-of-grid positions into the edge cells, so a query
	// lying wholly beyond an edge still scans that edge's cells.
	if maxCol < 0 {
		maxCol = 0
	}
	if minCol >= g.cols {
		minCol = g.cols - 1
	}
	if maxRow < 0 {
		maxRow = 0
	}
	if minRow >= g.rows {
		minRow = g.rows - 1
	}

	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			idx := row*g.cols + col
			g.scratch = append(g.scratch, g.cells[idx]...)
		}
	}

	return g.scratch
}
