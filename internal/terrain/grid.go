package terrain

import (
	"math"
	"sync"

	"forefront/arena/internal/geom"
)

// CellState describes a single grid cell. Absent cells are air.
type CellState struct {
	Present bool
}

// Cell addresses a grid cell by column and row. Row 0 is the top row.
type Cell struct {
	Col int `json:"col"`
	Row int `json:"row"`
}

// Grid owns the destructible height field for a match.
type Grid struct {
	mu       sync.RWMutex
	columns  int
	rows     int
	cellSize float64
	origin   geom.Vec3
	cells    []CellState
	heights  []float64
	present  int
	seed     int64
	params   GeneratorParams
}

func newGrid(columns, rows int, cellSize float64, origin geom.Vec3) *Grid {
	return &Grid{
		columns:  columns,
		rows:     rows,
		cellSize: cellSize,
		origin:   origin,
		cells:    make([]CellState, columns*rows),
		heights:  make([]float64, columns),
	}
}

// NewFlatGrid builds a grid whose columns are solid from surfaceRow down. It is
// used by tooling and tests that need predictable geometry.
func NewFlatGrid(columns, rows int, cellSize float64, surfaceRow int) (*Grid, error) {
	if columns <= 0 || rows <= 0 || !(cellSize > 0) {
		return nil, ErrInvalidDimensions
	}
	grid := newGrid(columns, rows, cellSize, geom.Vec3{})
	grid.params = DefaultGeneratorParams()
	for col := 0; col < columns; col++ {
		grid.heights[col] = float64(surfaceRow) - 1
		for row := surfaceRow; row < rows; row++ {
			if row < 0 {
				continue
			}
			grid.cells[grid.index(col, row)] = CellState{Present: true}
			grid.present++
		}
	}
	return grid, nil
}

func (g *Grid) index(col, row int) int { return col*g.rows + row }

func (g *Grid) inBounds(col, row int) bool {
	return col >= 0 && col < g.columns && row >= 0 && row < g.rows
}

// Columns reports the grid width in cells.
func (g *Grid) Columns() int { return g.columns }

// Rows reports the grid height in cells.
func (g *Grid) Rows() int { return g.rows }

// CellSize reports the world size of one cell edge.
func (g *Grid) CellSize() float64 { return g.cellSize }

// Seed reports the seed the grid was generated from.
func (g *Grid) Seed() int64 { return g.seed }

// Params reports the generator tuning used to build the grid.
func (g *Grid) Params() GeneratorParams { return g.params }

// Heights returns a copy of the generated height line per column.
func (g *Grid) Heights() []float64 {
	return append([]float64(nil), g.heights...)
}

// IsPresent reports whether the cell is solid. Out-of-range coordinates are air.
func (g *Grid) IsPresent(col, row int) bool {
	if g == nil || !g.inBounds(col, row) {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cells[g.index(col, row)].Present
}

// PresentCount reports how many solid cells remain.
func (g *Grid) PresentCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.present
}

// CellCenter converts grid coordinates to the world-space centre of the cell.
func (g *Grid) CellCenter(col, row int) geom.Vec3 {
	return geom.Vec3{
		X: g.origin.X + float64(col)*g.cellSize,
		Y: g.origin.Y + float64(g.rows-1-row)*g.cellSize,
		Z: g.origin.Z,
	}
}

// Bounds reports the world-space extent covered by the grid cell centres.
func (g *Grid) Bounds() (min, max geom.Vec3) {
	min = g.CellCenter(0, g.rows-1)
	max = g.CellCenter(g.columns-1, 0)
	return min, max
}

// ColumnAt maps a world X coordinate to the nearest column, clamped to the grid.
func (g *Grid) ColumnAt(x float64) int {
	col := int(math.Round((x - g.origin.X) / g.cellSize))
	if col < 0 {
		return 0
	}
	if col >= g.columns {
		return g.columns - 1
	}
	return col
}

// CellAt maps a world position to the cell that contains it.
func (g *Grid) CellAt(pos geom.Vec3) (Cell, bool) {
	col := int(math.Round((pos.X - g.origin.X) / g.cellSize))
	row := g.rows - 1 - int(math.Round((pos.Y-g.origin.Y)/g.cellSize))
	if !g.inBounds(col, row) {
		return Cell{}, false
	}
	return Cell{Col: col, Row: row}, true
}

// SurfaceY returns the world Y of the top face of the highest solid cell under x.
func (g *Grid) SurfaceY(x float64) (float64, bool) {
	col := g.ColumnAt(x)
	g.mu.RLock()
	defer g.mu.RUnlock()
	for row := 0; row < g.rows; row++ {
		if g.cells[g.index(col, row)].Present {
			return g.CellCenter(col, row).Y + g.cellSize/2, true
		}
	}
	return g.origin.Y - g.cellSize/2, false
}

// Anchor resolves the cell an impact point maps to. Columns are scanned from
// the left for the first cell at or right of the impact, rows from the top for
// the first cell at or below it. The scan tolerates drift in reported contact points.
func (g *Grid) Anchor(pos geom.Vec3) Cell {
	anchor := Cell{Col: g.columns - 1, Row: g.rows - 1}
	for col := 0; col < g.columns; col++ {
		if g.CellCenter(col, 0).X >= pos.X {
			anchor.Col = col
			break
		}
	}
	for row := 0; row < g.rows; row++ {
		if g.CellCenter(0, row).Y <= pos.Y {
			anchor.Row = row
			break
		}
	}
	return anchor
}

// ExplodeAt removes every solid cell strictly within radius cells of the anchor
// resolved for pos and returns the removed cells. The bottom row is never removed.
func (g *Grid) ExplodeAt(pos geom.Vec3, radius int) []Cell {
	if g == nil || radius <= 0 {
		return nil
	}
	anchor := g.Anchor(pos)

	//1.- Clamp the scan window to the grid, keeping the floor row intact.
	minCol := max(0, anchor.Col-radius)
	maxCol := min(g.columns-1, anchor.Col+radius)
	minRow := max(0, anchor.Row-radius)
	maxRow := min(g.rows-2, anchor.Row+radius)
	limit := radius * radius

	g.mu.Lock()
	defer g.mu.Unlock()

	//2.- Remove cells inside the circle; removal is one-way for the lifetime of the grid.
	var destroyed []Cell
	for col := minCol; col <= maxCol; col++ {
		dc := col - anchor.Col
		for row := minRow; row <= maxRow; row++ {
			dr := row - anchor.Row
			if dc*dc+dr*dr >= limit {
				continue
			}
			idx := g.index(col, row)
			if !g.cells[idx].Present {
				continue
			}
			g.cells[idx].Present = false
			g.present--
			destroyed = append(destroyed, Cell{Col: col, Row: row})
		}
	}
	return destroyed
}

// Remove clears the listed cells and reports how many were still solid.
// Replay tooling uses it to reapply recorded destruction.
func (g *Grid) Remove(cells []Cell) int {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	removed := 0
	for _, cell := range cells {
		if !g.inBounds(cell.Col, cell.Row) {
			continue
		}
		idx := g.index(cell.Col, cell.Row)
		if !g.cells[idx].Present {
			continue
		}
		g.cells[idx].Present = false
		g.present--
		removed++
	}
	return removed
}

// Snapshot copies the presence map indexed [col][row] for renderers.
func (g *Grid) Snapshot() [][]bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([][]bool, g.columns)
	for col := 0; col < g.columns; col++ {
		column := make([]bool, g.rows)
		for row := 0; row < g.rows; row++ {
			column[row] = g.cells[g.index(col, row)].Present
		}
		out[col] = column
	}
	return out
}
