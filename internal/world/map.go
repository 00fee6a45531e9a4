package world

import (
	"errors"
	"fmt"
)

// ErrOutOfBounds is returned when a coordinate falls outside the grid.
var ErrOutOfBounds = errors.New("hex out of bounds")

// Cell holds the stored state of one hex. Biome is derived from E and M on
// demand and never stored. JSON keys are kept short because the whole grid
// is persisted as one blob.
type Cell struct {
	E   float64 `json:"e"`             // Elevation, 0.0–1.0
	M   float64 `json:"m"`             // Moisture, 0.0–1.0
	S   *uint64 `json:"s,omitempty"`   // Settlement on this hex
	N   string  `json:"n,omitempty"`   // Settlement display name
	P   *uint64 `json:"p,omitempty"`   // Place on this hex
	L   bool    `json:"l"`             // Locked (inside someone's borders)
	LID *uint64 `json:"lid,omitempty"` // Lock owner; set iff L
}

// Seeds are the two generation seeds. Identical seeds reproduce identical fields.
type Seeds struct {
	Elevation int64 `json:"elevation"`
	Moisture  int64 `json:"moisture"`
}

// World holds the complete hex grid and its generation parameters.
type World struct {
	cfg   GenConfig
	seeds Seeds
	cells [][]Cell // indexed [y][x]
}

// Width returns the number of columns.
func (w *World) Width() int { return w.cfg.Width }

// Height returns the number of rows.
func (w *World) Height() int { return w.cfg.Height }

// Config returns the generation parameters the world was built with.
func (w *World) Config() GenConfig { return w.cfg }

// Seeds returns the generation seeds.
func (w *World) Seeds() Seeds { return w.seeds }

// Cells returns the raw grid, indexed [y][x]. Used by persistence.
func (w *World) Cells() [][]Cell { return w.cells }

// InBounds returns true if the coordinate lies on the grid.
func (w *World) InBounds(h HexCoord) bool {
	return h.X >= 0 && h.X < w.cfg.Width && h.Y >= 0 && h.Y < w.cfg.Height
}

// GetHex returns a copy of the cell at the given coordinate.
func (w *World) GetHex(h HexCoord) (Cell, error) {
	if !w.InBounds(h) {
		return Cell{}, fmt.Errorf("get %v: %w", h, ErrOutOfBounds)
	}
	return w.cells[h.Y][h.X], nil
}

// SetHex replaces the cell at the given coordinate. The lock invariant is
// enforced: a cell with L set and no LID (or the reverse) is rejected.
func (w *World) SetHex(h HexCoord, c Cell) error {
	if !w.InBounds(h) {
		return fmt.Errorf("set %v: %w", h, ErrOutOfBounds)
	}
	if c.L != (c.LID != nil) {
		return fmt.Errorf("set %v: lock flag and lock owner disagree", h)
	}
	w.cells[h.Y][h.X] = c
	return nil
}

// Elevation returns the elevation of a hex, or 0 when out of bounds.
func (w *World) Elevation(h HexCoord) float64 {
	if !w.InBounds(h) {
		return 0
	}
	return w.cells[h.Y][h.X].E
}

// Moisture returns the moisture of a hex, or 0 when out of bounds.
func (w *World) Moisture(h HexCoord) float64 {
	if !w.InBounds(h) {
		return 0
	}
	return w.cells[h.Y][h.X].M
}

// HexCount returns the total number of hexes in the grid.
func (w *World) HexCount() int {
	return w.cfg.Width * w.cfg.Height
}

// String returns a summary of the world.
func (w *World) String() string {
	return fmt.Sprintf("World(%dx%d, seeds=%d/%d)", w.cfg.Width, w.cfg.Height, w.seeds.Elevation, w.seeds.Moisture)
}

func makeCells(width, height int) [][]Cell {
	cells := make([][]Cell, height)
	for y := range cells {
		cells[y] = make([]Cell, width)
	}
	return cells
}
