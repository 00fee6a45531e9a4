// Package world provides the hex grid, terrain fields, and territory locks.
// Uses offset-column coordinates (x, y) with flat-top hexes: odd columns
// are shifted half a hex down.
package world

import (
	"fmt"
	"math"
)

// HexCoord represents a position on the hex grid in offset-column coordinates.
type HexCoord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (h HexCoord) String() string {
	return fmt.Sprintf("(%d, %d)", h.X, h.Y)
}

// Distance constants.
const (
	DistanceUnit = 100 // Distance units per hex
	TravelSpeed  = 15  // Distance units covered per day
)

// Neighbor offsets for even and odd columns.
var (
	evenColumnNeighbors = [6]HexCoord{
		{X: 1, Y: 0},
		{X: 1, Y: -1},
		{X: 0, Y: -1},
		{X: -1, Y: 0},
		{X: -1, Y: -1},
		{X: 0, Y: 1},
	}
	oddColumnNeighbors = [6]HexCoord{
		{X: 1, Y: 0},
		{X: 1, Y: 1},
		{X: 0, Y: -1},
		{X: -1, Y: 0},
		{X: -1, Y: 1},
		{X: 0, Y: 1},
	}
)

// Neighbors returns the six adjacent hex coordinates. The result may contain
// coordinates outside the grid; callers bounds-check with World.InBounds.
func (h HexCoord) Neighbors() [6]HexCoord {
	dirs := &evenColumnNeighbors
	if h.X&1 == 1 {
		dirs = &oddColumnNeighbors
	}
	var result [6]HexCoord
	for i, dir := range dirs {
		result[i] = HexCoord{X: h.X + dir.X, Y: h.Y + dir.Y}
	}
	return result
}

// IsNeighbor reports whether b is one of the six neighbors of a.
func (h HexCoord) IsNeighbor(b HexCoord) bool {
	for _, n := range h.Neighbors() {
		if n == b {
			return true
		}
	}
	return false
}

func euclid(a, b HexCoord) float64 {
	dx := float64(b.X - a.X)
	dy := float64(b.Y - a.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// Distance returns the distance between two hexes in distance units.
// The raw euclidean distance is floored before scaling.
func Distance(a, b HexCoord) int {
	return int(math.Floor(euclid(a, b))) * DistanceUnit
}

// TravelDays returns how many whole days it takes to travel between two hexes.
func TravelDays(a, b HexCoord) int {
	return int(math.Floor(euclid(a, b) * DistanceUnit / TravelSpeed))
}
