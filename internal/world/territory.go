// Territory: hex locks claimed by settlements and places, and the search
// for unclaimed land.
package world

import (
	"errors"
	"math/rand"
)

// ErrNoLocation is returned when no unclaimed land hex is left on the map.
var ErrNoLocation = errors.New("no unclaimed location available")

// Tier categorizes settlement scale, which sets how far its borders reach.
type Tier uint8

const (
	TierCamp       Tier = iota // Own hex only
	TierVillage                // Own hex only
	TierCity                   // Own hex + 6 neighbors
	TierMetropolis             // Own hex + neighbors + their neighbors
)

var tierNames = [...]string{"Camp", "Village", "City", "Metropolis"}

// String returns the tier's display name.
func (t Tier) String() string {
	if int(t) < len(tierNames) {
		return tierNames[t]
	}
	return "Unknown"
}

// Claimant is a settlement as the world sees it.
type Claimant interface {
	ID() uint64
	Name() string
	Location() HexCoord
	Tier() Tier
	SetCoastal(bool)
}

// Place is a point of interest that locks its hex. ClaimedBy returns the
// claiming settlement id, or false when unclaimed.
type Place interface {
	ID() uint64
	Location() HexCoord
	ClaimedBy() (uint64, bool)
}

// LockHex marks a hex as inside the borders of owner. Locking an already
// locked hex overwrites the owner.
func (w *World) LockHex(h HexCoord, owner uint64) error {
	if !w.InBounds(h) {
		return ErrOutOfBounds
	}
	id := owner
	w.cells[h.Y][h.X].L = true
	w.cells[h.Y][h.X].LID = &id
	return nil
}

// UnlockHex clears a hex's lock.
func (w *World) UnlockHex(h HexCoord) error {
	if !w.InBounds(h) {
		return ErrOutOfBounds
	}
	w.cells[h.Y][h.X].L = false
	w.cells[h.Y][h.X].LID = nil
	return nil
}

// IsLocked reports whether a hex is claimed. Out-of-bounds hexes are not.
func (w *World) IsLocked(h HexCoord) bool {
	if !w.InBounds(h) {
		return false
	}
	return w.cells[h.Y][h.X].L
}

// LockedBy returns the owner of a hex lock.
func (w *World) LockedBy(h HexCoord) (uint64, bool) {
	if !w.InBounds(h) || w.cells[h.Y][h.X].LID == nil {
		return 0, false
	}
	return *w.cells[h.Y][h.X].LID, true
}

// AddPlace records a place on its hex and locks it, to the claiming
// settlement if there is one, otherwise to the place itself.
func (w *World) AddPlace(p Place) error {
	loc := p.Location()
	if !w.InBounds(loc) {
		return ErrOutOfBounds
	}
	pid := p.ID()
	w.cells[loc.Y][loc.X].P = &pid
	owner := pid
	if claimer, ok := p.ClaimedBy(); ok {
		owner = claimer
	}
	return w.LockHex(loc, owner)
}

// AddSettlement records a settlement on its hex and locks its territory.
func (w *World) AddSettlement(s Claimant) error {
	loc := s.Location()
	if !w.InBounds(loc) {
		return ErrOutOfBounds
	}
	sid := s.ID()
	w.cells[loc.Y][loc.X].S = &sid
	w.cells[loc.Y][loc.X].N = s.Name()
	if err := w.LockHex(loc, sid); err != nil {
		return err
	}
	w.lockTerritory(s)
	return nil
}

// Territory returns the hexes around a settlement that its tier claims.
// Duplicates are possible for metropolises; locking is idempotent.
func Territory(loc HexCoord, tier Tier) []HexCoord {
	var hexes []HexCoord
	switch tier {
	case TierCity:
		ns := loc.Neighbors()
		hexes = append(hexes, ns[:]...)
	case TierMetropolis:
		for _, n := range loc.Neighbors() {
			nns := n.Neighbors()
			hexes = append(hexes, n)
			hexes = append(hexes, nns[:]...)
		}
	}
	return hexes
}

// lockTerritory locks the in-bounds hexes of a settlement's territory and
// flags it coastal when any of them is ocean.
func (w *World) lockTerritory(s Claimant) {
	for _, h := range Territory(s.Location(), s.Tier()) {
		if !w.InBounds(h) {
			continue
		}
		w.LockHex(h, s.ID())
		if w.IsWater(h) {
			s.SetCoastal(true)
		}
	}
}

// RemoveSettlement clears a settlement from its hex and releases every lock
// it owns. Scans the whole grid.
func (w *World) RemoveSettlement(s Claimant) {
	loc := s.Location()
	if w.InBounds(loc) {
		w.cells[loc.Y][loc.X].S = nil
		w.cells[loc.Y][loc.X].N = ""
	}
	w.ReleaseLocks(s.ID())
}

// ReleaseLocks unlocks every hex owned by id and returns how many were released.
func (w *World) ReleaseLocks(id uint64) int {
	released := 0
	for y := range w.cells {
		for x := range w.cells[y] {
			c := &w.cells[y][x]
			if c.LID != nil && *c.LID == id {
				c.L = false
				c.LID = nil
				released++
			}
		}
	}
	return released
}

// RandomLocation returns a random unlocked land hex, optionally restricted
// to the given biomes. It draws at most Width×Height random hexes, then
// falls back to scanning the grid, so it always terminates; ErrNoLocation
// means no candidate exists.
func (w *World) RandomLocation(rng *rand.Rand, biomes ...Biome) (HexCoord, error) {
	if w.cfg.Width == 0 || w.cfg.Height == 0 {
		return HexCoord{}, ErrNoLocation
	}
	for attempt := 0; attempt < w.HexCount(); attempt++ {
		h := HexCoord{X: rng.Intn(w.cfg.Width), Y: rng.Intn(w.cfg.Height)}
		if w.isCandidate(h, biomes) {
			return h, nil
		}
	}

	var candidates []HexCoord
	for y := 0; y < w.cfg.Height; y++ {
		for x := 0; x < w.cfg.Width; x++ {
			h := HexCoord{X: x, Y: y}
			if w.isCandidate(h, biomes) {
				candidates = append(candidates, h)
			}
		}
	}
	if len(candidates) == 0 {
		return HexCoord{}, ErrNoLocation
	}
	return candidates[rng.Intn(len(candidates))], nil
}

func (w *World) isCandidate(h HexCoord, biomes []Biome) bool {
	if w.IsWater(h) || w.IsLocked(h) {
		return false
	}
	if len(biomes) == 0 {
		return true
	}
	t := w.Terrain(h)
	for _, b := range biomes {
		if b == t {
			return true
		}
	}
	return false
}
