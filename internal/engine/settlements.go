// Settlement lifecycle: founding, restoring, abandoning, and the admin
// actions on buildings.
package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/talgya/civitas-sim/internal/building"
	"github.com/talgya/civitas-sim/internal/economy"
	"github.com/talgya/civitas-sim/internal/social"
	"github.com/talgya/civitas-sim/internal/world"
)

var (
	ErrSettlementNotFound  = errors.New("settlement not found")
	ErrBuildingNotFound    = errors.New("building not found")
	ErrUnknownAction       = errors.New("unknown building action")
	ErrLocationUnavailable = errors.New("location is water, locked or out of bounds")
)

// FoundConfig describes a new settlement.
type FoundConfig struct {
	Name      string          // Empty picks a generated name
	Location  *world.HexCoord // Nil picks a random unclaimed land hex
	Biomes    []world.Biome   // Restricts the random pick
	Tier      world.Tier
	Level     int
	Storage   int
	Coins     int
	Resources economy.Resources
	Research  []string
	Buildings []string // Kinds built at founding, in order
}

// DefaultFounding returns a village with a self-sustaining bread economy.
func DefaultFounding() FoundConfig {
	return FoundConfig{
		Tier:      world.TierVillage,
		Level:     1,
		Coins:     1000,
		Resources: economy.Resources{"wood": 20, "stones": 10, "bread": 5},
		Buildings: []string{
			economy.Marketplace,
			"lumberjack",
			"stonequarry",
			"farm",
			"mill",
			"bakery",
			"house1",
		},
	}
}

// BuildingRecord is the persisted state of one building.
type BuildingRecord struct {
	Kind     string
	Level    int
	Stopped  bool
	Position building.Position
}

// FoundSettlement places a new settlement, locks its territory and builds
// its starting buildings.
func (s *Simulation) FoundSettlement(cfg FoundConfig) (*social.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, kind := range cfg.Buildings {
		if _, err := s.catalog.Get(kind); err != nil {
			return nil, fmt.Errorf("founding building: %w", err)
		}
	}

	var loc world.HexCoord
	if cfg.Location != nil {
		loc = *cfg.Location
		if !s.world.InBounds(loc) || s.world.IsWater(loc) || s.world.IsLocked(loc) {
			return nil, fmt.Errorf("found at %v: %w", loc, ErrLocationUnavailable)
		}
	} else {
		var err error
		loc, err = s.world.RandomLocation(s.placement, cfg.Biomes...)
		if err != nil {
			return nil, fmt.Errorf("found settlement: %w", err)
		}
	}

	name := cfg.Name
	if name == "" {
		name = s.generateSettlementName()
	}
	sett := social.New(social.Config{
		ID:        s.nextID,
		Name:      name,
		Location:  loc,
		Tier:      cfg.Tier,
		Level:     cfg.Level,
		Storage:   cfg.Storage,
		Coins:     cfg.Coins,
		Resources: cfg.Resources,
		Research:  cfg.Research,
	})
	if err := s.register(sett); err != nil {
		return nil, err
	}
	for _, kind := range cfg.Buildings {
		spec, _ := s.catalog.Get(kind)
		building.Build(sett, s.env, spec, building.Options{Position: nextPosition(sett)})
	}
	s.updateStats()

	slog.Info("settlement founded",
		"id", sett.ID(),
		"name", sett.Name(),
		"location", loc.String(),
		"terrain", string(s.world.Terrain(loc)),
		"tier", sett.Tier().String(),
		"coastal", sett.Coastal(),
	)
	s.EmitEvent(Event{
		Tick:        s.lastTick,
		Description: fmt.Sprintf("%s was founded at %s", sett.Name(), loc),
		Category:    CategorySettlement,
		Meta: map[string]any{
			"settlement_id":   sett.ID(),
			"settlement_name": sett.Name(),
			"x":               loc.X,
			"y":               loc.Y,
		},
	})
	return sett, nil
}

// RestoreSettlement re-registers a saved settlement and rebuilds its
// buildings without emitting events. Storage bonuses are reapplied on top
// of the saved base capacity.
func (s *Simulation) RestoreSettlement(cfg social.Config, buildings []BuildingRecord) (*social.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.index[cfg.ID]; dup {
		return nil, fmt.Errorf("restore settlement %d: duplicate id", cfg.ID)
	}
	sett := social.New(cfg)
	quiet := &building.Env{Rand: s.env.Rand}
	for _, rec := range buildings {
		spec, err := s.catalog.Get(rec.Kind)
		if err != nil {
			return nil, fmt.Errorf("restore settlement %d: %w", cfg.ID, err)
		}
		building.Build(sett, quiet, spec, building.Options{
			Level:    rec.Level,
			Stopped:  rec.Stopped,
			Position: rec.Position,
		})
	}
	if err := s.register(sett); err != nil {
		return nil, err
	}
	s.updateStats()
	return sett, nil
}

// register adds a settlement to the world and the index. Callers hold mu.
func (s *Simulation) register(sett *social.Settlement) error {
	if err := s.world.AddSettlement(sett); err != nil {
		return fmt.Errorf("place settlement %q: %w", sett.Name(), err)
	}
	s.settlements = append(s.settlements, sett)
	s.index[sett.ID()] = sett
	if sett.ID() >= s.nextID {
		s.nextID = sett.ID() + 1
	}
	return nil
}

// AbandonSettlement removes a settlement and releases its territory.
func (s *Simulation) AbandonSettlement(id social.SettlementID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sett, ok := s.index[id]
	if !ok {
		return fmt.Errorf("abandon %d: %w", id, ErrSettlementNotFound)
	}
	s.world.RemoveSettlement(sett)
	delete(s.index, id)
	for i, have := range s.settlements {
		if have == sett {
			s.settlements = append(s.settlements[:i], s.settlements[i+1:]...)
			break
		}
	}
	s.updateStats()

	slog.Info("settlement abandoned", "name", sett.Name(), "id", id)
	s.EmitEvent(Event{
		Tick:        s.lastTick,
		Description: fmt.Sprintf("%s has been abandoned", sett.Name()),
		Category:    CategorySettlement,
		Meta: map[string]any{
			"settlement_id":   id,
			"settlement_name": sett.Name(),
		},
	})
	return nil
}

// nextPosition lays buildings out in rows of eight.
func nextPosition(sett *social.Settlement) building.Position {
	n := len(sett.Buildings())
	return building.Position{X: n % 8, Y: n / 8}
}

// generateSettlementName creates a unique settlement name. Callers hold mu.
func (s *Simulation) generateSettlementName() string {
	prefixes := []string{
		"Iron", "Green", "Ash", "Stone", "Mill", "Cross", "Black",
		"Silver", "Red", "White", "Dark", "Bright", "High", "Low",
		"Old", "New", "Far", "Deep", "Long", "Broad", "Gold", "Frost",
		"Storm", "Thorn", "Elm", "Oak", "Pine", "Copper", "River",
	}
	suffixes := []string{
		"haven", "ford", "hollow", "wick", "bridge", "gate", "keep",
		"stead", "wood", "field", "dale", "crest", "vale", "port",
		"town", "bury", "marsh", "well", "brook", "cliff", "moor",
		"ridge", "watch", "fall", "rest", "point", "reach", "helm",
	}

	existing := make(map[string]bool, len(s.settlements))
	for _, st := range s.settlements {
		existing[st.Name()] = true
	}
	for i := 0; i < 1000; i++ {
		name := prefixes[s.placement.Intn(len(prefixes))] + suffixes[s.placement.Intn(len(suffixes))]
		if !existing[name] {
			return name
		}
	}
	return fmt.Sprintf("Settlement-%d", s.nextID)
}
