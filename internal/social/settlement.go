// Package social provides settlements: the resource ledger buildings operate
// against and the claimant that holds territory on the hex grid.
package social

import (
	"sort"

	"github.com/talgya/civitas-sim/internal/building"
	"github.com/talgya/civitas-sim/internal/economy"
	"github.com/talgya/civitas-sim/internal/world"
)

// SettlementID is a unique identifier for a settlement.
type SettlementID = uint64

// Config sets up a new settlement.
type Config struct {
	ID        SettlementID
	Name      string
	Location  world.HexCoord
	Tier      world.Tier
	Level     int
	Storage   int // Base capacity before building bonuses
	Coins     int
	Resources economy.Resources
	Stats     map[string]int
	Research  []string

	ProductionModifiers map[string]int
	TaxModifiers        map[string]int
}

var (
	_ building.Ledger = (*Settlement)(nil)
	_ world.Claimant  = (*Settlement)(nil)
)

// Settlement represents a population center on the hex grid.
type Settlement struct {
	id       SettlementID
	name     string
	location world.HexCoord
	tier     world.Tier
	level    int
	coastal  bool

	coins       int
	stats       map[string]int // faith, research, espionage, fame, prestige
	baseStorage int
	storage     int
	stock       economy.Resources

	buildings []*building.Building
	research  map[string]bool

	productionMods map[string]int // building kind → flat output bonus
	taxMods        map[string]int // building handle → flat tax bonus
}

// New creates a settlement with no buildings.
func New(cfg Config) *Settlement {
	if cfg.Level < 1 {
		cfg.Level = 1
	}
	s := &Settlement{
		id:             cfg.ID,
		name:           cfg.Name,
		location:       cfg.Location,
		tier:           cfg.Tier,
		level:          cfg.Level,
		coins:          cfg.Coins,
		stats:          make(map[string]int),
		baseStorage:    cfg.Storage,
		storage:        cfg.Storage,
		stock:          make(economy.Resources),
		research:       make(map[string]bool),
		productionMods: make(map[string]int),
		taxMods:        make(map[string]int),
	}
	for k, v := range cfg.Resources {
		s.AddToStorage(k, v)
	}
	for k, v := range cfg.Stats {
		s.stats[k] += v
	}
	for _, r := range cfg.Research {
		s.research[r] = true
	}
	for k, v := range cfg.ProductionModifiers {
		s.productionMods[k] = v
	}
	for k, v := range cfg.TaxModifiers {
		s.taxMods[k] = v
	}
	return s
}

func (s *Settlement) ID() SettlementID         { return s.id }
func (s *Settlement) Name() string             { return s.name }
func (s *Settlement) Location() world.HexCoord { return s.location }
func (s *Settlement) Tier() world.Tier         { return s.tier }
func (s *Settlement) SetTier(t world.Tier)     { s.tier = t }
func (s *Settlement) Level() int               { return s.level }
func (s *Settlement) Coastal() bool            { return s.coastal }
func (s *Settlement) SetCoastal(v bool)        { s.coastal = v }
func (s *Settlement) Coins() int               { return s.coins }

// SetLevel changes the settlement level; values below 1 are clamped.
func (s *Settlement) SetLevel(level int) {
	if level < 1 {
		level = 1
	}
	s.level = level
}

// Stat returns one stat counter.
func (s *Settlement) Stat(name string) int { return s.stats[name] }

// Stats returns a copy of the stat counters.
func (s *Settlement) Stats() map[string]int { return copyCounts(s.stats) }

// Storage returns the current capacity including building bonuses.
func (s *Settlement) Storage() int { return s.storage }

// BaseStorage returns the capacity without building bonuses.
func (s *Settlement) BaseStorage() int { return s.baseStorage }

// StorageUsed returns the total amount of goods in storage.
func (s *Settlement) StorageUsed() int { return s.stock.Stored() }

// Resources returns a copy of the stored goods.
func (s *Settlement) Resources() economy.Resources { return s.stock.Clone() }

// Stock returns how much of a resource the settlement holds. Coins and stats
// are read from their counters.
func (s *Settlement) Stock(resource string) int {
	switch {
	case resource == economy.Coins:
		return s.coins
	case economy.IsStat(resource):
		return s.stats[resource]
	default:
		return s.stock[resource]
	}
}

// HasResources reports whether every amount in r is held.
func (s *Settlement) HasResources(r economy.Resources) bool {
	for k, v := range r {
		if s.Stock(k) < v {
			return false
		}
	}
	return true
}

// HasStorageSpaceFor reports whether the stored goods in r fit in the
// remaining capacity. Coins and stats take no space.
func (s *Settlement) HasStorageSpaceFor(r economy.Resources) bool {
	need := 0
	for k, v := range r {
		if k != economy.Coins && !economy.IsStat(k) {
			need += v
		}
	}
	return s.StorageUsed()+need <= s.storage
}

// AddToStorage credits a resource without checking capacity.
func (s *Settlement) AddToStorage(resource string, amount int) {
	switch {
	case amount == 0:
	case resource == economy.Coins:
		s.coins += amount
	case economy.IsStat(resource):
		s.stats[resource] += amount
	default:
		s.stock[resource] += amount
	}
}

// RemoveResources debits every amount in r. Callers check HasResources first.
func (s *Settlement) RemoveResources(r economy.Resources) {
	for k, v := range r {
		switch {
		case k == economy.Coins:
			s.coins -= v
		case economy.IsStat(k):
			s.stats[k] -= v
		default:
			s.stock[k] -= v
			if s.stock[k] <= 0 {
				delete(s.stock, k)
			}
		}
	}
}

// AdjustStorage changes capacity by delta, never below zero.
func (s *Settlement) AdjustStorage(delta int) {
	s.storage += delta
	if s.storage < 0 {
		s.storage = 0
	}
}

func (s *Settlement) IncCoins(amount int) { s.coins += amount }

func (s *Settlement) RaiseStat(stat string, amount int) { s.stats[stat] += amount }

// Buildings returns the buildings in construction order.
func (s *Settlement) Buildings() []*building.Building {
	out := make([]*building.Building, len(s.buildings))
	copy(out, s.buildings)
	return out
}

// Building returns the first building of a kind, or nil.
func (s *Settlement) Building(kind string) *building.Building {
	for _, b := range s.buildings {
		if b.Kind() == kind {
			return b
		}
	}
	return nil
}

// IsBuildingBuilt reports whether a building of kind stands at level or above.
func (s *Settlement) IsBuildingBuilt(kind string, level int) bool {
	for _, b := range s.buildings {
		if b.Kind() == kind && b.Level() >= level {
			return true
		}
	}
	return false
}

func (s *Settlement) AddBuilding(b *building.Building) {
	s.buildings = append(s.buildings, b)
}

// RemoveBuilding removes exactly one entry: b itself if present, otherwise
// the first building of the same kind.
func (s *Settlement) RemoveBuilding(b *building.Building) bool {
	idx := -1
	for i, have := range s.buildings {
		if have == b {
			idx = i
			break
		}
	}
	if idx < 0 {
		for i, have := range s.buildings {
			if have.Kind() == b.Kind() {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return false
	}
	s.buildings = append(s.buildings[:idx], s.buildings[idx+1:]...)
	return true
}

func (s *Settlement) HasResearch(name string) bool { return s.research[name] }

func (s *Settlement) AddResearch(name string) { s.research[name] = true }

// Research returns completed research in sorted order.
func (s *Settlement) Research() []string {
	out := make([]string, 0, len(s.research))
	for r := range s.research {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func (s *Settlement) ProductionModifier(kind string) int { return s.productionMods[kind] }

func (s *Settlement) SetProductionModifier(kind string, v int) { s.productionMods[kind] = v }

func (s *Settlement) TaxModifier(handle string) int { return s.taxMods[handle] }

func (s *Settlement) SetTaxModifier(handle string, v int) { s.taxMods[handle] = v }

// ProductionModifiers returns a copy of the production modifiers.
func (s *Settlement) ProductionModifiers() map[string]int { return copyCounts(s.productionMods) }

// TaxModifiers returns a copy of the tax modifiers.
func (s *Settlement) TaxModifiers() map[string]int { return copyCounts(s.taxMods) }

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Report totals one turn of building processing.
type Report struct {
	Succeeded int
	Blocked   int
	Tax       int
	Produced  economy.Resources
	Consumed  economy.Resources
}

// Process runs every building once, in construction order.
func (s *Settlement) Process(env *building.Env) Report {
	r := Report{Produced: economy.Resources{}, Consumed: economy.Resources{}}
	for _, b := range s.Buildings() {
		out := b.Process(s, env)
		if !out.OK {
			r.Blocked++
			continue
		}
		r.Succeeded++
		r.Tax += out.Tax
		for k, v := range out.Produced {
			r.Produced[k] += v
		}
		for k, v := range out.Consumed {
			r.Consumed[k] += v
		}
	}
	return r
}

// View is the read-only rendering of a settlement.
type View struct {
	ID          SettlementID      `json:"id"`
	Name        string            `json:"name"`
	Location    world.HexCoord    `json:"location"`
	Tier        string            `json:"tier"`
	Level       int               `json:"level"`
	Coastal     bool              `json:"coastal"`
	Coins       int               `json:"coins"`
	Stats       map[string]int    `json:"stats"`
	Storage     int               `json:"storage"`
	StorageUsed int               `json:"storage_used"`
	Resources   economy.Resources `json:"resources"`
	Research    []string          `json:"research"`
	Buildings   []building.View   `json:"buildings"`
}

// View returns the settlement's current state.
func (s *Settlement) View() View {
	v := View{
		ID:          s.id,
		Name:        s.name,
		Location:    s.location,
		Tier:        s.tier.String(),
		Level:       s.level,
		Coastal:     s.coastal,
		Coins:       s.coins,
		Stats:       s.Stats(),
		Storage:     s.storage,
		StorageUsed: s.StorageUsed(),
		Resources:   s.Resources(),
		Research:    s.Research(),
		Buildings:   make([]building.View, 0, len(s.buildings)),
	}
	for _, b := range s.buildings {
		v.Buildings = append(v.Buildings, b.View())
	}
	return v
}
