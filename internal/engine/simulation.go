// Simulation ties the world, the catalogue and the settlements together and
// runs every building once per turn.
package engine

import (
	"log/slog"
	"math/rand"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/civitas-sim/internal/building"
	"github.com/talgya/civitas-sim/internal/economy"
	"github.com/talgya/civitas-sim/internal/entropy"
	"github.com/talgya/civitas-sim/internal/social"
	"github.com/talgya/civitas-sim/internal/world"
)

// Seed offsets so placement and bonus yields draw independent sequences.
const (
	placementSeedOffset = 1
	yieldSeedOffset     = 2
)

// Simulation holds the complete game state.
type Simulation struct {
	// mu guards everything below except the event log. Turns and admin
	// actions take the write lock; the API reads under the read lock.
	mu          sync.RWMutex
	world       *world.World
	catalog     *economy.Catalog
	settlements []*social.Settlement
	index       map[social.SettlementID]*social.Settlement
	lastTick    uint64
	nextID      social.SettlementID
	placement   *rand.Rand
	env         *building.Env
	stats       SimStats

	evMu        sync.Mutex
	events      []Event
	subscribers map[uuid.UUID]chan Event
}

// SimStats tracks aggregate statistics.
type SimStats struct {
	Settlements  int               `json:"settlements"`
	Buildings    int               `json:"buildings"`
	Problems     int               `json:"buildings_with_problems"`
	Coins        int               `json:"coins"`
	Succeeded    int               `json:"succeeded_last_turn"`
	Blocked      int               `json:"blocked_last_turn"`
	TaxCollected int               `json:"tax_collected"`
	Produced     economy.Resources `json:"produced"`
}

// NewSimulation creates a Simulation over a generated world. A zero seed
// draws placement and bonus yields from crypto/rand.
func NewSimulation(w *world.World, catalog *economy.Catalog, seed int64) *Simulation {
	s := &Simulation{
		world:       w,
		catalog:     catalog,
		index:       make(map[social.SettlementID]*social.Settlement),
		nextID:      1,
		placement:   entropy.Derive(seed, placementSeedOffset),
		subscribers: make(map[uuid.UUID]chan Event),
		stats:       SimStats{Produced: economy.Resources{}},
	}
	s.env = &building.Env{
		Rand:   entropy.Derive(seed, yieldSeedOffset),
		Events: s,
	}
	return s
}

// CurrentTick returns the most recently processed turn.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTick
}

// SetLastTick restores the turn counter after a load.
func (s *Simulation) SetLastTick(t uint64) {
	s.mu.Lock()
	s.lastTick = t
	s.mu.Unlock()
}

// Catalog returns the building catalogue.
func (s *Simulation) Catalog() *economy.Catalog { return s.catalog }

// Read runs fn under the read lock. fn must not retain w or any settlement.
func (s *Simulation) Read(fn func(w *world.World, settlements []*social.Settlement)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.world, s.settlements)
}

// Settlements returns the active settlements in founding order.
func (s *Simulation) Settlements() []*social.Settlement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*social.Settlement, len(s.settlements))
	copy(out, s.settlements)
	return out
}

// Settlement looks up a settlement by id.
func (s *Simulation) Settlement(id social.SettlementID) (*social.Settlement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sett, ok := s.index[id]
	return sett, ok
}

// Stats returns a copy of the aggregate statistics.
func (s *Simulation) Stats() SimStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.stats
	out.Produced = s.stats.Produced.Clone()
	return out
}

// TickTurn runs every building of every settlement once. A blocked building
// never stops the others.
func (s *Simulation) TickTurn(tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastTick = tick
	s.stats.Succeeded = 0
	s.stats.Blocked = 0
	for _, sett := range s.settlements {
		rep := sett.Process(s.env)
		s.stats.Succeeded += rep.Succeeded
		s.stats.Blocked += rep.Blocked
		s.stats.TaxCollected += rep.Tax
		for k, v := range rep.Produced {
			s.stats.Produced[k] += v
		}
	}
	s.updateStats()

	slog.Debug("turn processed",
		"tick", tick,
		"succeeded", s.stats.Succeeded,
		"blocked", s.stats.Blocked,
	)
}

// TickMonth logs a report for every settlement.
func (s *Simulation) TickMonth(tick uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sett := range s.settlements {
		problems := 0
		for _, b := range sett.Buildings() {
			if b.HasProblems() {
				problems++
			}
		}
		slog.Info("monthly report",
			"tick", tick,
			"time", SimTime(tick),
			"settlement", sett.Name(),
			"level", sett.Level(),
			"coins", humanize.Comma(int64(sett.Coins())),
			"storage", humanize.Comma(int64(sett.StorageUsed()))+"/"+humanize.Comma(int64(sett.Storage())),
			"buildings", len(sett.Buildings()),
			"problems", problems,
		)
	}
}

// TickYear logs the yearly summary.
func (s *Simulation) TickYear(tick uint64) {
	stats := s.Stats()
	slog.Info("yearly summary",
		"tick", tick,
		"time", SimTime(tick),
		"settlements", stats.Settlements,
		"buildings", stats.Buildings,
		"coins", humanize.Comma(int64(stats.Coins)),
		"tax_collected", humanize.Comma(int64(stats.TaxCollected)),
		"produced", stats.Produced.String(),
	)
}

// updateStats recomputes the totals. Callers hold mu.
func (s *Simulation) updateStats() {
	s.stats.Settlements = len(s.settlements)
	s.stats.Buildings = 0
	s.stats.Problems = 0
	s.stats.Coins = 0
	for _, sett := range s.settlements {
		s.stats.Coins += sett.Coins()
		for _, b := range sett.Buildings() {
			s.stats.Buildings++
			if b.HasProblems() {
				s.stats.Problems++
			}
		}
	}
}
