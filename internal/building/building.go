// Package building runs per-building production, taxation and progression.
// A building never holds its settlement: every operation takes the
// settlement's Ledger and an Env explicitly.
package building

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/talgya/civitas-sim/internal/economy"
)

// Ledger is the settlement a building operates against.
type Ledger interface {
	Name() string
	Level() int

	// Resource sufficiency and storage.
	Stock(resource string) int
	HasResources(r economy.Resources) bool
	HasStorageSpaceFor(r economy.Resources) bool
	AddToStorage(resource string, amount int)
	RemoveResources(r economy.Resources)
	AdjustStorage(delta int)

	// Counters.
	IncCoins(amount int)
	RaiseStat(stat string, amount int)

	// Building collection.
	Building(kind string) *Building
	IsBuildingBuilt(kind string, level int) bool
	AddBuilding(b *Building)
	RemoveBuilding(b *Building) bool

	HasResearch(name string) bool
	ProductionModifier(kind string) int
	TaxModifier(handle string) int
}

// Env carries the collaborators that are not part of the settlement.
type Env struct {
	Rand   *rand.Rand   // Bonus yield draws
	Events EventSink    // May be nil
	Logger *slog.Logger // Nil uses slog.Default()
}

func (e *Env) logger() *slog.Logger {
	if e == nil || e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Env) emit(ev Event) {
	if e == nil || e.Events == nil {
		return
	}
	e.Events.BuildingEvent(ev)
}

// Position is where a building stands inside its settlement.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Options set the mutable state of a building when it is created or restored.
type Options struct {
	Level    int // 0 uses the catalogue's initial level
	Stopped  bool
	Position Position
}

// Building is one structure in a settlement.
type Building struct {
	spec     *economy.BuildingSpec
	level    int
	stopped  bool
	problems bool
	position Position

	// Capability flags, fixed at construction.
	production bool
	municipal  bool
	housing    bool
}

// New creates a building from its spec without touching any settlement.
func New(spec *economy.BuildingSpec, opts Options) *Building {
	level := opts.Level
	if level < 1 {
		level = spec.Level
	}
	if level > spec.Levels {
		level = spec.Levels
	}
	return &Building{
		spec:       spec,
		level:      level,
		stopped:    opts.Stopped,
		position:   opts.Position,
		production: spec.IsProduction(),
		municipal:  spec.Municipal,
		housing:    spec.IsHousing(),
	}
}

// Build creates a building, adds it to the settlement and applies its
// storage bonus for every level it starts with.
func Build(l Ledger, env *Env, spec *economy.BuildingSpec, opts Options) *Building {
	b := New(spec, opts)
	l.AddBuilding(b)
	if spec.Storage != 0 {
		l.AdjustStorage(spec.Storage * b.level)
	}
	if b.stopped {
		b.Notify(NotifyPaused)
	}
	env.emit(b.event(l, EventConstructed, fmt.Sprintf("%s was built in %s.", spec.Name, l.Name())))
	return b
}

func (b *Building) Kind() string                { return b.spec.Kind }
func (b *Building) Name() string                { return b.spec.Name }
func (b *Building) Handle() string              { return b.spec.Handle }
func (b *Building) Spec() *economy.BuildingSpec { return b.spec }
func (b *Building) Level() int                  { return b.level }
func (b *Building) Stopped() bool               { return b.stopped }
func (b *Building) Position() Position          { return b.position }
func (b *Building) IsProduction() bool          { return b.production }
func (b *Building) IsMunicipal() bool           { return b.municipal }
func (b *Building) IsHousing() bool             { return b.housing }
func (b *Building) IsMarketplace() bool         { return b.spec.Kind == economy.Marketplace }

// HasProblems reports whether the last notification was a failure.
func (b *Building) HasProblems() bool { return b.problems }

// Notify records a notification. Any kind other than NotifyNone raises the
// problems flag; NotifyNone clears it.
func (b *Building) Notify(n Notification) {
	b.problems = n != NotifyNone
}

// TaxAmount returns the tax this building pays per successful tick.
func (b *Building) TaxAmount(l Ledger) int {
	return b.spec.Tax*b.level + l.TaxModifier(b.spec.Handle)
}

// View is the read-only rendering of a building for the API and snapshots.
type View struct {
	Kind        string            `json:"kind"`
	Name        string            `json:"name"`
	Handle      string            `json:"handle"`
	Level       int               `json:"level"`
	Levels      int               `json:"levels"`
	Stopped     bool              `json:"stopped"`
	Problems    bool              `json:"problems"`
	Production  bool              `json:"production"`
	Municipal   bool              `json:"municipal"`
	Housing     bool              `json:"housing"`
	Position    Position          `json:"position"`
	UpgradeCost economy.Resources `json:"upgrade_cost,omitempty"`
}

// View returns the building's current state.
func (b *Building) View() View {
	v := View{
		Kind:       b.spec.Kind,
		Name:       b.spec.Name,
		Handle:     b.spec.Handle,
		Level:      b.level,
		Levels:     b.spec.Levels,
		Stopped:    b.stopped,
		Problems:   b.problems,
		Production: b.production,
		Municipal:  b.municipal,
		Housing:    b.housing,
		Position:   b.position,
	}
	if b.spec.VisibleUpgrades {
		v.UpgradeCost, _ = b.UpgradeCosts()
	}
	return v
}
