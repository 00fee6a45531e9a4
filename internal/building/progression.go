package building

import (
	"fmt"

	"github.com/talgya/civitas-sim/internal/economy"
)

// IsUpgradable reports whether the building is below its level cap.
func (b *Building) IsUpgradable() bool { return b.level < b.spec.Levels }

// IsDowngradable reports whether the building is above level 1.
func (b *Building) IsDowngradable() bool { return b.level > 1 }

// UpgradeCosts returns the cost of the next level: the base cost scaled by
// the level being reached. It reports false at the level cap.
func (b *Building) UpgradeCosts() (economy.Resources, bool) {
	if !b.IsUpgradable() {
		return nil, false
	}
	return b.spec.Cost.Scale(b.level + 1), true
}

// Upgrade pays the upgrade cost and raises the level by one. A storage
// building adds its flat bonus once more.
func (b *Building) Upgrade(l Ledger, env *Env) bool {
	costs, ok := b.UpgradeCosts()
	if !ok || !l.IsBuildingBuilt(b.spec.Kind, 1) {
		return false
	}
	if !l.HasResources(costs) {
		env.emit(b.event(l, EventUpgradeFailed,
			fmt.Sprintf("%s doesn't have enough resources to upgrade %s.", l.Name(), b.spec.Name)))
		return false
	}
	l.RemoveResources(costs)
	b.level++
	if b.spec.Storage != 0 {
		l.AdjustStorage(b.spec.Storage)
	}
	env.logger().Info("building upgraded",
		"settlement", l.Name(),
		"building", b.spec.Kind,
		"level", b.level,
		"cost", costs.String(),
	)
	ev := b.event(l, EventUpgraded, fmt.Sprintf("%s upgraded to level %d.", b.spec.Name, b.level))
	ev.Consumed = costs
	env.emit(ev)
	return true
}

// Downgrade lowers the level by one without refunding anything.
func (b *Building) Downgrade(l Ledger, env *Env) bool {
	if !b.IsDowngradable() || !l.IsBuildingBuilt(b.spec.Kind, 1) {
		return false
	}
	b.level--
	if b.spec.Storage != 0 {
		l.AdjustStorage(-b.spec.Storage)
	}
	env.logger().Info("building downgraded",
		"settlement", l.Name(),
		"building", b.spec.Kind,
		"level", b.level,
	)
	env.emit(b.event(l, EventDowngraded, fmt.Sprintf("%s downgraded to level %d.", b.spec.Name, b.level)))
	return true
}

// Start resumes a production building.
func (b *Building) Start(l Ledger, env *Env) bool {
	if !b.production || !l.IsBuildingBuilt(b.spec.Kind, 1) {
		return false
	}
	b.Notify(NotifyNone)
	b.stopped = false
	env.emit(b.event(l, EventProductionStarted, fmt.Sprintf("%s's production started.", b.spec.Name)))
	return true
}

// Stop pauses a production building.
func (b *Building) Stop(l Ledger, env *Env) bool {
	if !b.production || !l.IsBuildingBuilt(b.spec.Kind, 1) {
		return false
	}
	b.Notify(NotifyPaused)
	b.stopped = true
	env.emit(b.event(l, EventProductionStopped, NotifyPaused.Message(b.spec.Name, l.Name())))
	return true
}

// Demolish removes the building from the settlement and takes back the
// storage it granted. The marketplace can never be demolished.
func (b *Building) Demolish(l Ledger, env *Env) bool {
	if b.IsMarketplace() {
		env.emit(b.event(l, EventDemolishRefused,
			fmt.Sprintf("Unable to demolish the %s.", b.spec.Name)))
		return false
	}
	if !l.RemoveBuilding(b) {
		return false
	}
	if b.spec.Storage != 0 {
		l.AdjustStorage(-b.spec.Storage * b.level)
	}
	env.logger().Info("building demolished",
		"settlement", l.Name(),
		"building", b.spec.Kind,
		"level", b.level,
	)
	env.emit(b.event(l, EventDemolished, fmt.Sprintf("%s demolished.", b.spec.Name)))
	return true
}
