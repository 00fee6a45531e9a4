package building

import (
	"fmt"

	"github.com/talgya/civitas-sim/internal/economy"
)

// Bonus yields grant between 1 and maxBonus units.
const maxBonus = 5

// Outcome reports what one Process call did.
type Outcome struct {
	OK       bool
	Reason   Notification // Set when OK is false
	Consumed economy.Resources
	Produced economy.Resources
	Tax      int
}

// Process runs one tick for the building. Housing consumes its materials and
// pays tax; production buildings consume materials and store their outputs.
// A failed tick leaves the settlement untouched.
func (b *Building) Process(l Ledger, env *Env) Outcome {
	switch {
	case b.housing:
		return b.processHousing(l, env)
	case b.production:
		return b.processProduction(l, env)
	default:
		return Outcome{OK: true}
	}
}

func (b *Building) processHousing(l Ledger, env *Env) Outcome {
	if b.spec.Materials.IsZero() {
		return Outcome{OK: true}
	}
	consumed, ok := ResolveMaterials(l, b.spec.Materials)
	if !ok {
		return b.block(l, env, NotifyMissingResources)
	}
	l.RemoveResources(consumed)
	tax := b.TaxAmount(l)
	l.IncCoins(tax)

	b.Notify(NotifyNone)
	msg := fmt.Sprintf("%s used %s and got taxed for %d coins.", b.spec.Name, consumed, tax)
	env.logger().Info("building taxed",
		"settlement", l.Name(),
		"building", b.spec.Kind,
		"level", b.level,
		"consumed", consumed.String(),
		"tax", tax,
	)
	ev := b.event(l, EventTaxed, msg)
	ev.Consumed = consumed
	ev.Tax = tax
	env.emit(ev)
	return Outcome{OK: true, Consumed: consumed, Tax: tax}
}

func (b *Building) processProduction(l Ledger, env *Env) Outcome {
	if b.stopped {
		return b.block(l, env, NotifyPaused)
	}
	if reason := b.checkRequirements(l); reason != NotifyNone {
		return b.block(l, env, reason)
	}
	consumed, ok := ResolveMaterials(l, b.spec.Materials)
	if !ok {
		return b.block(l, env, NotifyMissingResources)
	}
	outputs := b.Outputs(l)
	if !l.HasStorageSpaceFor(outputs) {
		return b.block(l, env, NotifyNoStorageSpace)
	}

	l.RemoveResources(consumed)
	produced := b.produce(l, env, outputs)

	b.Notify(NotifyNone)
	var msg string
	if len(consumed) > 0 {
		msg = fmt.Sprintf("%s used %s and produced %s.", b.spec.Name, consumed, produced)
	} else {
		msg = fmt.Sprintf("%s produced %s.", b.spec.Name, produced)
	}
	env.logger().Info("building produced",
		"settlement", l.Name(),
		"building", b.spec.Kind,
		"level", b.level,
		"consumed", consumed.String(),
		"produced", produced.String(),
	)
	ev := b.event(l, EventProductionSucceeded, msg)
	ev.Consumed = consumed
	ev.Produced = produced
	env.emit(ev)
	return Outcome{OK: true, Consumed: consumed, Produced: produced}
}

// Diagnose returns what would block a production building if it ran now,
// without changing any state. Other buildings always report NotifyNone.
func (b *Building) Diagnose(l Ledger) Notification {
	if !b.production {
		return NotifyNone
	}
	if b.stopped {
		return NotifyPaused
	}
	if reason := b.checkRequirements(l); reason != NotifyNone {
		return reason
	}
	if _, ok := ResolveMaterials(l, b.spec.Materials); !ok {
		return NotifyMissingResources
	}
	if !l.HasStorageSpaceFor(b.Outputs(l)) {
		return NotifyNoStorageSpace
	}
	return NotifyNone
}

func (b *Building) block(l Ledger, env *Env, reason Notification) Outcome {
	b.Notify(reason)
	msg := reason.Message(b.spec.Name, l.Name())
	env.logger().Debug("building blocked",
		"settlement", l.Name(),
		"building", b.spec.Kind,
		"reason", reason.String(),
	)
	ev := b.event(l, EventProductionBlocked, msg)
	ev.Reason = reason
	env.emit(ev)
	return Outcome{Reason: reason}
}

// Outputs returns this tick's base production: every amount scaled by level,
// and the settlement's production modifier added to each stored good.
func (b *Building) Outputs(l Ledger) economy.Resources {
	out := b.spec.Production.Scale(b.level)
	mod := l.ProductionModifier(b.spec.Kind)
	if mod == 0 {
		return out
	}
	for k, v := range out {
		if !economy.IsStat(k) {
			out[k] = v + mod
		}
	}
	return out
}

// produce credits outputs and rolls the chance bonuses. Each stored output
// rolls every chance resource once; bonus units skip the capacity check.
func (b *Building) produce(l Ledger, env *Env, outputs economy.Resources) economy.Resources {
	produced := make(economy.Resources, len(outputs))
	chances := b.spec.ChanceResources()
	for _, res := range outputs.Keys() {
		amount := outputs[res]
		if economy.IsStat(res) {
			l.RaiseStat(res, amount)
			produced[res] += amount
			continue
		}
		l.AddToStorage(res, amount)
		produced[res] += amount

		for _, bonus := range chances {
			if env.Rand.Float64()*float64(b.level) < b.spec.Chance[bonus] {
				n := env.Rand.Intn(maxBonus) + 1
				l.AddToStorage(bonus, n)
				produced[bonus] += n
			}
		}
	}
	return produced
}

// ResolveMaterials picks the bundle a tick would consume. Fixed materials
// must be held in full. For alternatives, each entry takes its first option
// the settlement can cover on top of what earlier entries already chose.
// It reports false if any entry has no affordable option.
func ResolveMaterials(l Ledger, m economy.Materials) (economy.Resources, bool) {
	switch m.Kind {
	case economy.MaterialsFixed:
		if !l.HasResources(m.Fixed) {
			return nil, false
		}
		return m.Fixed.Clone(), true
	case economy.MaterialsAlternatives:
		chosen := economy.Resources{}
		for _, entry := range m.Alternatives {
			picked := false
			for _, alt := range entry {
				if l.Stock(alt.Resource) >= chosen[alt.Resource]+alt.Amount {
					chosen[alt.Resource] += alt.Amount
					picked = true
					break
				}
			}
			if !picked {
				return nil, false
			}
		}
		return chosen, true
	default:
		return economy.Resources{}, true
	}
}
