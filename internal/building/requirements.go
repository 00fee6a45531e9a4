package building

// HasRequirements reports whether every gate on this building passes.
func (b *Building) HasRequirements(l Ledger) bool {
	return b.checkRequirements(l) == NotifyNone
}

func (b *Building) checkRequirements(l Ledger) Notification {
	if !b.HasBuildingRequirements(l) {
		return NotifyMissingRequirements
	}
	if !b.HasSettlementRequirements(l) {
		return NotifySettlementLevelTooLow
	}
	if !b.HasResearchRequirements(l) {
		return NotifyMissingRequirements
	}
	return NotifyNone
}

// HasBuildingRequirements walks the chain of required buildings. Each one
// must be built at the required level, running, and meet its own building
// and settlement-level requirements. A cycle in the chain fails.
func (b *Building) HasBuildingRequirements(l Ledger) bool {
	return b.buildingChain(l, make(map[string]bool))
}

func (b *Building) buildingChain(l Ledger, visiting map[string]bool) bool {
	if visiting[b.spec.Kind] {
		return false
	}
	visiting[b.spec.Kind] = true
	defer delete(visiting, b.spec.Kind)

	req := b.spec.Requires
	for _, kind := range req.RequiredKinds() {
		if !l.IsBuildingBuilt(kind, req.Buildings[kind]) {
			return false
		}
		parent := l.Building(kind)
		if parent == nil || parent.Stopped() {
			return false
		}
		if !parent.buildingChain(l, visiting) || !parent.HasSettlementRequirements(l) {
			return false
		}
	}
	return true
}

// HasResearchRequirements reports whether the required research is done.
func (b *Building) HasResearchRequirements(l Ledger) bool {
	r := b.spec.Requires.Research
	return r == "" || l.HasResearch(r)
}

// HasSettlementRequirements reports whether the settlement is at the
// required level.
func (b *Building) HasSettlementRequirements(l Ledger) bool {
	return l.Level() >= b.spec.Requires.SettlementLevel
}
