package engine

import (
	"fmt"
	"log/slog"

	"github.com/talgya/civitas-sim/internal/building"
	"github.com/talgya/civitas-sim/internal/social"
)

// Action is an owner command on a building.
type Action string

const (
	ActionBuild     Action = "build"
	ActionUpgrade   Action = "upgrade"
	ActionDowngrade Action = "downgrade"
	ActionStart     Action = "start"
	ActionStop      Action = "stop"
	ActionDemolish  Action = "demolish"
)

// ParseAction validates an action name.
func ParseAction(name string) (Action, error) {
	switch a := Action(name); a {
	case ActionBuild, ActionUpgrade, ActionDowngrade, ActionStart, ActionStop, ActionDemolish:
		return a, nil
	}
	return "", fmt.Errorf("%q: %w", name, ErrUnknownAction)
}

// BuildingAction applies an owner command to the first building of kind in
// a settlement. The bool is the building's own verdict; errors mean the
// command could not be addressed at all.
func (s *Simulation) BuildingAction(id social.SettlementID, kind string, action Action) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sett, ok := s.index[id]
	if !ok {
		return false, fmt.Errorf("settlement %d: %w", id, ErrSettlementNotFound)
	}

	if action == ActionBuild {
		return s.construct(sett, kind)
	}

	b := sett.Building(kind)
	if b == nil {
		return false, fmt.Errorf("%s in settlement %d: %w", kind, id, ErrBuildingNotFound)
	}

	var done bool
	switch action {
	case ActionUpgrade:
		done = b.Upgrade(sett, s.env)
	case ActionDowngrade:
		done = b.Downgrade(sett, s.env)
	case ActionStart:
		done = b.Start(sett, s.env)
	case ActionStop:
		done = b.Stop(sett, s.env)
	case ActionDemolish:
		done = b.Demolish(sett, s.env)
	default:
		return false, fmt.Errorf("%q: %w", action, ErrUnknownAction)
	}
	s.updateStats()

	slog.Info("building action",
		"settlement", sett.Name(),
		"building", kind,
		"action", string(action),
		"ok", done,
	)
	return done, nil
}

// construct pays a building's base cost and adds it. Callers hold mu.
func (s *Simulation) construct(sett *social.Settlement, kind string) (bool, error) {
	spec, err := s.catalog.Get(kind)
	if err != nil {
		return false, err
	}
	if !sett.HasResources(spec.Cost) {
		return false, nil
	}
	sett.RemoveResources(spec.Cost)
	building.Build(sett, s.env, spec, building.Options{Position: nextPosition(sett)})
	s.updateStats()
	return true, nil
}

// GrantResearch marks research as completed in a settlement.
func (s *Simulation) GrantResearch(id social.SettlementID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sett, ok := s.index[id]
	if !ok {
		return fmt.Errorf("settlement %d: %w", id, ErrSettlementNotFound)
	}
	sett.AddResearch(name)
	s.EmitEvent(Event{
		Tick:        s.lastTick,
		Description: fmt.Sprintf("%s completed research on %s", sett.Name(), name),
		Category:    CategoryAdmin,
		Meta:        map[string]any{"settlement_id": id, "research": name},
	})
	return nil
}

// SetSettlementLevel changes a settlement's level.
func (s *Simulation) SetSettlementLevel(id social.SettlementID, level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sett, ok := s.index[id]
	if !ok {
		return fmt.Errorf("settlement %d: %w", id, ErrSettlementNotFound)
	}
	sett.SetLevel(level)
	s.EmitEvent(Event{
		Tick:        s.lastTick,
		Description: fmt.Sprintf("%s is now level %d", sett.Name(), sett.Level()),
		Category:    CategoryAdmin,
		Meta:        map[string]any{"settlement_id": id, "level": sett.Level()},
	})
	return nil
}
