package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/civitas-sim/internal/building"
)

// MaxEvents is how many recent events the log keeps.
const MaxEvents = 1000

// Event categories.
const (
	CategoryProduction = "production"
	CategoryBlocked    = "blocked"
	CategoryTax        = "tax"
	CategoryBuilding   = "building"
	CategorySettlement = "settlement"
	CategoryAdmin      = "admin"
)

// subscriberBuffer is the per-subscriber queue; slow subscribers drop events.
const subscriberBuffer = 64

// Event is a notable occurrence in the world.
type Event struct {
	ID          uuid.UUID      `json:"id"`
	Tick        uint64         `json:"tick"`
	Time        time.Time      `json:"time"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// EmitEvent records an event and fans it out to subscribers. Missing id,
// tick and time are filled in.
func (s *Simulation) EmitEvent(e Event) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	s.evMu.Lock()
	defer s.evMu.Unlock()
	s.events = append(s.events, e)
	if len(s.events) > MaxEvents {
		s.events = s.events[len(s.events)-MaxEvents:]
	}
	for _, ch := range s.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}

// BuildingEvent records a building notification as a simulation event.
// Building operations run under mu, so the tick is read without locking.
func (s *Simulation) BuildingEvent(be building.Event) {
	desc := be.Message
	if desc == "" {
		desc = fmt.Sprintf("%s in %s: %s", be.Name, be.Settlement, be.Kind)
	}
	meta := map[string]any{
		"settlement_name": be.Settlement,
		"building":        be.Building,
		"handle":          be.Handle,
		"level":           be.Level,
		"kind":            string(be.Kind),
	}
	if be.Reason != building.NotifyNone {
		meta["reason"] = be.Reason.String()
	}
	if len(be.Consumed) > 0 {
		meta["consumed"] = be.Consumed
	}
	if len(be.Produced) > 0 {
		meta["produced"] = be.Produced
	}
	if be.Tax != 0 {
		meta["tax"] = be.Tax
	}
	s.EmitEvent(Event{
		Tick:        s.lastTick,
		Description: desc,
		Category:    categoryOf(be.Kind),
		Meta:        meta,
	})
}

func categoryOf(k building.EventKind) string {
	switch k {
	case building.EventProductionSucceeded:
		return CategoryProduction
	case building.EventProductionBlocked:
		return CategoryBlocked
	case building.EventTaxed:
		return CategoryTax
	default:
		return CategoryBuilding
	}
}

// RecentEvents returns up to limit of the newest events, oldest first,
// optionally filtered by category.
func (s *Simulation) RecentEvents(limit int, category string) []Event {
	s.evMu.Lock()
	defer s.evMu.Unlock()

	var out []Event
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		if category != "" && s.events[i].Category != category {
			continue
		}
		out = append(out, s.events[i])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Events returns a copy of the whole log, oldest first.
func (s *Simulation) Events() []Event {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Subscribe registers a listener for new events.
func (s *Simulation) Subscribe() (uuid.UUID, <-chan Event) {
	id := uuid.New()
	ch := make(chan Event, subscriberBuffer)
	s.evMu.Lock()
	s.subscribers[id] = ch
	s.evMu.Unlock()
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (s *Simulation) Unsubscribe(id uuid.UUID) {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		delete(s.subscribers, id)
		close(ch)
	}
}
