package building

import (
	"fmt"

	"github.com/talgya/civitas-sim/internal/economy"
)

// Notification is the discrete status a building shows after an operation.
type Notification uint8

const (
	NotifyNone Notification = iota
	NotifyPaused
	NotifyMissingResources
	NotifyMissingRequirements
	NotifyNoStorageSpace
	NotifySettlementLevelTooLow
)

var notificationNames = [...]string{
	"none",
	"paused",
	"missing_resources",
	"missing_requirements",
	"no_storage_space",
	"settlement_level_too_low",
}

func (n Notification) String() string {
	if int(n) < len(notificationNames) {
		return notificationNames[n]
	}
	return fmt.Sprintf("notification(%d)", uint8(n))
}

// MarshalText renders the notification by name.
func (n Notification) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// Message returns the player-facing line for a notification.
func (n Notification) Message(building, settlement string) string {
	switch n {
	case NotifyPaused:
		return fmt.Sprintf("%s's production is stopped.", building)
	case NotifyMissingRequirements:
		return fmt.Sprintf("%s doesn't have one of the buildings required to be operational.", building)
	case NotifyNoStorageSpace:
		return fmt.Sprintf("There is no storage space in %s to accommodate the new goods.", settlement)
	case NotifySettlementLevelTooLow:
		return fmt.Sprintf("%s's level is too low for %s to be active.", settlement, building)
	case NotifyMissingResources:
		return fmt.Sprintf("%s is missing materials for production.", building)
	default:
		return ""
	}
}

// EventKind names what happened to a building.
type EventKind string

const (
	EventProductionSucceeded EventKind = "production_succeeded"
	EventProductionBlocked   EventKind = "production_blocked"
	EventTaxed               EventKind = "building_taxed"
	EventUpgraded            EventKind = "building_upgraded"
	EventUpgradeFailed       EventKind = "building_upgrade_failed"
	EventDowngraded          EventKind = "building_downgraded"
	EventProductionStarted   EventKind = "production_started"
	EventProductionStopped   EventKind = "production_stopped"
	EventDemolished          EventKind = "building_demolished"
	EventDemolishRefused     EventKind = "building_demolish_refused"
	EventConstructed         EventKind = "building_constructed"
)

// Event is a structured notification for presentation layers.
type Event struct {
	Kind       EventKind         `json:"kind"`
	Settlement string            `json:"settlement"`
	Building   string            `json:"building"` // Kind
	Name       string            `json:"name"`
	Handle     string            `json:"handle"`
	Level      int               `json:"level"`
	Reason     Notification      `json:"reason,omitempty"`
	Consumed   economy.Resources `json:"consumed,omitempty"`
	Produced   economy.Resources `json:"produced,omitempty"`
	Tax        int               `json:"tax,omitempty"`
	Message    string            `json:"message"`
}

// EventSink receives building events.
type EventSink interface {
	BuildingEvent(Event)
}

// EventFunc adapts a function to an EventSink.
type EventFunc func(Event)

func (f EventFunc) BuildingEvent(e Event) { f(e) }

func (b *Building) event(l Ledger, kind EventKind, msg string) Event {
	return Event{
		Kind:       kind,
		Settlement: l.Name(),
		Building:   b.spec.Kind,
		Name:       b.spec.Name,
		Handle:     b.spec.Handle,
		Level:      b.level,
		Message:    msg,
	}
}
