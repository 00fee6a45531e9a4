// Package engine provides the turn-based simulation loop.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Turn schedule. One turn is one in-game day.
const (
	TurnsPerMonth   = 30
	MonthsPerYear   = 12
	TurnsPerYear    = TurnsPerMonth * MonthsPerYear
	MonthsPerSeason = 3
)

// Engine drives the simulation forward.
type Engine struct {
	Interval time.Duration // Base turn interval (default 1 second)

	tick atomic.Uint64 // Current turn counter (monotonic, never resets)

	mu      sync.Mutex
	speed   float64 // Multiplier: 1.0 = real-time, 0 = paused
	running bool
	cancel  context.CancelFunc

	// Callbacks for each layer, populated during setup.
	OnTurn  func(tick uint64) // Every turn
	OnMonth func(tick uint64) // Every 30 turns
	OnYear  func(tick uint64) // Every 360 turns
}

// NewEngine creates a simulation engine with default settings.
func NewEngine() *Engine {
	return &Engine{
		Interval: time.Second,
		speed:    1.0,
	}
}

// Tick returns the last completed turn.
func (e *Engine) Tick() uint64 { return e.tick.Load() }

// SetTick resumes the counter from a saved turn.
func (e *Engine) SetTick(t uint64) { e.tick.Store(t) }

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the speed multiplier. Zero pauses the loop.
func (e *Engine) SetSpeed(v float64) {
	e.mu.Lock()
	e.speed = v
	e.mu.Unlock()
}

// Running reports whether Run is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Run starts the simulation loop. Blocks until ctx is done or Stop is called.
func (e *Engine) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.running = true
	e.cancel = cancel
	speed := e.speed
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.cancel = nil
		e.mu.Unlock()
	}()

	slog.Info("simulation engine started", "tick", e.Tick(), "speed", speed)

	for {
		speed := e.Speed()
		wait := 100 * time.Millisecond
		if speed > 0 {
			start := time.Now()
			e.Step()
			// Sleep for the remainder of the turn interval, adjusted for speed.
			wait = time.Duration(float64(e.Interval)/speed) - time.Since(start)
		}
		if wait < 0 {
			wait = 0
		}

		select {
		case <-ctx.Done():
			slog.Info("simulation engine stopped", "tick", e.Tick())
			return
		case <-time.After(wait):
		}
	}
}

// Stop halts the simulation loop.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// Step advances the simulation by one turn.
func (e *Engine) Step() {
	tick := e.tick.Add(1)

	if e.OnTurn != nil {
		e.OnTurn(tick)
	}

	// Every month: settlement reports.
	if tick%TurnsPerMonth == 0 && e.OnMonth != nil {
		e.OnMonth(tick)
	}

	// Every year: event log trim and yearly summary.
	if tick%TurnsPerYear == 0 && e.OnYear != nil {
		e.OnYear(tick)
	}
}

var seasonNames = [4]string{"Spring", "Summer", "Autumn", "Winter"}

// SeasonName returns the season a turn falls in.
func SeasonName(tick uint64) string {
	month := (tick / TurnsPerMonth) % MonthsPerYear
	return seasonNames[month/MonthsPerSeason]
}

// SimTime returns a human-readable date for a turn number.
func SimTime(tick uint64) string {
	day := tick%TurnsPerMonth + 1
	month := (tick/TurnsPerMonth)%MonthsPerYear + 1
	year := tick/TurnsPerYear + 1
	return fmt.Sprintf("%s, Day %d Month %d, Year %d", SeasonName(tick), day, month, year)
}
