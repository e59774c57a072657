/*
Package clock abstracts wall-clock access so interval-driven behavior
can be tested deterministically.

PURPOSE:
  Every component that reads "now" (purchase staleness checks, leaderboard
  windows, pruning, scheduler ticks) takes a Clock instead of calling
  time.Now directly. Production wiring uses System; tests use Manual and
  advance time explicitly, so no test ever sleeps on a real timer.

USAGE:
  clk := clock.NewManual(start)
  sched := scheduler.New(l, board, rec, remote, local, clk)
  clk.Advance(5 * time.Minute) // fires the scheduler tick

SEE ALSO:
  - scheduler/scheduler.go: the main consumer of NewTicker
  - leaderboard/engine.go: uses Now for windows and pruning
*/
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time and interval tickers.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTicker returns a ticker firing every d.
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of time.Ticker the engine needs.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// =============================================================================
// SYSTEM CLOCK - Real time
// =============================================================================

// System is the production clock backed by the time package.
type System struct{}

func NewSystem() System { return System{} }

func (System) Now() time.Time { return time.Now() }

func (System) NewTicker(d time.Duration) Ticker {
	return systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (st systemTicker) Chan() <-chan time.Time { return st.t.C }
func (st systemTicker) Stop()                  { st.t.Stop() }

// =============================================================================
// MANUAL CLOCK - Test time, advanced explicitly
// =============================================================================

// Manual is a controllable clock for tests. Time only moves when Advance
// or Set is called. Tickers fire synchronously during Advance, once per
// elapsed interval.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set jumps the clock to t without firing tickers.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance moves the clock forward by d, firing due tickers in order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	tickers := append([]*manualTicker(nil), m.tickers...)
	m.now = target
	m.mu.Unlock()

	for _, mt := range tickers {
		mt.advanceTo(target)
	}
}

func (m *Manual) NewTicker(d time.Duration) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt := &manualTicker{
		interval: d,
		next:     m.now.Add(d),
		ch:       make(chan time.Time, 64),
		parent:   m,
	}
	m.tickers = append(m.tickers, mt)
	return mt
}

type manualTicker struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
	ch       chan time.Time
	stopped  bool
	parent   *Manual
}

func (mt *manualTicker) Chan() <-chan time.Time { return mt.ch }

func (mt *manualTicker) Stop() {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.stopped = true
}

func (mt *manualTicker) advanceTo(target time.Time) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	for !mt.stopped && !mt.next.After(target) {
		select {
		case mt.ch <- mt.next:
		default:
			// Receiver is behind; drop the tick like time.Ticker does.
		}
		mt.next = mt.next.Add(mt.interval)
	}
}
