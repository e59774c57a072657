/*
engine.go - Ranked, time-windowed leaderboard

PURPOSE:
  The Engine owns the snapshot collection and is the only component that
  mutates it, rank fields included. It ingests per-participant stat
  updates, recomputes ranks as an all-or-nothing pass, serves windowed
  read-only views, and prunes inactive participants.

CRITICAL INVARIANTS:
  1. Rank fields are recomputed together, atomically, for the whole
     collection. Readers see the pre- or post-recompute ranking, never an
     interleaving. Previous is always the Current of the immediately
     prior recomputation.
  2. Ties on points break by insertion order (stable sort): first seen
     ranks higher.
  3. Guest sequence numbers are assigned once from a monotonic counter
     and never reused, even after the guest is pruned.
  4. Windowed views never mutate rank fields.

CONCURRENCY:
  RW-lock over the collection. Ingest/RecomputeRanks/PruneInactive take
  the write lock; Window and Get take the read lock and return copies.

SEE ALSO:
  - snapshot.go: types and windows
  - achievements.go: badge derivation
*/
package leaderboard

import (
	"fmt"
	"sort"
	"sync"

	"github.com/warp/gamify-engine/clock"
)

// DefaultRetentionDays is how long an inactive snapshot survives before
// the pruning sweep removes it.
const DefaultRetentionDays = 30

// DefaultLimit caps windowed leaderboard views.
const DefaultLimit = 100

// Engine maintains the snapshot collection and its ranking.
// Safe for concurrent use.
type Engine struct {
	clk clock.Clock

	mu        sync.RWMutex
	snapshots map[SnapshotID]*Snapshot
	order     []SnapshotID // insertion order, drives tie-breaking
	guestSeq  int64        // monotonic, never reused
}

func NewEngine(clk clock.Clock) *Engine {
	return &Engine{
		clk:       clk,
		snapshots: make(map[SnapshotID]*Snapshot),
	}
}

// =============================================================================
// INGESTION
// =============================================================================

// Ingest upserts the snapshot for id: caller stats are copied in,
// achievements are rederived, and LastActiveAt is set to the ingestion
// time. The first ingestion of a new guest identity assigns the next
// guest sequence number and, if no display name was supplied, a
// "Guest N" name. Returns a copy of the stored snapshot.
func (e *Engine) Ingest(id SnapshotID, stats Stats) Snapshot {
	now := e.clk.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	snap, ok := e.snapshots[id]
	if !ok {
		snap = &Snapshot{ID: id}
		e.snapshots[id] = snap
		e.order = append(e.order, id)

		if stats.IsGuest {
			e.guestSeq++
			snap.GuestSequence = e.guestSeq
		}
	}

	snap.IsGuest = stats.IsGuest
	snap.DisplayName = stats.DisplayName
	if snap.DisplayName == "" && snap.IsGuest {
		snap.DisplayName = fmt.Sprintf("Guest %d", snap.GuestSequence)
	}
	snap.PhotoRef = stats.PhotoRef
	snap.Points = stats.Points
	snap.StreakDays = stats.StreakDays
	snap.CompletionRatePercent = stats.CompletionRatePercent
	snap.TotalHabits = stats.TotalHabits
	snap.TotalCompletions = stats.TotalCompletions
	snap.Achievements = deriveAchievements(stats)
	snap.LastActiveAt = now

	return *snap
}

// Get returns a copy of the snapshot for id.
func (e *Engine) Get(id SnapshotID) (Snapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap, ok := e.snapshots[id]
	if !ok {
		return Snapshot{}, false
	}
	return *snap, true
}

// =============================================================================
// RANKING
// =============================================================================

// RecomputeRanks re-sorts the whole collection by points descending
// (insertion order breaks ties) and rewrites every rank triple in one
// pass under the write lock: Previous = old Current, Current = 1-based
// position, Change = Previous - Current.
func (e *Engine) RecomputeRanks() {
	e.mu.Lock()
	defer e.mu.Unlock()

	ranked := e.sortedByPointsLocked()
	for i, snap := range ranked {
		prev := snap.Rank.Current
		if prev == 0 {
			// Never ranked before; a fresh entry shows no movement.
			prev = i + 1
		}
		snap.Rank = Rank{
			Current:  i + 1,
			Previous: prev,
			Change:   prev - (i + 1),
		}
	}
}

// sortedByPointsLocked returns the live snapshots ordered by points
// descending, insertion order on ties. Caller must hold the lock.
func (e *Engine) sortedByPointsLocked() []*Snapshot {
	ranked := make([]*Snapshot, 0, len(e.order))
	for _, id := range e.order {
		ranked = append(ranked, e.snapshots[id])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Points > ranked[j].Points
	})
	return ranked
}

// =============================================================================
// WINDOWED VIEWS
// =============================================================================

// Window returns up to limit snapshots active within the window, ordered
// by points descending. Read-only projection: rank fields are whatever
// the last RecomputeRanks produced. limit <= 0 means DefaultLimit.
func (e *Engine) Window(w Window, limit int) []Snapshot {
	if limit <= 0 {
		limit = DefaultLimit
	}
	cutoff := e.clk.Now().Add(-w.Duration())

	e.mu.RLock()
	defer e.mu.RUnlock()

	var result []Snapshot
	for _, snap := range e.sortedByPointsLocked() {
		if snap.LastActiveAt.Before(cutoff) {
			continue
		}
		result = append(result, *snap)
		if len(result) == limit {
			break
		}
	}
	return result
}

// =============================================================================
// PRUNING
// =============================================================================

// PruneInactive hard-deletes every snapshot whose LastActiveAt is older
// than retentionDays. The guest counter is untouched: pruned guests'
// sequence numbers are never reissued. Returns how many were removed.
func (e *Engine) PruneInactive(retentionDays int) int {
	cutoff := e.clk.Now().AddDate(0, 0, -retentionDays)

	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.order[:0]
	removed := 0
	for _, id := range e.order {
		if e.snapshots[id].LastActiveAt.Before(cutoff) {
			delete(e.snapshots, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	e.order = kept
	return removed
}

// Len returns the number of live snapshots.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.snapshots)
}

// =============================================================================
// STATE - For persistence and sync
// =============================================================================

// State is the persistable form of the collection. GuestCounter travels
// with the snapshots so a restart never reissues a sequence number.
type State struct {
	Snapshots    []Snapshot
	GuestCounter int64
}

// State captures the collection in insertion order under the read lock.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(e.order))
	for _, id := range e.order {
		snaps = append(snaps, *e.snapshots[id])
	}
	return State{Snapshots: snaps, GuestCounter: e.guestSeq}
}

// Restore replaces the collection from persisted state. The guest
// counter only ever moves forward, even against stale state.
func (e *Engine) Restore(state State) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.snapshots = make(map[SnapshotID]*Snapshot, len(state.Snapshots))
	e.order = e.order[:0]
	for i := range state.Snapshots {
		snap := state.Snapshots[i]
		e.snapshots[snap.ID] = &snap
		e.order = append(e.order, snap.ID)
		if snap.GuestSequence > e.guestSeq {
			e.guestSeq = snap.GuestSequence
		}
	}
	if state.GuestCounter > e.guestSeq {
		e.guestSeq = state.GuestCounter
	}
}

// Upsert applies a remotely-recorded snapshot (sync pull). Unlike
// Ingest, it preserves the remote LastActiveAt and rank fields instead
// of stamping local time.
func (e *Engine) Upsert(snap Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.snapshots[snap.ID]; !ok {
		e.order = append(e.order, snap.ID)
	}
	stored := snap
	e.snapshots[snap.ID] = &stored
	if snap.GuestSequence > e.guestSeq {
		e.guestSeq = snap.GuestSequence
	}
}
