/*
scheduler.go - Periodic reconciliation with the remote store

PURPOSE:
  Drives the push/pull cycles that keep the remote store eventually
  consistent with local authoritative state, plus the periodic pruning
  of inactive leaderboard snapshots. Callers are never blocked: syncs
  run on a background goroutine, and an on-demand sync that overlaps a
  running one is dropped, not queued.

STATE MACHINE (per resource - ledger, leaderboard):
  idle -> syncing -> idle
  The syncing guard is a CAS; a second sync attempt while one is in
  flight returns ErrSyncInProgress and does nothing.

LOCK DISCIPLINE:
  The outgoing payload is computed under the resource locks, the locks
  are released, THEN the network calls run (bounded by NetworkTimeout),
  and confirmed results are applied by re-acquiring the locks. No
  ledger or snapshot lock is ever held across a network call.

FAILURE & CANCELLATION:
  Any failure inside a cycle is logged and the cycle moves on; the next
  tick retries from current state. A stop request cancels cleanly
  between resources, never mid-resource.

SEE ALSO:
  - store/store.go: RemoteStore contract (no multi-document atomicity)
  - purchase/reconciler.go: retry queue drained by the ledger cycle
*/
package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warp/gamify-engine/clock"
	"github.com/warp/gamify-engine/leaderboard"
	"github.com/warp/gamify-engine/ledger"
	"github.com/warp/gamify-engine/purchase"
	"github.com/warp/gamify-engine/store"
)

// Defaults per the sync design: ledger and leaderboard refresh every
// five minutes, network calls are bounded at ten seconds.
const (
	DefaultLedgerInterval      = 5 * time.Minute
	DefaultLeaderboardInterval = 5 * time.Minute
	DefaultNetworkTimeout      = 10 * time.Second
)

// ErrSyncInProgress is returned when a sync is requested for a resource
// that is already syncing. The request is dropped, not queued.
var ErrSyncInProgress = errors.New("sync already in progress")

const (
	stateIdle int32 = iota
	stateSyncing
)

// Scheduler coordinates periodic ledger and leaderboard sync cycles.
type Scheduler struct {
	Ledger     *ledger.Ledger
	Board      *leaderboard.Engine
	Reconciler *purchase.Reconciler
	Remote     store.RemoteStore
	Local      store.LocalStore // optional

	LedgerInterval      time.Duration
	LeaderboardInterval time.Duration
	NetworkTimeout      time.Duration
	RetentionDays       int

	clk clock.Clock

	ledgerState int32 // idle/syncing, CAS-guarded
	boardState  int32

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

func New(l *ledger.Ledger, board *leaderboard.Engine, rec *purchase.Reconciler, remote store.RemoteStore, local store.LocalStore, clk clock.Clock) *Scheduler {
	return &Scheduler{
		Ledger:              l,
		Board:               board,
		Reconciler:          rec,
		Remote:              remote,
		Local:               local,
		LedgerInterval:      DefaultLedgerInterval,
		LeaderboardInterval: DefaultLeaderboardInterval,
		NetworkTimeout:      DefaultNetworkTimeout,
		RetentionDays:       leaderboard.DefaultRetentionDays,
		clk:                 clk,
	}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Start launches the background loop: an immediate first cycle for both
// resources, then interval-driven cycles. Idempotent while running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run()

	log.Printf("[Scheduler] Started (ledger every %v, leaderboard every %v)",
		s.LedgerInterval, s.LeaderboardInterval)
}

// Stop halts the loop. A cycle in flight finishes its current resource
// first; local state is never left mid-mutation.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	close(s.stop)
	s.wg.Wait()
	s.started = false
	log.Println("[Scheduler] Stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ledgerTicker := s.clk.NewTicker(s.LedgerInterval)
	defer ledgerTicker.Stop()
	boardTicker := s.clk.NewTicker(s.LeaderboardInterval)
	defer boardTicker.Stop()

	// Single-shot on start: pull before the first tick so persisted
	// local state reconciles immediately.
	s.runCycle()

	for {
		select {
		case <-ledgerTicker.Chan():
			s.syncOne("ledger", s.SyncLedger)
		case <-boardTicker.Chan():
			s.syncOne("leaderboard", s.SyncLeaderboard)
		case <-s.stop:
			return
		}
	}
}

// runCycle syncs both resources, checking for cancellation between them
// (never mid-resource).
func (s *Scheduler) runCycle() {
	s.syncOne("ledger", s.SyncLedger)

	select {
	case <-s.stop:
		return
	default:
	}

	s.syncOne("leaderboard", s.SyncLeaderboard)
}

func (s *Scheduler) syncOne(name string, sync func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.NetworkTimeout)
	defer cancel()

	if err := sync(ctx); err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			return
		}
		log.Printf("[Scheduler] %s sync failed, retrying next tick: %v", name, err)
	}
}

// RunNow triggers an immediate cycle for both resources (admin/tests).
func (s *Scheduler) RunNow() {
	s.syncOne("ledger", s.SyncLedger)
	s.syncOne("leaderboard", s.SyncLeaderboard)
}

// =============================================================================
// LEDGER CYCLE
// =============================================================================

// SyncLedger pushes account states and owed purchase records, then
// pulls remotely-completed purchases not yet reflected locally. Returns
// ErrSyncInProgress if a ledger sync is already running.
func (s *Scheduler) SyncLedger(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.ledgerState, stateIdle, stateSyncing) {
		return ErrSyncInProgress
	}
	defer atomic.StoreInt32(&s.ledgerState, stateIdle)

	// Payload first, under the ledger locks; network after, without them.
	states := s.Ledger.States()
	owed := s.Reconciler.RetryQueue()

	var firstErr error
	var stillOwed []ledger.PurchaseRecord
	for _, rec := range owed {
		if err := s.Remote.PutPurchase(ctx, rec); err != nil {
			stillOwed = append(stillOwed, rec)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	s.Reconciler.Requeue(stillOwed)

	for _, state := range states {
		if err := s.Remote.PutAccount(ctx, state); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		// Pull: purchases completed server-side (e.g. by a payment
		// webhook) that local state has not seen.
		remote, err := s.Remote.ListPurchases(ctx, state.ID, ledger.PurchaseCompleted)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, rec := range remote {
			if err := s.Reconciler.AdoptRemote(ctx, rec); err != nil {
				log.Printf("[Scheduler] Skipping remote purchase %s: %v", rec.ID, err)
			}
		}
	}

	s.persistLedger(ctx)

	if firstErr != nil {
		return firstErr
	}
	return nil
}

// =============================================================================
// LEADERBOARD CYCLE
// =============================================================================

// SyncLeaderboard prunes inactive snapshots, pushes the local
// collection, pulls remote snapshots not reflected locally, and
// recomputes ranks once. Returns ErrSyncInProgress when overlapping.
func (s *Scheduler) SyncLeaderboard(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.boardState, stateIdle, stateSyncing) {
		return ErrSyncInProgress
	}
	defer atomic.StoreInt32(&s.boardState, stateIdle)

	s.Board.PruneInactive(s.RetentionDays)

	// Snapshot the collection under its lock, then go to the network.
	state := s.Board.State()

	var firstErr error
	for _, snap := range state.Snapshots {
		if err := s.Remote.PutSnapshot(ctx, snap); err != nil {
			firstErr = err
			break
		}
	}

	// The pull is bounded at the retention horizon: the remote store never
	// deletes, so anything older would resurrect snapshots the prune just
	// removed.
	since := s.clk.Now().AddDate(0, 0, -s.RetentionDays)
	remote, err := s.Remote.ListSnapshots(ctx, since)
	if err != nil {
		if firstErr == nil {
			firstErr = err
		}
	} else {
		known := make(map[leaderboard.SnapshotID]leaderboard.Snapshot, len(state.Snapshots))
		for _, snap := range state.Snapshots {
			known[snap.ID] = snap
		}
		for _, snap := range remote {
			if snap.LastActiveAt.Before(since) {
				continue
			}
			local, ok := known[snap.ID]
			if !ok || snap.LastActiveAt.After(local.LastActiveAt) {
				s.Board.Upsert(snap)
			}
		}
	}

	s.Board.RecomputeRanks()
	s.persistBoard(ctx)

	return firstErr
}

// =============================================================================
// LOCAL PERSISTENCE - Offline resilience
// =============================================================================

func (s *Scheduler) persistLedger(ctx context.Context) {
	if s.Local == nil {
		return
	}
	for _, state := range s.Ledger.States() {
		if err := s.Local.SaveAccount(ctx, state); err != nil {
			log.Printf("[Scheduler] Failed to persist account %s: %v", state.ID, err)
		}
	}
}

func (s *Scheduler) persistBoard(ctx context.Context) {
	if s.Local == nil {
		return
	}
	if err := s.Local.SaveLeaderboard(ctx, s.Board.State()); err != nil {
		log.Printf("[Scheduler] Failed to persist leaderboard: %v", err)
	}
}
