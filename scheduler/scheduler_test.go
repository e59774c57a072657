package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/gamify-engine/catalog"
	"github.com/warp/gamify-engine/clock"
	"github.com/warp/gamify-engine/leaderboard"
	"github.com/warp/gamify-engine/ledger"
	"github.com/warp/gamify-engine/purchase"
	"github.com/warp/gamify-engine/scheduler"
	"github.com/warp/gamify-engine/store"
	"github.com/warp/gamify-engine/store/memory"
	"github.com/warp/gamify-engine/store/sqlite"
)

// =============================================================================
// TEST FIXTURE
// =============================================================================

var schedStart = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

type env struct {
	ledger *ledger.Ledger
	board  *leaderboard.Engine
	remote *memory.Remote
	rec    *purchase.Reconciler
	clk    *clock.Manual
	sched  *scheduler.Scheduler
}

func newEnv(t *testing.T, local store.LocalStore) *env {
	t.Helper()

	e := &env{
		ledger: ledger.New(),
		remote: memory.NewRemote(),
		clk:    clock.NewManual(schedStart),
	}
	e.board = leaderboard.NewEngine(e.clk)
	e.rec = purchase.NewReconciler(e.ledger, catalog.Default(), e.board, e.remote, local, e.clk)
	e.sched = scheduler.New(e.ledger, e.board, e.rec, e.remote, local, e.clk)
	return e
}

// blockingRemote gates PutAccount so a ledger sync can be held in flight.
type blockingRemote struct {
	*memory.Remote
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRemote) PutAccount(ctx context.Context, state ledger.AccountState) error {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	return b.Remote.PutAccount(ctx, state)
}

func newBlockingRemote(r *memory.Remote) *blockingRemote {
	return &blockingRemote{
		Remote:  r,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

// =============================================================================
// OVERLAP GUARD
// =============================================================================

func TestScheduler_SyncLedger_OverlapIsDroppedNotQueued(t *testing.T) {
	// GIVEN: A ledger sync held mid-flight on its first network call
	// WHEN: A second ledger sync is requested
	// THEN: It returns ErrSyncInProgress immediately; the first completes

	e := newEnv(t, nil)
	blocking := newBlockingRemote(e.remote)
	e.sched.Remote = blocking
	e.ledger.Account("alice") // gives the push something to send

	done := make(chan error, 1)
	go func() { done <- e.sched.SyncLedger(context.Background()) }()
	<-blocking.entered

	err := e.sched.SyncLedger(context.Background())
	assert.ErrorIs(t, err, scheduler.ErrSyncInProgress)

	close(blocking.release)
	require.NoError(t, <-done)

	// Guard resets once the sync finishes.
	assert.NoError(t, e.sched.SyncLedger(context.Background()))
}

func TestScheduler_LedgerAndBoardGuardsAreIndependent(t *testing.T) {
	e := newEnv(t, nil)
	blocking := newBlockingRemote(e.remote)
	e.sched.Remote = blocking
	e.ledger.Account("alice")

	done := make(chan error, 1)
	go func() { done <- e.sched.SyncLedger(context.Background()) }()
	<-blocking.entered

	// A held ledger sync does not block the leaderboard cycle.
	assert.NoError(t, e.sched.SyncLeaderboard(context.Background()))

	close(blocking.release)
	require.NoError(t, <-done)
}

// =============================================================================
// LEDGER CYCLE
// =============================================================================

func TestScheduler_SyncLedger_DrainsRetryQueueOnceHealed(t *testing.T) {
	// GIVEN: A purchase completed locally while the remote was down
	// WHEN: The remote heals and a ledger sync runs
	// THEN: The owed record and the account state both reach the remote

	e := newEnv(t, nil)
	e.remote.FailWith(errors.New("down"))

	rec, err := e.rec.SubmitPurchase(context.Background(), "alice", "premium", "sess_1")
	require.NoError(t, err)

	e.remote.FailWith(nil)
	require.NoError(t, e.sched.SyncLedger(context.Background()))

	stored, ok := e.remote.Purchase(rec.ID)
	require.True(t, ok)
	assert.Equal(t, ledger.PurchaseCompleted, stored.Status)

	remoteAcct, err := e.remote.GetAccount(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, remoteAcct)
	assert.Equal(t, int64(3000), remoteAcct.Points)
}

func TestScheduler_SyncLedger_FailureRequeuesAndReportsError(t *testing.T) {
	e := newEnv(t, nil)
	e.remote.FailWith(errors.New("down"))

	_, err := e.rec.SubmitPurchase(context.Background(), "alice", "premium", "sess_1")
	require.NoError(t, err)

	err = e.sched.SyncLedger(context.Background())
	require.ErrorIs(t, err, store.ErrRemoteSync)

	// The owed record survives for the next tick.
	assert.Len(t, e.rec.RetryQueue(), 1)
}

func TestScheduler_SyncLedger_AdoptsWebhookCompletedPurchase(t *testing.T) {
	// GIVEN: A purchase completed remotely (payment webhook) for a known
	//        account, unseen locally
	// WHEN: A ledger sync runs
	// THEN: The account is credited exactly once, replays included

	e := newEnv(t, nil)
	ctx := context.Background()
	e.ledger.Account("alice")

	require.NoError(t, e.remote.PutPurchase(ctx, ledger.PurchaseRecord{
		ID:            "hook-1",
		AccountID:     "alice",
		PackageID:     "starter",
		Points:        1000,
		CorrelationID: "sess_hook",
		Status:        ledger.PurchaseCompleted,
		CreatedAt:     schedStart,
	}))

	require.NoError(t, e.sched.SyncLedger(ctx))
	assert.Equal(t, int64(1000), e.ledger.Account("alice").Balance())

	require.NoError(t, e.sched.SyncLedger(ctx))
	assert.Equal(t, int64(1000), e.ledger.Account("alice").Balance())
	assert.Len(t, e.ledger.Account("alice").Purchases(), 1)
}

func TestScheduler_SyncLedger_PersistsAccountsLocally(t *testing.T) {
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	e := newEnv(t, db)
	require.NoError(t, e.ledger.Account("alice").Credit(750))

	require.NoError(t, e.sched.SyncLedger(context.Background()))

	states, err := db.LoadAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, ledger.AccountID("alice"), states[0].ID)
	assert.Equal(t, int64(750), states[0].Points)
}

// =============================================================================
// LEADERBOARD CYCLE
// =============================================================================

func TestScheduler_SyncLeaderboard_PushPullRecompute(t *testing.T) {
	// GIVEN: One local snapshot and one only on the remote
	// WHEN: A leaderboard sync runs
	// THEN: Local gains the remote snapshot, the remote gains the local
	//       one, and ranks cover both

	e := newEnv(t, nil)
	ctx := context.Background()

	e.board.Ingest("alice", leaderboard.Stats{DisplayName: "Alice", Points: 200})
	require.NoError(t, e.remote.PutSnapshot(ctx, leaderboard.Snapshot{
		ID:           "bob",
		DisplayName:  "Bob",
		Points:       500,
		LastActiveAt: schedStart.Add(-time.Hour),
	}))

	require.NoError(t, e.sched.SyncLeaderboard(ctx))

	bob, ok := e.board.Get("bob")
	require.True(t, ok)
	assert.Equal(t, 1, bob.Rank.Current)
	alice, ok := e.board.Get("alice")
	require.True(t, ok)
	assert.Equal(t, 2, alice.Rank.Current)

	_, ok = e.remote.Snapshot("alice")
	assert.True(t, ok)
}

func TestScheduler_SyncLeaderboard_LocalSnapshotWinsWhenNewer(t *testing.T) {
	// The pull only adopts remote snapshots with a later LastActiveAt.
	e := newEnv(t, nil)
	ctx := context.Background()

	e.board.Ingest("alice", leaderboard.Stats{DisplayName: "Alice", Points: 200})
	require.NoError(t, e.remote.PutSnapshot(ctx, leaderboard.Snapshot{
		ID:           "alice",
		DisplayName:  "Alice (stale)",
		Points:       50,
		LastActiveAt: schedStart.Add(-time.Hour),
	}))

	require.NoError(t, e.sched.SyncLeaderboard(ctx))

	alice, ok := e.board.Get("alice")
	require.True(t, ok)
	assert.Equal(t, int64(200), alice.Points)
	assert.Equal(t, "Alice", alice.DisplayName)
}

func TestScheduler_SyncLeaderboard_PrunesBeforePushing(t *testing.T) {
	e := newEnv(t, nil)
	e.board.Ingest("stale", leaderboard.Stats{DisplayName: "Stale", Points: 10})

	e.clk.Set(schedStart.AddDate(0, 0, 31))
	require.NoError(t, e.sched.SyncLeaderboard(context.Background()))

	assert.Equal(t, 0, e.board.Len())
	_, ok := e.remote.Snapshot("stale")
	assert.False(t, ok, "pruned snapshots are not pushed")
}

func TestScheduler_SyncLeaderboard_PruneSurvivesOwnPull(t *testing.T) {
	// GIVEN: A snapshot synced to the remote, then inactive past retention
	// WHEN: The next full cycle prunes it
	// THEN: The pull half of that same cycle does not bring it back; the
	//       deletion is final even though the remote still holds the doc

	e := newEnv(t, nil)
	ctx := context.Background()

	e.board.Ingest("stale", leaderboard.Stats{DisplayName: "Stale", Points: 10})
	require.NoError(t, e.sched.SyncLeaderboard(ctx))
	_, ok := e.remote.Snapshot("stale")
	require.True(t, ok, "first cycle pushes the snapshot")

	e.clk.Set(schedStart.AddDate(0, 0, 31))
	require.NoError(t, e.sched.SyncLeaderboard(ctx))

	_, ok = e.board.Get("stale")
	assert.False(t, ok, "pruned snapshot must stay deleted")
	assert.Equal(t, 0, e.board.Len())
}

func TestScheduler_SyncLeaderboard_NeverAdoptsRemoteSnapshotPastRetention(t *testing.T) {
	// Remote documents are never deleted; the pull must not adopt ones
	// whose LastActiveAt is already past the retention horizon.
	e := newEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, e.remote.PutSnapshot(ctx, leaderboard.Snapshot{
		ID:           "ancient",
		DisplayName:  "Ancient",
		Points:       9000,
		LastActiveAt: schedStart.AddDate(0, 0, -40),
	}))
	e.board.Ingest("fresh", leaderboard.Stats{DisplayName: "Fresh", Points: 100})

	require.NoError(t, e.sched.SyncLeaderboard(ctx))

	_, ok := e.board.Get("ancient")
	assert.False(t, ok, "snapshots past retention are not pulled")

	fresh, ok := e.board.Get("fresh")
	require.True(t, ok)
	assert.Equal(t, 1, fresh.Rank.Current, "ranking covers live snapshots only")
}

func TestScheduler_SyncLeaderboard_PersistsBoardLocally(t *testing.T) {
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	e := newEnv(t, db)
	e.board.Ingest("g1", leaderboard.Stats{IsGuest: true, Points: 40})

	require.NoError(t, e.sched.SyncLeaderboard(context.Background()))

	state, err := db.LoadLeaderboard(context.Background())
	require.NoError(t, err)
	require.Len(t, state.Snapshots, 1)
	assert.Equal(t, leaderboard.SnapshotID("g1"), state.Snapshots[0].ID)
	assert.Equal(t, int64(1), state.GuestCounter)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestScheduler_StartRunsImmediateCycleAndTicks(t *testing.T) {
	// GIVEN: A started scheduler with a 5-minute interval
	// THEN: The first cycle runs at start, the next on the first tick

	e := newEnv(t, nil)
	require.NoError(t, e.ledger.Account("alice").Credit(100))

	e.sched.Start()
	t.Cleanup(e.sched.Stop)

	require.Eventually(t, func() bool {
		acct, err := e.remote.GetAccount(context.Background(), "alice")
		return err == nil && acct != nil
	}, time.Second, 5*time.Millisecond, "immediate first cycle pushes state")

	require.NoError(t, e.ledger.Account("alice").Credit(150))
	e.clk.Advance(5 * time.Minute)

	require.Eventually(t, func() bool {
		acct, err := e.remote.GetAccount(context.Background(), "alice")
		return err == nil && acct != nil && acct.Points == 250
	}, time.Second, 5*time.Millisecond, "tick-driven cycle pushes fresh state")
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	e := newEnv(t, nil)

	e.sched.Start()
	e.sched.Stop()
	e.sched.Stop() // second stop is a no-op

	// Restart after stop works.
	e.sched.Start()
	e.sched.Stop()
}
