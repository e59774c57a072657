package purchase_test

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
	"github.com/warp/gamify-engine/store"
	"github.com/warp/gamify-engine/store/memory"
	"github.com/warp/gamify-engine/store/sqlite"
)

// =============================================================================
// TEST FIXTURE
// =============================================================================

var reconcilerStart = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ledger *ledger.Ledger
	board  *leaderboard.Engine
	remote *memory.Remote
	local  store.LocalStore
	clk    *clock.Manual
	rec    *purchase.Reconciler
}

func newFixture(t *testing.T, withLocal bool) *fixture {
	t.Helper()

	f := &fixture{
		ledger: ledger.New(),
		remote: memory.NewRemote(),
		clk:    clock.NewManual(reconcilerStart),
	}
	f.board = leaderboard.NewEngine(f.clk)

	if withLocal {
		db, err := sqlite.New(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		f.local = db
	}

	f.rec = purchase.NewReconciler(f.ledger, catalog.Default(), f.board, f.remote, f.local, f.clk)
	return f
}

// =============================================================================
// SUBMIT
// =============================================================================

func TestReconciler_SubmitPurchase_CreditsCatalogValue(t *testing.T) {
	// GIVEN: An account with no points
	// WHEN: The premium package (3000 points) is purchased
	// THEN: The balance is exactly 3000 credited from the catalog, the
	//       record is completed, and the remote store holds both documents

	f := newFixture(t, false)
	ctx := context.Background()

	rec, err := f.rec.SubmitPurchase(ctx, "alice", "premium", "sess_abc")
	require.NoError(t, err)

	assert.Equal(t, ledger.PurchaseCompleted, rec.Status)
	assert.Equal(t, int64(3000), rec.Points)
	assert.Equal(t, "sess_abc", rec.CorrelationID)
	assert.Equal(t, int64(3000), f.ledger.Account("alice").Balance())

	stored, ok := f.remote.Purchase(rec.ID)
	require.True(t, ok)
	assert.Equal(t, rec, stored)
	remoteAcct, err := f.remote.GetAccount(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, remoteAcct)
	assert.Equal(t, int64(3000), remoteAcct.Points)
}

func TestReconciler_SubmitPurchase_UnknownPackage(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.rec.SubmitPurchase(context.Background(), "alice", "nope", "sess_1")
	assert.ErrorIs(t, err, catalog.ErrUnknownPackage)
	assert.Equal(t, int64(0), f.ledger.Account("alice").Balance())
}

func TestReconciler_SubmitPurchase_CorrelationReplayIsSuccess(t *testing.T) {
	// GIVEN: A completed purchase with correlation id "sess_abc"
	// WHEN: The same correlation id is submitted again
	// THEN: The prior record comes back, no error, balance still 3000,
	//       and the history holds exactly one purchase

	f := newFixture(t, false)
	ctx := context.Background()

	first, err := f.rec.SubmitPurchase(ctx, "alice", "premium", "sess_abc")
	require.NoError(t, err)

	second, err := f.rec.SubmitPurchase(ctx, "alice", "premium", "sess_abc")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(3000), f.ledger.Account("alice").Balance())
	assert.Len(t, f.ledger.Account("alice").Purchases(), 1)
}

func TestReconciler_SubmitPurchase_DistinctCorrelationsStack(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.rec.SubmitPurchase(ctx, "alice", "starter", "sess_1")
	require.NoError(t, err)
	_, err = f.rec.SubmitPurchase(ctx, "alice", "starter", "sess_2")
	require.NoError(t, err)

	assert.Equal(t, int64(2000), f.ledger.Account("alice").Balance())
	assert.Len(t, f.ledger.Account("alice").Purchases(), 2)
}

func TestReconciler_SubmitPurchase_FeedsLeaderboardBalance(t *testing.T) {
	// GIVEN: A registered account already on the board with habit stats
	// WHEN: A purchase completes
	// THEN: Its snapshot's points match the new balance, stats untouched

	f := newFixture(t, false)
	f.board.Ingest("alice", leaderboard.Stats{DisplayName: "Alice", TotalHabits: 4, StreakDays: 9})

	_, err := f.rec.SubmitPurchase(context.Background(), "alice", "starter", "sess_1")
	require.NoError(t, err)

	snap, ok := f.board.Get("alice")
	require.True(t, ok)
	assert.Equal(t, int64(1000), snap.Points)
	assert.Equal(t, "Alice", snap.DisplayName)
	assert.Equal(t, 4, snap.TotalHabits)
	assert.Equal(t, 9, snap.StreakDays)
}

func TestReconciler_SubmitPurchase_GuestAccountSkipsBoard(t *testing.T) {
	// The pooled guest account has no single display identity.
	f := newFixture(t, false)

	_, err := f.rec.SubmitPurchase(context.Background(), ledger.Guest, "starter", "sess_g")
	require.NoError(t, err)

	assert.Equal(t, int64(1000), f.ledger.Account(ledger.Guest).Balance())
	assert.Equal(t, 0, f.board.Len())
}

// =============================================================================
// APPLY - Tamper and failure paths
// =============================================================================

func TestReconciler_ApplyPurchase_RejectsPointsMismatch(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.rec.ApplyPurchase(context.Background(), ledger.PurchaseRecord{
		ID:            "rec1",
		AccountID:     "alice",
		PackageID:     "premium",
		Points:        999999, // catalog says 3000
		CorrelationID: "sess_1",
		Status:        ledger.PurchasePending,
		CreatedAt:     reconcilerStart,
	})
	assert.ErrorIs(t, err, purchase.ErrPointsMismatch)
	assert.Equal(t, int64(0), f.ledger.Account("alice").Balance())
}

func TestReconciler_ApplyPurchase_RemoteFailureQueuesRetry(t *testing.T) {
	// GIVEN: A remote store that rejects every write
	// WHEN: A purchase is applied
	// THEN: The credit still lands, the call succeeds, and the completed
	//       record sits on the retry queue for the scheduler

	f := newFixture(t, false)
	f.remote.FailWith(errors.New("network down"))

	rec, err := f.rec.SubmitPurchase(context.Background(), "alice", "premium", "sess_1")
	require.NoError(t, err)
	assert.Equal(t, int64(3000), f.ledger.Account("alice").Balance())

	queued := f.rec.RetryQueue()
	require.Len(t, queued, 1)
	assert.Equal(t, rec.ID, queued[0].ID)

	// Draining empties the queue.
	assert.Empty(t, f.rec.RetryQueue())
}

func TestReconciler_Requeue_PutsRecordsBack(t *testing.T) {
	f := newFixture(t, false)
	recs := []ledger.PurchaseRecord{{ID: "r1"}, {ID: "r2"}}

	f.rec.Requeue(recs)
	assert.Equal(t, recs, f.rec.RetryQueue())
}

func TestReconciler_ApplyPurchase_RecordsLastPackage(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.rec.SubmitPurchase(ctx, "alice", "elite", "sess_1")
	require.NoError(t, err)

	last, err := f.local.LastPurchasedPackage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "elite", last)
}

// =============================================================================
// PENDING RECOVERY
// =============================================================================

func TestReconciler_RecoverPending_AppliesFreshMarker(t *testing.T) {
	// GIVEN: A valid pending marker persisted 30 minutes ago
	// WHEN: RecoverPending runs
	// THEN: The purchase is applied and the marker cleared

	f := newFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.local.SavePendingPurchase(ctx, store.PendingPurchase{
		AccountID:     "alice",
		PackageID:     "premium",
		Points:        3000,
		CorrelationID: "sess_pending",
		CreatedAt:     reconcilerStart.Add(-30 * time.Minute),
	}))

	require.NoError(t, f.rec.RecoverPending(ctx))

	assert.Equal(t, int64(3000), f.ledger.Account("alice").Balance())
	_, ok := f.ledger.Account("alice").CompletedPurchaseByCorrelation("sess_pending")
	assert.True(t, ok)

	marker, err := f.local.LoadPendingPurchase(ctx)
	require.NoError(t, err)
	assert.Nil(t, marker)
}

func TestReconciler_RecoverPending_DiscardsStaleMarker(t *testing.T) {
	// A marker over an hour old is dropped, not replayed.
	f := newFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.local.SavePendingPurchase(ctx, store.PendingPurchase{
		AccountID:     "alice",
		PackageID:     "premium",
		Points:        3000,
		CorrelationID: "sess_old",
		CreatedAt:     reconcilerStart.Add(-61 * time.Minute),
	}))

	require.NoError(t, f.rec.RecoverPending(ctx))

	assert.Equal(t, int64(0), f.ledger.Account("alice").Balance())
	marker, err := f.local.LoadPendingPurchase(ctx)
	require.NoError(t, err)
	assert.Nil(t, marker)
}

func TestReconciler_RecoverPending_DiscardsTamperedMarker(t *testing.T) {
	// Marker points disagreeing with the catalog never credit.
	f := newFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.local.SavePendingPurchase(ctx, store.PendingPurchase{
		AccountID:     "alice",
		PackageID:     "premium",
		Points:        999999,
		CorrelationID: "sess_bad",
		CreatedAt:     reconcilerStart.Add(-time.Minute),
	}))

	require.NoError(t, f.rec.RecoverPending(ctx))

	assert.Equal(t, int64(0), f.ledger.Account("alice").Balance())
	marker, err := f.local.LoadPendingPurchase(ctx)
	require.NoError(t, err)
	assert.Nil(t, marker)
}

func TestReconciler_RecoverPending_NoMarkerIsNoop(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.rec.RecoverPending(context.Background()))
	assert.Equal(t, int64(0), f.ledger.Account("alice").Balance())
}

// =============================================================================
// REMOTE ADOPTION
// =============================================================================

func TestReconciler_AdoptRemote_CreditsWebhookPurchase(t *testing.T) {
	// GIVEN: A completed purchase recorded only remotely
	// WHEN: The scheduler hands it to AdoptRemote
	// THEN: The account is credited once; re-adoption is a no-op

	f := newFixture(t, false)
	ctx := context.Background()

	remote := ledger.PurchaseRecord{
		ID:            "remote-1",
		AccountID:     "alice",
		PackageID:     "starter",
		Points:        1000,
		CorrelationID: "sess_hook",
		Status:        ledger.PurchaseCompleted,
		CreatedAt:     reconcilerStart,
	}
	require.NoError(t, f.rec.AdoptRemote(ctx, remote))
	assert.Equal(t, int64(1000), f.ledger.Account("alice").Balance())

	require.NoError(t, f.rec.AdoptRemote(ctx, remote))
	assert.Equal(t, int64(1000), f.ledger.Account("alice").Balance())
	assert.Len(t, f.ledger.Account("alice").Purchases(), 1)
}

func TestReconciler_AdoptRemote_IgnoresNonCompleted(t *testing.T) {
	f := newFixture(t, false)

	err := f.rec.AdoptRemote(context.Background(), ledger.PurchaseRecord{
		ID:        "remote-2",
		AccountID: "alice",
		PackageID: "starter",
		Points:    1000,
		Status:    ledger.PurchasePending,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.ledger.Account("alice").Balance())
}

func TestReconciler_AdoptRemote_RejectsMismatchedPoints(t *testing.T) {
	f := newFixture(t, false)

	err := f.rec.AdoptRemote(context.Background(), ledger.PurchaseRecord{
		ID:        "remote-3",
		AccountID: "alice",
		PackageID: "starter",
		Points:    5,
		Status:    ledger.PurchaseCompleted,
	})
	assert.ErrorIs(t, err, purchase.ErrPointsMismatch)
	assert.Equal(t, int64(0), f.ledger.Account("alice").Balance())
}
