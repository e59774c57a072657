/*
reconciler.go - Exactly-once purchase application

PURPOSE:
  Turns a raw purchase intent (package id + correlation id) into exactly
  one ledger credit. The correlation id - typically a payment-session id
  - is the idempotency token: at most one completed record per
  correlation id is ever applied, no matter how often the intent is
  replayed.

CRITICAL INVARIANTS:
  1. The credited point value always comes from the catalog, never from
     the caller. A mismatch fails the single purchase; it is not retried.
  2. A correlation replay is SUCCESS, not an error: the prior completed
     record is returned and nothing is credited.
  3. Once the ledger credit lands, the purchase is completed locally and
     never rolled back. A failed remote write just queues the record for
     the sync scheduler; local state is the source of truth.
  4. A pending marker older than an hour is discarded, never replayed.

SEE ALSO:
  - ledger/account.go: the credit target
  - scheduler/scheduler.go: drains the remote retry queue
*/
package purchase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/gamify-engine/catalog"
	"github.com/warp/gamify-engine/clock"
	"github.com/warp/gamify-engine/leaderboard"
	"github.com/warp/gamify-engine/ledger"
	"github.com/warp/gamify-engine/store"
)

// MaxPendingAge is how long a persisted pending-purchase marker stays
// replayable after an interrupted checkout.
const MaxPendingAge = time.Hour

var (
	// ErrStalePendingPurchase marks a pending marker that failed
	// validation or aged out. Discarded, never surfaced as a user error.
	ErrStalePendingPurchase = errors.New("stale pending purchase")

	// ErrPointsMismatch is returned when a record's point value does not
	// match the catalog's declared value for its package. Fatal to the
	// single purchase.
	ErrPointsMismatch = errors.New("points do not match catalog")
)

// Reconciler applies purchases to the ledger exactly once and keeps the
// remote store eventually consistent with local state.
type Reconciler struct {
	ledger  *ledger.Ledger
	catalog *catalog.Catalog
	board   *leaderboard.Engine
	remote  store.RemoteStore
	local   store.LocalStore // may be nil when running without offline state
	clk     clock.Clock

	mu    sync.Mutex
	retry []ledger.PurchaseRecord // completed locally, remote write still owed
}

func NewReconciler(l *ledger.Ledger, cat *catalog.Catalog, board *leaderboard.Engine, remote store.RemoteStore, local store.LocalStore, clk clock.Clock) *Reconciler {
	return &Reconciler{
		ledger:  l,
		catalog: cat,
		board:   board,
		remote:  remote,
		local:   local,
		clk:     clk,
	}
}

// =============================================================================
// SUBMIT - Intent to record
// =============================================================================

// SubmitPurchase validates a purchase intent and applies it. If a
// completed record with the same correlation id already exists for the
// account, that record is returned unchanged and nothing is credited.
func (r *Reconciler) SubmitPurchase(ctx context.Context, accountID ledger.AccountID, packageID, correlationID string) (ledger.PurchaseRecord, error) {
	pkg, err := r.catalog.Package(packageID)
	if err != nil {
		return ledger.PurchaseRecord{}, err
	}

	acct := r.ledger.Account(accountID)
	if prior, ok := acct.CompletedPurchaseByCorrelation(correlationID); ok {
		return prior, nil
	}

	rec := ledger.PurchaseRecord{
		ID:            uuid.NewString(),
		AccountID:     accountID,
		PackageID:     packageID,
		Points:        pkg.Points,
		CorrelationID: correlationID,
		Status:        ledger.PurchasePending,
		CreatedAt:     r.clk.Now(),
	}
	return r.ApplyPurchase(ctx, rec)
}

// =============================================================================
// APPLY - The point of no return
// =============================================================================

// ApplyPurchase credits the ledger with the catalog-declared value,
// appends the record to the account's history as completed, and feeds
// the updated point total to the leaderboard. Once the credit lands this
// runs to completion; a remote write failure only queues the record for
// the scheduler's next push.
func (r *Reconciler) ApplyPurchase(ctx context.Context, rec ledger.PurchaseRecord) (ledger.PurchaseRecord, error) {
	pkg, err := r.catalog.Package(rec.PackageID)
	if err != nil {
		return ledger.PurchaseRecord{}, err
	}
	if rec.Points != pkg.Points {
		return ledger.PurchaseRecord{}, fmt.Errorf("%w: package %s grants %d, record carries %d",
			ErrPointsMismatch, rec.PackageID, pkg.Points, rec.Points)
	}

	acct := r.ledger.Account(rec.AccountID)

	// The replay check and the credit are a single atomic step on the
	// account, so concurrent submits of the same correlation id cannot
	// double-credit. A replay returns the prior record as success.
	applied, credited, err := acct.ApplyCompletedPurchase(rec)
	if err != nil {
		return ledger.PurchaseRecord{}, err
	}
	if !credited {
		return applied, nil
	}
	rec = applied

	r.ingestBalance(acct)

	if r.local != nil {
		if err := r.local.SetLastPurchasedPackage(ctx, rec.PackageID); err != nil {
			log.Printf("[Reconciler] Failed to record last package: %v", err)
		}
	}

	// Remote persistence is best-effort here; local state is already
	// authoritative.
	if err := r.pushRemote(ctx, acct, rec); err != nil {
		log.Printf("[Reconciler] Remote write failed, queued for retry: %v", err)
		r.mu.Lock()
		r.retry = append(r.retry, rec)
		r.mu.Unlock()
	}

	return rec, nil
}

// ingestBalance refreshes the account's leaderboard entry with its new
// point total, preserving the habit stats already on the board. The
// shared guest account has no single display identity, so it is skipped;
// guest snapshots are fed by their own ingestions.
func (r *Reconciler) ingestBalance(acct *ledger.Account) {
	if acct.ID() == ledger.Guest {
		return
	}

	id := leaderboard.SnapshotID(acct.ID())
	stats := leaderboard.Stats{DisplayName: string(acct.ID())}
	if snap, ok := r.board.Get(id); ok {
		stats = leaderboard.Stats{
			DisplayName:           snap.DisplayName,
			PhotoRef:              snap.PhotoRef,
			IsGuest:               snap.IsGuest,
			StreakDays:            snap.StreakDays,
			CompletionRatePercent: snap.CompletionRatePercent,
			TotalHabits:           snap.TotalHabits,
			TotalCompletions:      snap.TotalCompletions,
		}
	}
	stats.Points = acct.Balance()
	r.board.Ingest(id, stats)
}

func (r *Reconciler) pushRemote(ctx context.Context, acct *ledger.Account, rec ledger.PurchaseRecord) error {
	if err := r.remote.PutPurchase(ctx, rec); err != nil {
		return err
	}
	return r.remote.PutAccount(ctx, acct.State())
}

// =============================================================================
// PENDING RECOVERY - After an interrupted checkout
// =============================================================================

// RecoverPending validates and applies the locally-persisted pending
// purchase marker, if any. Invalid or stale markers are discarded
// silently; staleness is an expected outcome, not a user-facing error.
func (r *Reconciler) RecoverPending(ctx context.Context) error {
	if r.local == nil {
		return nil
	}

	marker, err := r.local.LoadPendingPurchase(ctx)
	if err != nil {
		return err
	}
	if marker == nil {
		return nil
	}

	if err := r.validateMarker(*marker); err != nil {
		log.Printf("[Reconciler] Discarding pending purchase: %v", err)
		return r.local.ClearPendingPurchase(ctx)
	}

	rec := ledger.PurchaseRecord{
		ID:            uuid.NewString(),
		AccountID:     marker.AccountID,
		PackageID:     marker.PackageID,
		Points:        marker.Points,
		CorrelationID: marker.CorrelationID,
		Status:        ledger.PurchasePending,
		CreatedAt:     marker.CreatedAt,
	}
	if _, err := r.ApplyPurchase(ctx, rec); err != nil {
		return err
	}
	return r.local.ClearPendingPurchase(ctx)
}

// validateMarker guards against replaying a stale or tampered intent:
// the marker must name an account and a known package, carry the
// catalog's point value, and be under an hour old.
func (r *Reconciler) validateMarker(m store.PendingPurchase) error {
	if m.AccountID == "" || m.PackageID == "" || m.Points <= 0 {
		return fmt.Errorf("%w: incomplete marker", ErrStalePendingPurchase)
	}
	pkg, err := r.catalog.Package(m.PackageID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStalePendingPurchase, err)
	}
	if m.Points != pkg.Points {
		return fmt.Errorf("%w: marker points %d, catalog %d", ErrStalePendingPurchase, m.Points, pkg.Points)
	}
	if r.clk.Now().Sub(m.CreatedAt) > MaxPendingAge {
		return fmt.Errorf("%w: marker is %v old", ErrStalePendingPurchase, r.clk.Now().Sub(m.CreatedAt))
	}
	return nil
}

// =============================================================================
// SYNC HOOKS - Called by the scheduler
// =============================================================================

// AdoptRemote applies a remotely-completed purchase (e.g. recorded by a
// server-side webhook) that is not yet reflected locally. Duplicates by
// record id or correlation id are skipped.
func (r *Reconciler) AdoptRemote(ctx context.Context, rec ledger.PurchaseRecord) error {
	if rec.Status != ledger.PurchaseCompleted {
		return nil
	}

	acct := r.ledger.Account(rec.AccountID)
	for _, local := range acct.Purchases() {
		if local.ID == rec.ID {
			return nil
		}
	}

	pkg, err := r.catalog.Package(rec.PackageID)
	if err != nil {
		return err
	}
	if rec.Points != pkg.Points {
		return fmt.Errorf("%w: remote record %s", ErrPointsMismatch, rec.ID)
	}

	if _, credited, err := acct.ApplyCompletedPurchase(rec); err != nil {
		return err
	} else if credited {
		r.ingestBalance(acct)
	}
	return nil
}

// RetryQueue returns the records still owed a remote write and clears
// the queue; the caller re-queues whatever fails again.
func (r *Reconciler) RetryQueue() []ledger.PurchaseRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.retry
	r.retry = nil
	return out
}

// Requeue puts records back on the retry queue after a failed push.
func (r *Reconciler) Requeue(recs []ledger.PurchaseRecord) {
	if len(recs) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retry = append(r.retry, recs...)
}
