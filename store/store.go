/*
Package store defines the persistence boundaries of the engine.

PURPOSE:
  Two distinct stores, two distinct guarantees:

  RemoteStore - the durable document store reached over the network.
    Keyed get/put/list, at-least-once delivery, NO multi-document
    transaction guarantee. The engine must tolerate any single remote
    write failing; local state stays authoritative and the sync
    scheduler retries.

  LocalStore - the on-device state used for offline resilience:
    last-known account states, the pending purchase marker left by an
    interrupted checkout, and the last full snapshot collection. Loaded
    at process start, then reconciled via the scheduler's first pull.

IMPLEMENTATIONS:
  - store/memory: in-memory RemoteStore (tests/dev), failure injection
  - store/sqlite: SQLite-backed LocalStore

SEE ALSO:
  - scheduler/scheduler.go: drives push/pull through RemoteStore
  - purchase/reconciler.go: pending marker recovery through LocalStore
*/
package store

import (
	"context"
	"errors"
	"time"

	"github.com/warp/gamify-engine/leaderboard"
	"github.com/warp/gamify-engine/ledger"
)

// ErrRemoteSync wraps any remote store failure. Never fatal to the
// process; the scheduler logs it and retries next tick.
var ErrRemoteSync = errors.New("remote sync failure")

// =============================================================================
// REMOTE STORE - Network document store
// =============================================================================

// RemoteStore is the remote persistence collaborator, abstracted as a
// document store keyed by id. No cross-document atomicity is assumed.
type RemoteStore interface {
	// GetAccount returns the stored account state, or nil if absent.
	GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.AccountState, error)

	// PutAccount stores an account state, overwriting any prior document.
	PutAccount(ctx context.Context, state ledger.AccountState) error

	// PutPurchase stores a purchase record keyed by its id.
	PutPurchase(ctx context.Context, rec ledger.PurchaseRecord) error

	// ListPurchases returns the account's purchases with the given status.
	ListPurchases(ctx context.Context, id ledger.AccountID, status ledger.PurchaseStatus) ([]ledger.PurchaseRecord, error)

	// ListSnapshots returns snapshots active at or after the given time.
	ListSnapshots(ctx context.Context, activeSince time.Time) ([]leaderboard.Snapshot, error)

	// PutSnapshot stores a leaderboard snapshot keyed by its id.
	PutSnapshot(ctx context.Context, snap leaderboard.Snapshot) error
}

// =============================================================================
// PENDING PURCHASE MARKER
// =============================================================================

// PendingPurchase is the locally-persisted marker for a checkout that
// redirected away before completing. Validated (and aged out after an
// hour) before it is ever replayed.
type PendingPurchase struct {
	AccountID     ledger.AccountID
	PackageID     string
	Points        int64
	CorrelationID string
	CreatedAt     time.Time
}

// =============================================================================
// LOCAL STORE - Offline resilience
// =============================================================================

// LocalStore persists engine state across restarts.
type LocalStore interface {
	// SaveAccount upserts one account's state.
	SaveAccount(ctx context.Context, state ledger.AccountState) error

	// LoadAccounts returns every persisted account state.
	LoadAccounts(ctx context.Context) ([]ledger.AccountState, error)

	// SaveLeaderboard replaces the persisted snapshot collection.
	SaveLeaderboard(ctx context.Context, state leaderboard.State) error

	// LoadLeaderboard returns the persisted snapshot collection.
	LoadLeaderboard(ctx context.Context) (leaderboard.State, error)

	// SavePendingPurchase stores the (single) pending purchase marker.
	SavePendingPurchase(ctx context.Context, p PendingPurchase) error

	// LoadPendingPurchase returns the marker, or nil if none.
	LoadPendingPurchase(ctx context.Context) (*PendingPurchase, error)

	// ClearPendingPurchase discards the marker.
	ClearPendingPurchase(ctx context.Context) error

	// SetLastPurchasedPackage records the most recent package id.
	SetLastPurchasedPackage(ctx context.Context, packageID string) error

	// LastPurchasedPackage returns the most recent package id, or "".
	LastPurchasedPackage(ctx context.Context) (string, error)
}
