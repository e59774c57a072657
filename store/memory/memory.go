/*
Package memory provides an in-memory RemoteStore for tests and dev.

PURPOSE:
  Mirrors the document-store semantics: independent keyed documents, no
  cross-document atomicity. FailWith injects a remote failure for every
  operation, which is how scheduler and reconciler tests exercise the
  partial-failure paths.
*/
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warp/gamify-engine/leaderboard"
	"github.com/warp/gamify-engine/ledger"
	"github.com/warp/gamify-engine/store"
)

// Remote is an in-memory RemoteStore.
type Remote struct {
	mu        sync.RWMutex
	accounts  map[ledger.AccountID]ledger.AccountState
	purchases map[string]ledger.PurchaseRecord
	snapshots map[leaderboard.SnapshotID]leaderboard.Snapshot
	failWith  error
}

var _ store.RemoteStore = (*Remote)(nil)

func NewRemote() *Remote {
	return &Remote{
		accounts:  make(map[ledger.AccountID]ledger.AccountState),
		purchases: make(map[string]ledger.PurchaseRecord),
		snapshots: make(map[leaderboard.SnapshotID]leaderboard.Snapshot),
	}
}

// FailWith makes every subsequent operation return err (wrapped in
// ErrRemoteSync). Pass nil to heal the store.
func (r *Remote) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWith = err
}

func (r *Remote) fail() error {
	if r.failWith == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", store.ErrRemoteSync, r.failWith)
}

func (r *Remote) GetAccount(_ context.Context, id ledger.AccountID) (*ledger.AccountState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.fail(); err != nil {
		return nil, err
	}
	state, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	out := state
	out.Purchases = append([]ledger.PurchaseRecord(nil), state.Purchases...)
	return &out, nil
}

func (r *Remote) PutAccount(_ context.Context, state ledger.AccountState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return err
	}
	state.Purchases = append([]ledger.PurchaseRecord(nil), state.Purchases...)
	r.accounts[state.ID] = state
	return nil
}

func (r *Remote) PutPurchase(_ context.Context, rec ledger.PurchaseRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return err
	}
	r.purchases[rec.ID] = rec
	return nil
}

func (r *Remote) ListPurchases(_ context.Context, id ledger.AccountID, status ledger.PurchaseStatus) ([]ledger.PurchaseRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.fail(); err != nil {
		return nil, err
	}
	var out []ledger.PurchaseRecord
	for _, rec := range r.purchases {
		if rec.AccountID == id && rec.Status == status {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *Remote) ListSnapshots(_ context.Context, activeSince time.Time) ([]leaderboard.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.fail(); err != nil {
		return nil, err
	}
	var out []leaderboard.Snapshot
	for _, snap := range r.snapshots {
		if !snap.LastActiveAt.Before(activeSince) {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (r *Remote) PutSnapshot(_ context.Context, snap leaderboard.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return err
	}
	r.snapshots[snap.ID] = snap
	return nil
}

// Purchase returns a stored purchase by id, for test assertions.
func (r *Remote) Purchase(id string) (ledger.PurchaseRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.purchases[id]
	return rec, ok
}

// Snapshot returns a stored snapshot by id, for test assertions.
func (r *Remote) Snapshot(id leaderboard.SnapshotID) (leaderboard.Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.snapshots[id]
	return snap, ok
}
