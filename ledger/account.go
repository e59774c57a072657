/*
account.go - Per-identity point balance and purchase state

PURPOSE:
  An Account owns one ledger identity's point balance, purchase history,
  and feature sets. All mutation goes through Account methods under a
  single per-account lock, so check-then-act sequences (TrySpend,
  UnlockFeature) are atomic relative to concurrent credits and spends.

CRITICAL INVARIANTS:
  1. Balance is never negative. A failed spend leaves it untouched.
  2. A credit never decreases the balance; concurrent credits both apply
     in full (no lost updates).
  3. Purchase history is append-only, insertion order = completion order.
  4. enabledFeatures is always a subset of purchasedFeatures.

KEYSPACES:
  AccountID is the LEDGER keyspace. All anonymous participants share the
  Guest sentinel account; their distinct leaderboard identities live in
  the leaderboard package's SnapshotID keyspace. Do not conflate the two.

SEE ALSO:
  - ledger.go: account registry
  - feature/gate.go: catalog-validated wrapper over UnlockFeature/ToggleFeature
*/
package ledger

import (
	"sort"
	"sync"
	"time"
)

// AccountID identifies a ledger account. This is the ledger keyspace,
// distinct from the leaderboard's display-identity keyspace.
type AccountID string

// Guest is the shared ledger identity for all anonymous participants.
// Each anonymous participant still gets its own leaderboard snapshot.
const Guest AccountID = "guest"

// =============================================================================
// PURCHASE RECORD - One applied (or attempted) package purchase
// =============================================================================

type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseFailed    PurchaseStatus = "failed"
)

// PurchaseRecord records one point-package purchase against an account.
type PurchaseRecord struct {
	ID            string
	AccountID     AccountID
	PackageID     string
	Points        int64
	CorrelationID string // idempotency token, e.g. a payment-session id
	Status        PurchaseStatus
	CreatedAt     time.Time
}

// =============================================================================
// ACCOUNT - Single-writer-per-resource point balance
// =============================================================================

// Account holds one identity's points and purchase state.
// Safe for concurrent use; every method takes the account lock.
type Account struct {
	id AccountID

	mu        sync.RWMutex
	points    int64
	purchases []PurchaseRecord
	purchased map[string]bool // feature id -> purchased
	enabled   map[string]bool // feature id -> enabled (subset of purchased)
}

func NewAccount(id AccountID) *Account {
	return &Account{
		id:        id,
		purchased: make(map[string]bool),
		enabled:   make(map[string]bool),
	}
}

// ID returns the account's ledger identity.
func (a *Account) ID() AccountID { return a.id }

// Credit adds points to the balance. Points must be a positive integer;
// otherwise the call is a no-op returning ErrInvalidAmount.
func (a *Account) Credit(points int64) error {
	if points <= 0 {
		return ErrInvalidAmount
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.points += points
	return nil
}

// TrySpend deducts amount iff the balance covers it, atomically with the
// check. On shortage the balance is unchanged and an
// InsufficientPointsError is returned.
func (a *Account) TrySpend(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.points < amount {
		return &InsufficientPointsError{AccountID: a.id, Available: a.points, Requested: amount}
	}
	a.points -= amount
	return nil
}

// Balance returns the current point balance. Read-only.
func (a *Account) Balance() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.points
}

// =============================================================================
// PURCHASE HISTORY - Append-only
// =============================================================================

// AppendPurchase appends a record to the purchase history.
// History is append-only; records are never edited or removed.
func (a *Account) AppendPurchase(rec PurchaseRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.purchases = append(a.purchases, rec)
}

// Purchases returns a copy of the purchase history in completion order.
func (a *Account) Purchases() []PurchaseRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]PurchaseRecord, len(a.purchases))
	copy(out, a.purchases)
	return out
}

// CompletedPurchaseByCorrelation returns the completed purchase carrying
// the given correlation id, if any. Used for idempotent replay detection.
func (a *Account) CompletedPurchaseByCorrelation(correlationID string) (PurchaseRecord, bool) {
	if correlationID == "" {
		return PurchaseRecord{}, false
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, rec := range a.purchases {
		if rec.CorrelationID == correlationID && rec.Status == PurchaseCompleted {
			return rec, true
		}
	}
	return PurchaseRecord{}, false
}

// ApplyCompletedPurchase credits rec.Points and appends rec (marked
// completed) as one atomic step, unless a completed purchase with the
// same correlation id already exists - in which case the prior record is
// returned and nothing changes. This is what makes replayed intents safe
// under concurrency: the check and the credit share the account lock.
func (a *Account) ApplyCompletedPurchase(rec PurchaseRecord) (PurchaseRecord, bool, error) {
	if rec.Points <= 0 {
		return PurchaseRecord{}, false, ErrInvalidAmount
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if rec.CorrelationID != "" {
		for _, prior := range a.purchases {
			if prior.CorrelationID == rec.CorrelationID && prior.Status == PurchaseCompleted {
				return prior, false, nil
			}
		}
	}

	a.points += rec.Points
	rec.Status = PurchaseCompleted
	a.purchases = append(a.purchases, rec)
	return rec, true, nil
}

// =============================================================================
// FEATURE STATE - Unlock and enable/disable
// =============================================================================

// UnlockFeature spends cost points and marks featureID purchased, as one
// atomic step. Returns ErrAlreadyUnlocked if already purchased (balance
// untouched), or an InsufficientPointsError on shortage.
func (a *Account) UnlockFeature(featureID string, cost int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.purchased[featureID] {
		return ErrAlreadyUnlocked
	}
	if a.points < cost {
		return &InsufficientPointsError{AccountID: a.id, Available: a.points, Requested: cost}
	}
	a.points -= cost
	a.purchased[featureID] = true
	return nil
}

// ToggleFeature flips featureID's enabled state. Returns the new enabled
// state, or ErrNotPurchased if the feature was never unlocked.
func (a *Account) ToggleFeature(featureID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.purchased[featureID] {
		return false, ErrNotPurchased
	}
	if a.enabled[featureID] {
		delete(a.enabled, featureID)
		return false, nil
	}
	a.enabled[featureID] = true
	return true, nil
}

// IsAccessible reports whether featureID is both purchased AND enabled.
// This conjunction is the single source of truth for feature gating.
func (a *Account) IsAccessible(featureID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.purchased[featureID] && a.enabled[featureID]
}

// HasFeature reports whether featureID has been purchased.
func (a *Account) HasFeature(featureID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.purchased[featureID]
}

// PurchasedFeatures returns the purchased feature ids, sorted.
func (a *Account) PurchasedFeatures() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return sortedKeys(a.purchased)
}

// EnabledFeatures returns the enabled feature ids, sorted.
func (a *Account) EnabledFeatures() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return sortedKeys(a.enabled)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// STATE SNAPSHOT - For persistence and sync
// =============================================================================

// AccountState is a consistent copy of an account, used by the local
// store and the sync scheduler. Reads happen under the account lock so a
// state never reflects a torn mid-mutation view.
type AccountState struct {
	ID                AccountID
	Points            int64
	Purchases         []PurchaseRecord
	PurchasedFeatures []string
	EnabledFeatures   []string
}

// State captures the account under its lock.
func (a *Account) State() AccountState {
	a.mu.RLock()
	defer a.mu.RUnlock()

	purchases := make([]PurchaseRecord, len(a.purchases))
	copy(purchases, a.purchases)

	return AccountState{
		ID:                a.id,
		Points:            a.points,
		Purchases:         purchases,
		PurchasedFeatures: sortedKeys(a.purchased),
		EnabledFeatures:   sortedKeys(a.enabled),
	}
}

// restore overwrites the account from a persisted state.
// Only the ledger calls this, during startup rehydration.
func (a *Account) restore(state AccountState) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.points = state.Points
	a.purchases = append([]PurchaseRecord(nil), state.Purchases...)
	a.purchased = make(map[string]bool, len(state.PurchasedFeatures))
	for _, id := range state.PurchasedFeatures {
		a.purchased[id] = true
	}
	a.enabled = make(map[string]bool, len(state.EnabledFeatures))
	for _, id := range state.EnabledFeatures {
		if a.purchased[id] {
			a.enabled[id] = true
		}
	}
}
