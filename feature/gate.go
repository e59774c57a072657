/*
Package feature derives and mutates feature unlock state.

PURPOSE:
  The Gate is the catalog-aware wrapper over account feature state.
  Unlocking spends points (a one-time deduction, guarded by the
  sufficiency check inside the account); toggling flips the enabled set;
  accessibility is the conjunction purchased AND enabled.

  The gate itself holds no state: everything it reports is a pure
  function of ledger state plus the static catalog.

ERROR SEMANTICS:
  Unlock on an already-purchased feature returns ledger.ErrAlreadyUnlocked,
  a soft outcome callers usually treat as a no-op rather than a failure.
  Insufficient points propagate unchanged from the ledger.

SEE ALSO:
  - ledger/account.go: UnlockFeature/ToggleFeature atomic steps
  - catalog/catalog.go: feature reference data
*/
package feature

import (
	"github.com/warp/gamify-engine/catalog"
	"github.com/warp/gamify-engine/ledger"
)

// Gate validates feature operations against the catalog and delegates
// state changes to the owning account.
type Gate struct {
	ledger  *ledger.Ledger
	catalog *catalog.Catalog
}

func NewGate(l *ledger.Ledger, cat *catalog.Catalog) *Gate {
	return &Gate{ledger: l, catalog: cat}
}

// Unlock spends the feature's required points and marks it purchased.
// Returns catalog.ErrUnknownFeature, ledger.ErrAlreadyUnlocked, or an
// insufficient-points error; on any of them no state changes.
func (g *Gate) Unlock(accountID ledger.AccountID, featureID string) error {
	feat, err := g.catalog.Feature(featureID)
	if err != nil {
		return err
	}
	return g.ledger.Account(accountID).UnlockFeature(featureID, feat.RequiredPoints)
}

// Toggle flips the feature's enabled state and returns the new state.
// Unpurchased features cannot be toggled (ledger.ErrNotPurchased).
func (g *Gate) Toggle(accountID ledger.AccountID, featureID string) (bool, error) {
	if _, err := g.catalog.Feature(featureID); err != nil {
		return false, err
	}
	return g.ledger.Account(accountID).ToggleFeature(featureID)
}

// IsAccessible reports whether the feature is purchased AND enabled for
// the account. This is the single source of truth for feature gating.
func (g *Gate) IsAccessible(accountID ledger.AccountID, featureID string) bool {
	acct, ok := g.ledger.Lookup(accountID)
	if !ok {
		return false
	}
	return acct.IsAccessible(featureID)
}

// Status describes one catalog feature from an account's perspective.
type Status struct {
	Feature   catalog.Feature
	Purchased bool
	Enabled   bool
}

// Statuses returns the status of every catalog feature for the account,
// in catalog order.
func (g *Gate) Statuses(accountID ledger.AccountID) []Status {
	acct, _ := g.ledger.Lookup(accountID)

	feats := g.catalog.Features()
	out := make([]Status, 0, len(feats))
	for _, f := range feats {
		st := Status{Feature: f}
		if acct != nil {
			st.Purchased = acct.HasFeature(f.ID)
			st.Enabled = acct.IsAccessible(f.ID)
		}
		out = append(out, st)
	}
	return out
}
