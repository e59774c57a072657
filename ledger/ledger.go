/*
ledger.go - Account registry

PURPOSE:
  The Ledger owns every Account and is the only component allowed to
  mutate account state (via the Account methods it hands out). Everything
  above it - the purchase reconciler, the feature gate, the sync
  scheduler - goes through here.

OWNERSHIP:
  The leaderboard engine only ever READS ledger state (to build a
  snapshot); it never writes back. See leaderboard/engine.go.
*/
package ledger

import "sync"

// Ledger is the registry of all ledger accounts.
// Safe for concurrent use.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[AccountID]*Account
}

func New() *Ledger {
	return &Ledger{accounts: make(map[AccountID]*Account)}
}

// Account returns the account for id, creating it on first use.
// Anonymous participants all resolve to the shared Guest account.
func (l *Ledger) Account(id AccountID) *Account {
	l.mu.RLock()
	acct, ok := l.accounts[id]
	l.mu.RUnlock()
	if ok {
		return acct
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if acct, ok := l.accounts[id]; ok {
		return acct
	}
	acct = NewAccount(id)
	l.accounts[id] = acct
	return acct
}

// Lookup returns the account for id without creating it.
func (l *Ledger) Lookup(id AccountID) (*Account, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct, ok := l.accounts[id]
	return acct, ok
}

// States captures a consistent copy of every account, for persistence
// and sync pushes. Each account is copied under its own lock.
func (l *Ledger) States() []AccountState {
	l.mu.RLock()
	accounts := make([]*Account, 0, len(l.accounts))
	for _, acct := range l.accounts {
		accounts = append(accounts, acct)
	}
	l.mu.RUnlock()

	states := make([]AccountState, 0, len(accounts))
	for _, acct := range accounts {
		states = append(states, acct.State())
	}
	return states
}

// Restore loads a persisted account state, creating the account if
// needed. Called during startup rehydration, before any traffic.
func (l *Ledger) Restore(state AccountState) {
	l.Account(state.ID).restore(state)
}
