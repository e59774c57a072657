// Package identity is the read-only boundary to the identity
// collaborator. The engine never provisions or mutates identities; it
// only asks who the current participant is and derives the two keyspaces
// (ledger account id, leaderboard snapshot id) from the answer.
package identity

import (
	"github.com/warp/gamify-engine/leaderboard"
	"github.com/warp/gamify-engine/ledger"
)

// Identity describes the current participant.
type Identity struct {
	UserID      string
	DisplayName string
	PhotoRef    string
	IsAnonymous bool
}

// Provider supplies the current identity.
type Provider interface {
	CurrentIdentity() Identity
}

// AccountID maps the identity to the ledger keyspace. Every anonymous
// participant shares the single guest account.
func (id Identity) AccountID() ledger.AccountID {
	if id.IsAnonymous {
		return ledger.Guest
	}
	return ledger.AccountID(id.UserID)
}

// SnapshotID maps the identity to the leaderboard keyspace. Anonymous
// participants keep their own distinct snapshot ids so many guests can
// appear on the board at once.
func (id Identity) SnapshotID() leaderboard.SnapshotID {
	return leaderboard.SnapshotID(id.UserID)
}

// Static is a fixed-identity Provider, used in tests and single-user
// deployments.
type Static struct {
	Identity Identity
}

func (s Static) CurrentIdentity() Identity { return s.Identity }
