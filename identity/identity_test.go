package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/gamify-engine/identity"
	"github.com/warp/gamify-engine/ledger"
)

func TestIdentity_KeyspaceMapping(t *testing.T) {
	// Registered users use their own id in both keyspaces.
	alice := identity.Identity{UserID: "alice", DisplayName: "Alice"}
	assert.Equal(t, ledger.AccountID("alice"), alice.AccountID())
	assert.EqualValues(t, "alice", alice.SnapshotID())

	// Anonymous participants pool into the guest ledger account but keep
	// their own leaderboard identity.
	g1 := identity.Identity{UserID: "device-1", IsAnonymous: true}
	g2 := identity.Identity{UserID: "device-2", IsAnonymous: true}
	assert.Equal(t, ledger.Guest, g1.AccountID())
	assert.Equal(t, ledger.Guest, g2.AccountID())
	assert.NotEqual(t, g1.SnapshotID(), g2.SnapshotID())
}

func TestStaticProvider(t *testing.T) {
	want := identity.Identity{UserID: "alice"}
	var p identity.Provider = identity.Static{Identity: want}
	assert.Equal(t, want, p.CurrentIdentity())
}
