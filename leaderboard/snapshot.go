/*
snapshot.go - Leaderboard participant types

PURPOSE:
  A Snapshot is one participant's current stat line on the board. It is
  keyed by SnapshotID - the DISPLAY-identity keyspace. Registered users
  reuse their ledger account id here; anonymous participants each get
  their own snapshot id even though they all share the single "guest"
  ledger account. That asymmetry is load-bearing: it lets many anonymous
  entries coexist on the board while their points pool in one account.

SEE ALSO:
  - engine.go: owns all snapshot mutation, including rank fields
  - ledger/account.go: the other keyspace (AccountID)
*/
package leaderboard

import "time"

// SnapshotID identifies a leaderboard participant. This is the display
// keyspace, distinct from ledger.AccountID.
type SnapshotID string

// Rank is a participant's position across the last two recomputations.
// Change = Previous - Current; positive means the participant moved up.
type Rank struct {
	Current  int `json:"current"`
	Previous int `json:"previous"`
	Change   int `json:"change"`
}

// Snapshot is one participant's stat line.
type Snapshot struct {
	ID            SnapshotID `json:"id"`
	DisplayName   string     `json:"displayName"`
	PhotoRef      string     `json:"photoRef,omitempty"`
	IsGuest       bool       `json:"isGuest"`
	GuestSequence int64      `json:"guestSequence,omitempty"`

	Points                int64 `json:"points"`
	StreakDays            int   `json:"streakDays"`
	CompletionRatePercent int   `json:"completionRatePercent"`
	TotalHabits           int   `json:"totalHabits"`
	TotalCompletions      int   `json:"totalCompletions"`

	// Achievements are derived from the numeric fields on every
	// ingestion; never accumulated.
	Achievements []string `json:"achievements"`

	LastActiveAt time.Time `json:"lastActiveAt"`
	Rank         Rank      `json:"rank"`
}

// Stats are the caller-supplied fields of an ingestion. Everything else
// on the Snapshot (achievements, lastActive, rank, guest sequence) is
// engine-owned.
type Stats struct {
	DisplayName           string
	PhotoRef              string
	IsGuest               bool
	Points                int64
	StreakDays            int
	CompletionRatePercent int
	TotalHabits           int
	TotalCompletions      int
}

// =============================================================================
// TIME WINDOWS
// =============================================================================

// Window is a trailing interval used to filter which snapshots count
// toward a leaderboard view.
type Window string

const (
	Weekly  Window = "weekly"
	Monthly Window = "monthly"
	AllTime Window = "allTime"
)

// Duration returns the trailing interval for the window.
func (w Window) Duration() time.Duration {
	switch w {
	case Weekly:
		return 7 * 24 * time.Hour
	case Monthly:
		return 30 * 24 * time.Hour
	default:
		return 365 * 24 * time.Hour
	}
}

// Valid reports whether w is one of the three defined windows.
func (w Window) Valid() bool {
	return w == Weekly || w == Monthly || w == AllTime
}
