/*
errors.go - Error types for the points ledger

PURPOSE:
  Sentinel errors for ledger and account-state violations, plus structured
  errors carrying context. Downstream packages (purchase, feature, api)
  match these with errors.Is / errors.As and wrap them with domain context.

ERROR CATEGORIES:
  1. Amount errors    - invalid or insufficient point amounts
  2. Feature errors   - unlock/toggle state violations on an account

SEE ALSO:
  - account.go: produces these errors
  - feature/gate.go: propagates them to callers
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when a credit or spend amount is not a
	// positive integer. The operation is a no-op.
	ErrInvalidAmount = errors.New("invalid point amount")

	// ErrInsufficientPoints is returned when a spend exceeds the available
	// balance. The balance is unchanged.
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrAlreadyUnlocked is returned when unlocking a feature the account
	// already purchased. Callers typically treat this as a soft no-op.
	ErrAlreadyUnlocked = errors.New("feature already unlocked")

	// ErrNotPurchased is returned when toggling a feature the account has
	// not purchased.
	ErrNotPurchased = errors.New("feature not purchased")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientPointsError provides details about a point shortage.
type InsufficientPointsError struct {
	AccountID AccountID
	Available int64
	Requested int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points for %s: available %d, requested %d, shortfall %d",
		e.AccountID, e.Available, e.Requested, e.Requested-e.Available)
}

func (e *InsufficientPointsError) Unwrap() error {
	return ErrInsufficientPoints
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input
// rather than an engine failure. ErrAlreadyUnlocked counts: it is a
// caller-state outcome even when treated as a soft no-op.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientPoints) ||
		errors.Is(err, ErrAlreadyUnlocked) ||
		errors.Is(err, ErrNotPurchased)
}
