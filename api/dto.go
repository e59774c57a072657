/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for the HTTP surface, decoupled from the domain types
  so the internal model can evolve without breaking clients. DTOs are
  pure data carriers; validation lives in handlers.

SEE ALSO:
  - handlers.go: uses these types
*/
package api

import (
	"time"

	"github.com/warp/gamify-engine/catalog"
	"github.com/warp/gamify-engine/feature"
	"github.com/warp/gamify-engine/ledger"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// SubmitPurchaseRequest is the body of POST /api/purchases.
type SubmitPurchaseRequest struct {
	UserID        string `json:"userId"`
	PackageID     string `json:"packageId"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// IngestRequest is the body of POST /api/leaderboard/ingest.
type IngestRequest struct {
	ID                    string `json:"id"`
	DisplayName           string `json:"displayName"`
	PhotoRef              string `json:"photoRef,omitempty"`
	IsGuest               bool   `json:"isGuest"`
	Points                int64  `json:"points"`
	StreakDays            int    `json:"streakDays"`
	CompletionRatePercent int    `json:"completionRatePercent"`
	TotalHabits           int    `json:"totalHabits"`
	TotalCompletions      int    `json:"totalCompletions"`
}

// PruneRequest is the body of POST /api/admin/prune.
type PruneRequest struct {
	RetentionDays int `json:"retentionDays"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// BalanceDTO reports an account's point balance.
type BalanceDTO struct {
	UserID string `json:"userId"`
	Points int64  `json:"points"`
}

// PurchaseDTO represents one purchase record.
type PurchaseDTO struct {
	ID            string    `json:"id"`
	PackageID     string    `json:"packageId"`
	Points        int64     `json:"points"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toPurchaseDTO(rec ledger.PurchaseRecord) PurchaseDTO {
	return PurchaseDTO{
		ID:            rec.ID,
		PackageID:     rec.PackageID,
		Points:        rec.Points,
		CorrelationID: rec.CorrelationID,
		Status:        string(rec.Status),
		CreatedAt:     rec.CreatedAt,
	}
}

// PackageDTO represents one point package. Price is a decimal string.
type PackageDTO struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Points      int64    `json:"points"`
	Price       string   `json:"price"`
	Description string   `json:"description"`
	Perks       []string `json:"perks"`
	Popular     bool     `json:"popular,omitempty"`
	Featured    bool     `json:"featured,omitempty"`
}

func toPackageDTO(p catalog.Package) PackageDTO {
	return PackageDTO{
		ID:          p.ID,
		Title:       p.Title,
		Points:      p.Points,
		Price:       p.Price.StringFixed(2),
		Description: p.Description,
		Perks:       p.Perks,
		Popular:     p.Popular,
		Featured:    p.Featured,
	}
}

// FeatureStatusDTO represents a catalog feature plus the requesting
// account's unlock state.
type FeatureStatusDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	RequiredPoints int64  `json:"requiredPoints"`
	Category       string `json:"category"`
	Purchased      bool   `json:"purchased"`
	Enabled        bool   `json:"enabled"`
}

func toFeatureStatusDTO(st feature.Status) FeatureStatusDTO {
	return FeatureStatusDTO{
		ID:             st.Feature.ID,
		Name:           st.Feature.Name,
		Description:    st.Feature.Description,
		RequiredPoints: st.Feature.RequiredPoints,
		Category:       string(st.Feature.Category),
		Purchased:      st.Purchased,
		Enabled:        st.Enabled,
	}
}

// ToggleResponse reports the new enabled state after a toggle.
type ToggleResponse struct {
	FeatureID string `json:"featureId"`
	Enabled   bool   `json:"enabled"`
}

// UnlockResponse reports the outcome of an unlock.
type UnlockResponse struct {
	FeatureID       string `json:"featureId"`
	Status          string `json:"status"` // "unlocked" or "already_unlocked"
	RemainingPoints int64  `json:"remainingPoints"`
}
