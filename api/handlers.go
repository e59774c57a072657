/*
handlers.go - HTTP handlers for the gamification engine

PURPOSE:
  Exposes the five component contracts over REST. Handlers parse and
  validate input, delegate to domain logic, and serialize responses.

ENDPOINTS:
  Catalog:
    GET  /api/catalog/packages              List point packages
    GET  /api/catalog/features              List premium features

  Accounts:
    GET  /api/accounts/{id}/balance         Point balance
    GET  /api/accounts/{id}/purchases       Purchase history
    GET  /api/accounts/{id}/features        Feature unlock states

  Purchases:
    POST /api/purchases                     Submit a purchase intent

  Features:
    POST /api/accounts/{id}/features/{featureId}/unlock
    POST /api/accounts/{id}/features/{featureId}/toggle

  Leaderboard:
    GET  /api/leaderboard?window=&limit=    Windowed ranked view
    POST /api/leaderboard/ingest            Upsert a snapshot

  Admin:
    POST /api/admin/recompute               Recompute ranks
    POST /api/admin/prune                   Prune inactive snapshots
    POST /api/admin/sync                    Immediate sync cycle

ERROR HANDLING:
  Errors map to JSON with HTTP status:
  - 400: invalid input (bad amounts, unknown window, bad body)
  - 404: unknown package/feature/account
  - 409: insufficient points
  An already-unlocked feature is NOT an error: 200 with
  status "already_unlocked". A replayed correlation id is success and
  returns the prior record.

SEE ALSO:
  - dto.go: request/response types
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/warp/gamify-engine/catalog"
	"github.com/warp/gamify-engine/feature"
	"github.com/warp/gamify-engine/leaderboard"
	"github.com/warp/gamify-engine/ledger"
	"github.com/warp/gamify-engine/purchase"
	"github.com/warp/gamify-engine/scheduler"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger     *ledger.Ledger
	Catalog    *catalog.Catalog
	Gate       *feature.Gate
	Board      *leaderboard.Engine
	Reconciler *purchase.Reconciler
	Scheduler  *scheduler.Scheduler
}

// =============================================================================
// CATALOG
// =============================================================================

func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	pkgs := h.Catalog.Packages()
	dtos := make([]PackageDTO, 0, len(pkgs))
	for _, p := range pkgs {
		dtos = append(dtos, toPackageDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ListFeatures(w http.ResponseWriter, r *http.Request) {
	feats := h.Catalog.Features()
	dtos := make([]FeatureStatusDTO, 0, len(feats))
	for _, f := range feats {
		dtos = append(dtos, toFeatureStatusDTO(feature.Status{Feature: f}))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))
	acct, ok := h.Ledger.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Account not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{UserID: string(id), Points: acct.Balance()})
}

func (h *Handler) GetPurchases(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))
	acct, ok := h.Ledger.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Account not found", nil)
		return
	}

	recs := acct.Purchases()
	dtos := make([]PurchaseDTO, 0, len(recs))
	for _, rec := range recs {
		dtos = append(dtos, toPurchaseDTO(rec))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetFeatureStatuses(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))
	statuses := h.Gate.Statuses(id)
	dtos := make([]FeatureStatusDTO, 0, len(statuses))
	for _, st := range statuses {
		dtos = append(dtos, toFeatureStatusDTO(st))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PURCHASES
// =============================================================================

func (h *Handler) SubmitPurchase(w http.ResponseWriter, r *http.Request) {
	var req SubmitPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" || req.PackageID == "" {
		writeError(w, http.StatusBadRequest, "userId and packageId are required", nil)
		return
	}

	rec, err := h.Reconciler.SubmitPurchase(r.Context(), ledger.AccountID(req.UserID), req.PackageID, req.CorrelationID)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownPackage) {
			writeError(w, http.StatusNotFound, "Unknown package", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to apply purchase", err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseDTO(rec))
}

// =============================================================================
// FEATURES
// =============================================================================

func (h *Handler) UnlockFeature(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))
	featureID := chi.URLParam(r, "featureId")

	err := h.Gate.Unlock(id, featureID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, UnlockResponse{
			FeatureID:       featureID,
			Status:          "unlocked",
			RemainingPoints: h.Ledger.Account(id).Balance(),
		})
	case errors.Is(err, ledger.ErrAlreadyUnlocked):
		// Soft no-op, not an error to the caller.
		writeJSON(w, http.StatusOK, UnlockResponse{
			FeatureID:       featureID,
			Status:          "already_unlocked",
			RemainingPoints: h.Ledger.Account(id).Balance(),
		})
	case errors.Is(err, catalog.ErrUnknownFeature):
		writeError(w, http.StatusNotFound, "Unknown feature", err)
	case errors.Is(err, ledger.ErrInsufficientPoints):
		writeError(w, http.StatusConflict, "Insufficient points", err)
	default:
		writeError(w, http.StatusInternalServerError, "Failed to unlock feature", err)
	}
}

func (h *Handler) ToggleFeature(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))
	featureID := chi.URLParam(r, "featureId")

	enabled, err := h.Gate.Toggle(id, featureID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ToggleResponse{FeatureID: featureID, Enabled: enabled})
	case errors.Is(err, catalog.ErrUnknownFeature):
		writeError(w, http.StatusNotFound, "Unknown feature", err)
	case errors.Is(err, ledger.ErrNotPurchased):
		writeError(w, http.StatusBadRequest, "Feature not purchased", err)
	default:
		writeError(w, http.StatusInternalServerError, "Failed to toggle feature", err)
	}
}

// =============================================================================
// LEADERBOARD
// =============================================================================

func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	window := leaderboard.Window(r.URL.Query().Get("window"))
	if window == "" {
		window = leaderboard.AllTime
	}
	if !window.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown window (use weekly, monthly or allTime)", nil)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = parsed
	}

	writeJSON(w, http.StatusOK, h.Board.Window(window, limit))
}

func (h *Handler) IngestSnapshot(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}

	snap := h.Board.Ingest(leaderboard.SnapshotID(req.ID), leaderboard.Stats{
		DisplayName:           req.DisplayName,
		PhotoRef:              req.PhotoRef,
		IsGuest:               req.IsGuest,
		Points:                req.Points,
		StreakDays:            req.StreakDays,
		CompletionRatePercent: req.CompletionRatePercent,
		TotalHabits:           req.TotalHabits,
		TotalCompletions:      req.TotalCompletions,
	})
	h.Board.RecomputeRanks()
	if updated, ok := h.Board.Get(snap.ID); ok {
		snap = updated
	}
	writeJSON(w, http.StatusOK, snap)
}

// =============================================================================
// ADMIN
// =============================================================================

func (h *Handler) RecomputeRanks(w http.ResponseWriter, r *http.Request) {
	h.Board.RecomputeRanks()
	writeJSON(w, http.StatusOK, map[string]int{"participants": h.Board.Len()})
}

func (h *Handler) PruneInactive(w http.ResponseWriter, r *http.Request) {
	req := PruneRequest{RetentionDays: leaderboard.DefaultRetentionDays}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	if req.RetentionDays <= 0 {
		writeError(w, http.StatusBadRequest, "retentionDays must be positive", nil)
		return
	}
	removed := h.Board.PruneInactive(req.RetentionDays)
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Scheduler not running", nil)
		return
	}
	h.Scheduler.RunNow()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
