package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"routineLoopAPI/internal/backend"
	"routineLoopAPI/services"
)

type EntitlementHandler struct {
	appStateService    *services.AppStateService
	entitlementService *services.EntitlementService
}

func NewEntitlementHandler(appStateService *services.AppStateService, entitlementService *services.EntitlementService) *EntitlementHandler {
	return &EntitlementHandler{
		appStateService:    appStateService,
		entitlementService: entitlementService,
	}
}

func (h *EntitlementHandler) GetProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	respondWithJSON(w, http.StatusOK, map[string]any{
		"products": h.entitlementService.GetProducts(ctx),
	})
}

func (h *EntitlementHandler) GetPremiumStatus(w http.ResponseWriter, r *http.Request) {
	ent := h.appStateService.State().Entitlement
	respondWithJSON(w, http.StatusOK, map[string]any{
		"premiumActive": h.appStateService.IsPremiumActive(),
		"premiumUntil":  ent.PremiumUntil,
		"trialUsed":     ent.TrialUsedLocal,
		"lastSku":       ent.LastSku,
	})
}

func (h *EntitlementHandler) StartTrial(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	result := h.entitlementService.StartFreeTrial(ctx)
	if !result.OK {
		respondWithJSON(w, http.StatusConflict, map[string]string{"errorCode": result.Reason})
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"premiumUntil": h.appStateService.State().Entitlement.PremiumUntil,
	})
}

func (h *EntitlementHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	// The bridge purchase flow may wait on the platform UI, so this handler
	// keeps the request's own deadline instead of the usual 5s timeout.
	ctx := r.Context()

	var req struct {
		Sku string `json:"sku"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Sku != backend.SkuMonthly && req.Sku != backend.SkuYearly {
		respondWithError(w, http.StatusBadRequest, "Unknown sku: "+req.Sku)
		return
	}

	result := h.entitlementService.PurchasePremium(ctx, req.Sku)
	if !result.OK {
		respondWithJSON(w, http.StatusPaymentRequired, result)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *EntitlementHandler) RestorePurchases(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	respondWithJSON(w, http.StatusOK, h.entitlementService.RestorePurchases(ctx))
}

func (h *EntitlementHandler) GetBanners(w http.ResponseWriter, r *http.Request) {
	ent := h.appStateService.State().Entitlement
	respondWithJSON(w, http.StatusOK, map[string]any{
		"trialExpired": h.appStateService.ShowTrialExpiredBanner(),
		"refundRevoked": map[string]any{
			"show":      h.appStateService.ShowRefundRevokedBanner(),
			"orderId":   ent.LastRefundedOrderID,
			"refundedAt": ent.LastRefundedAt,
		},
	})
}

func (h *EntitlementHandler) DismissTrialExpiredBanner(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.appStateService.DismissTrialExpiredBanner(ctx)
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "banner dismissed"})
}

func (h *EntitlementHandler) DismissRefundRevokedBanner(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.appStateService.DismissRefundRevokedBanner(ctx)
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "banner dismissed"})
}
