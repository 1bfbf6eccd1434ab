package services

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"routineLoopAPI/internal/analytics"
	"routineLoopAPI/internal/backend"
	"routineLoopAPI/internal/bridge"
	"routineLoopAPI/internal/types/entitlement"
	"routineLoopAPI/middleware"
)

// DefaultUserKeyHash identifies the local user when no platform bridge is
// present to supply a real key hash.
const DefaultUserKeyHash = "local-user"

type PurchaseResult struct {
	OK        bool   `json:"ok"`
	OrderID   string `json:"orderId,omitempty"`
	Sku       string `json:"sku,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
}

type RestoreResult struct {
	RestoredCount int `json:"restoredCount"`
}

// EntitlementService reconciles local entitlement state with the remote
// backend and the optional platform purchase bridge. Backend and bridge
// failures degrade to "keep prior local state"; only the purchase flow's
// typed failure codes surface to callers.
type EntitlementService struct {
	appState *AppStateService
	backend  backend.Backend
	bridge   bridge.PurchaseBridge
	tracker  *analytics.Tracker
	now      func() time.Time

	startupRestore sync.Once
}

// NewEntitlementService wires the reconciler. br may be nil when no platform
// bridge was detected.
func NewEntitlementService(appState *AppStateService, be backend.Backend, br bridge.PurchaseBridge, tracker *analytics.Tracker) *EntitlementService {
	return &EntitlementService{
		appState: appState,
		backend:  be,
		bridge:   br,
		tracker:  tracker,
		now:      time.Now,
	}
}

// SetClock overrides the service clock. Test hook.
func (s *EntitlementService) SetClock(now func() time.Time) {
	s.now = now
}

// ensureUserKeyHash resolves the user identity: the request's own key hash
// when one was presented, then the bridge's, then the last known hash, then
// the local default. A freshly learned hash is cached on the entitlement
// record.
func (s *EntitlementService) ensureUserKeyHash(ctx context.Context) string {
	if hash, ok := middleware.GetUserKeyHash(ctx); ok && hash != "" {
		s.appState.UpdateEntitlement(ctx, func(ent *entitlement.Entitlement) {
			ent.LastKnownUserKeyHash = hash
		})
		return hash
	}

	if s.bridge != nil {
		hash, err := s.bridge.GetUserKeyHash(ctx)
		if err == nil && hash != "" {
			s.appState.UpdateEntitlement(ctx, func(ent *entitlement.Entitlement) {
				ent.LastKnownUserKeyHash = hash
			})
			return hash
		}
		if err != nil {
			log.Printf("Warning: bridge identity lookup failed: %v", err)
		}
	}

	state := s.appState.State()
	if state.Entitlement.LastKnownUserKeyHash != "" {
		return state.Entitlement.LastKnownUserKeyHash
	}
	return DefaultUserKeyHash
}

// GetProducts returns the purchasable catalog, preferring the platform
// bridge's listing over the backend's.
func (s *EntitlementService) GetProducts(ctx context.Context) []entitlement.ProductItem {
	if s.bridge != nil {
		items, err := s.bridge.GetProductItemList(ctx)
		if err == nil && len(items) > 0 {
			return items
		}
		if err != nil {
			log.Printf("Warning: bridge product listing failed: %v", err)
		}
	}
	items, err := s.backend.GetProductItems(ctx)
	if err != nil {
		log.Printf("Warning: backend product listing failed: %v", err)
		return append([]entitlement.ProductItem(nil), backend.DefaultProductItems...)
	}
	return items
}

// SyncEntitlementSnapshot pulls the backend's trial gate and entitlement
// record into the local cache. Failures keep the prior local state.
func (s *EntitlementService) SyncEntitlementSnapshot(ctx context.Context, userKeyHash string) {
	gate, gateErr := s.backend.GetTrialGate(ctx, userKeyHash)
	record, entErr := s.backend.GetPurchaseEntitlement(ctx, userKeyHash)
	if gateErr != nil || entErr != nil {
		log.Printf("Warning: entitlement snapshot sync failed (gate=%v, entitlement=%v)", gateErr, entErr)
		return
	}

	s.appState.UpdateEntitlement(ctx, func(ent *entitlement.Entitlement) {
		ent.PremiumUntil = record.PremiumUntil
		ent.TrialUsedLocal = ent.TrialUsedLocal || gate.TrialUsed
		ent.LastOrderID = record.LastOrderID
		ent.LastSku = record.LastSku
		ent.LastKnownUserKeyHash = userKeyHash
	})
}

// StartFreeTrial activates the one-time trial. Both the remote gate and the
// local flag guard it; either one already set fails with ALREADY_USED.
func (s *EntitlementService) StartFreeTrial(ctx context.Context) Result {
	userKeyHash := s.ensureUserKeyHash(ctx)
	s.tracker.Track(analytics.EventTrialStart, map[string]any{"userKeyHash": userKeyHash})

	gate, err := s.backend.GetTrialGate(ctx, userKeyHash)
	if err != nil {
		log.Printf("Warning: trial gate check failed: %v", err)
		return Result{OK: false, Reason: ReasonAlreadyUsed}
	}
	if gate.TrialUsed || s.appState.State().Entitlement.TrialUsedLocal {
		return Result{OK: false, Reason: ReasonAlreadyUsed}
	}

	trial, err := s.backend.StartTrial(ctx, userKeyHash)
	if err != nil {
		log.Printf("Warning: trial start failed: %v", err)
		return Result{OK: false, Reason: ReasonAlreadyUsed}
	}

	s.appState.UpdateEntitlement(ctx, func(ent *entitlement.Entitlement) {
		ent.TrialUsedLocal = true
		ent.PremiumUntil = trial.TrialExpiresAt
		ent.TrialExpiredBannerShown = false
		ent.RefundNoticeShown = true
		ent.LastRefundedOrderID = ""
		ent.LastRefundedAt = nil
		ent.LastSku = entitlement.SkuTrial
		ent.LastOrderID = ""
		ent.LastKnownUserKeyHash = userKeyHash
	})

	s.tracker.Track(analytics.EventTrialSuccess, map[string]any{"userKeyHash": userKeyHash})
	return Result{OK: true}
}

// createBridgeOrder runs the platform purchase flow when a bridge exists. The
// grant callback registers the order as pending with the backend (so it
// survives restarts before grant) and applies the backend grant mid-flow.
// Any bridge failure resolves to "no order" so the backend mint can take over.
func (s *EntitlementService) createBridgeOrder(ctx context.Context, userKeyHash, sku string) *entitlement.PendingOrder {
	if s.bridge == nil {
		return nil
	}

	order, err := s.bridge.CreateOneTimePurchaseOrder(ctx, sku, func(ctx context.Context, orderID string) (bool, error) {
		pending := entitlement.PendingOrder{OrderID: orderID, Sku: sku, CreatedAt: s.now()}
		if err := s.backend.RegisterPendingOrder(ctx, userKeyHash, pending); err != nil {
			return false, err
		}
		return s.backend.ProcessProductGrant(ctx, userKeyHash, orderID, sku)
	})
	if err != nil {
		log.Printf("Warning: bridge purchase order failed: %v", err)
		return nil
	}
	return order
}

// PurchasePremium runs the order lifecycle: create (bridge first, backend
// mint as fallback), register pending, grant with one fresh-order retry,
// complete, then refresh the local cache from the backend's authoritative
// record.
func (s *EntitlementService) PurchasePremium(ctx context.Context, sku string) PurchaseResult {
	userKeyHash := s.ensureUserKeyHash(ctx)
	s.tracker.Track(analytics.EventPurchaseStart, map[string]any{"sku": sku})

	bridgeOrder := s.createBridgeOrder(ctx, userKeyHash, sku)

	var order entitlement.PendingOrder
	if bridgeOrder != nil {
		order = *bridgeOrder
		if err := s.backend.RegisterPendingOrder(ctx, userKeyHash, order); err != nil {
			log.Printf("Warning: failed to register bridge order: %v", err)
		}
	} else {
		minted, err := s.backend.CreateOneTimePurchaseOrder(ctx, userKeyHash, sku)
		if err != nil {
			log.Printf("Warning: backend order mint failed: %v", err)
			s.tracker.Track(analytics.EventGrantFail, map[string]any{"sku": sku, "stage": "mint"})
			return PurchaseResult{OK: false, Sku: sku, ErrorCode: ReasonGrantRejected}
		}
		order = minted
	}

	granted, err := s.backend.ProcessProductGrant(ctx, userKeyHash, order.OrderID, order.Sku)
	if err != nil {
		log.Printf("Warning: product grant failed: %v", err)
	}
	if !granted {
		// One retry with a brand-new order before giving up.
		retryOrder, retryErr := s.backend.CreateOneTimePurchaseOrder(ctx, userKeyHash, sku)
		if retryErr == nil {
			order = retryOrder
			granted, err = s.backend.ProcessProductGrant(ctx, userKeyHash, order.OrderID, order.Sku)
			if err != nil {
				log.Printf("Warning: product grant retry failed: %v", err)
			}
		}
	}
	if !granted {
		s.tracker.Track(analytics.EventGrantFail, map[string]any{"sku": sku, "orderId": order.OrderID, "stage": "grant"})
		return PurchaseResult{OK: false, OrderID: order.OrderID, Sku: order.Sku, ErrorCode: ReasonGrantRejected}
	}

	completed, err := s.backend.CompleteProductGrant(ctx, userKeyHash, order.OrderID)
	if err != nil {
		log.Printf("Warning: grant completion failed: %v", err)
	}
	if !completed {
		s.tracker.Track(analytics.EventGrantFail, map[string]any{"sku": sku, "orderId": order.OrderID, "stage": "complete"})
		return PurchaseResult{OK: false, OrderID: order.OrderID, Sku: order.Sku, ErrorCode: ReasonCompleteFailed}
	}

	if bridgeOrder != nil {
		// Best-effort: bridge confirmation never blocks a completed purchase.
		if err := s.bridge.CompleteProductGrant(ctx, bridgeOrder.OrderID); err != nil {
			log.Printf("Warning: bridge grant confirmation failed: %v", err)
		}
	}

	record, err := s.backend.GetPurchaseEntitlement(ctx, userKeyHash)
	if err != nil {
		log.Printf("Warning: entitlement refresh failed: %v", err)
		record = entitlement.PurchaseEntitlementRecord{}
	}

	now := s.now()
	s.appState.UpdateEntitlement(ctx, func(ent *entitlement.Entitlement) {
		if record.PremiumUntil != nil {
			ent.PremiumUntil = record.PremiumUntil
		} else {
			fallback := now.AddDate(0, 0, backend.PremiumDaysBySku(sku))
			ent.PremiumUntil = &fallback
		}
		ent.LastOrderID = record.LastOrderID
		if ent.LastOrderID == "" {
			ent.LastOrderID = order.OrderID
		}
		ent.LastSku = record.LastSku
		if ent.LastSku == "" {
			ent.LastSku = sku
		}
		ent.RefundNoticeShown = true
		ent.LastRefundedOrderID = ""
		ent.LastRefundedAt = nil
		ent.LastKnownUserKeyHash = userKeyHash
	})

	s.tracker.Track(analytics.EventGrantSuccess, map[string]any{"sku": order.Sku, "orderId": order.OrderID})
	return PurchaseResult{OK: true, OrderID: order.OrderID, Sku: order.Sku}
}

// RestorePurchases reconciles against the bridge and backend order history.
func (s *EntitlementService) RestorePurchases(ctx context.Context) RestoreResult {
	userKeyHash := s.ensureUserKeyHash(ctx)
	s.tracker.Track(analytics.EventRestoreStart, nil)
	restored := s.restoreInternal(ctx, userKeyHash)
	s.tracker.Track(analytics.EventRestoreDone, map[string]any{"restoredCount": restored})
	return RestoreResult{RestoredCount: restored}
}

// RestoreOnStartup runs the automatic restore exactly once per process
// lifetime. Racing an explicit restore is benign: every step is idempotent
// against backend state.
func (s *EntitlementService) RestoreOnStartup(ctx context.Context) {
	s.startupRestore.Do(func() {
		userKeyHash := s.ensureUserKeyHash(ctx)
		s.restoreInternal(ctx, userKeyHash)
	})
}

func (s *EntitlementService) restoreInternal(ctx context.Context, userKeyHash string) int {
	bridgePendingIDs := s.mirrorBridgeOrders(ctx, userKeyHash)

	restored := 0
	pending, err := s.backend.GetPendingOrders(ctx, userKeyHash)
	if err != nil {
		log.Printf("Warning: pending order listing failed: %v", err)
		pending = nil
	}
	for _, order := range pending {
		granted, err := s.backend.ProcessProductGrant(ctx, userKeyHash, order.OrderID, order.Sku)
		if err != nil || !granted {
			continue
		}
		completed, err := s.backend.CompleteProductGrant(ctx, userKeyHash, order.OrderID)
		if err != nil || !completed {
			continue
		}
		if bridgePendingIDs[order.OrderID] && s.bridge != nil {
			if err := s.bridge.CompleteProductGrant(ctx, order.OrderID); err != nil {
				log.Printf("Warning: bridge grant confirmation failed: %v", err)
			}
		}
		restored++
	}

	revokedOrder := s.detectAndRevokeRefund(ctx, userKeyHash)

	s.SyncEntitlementSnapshot(ctx, userKeyHash)

	if revokedOrder != nil {
		s.tracker.Track(analytics.EventRefundRevoke, map[string]any{
			"orderId": revokedOrder.OrderID,
			"sku":     revokedOrder.Sku,
		})
		refundedAt := revokedOrder.UpdatedAt
		if refundedAt.IsZero() {
			refundedAt = s.now()
		}
		s.appState.UpdateEntitlement(ctx, func(ent *entitlement.Entitlement) {
			ent.PremiumUntil = nil
			ent.LastOrderID = ""
			ent.LastSku = ""
			ent.LastRefundedOrderID = revokedOrder.OrderID
			ent.LastRefundedAt = &refundedAt
			ent.RefundNoticeShown = false
		})
	}
	return restored
}

// mirrorBridgeOrders registers every bridge-known order with the backend so
// the backend's books cover orders the app never saw complete. Returns the
// set of bridge-pending order ids.
func (s *EntitlementService) mirrorBridgeOrders(ctx context.Context, userKeyHash string) map[string]bool {
	bridgePendingIDs := make(map[string]bool)
	if s.bridge == nil {
		return bridgePendingIDs
	}

	bridgePending, err := s.bridge.GetPendingOrders(ctx)
	if err != nil {
		log.Printf("Warning: bridge pending orders unavailable: %v", err)
		bridgePending = nil
	}
	for _, order := range bridgePending {
		bridgePendingIDs[order.OrderID] = true
		if err := s.backend.RegisterPendingOrder(ctx, userKeyHash, order); err != nil {
			log.Printf("Warning: failed to mirror bridge pending order %s: %v", order.OrderID, err)
		}
	}

	bridgeHistory, err := s.bridge.GetCompletedOrRefundedOrders(ctx)
	if err != nil {
		log.Printf("Warning: bridge order history unavailable: %v", err)
		bridgeHistory = nil
	}
	for _, order := range bridgeHistory {
		if err := s.backend.RegisterCompletedOrRefundedOrder(ctx, userKeyHash, order); err != nil {
			log.Printf("Warning: failed to mirror bridge settled order %s: %v", order.OrderID, err)
		}
	}
	return bridgePendingIDs
}

// detectAndRevokeRefund inspects the backend's settled history. Entitlement
// is revoked when the current entitlement's order appears refunded, or when a
// legacy record holds active premium on a non-trial SKU without any order id.
func (s *EntitlementService) detectAndRevokeRefund(ctx context.Context, userKeyHash string) *entitlement.SettledOrder {
	history, err := s.backend.GetCompletedOrRefundedOrders(ctx, userKeyHash)
	if err != nil {
		log.Printf("Warning: settled order listing failed: %v", err)
		return nil
	}

	refunded := make([]entitlement.SettledOrder, 0)
	for _, order := range history {
		if order.Status == entitlement.OrderRefunded {
			refunded = append(refunded, order)
		}
	}
	if len(refunded) == 0 {
		return nil
	}
	sort.Slice(refunded, func(i, j int) bool { return refunded[i].UpdatedAt.After(refunded[j].UpdatedAt) })

	record, err := s.backend.GetPurchaseEntitlement(ctx, userKeyHash)
	if err != nil {
		log.Printf("Warning: entitlement lookup during refund check failed: %v", err)
		return nil
	}

	var target *entitlement.SettledOrder
	if record.LastOrderID != "" {
		for i := range refunded {
			if refunded[i].OrderID == record.LastOrderID {
				target = &refunded[i]
				break
			}
		}
	} else if record.PremiumUntil != nil && record.LastSku != "" && record.LastSku != entitlement.SkuTrial {
		// Legacy record without an order id: newest refund wins.
		target = &refunded[0]
	}
	if target == nil {
		return nil
	}

	if err := s.backend.RevokePurchaseEntitlement(ctx, userKeyHash); err != nil {
		log.Printf("Warning: entitlement revocation failed: %v", err)
		return nil
	}
	return target
}
