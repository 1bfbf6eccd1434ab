package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routineLoopAPI/internal/analytics"
	"routineLoopAPI/internal/backend"
	"routineLoopAPI/internal/bridge"
	"routineLoopAPI/internal/types/entitlement"
	"routineLoopAPI/middleware"
)

func newTestEntitlementService(t *testing.T, be backend.Backend, br bridge.PurchaseBridge) (*EntitlementService, *AppStateService) {
	t.Helper()
	appState := newTestAppStateService(t)
	svc := NewEntitlementService(appState, be, br, analytics.NewTracker())
	svc.SetClock(func() time.Time { return testNow })
	return svc, appState
}

func newStubBackendAt(now time.Time) *backend.StubBackend {
	be := backend.NewStubBackend()
	be.SetClock(func() time.Time { return now })
	return be
}

func TestStartFreeTrial(t *testing.T) {
	be := newStubBackendAt(testNow)
	svc, appState := newTestEntitlementService(t, be, nil)
	ctx := context.Background()

	// Execute
	result := svc.StartFreeTrial(ctx)

	// Assert
	require.True(t, result.OK)
	ent := appState.State().Entitlement
	assert.True(t, ent.TrialUsedLocal)
	assert.Equal(t, entitlement.SkuTrial, ent.LastSku)
	require.NotNil(t, ent.PremiumUntil)
	assert.WithinDuration(t, testNow.AddDate(0, 0, backend.TrialDays), *ent.PremiumUntil, time.Second)
	assert.True(t, appState.IsPremiumActive())
}

func TestStartFreeTrialAlreadyUsedRemotely(t *testing.T) {
	be := newStubBackendAt(testNow)
	svc, _ := newTestEntitlementService(t, be, nil)
	ctx := context.Background()

	// The backend gate is tripped for this identity even though the local
	// flag is clear, e.g. after a data reset.
	_, err := be.StartTrial(ctx, DefaultUserKeyHash)
	require.NoError(t, err)

	result := svc.StartFreeTrial(ctx)
	assert.False(t, result.OK)
	assert.Equal(t, ReasonAlreadyUsed, result.Reason)
}

func TestStartFreeTrialAlreadyUsedLocally(t *testing.T) {
	be := newStubBackendAt(testNow)
	svc, appState := newTestEntitlementService(t, be, nil)
	ctx := context.Background()

	appState.UpdateEntitlement(ctx, func(ent *entitlement.Entitlement) {
		ent.TrialUsedLocal = true
	})

	result := svc.StartFreeTrial(ctx)
	assert.False(t, result.OK)
	assert.Equal(t, ReasonAlreadyUsed, result.Reason)
}

func TestStartFreeTrialTwice(t *testing.T) {
	be := newStubBackendAt(testNow)
	svc, _ := newTestEntitlementService(t, be, nil)
	ctx := context.Background()

	require.True(t, svc.StartFreeTrial(ctx).OK)
	second := svc.StartFreeTrial(ctx)
	assert.False(t, second.OK)
	assert.Equal(t, ReasonAlreadyUsed, second.Reason)
}

func TestPurchasePremiumWithoutBridge(t *testing.T) {
	be := newStubBackendAt(testNow)
	svc, appState := newTestEntitlementService(t, be, nil)
	ctx := context.Background()

	result := svc.PurchasePremium(ctx, backend.SkuMonthly)

	require.True(t, result.OK)
	assert.NotEmpty(t, result.OrderID)
	assert.Equal(t, backend.SkuMonthly, result.Sku)

	ent := appState.State().Entitlement
	require.NotNil(t, ent.PremiumUntil)
	assert.WithinDuration(t, testNow.AddDate(0, 0, 30), *ent.PremiumUntil, time.Second)
	assert.Equal(t, result.OrderID, ent.LastOrderID)
	assert.Equal(t, backend.SkuMonthly, ent.LastSku)
	assert.True(t, appState.IsPremiumActive())

	// The order moved through the full lifecycle on the backend.
	pending, err := be.GetPendingOrders(ctx, DefaultUserKeyHash)
	require.NoError(t, err)
	assert.Empty(t, pending)
	settled, err := be.GetCompletedOrRefundedOrders(ctx, DefaultUserKeyHash)
	require.NoError(t, err)
	require.Len(t, settled, 1)
	assert.Equal(t, entitlement.OrderCompleted, settled[0].Status)
}

func TestPurchasePremiumYearlyDuration(t *testing.T) {
	be := newStubBackendAt(testNow)
	svc, appState := newTestEntitlementService(t, be, nil)

	result := svc.PurchasePremium(context.Background(), backend.SkuYearly)

	require.True(t, result.OK)
	ent := appState.State().Entitlement
	require.NotNil(t, ent.PremiumUntil)
	assert.WithinDuration(t, testNow.AddDate(0, 0, 365), *ent.PremiumUntil, time.Second)
}

func TestPurchasePremiumThroughBridge(t *testing.T) {
	be := newStubBackendAt(testNow)
	br := bridge.NewStubBridge("platform-user")
	svc, appState := newTestEntitlementService(t, be, br)
	ctx := context.Background()

	result := svc.PurchasePremium(ctx, backend.SkuMonthly)

	require.True(t, result.OK)
	assert.Contains(t, result.OrderID, "bridge_order_")

	// The bridge was told its order completed and no longer holds it pending.
	require.Len(t, br.CompletedCalls, 1)
	assert.Equal(t, result.OrderID, br.CompletedCalls[0])
	bridgePending, err := br.GetPendingOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, bridgePending)

	// Identity came from the bridge, not the local default.
	ent := appState.State().Entitlement
	assert.Equal(t, "platform-user", ent.LastKnownUserKeyHash)
	settled, err := be.GetCompletedOrRefundedOrders(ctx, "platform-user")
	require.NoError(t, err)
	require.Len(t, settled, 1)
	assert.Equal(t, result.OrderID, settled[0].OrderID)
}

func TestPurchasePremiumBridgeFailureFallsBackToBackend(t *testing.T) {
	be := newStubBackendAt(testNow)
	br := bridge.NewStubBridge("platform-user")
	br.CreateOrderFails = true
	svc, appState := newTestEntitlementService(t, be, br)

	result := svc.PurchasePremium(context.Background(), backend.SkuMonthly)

	require.True(t, result.OK)
	assert.NotContains(t, result.OrderID, "bridge_order_")
	assert.True(t, appState.IsPremiumActive())
}

func TestPurchasePremiumUsesRequestIdentity(t *testing.T) {
	be := newStubBackendAt(testNow)
	svc, appState := newTestEntitlementService(t, be, nil)
	ctx := context.WithValue(context.Background(), middleware.UserKeyHashKey, "request-hash")

	result := svc.PurchasePremium(ctx, backend.SkuMonthly)

	require.True(t, result.OK)
	assert.Equal(t, "request-hash", appState.State().Entitlement.LastKnownUserKeyHash)
	settled, err := be.GetCompletedOrRefundedOrders(context.Background(), "request-hash")
	require.NoError(t, err)
	assert.Len(t, settled, 1)
}

// flakyGrantBackend rejects the first grant attempt so the purchase flow has
// to retry with a fresh order.
type flakyGrantBackend struct {
	*backend.StubBackend
	rejected bool
}

func (b *flakyGrantBackend) ProcessProductGrant(ctx context.Context, userKeyHash, orderID, sku string) (bool, error) {
	if !b.rejected {
		b.rejected = true
		return false, nil
	}
	return b.StubBackend.ProcessProductGrant(ctx, userKeyHash, orderID, sku)
}

func TestPurchasePremiumRetriesGrantWithFreshOrder(t *testing.T) {
	be := &flakyGrantBackend{StubBackend: newStubBackendAt(testNow)}
	svc, appState := newTestEntitlementService(t, be, nil)

	result := svc.PurchasePremium(context.Background(), backend.SkuMonthly)

	require.True(t, result.OK)
	assert.True(t, appState.IsPremiumActive())
}

// rejectingBackend never grants. The flow must fail with a typed code and
// leave local entitlement untouched.
type rejectingBackend struct {
	*backend.StubBackend
}

func (b *rejectingBackend) ProcessProductGrant(ctx context.Context, userKeyHash, orderID, sku string) (bool, error) {
	return false, nil
}

func TestPurchasePremiumGrantRejected(t *testing.T) {
	be := &rejectingBackend{StubBackend: newStubBackendAt(testNow)}
	svc, appState := newTestEntitlementService(t, be, nil)

	result := svc.PurchasePremium(context.Background(), backend.SkuMonthly)

	assert.False(t, result.OK)
	assert.Equal(t, ReasonGrantRejected, result.ErrorCode)
	assert.False(t, appState.IsPremiumActive())
	assert.Nil(t, appState.State().Entitlement.PremiumUntil)
}

func TestRestorePurchasesGrantsBackendPendingOrders(t *testing.T) {
	be := newStubBackendAt(testNow)
	svc, appState := newTestEntitlementService(t, be, nil)
	ctx := context.Background()

	// An order that was registered but never granted, e.g. the app died
	// mid-purchase.
	require.NoError(t, be.RegisterPendingOrder(ctx, DefaultUserKeyHash, entitlement.PendingOrder{
		OrderID:   "order_interrupted",
		Sku:       backend.SkuYearly,
		CreatedAt: testNow.Add(-time.Hour),
	}))

	result := svc.RestorePurchases(ctx)

	assert.Equal(t, 1, result.RestoredCount)
	ent := appState.State().Entitlement
	assert.Equal(t, "order_interrupted", ent.LastOrderID)
	assert.Equal(t, backend.SkuYearly, ent.LastSku)
	assert.True(t, appState.IsPremiumActive())
}

func TestRestorePurchasesMirrorsBridgeOrders(t *testing.T) {
	be := newStubBackendAt(testNow)
	br := bridge.NewStubBridge("platform-user")
	br.Pending = []entitlement.PendingOrder{{
		OrderID:   "bridge_order_lost",
		Sku:       backend.SkuMonthly,
		CreatedAt: testNow.Add(-time.Hour),
	}}
	svc, appState := newTestEntitlementService(t, be, br)
	ctx := context.Background()

	result := svc.RestorePurchases(ctx)

	assert.Equal(t, 1, result.RestoredCount)
	assert.Contains(t, br.CompletedCalls, "bridge_order_lost")
	assert.True(t, appState.IsPremiumActive())
}

func TestRestorePurchasesNothingToDo(t *testing.T) {
	be := newStubBackendAt(testNow)
	svc, appState := newTestEntitlementService(t, be, nil)

	result := svc.RestorePurchases(context.Background())

	assert.Equal(t, 0, result.RestoredCount)
	assert.False(t, appState.IsPremiumActive())
}

func TestRestoreRevokesRefundedPurchase(t *testing.T) {
	be := newStubBackendAt(testNow)
	svc, appState := newTestEntitlementService(t, be, nil)
	ctx := context.Background()

	purchase := svc.PurchasePremium(ctx, backend.SkuMonthly)
	require.True(t, purchase.OK)
	require.True(t, appState.IsPremiumActive())

	// The store refunds the order out of band.
	be.MarkOrderRefunded(DefaultUserKeyHash, purchase.OrderID)

	svc.RestorePurchases(ctx)

	ent := appState.State().Entitlement
	assert.False(t, appState.IsPremiumActive())
	assert.Nil(t, ent.PremiumUntil)
	assert.Empty(t, ent.LastOrderID)
	assert.Empty(t, ent.LastSku)
	assert.Equal(t, purchase.OrderID, ent.LastRefundedOrderID)
	require.NotNil(t, ent.LastRefundedAt)
	assert.False(t, ent.RefundNoticeShown)
	assert.True(t, appState.ShowRefundRevokedBanner())

	// The backend record was revoked too.
	record, err := be.GetPurchaseEntitlement(ctx, DefaultUserKeyHash)
	require.NoError(t, err)
	assert.Nil(t, record.PremiumUntil)
}

func TestRestoreIgnoresRefundOfSupersededOrder(t *testing.T) {
	be := newStubBackendAt(testNow)
	svc, appState := newTestEntitlementService(t, be, nil)
	ctx := context.Background()

	first := svc.PurchasePremium(ctx, backend.SkuMonthly)
	require.True(t, first.OK)
	second := svc.PurchasePremium(ctx, backend.SkuYearly)
	require.True(t, second.OK)

	// Only the superseded monthly order is refunded; the yearly entitlement
	// must survive.
	be.MarkOrderRefunded(DefaultUserKeyHash, first.OrderID)

	svc.RestorePurchases(ctx)

	ent := appState.State().Entitlement
	assert.True(t, appState.IsPremiumActive())
	assert.Equal(t, second.OrderID, ent.LastOrderID)
	assert.Empty(t, ent.LastRefundedOrderID)
}

func TestRestoreRevokesLegacyRecordWithoutOrderID(t *testing.T) {
	be := newStubBackendAt(testNow)
	svc, appState := newTestEntitlementService(t, be, nil)
	ctx := context.Background()

	// A record from before order ids were kept: active premium, paid sku,
	// no order reference. A refund in history must still revoke it.
	until := testNow.AddDate(0, 0, 20)
	be.SetEntitlementRecord(DefaultUserKeyHash, entitlement.PurchaseEntitlementRecord{
		PremiumUntil: &until,
		LastSku:      backend.SkuMonthly,
		UpdatedAt:    testNow.Add(-time.Hour),
	})
	require.NoError(t, be.RegisterCompletedOrRefundedOrder(ctx, DefaultUserKeyHash, entitlement.SettledOrder{
		OrderID:   "order_legacy",
		Sku:       backend.SkuMonthly,
		Status:    entitlement.OrderRefunded,
		UpdatedAt: testNow.Add(-time.Minute),
	}))

	svc.RestorePurchases(ctx)

	ent := appState.State().Entitlement
	assert.False(t, appState.IsPremiumActive())
	assert.Equal(t, "order_legacy", ent.LastRefundedOrderID)
}

// failingSnapshotBackend makes the snapshot reads error while leaving the
// rest of the surface intact.
type failingSnapshotBackend struct {
	*backend.StubBackend
}

func (b *failingSnapshotBackend) GetTrialGate(ctx context.Context, userKeyHash string) (entitlement.TrialGateRecord, error) {
	return entitlement.TrialGateRecord{}, fmt.Errorf("backend unavailable")
}

func TestSyncEntitlementSnapshotFailureKeepsLocalState(t *testing.T) {
	be := &failingSnapshotBackend{StubBackend: newStubBackendAt(testNow)}
	svc, appState := newTestEntitlementService(t, be, nil)
	ctx := context.Background()

	until := testNow.AddDate(0, 0, 10)
	appState.UpdateEntitlement(ctx, func(ent *entitlement.Entitlement) {
		ent.PremiumUntil = &until
		ent.LastSku = backend.SkuMonthly
		ent.LastOrderID = "order_local"
	})

	svc.SyncEntitlementSnapshot(ctx, DefaultUserKeyHash)

	ent := appState.State().Entitlement
	assert.Equal(t, "order_local", ent.LastOrderID)
	require.NotNil(t, ent.PremiumUntil)
	assert.True(t, appState.IsPremiumActive())
}

func TestRestoreOnStartupRunsOnce(t *testing.T) {
	be := newStubBackendAt(testNow)
	svc, _ := newTestEntitlementService(t, be, nil)
	ctx := context.Background()

	require.NoError(t, be.RegisterPendingOrder(ctx, DefaultUserKeyHash, entitlement.PendingOrder{
		OrderID: "order_startup", Sku: backend.SkuMonthly, CreatedAt: testNow,
	}))

	svc.RestoreOnStartup(ctx)
	settled, err := be.GetCompletedOrRefundedOrders(ctx, DefaultUserKeyHash)
	require.NoError(t, err)
	require.Len(t, settled, 1)

	// A second startup restore is a no-op even with new pending work; only
	// the explicit restore picks it up.
	require.NoError(t, be.RegisterPendingOrder(ctx, DefaultUserKeyHash, entitlement.PendingOrder{
		OrderID: "order_later", Sku: backend.SkuMonthly, CreatedAt: testNow,
	}))
	svc.RestoreOnStartup(ctx)
	settled, err = be.GetCompletedOrRefundedOrders(ctx, DefaultUserKeyHash)
	require.NoError(t, err)
	assert.Len(t, settled, 1)
}

func TestGetProductsPrefersBridge(t *testing.T) {
	be := newStubBackendAt(testNow)
	br := bridge.NewStubBridge("platform-user")
	br.Products = []entitlement.ProductItem{{Sku: backend.SkuMonthly, Title: "Monthly (store)", PriceLabel: "$2.49"}}
	svc, _ := newTestEntitlementService(t, be, br)

	items := svc.GetProducts(context.Background())
	require.Len(t, items, 1)
	assert.Equal(t, "Monthly (store)", items[0].Title)
}

func TestGetProductsFallsBackToBackend(t *testing.T) {
	be := newStubBackendAt(testNow)
	svc, _ := newTestEntitlementService(t, be, nil)

	items := svc.GetProducts(context.Background())
	assert.Equal(t, backend.DefaultProductItems, items)
}
