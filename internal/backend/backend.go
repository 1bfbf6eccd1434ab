// Package backend defines the entitlement backend contract the reconciler
// consumes, plus the interchangeable implementations: a deterministic
// in-memory stub and a Postgres-backed store.
package backend

import (
	"context"

	"routineLoopAPI/internal/types/entitlement"
)

// Backend is the remote purchase/entitlement contract.
//
// Idempotency is a contract requirement, not a courtesy: registering the same
// pending order twice, re-registering a completed/refunded order, and
// granting an already-granted order must all be safe no-ops. The reconciler
// re-runs its steps after partial failures and at every startup, so any
// implementation that is not idempotent will corrupt entitlement state.
// backend_contract_test.go asserts this against every implementation.
type Backend interface {
	GetProductItems(ctx context.Context) ([]entitlement.ProductItem, error)
	GetTrialGate(ctx context.Context, userKeyHash string) (entitlement.TrialGateRecord, error)
	StartTrial(ctx context.Context, userKeyHash string) (entitlement.TrialGateRecord, error)
	CreateOneTimePurchaseOrder(ctx context.Context, userKeyHash, sku string) (entitlement.PendingOrder, error)
	RegisterPendingOrder(ctx context.Context, userKeyHash string, order entitlement.PendingOrder) error
	RegisterCompletedOrRefundedOrder(ctx context.Context, userKeyHash string, order entitlement.SettledOrder) error
	GetPendingOrders(ctx context.Context, userKeyHash string) ([]entitlement.PendingOrder, error)
	ProcessProductGrant(ctx context.Context, userKeyHash, orderID, sku string) (granted bool, err error)
	CompleteProductGrant(ctx context.Context, userKeyHash, orderID string) (completed bool, err error)
	GetCompletedOrRefundedOrders(ctx context.Context, userKeyHash string) ([]entitlement.SettledOrder, error)
	RevokePurchaseEntitlement(ctx context.Context, userKeyHash string) error
	GetPurchaseEntitlement(ctx context.Context, userKeyHash string) (entitlement.PurchaseEntitlementRecord, error)
}

const (
	SkuMonthly = "premium_monthly"
	SkuYearly  = "premium_yearly"

	TrialDays = 7
)

// PremiumDaysBySku is the locally computed entitlement length used when a
// backend record carries no explicit expiry.
func PremiumDaysBySku(sku string) int {
	if sku == SkuYearly {
		return 365
	}
	return 30
}

// DefaultProductItems is the catalog served by the stub backend.
var DefaultProductItems = []entitlement.ProductItem{
	{Sku: SkuMonthly, Title: "Monthly pass", PriceLabel: "$1.99 / month"},
	{Sku: SkuYearly, Title: "Yearly pass", PriceLabel: "$14.99 / year"},
}
