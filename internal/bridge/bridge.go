// Package bridge wraps the platform in-app-purchase bridge. The bridge may be
// entirely absent; Detect returns a capability-checked handle, and all
// response-shape normalization is isolated in the HTTP adapter so callers
// never see raw payloads.
package bridge

import (
	"context"
	"os"
	"time"

	"routineLoopAPI/internal/types/entitlement"
)

// CreateOrderTimeout bounds the platform purchase UI wait. After the deadline
// the call resolves to "no order" instead of hanging.
const CreateOrderTimeout = 5 * time.Minute

// GrantFunc is invoked mid-flow by the bridge once the platform accepts the
// payment; it must return whether the backend granted the order.
type GrantFunc func(ctx context.Context, orderID string) (bool, error)

// PurchaseBridge is the platform IAP contract.
type PurchaseBridge interface {
	GetProductItemList(ctx context.Context) ([]entitlement.ProductItem, error)
	// CreateOneTimePurchaseOrder opens the platform purchase flow. It returns
	// nil (no error) when the user abandons the flow or the deadline passes.
	CreateOneTimePurchaseOrder(ctx context.Context, sku string, grant GrantFunc) (*entitlement.PendingOrder, error)
	GetPendingOrders(ctx context.Context) ([]entitlement.PendingOrder, error)
	CompleteProductGrant(ctx context.Context, orderID string) error
	GetCompletedOrRefundedOrders(ctx context.Context) ([]entitlement.SettledOrder, error)
	GetUserKeyHash(ctx context.Context) (string, error)
}

// Detect probes the environment for a usable bridge. Absence is a normal
// condition, not an error.
func Detect() (PurchaseBridge, bool) {
	baseURL := os.Getenv("BRIDGE_URL")
	if baseURL == "" {
		return nil, false
	}
	return NewHTTPBridge(baseURL, os.Getenv("BRIDGE_TOKEN")), true
}
