package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"routineLoopAPI/internal/types/entitlement"
)

// StubBridge is an in-process bridge used in tests. It hands out orders
// immediately and records completion calls.
type StubBridge struct {
	mu sync.Mutex

	UserKey        string
	Products       []entitlement.ProductItem
	Pending        []entitlement.PendingOrder
	History        []entitlement.SettledOrder
	CompletedCalls []string

	// CreateOrderFails makes order creation return an error, simulating a
	// platform flow the user abandoned or that timed out.
	CreateOrderFails bool
}

func NewStubBridge(userKey string) *StubBridge {
	return &StubBridge{UserKey: userKey}
}

func (b *StubBridge) GetProductItemList(ctx context.Context) ([]entitlement.ProductItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]entitlement.ProductItem(nil), b.Products...), nil
}

func (b *StubBridge) CreateOneTimePurchaseOrder(ctx context.Context, sku string, grant GrantFunc) (*entitlement.PendingOrder, error) {
	b.mu.Lock()
	if b.CreateOrderFails {
		b.mu.Unlock()
		return nil, fmt.Errorf("bridge purchase flow unavailable")
	}
	order := entitlement.PendingOrder{
		OrderID:   fmt.Sprintf("bridge_order_%s", uuid.NewString()),
		Sku:       sku,
		CreatedAt: time.Now(),
	}
	b.Pending = append(b.Pending, order)
	b.mu.Unlock()

	granted, err := grant(ctx, order.OrderID)
	if err != nil {
		return nil, err
	}
	if !granted {
		return nil, nil
	}
	return &order, nil
}

func (b *StubBridge) GetPendingOrders(ctx context.Context) ([]entitlement.PendingOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]entitlement.PendingOrder(nil), b.Pending...), nil
}

func (b *StubBridge) CompleteProductGrant(ctx context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CompletedCalls = append(b.CompletedCalls, orderID)
	next := b.Pending[:0]
	for _, order := range b.Pending {
		if order.OrderID != orderID {
			next = append(next, order)
		}
	}
	b.Pending = next
	return nil
}

func (b *StubBridge) GetCompletedOrRefundedOrders(ctx context.Context) ([]entitlement.SettledOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]entitlement.SettledOrder(nil), b.History...), nil
}

func (b *StubBridge) GetUserKeyHash(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.UserKey, nil
}
