package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"routineLoopAPI/internal/types/entitlement"
)

// StubBackend is the deterministic in-memory implementation used when no
// DATABASE_URL is configured, and in tests.
type StubBackend struct {
	mu sync.Mutex

	trialByUser       map[string]entitlement.TrialGateRecord
	entitlementByUser map[string]entitlement.PurchaseEntitlementRecord
	pendingByUser     map[string][]entitlement.PendingOrder
	settledByUser     map[string][]entitlement.SettledOrder

	now func() time.Time
}

func NewStubBackend() *StubBackend {
	return &StubBackend{
		trialByUser:       make(map[string]entitlement.TrialGateRecord),
		entitlementByUser: make(map[string]entitlement.PurchaseEntitlementRecord),
		pendingByUser:     make(map[string][]entitlement.PendingOrder),
		settledByUser:     make(map[string][]entitlement.SettledOrder),
		now:               time.Now,
	}
}

// SetClock overrides the stub's clock. Test hook.
func (b *StubBackend) SetClock(now func() time.Time) {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
}

func (b *StubBackend) GetProductItems(ctx context.Context) ([]entitlement.ProductItem, error) {
	items := make([]entitlement.ProductItem, len(DefaultProductItems))
	copy(items, DefaultProductItems)
	return items, nil
}

func (b *StubBackend) GetTrialGate(ctx context.Context, userKeyHash string) (entitlement.TrialGateRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trialByUser[userKeyHash], nil
}

func (b *StubBackend) StartTrial(ctx context.Context, userKeyHash string) (entitlement.TrialGateRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	expiresAt := now.AddDate(0, 0, TrialDays)
	record := entitlement.TrialGateRecord{
		TrialUsed:      true,
		TrialStartedAt: &now,
		TrialExpiresAt: &expiresAt,
	}
	b.trialByUser[userKeyHash] = record
	b.entitlementByUser[userKeyHash] = entitlement.PurchaseEntitlementRecord{
		PremiumUntil: &expiresAt,
		LastSku:      entitlement.SkuTrial,
		UpdatedAt:    now,
	}
	return record, nil
}

func (b *StubBackend) CreateOneTimePurchaseOrder(ctx context.Context, userKeyHash, sku string) (entitlement.PendingOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	order := entitlement.PendingOrder{
		OrderID:   fmt.Sprintf("order_%s", uuid.NewString()),
		Sku:       sku,
		CreatedAt: b.now(),
	}
	b.pendingByUser[userKeyHash] = append(b.pendingByUser[userKeyHash], order)
	return order, nil
}

func (b *StubBackend) RegisterPendingOrder(ctx context.Context, userKeyHash string, order entitlement.PendingOrder) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	pending := b.pendingByUser[userKeyHash]
	for i := range pending {
		if pending[i].OrderID == order.OrderID {
			pending[i].Sku = order.Sku
			if !order.CreatedAt.IsZero() {
				pending[i].CreatedAt = order.CreatedAt
			}
			return nil
		}
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = b.now()
	}
	b.pendingByUser[userKeyHash] = append(pending, order)
	return nil
}

func (b *StubBackend) RegisterCompletedOrRefundedOrder(ctx context.Context, userKeyHash string, order entitlement.SettledOrder) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	settled := b.settledByUser[userKeyHash]
	for i := range settled {
		if settled[i].OrderID == order.OrderID {
			settled[i].Sku = order.Sku
			settled[i].Status = order.Status
			if !order.UpdatedAt.IsZero() {
				settled[i].UpdatedAt = order.UpdatedAt
			}
			return nil
		}
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = b.now()
	}
	b.settledByUser[userKeyHash] = append(settled, order)
	return nil
}

func (b *StubBackend) GetPendingOrders(ctx context.Context, userKeyHash string) ([]entitlement.PendingOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pending := b.pendingByUser[userKeyHash]
	out := make([]entitlement.PendingOrder, len(pending))
	copy(out, pending)
	return out, nil
}

// ProcessProductGrant credits the order toward entitlement. Granting requires
// a pending order matching both orderID and sku; anything else is rejected.
func (b *StubBackend) ProcessProductGrant(ctx context.Context, userKeyHash, orderID, sku string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, order := range b.pendingByUser[userKeyHash] {
		if order.OrderID == orderID && order.Sku == sku {
			now := b.now()
			premiumUntil := now.AddDate(0, 0, PremiumDaysBySku(order.Sku))
			b.entitlementByUser[userKeyHash] = entitlement.PurchaseEntitlementRecord{
				PremiumUntil: &premiumUntil,
				LastOrderID:  order.OrderID,
				LastSku:      order.Sku,
				UpdatedAt:    now,
			}
			return true, nil
		}
	}
	return false, nil
}

func (b *StubBackend) CompleteProductGrant(ctx context.Context, userKeyHash, orderID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pending := b.pendingByUser[userKeyHash]
	var target *entitlement.PendingOrder
	next := pending[:0]
	for i := range pending {
		if pending[i].OrderID == orderID {
			order := pending[i]
			target = &order
			continue
		}
		next = append(next, pending[i])
	}
	b.pendingByUser[userKeyHash] = next
	if target == nil {
		return false, nil
	}

	settled := b.settledByUser[userKeyHash]
	for _, order := range settled {
		if order.OrderID == orderID {
			return true, nil
		}
	}
	b.settledByUser[userKeyHash] = append(settled, entitlement.SettledOrder{
		OrderID:   target.OrderID,
		Sku:       target.Sku,
		Status:    entitlement.OrderCompleted,
		UpdatedAt: b.now(),
	})
	return true, nil
}

func (b *StubBackend) GetCompletedOrRefundedOrders(ctx context.Context, userKeyHash string) ([]entitlement.SettledOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	settled := b.settledByUser[userKeyHash]
	out := make([]entitlement.SettledOrder, len(settled))
	copy(out, settled)
	return out, nil
}

func (b *StubBackend) RevokePurchaseEntitlement(ctx context.Context, userKeyHash string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	record := b.entitlementByUser[userKeyHash]
	record.PremiumUntil = nil
	record.LastOrderID = ""
	record.LastSku = ""
	record.UpdatedAt = b.now()
	b.entitlementByUser[userKeyHash] = record
	return nil
}

func (b *StubBackend) GetPurchaseEntitlement(ctx context.Context, userKeyHash string) (entitlement.PurchaseEntitlementRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	record, ok := b.entitlementByUser[userKeyHash]
	if !ok {
		return entitlement.PurchaseEntitlementRecord{UpdatedAt: b.now()}, nil
	}
	return record, nil
}

// SetEntitlementRecord overwrites the stored entitlement record directly.
// Test hook for shaping records the public surface cannot produce.
func (b *StubBackend) SetEntitlementRecord(userKeyHash string, record entitlement.PurchaseEntitlementRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entitlementByUser[userKeyHash] = record
}

// MarkOrderRefunded flips a settled order to REFUNDED. Test and QA hook for
// exercising the refund-revocation path.
func (b *StubBackend) MarkOrderRefunded(userKeyHash, orderID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	settled := b.settledByUser[userKeyHash]
	for i := range settled {
		if settled[i].OrderID == orderID {
			settled[i].Status = entitlement.OrderRefunded
			settled[i].UpdatedAt = b.now()
		}
	}
}
