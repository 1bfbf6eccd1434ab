package entitlement

import "time"

const (
	SkuTrial = "trial"

	// Free-tier policy constants.
	FreeRoutineLimit         = 3
	StreakShieldMonthlyLimit = 2
)

// StreakShieldEntry is a consumed forgiveness token for one missed target
// date of one routine. At most one per (routineId, date).
type StreakShieldEntry struct {
	RoutineID string    `json:"routineId"`
	Date      string    `json:"date"`
	UsedAt    time.Time `json:"usedAt"`
}

// Entitlement is the single local premium-status record. It is a cache of the
// backend's authoritative entitlement and must periodically re-sync.
type Entitlement struct {
	PremiumUntil            *time.Time          `json:"premiumUntil,omitempty"`
	TrialUsedLocal          bool                `json:"trialUsedLocal,omitempty"`
	TrialExpiredBannerShown bool                `json:"trialExpiredBannerShown,omitempty"`
	RefundNoticeShown       bool                `json:"refundNoticeShown,omitempty"`
	LastRefundedOrderID     string              `json:"lastRefundedOrderId,omitempty"`
	LastRefundedAt          *time.Time          `json:"lastRefundedAt,omitempty"`
	LastKnownUserKeyHash    string              `json:"lastKnownUserKeyHash,omitempty"`
	LastOrderID             string              `json:"lastOrderId,omitempty"`
	LastSku                 string              `json:"lastSku,omitempty"`
	StreakShields           []StreakShieldEntry `json:"streakShields,omitempty"`
}

// PremiumActiveAt reports whether premium is active at the given instant:
// the expiry must exist and lie strictly in the future.
func (e *Entitlement) PremiumActiveAt(now time.Time) bool {
	return e.PremiumUntil != nil && e.PremiumUntil.After(now)
}

// ── Backend record shapes ──

type TrialGateRecord struct {
	TrialUsed      bool       `json:"trialUsed"`
	TrialStartedAt *time.Time `json:"trialStartedAt,omitempty"`
	TrialExpiresAt *time.Time `json:"trialExpiresAt,omitempty"`
}

type PurchaseEntitlementRecord struct {
	PremiumUntil *time.Time `json:"premiumUntil,omitempty"`
	LastOrderID  string     `json:"lastOrderId,omitempty"`
	LastSku      string     `json:"lastSku,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type ProductItem struct {
	Sku        string `json:"sku"`
	Title      string `json:"title"`
	PriceLabel string `json:"priceLabel"`
}

type PendingOrder struct {
	OrderID   string    `json:"orderId"`
	Sku       string    `json:"sku"`
	CreatedAt time.Time `json:"createdAt"`
}

type OrderStatus string

const (
	OrderCompleted OrderStatus = "COMPLETED"
	OrderRefunded  OrderStatus = "REFUNDED"
)

type SettledOrder struct {
	OrderID   string      `json:"orderId"`
	Sku       string      `json:"sku"`
	Status    OrderStatus `json:"status"`
	UpdatedAt time.Time   `json:"updatedAt"`
}
