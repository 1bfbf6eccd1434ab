package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"routineLoopAPI/internal/types/entitlement"
)

// HTTPBridge talks to a platform-side IAP endpoint. Platform payloads are
// loosely shaped (bare arrays vs {"orders": [...]} wrappers, orderId/orderID/
// order_id field variants), so every response goes through the normalizers
// below before reaching the rest of the system.
type HTTPBridge struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPBridge(baseURL, token string) *HTTPBridge {
	return &HTTPBridge{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (b *HTTPBridge) doJSON(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode bridge request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build bridge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bridge request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read bridge response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("bridge returned status %d", resp.StatusCode)
	}
	return raw, nil
}

// ── Response-shape normalization ──

// looseOrder accepts every known field-name variant the platform emits.
type looseOrder struct {
	OrderID1  string `json:"orderId"`
	OrderID2  string `json:"orderID"`
	OrderID3  string `json:"order_id"`
	Sku       string `json:"sku"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func (o looseOrder) orderID() string {
	if o.OrderID1 != "" {
		return o.OrderID1
	}
	if o.OrderID2 != "" {
		return o.OrderID2
	}
	return o.OrderID3
}

func parseBridgeTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

// unwrapOrders accepts a bare JSON array or an {"orders": [...]} wrapper.
func unwrapOrders(raw []byte) ([]looseOrder, error) {
	var direct []looseOrder
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct, nil
	}
	var wrapped struct {
		Orders []looseOrder `json:"orders"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("unrecognized bridge order payload: %w", err)
	}
	return wrapped.Orders, nil
}

func toPendingOrders(loose []looseOrder) []entitlement.PendingOrder {
	orders := make([]entitlement.PendingOrder, 0, len(loose))
	for _, item := range loose {
		id := item.orderID()
		if id == "" {
			continue
		}
		orders = append(orders, entitlement.PendingOrder{
			OrderID:   id,
			Sku:       item.Sku,
			CreatedAt: parseBridgeTime(item.CreatedAt),
		})
	}
	return orders
}

func toSettledOrders(loose []looseOrder) []entitlement.SettledOrder {
	orders := make([]entitlement.SettledOrder, 0, len(loose))
	for _, item := range loose {
		id := item.orderID()
		if id == "" {
			continue
		}
		orders = append(orders, entitlement.SettledOrder{
			OrderID:   id,
			Sku:       item.Sku,
			Status:    entitlement.OrderStatus(item.Status),
			UpdatedAt: parseBridgeTime(item.UpdatedAt),
		})
	}
	return orders
}

// ── Contract implementation ──

func (b *HTTPBridge) GetProductItemList(ctx context.Context) ([]entitlement.ProductItem, error) {
	raw, err := b.doJSON(ctx, http.MethodGet, "/iap/products", nil)
	if err != nil {
		return nil, err
	}
	var direct []entitlement.ProductItem
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct, nil
	}
	var wrapped struct {
		Products []entitlement.ProductItem `json:"products"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("unrecognized bridge product payload: %w", err)
	}
	return wrapped.Products, nil
}

// CreateOneTimePurchaseOrder asks the platform to open its purchase flow and
// waits for the resulting order, bounded by CreateOrderTimeout. The grant
// callback is invoked before the order is returned, mirroring the platform's
// mid-flow grant step.
func (b *HTTPBridge) CreateOneTimePurchaseOrder(ctx context.Context, sku string, grant GrantFunc) (*entitlement.PendingOrder, error) {
	ctx, cancel := context.WithTimeout(ctx, CreateOrderTimeout)
	defer cancel()

	raw, err := b.doJSON(ctx, http.MethodPost, "/iap/orders", map[string]string{"sku": sku})
	if err != nil {
		if ctx.Err() != nil {
			// Deadline or abandonment resolves to "no order".
			return nil, nil
		}
		return nil, err
	}

	var loose looseOrder
	if err := json.Unmarshal(raw, &loose); err != nil {
		return nil, fmt.Errorf("unrecognized bridge order payload: %w", err)
	}
	orderID := loose.orderID()
	if orderID == "" {
		return nil, nil
	}

	granted, err := grant(ctx, orderID)
	if err != nil || !granted {
		return nil, err
	}

	createdAt := parseBridgeTime(loose.CreatedAt)
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &entitlement.PendingOrder{OrderID: orderID, Sku: sku, CreatedAt: createdAt}, nil
}

func (b *HTTPBridge) GetPendingOrders(ctx context.Context) ([]entitlement.PendingOrder, error) {
	raw, err := b.doJSON(ctx, http.MethodGet, "/iap/orders/pending", nil)
	if err != nil {
		return nil, err
	}
	loose, err := unwrapOrders(raw)
	if err != nil {
		return nil, err
	}
	return toPendingOrders(loose), nil
}

func (b *HTTPBridge) CompleteProductGrant(ctx context.Context, orderID string) error {
	_, err := b.doJSON(ctx, http.MethodPost, "/iap/orders/complete", map[string]string{"orderId": orderID})
	return err
}

func (b *HTTPBridge) GetCompletedOrRefundedOrders(ctx context.Context) ([]entitlement.SettledOrder, error) {
	raw, err := b.doJSON(ctx, http.MethodGet, "/iap/orders/history", nil)
	if err != nil {
		return nil, err
	}
	loose, err := unwrapOrders(raw)
	if err != nil {
		return nil, err
	}
	return toSettledOrders(loose), nil
}

func (b *HTTPBridge) GetUserKeyHash(ctx context.Context) (string, error) {
	raw, err := b.doJSON(ctx, http.MethodGet, "/user/key-hash", nil)
	if err != nil {
		return "", err
	}
	var payload struct {
		UserKeyHash1 string `json:"userKeyHash"`
		UserKeyHash2 string `json:"user_key_hash"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("unrecognized bridge identity payload: %w", err)
	}
	if payload.UserKeyHash1 != "" {
		return payload.UserKeyHash1, nil
	}
	return payload.UserKeyHash2, nil
}
