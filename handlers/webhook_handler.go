package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"routineLoopAPI/internal/backend"
	"routineLoopAPI/internal/types/entitlement"
	"routineLoopAPI/services"
)

// WebhookHandler receives purchase lifecycle notices pushed by the payment
// backend (order completed, order refunded). A refund notice triggers a full
// restore pass so the revocation takes effect without waiting for the next
// startup reconcile.
type WebhookHandler struct {
	backend            backend.Backend
	entitlementService *services.EntitlementService
}

func NewWebhookHandler(be backend.Backend, entitlementService *services.EntitlementService) *WebhookHandler {
	return &WebhookHandler{
		backend:            be,
		entitlementService: entitlementService,
	}
}

type purchaseWebhookEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type orderEventData struct {
	UserKeyHash string     `json:"userKeyHash"`
	OrderID     string     `json:"orderId"`
	Sku         string     `json:"sku"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

func (h *WebhookHandler) HandlePurchaseWebhook(w http.ResponseWriter, r *http.Request) {
	const MaxBodyBytes = int64(65536)
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("Error reading webhook body: %v", err)
		http.Error(w, "Error reading body", http.StatusBadRequest)
		return
	}

	if !verifyWebhookSignature(r, body) {
		log.Println("Invalid webhook signature")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var event purchaseWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("Error parsing webhook: %v", err)
		http.Error(w, "Error parsing webhook", http.StatusBadRequest)
		return
	}

	log.Printf("Received webhook event: %s", event.Type)

	ctx := r.Context()
	switch event.Type {
	case "order.completed":
		if err := h.handleOrderSettled(ctx, event.Data, entitlement.OrderCompleted); err != nil {
			log.Printf("Error handling order.completed: %v", err)
			http.Error(w, "Error processing webhook", http.StatusInternalServerError)
			return
		}

	case "order.refunded":
		if err := h.handleOrderSettled(ctx, event.Data, entitlement.OrderRefunded); err != nil {
			log.Printf("Error handling order.refunded: %v", err)
			http.Error(w, "Error processing webhook", http.StatusInternalServerError)
			return
		}
		// Refunds revoke entitlement; run the reconcile now.
		h.entitlementService.RestorePurchases(ctx)

	default:
		log.Printf("Unhandled webhook event type: %s", event.Type)
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"success": true}`))
}

func (h *WebhookHandler) handleOrderSettled(ctx context.Context, data json.RawMessage, status entitlement.OrderStatus) error {
	var order orderEventData
	if err := json.Unmarshal(data, &order); err != nil {
		return fmt.Errorf("failed to unmarshal order data: %w", err)
	}
	if order.UserKeyHash == "" || order.OrderID == "" {
		return fmt.Errorf("order event missing userKeyHash or orderId")
	}

	updatedAt := time.Now()
	if order.UpdatedAt != nil {
		updatedAt = *order.UpdatedAt
	}

	settled := entitlement.SettledOrder{
		OrderID:   order.OrderID,
		Sku:       order.Sku,
		Status:    status,
		UpdatedAt: updatedAt,
	}
	if err := h.backend.RegisterCompletedOrRefundedOrder(ctx, order.UserKeyHash, settled); err != nil {
		return fmt.Errorf("failed to register settled order: %w", err)
	}

	log.Printf("Recorded %s order %s for user %s", status, order.OrderID, order.UserKeyHash)
	return nil
}

func verifyWebhookSignature(r *http.Request, body []byte) bool {
	webhookSecret := os.Getenv("WEBHOOK_SECRET")
	if webhookSecret == "" {
		log.Println("WEBHOOK_SECRET not set, skipping signature verification")
		return true // In development, you might want to skip verification
	}

	timestamp := r.Header.Get("x-webhook-timestamp")
	signature := r.Header.Get("x-webhook-signature")
	if timestamp == "" || signature == "" {
		log.Println("Missing webhook signature headers")
		return false
	}

	signedContent := fmt.Sprintf("%s.%s", timestamp, string(body))

	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(signedContent))
	expectedSignature := hex.EncodeToString(mac.Sum(nil))

	// Compare signatures (v1 format)
	providedSignature := ""
	if len(signature) > 3 && signature[:3] == "v1," {
		providedSignature = signature[3:]
	}

	return hmac.Equal([]byte(expectedSignature), []byte(providedSignature))
}
