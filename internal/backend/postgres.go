package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"routineLoopAPI/internal/types/entitlement"
)

// PostgresBackend is the remote implementation of the entitlement contract.
// Every register/grant operation is an upsert so replays are safe no-ops.
type PostgresBackend struct {
	db *pgxpool.Pool
}

func NewPostgresBackend(db *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{db: db}
}

// EnsureSchema creates the entitlement tables if they do not exist.
func (b *PostgresBackend) EnsureSchema(ctx context.Context) error {
	_, err := b.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS trial_gates (
			user_key_hash TEXT PRIMARY KEY,
			trial_used BOOLEAN NOT NULL DEFAULT FALSE,
			trial_started_at TIMESTAMPTZ,
			trial_expires_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS purchase_entitlements (
			user_key_hash TEXT PRIMARY KEY,
			premium_until TIMESTAMPTZ,
			last_order_id TEXT,
			last_sku TEXT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS pending_orders (
			user_key_hash TEXT NOT NULL,
			order_id TEXT NOT NULL,
			sku TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_key_hash, order_id)
		);
		CREATE TABLE IF NOT EXISTS settled_orders (
			user_key_hash TEXT NOT NULL,
			order_id TEXT NOT NULL,
			sku TEXT NOT NULL,
			status TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_key_hash, order_id)
		);
		CREATE TABLE IF NOT EXISTS product_items (
			sku TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			price_label TEXT NOT NULL,
			display_order INT NOT NULL DEFAULT 0
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure entitlement tables: %w", err)
	}
	return nil
}

func (b *PostgresBackend) GetProductItems(ctx context.Context) ([]entitlement.ProductItem, error) {
	rows, err := b.db.Query(ctx, `SELECT sku, title, price_label FROM product_items ORDER BY display_order ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product items: %w", err)
	}
	defer rows.Close()

	var items []entitlement.ProductItem
	for rows.Next() {
		var item entitlement.ProductItem
		if err := rows.Scan(&item.Sku, &item.Title, &item.PriceLabel); err != nil {
			return nil, fmt.Errorf("failed to scan product item: %w", err)
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		// Unseeded catalog falls back to the defaults.
		items = append(items, DefaultProductItems...)
	}
	return items, nil
}

func (b *PostgresBackend) GetTrialGate(ctx context.Context, userKeyHash string) (entitlement.TrialGateRecord, error) {
	var record entitlement.TrialGateRecord
	query := `SELECT trial_used, trial_started_at, trial_expires_at FROM trial_gates WHERE user_key_hash = $1`
	err := b.db.QueryRow(ctx, query, userKeyHash).Scan(&record.TrialUsed, &record.TrialStartedAt, &record.TrialExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entitlement.TrialGateRecord{}, nil
		}
		return entitlement.TrialGateRecord{}, fmt.Errorf("failed to get trial gate: %w", err)
	}
	return record, nil
}

func (b *PostgresBackend) StartTrial(ctx context.Context, userKeyHash string) (entitlement.TrialGateRecord, error) {
	now := time.Now()
	expiresAt := now.AddDate(0, 0, TrialDays)

	query := `
		INSERT INTO trial_gates (user_key_hash, trial_used, trial_started_at, trial_expires_at)
		VALUES ($1, TRUE, $2, $3)
		ON CONFLICT (user_key_hash)
		DO UPDATE SET trial_used = TRUE
		RETURNING trial_used, trial_started_at, trial_expires_at
	`
	var record entitlement.TrialGateRecord
	err := b.db.QueryRow(ctx, query, userKeyHash, now, expiresAt).Scan(
		&record.TrialUsed, &record.TrialStartedAt, &record.TrialExpiresAt)
	if err != nil {
		return entitlement.TrialGateRecord{}, fmt.Errorf("failed to start trial: %w", err)
	}

	entQuery := `
		INSERT INTO purchase_entitlements (user_key_hash, premium_until, last_order_id, last_sku, updated_at)
		VALUES ($1, $2, NULL, $3, NOW())
		ON CONFLICT (user_key_hash)
		DO UPDATE SET premium_until = $2, last_order_id = NULL, last_sku = $3, updated_at = NOW()
	`
	if _, err := b.db.Exec(ctx, entQuery, userKeyHash, record.TrialExpiresAt, entitlement.SkuTrial); err != nil {
		return entitlement.TrialGateRecord{}, fmt.Errorf("failed to apply trial entitlement: %w", err)
	}
	return record, nil
}

func (b *PostgresBackend) CreateOneTimePurchaseOrder(ctx context.Context, userKeyHash, sku string) (entitlement.PendingOrder, error) {
	order := entitlement.PendingOrder{
		OrderID:   fmt.Sprintf("order_%s", uuid.NewString()),
		Sku:       sku,
		CreatedAt: time.Now(),
	}
	query := `INSERT INTO pending_orders (user_key_hash, order_id, sku, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := b.db.Exec(ctx, query, userKeyHash, order.OrderID, order.Sku, order.CreatedAt); err != nil {
		return entitlement.PendingOrder{}, fmt.Errorf("failed to create purchase order: %w", err)
	}
	return order, nil
}

func (b *PostgresBackend) RegisterPendingOrder(ctx context.Context, userKeyHash string, order entitlement.PendingOrder) error {
	createdAt := order.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	query := `
		INSERT INTO pending_orders (user_key_hash, order_id, sku, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_key_hash, order_id)
		DO UPDATE SET sku = $3
	`
	if _, err := b.db.Exec(ctx, query, userKeyHash, order.OrderID, order.Sku, createdAt); err != nil {
		return fmt.Errorf("failed to register pending order: %w", err)
	}
	return nil
}

func (b *PostgresBackend) RegisterCompletedOrRefundedOrder(ctx context.Context, userKeyHash string, order entitlement.SettledOrder) error {
	updatedAt := order.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	query := `
		INSERT INTO settled_orders (user_key_hash, order_id, sku, status, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_key_hash, order_id)
		DO UPDATE SET sku = $3, status = $4, updated_at = $5
	`
	if _, err := b.db.Exec(ctx, query, userKeyHash, order.OrderID, order.Sku, order.Status, updatedAt); err != nil {
		return fmt.Errorf("failed to register settled order: %w", err)
	}
	return nil
}

func (b *PostgresBackend) GetPendingOrders(ctx context.Context, userKeyHash string) ([]entitlement.PendingOrder, error) {
	rows, err := b.db.Query(ctx,
		`SELECT order_id, sku, created_at FROM pending_orders WHERE user_key_hash = $1 ORDER BY created_at ASC`,
		userKeyHash)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending orders: %w", err)
	}
	defer rows.Close()

	var orders []entitlement.PendingOrder
	for rows.Next() {
		var order entitlement.PendingOrder
		if err := rows.Scan(&order.OrderID, &order.Sku, &order.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (b *PostgresBackend) ProcessProductGrant(ctx context.Context, userKeyHash, orderID, sku string) (bool, error) {
	var orderSku string
	query := `SELECT sku FROM pending_orders WHERE user_key_hash = $1 AND order_id = $2 AND sku = $3`
	err := b.db.QueryRow(ctx, query, userKeyHash, orderID, sku).Scan(&orderSku)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up order for grant: %w", err)
	}

	premiumUntil := time.Now().AddDate(0, 0, PremiumDaysBySku(orderSku))
	entQuery := `
		INSERT INTO purchase_entitlements (user_key_hash, premium_until, last_order_id, last_sku, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_key_hash)
		DO UPDATE SET premium_until = $2, last_order_id = $3, last_sku = $4, updated_at = NOW()
	`
	if _, err := b.db.Exec(ctx, entQuery, userKeyHash, premiumUntil, orderID, orderSku); err != nil {
		return false, fmt.Errorf("failed to apply product grant: %w", err)
	}
	return true, nil
}

func (b *PostgresBackend) CompleteProductGrant(ctx context.Context, userKeyHash, orderID string) (bool, error) {
	var sku string
	query := `DELETE FROM pending_orders WHERE user_key_hash = $1 AND order_id = $2 RETURNING sku`
	err := b.db.QueryRow(ctx, query, userKeyHash, orderID).Scan(&sku)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to complete product grant: %w", err)
	}

	settleQuery := `
		INSERT INTO settled_orders (user_key_hash, order_id, sku, status, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_key_hash, order_id) DO NOTHING
	`
	if _, err := b.db.Exec(ctx, settleQuery, userKeyHash, orderID, sku, entitlement.OrderCompleted); err != nil {
		return false, fmt.Errorf("failed to record settled order: %w", err)
	}
	return true, nil
}

func (b *PostgresBackend) GetCompletedOrRefundedOrders(ctx context.Context, userKeyHash string) ([]entitlement.SettledOrder, error) {
	rows, err := b.db.Query(ctx,
		`SELECT order_id, sku, status, updated_at FROM settled_orders WHERE user_key_hash = $1 ORDER BY updated_at DESC`,
		userKeyHash)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch settled orders: %w", err)
	}
	defer rows.Close()

	var orders []entitlement.SettledOrder
	for rows.Next() {
		var order entitlement.SettledOrder
		if err := rows.Scan(&order.OrderID, &order.Sku, &order.Status, &order.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan settled order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (b *PostgresBackend) RevokePurchaseEntitlement(ctx context.Context, userKeyHash string) error {
	query := `
		INSERT INTO purchase_entitlements (user_key_hash, premium_until, last_order_id, last_sku, updated_at)
		VALUES ($1, NULL, NULL, NULL, NOW())
		ON CONFLICT (user_key_hash)
		DO UPDATE SET premium_until = NULL, last_order_id = NULL, last_sku = NULL, updated_at = NOW()
	`
	if _, err := b.db.Exec(ctx, query, userKeyHash); err != nil {
		return fmt.Errorf("failed to revoke entitlement: %w", err)
	}
	return nil
}

func (b *PostgresBackend) GetPurchaseEntitlement(ctx context.Context, userKeyHash string) (entitlement.PurchaseEntitlementRecord, error) {
	var record entitlement.PurchaseEntitlementRecord
	var lastOrderID, lastSku *string
	query := `SELECT premium_until, last_order_id, last_sku, updated_at FROM purchase_entitlements WHERE user_key_hash = $1`
	err := b.db.QueryRow(ctx, query, userKeyHash).Scan(&record.PremiumUntil, &lastOrderID, &lastSku, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entitlement.PurchaseEntitlementRecord{UpdatedAt: time.Now()}, nil
		}
		return entitlement.PurchaseEntitlementRecord{}, fmt.Errorf("failed to get entitlement: %w", err)
	}
	if lastOrderID != nil {
		record.LastOrderID = *lastOrderID
	}
	if lastSku != nil {
		record.LastSku = *lastSku
	}
	return record, nil
}
