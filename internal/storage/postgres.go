package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"routineLoopAPI/internal/types/appstate"
)

// PostgresDriver stores the serialized snapshot as a single jsonb row keyed
// by a state key, upserted on every save.
type PostgresDriver struct {
	db       *pgxpool.Pool
	stateKey string
}

func NewPostgresDriver(db *pgxpool.Pool, stateKey string) *PostgresDriver {
	return &PostgresDriver{db: db, stateKey: stateKey}
}

// EnsureSchema creates the snapshot table if it does not exist.
func (d *PostgresDriver) EnsureSchema(ctx context.Context) error {
	_, err := d.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS app_state_snapshots (
			state_key TEXT PRIMARY KEY,
			payload JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure app_state_snapshots table: %w", err)
	}
	return nil
}

func (d *PostgresDriver) Load(ctx context.Context) (*appstate.AppState, error) {
	var raw []byte
	query := `SELECT payload FROM app_state_snapshots WHERE state_key = $1`
	err := d.db.QueryRow(ctx, query, d.stateKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decodeState(nil), nil
		}
		return nil, fmt.Errorf("failed to load app state: %w", err)
	}
	return decodeState(raw), nil
}

func (d *PostgresDriver) Save(ctx context.Context, state *appstate.AppState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to serialize app state: %w", err)
	}

	query := `
		INSERT INTO app_state_snapshots (state_key, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (state_key)
		DO UPDATE SET payload = $2, updated_at = NOW()
	`
	if _, err := d.db.Exec(ctx, query, d.stateKey, raw); err != nil {
		return fmt.Errorf("failed to save app state: %w", err)
	}
	return nil
}

func (d *PostgresDriver) Clear(ctx context.Context) error {
	query := `DELETE FROM app_state_snapshots WHERE state_key = $1`
	if _, err := d.db.Exec(ctx, query, d.stateKey); err != nil {
		return fmt.Errorf("failed to clear app state: %w", err)
	}
	return nil
}
