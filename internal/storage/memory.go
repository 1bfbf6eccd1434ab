package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"routineLoopAPI/internal/types/appstate"
)

// MemoryDriver keeps the serialized snapshot in memory. Used in tests and as
// a last-resort fallback when no persistent driver is configured.
type MemoryDriver struct {
	mu  sync.Mutex
	raw []byte
}

func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{}
}

func (d *MemoryDriver) Load(ctx context.Context) (*appstate.AppState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return decodeState(d.raw), nil
}

func (d *MemoryDriver) Save(ctx context.Context, state *appstate.AppState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to serialize app state: %w", err)
	}
	d.mu.Lock()
	d.raw = raw
	d.mu.Unlock()
	return nil
}

func (d *MemoryDriver) Clear(ctx context.Context) error {
	d.mu.Lock()
	d.raw = nil
	d.mu.Unlock()
	return nil
}
