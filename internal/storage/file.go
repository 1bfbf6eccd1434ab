package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"routineLoopAPI/internal/types/appstate"
)

// FileDriver stores the snapshot as a JSON file on disk.
type FileDriver struct {
	path string
}

func NewFileDriver(path string) *FileDriver {
	return &FileDriver{path: path}
}

func (d *FileDriver) Load(ctx context.Context) (*appstate.AppState, error) {
	raw, err := os.ReadFile(d.path)
	if err != nil {
		// Absent file means first run.
		return decodeState(nil), nil
	}
	return decodeState(raw), nil
}

func (d *FileDriver) Save(ctx context.Context, state *appstate.AppState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to serialize app state: %w", err)
	}
	if dir := filepath.Dir(d.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write app state: %w", err)
	}
	if err := os.Rename(tmp, d.path); err != nil {
		return fmt.Errorf("failed to replace app state: %w", err)
	}
	return nil
}

func (d *FileDriver) Clear(ctx context.Context) error {
	if err := os.Remove(d.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear app state: %w", err)
	}
	return nil
}
