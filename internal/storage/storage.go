package storage

import (
	"context"
	"encoding/json"

	"routineLoopAPI/internal/types/appstate"
	"routineLoopAPI/internal/types/badge"
	"routineLoopAPI/internal/types/checkin"
	"routineLoopAPI/internal/types/routine"
)

// Driver persists the serialized AppState snapshot. Load must return a fresh
// initial state, never fail, when the stored payload is absent, corrupt, or
// carries a different schema version.
type Driver interface {
	Load(ctx context.Context) (*appstate.AppState, error)
	Save(ctx context.Context, state *appstate.AppState) error
	Clear(ctx context.Context) error
}

// decodeState deserializes a stored payload, treating corruption and schema
// mismatches as absent.
func decodeState(raw []byte) *appstate.AppState {
	if len(raw) == 0 {
		return appstate.NewInitial()
	}
	var state appstate.AppState
	if err := json.Unmarshal(raw, &state); err != nil {
		return appstate.NewInitial()
	}
	if state.SchemaVersion != appstate.SchemaVersion {
		return appstate.NewInitial()
	}
	if state.Routines == nil {
		state.Routines = []routine.Routine{}
	}
	if state.Checkins == nil {
		state.Checkins = []checkin.Checkin{}
	}
	if state.Badges == nil {
		state.Badges = []badge.Badge{}
	}
	return &state
}
