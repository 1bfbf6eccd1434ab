package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routineLoopAPI/internal/types/appstate"
	"routineLoopAPI/internal/types/badge"
	"routineLoopAPI/internal/types/checkin"
	"routineLoopAPI/internal/types/entitlement"
	"routineLoopAPI/internal/types/routine"
)

func sampleState(t *testing.T) *appstate.AppState {
	t.Helper()
	premiumUntil := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	state := appstate.NewInitial()
	state.OnboardingCompleted = true
	state.Routines = []routine.Routine{{
		ID:         "routine_1",
		Title:      "Morning stretch",
		DaysOfWeek: []routine.Weekday{routine.Monday, routine.Wednesday},
		GoalPerDay: 1,
		CreatedAt:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}}
	state.Checkins = []checkin.Checkin{{
		ID:        "checkin_1",
		RoutineID: "routine_1",
		Date:      "2025-06-02",
		Status:    checkin.StatusCompleted,
		Note:      "felt good",
		CreatedAt: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
	}}
	state.Badges = []badge.Badge{{
		BadgeType: badge.TypeFirstCheckin,
		EarnedAt:  time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
	}}
	state.Entitlement = entitlement.Entitlement{
		PremiumUntil:   &premiumUntil,
		TrialUsedLocal: true,
		LastSku:        "trial",
	}
	return state
}

func TestFileDriverRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "appstate.json")
	driver := NewFileDriver(path)
	ctx := context.Background()

	state := sampleState(t)
	require.NoError(t, driver.Save(ctx, state))

	loaded, err := driver.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
}

func TestFileDriverAbsentFileIsInitialState(t *testing.T) {
	driver := NewFileDriver(filepath.Join(t.TempDir(), "missing.json"))

	loaded, err := driver.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, appstate.NewInitial(), loaded)
}

func TestFileDriverCorruptPayloadIsInitialState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appstate.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	driver := NewFileDriver(path)

	loaded, err := driver.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, appstate.NewInitial(), loaded)
}

func TestFileDriverSchemaVersionMismatchReinitializes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appstate.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"schemaVersion": 99, "onboardingCompleted": true}`), 0o644))
	driver := NewFileDriver(path)

	loaded, err := driver.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, appstate.NewInitial(), loaded, "Unknown schema version must not leak stale fields")
}

func TestFileDriverClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appstate.json")
	driver := NewFileDriver(path)
	ctx := context.Background()

	require.NoError(t, driver.Save(ctx, sampleState(t)))
	require.NoError(t, driver.Clear(ctx))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Clearing an already-absent file is fine.
	assert.NoError(t, driver.Clear(ctx))
}

func TestMemoryDriverRoundTrip(t *testing.T) {
	driver := NewMemoryDriver()
	ctx := context.Background()

	loaded, err := driver.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, appstate.NewInitial(), loaded)

	state := sampleState(t)
	require.NoError(t, driver.Save(ctx, state))

	loaded, err = driver.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, state, loaded)

	require.NoError(t, driver.Clear(ctx))
	loaded, err = driver.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, appstate.NewInitial(), loaded)
}

func TestDecodeStateNormalizesNilSlices(t *testing.T) {
	loaded := decodeState([]byte(`{"schemaVersion": 1}`))
	assert.NotNil(t, loaded.Routines)
	assert.NotNil(t, loaded.Checkins)
	assert.NotNil(t, loaded.Badges)
}
