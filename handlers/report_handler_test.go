package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routineLoopAPI/internal/progress"
	"routineLoopAPI/internal/types/checkin"
)

func TestWeeklyReportEndpoint(t *testing.T) {
	api := newTestAPI(t)
	created := api.createRoutine(t, "Stretch")
	api.do(t, "POST", "/api/v1/routines/"+created.ID+"/checkin", map[string]any{"status": "COMPLETED"})

	rr := api.do(t, "GET", "/api/v1/reports/weekly", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	var summary progress.WeeklyReportSummary
	decodeBody(t, rr, &summary)
	assert.NotEmpty(t, summary.WeekLabel)
	require.Len(t, summary.Routines, 1)
	assert.Equal(t, created.ID, summary.Routines[0].RoutineID)
	assert.Equal(t, 1, summary.Routines[0].Completed)
}

func TestHeatmapEndpointClampsDays(t *testing.T) {
	api := newTestAPI(t)

	var body struct {
		Days  int                    `json:"days"`
		Cells []progress.HeatmapCell `json:"cells"`
	}

	rr := api.do(t, "GET", "/api/v1/reports/heatmap", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	decodeBody(t, rr, &body)
	assert.Equal(t, 84, body.Days)
	assert.Len(t, body.Cells, 84)

	rr = api.do(t, "GET", "/api/v1/reports/heatmap?days=10000", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	decodeBody(t, rr, &body)
	assert.Equal(t, 365, body.Days)

	rr = api.do(t, "GET", "/api/v1/reports/heatmap?days=banana", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	decodeBody(t, rr, &body)
	assert.Equal(t, 84, body.Days)
}

func TestWeeklyTrendEndpoint(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, "GET", "/api/v1/reports/trend?weeks=4", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Weeks  int                       `json:"weeks"`
		Points []progress.WeekTrendPoint `json:"points"`
	}
	decodeBody(t, rr, &body)
	assert.Equal(t, 4, body.Weeks)
	assert.Len(t, body.Points, 4)
}

func TestRecentCheckinsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	created := api.createRoutine(t, "Stretch")
	api.do(t, "POST", "/api/v1/routines/"+created.ID+"/checkin", map[string]any{
		"status": "COMPLETED",
		"note":   "solid",
	})

	rr := api.do(t, "GET", "/api/v1/routines/"+created.ID+"/checkins", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Checkins []checkin.Checkin `json:"checkins"`
	}
	decodeBody(t, rr, &body)
	require.Len(t, body.Checkins, 1)
	assert.Equal(t, "solid", body.Checkins[0].Note)

	missing := api.do(t, "GET", "/api/v1/routines/routine_missing/checkins", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestRecentNotesEndpoint(t *testing.T) {
	api := newTestAPI(t)
	created := api.createRoutine(t, "Stretch")
	api.do(t, "POST", "/api/v1/routines/"+created.ID+"/checkin", map[string]any{
		"status": "COMPLETED",
		"note":   "wrote this down",
	})

	rr := api.do(t, "GET", "/api/v1/notes/recent", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Notes []progress.NoteEntry `json:"notes"`
	}
	decodeBody(t, rr, &body)
	require.Len(t, body.Notes, 1)
	assert.Equal(t, "Stretch", body.Notes[0].RoutineTitle)
	assert.Equal(t, "wrote this down", body.Notes[0].Note)
}
