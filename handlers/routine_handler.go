package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"routineLoopAPI/internal/kst"
	"routineLoopAPI/internal/progress"
	"routineLoopAPI/internal/types/checkin"
	"routineLoopAPI/internal/types/routine"
	"routineLoopAPI/services"

	"github.com/gorilla/mux"
)

type RoutineHandler struct {
	appStateService *services.AppStateService
}

func NewRoutineHandler(appStateService *services.AppStateService) *RoutineHandler {
	return &RoutineHandler{
		appStateService: appStateService,
	}
}

func (h *RoutineHandler) GetAppState(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.appStateService.State())
}

func (h *RoutineHandler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.appStateService.CompleteOnboarding(ctx)
	respondWithJSON(w, http.StatusOK, map[string]bool{"onboardingCompleted": true})
}

func (h *RoutineHandler) CreateRoutine(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req routine.CreateRoutineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Title == "" {
		respondWithError(w, http.StatusBadRequest, "Routine title is required")
		return
	}
	for _, day := range req.DaysOfWeek {
		if !routine.IsValidWeekday(day) {
			respondWithError(w, http.StatusBadRequest, "Invalid weekday: "+string(day))
			return
		}
	}

	created, result := h.appStateService.CreateRoutine(ctx, &req)
	if !result.OK {
		respondWithJSON(w, http.StatusForbidden, map[string]string{"errorCode": result.Reason})
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *RoutineHandler) UpdateRoutine(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	routineID := mux.Vars(r)["routineId"]

	var req routine.UpdateRoutineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	for _, day := range req.DaysOfWeek {
		if !routine.IsValidWeekday(day) {
			respondWithError(w, http.StatusBadRequest, "Invalid weekday: "+string(day))
			return
		}
	}

	if !h.appStateService.UpdateRoutine(ctx, routineID, &req) {
		respondWithError(w, http.StatusNotFound, "Routine not found")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "routine updated"})
}

func (h *RoutineHandler) DeleteRoutine(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	routineID := mux.Vars(r)["routineId"]
	h.appStateService.DeleteRoutine(ctx, routineID)

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "routine deleted"})
}

func (h *RoutineHandler) RestartRoutine(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	routineID := mux.Vars(r)["routineId"]
	if !h.appStateService.RestartRoutine(ctx, routineID) {
		respondWithError(w, http.StatusNotFound, "Routine not found")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "routine restarted"})
}

func (h *RoutineHandler) CheckinRoutine(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	routineID := mux.Vars(r)["routineId"]

	var req checkin.CheckinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Status != checkin.StatusCompleted && req.Status != checkin.StatusSkipped {
		respondWithError(w, http.StatusBadRequest, "Status must be COMPLETED or SKIPPED")
		return
	}

	newBadges, found := h.appStateService.CheckinRoutine(ctx, routineID, req.Status, req.Note)
	if !found {
		respondWithError(w, http.StatusNotFound, "Routine not found")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"newBadges": newBadges})
}

func (h *RoutineHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	routineID := mux.Vars(r)["routineId"]

	var req checkin.AddNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !h.appStateService.AddNoteToCheckin(ctx, routineID, req.Note) {
		respondWithError(w, http.StatusNotFound, "No check-in for this routine today")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "note saved"})
}

func (h *RoutineHandler) ApplyStreakShield(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	routineID := mux.Vars(r)["routineId"]

	var req struct {
		Date string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if _, err := kst.ParseStamp(req.Date); err != nil {
		respondWithError(w, http.StatusBadRequest, "Date must be YYYY-MM-DD")
		return
	}

	if !h.appStateService.ApplyStreakShield(ctx, routineID, req.Date) {
		respondWithError(w, http.StatusConflict, "No streak shield available for this date")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int{
		"shieldsRemaining": h.appStateService.StreakShieldsRemaining(),
	})
}

func (h *RoutineHandler) GetStreakShieldsRemaining(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]int{
		"shieldsRemaining": h.appStateService.StreakShieldsRemaining(),
	})
}

// GetTodayRoutines lists the routines scheduled for today with their current
// streaks and today's check-in status.
func (h *RoutineHandler) GetTodayRoutines(w http.ResponseWriter, r *http.Request) {
	state := h.appStateService.State()
	today := kst.DateStamp(time.Now())

	type todayRoutine struct {
		Routine       routine.Routine `json:"routine"`
		CurrentStreak int             `json:"currentStreak"`
		TodayStatus   *checkin.Status `json:"todayStatus,omitempty"`
	}

	targets := h.appStateService.TodayTargetRoutines()
	items := make([]todayRoutine, 0, len(targets))
	for i := range targets {
		r := &targets[i]
		item := todayRoutine{
			Routine:       *r,
			CurrentStreak: progress.CurrentStreak(r, state.RoutineCheckins(r.ID), today, state.ShieldedDates(r.ID)),
		}
		for _, c := range state.Checkins {
			if c.RoutineID == r.ID && c.Date == today {
				status := c.Status
				item.TodayStatus = &status
				break
			}
		}
		items = append(items, item)
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"date": today, "routines": items})
}

func (h *RoutineHandler) ResetAllData(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.appStateService.ResetAllData(ctx); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Unable to reset data")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "all data reset"})
}
