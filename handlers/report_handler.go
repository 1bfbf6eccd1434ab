package handlers

import (
	"net/http"
	"strconv"
	"time"

	"routineLoopAPI/internal/progress"
	"routineLoopAPI/services"

	"github.com/gorilla/mux"
)

type ReportHandler struct {
	appStateService *services.AppStateService
}

func NewReportHandler(appStateService *services.AppStateService) *ReportHandler {
	return &ReportHandler{
		appStateService: appStateService,
	}
}

// queryInt reads an integer query parameter, clamped to [min, max], falling
// back to def when absent or malformed.
func queryInt(r *http.Request, name string, def, min, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

// GetWeeklyReport builds the weekly summary. offset=0 is the current week,
// negative offsets walk back.
func (h *ReportHandler) GetWeeklyReport(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0, -52, 0)
	summary := progress.BuildWeeklyReportSummary(h.appStateService.State(), offset, time.Now())
	respondWithJSON(w, http.StatusOK, summary)
}

func (h *ReportHandler) GetHeatmap(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 84, 7, 365)
	cells := progress.BuildHeatmap(h.appStateService.State(), days, time.Now())
	respondWithJSON(w, http.StatusOK, map[string]any{"days": days, "cells": cells})
}

func (h *ReportHandler) GetWeeklyTrend(w http.ResponseWriter, r *http.Request) {
	weeks := queryInt(r, "weeks", 8, 1, 52)
	points := progress.BuildWeeklyTrend(h.appStateService.State(), weeks, time.Now())
	respondWithJSON(w, http.StatusOK, map[string]any{"weeks": weeks, "points": points})
}

func (h *ReportHandler) GetRecentCheckins(w http.ResponseWriter, r *http.Request) {
	routineID := mux.Vars(r)["routineId"]
	limit := queryInt(r, "limit", 30, 1, 200)

	state := h.appStateService.State()
	if state.RoutineByID(routineID) == nil {
		respondWithError(w, http.StatusNotFound, "Routine not found")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"checkins": progress.RecentCheckins(state, routineID, limit),
	})
}

func (h *ReportHandler) GetRecentNotes(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20, 1, 100)
	respondWithJSON(w, http.StatusOK, map[string]any{
		"notes": progress.RecentNotes(h.appStateService.State(), limit),
	})
}
