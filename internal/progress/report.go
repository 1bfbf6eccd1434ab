package progress

import (
	"fmt"
	"sort"
	"time"

	"routineLoopAPI/internal/kst"
	"routineLoopAPI/internal/types/appstate"
	"routineLoopAPI/internal/types/checkin"
	"routineLoopAPI/internal/types/routine"
)

const NoDataWeekdayLabel = "no data"

var weekdayLabels = map[routine.Weekday]string{
	routine.Monday:    "Monday",
	routine.Tuesday:   "Tuesday",
	routine.Wednesday: "Wednesday",
	routine.Thursday:  "Thursday",
	routine.Friday:    "Friday",
	routine.Saturday:  "Saturday",
	routine.Sunday:    "Sunday",
}

type RoutineWeekSummary struct {
	RoutineID      string `json:"routineId"`
	Title          string `json:"title"`
	Completed      int    `json:"completed"`
	Target         int    `json:"target"`
	CompletionRate int    `json:"completionRate"`
	Streak         int    `json:"streak"`
}

type WeeklyReportSummary struct {
	WeekLabel              string               `json:"weekLabel"`
	CompletionRate         int                  `json:"completionRate"`
	PreviousCompletionRate int                  `json:"previousCompletionRate"`
	DeltaRate              int                  `json:"deltaRate"`
	BestWeekdayLabel       string               `json:"bestWeekdayLabel"`
	Comment                string               `json:"comment"`
	Routines               []RoutineWeekSummary `json:"routines"`
}

func roundRate(completed, target int) int {
	if target == 0 {
		return 0
	}
	return int(float64(completed)/float64(target)*100 + 0.5)
}

func routineWeekSummary(r *routine.Routine, state *appstate.AppState, weekDays [7]string, now time.Time) RoutineWeekSummary {
	routineCheckins := state.RoutineCheckins(r.ID)
	byDate := statusByDate(routineCheckins)
	startStamp := kst.DateStamp(r.EffectiveStart())

	target := 0
	completed := 0
	for _, day := range weekDays {
		if day < startStamp || !r.HasTargetWeekday(kst.WeekdayOf(day)) {
			continue
		}
		target++
		if byDate[day] == checkin.StatusCompleted {
			completed++
		}
	}

	return RoutineWeekSummary{
		RoutineID:      r.ID,
		Title:          r.Title,
		Completed:      completed,
		Target:         target,
		CompletionRate: roundRate(completed, target),
		Streak:         CurrentStreak(r, routineCheckins, kst.DateStamp(now), state.ShieldedDates(r.ID)),
	}
}

// Overall rate is computed from summed completed/target across routines, not
// from averaging per-routine rates.
func overallCompletionRate(summaries []RoutineWeekSummary) int {
	completed := 0
	target := 0
	for _, s := range summaries {
		completed += s.Completed
		target += s.Target
	}
	return roundRate(completed, target)
}

func bestWeekdayLabel(routines []routine.Routine, checkins []checkin.Checkin, weekDays [7]string) string {
	weekSet := make(map[string]bool, len(weekDays))
	for _, day := range weekDays {
		weekSet[day] = true
	}
	activeIDs := make(map[string]bool, len(routines))
	for _, r := range routines {
		activeIDs[r.ID] = true
	}

	counts := make(map[routine.Weekday]int)
	for _, c := range checkins {
		if !activeIDs[c.RoutineID] || c.Status != checkin.StatusCompleted || !weekSet[c.Date] {
			continue
		}
		counts[kst.WeekdayOf(c.Date)]++
	}

	best := routine.Weekday("")
	max := 0
	for _, day := range routine.Order {
		if counts[day] > max {
			max = counts[day]
			best = day
		}
	}
	if best == "" || max == 0 {
		return NoDataWeekdayLabel
	}
	return weekdayLabels[best]
}

func weeklyComment(rate, deltaRate int) string {
	comment := "It's okay to start over. Next week is waiting."
	if rate >= 80 {
		comment = "Best week yet!"
	} else if rate >= 50 {
		comment = "More than halfway there."
	}
	if deltaRate >= 10 {
		comment = fmt.Sprintf("%s Improved by %d%% over last week.", comment, deltaRate)
	}
	return comment
}

// BuildWeeklyReportSummary aggregates check-ins into per-routine and overall
// completion rates for the week at the given offset (0 = current week).
func BuildWeeklyReportSummary(state *appstate.AppState, weekOffset int, now time.Time) WeeklyReportSummary {
	activeRoutines := state.ActiveRoutines()
	currentWeek := kst.WeekRangeOf(now, weekOffset)
	previousWeek := kst.WeekRangeOf(now, weekOffset-1)

	currentSummaries := make([]RoutineWeekSummary, 0, len(activeRoutines))
	previousSummaries := make([]RoutineWeekSummary, 0, len(activeRoutines))
	for i := range activeRoutines {
		currentSummaries = append(currentSummaries, routineWeekSummary(&activeRoutines[i], state, currentWeek.Days, now))
		previousSummaries = append(previousSummaries, routineWeekSummary(&activeRoutines[i], state, previousWeek.Days, now))
	}

	completionRate := overallCompletionRate(currentSummaries)
	previousCompletionRate := overallCompletionRate(previousSummaries)
	deltaRate := completionRate - previousCompletionRate

	return WeeklyReportSummary{
		WeekLabel:              kst.WeekLabel(now, weekOffset),
		CompletionRate:         completionRate,
		PreviousCompletionRate: previousCompletionRate,
		DeltaRate:              deltaRate,
		BestWeekdayLabel:       bestWeekdayLabel(activeRoutines, state.Checkins, currentWeek.Days),
		Comment:                weeklyComment(completionRate, deltaRate),
		Routines:               currentSummaries,
	}
}

// ── Supplementary projections ──

type HeatmapCell struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
	Level int    `json:"level"`
}

// BuildHeatmap buckets trailing daily completion counts into 5 intensity
// levels (0, 1, 2, 3, >=4).
func BuildHeatmap(state *appstate.AppState, days int, now time.Time) []HeatmapCell {
	today := kst.DateStamp(now)
	countByDate := make(map[string]int)
	for _, c := range state.Checkins {
		if c.Status == checkin.StatusCompleted {
			countByDate[c.Date]++
		}
	}

	cells := make([]HeatmapCell, 0, days)
	for i := days - 1; i >= 0; i-- {
		date := kst.AddDays(today, -i)
		count := countByDate[date]
		level := 0
		switch {
		case count >= 4:
			level = 4
		case count >= 3:
			level = 3
		case count >= 2:
			level = 2
		case count >= 1:
			level = 1
		}
		cells = append(cells, HeatmapCell{Date: date, Count: count, Level: level})
	}
	return cells
}

type WeekTrendPoint struct {
	WeekLabel      string `json:"weekLabel"`
	CompletionRate int    `json:"completionRate"`
}

// BuildWeeklyTrend applies the weekly summary at consecutive offsets ending
// with the current week.
func BuildWeeklyTrend(state *appstate.AppState, weeks int, now time.Time) []WeekTrendPoint {
	points := make([]WeekTrendPoint, 0, weeks)
	for offset := -(weeks - 1); offset <= 0; offset++ {
		report := BuildWeeklyReportSummary(state, offset, now)
		points = append(points, WeekTrendPoint{
			WeekLabel:      report.WeekLabel,
			CompletionRate: report.CompletionRate,
		})
	}
	return points
}

// RecentCheckins returns a routine's check-ins newest first, capped at limit.
func RecentCheckins(state *appstate.AppState, routineID string, limit int) []checkin.Checkin {
	items := state.RoutineCheckins(routineID)
	sort.Slice(items, func(i, j int) bool {
		if items[i].Date == items[j].Date {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].Date > items[j].Date
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

type NoteEntry struct {
	Date         string `json:"date"`
	RoutineTitle string `json:"routineTitle"`
	Note         string `json:"note"`
}

const deletedRoutineTitle = "(deleted routine)"

// RecentNotes returns the latest check-in notes across all routines.
func RecentNotes(state *appstate.AppState, limit int) []NoteEntry {
	titleByID := make(map[string]string, len(state.Routines))
	for _, r := range state.Routines {
		titleByID[r.ID] = r.Title
	}

	noted := make([]checkin.Checkin, 0)
	for _, c := range state.Checkins {
		if c.Note != "" {
			noted = append(noted, c)
		}
	}
	sort.Slice(noted, func(i, j int) bool { return noted[i].Date > noted[j].Date })
	if len(noted) > limit {
		noted = noted[:limit]
	}

	entries := make([]NoteEntry, 0, len(noted))
	for _, c := range noted {
		title, ok := titleByID[c.RoutineID]
		if !ok {
			title = deletedRoutineTitle
		}
		entries = append(entries, NoteEntry{Date: c.Date, RoutineTitle: title, Note: c.Note})
	}
	return entries
}
