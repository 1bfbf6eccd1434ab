package kst

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routineLoopAPI/internal/types/routine"
)

func TestDateStampUsesKSTCalendarDay(t *testing.T) {
	// 2025-03-09 20:00 UTC is already 2025-03-10 05:00 in KST.
	instant := time.Date(2025, 3, 9, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-10", DateStamp(instant))

	// Midnight KST itself belongs to the new day.
	midnight := time.Date(2025, 3, 9, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-10", DateStamp(midnight))
}

func TestParseStampRoundTrip(t *testing.T) {
	parsed, err := ParseStamp("2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01", DateStamp(parsed))

	_, err = ParseStamp("not-a-date")
	assert.Error(t, err)
}

func TestAddDays(t *testing.T) {
	assert.Equal(t, "2025-03-01", AddDays("2025-02-28", 1))
	assert.Equal(t, "2025-02-28", AddDays("2025-03-01", -1))
	assert.Equal(t, "2024-12-31", AddDays("2025-01-05", -5))
	assert.Equal(t, "2025-01-05", AddDays("2025-01-05", 0))
}

func TestWeekdayOf(t *testing.T) {
	// 2025-06-02 is a Monday.
	assert.Equal(t, routine.Monday, WeekdayOf("2025-06-02"))
	assert.Equal(t, routine.Wednesday, WeekdayOf("2025-06-04"))
	assert.Equal(t, routine.Sunday, WeekdayOf("2025-06-08"))
}

func TestMonthOf(t *testing.T) {
	assert.Equal(t, "2025-06", MonthOf("2025-06-15"))
}

func TestWeekRangeOfIsMondayAnchored(t *testing.T) {
	// Thursday 2025-06-05, midday KST.
	thursday := time.Date(2025, 6, 5, 3, 0, 0, 0, time.UTC)

	week := WeekRangeOf(thursday, 0)
	assert.Equal(t, "2025-06-02", week.Start, "Week should start on Monday")
	assert.Equal(t, "2025-06-08", week.End, "Week should end on Sunday")
	require.Len(t, week.Days, 7)
	assert.Equal(t, routine.Monday, WeekdayOf(week.Days[0]))
	assert.Equal(t, routine.Sunday, WeekdayOf(week.Days[6]))

	// A Monday reference anchors to itself.
	monday := time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-06-02", WeekRangeOf(monday, 0).Start)

	// A Sunday reference still belongs to the same Monday-anchored week.
	sunday := time.Date(2025, 6, 8, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-06-02", WeekRangeOf(sunday, 0).Start)
}

func TestWeekRangeOfOffsets(t *testing.T) {
	thursday := time.Date(2025, 6, 5, 3, 0, 0, 0, time.UTC)

	previous := WeekRangeOf(thursday, -1)
	assert.Equal(t, "2025-05-26", previous.Start)
	assert.Equal(t, "2025-06-01", previous.End)

	next := WeekRangeOf(thursday, 1)
	assert.Equal(t, "2025-06-09", next.Start)
}

func TestWeekLabel(t *testing.T) {
	thursday := time.Date(2025, 6, 5, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, "6/2 ~ 6/8", WeekLabel(thursday, 0))
	assert.Equal(t, "5/26 ~ 6/1", WeekLabel(thursday, -1))
}
