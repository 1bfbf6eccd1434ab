package kst

import (
	"fmt"
	"time"

	"routineLoopAPI/internal/types/routine"
)

// Zone is the fixed KST offset. Day-stamps are always projected through this
// zone so results do not depend on the server's local timezone.
var Zone = time.FixedZone("KST", 9*60*60)

const stampLayout = "2006-01-02"

// DateStamp projects an instant onto its KST calendar day ("YYYY-MM-DD").
func DateStamp(t time.Time) string {
	return t.In(Zone).Format(stampLayout)
}

// ParseStamp parses a day-stamp into midnight KST of that day.
func ParseStamp(stamp string) (time.Time, error) {
	t, err := time.ParseInLocation(stampLayout, stamp, Zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date stamp %q: %w", stamp, err)
	}
	return t, nil
}

// MustParseStamp is ParseStamp for stamps the caller produced itself.
func MustParseStamp(stamp string) time.Time {
	t, err := ParseStamp(stamp)
	if err != nil {
		panic(err)
	}
	return t
}

// WeekdayOf returns the symbolic weekday of a day-stamp.
func WeekdayOf(stamp string) routine.Weekday {
	t, err := ParseStamp(stamp)
	if err != nil {
		return routine.Monday
	}
	switch t.Weekday() {
	case time.Monday:
		return routine.Monday
	case time.Tuesday:
		return routine.Tuesday
	case time.Wednesday:
		return routine.Wednesday
	case time.Thursday:
		return routine.Thursday
	case time.Friday:
		return routine.Friday
	case time.Saturday:
		return routine.Saturday
	default:
		return routine.Sunday
	}
}

// AddDays shifts a day-stamp by n calendar days (n may be negative).
func AddDays(stamp string, n int) string {
	t, err := ParseStamp(stamp)
	if err != nil {
		return stamp
	}
	return DateStamp(t.AddDate(0, 0, n))
}

// MonthOf returns the "YYYY-MM" month prefix of a day-stamp.
func MonthOf(stamp string) string {
	if len(stamp) < 7 {
		return stamp
	}
	return stamp[:7]
}

// WeekRange is a Monday-anchored KST week.
type WeekRange struct {
	Start string    `json:"start"`
	End   string    `json:"end"`
	Days  [7]string `json:"days"`
}

// WeekRangeOf returns the Monday-anchored week containing the instant,
// shifted by weekOffset whole weeks.
func WeekRangeOf(t time.Time, weekOffset int) WeekRange {
	base := DateStamp(t)
	weekday := WeekdayOf(base)
	mondayOffset := weekOffset * 7
	for i, d := range routine.Order {
		if d == weekday {
			mondayOffset -= i
			break
		}
	}
	start := AddDays(base, mondayOffset)

	var week WeekRange
	week.Start = start
	for i := 0; i < 7; i++ {
		week.Days[i] = AddDays(start, i)
	}
	week.End = week.Days[6]
	return week
}

// WeekLabel renders a week range as "M/D ~ M/D" for report headers.
func WeekLabel(t time.Time, weekOffset int) string {
	week := WeekRangeOf(t, weekOffset)
	monday := MustParseStamp(week.Start)
	sunday := MustParseStamp(week.End)
	return fmt.Sprintf("%d/%d ~ %d/%d",
		int(monday.Month()), monday.Day(),
		int(sunday.Month()), sunday.Day())
}
