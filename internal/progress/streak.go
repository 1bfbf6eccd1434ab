package progress

import (
	"routineLoopAPI/internal/kst"
	"routineLoopAPI/internal/types/checkin"
	"routineLoopAPI/internal/types/routine"
)

// Bound on the backward walk so malformed data cannot loop forever.
const maxStreakWalk = 4000

func statusByDate(checkins []checkin.Checkin) map[string]checkin.Status {
	m := make(map[string]checkin.Status, len(checkins))
	for _, c := range checkins {
		m[c.Date] = c.Status
	}
	return m
}

// CurrentStreak computes the consecutive-completion streak of a routine as of
// referenceDate (inclusive). Walking backward one day at a time: days before
// the routine's effective start boundary stop the walk, non-target days and
// shielded days are transparent, a COMPLETED check-in counts and continues,
// and a SKIPPED or missing check-in on a target day ends the streak.
func CurrentStreak(r *routine.Routine, checkins []checkin.Checkin, referenceDate string, shieldedDates map[string]bool) int {
	startStamp := kst.DateStamp(r.EffectiveStart())
	byDate := statusByDate(checkins)

	cursor := referenceDate
	streak := 0
	for guard := 0; guard < maxStreakWalk && cursor >= startStamp; guard++ {
		if !r.HasTargetWeekday(kst.WeekdayOf(cursor)) {
			cursor = kst.AddDays(cursor, -1)
			continue
		}
		if shieldedDates[cursor] {
			cursor = kst.AddDays(cursor, -1)
			continue
		}
		if byDate[cursor] == checkin.StatusCompleted {
			streak++
			cursor = kst.AddDays(cursor, -1)
			continue
		}
		break
	}

	return streak
}
