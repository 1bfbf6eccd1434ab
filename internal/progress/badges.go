package progress

import (
	"time"

	"routineLoopAPI/internal/types/appstate"
	"routineLoopAPI/internal/types/badge"
	"routineLoopAPI/internal/types/checkin"
	"routineLoopAPI/internal/types/routine"
)

var streakBadgeThresholds = []struct {
	minStreak int
	badgeType badge.Type
}{
	{3, badge.TypeStreak3},
	{7, badge.TypeStreak7},
	{14, badge.TypeStreak14},
}

func appendIfUnearned(result []badge.Badge, earned map[badge.Type]bool, badgeType badge.Type, earnedAt time.Time) []badge.Badge {
	if earned[badgeType] {
		return result
	}
	earned[badgeType] = true
	return append(result, badge.Badge{BadgeType: badgeType, EarnedAt: earnedAt})
}

// CollectNewBadges derives the badges newly earned by a check-in. Skips never
// earn badges, and every rule is idempotent against the already-earned set.
// Streak thresholds are checked against the freshly computed streak, so a
// multi-threshold jump (e.g. restored history) awards every crossed badge in
// one call.
func CollectNewBadges(
	prior *appstate.AppState,
	r *routine.Routine,
	updatedCheckins []checkin.Checkin,
	status checkin.Status,
	referenceDate string,
	earnedAt time.Time,
	shieldedDates map[string]bool,
) []badge.Badge {
	if status != checkin.StatusCompleted {
		return nil
	}

	earned := make(map[badge.Type]bool, len(prior.Badges))
	for _, b := range prior.Badges {
		earned[b.BadgeType] = true
	}

	var result []badge.Badge

	routineCheckins := make([]checkin.Checkin, 0, len(updatedCheckins))
	anyCompleted := false
	for _, c := range updatedCheckins {
		if c.Status == checkin.StatusCompleted {
			anyCompleted = true
		}
		if c.RoutineID == r.ID {
			routineCheckins = append(routineCheckins, c)
		}
	}

	if anyCompleted {
		result = appendIfUnearned(result, earned, badge.TypeFirstCheckin, earnedAt)
	}

	streak := CurrentStreak(r, routineCheckins, referenceDate, shieldedDates)
	for _, threshold := range streakBadgeThresholds {
		if streak >= threshold.minStreak {
			result = appendIfUnearned(result, earned, threshold.badgeType, earnedAt)
		}
	}

	hadPastCompletion := false
	hadSkippedBefore := false
	for _, c := range prior.Checkins {
		if c.RoutineID != r.ID {
			continue
		}
		if c.Status == checkin.StatusCompleted && c.Date < referenceDate {
			hadPastCompletion = true
		}
		if c.Status == checkin.StatusSkipped {
			hadSkippedBefore = true
		}
	}
	if hadPastCompletion && (hadSkippedBefore || r.RestartAt != nil) {
		result = appendIfUnearned(result, earned, badge.TypeComeback, earnedAt)
	}

	return result
}
