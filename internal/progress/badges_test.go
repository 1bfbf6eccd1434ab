package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routineLoopAPI/internal/kst"
	"routineLoopAPI/internal/types/appstate"
	"routineLoopAPI/internal/types/badge"
	"routineLoopAPI/internal/types/checkin"
)

func badgeTypes(badges []badge.Badge) []badge.Type {
	types := make([]badge.Type, 0, len(badges))
	for _, b := range badges {
		types = append(types, b.BadgeType)
	}
	return types
}

func TestCollectNewBadgesIgnoresSkips(t *testing.T) {
	r := dailyRoutine("2025-06-01")
	prior := appstate.NewInitial()
	updated := completedOn(r.ID, "2025-06-05")

	badges := CollectNewBadges(prior, r, updated, checkin.StatusSkipped, "2025-06-05", kst.MustParseStamp("2025-06-05"), nil)
	assert.Empty(t, badges)
}

func TestCollectNewBadgesFirstCheckin(t *testing.T) {
	r := dailyRoutine("2025-06-01")
	prior := appstate.NewInitial()
	updated := completedOn(r.ID, "2025-06-05")
	earnedAt := kst.MustParseStamp("2025-06-05")

	badges := CollectNewBadges(prior, r, updated, checkin.StatusCompleted, "2025-06-05", earnedAt, nil)
	require.Len(t, badges, 1)
	assert.Equal(t, badge.TypeFirstCheckin, badges[0].BadgeType)
	assert.Equal(t, earnedAt, badges[0].EarnedAt)
}

func TestCollectNewBadgesFirstCheckinOnlyOnce(t *testing.T) {
	r := dailyRoutine("2025-06-01")
	prior := appstate.NewInitial()
	prior.Badges = []badge.Badge{{BadgeType: badge.TypeFirstCheckin, EarnedAt: kst.MustParseStamp("2025-06-04")}}
	prior.Checkins = completedOn(r.ID, "2025-06-04")
	updated := completedOn(r.ID, "2025-06-04", "2025-06-05")

	badges := CollectNewBadges(prior, r, updated, checkin.StatusCompleted, "2025-06-05", kst.MustParseStamp("2025-06-05"), nil)
	assert.NotContains(t, badgeTypes(badges), badge.TypeFirstCheckin)
}

func TestCollectNewBadgesStreakThreshold(t *testing.T) {
	r := dailyRoutine("2025-06-01")
	prior := appstate.NewInitial()
	prior.Badges = []badge.Badge{{BadgeType: badge.TypeFirstCheckin}}
	prior.Checkins = completedOn(r.ID, "2025-06-03", "2025-06-04")
	updated := completedOn(r.ID, "2025-06-03", "2025-06-04", "2025-06-05")

	badges := CollectNewBadges(prior, r, updated, checkin.StatusCompleted, "2025-06-05", kst.MustParseStamp("2025-06-05"), nil)
	assert.Equal(t, []badge.Type{badge.TypeStreak3}, badgeTypes(badges))
}

func TestCollectNewBadgesAwardsAllCrossedThresholdsTogether(t *testing.T) {
	// Fourteen consecutive completions arriving at once (e.g. restored
	// history) must award STREAK_3, STREAK_7 and STREAK_14 in one call.
	r := dailyRoutine("2025-06-01")
	prior := appstate.NewInitial()
	prior.Badges = []badge.Badge{{BadgeType: badge.TypeFirstCheckin}}

	dates := make([]string, 0, 14)
	for i := 0; i < 14; i++ {
		dates = append(dates, kst.AddDays("2025-06-01", i))
	}
	updated := completedOn(r.ID, dates...)

	badges := CollectNewBadges(prior, r, updated, checkin.StatusCompleted, "2025-06-14", kst.MustParseStamp("2025-06-14"), nil)
	assert.ElementsMatch(t,
		[]badge.Type{badge.TypeStreak3, badge.TypeStreak7, badge.TypeStreak14},
		badgeTypes(badges))
}

func TestCollectNewBadgesStreakBadgesNeverRepeat(t *testing.T) {
	r := dailyRoutine("2025-06-01")
	prior := appstate.NewInitial()
	prior.Badges = []badge.Badge{
		{BadgeType: badge.TypeFirstCheckin},
		{BadgeType: badge.TypeStreak3},
	}
	prior.Checkins = completedOn(r.ID, "2025-06-02", "2025-06-03", "2025-06-04")
	updated := completedOn(r.ID, "2025-06-02", "2025-06-03", "2025-06-04", "2025-06-05")

	badges := CollectNewBadges(prior, r, updated, checkin.StatusCompleted, "2025-06-05", kst.MustParseStamp("2025-06-05"), nil)
	assert.Empty(t, badges, "A 4-day streak earns nothing new when STREAK_3 is already held")
}

func TestCollectNewBadgesComebackAfterSkip(t *testing.T) {
	r := dailyRoutine("2025-06-01")
	prior := appstate.NewInitial()
	prior.Badges = []badge.Badge{{BadgeType: badge.TypeFirstCheckin}}
	prior.Checkins = []checkin.Checkin{
		{ID: "c1", RoutineID: r.ID, Date: "2025-06-02", Status: checkin.StatusCompleted},
		{ID: "c2", RoutineID: r.ID, Date: "2025-06-03", Status: checkin.StatusSkipped},
	}
	updated := append(append([]checkin.Checkin(nil), prior.Checkins...),
		checkin.Checkin{ID: "c3", RoutineID: r.ID, Date: "2025-06-05", Status: checkin.StatusCompleted})

	badges := CollectNewBadges(prior, r, updated, checkin.StatusCompleted, "2025-06-05", kst.MustParseStamp("2025-06-05"), nil)
	assert.Contains(t, badgeTypes(badges), badge.TypeComeback)
}

func TestCollectNewBadgesComebackAfterRestart(t *testing.T) {
	r := dailyRoutine("2025-06-01")
	restartAt := kst.MustParseStamp("2025-06-04")
	r.RestartAt = &restartAt

	prior := appstate.NewInitial()
	prior.Badges = []badge.Badge{{BadgeType: badge.TypeFirstCheckin}}
	prior.Checkins = completedOn(r.ID, "2025-06-02")
	updated := completedOn(r.ID, "2025-06-02", "2025-06-05")

	badges := CollectNewBadges(prior, r, updated, checkin.StatusCompleted, "2025-06-05", kst.MustParseStamp("2025-06-05"), nil)
	assert.Contains(t, badgeTypes(badges), badge.TypeComeback)
}

func TestCollectNewBadgesNoComebackWithoutPriorCompletion(t *testing.T) {
	r := dailyRoutine("2025-06-01")
	prior := appstate.NewInitial()
	prior.Checkins = []checkin.Checkin{
		{ID: "c1", RoutineID: r.ID, Date: "2025-06-03", Status: checkin.StatusSkipped},
	}
	updated := append(append([]checkin.Checkin(nil), prior.Checkins...),
		checkin.Checkin{ID: "c2", RoutineID: r.ID, Date: "2025-06-05", Status: checkin.StatusCompleted})

	badges := CollectNewBadges(prior, r, updated, checkin.StatusCompleted, "2025-06-05", kst.MustParseStamp("2025-06-05"), nil)
	assert.NotContains(t, badgeTypes(badges), badge.TypeComeback,
		"A skip alone is not a comeback without an earlier completion")
}
