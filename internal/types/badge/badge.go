package badge

import "time"

type Type string

const (
	TypeFirstCheckin Type = "FIRST_CHECKIN"
	TypeStreak3      Type = "STREAK_3"
	TypeStreak7      Type = "STREAK_7"
	TypeStreak14     Type = "STREAK_14"
	TypeComeback     Type = "COMEBACK"
)

// Badge is an earned achievement. Each type is earned at most once ever; the
// set is append-only except on a full data reset.
type Badge struct {
	BadgeType Type      `json:"badgeType"`
	EarnedAt  time.Time `json:"earnedAt"`
}
