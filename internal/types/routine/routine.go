package routine

import "time"

// Weekday is a symbolic day-of-week used for routine targeting.
type Weekday string

const (
	Monday    Weekday = "MON"
	Tuesday   Weekday = "TUE"
	Wednesday Weekday = "WED"
	Thursday  Weekday = "THU"
	Friday    Weekday = "FRI"
	Saturday  Weekday = "SAT"
	Sunday    Weekday = "SUN"
)

// Order is the Monday-first weekday sequence used for week math.
var Order = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

func IsValidWeekday(day Weekday) bool {
	switch day {
	case Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday:
		return true
	}
	return false
}

type Routine struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	DaysOfWeek []Weekday  `json:"daysOfWeek"`
	GoalPerDay int        `json:"goalPerDay"`
	CreatedAt  time.Time  `json:"createdAt"`
	RestartAt  *time.Time `json:"restartAt,omitempty"`
	ArchivedAt *time.Time `json:"archivedAt,omitempty"`
}

// IsArchived reports whether the routine was hidden by the free-tier policy.
func (r *Routine) IsArchived() bool {
	return r.ArchivedAt != nil
}

// HasTargetWeekday reports whether the routine is scheduled on the given weekday.
func (r *Routine) HasTargetWeekday(day Weekday) bool {
	for _, d := range r.DaysOfWeek {
		if d == day {
			return true
		}
	}
	return false
}

// EffectiveStart is the streak-counting start boundary: the restart instant
// when the routine was restarted, otherwise its creation instant.
func (r *Routine) EffectiveStart() time.Time {
	if r.RestartAt != nil {
		return *r.RestartAt
	}
	return r.CreatedAt
}

type CreateRoutineRequest struct {
	Title      string    `json:"title" validate:"required"`
	DaysOfWeek []Weekday `json:"daysOfWeek" validate:"required"`
	GoalPerDay int       `json:"goalPerDay"`
}

type UpdateRoutineRequest struct {
	Title      string    `json:"title" validate:"required"`
	DaysOfWeek []Weekday `json:"daysOfWeek" validate:"required"`
	GoalPerDay int       `json:"goalPerDay"`
}
