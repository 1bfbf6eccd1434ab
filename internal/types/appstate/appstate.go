package appstate

import (
	"routineLoopAPI/internal/types/badge"
	"routineLoopAPI/internal/types/checkin"
	"routineLoopAPI/internal/types/entitlement"
	"routineLoopAPI/internal/types/routine"
)

// SchemaVersion gates persisted snapshots: a mismatched version on load is
// treated as absent and the state is reinitialized.
const SchemaVersion = 1

// AppState is the aggregate root. It is hydrated once from storage, held in
// memory, and persisted after every mutation.
type AppState struct {
	SchemaVersion       int                     `json:"schemaVersion"`
	OnboardingCompleted bool                    `json:"onboardingCompleted"`
	Routines            []routine.Routine       `json:"routines"`
	Checkins            []checkin.Checkin       `json:"checkins"`
	Badges              []badge.Badge           `json:"badges"`
	Entitlement         entitlement.Entitlement `json:"entitlement"`
}

// NewInitial returns the empty first-run state.
func NewInitial() *AppState {
	return &AppState{
		SchemaVersion: SchemaVersion,
		Routines:      []routine.Routine{},
		Checkins:      []checkin.Checkin{},
		Badges:        []badge.Badge{},
	}
}

// Clone deep-copies the snapshot so mutations can be applied read-then-replace
// without aliasing the published state.
func (s *AppState) Clone() *AppState {
	next := &AppState{
		SchemaVersion:       s.SchemaVersion,
		OnboardingCompleted: s.OnboardingCompleted,
		Routines:            make([]routine.Routine, len(s.Routines)),
		Checkins:            make([]checkin.Checkin, len(s.Checkins)),
		Badges:              make([]badge.Badge, len(s.Badges)),
		Entitlement:         s.Entitlement,
	}
	copy(next.Routines, s.Routines)
	copy(next.Checkins, s.Checkins)
	copy(next.Badges, s.Badges)
	for i := range next.Routines {
		days := make([]routine.Weekday, len(s.Routines[i].DaysOfWeek))
		copy(days, s.Routines[i].DaysOfWeek)
		next.Routines[i].DaysOfWeek = days
	}
	if s.Entitlement.StreakShields != nil {
		shields := make([]entitlement.StreakShieldEntry, len(s.Entitlement.StreakShields))
		copy(shields, s.Entitlement.StreakShields)
		next.Entitlement.StreakShields = shields
	}
	return next
}

// RoutineByID returns the routine with the given id, or nil.
func (s *AppState) RoutineByID(id string) *routine.Routine {
	for i := range s.Routines {
		if s.Routines[i].ID == id {
			return &s.Routines[i]
		}
	}
	return nil
}

// ActiveRoutines returns routines not archived by the free-tier policy.
func (s *AppState) ActiveRoutines() []routine.Routine {
	active := make([]routine.Routine, 0, len(s.Routines))
	for _, r := range s.Routines {
		if !r.IsArchived() {
			active = append(active, r)
		}
	}
	return active
}

// RoutineCheckins returns all check-ins belonging to one routine.
func (s *AppState) RoutineCheckins(routineID string) []checkin.Checkin {
	items := make([]checkin.Checkin, 0)
	for _, c := range s.Checkins {
		if c.RoutineID == routineID {
			items = append(items, c)
		}
	}
	return items
}

// ShieldedDates returns the set of shielded day-stamps for one routine.
func (s *AppState) ShieldedDates(routineID string) map[string]bool {
	dates := make(map[string]bool)
	for _, shield := range s.Entitlement.StreakShields {
		if shield.RoutineID == routineID {
			dates[shield.Date] = true
		}
	}
	return dates
}
