package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"routineLoopAPI/internal/analytics"
	"routineLoopAPI/internal/kst"
	"routineLoopAPI/internal/progress"
	"routineLoopAPI/internal/storage"
	"routineLoopAPI/internal/types/appstate"
	"routineLoopAPI/internal/types/badge"
	"routineLoopAPI/internal/types/checkin"
	"routineLoopAPI/internal/types/entitlement"
	"routineLoopAPI/internal/types/routine"
)

// User-facing domain failure codes. Returned as typed results, never errors,
// so callers can render specific messaging.
const (
	ReasonAlreadyUsed    = "ALREADY_USED"
	ReasonLimitReached   = "LIMIT_REACHED"
	ReasonGrantRejected  = "GRANT_REJECTED"
	ReasonCompleteFailed = "COMPLETE_FAILED"
)

type Result struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// AppStateService owns the current AppState snapshot. Every mutation is a
// pure transition over a cloned snapshot (read-then-replace under the lock)
// followed by a persist through the storage driver.
type AppStateService struct {
	mu      sync.Mutex
	state   *appstate.AppState
	store   storage.Driver
	tracker *analytics.Tracker
	now     func() time.Time
}

func NewAppStateService(store storage.Driver, tracker *analytics.Tracker) *AppStateService {
	return &AppStateService{
		state:   appstate.NewInitial(),
		store:   store,
		tracker: tracker,
		now:     time.Now,
	}
}

// SetClock overrides the service clock. Test hook.
func (s *AppStateService) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Hydrate loads the persisted snapshot. Corrupt or mismatched payloads come
// back as a fresh initial state from the driver.
func (s *AppStateService) Hydrate(ctx context.Context) error {
	loaded, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to hydrate app state: %w", err)
	}
	s.mu.Lock()
	s.state = loaded
	s.mu.Unlock()
	return nil
}

// State returns a deep copy of the current snapshot.
func (s *AppStateService) State() *appstate.AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// mutate applies fn to a cloned snapshot, publishes it, and persists. A
// persistence failure keeps the in-memory state and is only logged; the app
// must keep working offline.
func (s *AppStateService) mutate(ctx context.Context, fn func(next *appstate.AppState)) *appstate.AppState {
	s.mu.Lock()
	next := s.state.Clone()
	fn(next)
	s.state = next
	s.mu.Unlock()

	if err := s.store.Save(ctx, next); err != nil {
		log.Printf("Warning: failed to persist app state: %v", err)
	}
	return next
}

func (s *AppStateService) clock() func() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// IsPremiumActive reports whether the local entitlement cache says premium is
// currently active.
func (s *AppStateService) IsPremiumActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Entitlement.PremiumActiveAt(s.now())
}

func (s *AppStateService) CompleteOnboarding(ctx context.Context) {
	s.mutate(ctx, func(next *appstate.AppState) {
		next.OnboardingCompleted = true
	})
}

// CreateRoutine appends a routine unless the free tier is full.
func (s *AppStateService) CreateRoutine(ctx context.Context, req *routine.CreateRoutineRequest) (*routine.Routine, Result) {
	goal := req.GoalPerDay
	if goal <= 0 {
		goal = 1
	}
	newRoutine := routine.Routine{
		ID:         fmt.Sprintf("routine_%s", uuid.NewString()),
		Title:      strings.TrimSpace(req.Title),
		DaysOfWeek: req.DaysOfWeek,
		GoalPerDay: goal,
		CreatedAt:  s.clock()(),
	}

	limited := false
	s.mutate(ctx, func(next *appstate.AppState) {
		premium := next.Entitlement.PremiumActiveAt(newRoutine.CreatedAt)
		if !premium && len(next.ActiveRoutines()) >= entitlement.FreeRoutineLimit {
			limited = true
			return
		}
		next.Routines = append(next.Routines, newRoutine)
	})

	if limited {
		return nil, Result{OK: false, Reason: ReasonLimitReached}
	}
	return &newRoutine, Result{OK: true}
}

func (s *AppStateService) UpdateRoutine(ctx context.Context, routineID string, req *routine.UpdateRoutineRequest) bool {
	found := false
	s.mutate(ctx, func(next *appstate.AppState) {
		r := next.RoutineByID(routineID)
		if r == nil {
			return
		}
		found = true
		r.Title = strings.TrimSpace(req.Title)
		r.DaysOfWeek = req.DaysOfWeek
		if req.GoalPerDay > 0 {
			r.GoalPerDay = req.GoalPerDay
		}
	})
	return found
}

// DeleteRoutine removes the routine and all of its check-ins.
func (s *AppStateService) DeleteRoutine(ctx context.Context, routineID string) {
	s.mutate(ctx, func(next *appstate.AppState) {
		routines := next.Routines[:0]
		for _, r := range next.Routines {
			if r.ID != routineID {
				routines = append(routines, r)
			}
		}
		next.Routines = routines

		checkins := next.Checkins[:0]
		for _, c := range next.Checkins {
			if c.RoutineID != routineID {
				checkins = append(checkins, c)
			}
		}
		next.Checkins = checkins
	})
}

// RestartRoutine resets the streak-counting start boundary without deleting
// history.
func (s *AppStateService) RestartRoutine(ctx context.Context, routineID string) bool {
	found := false
	now := s.clock()()
	s.mutate(ctx, func(next *appstate.AppState) {
		r := next.RoutineByID(routineID)
		if r == nil {
			return
		}
		found = true
		restartAt := now
		r.RestartAt = &restartAt
	})
	return found
}

// CheckinRoutine upserts today's check-in for the routine and evaluates
// newly earned badges.
func (s *AppStateService) CheckinRoutine(ctx context.Context, routineID string, status checkin.Status, note string) ([]badge.Badge, bool) {
	now := s.clock()()
	date := kst.DateStamp(now)
	var newBadges []badge.Badge
	found := false

	s.mutate(ctx, func(next *appstate.AppState) {
		r := next.RoutineByID(routineID)
		if r == nil {
			return
		}
		found = true

		prior := next.Clone()

		// Upsert: a same-day check-in replaces the prior one.
		checkins := next.Checkins[:0]
		for _, c := range next.Checkins {
			if c.RoutineID == routineID && c.Date == date {
				continue
			}
			checkins = append(checkins, c)
		}
		checkins = append(checkins, checkin.Checkin{
			ID:        fmt.Sprintf("checkin_%s", uuid.NewString()),
			RoutineID: routineID,
			Date:      date,
			Status:    status,
			Note:      strings.TrimSpace(note),
			CreatedAt: now,
		})
		next.Checkins = checkins

		newBadges = progress.CollectNewBadges(prior, r, next.Checkins, status, date, now, next.ShieldedDates(routineID))
		next.Badges = append(next.Badges, newBadges...)
	})

	for _, b := range newBadges {
		s.tracker.Track(analytics.EventBadgeEarned, map[string]any{"badgeType": string(b.BadgeType)})
		switch b.BadgeType {
		case badge.TypeStreak3:
			s.tracker.Track(analytics.EventStreakMilestone, map[string]any{"routineId": routineID, "days": 3})
		case badge.TypeStreak7:
			s.tracker.Track(analytics.EventStreakMilestone, map[string]any{"routineId": routineID, "days": 7})
		case badge.TypeStreak14:
			s.tracker.Track(analytics.EventStreakMilestone, map[string]any{"routineId": routineID, "days": 14})
		}
	}
	return newBadges, found
}

// AddNoteToCheckin amends the note of today's existing check-in. It never
// creates a check-in.
func (s *AppStateService) AddNoteToCheckin(ctx context.Context, routineID, note string) bool {
	date := kst.DateStamp(s.clock()())
	updated := false
	s.mutate(ctx, func(next *appstate.AppState) {
		for i := range next.Checkins {
			if next.Checkins[i].RoutineID == routineID && next.Checkins[i].Date == date {
				next.Checkins[i].Note = strings.TrimSpace(note)
				updated = true
			}
		}
	})
	return updated
}

func (s *AppStateService) shieldsUsedInMonth(shields []entitlement.StreakShieldEntry, month string) int {
	used := 0
	for _, shield := range shields {
		if kst.MonthOf(kst.DateStamp(shield.UsedAt)) == month {
			used++
		}
	}
	return used
}

// StreakShieldsRemaining returns how many shields are left in the current
// calendar month.
func (s *AppStateService) StreakShieldsRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	month := kst.MonthOf(kst.DateStamp(s.now()))
	remaining := entitlement.StreakShieldMonthlyLimit - s.shieldsUsedInMonth(s.state.Entitlement.StreakShields, month)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ApplyStreakShield consumes a shield for one missed target date. At most one
// per (routine, date), capped per calendar month.
func (s *AppStateService) ApplyStreakShield(ctx context.Context, routineID, date string) bool {
	now := s.clock()()
	month := kst.MonthOf(kst.DateStamp(now))
	applied := false

	s.mutate(ctx, func(next *appstate.AppState) {
		shields := next.Entitlement.StreakShields
		for _, shield := range shields {
			if shield.RoutineID == routineID && shield.Date == date {
				return
			}
		}
		if s.shieldsUsedInMonth(shields, month) >= entitlement.StreakShieldMonthlyLimit {
			return
		}
		next.Entitlement.StreakShields = append(shields, entitlement.StreakShieldEntry{
			RoutineID: routineID,
			Date:      date,
			UsedAt:    now,
		})
		applied = true
	})

	if applied {
		s.tracker.Track(analytics.EventStreakShieldUsed, map[string]any{"routineId": routineID, "date": date})
	}
	return applied
}

// TodayTargetRoutines returns the non-archived routines scheduled for today.
func (s *AppStateService) TodayTargetRoutines() []routine.Routine {
	state := s.State()
	today := kst.WeekdayOf(kst.DateStamp(s.clock()()))
	targets := make([]routine.Routine, 0)
	for _, r := range state.ActiveRoutines() {
		if r.HasTargetWeekday(today) {
			targets = append(targets, r)
		}
	}
	return targets
}

// ── Banners ──

// ShowTrialExpiredBanner reports whether the trial-expired notice is due:
// trial consumed, banner not yet shown, no paid SKU since, and the cached
// expiry has passed.
func (s *AppStateService) ShowTrialExpiredBanner() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent := s.state.Entitlement
	if !ent.TrialUsedLocal || ent.TrialExpiredBannerShown {
		return false
	}
	if ent.LastSku != "" && ent.LastSku != entitlement.SkuTrial {
		return false
	}
	if ent.PremiumUntil == nil {
		return false
	}
	return !ent.PremiumUntil.After(s.now())
}

// ShowRefundRevokedBanner reports whether an unacknowledged refund revocation
// exists.
func (s *AppStateService) ShowRefundRevokedBanner() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Entitlement.LastRefundedOrderID != "" && !s.state.Entitlement.RefundNoticeShown
}

func (s *AppStateService) DismissTrialExpiredBanner(ctx context.Context) {
	s.mutate(ctx, func(next *appstate.AppState) {
		next.Entitlement.TrialExpiredBannerShown = true
	})
}

// DismissRefundRevokedBanner flips the acknowledged flag only; the refund
// record itself stays.
func (s *AppStateService) DismissRefundRevokedBanner(ctx context.Context) {
	s.mutate(ctx, func(next *appstate.AppState) {
		next.Entitlement.RefundNoticeShown = true
	})
}

// ── Entitlement plumbing used by the reconciler ──

// UpdateEntitlement mutates the entitlement record and re-applies the
// routine-archival policy, since premium may have flipped.
func (s *AppStateService) UpdateEntitlement(ctx context.Context, fn func(ent *entitlement.Entitlement)) {
	now := s.clock()()
	s.mutate(ctx, func(next *appstate.AppState) {
		fn(&next.Entitlement)
		applyArchivePolicy(next, now)
	})
}

// ApplyArchivePolicy re-evaluates free-limit archival against the current
// entitlement.
func (s *AppStateService) ApplyArchivePolicy(ctx context.Context) {
	now := s.clock()()
	s.mutate(ctx, func(next *appstate.AppState) {
		applyArchivePolicy(next, now)
	})
}

// applyArchivePolicy archives the oldest-created routines beyond the free
// limit while premium is inactive, and un-archives everything while premium
// is active.
func applyArchivePolicy(state *appstate.AppState, now time.Time) {
	if state.Entitlement.PremiumActiveAt(now) {
		for i := range state.Routines {
			state.Routines[i].ArchivedAt = nil
		}
		return
	}

	active := state.ActiveRoutines()
	if len(active) <= entitlement.FreeRoutineLimit {
		return
	}

	sort.SliceStable(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	keep := make(map[string]bool, entitlement.FreeRoutineLimit)
	for _, r := range active[:entitlement.FreeRoutineLimit] {
		keep[r.ID] = true
	}

	archivedAt := now
	for i := range state.Routines {
		if state.Routines[i].IsArchived() || keep[state.Routines[i].ID] {
			continue
		}
		at := archivedAt
		state.Routines[i].ArchivedAt = &at
	}
}

// ── Reset ──

// ResetAllData wipes routines, check-ins and badges. The entitlement record
// survives the reset so trial usage and premium status cannot be laundered by
// wiping local data.
func (s *AppStateService) ResetAllData(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		log.Printf("Warning: failed to clear persisted state: %v", err)
	}
	s.mutate(ctx, func(next *appstate.AppState) {
		fresh := appstate.NewInitial()
		fresh.Entitlement = next.Entitlement
		*next = *fresh
	})
	return nil
}
