// Package analytics emits the semantic events the app reports: trial and
// purchase lifecycle, restores, refund revocations, badges, streak milestones
// and shield usage. Events go to the log and to a prometheus counter; payloads
// are flat key/value maps.
package analytics

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	EventTrialStart       = "trial_start"
	EventTrialSuccess     = "trial_success"
	EventPurchaseStart    = "iap_purchase_start"
	EventGrantSuccess     = "iap_grant_success"
	EventGrantFail        = "iap_grant_fail"
	EventRestoreStart     = "iap_restore_start"
	EventRestoreDone      = "iap_restore_done"
	EventRefundRevoke     = "iap_refund_revoke"
	EventBadgeEarned      = "badge_earned"
	EventStreakMilestone  = "streak_milestone"
	EventStreakShieldUsed = "streak_shield_used"
)

var eventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "app_events_total",
		Help: "Total number of semantic app events",
	},
	[]string{"event"},
)

// InitPrometheus registers the event counter. Call this from main.go
func InitPrometheus() {
	prometheus.MustRegister(eventsTotal)
}

// Tracker is the telemetry sink handle. A nil Tracker drops events, so
// callers never need to guard.
type Tracker struct {
	logPrefix string
}

func NewTracker() *Tracker {
	return &Tracker{logPrefix: "[analytics]"}
}

// Track records one event with a flat payload. Undefined (nil) values are
// dropped from the payload.
func (t *Tracker) Track(event string, payload map[string]any) {
	if t == nil {
		return
	}
	eventsTotal.WithLabelValues(event).Inc()

	keys := make([]string, 0, len(payload))
	for key, value := range payload {
		if value == nil {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", key, payload[key]))
	}
	log.Printf("%s %s %s", t.logPrefix, event, strings.Join(parts, " "))
}
