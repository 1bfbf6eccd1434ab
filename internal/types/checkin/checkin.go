package checkin

import "time"

type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusSkipped   Status = "SKIPPED"
)

// Checkin is the single record for one routine on one calendar day. The date
// is a KST day-stamp ("YYYY-MM-DD"), not an instant; a new check-in for the
// same routine and day replaces the prior one.
type Checkin struct {
	ID        string    `json:"id"`
	RoutineID string    `json:"routineId"`
	Date      string    `json:"date"`
	Status    Status    `json:"status"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type CheckinRequest struct {
	Status Status `json:"status" validate:"required"`
	Note   string `json:"note"`
}

type AddNoteRequest struct {
	Note string `json:"note" validate:"required"`
}
