package models

import (
	"time"

	"github.com/google/uuid"
)

// AttendanceDay is the attendance state for one identity on one calendar
// day. At most one row exists per (identity_id, day); the database enforces
// this with a unique constraint.
type AttendanceDay struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	IdentityID    uuid.UUID  `json:"identity_id" db:"identity_id"`
	Day           time.Time  `json:"day" db:"day"` // date only, midnight UTC
	ArrivalTime   time.Time  `json:"arrival_time" db:"arrival_time"`
	DepartureTime *time.Time `json:"departure_time,omitempty" db:"departure_time"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// AttendanceEvent is the message published to NATS after a recorded
// check-in or check-out, consumed for the live board broadcast.
type AttendanceEvent struct {
	IdentityID     uuid.UUID  `json:"identity_id"`
	IdentityName   string     `json:"identity_name"`
	EmployeeID     string     `json:"employee_id"`
	Transition     string     `json:"transition"` // arrived, departed_first, departed_updated
	EventTime      time.Time  `json:"event_time"`
	PriorDeparture *time.Time `json:"prior_departure,omitempty"`
	Distance       float64    `json:"distance"`
	SnapshotKey    string     `json:"snapshot_key,omitempty"`
}
