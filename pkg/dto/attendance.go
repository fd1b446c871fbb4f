package dto

import "github.com/google/uuid"

// CheckinResponse is the JSON outcome of one recognition event.
// Type is "check_in" for an arrival and "check_out" for a first or updated
// departure; IsUpdate distinguishes the overwrite case.
type CheckinResponse struct {
	Success   bool       `json:"success"`
	Outcome   string     `json:"outcome"` // recorded, no_match, no_face_detected
	Message   string     `json:"message"`
	Type      string     `json:"type,omitempty"` // check_in, check_out
	Identity  *uuid.UUID `json:"identity_id,omitempty"`
	Name      string     `json:"name,omitempty"`
	Time      string     `json:"time,omitempty"`
	PriorTime string     `json:"prior_time,omitempty"`
	IsUpdate  bool       `json:"is_update,omitempty"`
	Distance  float64    `json:"distance,omitempty"`
}

type AttendanceDayResponse struct {
	ID            uuid.UUID `json:"id"`
	IdentityID    uuid.UUID `json:"identity_id"`
	Day           string    `json:"day"`
	ArrivalTime   string    `json:"arrival_time"`
	DepartureTime string    `json:"departure_time,omitempty"`
}

type AttendanceListResponse struct {
	Records []AttendanceDayResponse `json:"records"`
	Total   int                     `json:"total"`
}

// WSEvent is a WebSocket message for the live attendance board.
type WSEvent struct {
	Type       string             `json:"type"` // attendance_recorded
	IdentityID uuid.UUID          `json:"identity_id"`
	Data       AttendanceWSDetail `json:"data"`
}

type AttendanceWSDetail struct {
	Name           string  `json:"name"`
	EmployeeID     string  `json:"employee_id"`
	Transition     string  `json:"transition"`
	EventTime      string  `json:"event_time"`
	PriorDeparture string  `json:"prior_departure,omitempty"`
	Distance       float64 `json:"distance"`
	PortraitURL    string  `json:"portrait_url,omitempty"`
}

// DebugMatch is one identity's distance to a probe in the debug
// recognition report, sorted nearest first.
type DebugMatch struct {
	IdentityID uuid.UUID `json:"identity_id"`
	Name       string    `json:"name"`
	EmployeeID string    `json:"employee_id"`
	Distance   float64   `json:"distance"`
	IsMatch    bool      `json:"is_match"`
}

type DebugProbeResult struct {
	ProbeIndex int          `json:"probe_index"`
	Matches    []DebugMatch `json:"matches"`
}

type DebugRecognitionResponse struct {
	FacesDetected int                `json:"faces_detected"`
	Population    int                `json:"population"`
	Threshold     float64            `json:"threshold"`
	Results       []DebugProbeResult `json:"results"`
}
