package models

import "time"

// AttendanceStatus represents the classification of a check-in.
type AttendanceStatus string

const (
	AttendanceStatusHadir AttendanceStatus = "hadir"
	AttendanceStatusIzin  AttendanceStatus = "izin"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusHadir, AttendanceStatusIzin:
		return true
	default:
		return false
	}
}

// AttendanceRecord is one student's check-in within a session. Immutable once stored.
type AttendanceRecord struct {
	ID             string           `db:"id" json:"id"`
	SessionID      string           `db:"session_id" json:"session_id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	Latitude       *float64         `db:"latitude" json:"latitude,omitempty"`
	Longitude      *float64         `db:"longitude" json:"longitude,omitempty"`
	DistanceMeters *float64         `db:"distance_meters" json:"distance_meters,omitempty"`
	Status         AttendanceStatus `db:"status" json:"status"`
	Note           *string          `db:"note" json:"note,omitempty"`
	SubmittedAt    time.Time        `db:"submitted_at" json:"submitted_at"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}

// AttendanceSummary rolls up a session's check-ins.
type AttendanceSummary struct {
	SessionID  string  `json:"session_id"`
	Hadir      int     `json:"hadir"`
	Izin       int     `json:"izin"`
	Total      int     `json:"total"`
	Enrolled   int     `json:"enrolled"`
	Percentage float64 `json:"percentage"`
}

// AttendanceStatusCount is a grouped count row.
type AttendanceStatusCount struct {
	Status AttendanceStatus `db:"status"`
	Count  int              `db:"count"`
}

// AttendanceSnapshot is pushed to attendance stream subscribers.
type AttendanceSnapshot struct {
	SessionID string             `json:"session_id"`
	Status    SessionStatus      `json:"session_status"`
	Records   []AttendanceRecord `json:"records"`
	Summary   AttendanceSummary  `json:"summary"`
}
