package dto

import "time"

// CheckInRequest is a student's check-in submission. Izin check-ins skip the
// geofence and may omit the coordinate.
type CheckInRequest struct {
	SessionID string     `json:"-" validate:"required"`
	StudentID string     `json:"-" validate:"required"`
	Latitude  *float64   `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64   `json:"longitude" validate:"omitempty,longitude"`
	Izin      bool       `json:"izin"`
	Note      *string    `json:"note" validate:"omitempty,max=500"`
	Timestamp *time.Time `json:"timestamp"`
}
