package models

import "time"

// SessionStatus is the lifecycle state of an attendance session.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusClosed SessionStatus = "closed"
)

// Session is one attendance-taking window opened by a lecturer. Sessions are never
// deleted; closed sessions are kept as history.
type Session struct {
	ID           string        `db:"id" json:"id"`
	LecturerID   string        `db:"lecturer_id" json:"lecturer_id"`
	CourseCode   string        `db:"course_code" json:"course_code"`
	CourseName   string        `db:"course_name" json:"course_name"`
	RoomID       string        `db:"room_id" json:"room_id"`
	Status       SessionStatus `db:"status" json:"status"`
	Latitude     float64       `db:"latitude" json:"latitude"`
	Longitude    float64       `db:"longitude" json:"longitude"`
	RadiusMeters float64       `db:"radius_meters" json:"radius_meters"`
	StartedAt    time.Time     `db:"started_at" json:"started_at"`
	EndedAt      *time.Time    `db:"ended_at" json:"ended_at,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// Active reports whether the session still accepts check-ins.
func (s *Session) Active() bool {
	return s != nil && s.Status == SessionStatusActive
}

// SessionFilter scopes session history queries.
type SessionFilter struct {
	LecturerID string
	Status     *SessionStatus
	Page       int
	PageSize   int
}
