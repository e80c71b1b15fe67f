package dto

// StartSessionRequest opens a session for the authenticated lecturer.
type StartSessionRequest struct {
	LecturerID string `json:"-" validate:"required"`
	CourseCode string `json:"courseCode" validate:"required"`
	RoomID     string `json:"roomId" validate:"required"`
}

// SessionHistoryFilter pages through a lecturer's closed sessions.
type SessionHistoryFilter struct {
	LecturerID string
	Page       int
	PageSize   int
}
