package models

import "time"

// Course is taught by a single lecturer and has enrolled students.
type Course struct {
	Code       string    `db:"code" json:"code"`
	Name       string    `db:"name" json:"name"`
	LecturerID string    `db:"lecturer_id" json:"lecturer_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// CourseEnrollment links a student to a course.
type CourseEnrollment struct {
	CourseCode string    `db:"course_code" json:"course_code"`
	StudentID  string    `db:"student_id" json:"student_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
