package dto

// CreateCourseRequest defines the payload for registering a course.
type CreateCourseRequest struct {
	Code       string `json:"code" validate:"required,max=32"`
	Name       string `json:"name" validate:"required,max=160"`
	LecturerID string `json:"lecturerId" validate:"required"`
}

// EnrollStudentsRequest adds students to a course.
type EnrollStudentsRequest struct {
	StudentIDs []string `json:"studentIds" validate:"required,min=1,dive,required"`
}

// EnrollStudentsResult reports how many enrollments were new.
type EnrollStudentsResult struct {
	CourseCode string `json:"courseCode"`
	Requested  int    `json:"requested"`
	Enrolled   int    `json:"enrolled"`
}
