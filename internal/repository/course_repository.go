package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/presensi-api/internal/models"
)

// CourseRepository persists courses and their enrollments.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByCode fetches a course by its code.
func (r *CourseRepository) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	var course models.Course
	query := "SELECT code, name, lecturer_id, created_at, updated_at FROM courses WHERE code = $1"
	if err := r.db.GetContext(ctx, &course, query, code); err != nil {
		return nil, err
	}
	return &course, nil
}

// List returns courses, optionally restricted to one lecturer.
func (r *CourseRepository) List(ctx context.Context, lecturerID string) ([]models.Course, error) {
	query := "SELECT code, name, lecturer_id, created_at, updated_at FROM courses"
	args := []interface{}{}
	if lecturerID != "" {
		query += " WHERE lecturer_id = $1"
		args = append(args, lecturerID)
	}
	query += " ORDER BY code ASC"
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// Create inserts a course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	query := `INSERT INTO courses (code, name, lecturer_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query, course.Code, course.Name, course.LecturerID, course.CreatedAt, course.UpdatedAt); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Enroll links students to the course, skipping existing enrollments. It returns
// the number of new enrollments.
func (r *CourseRepository) Enroll(ctx context.Context, code string, studentIDs []string) (int, error) {
	if len(studentIDs) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin enroll: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			_ = tx.Rollback()
		}
	}()

	query := `INSERT INTO course_enrollments (course_code, student_id, created_at) VALUES ($1, $2, $3)
ON CONFLICT (course_code, student_id) DO NOTHING`
	now := time.Now().UTC()
	inserted := 0
	for _, studentID := range studentIDs {
		res, err := tx.ExecContext(ctx, query, code, studentID, now)
		if err != nil {
			return 0, fmt.Errorf("enroll %s: %w", studentID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("enroll rows affected: %w", err)
		}
		inserted += int(affected)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit enroll: %w", err)
	}
	commit = true
	return inserted, nil
}

// CountEnrolled returns the number of students enrolled in a course.
func (r *CourseRepository) CountEnrolled(ctx context.Context, code string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM course_enrollments WHERE course_code = $1", code); err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return total, nil
}

// IsEnrolled checks whether the student is enrolled in the course.
func (r *CourseRepository) IsEnrolled(ctx context.Context, code, studentID string) (bool, error) {
	var exists int
	query := "SELECT 1 FROM course_enrollments WHERE course_code = $1 AND student_id = $2 LIMIT 1"
	if err := r.db.GetContext(ctx, &exists, query, code, studentID); err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}
