package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/presensi-api/internal/dto"
	"github.com/noah-isme/presensi-api/internal/models"
	appErrors "github.com/noah-isme/presensi-api/pkg/errors"
)

type courseRepository interface {
	FindByCode(ctx context.Context, code string) (*models.Course, error)
	List(ctx context.Context, lecturerID string) ([]models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Enroll(ctx context.Context, code string, studentIDs []string) (int, error)
	CountEnrolled(ctx context.Context, code string) (int, error)
	IsEnrolled(ctx context.Context, code, studentID string) (bool, error)
}

// CourseService manages courses and their rosters.
type CourseService struct {
	repo      courseRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs a CourseService.
func NewCourseService(repo courseRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, validator: validate, logger: logger}
}

// List returns courses, optionally filtered by lecturer.
func (s *CourseService) List(ctx context.Context, lecturerID string) ([]models.Course, error) {
	courses, err := s.repo.List(ctx, strings.TrimSpace(lecturerID))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, nil
}

// Get returns a course by code.
func (s *CourseService) Get(ctx context.Context, code string) (*models.Course, error) {
	course, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create registers a course.
func (s *CourseService) Create(ctx context.Context, req dto.CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	code := strings.TrimSpace(req.Code)
	if _, err := s.repo.FindByCode(ctx, code); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}

	course := &models.Course{
		Code:       code,
		Name:       strings.TrimSpace(req.Name),
		LecturerID: strings.TrimSpace(req.LecturerID),
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Enroll adds students to a course. Already enrolled students are skipped.
func (s *CourseService) Enroll(ctx context.Context, code string, req dto.EnrollStudentsRequest) (*dto.EnrollStudentsResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	course, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	ids := uniqueTrimmed(req.StudentIDs)
	inserted, err := s.repo.Enroll(ctx, course.Code, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll students")
	}
	s.logger.Info("students enrolled", zap.String("course", course.Code), zap.Int("new", inserted))
	return &dto.EnrollStudentsResult{CourseCode: course.Code, Requested: len(ids), Enrolled: inserted}, nil
}

func uniqueTrimmed(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
