package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/presensi-api/internal/dto"
	"github.com/noah-isme/presensi-api/internal/models"
	appErrors "github.com/noah-isme/presensi-api/pkg/errors"
	"github.com/noah-isme/presensi-api/pkg/geo"
	"github.com/noah-isme/presensi-api/pkg/realtime"
)

type sessionReader interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
}

type attendanceRecordRepository interface {
	Insert(ctx context.Context, record *models.AttendanceRecord) (bool, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error)
	CountByStatus(ctx context.Context, sessionID string) ([]models.AttendanceStatusCount, error)
}

type enrollmentReader interface {
	CountEnrolled(ctx context.Context, code string) (int, error)
	IsEnrolled(ctx context.Context, code, studentID string) (bool, error)
}

type summaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
}

// CheckInServiceConfig tunes check-in handling.
type CheckInServiceConfig struct {
	ClockSkew  time.Duration
	SummaryTTL time.Duration
}

// CheckInServiceParams groups constructor dependencies.
type CheckInServiceParams struct {
	Sessions    sessionReader
	Records     attendanceRecordRepository
	Enrollments enrollmentReader
	Publisher   EventPublisher
	Cache       summaryCache
	Metrics     *MetricsService
	Validator   *validator.Validate
	Logger      *zap.Logger
	Config      CheckInServiceConfig
}

// CheckInService records student check-ins and rolls them up per session.
type CheckInService struct {
	sessions    sessionReader
	records     attendanceRecordRepository
	enrollments enrollmentReader
	publisher   EventPublisher
	cache       summaryCache
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         CheckInServiceConfig
	now         func() time.Time
}

// NewCheckInService constructs a CheckInService.
func NewCheckInService(params CheckInServiceParams) *CheckInService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := params.Config
	if cfg.ClockSkew < 0 {
		cfg.ClockSkew = 0
	}
	if cfg.SummaryTTL <= 0 {
		cfg.SummaryTTL = time.Hour
	}
	return &CheckInService{
		sessions:    params.Sessions,
		records:     params.Records,
		enrollments: params.Enrollments,
		publisher:   params.Publisher,
		cache:       params.Cache,
		metrics:     params.Metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// SubmitCheckIn classifies and stores a student's check-in.
func (s *CheckInService) SubmitCheckIn(ctx context.Context, req dto.CheckInRequest) (*models.AttendanceRecord, error) {
	record, err := s.submit(ctx, req)
	if err != nil {
		s.metrics.CheckInRejected(appErrors.FromError(err).Code)
		return nil, err
	}
	s.metrics.CheckInAccepted(string(record.Status))
	return record, nil
}

func (s *CheckInService) submit(ctx context.Context, req dto.CheckInRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid check-in payload")
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "latitude and longitude must be sent together")
	}
	hasCoordinate := req.Latitude != nil
	if !req.Izin && !hasCoordinate {
		return nil, appErrors.Clone(appErrors.ErrValidation, "coordinate is required unless checking in as izin")
	}

	session, err := s.loadSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if !session.Active() {
		return nil, appErrors.Clone(appErrors.ErrSessionClosed, "session is no longer accepting check-ins")
	}
	if err := s.ensureEnrolled(ctx, session.CourseCode, req.StudentID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	record := &models.AttendanceRecord{
		ID:          uuid.NewString(),
		SessionID:   session.ID,
		StudentID:   req.StudentID,
		Status:      models.AttendanceStatusIzin,
		Note:        req.Note,
		SubmittedAt: s.submittedAt(req.Timestamp, now),
	}
	if hasCoordinate {
		point := geo.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}
		center := geo.Coordinate{Latitude: session.Latitude, Longitude: session.Longitude}
		distance := geo.Distance(center, point)
		record.Latitude = req.Latitude
		record.Longitude = req.Longitude
		record.DistanceMeters = &distance

		if !req.Izin {
			if !geo.IsWithinFence(center, session.RadiusMeters, point) {
				return nil, appErrors.Clone(appErrors.ErrOutsideGeofence,
					fmt.Sprintf("location is %.1f m from the room, allowed radius is %.0f m", distance, session.RadiusMeters))
			}
			record.Status = models.AttendanceStatusHadir
		}
	}

	inserted, err := s.records.Insert(ctx, record)
	if err != nil {
		return nil, appErrors.Backend(err, "failed to store check-in")
	}
	if !inserted {
		return nil, s.explainRejectedInsert(ctx, session.ID)
	}

	s.logger.Info("check-in recorded",
		zap.String("session_id", record.SessionID),
		zap.String("student_id", record.StudentID),
		zap.String("status", string(record.Status)))
	publishSessionEvent(ctx, s.publisher, s.metrics, s.logger, realtime.Event{
		Type:       realtime.EventAttendanceRecorded,
		SessionID:  session.ID,
		LecturerID: session.LecturerID,
		StudentID:  record.StudentID,
	}, realtime.SessionTopic(session.ID))
	return record, nil
}

// explainRejectedInsert tells a duplicate apart from a session that closed
// between the active check and the insert.
func (s *CheckInService) explainRejectedInsert(ctx context.Context, sessionID string) error {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.Active() {
		return appErrors.Clone(appErrors.ErrSessionClosed, "session is no longer accepting check-ins")
	}
	return appErrors.Clone(appErrors.ErrDuplicateCheckIn, "student already checked in to this session")
}

func (s *CheckInService) submittedAt(clientTime *time.Time, now time.Time) time.Time {
	if clientTime == nil || clientTime.IsZero() {
		return now
	}
	drift := now.Sub(*clientTime)
	if drift < 0 {
		drift = -drift
	}
	if drift > s.cfg.ClockSkew {
		return now
	}
	return clientTime.UTC()
}

func (s *CheckInService) ensureEnrolled(ctx context.Context, courseCode, studentID string) error {
	if s.enrollments == nil {
		return nil
	}
	total, err := s.enrollments.CountEnrolled(ctx, courseCode)
	if err != nil {
		return appErrors.Backend(err, "failed to load course roster")
	}
	if total == 0 {
		return nil
	}
	enrolled, err := s.enrollments.IsEnrolled(ctx, courseCode, studentID)
	if err != nil {
		return appErrors.Backend(err, "failed to check enrollment")
	}
	if !enrolled {
		return appErrors.Clone(appErrors.ErrForbidden, "student is not enrolled in this course")
	}
	return nil
}

// AttendanceDetail lists a session's check-ins in submission order. Only the
// owning lecturer or an admin may read them; a nil actor skips the check.
func (s *CheckInService) AttendanceDetail(ctx context.Context, sessionID string, actor *models.JWTClaims) ([]models.AttendanceRecord, error) {
	if _, err := s.loadReadable(ctx, sessionID, actor); err != nil {
		return nil, err
	}
	return s.listRecords(ctx, sessionID)
}

// Summary rolls up a session's check-ins against the course roster.
func (s *CheckInService) Summary(ctx context.Context, sessionID string, actor *models.JWTClaims) (*models.AttendanceSummary, error) {
	session, err := s.loadReadable(ctx, sessionID, actor)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, session)
}

// AuthorizeRead checks that actor may see the session's attendance.
func (s *CheckInService) AuthorizeRead(ctx context.Context, sessionID string, actor *models.JWTClaims) error {
	_, err := s.loadReadable(ctx, sessionID, actor)
	return err
}

func (s *CheckInService) loadReadable(ctx context.Context, sessionID string, actor *models.JWTClaims) (*models.Session, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if actor != nil && actor.Role != models.RoleAdmin && actor.UserID != session.LecturerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another lecturer")
	}
	return session, nil
}

// Snapshot returns the records and live counts pushed to stream subscribers.
func (s *CheckInService) Snapshot(ctx context.Context, sessionID string) (*models.AttendanceSnapshot, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	records, err := s.listRecords(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	summary, err := s.summarize(ctx, session)
	if err != nil {
		return nil, err
	}
	return &models.AttendanceSnapshot{
		SessionID: session.ID,
		Status:    session.Status,
		Records:   records,
		Summary:   *summary,
	}, nil
}

func (s *CheckInService) summarize(ctx context.Context, session *models.Session) (*models.AttendanceSummary, error) {
	closed := !session.Active()
	key := summaryCacheKey(session.ID)
	if closed && s.cache != nil {
		var cached models.AttendanceSummary
		if s.cache.Get(ctx, key, &cached) {
			return &cached, nil
		}
	}

	counts, err := s.records.CountByStatus(ctx, session.ID)
	if err != nil {
		return nil, appErrors.Backend(err, "failed to count attendance")
	}
	enrolled := 0
	if s.enrollments != nil {
		enrolled, err = s.enrollments.CountEnrolled(ctx, session.CourseCode)
		if err != nil {
			return nil, appErrors.Backend(err, "failed to load course roster")
		}
	}

	summary := rollUp(session.ID, counts, enrolled)
	if closed && s.cache != nil {
		s.cache.Set(ctx, key, summary, s.cfg.SummaryTTL)
	}
	return summary, nil
}

func (s *CheckInService) listRecords(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error) {
	records, err := s.records.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Backend(err, "failed to load attendance records")
	}
	if records == nil {
		records = []models.AttendanceRecord{}
	}
	return records, nil
}

func (s *CheckInService) loadSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Backend(err, "failed to load session")
	}
	return session, nil
}

// rollUp turns grouped counts into a summary. Percentage is hadir over the
// enrolled roster, rounded to two decimals, and zero without a roster.
func rollUp(sessionID string, counts []models.AttendanceStatusCount, enrolled int) *models.AttendanceSummary {
	summary := &models.AttendanceSummary{SessionID: sessionID, Enrolled: enrolled}
	for _, c := range counts {
		switch c.Status {
		case models.AttendanceStatusHadir:
			summary.Hadir += c.Count
		case models.AttendanceStatusIzin:
			summary.Izin += c.Count
		}
	}
	summary.Total = summary.Hadir + summary.Izin
	if enrolled > 0 {
		summary.Percentage = math.Round(float64(summary.Hadir)/float64(enrolled)*10000) / 100
	}
	return summary
}

func summaryCacheKey(sessionID string) string {
	return "attendance:summary:" + sessionID
}
