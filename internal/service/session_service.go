package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/presensi-api/internal/dto"
	"github.com/noah-isme/presensi-api/internal/models"
	appErrors "github.com/noah-isme/presensi-api/pkg/errors"
	"github.com/noah-isme/presensi-api/pkg/realtime"
)

type sessionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
	ListActiveByLecturer(ctx context.Context, lecturerID string) ([]models.Session, error)
	CloseActiveByLecturer(ctx context.Context, lecturerID string, endedAt time.Time) ([]models.Session, error)
	CloseByIDs(ctx context.Context, ids []string, endedAt time.Time) ([]models.Session, error)
	Close(ctx context.Context, id string, endedAt time.Time) (*models.Session, error)
	Create(ctx context.Context, session *models.Session) error
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error)
}

type roomReader interface {
	FindByID(ctx context.Context, id string) (*models.Room, error)
}

type courseReader interface {
	FindByCode(ctx context.Context, code string) (*models.Course, error)
}

// EventPublisher pushes lifecycle events to realtime subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event realtime.Event) error
}

// Reasons a session leaves the active state, used for metrics and logs.
const (
	closeReasonEnded      = "ended"
	closeReasonSuperseded = "superseded"
	closeReasonRepaired   = "repaired"
	closeReasonExpired    = "expired"
)

// SessionServiceParams groups constructor dependencies.
type SessionServiceParams struct {
	Sessions  sessionRepository
	Rooms     roomReader
	Courses   courseReader
	Publisher EventPublisher
	Metrics   *MetricsService
	Bounds    RadiusBounds
	Validator *validator.Validate
	Logger    *zap.Logger
}

// SessionService owns the session lifecycle and keeps at most one active
// session per lecturer.
type SessionService struct {
	sessions  sessionRepository
	rooms     roomReader
	courses   courseReader
	publisher EventPublisher
	metrics   *MetricsService
	bounds    RadiusBounds
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(params SessionServiceParams) *SessionService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessions:  params.Sessions,
		rooms:     params.Rooms,
		courses:   params.Courses,
		publisher: params.Publisher,
		metrics:   params.Metrics,
		bounds:    params.Bounds,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// StartSession closes the lecturer's open sessions and opens a new one
// anchored on the room's geofence.
func (s *SessionService) StartSession(ctx context.Context, req dto.StartSessionRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	lecturerID := strings.TrimSpace(req.LecturerID)

	room, err := s.rooms.FindByID(ctx, strings.TrimSpace(req.RoomID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConfiguration, "room is not registered")
		}
		return nil, appErrors.Backend(err, "failed to load room")
	}
	if !usableGeofence(room, s.bounds) {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "room has no usable coordinate or radius")
	}

	course, err := s.courses.FindByCode(ctx, strings.TrimSpace(req.CourseCode))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConfiguration, "course does not exist")
		}
		return nil, appErrors.Backend(err, "failed to load course")
	}
	if course.LecturerID != lecturerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course is taught by another lecturer")
	}

	now := s.now().UTC()
	superseded, err := s.sessions.CloseActiveByLecturer(ctx, lecturerID, now)
	if err != nil {
		return nil, appErrors.Backend(err, "failed to close previous sessions")
	}
	s.announceClosed(ctx, superseded, closeReasonSuperseded)

	session := &models.Session{
		ID:           uuid.NewString(),
		LecturerID:   lecturerID,
		CourseCode:   course.Code,
		CourseName:   course.Name,
		RoomID:       room.ID,
		Status:       models.SessionStatusActive,
		Latitude:     room.Latitude,
		Longitude:    room.Longitude,
		RadiusMeters: room.RadiusMeters,
		StartedAt:    now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		if len(superseded) > 0 {
			s.logger.Error("session create failed after closing previous sessions",
				zap.String("lecturer_id", lecturerID), zap.Int("closed", len(superseded)), zap.Error(err))
		}
		return nil, appErrors.Backend(err, "failed to create session")
	}
	s.metrics.SessionStarted()
	s.publish(ctx, realtime.EventSessionStarted, session)
	s.logger.Info("session started",
		zap.String("session_id", session.ID),
		zap.String("lecturer_id", lecturerID),
		zap.String("course", session.CourseCode),
		zap.String("room_id", session.RoomID))

	kept, _, err := s.repair(ctx, lecturerID)
	if err != nil {
		s.logger.Warn("post-start repair failed", zap.String("lecturer_id", lecturerID), zap.Error(err))
		return session, nil
	}
	// a concurrent start may have closed this row directly, not only via repair
	if kept == nil || kept.ID != session.ID {
		return nil, appErrors.Clone(appErrors.ErrConflict, "session was superseded by a concurrent start")
	}
	return session, nil
}

// EndSession closes a session. Ending an already closed session succeeds without
// publishing again. A nil actor skips the ownership check.
func (s *SessionService) EndSession(ctx context.Context, sessionID string, actor *models.JWTClaims) (*models.Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if actor != nil && actor.Role != models.RoleAdmin && actor.UserID != session.LecturerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another lecturer")
	}
	return s.close(ctx, session, closeReasonEnded)
}

// Expire closes a session that outlived the configured maximum duration.
func (s *SessionService) Expire(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.close(ctx, session, closeReasonExpired)
}

func (s *SessionService) close(ctx context.Context, session *models.Session, reason string) (*models.Session, error) {
	if !session.Active() {
		return session, nil
	}
	closed, err := s.sessions.Close(ctx, session.ID, s.now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// closed concurrently; report the stored state
			return s.GetSession(ctx, session.ID)
		}
		return nil, appErrors.Backend(err, "failed to close session")
	}
	s.announceClosed(ctx, []models.Session{*closed}, reason)
	return closed, nil
}

// ActiveSession returns the lecturer's active session, or nil when there is none.
func (s *SessionService) ActiveSession(ctx context.Context, lecturerID string) (*models.Session, error) {
	active, err := s.sessions.ListActiveByLecturer(ctx, lecturerID)
	if err != nil {
		return nil, appErrors.Backend(err, "failed to load active session")
	}
	if len(active) == 0 {
		return nil, nil
	}
	session := active[0]
	return &session, nil
}

// GetSession returns a session by id.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Backend(err, "failed to load session")
	}
	return session, nil
}

// ListHistory pages through a lecturer's closed sessions, newest first.
func (s *SessionService) ListHistory(ctx context.Context, filter dto.SessionHistoryFilter) ([]models.Session, *models.Pagination, error) {
	closed := models.SessionStatusClosed
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	sessions, total, err := s.sessions.List(ctx, models.SessionFilter{
		LecturerID: filter.LecturerID,
		Status:     &closed,
		Page:       page,
		PageSize:   size,
	})
	if err != nil {
		return nil, nil, appErrors.Backend(err, "failed to list session history")
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	return sessions, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// RepairLecturer keeps the lecturer's newest active session and closes the rest.
// It returns the sessions it closed.
func (s *SessionService) RepairLecturer(ctx context.Context, lecturerID string) ([]models.Session, error) {
	_, closed, err := s.repair(ctx, lecturerID)
	return closed, err
}

// repair returns the surviving active session (nil when none) and the closed extras.
func (s *SessionService) repair(ctx context.Context, lecturerID string) (*models.Session, []models.Session, error) {
	active, err := s.sessions.ListActiveByLecturer(ctx, lecturerID)
	if err != nil {
		return nil, nil, appErrors.Backend(err, "failed to load active sessions")
	}
	if len(active) == 0 {
		return nil, nil, nil
	}
	kept := &active[0]
	if len(active) == 1 {
		return kept, nil, nil
	}
	ids := make([]string, 0, len(active)-1)
	for _, extra := range active[1:] {
		ids = append(ids, extra.ID)
	}
	closed, err := s.sessions.CloseByIDs(ctx, ids, s.now().UTC())
	if err != nil {
		return nil, nil, appErrors.Backend(err, "failed to close duplicate sessions")
	}
	s.logger.Warn("closed duplicate active sessions",
		zap.String("lecturer_id", lecturerID),
		zap.String("kept", kept.ID),
		zap.Int("closed", len(closed)))
	s.announceClosed(ctx, closed, closeReasonRepaired)
	return kept, closed, nil
}

func (s *SessionService) announceClosed(ctx context.Context, sessions []models.Session, reason string) {
	s.metrics.SessionsClosed(reason, len(sessions))
	for i := range sessions {
		s.publish(ctx, realtime.EventSessionClosed, &sessions[i])
	}
}

func (s *SessionService) publish(ctx context.Context, eventType string, session *models.Session) {
	publishSessionEvent(ctx, s.publisher, s.metrics, s.logger, realtime.Event{
		Type:       eventType,
		SessionID:  session.ID,
		LecturerID: session.LecturerID,
	}, realtime.LecturerTopic(session.LecturerID), realtime.SessionTopic(session.ID))
}

// publishSessionEvent fans the event out to each topic. Failures are logged and
// counted; the write that triggered the event has already succeeded.
func publishSessionEvent(ctx context.Context, publisher EventPublisher, metrics *MetricsService, logger *zap.Logger, event realtime.Event, topics ...string) {
	if publisher == nil {
		return
	}
	for _, topic := range topics {
		event.Topic = topic
		if err := publisher.Publish(ctx, event); err != nil {
			metrics.EventPublishFailed()
			logger.Warn("publish event failed",
				zap.String("type", event.Type),
				zap.String("topic", topic),
				zap.Error(err))
		}
	}
}
