package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/presensi-api/internal/models"
	appErrors "github.com/noah-isme/presensi-api/pkg/errors"
	"github.com/noah-isme/presensi-api/pkg/realtime"
)

type eventSubscriber interface {
	Subscribe(ctx context.Context, topics ...string) (*realtime.Subscription, error)
}

type activeSessionReader interface {
	ActiveSession(ctx context.Context, lecturerID string) (*models.Session, error)
}

type attendanceSnapshotReader interface {
	AuthorizeRead(ctx context.Context, sessionID string, actor *models.JWTClaims) error
	Snapshot(ctx context.Context, sessionID string) (*models.AttendanceSnapshot, error)
}

// SubscriptionService turns broker events into streams of re-queried state.
type SubscriptionService struct {
	broker     eventSubscriber
	sessions   activeSessionReader
	attendance attendanceSnapshotReader
	metrics    *MetricsService
	logger     *zap.Logger
}

// NewSubscriptionService constructs a SubscriptionService.
func NewSubscriptionService(broker eventSubscriber, sessions activeSessionReader, attendance attendanceSnapshotReader, metrics *MetricsService, logger *zap.Logger) *SubscriptionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionService{broker: broker, sessions: sessions, attendance: attendance, metrics: metrics, logger: logger}
}

// SubscribeActiveSession emits the lecturer's active session (nil when none)
// immediately and again after every lifecycle event. The channel closes when
// ctx ends or cancel is called.
func (s *SubscriptionService) SubscribeActiveSession(ctx context.Context, lecturerID string) (<-chan *models.Session, context.CancelFunc, error) {
	return stream(ctx, s, "active_session", realtime.LecturerTopic(lecturerID), func(ctx context.Context) (*models.Session, error) {
		return s.sessions.ActiveSession(ctx, lecturerID)
	})
}

// SubscribeAttendance emits the session's records and live counts immediately
// and again after every check-in or lifecycle change. The actor must own the
// session or be an admin.
func (s *SubscriptionService) SubscribeAttendance(ctx context.Context, sessionID string, actor *models.JWTClaims) (<-chan *models.AttendanceSnapshot, context.CancelFunc, error) {
	if err := s.attendance.AuthorizeRead(ctx, sessionID, actor); err != nil {
		return nil, nil, err
	}
	return stream(ctx, s, "attendance", realtime.SessionTopic(sessionID), func(ctx context.Context) (*models.AttendanceSnapshot, error) {
		return s.attendance.Snapshot(ctx, sessionID)
	})
}

// stream subscribes before the first query so no event between the two is lost.
func stream[T any](parent context.Context, s *SubscriptionService, kind, topic string, query func(context.Context) (T, error)) (<-chan T, context.CancelFunc, error) {
	ctx, cancel := context.WithCancel(parent)
	sub, err := s.broker.Subscribe(ctx, topic)
	if err != nil {
		cancel()
		return nil, nil, appErrors.Backend(err, "failed to subscribe")
	}
	initial, err := query(ctx)
	if err != nil {
		sub.Close()
		cancel()
		return nil, nil, err
	}

	out := make(chan T, 1)
	out <- initial
	release := s.metrics.StreamOpened(kind)

	go func() {
		defer close(out)
		defer release()
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.C():
				if !ok {
					return
				}
				current, err := query(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					s.logger.Warn("stream refresh failed", zap.String("topic", topic), zap.Error(err))
					continue
				}
				select {
				case out <- current:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, cancel, nil
}
