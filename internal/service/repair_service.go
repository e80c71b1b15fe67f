package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/presensi-api/internal/models"
	"github.com/noah-isme/presensi-api/pkg/jobs"
)

// Job types handled by the repair queue.
const (
	JobRepairLecturer = "repair_lecturer"
	JobExpireSession  = "expire_session"
)

type staleSessionFinder interface {
	LecturersWithDuplicateActive(ctx context.Context) ([]string, error)
	ListActiveStartedBefore(ctx context.Context, cutoff time.Time) ([]models.Session, error)
}

type sessionRepairer interface {
	RepairLecturer(ctx context.Context, lecturerID string) ([]models.Session, error)
	Expire(ctx context.Context, sessionID string) (*models.Session, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// RepairServiceConfig tunes the periodic sweep.
type RepairServiceConfig struct {
	Schedule           string
	SessionMaxDuration time.Duration
	SweepTimeout       time.Duration
}

// RepairService finds lecturers with more than one active session, and sessions
// left open too long, and hands them to the job queue.
type RepairService struct {
	finder   staleSessionFinder
	sessions sessionRepairer
	queue    jobEnqueuer
	logger   *zap.Logger
	cfg      RepairServiceConfig
	now      func() time.Time
	cron     *cron.Cron
}

// NewRepairService constructs a RepairService. The queue may be attached later
// with AttachQueue since the queue handler is the service itself.
func NewRepairService(finder staleSessionFinder, sessions sessionRepairer, logger *zap.Logger, cfg RepairServiceConfig) *RepairService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	if cfg.SweepTimeout <= 0 {
		cfg.SweepTimeout = 30 * time.Second
	}
	return &RepairService{finder: finder, sessions: sessions, logger: logger, cfg: cfg, now: time.Now}
}

// AttachQueue sets the queue jobs are dispatched to.
func (s *RepairService) AttachQueue(queue jobEnqueuer) {
	s.queue = queue
}

// Sweep enqueues repair and expiry jobs. It returns the number of jobs queued.
func (s *RepairService) Sweep(ctx context.Context) (int, error) {
	if s.queue == nil {
		return 0, errors.New("repair queue not attached")
	}
	lecturers, err := s.finder.LecturersWithDuplicateActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("find duplicate active sessions: %w", err)
	}
	queued := 0
	for _, lecturerID := range lecturers {
		if s.enqueue(jobs.Job{ID: JobRepairLecturer + ":" + lecturerID, Type: JobRepairLecturer, Key: "lecturer:" + lecturerID, Payload: lecturerID}) {
			queued++
		}
	}

	if s.cfg.SessionMaxDuration > 0 {
		cutoff := s.now().UTC().Add(-s.cfg.SessionMaxDuration)
		stale, err := s.finder.ListActiveStartedBefore(ctx, cutoff)
		if err != nil {
			return queued, fmt.Errorf("find expired sessions: %w", err)
		}
		for _, session := range stale {
			if s.enqueue(jobs.Job{ID: JobExpireSession + ":" + session.ID, Type: JobExpireSession, Key: "session:" + session.ID, Payload: session.ID}) {
				queued++
			}
		}
	}
	if queued > 0 {
		s.logger.Info("repair sweep queued jobs", zap.Int("jobs", queued))
	}
	return queued, nil
}

func (s *RepairService) enqueue(job jobs.Job) bool {
	if err := s.queue.Enqueue(job); err != nil {
		if !errors.Is(err, jobs.ErrDuplicateJob) {
			s.logger.Warn("failed to enqueue repair job", zap.String("job_id", job.ID), zap.Error(err))
		}
		return false
	}
	return true
}

// HandleJob is the queue handler for repair and expiry jobs.
func (s *RepairService) HandleJob(ctx context.Context, job jobs.Job) error {
	target, ok := job.Payload.(string)
	if !ok || target == "" {
		return fmt.Errorf("job %s: payload must be a non-empty id", job.ID)
	}
	switch job.Type {
	case JobRepairLecturer:
		closed, err := s.sessions.RepairLecturer(ctx, target)
		if err != nil {
			return err
		}
		s.logger.Info("repaired lecturer sessions", zap.String("lecturer_id", target), zap.Int("closed", len(closed)))
		return nil
	case JobExpireSession:
		session, err := s.sessions.Expire(ctx, target)
		if err != nil {
			return err
		}
		s.logger.Info("expired session", zap.String("session_id", session.ID), zap.Time("started_at", session.StartedAt))
		return nil
	default:
		return fmt.Errorf("job %s: unknown type %q", job.ID, job.Type)
	}
}

// Start schedules the sweep on cron. Overlapping runs are skipped.
func (s *RepairService) Start() error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(s.cfg.Schedule, s.runScheduled); err != nil {
		return fmt.Errorf("schedule repair sweep %q: %w", s.cfg.Schedule, err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("repair sweep scheduled",
		zap.String("schedule", s.cfg.Schedule),
		zap.Duration("session_max_duration", s.cfg.SessionMaxDuration))
	return nil
}

// Stop halts the schedule and waits for a running sweep.
func (s *RepairService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

func (s *RepairService) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SweepTimeout)
	defer cancel()
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("repair sweep failed", zap.Error(err))
	}
}
