package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/presensi-api/internal/models"
	appErrors "github.com/noah-isme/presensi-api/pkg/errors"
	"github.com/noah-isme/presensi-api/pkg/jobs"
	"github.com/noah-isme/presensi-api/pkg/realtime"
)

type recordingQueue struct {
	jobs []jobs.Job
	keys map[string]bool
}

func (q *recordingQueue) Enqueue(job jobs.Job) error {
	if q.keys == nil {
		q.keys = map[string]bool{}
	}
	if q.keys[job.Key] {
		return jobs.ErrDuplicateJob
	}
	q.keys[job.Key] = true
	q.jobs = append(q.jobs, job)
	return nil
}

func newRepairFixture(maxDuration time.Duration, seed ...models.Session) (*RepairService, *SessionService, *memSessionRepo, *recordingQueue) {
	sessions, repo, _ := newSessionFixture(seed...)
	repair := NewRepairService(repo, sessions, nil, RepairServiceConfig{SessionMaxDuration: maxDuration})
	repair.now = func() time.Time { return fixedNow }
	queue := &recordingQueue{}
	repair.AttachQueue(queue)
	return repair, sessions, repo, queue
}

func TestRepairSweepQueuesDuplicateLecturers(t *testing.T) {
	repair, _, _, queue := newRepairFixture(0,
		activeSession("s-1", "lect-1", fixedNow.Add(-2*time.Hour)),
		activeSession("s-2", "lect-1", fixedNow.Add(-time.Hour)),
		activeSession("s-3", "lect-2", fixedNow.Add(-time.Hour)),
	)

	queued, err := repair.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, queued)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, JobRepairLecturer, queue.jobs[0].Type)
	assert.Equal(t, "lect-1", queue.jobs[0].Payload)

	queued, err = repair.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, queued, "pending job is not queued twice")
}

func TestRepairSweepQueuesExpiredSessions(t *testing.T) {
	repair, _, _, queue := newRepairFixture(3*time.Hour,
		activeSession("s-stale", "lect-1", fixedNow.Add(-4*time.Hour)),
		activeSession("s-fresh", "lect-2", fixedNow.Add(-time.Hour)),
	)

	queued, err := repair.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, queued)
	assert.Equal(t, JobExpireSession, queue.jobs[0].Type)
	assert.Equal(t, "s-stale", queue.jobs[0].Payload)
}

func TestRepairSweepWithoutQueue(t *testing.T) {
	repair := NewRepairService(newMemSessionRepo(), nil, nil, RepairServiceConfig{})

	_, err := repair.Sweep(context.Background())
	assert.Error(t, err)
}

func TestRepairHandleJob(t *testing.T) {
	repair, sessions, repo, _ := newRepairFixture(time.Hour,
		activeSession("s-1", "lect-1", fixedNow.Add(-2*time.Hour)),
		activeSession("s-2", "lect-1", fixedNow.Add(-time.Hour)),
		activeSession("s-9", "lect-9", fixedNow.Add(-5*time.Hour)),
	)
	ctx := context.Background()

	require.NoError(t, repair.HandleJob(ctx, jobs.Job{ID: "j1", Type: JobRepairLecturer, Payload: "lect-1"}))
	assert.Equal(t, models.SessionStatusClosed, repo.get("s-1").Status)
	assert.Equal(t, models.SessionStatusActive, repo.get("s-2").Status)

	require.NoError(t, repair.HandleJob(ctx, jobs.Job{ID: "j2", Type: JobExpireSession, Payload: "s-9"}))
	active, err := sessions.ActiveSession(ctx, "lect-9")
	require.NoError(t, err)
	assert.Nil(t, active)

	err = repair.HandleJob(ctx, jobs.Job{ID: "j3", Type: JobExpireSession, Payload: "missing"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	assert.Error(t, repair.HandleJob(ctx, jobs.Job{ID: "j4", Type: "unknown", Payload: "x"}))
	assert.Error(t, repair.HandleJob(ctx, jobs.Job{ID: "j5", Type: JobRepairLecturer, Payload: 42}))
}

func TestRepairThroughQueueAnnouncesClosures(t *testing.T) {
	sessions, repo, pub := newSessionFixture(
		activeSession("s-1", "lect-1", fixedNow.Add(-2*time.Hour)),
		activeSession("s-2", "lect-1", fixedNow.Add(-time.Hour)),
	)
	repair := NewRepairService(repo, sessions, nil, RepairServiceConfig{})
	queue := jobs.NewQueue("session-repair", repair.HandleJob, jobs.QueueConfig{})
	queue.Start(context.Background())
	defer queue.Stop()
	repair.AttachQueue(queue)

	queued, err := repair.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, queued)

	assert.Eventually(t, func() bool {
		return repo.get("s-1").Status == models.SessionStatusClosed
	}, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return len(pub.ofType(realtime.EventSessionClosed)) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestRepairStartRejectsBadSchedule(t *testing.T) {
	repair := NewRepairService(newMemSessionRepo(), nil, nil, RepairServiceConfig{Schedule: "not a schedule"})
	assert.Error(t, repair.Start())

	repair = NewRepairService(newMemSessionRepo(), nil, nil, RepairServiceConfig{Schedule: "@every 1h"})
	require.NoError(t, repair.Start())
	repair.Stop()
}
