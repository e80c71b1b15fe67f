package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/presensi-api/internal/models"
)

const sessionColumns = "id, lecturer_id, course_code, course_name, room_id, status, latitude, longitude, radius_meters, started_at, ended_at, created_at, updated_at"

// SessionRepository persists attendance sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// FindByID fetches a session by id.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM sessions WHERE id = $1", sessionColumns)
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListActiveByLecturer returns the lecturer's active sessions, newest first.
func (r *SessionRepository) ListActiveByLecturer(ctx context.Context, lecturerID string) ([]models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE lecturer_id = $1 AND status = 'active'
ORDER BY started_at DESC, id DESC`, sessionColumns)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, lecturerID); err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return sessions, nil
}

// CloseActiveByLecturer closes every active session of the lecturer and returns them.
func (r *SessionRepository) CloseActiveByLecturer(ctx context.Context, lecturerID string, endedAt time.Time) ([]models.Session, error) {
	query := fmt.Sprintf(`UPDATE sessions SET status = 'closed', ended_at = $2, updated_at = $2
WHERE lecturer_id = $1 AND status = 'active' RETURNING %s`, sessionColumns)
	var closed []models.Session
	if err := r.db.SelectContext(ctx, &closed, query, lecturerID, endedAt); err != nil {
		return nil, fmt.Errorf("close active sessions: %w", err)
	}
	return closed, nil
}

// CloseByIDs closes the listed sessions that are still active and returns them.
func (r *SessionRepository) CloseByIDs(ctx context.Context, ids []string, endedAt time.Time) ([]models.Session, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`UPDATE sessions SET status = 'closed', ended_at = $2, updated_at = $2
WHERE id = ANY($1) AND status = 'active' RETURNING %s`, sessionColumns)
	var closed []models.Session
	if err := r.db.SelectContext(ctx, &closed, query, pq.Array(ids), endedAt); err != nil {
		return nil, fmt.Errorf("close sessions: %w", err)
	}
	return closed, nil
}

// Close transitions a single active session to closed. It returns sql.ErrNoRows
// when the session is missing or already closed.
func (r *SessionRepository) Close(ctx context.Context, id string, endedAt time.Time) (*models.Session, error) {
	query := fmt.Sprintf(`UPDATE sessions SET status = 'closed', ended_at = $2, updated_at = $2
WHERE id = $1 AND status = 'active' RETURNING %s`, sessionColumns)
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id, endedAt); err != nil {
		return nil, err
	}
	return &session, nil
}

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	now := time.Now().UTC()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = now
	}
	session.CreatedAt = now
	session.UpdatedAt = now
	query := `INSERT INTO sessions (id, lecturer_id, course_code, course_name, room_id, status, latitude, longitude, radius_meters, started_at, ended_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	if _, err := r.db.ExecContext(ctx, query,
		session.ID, session.LecturerID, session.CourseCode, session.CourseName, session.RoomID, session.Status,
		session.Latitude, session.Longitude, session.RadiusMeters, session.StartedAt, session.EndedAt,
		session.CreatedAt, session.UpdatedAt,
	); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// List returns sessions matching the filter, newest first, with the total count.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	where := "lecturer_id = $1"
	args := []interface{}{filter.LecturerID}
	if filter.Status != nil {
		where += " AND status = $2"
		args = append(args, *filter.Status)
	}
	page, size := normalizePage(filter.Page, filter.PageSize, 20, 100)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM sessions WHERE %s ORDER BY started_at DESC, id DESC LIMIT %d OFFSET %d", sessionColumns, where, size, offset)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM sessions WHERE %s", where), args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return sessions, total, nil
}

// LecturersWithDuplicateActive lists lecturers holding more than one active session.
func (r *SessionRepository) LecturersWithDuplicateActive(ctx context.Context) ([]string, error) {
	query := `SELECT lecturer_id FROM sessions WHERE status = 'active'
GROUP BY lecturer_id HAVING COUNT(*) > 1 ORDER BY lecturer_id`
	var lecturers []string
	if err := r.db.SelectContext(ctx, &lecturers, query); err != nil {
		return nil, fmt.Errorf("find duplicate active sessions: %w", err)
	}
	return lecturers, nil
}

// ListActiveStartedBefore returns active sessions opened before the cutoff.
func (r *SessionRepository) ListActiveStartedBefore(ctx context.Context, cutoff time.Time) ([]models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM sessions WHERE status = 'active' AND started_at < $1 ORDER BY started_at ASC", sessionColumns)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, cutoff); err != nil {
		return nil, fmt.Errorf("list stale sessions: %w", err)
	}
	return sessions, nil
}
