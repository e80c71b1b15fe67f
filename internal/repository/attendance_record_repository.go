package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/presensi-api/internal/models"
)

const attendanceRecordColumns = "id, session_id, student_id, latitude, longitude, distance_meters, status, note, submitted_at, created_at"

// AttendanceRecordRepository persists check-ins under their session.
type AttendanceRecordRepository struct {
	db *sqlx.DB
}

// NewAttendanceRecordRepository constructs the repository.
func NewAttendanceRecordRepository(db *sqlx.DB) *AttendanceRecordRepository {
	return &AttendanceRecordRepository{db: db}
}

// Insert stores the record while its session is still active and the student has
// not checked in yet. It reports false when either condition blocked the insert.
func (r *AttendanceRecordRepository) Insert(ctx context.Context, record *models.AttendanceRecord) (bool, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO attendance_records (id, session_id, student_id, latitude, longitude, distance_meters, status, note, submitted_at, created_at)
SELECT $1::text, $2::text, $3::text, $4::double precision, $5::double precision, $6::double precision, $7::text, $8::text, $9::timestamptz, $10::timestamptz
WHERE EXISTS (SELECT 1 FROM sessions WHERE id = $2 AND status = 'active')
ON CONFLICT (session_id, student_id) DO NOTHING RETURNING id`
	var insertedID string
	if err := r.db.QueryRowxContext(ctx, query,
		record.ID, record.SessionID, record.StudentID, record.Latitude, record.Longitude, record.DistanceMeters,
		record.Status, record.Note, record.SubmittedAt, record.CreatedAt,
	).Scan(&insertedID); err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert attendance record: %w", err)
	}
	return true, nil
}

// ListBySession returns the session's records in submission order.
func (r *AttendanceRecordRepository) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM attendance_records WHERE session_id = $1 ORDER BY submitted_at ASC, id ASC", attendanceRecordColumns)
	records := []models.AttendanceRecord{}
	if err := r.db.SelectContext(ctx, &records, query, sessionID); err != nil {
		return nil, fmt.Errorf("list attendance records: %w", err)
	}
	return records, nil
}

// CountByStatus groups the session's records by status.
func (r *AttendanceRecordRepository) CountByStatus(ctx context.Context, sessionID string) ([]models.AttendanceStatusCount, error) {
	query := "SELECT status, COUNT(*) AS count FROM attendance_records WHERE session_id = $1 GROUP BY status"
	var counts []models.AttendanceStatusCount
	if err := r.db.SelectContext(ctx, &counts, query, sessionID); err != nil {
		return nil, fmt.Errorf("count attendance records: %w", err)
	}
	return counts, nil
}
