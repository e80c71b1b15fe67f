package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/presensi-api/internal/models"
)

func TestAttendanceRecordRepositoryInsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRecordRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (session_id, student_id) DO NOTHING RETURNING id")).
		WithArgs(sqlmock.AnyArg(), "s-1", "stu-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			models.AttendanceStatusHadir, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("rec-1"))

	record := &models.AttendanceRecord{SessionID: "s-1", StudentID: "stu-1", Status: models.AttendanceStatusHadir, SubmittedAt: time.Now()}
	inserted, err := repo.Insert(context.Background(), record)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEmpty(t, record.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRecordRepositoryInsertDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRecordRepository(db)

	mock.ExpectQuery("INSERT INTO attendance_records").
		WillReturnError(sql.ErrNoRows)

	inserted, err := repo.Insert(context.Background(), &models.AttendanceRecord{SessionID: "s-1", StudentID: "stu-1", Status: models.AttendanceStatusIzin})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRecordRepositoryListAndCount(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRecordRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "session_id", "student_id", "latitude", "longitude", "distance_meters", "status", "note", "submitted_at", "created_at"}).
		AddRow("rec-1", "s-1", "stu-1", 5.5563, 95.3211, 3.2, "hadir", nil, now, now).
		AddRow("rec-2", "s-1", "stu-2", nil, nil, nil, "izin", "sakit", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_records WHERE session_id = $1 ORDER BY submitted_at ASC")).
		WithArgs("s-1").
		WillReturnRows(rows)

	records, err := repo.ListBySession(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Nil(t, records[1].Latitude)
	require.NotNil(t, records[1].Note)
	assert.Equal(t, "sakit", *records[1].Note)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS count FROM attendance_records WHERE session_id = $1 GROUP BY status")).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).AddRow("hadir", 1).AddRow("izin", 1))

	counts, err := repo.CountByStatus(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Len(t, counts, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRecordRepositoryInsertGuardsActiveSession(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRecordRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE EXISTS (SELECT 1 FROM sessions WHERE id = $2 AND status = 'active')")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	inserted, err := repo.Insert(context.Background(), &models.AttendanceRecord{SessionID: "s-closed", StudentID: "stu-1", Status: models.AttendanceStatusHadir})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
