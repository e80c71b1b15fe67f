package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/presensi-api/internal/dto"
	"github.com/noah-isme/presensi-api/internal/models"
	appErrors "github.com/noah-isme/presensi-api/pkg/errors"
)

var studentClaims = &models.JWTClaims{UserID: "mhs-1", Role: models.RoleStudent}

type fakeCheckInSrv struct {
	lastReq   dto.CheckInRequest
	lastActor *models.JWTClaims
	record    *models.AttendanceRecord
	records   []models.AttendanceRecord
	summary   *models.AttendanceSummary
	err       error
}

func (f *fakeCheckInSrv) SubmitCheckIn(_ context.Context, req dto.CheckInRequest) (*models.AttendanceRecord, error) {
	f.lastReq = req
	return f.record, f.err
}

func (f *fakeCheckInSrv) AttendanceDetail(_ context.Context, _ string, actor *models.JWTClaims) ([]models.AttendanceRecord, error) {
	f.lastActor = actor
	return f.records, f.err
}

func (f *fakeCheckInSrv) Summary(_ context.Context, _ string, actor *models.JWTClaims) (*models.AttendanceSummary, error) {
	f.lastActor = actor
	return f.summary, f.err
}

func TestCheckInHandlerSubmitBindsPathAndCaller(t *testing.T) {
	srv := &fakeCheckInSrv{record: &models.AttendanceRecord{ID: "r-1", Status: models.AttendanceStatusHadir}}
	handler := NewCheckInHandler(srv)

	body := `{"latitude":5.5563,"longitude":95.3211,"sessionId":"ignored","studentId":"mhs-9"}`
	c, rec := newTestContext(http.MethodPost, "/sessions/s-1/check-ins", body, studentClaims)
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	handler.Submit(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "s-1", srv.lastReq.SessionID)
	assert.Equal(t, "mhs-1", srv.lastReq.StudentID)
	require.NotNil(t, srv.lastReq.Latitude)
	assert.Equal(t, 5.5563, *srv.lastReq.Latitude)
}

func TestCheckInHandlerSubmitErrorStatuses(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
		code   string
	}{
		"outside":   {appErrors.ErrOutsideGeofence, http.StatusUnprocessableEntity, "OUTSIDE_GEOFENCE"},
		"duplicate": {appErrors.ErrDuplicateCheckIn, http.StatusConflict, "DUPLICATE_CHECK_IN"},
		"closed":    {appErrors.ErrSessionClosed, http.StatusConflict, "SESSION_CLOSED"},
		"missing":   {appErrors.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			handler := NewCheckInHandler(&fakeCheckInSrv{err: tc.err})
			c, rec := newTestContext(http.MethodPost, "/sessions/s-1/check-ins", `{"izin":true}`, studentClaims)
			c.Params = gin.Params{{Key: "id", Value: "s-1"}}
			handler.Submit(c)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decodeEnvelope(t, rec).Error.Code)
		})
	}
}

func TestCheckInHandlerDetailCountsRecords(t *testing.T) {
	handler := NewCheckInHandler(&fakeCheckInSrv{records: []models.AttendanceRecord{{ID: "r-1"}, {ID: "r-2"}}})

	c, rec := newTestContext(http.MethodGet, "/sessions/s-1/attendance", "", lecturerClaims)
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	handler.Detail(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, float64(2), env.Meta["count"])
}

func TestCheckInHandlerSummary(t *testing.T) {
	handler := NewCheckInHandler(&fakeCheckInSrv{summary: &models.AttendanceSummary{SessionID: "s-1", Hadir: 2, Enrolled: 4, Percentage: 50}})

	c, rec := newTestContext(http.MethodGet, "/sessions/s-1/summary", "", lecturerClaims)
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	handler.Summary(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var summary models.AttendanceSummary
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &summary))
	assert.Equal(t, 50.0, summary.Percentage)
}

func TestCheckInHandlerDetailForwardsCallerAndForbidden(t *testing.T) {
	srv := &fakeCheckInSrv{err: appErrors.Clone(appErrors.ErrForbidden, "session belongs to another lecturer")}
	handler := NewCheckInHandler(srv)

	c, rec := newTestContext(http.MethodGet, "/sessions/s-1/attendance", "", lecturerClaims)
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	handler.Detail(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decodeEnvelope(t, rec).Error.Code)
	assert.Same(t, lecturerClaims, srv.lastActor)
}
