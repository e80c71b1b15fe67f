package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/presensi-api/internal/dto"
	"github.com/noah-isme/presensi-api/internal/models"
	appErrors "github.com/noah-isme/presensi-api/pkg/errors"
	"github.com/noah-isme/presensi-api/pkg/response"
)

type checkInService interface {
	SubmitCheckIn(ctx context.Context, req dto.CheckInRequest) (*models.AttendanceRecord, error)
	AttendanceDetail(ctx context.Context, sessionID string, actor *models.JWTClaims) ([]models.AttendanceRecord, error)
	Summary(ctx context.Context, sessionID string, actor *models.JWTClaims) (*models.AttendanceSummary, error)
}

// CheckInHandler exposes check-in submission and attendance read models.
type CheckInHandler struct {
	checkIns checkInService
}

// NewCheckInHandler constructs a CheckInHandler.
func NewCheckInHandler(checkIns checkInService) *CheckInHandler {
	return &CheckInHandler{checkIns: checkIns}
}

// Submit godoc
// @Summary Check in to a session
// @Description Records hadir when the coordinate is inside the room radius, or izin when requested.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.CheckInRequest true "Check-in payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /sessions/{id}/check-ins [post]
func (h *CheckInHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid check-in payload"))
		return
	}
	req.SessionID = c.Param("id")
	req.StudentID = claims.UserID

	record, err := h.checkIns.SubmitCheckIn(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// Detail godoc
// @Summary List a session's check-ins
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/attendance [get]
func (h *CheckInHandler) Detail(c *gin.Context) {
	records, err := h.checkIns.AttendanceDetail(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil, map[string]interface{}{"count": len(records)})
}

// Summary godoc
// @Summary Roll up a session's attendance
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /sessions/{id}/summary [get]
func (h *CheckInHandler) Summary(c *gin.Context) {
	summary, err := h.checkIns.Summary(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
