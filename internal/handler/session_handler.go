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

type sessionService interface {
	StartSession(ctx context.Context, req dto.StartSessionRequest) (*models.Session, error)
	EndSession(ctx context.Context, sessionID string, actor *models.JWTClaims) (*models.Session, error)
	ActiveSession(ctx context.Context, lecturerID string) (*models.Session, error)
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	ListHistory(ctx context.Context, filter dto.SessionHistoryFilter) ([]models.Session, *models.Pagination, error)
}

// SessionHandler exposes the session lifecycle.
type SessionHandler struct {
	sessions sessionService
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(sessions sessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Start godoc
// @Summary Start a session
// @Description Closes the caller's active session, if any, and opens a new one for the course in the room.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.StartSessionRequest true "Course and room"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Start(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	req.LecturerID = claims.UserID

	session, err := h.sessions.StartSession(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// End godoc
// @Summary End a session
// @Description Idempotent: ending a closed session returns it unchanged.
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/end [post]
func (h *SessionHandler) End(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	session, err := h.sessions.EndSession(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Get godoc
// @Summary Get a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.sessions.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Active godoc
// @Summary Get a lecturer's active session
// @Tags Sessions
// @Produce json
// @Param id path string true "Lecturer ID"
// @Success 200 {object} response.Envelope
// @Router /lecturers/{id}/active-session [get]
func (h *SessionHandler) Active(c *gin.Context) {
	session, err := h.sessions.ActiveSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil, map[string]interface{}{"active": session != nil})
}

// History godoc
// @Summary List a lecturer's closed sessions
// @Tags Sessions
// @Produce json
// @Param id path string true "Lecturer ID"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /lecturers/{id}/sessions [get]
func (h *SessionHandler) History(c *gin.Context) {
	page, size := pageParams(c)
	sessions, pagination, err := h.sessions.ListHistory(c.Request.Context(), dto.SessionHistoryFilter{
		LecturerID: c.Param("id"),
		Page:       page,
		PageSize:   size,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, pagination)
}
