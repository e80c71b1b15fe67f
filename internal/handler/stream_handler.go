package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/presensi-api/internal/models"
	"github.com/noah-isme/presensi-api/pkg/response"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Clients only send control frames.
	maxMessageSize = 512
)

// Stream message types.
const (
	StreamActiveSession = "active_session"
	StreamAttendance    = "attendance"
)

type streamService interface {
	SubscribeActiveSession(ctx context.Context, lecturerID string) (<-chan *models.Session, context.CancelFunc, error)
	SubscribeAttendance(ctx context.Context, sessionID string, actor *models.JWTClaims) (<-chan *models.AttendanceSnapshot, context.CancelFunc, error)
}

type streamMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	At   time.Time   `json:"at"`
}

// StreamHandler pushes active session and attendance updates over WebSocket.
type StreamHandler struct {
	streams    streamService
	upgrader   websocket.Upgrader
	pingPeriod time.Duration
	pongWait   time.Duration
	logger     *zap.Logger
}

// NewStreamHandler constructs a StreamHandler. An empty origin list accepts any origin.
func NewStreamHandler(streams streamService, allowedOrigins []string, pingInterval time.Duration, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	return &StreamHandler{
		streams: streams,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if len(origins) == 0 || origin == "" {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
		},
		pingPeriod: pingInterval,
		pongWait:   pingInterval + pingInterval/2,
		logger:     logger,
	}
}

// ActiveSession godoc
// @Summary Stream a lecturer's active session
// @Description Upgrades to WebSocket. Sends the active session (or null) immediately and after every change.
// @Tags Streams
// @Param id path string true "Lecturer ID"
// @Param access_token query string false "Bearer token for clients that cannot set headers"
// @Success 101
// @Router /stream/lecturers/{id}/active-session [get]
func (h *StreamHandler) ActiveSession(c *gin.Context) {
	updates, cancel, err := h.streams.SubscribeActiveSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveStream(h, c, StreamActiveSession, updates, cancel)
}

// Attendance godoc
// @Summary Stream a session's attendance
// @Description Upgrades to WebSocket. Sends records and live counts immediately and after every check-in.
// @Tags Streams
// @Param id path string true "Session ID"
// @Param access_token query string false "Bearer token for clients that cannot set headers"
// @Success 101
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /stream/sessions/{id}/attendance [get]
func (h *StreamHandler) Attendance(c *gin.Context) {
	updates, cancel, err := h.streams.SubscribeAttendance(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveStream(h, c, StreamAttendance, updates, cancel)
}

func serveStream[T any](h *StreamHandler, c *gin.Context, kind string, updates <-chan T, cancel context.CancelFunc) {
	defer cancel()
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("stream", kind), zap.Error(err))
		return
	}
	defer conn.Close()

	go h.readPump(conn, cancel)
	writePump(h, conn, kind, updates)
}

// readPump discards client frames and ends the stream when the peer goes away
// or stops answering pings.
func (h *StreamHandler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
	}
}

// writePump forwards updates as JSON frames and keeps the connection alive
// with pings. It returns when the subscription ends or a write fails.
func writePump[T any](h *StreamHandler, conn *websocket.Conn, kind string, updates <-chan T) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case update, ok := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(streamMessage{Type: kind, Data: update, At: time.Now().UTC()}); err != nil {
				h.logger.Debug("websocket write failed", zap.String("stream", kind), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
