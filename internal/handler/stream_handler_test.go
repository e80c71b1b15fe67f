package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/presensi-api/internal/models"
	appErrors "github.com/noah-isme/presensi-api/pkg/errors"
)

type fakeStreamSrv struct {
	active    chan *models.Session
	cancelled chan struct{}
	err       error
}

func newFakeStreamSrv() *fakeStreamSrv {
	return &fakeStreamSrv{active: make(chan *models.Session, 4), cancelled: make(chan struct{})}
}

func (f *fakeStreamSrv) SubscribeActiveSession(ctx context.Context, _ string) (<-chan *models.Session, context.CancelFunc, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan *models.Session)
	go func() {
		defer close(out)
		defer close(f.cancelled)
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-f.active:
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, cancel, nil
}

func (f *fakeStreamSrv) SubscribeAttendance(context.Context, string, *models.JWTClaims) (<-chan *models.AttendanceSnapshot, context.CancelFunc, error) {
	return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
}

func newStreamServer(t *testing.T, srv *fakeStreamSrv) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	handler := NewStreamHandler(srv, []string{"https://dashboard.example"}, time.Minute, nil)
	router := gin.New()
	router.GET("/stream/lecturers/:id/active-session", handler.ActiveSession)
	router.GET("/stream/sessions/:id/attendance", handler.Attendance)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + path
}

func TestStreamHandlerPushesUpdates(t *testing.T) {
	srv := newFakeStreamSrv()
	server := newStreamServer(t, srv)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/stream/lecturers/lect-1/active-session"), nil)
	require.NoError(t, err)

	srv.active <- nil
	srv.active <- &models.Session{ID: "s-1", Status: models.SessionStatusActive}

	var first, second struct {
		Type string          `json:"type"`
		Data *models.Session `json:"data"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, StreamActiveSession, first.Type)
	assert.Nil(t, first.Data)
	require.NotNil(t, second.Data)
	assert.Equal(t, "s-1", second.Data.ID)

	require.NoError(t, conn.Close())
	select {
	case <-srv.cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not cancelled after client disconnect")
	}
}

func TestStreamHandlerSubscribeErrorIsJSON(t *testing.T) {
	server := newStreamServer(t, newFakeStreamSrv())

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "/stream/sessions/missing/attendance"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamHandlerRejectsUnknownOrigin(t *testing.T) {
	server := newStreamServer(t, newFakeStreamSrv())

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "/stream/lecturers/lect-1/active-session"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
