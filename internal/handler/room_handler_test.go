package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/presensi-api/internal/dto"
	"github.com/noah-isme/presensi-api/internal/models"
	appErrors "github.com/noah-isme/presensi-api/pkg/errors"
)

type fakeRoomSrv struct {
	lastID  string
	lastReq dto.RoomRequest
	err     error
}

func (f *fakeRoomSrv) List(context.Context) ([]models.Room, error) {
	return []models.Room{{ID: "room-1"}}, f.err
}

func (f *fakeRoomSrv) Get(_ context.Context, id string) (*models.Room, error) {
	f.lastID = id
	if f.err != nil {
		return nil, f.err
	}
	return &models.Room{ID: id}, nil
}

func (f *fakeRoomSrv) Create(_ context.Context, req dto.RoomRequest) (*models.Room, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Room{ID: "room-1", Code: req.Code}, nil
}

func (f *fakeRoomSrv) Update(_ context.Context, id string, req dto.RoomRequest) (*models.Room, error) {
	f.lastID = id
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Room{ID: id, Code: req.Code}, nil
}

func TestRoomHandlerCreate(t *testing.T) {
	srv := &fakeRoomSrv{}
	handler := NewRoomHandler(srv)

	c, rec := newTestContext(http.MethodPost, "/rooms", `{"code":"FT-101","building":"Teknik","latitude":5.5563,"longitude":95.3211,"radiusMeters":20}`, nil)
	handler.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 20.0, srv.lastReq.RadiusMeters)
}

func TestRoomHandlerCreateValidationFailure(t *testing.T) {
	handler := NewRoomHandler(&fakeRoomSrv{err: appErrors.Clone(appErrors.ErrValidation, "invalid room payload")})

	c, rec := newTestContext(http.MethodPost, "/rooms", `{"code":"FT-101","radiusMeters":50}`, nil)
	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeEnvelope(t, rec).Error.Code)
}

func TestRoomHandlerUpdateAndGet(t *testing.T) {
	srv := &fakeRoomSrv{}
	handler := NewRoomHandler(srv)

	c, rec := newTestContext(http.MethodPut, "/rooms/room-7", `{"code":"FT-707","building":"Teknik","latitude":5.5,"longitude":95.3,"radiusMeters":15}`, nil)
	c.Params = gin.Params{{Key: "id", Value: "room-7"}}
	handler.Update(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "room-7", srv.lastID)

	srv.err = appErrors.Clone(appErrors.ErrNotFound, "room not found")
	c, rec = newTestContext(http.MethodGet, "/rooms/nope", "", nil)
	c.Params = gin.Params{{Key: "id", Value: "nope"}}
	handler.Get(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
