package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/presensi-api/internal/dto"
	"github.com/noah-isme/presensi-api/internal/models"
	appErrors "github.com/noah-isme/presensi-api/pkg/errors"
)

type mockRoomRepo struct {
	rooms   map[string]models.Room
	err     error
	created int
}

func (m *mockRoomRepo) List(ctx context.Context) ([]models.Room, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]models.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	return out, nil
}

func (m *mockRoomRepo) FindByID(ctx context.Context, id string) (*models.Room, error) {
	if r, ok := m.rooms[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRoomRepo) ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error) {
	for id, r := range m.rooms {
		if r.Code == code && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRoomRepo) Create(ctx context.Context, room *models.Room) error {
	if m.rooms == nil {
		m.rooms = make(map[string]models.Room)
	}
	m.created++
	room.ID = "generated"
	m.rooms[room.ID] = *room
	return nil
}

func (m *mockRoomRepo) Update(ctx context.Context, room *models.Room) error {
	m.rooms[room.ID] = *room
	return nil
}

func roomRequest(code string, radius float64) dto.RoomRequest {
	return dto.RoomRequest{Code: code, Building: "Teknik", Latitude: 5.5563, Longitude: 95.3211, RadiusMeters: radius}
}

func TestRoomServiceCreate(t *testing.T) {
	repo := &mockRoomRepo{}
	svc, err := NewRoomService(repo, nil, defaultBound, nil)
	require.NoError(t, err)

	room, err := svc.Create(context.Background(), roomRequest(" FT-101 ", 15))
	require.NoError(t, err)
	assert.Equal(t, "generated", room.ID)
	assert.Equal(t, "FT-101", room.Code)
	assert.Equal(t, 15.0, room.RadiusMeters)
}

func TestNewRoomServiceRegistersRadiusTag(t *testing.T) {
	validate := validator.New()
	_, err := NewRoomService(&mockRoomRepo{}, validate, defaultBound, nil)
	require.NoError(t, err)

	assert.NoError(t, validate.Var(15.0, "room_radius"))
	assert.Error(t, validate.Var(50.0, "room_radius"))
}

func TestRoomServiceRadiusBounds(t *testing.T) {
	repo := &mockRoomRepo{}
	svc, err := NewRoomService(repo, nil, defaultBound, nil)
	require.NoError(t, err)

	for _, radius := range []float64{0, 9.9, 20.1, 100} {
		_, err := svc.Create(context.Background(), roomRequest("FT-1", radius))
		assert.ErrorIs(t, err, appErrors.ErrValidation, "radius %v", radius)
	}
	for _, radius := range []float64{10, 20} {
		_, err := svc.Create(context.Background(), roomRequest("FT-1", radius))
		require.NoError(t, err, "radius %v", radius)
		delete(repo.rooms, "generated")
	}
	assert.Equal(t, 2, repo.created)
}

func TestRoomServiceRejectsDuplicateCode(t *testing.T) {
	repo := &mockRoomRepo{rooms: map[string]models.Room{"room-1": bandaAceh}}
	svc, err := NewRoomService(repo, nil, defaultBound, nil)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), roomRequest(bandaAceh.Code, 15))
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	assert.Zero(t, repo.created)
}

func TestRoomServiceUpdate(t *testing.T) {
	other := bandaAceh
	other.ID = "room-2"
	other.Code = "FT-202"
	repo := &mockRoomRepo{rooms: map[string]models.Room{"room-1": bandaAceh, "room-2": other}}
	svc, err := NewRoomService(repo, nil, defaultBound, nil)
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), "room-1", roomRequest(bandaAceh.Code, 12))
	require.NoError(t, err)
	assert.Equal(t, 12.0, updated.RadiusMeters)
	assert.Equal(t, 12.0, repo.rooms["room-1"].RadiusMeters)

	_, err = svc.Update(context.Background(), "room-1", roomRequest("FT-202", 12))
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = svc.Update(context.Background(), "missing", roomRequest("FT-303", 12))
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestRoomServiceGetAndList(t *testing.T) {
	repo := &mockRoomRepo{rooms: map[string]models.Room{"room-1": bandaAceh}}
	svc, err := NewRoomService(repo, nil, defaultBound, nil)
	require.NoError(t, err)

	room, err := svc.Get(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, bandaAceh.Code, room.Code)

	_, err = svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	rooms, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, rooms, 1)

	repo.err = errors.New("db down")
	_, err = svc.List(context.Background())
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestUsableGeofence(t *testing.T) {
	assert.True(t, usableGeofence(&bandaAceh, defaultBound))
	assert.False(t, usableGeofence(nil, defaultBound))

	zero := bandaAceh
	zero.RadiusMeters = 0
	assert.False(t, usableGeofence(&zero, RadiusBounds{Min: 0, Max: 20}))

	bad := bandaAceh
	bad.Latitude = 91
	assert.False(t, usableGeofence(&bad, defaultBound))
}
