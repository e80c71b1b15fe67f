package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/presensi-api/internal/dto"
	"github.com/noah-isme/presensi-api/internal/models"
	appErrors "github.com/noah-isme/presensi-api/pkg/errors"
	"github.com/noah-isme/presensi-api/pkg/geo"
)

type roomRepository interface {
	List(ctx context.Context) ([]models.Room, error)
	FindByID(ctx context.Context, id string) (*models.Room, error)
	ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error)
	Create(ctx context.Context, room *models.Room) error
	Update(ctx context.Context, room *models.Room) error
}

// RadiusBounds is the inclusive range a room radius must fall in.
type RadiusBounds struct {
	Min float64
	Max float64
}

// Contains reports whether radius lies within the bounds.
func (b RadiusBounds) Contains(radius float64) bool {
	return radius >= b.Min && radius <= b.Max
}

// RoomService manages the room registry used to geofence sessions.
type RoomService struct {
	repo      roomRepository
	validator *validator.Validate
	bounds    RadiusBounds
	logger    *zap.Logger
}

// NewRoomService constructs a RoomService and registers the room_radius validation tag.
func NewRoomService(repo roomRepository, validate *validator.Validate, bounds RadiusBounds, logger *zap.Logger) (*RoomService, error) {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	err := validate.RegisterValidation("room_radius", func(fl validator.FieldLevel) bool {
		return bounds.Contains(fl.Field().Float())
	})
	if err != nil {
		return nil, fmt.Errorf("register room_radius validation: %w", err)
	}
	return &RoomService{repo: repo, validator: validate, bounds: bounds, logger: logger}, nil
}

// List returns all rooms.
func (s *RoomService) List(ctx context.Context) ([]models.Room, error) {
	rooms, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rooms")
	}
	return rooms, nil
}

// Get returns a room by id.
func (s *RoomService) Get(ctx context.Context, id string) (*models.Room, error) {
	room, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	return room, nil
}

// Create registers a room.
func (s *RoomService) Create(ctx context.Context, req dto.RoomRequest) (*models.Room, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if err := s.ensureUniqueCode(ctx, req.Code, ""); err != nil {
		return nil, err
	}

	room := &models.Room{
		Code:         strings.TrimSpace(req.Code),
		Building:     strings.TrimSpace(req.Building),
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		RadiusMeters: req.RadiusMeters,
	}
	if err := s.repo.Create(ctx, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create room")
	}
	s.logger.Info("room registered", zap.String("room_id", room.ID), zap.String("code", room.Code))
	return room, nil
}

// Update replaces a room's attributes. Sessions already started keep the geofence
// they snapshotted.
func (s *RoomService) Update(ctx context.Context, id string, req dto.RoomRequest) (*models.Room, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	room, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUniqueCode(ctx, req.Code, id); err != nil {
		return nil, err
	}

	room.Code = strings.TrimSpace(req.Code)
	room.Building = strings.TrimSpace(req.Building)
	room.Latitude = req.Latitude
	room.Longitude = req.Longitude
	room.RadiusMeters = req.RadiusMeters

	if err := s.repo.Update(ctx, room); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update room")
	}
	return room, nil
}

func (s *RoomService) validate(req dto.RoomRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
			fmt.Sprintf("invalid room payload (radius must be between %.0f and %.0f meters)", s.bounds.Min, s.bounds.Max))
	}
	if !(geo.Coordinate{Latitude: req.Latitude, Longitude: req.Longitude}).Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "invalid room coordinate")
	}
	return nil
}

func (s *RoomService) ensureUniqueCode(ctx context.Context, code, excludeID string) error {
	exists, err := s.repo.ExistsByCode(ctx, strings.TrimSpace(code), excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check room code")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "room code already registered")
	}
	return nil
}

// usableGeofence reports whether a stored room can anchor a session.
func usableGeofence(room *models.Room, bounds RadiusBounds) bool {
	if room == nil {
		return false
	}
	center := geo.Coordinate{Latitude: room.Latitude, Longitude: room.Longitude}
	return center.Valid() && room.RadiusMeters > 0 && bounds.Contains(room.RadiusMeters)
}
