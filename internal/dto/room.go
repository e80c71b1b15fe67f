package dto

// RoomRequest defines the payload for registering or updating a room.
type RoomRequest struct {
	Code         string  `json:"code" validate:"required,max=32"`
	Building     string  `json:"building" validate:"required,max=128"`
	Latitude     float64 `json:"latitude" validate:"latitude"`
	Longitude    float64 `json:"longitude" validate:"longitude"`
	RadiusMeters float64 `json:"radiusMeters" validate:"room_radius"`
}
