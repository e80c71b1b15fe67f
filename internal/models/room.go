package models

import "time"

// Room is a registered physical space with a geofence.
type Room struct {
	ID           string    `db:"id" json:"id"`
	Code         string    `db:"code" json:"code"`
	Building     string    `db:"building" json:"building"`
	Latitude     float64   `db:"latitude" json:"latitude"`
	Longitude    float64   `db:"longitude" json:"longitude"`
	RadiusMeters float64   `db:"radius_meters" json:"radius_meters"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
