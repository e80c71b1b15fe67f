package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var banda = Coordinate{Latitude: 5.5563, Longitude: 95.3211}

func TestDistanceIdenticalPoints(t *testing.T) {
	assert.Zero(t, Distance(banda, banda))
	assert.True(t, IsWithinFence(banda, 10, banda))
}

func TestDistanceKnownPair(t *testing.T) {
	// one degree of latitude is ~111.2 km on the mean sphere
	d := Distance(Coordinate{Latitude: 0, Longitude: 0}, Coordinate{Latitude: 1, Longitude: 0})
	assert.InDelta(t, 111195, d, 5)
}

func TestDistanceSymmetric(t *testing.T) {
	other := Coordinate{Latitude: -6.2, Longitude: 106.8}
	assert.InDelta(t, Distance(banda, other), Distance(other, banda), 1e-6)
}

func TestOffsetRoundTrip(t *testing.T) {
	for _, bearing := range []float64{0, 45, 90, 180, 270, 333} {
		for _, meters := range []float64{1, 5, 19.5, 50, 250} {
			p := Offset(banda, meters, bearing)
			assert.InDelta(t, meters, Distance(banda, p), 0.01, "bearing %v meters %v", bearing, meters)
		}
	}
}

func TestIsWithinFenceMatchesDistance(t *testing.T) {
	radius := 20.0
	for _, bearing := range []float64{0, 90, 200} {
		for _, meters := range []float64{0, 5, 19.9, 20.1, 50} {
			p := Offset(banda, meters, bearing)
			want := Distance(banda, p) <= radius
			assert.Equal(t, want, IsWithinFence(banda, radius, p), "bearing %v meters %v", bearing, meters)
		}
	}
}

func TestScenarioRoomTwentyMeters(t *testing.T) {
	assert.True(t, IsWithinFence(banda, 20, Offset(banda, 5, 30)))
	assert.False(t, IsWithinFence(banda, 20, Offset(banda, 50, 30)))
}

func TestCoordinateValid(t *testing.T) {
	assert.True(t, banda.Valid())
	assert.True(t, Coordinate{Latitude: -90, Longitude: 180}.Valid())
	assert.False(t, Coordinate{Latitude: 91, Longitude: 0}.Valid())
	assert.False(t, Coordinate{Latitude: 0, Longitude: -181}.Valid())
	assert.False(t, Coordinate{Latitude: math.NaN(), Longitude: 0}.Valid())
}

func TestDistanceAntipodal(t *testing.T) {
	d := Distance(Coordinate{Latitude: 0, Longitude: 0}, Coordinate{Latitude: 0, Longitude: 180})
	require.False(t, math.IsNaN(d))
	assert.InDelta(t, math.Pi*EarthRadiusMeters, d, 1)
}
