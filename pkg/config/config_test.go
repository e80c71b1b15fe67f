package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestFromViperDefaults(t *testing.T) {
	cfg, err := fromViper(newTestViper())
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 10.0, cfg.Rooms.RadiusMin)
	assert.Equal(t, 20.0, cfg.Rooms.RadiusMax)
	assert.Equal(t, 5*time.Minute, cfg.CheckIn.ClockSkew)
	assert.Equal(t, RealtimeMemory, cfg.Realtime.Backend)
	assert.Equal(t, "@every 1m", cfg.Repair.Schedule)
	assert.Zero(t, cfg.Repair.SessionMaxDuration)
}

func TestFromViperRejectsInvertedRadiusBounds(t *testing.T) {
	v := newTestViper()
	v.Set("ROOM_RADIUS_MIN", 30)
	v.Set("ROOM_RADIUS_MAX", 20)

	_, err := fromViper(v)
	require.Error(t, err)
}

func TestFromViperRejectsUnknownRealtimeBackend(t *testing.T) {
	v := newTestViper()
	v.Set("REALTIME_BACKEND", "kafka")

	_, err := fromViper(v)
	require.Error(t, err)
}

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a, ,b "))
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Second, parseDuration("nope", time.Second))
	assert.Equal(t, 2*time.Minute, parseDuration("2m", time.Second))
}
