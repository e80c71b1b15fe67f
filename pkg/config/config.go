package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	RealtimeMemory = "memory"
	RealtimeRedis  = "redis"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Rooms    RoomConfig
	CheckIn  CheckInConfig
	Realtime RealtimeConfig
	Summary  SummaryConfig
	Repair   RepairConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RoomConfig bounds the acceptance radius a room may be registered with.
type RoomConfig struct {
	RadiusMin float64
	RadiusMax float64
}

// CheckInConfig tunes check-in timestamp handling.
type CheckInConfig struct {
	ClockSkew time.Duration
}

// RealtimeConfig selects the broker used for session and attendance streams.
type RealtimeConfig struct {
	Backend       string
	ChannelPrefix string
	PingInterval  time.Duration
}

// SummaryConfig controls caching of closed-session attendance summaries.
type SummaryConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// RepairConfig schedules the duplicate active session sweep.
type RepairConfig struct {
	Enabled            bool
	Schedule           string
	Workers            int
	SessionMaxDuration time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Rooms = RoomConfig{
		RadiusMin: v.GetFloat64("ROOM_RADIUS_MIN"),
		RadiusMax: v.GetFloat64("ROOM_RADIUS_MAX"),
	}
	if cfg.Rooms.RadiusMin <= 0 || cfg.Rooms.RadiusMax < cfg.Rooms.RadiusMin {
		return nil, errors.New("ROOM_RADIUS_MIN must be positive and not exceed ROOM_RADIUS_MAX")
	}

	cfg.CheckIn = CheckInConfig{
		ClockSkew: parseDuration(v.GetString("CHECKIN_CLOCK_SKEW"), 5*time.Minute),
	}

	cfg.Realtime = RealtimeConfig{
		Backend:       strings.ToLower(v.GetString("REALTIME_BACKEND")),
		ChannelPrefix: v.GetString("REALTIME_CHANNEL_PREFIX"),
		PingInterval:  parseDuration(v.GetString("STREAM_PING_INTERVAL"), 30*time.Second),
	}
	if cfg.Realtime.Backend != RealtimeMemory && cfg.Realtime.Backend != RealtimeRedis {
		return nil, errors.New("REALTIME_BACKEND must be memory or redis")
	}

	cfg.Summary = SummaryConfig{
		CacheEnabled: v.GetBool("SUMMARY_CACHE_ENABLED"),
		CacheTTL:     parseDuration(v.GetString("SUMMARY_CACHE_TTL"), time.Hour),
	}

	cfg.Repair = RepairConfig{
		Enabled:            v.GetBool("ENABLE_REPAIR_JOB"),
		Schedule:           v.GetString("REPAIR_CRON"),
		Workers:            v.GetInt("REPAIR_WORKERS"),
		SessionMaxDuration: parseDuration(v.GetString("SESSION_MAX_DURATION"), 0),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "presensi")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ROOM_RADIUS_MIN", 10)
	v.SetDefault("ROOM_RADIUS_MAX", 20)
	v.SetDefault("CHECKIN_CLOCK_SKEW", "5m")

	v.SetDefault("REALTIME_BACKEND", RealtimeMemory)
	v.SetDefault("REALTIME_CHANNEL_PREFIX", "presensi")
	v.SetDefault("STREAM_PING_INTERVAL", "30s")

	v.SetDefault("SUMMARY_CACHE_ENABLED", false)
	v.SetDefault("SUMMARY_CACHE_TTL", "1h")

	v.SetDefault("ENABLE_REPAIR_JOB", true)
	v.SetDefault("REPAIR_CRON", "@every 1m")
	v.SetDefault("REPAIR_WORKERS", 1)
	v.SetDefault("SESSION_MAX_DURATION", "0")
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
