package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/presensi-api/api/swagger"
	"github.com/noah-isme/presensi-api/internal/handler"
	"github.com/noah-isme/presensi-api/internal/repository"
	"github.com/noah-isme/presensi-api/internal/service"
	"github.com/noah-isme/presensi-api/pkg/cache"
	"github.com/noah-isme/presensi-api/pkg/config"
	"github.com/noah-isme/presensi-api/pkg/database"
	"github.com/noah-isme/presensi-api/pkg/jobs"
	"github.com/noah-isme/presensi-api/pkg/logger"
	"github.com/noah-isme/presensi-api/pkg/realtime"
)

// @title Presensi API
// @version 1.0.0
// @description Attendance sessions, geofenced check-ins and live attendance streams.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Realtime.Backend == config.RealtimeRedis || cfg.Summary.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
	}

	var broker realtime.Broker
	switch cfg.Realtime.Backend {
	case config.RealtimeRedis:
		broker = realtime.NewRedisBroker(redisClient, cfg.Realtime.ChannelPrefix, logr)
	default:
		broker = realtime.NewMemoryBroker()
	}
	defer broker.Close()

	metrics := service.NewMetricsService()
	validate := validator.New()
	bounds := service.RadiusBounds{Min: cfg.Rooms.RadiusMin, Max: cfg.Rooms.RadiusMax}

	roomRepo := repository.NewRoomRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	recordRepo := repository.NewAttendanceRecordRepository(db)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, cfg.Realtime.ChannelPrefix)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Summary.CacheTTL, logr, cfg.Summary.CacheEnabled)

	roomSvc, err := service.NewRoomService(roomRepo, validate, bounds, logr)
	if err != nil {
		return err
	}
	courseSvc := service.NewCourseService(courseRepo, validate, logr)
	sessionSvc := service.NewSessionService(service.SessionServiceParams{
		Sessions:  sessionRepo,
		Rooms:     roomRepo,
		Courses:   courseRepo,
		Publisher: broker,
		Metrics:   metrics,
		Bounds:    bounds,
		Validator: validate,
		Logger:    logr,
	})
	checkInSvc := service.NewCheckInService(service.CheckInServiceParams{
		Sessions:    sessionRepo,
		Records:     recordRepo,
		Enrollments: courseRepo,
		Publisher:   broker,
		Cache:       cacheSvc,
		Metrics:     metrics,
		Validator:   validate,
		Logger:      logr,
		Config: service.CheckInServiceConfig{
			ClockSkew:  cfg.CheckIn.ClockSkew,
			SummaryTTL: cfg.Summary.CacheTTL,
		},
	})
	subscriptionSvc := service.NewSubscriptionService(broker, sessionSvc, checkInSvc, metrics, logr)
	tokenSvc := service.NewTokenService(service.TokenConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})

	if cfg.Repair.Enabled {
		repairSvc := service.NewRepairService(sessionRepo, sessionSvc, logr, service.RepairServiceConfig{
			Schedule:           cfg.Repair.Schedule,
			SessionMaxDuration: cfg.Repair.SessionMaxDuration,
		})
		queue := jobs.NewQueue("session-repair", repairSvc.HandleJob, jobs.QueueConfig{
			Workers:    cfg.Repair.Workers,
			MaxRetries: 3,
			RetryDelay: 5 * time.Second,
			Logger:     logr,
		})
		repairSvc.AttachQueue(queue)
		queue.Start(ctx)
		defer queue.Stop()
		if err := repairSvc.Start(); err != nil {
			return err
		}
		defer repairSvc.Stop()
	}

	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := newRouter(cfg, logr, routeHandlers{
		tokens:   tokenSvc,
		metrics:  metrics,
		probe:    handler.NewMetricsHandler(metrics, checks),
		rooms:    handler.NewRoomHandler(roomSvc),
		courses:  handler.NewCourseHandler(courseSvc),
		sessions: handler.NewSessionHandler(sessionSvc),
		checkIns: handler.NewCheckInHandler(checkInSvc),
		streams:  handler.NewStreamHandler(subscriptionSvc, cfg.CORS.AllowedOrigins, cfg.Realtime.PingInterval, logr),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("realtime", cfg.Realtime.Backend),
			zap.Bool("repair_job", cfg.Repair.Enabled))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
