package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/presensi-api/internal/handler"
	"github.com/noah-isme/presensi-api/internal/middleware"
	"github.com/noah-isme/presensi-api/internal/models"
	"github.com/noah-isme/presensi-api/internal/service"
	"github.com/noah-isme/presensi-api/pkg/config"
	"github.com/noah-isme/presensi-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/presensi-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/presensi-api/pkg/middleware/requestid"
)

type routeHandlers struct {
	tokens   middleware.TokenValidator
	metrics  *service.MetricsService
	probe    *handler.MetricsHandler
	rooms    *handler.RoomHandler
	courses  *handler.CourseHandler
	sessions *handler.SessionHandler
	checkIns *handler.CheckInHandler
	streams  *handler.StreamHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, h routeHandlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(h.metrics, "/health", "/ready", "/metrics"))

	r.GET("/health", h.probe.Health)
	r.GET("/ready", h.probe.Ready)
	r.GET("/metrics", h.probe.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	admin := middleware.RequireRoles(models.RoleAdmin)
	lecturer := middleware.RequireRoles(models.RoleLecturer)
	lecturerOrAdmin := middleware.RequireRoles(models.RoleLecturer, models.RoleAdmin)
	student := middleware.RequireRoles(models.RoleStudent)
	selfOrAdmin := middleware.RBAC(string(models.RoleAdmin), middleware.RoleSelf)

	api := r.Group(cfg.APIPrefix, middleware.JWT(h.tokens))

	rooms := api.Group("/rooms")
	rooms.GET("", h.rooms.List)
	rooms.GET("/:id", h.rooms.Get)
	rooms.POST("", admin, h.rooms.Create)
	rooms.PUT("/:id", admin, h.rooms.Update)

	courses := api.Group("/courses")
	courses.GET("", h.courses.List)
	courses.GET("/:code", h.courses.Get)
	courses.POST("", admin, h.courses.Create)
	courses.POST("/:code/enrollments", admin, h.courses.Enroll)

	sessions := api.Group("/sessions")
	sessions.POST("", lecturer, h.sessions.Start)
	sessions.GET("/:id", h.sessions.Get)
	sessions.POST("/:id/end", lecturerOrAdmin, h.sessions.End)
	sessions.GET("/:id/attendance", lecturerOrAdmin, h.checkIns.Detail)
	sessions.GET("/:id/summary", lecturerOrAdmin, h.checkIns.Summary)
	sessions.POST("/:id/check-ins", student, h.checkIns.Submit)

	lecturers := api.Group("/lecturers")
	lecturers.GET("/:id/active-session", h.sessions.Active)
	lecturers.GET("/:id/sessions", selfOrAdmin, h.sessions.History)

	stream := api.Group("/stream")
	stream.GET("/lecturers/:id/active-session", h.streams.ActiveSession)
	stream.GET("/sessions/:id/attendance", lecturerOrAdmin, h.streams.Attendance)

	return r
}
