package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/edutrack/edutrack-api/api/swagger"
	"github.com/edutrack/edutrack-api/internal/handler"
	"github.com/edutrack/edutrack-api/internal/middleware"
	"github.com/edutrack/edutrack-api/internal/realtime"
	"github.com/edutrack/edutrack-api/internal/repository"
	"github.com/edutrack/edutrack-api/internal/service"
	"github.com/edutrack/edutrack-api/pkg/cache"
	"github.com/edutrack/edutrack-api/pkg/config"
	"github.com/edutrack/edutrack-api/pkg/database"
	"github.com/edutrack/edutrack-api/pkg/logger"
	corsmiddleware "github.com/edutrack/edutrack-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edutrack/edutrack-api/pkg/middleware/requestid"
	"github.com/edutrack/edutrack-api/pkg/storage"
)

// @title EduTrack API
// @version 1.0.0
// @description Course, enrollment, grading and messaging backend
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	store, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init upload storage", "error", err)
	}

	validate := validator.New()
	hub := realtime.NewHub(logr)
	metricsService := service.NewMetricsService()

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Cache.CourseListTTL, logr, redisClient != nil)

	profileRepo := repository.NewProfileRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	teacherRequestRepo := repository.NewTeacherRequestRepository(db)

	authService := service.NewAuthService(profileRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	notificationService := service.NewNotificationService(notificationRepo, hub, cacheService, metricsService, logr, service.NotificationConfig{
		Workers:    cfg.Notifications.WorkerConcurrency,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.WorkerRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		UnreadTTL:  cfg.Cache.UnreadCountTTL,
	})
	userService := service.NewUserService(profileRepo, store, validate, logr)
	courseService := service.NewCourseService(courseRepo, profileRepo, notificationService, cacheService, store, validate, logr, cfg.Cache.CourseListTTL)
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, courseRepo, profileRepo, notificationService, metricsService, validate, logr)
	assignmentService := service.NewAssignmentService(assignmentRepo, courseRepo, enrollmentRepo, notificationService, validate, logr)
	submissionService := service.NewSubmissionService(submissionRepo, assignmentRepo, enrollmentRepo, validate, logr)
	gradeReviewService := service.NewGradeReviewService(submissionRepo, assignmentRepo, courseRepo, profileRepo, notificationService, metricsService, validate, logr)
	messageService := service.NewMessageService(messageRepo, enrollmentRepo, courseRepo, hub, validate, logr)
	teacherRequestService := service.NewTeacherRequestService(teacherRequestRepo, profileRepo, notificationService, validate, logr)
	reportService := service.NewReportService(enrollmentRepo, submissionRepo, profileRepo, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notificationService.Start(ctx)
	defer notificationService.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	handlers := handler.Handlers{
		Auth:            handler.NewAuthHandler(authService),
		Users:           handler.NewUserHandler(userService),
		Courses:         handler.NewCourseHandler(courseService),
		Enrollments:     handler.NewEnrollmentHandler(enrollmentService),
		Assignments:     handler.NewAssignmentHandler(assignmentService),
		Submissions:     handler.NewSubmissionHandler(submissionService),
		GradeReviews:    handler.NewGradeReviewHandler(gradeReviewService),
		Notifications:   handler.NewNotificationHandler(notificationService),
		Messages:        handler.NewMessageHandler(messageService),
		TeacherRequests: handler.NewTeacherRequestHandler(teacherRequestService),
		Reports:         handler.NewReportHandler(reportService),
		Metrics:         handler.NewMetricsHandler(metricsService),
		Websocket:       handler.NewWebsocketHandler(hub, messageService, logr),
	}
	handler.RegisterRoutes(r, handlers, authService, metricsService, cfg.Realtime.Enabled)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
