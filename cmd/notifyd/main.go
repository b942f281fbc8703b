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

	"github.com/campus-iqa/iqa-notify-api/internal/channel"
	"github.com/campus-iqa/iqa-notify-api/internal/handler"
	"github.com/campus-iqa/iqa-notify-api/internal/middleware"
	"github.com/campus-iqa/iqa-notify-api/internal/models"
	"github.com/campus-iqa/iqa-notify-api/internal/repository"
	"github.com/campus-iqa/iqa-notify-api/internal/service"
	"github.com/campus-iqa/iqa-notify-api/pkg/cache"
	"github.com/campus-iqa/iqa-notify-api/pkg/config"
	"github.com/campus-iqa/iqa-notify-api/pkg/database"
	"github.com/campus-iqa/iqa-notify-api/pkg/export"
	"github.com/campus-iqa/iqa-notify-api/pkg/logger"
	corsmiddleware "github.com/campus-iqa/iqa-notify-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campus-iqa/iqa-notify-api/pkg/middleware/requestid"
	"github.com/campus-iqa/iqa-notify-api/pkg/scheduler"
	"github.com/campus-iqa/iqa-notify-api/pkg/storage"
)

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var cacheRepo service.CacheRepository
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}

	reports, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare reports storage", "error", err)
	}

	metrics := service.NewMetricsService()

	yearRepo := repository.NewAcademicYearRepository(db)
	userRepo := repository.NewUserRepository(db)
	evidenceRepo := repository.NewEvidenceRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	var emailSender channel.EmailSender
	if s := channel.NewResendSender(cfg.Email, logr); s != nil {
		emailSender = s
	}
	var pushSender channel.PushSender
	if s := channel.NewWebhookPushSender(cfg.Push, logr); s != nil {
		pushSender = s
	}

	cacheSvc := service.NewCacheService(cacheRepo, metrics, 10*time.Minute, logr, cacheRepo != nil)
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})
	notificationSvc := service.NewNotificationService(notificationRepo, userRepo, emailSender, pushSender, reports, metrics, logr, service.NotificationServiceConfig{
		BaseURL:         cfg.Email.BaseURL,
		DeliveryTimeout: cfg.Escalation.DeliveryTimeout,
		RetentionMaxAge: cfg.Retention.MaxAge,
	})
	deadlineSvc := service.NewDeadlineService(yearRepo, userRepo, notificationRepo, logr)
	escalationSvc := service.NewEscalationService(evidenceRepo, userRepo, notificationRepo, export.NewPDFExporter(), reports, metrics, logr, service.EscalationServiceConfig{
		DedupWindow: cfg.Escalation.DedupWindow,
	})
	monitorSvc := service.NewMonitorService(yearRepo, userRepo, evidenceRepo, notificationRepo, deadlineSvc, escalationSvc, cacheSvc, metrics, logr, service.MonitorServiceConfig{
		DedupWindow:         cfg.Reminders.DedupWindow,
		DefaultLeadDays:     cfg.Reminders.DefaultLeadDays,
		DigestLookaheadDays: cfg.Reminders.DigestLookaheadDays,
	})

	sched := scheduler.New(logr)
	registerJobs := func() error {
		if err := sched.Schedule("deadline-sweep", cfg.Scheduler.SweepInterval, monitorSvc.RunDeadlineSweep); err != nil {
			return err
		}
		if err := sched.Schedule("notification-flush", cfg.Scheduler.FlushInterval, func(ctx context.Context) error {
			_, err := notificationSvc.FlushPending(ctx)
			return err
		}); err != nil {
			return err
		}
		if err := sched.Schedule("notification-cleanup", cfg.Scheduler.CleanupInterval, func(ctx context.Context) error {
			_, err := notificationSvc.CleanupExpired(ctx)
			return err
		}); err != nil {
			return err
		}
		return sched.Schedule("weekly-digest", cfg.Scheduler.DigestInterval, monitorSvc.RunWeeklyDigest)
	}

	if cfg.Scheduler.Enabled {
		if err := registerJobs(); err != nil {
			logr.Sugar().Fatalw("failed to register background jobs", "error", err)
		}
	}

	metricsHandler := handler.NewMetricsHandler(metrics)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	schedulerHandler := handler.NewSchedulerHandler(sched, registerJobs)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))
	{
		notifications := api.Group("/notifications")
		notifications.GET("", notificationHandler.List)
		notifications.GET("/unread-count", notificationHandler.UnreadCount)
		notifications.PATCH("/:id/read", notificationHandler.MarkRead)
		notifications.POST("", middleware.RequireRoles(models.RoleAdmin), notificationHandler.Create)

		jobs := api.Group("/scheduler", middleware.RequireRoles(models.RoleAdmin, models.RoleExecutive))
		jobs.GET("/status", schedulerHandler.Status)
		jobs.POST("/start", schedulerHandler.Start)
		jobs.POST("/stop", schedulerHandler.Stop)
		jobs.POST("/trigger/:name", schedulerHandler.Trigger)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	sched.StopAll()
	sched.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
