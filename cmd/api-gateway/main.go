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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/sma-asrama-api/api/swagger"
	"github.com/noah-isme/sma-asrama-api/internal/handler"
	"github.com/noah-isme/sma-asrama-api/internal/middleware"
	"github.com/noah-isme/sma-asrama-api/internal/models"
	"github.com/noah-isme/sma-asrama-api/internal/repository"
	"github.com/noah-isme/sma-asrama-api/internal/service"
	"github.com/noah-isme/sma-asrama-api/pkg/cache"
	"github.com/noah-isme/sma-asrama-api/pkg/config"
	"github.com/noah-isme/sma-asrama-api/pkg/database"
	"github.com/noah-isme/sma-asrama-api/pkg/export"
	"github.com/noah-isme/sma-asrama-api/pkg/logger"
	"github.com/noah-isme/sma-asrama-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/sma-asrama-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-asrama-api/pkg/middleware/requestid"
)

// @title SMA Asrama API
// @version 0.1.0
// @description Hostel leave management and resident services
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, continuing without cache", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	guardianRepo := repository.NewGuardianRepository(db)
	leaveRepo := repository.NewLeaveRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	locationRepo := repository.NewLocationRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "sma-asrama-api",
	})

	metricsSvc := service.NewMetricsService()
	studentSvc := service.NewStudentService(studentRepo, validate, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var notificationSvc *service.NotificationService
	if cfg.Notifications.Enabled {
		smtp := mailer.New(mailer.Config{
			Host: cfg.Notifications.SMTPHost,
			Port: cfg.Notifications.SMTPPort,
			User: cfg.Notifications.SMTPUser,
			Pass: cfg.Notifications.SMTPPass,
			From: cfg.Notifications.FromAddress,
		})
		notificationSvc = service.NewNotificationService(smtp, guardianRepo, studentRepo, userRepo, logr, cfg.Notifications.Workers)
		notificationSvc.Start(ctx)
		defer notificationSvc.Stop()
	}

	renderer := export.NewPDFRenderer()

	leaveOpts := []service.LeaveServiceOption{}
	if notificationSvc != nil {
		leaveOpts = append(leaveOpts, service.WithLeaveNotifier(notificationSvc))
	}
	if cfg.Leaves.PassEnabled {
		leaveOpts = append(leaveOpts, service.WithPassRenderer(renderer))
	}
	leaveSvc := service.NewLeaveService(leaveRepo, studentRepo, guardianRepo, userRepo, logr, leaveOpts...)

	var paymentSvc *service.PaymentService
	if cfg.Payments.Enabled {
		gateway := service.NewHMACGateway(cfg.Payments.GatewaySecret)
		paymentSvc = service.NewPaymentService(paymentRepo, gateway, notificationSvc, guardianRepo, renderer, logr, cfg.Payments.ReminderLeadTime)
		if notificationSvc != nil {
			go paymentSvc.RunReminderLoop(ctx, cfg.Payments.ReminderInterval)
		}
	}

	var locationSvc *service.LocationService
	if cfg.Locations.Enabled && redisClient != nil {
		locationSvc = service.NewLocationService(locationRepo, leaveRepo, studentRepo, redisClient, metricsSvc, logr, cfg.Locations.LastKnownTTL)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	leaveHandler := handler.NewLeaveHandler(leaveSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", middleware.Audit(userRepo, models.AuditActionLogin, "auth"), authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		secured := auth.Group("")
		secured.Use(middleware.JWT(authSvc))
		secured.POST("/logout", middleware.Audit(userRepo, models.AuditActionLogout, "auth"), authHandler.Logout)
		secured.POST("/change-password", middleware.Audit(userRepo, models.AuditActionPasswordChange, "auth"), authHandler.ChangePassword)
		secured.GET("/me", authHandler.Me)
	}

	leaves := api.Group("/leaves")
	leaves.Use(middleware.JWT(authSvc))
	{
		leaves.POST("", middleware.RequireRoles(models.RoleStudent), leaveHandler.Create)
		leaves.GET("", leaveHandler.List)
		leaves.GET("/:id", leaveHandler.Get)
		leaves.POST("/:id/parent-decision", middleware.RequireRoles(models.RoleParent), leaveHandler.ParentDecision)
		leaves.POST("/:id/decision", middleware.RequireRoles(models.RoleWarden, models.RoleAdmin, models.RoleSuperAdmin), leaveHandler.WardenDecision)
		leaves.POST("/:id/cancel", middleware.RequireRoles(models.RoleStudent), leaveHandler.Cancel)
		leaves.GET("/:id/pass", leaveHandler.Pass)
	}

	students := api.Group("/students")
	students.Use(middleware.JWT(authSvc))
	students.Use(middleware.RequireRoles(models.RoleWarden, models.RoleAdmin, models.RoleSuperAdmin))
	{
		students.GET("", studentHandler.List)
		students.GET("/:id", studentHandler.Get)
		students.POST("", studentHandler.Create)
		students.PUT("/:id", studentHandler.Update)
		students.DELETE("/:id", studentHandler.Deactivate)
	}

	if paymentSvc != nil {
		paymentHandler := handler.NewPaymentHandler(paymentSvc)
		fees := api.Group("/fees")
		fees.Use(middleware.JWT(authSvc))
		{
			fees.GET("", paymentHandler.List)
			fees.POST("", middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin), paymentHandler.Create)
			fees.POST("/:id/pay", middleware.Audit(userRepo, models.AuditActionPaymentCapture, "fees"), paymentHandler.Pay)
			fees.GET("/:id/receipt", paymentHandler.Receipt)
		}
	}

	if locationSvc != nil {
		locationHandler := handler.NewLocationHandler(locationSvc)
		locations := api.Group("/locations")
		locations.Use(middleware.JWT(authSvc))
		{
			locations.POST("/ping", middleware.RequireRoles(models.RoleStudent), locationHandler.Ping)
			locations.GET("/:studentId/last", middleware.RequireRoles(models.RoleWarden, models.RoleAdmin, models.RoleSuperAdmin), locationHandler.LastKnown)
			locations.GET("/:studentId/history", middleware.RequireRoles(models.RoleWarden, models.RoleAdmin, models.RoleSuperAdmin), locationHandler.History)
		}
	}

	admin := api.Group("/admin")
	admin.Use(middleware.JWT(authSvc))
	admin.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin))
	admin.GET("/metrics", metricsHandler.Snapshot)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
