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

	_ "github.com/noah-isme/edu-crm-api/api/swagger"
	"github.com/noah-isme/edu-crm-api/internal/handler"
	"github.com/noah-isme/edu-crm-api/internal/middleware"
	"github.com/noah-isme/edu-crm-api/internal/models"
	"github.com/noah-isme/edu-crm-api/internal/repository"
	"github.com/noah-isme/edu-crm-api/internal/service"
	"github.com/noah-isme/edu-crm-api/pkg/cache"
	"github.com/noah-isme/edu-crm-api/pkg/config"
	"github.com/noah-isme/edu-crm-api/pkg/database"
	"github.com/noah-isme/edu-crm-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/edu-crm-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/edu-crm-api/pkg/middleware/requestid"
)

// @title Edu CRM API
// @version 0.1.0
// @description Lead funnel API for education institutions
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

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cfg.Funnel.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		defer redisClient.Close()
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Funnel.CacheTTL, logr, true)
	}

	userRepo := repository.NewUserRepository(db)
	institutionRepo := repository.NewInstitutionRepository(db)
	stageRepo := repository.NewStageRepository(db)
	leadRepo := repository.NewLeadRepository(db)
	interactionRepo := repository.NewInteractionRepository(db)
	stageChangeRepo := repository.NewStageChangeRepository(db)
	visitRepo := repository.NewVisitRepository(db)
	funnelRepo := repository.NewFunnelRepository(db)
	webhookRepo := repository.NewWebhookRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "edu-crm-api",
	})
	webhookSvc := service.NewWebhookService(webhookRepo, metricsSvc, validate, logr,
		cfg.Webhooks.Enabled, cfg.Webhooks.RequestTimeout, cfg.Webhooks.WorkerConcurrency, cfg.Webhooks.WorkerRetries)
	userSvc := service.NewUserService(userRepo, validate, logr)
	institutionSvc := service.NewInstitutionService(institutionRepo, validate, logr)
	stageSvc := service.NewStageService(stageRepo, cacheSvc, validate, logr)
	leadSvc := service.NewLeadService(leadRepo, stageRepo, userRepo, webhookSvc, cacheSvc, validate, logr)
	transitionSvc := service.NewTransitionService(leadRepo, stageRepo, stageChangeRepo, webhookSvc, cacheSvc, metricsSvc, validate, logr)
	interactionSvc := service.NewInteractionService(interactionRepo, leadRepo, validate, logr)
	visitSvc := service.NewVisitService(visitRepo, leadRepo, webhookSvc, validate, logr)
	funnelSvc := service.NewFunnelService(funnelRepo, cacheSvc, cfg.Funnel.CacheTTL, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	institutionHandler := handler.NewInstitutionHandler(institutionSvc)
	stageHandler := handler.NewStageHandler(stageSvc)
	leadHandler := handler.NewLeadHandler(leadSvc, transitionSvc, interactionSvc, visitSvc)
	visitHandler := handler.NewVisitHandler(visitSvc)
	funnelHandler := handler.NewFunnelHandler(funnelSvc)
	webhookHandler := handler.NewWebhookHandler(webhookSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
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
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		authed := auth.Group("")
		authed.Use(middleware.JWT(authSvc))
		authed.POST("/logout", authHandler.Logout)
		authed.POST("/change-password", middleware.Audit(userRepo, models.AuditActionPasswordChange, "auth"), authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	users := protected.Group("/users")
	{
		users.GET("", userHandler.List)
		users.GET("/:id", userHandler.Get)

		admin := users.Group("")
		admin.Use(middleware.RequireRoles(models.RoleAdmin))
		admin.POST("", middleware.Audit(userRepo, models.AuditActionUserCreate, "user"), userHandler.Create)
		admin.PUT("/:id", middleware.Audit(userRepo, models.AuditActionUserUpdate, "user"), userHandler.Update)
		admin.DELETE("/:id", middleware.Audit(userRepo, models.AuditActionUserDelete, "user"), userHandler.Deactivate)
	}

	institution := protected.Group("/institution")
	{
		institution.GET("", institutionHandler.Get)
		institution.PUT("", middleware.RequireRoles(models.RoleAdmin), institutionHandler.Update)
	}

	stages := protected.Group("/stages")
	{
		stages.GET("", stageHandler.List)

		admin := stages.Group("")
		admin.Use(middleware.RequireRoles(models.RoleAdmin))
		admin.POST("", stageHandler.Create)
		admin.PUT("/reorder", stageHandler.Reorder)
		admin.PUT("/:id", stageHandler.Update)
		admin.DELETE("/:id", stageHandler.Delete)
	}

	leads := protected.Group("/leads")
	{
		leads.GET("", leadHandler.List)
		leads.POST("", leadHandler.Create)
		leads.GET("/:id", leadHandler.Get)
		leads.PUT("/:id", leadHandler.Update)
		leads.PUT("/:id/assign", leadHandler.Assign)
		leads.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(userRepo, models.AuditActionLeadDelete, "lead"), leadHandler.Delete)
		leads.POST("/:id/transition", leadHandler.Transition)
		leads.GET("/:id/stage-history", leadHandler.StageHistory)
		leads.POST("/:id/interactions", leadHandler.AddInteraction)
		leads.GET("/:id/interactions", leadHandler.ListInteractions)
		leads.GET("/:id/visits", leadHandler.ListVisits)
	}

	visits := protected.Group("/visits")
	{
		visits.GET("", visitHandler.Calendar)
		visits.POST("", visitHandler.Schedule)
		visits.GET("/:id", visitHandler.Get)
		visits.PUT("/:id", visitHandler.Update)
	}

	funnel := protected.Group("/funnel")
	{
		funnel.GET("/overview", funnelHandler.Overview)
		funnel.GET("/stages", funnelHandler.StageCounts)
		funnel.GET("/conversion", funnelHandler.Conversion)
		funnel.GET("/leaderboard", funnelHandler.Leaderboard)
		funnel.GET("/visits", funnelHandler.VisitStats)
	}

	webhooks := protected.Group("/webhooks")
	webhooks.Use(middleware.RequireRoles(models.RoleAdmin))
	{
		webhooks.GET("", webhookHandler.List)
		webhooks.POST("", webhookHandler.Create)
		webhooks.PUT("/:id", webhookHandler.Update)
		webhooks.DELETE("/:id", webhookHandler.Delete)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	webhookSvc.Start(ctx)
	defer webhookSvc.Stop()

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
