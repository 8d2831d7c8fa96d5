package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/bfm-api/api/swagger"
	"github.com/noah-isme/bfm-api/internal/handler"
	"github.com/noah-isme/bfm-api/internal/middleware"
	"github.com/noah-isme/bfm-api/internal/models"
	"github.com/noah-isme/bfm-api/internal/repository"
	"github.com/noah-isme/bfm-api/internal/service"
	"github.com/noah-isme/bfm-api/pkg/cache"
	"github.com/noah-isme/bfm-api/pkg/config"
	"github.com/noah-isme/bfm-api/pkg/database"
	"github.com/noah-isme/bfm-api/pkg/export"
	"github.com/noah-isme/bfm-api/pkg/jobs"
	"github.com/noah-isme/bfm-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/bfm-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/bfm-api/pkg/middleware/requestid"
	"github.com/noah-isme/bfm-api/pkg/storage"
)

// @title Budget & Fund Management API
// @version 1.0.0
// @description Budget line-item tracking with approval workflows and fund control
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
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	appropriationRepo := repository.NewAppropriationRepository(db)
	budgetRepo := repository.NewBudgetRepository(db)
	obligationRepo := repository.NewObligationRepository(db)
	expenditureRepo := repository.NewExpenditureRepository(db)
	workflowRepo := repository.NewApprovalWorkflowRepository(db)
	requestRepo := repository.NewApprovalRequestRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	reportRepo := repository.NewReportRepository(db)

	// Observability and caching.
	metricsService := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	var cacheService *service.CacheService
	if redisClient != nil {
		cacheService = service.NewCacheService(cacheRepo, metricsService, cfg.Analytics.CacheTTL, logr, true)
	}

	// Core services.
	authService := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "bfm-api",
	})
	userService := service.NewUserService(userRepo, auditRepo, validate, logr)
	appropriationService := service.NewAppropriationService(appropriationRepo, auditRepo, logr)

	notificationService := service.NewNotificationService(notificationRepo, logr)
	if cfg.Notifications.Enabled {
		notificationService.StartQueue(ctx, cfg.Notifications.WorkerConcurrency)
		defer notificationService.StopQueue()
	}

	approvalService := service.NewApprovalService(workflowRepo, requestRepo, auditRepo, logr,
		service.WithNotifier(notificationService))

	budgetService := service.NewBudgetService(budgetRepo, obligationRepo, expenditureRepo,
		approvalService, appropriationService, cacheRepo, auditRepo, logr)
	approvalService.RegisterFinalizer(models.ApprovalEntityBudget, service.ApprovalFinalizerFunc(budgetService.FinalizeApproval))

	obligationService := service.NewObligationService(obligationRepo, appropriationService, auditRepo, logr)
	expenditureService := service.NewExpenditureService(expenditureRepo, obligationRepo, auditRepo, logr)
	analyticsService := service.NewAnalyticsService(analyticsRepo, budgetRepo, cacheService, metricsService, logr)

	// Async report pipeline.
	var reportService *service.ReportService
	if cfg.Reports.Enabled {
		localStorage, storageErr := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if storageErr != nil {
			logr.Sugar().Fatalw("failed to init report storage", "error", storageErr)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		exportService := service.NewExportService(budgetService, analyticsService, appropriationRepo,
			localStorage, signer, service.ExportConfig{
				APIPrefix: cfg.APIPrefix,
				ResultTTL: cfg.Reports.SignedURLTTL,
			}, logr, export.NewCSVExporter(), export.NewPDFExporter())

		reportWorker := service.NewReportWorker(reportRepo, exportService, cfg.Reports.WorkerRetries, logr)
		reportQueue := jobs.NewQueue("reports", reportWorker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		reportQueue.Start(ctx)
		defer reportQueue.Stop()

		reportService = service.NewReportService(reportRepo, budgetService, reportQueue, exportService, logr, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
			MaxRetries:      cfg.Reports.WorkerRetries,
		})
		reportService.RecoverPendingJobs(ctx)
		reportService.StartCleanup(ctx)
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	appropriationHandler := handler.NewAppropriationHandler(appropriationService)
	budgetHandler := handler.NewBudgetHandler(budgetService)
	approvalHandler := handler.NewApprovalHandler(approvalService)
	obligationHandler := handler.NewObligationHandler(obligationService)
	expenditureHandler := handler.NewExpenditureHandler(expenditureService)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsService)
	notificationHandler := handler.NewNotificationHandler(notificationService)
	reportHandler := handler.NewReportHandler(reportService)
	metricsHandler := handler.NewMetricsHandler(metricsService, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authService), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authService), authHandler.Me)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(authService))

	users := secured.Group("/users")
	users.Use(middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin))
	{
		users.GET("", userHandler.List)
		users.POST("", userHandler.Create)
		users.GET("/:id", userHandler.Get)
		users.PUT("/:id", userHandler.Update)
		users.DELETE("/:id", userHandler.Delete)
	}

	appropriations := secured.Group("/appropriations")
	{
		appropriations.GET("", appropriationHandler.List)
		appropriations.GET("/:id", appropriationHandler.Get)
		appropriations.POST("/check-availability", appropriationHandler.CheckAvailability)
		appropriations.GET("/validate", appropriationHandler.Validate)

		fundControl := appropriations.Group("")
		fundControl.Use(middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleBudgetOfficer))
		{
			fundControl.POST("", appropriationHandler.Create)
			fundControl.POST("/:id/allocate",
				middleware.Audit(auditRepo, models.AuditActionFundsAllocate, "appropriation"),
				appropriationHandler.Allocate)
			fundControl.POST("/:id/deallocate",
				middleware.Audit(auditRepo, models.AuditActionFundsDeallocate, "appropriation"),
				appropriationHandler.Deallocate)
		}
	}

	budgets := secured.Group("/budgets")
	{
		budgets.GET("", budgetHandler.List)
		budgets.GET("/:id", budgetHandler.Get)
		budgets.GET("/:id/versions", budgetHandler.ListVersions)
		budgets.GET("/:id/line-items", budgetHandler.ListLineItems)
		budgets.GET("/:id/summary", budgetHandler.Summary)

		owners := budgets.Group("")
		owners.Use(middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleBudgetOfficer))
		{
			owners.POST("", budgetHandler.Create)
			owners.PUT("/:id", budgetHandler.Update)
			owners.POST("/:id/submit", budgetHandler.Submit)
			owners.POST("/:id/activate", budgetHandler.Activate)
			owners.POST("/:id/close", budgetHandler.Close)
			owners.POST("/:id/rollback", budgetHandler.Rollback)
			owners.POST("/:id/line-items", budgetHandler.AddLineItem)
		}
	}

	if cfg.Approvals.Enabled {
		approvals := secured.Group("/approvals")
		approvals.GET("/workflows", approvalHandler.ListWorkflows)
		approvals.POST("/workflows", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin), approvalHandler.CreateWorkflow)
		approvals.GET("/requests", approvalHandler.List)
		approvals.POST("/requests", approvalHandler.CreateRequest)
		approvals.GET("/requests/:id", approvalHandler.Get)
		approvals.POST("/requests/:id/cancel", approvalHandler.Cancel)
		approvals.GET("/pending", approvalHandler.Pending)

		deciders := approvals.Group("")
		deciders.Use(middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleApprover))
		{
			deciders.POST("/requests/:id/review", approvalHandler.StartReview)
			deciders.POST("/requests/:id/decision",
				middleware.Audit(auditRepo, models.AuditActionApprovalDecision, "approval_request"),
				approvalHandler.Decide)
		}
	}

	obligations := secured.Group("/obligations")
	{
		obligations.GET("", obligationHandler.List)
		obligations.GET("/summary", obligationHandler.Summary)
		obligations.GET("/:id", obligationHandler.Get)

		writers := obligations.Group("")
		writers.Use(middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleBudgetOfficer))
		{
			writers.POST("", obligationHandler.Create)
			writers.POST("/:id/obligate", obligationHandler.Obligate)
			writers.POST("/:id/deobligate", obligationHandler.Deobligate)
			writers.POST("/:id/cancel", obligationHandler.Cancel)
		}
	}

	expenditures := secured.Group("/expenditures")
	{
		expenditures.GET("", expenditureHandler.List)
		expenditures.GET("/summary", expenditureHandler.Summary)
		expenditures.GET("/:id", expenditureHandler.Get)

		writers := expenditures.Group("")
		writers.Use(middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleBudgetOfficer))
		{
			writers.POST("", expenditureHandler.Create)
			writers.POST("/:id/pay", expenditureHandler.Pay)
			writers.POST("/:id/cancel", expenditureHandler.Cancel)
		}
	}

	if cfg.Analytics.Enabled {
		analytics := secured.Group("/analytics")
		{
			analytics.GET("/variance", analyticsHandler.FiscalYearVariance)
			analytics.GET("/variance/:id", analyticsHandler.Variance)
			analytics.GET("/system", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin), analyticsHandler.SystemMetrics)
		}
	}

	notifications := secured.Group("/notifications")
	{
		notifications.GET("", notificationHandler.List)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
	}

	if cfg.Reports.Enabled {
		reports := api.Group("/reports")
		reports.GET("/download", reportHandler.Download)

		reportsSecured := reports.Group("")
		reportsSecured.Use(middleware.JWT(authService))
		{
			reportsSecured.POST("", reportHandler.Create)
			reportsSecured.GET("/:id", reportHandler.Status)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
