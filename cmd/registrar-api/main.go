package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/uni-registrar-api/api/swagger"
	"github.com/noah-isme/uni-registrar-api/internal/handler"
	"github.com/noah-isme/uni-registrar-api/internal/middleware"
	"github.com/noah-isme/uni-registrar-api/internal/models"
	"github.com/noah-isme/uni-registrar-api/internal/repository"
	"github.com/noah-isme/uni-registrar-api/internal/service"
	"github.com/noah-isme/uni-registrar-api/pkg/cache"
	"github.com/noah-isme/uni-registrar-api/pkg/config"
	"github.com/noah-isme/uni-registrar-api/pkg/database"
	"github.com/noah-isme/uni-registrar-api/pkg/jobs"
	"github.com/noah-isme/uni-registrar-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/uni-registrar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/uni-registrar-api/pkg/middleware/requestid"
	"github.com/noah-isme/uni-registrar-api/pkg/storage"
)

// @title Uni Registrar API
// @version 1.0.0
// @description Enrollment lifecycle, credit-hour accounting and academic records
// @BasePath /
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

	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if redisClient, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Sugar().Warnw("redis unavailable, derived-value cache disabled", "error", err)
	} else {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Registrar.CGPACacheTTL, logr, cfg.Registrar.CGPACacheEnabled)

	students := repository.NewStudentRepository(db)
	courses := repository.NewCourseRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)
	grades := repository.NewGradeRepository(db)
	departments := repository.NewDepartmentRepository(db)

	authSvc := service.NewAuthService(cfg.JWT.Secret)
	enrollmentSvc := service.NewEnrollmentService(enrollments, students, courses, metrics, nil, logr)
	reconciliationSvc := service.NewReconciliationService(enrollments, metrics, logr)
	gradeSvc := service.NewGradeService(grades, enrollments, students, courses, cacheSvc, nil, logr)
	transcriptSvc := service.NewTranscriptService(grades, students, courses, nil, logr)
	studentSvc := service.NewStudentService(students, enrollmentSvc, logr)

	localStorage, err := storage.NewLocalStorage(cfg.Export.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Export.SignSecret, cfg.Export.ResultTTL)
	exportJobs := repository.NewExportJobRepository(db)
	exportSvc := service.NewExportService(students, grades, localStorage, signer,
		service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Export.ResultTTL}, logr, nil, nil)

	var exportJobSvc *service.ExportJobService
	exportQueue := jobs.NewQueue("exports", func(ctx context.Context, job jobs.Job) error {
		return exportJobSvc.Process(ctx, job)
	}, jobs.QueueConfig{Workers: cfg.Export.Workers, Logger: logr})
	exportJobSvc = service.NewExportJobService(exportJobs, exportQueue, exportSvc, logr,
		service.ExportJobConfig{ResultTTL: cfg.Export.ResultTTL, CleanupInterval: cfg.Export.CleanupInterval})

	rootCtx := context.Background()
	exportQueue.Start(rootCtx)
	defer exportQueue.Stop()
	exportJobSvc.RecoverPendingJobs(rootCtx)
	exportJobSvc.StartCleanup(rootCtx)

	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc, transcriptSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	courseHandler := handler.NewCourseHandler(courses)
	departmentHandler := handler.NewDepartmentHandler(departments)
	maintenanceHandler := handler.NewMaintenanceHandler(reconciliationSvc)
	exportHandler := handler.NewExportHandler(exportJobSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Catalog reads are public; claims attach when a token is present.
	catalog := r.Group(cfg.APIPrefix)
	catalog.Use(middleware.OptionalJWT(authSvc))
	catalog.GET("/courses", courseHandler.List)
	catalog.GET("/courses/:code", courseHandler.Get)
	catalog.GET("/departments", departmentHandler.List)
	catalog.GET("/departments/:code", departmentHandler.Get)
	// The signed token is the sole guard here; links must work without a
	// session token attached.
	catalog.GET("/exports/download/:token", exportHandler.Download)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff)
	admin := middleware.RequireRoles(models.RoleAdmin)
	selfOrStaff := middleware.RBAC(string(models.RoleAdmin), string(models.RoleStaff), "SELF")

	api.GET("/students", staff, studentHandler.List)
	api.GET("/students/:id", selfOrStaff, studentHandler.Get)
	api.POST("/students/:id/promote", staff, studentHandler.Promote)
	api.GET("/students/:id/cgpa", selfOrStaff, gradeHandler.CGPA)
	api.GET("/students/:id/transcript.pdf", selfOrStaff, gradeHandler.Transcript)

	api.GET("/enrollments", staff, enrollmentHandler.List)
	api.POST("/enrollments", enrollmentHandler.Request)
	api.PUT("/enrollments/:studentId/:courseCode/status", staff, enrollmentHandler.SetStatus)
	api.DELETE("/enrollments/:studentId/:courseCode", staff, enrollmentHandler.Delete)

	api.PUT("/grades", staff, gradeHandler.UpsertMarks)
	api.GET("/grades/:studentId/:courseCode", staff, gradeHandler.Detail)
	api.DELETE("/grades/:studentId/:courseCode", admin, gradeHandler.DeleteMarks)

	api.POST("/exports/transcripts", staff, exportHandler.Create)
	api.GET("/exports/:id", staff, exportHandler.Status)

	if cfg.Registrar.ReconcileEnabled {
		api.POST("/maintenance/enrollments/reconcile", admin, maintenanceHandler.ReconcileEnrollments)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
