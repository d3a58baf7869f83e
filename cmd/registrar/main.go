package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/opencampus/registrar-api/api/swagger"
	"github.com/opencampus/registrar-api/internal/events"
	"github.com/opencampus/registrar-api/internal/handler"
	"github.com/opencampus/registrar-api/internal/middleware"
	"github.com/opencampus/registrar-api/internal/models"
	"github.com/opencampus/registrar-api/internal/repository"
	"github.com/opencampus/registrar-api/internal/service"
	"github.com/opencampus/registrar-api/pkg/cache"
	"github.com/opencampus/registrar-api/pkg/config"
	"github.com/opencampus/registrar-api/pkg/database"
	"github.com/opencampus/registrar-api/pkg/jobs"
	"github.com/opencampus/registrar-api/pkg/logger"
	corsmiddleware "github.com/opencampus/registrar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/opencampus/registrar-api/pkg/middleware/requestid"
)

// @title Registrar API
// @version 0.1.0
// @description Academic rules and scheduling core
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
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect redis", "error", err)
	}
	defer redisClient.Close()

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Events.Enabled {
		publisher = events.NewRedisPublisher(redisClient, cfg.Events.ChannelPrefix, logr)
	}

	sectionRepo := repository.NewSectionRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	gradeRepo := repository.NewGradeRepository(db)

	metricsSvc := service.NewMetricsService()
	store := cache.NewStore(redisClient)

	sectionSvc := service.NewSectionService(sectionRepo, enrollmentRepo, nil, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, sectionRepo, studentRepo, publisher, metricsSvc, nil, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, enrollmentRepo, store, cfg.Compliance.SummaryCacheTTL, publisher, metricsSvc, nil, logr)
	gradeSvc := service.NewGradeWorkflowService(gradeRepo, attendanceRepo, publisher, metricsSvc, nil, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	termCloseQueue := jobs.NewQueue("term-close", func(ctx context.Context, job jobs.Job) error {
		sectionID, ok := job.Payload.(string)
		if !ok {
			return fmt.Errorf("term close job %s has no section id", job.ID)
		}
		if _, err := attendanceSvc.Lock(ctx, sectionID); err != nil {
			return err
		}
		if _, err := gradeSvc.Archive(ctx, sectionID, "system"); err != nil {
			return err
		}
		if _, err := enrollmentSvc.CompleteSection(ctx, sectionID); err != nil {
			return err
		}
		return nil
	}, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		BufferSize: cfg.Jobs.BufferSize,
		MaxRetries: cfg.Jobs.MaxRetries,
		RetryDelay: cfg.Jobs.RetryDelay,
		Logger:     logr,
	})
	termCloseQueue.Start(ctx)
	defer termCloseQueue.Stop()

	sectionHandler := handler.NewSectionHandler(sectionSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	opsHandler := handler.NewOpsHandler(termCloseQueue)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// the catalog is browsable without a token
	catalog := r.Group(cfg.APIPrefix)
	catalog.Use(middleware.OptionalJWT(cfg.JWT.Secret))
	{
		catalog.GET("/sections", sectionHandler.List)
		catalog.GET("/sections/:id", sectionHandler.Get)
		catalog.GET("/schedules/rooms/:room", sectionHandler.RoomSchedule)
		catalog.GET("/schedules/instructors/:id", sectionHandler.InstructorSchedule)
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(cfg.JWT.Secret))
	{
		sections := api.Group("/sections")
		{
			sections.POST("/check-block", middleware.RequireRoles(models.RoleRegistrar, models.RoleInstructor), sectionHandler.CheckBlock)
			sections.GET("/:id/compliance", middleware.RequireRoles(models.RoleRegistrar, models.RoleInstructor, models.RoleReviewer), attendanceHandler.SectionSummary)
			sections.POST("/:id/attendance/lock", middleware.RequireRoles(models.RoleRegistrar), attendanceHandler.Lock)
			sections.POST("/:id/close", middleware.RequireRoles(models.RoleRegistrar), opsHandler.CloseSection)

			sections.POST("/:id/grades/submit", middleware.RequireRoles(models.RoleInstructor, models.RoleRegistrar), gradeHandler.Submit)
			sections.POST("/:id/grades/review", middleware.RequireRoles(models.RoleReviewer), gradeHandler.Review)
			sections.POST("/:id/grades/approve", middleware.RequireRoles(models.RoleReviewer), gradeHandler.Approve)
			sections.POST("/:id/grades/reject", middleware.RequireRoles(models.RoleReviewer), gradeHandler.Reject)
			sections.POST("/:id/grades/publish", middleware.RequireRoles(models.RoleRegistrar), gradeHandler.Publish)
			sections.POST("/:id/grades/archive", middleware.RequireRoles(models.RoleRegistrar), gradeHandler.Archive)
		}

		enrollments := api.Group("/enrollments")
		{
			enrollments.GET("", enrollmentHandler.List)
			enrollments.POST("", middleware.RequireRoles(models.RoleRegistrar), enrollmentHandler.Enroll)
			enrollments.POST("/validate", enrollmentHandler.Validate)
			enrollments.DELETE("/:id", middleware.RequireRoles(models.RoleRegistrar, models.RoleStudent), enrollmentHandler.Drop)
			enrollments.GET("/:id/attendance", attendanceHandler.ListByEnrollment)
			enrollments.GET("/:id/compliance", attendanceHandler.Compliance)
		}

		attendance := api.Group("/attendance")
		attendance.Use(middleware.RequireRoles(models.RoleInstructor, models.RoleRegistrar))
		{
			attendance.POST("", attendanceHandler.Mark)
			attendance.POST("/bulk", attendanceHandler.BulkMark)
		}

		grades := api.Group("/grades")
		{
			grades.GET("", gradeHandler.List)
			grades.PUT("", middleware.RequireRoles(models.RoleInstructor, models.RoleRegistrar), gradeHandler.Upsert)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)

	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}
