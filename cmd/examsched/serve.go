package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/examslot-api/api/swagger"
	"github.com/noah-isme/examslot-api/internal/handler"
	internalmiddleware "github.com/noah-isme/examslot-api/internal/middleware"
	"github.com/noah-isme/examslot-api/internal/models"
	"github.com/noah-isme/examslot-api/internal/repository"
	"github.com/noah-isme/examslot-api/internal/service"
	"github.com/noah-isme/examslot-api/pkg/cache"
	"github.com/noah-isme/examslot-api/pkg/config"
	"github.com/noah-isme/examslot-api/pkg/database"
	"github.com/noah-isme/examslot-api/pkg/jobs"
	"github.com/noah-isme/examslot-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/examslot-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/examslot-api/pkg/middleware/requestid"
	"github.com/noah-isme/examslot-api/pkg/storage"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logr, err := bootstrap()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logr)
		},
	}
}

type handlers struct {
	schedule *handler.ExamScheduleHandler
	slots    *handler.ExamSlotHandler
	calendar *handler.CalendarHandler
	metrics  *handler.MetricsHandler
}

func serve(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.MigrateOnStart {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			return err
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	metricsSvc := service.NewMetricsService()
	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.ListingTTL, logr)
	locker := cache.NewLocker(redisClient)
	validate := validator.New()

	courses := repository.NewCourseRepository(db)
	sections := repository.NewSectionRepository(db)
	students := repository.NewStudentRepository(db)
	constraints := repository.NewStudentConstraintRepository(db)
	slots := repository.NewExamSlotRepository(db)
	history := repository.NewExamSlotHistoryRepository(db)

	defaults, err := service.DefaultScheduleConfig(cfg.Scheduler)
	if err != nil {
		return fmt.Errorf("scheduler defaults: %w", err)
	}
	runs := service.NewScheduleRunStore(cfg.Scheduler.RunTTL, cacheSvc)
	scheduleSvc := service.NewExamScheduleService(courses, sections, students, constraints, slots, history, db,
		locker, cacheSvc, metricsSvc, runs, validate, logr,
		service.ExamScheduleServiceConfig{Defaults: defaults, LockTTL: cfg.Scheduler.LockTTL})

	worker := service.NewScheduleRunWorker(scheduleSvc, runs, logr)
	queue := jobs.NewQueue("schedule-generation", worker.Handle, jobs.QueueConfig{
		Workers:   cfg.Scheduler.Workers,
		Logger:    logr,
		Retryable: service.Retryable,
		OnGiveUp:  worker.GiveUp,
	})
	queue.Start(ctx)
	defer queue.Stop()
	scheduleSvc.UseDispatcher(queue)

	slotSvc := service.NewExamSlotService(slots, history, db, locker, cfg.Scheduler.LockTTL, cacheSvc, metricsSvc, validate, logr)

	location, err := time.LoadLocation(cfg.Calendar.TimeZone)
	if err != nil {
		return fmt.Errorf("calendar timezone: %w", err)
	}
	signer := storage.NewLinkSigner(cfg.Calendar.SigningSecret, cfg.Calendar.LinkTTL)
	exportSvc := service.NewExportService(courses, sections, students, slots, signer,
		service.ExportConfig{PublicBaseURL: cfg.Calendar.PublicBaseURL, Location: location}, logr, nil, nil)

	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	router := newRouter(cfg, logr, authSvc, metricsSvc, handlers{
		schedule: handler.NewExamScheduleHandler(scheduleSvc, exportSvc),
		slots:    handler.NewExamSlotHandler(slotSvc),
		calendar: handler.NewCalendarHandler(exportSvc),
		metrics:  handler.NewMetricsHandler(metricsSvc),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
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

	logr.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(cfg *config.Config, logr *zap.Logger, authSvc *service.AuthService, metricsSvc *service.MetricsService, h handlers) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins, "/calendar/"))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", h.metrics.Health)
	r.GET("/metrics", h.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	r.GET("/calendar/students/:token/exams.ics", h.calendar.Feed)

	admin := internalmiddleware.RequireRoles(models.RoleAdmin)
	editors := internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleTA)

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(authSvc))

	api.GET("/metrics/summary", admin, h.metrics.Summary)

	courses := api.Group("/courses/:courseId")
	courses.POST("/schedule/generate", admin, h.schedule.Generate)
	courses.GET("/schedule/export.xlsx", admin, h.schedule.ExportWorkbook)
	courses.GET("/schedule/export.csv", admin, h.schedule.ExportCSV)
	courses.GET("/exam-slots", h.slots.List)
	courses.POST("/exam-slots/bulk-unlock", admin, h.slots.BulkUnlock)
	courses.POST("/exam-slots/auto-lock", admin, h.slots.AutoLock)

	api.GET("/schedule-runs/:runId", h.schedule.Run)

	slots := api.Group("/exam-slots")
	slots.POST("/swap", editors, h.slots.Swap)
	slots.POST("/:id/lock", editors, h.slots.Lock)
	slots.POST("/:id/unlock", editors, h.slots.Unlock)
	slots.POST("/:id/schedule", editors, h.slots.ManualSchedule)

	api.POST("/exam-slot-histories/:id/revert", editors, h.slots.Revert)

	students := api.Group("/students/:studentId")
	students.POST("/schedule/regenerate", editors, h.schedule.RegenerateStudent)
	students.GET("/exams/:examNumber/history", h.slots.History)
	students.GET("/calendar-link", editors, h.calendar.Link)

	return r
}
