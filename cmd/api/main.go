package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/studielog/logbook-api/internal/config"
	"github.com/studielog/logbook-api/internal/database"
	"github.com/studielog/logbook-api/internal/handler"
	"github.com/studielog/logbook-api/internal/middleware"
	"github.com/studielog/logbook-api/internal/models"
	"github.com/studielog/logbook-api/internal/repository"
	"github.com/studielog/logbook-api/internal/router"
	"github.com/studielog/logbook-api/internal/service"
	"github.com/studielog/logbook-api/pkg/lms"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "logbook-api").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	if cfg.AppEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := db.AutoMigrate(
		&models.Student{},
		&models.Course{},
		&models.Assignment{},
		&models.LogbookEntry{},
		&models.Notification{},
	); err != nil {
		logger.Fatal().Err(err).Msg("database migration failed")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, notification fan-out over redis disabled")
			redisClient = nil
		}
	}

	var natsConn *nats.Conn
	if cfg.NatsURL != "" {
		natsConn, err = nats.Connect(cfg.NatsURL, nats.Name(cfg.AppName))
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, notification fan-out over nats disabled")
			natsConn = nil
		}
	}

	lmsClient, err := lms.New(lms.Config{
		BaseURL: cfg.LMSBaseURL,
		Token:   cfg.LMSToken,
		Timeout: cfg.LMSTimeout,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build lms client")
	}

	validate := validator.New()

	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	entryRepo := repository.NewEntryRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	notificationService := service.NewNotificationService(notificationRepo, redisClient, cfg.EventChannelBase, natsConn, validate, logger)
	catalogResolver := service.NewCatalogResolver(courseRepo, assignmentRepo, lmsClient, logger)
	gradeSyncService := service.NewGradeSyncService(entryRepo, lmsClient, logger)
	entryService := service.NewEntryService(entryRepo, studentRepo, catalogResolver, notificationService, gradeSyncService, validate, logger)

	entryHandler := handler.NewEntryHandler(entryService, validate, logger)
	gradingHandler := handler.NewGradingHandler(entryService, validate, logger)
	syncHandler := handler.NewSyncHandler(gradeSyncService, logger)
	notificationHandler := handler.NewNotificationHandler(notificationService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})

	router.Register(app, router.Dependencies{
		Config:              cfg,
		EntryHandler:        entryHandler,
		GradingHandler:      gradingHandler,
		SyncHandler:         syncHandler,
		NotificationHandler: notificationHandler,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gradeSyncService.Start(ctx, cfg.GradeSyncInterval)

	go func() {
		logger.Info().Str("address", cfg.HTTPAddress()).Msg("http server starting")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("http server stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if natsConn != nil {
		natsConn.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}

	logger.Info().Msg("server stopped")
}
