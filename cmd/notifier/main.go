package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/kursadbilgin/notification-dispatch/internal/config"
	"github.com/kursadbilgin/notification-dispatch/internal/domain"
	"github.com/kursadbilgin/notification-dispatch/internal/handler"
	"github.com/kursadbilgin/notification-dispatch/internal/infra/postgresql"
	"github.com/kursadbilgin/notification-dispatch/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/notification-dispatch/internal/infra/redis"
	"github.com/kursadbilgin/notification-dispatch/internal/observability"
	"github.com/kursadbilgin/notification-dispatch/internal/provider"
	"github.com/kursadbilgin/notification-dispatch/internal/queue"
	"github.com/kursadbilgin/notification-dispatch/internal/repository"
	"github.com/kursadbilgin/notification-dispatch/internal/service"
	"github.com/kursadbilgin/notification-dispatch/internal/templates"
	"github.com/kursadbilgin/notification-dispatch/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	startupTimeout  = 60 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("notifier stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancelStart := context.WithTimeout(ctx, startupTimeout)
	defer cancelStart()

	db, err := postgresql.NewPostgres(startCtx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(startCtx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	limiter, err := infraredis.NewSendLimiter(rdb, cfg.SendRateLimitPerSec)
	if err != nil {
		return err
	}

	signer, err := provider.NewDKIMSigner(cfg.DKIM())
	if err != nil {
		return fmt.Errorf("dkim signer: %w", err)
	}
	mailer, err := provider.NewSMTPTransport(cfg.SMTP(), signer)
	if err != nil {
		return fmt.Errorf("smtp transport: %w", err)
	}

	sms, push, err := plainTransports(cfg.WebhookURL)
	if err != nil {
		return err
	}

	dispatcher, err := service.NewDispatcher(mailer, sms, push, templates.MustNewResolver())
	if err != nil {
		return err
	}

	broker, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return err
	}
	publisher := queue.NewRabbitMQPublisher(broker)
	consumer := queue.NewRabbitMQConsumer(broker, logger)

	metrics := observability.NewMetrics()

	engine, err := service.NewRetryEngine(publisher, dispatcher, service.NewTimerScheduler(), logger)
	if err != nil {
		return err
	}
	deadLetters := repository.NewGormDeadLetterRepo(db)
	engine.SetLedger(repository.NewGormAttemptRepo(db), deadLetters)
	engine.SetRateLimiter(limiter)
	engine.SetMetrics(metrics)

	notifier, err := service.NewNotificationService(broker, publisher, consumer, mailer, engine, logger)
	if err != nil {
		return err
	}
	notifier.SetMetrics(metrics)
	notifier = service.SetDefault(notifier)

	if err := notifier.Initialize(startCtx); err != nil {
		return fmt.Errorf("notification service initialization failed: %w", err)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())
	handler.RegisterOpsRoutes(app, metrics,
		handler.NotifierCheck(notifier.Ready),
		handler.PostgresCheck(sqlDB),
		handler.RedisCheck(rdb),
	)
	if err := handler.RegisterDeadLetterRoutes(app, deadLetters); err != nil {
		return err
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("ops server listening", zap.Int("port", cfg.OpsPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.OpsPort)); err != nil {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down notifier")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Warn("ops server shutdown failed", zap.Error(err))
		}
		return notifier.Close(shutdownCtx)
	})

	return g.Wait()
}

// plainTransports binds the SMS and push seams to the webhook bridge when one is configured.
func plainTransports(webhookURL string) (provider.Transport, provider.Transport, error) {
	if webhookURL == "" {
		return nil, nil, nil
	}

	sms, err := provider.NewWebhookTransport(webhookURL, domain.TypeSMS)
	if err != nil {
		return nil, nil, fmt.Errorf("sms webhook transport: %w", err)
	}
	push, err := provider.NewWebhookTransport(webhookURL, domain.TypePush)
	if err != nil {
		return nil, nil, fmt.Errorf("push webhook transport: %w", err)
	}
	return sms, push, nil
}
