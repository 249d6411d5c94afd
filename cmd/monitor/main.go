package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Awuah-B/report-bot/internal/adapter"
	"github.com/Awuah-B/report-bot/internal/api/middleware"
	"github.com/Awuah-B/report-bot/internal/api/server"
	"github.com/Awuah-B/report-bot/internal/config"
	"github.com/Awuah-B/report-bot/internal/diff"
	"github.com/Awuah-B/report-bot/internal/feed"
	"github.com/Awuah-B/report-bot/internal/logger"
	"github.com/Awuah-B/report-bot/internal/messaging"
	"github.com/Awuah-B/report-bot/internal/notifier"
	"github.com/Awuah-B/report-bot/internal/poller"
	"github.com/Awuah-B/report-bot/internal/registry"
	"github.com/Awuah-B/report-bot/internal/store"
	"github.com/Awuah-B/report-bot/internal/telegram"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadMonitorConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "monitor",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting NPA order report monitor")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)

	// Initialize store and run migrations
	dataStore := store.NewPGStore(db)
	if err := dataStore.Migrate(ctx); err != nil {
		logger.FatalCtx(ctx, "Failed to migrate database", zap.Error(err))
	}

	// Initialize adapters
	clock := adapter.NewClock()
	feedHTTP := adapter.NewHTTPClient(cfg.Feed.Timeout)
	telegramHTTP := adapter.NewHTTPClient(cfg.Telegram.SendTimeout)

	// Initialize the report feed
	source := feed.NewClient(feedHTTP, clock, cfg.Feed)

	// Initialize the Telegram transport and subscription registry
	bot := telegram.NewClient(telegramHTTP, cfg.Telegram)
	reg := registry.New(dataStore, bot, cfg.Telegram.SuperadminIDs)

	// Initialize the notifier
	ntf := notifier.New(bot, reg, notifier.Config{
		WorkerPoolSize:     cfg.Notifier.WorkerPoolSize,
		DeliveryTimeout:    cfg.Notifier.DeliveryTimeout,
		MaxRetries:         cfg.Notifier.MaxRetries,
		InitialBackoff:     cfg.Notifier.InitialBackoff,
		MaxDetailedRecords: cfg.Notifier.MaxDetailedRecords,
	})
	defer ntf.StopAndWait()

	// Initialize the event publisher; NATS is optional
	var publisher messaging.Publisher = messaging.NoopPublisher{}
	if cfg.NATS.URL != "" {
		publisher, err = messaging.NewJetStreamPublisher(ctx, adapter.NewNatsJetStream(), cfg.NATS)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err), zap.String("url", cfg.NATS.URL))
		}
	} else {
		logger.WarnCtx(ctx, "NATS URL not configured, event publishing disabled")
	}
	defer publisher.Close()

	// Initialize the poll scheduler
	monitor := poller.NewMonitor(cfg.Poller, source, dataStore, diff.NewEngine(dataStore), reg, ntf, publisher, clock)

	// Mount the HTTP API with the in-process trigger
	apiServer := server.New(server.Config{
		Debug:        cfg.Debug,
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		Auth: middleware.AuthConfig{
			JWTPublicKey: cfg.Auth.JWTPublicKey,
			APIKeys:      cfg.Auth.APIKeys,
		},
	}, dataStore, reg, monitor)

	errChan := make(chan error, 2)
	go func() {
		if err := monitor.Start(ctx); err != nil {
			errChan <- fmt.Errorf("poller failed: %w", err)
		}
	}()
	go func() {
		if err := apiServer.Start(); err != nil {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.ErrorCtx(ctx, err)
	}

	cancel()

	// Give everything time to shut down gracefully
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.ErrorCtx(shutdownCtx, err)
	}
	if err := monitor.Stop(shutdownCtx); err != nil {
		logger.ErrorCtx(shutdownCtx, err)
	}

	logger.InfoCtx(shutdownCtx, "Monitor stopped")
}
