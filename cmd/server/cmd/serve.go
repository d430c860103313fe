package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/trackline/server/internal/api"
	"github.com/trackline/server/internal/audit"
	"github.com/trackline/server/internal/auth"
	"github.com/trackline/server/internal/config"
	"github.com/trackline/server/internal/domain/issues"
	"github.com/trackline/server/internal/messaging"
	"github.com/trackline/server/internal/metrics"
	"github.com/trackline/server/internal/storage/postgres"
	"github.com/trackline/server/internal/telemetry"
)

var (
	// Server flags (override config/env)
	serverHost string
	serverPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Trackline HTTP server",
	Long: `Start the Trackline HTTP server and begin accepting API requests.

The server will:
- Load configuration from environment variables (or --config file if provided)
- Start the event delivery workers backed by Postgres
- Start the HTTP server with the issue tracking API
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  trackline serve

  # Start on a specific host and port
  trackline serve --host 127.0.0.1 --port 9090

  # Start with debug logging
  trackline serve --log-level debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host address (default: 0.0.0.0)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (default: 8080)")
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Msg("starting trackline server")

	metrics.Init(Version, GitCommit, BuildDate)

	tracingShutdown, err := telemetry.InitTracing(context.Background(), cfg.Tracing, Version)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize tracing")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tracingShutdown(shutdownCtx)
		}()
	}

	poolCtx, poolCancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := pgxpool.New(poolCtx, cfg.Database.URL)
	poolCancel()
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return fmt.Errorf("repository init failed: %w", err)
	}

	jwtKey, err := auth.DeriveAPIJWTKey([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("derive jwt key: %w", err)
	}
	signingKey, err := auth.DeriveWebhookSigningKey([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("derive webhook signing key: %w", err)
	}
	jwtManager := auth.NewJWTManager(jwtKey, 24*time.Hour, cfg.Auth.JWTIssuer)

	deliveryClient := &http.Client{Timeout: cfg.Messaging.DeliveryTimeout}
	workers := messaging.NewWorkers(repo.Subscriptions(), deliveryClient, signingKey, logger)
	hooks := []rivertype.Hook{metrics.NewRiverMetricsHook()}
	riverClient, err := messaging.NewClient(pool, workers, slog.Default(), hooks, cfg.Messaging.DeliveryMaxAttempts, cfg.Messaging.MaxWorkers)
	if err != nil {
		return fmt.Errorf("river client init failed: %w", err)
	}

	riverCtx, riverCancel := context.WithCancel(context.Background())
	defer riverCancel()
	if err := riverClient.Start(riverCtx); err != nil {
		return fmt.Errorf("event delivery workers failed to start: %w", err)
	}
	logger.Info().Msg("event delivery workers started")
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := riverClient.Stop(stopCtx); err != nil {
			logger.Error().Err(err).Msg("event delivery workers shutdown error")
		} else {
			logger.Info().Msg("event delivery workers stopped")
		}
	}()

	publisher := messaging.NewRiverPublisher(riverClient, cfg.Messaging.DeliveryMaxAttempts)
	issuesService := issues.NewService(repo.Issues(), publisher)

	router := api.NewRouter(api.Dependencies{
		Config:      cfg,
		Logger:      logger,
		Pool:        pool,
		RiverClient: riverClient,
		Issues:      issuesService,
		JWT:         jwtManager,
		Audit:       audit.NewLogger(),
		Version:     Version,
		GitCommit:   GitCommit,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	return gracefulShutdown(server, logger)
}

func loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, err
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	return cfg, nil
}

func gracefulShutdown(server *http.Server, logger zerolog.Logger) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}
