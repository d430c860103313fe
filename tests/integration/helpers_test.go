package integration

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/trackline/server/internal/api"
	"github.com/trackline/server/internal/audit"
	"github.com/trackline/server/internal/auth"
	"github.com/trackline/server/internal/config"
	"github.com/trackline/server/internal/domain/issues"
	"github.com/trackline/server/internal/messaging"
	"github.com/trackline/server/internal/storage/postgres"
)

type testEnv struct {
	Context    context.Context
	DBURL      string
	Pool       *pgxpool.Pool
	Server     *httptest.Server
	Repo       *postgres.Repository
	JWT        *auth.JWTManager
	SigningKey []byte
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	container, err := tcpostgres.Run(
		ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("trackline"),
		tcpostgres.WithUsername("trackline"),
		tcpostgres.WithPassword("trackline_dev"),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dbURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrationsPath := filepath.Join(projectRoot(t), "internal", "storage", "postgres", "migrations")
	require.NoError(t, migrateWithRetry(dbURL, migrationsPath, 10*time.Second))

	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	require.NoError(t, err)
	_, err = migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	require.NoError(t, err)

	repo, err := postgres.NewRepository(pool)
	require.NoError(t, err)

	cfg := testConfig(dbURL)

	jwtKey, err := auth.DeriveAPIJWTKey([]byte(cfg.Auth.JWTSecret))
	require.NoError(t, err)
	signingKey, err := auth.DeriveWebhookSigningKey([]byte(cfg.Auth.JWTSecret))
	require.NoError(t, err)
	jwtManager := auth.NewJWTManager(jwtKey, time.Hour, cfg.Auth.JWTIssuer)

	deliveryClient := &http.Client{Timeout: cfg.Messaging.DeliveryTimeout}
	workers := messaging.NewWorkers(repo.Subscriptions(), deliveryClient, signingKey, testLogger())
	riverClient, err := messaging.NewClient(pool, workers, slog.New(slog.DiscardHandler), nil, cfg.Messaging.DeliveryMaxAttempts, cfg.Messaging.MaxWorkers)
	require.NoError(t, err)

	require.NoError(t, riverClient.Start(ctx))
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		_ = riverClient.Stop(stopCtx)
	})

	publisher := messaging.NewRiverPublisher(riverClient, cfg.Messaging.DeliveryMaxAttempts)
	service := issues.NewService(repo.Issues(), publisher)

	server := httptest.NewServer(api.NewRouter(api.Dependencies{
		Config:      cfg,
		Logger:      testLogger(),
		Pool:        pool,
		RiverClient: riverClient,
		Issues:      service,
		JWT:         jwtManager,
		Audit:       audit.NewLogger(),
		Version:     "test",
		GitCommit:   "none",
	}))
	t.Cleanup(server.Close)

	return &testEnv{
		Context:    ctx,
		DBURL:      dbURL,
		Pool:       pool,
		Server:     server,
		Repo:       repo,
		JWT:        jwtManager,
		SigningKey: signingKey,
	}
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testConfig(dbURL string) config.Config {
	return config.Config{
		Server: config.ServerConfig{
			Host:    "127.0.0.1",
			Port:    0,
			BaseURL: "http://localhost",
		},
		Database: config.DatabaseConfig{
			URL:            dbURL,
			MaxConnections: 5,
			MaxIdle:        2,
		},
		Auth: config.AuthConfig{
			JWTSecret: "test-secret-32-bytes-minimum----",
			JWTIssuer: "trackline-test",
		},
		RateLimit: config.RateLimitConfig{
			PublicPerMinute: 1000,
			AgentPerMinute:  1000,
		},
		Messaging: config.MessagingConfig{
			DeliveryMaxAttempts: 3,
			DeliveryTimeout:     5 * time.Second,
			MaxWorkers:          4,
		},
		Logging: config.LoggingConfig{
			Level:  "debug",
			Format: "json",
		},
		Environment: "test",
	}
}

func agentToken(t *testing.T, env *testEnv) string {
	t.Helper()

	token, err := env.JWT.Generate("integration-agent", "agent")
	require.NoError(t, err)
	return token
}

func projectRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}

func migrateWithRetry(databaseURL string, migrationsPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := postgres.MigrateUp(databaseURL, migrationsPath); err != nil {
			if time.Now().After(deadline) {
				return err
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}
		return nil
	}
}
