// Package testing provides test utilities including testcontainers setup.
package testing

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/petmar2017/wealth-advisor-scraper/internal/storage"
)

// IntegrationEnabled reports whether container-backed tests should run.
func IntegrationEnabled() bool {
	return os.Getenv("INTEGRATION_TESTS") == "1"
}

// ContainerConfig holds configuration for test containers.
type ContainerConfig struct {
	PostgresImage   string
	PostgresDB      string
	PostgresUser    string
	PostgresPass    string
	RedisImage      string
	StartupTimeout  time.Duration
	CleanupOnFinish bool
}

// DefaultContainerConfig returns a default container configuration.
func DefaultContainerConfig() ContainerConfig {
	return ContainerConfig{
		PostgresImage:   "postgres:16-alpine",
		PostgresDB:      "testdb",
		PostgresUser:    "testuser",
		PostgresPass:    "testpass",
		RedisImage:      "redis:7-alpine",
		StartupTimeout:  60 * time.Second,
		CleanupOnFinish: true,
	}
}

// TestContainers holds running test containers.
type TestContainers struct {
	PostgresContainer *postgres.PostgresContainer
	RedisContainer    *redis.RedisContainer
	PostgresConnStr   string
	RedisConnStr      string
	config            ContainerConfig
	logger            *slog.Logger
}

// NewTestContainers creates a container set. Nothing is started yet.
func NewTestContainers(config ContainerConfig, logger *slog.Logger) *TestContainers {
	if logger == nil {
		logger = slog.Default()
	}

	return &TestContainers{
		config: config,
		logger: logger.With("component", "testcontainers"),
	}
}

// StartPostgres starts a PostgreSQL container.
func (tc *TestContainers) StartPostgres(ctx context.Context) error {
	tc.logger.Info("starting PostgreSQL container", "image", tc.config.PostgresImage)

	container, err := postgres.Run(ctx,
		tc.config.PostgresImage,
		postgres.WithDatabase(tc.config.PostgresDB),
		postgres.WithUsername(tc.config.PostgresUser),
		postgres.WithPassword(tc.config.PostgresPass),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(tc.config.StartupTimeout),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to start postgres container: %w", err)
	}

	tc.PostgresContainer = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	tc.PostgresConnStr = connStr
	tc.logger.Info("PostgreSQL container started")

	return nil
}

// StartRedis starts a Redis container.
func (tc *TestContainers) StartRedis(ctx context.Context) error {
	tc.logger.Info("starting Redis container", "image", tc.config.RedisImage)

	container, err := redis.Run(ctx,
		tc.config.RedisImage,
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(tc.config.StartupTimeout),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to start redis container: %w", err)
	}

	tc.RedisContainer = container

	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		return fmt.Errorf("failed to get redis connection string: %w", err)
	}

	tc.RedisConnStr = connStr
	tc.logger.Info("Redis container started", "connection", connStr)

	return nil
}

// Cleanup terminates all running containers.
func (tc *TestContainers) Cleanup(ctx context.Context) error {
	if !tc.config.CleanupOnFinish {
		return nil
	}
	tc.logger.Info("cleaning up test containers")

	var errs []error

	if tc.PostgresContainer != nil {
		if err := tc.PostgresContainer.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to terminate postgres: %w", err))
		}
	}

	if tc.RedisContainer != nil {
		if err := tc.RedisContainer.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to terminate redis: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}

	tc.logger.Info("test containers cleaned up")
	return nil
}

// OpenPostgres opens the test database and runs the storage migrations.
func (tc *TestContainers) OpenPostgres(ctx context.Context) (*storage.DB, error) {
	if tc.PostgresConnStr == "" {
		return nil, fmt.Errorf("postgres container not started")
	}

	db, err := storage.OpenDB(ctx, storage.DBConfig{
		Driver:       "postgres",
		DSN:          tc.PostgresConnStr,
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	})
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	tc.logger.Info("migrations completed successfully")
	return db, nil
}

// TruncateAll empties every storage table for a clean test state.
func TruncateAll(ctx context.Context, db *storage.DB) error {
	tables := []string{"advisors", "crawl_pairs", "crawl_runs", "discovered_urls"}

	for _, table := range tables {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s", table)); err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}
	}

	return nil
}

// RedisConfig returns a storage.RedisConfig pointing at the Redis container.
func (tc *TestContainers) RedisConfig(ctx context.Context) (storage.RedisConfig, error) {
	if tc.RedisContainer == nil {
		return storage.RedisConfig{}, fmt.Errorf("redis container not started")
	}

	host, err := tc.RedisContainer.Host(ctx)
	if err != nil {
		return storage.RedisConfig{}, fmt.Errorf("failed to get redis host: %w", err)
	}
	port, err := tc.RedisContainer.MappedPort(ctx, "6379/tcp")
	if err != nil {
		return storage.RedisConfig{}, fmt.Errorf("failed to get redis port: %w", err)
	}

	return storage.RedisConfig{Host: host, Port: port.Int()}, nil
}
