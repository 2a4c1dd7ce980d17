package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvKeys = []string{
	"SHOPSYNC_APP_NAME",
	"SHOPSYNC_APP_ENV",
	"SHOPSYNC_APP_PORT",
	"SHOPSYNC_DATABASE_DRIVER",
	"SHOPSYNC_DATABASE_PATH",
	"SHOPSYNC_DATABASE_HOST",
	"SHOPSYNC_DATABASE_PORT",
	"SHOPSYNC_DATABASE_PASSWORD",
	"SHOPSYNC_DATABASE_SSLMODE",
	"SHOPSYNC_DATABASE_MAX_OPEN_CONNS",
	"SHOPSYNC_DATABASE_MAX_IDLE_CONNS",
	"SHOPSYNC_JWT_SECRET",
	"SHOPSYNC_SHOPIFY_REQUESTS_PER_SECOND",
	"SHOPSYNC_SHOPIFY_BASE_BACKOFF",
	"SHOPSYNC_SHOPIFY_MAX_BACKOFF",
	"SHOPSYNC_SHOPIFY_CALLBACK_BASE_URL",
	"SHOPSYNC_WEBHOOK_RETENTION",
	"SHOPSYNC_WEBHOOK_DEDUP_BACKEND",
	"SHOPSYNC_SYNC_LOCK_BACKEND",
	"SHOPSYNC_SYNC_PAGE_SIZE",
	"SHOPSYNC_SWAGGER_ENABLED",
	"SHOPSYNC_SWAGGER_REQUIRE_AUTH",
	"SHOPSYNC_TELEMETRY_PROFILING_ENABLED",
	"SHOPSYNC_TELEMETRY_PYROSCOPE_ADDRESS",
}

// isolateEnv clears the config variables for the duration of a test
func isolateEnv(t *testing.T) {
	t.Helper()
	original := make(map[string]string, len(configEnvKeys))
	for _, k := range configEnvKeys {
		original[k] = os.Getenv(k)
		os.Unsetenv(k)
	}
	t.Cleanup(func() {
		for k, v := range original {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		isolateEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "shopsync", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, DriverPostgres, cfg.Database.Driver)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "shopsync", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)

		assert.Equal(t, "2024-01", cfg.Shopify.APIVersion)
		assert.Equal(t, 2.0, cfg.Shopify.RequestsPerSecond)
		assert.Equal(t, 4, cfg.Shopify.Burst)
		assert.Equal(t, 5, cfg.Shopify.MaxAttempts)
		assert.Equal(t, 500*time.Millisecond, cfg.Shopify.BaseBackoff)
		assert.Equal(t, 10*time.Second, cfg.Shopify.MaxBackoff)

		assert.Equal(t, 48*time.Hour, cfg.Webhook.Retention)
		assert.Equal(t, int64(1<<20), cfg.Webhook.MaxBodySize)
		assert.Equal(t, BackendMemory, cfg.Webhook.DedupBackend)
		assert.Equal(t, BackendMemory, cfg.Sync.LockBackend)
		assert.Equal(t, 50, cfg.Sync.PageSize)
		assert.Equal(t, 15*time.Minute, cfg.Scheduler.SyncInterval)
		assert.Equal(t, 100, cfg.Scheduler.QueueSize)
	})

	t.Run("loads values from environment variables with SHOPSYNC prefix", func(t *testing.T) {
		isolateEnv(t)
		os.Setenv("SHOPSYNC_APP_NAME", "test-app")
		os.Setenv("SHOPSYNC_APP_PORT", "9000")
		os.Setenv("SHOPSYNC_DATABASE_DRIVER", "sqlite")
		os.Setenv("SHOPSYNC_DATABASE_PATH", ":memory:")
		os.Setenv("SHOPSYNC_SHOPIFY_REQUESTS_PER_SECOND", "4")
		os.Setenv("SHOPSYNC_WEBHOOK_RETENTION", "72h")
		os.Setenv("SHOPSYNC_WEBHOOK_DEDUP_BACKEND", "redis")
		os.Setenv("SHOPSYNC_SYNC_LOCK_BACKEND", "redis")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, DriverSQLite, cfg.Database.Driver)
		assert.Equal(t, ":memory:", cfg.Database.DSN())
		assert.Equal(t, 4.0, cfg.Shopify.RequestsPerSecond)
		assert.Equal(t, 72*time.Hour, cfg.Webhook.Retention)
		assert.Equal(t, BackendRedis, cfg.Webhook.DedupBackend)
		assert.Equal(t, BackendRedis, cfg.Sync.LockBackend)
	})

	t.Run("rejects unknown database driver", func(t *testing.T) {
		isolateEnv(t)
		os.Setenv("SHOPSYNC_DATABASE_DRIVER", "mysql")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.driver")
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		isolateEnv(t)
		os.Setenv("SHOPSYNC_DATABASE_MAX_OPEN_CONNS", "10")
		os.Setenv("SHOPSYNC_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("rejects unknown lock backend", func(t *testing.T) {
		isolateEnv(t)
		os.Setenv("SHOPSYNC_SYNC_LOCK_BACKEND", "etcd")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sync.lock_backend")
	})

	t.Run("rejects base backoff above max backoff", func(t *testing.T) {
		isolateEnv(t)
		os.Setenv("SHOPSYNC_SHOPIFY_BASE_BACKOFF", "20s")
		os.Setenv("SHOPSYNC_SHOPIFY_MAX_BACKOFF", "10s")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "shopify.base_backoff")
	})

	t.Run("rejects page size above the remote limit", func(t *testing.T) {
		isolateEnv(t)
		os.Setenv("SHOPSYNC_SYNC_PAGE_SIZE", "500")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sync.page_size")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func() {
		os.Setenv("SHOPSYNC_APP_ENV", "production")
		os.Setenv("SHOPSYNC_JWT_SECRET", "this-is-a-very-secure-jwt-secret-key-32chars")
		os.Setenv("SHOPSYNC_DATABASE_PASSWORD", "secure-password")
		os.Setenv("SHOPSYNC_DATABASE_SSLMODE", "require")
	}

	t.Run("requires jwt.secret in production", func(t *testing.T) {
		isolateEnv(t)
		setValidProductionBase()
		os.Unsetenv("SHOPSYNC_JWT_SECRET")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		isolateEnv(t)
		setValidProductionBase()
		os.Setenv("SHOPSYNC_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("requires https callback URL in production", func(t *testing.T) {
		isolateEnv(t)
		setValidProductionBase()
		os.Setenv("SHOPSYNC_SHOPIFY_CALLBACK_BASE_URL", "http://sync.example.com")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "callback_base_url")
	})

	t.Run("sqlite needs no database password in production", func(t *testing.T) {
		isolateEnv(t)
		setValidProductionBase()
		os.Unsetenv("SHOPSYNC_DATABASE_PASSWORD")
		os.Setenv("SHOPSYNC_DATABASE_DRIVER", "sqlite")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	})

	t.Run("requires a protected swagger endpoint in production", func(t *testing.T) {
		isolateEnv(t)
		setValidProductionBase()
		os.Setenv("SHOPSYNC_SWAGGER_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "swagger endpoint")

		os.Setenv("SHOPSYNC_SWAGGER_REQUIRE_AUTH", "true")
		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.Swagger.RequireAuth)
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		isolateEnv(t)
		setValidProductionBase()

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestLoad_Profiling(t *testing.T) {
	t.Run("needs a pyroscope address", func(t *testing.T) {
		isolateEnv(t)
		os.Setenv("SHOPSYNC_TELEMETRY_PROFILING_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "telemetry.pyroscope_address")
	})

	t.Run("loads the pyroscope address", func(t *testing.T) {
		isolateEnv(t)
		os.Setenv("SHOPSYNC_TELEMETRY_PROFILING_ENABLED", "true")
		os.Setenv("SHOPSYNC_TELEMETRY_PYROSCOPE_ADDRESS", "http://pyroscope:4040")

		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.Telemetry.ProfilingEnabled)
		assert.Equal(t, "http://pyroscope:4040", cfg.Telemetry.PyroscopeAddress)
		assert.False(t, cfg.Swagger.Enabled)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Driver:   DriverPostgres,
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Driver:   DriverPostgres,
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})

	t.Run("sqlite DSN is the file path", func(t *testing.T) {
		cfg := DatabaseConfig{Driver: DriverSQLite, Path: "/var/lib/shopsync.db"}
		assert.Equal(t, "/var/lib/shopsync.db", cfg.DSN())
	})
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", cfg.Addr())
}
