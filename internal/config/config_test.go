package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 120, cfg.Server.RateLimit)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, "release", cfg.Server.GinMode)

	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "oplock.db", cfg.Store.SQLitePath)
	assert.Equal(t, "oplock:", cfg.Store.RedisKeyPrefix)

	assert.Equal(t, 24*time.Hour, cfg.Lock.DefaultTTL)
	assert.Equal(t, 200*time.Millisecond, cfg.Lock.PollInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.Lock.RaceBackoff)
	assert.Equal(t, 30*time.Second, cfg.Lock.MaxWait)

	assert.True(t, cfg.Janitor.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Janitor.Interval)
	assert.False(t, cfg.Events.Enabled)
	assert.Equal(t, "oplock.events", cfg.Events.Exchange)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 10*time.Minute, cfg.Command.Timeout)
	assert.Equal(t, 64*1024, cfg.Command.MaxOutput)
}

func TestLoadFile_EnvironmentOverrides(t *testing.T) {
	t.Setenv("OPLOCK_STORE_DRIVER", "redis")
	t.Setenv("OPLOCK_MAX_WAIT", "5s")
	t.Setenv("OPLOCK_JANITOR_ENABLED", "false")
	t.Setenv("OPLOCK_HTTP_PORT", "9999")

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, DriverRedis, cfg.Store.Driver)
	assert.Equal(t, 5*time.Second, cfg.Lock.MaxWait)
	assert.False(t, cfg.Janitor.Enabled)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoadFile_DotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "OPLOCK_STORE_DRIVER=postgres\nDATABASE_URL=postgres://u:p@db:5432/locks\nOPLOCK_DEFAULT_TTL=1h\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://u:p@db:5432/locks", cfg.Store.DatabaseURL)
	assert.Equal(t, time.Hour, cfg.Lock.DefaultTTL)
}

func TestLoadFile_EnvironmentBeatsDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("OPLOCK_SQLITE_PATH=/from/file.db\n"), 0o600))
	t.Setenv("OPLOCK_SQLITE_PATH", "/from/env.db")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env.db", cfg.Store.SQLitePath)
}

func TestLoadFile_Invalid(t *testing.T) {
	t.Setenv("OPLOCK_STORE_DRIVER", "mongo")
	t.Setenv("OPLOCK_POLL_INTERVAL", "0s")

	_, err := LoadFile("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown driver "mongo"`)
	assert.Contains(t, err.Error(), "OPLOCK_POLL_INTERVAL")
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = NewLogger(LogConfig{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	_, err = NewLogger(LogConfig{Level: "loud"})
	assert.Error(t, err)
}
