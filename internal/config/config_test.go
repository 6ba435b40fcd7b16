package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func newViper(values map[string]any) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

func TestDefaults(t *testing.T) {
	cfg, err := fromViper(newViper(nil))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "bolt", cfg.Storage.Driver)
	assert.Equal(t, "productstore-products", cfg.Storage.Key)
	assert.Equal(t, "auth-session", cfg.Storage.SessionKey)
	assert.Equal(t, "https://dummyjson.com/products", cfg.Catalog.URL)
	assert.Equal(t, 15*time.Second, cfg.Catalog.Timeout)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Empty(t, cfg.RedisAddr())
	assert.Empty(t, cfg.CORS.AllowedOrigins)
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("SERVER_ENV", "production")
	t.Setenv("STORAGE_DRIVER", "REDIS")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("CATALOG_TIMEOUT", "3s")
	t.Setenv("AUTH_SITE_URL", "https://shop.example.com/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")

	cfg, err := Load(zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "redis", cfg.Storage.Driver)
	assert.Equal(t, "cache:6379", cfg.RedisAddr())
	assert.Equal(t, 3*time.Second, cfg.Catalog.Timeout)
	assert.Equal(t, "https://shop.example.com", cfg.Auth.SiteURL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_MissingEnvFileLogsAtDebug(t *testing.T) {
	t.Chdir(t.TempDir())
	core, logs := observer.New(zapcore.DebugLevel)

	_, err := Load(zap.New(core))
	require.NoError(t, err)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)
	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestLoad_ReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CATALOG_LIMIT=30\n"), 0o600))
	t.Chdir(dir)
	t.Setenv("CATALOG_LIMIT", "")
	os.Unsetenv("CATALOG_LIMIT")
	core, logs := observer.New(zapcore.DebugLevel)

	cfg, err := Load(zap.New(core))
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Catalog.Limit)
	assert.Zero(t, logs.Len())
}

func TestValidate(t *testing.T) {
	_, err := fromViper(newViper(map[string]any{"STORAGE_DRIVER": "redis"}))
	assert.ErrorContains(t, err, "REDIS_HOST")

	_, err = fromViper(newViper(map[string]any{"STORAGE_DRIVER": "sqlite"}))
	assert.ErrorContains(t, err, "unknown STORAGE_DRIVER")

	_, err = fromViper(newViper(map[string]any{"CATALOG_LIMIT": -1}))
	assert.Error(t, err)
}
