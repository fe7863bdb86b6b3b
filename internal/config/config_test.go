package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ADDR", "DEV_HEADERS", "STORE_DRIVER", "DATABASE_URL", "REDIS_ADDR", "JWT_SECRET",
		"STORAGE_BASE_DIR", "STORAGE_BASE_URL", "SENDGRID_API_KEY", "IBGE_BASE_URL", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_FileOverDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  addr: ":9090"
database:
  driver: memory
jwt:
  secret: s3cret
adoption:
  withdrawn_photo_retention: 48h
geo:
  cache_ttl: 2h
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, StoreDriverMemory, cfg.Database.Driver)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, 48*time.Hour, cfg.Adoption.WithdrawnPhotoRetention)
	assert.Equal(t, 2*time.Hour, cfg.Geo.CacheTTL)
	// untouched defaults survive
	assert.Equal(t, time.Hour, cfg.Adoption.TempPhotoMaxAge)
	assert.Equal(t, float64(5), cfg.Storage.MaxPhotoMB)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("ADDR", ":7000")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEV_HEADERS", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, StoreDriverMemory, cfg.Database.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Server.DevHeaders)
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)

	_, err := Load("")
	assert.ErrorContains(t, err, "JWT secret")

	t.Setenv("JWT_SECRET", "x")
	t.Setenv("STORE_DRIVER", "mongo")
	_, err = Load("")
	assert.ErrorContains(t, err, "unknown store driver")

	t.Setenv("STORE_DRIVER", "")
	t.Setenv("DEV_HEADERS", "maybe")
	_, err = Load("")
	assert.ErrorContains(t, err, "DEV_HEADERS")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
