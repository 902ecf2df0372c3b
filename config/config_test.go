package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "data.db", cfg.Database.Path)
	assert.Equal(t, 72*time.Hour, cfg.JWT.TTL)
	assert.Equal(t, 5*time.Minute, cfg.Access.InviteTTL)
	assert.Equal(t, 48*time.Hour, cfg.Access.PendingTTL)
	assert.Equal(t, time.Hour, cfg.Access.SweepInterval)
	assert.False(t, cfg.MQTT.Enabled())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("ACCESS_INVITE_TTL", "2m")
	t.Setenv("DB_PATH", "legacy.db")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 2*time.Minute, cfg.Access.InviteTTL)
	assert.Equal(t, "legacy.db", cfg.Database.Path)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.True(t, cfg.MQTT.Enabled())
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: postgres\n  dsn: host=db user=door\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "host=db user=door", cfg.Database.DSN)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load()
	require.NoError(t, err)

	bad := *cfg
	bad.Database.Driver = "mysql"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Database.Driver = "postgres"
	bad.Database.DSN = ""
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Access.InviteTTL = 0
	assert.Error(t, bad.Validate())

	t.Setenv("GIN_MODE", "release")
	bad = *cfg
	bad.JWT.Secret = ""
	assert.Error(t, bad.Validate())
}
