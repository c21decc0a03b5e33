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
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0644))
	return dir
}

func TestLoadConfig(t *testing.T) {
	uploads := filepath.Join(t.TempDir(), "uploads")
	dir := writeConfig(t, `
server:
  port: "9090"
  mode: debug
database:
  driver: postgres
  dbname: lms
jwt:
  secret: short
  expire_hours: 2
storage:
  type: local
  local_path: `+uploads+`
assessment:
  grace_seconds: 45
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 2*time.Hour, cfg.JWT.ExpireTime)
	assert.Equal(t, 45*time.Second, cfg.Assessment.Grace())
	assert.Equal(t, "@every 1m", cfg.Assessment.SweepSchedule)
	assert.Equal(t, 5*time.Minute, cfg.Assessment.PaperCacheTTL())
	assert.Equal(t, filepath.Join(dir, "config.yaml"), cfg.ConfigFile)
	assert.DirExists(t, uploads)
}

func TestLoadConfig_rejects(t *testing.T) {
	t.Run("short secret in release", func(t *testing.T) {
		dir := writeConfig(t, "server:\n  mode: release\njwt:\n  secret: short\nstorage:\n  type: minio\n")
		_, err := LoadConfig(dir)
		assert.ErrorContains(t, err, "JWT secret is too short")
	})
	t.Run("negative grace", func(t *testing.T) {
		dir := writeConfig(t, "server:\n  mode: debug\nstorage:\n  type: minio\nassessment:\n  grace_seconds: -1\n")
		_, err := LoadConfig(dir)
		assert.ErrorContains(t, err, "grace_seconds")
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(t.TempDir())
		assert.Error(t, err)
	})
}
