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
	chdir(t, t.TempDir())

	cfg, err := LoadDefault()
	require.NoError(t, err)

	assert.Equal(t, "stigwatch", cfg.App.Name)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "stigwatch:", cfg.Redis.KeyPrefix)
	assert.Equal(t, 8, cfg.Compliance.WorkerPoolSize)
	assert.Equal(t, 10*time.Minute, cfg.Compliance.ReportCacheTTL)
	assert.Equal(t, "checklists", cfg.NATS.SubjectPrefix)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, []string{"low", "moderate", "high", "all"}, cfg.Worker.Impacts)
	assert.Equal(t, 5*time.Second, cfg.Worker.Debounce)
	assert.Equal(t, "postgres://stigwatch:@localhost:5432/stigwatch?sslmode=disable&search_path=public", cfg.Database.DSN())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  http_port: 9000
compliance:
  default_impact: moderate
  report_cache_ttl: 1m
templates:
  dir: /srv/templates
`), 0o600))

	t.Setenv("STIGWATCH_DATABASE_HOST", "db.internal")
	t.Setenv("STIGWATCH_NATS_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, "moderate", cfg.Compliance.DefaultImpact)
	assert.Equal(t, time.Minute, cfg.Compliance.ReportCacheTTL)
	assert.Equal(t, "/srv/templates", cfg.Templates.Dir)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

// chdir changes the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
