package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "plan.yaml", cfg.Catchment.PlanPath)
	assert.Equal(t, 2, cfg.Catchment.MaxConcurrentDatasets)
	assert.Equal(t, 4, cfg.Catchment.MaxConcurrentThresholds)
	assert.True(t, cfg.Catchment.OutputBOM)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "catchment.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "public", cfg.Postgres.Schema)
	assert.Equal(t, "accessibility_scores", cfg.Postgres.Table)
	assert.Equal(t, 4326, cfg.Postgres.SRID)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
catchment:
  plan_path: plans/cq.yaml
  max_concurrent_thresholds: 8
  output_bom: false
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "plans/cq.yaml", cfg.Catchment.PlanPath)
	assert.Equal(t, 8, cfg.Catchment.MaxConcurrentThresholds)
	assert.False(t, cfg.Catchment.OutputBOM)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, 2, cfg.Catchment.MaxConcurrentDatasets)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  database_url: file.db
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("CATCHMENT_STORE_DATABASE_URL", "env.db")
	t.Setenv("CATCHMENT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "env.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("CATCHMENT_SERVER_PORT", "3000")
	t.Setenv("CATCHMENT_CATCHMENT_MAX_CONCURRENT_DATASETS", "6")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 6, cfg.Catchment.MaxConcurrentDatasets)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Catchment.MaxConcurrentDatasets = 2
	cfg.Catchment.MaxConcurrentThresholds = 4
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "catchment.db"
	cfg.Postgres.Table = "accessibility_scores"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateRun(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("run"))

	cfg.Catchment.MaxConcurrentThresholds = 0
	cfg.Store.Driver = "mysql"
	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent_thresholds")
	assert.Contains(t, err.Error(), "store.driver")
}

func TestValidateServe(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Server.Port = 0
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidatePublish(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("publish")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres.database_url is required")

	cfg.Postgres.DatabaseURL = "postgres://localhost/gis"
	assert.NoError(t, cfg.Validate("publish"))
}
