package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lakemill.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	ResetConfig()

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultSourcesDir, cfg.SourcesDir)
	assert.Equal(t, DefaultStateFile, cfg.StatePath)
	assert.Equal(t, DefaultEnv, cfg.Environment)
	assert.Equal(t, DefaultOnRagged, cfg.OnRagged)
	assert.Equal(t, DefaultOnCastError, cfg.OnCastError)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	require.NotNil(t, cfg.Warehouse)
	assert.Equal(t, "duckdb", cfg.Warehouse.Type)
}

func TestLoadConfig_File(t *testing.T) {
	ResetConfig()

	path := writeConfig(t, `
sources_dir: data
on_ragged: skip
on_cast_error: "null"
workers: 2
warehouse:
  type: duckdb
  path: warehouse.duckdb
`)

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.SourcesDir)
	assert.Equal(t, "skip", cfg.OnRagged)
	assert.Equal(t, "null", cfg.OnCastError)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, "warehouse.duckdb", cfg.Warehouse.Path)
	assert.Equal(t, path, GetConfigFileUsed())
}

func TestLoadConfig_EnvVars(t *testing.T) {
	ResetConfig()
	t.Setenv("LAKEMILL_SOURCES_DIR", "/srv/sources")
	t.Setenv("LAKEMILL_ON_RAGGED", "skip")

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, "/srv/sources", cfg.SourcesDir)
	assert.Equal(t, "skip", cfg.OnRagged)
}

func TestLoadConfig_FlagsOverrideEverything(t *testing.T) {
	ResetConfig()
	t.Setenv("LAKEMILL_SOURCES_DIR", "/srv/sources")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("sources-dir", "", "")
	flags.String("state", "", "")
	flags.String("env", "", "")
	flags.String("database", "", "")
	require.NoError(t, flags.Parse([]string{
		"--sources-dir", "/flag/sources",
		"--state", "custom.db",
		"--env", "prod",
		"--database", "wh.duckdb",
	}))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)

	assert.Equal(t, "/flag/sources", cfg.SourcesDir)
	assert.Equal(t, "custom.db", cfg.StatePath)
	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, "wh.duckdb", cfg.Warehouse.Path)
}

func TestLoadConfig_UnsetFlagsIgnored(t *testing.T) {
	ResetConfig()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("sources-dir", "", "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)
	assert.Equal(t, DefaultSourcesDir, cfg.SourcesDir)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	ResetConfig()

	path := writeConfig(t, `
environment: prod
warehouse:
  type: duckdb
  path: dev.duckdb
environments:
  prod:
    state_path: prod-state.db
    warehouse:
      type: postgres
      host: db.internal
      database: warehouse
      user: loader
`)

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "prod-state.db", cfg.StatePath)
	assert.Equal(t, "postgres", cfg.Warehouse.Type)
	assert.Equal(t, "db.internal", cfg.Warehouse.Host)
	// Base fields survive where the override is silent.
	assert.Equal(t, "dev.duckdb", cfg.Warehouse.Path)
}

func TestLoadConfig_CredentialExpansion(t *testing.T) {
	ResetConfig()
	t.Setenv("WAREHOUSE_PASSWORD", "hunter2")

	path := writeConfig(t, `
warehouse:
  type: postgres
  host: db.internal
  database: warehouse
  user: loader
  password: ${WAREHOUSE_PASSWORD}
`)

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.Warehouse.Password)
}

func TestLoadConfig_InvalidPolicy(t *testing.T) {
	ResetConfig()

	path := writeConfig(t, "on_ragged: explode\n")
	_, err := LoadConfig(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "on_ragged")
}

func TestLoadConfig_InvalidCastPolicy(t *testing.T) {
	ResetConfig()

	path := writeConfig(t, "on_cast_error: ignore\n")
	_, err := LoadConfig(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "on_cast_error")
}

func TestLoadConfig_UnknownWarehouse(t *testing.T) {
	ResetConfig()

	path := writeConfig(t, "warehouse:\n  type: snowflake\n")
	_, err := LoadConfig(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snowflake")
}

func TestLoadConfig_PostgresRequiresHost(t *testing.T) {
	ResetConfig()

	path := writeConfig(t, "warehouse:\n  type: postgres\n  database: wh\n")
	_, err := LoadConfig(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host")
}
