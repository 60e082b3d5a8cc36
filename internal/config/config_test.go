package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/arkilian/partprune/internal/errors"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, filepath.Join("./data/partprune", "catalog.db"), cfg.Catalog.Path)
	assert.True(t, cfg.Planner.Enabled)
	assert.Equal(t, 1024, cfg.Planner.MaxInList)
}

func TestLoadFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partprune.yaml")
	content := `
data_dir: /var/lib/partprune
log:
  level: debug
http:
  addr: ":7070"
planner:
  enabled: false
  max_in_list: 16
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/partprune", cfg.DataDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.False(t, cfg.Planner.Enabled)
	assert.Equal(t, 16, cfg.Planner.MaxInList)
	// Unset keys keep their defaults.
	assert.Equal(t, ":9090", cfg.GRPC.Addr)
}

func TestLoadFromFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partprune.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"planner":{"strict_invariants":true}}`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.Planner.StrictInvariants)
	assert.True(t, cfg.Planner.Enabled)
}

func TestLoadFromFileUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partprune.toml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0644))
	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PARTPRUNE_HTTP_ADDR", ":1234")
	t.Setenv("PARTPRUNE_GRPC_ENABLED", "false")
	t.Setenv("PARTPRUNE_CATALOG_SNAPSHOT_TTL", "5s")
	t.Setenv("PARTPRUNE_PLANNER_MAX_IN_LIST", "8")
	t.Setenv("PARTPRUNE_STORAGE_TYPE", "s3")
	t.Setenv("PARTPRUNE_S3_BUCKET", "catalogs")

	cfg := DefaultConfig()
	require.NoError(t, LoadFromEnv(cfg))
	assert.Equal(t, ":1234", cfg.HTTP.Addr)
	assert.False(t, cfg.GRPC.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Catalog.SnapshotTTL)
	assert.Equal(t, 8, cfg.Planner.MaxInList)
	assert.Equal(t, "s3", cfg.Storage.Type)
	assert.Equal(t, "catalogs", cfg.Storage.S3.Bucket)
}

func TestLoadFromEnvMalformed(t *testing.T) {
	t.Setenv("PARTPRUNE_PLANNER_ENABLED", "sometimes")
	t.Setenv("PARTPRUNE_HTTP_READ_TIMEOUT", "soon")

	err := LoadFromEnv(DefaultConfig())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidConfig, apperrors.GetCode(err))
	assert.Contains(t, err.Error(), "PARTPRUNE_PLANNER_ENABLED")
	assert.Contains(t, err.Error(), "PARTPRUNE_HTTP_READ_TIMEOUT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown storage type", func(c *Config) { c.Storage.Type = "gcs" }},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = "s3" }},
		{"negative max in list", func(c *Config) { c.Planner.MaxInList = -1 }},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }},
		{"shared address", func(c *Config) { c.GRPC.Addr = c.HTTP.Addr }},
		{"grpc without address", func(c *Config) { c.GRPC.Addr = "" }},
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"bad s3 endpoint", func(c *Config) { c.Storage.S3.Endpoint = "not a url" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Resolve()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeInvalidConfig, apperrors.GetCode(err))
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PARTPRUNE_DATA_DIR", dir)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "catalog.db"), cfg.Catalog.Path)
	assert.Equal(t, filepath.Join(dir, "storage"), cfg.Storage.Path)

	require.NoError(t, cfg.EnsureDirectories())
	_, err = os.Stat(cfg.Storage.Path)
	assert.NoError(t, err)
}
