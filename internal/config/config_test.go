package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8095, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout())
	assert.Equal(t, "./", cfg.Storage.BaseDir)
	assert.Equal(t, "http://static.admitere.edu.ro", cfg.Source.BaseURL)
	assert.Zero(t, cfg.FetchTimeout(), "fetches have no deadline by default")
	assert.Equal(t, 8, cfg.Ingest.RegionConcurrency)
	assert.True(t, cfg.Ingest.CloseHandle)
	assert.Equal(t, []int{2020, 2021, 2022}, cfg.Years.Available)
	assert.Equal(t, ProviderNone, cfg.Archive.Provider)
	assert.Equal(t, ProviderNone, cfg.Notify.Provider)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  request_timeout_seconds: 5
  cors_allowed_origins: ["https://admitere.example"]
storage:
  base_dir: /var/lib/admissions
  max_open_conns: 2
source:
  base_url: http://mirror.example
  requests_per_second: 2.5
  burst: 3
http:
  timeout_seconds: 30
ingest:
  region_concurrency: 4
  close_handle: false
years:
  available: [2023, 2024]
archive:
  provider: local
  base_dir: /tmp/raw
notify:
  provider: pubsub
  project_id: admissions-prod
  topic: ingested
logging:
  development: true
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://admitere.example"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, "/var/lib/admissions", cfg.Storage.BaseDir)
	assert.Equal(t, 2, cfg.Storage.MaxOpenConns)
	assert.Equal(t, "http://mirror.example", cfg.Source.BaseURL)
	assert.InDelta(t, 2.5, cfg.Source.RequestsPerSecond, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout())
	assert.Equal(t, 4, cfg.Ingest.RegionConcurrency)
	assert.False(t, cfg.Ingest.CloseHandle)
	assert.Equal(t, []int{2023, 2024}, cfg.Years.Available)
	assert.Equal(t, ProviderLocal, cfg.Archive.Provider)
	assert.Equal(t, "raw", cfg.Archive.Prefix)
	assert.Equal(t, "admissions-prod", cfg.Notify.ProjectID)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ADMISSIONS_SERVER_PORT", "7000")
	t.Setenv("ADMISSIONS_STORAGE_BASE_DIR", "/data")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "/data", cfg.Storage.BaseDir)
}

func TestLoadWithPresetValues(t *testing.T) {
	t.Parallel()

	v := viper.New()
	v.Set("server.port", 9999)
	cfg, err := LoadWith(v, "")
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8095},
		Storage: StorageConfig{BaseDir: "./"},
		Source:  SourceConfig{BaseURL: "http://static.admitere.edu.ro"},
		Ingest:  IngestConfig{RegionConcurrency: 1},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "negative request timeout", mutate: func(c *Config) { c.Server.RequestTimeoutSeconds = -1 }, want: "server.request_timeout_seconds"},
		{name: "empty base dir", mutate: func(c *Config) { c.Storage.BaseDir = " " }, want: "storage.base_dir"},
		{name: "empty base url", mutate: func(c *Config) { c.Source.BaseURL = "" }, want: "source.base_url"},
		{name: "negative rate", mutate: func(c *Config) { c.Source.RequestsPerSecond = -1 }, want: "source.requests_per_second"},
		{name: "negative timeout", mutate: func(c *Config) { c.HTTP.TimeoutSeconds = -1 }, want: "http.timeout_seconds"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Ingest.RegionConcurrency = 0 }, want: "ingest.region_concurrency"},
		{name: "invalid year", mutate: func(c *Config) { c.Years.Available = []int{2021, 0} }, want: "years.available"},
		{name: "local archive without dir", mutate: func(c *Config) { c.Archive.Provider = ProviderLocal }, want: "archive.base_dir"},
		{name: "gcs archive without bucket", mutate: func(c *Config) { c.Archive.Provider = ProviderGCS }, want: "archive.bucket"},
		{name: "unknown archive", mutate: func(c *Config) { c.Archive.Provider = "s3" }, want: "archive.provider"},
		{name: "pubsub without project", mutate: func(c *Config) {
			c.Notify.Provider = ProviderPubSub
			c.Notify.Topic = "t"
		}, want: "notify.project_id"},
		{name: "memory notify without topic", mutate: func(c *Config) { c.Notify.Provider = ProviderMemory }, want: "notify.topic"},
		{name: "unknown notify", mutate: func(c *Config) { c.Notify.Provider = "kafka" }, want: "notify.provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
