// Package config loads and validates admissions configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/admissions-crawler/internal/logging"
)

// Archive and notify provider names.
const (
	ProviderNone   = "none"
	ProviderMemory = "memory"
	ProviderLocal  = "local"
	ProviderGCS    = "gcs"
	ProviderPubSub = "pubsub"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig   `mapstructure:"server"`
	Storage StorageConfig  `mapstructure:"storage"`
	Source  SourceConfig   `mapstructure:"source"`
	HTTP    HTTPConfig     `mapstructure:"http"`
	Ingest  IngestConfig   `mapstructure:"ingest"`
	Years   YearsConfig    `mapstructure:"years"`
	Archive ArchiveConfig  `mapstructure:"archive"`
	Notify  NotifyConfig   `mapstructure:"notify"`
	Logging logging.Config `mapstructure:"logging"`
}

// ServerConfig controls the query API.
type ServerConfig struct {
	Port                  int      `mapstructure:"port"`
	RequestTimeoutSeconds int      `mapstructure:"request_timeout_seconds"`
	CORSAllowedOrigins    []string `mapstructure:"cors_allowed_origins"`
}

// StorageConfig locates the per-year storage units.
type StorageConfig struct {
	BaseDir      string `mapstructure:"base_dir"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// SourceConfig points at the publisher and throttles requests to it.
type SourceConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	UserAgent         string  `mapstructure:"user_agent"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	MaxBodyBytes      int     `mapstructure:"max_body_bytes"`
}

// HTTPConfig configures the outbound HTTP client.
type HTTPConfig struct {
	// TimeoutSeconds of zero leaves fetches without a deadline.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// IngestConfig tunes the ingestion coordinator.
type IngestConfig struct {
	RegionConcurrency int  `mapstructure:"region_concurrency"`
	CloseHandle       bool `mapstructure:"close_handle"`
}

// YearsConfig lists the years the query API advertises.
type YearsConfig struct {
	Available []int `mapstructure:"available"`
}

// ArchiveConfig selects where raw payloads are kept.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"`
	BaseDir  string `mapstructure:"base_dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// NotifyConfig selects where ingestion events are published.
type NotifyConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	return LoadWith(v, path)
}

// LoadWith reads into v, which may already carry bound command flags.
func LoadWith(v *viper.Viper, path string) (Config, error) {
	v.SetEnvPrefix("ADMISSIONS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8095)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.cors_allowed_origins", []string{"*"})
	v.SetDefault("storage.base_dir", "./")
	v.SetDefault("storage.max_open_conns", 5)
	v.SetDefault("source.base_url", "http://static.admitere.edu.ro")
	v.SetDefault("source.user_agent", "admissions-crawler/0.1")
	v.SetDefault("source.requests_per_second", 0)
	v.SetDefault("source.burst", 1)
	v.SetDefault("source.max_body_bytes", 0)
	v.SetDefault("http.timeout_seconds", 0)
	v.SetDefault("ingest.region_concurrency", 8)
	v.SetDefault("ingest.close_handle", true)
	v.SetDefault("years.available", []int{2020, 2021, 2022})
	v.SetDefault("archive.provider", ProviderNone)
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("notify.provider", ProviderNone)
	v.SetDefault("notify.topic", "admissions-ingested")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds < 0 {
		return errors.New("server.request_timeout_seconds must be >= 0")
	}
	if strings.TrimSpace(c.Storage.BaseDir) == "" {
		return errors.New("storage.base_dir is required")
	}
	if strings.TrimSpace(c.Source.BaseURL) == "" {
		return errors.New("source.base_url is required")
	}
	if c.Source.RequestsPerSecond < 0 {
		return errors.New("source.requests_per_second must be >= 0")
	}
	if c.HTTP.TimeoutSeconds < 0 {
		return errors.New("http.timeout_seconds must be >= 0")
	}
	if c.Ingest.RegionConcurrency <= 0 {
		return errors.New("ingest.region_concurrency must be > 0")
	}
	for _, y := range c.Years.Available {
		if y <= 0 {
			return fmt.Errorf("years.available contains invalid year %d", y)
		}
	}

	switch c.Archive.Provider {
	case "", ProviderNone, ProviderMemory:
	case ProviderLocal:
		if strings.TrimSpace(c.Archive.BaseDir) == "" {
			return errors.New("archive.base_dir must be set for the local archive")
		}
	case ProviderGCS:
		if strings.TrimSpace(c.Archive.Bucket) == "" {
			return errors.New("archive.bucket must be set for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.provider %q is not supported", c.Archive.Provider)
	}

	switch c.Notify.Provider {
	case "", ProviderNone:
	case ProviderMemory:
		if c.Notify.Topic == "" {
			return errors.New("notify.topic must be set when notifications are enabled")
		}
	case ProviderPubSub:
		if c.Notify.ProjectID == "" || c.Notify.Topic == "" {
			return errors.New("notify.project_id and notify.topic must be set for pubsub")
		}
	default:
		return fmt.Errorf("notify.provider %q is not supported", c.Notify.Provider)
	}
	return nil
}

// FetchTimeout converts http.timeout_seconds to a duration. Zero means none.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RequestTimeout converts server.request_timeout_seconds to a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}
