// Package config loads zonestore configuration from defaults, an optional
// YAML file, ZONESTORE_* environment variables and runtime overrides.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/3leaps/zonestore/internal/observability"
	"github.com/3leaps/zonestore/pkg/provider"
)

// Config is the fully resolved configuration.
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	// Backend is one of "zone", "file" or "s3".
	Backend string `mapstructure:"backend"`

	// Timeout bounds every backend request. Zero means no timeout.
	Timeout time.Duration `mapstructure:"timeout"`

	PreserveRoot      bool `mapstructure:"preserve_root"`
	GenerateChecksums bool `mapstructure:"generate_checksums"`

	Zone ZoneConfig `mapstructure:"zone"`
	File FileConfig `mapstructure:"file"`
	S3   S3Config   `mapstructure:"s3"`
}

// ZoneConfig configures the HTTP storage-zone backend.
type ZoneConfig struct {
	AccessKey string `mapstructure:"access_key"`
	Name      string `mapstructure:"name"`
	Endpoint  string `mapstructure:"endpoint"`
}

// FileConfig configures the local directory backend.
type FileConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// S3Config configures the S3 backend.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Profile         string `mapstructure:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	MaxKeys         int    `mapstructure:"max_keys"`
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// MaxUploadBytes caps PUT bodies accepted by the gateway.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

// LoggingConfig configures the gateway logger.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// MetricsConfig configures the Prometheus endpoint on the gateway.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return &ConfigError{Field: "server.port", Message: fmt.Sprintf("port %d out of range", c.Server.Port)}
	}
	if c.Server.MaxUploadBytes < 0 {
		return &ConfigError{Field: "server.max_upload_bytes", Message: "must not be negative"}
	}
	if _, err := observability.ParseLevel(c.Logging.Level); err != nil {
		return &ConfigError{Field: "logging.level", Message: err.Error()}
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return &ConfigError{Field: "metrics.path", Message: "must start with '/'"}
	}
	return nil
}

// Validate checks the fields the selected backend needs.
func (s *StorageConfig) Validate() error {
	backend, ok := provider.ParseProviderType(s.Backend)
	if !ok {
		return &ConfigError{Field: "storage.backend", Message: fmt.Sprintf("unknown backend %q (expected zone, file or s3)", s.Backend)}
	}
	if s.Timeout < 0 {
		return &ConfigError{Field: "storage.timeout", Message: "must not be negative"}
	}

	switch backend {
	case provider.ProviderZone:
		if strings.TrimSpace(s.Zone.AccessKey) == "" {
			return &ConfigError{Field: "storage.zone.access_key", Message: "access key is required (ZONESTORE_ACCESS_KEY)"}
		}
		if strings.TrimSpace(s.Zone.Name) == "" {
			return &ConfigError{Field: "storage.zone.name", Message: "storage zone name is required (ZONESTORE_ZONE)"}
		}
		if s.Zone.Endpoint != "" {
			if u, err := url.Parse(s.Zone.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
				return &ConfigError{Field: "storage.zone.endpoint", Message: "must be an absolute URL"}
			}
		}
	case provider.ProviderFile:
		if strings.TrimSpace(s.File.BaseDir) == "" {
			return &ConfigError{Field: "storage.file.base_dir", Message: "base directory is required"}
		}
	case provider.ProviderS3:
		if strings.TrimSpace(s.S3.Bucket) == "" {
			return &ConfigError{Field: "storage.s3.bucket", Message: "bucket name is required"}
		}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Field + ": " + e.Message
}
