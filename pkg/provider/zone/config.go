// Package zone implements provider.Store on top of an HTTP storage-zone API.
//
// Every object lives under a storage zone and is addressed as
// {endpoint}/{zone}/{key}. Requests authenticate with a static access key
// sent in the AccessKey header.
package zone

import (
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// DefaultEndpoint is the public storage API endpoint.
const DefaultEndpoint = "https://storage.bunnycdn.com"

// Config configures a storage-zone adapter.
type Config struct {
	// AccessKey authenticates every request (required).
	AccessKey string

	// StorageZone is the zone name all keys are rooted under (required).
	StorageZone string

	// Endpoint is the storage API base URL.
	// Defaults to DefaultEndpoint. Regional endpoints look like
	// https://ny.storage.bunnycdn.com.
	Endpoint string

	// GenerateChecksums attaches a SHA-256 Checksum header to uploads.
	// Nil means true.
	GenerateChecksums *bool

	// PreserveRoot refuses Remove on the root key. Nil means true.
	PreserveRoot *bool

	// HTTPClient issues requests. Defaults to http.DefaultClient.
	// The adapter defines no timeout of its own; set one here.
	HTTPClient *http.Client

	// Logger receives one debug entry per request. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AccessKey) == "" {
		return &ConfigError{Field: "AccessKey", Message: "access key is required"}
	}
	if strings.TrimSpace(c.StorageZone) == "" {
		return &ConfigError{Field: "StorageZone", Message: "storage zone name is required"}
	}
	if strings.Contains(c.StorageZone, "/") {
		return &ConfigError{Field: "StorageZone", Message: "storage zone name must not contain '/'"}
	}
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return &ConfigError{Field: "Endpoint", Message: "endpoint must be an absolute URL"}
		}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "zone config: " + e.Field + ": " + e.Message
}

// Bool returns a pointer to b, for the optional Config flags.
func Bool(b bool) *bool {
	return &b
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
