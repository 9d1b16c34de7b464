// Package s3 implements provider.Store on top of an S3 bucket.
//
// The bucket stands in for a storage zone: keys map to object keys without
// the leading slash, and listings are folded to a single directory level with
// the "/" delimiter so they match the storage-zone listing shape.
package s3

import "go.uber.org/zap"

// Config configures an S3-backed store.
//
// Credentials follow the AWS SDK v2 default chain unless AccessKeyID and
// SecretAccessKey are both set:
//  1. Explicit AccessKeyID/SecretAccessKey
//  2. Environment variables (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY)
//  3. Shared credentials and config files, optionally with Profile
//  4. Instance or task role
//
// When Endpoint is empty and no region resolves, us-east-1 is used. When
// Endpoint is set no default region is applied.
type Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string

	// Region is the AWS region.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible stores
	// (MinIO, Wasabi, moto). Leave empty for AWS S3.
	Endpoint string

	// Profile is the shared config profile name.
	Profile string

	// AccessKeyID is an explicit access key. SecretAccessKey must also be set.
	AccessKeyID string

	// SecretAccessKey is an explicit secret key. Required if AccessKeyID is set.
	SecretAccessKey string

	// ForcePathStyle puts the bucket in the path instead of the host name.
	ForcePathStyle bool

	// MaxKeys is the page size used when draining a listing from S3.
	// Zero uses DefaultMaxKeys. Values over MaxAllowedKeys are clamped.
	MaxKeys int

	// GenerateChecksums sends a SHA-256 checksum with every upload so S3
	// verifies the body. Nil means true.
	GenerateChecksums *bool

	// PreserveRoot refuses Remove on the root key. Nil means true.
	PreserveRoot *bool

	// Logger receives one debug entry per S3 call. Defaults to a no-op logger.
	Logger *zap.Logger
}

// DefaultMaxKeys is the default page size for ListObjectsV2 calls.
const DefaultMaxKeys = 1000

// MaxAllowedKeys is the maximum page size allowed by S3.
const MaxAllowedKeys = 1000

// DefaultAWSRegion is the fallback region for AWS S3 when not specified.
const DefaultAWSRegion = "us-east-1"

// maxDeleteBatch is the DeleteObjects limit per request.
const maxDeleteBatch = 1000

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}

	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
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
	return "s3 config: " + e.Field + ": " + e.Message
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
