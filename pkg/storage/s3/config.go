// Package s3 mirrors downloaded artifacts to AWS S3 and S3-compatible storage.
package s3

// Config configures an S3 uploader.
//
// Authentication follows the AWS SDK v2 default chain unless explicit
// credentials are set: environment, shared credentials/config files, then
// instance or task roles.
//
// For S3-compatible stores (MinIO, Wasabi), set Endpoint and usually
// ForcePathStyle. No default region is applied when Endpoint is set.
type Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string

	// Prefix is prepended to every key. A trailing "/" is added when missing.
	Prefix string

	// Region is the AWS region.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible stores.
	Endpoint string

	// Profile is the AWS profile name to use from shared config.
	Profile string

	// AccessKeyID is an explicit access key. If set, SecretAccessKey must also be set.
	AccessKeyID string

	// SecretAccessKey is an explicit secret key. Required if AccessKeyID is set.
	SecretAccessKey string

	// ForcePathStyle forces path-style URLs (bucket in path, not subdomain).
	ForcePathStyle bool
}

// DefaultAWSRegion is the fallback region for AWS S3 when not specified.
const DefaultAWSRegion = "us-east-1"

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}

	// If one explicit credential is set, both must be set
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

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "s3 config: " + e.Field + ": " + e.Message
}
