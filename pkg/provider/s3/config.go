// Package s3 reads policy files and spec trees straight from an S3 bucket
// or an S3-compatible store.
package s3

// List paging and region fallbacks.
const (
	// DefaultMaxKeys is the page size used when Config.MaxKeys is zero.
	DefaultMaxKeys = 1000

	// MaxAllowedKeys is the ListObjectsV2 ceiling; larger requests are cut.
	MaxAllowedKeys = 1000

	// DefaultAWSRegion applies to AWS endpoints when neither the config nor
	// the SDK environment names a region.
	DefaultAWSRegion = "us-east-1"
)

// Config selects a bucket and how to reach it.
//
// Credentials left empty come from the SDK chain: environment, then shared
// files (honoring Profile), then instance, task or IRSA roles. Stores such as
// MinIO or moto need Endpoint and usually ForcePathStyle.
type Config struct {
	Bucket   string
	Region   string
	Endpoint string
	Profile  string

	// Static credentials. Set both or neither.
	AccessKeyID     string
	SecretAccessKey string

	ForcePathStyle bool

	// MaxKeys is the list page size. Zero means DefaultMaxKeys.
	MaxKeys int
}

// Validate reports the first missing or inconsistent field.
func (c *Config) Validate() error {
	switch {
	case c.Bucket == "":
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	case (c.AccessKeyID == "") != (c.SecretAccessKey == ""):
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	return nil
}

// ConfigError names the Config field that failed validation.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "s3 config: " + e.Field + ": " + e.Message
}
