package outputstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/sonerady/dires-server-sub002/internal/pkg/env"
)

// Config holds S3 output-archive configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Enabled         bool
}

// LoadConfig loads S3 configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-west-001"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Enabled:         env.GetEnv("OUTPUT_ARCHIVE_ENABLED", "false") == "true",
	}

	// Validate required fields if output archival is enabled
	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when output archival is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when output archival is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when output archival is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if output archival is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// GetObjectKey generates a standardized S3 object key for a generation output.
// Format: outputs/YYYY/MM/<jobID><ext>
func (c *Config) GetObjectKey(jobID, fileExtension string, at time.Time) string {
	return fmt.Sprintf("outputs/%04d/%02d/%s%s", at.Year(), int(at.Month()), jobID, fileExtension)
}

// GetAppEnv returns the current application environment
func GetAppEnv() string {
	return env.GetEnv("APP_ENV", "dev")
}
