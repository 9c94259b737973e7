package config

import (
	"fmt"
	"strings"

	"github.com/iliyamo/pixvault/internal/repository"
)

// Payload backends.
const (
	BackendKV = "kv"
	BackendS3 = "s3"
)

// StorageConfig chooses where resource payloads live. Metadata, sessions,
// counters and the expiry index always stay in Redis.
type StorageConfig struct {
	Backend string
	S3      repository.S3Options
}

func LoadStorageConfig() StorageConfig {
	return StorageConfig{
		Backend: strings.ToLower(envStr("PAYLOAD_BACKEND", BackendKV)),
		S3: repository.S3Options{
			AccessKey:    envStr("S3_ACCESS_KEY", ""),
			SecretKey:    envStr("S3_SECRET_KEY", ""),
			Bucket:       envStr("S3_BUCKET", ""),
			Region:       envStr("S3_REGION", "us-east-1"),
			BaseEndpoint: envStr("S3_ENDPOINT", ""),
			Prefix:       envStr("S3_PREFIX", ""),
		},
	}
}

func (c StorageConfig) Validate() error {
	switch c.Backend {
	case BackendKV:
		return nil
	case BackendS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("PAYLOAD_BACKEND=s3 needs S3_BUCKET")
		}
		return nil
	}
	return fmt.Errorf("unknown PAYLOAD_BACKEND %q", c.Backend)
}
